package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// CandidateQuizKey returns the cache key for a quiz definition fetched on behalf of a candidate.
// Definitions are cached per candidate so the platform's access check is never bypassed.
func (r *CacheKeyStruct) CandidateQuizKey(candidateID, quizID string) string {
	return fmt.Sprintf("candidate:%s:quiz:%s:definition", candidateID, quizID)
}

var CacheKey = NewCacheKeyStruct()
