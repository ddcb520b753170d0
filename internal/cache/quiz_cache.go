package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/model"
)

// QuizCache keeps recently fetched quiz definitions in Redis, keyed per candidate.
type QuizCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuizCache creates a QuizCache with the given entry lifetime.
func NewQuizCache(rdb *redis.Client, ttl time.Duration) *QuizCache {
	return &QuizCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached quiz, or nil, nil on a miss.
func (c *QuizCache) Get(ctx context.Context, candidateID, quizID string) (*model.Quiz, error) {
	raw, err := c.rdb.Get(ctx, config.CacheKey.CandidateQuizKey(candidateID, quizID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached quiz: %w", err)
	}

	var quiz model.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		// A corrupt entry is a miss; drop it so the next read refetches.
		_ = c.rdb.Del(ctx, config.CacheKey.CandidateQuizKey(candidateID, quizID)).Err()
		return nil, nil
	}
	return &quiz, nil
}

// Set stores a quiz definition.
func (c *QuizCache) Set(ctx context.Context, candidateID string, quiz *model.Quiz) error {
	raw, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("encode quiz: %w", err)
	}
	if err := c.rdb.Set(ctx, config.CacheKey.CandidateQuizKey(candidateID, quiz.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached quiz: %w", err)
	}
	return nil
}
