package session

import "errors"

// Init-time errors. No controller exists when either is returned.
var (
	ErrQuizNotFound = errors.New("quiz not found")
	ErrNoQuestions  = errors.New("quiz has no questions")
)

var errEmptyResult = errors.New("scoring returned no result")
