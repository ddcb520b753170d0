package model

import (
	"time"

	"github.com/google/uuid"
)

// AnswerEntry is one committed answer as sent to the platform for scoring.
type AnswerEntry struct {
	QuestionID     string `json:"questionId"`
	SelectedOption int    `json:"selectedOption"`
}

// SubmitAttemptRequest is the scoring request body sent to the platform.
type SubmitAttemptRequest struct {
	Answers        []AnswerEntry `json:"answers"`
	ElapsedSeconds int           `json:"elapsedSeconds"`
}

// AttemptResult is the platform's authoritative score for a submitted attempt.
type AttemptResult struct {
	Score          float64 `json:"score"`
	Percentage     float64 `json:"percentage"`
	CorrectAnswers int     `json:"correctAnswers"`
	TotalQuestions int     `json:"totalQuestions"`
}

// OutcomeKind distinguishes how an attempt ended.
type OutcomeKind string

const (
	OutcomeScored    OutcomeKind = "SCORED"
	OutcomeAbandoned OutcomeKind = "ABANDONED"
)

// AttemptOutcome is the audit record written once per finished attempt.
type AttemptOutcome struct {
	ID             uuid.UUID   `json:"id"`
	SessionID      uuid.UUID   `json:"session_id"`
	QuizID         string      `json:"quiz_id"`
	CandidateID    string      `json:"candidate_id"`
	Outcome        OutcomeKind `json:"outcome"`
	AnsweredCount  int         `json:"answered_count"`
	ElapsedSeconds int         `json:"elapsed_seconds"`
	Score          *float64    `json:"score,omitempty"`
	Percentage     *float64    `json:"percentage,omitempty"`
	CorrectAnswers *int        `json:"correct_answers,omitempty"`
	TotalQuestions *int        `json:"total_questions,omitempty"`
	Submissions    int         `json:"submissions"`
	FinishedAt     time.Time   `json:"finished_at"`
}
