package model

import "github.com/google/uuid"

// Phase enumerates quiz session states.
type Phase string

const (
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseSubmitting Phase = "SUBMITTING"
	PhaseComplete   Phase = "COMPLETE"
	PhaseErrored    Phase = "ERRORED"
)

// Snapshot is a point-in-time view of a quiz session.
// Version increases on every state change so consumers can drop stale frames.
type Snapshot struct {
	SessionID        uuid.UUID      `json:"session_id"`
	Version          uint64         `json:"version"`
	QuizID           string         `json:"quiz_id"`
	QuizTitle        string         `json:"quiz_title"`
	QuizType         QuizType       `json:"quiz_type"`
	Phase            Phase          `json:"phase"`
	CurrentIndex     int            `json:"current_index"`
	TotalQuestions   int            `json:"total_questions"`
	Question         QuestionView   `json:"question"`
	SelectedOption   *int           `json:"selected_option"`
	SecondsRemaining int            `json:"seconds_remaining"`
	ElapsedSeconds   int            `json:"elapsed_seconds"`
	AnsweredCount    int            `json:"answered_count"`
	Abandoned        bool           `json:"abandoned"`
	Result           *AttemptResult `json:"result,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// Terminal reports whether the session can no longer change.
func (s Snapshot) Terminal() bool {
	return s.Phase == PhaseComplete
}

// StartSessionRequest is the payload for starting a quiz attempt.
type StartSessionRequest struct {
	QuizID string `json:"quiz_id" binding:"required,min=1,max=128"`
}

// SelectOptionRequest is the payload for choosing an option on the current question.
type SelectOptionRequest struct {
	Option *int `json:"option" binding:"required,min=0"`
}
