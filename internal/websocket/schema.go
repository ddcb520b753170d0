package websocket

import "github.com/stemsi/quizrunner/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelect   Action = "select"
	ActionNext     Action = "next"
	ActionPrevious Action = "previous"
	ActionQuit     Action = "quit"
	ActionRetry    Action = "retry"
	ActionPing     Action = "ping"
)

// ActionRequest is one client frame. Option is only read for select.
type ActionRequest struct {
	Action Action `json:"action"`
	Option *int   `json:"option,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSnapshot Event = "snapshot"
	EventRejected Event = "rejected"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

// SnapshotEvent carries the session state after a change.
type SnapshotEvent struct {
	Event   Event          `json:"event"`
	Session model.Snapshot `json:"session"`
}

// RejectedEvent reports an action that was valid but not applicable in the current state.
type RejectedEvent struct {
	Event   Event  `json:"event"`
	Action  Action `json:"action"`
	Version uint64 `json:"version"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
