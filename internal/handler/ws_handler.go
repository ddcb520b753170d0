package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/middleware"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stemsi/quizrunner/internal/response"
	"github.com/stemsi/quizrunner/internal/service"
	ws "github.com/stemsi/quizrunner/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams quiz session snapshots and accepts actions over one socket.
type WSHandler struct {
	sessions *service.QuizSessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.QuizSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/quiz-sessions/:session_id/stream?token=...
// Pushes a snapshot on every change; closes after the terminal snapshot.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, response.ErrTokenRequired)
		return
	}
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, response.ErrInvalidID)
		return
	}
	candidateID := claims.CandidateID()

	snaps, cancel, err := h.sessions.Subscribe(id, candidateID)
	if err != nil {
		response.Fail(c, errorCode(err))
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("candidate_id", candidateID).
		Str("session_id", id.String()).
		Logger()
	wsLog.Info().Msg("Candidate connected")

	replies := make(chan any, 8)
	done := make(chan struct{})
	readerDone := make(chan struct{})
	defer close(done)

	ws.KeepAlive(conn)
	go func() {
		defer close(readerDone)
		h.readActions(conn, wsLog, id, candidateID, replies, done)
	}()

	h.writeLoop(conn, wsLog, snaps, replies, readerDone)
}

// writeLoop is the connection's only writer.
func (h *WSHandler) writeLoop(conn *websocket.Conn, wsLog zerolog.Logger, snaps <-chan model.Snapshot, replies <-chan any, readerDone <-chan struct{}) {
	ping := time.NewTicker(ws.PingPeriod)
	defer ping.Stop()

	var lastSent uint64
	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				ws.WriteClose(conn, "session closed")
				return
			}
			if snap.Version <= lastSent {
				continue
			}
			lastSent = snap.Version
			if err := ws.WriteTyped(conn, ws.SnapshotEvent{Event: ws.EventSnapshot, Session: snap}); err != nil {
				wsLog.Debug().Err(err).Msg("Write failed")
				return
			}
			if snap.Terminal() {
				ws.WriteClose(conn, "attempt finished")
				wsLog.Info().Bool("abandoned", snap.Abandoned).Msg("Attempt finished, closing stream")
				return
			}
		case msg := <-replies:
			if err := ws.WriteTyped(conn, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := ws.WritePing(conn); err != nil {
				return
			}
		case <-readerDone:
			return
		}
	}
}

func (h *WSHandler) readActions(conn *websocket.Conn, wsLog zerolog.Logger, id uuid.UUID, candidateID string, replies chan<- any, done <-chan struct{}) {
	reply := func(v any) bool {
		select {
		case replies <- v:
			return true
		case <-done:
			return false
		}
	}

	for {
		var req ws.ActionRequest
		if err := ws.ReadJSON(conn, &req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var (
			snap    model.Snapshot
			applied bool
			err     error
		)
		switch req.Action {
		case ws.ActionPing:
			if !reply(ws.PongResponse{Event: ws.EventPong}) {
				return
			}
			continue
		case ws.ActionSelect:
			if req.Option == nil {
				if !reply(ws.ErrorResponse{Event: ws.EventError, Error: "option is required"}) {
					return
				}
				continue
			}
			snap, applied, err = h.sessions.Select(id, candidateID, *req.Option)
		case ws.ActionNext:
			snap, applied, err = h.sessions.Next(id, candidateID)
		case ws.ActionPrevious:
			snap, applied, err = h.sessions.Previous(id, candidateID)
		case ws.ActionQuit:
			snap, applied, err = h.sessions.Quit(id, candidateID)
		case ws.ActionRetry:
			snap, applied, err = h.sessions.Retry(id, candidateID)
		default:
			wsLog.Warn().Str("action", string(req.Action)).Msg("Unknown action")
			if !reply(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(req.Action)}) {
				return
			}
			continue
		}

		switch {
		case err != nil:
			if !reply(ws.ErrorResponse{Event: ws.EventError, Error: string(errorCode(err))}) {
				return
			}
		case !applied:
			if !reply(ws.RejectedEvent{Event: ws.EventRejected, Action: req.Action, Version: snap.Version}) {
				return
			}
		}
		// Applied actions are answered by the snapshot broadcast.
	}
}
