package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/middleware"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stemsi/quizrunner/internal/response"
	"github.com/stemsi/quizrunner/internal/service"
	"github.com/stemsi/quizrunner/internal/validator"
)

// ActionResult is returned by every session action. A rejected action is not an error.
type ActionResult struct {
	Applied bool           `json:"applied"`
	Session model.Snapshot `json:"session"`
}

// QuizSessionHandler handles candidate-facing quiz session endpoints.
type QuizSessionHandler struct {
	sessions *service.QuizSessionService
	attempts *service.AttemptService
	log      zerolog.Logger
}

// NewQuizSessionHandler creates a new QuizSessionHandler.
func NewQuizSessionHandler(sessions *service.QuizSessionService, attempts *service.AttemptService, log zerolog.Logger) *QuizSessionHandler {
	return &QuizSessionHandler{
		sessions: sessions,
		attempts: attempts,
		log:      log.With().Str("component", "quiz_session_handler").Logger(),
	}
}

// Start godoc
// POST /api/v1/quiz-sessions
// Fetches the quiz with the caller's token and starts the countdown.
func (h *QuizSessionHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, response.ErrTokenRequired)
		return
	}

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, response.ErrValidation, fields)
		return
	}

	snap, err := h.sessions.Start(c.Request.Context(), claims.CandidateID(), middleware.GetToken(c), req.QuizID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, snap)
}

// Get godoc
// GET /api/v1/quiz-sessions/:session_id
func (h *QuizSessionHandler) Get(c *gin.Context) {
	id, candidateID, ok := h.target(c)
	if !ok {
		return
	}
	snap, err := h.sessions.Get(id, candidateID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, snap)
}

// Select godoc
// POST /api/v1/quiz-sessions/:session_id/select
// Records a pending choice; it is committed on navigation.
func (h *QuizSessionHandler) Select(c *gin.Context) {
	id, candidateID, ok := h.target(c)
	if !ok {
		return
	}

	var req model.SelectOptionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, response.ErrValidation, fields)
		return
	}

	h.respond(c)(h.sessions.Select(id, candidateID, *req.Option))
}

// Next godoc
// POST /api/v1/quiz-sessions/:session_id/next
func (h *QuizSessionHandler) Next(c *gin.Context) {
	if id, candidateID, ok := h.target(c); ok {
		h.respond(c)(h.sessions.Next(id, candidateID))
	}
}

// Previous godoc
// POST /api/v1/quiz-sessions/:session_id/previous
func (h *QuizSessionHandler) Previous(c *gin.Context) {
	if id, candidateID, ok := h.target(c); ok {
		h.respond(c)(h.sessions.Previous(id, candidateID))
	}
}

// Quit godoc
// POST /api/v1/quiz-sessions/:session_id/quit
func (h *QuizSessionHandler) Quit(c *gin.Context) {
	if id, candidateID, ok := h.target(c); ok {
		h.respond(c)(h.sessions.Quit(id, candidateID))
	}
}

// Retry godoc
// POST /api/v1/quiz-sessions/:session_id/retry
func (h *QuizSessionHandler) Retry(c *gin.Context) {
	if id, candidateID, ok := h.target(c); ok {
		h.respond(c)(h.sessions.Retry(id, candidateID))
	}
}

// Close godoc
// DELETE /api/v1/quiz-sessions/:session_id
// The candidate navigated away: an unfinished attempt is abandoned.
func (h *QuizSessionHandler) Close(c *gin.Context) {
	id, candidateID, ok := h.target(c)
	if !ok {
		return
	}
	if err := h.sessions.Close(id, candidateID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListAttempts godoc
// GET /api/v1/attempts?page=1&per_page=10
func (h *QuizSessionHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	outcomes, pagination, err := h.attempts.ListByCandidate(c.Request.Context(), claims.CandidateID(), page, perPage)
	if err != nil {
		h.log.Error().Err(err).Str("candidate_id", claims.CandidateID()).Msg("List attempts failed")
		response.Fail(c, response.ErrInternal)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, outcomes, pagination)
}

func (h *QuizSessionHandler) target(c *gin.Context) (uuid.UUID, string, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, response.ErrTokenRequired)
		return uuid.Nil, "", false
	}
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, response.ErrInvalidID)
		return uuid.Nil, "", false
	}
	return id, claims.CandidateID(), true
}

func (h *QuizSessionHandler) respond(c *gin.Context) func(model.Snapshot, bool, error) {
	return func(snap model.Snapshot, applied bool, err error) {
		if err != nil {
			h.fail(c, err)
			return
		}
		response.Success(c, http.StatusOK, ActionResult{Applied: applied, Session: snap})
	}
}

func (h *QuizSessionHandler) fail(c *gin.Context, err error) {
	code := errorCode(err)
	if code == response.ErrUpstream || code == response.ErrInternal {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Quiz session request failed")
	}
	response.Fail(c, code)
}

func errorCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return response.ErrSessionNotFound
	case errors.Is(err, service.ErrNotSessionOwner):
		return response.ErrNotSessionOwner
	case errors.Is(err, service.ErrQuizNotFound):
		return response.ErrQuizNotFound
	case errors.Is(err, service.ErrNoQuestions):
		return response.ErrNoQuestions
	case errors.Is(err, service.ErrQuizMalformed):
		return response.ErrQuizMalformed
	default:
		return response.ErrUpstream
	}
}
