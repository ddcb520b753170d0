package response

import "net/http"

// ErrCode identifies an API error independently of its message.
type ErrCode string

const (
	// Authentication
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// Authorization
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrNotSessionOwner ErrCode = "NOT_SESSION_OWNER"

	// Validation
	ErrValidation ErrCode = "VALIDATION_ERROR"
	ErrInvalidID  ErrCode = "INVALID_ID"

	// Resources
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrSessionNotFound ErrCode = "SESSION_NOT_FOUND"

	// Quiz
	ErrQuizNotFound  ErrCode = "QUIZ_NOT_FOUND"
	ErrNoQuestions   ErrCode = "NO_QUESTIONS"
	ErrQuizMalformed ErrCode = "QUIZ_MALFORMED"
	ErrUpstream      ErrCode = "UPSTREAM_ERROR"

	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"
	ErrInternal          ErrCode = "INTERNAL_ERROR"
)

var messages = map[ErrCode]string{
	ErrTokenRequired:     "Authentication token is required.",
	ErrTokenInvalid:      "Authentication token is invalid.",
	ErrTokenExpired:      "Authentication token has expired.",
	ErrForbidden:         "You are not allowed to access this resource.",
	ErrNotSessionOwner:   "This quiz session belongs to another candidate.",
	ErrValidation:        "Validation failed. Please check your input.",
	ErrInvalidID:         "Invalid ID format.",
	ErrNotFound:          "Resource not found.",
	ErrSessionNotFound:   "Quiz session not found or already closed.",
	ErrQuizNotFound:      "Quiz not found.",
	ErrNoQuestions:       "This quiz has no questions.",
	ErrQuizMalformed:     "The quiz definition could not be used.",
	ErrUpstream:          "The quiz platform is unavailable. Please try again.",
	ErrRateLimitExceeded: "Too many requests. Please try again later.",
	ErrInternal:          "Internal server error.",
}

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return "An unexpected error occurred."
}

// StatusOf returns the HTTP status the code is normally sent with.
func StatusOf(code ErrCode) int {
	switch code {
	case ErrTokenRequired, ErrTokenInvalid, ErrTokenExpired:
		return http.StatusUnauthorized
	case ErrForbidden, ErrNotSessionOwner:
		return http.StatusForbidden
	case ErrValidation, ErrInvalidID:
		return http.StatusBadRequest
	case ErrNotFound, ErrSessionNotFound, ErrQuizNotFound:
		return http.StatusNotFound
	case ErrNoQuestions, ErrQuizMalformed:
		return http.StatusUnprocessableEntity
	case ErrUpstream:
		return http.StatusBadGateway
	case ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
