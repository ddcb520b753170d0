package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/model"
)

// ErrQuizNotFound is returned when the platform has no quiz with the requested id.
var ErrQuizNotFound = errors.New("lms: quiz not found")

// APIError is a non-2xx answer from the platform.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lms: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client calls the education platform on behalf of a candidate.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a Client for the platform API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "lms_client").Logger(),
	}
}

// envelope tolerates platforms that wrap payloads in {"data": ...}.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// FetchQuiz loads a quiz definition.
func (c *Client) FetchQuiz(ctx context.Context, token, quizID string) (*model.Quiz, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quizzes/"+url.PathEscape(quizID), nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	var quiz model.Quiz
	if err := c.do(req, token, "fetch quiz", &quiz); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrQuizNotFound
		}
		return nil, err
	}
	return &quiz, nil
}

// SubmitAttempt sends the final answers for authoritative scoring.
func (c *Client) SubmitAttempt(ctx context.Context, token, quizID string, answers []model.AnswerEntry, elapsedSeconds int) (*model.AttemptResult, error) {
	if answers == nil {
		answers = []model.AnswerEntry{}
	}
	body, err := json.Marshal(model.SubmitAttemptRequest{Answers: answers, ElapsedSeconds: elapsedSeconds})
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/quizzes/"+url.PathEscape(quizID)+"/attempts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result model.AttemptResult
	if err := c.do(req, token, "submit attempt", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(req *http.Request, token, op string, dst interface{}) error {
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("lms: %s: %w", op, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("lms: %s: read body: %w", op, err)
	}

	c.log.Debug().
		Str("op", op).
		Str("url", req.URL.Path).
		Int("status", res.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Platform call")

	if res.StatusCode/100 != 2 {
		return &APIError{Op: op, StatusCode: res.StatusCode, Body: truncate(string(raw), 256)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		raw = env.Data
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("lms: %s: decode: %w", op, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
