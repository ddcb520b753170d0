package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/handler"
	"github.com/stemsi/quizrunner/internal/lms"
	"github.com/stemsi/quizrunner/internal/middleware"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stemsi/quizrunner/internal/service"
	"github.com/stemsi/quizrunner/internal/session"
	"github.com/stemsi/quizrunner/internal/validator"
)

const platformQuiz = `{"data":{"id":"qz-1","title":"Fractions","type":"quiz","questions":[
	{"id":"Q1","question":"1/2 + 1/2?","options":["1","2"],"correctAnswer":0,"points":1},
	{"id":"Q2","question":"1/4 * 4?","options":["1","4","16"],"correctAnswer":0,"points":1}
]}}`

type platform struct {
	mu          sync.Mutex
	submissions []model.SubmitAttemptRequest
	fail        bool
}

func (p *platform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/quizzes/qz-1":
		w.Write([]byte(platformQuiz))
	case r.Method == http.MethodPost && r.URL.Path == "/quizzes/qz-1/attempts":
		var req model.SubmitAttemptRequest
		json.NewDecoder(r.Body).Decode(&req)
		p.mu.Lock()
		p.submissions = append(p.submissions, req)
		fail := p.fail
		p.mu.Unlock()
		if fail {
			http.Error(w, "scoring down", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(model.AttemptResult{Score: 1, Percentage: 50, CorrectAnswers: 1, TotalQuestions: 2})
	default:
		http.NotFound(w, r)
	}
}

type staticLister struct{}

func (staticLister) ListByCandidate(_ context.Context, candidateID string, _, _ int) ([]model.AttemptOutcome, int, error) {
	score := 1.0
	return []model.AttemptOutcome{{QuizID: "qz-1", CandidateID: candidateID, Outcome: model.OutcomeScored, Score: &score}}, 1, nil
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, model.AttemptOutcome) error { return nil }

type env struct {
	server   *httptest.Server
	auth     *service.AuthService
	platform *platform
	sessions *service.QuizSessionService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	validator.Setup()

	p := &platform{}
	upstream := httptest.NewServer(p)
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		JWTSecret:        "router-test",
		QuestionSeconds:  30,
		SubmitTimeout:    time.Second,
		SessionRetention: time.Minute,
		SessionIdle:      time.Minute,
	}
	log := zerolog.Nop()
	auth := service.NewAuthService(cfg)
	sessions := service.NewQuizSessionService(lms.NewClient(upstream.URL, time.Second, log), nil, noopRecorder{}, cfg, log)
	sessions.SetSchedulerFactory(func() session.Scheduler { return session.NewManualScheduler() })
	t.Cleanup(sessions.Shutdown)

	handlers := &Handlers{
		QuizSession: handler.NewQuizSessionHandler(sessions, service.NewAttemptService(staticLister{}), log),
		WS:          handler.NewWSHandler(sessions, log, nil),
		System:      handler.NewSystemHandler(nil, nil, sessions, log),
	}
	limiter := middleware.NewRateLimiter(3, time.Hour, middleware.ByCandidate)
	srv := httptest.NewServer(SetupRouter(auth, handlers, cfg, limiter, log))
	t.Cleanup(srv.Close)

	return &env{server: srv, auth: auth, platform: p, sessions: sessions}
}

func (e *env) token(t *testing.T, candidate string) string {
	t.Helper()
	tok, err := e.auth.IssueToken(candidate, service.RoleCandidate, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return tok
}

type envelope[T any] struct {
	Data  T `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func call[T any](t *testing.T, e *env, method, path, token string, body any) (int, envelope[T]) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, e.server.URL+path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()

	var out envelope[T]
	if res.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return res.StatusCode, out
}

func TestRESTAttemptFlow(t *testing.T) {
	e := newEnv(t)
	tok := e.token(t, "cand-1")

	status, started := call[model.Snapshot](t, e, http.MethodPost, "/api/v1/quiz-sessions", tok, map[string]string{"quiz_id": "qz-1"})
	if status != http.StatusCreated {
		t.Fatalf("start status = %d, error = %+v", status, started.Error)
	}
	snap := started.Data
	if snap.TotalQuestions != 2 || snap.SecondsRemaining != 30 || snap.Question.Prompt != "1/2 + 1/2?" {
		t.Fatalf("started = %+v", snap)
	}
	base := "/api/v1/quiz-sessions/" + snap.SessionID.String()

	_, res := call[handler.ActionResult](t, e, http.MethodPost, base+"/next", tok, nil)
	if res.Data.Applied {
		t.Fatal("next without a selection should be rejected")
	}

	steps := []struct {
		path string
		body any
	}{
		{base + "/select", map[string]int{"option": 0}},
		{base + "/next", nil},
		{base + "/select", map[string]int{"option": 2}},
		{base + "/next", nil},
	}
	for _, step := range steps {
		status, res := call[handler.ActionResult](t, e, http.MethodPost, step.path, tok, step.body)
		if status != http.StatusOK || !res.Data.Applied {
			t.Fatalf("POST %s = %d %+v", step.path, status, res)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, got := call[model.Snapshot](t, e, http.MethodGet, base, tok, nil)
		if got.Data.Phase == model.PhaseComplete {
			if got.Data.Result == nil || got.Data.Result.Score != 1 {
				t.Fatalf("final = %+v", got.Data)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("phase = %s, want COMPLETE", got.Data.Phase)
		}
		time.Sleep(5 * time.Millisecond)
	}

	e.platform.mu.Lock()
	subs := e.platform.submissions
	e.platform.mu.Unlock()
	want := []model.AnswerEntry{{QuestionID: "Q1", SelectedOption: 0}, {QuestionID: "Q2", SelectedOption: 2}}
	if len(subs) != 1 || len(subs[0].Answers) != 2 || subs[0].Answers[0] != want[0] || subs[0].Answers[1] != want[1] {
		t.Fatalf("submissions = %+v", subs)
	}

	if status, _ := call[any](t, e, http.MethodDelete, base, tok, nil); status != http.StatusNoContent {
		t.Errorf("close status = %d, want 204", status)
	}
	if status, res := call[any](t, e, http.MethodGet, base, tok, nil); status != http.StatusNotFound || res.Error.Code != "SESSION_NOT_FOUND" {
		t.Errorf("get after close = %d %+v", status, res.Error)
	}
}

func TestRESTErrors(t *testing.T) {
	e := newEnv(t)
	owner := e.token(t, "cand-1")
	other := e.token(t, "cand-2")

	_, started := call[model.Snapshot](t, e, http.MethodPost, "/api/v1/quiz-sessions", owner, map[string]string{"quiz_id": "qz-1"})
	base := "/api/v1/quiz-sessions/" + started.Data.SessionID.String()

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"no token", http.MethodGet, base, "", nil, http.StatusUnauthorized, "TOKEN_REQUIRED"},
		{"other candidate", http.MethodGet, base, other, nil, http.StatusForbidden, "NOT_SESSION_OWNER"},
		{"bad id", http.MethodGet, "/api/v1/quiz-sessions/xyz", owner, nil, http.StatusBadRequest, "INVALID_ID"},
		{"unknown quiz", http.MethodPost, "/api/v1/quiz-sessions", owner, map[string]string{"quiz_id": "nope"}, http.StatusNotFound, "QUIZ_NOT_FOUND"},
		{"missing quiz id", http.MethodPost, "/api/v1/quiz-sessions", owner, map[string]string{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing option", http.MethodPost, base + "/select", owner, map[string]string{}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, res := call[any](t, e, tt.method, tt.path, tt.token, tt.body)
			if status != tt.wantStatus || res.Error == nil || res.Error.Code != tt.wantCode {
				t.Errorf("got %d %+v, want %d %s", status, res.Error, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestStartRateLimitedPerCandidate(t *testing.T) {
	e := newEnv(t)
	tok := e.token(t, "cand-busy")
	body := map[string]string{"quiz_id": "qz-1"}

	for i := range 3 {
		if status, _ := call[any](t, e, http.MethodPost, "/api/v1/quiz-sessions", tok, body); status != http.StatusCreated {
			t.Fatalf("start %d status = %d", i, status)
		}
	}
	if status, _ := call[any](t, e, http.MethodPost, "/api/v1/quiz-sessions", tok, body); status != http.StatusTooManyRequests {
		t.Errorf("fourth start status = %d, want 429", status)
	}
	if status, _ := call[any](t, e, http.MethodPost, "/api/v1/quiz-sessions", e.token(t, "cand-idle"), body); status != http.StatusCreated {
		t.Errorf("other candidate status = %d, want 201", status)
	}
}

func TestAttemptsAndHealth(t *testing.T) {
	e := newEnv(t)

	status, res := call[[]model.AttemptOutcome](t, e, http.MethodGet, "/api/v1/attempts?page=1&per_page=5", e.token(t, "cand-1"), nil)
	if status != http.StatusOK || len(res.Data) != 1 || res.Data[0].CandidateID != "cand-1" {
		t.Fatalf("attempts = %d %+v", status, res)
	}

	status, health := call[map[string]any](t, e, http.MethodGet, "/health", "", nil)
	if status != http.StatusOK || health.Data["status"] != "ok" {
		t.Fatalf("health = %d %+v", status, health)
	}
}

type wsFrame struct {
	Event   string          `json:"event"`
	Session *model.Snapshot `json:"session"`
	Action  string          `json:"action"`
	Error   string          `json:"error"`
}

func TestWebSocketStream(t *testing.T) {
	e := newEnv(t)
	tok := e.token(t, "cand-ws")

	_, started := call[model.Snapshot](t, e, http.MethodPost, "/api/v1/quiz-sessions", tok, map[string]string{"quiz_id": "qz-1"})
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") +
		"/ws/v1/quiz-sessions/" + started.Data.SessionID.String() + "/stream?token=" + tok

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	read := func() wsFrame {
		t.Helper()
		var f wsFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		return f
	}
	send := func(v any) {
		t.Helper()
		if err := conn.WriteJSON(v); err != nil {
			t.Fatalf("WriteJSON() error = %v", err)
		}
	}

	if f := read(); f.Event != "snapshot" || f.Session.Phase != model.PhaseInProgress {
		t.Fatalf("first frame = %+v", f)
	}

	send(map[string]any{"action": "ping"})
	if f := read(); f.Event != "pong" {
		t.Fatalf("ping reply = %+v", f)
	}

	send(map[string]any{"action": "previous"})
	if f := read(); f.Event != "rejected" || f.Action != "previous" {
		t.Fatalf("previous at first question = %+v", f)
	}

	send(map[string]any{"action": "select", "option": 1})
	f := read()
	if f.Event != "snapshot" || f.Session.SelectedOption == nil || *f.Session.SelectedOption != 1 {
		t.Fatalf("select frame = %+v", f)
	}

	send(map[string]any{"action": "quit"})
	f = read()
	if f.Session == nil || !f.Session.Terminal() || !f.Session.Abandoned {
		t.Fatalf("quit frame = %+v", f)
	}

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
		t.Fatalf("after terminal frame err = %v, want normal close", err)
	}
}

func TestWebSocketRejectsOtherCandidate(t *testing.T) {
	e := newEnv(t)
	_, started := call[model.Snapshot](t, e, http.MethodPost, "/api/v1/quiz-sessions", e.token(t, "cand-1"), map[string]string{"quiz_id": "qz-1"})

	url := "ws" + strings.TrimPrefix(e.server.URL, "http") +
		"/ws/v1/quiz-sessions/" + started.Data.SessionID.String() + "/stream?token=" + e.token(t, "cand-2")
	_, res, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Dial() should fail for another candidate's session")
	}
	if res == nil || res.StatusCode != http.StatusForbidden {
		t.Fatalf("handshake response = %+v", res)
	}
}
