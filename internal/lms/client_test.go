package lms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, zerolog.Nop())
}

func TestFetchQuiz(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bare body", body: `{"id":"qz1","title":"Go","type":"exam","questions":[{"id":"a","question":"?","options":["x","y"],"correctAnswer":1,"points":2}]}`},
		{name: "enveloped body", body: `{"data":{"id":"qz1","title":"Go","type":"exam","questions":[{"id":"a","question":"?","options":["x","y"],"correctAnswer":1,"points":2}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet || r.URL.Path != "/quizzes/qz1" {
					t.Errorf("request = %s %s", r.Method, r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer tok" {
					t.Errorf("Authorization = %q", got)
				}
				w.Write([]byte(tt.body))
			})

			quiz, err := c.FetchQuiz(context.Background(), "tok", "qz1")
			if err != nil {
				t.Fatalf("FetchQuiz() error = %v", err)
			}
			if quiz.ID != "qz1" || quiz.Type != model.QuizTypeExam || len(quiz.Questions) != 1 {
				t.Fatalf("FetchQuiz() = %+v", quiz)
			}
			q := quiz.Questions[0]
			if q.Prompt != "?" || q.Points != 2 || q.CorrectOption == nil || *q.CorrectOption != 1 {
				t.Errorf("question = %+v", q)
			}
		})
	}
}

func TestFetchQuizErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantNF  bool
		wantAPI bool
	}{
		{name: "not found", status: http.StatusNotFound, wantNF: true},
		{name: "server error", status: http.StatusBadGateway, wantAPI: true},
		{name: "forbidden", status: http.StatusForbidden, wantAPI: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			_, err := c.FetchQuiz(context.Background(), "", "missing")
			if got := errors.Is(err, ErrQuizNotFound); got != tt.wantNF {
				t.Errorf("errors.Is(ErrQuizNotFound) = %v, want %v (err %v)", got, tt.wantNF, err)
			}
			var apiErr *APIError
			if got := errors.As(err, &apiErr); got != tt.wantAPI {
				t.Errorf("errors.As(*APIError) = %v, want %v", got, tt.wantAPI)
			} else if got && apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
		})
	}
}

func TestSubmitAttempt(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/quizzes/qz1/attempts" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var body model.SubmitAttemptRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		want := model.SubmitAttemptRequest{
			Answers:        []model.AnswerEntry{{QuestionID: "Q1", SelectedOption: 1}, {QuestionID: "Q3", SelectedOption: 0}},
			ElapsedSeconds: 42,
		}
		if !reflect.DeepEqual(body, want) {
			t.Errorf("body = %+v, want %+v", body, want)
		}
		w.Write([]byte(`{"score":1,"percentage":33.3,"correctAnswers":1,"totalQuestions":3}`))
	})

	res, err := c.SubmitAttempt(context.Background(), "tok", "qz1",
		[]model.AnswerEntry{{QuestionID: "Q1", SelectedOption: 1}, {QuestionID: "Q3", SelectedOption: 0}}, 42)
	if err != nil {
		t.Fatalf("SubmitAttempt() error = %v", err)
	}
	want := model.AttemptResult{Score: 1, Percentage: 33.3, CorrectAnswers: 1, TotalQuestions: 3}
	if *res != want {
		t.Errorf("SubmitAttempt() = %+v, want %+v", *res, want)
	}
}

func TestSubmitAttemptSendsEmptyList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		json.NewDecoder(r.Body).Decode(&raw)
		if string(raw["answers"]) != "[]" {
			t.Errorf("answers = %s, want []", raw["answers"])
		}
		w.Write([]byte(`{"data":{"score":0,"percentage":0,"correctAnswers":0,"totalQuestions":2}}`))
	})

	res, err := c.SubmitAttempt(context.Background(), "tok", "qz1", nil, 60)
	if err != nil {
		t.Fatalf("SubmitAttempt() error = %v", err)
	}
	if res.TotalQuestions != 2 {
		t.Errorf("TotalQuestions = %d, want 2", res.TotalQuestions)
	}
}
