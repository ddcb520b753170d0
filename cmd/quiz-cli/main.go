// Command quiz-cli plays one timed quiz attempt in the terminal against the platform API.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/lms"
	"github.com/stemsi/quizrunner/internal/logger"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stemsi/quizrunner/internal/session"
	"github.com/stemsi/quizrunner/internal/validator"
	"golang.org/x/term"
)

type tokenSubmitter struct {
	client *lms.Client
	token  string
}

func (t tokenSubmitter) SubmitAttempt(ctx context.Context, quizID string, answers []model.AnswerEntry, elapsed int) (*model.AttemptResult, error) {
	return t.client.SubmitAttempt(ctx, t.token, quizID, answers, elapsed)
}

func main() {
	cfg := config.Load()

	var (
		quizID  string
		baseURL string
		logPath string
	)
	flag.StringVar(&quizID, "quiz", "", "Quiz ID to attempt")
	flag.StringVar(&baseURL, "lms", cfg.LMSBaseURL, "Platform API base URL")
	flag.StringVar(&logPath, "log", "", "Write logs to this file (default: discard)")
	flag.Parse()

	if quizID == "" {
		fmt.Fprintln(os.Stderr, "usage: quiz-cli -quiz <id> [-lms url] [-log file]")
		os.Exit(2)
	}

	var logOut io.Writer = io.Discard
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open log:", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	log := logger.Component(logger.New(logOut, cfg.LogLevel, "json"), "quiz_cli")

	if err := run(log, cfg, strings.TrimRight(baseURL, "/"), quizID); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(log zerolog.Logger, cfg *config.Config, baseURL, quizID string) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("stdin is not a terminal")
	}

	token, err := readToken(fd)
	if err != nil {
		return err
	}

	client := lms.NewClient(baseURL, cfg.LMSTimeout, log)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.LMSTimeout)
	quiz, err := client.FetchQuiz(ctx, token, quizID)
	cancel()
	if err != nil {
		return fmt.Errorf("load quiz: %w", err)
	}
	quiz.NormalizeIDs()
	if err := validator.Struct(quiz); err != nil {
		return fmt.Errorf("quiz definition is malformed: %v", err)
	}

	wake := make(chan struct{}, 1)
	ctrl, err := session.New(quiz, tokenSubmitter{client: client, token: token},
		session.WithQuestionSeconds(cfg.QuestionSeconds),
		session.WithSubmitTimeout(cfg.SubmitTimeout),
		session.WithLogger(log),
		session.WithListener(func(model.Snapshot) {
			select {
			case wake <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	keys := make(chan byte)
	go readKeys(os.Stdin, keys)

	out := os.Stdout
	p := &player{ctrl: ctrl}
	render(out, ctrl.Snapshot(), p.confirming)

	for {
		select {
		case <-wake:
		case key, ok := <-keys:
			if !ok || p.handleKey(key) {
				ctrl.Close()
				render(out, ctrl.Snapshot(), false)
				return nil
			}
		}

		snap := ctrl.Snapshot()
		render(out, snap, p.confirming)
		if snap.Terminal() {
			ctrl.Wait()
			return nil
		}
	}
}

func readToken(fd int) (string, error) {
	if tok := strings.TrimSpace(os.Getenv("QUIZ_TOKEN")); tok != "" {
		return tok, nil
	}
	fmt.Fprint(os.Stderr, "Access token: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	tok := strings.TrimSpace(string(raw))
	if tok == "" {
		return "", fmt.Errorf("an access token is required")
	}
	return tok, nil
}

func readKeys(r io.Reader, keys chan<- byte) {
	defer close(keys)
	buf := make([]byte, 1)
	for {
		if _, err := r.Read(buf); err != nil {
			return
		}
		keys <- buf[0]
	}
}

// actions is the part of the controller the key map drives.
type actions interface {
	SelectOption(option int) bool
	GoNext() bool
	GoPrevious() bool
	Quit() bool
	Retry() bool
}

type player struct {
	ctrl       actions
	confirming bool
}

const ctrlC = 0x03

// handleKey applies one key press. It returns true when the player should exit.
func (p *player) handleKey(key byte) bool {
	if key == ctrlC {
		return true
	}
	if p.confirming {
		p.confirming = false
		if key == 'y' || key == 'Y' {
			p.ctrl.Quit()
		}
		return false
	}

	switch {
	case key >= '1' && key <= '9':
		p.ctrl.SelectOption(int(key - '1'))
	case key == 'n' || key == '\r':
		p.ctrl.GoNext()
	case key == 'p':
		p.ctrl.GoPrevious()
	case key == 'q':
		p.confirming = true
	case key == 'r':
		p.ctrl.Retry()
	}
	return false
}

// render draws the full screen. Raw mode needs explicit carriage returns.
func render(w io.Writer, snap model.Snapshot, confirming bool) {
	var b strings.Builder
	b.WriteString("\033[H\033[2J")
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteString("\r\n")
	}

	line("%s", snap.QuizTitle)
	line("")

	switch snap.Phase {
	case model.PhaseInProgress:
		line("Question %d of %d    %2ds left    answered %d", snap.CurrentIndex+1, snap.TotalQuestions, snap.SecondsRemaining, snap.AnsweredCount)
		line("")
		line("%s", snap.Question.Prompt)
		line("")
		for i, opt := range snap.Question.Options {
			marker := " "
			if snap.SelectedOption != nil && *snap.SelectedOption == i {
				marker = "*"
			}
			line(" %s %d) %s", marker, i+1, opt)
		}
		line("")
		if confirming {
			line("Quit and discard your answers? (y/N)")
		} else {
			line("[1-9] select  [n] next  [p] previous  [q] quit")
		}
	case model.PhaseSubmitting:
		line("Submitting your answers...")
	case model.PhaseErrored:
		line("Submission failed: %s", snap.Error)
		line("")
		line("[r] retry  [ctrl+c] leave")
	case model.PhaseComplete:
		switch {
		case snap.Abandoned:
			line("Attempt abandoned. Nothing was submitted.")
		case snap.Result != nil:
			r := snap.Result
			line("Score %.1f  (%.0f%%)", r.Score, r.Percentage)
			line("%d of %d correct", r.CorrectAnswers, r.TotalQuestions)
		}
	}

	io.WriteString(w, b.String())
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
