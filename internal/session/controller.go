package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/model"
)

// DefaultQuestionSeconds is the countdown budget of every question.
const DefaultQuestionSeconds = 30

const noSelection = -1

// Submitter performs the single authoritative scoring call for an attempt.
type Submitter interface {
	SubmitAttempt(ctx context.Context, quizID string, answers []model.AnswerEntry, elapsedSeconds int) (*model.AttemptResult, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithScheduler replaces the default one-second ticker.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.scheduler = s }
}

// WithQuestionSeconds overrides the per-question countdown budget.
func WithQuestionSeconds(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.questionSeconds = n
		}
	}
}

// WithSubmitTimeout bounds one submission call.
func WithSubmitTimeout(d time.Duration) Option {
	return func(c *Controller) { c.submitTimeout = d }
}

// WithListener registers a callback receiving a snapshot after every state change.
// It is called without the controller lock held, so it may call back into the controller.
func WithListener(fn func(model.Snapshot)) Option {
	return func(c *Controller) { c.listener = fn }
}

// WithID sets the session identifier reported in snapshots.
func WithID(id uuid.UUID) Option {
	return func(c *Controller) { c.id = id }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// Controller runs one timed quiz attempt.
//
// The mutex only guards field access between the ticker goroutine and user actions;
// at-most-one in-flight submission is enforced by the phase alone.
type Controller struct {
	id              uuid.UUID
	quiz            *model.Quiz
	submitter       Submitter
	scheduler       Scheduler
	listener        func(model.Snapshot)
	log             zerolog.Logger
	questionSeconds int
	submitTimeout   time.Duration

	mu          sync.Mutex
	phase       model.Phase
	index       int
	pending     int
	answers     map[string]int
	remaining   int
	elapsed     int
	abandoned   bool
	discarded   int
	result      *model.AttemptResult
	lastErr     error
	payload     []model.AnswerEntry
	submissions int
	version     uint64

	inflight sync.WaitGroup
}

// New starts an attempt on quiz. The countdown begins immediately.
func New(quiz *model.Quiz, submitter Submitter, opts ...Option) (*Controller, error) {
	if quiz == nil {
		return nil, ErrQuizNotFound
	}
	if len(quiz.Questions) == 0 {
		return nil, ErrNoQuestions
	}

	c := &Controller{
		id:              uuid.New(),
		quiz:            quiz,
		submitter:       submitter,
		log:             zerolog.Nop(),
		questionSeconds: DefaultQuestionSeconds,
		submitTimeout:   15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scheduler == nil {
		c.scheduler = NewTickerScheduler(time.Second)
	}

	c.phase = model.PhaseInProgress
	c.index = 0
	c.pending = noSelection
	c.answers = make(map[string]int, len(quiz.Questions))
	c.remaining = c.questionSeconds
	c.version = 1

	c.scheduler.Start(c.tick)
	return c, nil
}

// ID returns the session identifier.
func (c *Controller) ID() uuid.UUID { return c.id }

// Quiz returns the quiz definition driving this attempt.
func (c *Controller) Quiz() *model.Quiz { return c.quiz }

// SelectOption records a pending choice for the current question without committing it.
func (c *Controller) SelectOption(option int) bool {
	c.mu.Lock()
	if c.phase != model.PhaseInProgress || option < 0 || option >= len(c.currentLocked().Options) {
		c.mu.Unlock()
		return false
	}
	c.pending = option
	snap := c.changedLocked()
	c.mu.Unlock()

	c.notify(snap)
	return true
}

// GoNext commits the current answer and advances, or submits on the last question.
// It is a no-op when nothing is selected for the current question.
func (c *Controller) GoNext() bool {
	c.mu.Lock()
	if c.phase != model.PhaseInProgress || !c.hasAnswerLocked() {
		c.mu.Unlock()
		return false
	}
	c.advanceLocked()
	c.finishLocked()
	return true
}

// GoPrevious commits the current answer (if any) and moves back one question.
func (c *Controller) GoPrevious() bool {
	c.mu.Lock()
	if c.phase != model.PhaseInProgress || c.index == 0 {
		c.mu.Unlock()
		return false
	}
	c.commitLocked()
	c.moveLocked(c.index - 1)
	snap := c.changedLocked()
	c.mu.Unlock()

	c.notify(snap)
	return true
}

// Quit abandons the attempt without submitting. Answers are discarded.
func (c *Controller) Quit() bool {
	c.mu.Lock()
	if c.phase != model.PhaseInProgress {
		c.mu.Unlock()
		return false
	}
	c.abandonLocked()
	snap := c.changedLocked()
	c.mu.Unlock()

	c.log.Info().Str("quiz_id", c.quiz.ID).Msg("Attempt abandoned")
	c.notify(snap)
	return true
}

// Retry re-sends the frozen submission after a failure.
func (c *Controller) Retry() bool {
	c.mu.Lock()
	if c.phase != model.PhaseErrored {
		c.mu.Unlock()
		return false
	}
	c.beginSubmitLocked()
	c.finishLocked()
	return true
}

// Close stops the countdown for good. An attempt still in progress is abandoned
// exactly as Quit does; other phases are left as they are.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.phase != model.PhaseInProgress {
		c.scheduler.Stop()
		c.mu.Unlock()
		return
	}
	c.abandonLocked()
	snap := c.changedLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// Wait blocks until no submission is in flight.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Submissions returns how many scoring calls have been started.
func (c *Controller) Submissions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submissions
}

// AnsweredCount returns the number of committed answers. For an abandoned attempt
// it is the count held when the answers were discarded.
func (c *Controller) AnsweredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.abandoned {
		return c.discarded
	}
	return len(c.answers)
}

// Payload returns a copy of the frozen submission answers, nil before submission.
func (c *Controller) Payload() []model.AnswerEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payload == nil {
		return nil
	}
	return append([]model.AnswerEntry(nil), c.payload...)
}

func (c *Controller) tick() {
	c.mu.Lock()
	if c.phase != model.PhaseInProgress {
		c.mu.Unlock()
		return
	}
	c.remaining--
	c.elapsed++
	if c.remaining > 0 {
		snap := c.changedLocked()
		c.mu.Unlock()
		c.notify(snap)
		return
	}

	// Expiry advances whether or not an option was chosen.
	c.log.Debug().Str("quiz_id", c.quiz.ID).Int("index", c.index).Msg("Question time expired")
	c.advanceLocked()
	c.finishLocked()
}

// finishLocked publishes the change and, if the phase is now SUBMITTING, starts the
// scoring call. It releases the lock.
func (c *Controller) finishLocked() {
	submitting := c.phase == model.PhaseSubmitting
	var (
		payload []model.AnswerEntry
		elapsed int
	)
	if submitting {
		payload = append([]model.AnswerEntry(nil), c.payload...)
		elapsed = c.elapsed
	}
	snap := c.changedLocked()
	c.mu.Unlock()

	c.notify(snap)
	if submitting {
		go c.submit(payload, elapsed)
	}
}

func (c *Controller) advanceLocked() {
	c.commitLocked()
	if c.index == len(c.quiz.Questions)-1 {
		c.payload = c.buildPayloadLocked()
		c.beginSubmitLocked()
		return
	}
	c.moveLocked(c.index + 1)
}

func (c *Controller) beginSubmitLocked() {
	c.scheduler.Stop()
	c.phase = model.PhaseSubmitting
	c.lastErr = nil
	c.submissions++
	c.inflight.Add(1)
}

func (c *Controller) submit(payload []model.AnswerEntry, elapsed int) {
	defer c.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.submitTimeout)
	defer cancel()

	res, err := c.submitter.SubmitAttempt(ctx, c.quiz.ID, payload, elapsed)

	c.mu.Lock()
	if err != nil || res == nil {
		if err == nil {
			err = errEmptyResult
		}
		c.phase = model.PhaseErrored
		c.lastErr = err
	} else {
		c.phase = model.PhaseComplete
		c.result = res
	}
	attempt := c.submissions
	snap := c.changedLocked()
	c.mu.Unlock()

	if err != nil {
		c.log.Warn().Err(err).Str("quiz_id", c.quiz.ID).Int("attempt", attempt).Msg("Submission failed")
	} else {
		c.log.Info().
			Str("quiz_id", c.quiz.ID).
			Float64("score", res.Score).
			Int("answered", len(payload)).
			Int("elapsed_seconds", elapsed).
			Msg("Attempt scored")
	}
	c.notify(snap)
}

func (c *Controller) abandonLocked() {
	c.scheduler.Stop()
	c.phase = model.PhaseComplete
	c.abandoned = true
	c.discarded = len(c.answers)
	c.pending = noSelection
	c.answers = map[string]int{}
}

func (c *Controller) commitLocked() {
	if c.pending != noSelection {
		c.answers[c.currentLocked().ID] = c.pending
	}
}

func (c *Controller) moveLocked(index int) {
	c.index = index
	c.remaining = c.questionSeconds
	c.pending = noSelection
	if prev, ok := c.answers[c.currentLocked().ID]; ok {
		c.pending = prev
	}
}

func (c *Controller) hasAnswerLocked() bool {
	if c.pending != noSelection {
		return true
	}
	_, ok := c.answers[c.currentLocked().ID]
	return ok
}

// buildPayloadLocked lists answered questions in quiz order; unanswered ones are absent.
func (c *Controller) buildPayloadLocked() []model.AnswerEntry {
	entries := make([]model.AnswerEntry, 0, len(c.answers))
	for _, q := range c.quiz.Questions {
		if opt, ok := c.answers[q.ID]; ok {
			entries = append(entries, model.AnswerEntry{QuestionID: q.ID, SelectedOption: opt})
		}
	}
	return entries
}

func (c *Controller) currentLocked() *model.Question {
	return &c.quiz.Questions[c.index]
}

func (c *Controller) changedLocked() model.Snapshot {
	c.version++
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() model.Snapshot {
	snap := model.Snapshot{
		SessionID:        c.id,
		Version:          c.version,
		QuizID:           c.quiz.ID,
		QuizTitle:        c.quiz.Title,
		QuizType:         c.quiz.Type,
		Phase:            c.phase,
		CurrentIndex:     c.index,
		TotalQuestions:   len(c.quiz.Questions),
		Question:         c.currentLocked().View(),
		SecondsRemaining: c.remaining,
		ElapsedSeconds:   c.elapsed,
		AnsweredCount:    len(c.answers),
		Abandoned:        c.abandoned,
	}
	if c.pending != noSelection {
		sel := c.pending
		snap.SelectedOption = &sel
	}
	if c.result != nil {
		res := *c.result
		snap.Result = &res
	}
	if c.lastErr != nil {
		snap.Error = c.lastErr.Error()
	}
	return snap
}

func (c *Controller) notify(snap model.Snapshot) {
	if c.listener != nil {
		c.listener(snap)
	}
}
