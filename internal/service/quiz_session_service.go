package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/lms"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stemsi/quizrunner/internal/session"
	"github.com/stemsi/quizrunner/internal/validator"
)

// Domain errors.
var (
	ErrSessionNotFound = errors.New("quiz session not found")
	ErrNotSessionOwner = errors.New("quiz session belongs to another candidate")
	ErrQuizNotFound    = errors.New("quiz not found")
	ErrNoQuestions     = errors.New("quiz has no questions")
	ErrQuizMalformed   = errors.New("quiz definition is malformed")
)

const subscriberBuffer = 16

// QuizAPI is the platform's quiz and scoring API, called with the candidate's token.
type QuizAPI interface {
	FetchQuiz(ctx context.Context, token, quizID string) (*model.Quiz, error)
	SubmitAttempt(ctx context.Context, token, quizID string, answers []model.AnswerEntry, elapsedSeconds int) (*model.AttemptResult, error)
}

// QuizCache caches quiz definitions per candidate. Get returns nil, nil on a miss.
type QuizCache interface {
	Get(ctx context.Context, candidateID, quizID string) (*model.Quiz, error)
	Set(ctx context.Context, candidateID string, quiz *model.Quiz) error
}

// OutcomeRecorder receives one audit record per finished attempt.
type OutcomeRecorder interface {
	Record(ctx context.Context, outcome model.AttemptOutcome) error
}

// tokenSubmitter binds the candidate's token to the scoring call.
type tokenSubmitter struct {
	api   QuizAPI
	token string
}

func (t tokenSubmitter) SubmitAttempt(ctx context.Context, quizID string, answers []model.AnswerEntry, elapsedSeconds int) (*model.AttemptResult, error) {
	return t.api.SubmitAttempt(ctx, t.token, quizID, answers, elapsedSeconds)
}

// liveSession is one registered attempt and its stream subscribers.
type liveSession struct {
	id          uuid.UUID
	candidateID string
	quizID      string

	mu           sync.Mutex
	ctrl         *session.Controller
	subs         map[int]chan model.Snapshot
	nextSub      int
	lastVersion  uint64
	recorded     bool
	lastActivity time.Time
	terminalAt   time.Time
}

// QuizSessionService owns the live quiz sessions of this process.
type QuizSessionService struct {
	api      QuizAPI
	cache    QuizCache
	recorder OutcomeRecorder
	log      zerolog.Logger

	questionSeconds int
	submitTimeout   time.Duration
	retention       time.Duration
	idleTimeout     time.Duration
	newScheduler    func() session.Scheduler
	now             func() time.Time

	mu       sync.RWMutex
	sessions map[uuid.UUID]*liveSession
	records  sync.WaitGroup
}

// NewQuizSessionService creates a new QuizSessionService. cache may be nil.
func NewQuizSessionService(api QuizAPI, cache QuizCache, recorder OutcomeRecorder, cfg *config.Config, log zerolog.Logger) *QuizSessionService {
	return &QuizSessionService{
		api:             api,
		cache:           cache,
		recorder:        recorder,
		log:             log.With().Str("component", "quiz_session_service").Logger(),
		questionSeconds: cfg.QuestionSeconds,
		submitTimeout:   cfg.SubmitTimeout,
		retention:       cfg.SessionRetention,
		idleTimeout:     cfg.SessionIdle,
		newScheduler:    func() session.Scheduler { return session.NewTickerScheduler(time.Second) },
		now:             time.Now,
		sessions:        make(map[uuid.UUID]*liveSession),
	}
}

// SetSchedulerFactory replaces the per-session countdown scheduler.
func (s *QuizSessionService) SetSchedulerFactory(f func() session.Scheduler) {
	s.newScheduler = f
}

// Start fetches the quiz and begins a new attempt for the candidate.
func (s *QuizSessionService) Start(ctx context.Context, candidateID, token, quizID string) (model.Snapshot, error) {
	quiz, err := s.loadQuiz(ctx, candidateID, token, quizID)
	if err != nil {
		return model.Snapshot{}, err
	}

	live := &liveSession{
		id:           uuid.New(),
		candidateID:  candidateID,
		quizID:       quiz.ID,
		subs:         make(map[int]chan model.Snapshot),
		lastActivity: s.now(),
	}

	sessLog := s.log.With().
		Str("session_id", live.id.String()).
		Str("candidate_id", candidateID).
		Str("quiz_id", quiz.ID).
		Logger()

	ctrl, err := session.New(quiz, tokenSubmitter{api: s.api, token: token},
		session.WithID(live.id),
		session.WithScheduler(s.newScheduler()),
		session.WithQuestionSeconds(s.questionSeconds),
		session.WithSubmitTimeout(s.submitTimeout),
		session.WithLogger(sessLog),
		session.WithListener(func(snap model.Snapshot) { s.onChange(live, snap) }),
	)
	if err != nil {
		if errors.Is(err, session.ErrNoQuestions) {
			return model.Snapshot{}, ErrNoQuestions
		}
		return model.Snapshot{}, ErrQuizNotFound
	}

	live.mu.Lock()
	live.ctrl = ctrl
	live.mu.Unlock()

	s.mu.Lock()
	s.sessions[live.id] = live
	s.mu.Unlock()

	sessLog.Info().Int("questions", len(quiz.Questions)).Msg("Attempt started")
	return ctrl.Snapshot(), nil
}

func (s *QuizSessionService) loadQuiz(ctx context.Context, candidateID, token, quizID string) (*model.Quiz, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, candidateID, quizID)
		if err != nil {
			s.log.Warn().Err(err).Str("quiz_id", quizID).Msg("Quiz cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	quiz, err := s.api.FetchQuiz(ctx, token, quizID)
	if err != nil {
		if errors.Is(err, lms.ErrQuizNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("fetch quiz: %w", err)
	}
	if quiz == nil {
		return nil, ErrQuizNotFound
	}
	if len(quiz.Questions) == 0 {
		return nil, ErrNoQuestions
	}

	quiz.NormalizeIDs()
	if err := validator.Struct(quiz); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuizMalformed, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, candidateID, quiz); err != nil {
			s.log.Warn().Err(err).Str("quiz_id", quizID).Msg("Quiz cache write failed")
		}
	}
	return quiz, nil
}

// Get returns the current snapshot of a session.
func (s *QuizSessionService) Get(id uuid.UUID, candidateID string) (model.Snapshot, error) {
	live, err := s.lookup(id, candidateID)
	if err != nil {
		return model.Snapshot{}, err
	}
	return live.controller().Snapshot(), nil
}

// Select records a pending option on the current question.
func (s *QuizSessionService) Select(id uuid.UUID, candidateID string, option int) (model.Snapshot, bool, error) {
	return s.apply(id, candidateID, func(c *session.Controller) bool { return c.SelectOption(option) })
}

// Next commits and advances, submitting on the last question.
func (s *QuizSessionService) Next(id uuid.UUID, candidateID string) (model.Snapshot, bool, error) {
	return s.apply(id, candidateID, (*session.Controller).GoNext)
}

// Previous commits and moves back one question.
func (s *QuizSessionService) Previous(id uuid.UUID, candidateID string) (model.Snapshot, bool, error) {
	return s.apply(id, candidateID, (*session.Controller).GoPrevious)
}

// Quit abandons the attempt without submitting.
func (s *QuizSessionService) Quit(id uuid.UUID, candidateID string) (model.Snapshot, bool, error) {
	return s.apply(id, candidateID, (*session.Controller).Quit)
}

// Retry re-sends a failed submission with the same answers.
func (s *QuizSessionService) Retry(id uuid.UUID, candidateID string) (model.Snapshot, bool, error) {
	return s.apply(id, candidateID, (*session.Controller).Retry)
}

// Close discards a session: the countdown stops, an unfinished attempt is abandoned
// and the session is removed immediately.
func (s *QuizSessionService) Close(id uuid.UUID, candidateID string) error {
	live, err := s.lookup(id, candidateID)
	if err != nil {
		return err
	}
	live.controller().Close()
	s.evict(live)
	return nil
}

// Subscribe streams snapshots of a session, starting with the current one.
// The channel is closed once a terminal snapshot has been sent, the session is
// evicted, or cancel is called.
func (s *QuizSessionService) Subscribe(id uuid.UUID, candidateID string) (<-chan model.Snapshot, func(), error) {
	live, err := s.lookup(id, candidateID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan model.Snapshot, subscriberBuffer)

	// Holding live.mu while reading the snapshot orders it before any later
	// broadcast; the controller never calls back into us with its own lock held.
	live.mu.Lock()
	current := live.ctrl.Snapshot()
	key := live.nextSub
	live.nextSub++
	ch <- current
	if current.Terminal() {
		close(ch)
	} else {
		live.subs[key] = ch
	}
	live.mu.Unlock()

	cancel := func() {
		live.mu.Lock()
		defer live.mu.Unlock()
		if c, ok := live.subs[key]; ok {
			delete(live.subs, key)
			close(c)
		}
	}
	return ch, cancel, nil
}

// Sweep evicts sessions whose retention elapsed. It returns the number evicted.
func (s *QuizSessionService) Sweep() int {
	now := s.now()

	s.mu.RLock()
	var stale []*liveSession
	for _, live := range s.sessions {
		if s.expired(live, now) {
			stale = append(stale, live)
		}
	}
	s.mu.RUnlock()

	for _, live := range stale {
		live.controller().Close()
		s.evict(live)
	}
	if len(stale) > 0 {
		s.log.Debug().Int("count", len(stale)).Msg("Evicted stale sessions")
	}
	return len(stale)
}

func (s *QuizSessionService) expired(live *liveSession, now time.Time) bool {
	snap := live.controller().Snapshot()

	live.mu.Lock()
	defer live.mu.Unlock()
	switch snap.Phase {
	case model.PhaseComplete:
		return !live.terminalAt.IsZero() && now.Sub(live.terminalAt) >= s.retention
	case model.PhaseErrored:
		return now.Sub(live.lastActivity) >= s.idleTimeout
	default:
		return false
	}
}

// StartJanitor sweeps stale sessions every interval until ctx is done.
func (s *QuizSessionService) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Active returns the number of registered sessions.
func (s *QuizSessionService) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Shutdown abandons every unfinished attempt, waits for in-flight submissions and
// pending outcome records, and empties the registry.
func (s *QuizSessionService) Shutdown() {
	s.mu.RLock()
	all := make([]*liveSession, 0, len(s.sessions))
	for _, live := range s.sessions {
		all = append(all, live)
	}
	s.mu.RUnlock()

	for _, live := range all {
		ctrl := live.controller()
		ctrl.Close()
		ctrl.Wait()
		s.evict(live)
	}
	s.records.Wait()
	s.log.Info().Int("sessions", len(all)).Msg("Quiz sessions shut down")
}

func (s *QuizSessionService) lookup(id uuid.UUID, candidateID string) (*liveSession, error) {
	s.mu.RLock()
	live, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || live.controller() == nil {
		return nil, ErrSessionNotFound
	}
	if live.candidateID != candidateID {
		return nil, ErrNotSessionOwner
	}
	return live, nil
}

func (s *QuizSessionService) apply(id uuid.UUID, candidateID string, action func(*session.Controller) bool) (model.Snapshot, bool, error) {
	live, err := s.lookup(id, candidateID)
	if err != nil {
		return model.Snapshot{}, false, err
	}

	ctrl := live.controller()
	applied := action(ctrl)
	if applied {
		live.mu.Lock()
		live.lastActivity = s.now()
		live.mu.Unlock()
	}
	return ctrl.Snapshot(), applied, nil
}

func (s *QuizSessionService) evict(live *liveSession) {
	s.mu.Lock()
	delete(s.sessions, live.id)
	s.mu.Unlock()

	live.mu.Lock()
	for key, ch := range live.subs {
		delete(live.subs, key)
		close(ch)
	}
	live.mu.Unlock()
}

// onChange fans a snapshot out to subscribers and records the outcome once the
// attempt is over. Snapshots older than the last delivered one are dropped.
func (s *QuizSessionService) onChange(live *liveSession, snap model.Snapshot) {
	live.mu.Lock()
	if snap.Version <= live.lastVersion {
		live.mu.Unlock()
		return
	}
	live.lastVersion = snap.Version

	for key, ch := range live.subs {
		if !snap.Terminal() {
			select {
			case ch <- snap:
			default:
				// Slow consumer: it still gets the next frame or can poll Get.
			}
			continue
		}
		deliverTerminal(ch, snap)
		delete(live.subs, key)
		close(ch)
	}

	record := snap.Terminal() && !live.recorded
	if record {
		live.recorded = true
		live.terminalAt = s.now()
	}
	ctrl := live.ctrl
	live.mu.Unlock()

	if !record || s.recorder == nil {
		return
	}

	submissions, answered := 0, snap.AnsweredCount
	if ctrl != nil {
		submissions = ctrl.Submissions()
		answered = ctrl.AnsweredCount()
	}
	outcome := newOutcome(live, snap, submissions, answered, s.now())

	s.records.Add(1)
	go func() {
		defer s.records.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.recorder.Record(ctx, outcome); err != nil {
			s.log.Error().Err(err).
				Str("session_id", live.id.String()).
				Str("outcome", string(outcome.Outcome)).
				Msg("Failed to record attempt outcome")
		}
	}()
}

// deliverTerminal puts the final snapshot on ch, evicting the oldest buffered frame
// when the buffer is full. Callers hold live.mu, so no other send can refill the slot.
func deliverTerminal(ch chan model.Snapshot, snap model.Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (l *liveSession) controller() *session.Controller {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ctrl
}

func newOutcome(live *liveSession, snap model.Snapshot, submissions, answered int, finishedAt time.Time) model.AttemptOutcome {
	o := model.AttemptOutcome{
		ID:             uuid.New(),
		SessionID:      live.id,
		QuizID:         live.quizID,
		CandidateID:    live.candidateID,
		Outcome:        model.OutcomeAbandoned,
		AnsweredCount:  answered,
		ElapsedSeconds: snap.ElapsedSeconds,
		Submissions:    submissions,
		FinishedAt:     finishedAt.UTC(),
	}
	if snap.Result != nil {
		r := *snap.Result
		o.Outcome = model.OutcomeScored
		o.Score = &r.Score
		o.Percentage = &r.Percentage
		o.CorrectAnswers = &r.CorrectAnswers
		o.TotalQuestions = &r.TotalQuestions
	}
	return o
}
