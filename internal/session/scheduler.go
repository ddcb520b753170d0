package session

import (
	"sync"
	"time"
)

// Scheduler drives the per-question countdown. The controller starts it when the
// attempt enters IN_PROGRESS and stops it when the attempt leaves that phase.
type Scheduler interface {
	Start(tick func())
	// Stop must be idempotent and safe to call from inside tick.
	Stop()
}

// TickerScheduler fires tick on its own goroutine at a fixed interval.
type TickerScheduler struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

// NewTickerScheduler creates a scheduler ticking every interval.
func NewTickerScheduler(interval time.Duration) *TickerScheduler {
	return &TickerScheduler{interval: interval}
}

// Start begins ticking. Calling Start on a running scheduler is a no-op.
func (s *TickerScheduler) Start(tick func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}

	stop := make(chan struct{})
	s.stop = stop
	ticker := time.NewTicker(s.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				// A stop racing with the ticker may still deliver one tick;
				// the controller ignores ticks outside IN_PROGRESS.
				select {
				case <-stop:
					return
				default:
				}
				tick()
			}
		}
	}()
}

// Stop halts the ticker goroutine without waiting for it.
func (s *TickerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	s.stop = nil
}

// ManualScheduler only ticks when told to. Used by tests and replay tooling.
type ManualScheduler struct {
	mu      sync.Mutex
	tick    func()
	running bool
}

// NewManualScheduler creates a stopped ManualScheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Start registers tick and marks the scheduler running. Nothing fires until Tick.
func (s *ManualScheduler) Start(tick func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick = tick
	s.running = true
}

// Stop marks the scheduler stopped. The registered tick is kept for ForceTick.
func (s *ManualScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// Tick fires one tick if the scheduler is running. It reports whether a tick was delivered.
func (s *ManualScheduler) Tick() bool {
	s.mu.Lock()
	tick, running := s.tick, s.running
	s.mu.Unlock()
	if !running || tick == nil {
		return false
	}
	tick()
	return true
}

// Advance fires n ticks, stopping early once the scheduler is stopped.
// It returns the number of ticks delivered.
func (s *ManualScheduler) Advance(n int) int {
	delivered := 0
	for i := 0; i < n; i++ {
		if !s.Tick() {
			break
		}
		delivered++
	}
	return delivered
}

// Running reports whether the scheduler is currently started.
func (s *ManualScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ForceTick invokes the last registered tick even when stopped, simulating a stray
// tick that raced with Stop.
func (s *ManualScheduler) ForceTick() {
	s.mu.Lock()
	tick := s.tick
	s.mu.Unlock()
	if tick != nil {
		tick()
	}
}
