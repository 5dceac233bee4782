package ctp

import (
	"context"
	"sync"
	"time"
)

const (
	defaultQueryTrigger  = 2
	defaultQueryInterval = time.Second
)

// QueryFunc is one entry of the polling rotation.
type QueryFunc func()

// QueryScheduler invokes one function from its rotation every trigger+1 ticks.
// It ignores ticks until enabled.
type QueryScheduler struct {
	mu      sync.Mutex
	enabled bool
	trigger int
	count   int
	next    int
	funcs   []QueryFunc
}

// NewQueryScheduler creates a disabled scheduler. A non-positive trigger selects the default.
func NewQueryScheduler(trigger int, funcs ...QueryFunc) *QueryScheduler {
	if trigger <= 0 {
		trigger = defaultQueryTrigger
	}
	return &QueryScheduler{trigger: trigger, funcs: funcs}
}

// SetEnabled turns polling on or off. The counter and rotation position are kept.
func (s *QueryScheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// Enabled reports whether ticks currently advance the scheduler.
func (s *QueryScheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Tick advances the counter and fires at most one query.
func (s *QueryScheduler) Tick() {
	s.mu.Lock()
	if !s.enabled || len(s.funcs) == 0 {
		s.mu.Unlock()
		return
	}
	s.count++
	if s.count <= s.trigger {
		s.mu.Unlock()
		return
	}
	s.count = 0
	fn := s.funcs[s.next]
	s.next = (s.next + 1) % len(s.funcs)
	s.mu.Unlock()

	fn()
}

// Run ticks the scheduler every interval until ctx is done.
func (s *QueryScheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultQueryInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}
