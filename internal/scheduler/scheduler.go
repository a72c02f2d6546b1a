// Package scheduler arms a periodic chunk-pipeline trigger per session
// (§4.4). Each session owns at most one armed timer; ticks for the same
// session never overlap because the tick callback itself is serialized by
// the caller's per-session mutex (see internal/registry).
package scheduler

import (
	"sync"
	"time"
)

// Scheduler owns one timer per session.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	period  time.Duration
}

func New(period time.Duration) *Scheduler {
	if period <= 0 {
		period = 30 * time.Second
	}
	return &Scheduler{timers: make(map[string]*time.Timer), period: period}
}

// Arm schedules onTick to run once after the configured period, unless a
// timer is already armed for this session. The caller is responsible for
// re-arming after the tick runs (§4.4 step 4); this keeps "is a tick
// already in flight" entirely in the caller's per-session state rather
// than duplicated here.
func (s *Scheduler) Arm(sessionID string, onTick func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, armed := s.timers[sessionID]; armed {
		return
	}
	s.timers[sessionID] = time.AfterFunc(s.period, func() {
		s.mu.Lock()
		delete(s.timers, sessionID)
		s.mu.Unlock()
		onTick()
	})
}

// Disarm cancels any pending timer for a session, used on Pause, Cancel,
// and Stop.
func (s *Scheduler) Disarm(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
		delete(s.timers, sessionID)
	}
}

// Armed reports whether a tick is currently scheduled for a session.
func (s *Scheduler) Armed(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[sessionID]
	return ok
}
