// Package clock schedules one-shot expiry callbacks keyed by id.
package clock

import (
	"sync"
	"time"
)

// Scheduler registers at most one pending timer per id. Callbacks are
// handed to the run function supplied at construction, which the engine
// uses to marshal fires onto its loop so they never race other handlers.
type Scheduler struct {
	mu      sync.Mutex
	run     func(func())
	timers  map[string]*time.Timer
	stopped bool
}

// New creates a scheduler. run must execute the given function; it may do
// so asynchronously but must not drop it while the scheduler is live.
func New(run func(func())) *Scheduler {
	return &Scheduler{
		run:    run,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule registers a timer for id firing at fireAt, replacing any prior
// timer for the same id. onFire is invoked exactly once via run, after
// which the timer is forgotten. A fireAt in the past fires immediately.
func (s *Scheduler) Schedule(id string, fireAt time.Time, onFire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if prev, ok := s.timers[id]; ok {
		prev.Stop()
	}

	d := time.Until(fireAt)
	if d < 0 {
		d = 0
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		// A reschedule or cancel may have raced the fire; only the timer
		// still registered under this id is allowed to run.
		if s.stopped || s.timers[id] != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, id)
		s.mu.Unlock()
		s.run(onFire)
	})
	s.timers[id] = t
}

// Cancel removes a pending timer if present; no-op otherwise.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// Pending reports whether a timer is registered for id.
func (s *Scheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

// Stop cancels every pending timer and rejects further scheduling. Called
// on engine teardown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
