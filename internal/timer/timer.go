// Package timer provides a single-slot, re-armable delayed callback.
package timer

import (
	"sync"
	"time"
)

// Slot holds at most one pending callback. Arming replaces the pending
// callback; a fired callback clears the slot.
type Slot struct {
	unit time.Duration
	fire func()

	mu      sync.Mutex
	t       *time.Timer
	gen     uint64
	firesAt time.Time
}

// New returns an unarmed slot. Arm counts in multiples of unit, and fire
// runs on its own goroutine when a pending callback comes due.
func New(unit time.Duration, fire func()) *Slot {
	if unit <= 0 {
		unit = time.Second
	}
	return &Slot{unit: unit, fire: fire}
}

// Arm cancels any pending callback and, when n > 0, schedules a new one n
// units from now.
func (s *Slot) Arm(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	if n <= 0 {
		return
	}

	d := time.Duration(n) * s.unit
	gen := s.gen
	s.firesAt = time.Now().Add(d)
	s.t = time.AfterFunc(d, func() { s.expire(gen) })
}

// Cancel disarms the slot. It is a no-op when nothing is pending.
func (s *Slot) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// Pending reports the scheduled fire time, if armed.
func (s *Slot) Pending() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.t == nil {
		return time.Time{}, false
	}
	return s.firesAt, true
}

func (s *Slot) cancelLocked() {
	if s.t != nil {
		s.t.Stop()
		s.t = nil
	}
	// Invalidate any callback that already left the runtime timer.
	s.gen++
}

func (s *Slot) expire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.t = nil
	s.gen++
	s.mu.Unlock()

	if s.fire != nil {
		s.fire()
	}
}
