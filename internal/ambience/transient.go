package ambience

import (
	"sync"
	"time"
)

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. The engine schedules every stochastic
// event through it, so tests can fire timers by hand.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler schedules with time.AfterFunc.
type SystemScheduler struct{}

// AfterFunc implements Scheduler.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// timerSet tracks the pending timers of one owner. Once stopped it refuses
// new timers, so a callback that is already running cannot reschedule.
type timerSet struct {
	mu     sync.Mutex
	timers map[uint64]Timer
	next   uint64
	closed bool
}

func newTimerSet() *timerSet {
	return &timerSet{timers: make(map[uint64]Timer)}
}

// add schedules f after d. It reports false when the set is closed.
func (s *timerSet) add(sched Scheduler, d time.Duration, f func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	id := s.next
	s.next++
	s.timers[id] = nil
	s.mu.Unlock()

	t := sched.AfterFunc(d, func() {
		if !s.done(id) {
			return
		}
		f()
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		t.Stop()
		return false
	}
	// The timer may already have fired and removed its entry.
	if _, ok := s.timers[id]; ok {
		s.timers[id] = t
	}
	return true
}

// done removes id and reports whether its callback should still run.
func (s *timerSet) done(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	delete(s.timers, id)
	return true
}

// stop cancels every pending timer and closes the set.
func (s *timerSet) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		if t != nil {
			t.Stop()
		}
		delete(s.timers, id)
	}
}

func (s *timerSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
