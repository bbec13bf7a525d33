package session

import (
	"sync"
	"time"
)

// timerSet tracks every delayed continuation a session schedules so an
// explicit stop can cancel them wholesale, guaranteeing no stale
// continuation fires after the session ended.
type timerSet struct {
	mu     sync.Mutex
	seq    int
	timers map[int]*time.Timer
}

func newTimerSet() *timerSet {
	return &timerSet{timers: make(map[int]*time.Timer)}
}

// schedule runs fn after delay unless the set is stopped first. The gate
// callback is evaluated at fire time; a false result skips fn, which is how
// the master run switch takes effect at the next resumption point.
func (s *timerSet) schedule(delay time.Duration, gate func() bool, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	id := s.seq
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()

		if gate == nil || gate() {
			fn()
		}
	})
}

// stopAll cancels every pending continuation.
func (s *timerSet) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// pending reports how many continuations are still scheduled.
func (s *timerSet) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
