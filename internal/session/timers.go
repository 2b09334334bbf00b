package session

import (
	"sync"
	"time"
)

// timerRegistry owns the per-user inactivity timers. At most one timer
// exists per user; arming replaces any previous timer instead of stacking.
type timerRegistry struct {
	mu     sync.Mutex
	timers map[int64]*time.Timer
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{timers: make(map[int64]*time.Timer)}
}

func (r *timerRegistry) Arm(userID int64, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.timers[userID]; ok {
		existing.Stop()
	}
	r.timers[userID] = time.AfterFunc(d, fn)
}

func (r *timerRegistry) Disarm(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.timers[userID]; ok {
		existing.Stop()
		delete(r.timers, userID)
	}
}

func (r *timerRegistry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, timer := range r.timers {
		timer.Stop()
		delete(r.timers, userID)
	}
}
