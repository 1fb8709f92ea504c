package subscription

import (
	"sync"
	"time"
)

// expiryTimer is an armed stop-time timer.
type expiryTimer struct {
	stopTime time.Time
	timer    *time.Timer
}

// Expiry keeps one stop-time timer per subscription id and calls onExpiry
// with the armed stop time when it passes.
type Expiry struct {
	mu     sync.Mutex
	timers map[uint32]*expiryTimer
	now    func() time.Time

	onExpiry func(id uint32, stopTime time.Time)
}

// NewExpiry creates an Expiry. now defaults to time.Now.
func NewExpiry(onExpiry func(id uint32, stopTime time.Time), now func() time.Time) *Expiry {
	if now == nil {
		now = time.Now
	}
	return &Expiry{
		timers:   make(map[uint32]*expiryTimer),
		now:      now,
		onExpiry: onExpiry,
	}
}

// Arm sets or replaces the timer for id. A zero stop time cancels it.
func (e *Expiry) Arm(id uint32, stopTime time.Time) {
	if stopTime.IsZero() {
		e.Cancel(id)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.timers[id]; ok {
		existing.timer.Stop()
	}

	t := &expiryTimer{stopTime: stopTime}
	t.timer = time.AfterFunc(max(stopTime.Sub(e.now()), 0), func() {
		e.expire(id, t)
	})
	e.timers[id] = t
}

// Cancel stops the timer for id without calling onExpiry. It reports
// whether a timer was armed.
func (e *Expiry) Cancel(id uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.timers[id]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(e.timers, id)
	return true
}

// StopTime returns the armed stop time for id.
func (e *Expiry) StopTime(id uint32) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.timers[id]; ok {
		return t.stopTime, true
	}
	return time.Time{}, false
}

// Count returns the number of armed timers.
func (e *Expiry) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

// Sweep fires every timer whose stop time is not after now and returns how
// many fired.
func (e *Expiry) Sweep(now time.Time) int {
	e.mu.Lock()
	due := make(map[uint32]time.Time)
	for id, t := range e.timers {
		if !t.stopTime.After(now) {
			t.timer.Stop()
			delete(e.timers, id)
			due[id] = t.stopTime
		}
	}
	e.mu.Unlock()

	for id, stopTime := range due {
		e.onExpiry(id, stopTime)
	}
	return len(due)
}

// Stop cancels every timer.
func (e *Expiry) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, t := range e.timers {
		t.timer.Stop()
		delete(e.timers, id)
	}
}

func (e *Expiry) expire(id uint32, t *expiryTimer) {
	e.mu.Lock()
	if e.timers[id] != t {
		// Re-armed or cancelled after this timer fired.
		e.mu.Unlock()
		return
	}
	delete(e.timers, id)
	e.mu.Unlock()

	e.onExpiry(id, t.stopTime)
}
