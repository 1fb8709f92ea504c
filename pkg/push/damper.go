package push

import (
	"sync"
	"time"

	"github.com/AdianComits/netopeer2/pkg/datastore"
)

// damper coalesces edits over a dampening window. The window opens with
// the first edit after a flush and flushes once when the period elapses.
// Edits to a path already pending replace it in place.
type damper struct {
	mu      sync.Mutex
	period  time.Duration
	pending []datastore.Edit
	index   map[string]int
	timer   *time.Timer
	opened  time.Time
	stopped bool

	flush func(edits []datastore.Edit)
}

func newDamper(period time.Duration, flush func([]datastore.Edit)) *damper {
	return &damper{period: period, index: make(map[string]int), flush: flush}
}

// Add queues edits, flushing at once when the period is zero.
func (d *damper) Add(edits []datastore.Edit) {
	if len(edits) == 0 {
		return
	}
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	for _, e := range edits {
		if i, ok := d.index[e.Path]; ok {
			d.pending[i] = e
			continue
		}
		d.index[e.Path] = len(d.pending)
		d.pending = append(d.pending, e)
	}
	if d.period == 0 {
		batch := d.takeLocked()
		d.mu.Unlock()
		d.flush(batch)
		return
	}
	if d.timer == nil {
		d.opened = time.Now()
		d.timer = time.AfterFunc(d.period, d.fire)
	}
	d.mu.Unlock()
}

// SetPeriod changes the window length. An open window keeps its deadline
// unless the new period closes it sooner.
func (d *damper) SetPeriod(period time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.period = period
	if d.timer != nil {
		remaining := max(time.Until(d.opened.Add(period)), 0)
		if d.timer.Stop() {
			d.timer = time.AfterFunc(remaining, d.fire)
		}
	}
}

// Pending returns the number of queued edits.
func (d *damper) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Take stops the damper and returns the queued edits without sending
// them.
func (d *damper) Take() []datastore.Edit {
	d.mu.Lock()
	defer d.mu.Unlock()
	batch := d.takeLocked()
	d.stopLocked()
	return batch
}

// Stop drops queued edits.
func (d *damper) Stop() {
	d.mu.Lock()
	d.pending = nil
	d.index = make(map[string]int)
	d.stopLocked()
	d.mu.Unlock()
}

func (d *damper) stopLocked() {
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *damper) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	batch := d.takeLocked()
	d.mu.Unlock()
	if len(batch) > 0 {
		d.flush(batch)
	}
}

func (d *damper) takeLocked() []datastore.Edit {
	batch := d.pending
	d.pending = nil
	d.index = make(map[string]int)
	return batch
}
