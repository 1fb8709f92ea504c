package datastore

import "sync"

// subscriber owns the callback queue of one handle. A single goroutine
// drains the queue so callbacks for a handle never overlap.
type subscriber struct {
	handle Handle
	sel    Selector
	cb     Callback
	detach func()

	mu        sync.Mutex
	cond      *sync.Cond
	pending   []Event
	stopped   bool
	finishing bool
	done      chan struct{}
}

func newSubscriber(h Handle, sel Selector, cb Callback) *subscriber {
	s := &subscriber{handle: h, sel: sel, cb: cb, done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// enqueue appends ev. Events enqueued after stop or finish are dropped.
func (s *subscriber) enqueue(ev Event) {
	s.mu.Lock()
	if !s.stopped && !s.finishing {
		s.pending = append(s.pending, ev)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

// stop drops pending events and ends the queue.
func (s *subscriber) stop() {
	s.mu.Lock()
	s.stopped = true
	s.pending = nil
	s.cond.Broadcast()
	s.mu.Unlock()
}

// finish delivers last after the pending events, then ends the queue.
func (s *subscriber) finish(last Event) {
	s.mu.Lock()
	if !s.stopped && !s.finishing {
		s.pending = append(s.pending, last)
		s.finishing = true
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

func (s *subscriber) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.stopped && !s.finishing {
			s.cond.Wait()
		}
		if s.stopped || len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		ev := s.pending[0]
		s.pending[0] = Event{}
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.cb(s.handle, ev)
	}
}
