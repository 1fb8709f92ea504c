package subscription

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AdianComits/netopeer2/pkg/access"
	"github.com/AdianComits/netopeer2/pkg/datastore"
	"github.com/AdianComits/netopeer2/pkg/filter"
	"github.com/AdianComits/netopeer2/pkg/metrics"
	"github.com/AdianComits/netopeer2/pkg/tree"
	"github.com/AdianComits/netopeer2/pkg/wire"
)

// Tag selects the discipline owning a record.
type Tag uint8

const (
	// TagStream delivers records of a named event stream.
	TagStream Tag = iota + 1
	// TagPush delivers periodic or on-change datastore updates.
	TagPush
)

// String returns the discipline name.
func (t Tag) String() string {
	switch t {
	case TagStream:
		return "stream"
	case TagPush:
		return "push"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of a record.
type State uint32

const (
	StatePending State = iota + 1
	StateActive
	StateTerminated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateActive:
		return "ACTIVE"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Reason says why a subscription ended.
type Reason uint8

const (
	// ReasonDeleted is a delete by the owner.
	ReasonDeleted Reason = iota + 1
	// ReasonKilled is a kill by a privileged identity.
	ReasonKilled
	// ReasonStopTime means the stop time elapsed.
	ReasonStopTime
	// ReasonDatastore means the datastore ended a backing handle.
	ReasonDatastore
	// ReasonFilterUnavailable means the filter can no longer be evaluated.
	ReasonFilterUnavailable
	// ReasonSessionClosed means the owning session went away.
	ReasonSessionClosed
	// ReasonShutdown means the agent is stopping.
	ReasonShutdown
	// ReasonInternal means the record could not be kept consistent.
	ReasonInternal
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case ReasonDeleted:
		return "delete-subscription"
	case ReasonKilled:
		return "kill-subscription"
	case ReasonStopTime:
		return "stop-time"
	case ReasonDatastore:
		return "datastore-terminated"
	case ReasonFilterUnavailable:
		return "filter-unavailable"
	case ReasonSessionClosed:
		return "session-closed"
	case ReasonShutdown:
		return "shutdown"
	case ReasonInternal:
		return "internal-error"
	default:
		return "unknown"
	}
}

// notification returns the lifecycle notification sent for the reason.
func (r Reason) notification() (wire.NotificationKind, bool) {
	switch r {
	case ReasonDeleted, ReasonSessionClosed:
		return 0, false
	case ReasonStopTime:
		return wire.KindSubscriptionCompleted, true
	default:
		return wire.KindSubscriptionTerminated, true
	}
}

// Sender writes notifications to a subscriber. It is called concurrently
// from delivery paths and must not block for long.
type Sender interface {
	Send(n wire.Notification) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(n wire.Notification) error

// Send calls f.
func (f SenderFunc) Send(n wire.Notification) error {
	return f(n)
}

type boundFilter struct {
	ref    filter.Ref
	filter *filter.Filter
}

// Record is one subscription.
//
// ID, Owner, Tag, Session and Created never change. Stop time and handles
// change only with the registry lock held, so discipline hooks may read
// them freely; other code reads them through the Manager. Discipline data,
// filter, state and counters are safe to read at any time.
type Record struct {
	ID      uint32
	Owner   access.Identity
	Tag     Tag
	Session string
	Created time.Time

	sender  Sender
	manager *Manager

	// lifecycle orders subscription-modified before the terminal
	// notification. Taken with the registry lock held.
	lifecycle sync.Mutex

	stopTime time.Time
	handles  []datastore.Handle

	data     atomic.Pointer[dataBox]
	state    atomic.Uint32
	filter   atomic.Pointer[boundFilter]
	excluded atomic.Uint64
	sent     atomic.Uint64
	refs     refs
}

// State returns the lifecycle state.
func (r *Record) State() State {
	return State(r.state.Load())
}

// StopTime returns the stop time; zero means none. Hooks only.
func (r *Record) StopTime() time.Time {
	return r.stopTime
}

// Handles returns a copy of the backing handles. Hooks only.
func (r *Record) Handles() []datastore.Handle {
	return slices.Clone(r.handles)
}

type dataBox struct{ v any }

// Data returns the discipline state installed by the last establish or
// modify hook. Safe to call from Deliver.
func (r *Record) Data() any {
	if b := r.data.Load(); b != nil {
		return b.v
	}
	return nil
}

func (r *Record) setData(v any) {
	r.data.Store(&dataBox{v: v})
}

// SetFilter installs the filter evaluated by later deliveries.
func (r *Record) SetFilter(ref filter.Ref, f *filter.Filter) {
	r.filter.Store(&boundFilter{ref: ref, filter: f})
}

// Filter returns the current filter; nil matches everything.
func (r *Record) Filter() *filter.Filter {
	if b := r.filter.Load(); b != nil {
		return b.filter
	}
	return nil
}

// FilterRef returns how the current filter was requested.
func (r *Record) FilterRef() filter.Ref {
	if b := r.filter.Load(); b != nil {
		return b.ref
	}
	return filter.Ref{}
}

// Excluded returns the number of events dropped by filter or access
// control. It never decreases, including across modify.
func (r *Record) Excluded() uint64 {
	return r.excluded.Load()
}

// Sent returns the number of data notifications delivered.
func (r *Record) Sent() uint64 {
	return r.sent.Load()
}

// Exclude counts a dropped event. cause is metrics.CauseFilter or
// metrics.CauseAccess.
func (r *Record) Exclude(cause string) {
	r.excluded.Add(1)
	r.manager.config.Metrics.NotificationExcluded(r.Tag.String(), cause)
}

// Permit asks the access checker whether the owner may receive payload.
func (r *Record) Permit(payload *tree.Node) bool {
	return r.manager.config.Access.Permit(r.Owner, payload)
}

// Admit runs payload through the current filter and the access check,
// counting an exclusion when either rejects it.
func (r *Record) Admit(payload *tree.Node) bool {
	if !filter.Match(r.Filter(), payload) {
		r.Exclude(metrics.CauseFilter)
		return false
	}
	if !r.Permit(payload) {
		r.Exclude(metrics.CauseAccess)
		return false
	}
	return true
}

// Send delivers a data notification and counts it.
func (r *Record) Send(kind wire.NotificationKind, at time.Time, body *tree.Node) error {
	if err := r.notify(kind, at, body); err != nil {
		return err
	}
	if !kind.IsLifecycle() {
		r.sent.Add(1)
	}
	return nil
}

func (r *Record) notify(kind wire.NotificationKind, at time.Time, body *tree.Node) error {
	err := r.sender.Send(wire.Notification{
		SubscriptionID: r.ID,
		Kind:           kind,
		EventTime:      at,
		Body:           body,
	})
	if err != nil {
		r.manager.debugLog("notification not sent", "id", r.ID, "kind", kind, "error", err)
		return err
	}
	r.manager.config.Metrics.NotificationSent(r.Tag.String(), kind.String())
	return nil
}

// Callback returns the datastore callback feeding this record. Every
// handle a discipline creates must use it.
func (r *Record) Callback() datastore.Callback {
	return r.manager.Dispatch
}

// Run calls fn while holding a delivery reference, for discipline timers.
// It returns false without calling fn once terminate has started
// draining.
func (r *Record) Run(fn func()) bool {
	if !r.refs.acquire() {
		return false
	}
	defer r.refs.release()
	fn()
	return true
}

// Fail terminates the record asynchronously. Delivery paths use it since
// terminating synchronously would wait for their own reference.
func (r *Record) Fail(reason Reason) {
	go func() {
		_ = r.manager.Terminate(r.ID, reason)
	}()
}

// Now returns the manager's clock reading.
func (r *Record) Now() time.Time {
	return r.manager.config.Now()
}

// refs counts in-flight deliveries. Once closed, acquire fails and the
// returned channel is closed when the count reaches zero.
type refs struct {
	mu     sync.Mutex
	n      int
	closed bool
	zero   chan struct{}
}

func (r *refs) acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.n++
	return true
}

func (r *refs) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n--
	if r.closed && r.n == 0 && r.zero != nil {
		close(r.zero)
		r.zero = nil
	}
}

func (r *refs) close() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	ch := make(chan struct{})
	if r.n == 0 {
		close(ch)
	} else {
		r.zero = ch
	}
	return ch
}
