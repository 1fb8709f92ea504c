package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AdianComits/netopeer2/pkg/access"
	"github.com/AdianComits/netopeer2/pkg/datastore"
	"github.com/AdianComits/netopeer2/pkg/log"
	"github.com/AdianComits/netopeer2/pkg/tree"
	"github.com/AdianComits/netopeer2/pkg/wire"
)

// EstablishRequest asks for a new subscription.
type EstablishRequest struct {
	Identity access.Identity

	// Session groups subscriptions for TerminateSession.
	Session string

	// StopTime must be in the future; zero means none.
	StopTime time.Time

	Tag    Tag
	Params any
	Sender Sender
}

// EstablishResult describes a new subscription.
type EstablishResult struct {
	ID      uint32
	Handles []datastore.Handle

	// ReplayStartRevision is set when the replay start was moved forward.
	ReplayStartRevision time.Time
}

// ModifyRequest changes a subscription.
type ModifyRequest struct {
	ID       uint32
	Identity access.Identity

	// StopTime replaces the stop time when non-zero.
	StopTime time.Time

	// Params are passed to the discipline's modify hook when non-nil.
	// A stop-time-only modify keeps the backing handles.
	Params any
}

// Manager drives subscription lifecycle transitions and routes datastore
// events to disciplines.
type Manager struct {
	config      Config
	logger      *slog.Logger
	registry    *Registry
	disciplines map[Tag]Discipline
	expiry      *Expiry
	closed      atomic.Bool
}

// NewManager creates a Manager serving the given disciplines.
func NewManager(config Config, disciplines ...Discipline) *Manager {
	config.applyDefaults()
	m := &Manager{
		config:      config,
		logger:      config.Logger,
		registry:    NewRegistry(config.MaxSubscriptions),
		disciplines: make(map[Tag]Discipline, len(disciplines)),
	}
	for _, d := range disciplines {
		m.disciplines[d.Tag()] = d
	}
	m.expiry = NewExpiry(m.expire, config.Now)
	return m
}

func (m *Manager) debugLog(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

// Registry exposes the registry for inspection.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Len returns the number of registered subscriptions.
func (m *Manager) Len() int {
	return m.registry.Len()
}

// Establish creates a subscription. On failure nothing is registered and
// every backing handle created on the way has been released.
func (m *Manager) Establish(ctx context.Context, req EstablishRequest) (EstablishResult, error) {
	if m.closed.Load() {
		return EstablishResult{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return EstablishResult{}, err
	}
	d, ok := m.disciplines[req.Tag]
	if !ok {
		return EstablishResult{}, fmt.Errorf("%w: unsupported discipline %v", ErrInvalidParameter, req.Tag)
	}
	if req.Sender == nil {
		return EstablishResult{}, fmt.Errorf("%w: no notification sender", ErrInvalidParameter)
	}
	now := m.config.Now()
	if !req.StopTime.IsZero() && !req.StopTime.After(now) {
		return EstablishResult{}, fmt.Errorf("%w: stop time %s is not in the future", ErrInvalidParameter, req.StopTime.Format(time.RFC3339Nano))
	}

	rec := &Record{
		Owner:   req.Identity,
		Tag:     req.Tag,
		Session: req.Session,
		Created: now,
		sender:  req.Sender,
		manager: m,
	}
	rec.state.Store(uint32(StatePending))

	m.registry.mu.Lock()
	id, err := m.registry.insertLocked(rec)
	if err != nil {
		m.registry.mu.Unlock()
		return EstablishResult{}, err
	}

	setup, err := d.Establish(ctx, rec, req.Params)
	if err != nil {
		_, _ = m.registry.removeLocked(id)
		m.registry.mu.Unlock()
		m.debugLog("establish failed", "tag", req.Tag, "user", req.Identity.User, "error", err)
		return EstablishResult{}, err
	}
	if err := m.registry.bindLocked(rec, setup.Handles); err != nil {
		for _, h := range setup.Handles {
			_ = d.Terminate(rec, h)
		}
		d.Destroy(rec)
		_, _ = m.registry.removeLocked(id)
		m.registry.mu.Unlock()
		return EstablishResult{}, err
	}
	rec.setData(setup.Data)
	rec.stopTime = req.StopTime
	m.expiry.Arm(id, req.StopTime)
	rec.state.Store(uint32(StateActive))
	n := len(m.registry.byID)
	m.registry.mu.Unlock()

	m.config.Metrics.SubscriptionEstablished(req.Tag.String())
	m.config.Metrics.SetActiveSubscriptions(n)
	m.config.Capture.Log(log.SubscriptionStateEvent(id, req.Identity.User, StatePending.String(), StateActive.String(), ""))
	m.debugLog("subscription established", "id", id, "tag", req.Tag, "user", req.Identity.User, "handles", len(setup.Handles))

	return EstablishResult{
		ID:                  id,
		Handles:             append([]datastore.Handle(nil), setup.Handles...),
		ReplayStartRevision: setup.ReplayStartRevision,
	}, nil
}

// Modify changes the stop time and discipline parameters of a
// subscription owned by req.Identity (or any, for a privileged identity),
// then sends subscription-modified.
func (m *Manager) Modify(ctx context.Context, req ModifyRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := m.config.Now()
	if !req.StopTime.IsZero() && !req.StopTime.After(now) {
		return fmt.Errorf("%w: stop time %s is not in the future", ErrInvalidParameter, req.StopTime.Format(time.RFC3339Nano))
	}

	m.registry.mu.Lock()
	rec, err := m.activeLocked(req.ID)
	if err != nil {
		m.registry.mu.Unlock()
		return err
	}
	if err := authorize(rec, req.Identity); err != nil {
		m.registry.mu.Unlock()
		return err
	}
	d := m.disciplines[rec.Tag]

	var after func()
	if req.Params != nil {
		setup, err := d.Modify(ctx, rec, req.Params)
		if err != nil {
			m.registry.mu.Unlock()
			m.debugLog("modify failed", "id", req.ID, "error", err)
			return err
		}
		if err := m.registry.bindLocked(rec, setup.Handles); err != nil {
			// The hook already replaced its runtime, so the record cannot
			// go back. Release the unbound handles and end it.
			for _, h := range setup.Handles {
				if _, bound := m.registry.byHandle[h]; !bound {
					_ = d.Terminate(rec, h)
				}
			}
			rec.setData(setup.Data)
			m.registry.mu.Unlock()
			m.debugLog("modify left subscription inconsistent", "id", req.ID, "error", err)
			rec.Fail(ReasonInternal)
			return err
		}
		rec.setData(setup.Data)
		after = setup.After
	}
	if !req.StopTime.IsZero() {
		rec.stopTime = req.StopTime
		m.expiry.Arm(rec.ID, req.StopTime)
	}
	body := m.modifiedBodyLocked(rec, d)
	rec.lifecycle.Lock()
	m.registry.mu.Unlock()

	if after != nil {
		after()
	}
	_ = rec.notify(wire.KindSubscriptionModified, now, body)
	rec.lifecycle.Unlock()

	m.config.Metrics.SubscriptionModified(rec.Tag.String())
	m.debugLog("subscription modified", "id", rec.ID, "params", req.Params != nil, "stop_time", !req.StopTime.IsZero())
	return nil
}

func (m *Manager) modifiedBodyLocked(rec *Record, d Discipline) *tree.Node {
	body := tree.New("subscription-modified", tree.Leaf("id", rec.ID))
	if !rec.stopTime.IsZero() {
		body.Add(tree.Leaf("stop-time", rec.stopTime.Format(time.RFC3339Nano)))
	}
	if id := rec.FilterRef().Identity(); id != "" {
		body.Add(tree.Leaf("filter", id))
	}
	d.AppendModified(rec, body)
	return body
}

// Terminate ends a subscription. Exactly one of several concurrent calls
// for the same id succeeds; the others get ErrNotFound.
func (m *Manager) Terminate(id uint32, reason Reason) error {
	return m.terminate(id, reason, nil)
}

// Delete terminates a subscription on behalf of its owner.
func (m *Manager) Delete(id uint32, identity access.Identity) error {
	return m.terminate(id, ReasonDeleted, func(rec *Record) error {
		return authorize(rec, identity)
	})
}

// Kill terminates any subscription on behalf of a privileged identity.
func (m *Manager) Kill(id uint32, identity access.Identity) error {
	if !identity.Privileged {
		return fmt.Errorf("%w: kill requires a privileged identity", ErrWrongOwner)
	}
	return m.terminate(id, ReasonKilled, nil)
}

// TerminateSession terminates every subscription established by session
// and returns how many were terminated.
func (m *Manager) TerminateSession(session string) int {
	var ids []uint32
	m.registry.ForEach(func(rec *Record) bool {
		if rec.Session == session && rec.State() == StateActive {
			ids = append(ids, rec.ID)
		}
		return true
	})
	return m.terminateAll(ids, ReasonSessionClosed)
}

// Expire terminates every subscription whose stop time is not after now.
func (m *Manager) Expire(now time.Time) int {
	return m.expiry.Sweep(now)
}

// Close terminates every subscription. Later establish calls fail with
// ErrClosed.
func (m *Manager) Close() {
	if m.closed.Swap(true) {
		return
	}
	var ids []uint32
	m.registry.ForEach(func(rec *Record) bool {
		ids = append(ids, rec.ID)
		return true
	})
	m.terminateAll(ids, ReasonShutdown)
	m.expiry.Stop()
}

func (m *Manager) terminateAll(ids []uint32, reason Reason) int {
	var (
		wg sync.WaitGroup
		n  atomic.Int32
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			if m.Terminate(id, reason) == nil {
				n.Add(1)
			}
		}(id)
	}
	wg.Wait()
	return int(n.Load())
}

func (m *Manager) expire(id uint32, stopTime time.Time) {
	err := m.terminate(id, ReasonStopTime, func(rec *Record) error {
		if !rec.stopTime.Equal(stopTime) {
			return errNotDue
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNotDue) && !errors.Is(err, ErrNotFound) {
		m.debugLog("stop-time termination failed", "id", id, "error", err)
	}
}

func (m *Manager) terminate(id uint32, reason Reason, check func(*Record) error) error {
	m.registry.mu.Lock()
	rec, err := m.activeLocked(id)
	if err != nil {
		m.registry.mu.Unlock()
		return err
	}
	if check != nil {
		if err := check(rec); err != nil {
			m.registry.mu.Unlock()
			return err
		}
	}
	rec.state.Store(uint32(StateTerminated))
	d := m.disciplines[rec.Tag]
	for _, h := range rec.handles {
		if err := d.Terminate(rec, h); err != nil && !errors.Is(err, datastore.ErrHandleNotFound) {
			m.teardownError(rec, fmt.Sprintf("release handle %v", h), err)
		}
	}
	m.registry.unbindLocked(rec)
	m.expiry.Cancel(id)
	m.registry.mu.Unlock()

	m.drain(rec)
	d.Destroy(rec)

	m.registry.mu.Lock()
	delete(m.registry.byID, id)
	n := len(m.registry.byID)
	m.registry.mu.Unlock()

	m.config.Metrics.SubscriptionTerminated(rec.Tag.String(), reason.String())
	m.config.Metrics.SetActiveSubscriptions(n)
	m.config.Capture.Log(log.SubscriptionStateEvent(id, rec.Owner.User, StateActive.String(), StateTerminated.String(), reason.String()))
	m.debugLog("subscription terminated", "id", id, "reason", reason)

	if kind, ok := reason.notification(); ok {
		body := tree.New(kind.String(), tree.Leaf("id", id))
		if kind == wire.KindSubscriptionTerminated {
			body.Add(tree.Leaf("reason", reason.String()))
		}
		rec.lifecycle.Lock()
		_ = rec.notify(kind, m.config.Now(), body)
		rec.lifecycle.Unlock()
	}
	return nil
}

// drain waits for in-flight deliveries, bounded by DrainTimeout.
func (m *Manager) drain(rec *Record) {
	start := time.Now()
	zero := rec.refs.close()
	timer := time.NewTimer(m.config.DrainTimeout)
	defer timer.Stop()

	timedOut := false
	select {
	case <-zero:
	case <-timer.C:
		timedOut = true
		m.teardownError(rec, "drain in-flight deliveries", fmt.Errorf("timed out after %s", m.config.DrainTimeout))
	}
	m.config.Metrics.ObserveDrain(time.Since(start).Seconds(), timedOut)
}

func (m *Manager) teardownError(rec *Record, what string, err error) {
	m.debugLog("teardown error", "id", rec.ID, "context", what, "error", err)
	m.config.Capture.Log(log.Event{
		Timestamp:      time.Now(),
		Layer:          log.LayerSubscription,
		Category:       log.CategoryError,
		User:           rec.Owner.User,
		SubscriptionID: rec.ID,
		Error: &log.ErrorEventData{
			Layer:   log.LayerSubscription,
			Message: err.Error(),
			Context: what,
		},
	})
}

func (m *Manager) activeLocked(id uint32) (*Record, error) {
	rec, err := m.registry.findLocked(id)
	if err != nil {
		return nil, err
	}
	if rec.State() != StateActive {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return rec, nil
}

func authorize(rec *Record, identity access.Identity) error {
	if identity.Privileged || identity.User == rec.Owner.User {
		return nil
	}
	return fmt.Errorf("%w: subscription %d", ErrWrongOwner, rec.ID)
}

// Dispatch routes a datastore event to the discipline owning the handle.
// Events for handles no longer registered are dropped.
func (m *Manager) Dispatch(h datastore.Handle, ev datastore.Event) {
	m.registry.mu.Lock()
	rec := m.registry.byHandle[h]
	ok := rec != nil && rec.refs.acquire()
	m.registry.mu.Unlock()
	if !ok {
		m.debugLog("event for unknown handle dropped", "handle", h, "kind", ev.Kind)
		return
	}
	defer rec.refs.release()

	m.disciplines[rec.Tag].Deliver(rec, h, ev)
}

// WithRecord calls fn with the record holding a delivery reference.
func (m *Manager) WithRecord(id uint32, fn func(*Record)) error {
	m.registry.mu.Lock()
	rec, err := m.activeLocked(id)
	if err == nil && !rec.refs.acquire() {
		err = fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	m.registry.mu.Unlock()
	if err != nil {
		return err
	}
	defer rec.refs.release()
	fn(rec)
	return nil
}
