package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/AdianComits/netopeer2/pkg/log"
	"github.com/AdianComits/netopeer2/pkg/tree"
)

// Datastore and stream names present in DefaultMemoryConfig.
const (
	Running     = "running"
	Operational = "operational"
	NETCONF     = "NETCONF"
)

// DefaultHistorySize is the replay history kept per stream when a stream
// config leaves it zero.
const DefaultHistorySize = 1024

// StreamConfig declares an event stream.
type StreamConfig struct {
	Name        string
	Replay      bool
	HistorySize int
}

// MemoryConfig configures a Memory datastore.
type MemoryConfig struct {
	Datastores []string
	Streams    []StreamConfig

	// Capture receives every published stream record (optional).
	Capture log.Logger

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// Now overrides the clock (tests).
	Now func() time.Time
}

// DefaultMemoryConfig returns the running and operational datastores and
// a replay-capable NETCONF stream.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Datastores: []string{Running, Operational},
		Streams:    []StreamConfig{{Name: NETCONF, Replay: true, HistorySize: DefaultHistorySize}},
	}
}

type record struct {
	at      time.Time
	payload *tree.Node
}

type stream struct {
	cfg StreamConfig

	mu      sync.Mutex
	history []record
	last    time.Time
	subs    map[Handle]*subscriber
}

type store struct {
	name string

	mu   sync.Mutex
	root *tree.Node
	subs map[Handle]*subscriber
}

// Memory is an in-memory Datastore. Payloads handed to callbacks are shared
// between subscribers and must be treated as read-only.
type Memory struct {
	config  MemoryConfig
	logger  *slog.Logger
	capture log.Logger

	streams *xsync.Map[string, *stream]
	stores  *xsync.Map[string, *store]
	subs    *xsync.Map[Handle, *subscriber]

	nextHandle atomic.Uint64
	closed     atomic.Bool
}

// NewMemory creates a Memory datastore.
func NewMemory(config MemoryConfig) (*Memory, error) {
	if config.Now == nil {
		config.Now = time.Now
	}
	m := &Memory{
		config:  config,
		logger:  config.Logger,
		capture: log.OrNoop(config.Capture),
		streams: xsync.NewMap[string, *stream](),
		stores:  xsync.NewMap[string, *store](),
		subs:    xsync.NewMap[Handle, *subscriber](),
	}
	for _, name := range config.Datastores {
		if name == "" {
			return nil, fmt.Errorf("datastore name is empty")
		}
		m.stores.Store(name, &store{name: name, root: tree.New("data"), subs: make(map[Handle]*subscriber)})
	}
	for _, sc := range config.Streams {
		if err := m.AddStream(sc); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AddStream declares an event stream.
func (m *Memory) AddStream(sc StreamConfig) error {
	if sc.Name == "" {
		return fmt.Errorf("stream name is empty")
	}
	if sc.Replay && sc.HistorySize <= 0 {
		sc.HistorySize = DefaultHistorySize
	}
	if _, loaded := m.streams.LoadOrStore(sc.Name, &stream{cfg: sc, subs: make(map[Handle]*subscriber)}); loaded {
		return fmt.Errorf("stream %q already exists", sc.Name)
	}
	return nil
}

func (m *Memory) debugLog(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

// Stream describes the named event stream.
func (m *Memory) Stream(name string) (StreamInfo, error) {
	st, ok := m.streams.Load(name)
	if !ok {
		return StreamInfo{}, fmt.Errorf("%w: %q", ErrNoSuchStream, name)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	info := StreamInfo{Name: name, Replay: st.cfg.Replay}
	if len(st.history) > 0 {
		info.Oldest = st.history[0].at
	}
	return info, nil
}

// StreamNames returns the declared stream names in no particular order.
func (m *Memory) StreamNames() []string {
	var names []string
	m.streams.Range(func(name string, _ *stream) bool {
		names = append(names, name)
		return true
	})
	return names
}

// Subscribe implements Datastore.
func (m *Memory) Subscribe(sel Selector, opts SubscribeOptions, cb Callback) (Handle, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if cb == nil {
		return 0, fmt.Errorf("%w: nil callback", ErrInvalidSelector)
	}
	if err := sel.validate(); err != nil {
		return 0, err
	}

	h := Handle(m.nextHandle.Add(1))
	sub := newSubscriber(h, sel, cb)

	if sel.Stream != "" {
		if err := m.subscribeStream(sub, opts); err != nil {
			return 0, err
		}
	} else {
		if err := m.subscribeStore(sub, opts); err != nil {
			return 0, err
		}
	}

	m.subs.Store(h, sub)
	go sub.run()
	m.debugLog("datastore subscribe", "handle", h, "stream", sel.Stream, "datastore", sel.Datastore, "path", sel.Path)
	return h, nil
}

func (m *Memory) subscribeStream(sub *subscriber, opts SubscribeOptions) error {
	st, ok := m.streams.Load(sub.sel.Stream)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSuchStream, sub.sel.Stream)
	}
	replay := !opts.ReplayFrom.IsZero()
	if replay && !st.cfg.Replay {
		return fmt.Errorf("%w: %q", ErrReplayUnsupported, sub.sel.Stream)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if replay {
		for _, rec := range st.history {
			if rec.at.Before(opts.ReplayFrom) {
				continue
			}
			sub.enqueue(Event{Kind: EventNotification, Time: rec.at, Payload: rec.payload, Replayed: true})
		}
		sub.enqueue(Event{Kind: EventReplayComplete, Time: m.config.Now()})
	}
	st.subs[sub.handle] = sub
	sub.detach = func() {
		st.mu.Lock()
		delete(st.subs, sub.handle)
		st.mu.Unlock()
	}
	return nil
}

func (m *Memory) subscribeStore(sub *subscriber, opts SubscribeOptions) error {
	ds, ok := m.stores.Load(sub.sel.Datastore)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSuchDatastore, sub.sel.Datastore)
	}
	if p := strings.Trim(sub.sel.Path, "/"); p != "" {
		if err := tree.ValidatePath(p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSelector, err)
		}
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if opts.InitialSnapshot {
		sub.enqueue(Event{Kind: EventSnapshot, Time: m.config.Now(), Payload: ds.root.Find(sub.sel.Path).Clone()})
	}
	ds.subs[sub.handle] = sub
	sub.detach = func() {
		ds.mu.Lock()
		delete(ds.subs, sub.handle)
		ds.mu.Unlock()
	}
	return nil
}

// Unsubscribe implements Datastore.
func (m *Memory) Unsubscribe(h Handle) error {
	sub, ok := m.subs.LoadAndDelete(h)
	if !ok {
		return fmt.Errorf("%w: %v", ErrHandleNotFound, h)
	}
	sub.detach()
	sub.stop()
	m.debugLog("datastore unsubscribe", "handle", h)
	return nil
}

// Kill ends a subscription from the datastore side: the callback receives
// EventTerminated after any pending events, and the handle is released.
func (m *Memory) Kill(h Handle, reason string) error {
	sub, ok := m.subs.LoadAndDelete(h)
	if !ok {
		return fmt.Errorf("%w: %v", ErrHandleNotFound, h)
	}
	sub.detach()
	sub.finish(Event{Kind: EventTerminated, Time: m.config.Now(), Reason: reason})
	m.debugLog("datastore kill", "handle", h, "reason", reason)
	return nil
}

// Subscriptions returns the number of live handles.
func (m *Memory) Subscriptions() int {
	return m.subs.Size()
}

// Publish appends a record to a stream and delivers it to the stream's
// subscribers. Record times never decrease within a stream.
func (m *Memory) Publish(name string, payload *tree.Node) (time.Time, error) {
	if payload == nil {
		return time.Time{}, fmt.Errorf("publish on %q: nil payload", name)
	}
	st, ok := m.streams.Load(name)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrNoSuchStream, name)
	}
	payload = payload.Clone()

	st.mu.Lock()
	defer st.mu.Unlock()

	at := m.config.Now()
	if at.Before(st.last) {
		at = st.last
	}
	st.appendLocked(record{at: at, payload: payload})

	for _, sub := range st.subs {
		sub.enqueue(Event{Kind: EventNotification, Time: at, Payload: payload})
	}
	m.capture.Log(log.RecordEvent(name, at, payload))
	return at, nil
}

func (st *stream) appendLocked(rec record) {
	st.last = rec.at
	if !st.cfg.Replay {
		return
	}
	st.history = append(st.history, rec)
	if over := len(st.history) - st.cfg.HistorySize; over > 0 {
		st.history = append(st.history[:0:0], st.history[over:]...)
	}
}

// LoadHistory seeds replay history from the stream records of a capture
// file. Records for unknown or non-replay streams, and records older than
// a stream's newest record, are skipped.
func (m *Memory) LoadHistory(path string) (int, error) {
	r, err := log.NewFilteredReader(path, log.Filter{})
	if err != nil {
		return 0, err
	}
	defer r.Close()

	loaded := 0
	err = r.ForEach(func(e log.Event) bool {
		if e.Record == nil {
			return true
		}
		st, ok := m.streams.Load(e.Record.Stream)
		if !ok || !st.cfg.Replay {
			return true
		}
		st.mu.Lock()
		if !e.Timestamp.Before(st.last) {
			st.appendLocked(record{at: e.Timestamp, payload: e.Record.Body})
			loaded++
		}
		st.mu.Unlock()
		return true
	})
	m.debugLog("replay history loaded", "path", path, "records", loaded)
	return loaded, err
}

// Get implements Datastore.
func (m *Memory) Get(ctx context.Context, datastore, path string) (*tree.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds, ok := m.stores.Load(datastore)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchDatastore, datastore)
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()

	n := ds.root.Find(path)
	if n == nil {
		return nil, fmt.Errorf("%s:%s: %w", datastore, path, tree.ErrNotFound)
	}
	return n.Clone(), nil
}

// Load replaces the content of a datastore without reporting changes.
func (m *Memory) Load(datastore string, root *tree.Node) error {
	ds, ok := m.stores.Load(datastore)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSuchDatastore, datastore)
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.root = tree.New("data")
	if root != nil {
		ds.root.Children = root.Clone().Children
	}
	return nil
}

// Set stores value in the leaf at path, creating missing nodes, and reports
// the edit to subscribers. Setting a leaf to its current value reports
// nothing.
func (m *Memory) Set(datastore, path string, value any) error {
	if err := tree.ValidatePath(path); err != nil {
		return err
	}
	ds, ok := m.stores.Load(datastore)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSuchDatastore, datastore)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	op := EditUpdate
	existing := ds.root.Find(path)
	switch {
	case existing == nil:
		op = EditCreate
	case existing.IsLeaf() && tree.ValueString(existing.Value) == tree.ValueString(value):
		return nil
	}

	n, err := ds.root.Ensure(path)
	if err != nil {
		return err
	}
	n.Value = value
	n.Children = nil

	m.dispatchLocked(ds, []Edit{{Op: op, Path: absPath(path), Value: n.Clone()}})
	return nil
}

// Delete removes the node at path and reports the edit.
func (m *Memory) Delete(datastore, path string) error {
	if err := tree.ValidatePath(path); err != nil {
		return err
	}
	ds, ok := m.stores.Load(datastore)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSuchDatastore, datastore)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	old := ds.root.Find(path)
	if old == nil {
		return fmt.Errorf("%s:%s: %w", datastore, path, tree.ErrNotFound)
	}
	if err := ds.root.Remove(path); err != nil {
		return err
	}
	m.dispatchLocked(ds, []Edit{{Op: EditDelete, Path: absPath(path), Value: old}})
	return nil
}

func (m *Memory) dispatchLocked(ds *store, edits []Edit) {
	at := m.config.Now()
	for _, sub := range ds.subs {
		var selected []Edit
		for _, e := range edits {
			if related(e.Path, sub.sel.Path) {
				selected = append(selected, e)
			}
		}
		if len(selected) > 0 {
			sub.enqueue(Event{Kind: EventChange, Time: at, Edits: selected})
		}
	}
}

func absPath(path string) string {
	return "/" + tree.JoinPath(tree.SplitPath(path))
}

// related reports whether one path is equal to or an ancestor of the other.
func related(a, b string) bool {
	as, bs := tree.SplitPath(a), tree.SplitPath(b)
	n := min(len(as), len(bs))
	for i := 0; i < n; i++ {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// Close releases every handle without notifying callbacks. Later
// Subscribe calls fail with ErrClosed.
func (m *Memory) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.subs.Range(func(h Handle, _ *subscriber) bool {
		if sub, ok := m.subs.LoadAndDelete(h); ok {
			sub.detach()
			sub.stop()
		}
		return true
	})
	return nil
}

var _ Datastore = (*Memory)(nil)
