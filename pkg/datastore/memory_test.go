package datastore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdianComits/netopeer2/pkg/log"
	"github.com/AdianComits/netopeer2/pkg/tree"
)

// collector gathers events delivered to a callback.
type collector struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 1024)}
}

func (c *collector) callback(_ Handle, ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.notify <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		if len(c.events) >= n {
			out := append([]Event(nil), c.events...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events", n)
		}
	}
}

// fakeClock returns a clock that advances one millisecond per call.
func fakeClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	cfg := DefaultMemoryConfig()
	cfg.Now = fakeClock()
	m, err := NewMemory(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func event(n int) *tree.Node {
	return tree.New("alarm", tree.Leaf("seq", n))
}

func TestMemoryStreamLiveDelivery(t *testing.T) {
	m := newTestMemory(t)
	c := newCollector()

	h, err := m.Subscribe(Selector{Stream: NETCONF}, SubscribeOptions{}, c.callback)
	require.NoError(t, err)
	assert.NotZero(t, h)

	for i := 1; i <= 3; i++ {
		_, err := m.Publish(NETCONF, event(i))
		require.NoError(t, err)
	}

	events := c.wait(t, 3)
	for i, ev := range events {
		assert.Equal(t, EventNotification, ev.Kind)
		assert.False(t, ev.Replayed)
		assert.Equal(t, i+1, ev.Payload.Child("seq").Value)
	}
}

func TestMemoryReplayBoundary(t *testing.T) {
	m := newTestMemory(t)

	var times []time.Time
	for i := 1; i <= 5; i++ {
		at, err := m.Publish(NETCONF, event(i))
		require.NoError(t, err)
		times = append(times, at)
	}

	c := newCollector()
	_, err := m.Subscribe(Selector{Stream: NETCONF}, SubscribeOptions{ReplayFrom: times[2]}, c.callback)
	require.NoError(t, err)

	// Records published concurrently with the switch to live delivery
	// must appear exactly once, after the replay marker.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 6; i <= 20; i++ {
			_, _ = m.Publish(NETCONF, event(i))
		}
	}()
	wg.Wait()

	events := c.wait(t, 3+1+15)
	require.Len(t, events, 19)

	var seqs []int
	marker := -1
	for i, ev := range events {
		if ev.Kind == EventReplayComplete {
			marker = i
			continue
		}
		seqs = append(seqs, ev.Payload.Child("seq").Value.(int))
		assert.Equal(t, marker < 0, ev.Replayed, "event %d", i)
	}
	assert.Equal(t, 3, marker)
	for i, s := range seqs {
		assert.Equal(t, i+3, s)
	}
}

func TestMemoryReplayUnsupported(t *testing.T) {
	cfg := DefaultMemoryConfig()
	cfg.Streams = append(cfg.Streams, StreamConfig{Name: "live"})
	m, err := NewMemory(cfg)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Subscribe(Selector{Stream: "live"}, SubscribeOptions{ReplayFrom: time.Now()}, func(Handle, Event) {})
	assert.ErrorIs(t, err, ErrReplayUnsupported)

	info, err := m.Stream("live")
	require.NoError(t, err)
	assert.False(t, info.Replay)
}

func TestMemoryHistoryBounded(t *testing.T) {
	cfg := MemoryConfig{
		Streams: []StreamConfig{{Name: "s", Replay: true, HistorySize: 2}},
		Now:     fakeClock(),
	}
	m, err := NewMemory(cfg)
	require.NoError(t, err)
	defer m.Close()

	var times []time.Time
	for i := 1; i <= 4; i++ {
		at, err := m.Publish("s", event(i))
		require.NoError(t, err)
		times = append(times, at)
	}
	info, err := m.Stream("s")
	require.NoError(t, err)
	assert.Equal(t, times[2], info.Oldest)
}

func TestMemorySelectorErrors(t *testing.T) {
	m := newTestMemory(t)
	cb := func(Handle, Event) {}

	_, err := m.Subscribe(Selector{}, SubscribeOptions{}, cb)
	assert.ErrorIs(t, err, ErrInvalidSelector)

	_, err = m.Subscribe(Selector{Stream: NETCONF, Datastore: Running}, SubscribeOptions{}, cb)
	assert.ErrorIs(t, err, ErrInvalidSelector)

	_, err = m.Subscribe(Selector{Stream: "nope"}, SubscribeOptions{}, cb)
	assert.ErrorIs(t, err, ErrNoSuchStream)

	_, err = m.Subscribe(Selector{Datastore: "candidate"}, SubscribeOptions{}, cb)
	assert.ErrorIs(t, err, ErrNoSuchDatastore)

	_, err = m.Subscribe(Selector{Datastore: Running, Path: "/a[1]"}, SubscribeOptions{}, cb)
	assert.ErrorIs(t, err, ErrInvalidSelector)
}

func TestMemoryChangeRouting(t *testing.T) {
	m := newTestMemory(t)
	require.NoError(t, m.Set(Running, "/interfaces/eth0/mtu", 1500))

	iface := newCollector()
	other := newCollector()
	_, err := m.Subscribe(Selector{Datastore: Running, Path: "/interfaces"}, SubscribeOptions{InitialSnapshot: true}, iface.callback)
	require.NoError(t, err)
	_, err = m.Subscribe(Selector{Datastore: Running, Path: "/system"}, SubscribeOptions{}, other.callback)
	require.NoError(t, err)

	require.NoError(t, m.Set(Running, "/interfaces/eth0/mtu", 9000))
	require.NoError(t, m.Set(Running, "/interfaces/eth0/mtu", 9000)) // unchanged
	require.NoError(t, m.Set(Running, "/system/hostname", "r1"))
	require.NoError(t, m.Delete(Running, "/interfaces/eth0"))

	events := iface.wait(t, 3)
	require.Len(t, events, 3)

	assert.Equal(t, EventSnapshot, events[0].Kind)
	assert.Equal(t, "1500", tree.ValueString(events[0].Payload.Find("eth0/mtu").Value))

	assert.Equal(t, EventChange, events[1].Kind)
	require.Len(t, events[1].Edits, 1)
	assert.Equal(t, EditUpdate, events[1].Edits[0].Op)
	assert.Equal(t, "/interfaces/eth0/mtu", events[1].Edits[0].Path)

	require.Len(t, events[2].Edits, 1)
	assert.Equal(t, EditDelete, events[2].Edits[0].Op)
	assert.Equal(t, "/interfaces/eth0", events[2].Edits[0].Path)

	sys := other.wait(t, 1)
	require.Len(t, sys, 1)
	assert.Equal(t, EditCreate, sys[0].Edits[0].Op)
}

func TestMemoryGet(t *testing.T) {
	m := newTestMemory(t)
	require.NoError(t, m.Load(Operational, tree.New("x", tree.New("system", tree.Leaf("uptime", 42)))))

	n, err := m.Get(context.Background(), Operational, "/system/uptime")
	require.NoError(t, err)
	assert.Equal(t, 42, n.Value)

	n.Value = 0
	again, err := m.Get(context.Background(), Operational, "/system/uptime")
	require.NoError(t, err)
	assert.Equal(t, 42, again.Value, "Get returns a copy")

	_, err = m.Get(context.Background(), Operational, "/missing")
	assert.ErrorIs(t, err, tree.ErrNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Get(ctx, Operational, "/system")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryUnsubscribe(t *testing.T) {
	m := newTestMemory(t)
	c := newCollector()

	h, err := m.Subscribe(Selector{Stream: NETCONF}, SubscribeOptions{}, c.callback)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Subscriptions())

	require.NoError(t, m.Unsubscribe(h))
	assert.Equal(t, 0, m.Subscriptions())
	assert.ErrorIs(t, m.Unsubscribe(h), ErrHandleNotFound)
	assert.ErrorIs(t, m.Unsubscribe(Handle(999)), ErrHandleNotFound)

	_, err = m.Publish(NETCONF, event(1))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	c.mu.Lock()
	assert.Empty(t, c.events)
	c.mu.Unlock()
}

func TestMemoryKill(t *testing.T) {
	m := newTestMemory(t)
	c := newCollector()

	h, err := m.Subscribe(Selector{Stream: NETCONF}, SubscribeOptions{}, c.callback)
	require.NoError(t, err)

	_, err = m.Publish(NETCONF, event(1))
	require.NoError(t, err)
	require.NoError(t, m.Kill(h, "stream removed"))

	events := c.wait(t, 2)
	require.Len(t, events, 2)
	assert.Equal(t, EventNotification, events[0].Kind)
	assert.Equal(t, EventTerminated, events[1].Kind)
	assert.Equal(t, "stream removed", events[1].Reason)

	assert.ErrorIs(t, m.Kill(h, "again"), ErrHandleNotFound)
}

func TestMemoryClose(t *testing.T) {
	m := newTestMemory(t)
	_, err := m.Subscribe(Selector{Stream: NETCONF}, SubscribeOptions{}, func(Handle, Event) {})
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, 0, m.Subscriptions())

	_, err = m.Subscribe(Selector{Stream: NETCONF}, SubscribeOptions{}, func(Handle, Event) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryLoadHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.cbor")
	fl, err := log.NewFileLogger(path)
	require.NoError(t, err)

	cfg := DefaultMemoryConfig()
	cfg.Now = fakeClock()
	cfg.Capture = fl
	src, err := NewMemory(cfg)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err := src.Publish(NETCONF, event(i))
		require.NoError(t, err)
	}
	require.NoError(t, src.Close())
	require.NoError(t, fl.Close())

	dst := newTestMemory(t)
	n, err := dst.LoadHistory(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	c := newCollector()
	_, err = dst.Subscribe(Selector{Stream: NETCONF}, SubscribeOptions{ReplayFrom: time.Unix(1, 0)}, c.callback)
	require.NoError(t, err)
	events := c.wait(t, 4)
	assert.Equal(t, EventReplayComplete, events[3].Kind)
}
