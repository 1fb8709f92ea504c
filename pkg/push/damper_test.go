package push

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdianComits/netopeer2/pkg/datastore"
	"github.com/AdianComits/netopeer2/pkg/tree"
)

type batches struct {
	mu  sync.Mutex
	got [][]datastore.Edit
}

func (b *batches) flush(edits []datastore.Edit) {
	b.mu.Lock()
	b.got = append(b.got, edits)
	b.mu.Unlock()
}

func (b *batches) all() [][]datastore.Edit {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]datastore.Edit(nil), b.got...)
}

func update(path string, v any) datastore.Edit {
	segs := tree.SplitPath(path)
	return datastore.Edit{Op: datastore.EditUpdate, Path: path, Value: tree.Leaf(segs[len(segs)-1], v)}
}

func TestDamperCoalescesWindow(t *testing.T) {
	var b batches
	d := newDamper(80*time.Millisecond, b.flush)

	start := time.Now()
	d.Add([]datastore.Edit{update("/a/x", 1), update("/a/y", 1)})
	d.Add([]datastore.Edit{update("/a/x", 2)})
	d.Add([]datastore.Edit{update("/a/z", 1), update("/a/x", 3)})
	assert.Equal(t, 3, d.Pending())
	assert.Empty(t, b.all())

	require.Eventually(t, func() bool { return len(b.all()) == 1 }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	got := b.all()[0]
	require.Len(t, got, 3)
	assert.Equal(t, []string{"/a/x", "/a/y", "/a/z"}, []string{got[0].Path, got[1].Path, got[2].Path})
	assert.Equal(t, 3, got[0].Value.Value)
	assert.Equal(t, 0, d.Pending())

	// The next edit opens a new window.
	d.Add([]datastore.Edit{update("/a/y", 2)})
	require.Eventually(t, func() bool { return len(b.all()) == 2 }, time.Second, time.Millisecond)
	assert.Len(t, b.all()[1], 1)
}

func TestDamperZeroPeriodFlushesInline(t *testing.T) {
	var b batches
	d := newDamper(0, b.flush)

	d.Add([]datastore.Edit{update("/a", 1)})
	d.Add([]datastore.Edit{update("/a", 2)})
	d.Add(nil)

	got := b.all()
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[1][0].Value.Value)
}

func TestDamperSetPeriodShortensOpenWindow(t *testing.T) {
	var b batches
	d := newDamper(time.Hour, b.flush)
	d.Add([]datastore.Edit{update("/a", 1)})

	d.SetPeriod(20 * time.Millisecond)
	require.Eventually(t, func() bool { return len(b.all()) == 1 }, time.Second, time.Millisecond)
}

func TestDamperTakeAndStop(t *testing.T) {
	var b batches
	d := newDamper(time.Hour, b.flush)
	d.Add([]datastore.Edit{update("/a", 1)})
	taken := d.Take()
	require.Len(t, taken, 1)
	assert.Empty(t, b.all(), "taken edits are not flushed")

	d.Add([]datastore.Edit{update("/a", 2)})
	assert.Equal(t, 0, d.Pending(), "stopped damper accepts nothing")

	s := newDamper(time.Hour, b.flush)
	s.Add([]datastore.Edit{update("/b", 1)})
	s.Stop()
	assert.Equal(t, 0, s.Pending())
	assert.Empty(t, b.all())
}

func TestNextTick(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"anchor in future", anchor.Add(-time.Minute), anchor},
		{"at anchor", anchor, anchor.Add(10 * time.Second)},
		{"mid period", anchor.Add(25 * time.Second), anchor.Add(30 * time.Second)},
		{"on boundary", anchor.Add(30 * time.Second), anchor.Add(40 * time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextTick(tt.now, anchor, 10*time.Second))
		})
	}
}

func TestNextTickDistantAnchors(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 500, time.UTC)
	tests := []struct {
		name   string
		anchor time.Time
		period time.Duration
	}{
		{"year 1700", time.Date(1700, 1, 1, 0, 0, 0, 0, time.UTC), time.Second},
		{"year 1700 odd period", time.Date(1700, 1, 1, 0, 0, 0, 0, time.UTC), 7*time.Second + 3*time.Millisecond},
		{"year 1", time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute},
		{"unix epoch", time.Unix(0, 0).UTC(), 90 * time.Millisecond},
		{"nanoseconds borrow", now.Add(-time.Hour).Add(700), time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := nextTick(now, tt.anchor, tt.period)
			assert.True(t, next.After(now), "next %s not after %s", next, now)
			assert.LessOrEqual(t, next.Sub(now), tt.period)
		})
	}

	// Whole days since 1700 are a multiple of one second, so the tick
	// lands on the next whole second after now.
	assert.Equal(t, time.Date(2026, 10, 18, 12, 0, 1, 0, time.UTC),
		nextTick(now, time.Date(1700, 1, 1, 0, 0, 0, 0, time.UTC), time.Second))
}

func TestNextTickAnchorAtNow(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(time.Second), nextTick(now, now, time.Second))
	assert.Equal(t, now.Add(time.Nanosecond), nextTick(now, now.Add(time.Nanosecond), time.Second))
}

func TestTickerDistantAnchorKeepsPeriod(t *testing.T) {
	var (
		mu    sync.Mutex
		ticks int
	)
	tk := startTicker(time.Date(1700, 1, 1, 0, 0, 0, 0, time.UTC), 50*time.Millisecond, func() {
		mu.Lock()
		ticks++
		mu.Unlock()
	})
	time.Sleep(120 * time.Millisecond)
	tk.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, ticks, 4)
}

func TestTickerStops(t *testing.T) {
	var (
		mu    sync.Mutex
		ticks int
	)
	tk := startTicker(time.Now(), 10*time.Millisecond, func() {
		mu.Lock()
		ticks++
		mu.Unlock()
	})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ticks >= 2
	}, time.Second, time.Millisecond)

	tk.Stop()
	tk.Stop()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	after := ticks
	mu.Unlock()
	time.Sleep(40 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, after, ticks)
}
