package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/AdianComits/netopeer2/pkg/access"
	"github.com/AdianComits/netopeer2/pkg/datastore"
	"github.com/AdianComits/netopeer2/pkg/datastore/mocks"
	"github.com/AdianComits/netopeer2/pkg/filter"
	"github.com/AdianComits/netopeer2/pkg/subscription"
	"github.com/AdianComits/netopeer2/pkg/tree"
	"github.com/AdianComits/netopeer2/pkg/wire"
)

var alice = access.Identity{User: "alice"}

// inbox collects notifications sent to one subscriber.
type inbox struct {
	mu    sync.Mutex
	notes []wire.Notification
}

func (b *inbox) Send(n wire.Notification) error {
	b.mu.Lock()
	b.notes = append(b.notes, n)
	b.mu.Unlock()
	return nil
}

func (b *inbox) all() []wire.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]wire.Notification(nil), b.notes...)
}

func (b *inbox) waitFor(t *testing.T, n int) []wire.Notification {
	t.Helper()
	require.Eventually(t, func() bool { return len(b.all()) >= n }, 2*time.Second, 2*time.Millisecond,
		"waiting for %d notifications", n)
	return b.all()
}

// stepClock advances one millisecond per reading, starting an hour ago.
func stepClock() func() time.Time {
	var mu sync.Mutex
	now := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

type fixture struct {
	mem     *datastore.Memory
	filters *filter.Store
	mgr     *subscription.Manager
}

func newFixture(t *testing.T, checker access.Checker) *fixture {
	t.Helper()
	cfg := datastore.DefaultMemoryConfig()
	cfg.Streams = append(cfg.Streams, datastore.StreamConfig{Name: "live"})
	cfg.Now = stepClock()
	mem, err := datastore.NewMemory(cfg)
	require.NoError(t, err)

	filters := filter.NewStore()
	mcfg := subscription.DefaultConfig()
	if checker != nil {
		mcfg.Access = checker
	}
	mgr := subscription.NewManager(mcfg, New(Config{Datastore: mem, Filters: filters}))
	t.Cleanup(func() {
		mgr.Close()
		_ = mem.Close()
	})
	return &fixture{mem: mem, filters: filters, mgr: mgr}
}

func (f *fixture) establish(t *testing.T, p Params, b *inbox) subscription.EstablishResult {
	t.Helper()
	res, err := f.mgr.Establish(context.Background(), subscription.EstablishRequest{
		Identity: alice,
		Tag:      subscription.TagStream,
		Params:   p,
		Sender:   b,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) publish(t *testing.T, stream string, payload *tree.Node) time.Time {
	t.Helper()
	at, err := f.mem.Publish(stream, payload)
	require.NoError(t, err)
	return at
}

func alarm(seq int, severity string) *tree.Node {
	return tree.New("alarm", tree.Leaf("seq", seq), tree.Leaf("severity", severity))
}

func seqOf(n wire.Notification) int {
	return n.Body.Child("seq").Value.(int)
}

func TestReplayThenLive(t *testing.T) {
	f := newFixture(t, nil)

	var times []time.Time
	for i := 1; i <= 5; i++ {
		times = append(times, f.publish(t, datastore.NETCONF, alarm(i, "minor")))
	}

	// Live records race with the establish.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 6; i <= 12; i++ {
			_, _ = f.mem.Publish(datastore.NETCONF, alarm(i, "minor"))
		}
	}()

	b := &inbox{}
	res := f.establish(t, Params{Stream: datastore.NETCONF, ReplayStart: times[2]}, b)
	assert.True(t, res.ReplayStartRevision.IsZero())
	wg.Wait()

	notes := b.waitFor(t, 10+1)
	var seqs []int
	markers := 0
	var last time.Time
	for _, n := range notes {
		if n.Kind == wire.KindReplayCompleted {
			markers++
			continue
		}
		require.Equal(t, wire.KindEvent, n.Kind)
		assert.False(t, n.EventTime.Before(last), "event times never decrease")
		last = n.EventTime
		seqs = append(seqs, seqOf(n))
	}
	assert.Equal(t, 1, markers)
	assert.Equal(t, []int{3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, seqs)

	st, err := f.mgr.State(res.ID)
	require.NoError(t, err)
	assert.Equal(t, true, st.Discipline.Child("replay-completed").Value)
}

func TestReplayStartRevised(t *testing.T) {
	f := newFixture(t, nil)
	oldest := f.publish(t, datastore.NETCONF, alarm(1, "minor"))
	f.publish(t, datastore.NETCONF, alarm(2, "minor"))

	b := &inbox{}
	res := f.establish(t, Params{Stream: datastore.NETCONF, ReplayStart: oldest.Add(-time.Hour)}, b)
	assert.True(t, res.ReplayStartRevision.Equal(oldest))

	notes := b.waitFor(t, 3)
	assert.Equal(t, 1, seqOf(notes[0]))
	assert.Equal(t, wire.KindReplayCompleted, notes[2].Kind)

	st, err := f.mgr.State(res.ID)
	require.NoError(t, err)
	assert.Equal(t, oldest.Format(time.RFC3339Nano), st.Discipline.Child("replay-start-time-revision").Value)
}

func TestEstablishErrors(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.filters.Register("majors", mustPath(t, "/alarm[severity='major']")))

	tests := []struct {
		name   string
		params any
		want   error
	}{
		{"wrong params", "NETCONF", subscription.ErrInvalidParameter},
		{"no stream", Params{}, subscription.ErrInvalidParameter},
		{"unknown stream", Params{Stream: "nope"}, subscription.ErrInvalidParameter},
		{"replay unsupported", Params{Stream: "live", ReplayStart: time.Now().Add(-time.Minute)}, subscription.ErrInvalidParameter},
		{"replay in future", Params{Stream: datastore.NETCONF, ReplayStart: time.Now().Add(time.Hour)}, subscription.ErrInvalidParameter},
		{"unknown filter", Params{Stream: datastore.NETCONF, Filter: filter.Ref{Name: "minors"}}, subscription.ErrNotFound},
		{"two filters", Params{Stream: datastore.NETCONF, Filter: filter.Ref{Name: "majors", Path: "/alarm"}}, subscription.ErrInvalidParameter},
		{"bad path", Params{Stream: datastore.NETCONF, Filter: filter.Ref{Path: "alarm["}}, subscription.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.mgr.Establish(context.Background(), subscription.EstablishRequest{
				Identity: alice, Tag: subscription.TagStream, Params: tt.params, Sender: &inbox{},
			})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, f.mgr.Len())
			assert.Equal(t, 0, f.mem.Subscriptions())
		})
	}
}

func TestExcludedCount(t *testing.T) {
	denyHidden := access.CheckerFunc(func(_ access.Identity, p *tree.Node) bool {
		return p.Child("hidden") == nil
	})
	f := newFixture(t, denyHidden)
	require.NoError(t, f.filters.Register("majors", mustPath(t, "/alarm[severity='major']")))

	b := &inbox{}
	res := f.establish(t, Params{Stream: datastore.NETCONF, Filter: filter.Ref{Name: "majors"}}, b)

	const matching, nonMatching, denied = 4, 3, 2
	for i := 0; i < nonMatching; i++ {
		f.publish(t, datastore.NETCONF, alarm(i, "minor"))
	}
	for i := 0; i < denied; i++ {
		f.publish(t, datastore.NETCONF, alarm(i, "major").Add(tree.Leaf("hidden", true)))
	}
	for i := 0; i < matching; i++ {
		f.publish(t, datastore.NETCONF, alarm(i, "major"))
	}

	notes := b.waitFor(t, matching)
	assert.Len(t, notes, matching)

	st, err := f.mgr.State(res.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(nonMatching+denied), st.Excluded)
	assert.Equal(t, uint64(matching), st.Sent)
	assert.Equal(t, "majors", st.Filter)
}

func TestNamedFilterChangeKeepsResolvedFilter(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.filters.Register("majors", mustPath(t, "/alarm[severity='major']")))

	b := &inbox{}
	f.establish(t, Params{Stream: datastore.NETCONF, Filter: filter.Ref{Name: "majors"}}, b)
	require.NoError(t, f.filters.Unregister("majors"))

	f.publish(t, datastore.NETCONF, alarm(1, "minor"))
	f.publish(t, datastore.NETCONF, alarm(2, "major"))

	notes := b.waitFor(t, 1)
	assert.Equal(t, 2, seqOf(notes[0]))
}

func TestModifyFilterKeepsHandle(t *testing.T) {
	f := newFixture(t, nil)
	b := &inbox{}
	res := f.establish(t, Params{Stream: datastore.NETCONF}, b)

	err := f.mgr.Modify(context.Background(), subscription.ModifyRequest{
		ID: res.ID, Identity: alice, Params: ModifyParams{Filter: &filter.Ref{Path: "/alarm[severity='major']"}},
	})
	require.NoError(t, err)

	st, err := f.mgr.State(res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Handles, st.Handles)

	f.publish(t, datastore.NETCONF, alarm(1, "minor"))
	f.publish(t, datastore.NETCONF, alarm(2, "major"))

	notes := b.waitFor(t, 2)
	assert.Equal(t, wire.KindSubscriptionModified, notes[0].Kind)
	assert.Equal(t, datastore.NETCONF, notes[0].Body.Child("stream").Value)
	assert.Equal(t, 2, seqOf(notes[1]))
}

func TestModifyStreamReplacesHandle(t *testing.T) {
	f := newFixture(t, nil)
	b := &inbox{}
	res := f.establish(t, Params{Stream: datastore.NETCONF}, b)

	err := f.mgr.Modify(context.Background(), subscription.ModifyRequest{
		ID: res.ID, Identity: alice, Params: ModifyParams{Stream: "live"},
	})
	require.NoError(t, err)

	st, err := f.mgr.State(res.ID)
	require.NoError(t, err)
	require.Len(t, st.Handles, 1)
	assert.NotEqual(t, res.Handles[0], st.Handles[0])
	assert.Equal(t, 1, f.mem.Subscriptions())

	f.publish(t, datastore.NETCONF, alarm(1, "minor"))
	f.publish(t, "live", alarm(2, "minor"))

	notes := b.waitFor(t, 2)
	assert.Equal(t, 2, seqOf(notes[1]))

	err = f.mgr.Modify(context.Background(), subscription.ModifyRequest{
		ID: res.ID, Identity: alice, Params: ModifyParams{Stream: "nope"},
	})
	assert.ErrorIs(t, err, subscription.ErrInvalidParameter)
}

func TestDatastoreKillTerminates(t *testing.T) {
	f := newFixture(t, nil)
	b := &inbox{}
	res := f.establish(t, Params{Stream: datastore.NETCONF}, b)

	require.NoError(t, f.mem.Kill(res.Handles[0], "stream removed"))

	notes := b.waitFor(t, 1)
	assert.Equal(t, wire.KindSubscriptionTerminated, notes[0].Kind)
	assert.Equal(t, subscription.ReasonDatastore.String(), notes[0].Body.Child("reason").Value)
	require.Eventually(t, func() bool { return f.mgr.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTerminateReleasesHandle(t *testing.T) {
	f := newFixture(t, nil)
	res := f.establish(t, Params{Stream: datastore.NETCONF}, &inbox{})
	require.Equal(t, 1, f.mem.Subscriptions())

	require.NoError(t, f.mgr.Delete(res.ID, alice))
	assert.Equal(t, 0, f.mem.Subscriptions())
}

func TestEstablishSubscribeFailure(t *testing.T) {
	ds := mocks.NewMockDatastore(t)
	ds.EXPECT().Stream(datastore.NETCONF).Return(datastore.StreamInfo{Name: datastore.NETCONF}, nil)
	ds.EXPECT().Subscribe(mock.Anything, mock.Anything, mock.Anything).Return(0, datastore.ErrClosed)

	mgr := subscription.NewManager(subscription.DefaultConfig(), New(Config{Datastore: ds}))
	defer mgr.Close()

	_, err := mgr.Establish(context.Background(), subscription.EstablishRequest{
		Identity: alice, Tag: subscription.TagStream, Params: Params{Stream: datastore.NETCONF}, Sender: &inbox{},
	})
	assert.ErrorIs(t, err, subscription.ErrResourceExhausted)
	assert.True(t, errors.Is(err, datastore.ErrClosed))
	assert.Equal(t, 0, mgr.Len())
}

func TestModifyStreamDropsUnfinishedReplay(t *testing.T) {
	ds := mocks.NewMockDatastore(t)
	ds.EXPECT().Stream(datastore.NETCONF).Return(datastore.StreamInfo{Name: datastore.NETCONF, Replay: true}, nil)
	ds.EXPECT().Stream("live").Return(datastore.StreamInfo{Name: "live"}, nil)
	ds.EXPECT().Subscribe(mock.Anything, mock.Anything, mock.Anything).Return(datastore.Handle(7), nil).Once()
	ds.EXPECT().Subscribe(mock.Anything, mock.Anything, mock.Anything).Return(datastore.Handle(8), nil).Once()
	ds.EXPECT().Unsubscribe(datastore.Handle(7)).Return(nil)
	ds.EXPECT().Unsubscribe(datastore.Handle(8)).Return(nil)

	mgr := subscription.NewManager(subscription.DefaultConfig(), New(Config{Datastore: ds}))
	defer mgr.Close()

	b := &inbox{}
	res, err := mgr.Establish(context.Background(), subscription.EstablishRequest{
		Identity: alice,
		Tag:      subscription.TagStream,
		Params:   Params{Stream: datastore.NETCONF, ReplayStart: time.Now().Add(-time.Minute)},
		Sender:   b,
	})
	require.NoError(t, err)

	st, err := mgr.State(res.ID)
	require.NoError(t, err)
	assert.Equal(t, false, st.Discipline.Child("replay-completed").Value, "replay still running")

	require.NoError(t, mgr.Modify(context.Background(), subscription.ModifyRequest{
		ID: res.ID, Identity: alice, Params: ModifyParams{Stream: "live"},
	}))

	st, err = mgr.State(res.ID)
	require.NoError(t, err)
	assert.Equal(t, "live", st.Discipline.Child("stream").Value)
	assert.Nil(t, st.Discipline.Child("replay-start-time"))
	assert.Nil(t, st.Discipline.Child("replay-completed"))

	modified := b.all()
	require.Len(t, modified, 1)
	assert.Nil(t, modified[0].Body.Child("replay-start-time"))
}

func TestTerminateToleratesReleasedHandle(t *testing.T) {
	ds := mocks.NewMockDatastore(t)
	ds.EXPECT().Stream(datastore.NETCONF).Return(datastore.StreamInfo{Name: datastore.NETCONF}, nil)
	ds.EXPECT().Subscribe(mock.Anything, mock.Anything, mock.Anything).Return(datastore.Handle(7), nil)
	ds.EXPECT().Unsubscribe(datastore.Handle(7)).Return(datastore.ErrHandleNotFound)

	mgr := subscription.NewManager(subscription.DefaultConfig(), New(Config{Datastore: ds}))
	defer mgr.Close()

	res, err := mgr.Establish(context.Background(), subscription.EstablishRequest{
		Identity: alice, Tag: subscription.TagStream, Params: &Params{Stream: datastore.NETCONF}, Sender: &inbox{},
	})
	require.NoError(t, err)
	require.NoError(t, mgr.Terminate(res.ID, subscription.ReasonKilled))
	assert.Equal(t, 0, mgr.Len())
}

func mustPath(t *testing.T, expr string) *filter.Filter {
	t.Helper()
	f, err := filter.NewPath(expr)
	require.NoError(t, err)
	return f
}
