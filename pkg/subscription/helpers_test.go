package subscription

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AdianComits/netopeer2/pkg/access"
	"github.com/AdianComits/netopeer2/pkg/datastore"
	"github.com/AdianComits/netopeer2/pkg/filter"
	"github.com/AdianComits/netopeer2/pkg/tree"
	"github.com/AdianComits/netopeer2/pkg/wire"
)

// fakeParams configure fakeDiscipline hooks.
type fakeParams struct {
	handles int
	filter  filter.Ref
	label   string
	// use replaces the synthetic handles when set.
	use []datastore.Handle
}

// fakeDiscipline hands out synthetic handles and delivers events whose
// payload passes Admit.
type fakeDiscipline struct {
	next atomic.Uint64

	establishErr error
	modifyErr    error
	terminateErr error

	// deliver overrides the default delivery when set.
	deliver func(rec *Record, h datastore.Handle, ev datastore.Event)

	mu         sync.Mutex
	terminated []datastore.Handle
	destroyed  map[uint32]int
}

func newFakeDiscipline() *fakeDiscipline {
	return &fakeDiscipline{destroyed: make(map[uint32]int)}
}

func (d *fakeDiscipline) Tag() Tag { return TagStream }

func (d *fakeDiscipline) setup(rec *Record, params any) (Setup, error) {
	p, _ := params.(fakeParams)
	if p.handles == 0 {
		p.handles = 1
	}
	f, err := filter.Parse(p.filter)
	if err != nil {
		return Setup{}, err
	}
	hs := make([]datastore.Handle, p.handles)
	for i := range hs {
		hs[i] = datastore.Handle(d.next.Add(1))
	}
	if p.use != nil {
		hs = p.use
	}
	rec.SetFilter(p.filter, f)
	return Setup{Handles: hs, Data: p}, nil
}

func (d *fakeDiscipline) Establish(_ context.Context, rec *Record, params any) (Setup, error) {
	if d.establishErr != nil {
		return Setup{}, d.establishErr
	}
	return d.setup(rec, params)
}

func (d *fakeDiscipline) Modify(_ context.Context, rec *Record, params any) (Setup, error) {
	if d.modifyErr != nil {
		return Setup{}, d.modifyErr
	}
	old := rec.Handles()
	s, err := d.setup(rec, params)
	if err != nil {
		return Setup{}, err
	}
	for _, h := range old {
		_ = d.Terminate(rec, h)
	}
	return s, nil
}

func (d *fakeDiscipline) AppendModified(rec *Record, body *tree.Node) {
	if p, ok := rec.Data().(fakeParams); ok && p.label != "" {
		body.Add(tree.Leaf("label", p.label))
	}
}

func (d *fakeDiscipline) AppendOperational(rec *Record, state *tree.Node) {
	if p, ok := rec.Data().(fakeParams); ok {
		state.Add(tree.Leaf("label", p.label))
	}
}

func (d *fakeDiscipline) Deliver(rec *Record, h datastore.Handle, ev datastore.Event) {
	if d.deliver != nil {
		d.deliver(rec, h, ev)
		return
	}
	if rec.Admit(ev.Payload) {
		_ = rec.Send(wire.KindEvent, ev.Time, ev.Payload)
	}
}

func (d *fakeDiscipline) Terminate(_ *Record, h datastore.Handle) error {
	d.mu.Lock()
	d.terminated = append(d.terminated, h)
	d.mu.Unlock()
	return d.terminateErr
}

func (d *fakeDiscipline) Destroy(rec *Record) {
	d.mu.Lock()
	d.destroyed[rec.ID]++
	d.mu.Unlock()
}

func (d *fakeDiscipline) destroyCount(id uint32) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed[id]
}

func (d *fakeDiscipline) terminatedHandles() []datastore.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]datastore.Handle(nil), d.terminated...)
}

// recorder is a Sender keeping every notification.
type recorder struct {
	mu    sync.Mutex
	notes []wire.Notification
}

func (r *recorder) Send(n wire.Notification) error {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
	return nil
}

func (r *recorder) all() []wire.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wire.Notification(nil), r.notes...)
}

func (r *recorder) kinds() []wire.NotificationKind {
	var out []wire.NotificationKind
	for _, n := range r.all() {
		out = append(out, n.Kind)
	}
	return out
}

var (
	alice = access.Identity{User: "alice"}
	bob   = access.Identity{User: "bob"}
	admin = access.Identity{User: "root", Privileged: true}
)

func newTestManager(t *testing.T, cfg Config) (*Manager, *fakeDiscipline) {
	t.Helper()
	d := newFakeDiscipline()
	m := NewManager(cfg, d)
	t.Cleanup(m.Close)
	return m, d
}

func establish(t *testing.T, m *Manager, id access.Identity, params any, s Sender) EstablishResult {
	t.Helper()
	res, err := m.Establish(context.Background(), EstablishRequest{
		Identity: id,
		Tag:      TagStream,
		Params:   params,
		Sender:   s,
	})
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}
	return res
}

func event(name string, leaves ...*tree.Node) datastore.Event {
	return datastore.Event{
		Kind:    datastore.EventNotification,
		Time:    time.Now(),
		Payload: tree.New(name, leaves...),
	}
}
