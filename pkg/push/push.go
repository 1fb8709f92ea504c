package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/AdianComits/netopeer2/pkg/datastore"
	"github.com/AdianComits/netopeer2/pkg/filter"
	"github.com/AdianComits/netopeer2/pkg/metrics"
	"github.com/AdianComits/netopeer2/pkg/subscription"
	"github.com/AdianComits/netopeer2/pkg/tree"
	"github.com/AdianComits/netopeer2/pkg/wire"
)

// Defaults for Config limits.
const (
	DefaultMinPeriod    = 10 * time.Millisecond
	DefaultMaxDampening = time.Hour
	DefaultReadTimeout  = 5 * time.Second
)

// Config configures the discipline.
type Config struct {
	Datastore datastore.Datastore
	Filters   *filter.Store

	// MinPeriod is the shortest periodic interval accepted.
	MinPeriod time.Duration

	// MaxDampening is the longest dampening period accepted.
	MaxDampening time.Duration

	// ReadTimeout bounds each periodic datastore read.
	ReadTimeout time.Duration

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// Discipline implements subscription.Discipline for datastore push.
type Discipline struct {
	config Config
	logger *slog.Logger
}

var _ subscription.Discipline = (*Discipline)(nil)

// New creates the discipline, filling unset limits with defaults.
func New(config Config) *Discipline {
	if config.Filters == nil {
		config.Filters = filter.NewStore()
	}
	if config.MinPeriod <= 0 {
		config.MinPeriod = DefaultMinPeriod
	}
	if config.MaxDampening <= 0 {
		config.MaxDampening = DefaultMaxDampening
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	return &Discipline{config: config, logger: config.Logger}
}

func (d *Discipline) debugLog(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}

// state is the per-record discipline state. Exactly one of ticker and
// damper is set, matching the mode in params.
type state struct {
	params Params
	ticker *ticker
	damper *damper
}

// Tag implements subscription.Discipline.
func (d *Discipline) Tag() subscription.Tag {
	return subscription.TagPush
}

// Establish implements subscription.Discipline.
func (d *Discipline) Establish(ctx context.Context, rec *subscription.Record, params any) (subscription.Setup, error) {
	var p Params
	switch v := params.(type) {
	case Params:
		p = v
	case *Params:
		p = *v
	default:
		return subscription.Setup{}, fmt.Errorf("%w: push parameters expected, got %T", subscription.ErrInvalidParameter, params)
	}
	if err := p.normalize(d.config); err != nil {
		return subscription.Setup{}, err
	}
	f, err := subscription.ResolveFilter(d.config.Filters, p.Filter)
	if err != nil {
		return subscription.Setup{}, err
	}

	st := &state{params: p}
	handles, err := d.start(ctx, rec, st, p.OnChange != nil && p.OnChange.SyncOnStart)
	if err != nil {
		return subscription.Setup{}, err
	}
	rec.SetFilter(p.Filter, f)
	d.debugLog("push subscription established", "id", rec.ID, "datastore", p.Datastore, "path", p.Path, "periodic", p.Periodic != nil)

	return subscription.Setup{Handles: handles, Data: st}, nil
}

// Modify implements subscription.Discipline. A dampening or filter change
// keeps the datastore handle; a path or mode change replaces it.
func (d *Discipline) Modify(ctx context.Context, rec *subscription.Record, params any) (subscription.Setup, error) {
	var m ModifyParams
	switch v := params.(type) {
	case ModifyParams:
		m = v
	case *ModifyParams:
		m = *v
	default:
		return subscription.Setup{}, fmt.Errorf("%w: push modify parameters expected, got %T", subscription.ErrInvalidParameter, params)
	}
	cur, ok := rec.Data().(*state)
	if !ok {
		return subscription.Setup{}, fmt.Errorf("%w: subscription %d has no push state", subscription.ErrInternal, rec.ID)
	}

	p := cur.params.merge(m)
	if err := p.normalize(d.config); err != nil {
		return subscription.Setup{}, err
	}
	ref, f := rec.FilterRef(), rec.Filter()
	if m.Filter != nil {
		var err error
		if f, err = subscription.ResolveFilter(d.config.Filters, *m.Filter); err != nil {
			return subscription.Setup{}, err
		}
		ref = *m.Filter
	}

	next := &state{params: p}
	handles := rec.Handles()
	var pending []datastore.Edit
	switch {
	case cur.damper != nil && p.OnChange != nil && p.Path == cur.params.Path:
		cur.damper.SetPeriod(p.OnChange.Dampening)
		next.damper = cur.damper
	default:
		var err error
		if handles, err = d.start(ctx, rec, next, false); err != nil {
			return subscription.Setup{}, err
		}
		pending = d.stop(rec, cur)
		d.debugLog("push subscription restarted", "id", rec.ID, "path", p.Path, "periodic", p.Periodic != nil)
	}

	rec.SetFilter(ref, f)
	setup := subscription.Setup{Handles: handles, Data: next}
	if len(pending) > 0 {
		setup.After = func() {
			rec.Run(func() { d.sendChanges(rec, pending) })
		}
	}
	return setup, nil
}

// start creates the runtime for st: a ticker for periodic mode, or a
// damper and a datastore handle for on-change mode.
func (d *Discipline) start(ctx context.Context, rec *subscription.Record, st *state, sync bool) ([]datastore.Handle, error) {
	p := st.params
	if p.Periodic != nil {
		if _, err := d.config.Datastore.Get(ctx, p.Datastore, "/"); err != nil {
			return nil, selectorError(p, err)
		}
		anchor := p.Periodic.Anchor
		if anchor.IsZero() {
			anchor = time.Now()
		}
		st.ticker = startTicker(anchor, p.Periodic.Period, func() {
			rec.Run(func() { d.tick(rec, st) })
		})
		return nil, nil
	}

	st.damper = newDamper(p.OnChange.Dampening, func(edits []datastore.Edit) {
		rec.Run(func() { d.sendChanges(rec, edits) })
	})
	h, err := d.config.Datastore.Subscribe(
		datastore.Selector{Datastore: p.Datastore, Path: p.Path},
		datastore.SubscribeOptions{InitialSnapshot: sync},
		rec.Callback(),
	)
	if err != nil {
		st.damper.Stop()
		return nil, selectorError(p, err)
	}
	return []datastore.Handle{h}, nil
}

// stop releases the runtime of a replaced state and returns the on-change
// edits still pending in its dampening window.
func (d *Discipline) stop(rec *subscription.Record, st *state) []datastore.Edit {
	st.ticker.Stop()
	if st.damper == nil {
		return nil
	}
	pending := st.damper.Take()
	for _, h := range rec.Handles() {
		if err := d.config.Datastore.Unsubscribe(h); err != nil && !errors.Is(err, datastore.ErrHandleNotFound) {
			d.debugLog("release replaced handle", "id", rec.ID, "handle", h, "error", err)
		}
	}
	return pending
}

func selectorError(p Params, err error) error {
	if errors.Is(err, datastore.ErrNoSuchDatastore) || errors.Is(err, datastore.ErrInvalidSelector) {
		return fmt.Errorf("%w: datastore %q path %q: %w", subscription.ErrInvalidParameter, p.Datastore, p.Path, err)
	}
	return fmt.Errorf("%w: subscribe to datastore %q: %w", subscription.ErrResourceExhausted, p.Datastore, err)
}

// tick sends one periodic push-update.
func (d *Discipline) tick(rec *subscription.Record, st *state) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.ReadTimeout)
	defer cancel()

	p := st.params
	data, err := d.config.Datastore.Get(ctx, p.Datastore, p.Path)
	switch {
	case errors.Is(err, tree.ErrNotFound):
		data = nil
	case err != nil:
		d.debugLog("periodic read failed", "id", rec.ID, "datastore", p.Datastore, "path", p.Path, "error", err)
		return
	}
	d.sendUpdate(rec, p, data, rec.Now())
}

// sendUpdate filters and access-checks a snapshot of the selected subtree
// and sends it as a push-update. A missing subtree sends empty contents.
func (d *Discipline) sendUpdate(rec *subscription.Record, p Params, data *tree.Node, at time.Time) {
	var roots []*tree.Node
	switch {
	case data == nil:
	case p.Path == "/":
		roots = data.Children
	default:
		roots = []*tree.Node{tree.Wrap(parentPath(p.Path), data)}
	}

	contents := tree.New("datastore-contents")
	if len(roots) > 0 {
		f := rec.Filter()
		var selected []*tree.Node
		for _, root := range roots {
			if n, ok := filter.Apply(f, root); ok {
				selected = append(selected, n)
			}
		}
		if len(selected) == 0 {
			rec.Exclude(metrics.CauseFilter)
			return
		}
		selected = slices.DeleteFunc(selected, func(n *tree.Node) bool { return !rec.Permit(n) })
		if len(selected) == 0 {
			rec.Exclude(metrics.CauseAccess)
			return
		}
		contents.Add(selected...)
	}

	body := tree.New("push-update",
		tree.Leaf("id", rec.ID),
		tree.Leaf("datastore", p.Datastore),
		tree.Leaf("path", p.Path),
		contents,
	)
	_ = rec.Send(wire.KindPushUpdate, at, body)
}

// sendChanges sends coalesced edits as a push-change-update.
func (d *Discipline) sendChanges(rec *subscription.Record, edits []datastore.Edit) {
	changes := tree.New("datastore-changes")
	for _, e := range edits {
		edit := tree.New("edit",
			tree.Leaf("operation", e.Op.String()),
			tree.Leaf("target", e.Path),
		)
		if e.Op != datastore.EditDelete && e.Value != nil {
			edit.Add(tree.New("value", e.Value.Clone()))
		}
		changes.Add(edit)
	}
	body := tree.New("push-change-update", tree.Leaf("id", rec.ID), changes)
	_ = rec.Send(wire.KindPushChangeUpdate, rec.Now(), body)
}

// admitEdits drops excluded change kinds, then edits rejected by the
// filter or the access check, which count as excluded.
func (d *Discipline) admitEdits(rec *subscription.Record, oc *OnChange, edits []datastore.Edit) []datastore.Edit {
	out := make([]datastore.Edit, 0, len(edits))
	for _, e := range edits {
		if oc.excludes(e.Op) {
			continue
		}
		if rec.Admit(tree.Wrap(parentPath(e.Path), e.Value.Clone())) {
			out = append(out, e)
		}
	}
	return out
}

// AppendModified implements subscription.Discipline.
func (d *Discipline) AppendModified(rec *subscription.Record, body *tree.Node) {
	st, ok := rec.Data().(*state)
	if !ok {
		return
	}
	appendParams(body, st.params)
}

// AppendOperational implements subscription.Discipline.
func (d *Discipline) AppendOperational(rec *subscription.Record, out *tree.Node) {
	st, ok := rec.Data().(*state)
	if !ok {
		return
	}
	appendParams(out, st.params)
	if st.damper != nil {
		out.Child("on-change").Add(tree.Leaf("pending-changes", st.damper.Pending()))
	}
}

func appendParams(out *tree.Node, p Params) {
	out.Add(tree.Leaf("datastore", p.Datastore), tree.Leaf("path", p.Path))
	if per := p.Periodic; per != nil {
		n := tree.New("periodic", tree.Leaf("period", per.Period.Milliseconds()))
		if !per.Anchor.IsZero() {
			n.Add(tree.Leaf("anchor-time", per.Anchor.Format(time.RFC3339Nano)))
		}
		out.Add(n)
		return
	}
	oc := p.OnChange
	n := tree.New("on-change",
		tree.Leaf("dampening-period", oc.Dampening.Milliseconds()),
		tree.Leaf("sync-on-start", oc.SyncOnStart),
	)
	for _, op := range oc.ExcludedChanges {
		n.Add(tree.Leaf("excluded-change", op.String()))
	}
	out.Add(n)
}

// Deliver implements subscription.Discipline.
func (d *Discipline) Deliver(rec *subscription.Record, h datastore.Handle, ev datastore.Event) {
	st, ok := rec.Data().(*state)
	if !ok || st.damper == nil {
		d.debugLog("push event without on-change state", "id", rec.ID, "handle", h, "kind", ev.Kind)
		return
	}
	switch ev.Kind {
	case datastore.EventSnapshot:
		d.sendUpdate(rec, st.params, ev.Payload, ev.Time)
	case datastore.EventChange:
		st.damper.Add(d.admitEdits(rec, st.params.OnChange, ev.Edits))
	case datastore.EventTerminated:
		d.debugLog("push handle terminated by datastore", "id", rec.ID, "handle", h, "reason", ev.Reason)
		rec.Fail(subscription.ReasonDatastore)
	default:
		d.debugLog("unexpected push event", "id", rec.ID, "kind", ev.Kind)
	}
}

// Terminate implements subscription.Discipline.
func (d *Discipline) Terminate(_ *subscription.Record, h datastore.Handle) error {
	return d.config.Datastore.Unsubscribe(h)
}

// Destroy implements subscription.Discipline. Pending edits are dropped.
func (d *Discipline) Destroy(rec *subscription.Record) {
	st, ok := rec.Data().(*state)
	if !ok {
		return
	}
	st.ticker.Stop()
	if st.damper != nil {
		st.damper.Stop()
	}
	d.debugLog("push subscription destroyed", "id", rec.ID)
}

func parentPath(p string) string {
	segs := tree.SplitPath(p)
	if len(segs) == 0 {
		return ""
	}
	return tree.JoinPath(segs[:len(segs)-1])
}
