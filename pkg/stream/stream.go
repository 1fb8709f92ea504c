package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/AdianComits/netopeer2/pkg/datastore"
	"github.com/AdianComits/netopeer2/pkg/filter"
	"github.com/AdianComits/netopeer2/pkg/subscription"
	"github.com/AdianComits/netopeer2/pkg/tree"
	"github.com/AdianComits/netopeer2/pkg/wire"
)

// Params are the establish parameters of a stream subscription.
type Params struct {
	Stream string
	Filter filter.Ref

	// ReplayStart requests retained records at or after this time.
	ReplayStart time.Time
}

// ModifyParams change a stream subscription. Empty Stream and nil Filter
// keep the current values; a zero Filter removes the filter.
type ModifyParams struct {
	Stream string
	Filter *filter.Ref
}

// Config configures the discipline.
type Config struct {
	Datastore datastore.Datastore
	Filters   *filter.Store

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// Discipline implements subscription.Discipline for event streams.
type Discipline struct {
	ds      datastore.Datastore
	filters *filter.Store
	logger  *slog.Logger
}

var _ subscription.Discipline = (*Discipline)(nil)

// New creates the discipline. A nil filter store only allows inline
// filters.
func New(config Config) *Discipline {
	filters := config.Filters
	if filters == nil {
		filters = filter.NewStore()
	}
	return &Discipline{ds: config.Datastore, filters: filters, logger: config.Logger}
}

func (d *Discipline) debugLog(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}

// state is the per-record discipline state. A filter-only modify installs
// a new state sharing the replay progress; a stream change starts without
// replay.
type state struct {
	stream         string
	replayStart    time.Time
	replayRevision time.Time
	replay         *replayProgress
}

type replayProgress struct {
	completed atomic.Bool
}

// Tag implements subscription.Discipline.
func (d *Discipline) Tag() subscription.Tag {
	return subscription.TagStream
}

// Establish implements subscription.Discipline.
func (d *Discipline) Establish(_ context.Context, rec *subscription.Record, params any) (subscription.Setup, error) {
	var p Params
	switch v := params.(type) {
	case Params:
		p = v
	case *Params:
		p = *v
	default:
		return subscription.Setup{}, fmt.Errorf("%w: stream parameters expected, got %T", subscription.ErrInvalidParameter, params)
	}

	f, err := subscription.ResolveFilter(d.filters, p.Filter)
	if err != nil {
		return subscription.Setup{}, err
	}
	info, err := d.streamInfo(p.Stream)
	if err != nil {
		return subscription.Setup{}, err
	}

	st := &state{stream: p.Stream, replayStart: p.ReplayStart, replay: &replayProgress{}}
	var opts datastore.SubscribeOptions
	if !p.ReplayStart.IsZero() {
		if !info.Replay {
			return subscription.Setup{}, fmt.Errorf("%w: replay-unsupported: stream %q", subscription.ErrInvalidParameter, p.Stream)
		}
		if p.ReplayStart.After(rec.Now()) {
			return subscription.Setup{}, fmt.Errorf("%w: replay start %s is in the future", subscription.ErrInvalidParameter, p.ReplayStart.Format(time.RFC3339Nano))
		}
		opts.ReplayFrom = p.ReplayStart
		if !info.Oldest.IsZero() && p.ReplayStart.Before(info.Oldest) {
			st.replayRevision = info.Oldest
			opts.ReplayFrom = info.Oldest
		}
	} else {
		st.replay.completed.Store(true)
	}

	rec.SetFilter(p.Filter, f)
	h, err := d.ds.Subscribe(datastore.Selector{Stream: p.Stream}, opts, rec.Callback())
	if err != nil {
		return subscription.Setup{}, fmt.Errorf("%w: subscribe to stream %q: %w", subscription.ErrResourceExhausted, p.Stream, err)
	}
	d.debugLog("stream subscription established", "id", rec.ID, "stream", p.Stream, "handle", h, "replay", !opts.ReplayFrom.IsZero())

	return subscription.Setup{
		Handles:             []datastore.Handle{h},
		Data:                st,
		ReplayStartRevision: st.replayRevision,
	}, nil
}

// Modify implements subscription.Discipline. Changing the stream replaces
// the handle; changing only the filter keeps it.
func (d *Discipline) Modify(_ context.Context, rec *subscription.Record, params any) (subscription.Setup, error) {
	var p ModifyParams
	switch v := params.(type) {
	case ModifyParams:
		p = v
	case *ModifyParams:
		p = *v
	default:
		return subscription.Setup{}, fmt.Errorf("%w: stream modify parameters expected, got %T", subscription.ErrInvalidParameter, params)
	}
	cur, ok := rec.Data().(*state)
	if !ok {
		return subscription.Setup{}, fmt.Errorf("%w: subscription %d has no stream state", subscription.ErrInternal, rec.ID)
	}

	ref := rec.FilterRef()
	f := rec.Filter()
	if p.Filter != nil {
		var err error
		if f, err = subscription.ResolveFilter(d.filters, *p.Filter); err != nil {
			return subscription.Setup{}, err
		}
		ref = *p.Filter
	}

	next := *cur
	handles := rec.Handles()
	if p.Stream != "" && p.Stream != cur.stream {
		if _, err := d.streamInfo(p.Stream); err != nil {
			return subscription.Setup{}, err
		}
		h, err := d.ds.Subscribe(datastore.Selector{Stream: p.Stream}, datastore.SubscribeOptions{}, rec.Callback())
		if err != nil {
			return subscription.Setup{}, fmt.Errorf("%w: subscribe to stream %q: %w", subscription.ErrResourceExhausted, p.Stream, err)
		}
		for _, old := range handles {
			if err := d.ds.Unsubscribe(old); err != nil && !errors.Is(err, datastore.ErrHandleNotFound) {
				d.debugLog("release replaced handle", "id", rec.ID, "handle", old, "error", err)
			}
		}
		handles = []datastore.Handle{h}
		next.stream = p.Stream
		// The replaced handle took any unfinished replay with it.
		next.replayStart, next.replayRevision = time.Time{}, time.Time{}
		next.replay = &replayProgress{}
		next.replay.completed.Store(true)
		d.debugLog("stream subscription moved", "id", rec.ID, "from", cur.stream, "to", p.Stream, "handle", h)
	}

	rec.SetFilter(ref, f)
	return subscription.Setup{Handles: handles, Data: &next}, nil
}

// AppendModified implements subscription.Discipline.
func (d *Discipline) AppendModified(rec *subscription.Record, body *tree.Node) {
	st, ok := rec.Data().(*state)
	if !ok {
		return
	}
	body.Add(tree.Leaf("stream", st.stream))
	if !st.replayStart.IsZero() {
		body.Add(tree.Leaf("replay-start-time", st.replayStart.Format(time.RFC3339Nano)))
	}
}

// AppendOperational implements subscription.Discipline.
func (d *Discipline) AppendOperational(rec *subscription.Record, out *tree.Node) {
	st, ok := rec.Data().(*state)
	if !ok {
		return
	}
	out.Add(tree.Leaf("stream", st.stream))
	if !st.replayStart.IsZero() {
		out.Add(tree.Leaf("replay-start-time", st.replayStart.Format(time.RFC3339Nano)))
		out.Add(tree.Leaf("replay-completed", st.replay.completed.Load()))
	}
	if !st.replayRevision.IsZero() {
		out.Add(tree.Leaf("replay-start-time-revision", st.replayRevision.Format(time.RFC3339Nano)))
	}
}

// Deliver implements subscription.Discipline.
func (d *Discipline) Deliver(rec *subscription.Record, h datastore.Handle, ev datastore.Event) {
	switch ev.Kind {
	case datastore.EventNotification:
		if rec.Admit(ev.Payload) {
			_ = rec.Send(wire.KindEvent, ev.Time, ev.Payload)
		}
	case datastore.EventReplayComplete:
		if st, ok := rec.Data().(*state); ok {
			st.replay.completed.Store(true)
		}
		_ = rec.Send(wire.KindReplayCompleted, ev.Time, tree.New("replay-completed", tree.Leaf("id", rec.ID)))
	case datastore.EventTerminated:
		d.debugLog("stream handle terminated by datastore", "id", rec.ID, "handle", h, "reason", ev.Reason)
		rec.Fail(subscription.ReasonDatastore)
	default:
		d.debugLog("unexpected stream event", "id", rec.ID, "kind", ev.Kind)
	}
}

// Terminate implements subscription.Discipline.
func (d *Discipline) Terminate(_ *subscription.Record, h datastore.Handle) error {
	return d.ds.Unsubscribe(h)
}

// Destroy implements subscription.Discipline. Stream state holds no
// resources beyond its handle.
func (d *Discipline) Destroy(rec *subscription.Record) {
	d.debugLog("stream subscription destroyed", "id", rec.ID)
}

func (d *Discipline) streamInfo(name string) (datastore.StreamInfo, error) {
	if name == "" {
		return datastore.StreamInfo{}, fmt.Errorf("%w: no stream", subscription.ErrInvalidParameter)
	}
	info, err := d.ds.Stream(name)
	if err != nil {
		if errors.Is(err, datastore.ErrNoSuchStream) {
			return datastore.StreamInfo{}, fmt.Errorf("%w: no-such-stream: %q", subscription.ErrInvalidParameter, name)
		}
		return datastore.StreamInfo{}, fmt.Errorf("%w: %w", subscription.ErrInternal, err)
	}
	return info, nil
}
