package agent

import (
	"fmt"
	"time"

	"github.com/AdianComits/netopeer2/pkg/datastore"
	"github.com/AdianComits/netopeer2/pkg/filter"
	"github.com/AdianComits/netopeer2/pkg/push"
	"github.com/AdianComits/netopeer2/pkg/stream"
	"github.com/AdianComits/netopeer2/pkg/subscription"
	"github.com/AdianComits/netopeer2/pkg/wire"
)

func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func filterRef(spec *wire.FilterSpec) filter.Ref {
	if spec == nil {
		return filter.Ref{}
	}
	return filter.Ref{Name: spec.Name, Subtree: spec.Subtree, Path: spec.XPath}
}

func filterRefPtr(spec *wire.FilterSpec) *filter.Ref {
	if spec == nil {
		return nil
	}
	ref := filterRef(spec)
	return &ref
}

// establishParams picks the discipline from the payload: a stream name
// selects the stream discipline, a datastore or an update mode selects
// push.
func establishParams(p *wire.EstablishPayload) (subscription.Tag, any, error) {
	isPush := p.Datastore != "" || p.Periodic != nil || p.OnChange != nil
	switch {
	case p.Stream != "" && isPush:
		return 0, nil, fmt.Errorf("%w: stream and datastore are mutually exclusive", subscription.ErrInvalidParameter)
	case p.Stream != "":
		if p.Path != "" {
			return 0, nil, fmt.Errorf("%w: path applies to datastore subscriptions only", subscription.ErrInvalidParameter)
		}
		return subscription.TagStream, stream.Params{
			Stream:      p.Stream,
			Filter:      filterRef(p.Filter),
			ReplayStart: timeOf(p.ReplayStartTime),
		}, nil
	case isPush:
		if p.ReplayStartTime != nil {
			return 0, nil, fmt.Errorf("%w: replay applies to stream subscriptions only", subscription.ErrInvalidParameter)
		}
		onChange, err := onChangeParams(p.OnChange)
		if err != nil {
			return 0, nil, err
		}
		return subscription.TagPush, push.Params{
			Datastore: p.Datastore,
			Path:      p.Path,
			Filter:    filterRef(p.Filter),
			Periodic:  periodicParams(p.Periodic),
			OnChange:  onChange,
		}, nil
	default:
		return 0, nil, fmt.Errorf("%w: stream or datastore required", subscription.ErrInvalidParameter)
	}
}

// modifyParams converts a modify payload for the discipline owning the
// subscription. It returns nil when only the stop time changes.
func modifyParams(tag subscription.Tag, p *wire.ModifyPayload) (any, error) {
	if p.Filter == nil && p.Stream == "" && p.Path == "" && p.Periodic == nil && p.OnChange == nil {
		return nil, nil
	}
	switch tag {
	case subscription.TagStream:
		if p.Path != "" || p.Periodic != nil || p.OnChange != nil {
			return nil, fmt.Errorf("%w: datastore parameters on a stream subscription", subscription.ErrInvalidParameter)
		}
		return stream.ModifyParams{Stream: p.Stream, Filter: filterRefPtr(p.Filter)}, nil
	case subscription.TagPush:
		if p.Stream != "" {
			return nil, fmt.Errorf("%w: stream on a datastore subscription", subscription.ErrInvalidParameter)
		}
		onChange, err := onChangeParams(p.OnChange)
		if err != nil {
			return nil, err
		}
		return push.ModifyParams{
			Path:     p.Path,
			Filter:   filterRefPtr(p.Filter),
			Periodic: periodicParams(p.Periodic),
			OnChange: onChange,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown discipline %v", subscription.ErrInternal, tag)
	}
}

func periodicParams(p *wire.PeriodicPayload) *push.Periodic {
	if p == nil {
		return nil
	}
	return &push.Periodic{Period: wire.Millis(p.Period), Anchor: timeOf(p.AnchorTime)}
}

func onChangeParams(p *wire.OnChangePayload) (*push.OnChange, error) {
	if p == nil {
		return nil, nil
	}
	out := &push.OnChange{
		Dampening:   wire.Millis(p.DampeningPeriod),
		SyncOnStart: p.SyncOnStart,
	}
	for _, name := range p.ExcludedChanges {
		op, err := datastore.ParseEditOp(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", subscription.ErrInvalidParameter, err)
		}
		out.ExcludedChanges = append(out.ExcludedChanges, op)
	}
	return out, nil
}
