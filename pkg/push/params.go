package push

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/AdianComits/netopeer2/pkg/datastore"
	"github.com/AdianComits/netopeer2/pkg/filter"
	"github.com/AdianComits/netopeer2/pkg/subscription"
	"github.com/AdianComits/netopeer2/pkg/tree"
)

// Periodic selects periodic mode.
type Periodic struct {
	Period time.Duration

	// Anchor aligns ticks to Anchor + k*Period. Zero anchors at establish.
	Anchor time.Time
}

// OnChange selects on-change mode.
type OnChange struct {
	// Dampening is the window length; zero sends every change at once.
	Dampening time.Duration

	// SyncOnStart sends a push-update with the current content first.
	SyncOnStart bool

	// ExcludedChanges lists edit operations never reported.
	ExcludedChanges []datastore.EditOp
}

func (o *OnChange) excludes(op datastore.EditOp) bool {
	return slices.Contains(o.ExcludedChanges, op)
}

// Params are the establish parameters of a push subscription. Exactly one
// of Periodic and OnChange must be set.
type Params struct {
	// Datastore defaults to datastore.Running.
	Datastore string

	// Path selects the subtree; empty selects the whole datastore.
	Path   string
	Filter filter.Ref

	Periodic *Periodic
	OnChange *OnChange
}

// ModifyParams change a push subscription. Empty Path and nil fields keep
// current values. Setting the other mode's field switches modes.
type ModifyParams struct {
	Path     string
	Filter   *filter.Ref
	Periodic *Periodic
	OnChange *OnChange
}

func (p *Params) normalize(cfg Config) error {
	if p.Datastore == "" {
		p.Datastore = datastore.Running
	}
	p.Path = cleanPath(p.Path)
	if p.Path != "/" {
		if err := tree.ValidatePath(p.Path); err != nil {
			return fmt.Errorf("%w: path %q: %w", subscription.ErrInvalidParameter, p.Path, err)
		}
	}
	switch {
	case p.Periodic != nil && p.OnChange != nil:
		return fmt.Errorf("%w: periodic and on-change are mutually exclusive", subscription.ErrInvalidParameter)
	case p.Periodic == nil && p.OnChange == nil:
		return fmt.Errorf("%w: periodic or on-change required", subscription.ErrInvalidParameter)
	case p.Periodic != nil:
		if p.Periodic.Period < cfg.MinPeriod {
			return fmt.Errorf("%w: period %s below minimum %s", subscription.ErrInvalidParameter, p.Periodic.Period, cfg.MinPeriod)
		}
	default:
		if p.OnChange.Dampening < 0 || p.OnChange.Dampening > cfg.MaxDampening {
			return fmt.Errorf("%w: dampening period %s outside [0, %s]", subscription.ErrInvalidParameter, p.OnChange.Dampening, cfg.MaxDampening)
		}
	}
	return nil
}

// merge applies m to a copy of p.
func (p Params) merge(m ModifyParams) Params {
	if m.Path != "" {
		p.Path = m.Path
	}
	if m.Filter != nil {
		p.Filter = *m.Filter
	}
	switch {
	case m.Periodic != nil:
		per := *m.Periodic
		p.Periodic, p.OnChange = &per, nil
	case m.OnChange != nil:
		oc := *m.OnChange
		p.Periodic, p.OnChange = nil, &oc
	}
	return p
}

func cleanPath(p string) string {
	segs := tree.SplitPath(p)
	if len(segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(segs, "/")
}
