package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AdianComits/netopeer2/pkg/datastore"
	"github.com/AdianComits/netopeer2/pkg/filter"
	"github.com/AdianComits/netopeer2/pkg/tree"
)

// Setup is what an establish or modify hook hands back to the Manager.
type Setup struct {
	// Handles replace the record's backing handles. A modify hook that
	// keeps its handles returns rec.Handles().
	Handles []datastore.Handle

	// Data replaces the discipline state returned by Record.Data.
	Data any

	// ReplayStartRevision is set when the requested replay start predates
	// the oldest retained record and was moved forward.
	ReplayStartRevision time.Time

	// After, when set by a modify hook, runs once the registry lock is
	// released and before subscription-modified is sent. Hooks use it to
	// deliver output produced under the replaced parameters.
	After func()
}

// Discipline is a delivery discipline. Hooks other than Deliver and
// Destroy run with the registry lock held and must not call the Manager.
type Discipline interface {
	// Tag identifies the discipline.
	Tag() Tag

	// Establish validates params, installs the record's filter and creates
	// backing handles with rec.Callback(). On error it must release every
	// handle it created.
	Establish(ctx context.Context, rec *Record, params any) (Setup, error)

	// Modify applies params to an active record. On error the record must
	// be left as it was.
	Modify(ctx context.Context, rec *Record, params any) (Setup, error)

	// AppendModified adds discipline fields to a subscription-modified body.
	AppendModified(rec *Record, body *tree.Node)

	// AppendOperational adds discipline fields to operational state.
	AppendOperational(rec *Record, state *tree.Node)

	// Deliver handles an event from one of the record's handles. It runs
	// with a delivery reference held and without the registry lock.
	Deliver(rec *Record, h datastore.Handle, ev datastore.Event)

	// Terminate releases one backing handle. datastore.ErrHandleNotFound
	// means the handle was already gone.
	Terminate(rec *Record, h datastore.Handle) error

	// Destroy releases discipline state once deliveries have drained.
	Destroy(rec *Record)
}

// ResolveFilter resolves a filter ref for a hook, mapping filter store
// errors to ErrNotFound (unknown name) or ErrInvalidParameter.
func ResolveFilter(store *filter.Store, ref filter.Ref) (*filter.Filter, error) {
	f, err := store.ResolveRef(ref)
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, filter.ErrFilterNotFound):
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
}
