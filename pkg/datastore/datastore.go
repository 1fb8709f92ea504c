// Package datastore defines the low-level subscription API the delivery
// disciplines build on, and an in-memory implementation of it.
//
// A subscription is identified by a Handle. Events for a handle are
// delivered to its Callback asynchronously, one at a time and in order.
// Two kinds of source exist: named event streams, optionally keeping a
// replay history, and named datastores holding a tree whose edits are
// reported as change events.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AdianComits/netopeer2/pkg/tree"
)

// Datastore errors.
var (
	ErrHandleNotFound    = errors.New("datastore handle not found")
	ErrNoSuchStream      = errors.New("no such stream")
	ErrNoSuchDatastore   = errors.New("no such datastore")
	ErrReplayUnsupported = errors.New("stream does not support replay")
	ErrInvalidSelector   = errors.New("invalid selector")
	ErrClosed            = errors.New("datastore closed")
)

// Handle identifies one low-level subscription.
type Handle uint64

// String renders the handle for logs.
func (h Handle) String() string {
	return fmt.Sprintf("h%d", uint64(h))
}

// EventKind identifies what an Event carries.
type EventKind uint8

const (
	// EventNotification is a record published on an event stream.
	EventNotification EventKind = iota + 1
	// EventChange carries edits applied to a datastore.
	EventChange
	// EventSnapshot carries the selected subtree as it was when the
	// subscription started.
	EventSnapshot
	// EventReplayComplete follows the last replayed record.
	EventReplayComplete
	// EventTerminated reports that the datastore ended the subscription.
	// No further events follow.
	EventTerminated
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventNotification:
		return "notification"
	case EventChange:
		return "change"
	case EventSnapshot:
		return "snapshot"
	case EventReplayComplete:
		return "replay-complete"
	case EventTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// EditOp is the kind of change an Edit describes.
type EditOp uint8

const (
	EditCreate EditOp = iota + 1
	EditUpdate
	EditDelete
)

// String returns the edit operation name.
func (o EditOp) String() string {
	switch o {
	case EditCreate:
		return "create"
	case EditUpdate:
		return "update"
	case EditDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseEditOp parses an edit operation name.
func ParseEditOp(s string) (EditOp, error) {
	switch s {
	case "create":
		return EditCreate, nil
	case "update":
		return EditUpdate, nil
	case "delete":
		return EditDelete, nil
	default:
		return 0, fmt.Errorf("unknown edit operation %q", s)
	}
}

// Edit is one change to a datastore node. Path is absolute. Value is the
// new node for create and update, and the removed node for delete.
type Edit struct {
	Op    EditOp
	Path  string
	Value *tree.Node
}

// Event is delivered to a subscription callback.
type Event struct {
	Kind    EventKind
	Time    time.Time
	Payload *tree.Node
	Edits   []Edit

	// Replayed marks records delivered from history.
	Replayed bool

	// Reason explains EventTerminated.
	Reason string
}

// Selector chooses the source of a subscription: an event stream, or a
// datastore subtree.
type Selector struct {
	Stream    string
	Datastore string
	Path      string
}

func (s Selector) validate() error {
	switch {
	case s.Stream != "" && s.Datastore != "":
		return fmt.Errorf("%w: stream and datastore are mutually exclusive", ErrInvalidSelector)
	case s.Stream == "" && s.Datastore == "":
		return fmt.Errorf("%w: no stream or datastore", ErrInvalidSelector)
	}
	return nil
}

// SubscribeOptions modify how a subscription starts.
type SubscribeOptions struct {
	// ReplayFrom requests stream records at or after this time before
	// live delivery. Zero means no replay.
	ReplayFrom time.Time

	// InitialSnapshot requests an EventSnapshot before the first change.
	InitialSnapshot bool
}

// Callback receives events for a handle.
type Callback func(h Handle, ev Event)

// StreamInfo describes an event stream.
type StreamInfo struct {
	Name   string
	Replay bool

	// Oldest is the time of the oldest retained record; zero when the
	// history is empty.
	Oldest time.Time
}

// Datastore is the low-level subscription API used by the disciplines.
type Datastore interface {
	// Subscribe registers cb for events from sel. Replay, when requested,
	// and the switch to live delivery are atomic: every record is
	// delivered exactly once and in time order.
	Subscribe(sel Selector, opts SubscribeOptions, cb Callback) (Handle, error)

	// Unsubscribe releases a handle. Pending events are dropped; a
	// callback already running is not waited for.
	Unsubscribe(h Handle) error

	// Get returns a copy of the subtree at path.
	Get(ctx context.Context, datastore, path string) (*tree.Node, error)

	// Stream describes the named event stream.
	Stream(name string) (StreamInfo, error)
}
