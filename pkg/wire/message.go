package wire

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/AdianComits/netopeer2/pkg/tree"
)

// CBOR map keys for message encoding.
const (
	KeyMessageID  = 1
	KeyOpOrStatus = 2 // Operation (request) or Status (response)
	KeyPayload    = 3

	// Notification-specific keys (messageId=0 indicates notification)
	KeySubscriptionID = 2
	KeyKind           = 3
	KeyEventTime      = 4
	KeyBody           = 5
)

// MessageID 0 is reserved to indicate a notification message.
const NotificationMessageID uint32 = 0

// Request represents a request message from client to agent.
//
// CBOR encoding:
//
//	{
//	  1: messageId,    // uint32, never 0
//	  2: operation,    // uint8
//	  3: payload       // operation-specific payload (raw CBOR)
//	}
type Request struct {
	MessageID uint32          `cbor:"1,keyasint"`
	Operation Operation       `cbor:"2,keyasint"`
	Payload   cbor.RawMessage `cbor:"3,keyasint,omitempty"`
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.MessageID == NotificationMessageID {
		return fmt.Errorf("messageId 0 is reserved for notifications")
	}
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	return nil
}

// Response represents a response message from agent to client.
//
// CBOR encoding:
//
//	{
//	  1: messageId,    // uint32: matches request
//	  2: status,       // uint8: 0=success, or error code
//	  3: payload       // operation-specific response data or ErrorPayload
//	}
type Response struct {
	MessageID uint32          `cbor:"1,keyasint"`
	Status    Status          `cbor:"2,keyasint"`
	Payload   cbor.RawMessage `cbor:"3,keyasint,omitempty"`
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// NotificationKind identifies what a notification carries.
type NotificationKind uint8

const (
	// KindEvent is an event record delivered by a stream subscription.
	KindEvent NotificationKind = 1

	// KindPushUpdate is a periodic or initial snapshot of a datastore subtree.
	KindPushUpdate NotificationKind = 2

	// KindPushChangeUpdate is a coalesced on-change delta.
	KindPushChangeUpdate NotificationKind = 3

	// KindReplayCompleted marks the end of replayed events.
	KindReplayCompleted NotificationKind = 4

	// KindSubscriptionModified reports a successful modify.
	KindSubscriptionModified NotificationKind = 5

	// KindSubscriptionTerminated reports a termination the subscriber did
	// not request (kill, datastore teardown, shutdown).
	KindSubscriptionTerminated NotificationKind = 6

	// KindSubscriptionCompleted reports that the stop time elapsed.
	KindSubscriptionCompleted NotificationKind = 7
)

// String returns the notification kind name.
func (k NotificationKind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindPushUpdate:
		return "push-update"
	case KindPushChangeUpdate:
		return "push-change-update"
	case KindReplayCompleted:
		return "replay-completed"
	case KindSubscriptionModified:
		return "subscription-modified"
	case KindSubscriptionTerminated:
		return "subscription-terminated"
	case KindSubscriptionCompleted:
		return "subscription-completed"
	default:
		return "unknown"
	}
}

// IsLifecycle reports whether the kind is a subscription state change
// rather than data.
func (k NotificationKind) IsLifecycle() bool {
	return k >= KindReplayCompleted
}

// Notification represents a notification from agent to client.
//
// CBOR encoding:
//
//	{
//	  1: 0,                // messageId 0 = notification
//	  2: subscriptionId,   // uint32
//	  3: kind,             // uint8
//	  4: eventTime,        // RFC 3339 nano
//	  5: body              // tree node
//	}
type Notification struct {
	SubscriptionID uint32           `cbor:"2,keyasint"`
	Kind           NotificationKind `cbor:"3,keyasint"`
	EventTime      time.Time        `cbor:"4,keyasint"`
	Body           *tree.Node       `cbor:"5,keyasint,omitempty"`
}

// FilterSpec selects a filter for a subscription: a named filter from the
// filter store, or an inline subtree or path expression. At most one field
// may be set.
//
// CBOR encoding:
//
//	{
//	  1: name,      // text
//	  2: subtree,   // tree node
//	  3: xpath      // text
//	}
type FilterSpec struct {
	Name    string     `cbor:"1,keyasint,omitempty"`
	Subtree *tree.Node `cbor:"2,keyasint,omitempty"`
	XPath   string     `cbor:"3,keyasint,omitempty"`
}

// HelloPayload identifies the client of a session. Version is the
// protocol version the client speaks; empty means the agent's own.
type HelloPayload struct {
	User    string   `cbor:"1,keyasint"`
	Groups  []string `cbor:"2,keyasint,omitempty"`
	Version string   `cbor:"3,keyasint,omitempty"`
}

// HelloResponsePayload carries the session id assigned by the agent and
// the protocol version it speaks.
type HelloResponsePayload struct {
	SessionID  string `cbor:"1,keyasint"`
	Privileged bool   `cbor:"2,keyasint,omitempty"`
	Version    string `cbor:"3,keyasint,omitempty"`
}

// PeriodicPayload selects periodic push.
//
// CBOR encoding:
//
//	{
//	  1: period,      // uint32: ms between updates
//	  2: anchorTime   // optional alignment point
//	}
type PeriodicPayload struct {
	Period     uint32     `cbor:"1,keyasint"`
	AnchorTime *time.Time `cbor:"2,keyasint,omitempty"`
}

// OnChangePayload selects on-change push.
//
// CBOR encoding:
//
//	{
//	  1: dampeningPeriod,  // uint32: ms, 0 = deliver immediately
//	  2: syncOnStart,      // bool: send a full push-update first
//	  3: excludedChanges   // array of "create", "update", "delete"
//	}
type OnChangePayload struct {
	DampeningPeriod uint32   `cbor:"1,keyasint,omitempty"`
	SyncOnStart     bool     `cbor:"2,keyasint,omitempty"`
	ExcludedChanges []string `cbor:"3,keyasint,omitempty"`
}

// EstablishPayload is the payload of an Establish request. A stream
// subscription sets Stream; a datastore push subscription sets Datastore
// and exactly one of Periodic or OnChange.
//
// CBOR encoding:
//
//	{
//	  1: stopTime,         // optional
//	  2: filter,           // FilterSpec
//	  3: stream,           // text
//	  4: replayStartTime,  // optional
//	  5: datastore,        // text
//	  6: path,             // datastore selection root
//	  7: periodic,         // PeriodicPayload
//	  8: onChange          // OnChangePayload
//	}
type EstablishPayload struct {
	StopTime        *time.Time       `cbor:"1,keyasint,omitempty"`
	Filter          *FilterSpec      `cbor:"2,keyasint,omitempty"`
	Stream          string           `cbor:"3,keyasint,omitempty"`
	ReplayStartTime *time.Time       `cbor:"4,keyasint,omitempty"`
	Datastore       string           `cbor:"5,keyasint,omitempty"`
	Path            string           `cbor:"6,keyasint,omitempty"`
	Periodic        *PeriodicPayload `cbor:"7,keyasint,omitempty"`
	OnChange        *OnChangePayload `cbor:"8,keyasint,omitempty"`
}

// EstablishResponsePayload is returned for a successful Establish.
type EstablishResponsePayload struct {
	SubscriptionID          uint32     `cbor:"1,keyasint"`
	ReplayStartTimeRevision *time.Time `cbor:"2,keyasint,omitempty"`
}

// ModifyPayload is the payload of a Modify request. Zero-valued fields
// leave the corresponding setting unchanged.
type ModifyPayload struct {
	SubscriptionID uint32           `cbor:"1,keyasint"`
	StopTime       *time.Time       `cbor:"2,keyasint,omitempty"`
	Filter         *FilterSpec      `cbor:"3,keyasint,omitempty"`
	Stream         string           `cbor:"4,keyasint,omitempty"`
	Path           string           `cbor:"5,keyasint,omitempty"`
	Periodic       *PeriodicPayload `cbor:"6,keyasint,omitempty"`
	OnChange       *OnChangePayload `cbor:"7,keyasint,omitempty"`
}

// DeletePayload is the payload of Delete and Kill requests.
type DeletePayload struct {
	SubscriptionID uint32 `cbor:"1,keyasint"`
}

// GetStatePayload is the payload of a GetState request.
// SubscriptionID 0 requests every subscription.
type GetStatePayload struct {
	SubscriptionID uint32 `cbor:"1,keyasint,omitempty"`
}

// FilterOperation is the change applied by ConfigureFilter.
type FilterOperation uint8

const (
	FilterCreate FilterOperation = 1
	FilterModify FilterOperation = 2
	FilterDelete FilterOperation = 3
)

// String returns the filter operation name.
func (o FilterOperation) String() string {
	switch o {
	case FilterCreate:
		return "create"
	case FilterModify:
		return "modify"
	case FilterDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ConfigureFilterPayload is the payload of a ConfigureFilter request.
// Filter.Name is ignored; the stored name is Name.
type ConfigureFilterPayload struct {
	Name      string          `cbor:"1,keyasint"`
	Operation FilterOperation `cbor:"2,keyasint"`
	Filter    *FilterSpec     `cbor:"3,keyasint,omitempty"`
}

// ErrorPayload represents additional error information in a response.
//
// CBOR encoding:
//
//	{
//	  1: message  // string: human-readable error message
//	}
type ErrorPayload struct {
	Message string `cbor:"1,keyasint,omitempty"`
}

// Millis converts a wire millisecond count to a duration.
func Millis(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ToMillis converts a duration to a wire millisecond count, saturating at
// the uint32 range.
func ToMillis(d time.Duration) uint32 {
	ms := d.Milliseconds()
	switch {
	case ms < 0:
		return 0
	case ms > int64(^uint32(0)):
		return ^uint32(0)
	default:
		return uint32(ms)
	}
}
