package log

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/AdianComits/netopeer2/pkg/tree"
)

var (
	logEncMode cbor.EncMode
	logDecMode cbor.DecMode
)

func init() {
	var err error

	// RFC 3339 with nanoseconds keeps the order of events captured in the
	// same millisecond.
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	logEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create log CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	logDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create log CBOR decoder mode: %v", err))
	}
}

// EncodeEvent encodes an Event to CBOR bytes.
func EncodeEvent(event Event) ([]byte, error) {
	return logEncMode.Marshal(event)
}

// DecodeEvent decodes CBOR bytes into an Event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := logDecMode.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// NewEncoder creates a CBOR encoder for events that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return logEncMode.NewEncoder(w)
}

// NewDecoder creates a CBOR decoder for events that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return logDecMode.NewDecoder(r)
}

// RecordEvent builds the event for a record appended to stream.
func RecordEvent(stream string, at time.Time, body *tree.Node) Event {
	return Event{
		Timestamp: at,
		Layer:     LayerDatastore,
		Category:  CategoryRecord,
		Record:    &StreamRecord{Stream: stream, Body: body},
	}
}

// SubscriptionStateEvent builds the event for a subscription state change.
func SubscriptionStateEvent(id uint32, user, oldState, newState, reason string) Event {
	return Event{
		Timestamp:      time.Now(),
		Layer:          LayerSubscription,
		Category:       CategoryState,
		User:           user,
		SubscriptionID: id,
		StateChange: &StateChangeEvent{
			Entity:   StateEntitySubscription,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
}
