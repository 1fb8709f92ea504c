package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AdianComits/netopeer2/pkg/log"
)

// exportEvent is the JSON shape of an event: enums as names and payloads
// rendered as text.
type exportEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	SessionID      string    `json:"sessionId,omitempty"`
	Direction      string    `json:"direction"`
	Layer          string    `json:"layer"`
	Category       string    `json:"category"`
	RemoteAddr     string    `json:"remoteAddr,omitempty"`
	User           string    `json:"user,omitempty"`
	SubscriptionID uint32    `json:"subscriptionId,omitempty"`
	Type           string    `json:"type"`
	MessageID      *uint32   `json:"messageId,omitempty"`
	Operation      string    `json:"operation,omitempty"`
	Status         string    `json:"status,omitempty"`
	Kind           string    `json:"kind,omitempty"`
	Payload        string    `json:"payload,omitempty"`
	State          string    `json:"state,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Stream         string    `json:"stream,omitempty"`
	Error          string    `json:"error,omitempty"`
}

func toExport(event log.Event) exportEvent {
	out := exportEvent{
		Timestamp:      event.Timestamp.UTC(),
		SessionID:      event.SessionID,
		Direction:      event.Direction.String(),
		Layer:          event.Layer.String(),
		Category:       event.Category.String(),
		RemoteAddr:     event.RemoteAddr,
		User:           event.User,
		SubscriptionID: event.SubscriptionID,
		Type:           eventType(event),
	}
	switch {
	case event.Message != nil:
		m := event.Message
		if m.Type != log.MessageTypeNotification {
			id := m.MessageID
			out.MessageID = &id
		}
		if m.Operation != nil {
			out.Operation = m.Operation.String()
		}
		if m.Status != nil {
			out.Status = m.Status.String()
		}
		if m.Kind != nil {
			out.Kind = m.Kind.String()
		}
		if m.Payload != nil {
			out.Payload = formatPayload(m.Payload, m.Type == log.MessageTypeNotification)
		}
	case event.StateChange != nil:
		out.State = event.StateChange.NewState
		out.Reason = event.StateChange.Reason
	case event.Record != nil:
		out.Stream = event.Record.Stream
		if event.Record.Body != nil {
			out.Payload = formatPayload(event.Record.Body, true)
		}
	case event.Error != nil:
		out.Error = event.Error.Message
	}
	return out
}

func eventType(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "frame"
	case event.Message != nil:
		return strings.ToLower(event.Message.Type.String())
	case event.StateChange != nil:
		return "state"
	case event.Record != nil:
		return "record"
	case event.Error != nil:
		return "error"
	default:
		return "unknown"
	}
}

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	return forEach(reader, func(event log.Event) error {
		if err := encoder.Encode(toExport(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "session_id", "direction", "layer", "category", "user", "subscription_id", "type", "message_id"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	return forEach(reader, func(event log.Event) error {
		e := toExport(event)
		msgID, subID := "", ""
		if e.MessageID != nil {
			msgID = strconv.FormatUint(uint64(*e.MessageID), 10)
		}
		if e.SubscriptionID != 0 {
			subID = strconv.FormatUint(uint64(e.SubscriptionID), 10)
		}
		row := []string{
			e.Timestamp.Format("2006-01-02T15:04:05.000000Z"),
			e.SessionID,
			e.Direction,
			e.Layer,
			e.Category,
			e.User,
			subID,
			e.Type,
			msgID,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})
}

// forEach calls fn for every event, stopping at the first error.
func forEach(reader *log.Reader, fn func(log.Event) error) error {
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}
