package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/AdianComits/netopeer2/pkg/wire"
)

func decodeSlogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestSlogAdapterLogsMessageEvent(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	status := wire.StatusWrongOwner
	adapter.Log(Event{
		Timestamp: time.Now(),
		SessionID: "s-1",
		Direction: DirectionOut,
		Layer:     LayerWire,
		Message:   &MessageEvent{Type: MessageTypeResponse, MessageID: 7, Status: &status},
	})

	entry := decodeSlogLine(t, &buf)
	if entry["session"] != "s-1" {
		t.Errorf("session: got %v", entry["session"])
	}
	if entry["status"] != "WRONG_OWNER" {
		t.Errorf("status: got %v", entry["status"])
	}
	if entry["msg_id"] != float64(7) {
		t.Errorf("msg_id: got %v", entry["msg_id"])
	}
}

func TestSlogAdapterLogsStateChange(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, nil))).WithLevel(slog.LevelInfo)

	adapter.Log(SubscriptionStateEvent(5, "alice", "ACTIVE", "TERMINATED", "stop-time"))

	entry := decodeSlogLine(t, &buf)
	if entry["entity"] != "SUBSCRIPTION" || entry["new_state"] != "TERMINATED" {
		t.Errorf("state attrs: got %v", entry)
	}
	if entry["reason"] != "stop-time" {
		t.Errorf("reason: got %v", entry["reason"])
	}
	if entry["subscription"] != float64(5) {
		t.Errorf("subscription: got %v", entry["subscription"])
	}
}

func TestSlogAdapterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	adapter.Log(Event{Timestamp: time.Now()})
	if buf.Len() != 0 {
		t.Errorf("debug-level capture leaked at info level: %s", buf.String())
	}
}
