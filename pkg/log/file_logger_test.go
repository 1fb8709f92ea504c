package log

import (
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AdianComits/netopeer2/pkg/tree"
)

func TestFileLoggerWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.mlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	base := time.Now()
	for i := 0; i < 3; i++ {
		logger.Log(RecordEvent("NETCONF", base.Add(time.Duration(i)*time.Second), tree.Leaf("seq", i)))
	}
	logger.Log(SubscriptionStateEvent(1, "alice", "PENDING", "ACTIVE", ""))
	if got := logger.Count(); got != 4 {
		t.Errorf("Count: got %d, want 4", got)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r, err := NewFilteredReader(path, Filter{Stream: "NETCONF"})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer r.Close()

	var n int
	if err := r.ForEach(func(e Event) bool {
		n++
		return true
	}); err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	if n != 3 {
		t.Errorf("stream records: got %d, want 3", n)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.mlog")

	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(SubscriptionStateEvent(uint32(i+1), "", "", "ACTIVE", ""))
		logger.Close()
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	for want := uint32(1); want <= 2; want++ {
		e, err := r.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if e.SubscriptionID != want {
			t.Errorf("SubscriptionID: got %d, want %d", e.SubscriptionID, want)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFileLoggerClosedIgnoresLog(t *testing.T) {
	logger, err := NewFileLogger(filepath.Join(t.TempDir(), "agent.mlog"))
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Close()
	logger.Log(Event{Timestamp: time.Now()})

	if logger.Count() != 0 {
		t.Error("event counted after Close")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	logger, err := NewFileLogger(filepath.Join(t.TempDir(), "agent.mlog"))
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				logger.Log(Event{Timestamp: time.Now(), Layer: LayerWire})
			}
		}()
	}
	wg.Wait()

	if got := logger.Count(); got != 400 {
		t.Errorf("Count: got %d, want 400", got)
	}
}

func TestFilterMatches(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Minute)
	state := CategoryState
	out := DirectionOut

	event := SubscriptionStateEvent(3, "alice", "ACTIVE", "TERMINATED", "")
	event.Timestamp = now

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"subscription", Filter{SubscriptionID: 3}, true},
		{"other subscription", Filter{SubscriptionID: 4}, false},
		{"user", Filter{User: "alice"}, true},
		{"stream excludes non-records", Filter{Stream: "NETCONF"}, false},
		{"category", Filter{Category: &state}, true},
		{"direction", Filter{Direction: &out}, false},
		{"time window", Filter{TimeStart: &now, TimeEnd: &later}, true},
		{"end is exclusive", Filter{TimeEnd: &now}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(event); got != tt.want {
				t.Errorf("Matches: got %v, want %v", got, tt.want)
			}
		})
	}
}
