package logger

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type recordingHub struct {
	mu       sync.Mutex
	messages []string
}

func (h *recordingHub) Broadcast(msgType string, payload any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgType)
	return nil
}

func TestRingBufferOverwritesOldest(t *testing.T) {
	rb := NewRingBuffer[int](3)
	for i := 1; i <= 5; i++ {
		rb.Push(i)
	}

	got := rb.GetAll()
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("GetAll() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("GetAll()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if rb.Len() != 3 {
		t.Errorf("Len() = %d, want 3", rb.Len())
	}
}

func TestRingBufferPartial(t *testing.T) {
	rb := NewRingBuffer[string](4)
	rb.Push("a")
	rb.Push("b")

	got := rb.GetAll()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("GetAll() = %v, want [a b]", got)
	}
}

func TestLogBroadcasterParsesAndForwards(t *testing.T) {
	hub := &recordingHub{}
	b := NewLogBroadcaster(nil, 10)

	log := zerolog.New(b).With().Timestamp().Str("component", "bridge").Logger()
	log.Info().Str("token", "abc").Msg("search started")

	b.SetHub(hub)
	log.Warn().Msg("second")

	entries := b.GetRecentLogs()
	if len(entries) != 2 {
		t.Fatalf("GetRecentLogs() len = %d, want 2", len(entries))
	}
	first := entries[0]
	if first.Level != "info" || first.Component != "bridge" || first.Message != "search started" {
		t.Errorf("first entry = %+v", first)
	}
	if first.Fields["token"] != "abc" {
		t.Errorf("first entry fields = %v, want token=abc", first.Fields)
	}
	if first.Timestamp == "" {
		t.Error("first entry missing timestamp")
	}

	if len(hub.messages) != 1 || hub.messages[0] != "logs:entry" {
		t.Errorf("hub messages = %v, want one logs:entry", hub.messages)
	}
}

func TestLogBroadcasterIgnoresMalformed(t *testing.T) {
	b := NewLogBroadcaster(nil, 10)
	n, err := b.Write([]byte("not json"))
	if err != nil || n != len("not json") {
		t.Errorf("Write() = %d, %v", n, err)
	}
	if len(b.GetRecentLogs()) != 0 {
		t.Error("malformed entry should not be buffered")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
