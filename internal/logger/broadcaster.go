package logger

import (
	"encoding/json"
	"sync"
)

const defaultBufferSize = 500

// Broadcaster pushes typed messages to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload any) error
}

// LogEntry is a parsed log line as streamed to clients.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// LogBroadcaster is an io.Writer that keeps recent zerolog entries and forwards them to a hub.
type LogBroadcaster struct {
	buffer *RingBuffer[LogEntry]

	mu  sync.RWMutex
	hub Broadcaster
}

// NewLogBroadcaster creates a broadcaster. hub may be nil and set later.
func NewLogBroadcaster(hub Broadcaster, bufferSize int) *LogBroadcaster {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &LogBroadcaster{
		hub:    hub,
		buffer: NewRingBuffer[LogEntry](bufferSize),
	}
}

// SetHub sets the hub entries are forwarded to.
func (b *LogBroadcaster) SetHub(hub Broadcaster) {
	b.mu.Lock()
	b.hub = hub
	b.mu.Unlock()
}

// Write implements io.Writer. Malformed lines are dropped, never reported.
func (b *LogBroadcaster) Write(p []byte) (int, error) {
	entry, ok := parseLogEntry(p)
	if !ok {
		return len(p), nil
	}

	b.buffer.Push(entry)

	b.mu.RLock()
	hub := b.hub
	b.mu.RUnlock()

	if hub != nil {
		_ = hub.Broadcast("logs:entry", entry)
	}
	return len(p), nil
}

// GetRecentLogs returns all buffered entries.
func (b *LogBroadcaster) GetRecentLogs() []LogEntry {
	return b.buffer.GetAll()
}

func parseLogEntry(data []byte) (LogEntry, bool) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return LogEntry{}, false
	}

	entry := LogEntry{}
	take := func(key string) string {
		s, _ := raw[key].(string)
		delete(raw, key)
		return s
	}
	entry.Timestamp = take(zerologTimeField)
	entry.Level = take("level")
	entry.Component = take("component")
	entry.Message = take("message")

	if len(raw) > 0 {
		entry.Fields = raw
	}
	return entry, true
}

const zerologTimeField = "time"
