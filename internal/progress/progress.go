// Package progress tracks long-running activities such as library syncs and
// broadcasts their progress to connected WebSocket clients.
package progress

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ActivityType identifies the type of activity being tracked.
type ActivityType string

const (
	ActivityLibrarySync ActivityType = "library-sync"
	ActivityShareRescan ActivityType = "share-rescan"
)

// Status represents the current state of an activity.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Activity is a trackable unit of work with progress.
type Activity struct {
	ID          string       `json:"id"`
	Type        ActivityType `json:"type"`
	Title       string       `json:"title"`
	Subtitle    string       `json:"subtitle"`
	Progress    int          `json:"progress"` // 0-100, -1 for indeterminate
	Status      Status       `json:"status"`
	StartedAt   time.Time    `json:"startedAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// EventType identifies the type of progress event.
type EventType string

const (
	EventStarted   EventType = "progress:started"
	EventUpdate    EventType = "progress:update"
	EventCompleted EventType = "progress:completed"
	EventError     EventType = "progress:error"
)

// Broadcaster pushes events to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload any) error
}

// DefaultRetention is how long finished activities stay listed.
const DefaultRetention = 10 * time.Second

// Manager tracks and broadcasts progress for all activities.
type Manager struct {
	broadcaster Broadcaster
	retention   time.Duration
	activities  map[string]*Activity
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewManager creates a progress manager. broadcaster may be nil.
func NewManager(broadcaster Broadcaster, logger zerolog.Logger) *Manager {
	return &Manager{
		broadcaster: broadcaster,
		retention:   DefaultRetention,
		activities:  make(map[string]*Activity),
		logger:      logger.With().Str("component", "progress").Logger(),
	}
}

// Start begins tracking an activity, replacing any finished one with the same id.
func (m *Manager) Start(id string, kind ActivityType, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity := &Activity{
		ID:        id,
		Type:      kind,
		Title:     title,
		Subtitle:  "Starting...",
		Progress:  -1,
		Status:    StatusInProgress,
		StartedAt: time.Now(),
	}
	m.activities[id] = activity
	m.broadcast(EventStarted, activity)

	m.logger.Debug().Str("id", id).Str("type", string(kind)).Msg("Activity started")
}

// Update sets an in-progress activity's subtitle and percentage.
func (m *Manager) Update(id, subtitle string, percent int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity, ok := m.activities[id]
	if !ok || activity.Status != StatusInProgress {
		return
	}
	activity.Subtitle = subtitle
	activity.Progress = percent
	m.broadcast(EventUpdate, activity)
}

// Complete marks an activity as completed.
func (m *Manager) Complete(id, subtitle string) {
	m.finish(id, StatusCompleted, subtitle, "")
}

// Fail marks an activity as failed.
func (m *Manager) Fail(id, message string) {
	m.finish(id, StatusFailed, message, message)
}

func (m *Manager) finish(id string, status Status, subtitle, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity, ok := m.activities[id]
	if !ok || activity.Status != StatusInProgress {
		return
	}

	now := time.Now()
	activity.Status = status
	activity.Subtitle = subtitle
	activity.CompletedAt = &now
	activity.Error = errMsg

	event := EventCompleted
	if status == StatusCompleted {
		activity.Progress = 100
	} else {
		event = EventError
	}
	m.broadcast(event, activity)

	time.AfterFunc(m.retention, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if current, ok := m.activities[id]; ok && current == activity {
			delete(m.activities, id)
		}
	})

	m.logger.Debug().Str("id", id).Str("status", string(status)).Msg("Activity finished")
}

// Get returns a copy of an activity.
func (m *Manager) Get(id string) (Activity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	activity, ok := m.activities[id]
	if !ok {
		return Activity{}, false
	}
	return *activity, true
}

// List returns copies of all tracked activities, newest first.
func (m *Manager) List() []Activity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Activity, 0, len(m.activities))
	for _, activity := range m.activities {
		out = append(out, *activity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// broadcast must be called with m.mu held.
func (m *Manager) broadcast(event EventType, activity *Activity) {
	if m.broadcaster == nil {
		return
	}
	if err := m.broadcaster.Broadcast(string(event), *activity); err != nil {
		m.logger.Debug().Err(err).Str("event", string(event)).Msg("Dropped progress event")
	}
}
