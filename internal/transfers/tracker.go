package transfers

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/audio"
	"github.com/tunedrift/tunedrift/internal/library"
	"github.com/tunedrift/tunedrift/internal/metrics"
	"github.com/tunedrift/tunedrift/internal/network"
)

// RescanDelay is how long after a finished download the share rescan runs.
const RescanDelay = time.Second

var ErrNotLoggedIn = errors.New("not logged in to the network")

// Gate reports the network session state.
type Gate interface {
	LoggedIn() bool
	Username() string
}

// RescanScheduler runs a share rescan outside the event bridge.
type RescanScheduler interface {
	ScheduleRescan(delay time.Duration)
}

// Broadcaster pushes events to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload any) error
}

// Request asks for one remote file.
type Request struct {
	Username string            `json:"username"`
	Path     string            `json:"path"`
	Size     int64             `json:"size"`
	Metadata *library.Metadata `json:"metadata,omitempty"`
}

// ActiveDownload is the request-side record of a download.
type ActiveDownload struct {
	Identity      string            `json:"identity"`
	DisplayName   string            `json:"displayName"`
	LocalFilePath string            `json:"localFilePath"`
	Username      string            `json:"username"`
	Size          int64             `json:"size"`
	Metadata      *library.Metadata `json:"metadata,omitempty"`
	RequestedAt   time.Time         `json:"requestedAt"`
}

// DownloadView joins an active download with its status.
type DownloadView struct {
	ActiveDownload
	Status Status `json:"status"`
}

// Tracker holds active downloads and transfer statuses. Statuses are written
// only through Apply, which the event bridge calls.
type Tracker struct {
	client      network.Client
	gate        Gate
	rescans     RescanScheduler
	hints       *HintStore
	downloadDir string
	logger      zerolog.Logger

	statusMu sync.RWMutex
	statuses map[string]Status

	activeMu sync.RWMutex
	active   map[string]ActiveDownload

	broadcastMu sync.RWMutex
	broadcaster Broadcaster
}

// NewTracker creates a tracker. rescans may be nil.
func NewTracker(client network.Client, gate Gate, rescans RescanScheduler, hints *HintStore, downloadDir string, logger zerolog.Logger) *Tracker {
	if hints == nil {
		hints = NewHintStore()
	}
	return &Tracker{
		client:      client,
		gate:        gate,
		rescans:     rescans,
		hints:       hints,
		downloadDir: downloadDir,
		logger:      logger.With().Str("component", "transfers").Logger(),
		statuses:    make(map[string]Status),
		active:      make(map[string]ActiveDownload),
	}
}

// SetBroadcaster sets the hub status changes are pushed to.
func (t *Tracker) SetBroadcaster(b Broadcaster) {
	t.broadcastMu.Lock()
	defer t.broadcastMu.Unlock()
	t.broadcaster = b
}

// Hints returns the tracker's hint store.
func (t *Tracker) Hints() *HintStore {
	return t.hints
}

// Apply records a transfer update from the network.
func (t *Tracker) Apply(tr network.Transfer) {
	identity := tr.Identity()
	status := statusFromTransfer(tr)

	t.statusMu.Lock()
	prev, had := t.statuses[identity]
	t.statuses[identity] = status
	t.statusMu.Unlock()

	metrics.TransferUpdatesTotal.WithLabelValues(string(status.State)).Inc()

	if status.State == StateFailed && (!had || prev.State != StateFailed) {
		t.logger.Warn().Str("identity", identity).Str("reason", status.ErrorMessage).Msg("Download failed")
	}

	if status.State == StateFinished && (!had || prev.State != StateFinished) {
		t.hints.Promote(identity, tr.Path)
		if t.rescans != nil {
			t.rescans.ScheduleRescan(RescanDelay)
		}
		t.logger.Info().Str("identity", identity).Msg("Download finished")
	}

	t.broadcastMu.RLock()
	b := t.broadcaster
	t.broadcastMu.RUnlock()
	if b != nil {
		_ = b.Broadcast("download:status", map[string]any{"identity": identity, "status": status})
	}
}

// Status returns the last known status for identity. Unknown identities are NotStarted.
func (t *Tracker) Status(identity string) Status {
	t.statusMu.RLock()
	defer t.statusMu.RUnlock()
	if s, ok := t.statuses[identity]; ok {
		return s
	}
	return Status{State: StateNotStarted}
}

// Request validates and enqueues a download, recording its hint and active record.
func (t *Tracker) Request(ctx context.Context, req Request) (*ActiveDownload, error) {
	if !t.gate.LoggedIn() {
		return nil, ErrNotLoggedIn
	}
	if req.Username == "" || req.Path == "" {
		return nil, fmt.Errorf("%w: username and path are required", network.ErrMalformedIdentity)
	}

	identity := network.Identity(req.Username, req.Path)
	name := audio.BaseName(req.Path)
	record := ActiveDownload{
		Identity:      identity,
		DisplayName:   name,
		LocalFilePath: filepath.Join(t.downloadDir, name),
		Username:      req.Username,
		Size:          req.Size,
		Metadata:      req.Metadata,
		RequestedAt:   time.Now(),
	}

	if req.Metadata != nil {
		t.hints.Put(identity, req.Path, *req.Metadata)
	}
	t.activeMu.Lock()
	t.active[identity] = record
	t.activeMu.Unlock()

	err := t.client.EnqueueDownload(ctx, network.DownloadRequest{
		Username:  req.Username,
		Path:      req.Path,
		Size:      req.Size,
		LocalPath: record.LocalFilePath,
	})
	if err != nil {
		t.activeMu.Lock()
		delete(t.active, identity)
		t.activeMu.Unlock()
		t.hints.Forget(identity)
		return nil, fmt.Errorf("failed to enqueue download: %w", err)
	}

	t.logger.Info().Str("identity", identity).Int64("size", req.Size).Msg("Download requested")
	return &record, nil
}

// Active returns every active download joined with its status, newest first.
// Downloads without a status yet report Queued with the requested size.
func (t *Tracker) Active() []DownloadView {
	t.activeMu.RLock()
	records := make([]ActiveDownload, 0, len(t.active))
	for _, r := range t.active {
		records = append(records, r)
	}
	t.activeMu.RUnlock()

	views := make([]DownloadView, 0, len(records))
	t.statusMu.RLock()
	for _, r := range records {
		status, ok := t.statuses[r.Identity]
		if !ok {
			status = Status{State: StateQueued, TotalBytes: r.Size, UpdatedAt: r.RequestedAt}
		}
		views = append(views, DownloadView{ActiveDownload: r, Status: status})
	}
	t.statusMu.RUnlock()

	sort.Slice(views, func(i, j int) bool {
		if views[i].RequestedAt.Equal(views[j].RequestedAt) {
			return views[i].Identity < views[j].Identity
		}
		return views[i].RequestedAt.After(views[j].RequestedAt)
	})
	return views
}

// Cancel aborts the live transfer for identity, if any, and forgets it locally.
// Cancelling an unknown identity is not an error.
func (t *Tracker) Cancel(ctx context.Context, identity string) error {
	username, path, err := network.ParseIdentity(identity)
	if err != nil {
		return err
	}

	for _, tr := range t.client.Transfers() {
		if tr.Username != username || tr.Path != path {
			continue
		}
		go func(tr network.Transfer) {
			abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if err := t.client.AbortTransfer(abortCtx, tr); err != nil {
				t.logger.Warn().Err(err).Str("identity", identity).Msg("Failed to abort transfer")
			}
		}(tr)
		break
	}

	t.activeMu.Lock()
	delete(t.active, identity)
	t.activeMu.Unlock()
	t.hints.Forget(identity)

	t.logger.Info().Str("identity", identity).Msg("Download cancelled")
	return nil
}

// SystemStatus summarizes the backend for the downloads view.
type SystemStatus struct {
	BackendStatus   string `json:"backendStatus"`
	NetworkStatus   string `json:"networkStatus"`
	Username        string `json:"username,omitempty"`
	ActiveDownloads int    `json:"activeDownloads"`
}

// System returns the current system status.
func (t *Tracker) System() SystemStatus {
	t.activeMu.RLock()
	n := len(t.active)
	t.activeMu.RUnlock()

	s := SystemStatus{BackendStatus: "running", NetworkStatus: "disconnected", ActiveDownloads: n}
	if t.gate.LoggedIn() {
		s.NetworkStatus = "connected"
		s.Username = t.gate.Username()
	}
	return s
}
