// Package transfers tracks download requests and the network's view of each
// transfer, joined by download identity.
package transfers

import (
	"time"

	"github.com/tunedrift/tunedrift/internal/network"
)

// State is the lifecycle state of a download.
type State string

const (
	StateNotStarted   State = "Not started"
	StateQueued       State = "Queued"
	StateTransferring State = "Transferring"
	StateFinished     State = "Finished"
	StatePaused       State = "Paused"
	StateCancelled    State = "Cancelled"
	StateFiltered     State = "Filtered"
	StateFailed       State = "Failed"
)

// Status is the last known transfer status for one identity.
type Status struct {
	State            State     `json:"state"`
	ProgressBytes    int64     `json:"progressBytes"`
	TotalBytes       int64     `json:"totalBytes"`
	Percent          float64   `json:"percent"`
	SpeedBytesPerSec float64   `json:"speed"`
	QueuePosition    *int      `json:"queuePosition,omitempty"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	TimeRemaining    *float64  `json:"timeRemaining,omitempty"` // seconds
	UpdatedAt        time.Time `json:"updatedAt"`
}

// MapStatus translates an upstream status code into a state and, for
// non-progress states, a human-readable message. Unknown codes map to
// StateNotStarted without a message.
func MapStatus(code network.UpstreamStatus) (State, string) {
	switch code {
	case network.StatusQueued, network.StatusGettingStatus:
		return StateQueued, ""
	case network.StatusTransferring:
		return StateTransferring, ""
	case network.StatusFinished:
		return StateFinished, ""
	case network.StatusPaused:
		return StatePaused, "Download has been paused"
	case network.StatusCancelled:
		return StateCancelled, "Download was cancelled"
	case network.StatusFiltered:
		return StateFiltered, "File was filtered based on your download filters settings"
	case network.StatusConnectionClosed,
		network.StatusConnectionTimeout,
		network.StatusUserLoggedOff,
		network.StatusLocalFileError,
		network.StatusDownloadFolderError:
		return StateFailed, "Download failed: " + string(code)
	default:
		return StateNotStarted, ""
	}
}

// TimeRemaining estimates the time left at the current speed. ok is false
// when the speed is not positive.
func TimeRemaining(progress, total int64, speed float64) (time.Duration, bool) {
	if speed <= 0 {
		return 0, false
	}
	left := total - progress
	if left < 0 {
		left = 0
	}
	return time.Duration(float64(left) / speed * float64(time.Second)), true
}

func statusFromTransfer(t network.Transfer) Status {
	state, msg := MapStatus(t.Status)

	s := Status{
		State:            state,
		ProgressBytes:    t.BytesTransferred,
		TotalBytes:       t.Size,
		SpeedBytesPerSec: t.Speed,
		QueuePosition:    t.QueuePosition,
		ErrorMessage:     msg,
		UpdatedAt:        t.UpdatedAt,
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	if t.Size > 0 {
		s.Percent = float64(t.BytesTransferred) / float64(t.Size) * 100
	}
	if state == StateFinished {
		s.Percent = 100
	}
	if left, ok := TimeRemaining(t.BytesTransferred, t.Size, t.Speed); ok {
		secs := left.Seconds()
		s.TimeRemaining = &secs
	}
	return s
}
