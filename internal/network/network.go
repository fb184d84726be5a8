// Package network defines the peer network client contract and the events it emits.
package network

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotConnected      = errors.New("not connected to the peer network")
	ErrMalformedIdentity = errors.New("malformed download identity")
	ErrTransferNotFound  = errors.New("transfer not found")
)

// Token identifies one issued search. The zero value means no session was created.
type Token string

// FileResult is one file offered by a peer in response to a search.
type FileResult struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	Username  string `json:"username"`
	Extension string `json:"extension,omitempty"`
	Bitrate   *int   `json:"bitrate,omitempty"`
	Quality   string `json:"quality,omitempty"`
	Length    string `json:"length,omitempty"`
}

// DownloadRequest asks the network to fetch one remote file.
type DownloadRequest struct {
	Username  string
	Path      string
	Size      int64
	LocalPath string
}

// Transfer is the network's view of a single download.
type Transfer struct {
	ID               string
	Username         string
	Path             string
	Status           UpstreamStatus
	BytesTransferred int64
	Size             int64
	Speed            float64 // bytes per second
	QueuePosition    *int
	UpdatedAt        time.Time
}

// Identity returns the download identity of the transfer.
func (t Transfer) Identity() string {
	return Identity(t.Username, t.Path)
}

// Client is the peer network as seen by the rest of the service.
// Search results and transfer changes arrive asynchronously through DrainEvents.
type Client interface {
	Connect(ctx context.Context) error
	// Search issues query and returns its token, or "" when the network declined it.
	Search(ctx context.Context, query string) (Token, error)
	EnqueueDownload(ctx context.Context, req DownloadRequest) error
	AbortTransfer(ctx context.Context, t Transfer) error
	// Transfers returns the transfers the network currently knows about.
	Transfers() []Transfer
	RescanShares(ctx context.Context) error
	// DrainEvents returns and clears the pending events without blocking.
	DrainEvents() []Event
	Username() string
	Close() error
}
