// Package mock provides an in-memory peer network for tests and offline development.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tunedrift/tunedrift/internal/network"
)

// Client is a scriptable network.Client.
type Client struct {
	mu sync.Mutex

	username  string
	connected bool
	events    []network.Event
	nextToken int
	nextID    int

	// scripted maps a query to the results a search for it produces immediately.
	scripted  map[string][]network.FileResult
	searches  map[network.Token]string
	transfers map[string]network.Transfer

	// FailLogin makes Connect report a failed login.
	FailLogin bool
	// DeclineSearches makes Search return no token.
	DeclineSearches bool

	Enqueued []network.DownloadRequest
	Aborted  []network.Transfer
	Rescans  int
}

var _ network.Client = (*Client)(nil)

// New creates a mock client that logs in as username.
func New(username string) *Client {
	return &Client{
		username:  username,
		scripted:  make(map[string][]network.FileResult),
		searches:  make(map[network.Token]string),
		transfers: make(map[string]network.Transfer),
	}
}

// Connect emits a login event.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailLogin {
		c.events = append(c.events, network.LoginEvent{Success: false, Reason: "INVALIDPASS"})
		return nil
	}
	c.connected = true
	c.events = append(c.events, network.LoginEvent{Success: true, Username: c.username})
	return nil
}

// Close marks the client disconnected.
func (c *Client) Close() error {
	c.Disconnect("closed")
	return nil
}

// Disconnect emits a disconnect event.
func (c *Client) Disconnect(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.events = append(c.events, network.DisconnectEvent{Reason: reason})
}

// Username returns the configured username.
func (c *Client) Username() string {
	return c.username
}

// Script registers results a later search for query will produce.
func (c *Client) Script(query string, results ...network.FileResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripted[query] = append(c.scripted[query], results...)
}

// Search issues a search, emitting any scripted results straight away.
func (c *Client) Search(ctx context.Context, query string) (network.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return "", network.ErrNotConnected
	}
	if c.DeclineSearches {
		return "", nil
	}

	c.nextToken++
	token := network.Token(fmt.Sprintf("mock-%d", c.nextToken))
	c.searches[token] = query

	byUser := make(map[string][]network.FileResult)
	var order []string
	for _, r := range c.scripted[query] {
		if _, seen := byUser[r.Username]; !seen {
			order = append(order, r.Username)
		}
		byUser[r.Username] = append(byUser[r.Username], r)
	}
	for _, user := range order {
		c.events = append(c.events, network.SearchResultEvent{Token: token, Username: user, Results: byUser[user]})
	}
	return token, nil
}

// Query returns the text a token was issued for.
func (c *Client) Query(token network.Token) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searches[token]
}

// EmitResults delivers results for token as one peer response.
func (c *Client) EmitResults(token network.Token, username string, results ...network.FileResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, network.SearchResultEvent{Token: token, Username: username, Results: results})
}

// EnqueueDownload records the request and emits a queued transfer.
func (c *Client) EnqueueDownload(ctx context.Context, req network.DownloadRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return network.ErrNotConnected
	}

	c.nextID++
	t := network.Transfer{
		ID:        fmt.Sprintf("t-%d", c.nextID),
		Username:  req.Username,
		Path:      req.Path,
		Status:    network.StatusQueued,
		Size:      req.Size,
		UpdatedAt: time.Now(),
	}
	c.Enqueued = append(c.Enqueued, req)
	c.transfers[t.Identity()] = t
	c.events = append(c.events, network.TransferEvent{Transfer: t})
	return nil
}

// UpdateTransfer changes a known transfer and emits the update.
func (c *Client) UpdateTransfer(identity string, status network.UpstreamStatus, transferred int64, speed float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.transfers[identity]
	if !ok {
		return network.ErrTransferNotFound
	}
	t.Status = status
	t.BytesTransferred = transferred
	t.Speed = speed
	t.UpdatedAt = time.Now()
	c.transfers[identity] = t
	c.events = append(c.events, network.TransferEvent{Transfer: t})
	return nil
}

// AbortTransfer cancels a transfer without waiting for anything.
func (c *Client) AbortTransfer(ctx context.Context, t network.Transfer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Aborted = append(c.Aborted, t)
	if cur, ok := c.transfers[t.Identity()]; ok {
		cur.Status = network.StatusCancelled
		cur.UpdatedAt = time.Now()
		c.transfers[t.Identity()] = cur
		c.events = append(c.events, network.TransferEvent{Transfer: cur})
	}
	return nil
}

// Transfers returns a snapshot of known transfers.
func (c *Client) Transfers() []network.Transfer {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]network.Transfer, 0, len(c.transfers))
	for _, t := range c.transfers {
		out = append(out, t)
	}
	return out
}

// RescanShares counts rescan requests.
func (c *Client) RescanShares(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Rescans++
	return nil
}

// RescanCount returns how many rescans were requested.
func (c *Client) RescanCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Rescans
}

// DrainEvents returns and clears pending events.
func (c *Client) DrainEvents() []network.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	events := c.events
	c.events = nil
	return events
}
