// Package slskd adapts an slskd daemon's REST API to network.Client.
//
// slskd has no push channel for third parties, so a poller compares successive
// snapshots of the server state, tracked searches and downloads, and queues the
// differences as network events.
package slskd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/network"
)

var (
	ErrAPIError     = errors.New("slskd API error")
	ErrUnauthorized = errors.New("slskd rejected the API key")
)

const (
	searchTimeout = 15 * time.Second
	// Searches are polled a little past their timeout so late responses are not lost.
	searchTrackWindow = searchTimeout + 10*time.Second
	maxQueuedEvents   = 10000
)

// Config holds slskd connection settings.
type Config struct {
	URL          string
	APIKey       string
	PollInterval time.Duration
	Timeout      time.Duration
}

type trackedSearch struct {
	startedAt time.Time
	emitted   int
}

// Client implements network.Client on top of slskd.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger

	mu        sync.Mutex
	events    []network.Event
	loggedIn  bool
	username  string
	searches  map[network.Token]*trackedSearch
	transfers map[string]network.Transfer

	cancel   context.CancelFunc // guarded by mu
	closed   bool               // guarded by mu
	done     chan struct{}
}

var _ network.Client = (*Client)(nil)

// New creates an slskd client. Polling starts on the first Connect.
func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With().Str("component", "slskd").Logger(),
		searches:   make(map[network.Token]*trackedSearch),
		transfers:  make(map[string]network.Transfer),
		done:       make(chan struct{}),
	}
}

// Connect asks slskd to log in when it is not already, then starts polling.
func (c *Client) Connect(ctx context.Context) error {
	state, err := c.serverState(ctx)
	if err != nil {
		return err
	}

	if !state.IsLoggedIn {
		if err := c.do(ctx, http.MethodPut, "/api/v0/server", nil, nil); err != nil {
			return fmt.Errorf("failed to connect slskd to the network: %w", err)
		}
		state, err = c.serverState(ctx)
		if err != nil {
			return err
		}
	}

	if !state.IsLoggedIn {
		c.push(network.LoginEvent{Success: false, Reason: state.State})
	}
	c.applyServerState(state)

	c.mu.Lock()
	if c.cancel == nil && !c.closed {
		pollCtx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		go c.pollLoop(pollCtx)
	}
	c.mu.Unlock()
	return nil
}

// Close stops the poller. A Connect after Close does not restart it.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.closed = true
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-c.done
	}
	return nil
}

// Username returns the network username slskd logged in as.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Search starts an slskd search. The search id doubles as the token.
func (c *Client) Search(ctx context.Context, query string) (network.Token, error) {
	req := searchRequest{
		ID:              uuid.NewString(),
		SearchText:      query,
		SearchTimeout:   int(searchTimeout / time.Millisecond),
		FilterResponses: true,
	}

	var resp search
	if err := c.do(ctx, http.MethodPost, "/api/v0/searches", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", nil
	}

	token := network.Token(resp.ID)
	c.mu.Lock()
	c.searches[token] = &trackedSearch{startedAt: time.Now()}
	c.mu.Unlock()

	c.logger.Debug().Str("token", resp.ID).Str("query", query).Msg("search started")
	return token, nil
}

// EnqueueDownload queues one remote file.
func (c *Client) EnqueueDownload(ctx context.Context, req network.DownloadRequest) error {
	body := []enqueueFile{{Filename: req.Path, Size: req.Size}}
	endpoint := "/api/v0/transfers/downloads/" + url.PathEscape(req.Username)
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

// AbortTransfer cancels a download. It does not wait for slskd to settle the transfer.
func (c *Client) AbortTransfer(ctx context.Context, t network.Transfer) error {
	if t.ID == "" {
		return network.ErrTransferNotFound
	}
	endpoint := fmt.Sprintf("/api/v0/transfers/downloads/%s/%s", url.PathEscape(t.Username), url.PathEscape(t.ID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// Transfers returns the downloads seen by the last poll.
func (c *Client) Transfers() []network.Transfer {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]network.Transfer, 0, len(c.transfers))
	for _, t := range c.transfers {
		out = append(out, t)
	}
	return out
}

// RescanShares asks slskd to rescan its shared folders.
func (c *Client) RescanShares(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/api/v0/shares", nil, nil)
}

// DrainEvents returns and clears queued events.
func (c *Client) DrainEvents() []network.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	events := c.events
	c.events = nil
	return events
}

func (c *Client) push(events ...network.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushLocked(events...)
}

func (c *Client) pushLocked(events ...network.Event) {
	if overflow := len(c.events) + len(events) - maxQueuedEvents; overflow > 0 {
		c.logger.Warn().Int("dropped", overflow).Msg("event queue full, dropping oldest events")
		c.events = c.events[min(overflow, len(c.events)):]
	}
	c.events = append(c.events, events...)
}

func (c *Client) pollLoop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

func (c *Client) poll(ctx context.Context) {
	state, err := c.serverState(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("failed to poll server state")
		c.markDisconnected(err.Error())
		return
	}
	c.applyServerState(state)

	c.pollSearches(ctx)

	if err := c.pollTransfers(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("failed to poll transfers")
	}
}

func (c *Client) serverState(ctx context.Context) (serverState, error) {
	var state serverState
	err := c.do(ctx, http.MethodGet, "/api/v0/server", nil, &state)
	return state, err
}

func (c *Client) applyServerState(state serverState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case state.IsLoggedIn && !c.loggedIn:
		c.loggedIn = true
		c.username = state.Username
		c.pushLocked(network.LoginEvent{Success: true, Username: state.Username})
	case !state.IsLoggedIn && c.loggedIn:
		c.loggedIn = false
		c.pushLocked(network.DisconnectEvent{Reason: state.State})
	}
}

func (c *Client) markDisconnected(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn {
		c.loggedIn = false
		c.pushLocked(network.DisconnectEvent{Reason: reason})
	}
}

func (c *Client) pollSearches(ctx context.Context) {
	c.mu.Lock()
	tokens := make([]network.Token, 0, len(c.searches))
	for token, s := range c.searches {
		if time.Since(s.startedAt) > searchTrackWindow {
			delete(c.searches, token)
			continue
		}
		tokens = append(tokens, token)
	}
	c.mu.Unlock()

	for _, token := range tokens {
		var responses []searchResponse
		endpoint := fmt.Sprintf("/api/v0/searches/%s/responses", url.PathEscape(string(token)))
		if err := c.do(ctx, http.MethodGet, endpoint, nil, &responses); err != nil {
			c.logger.Debug().Err(err).Str("token", string(token)).Msg("failed to poll search responses")
			continue
		}

		c.mu.Lock()
		s, ok := c.searches[token]
		if ok && len(responses) > s.emitted {
			for _, resp := range responses[s.emitted:] {
				c.pushLocked(network.SearchResultEvent{
					Token:    token,
					Username: resp.Username,
					Results:  toFileResults(resp),
				})
			}
			s.emitted = len(responses)
		}
		c.mu.Unlock()
	}
}

func toFileResults(resp searchResponse) []network.FileResult {
	results := make([]network.FileResult, 0, len(resp.Files))
	for _, f := range resp.Files {
		attrs := network.FileAttributes{
			Bitrate:       deref(f.BitRate),
			SampleRate:    deref(f.SampleRate),
			BitDepth:      deref(f.BitDepth),
			LengthSeconds: deref(f.Length),
			VBR:           f.IsVariableBitRate != nil && *f.IsVariableBitRate,
		}
		if r, ok := network.NewFileResult(resp.Username, f.Filename, f.Size, attrs); ok {
			results = append(results, r)
		}
	}
	return results
}

func (c *Client) pollTransfers(ctx context.Context) error {
	var users []userDownloads
	if err := c.do(ctx, http.MethodGet, "/api/v0/transfers/downloads", nil, &users); err != nil {
		return err
	}

	seen := make(map[string]network.Transfer)
	for _, u := range users {
		for _, dir := range u.Directories {
			for _, f := range dir.Files {
				username := f.Username
				if username == "" {
					username = u.Username
				}
				t := network.Transfer{
					ID:               f.ID,
					Username:         username,
					Path:             f.Filename,
					Status:           upstreamStatus(f.State, f.Exception),
					BytesTransferred: f.BytesTransferred,
					Size:             f.Size,
					Speed:            f.AverageSpeed,
					QueuePosition:    f.PlaceInQueue,
					UpdatedAt:        time.Now(),
				}
				seen[t.Identity()] = t
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range seen {
		prev, known := c.transfers[id]
		if !known || changed(prev, t) {
			c.pushLocked(network.TransferEvent{Transfer: t})
		}
	}
	c.transfers = seen
	return nil
}

func changed(a, b network.Transfer) bool {
	if a.Status != b.Status || a.BytesTransferred != b.BytesTransferred || a.Speed != b.Speed {
		return true
	}
	if (a.QueuePosition == nil) != (b.QueuePosition == nil) {
		return true
	}
	return a.QueuePosition != nil && *a.QueuePosition != *b.QueuePosition
}

// do performs a JSON request against slskd. body and result may be nil.
func (c *Client) do(ctx context.Context, method, endpoint string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.URL, "/")+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound && method == http.MethodDelete:
		return network.ErrTransferNotFound
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrAPIError, method, endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
