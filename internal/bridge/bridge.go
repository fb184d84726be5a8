// Package bridge drains the peer network's event queue into the in-memory
// registries that request handlers read from.
package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/metrics"
	"github.com/tunedrift/tunedrift/internal/network"
)

// DefaultInterval is the sleep between two drains.
const DefaultInterval = 100 * time.Millisecond

// ResultSink accumulates search results per token.
type ResultSink interface {
	AppendResults(token network.Token, results []network.FileResult)
}

// TransferSink records transfer updates.
type TransferSink interface {
	Apply(t network.Transfer)
}

// Bridge is the single writer of search results, transfer status and login state.
// Handlers only touch memory; anything doing I/O is scheduled elsewhere by the sinks.
type Bridge struct {
	client    network.Client
	results   ResultSink
	transfers TransferSink
	interval  time.Duration
	logger    zerolog.Logger

	loggedIn atomic.Bool
	username atomic.Pointer[string]

	firstLogin     chan struct{}
	firstLoginOnce sync.Once
}

// New creates a bridge. A non-positive interval uses DefaultInterval.
func New(client network.Client, results ResultSink, transfers TransferSink, interval time.Duration, logger zerolog.Logger) *Bridge {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Bridge{
		client:     client,
		results:    results,
		transfers:  transfers,
		interval:   interval,
		logger:     logger.With().Str("component", "bridge").Logger(),
		firstLogin: make(chan struct{}),
	}
}

// Run drains events until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	b.logger.Info().Dur("interval", b.interval).Msg("event bridge started")

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		b.Drain()

		select {
		case <-ctx.Done():
			b.logger.Info().Msg("event bridge stopped")
			return
		case <-ticker.C:
		}
	}
}

// Drain dispatches every pending event and returns how many were handled.
func (b *Bridge) Drain() int {
	events := b.client.DrainEvents()
	for _, ev := range events {
		b.dispatch(ev)
	}
	return len(events)
}

func (b *Bridge) dispatch(ev network.Event) {
	metrics.BridgeEventsTotal.WithLabelValues(string(ev.Kind())).Inc()

	switch e := ev.(type) {
	case network.LoginEvent:
		b.onLogin(e)
	case network.DisconnectEvent:
		b.onDisconnect(e)
	case network.SearchResultEvent:
		if len(e.Results) > 0 {
			b.results.AppendResults(e.Token, e.Results)
		}
	case network.TransferEvent:
		b.transfers.Apply(e.Transfer)
	default:
		b.logger.Warn().Str("kind", string(ev.Kind())).Msg("unhandled network event")
	}
}

func (b *Bridge) onLogin(e network.LoginEvent) {
	if !e.Success {
		b.loggedIn.Store(false)
		metrics.NetworkLoggedIn.Set(0)
		b.logger.Error().Str("reason", e.Reason).Msg("network login failed")
		return
	}

	name := e.Username
	b.username.Store(&name)
	b.loggedIn.Store(true)
	metrics.NetworkLoggedIn.Set(1)
	b.logger.Info().Str("username", e.Username).Msg("logged in to network")

	b.firstLoginOnce.Do(func() { close(b.firstLogin) })
}

func (b *Bridge) onDisconnect(e network.DisconnectEvent) {
	b.loggedIn.Store(false)
	metrics.NetworkLoggedIn.Set(0)
	b.logger.Warn().Str("reason", e.Reason).Msg("disconnected from network")
}

// LoggedIn reports whether the network session is logged in.
func (b *Bridge) LoggedIn() bool {
	return b.loggedIn.Load()
}

// Username returns the name of the last successful login.
func (b *Bridge) Username() string {
	if p := b.username.Load(); p != nil {
		return *p
	}
	return ""
}

// FirstLogin is closed after the first successful login.
func (b *Bridge) FirstLogin() <-chan struct{} {
	return b.firstLogin
}
