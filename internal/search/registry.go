// Package search tracks peer network search sessions and decides when their
// open-ended result streams can be considered complete.
package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/metrics"
	"github.com/tunedrift/tunedrift/internal/network"
)

// Completion policy. The network never signals the end of a result stream, so
// completion is inferred from result-count saturation or stagnation.
const (
	// StagnationThreshold is the number of consecutive polls observing the same
	// non-zero result count after which a session is complete.
	StagnationThreshold = 3
	// ResultCap completes a session as soon as it holds this many results.
	ResultCap = 100
	// DefaultGraceWindow is how long a combined artist+song search gets to
	// produce a first result before falling back to the raw query.
	DefaultGraceWindow = 3 * time.Second
)

var (
	ErrNotLoggedIn = errors.New("not logged in to the network")
	ErrEmptyQuery  = errors.New("search query is empty")
)

// Gate reports whether the network session can accept searches.
type Gate interface {
	LoggedIn() bool
}

// PollResult is a snapshot of a session's results.
type PollResult struct {
	Results     []network.FileResult `json:"results"`
	IsComplete  bool                 `json:"isComplete"`
	ResultCount int                  `json:"resultCount"`
	ActualQuery string               `json:"actualQuery"`
}

type session struct {
	query     string
	results   []network.FileResult
	active    bool
	createdAt time.Time

	lastCount     int
	stagnantPolls int
	complete      bool

	pushed int
}

type pendingResults struct {
	results    []network.FileResult
	receivedAt time.Time
}

// Registry owns all search sessions. It is safe for concurrent use by the
// event bridge (writer of results) and request handlers.
type Registry struct {
	client network.Client
	gate   Gate
	grace  time.Duration
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[network.Token]*session
	// pending holds results that arrived before their token was registered.
	pending map[network.Token]*pendingResults

	stopMu    sync.RWMutex
	onStopped []func(network.Token)
}

// NewRegistry creates a registry. A non-positive grace uses DefaultGraceWindow.
func NewRegistry(client network.Client, gate Gate, grace time.Duration, logger zerolog.Logger) *Registry {
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &Registry{
		client:   client,
		gate:     gate,
		grace:    grace,
		logger:   logger.With().Str("component", "search").Logger(),
		sessions: make(map[network.Token]*session),
		pending:  make(map[network.Token]*pendingResults),
	}
}

// OnStopped registers fn to run after a session is stopped.
func (r *Registry) OnStopped(fn func(network.Token)) {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()
	r.onStopped = append(r.onStopped, fn)
}

// Start issues a search. With both artist and song it first tries
// "{artist} {song}" and waits the grace window for a result; if none arrives
// it reissues rawQuery and returns that session instead. An empty token with
// a nil error means the network declined the search.
func (r *Registry) Start(ctx context.Context, artist, song, rawQuery string) (network.Token, string, error) {
	if !r.gate.LoggedIn() {
		return "", "", ErrNotLoggedIn
	}

	artist, song, rawQuery = strings.TrimSpace(artist), strings.TrimSpace(song), strings.TrimSpace(rawQuery)

	if artist != "" && song != "" {
		combined := artist + " " + song
		if rawQuery == "" {
			rawQuery = combined
		}

		token, err := r.issue(ctx, combined)
		if err != nil {
			return "", "", err
		}
		if token != "" {
			if err := sleep(ctx, r.grace); err != nil {
				r.Stop(token)
				return "", "", err
			}
			if r.count(token) > 0 || combined == rawQuery {
				return token, combined, nil
			}
			r.deactivate(token)
			metrics.SearchFallbacksTotal.Inc()
			r.logger.Info().
				Str("combined", combined).
				Str("raw", rawQuery).
				Msg("combined query found nothing, falling back to raw query")
		}
	}

	if rawQuery == "" {
		return "", "", ErrEmptyQuery
	}

	token, err := r.issue(ctx, rawQuery)
	if err != nil {
		return "", "", err
	}
	return token, rawQuery, nil
}

func (r *Registry) issue(ctx context.Context, query string) (network.Token, error) {
	token, err := r.client.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if token == "" {
		r.logger.Warn().Str("query", query).Msg("network returned no search token")
		return "", nil
	}

	r.mu.Lock()
	s := &session{query: query, active: true, createdAt: time.Now()}
	if p, ok := r.pending[token]; ok {
		s.results = p.results
		delete(r.pending, token)
	}
	r.sessions[token] = s
	metrics.SearchSessionsActive.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	r.logger.Debug().Str("token", string(token)).Str("query", query).Msg("search session registered")
	return token, nil
}

// AppendResults adds results for token. Results for a token that is not
// registered yet are held until it is; results for stopped tokens age out.
func (r *Registry) AppendResults(token network.Token, results []network.FileResult) {
	if len(results) == 0 {
		return
	}
	metrics.SearchResultsTotal.Add(float64(len(results)))

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[token]; ok {
		s.results = append(s.results, results...)
		return
	}

	p, ok := r.pending[token]
	if !ok {
		p = &pendingResults{}
		r.pending[token] = p
	}
	p.results = append(p.results, results...)
	p.receivedAt = time.Now()
}

// Poll returns the session's results and whether it is complete. A session is
// complete once its count stagnated for StagnationThreshold polls, reached
// ResultCap, or it was superseded while holding results. Completion is sticky.
// ok is false for unknown or stopped tokens.
func (r *Registry) Poll(token network.Token) (PollResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok {
		return PollResult{Results: []network.FileResult{}, IsComplete: true}, false
	}

	count := len(s.results)
	if !s.complete {
		switch {
		case count == 0:
			s.stagnantPolls = 0
		case count == s.lastCount:
			s.stagnantPolls++
		default:
			// First poll to observe this count starts a new run.
			s.stagnantPolls = 1
		}
		s.lastCount = count

		if s.stagnantPolls >= StagnationThreshold || count >= ResultCap || (!s.active && count > 0) {
			s.complete = true
			s.lastCount = 0
			s.stagnantPolls = 0
		}
	}

	results := make([]network.FileResult, count)
	copy(results, s.results)

	return PollResult{
		Results:     results,
		IsComplete:  s.complete,
		ResultCount: count,
		ActualQuery: s.query,
	}, true
}

// TakeUnpushed returns results added since the previous call for token.
func (r *Registry) TakeUnpushed(token network.Token) []network.FileResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok || s.pushed >= len(s.results) {
		return nil
	}
	out := make([]network.FileResult, len(s.results)-s.pushed)
	copy(out, s.results[s.pushed:])
	s.pushed = len(s.results)
	return out
}

// Stop deregisters token and discards its results. Stopping an unknown token is a no-op.
func (r *Registry) Stop(token network.Token) {
	r.mu.Lock()
	_, existed := r.sessions[token]
	delete(r.sessions, token)
	delete(r.pending, token)
	metrics.SearchSessionsActive.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if !existed {
		return
	}

	r.stopMu.RLock()
	hooks := r.onStopped
	r.stopMu.RUnlock()
	for _, fn := range hooks {
		fn(token)
	}
	r.logger.Debug().Str("token", string(token)).Msg("search session stopped")
}

// Active reports whether token is registered and still the live session for its query.
func (r *Registry) Active(token network.Token) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[token]
	return ok && s.active
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Prune stops sessions older than maxAge and drops stale pending results.
// It returns the number of sessions stopped.
func (r *Registry) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	var expired []network.Token
	for token, s := range r.sessions {
		if s.createdAt.Before(cutoff) {
			expired = append(expired, token)
		}
	}
	for token, p := range r.pending {
		if p.receivedAt.Before(cutoff) {
			delete(r.pending, token)
		}
	}
	r.mu.Unlock()

	for _, token := range expired {
		r.Stop(token)
	}
	return len(expired)
}

func (r *Registry) count(token network.Token) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[token]; ok {
		return len(s.results)
	}
	return 0
}

func (r *Registry) deactivate(token network.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[token]; ok {
		s.active = false
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
