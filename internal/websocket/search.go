package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/metrics"
	"github.com/tunedrift/tunedrift/internal/network"
)

// Search socket actions and statuses.
const (
	ActionStartSearch = "start_search"
	ActionStopSearch  = "stop_search"

	StatusSearchStarted = "Search started"
	StatusSearchFailed  = "Search failed"
	StatusSearchStopped = "Search stopped"
)

// SearchRegistry is the part of the search registry the socket needs.
type SearchRegistry interface {
	Start(ctx context.Context, artist, song, rawQuery string) (network.Token, string, error)
	Stop(token network.Token)
	TakeUnpushed(token network.Token) []network.FileResult
}

// SearchRequest is a message from a search socket client.
type SearchRequest struct {
	Action   string        `json:"action"`
	Query    string        `json:"query,omitempty"`
	Artist   string        `json:"artist,omitempty"`
	Song     string        `json:"song,omitempty"`
	SearchID network.Token `json:"searchId,omitempty"`
}

// SearchReply answers a SearchRequest.
type SearchReply struct {
	Status      string        `json:"status"`
	SearchID    network.Token `json:"searchId,omitempty"`
	ActualQuery string        `json:"actualQuery,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// ResultsPush carries results that arrived since the previous push.
type ResultsPush struct {
	SearchID network.Token        `json:"searchId"`
	Results  []network.FileResult `json:"results"`
}

type searchConn struct {
	client *Client
	tokens map[network.Token]struct{}
}

// SearchSockets tracks which search tokens each connection owns, pushes new
// results to their owners and stops a connection's searches when it closes.
type SearchSockets struct {
	registry SearchRegistry
	logger   zerolog.Logger

	mu    sync.Mutex
	conns map[string]*searchConn
	owner map[network.Token]string
}

// NewSearchSockets creates the search socket manager.
func NewSearchSockets(registry SearchRegistry, logger zerolog.Logger) *SearchSockets {
	return &SearchSockets{
		registry: registry,
		logger:   logger.With().Str("component", "search-sockets").Logger(),
		conns:    make(map[string]*searchConn),
		owner:    make(map[network.Token]string),
	}
}

// HandleWebSocket upgrades GET /ws/search/:clientID.
func (s *SearchSockets) HandleWebSocket(c echo.Context) error {
	connID := c.Param("clientID")
	if connID == "" {
		connID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	var client *Client
	client = newClient(conn,
		func(message []byte) { s.handleMessage(connID, client, message) },
		func() { s.disconnect(connID, client) },
	)
	s.connect(connID, client)
	client.start()
	return nil
}

// connect registers client under connID, replacing any previous connection
// with the same id. Searches owned by the replaced connection are kept.
func (s *SearchSockets) connect(connID string, client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.conns[connID]; ok {
		existing.client.Close()
		existing.client = client
		return
	}
	s.conns[connID] = &searchConn{client: client, tokens: make(map[network.Token]struct{})}
	s.logger.Debug().Str("conn", connID).Msg("Search client connected")
}

// disconnect runs when client's read loop ends. A stale client that was
// replaced by a reconnect does not tear down the connection's searches.
func (s *SearchSockets) disconnect(connID string, client *Client) {
	s.mu.Lock()
	sc, ok := s.conns[connID]
	current := ok && sc.client == client
	s.mu.Unlock()

	if current {
		s.CloseConnection(connID)
	}
}

// AddSearch records that connID owns token.
func (s *SearchSockets) AddSearch(connID string, token network.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.conns[connID]
	if !ok {
		sc = &searchConn{tokens: make(map[network.Token]struct{})}
		s.conns[connID] = sc
	}
	sc.tokens[token] = struct{}{}
	s.owner[token] = connID
}

// RemoveSearch drops token from connID and stops the search.
func (s *SearchSockets) RemoveSearch(connID string, token network.Token) {
	s.mu.Lock()
	if sc, ok := s.conns[connID]; ok {
		delete(sc.tokens, token)
	}
	if s.owner[token] == connID {
		delete(s.owner, token)
	}
	s.mu.Unlock()

	s.registry.Stop(token)
}

// CloseConnection forgets connID and stops every search it owned.
func (s *SearchSockets) CloseConnection(connID string) {
	s.mu.Lock()
	sc, ok := s.conns[connID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.conns, connID)
	tokens := make([]network.Token, 0, len(sc.tokens))
	for token := range sc.tokens {
		tokens = append(tokens, token)
		delete(s.owner, token)
	}
	s.mu.Unlock()

	if sc.client != nil {
		sc.client.Close()
	}
	for _, token := range tokens {
		s.registry.Stop(token)
	}
	s.logger.Debug().Str("conn", connID).Int("searches", len(tokens)).Msg("Search client disconnected")
}

// Forget drops token from its owner without stopping it. It is registered as
// the registry's stop hook so sessions stopped elsewhere are not pushed.
func (s *SearchSockets) Forget(token network.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	connID, ok := s.owner[token]
	if !ok {
		return
	}
	delete(s.owner, token)
	if sc, ok := s.conns[connID]; ok {
		delete(sc.tokens, token)
	}
}

// Tokens returns the searches owned by connID.
func (s *SearchSockets) Tokens(connID string) []network.Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.conns[connID]
	if !ok {
		return nil
	}
	out := make([]network.Token, 0, len(sc.tokens))
	for token := range sc.tokens {
		out = append(out, token)
	}
	return out
}

// Sweep pushes results that arrived since the last sweep to each owning
// connection. Delivery failures are counted and otherwise ignored.
func (s *SearchSockets) Sweep() {
	type target struct {
		token  network.Token
		client *Client
	}

	s.mu.Lock()
	var targets []target
	for _, sc := range s.conns {
		for token := range sc.tokens {
			targets = append(targets, target{token: token, client: sc.client})
		}
	}
	s.mu.Unlock()

	for _, t := range targets {
		results := s.registry.TakeUnpushed(t.token)
		if len(results) == 0 {
			continue
		}
		if err := s.push(t.client, ResultsPush{SearchID: t.token, Results: results}); err != nil {
			metrics.PushMessagesTotal.WithLabelValues("dropped").Inc()
			s.logger.Debug().Err(err).Str("token", string(t.token)).Msg("Dropped search results push")
			continue
		}
		metrics.PushMessagesTotal.WithLabelValues("sent").Inc()
	}
}

func (s *SearchSockets) handleMessage(connID string, client *Client, message []byte) {
	var req SearchRequest
	if err := json.Unmarshal(message, &req); err != nil {
		_ = s.push(client, SearchReply{Status: StatusSearchFailed, Error: "invalid message"})
		return
	}

	switch req.Action {
	case ActionStartSearch:
		_ = s.push(client, s.startSearch(connID, req))
	case ActionStopSearch:
		if req.SearchID != "" {
			s.RemoveSearch(connID, req.SearchID)
		}
		_ = s.push(client, SearchReply{Status: StatusSearchStopped, SearchID: req.SearchID})
	default:
		_ = s.push(client, SearchReply{Status: StatusSearchFailed, Error: "unknown action"})
	}
}

func (s *SearchSockets) startSearch(connID string, req SearchRequest) SearchReply {
	// The grace wait runs on this connection's read loop, not the bridge.
	token, actual, err := s.registry.Start(context.Background(), req.Artist, req.Song, req.Query)
	if err != nil {
		s.logger.Warn().Err(err).Str("conn", connID).Str("query", req.Query).Msg("Search failed to start")
		return SearchReply{Status: StatusSearchFailed, Error: err.Error()}
	}
	if token == "" {
		return SearchReply{Status: StatusSearchFailed, Error: "search was declined by the network"}
	}

	s.AddSearch(connID, token)
	return SearchReply{Status: StatusSearchStarted, SearchID: token, ActualQuery: actual}
}

func (s *SearchSockets) push(client *Client, payload any) error {
	if client == nil {
		return errors.New("connection not attached")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return client.Send(data)
}
