package websocket

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunedrift/tunedrift/internal/network"
)

type fakeRegistry struct {
	mu       sync.Mutex
	next     int
	err      error
	declined bool
	stopped  []network.Token
	pending  map[network.Token][]network.FileResult
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{pending: make(map[network.Token][]network.FileResult)}
}

func (f *fakeRegistry) Start(ctx context.Context, artist, song, rawQuery string) (network.Token, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", "", f.err
	}
	if f.declined {
		return "", rawQuery, nil
	}
	f.next++
	query := rawQuery
	if artist != "" || song != "" {
		query = strings.TrimSpace(artist + " " + song)
	}
	return network.Token("tok-" + string(rune('0'+f.next))), query, nil
}

func (f *fakeRegistry) Stop(token network.Token) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, token)
}

func (f *fakeRegistry) TakeUnpushed(token network.Token) []network.FileResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending[token]
	delete(f.pending, token)
	return out
}

func (f *fakeRegistry) add(token network.Token, results ...network.FileResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[token] = append(f.pending[token], results...)
}

func (f *fakeRegistry) stoppedTokens() []network.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]network.Token(nil), f.stopped...)
}

func searchServer(t *testing.T, sockets *SearchSockets) string {
	t.Helper()
	e := echo.New()
	e.GET("/ws/search/:clientID", sockets.HandleWebSocket)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *gws.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(v))
}

func TestSearchSocketStartAndStop(t *testing.T) {
	registry := newFakeRegistry()
	sockets := NewSearchSockets(registry, zerolog.Nop())
	conn := dial(t, searchServer(t, sockets)+"/ws/search/client-1")

	require.NoError(t, conn.WriteJSON(SearchRequest{Action: ActionStartSearch, Artist: "Nujabes", Song: "Aruarian Dance"}))
	var started SearchReply
	readJSON(t, conn, &started)
	assert.Equal(t, StatusSearchStarted, started.Status)
	assert.NotEmpty(t, started.SearchID)
	assert.Equal(t, "Nujabes Aruarian Dance", started.ActualQuery)
	assert.Equal(t, []network.Token{started.SearchID}, sockets.Tokens("client-1"))

	require.NoError(t, conn.WriteJSON(SearchRequest{Action: ActionStopSearch, SearchID: started.SearchID}))
	var stopped SearchReply
	readJSON(t, conn, &stopped)
	assert.Equal(t, StatusSearchStopped, stopped.Status)
	assert.Equal(t, started.SearchID, stopped.SearchID)
	assert.Empty(t, sockets.Tokens("client-1"))
	assert.Equal(t, []network.Token{started.SearchID}, registry.stoppedTokens())
}

func TestSearchSocketStartFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*fakeRegistry)
		wantText string
	}{
		{
			name:     "registry error",
			setup:    func(f *fakeRegistry) { f.err = errors.New("not logged in") },
			wantText: "not logged in",
		},
		{
			name:     "no token",
			setup:    func(f *fakeRegistry) { f.declined = true },
			wantText: "declined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := newFakeRegistry()
			tt.setup(registry)
			sockets := NewSearchSockets(registry, zerolog.Nop())
			conn := dial(t, searchServer(t, sockets)+"/ws/search/c")

			require.NoError(t, conn.WriteJSON(SearchRequest{Action: ActionStartSearch, Query: "anything"}))
			var reply SearchReply
			readJSON(t, conn, &reply)
			assert.Equal(t, StatusSearchFailed, reply.Status)
			assert.Contains(t, reply.Error, tt.wantText)
			assert.Empty(t, sockets.Tokens("c"))
		})
	}
}

func TestSearchSocketUnknownAction(t *testing.T) {
	sockets := NewSearchSockets(newFakeRegistry(), zerolog.Nop())
	conn := dial(t, searchServer(t, sockets)+"/ws/search/c")

	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte(`{"action":"dance"}`)))
	var reply SearchReply
	readJSON(t, conn, &reply)
	assert.Equal(t, StatusSearchFailed, reply.Status)
}

func TestSearchSocketSweepPushesNewResults(t *testing.T) {
	registry := newFakeRegistry()
	sockets := NewSearchSockets(registry, zerolog.Nop())
	conn := dial(t, searchServer(t, sockets)+"/ws/search/c")

	require.NoError(t, conn.WriteJSON(SearchRequest{Action: ActionStartSearch, Query: "song"}))
	var started SearchReply
	readJSON(t, conn, &started)

	registry.add(started.SearchID, network.FileResult{Username: "peer", Path: "Music\\song.flac", Size: 10})
	sockets.Sweep()

	var push ResultsPush
	readJSON(t, conn, &push)
	assert.Equal(t, started.SearchID, push.SearchID)
	require.Len(t, push.Results, 1)
	assert.Equal(t, "peer", push.Results[0].Username)

	// Nothing new: nothing pushed, and a later result arrives on its own.
	sockets.Sweep()
	registry.add(started.SearchID, network.FileResult{Username: "other", Path: "b.mp3", Size: 1})
	sockets.Sweep()
	readJSON(t, conn, &push)
	require.Len(t, push.Results, 1)
	assert.Equal(t, "other", push.Results[0].Username)
}

func TestSearchSocketCloseStopsOwnedSearches(t *testing.T) {
	registry := newFakeRegistry()
	sockets := NewSearchSockets(registry, zerolog.Nop())
	conn := dial(t, searchServer(t, sockets)+"/ws/search/c")

	var ids []network.Token
	for _, q := range []string{"one", "two"} {
		require.NoError(t, conn.WriteJSON(SearchRequest{Action: ActionStartSearch, Query: q}))
		var reply SearchReply
		readJSON(t, conn, &reply)
		ids = append(ids, reply.SearchID)
	}

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return len(registry.stoppedTokens()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, ids, registry.stoppedTokens())
	assert.Empty(t, sockets.Tokens("c"))
}

func TestSearchSocketsBookkeeping(t *testing.T) {
	registry := newFakeRegistry()
	sockets := NewSearchSockets(registry, zerolog.Nop())

	sockets.AddSearch("a", "t1")
	sockets.AddSearch("a", "t2")
	sockets.AddSearch("b", "t3")
	assert.ElementsMatch(t, []network.Token{"t1", "t2"}, sockets.Tokens("a"))

	sockets.Forget("t1")
	assert.Equal(t, []network.Token{"t2"}, sockets.Tokens("a"))
	assert.Empty(t, registry.stoppedTokens(), "Forget must not stop the session")

	sockets.RemoveSearch("b", "t3")
	assert.Empty(t, sockets.Tokens("b"))
	assert.Equal(t, []network.Token{"t3"}, registry.stoppedTokens())

	sockets.CloseConnection("a")
	assert.Nil(t, sockets.Tokens("a"))
	assert.ElementsMatch(t, []network.Token{"t3", "t2"}, registry.stoppedTokens())

	// Unknown connections are a no-op.
	sockets.CloseConnection("missing")

	// Results for a connection without a live socket are dropped quietly.
	sockets.AddSearch("ghost", "t4")
	registry.add("t4", network.FileResult{Username: "u", Path: "p"})
	sockets.Sweep()
	assert.Empty(t, registry.TakeUnpushed("t4"))
}
