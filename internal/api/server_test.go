package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunedrift/tunedrift/internal/config"
	"github.com/tunedrift/tunedrift/internal/logger"
	"github.com/tunedrift/tunedrift/internal/network"
	"github.com/tunedrift/tunedrift/internal/network/mock"
	"github.com/tunedrift/tunedrift/internal/scheduler/tasks"
	"github.com/tunedrift/tunedrift/internal/search"
	"github.com/tunedrift/tunedrift/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Network.Mode = "mock"
	cfg.Network.PollInterval = 10 * time.Millisecond
	cfg.Library.Root = t.TempDir()
	cfg.Library.CoversDir = t.TempDir()
	cfg.Library.Watch = false
	cfg.Search.GraceWindow = 10 * time.Millisecond
	cfg.Metadata.DisableEnrichment = true
	return cfg
}

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)

	server, err := NewServer(tdb.Conn, nil, testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})
	return server
}

// runTestServer starts the background components and waits for the mock login.
func runTestServer(t *testing.T) *Server {
	t.Helper()
	server := setupTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, server.Run(ctx))
	require.Eventually(t, server.bridge.LoggedIn, 2*time.Second, 10*time.Millisecond)
	return server
}

func (s *Server) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	server := setupTestServer(t)

	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := server.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.False(t, resp.NetworkConnected)
	}
}

func TestHealthReportsLogin(t *testing.T) {
	server := runTestServer(t)

	rec := server.do(t, http.MethodGet, "/health", "")
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.NetworkConnected)
}

func TestStatus(t *testing.T) {
	server := setupTestServer(t)

	rec := server.do(t, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, config.Version, resp["version"])
	assert.EqualValues(t, 0, resp["songCount"])
	assert.Contains(t, resp, "system")
}

func TestRomanize(t *testing.T) {
	server := setupTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		want       string
	}{
		{name: "kana", body: `{"text":"さくら"}`, wantStatus: http.StatusOK, want: "sakura"},
		{name: "latin", body: `{"text":"Café"}`, wantStatus: http.StatusOK, want: "Cafe"},
		{name: "empty", body: `{"text":""}`, wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `{`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := server.do(t, http.MethodPost, "/api/v1/romanize", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp RomanizeResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Romanized)
			assert.True(t, resp.Changed)
		})
	}
}

func TestSearchRequiresLogin(t *testing.T) {
	server := setupTestServer(t)

	rec := server.do(t, http.MethodPost, "/api/v1/search/network", `{"query":"nujabes"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = server.do(t, http.MethodPost, "/api/v1/downloads", `{"username":"peer","path":"Music\\a.flac","size":10}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = server.do(t, http.MethodPost, "/api/v1/sharing/rescan", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSearchRoundTrip(t *testing.T) {
	server := runTestServer(t)
	client := server.client.(*mock.Client)
	client.Script("nujabes", network.FileResult{Username: "peer", Path: "Music\\Nujabes\\Aruarian Dance.flac", Size: 30_000_000})

	rec := server.do(t, http.MethodPost, "/api/v1/search/network", `{"query":"nujabes"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var started search.StartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.SearchToken)
	assert.Equal(t, "nujabes", started.ActualQuery)

	require.Eventually(t, func() bool {
		rec := server.do(t, http.MethodGet, "/api/v1/search/network/"+string(started.SearchToken), "")
		var poll search.PollResult
		return rec.Code == http.StatusOK &&
			json.Unmarshal(rec.Body.Bytes(), &poll) == nil &&
			poll.ResultCount == 1
	}, 2*time.Second, 20*time.Millisecond)

	rec = server.do(t, http.MethodDelete, "/api/v1/search/network/"+string(started.SearchToken), "")
	assert.Less(t, rec.Code, 300)
}

func TestDownloadRequestAndStatus(t *testing.T) {
	server := runTestServer(t)

	rec := server.do(t, http.MethodPost, "/api/v1/downloads", `{"username":"peer","path":"Music\\Album\\01 - Song.flac","size":1234}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = server.do(t, http.MethodGet, "/api/v1/downloads/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Downloads []struct {
			Identity string `json:"identity"`
		} `json:"downloads"`
		SystemStatus struct {
			ActiveDownloads int `json:"activeDownloads"`
		} `json:"systemStatus"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Downloads, 1)
	assert.Equal(t, `peer:Music\Album\01 - Song.flac`, resp.Downloads[0].Identity)
	assert.Equal(t, 1, resp.SystemStatus.ActiveDownloads)
}

func TestSchedulerRoutes(t *testing.T) {
	server := setupTestServer(t)

	rec := server.do(t, http.MethodGet, "/api/v1/scheduler/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	ids := make([]string, 0, len(list))
	for _, task := range list {
		ids = append(ids, task["id"].(string))
	}
	assert.ElementsMatch(t, []string{tasks.LibrarySyncTaskID, tasks.SearchPushTaskID, tasks.SearchPruneTaskID}, ids)

	rec = server.do(t, http.MethodGet, "/api/v1/scheduler/tasks/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = server.do(t, http.MethodPost, "/api/v1/scheduler/tasks/missing/run", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCatalogValidation(t *testing.T) {
	server := setupTestServer(t)

	rec := server.do(t, http.MethodGet, "/api/v1/catalog/search?provider=nowhere&q=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = server.do(t, http.MethodGet, "/api/v1/catalog/providers", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLibraryRoutes(t *testing.T) {
	server := setupTestServer(t)

	rec := server.do(t, http.MethodGet, "/api/v1/library/songs", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = server.do(t, http.MethodPost, "/api/v1/playlists", `{"name":"Evening"}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestActivitiesReportSync(t *testing.T) {
	server := setupTestServer(t)

	rec := server.do(t, http.MethodGet, "/api/v1/activities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	_, err := server.Syncer().Sync(context.Background())
	require.NoError(t, err)

	rec = server.do(t, http.MethodGet, "/api/v1/activities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"library-sync"`)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)
}

type staticLogs []logger.LogEntry

func (l staticLogs) GetRecentLogs() []logger.LogEntry { return l }
func (l staticLogs) GetLogFilePath() string           { return "" }

func TestLogs(t *testing.T) {
	server := setupTestServer(t)

	rec := server.do(t, http.MethodGet, "/api/v1/system/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	server.SetLogsProvider(staticLogs{{Level: "info", Message: "hello"}})
	rec = server.do(t, http.MethodGet, "/api/v1/system/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hello")

	rec = server.do(t, http.MethodGet, "/api/v1/system/logs/download", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsAndSecurityHeaders(t *testing.T) {
	server := setupTestServer(t)

	rec := server.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = server.do(t, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
