package search

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newSearchServer(t *testing.T, gate Gate) (*echo.Echo, *Registry) {
	t.Helper()
	r := NewRegistry(connectedMock(t), gate, time.Millisecond, zerolog.Nop())
	e := echo.New()
	NewHandlers(r).RegisterRoutes(e.Group("/api/v1/search/network"))
	return e, r
}

func TestHandlersStartAndPoll(t *testing.T) {
	e, r := newSearchServer(t, staticGate(true))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search/network", strings.NewReader(`{"query":"some song"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var started StartResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	if started.SearchToken == "" || started.ActualQuery != "some song" {
		t.Fatalf("start response = %+v", started)
	}

	r.AppendResults(started.SearchToken, results(2))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search/network/"+string(started.SearchToken), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	var polled PollResult
	if err := json.Unmarshal(rec.Body.Bytes(), &polled); err != nil {
		t.Fatalf("decode poll response: %v", err)
	}
	if polled.ResultCount != 2 || polled.IsComplete {
		t.Errorf("poll = %+v, want 2 incomplete results", polled)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/search/network/"+string(started.SearchToken), nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d", rec.Code)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after DELETE", r.Len())
	}
}

func TestHandlersStartNotLoggedIn(t *testing.T) {
	e, r := newSearchServer(t, staticGate(false))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search/network", strings.NewReader(`{"query":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want no session", r.Len())
	}
}
