package musicbrainz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/config"
)

func newTestClient(server *httptest.Server) *Client {
	cfg := config.MetadataConfig{
		UserAgent:       "TuneDrift/test",
		Timeout:         5,
		MusicBrainzURL:  server.URL,
		MusicBrainzRate: 1000,
	}
	return NewClient(cfg, zerolog.Nop())
}

func TestClient_FindRecording(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recording" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("query"); got != `artist:"Daft Punk" AND recording:"Digital Love"` {
			t.Errorf("unexpected query: %s", got)
		}
		if r.Header.Get("User-Agent") != "TuneDrift/test" {
			t.Errorf("missing user agent, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":1,"recordings":[{
			"id":"rec-1","score":100,"title":"Digital Love","length":301000,
			"artist-credit":[{"name":"Daft Punk","joinphrase":"","artist":{"id":"a1","name":"Daft Punk"}}],
			"releases":[{"id":"rel-1","title":"Discovery","date":"2001-03-12"}]
		}]}`))
	}))
	defer server.Close()

	rec, err := newTestClient(server).FindRecording(context.Background(), "Daft Punk", "Digital Love")
	if err != nil {
		t.Fatalf("FindRecording() error = %v", err)
	}
	if rec == nil {
		t.Fatal("FindRecording() = nil")
	}
	if rec.Artist != "Daft Punk" || rec.Album != "Discovery" || rec.Year != "2001" || rec.ReleaseID != "rel-1" {
		t.Errorf("FindRecording() = %+v", rec)
	}
}

func TestClient_FindRecordingNoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":0,"recordings":[]}`))
	}))
	defer server.Close()

	rec, err := newTestClient(server).FindRecording(context.Background(), "Nobody", "Nothing")
	if err != nil || rec != nil {
		t.Errorf("FindRecording() = %v, %v; want nil, nil", rec, err)
	}
}

func TestClient_FindRelease(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/release" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"releases":[{"id":"rel-9","score":95,"title":"Random Access Memories","date":"2013",
			"artist-credit":[{"name":"Daft Punk","joinphrase":" & "},{"name":"Friends"}]}]}`))
	}))
	defer server.Close()

	rel, err := newTestClient(server).FindRelease(context.Background(), "Daft Punk", "Random Access Memories")
	if err != nil {
		t.Fatalf("FindRelease() error = %v", err)
	}
	if rel.ID != "rel-9" || rel.Artist != "Daft Punk & Friends" || rel.Year != "2013" {
		t.Errorf("FindRelease() = %+v", rel)
	}
}

func TestClient_RateLimitedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server).SearchRecordings(context.Background(), "x", 5)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("SearchRecordings() error = %v, want ErrRateLimited", err)
	}
}
