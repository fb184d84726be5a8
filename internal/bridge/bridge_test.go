package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/network"
	"github.com/tunedrift/tunedrift/internal/network/mock"
)

type recordingSink struct {
	mu        sync.Mutex
	results   map[network.Token]int
	transfers []network.Transfer
}

func newRecordingSink() *recordingSink {
	return &recordingSink{results: make(map[network.Token]int)}
}

func (s *recordingSink) AppendResults(token network.Token, results []network.FileResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[token] += len(results)
}

func (s *recordingSink) Apply(t network.Transfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers = append(s.transfers, t)
}

func TestDrainDispatchesEachEvent(t *testing.T) {
	ctx := context.Background()
	client := mock.New("me")
	sink := newRecordingSink()
	b := New(client, sink, sink, 0, zerolog.Nop())

	if b.LoggedIn() {
		t.Fatal("LoggedIn() should start false")
	}

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Script("q", network.FileResult{Username: "peer", Path: "a.mp3"}, network.FileResult{Username: "peer", Path: "b.mp3"})
	token, err := client.Search(ctx, "q")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if err := client.EnqueueDownload(ctx, network.DownloadRequest{Username: "peer", Path: "a.mp3", Size: 10}); err != nil {
		t.Fatalf("EnqueueDownload() error = %v", err)
	}

	if n := b.Drain(); n != 3 {
		t.Errorf("Drain() = %d, want 3", n)
	}

	if !b.LoggedIn() {
		t.Error("LoggedIn() = false after login event")
	}
	if b.Username() != "me" {
		t.Errorf("Username() = %q, want me", b.Username())
	}
	if sink.results[token] != 2 {
		t.Errorf("results for %s = %d, want 2", token, sink.results[token])
	}
	if len(sink.transfers) != 1 {
		t.Errorf("transfers = %d, want 1", len(sink.transfers))
	}

	select {
	case <-b.FirstLogin():
	default:
		t.Error("FirstLogin() should be closed after login")
	}

	client.Disconnect("server closed")
	b.Drain()
	if b.LoggedIn() {
		t.Error("LoggedIn() = true after disconnect")
	}
}

func TestFailedLoginKeepsLoggedOut(t *testing.T) {
	client := mock.New("me")
	client.FailLogin = true
	sink := newRecordingSink()
	b := New(client, sink, sink, 0, zerolog.Nop())

	_ = client.Connect(context.Background())
	b.Drain()

	if b.LoggedIn() {
		t.Error("LoggedIn() = true after failed login")
	}
	select {
	case <-b.FirstLogin():
		t.Error("FirstLogin() closed after failed login")
	default:
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	client := mock.New("me")
	sink := newRecordingSink()
	b := New(client, sink, sink, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	_ = client.Connect(ctx)

	deadline := time.After(2 * time.Second)
	for !b.LoggedIn() {
		select {
		case <-deadline:
			t.Fatal("bridge did not pick up login event")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
