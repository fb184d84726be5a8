package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/bridge"
	"github.com/tunedrift/tunedrift/internal/network"
	"github.com/tunedrift/tunedrift/internal/network/mock"
)

type staticGate bool

func (g staticGate) LoggedIn() bool { return bool(g) }

type discardTransfers struct{}

func (discardTransfers) Apply(network.Transfer) {}

func results(n int) []network.FileResult {
	out := make([]network.FileResult, n)
	for i := range out {
		out[i] = network.FileResult{Username: "peer", Path: fmt.Sprintf("Music\\track%02d.mp3", i), Size: 1000}
	}
	return out
}

func connectedMock(t *testing.T) *mock.Client {
	t.Helper()
	client := mock.New("me")
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.DrainEvents()
	return client
}

func startRaw(t *testing.T, r *Registry, query string) network.Token {
	t.Helper()
	token, actual, err := r.Start(context.Background(), "", "", query)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if token == "" {
		t.Fatal("Start() returned no token")
	}
	if actual != query {
		t.Fatalf("Start() actual query = %q, want %q", actual, query)
	}
	return token
}

func TestPollCompletesAfterStagnation(t *testing.T) {
	r := NewRegistry(connectedMock(t), staticGate(true), time.Millisecond, zerolog.Nop())
	token := startRaw(t, r, "song")

	counts := []int{1, 2, 5, 5, 5}
	have := 0
	for i, count := range counts {
		r.AppendResults(token, results(count-have))
		have = count

		got, ok := r.Poll(token)
		if !ok {
			t.Fatalf("poll %d: session not found", i+1)
		}
		if got.ResultCount != count {
			t.Errorf("poll %d: ResultCount = %d, want %d", i+1, got.ResultCount, count)
		}
		wantComplete := i == len(counts)-1
		if got.IsComplete != wantComplete {
			t.Errorf("poll %d: IsComplete = %v, want %v", i+1, got.IsComplete, wantComplete)
		}
	}

	// Completion is sticky and results stay until stop.
	got, _ := r.Poll(token)
	if !got.IsComplete || len(got.Results) != 5 {
		t.Errorf("after completion: IsComplete = %v, results = %d", got.IsComplete, len(got.Results))
	}
}

func TestPollGrowingCountNeverStagnates(t *testing.T) {
	r := NewRegistry(connectedMock(t), staticGate(true), time.Millisecond, zerolog.Nop())
	token := startRaw(t, r, "song")

	for i := 0; i < ResultCap-1; i++ {
		r.AppendResults(token, results(1))
		got, _ := r.Poll(token)
		if got.IsComplete {
			t.Fatalf("poll %d with growing count reported complete", i+1)
		}
	}
}

func TestPollEmptyNeverCompletes(t *testing.T) {
	r := NewRegistry(connectedMock(t), staticGate(true), time.Millisecond, zerolog.Nop())
	token := startRaw(t, r, "song")

	for i := 0; i < 2*StagnationThreshold; i++ {
		if got, _ := r.Poll(token); got.IsComplete {
			t.Fatalf("poll %d of an empty session reported complete", i+1)
		}
	}
}

func TestPollCompletesAtResultCap(t *testing.T) {
	r := NewRegistry(connectedMock(t), staticGate(true), time.Millisecond, zerolog.Nop())
	token := startRaw(t, r, "song")

	r.AppendResults(token, results(ResultCap))
	got, _ := r.Poll(token)
	if !got.IsComplete {
		t.Error("session holding ResultCap results should be complete on first poll")
	}
}

func TestPollUnknownToken(t *testing.T) {
	r := NewRegistry(connectedMock(t), staticGate(true), time.Millisecond, zerolog.Nop())

	got, ok := r.Poll("nope")
	if ok {
		t.Error("Poll() ok = true for unknown token")
	}
	if !got.IsComplete || got.Results == nil || len(got.Results) != 0 {
		t.Errorf("Poll() unknown = %+v, want empty complete result", got)
	}
}

func TestStartRequiresLogin(t *testing.T) {
	r := NewRegistry(connectedMock(t), staticGate(false), time.Millisecond, zerolog.Nop())

	_, _, err := r.Start(context.Background(), "", "", "song")
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Start() error = %v, want ErrNotLoggedIn", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after rejected start", r.Len())
	}
}

func TestStartEmptyQuery(t *testing.T) {
	r := NewRegistry(connectedMock(t), staticGate(true), time.Millisecond, zerolog.Nop())

	_, _, err := r.Start(context.Background(), "only artist", "", "  ")
	if !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Start() error = %v, want ErrEmptyQuery", err)
	}
}

func TestStartDeclinedIsSoft(t *testing.T) {
	client := connectedMock(t)
	client.DeclineSearches = true
	r := NewRegistry(client, staticGate(true), time.Millisecond, zerolog.Nop())

	token, actual, err := r.Start(context.Background(), "", "", "song")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if token != "" {
		t.Errorf("Start() token = %q, want none", token)
	}
	if actual != "song" {
		t.Errorf("Start() actual = %q, want song", actual)
	}
}

// runBridge feeds the registry from client the way the service does.
func runBridge(t *testing.T, client network.Client, r *Registry) *bridge.Bridge {
	t.Helper()
	b := bridge.New(client, r, discardTransfers{}, 2*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return b
}

func TestStartCombinedQueryWithResults(t *testing.T) {
	client := mock.New("me")
	client.Script("Artist Song", results(2)...)
	r := NewRegistry(client, nil, 300*time.Millisecond, zerolog.Nop())
	b := runBridge(t, client, r)
	r.gate = b

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, b.LoggedIn)

	token, actual, err := r.Start(context.Background(), "Artist", "Song", "artist song live")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if actual != "Artist Song" {
		t.Errorf("actual = %q, want combined query", actual)
	}
	if client.Query(token) != "Artist Song" {
		t.Errorf("token %q was issued for %q", token, client.Query(token))
	}
	if !r.Active(token) {
		t.Error("combined session should stay active")
	}
}

func TestStartFallsBackToRawQuery(t *testing.T) {
	client := mock.New("me")
	client.Script("raw query", results(3)...)
	r := NewRegistry(client, nil, 50*time.Millisecond, zerolog.Nop())
	b := runBridge(t, client, r)
	r.gate = b

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, b.LoggedIn)

	token, actual, err := r.Start(context.Background(), "Artist", "Song", "raw query")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if actual != "raw query" {
		t.Errorf("actual = %q, want raw query", actual)
	}
	if client.Query(token) != "raw query" {
		t.Errorf("returned token was issued for %q", client.Query(token))
	}

	// The superseded combined session is inactive: late results complete it at once.
	var combined network.Token = "mock-1"
	if r.Active(combined) {
		t.Error("combined session should be inactive after fallback")
	}
	r.AppendResults(combined, results(1))
	if got, _ := r.Poll(combined); !got.IsComplete {
		t.Error("inactive session with results should be complete")
	}

	waitFor(t, func() bool {
		got, _ := r.Poll(token)
		return got.ResultCount == 3
	})
}

func TestResultsBeforeRegistrationAreKept(t *testing.T) {
	r := NewRegistry(connectedMock(t), staticGate(true), time.Millisecond, zerolog.Nop())

	// The mock issues tokens in order, so the first search gets mock-1.
	r.AppendResults("mock-1", results(2))
	token := startRaw(t, r, "song")
	if token != "mock-1" {
		t.Fatalf("token = %q, want mock-1", token)
	}

	got, _ := r.Poll(token)
	if got.ResultCount != 2 {
		t.Errorf("ResultCount = %d, want 2", got.ResultCount)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r := NewRegistry(connectedMock(t), staticGate(true), time.Millisecond, zerolog.Nop())
	token := startRaw(t, r, "song")
	r.AppendResults(token, results(4))

	var stopped []network.Token
	r.OnStopped(func(tok network.Token) { stopped = append(stopped, tok) })

	r.Stop(token)
	r.Stop(token)

	if len(stopped) != 1 || stopped[0] != token {
		t.Errorf("stop hooks ran for %v, want once for %s", stopped, token)
	}
	if _, ok := r.Poll(token); ok {
		t.Error("Poll() found a stopped session")
	}

	// Late results for a stopped token do not resurrect it.
	r.AppendResults(token, results(1))
	if r.Len() != 0 {
		t.Errorf("Len() = %d after stop", r.Len())
	}
}

func TestTakeUnpushed(t *testing.T) {
	r := NewRegistry(connectedMock(t), staticGate(true), time.Millisecond, zerolog.Nop())
	token := startRaw(t, r, "song")

	if got := r.TakeUnpushed(token); got != nil {
		t.Errorf("TakeUnpushed() on empty session = %v", got)
	}

	r.AppendResults(token, results(2))
	if got := r.TakeUnpushed(token); len(got) != 2 {
		t.Errorf("TakeUnpushed() = %d results, want 2", len(got))
	}
	if got := r.TakeUnpushed(token); got != nil {
		t.Errorf("second TakeUnpushed() = %d results, want none", len(got))
	}

	r.AppendResults(token, results(3))
	if got := r.TakeUnpushed(token); len(got) != 3 {
		t.Errorf("TakeUnpushed() after more results = %d, want 3", len(got))
	}
}

func TestPrune(t *testing.T) {
	r := NewRegistry(connectedMock(t), staticGate(true), time.Millisecond, zerolog.Nop())
	startRaw(t, r, "one")
	startRaw(t, r, "two")

	if n := r.Prune(time.Hour); n != 0 {
		t.Errorf("Prune(1h) = %d, want 0", n)
	}
	if n := r.Prune(-time.Second); n != 2 {
		t.Errorf("Prune(-1s) = %d, want 2", n)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after prune", r.Len())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
