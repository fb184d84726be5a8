package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	ingested []string
	removed  []string
}

func (s *recordingSink) Ingest(ctx context.Context, absPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingested = append(s.ingested, absPath)
	return nil
}

func (s *recordingSink) Remove(ctx context.Context, absPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, absPath)
	return nil
}

func (s *recordingSink) snapshot() (ingested, removed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ingested...), append([]string(nil), s.removed...)
}

func startService(t *testing.T) (string, *recordingSink) {
	t.Helper()
	root := t.TempDir()
	sink := &recordingSink{}

	svc, err := NewService(root, sink, 50*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, svc.Start())
	t.Cleanup(func() { _ = svc.Stop() })
	return root, sink
}

func TestServiceIngestsNewAudioFiles(t *testing.T) {
	root, sink := startService(t)

	song := filepath.Join(root, "song.flac")
	require.NoError(t, os.WriteFile(song, []byte("audio"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "cover.jpg"), []byte("image"), 0o644))

	require.Eventually(t, func() bool {
		ingested, _ := sink.snapshot()
		return len(ingested) == 1
	}, 3*time.Second, 20*time.Millisecond)

	ingested, _ := sink.snapshot()
	assert.Equal(t, []string{song}, ingested)
}

func TestServiceRemovesDeletedAudioFiles(t *testing.T) {
	root, sink := startService(t)

	song := filepath.Join(root, "song.mp3")
	require.NoError(t, os.WriteFile(song, []byte("audio"), 0o644))
	require.Eventually(t, func() bool {
		ingested, _ := sink.snapshot()
		return len(ingested) == 1
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(song))
	require.Eventually(t, func() bool {
		_, removed := sink.snapshot()
		return len(removed) == 1 && removed[0] == song
	}, 3*time.Second, 20*time.Millisecond)
}

func TestServiceWatchesNewSubdirectories(t *testing.T) {
	root, sink := startService(t)

	album := filepath.Join(root, "Artist", "Album")
	require.NoError(t, os.MkdirAll(album, 0o755))
	// Give the watcher a moment to register the new directories.
	time.Sleep(100 * time.Millisecond)

	track := filepath.Join(album, "01 - Track.ogg")
	require.NoError(t, os.WriteFile(track, []byte("audio"), 0o644))

	require.Eventually(t, func() bool {
		ingested, _ := sink.snapshot()
		for _, p := range ingested {
			if p == track {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherIgnoresWritesWithoutCreate(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "old.mp3")
	require.NoError(t, os.WriteFile(existing, []byte("audio"), 0o644))

	w, err := New(Config{DebounceDelay: 30 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)

	var mu sync.Mutex
	var batches [][]FileEvent
	w.SetHandler(func(events []FileEvent) {
		mu.Lock()
		batches = append(batches, events)
		mu.Unlock()
	})
	require.NoError(t, w.AddPath(root))
	w.Start()
	defer w.Stop()

	f, err := os.OpenFile(existing, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, _ = f.Write([]byte("more"))
	require.NoError(t, f.Close())

	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, batches)
}

func TestWatcherHandlesBatchesInOrder(t *testing.T) {
	w, err := New(Config{DebounceDelay: time.Hour, MaxBatchSize: 1}, zerolog.Nop())
	require.NoError(t, err)

	release := make(chan struct{})
	var running, overlapped atomic.Int32
	var mu sync.Mutex
	var handled []Op
	w.SetHandler(func(events []FileEvent) {
		if running.Add(1) > 1 {
			overlapped.Add(1)
		}
		defer running.Add(-1)

		if events[0].Op == OpCreate {
			<-release
		}
		mu.Lock()
		handled = append(handled, events[0].Op)
		mu.Unlock()
	})
	w.Start()
	defer w.Stop()

	// A batch size of one flushes each event straight away.
	w.addPendingEvent(FileEvent{Path: "/music/x.flac", Op: OpCreate, Timestamp: time.Now()})
	w.addPendingEvent(FileEvent{Path: "/music/x.flac", Op: OpRemove, Timestamp: time.Now()})

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, handled, "remove must wait for the slow create")
	mu.Unlock()

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []Op{OpCreate, OpRemove}, handled)
	mu.Unlock()
	assert.Zero(t, overlapped.Load())
}

func TestWatcherStopHandlesFlushedBatches(t *testing.T) {
	w, err := New(Config{DebounceDelay: time.Hour}, zerolog.Nop())
	require.NoError(t, err)

	var handled atomic.Int32
	w.SetHandler(func(events []FileEvent) { handled.Add(int32(len(events))) })
	w.Start()

	w.addPendingEvent(FileEvent{Path: "/music/a.mp3", Op: OpCreate, Timestamp: time.Now()})
	require.NoError(t, w.Stop())
	assert.Equal(t, int32(1), handled.Load())
}
