// Package watcher turns filesystem changes under the library root into
// ingest and remove calls.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/audio"
)

// Op is the kind of change a FileEvent reports.
type Op string

const (
	OpCreate Op = "create"
	OpRemove Op = "remove"
)

// FileEvent is a debounced change to one audio file.
type FileEvent struct {
	Path      string    `json:"path"`
	Op        Op        `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// FileEventHandler is called with each flushed batch.
type FileEventHandler func(events []FileEvent)

// Config holds watcher configuration.
type Config struct {
	// DebounceDelay is how long to wait after the last event before processing.
	// Files still being written keep pushing the flush back.
	DebounceDelay time.Duration

	// MaxBatchSize forces a flush once this many files are pending.
	MaxBatchSize int
}

// DefaultConfig returns default watcher configuration.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: time.Second,
		MaxBatchSize:  100,
	}
}

// Watcher recursively monitors directories for audio file changes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	config    Config
	logger    zerolog.Logger
	handler   FileEventHandler

	watchedPaths map[string]bool
	pathsMu      sync.RWMutex

	pendingEvents map[string]FileEvent
	eventsMu      sync.Mutex
	debounceTimer *time.Timer

	// Flushed batches wait here and are handled one at a time, in order.
	batches    [][]FileEvent
	batchReady chan struct{}
	stopped    chan struct{}

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	dispatchDone sync.WaitGroup
}

// New creates a new file watcher.
func New(config Config, logger zerolog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = DefaultConfig().MaxBatchSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		fsWatcher:     fsWatcher,
		config:        config,
		logger:        logger.With().Str("component", "watcher").Logger(),
		watchedPaths:  make(map[string]bool),
		pendingEvents: make(map[string]FileEvent),
		batchReady:    make(chan struct{}, 1),
		stopped:       make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// SetHandler sets the event handler function.
func (w *Watcher) SetHandler(handler FileEventHandler) {
	w.handler = handler
}

// Start begins watching for file events.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.eventLoop()
	w.dispatchDone.Add(1)
	go w.dispatchLoop()
}

// Stop stops the watcher, flushing pending events, and waits until every
// flushed batch has been handled.
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()
	close(w.stopped)
	w.dispatchDone.Wait()
	return w.fsWatcher.Close()
}

// dispatchLoop hands batches to the handler sequentially, so a remove is
// never processed while an earlier create for the same file is still running.
func (w *Watcher) dispatchLoop() {
	defer w.dispatchDone.Done()
	for {
		select {
		case <-w.batchReady:
			w.drainBatches()
		case <-w.stopped:
			w.drainBatches()
			return
		}
	}
}

func (w *Watcher) drainBatches() {
	for {
		w.eventsMu.Lock()
		if len(w.batches) == 0 {
			w.eventsMu.Unlock()
			return
		}
		events := w.batches[0]
		w.batches = w.batches[1:]
		w.eventsMu.Unlock()

		if w.handler != nil {
			w.handler(events)
		}
	}
}

// AddPath watches path and every directory below it.
func (w *Watcher) AddPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.pathsMu.Lock()
	defer w.pathsMu.Unlock()

	if w.watchedPaths[absPath] {
		return nil
	}
	if err := w.fsWatcher.Add(absPath); err != nil {
		return err
	}
	w.watchedPaths[absPath] = true
	w.logger.Info().Str("path", absPath).Msg("Added watch path")

	w.addSubdirsLocked(absPath)
	return nil
}

// addSubdirsLocked watches every directory below dir. Caller holds pathsMu.
func (w *Watcher) addSubdirsLocked(dir string) {
	err := filepath.WalkDir(dir, func(subPath string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && subPath != dir && !w.watchedPaths[subPath] {
			if err := w.fsWatcher.Add(subPath); err != nil {
				w.logger.Warn().Err(err).Str("path", subPath).Msg("Failed to add subdirectory watch")
				return nil
			}
			w.watchedPaths[subPath] = true
		}
		return nil
	})
	if err != nil {
		w.logger.Warn().Err(err).Str("path", dir).Msg("Error walking subdirectories")
	}
}

// WatchedPaths returns the list of currently watched directories.
func (w *Watcher) WatchedPaths() []string {
	w.pathsMu.RLock()
	defer w.pathsMu.RUnlock()

	paths := make([]string, 0, len(w.watchedPaths))
	for path := range w.watchedPaths {
		paths = append(paths, path)
	}
	return paths
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			w.flushPendingEvents()
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	if !audio.IsAudioFile(event.Name) {
		// New directories are watched so files moved or downloaded into them are seen.
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				w.pathsMu.Lock()
				if err := w.fsWatcher.Add(event.Name); err == nil {
					w.watchedPaths[event.Name] = true
					w.addSubdirsLocked(event.Name)
				}
				w.pathsMu.Unlock()
				w.logger.Debug().Str("path", event.Name).Msg("Added new subdirectory to watch")
				w.queueExisting(event.Name)
			}
		}
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		w.addPendingEvent(FileEvent{Path: event.Name, Op: OpCreate, Timestamp: time.Now()})
	case event.Has(fsnotify.Write):
		// Writes only postpone an already pending create.
		w.touchPendingCreate(event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.addPendingEvent(FileEvent{Path: event.Name, Op: OpRemove, Timestamp: time.Now()})
	}
}

// queueExisting reports audio files that were already inside a directory
// when it was moved into a watched tree.
func (w *Watcher) queueExisting(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() && audio.IsAudioFile(path) {
			w.addPendingEvent(FileEvent{Path: path, Op: OpCreate, Timestamp: time.Now()})
		}
		return nil
	})
}

func (w *Watcher) touchPendingCreate(path string) {
	w.eventsMu.Lock()
	pending, ok := w.pendingEvents[path]
	w.eventsMu.Unlock()
	if ok && pending.Op == OpCreate {
		pending.Timestamp = time.Now()
		w.addPendingEvent(pending)
	}
}

// addPendingEvent records event, replacing any earlier one for the same path,
// and restarts the debounce timer.
func (w *Watcher) addPendingEvent(event FileEvent) {
	w.eventsMu.Lock()
	defer w.eventsMu.Unlock()

	w.pendingEvents[event.Path] = event

	if len(w.pendingEvents) >= w.config.MaxBatchSize {
		w.flushPendingEventsLocked()
		return
	}

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.config.DebounceDelay, func() {
		w.eventsMu.Lock()
		defer w.eventsMu.Unlock()
		w.flushPendingEventsLocked()
	})
}

func (w *Watcher) flushPendingEvents() {
	w.eventsMu.Lock()
	defer w.eventsMu.Unlock()
	w.flushPendingEventsLocked()
}

// flushPendingEventsLocked hands pending events to the handler. Caller holds eventsMu.
func (w *Watcher) flushPendingEventsLocked() {
	if len(w.pendingEvents) == 0 {
		return
	}

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}

	events := make([]FileEvent, 0, len(w.pendingEvents))
	for _, event := range w.pendingEvents {
		events = append(events, event)
	}
	w.pendingEvents = make(map[string]FileEvent)

	w.batches = append(w.batches, events)
	select {
	case w.batchReady <- struct{}{}:
	default:
	}

	w.logger.Debug().Int("count", len(events)).Msg("Flushed file events")
}
