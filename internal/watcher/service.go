package watcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sink receives the changes the watcher reports.
type Sink interface {
	Ingest(ctx context.Context, absPath string) error
	Remove(ctx context.Context, absPath string) error
}

// Service watches the library root and forwards audio file changes to a Sink.
type Service struct {
	watcher *Watcher
	root    string
	sink    Sink
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a watcher service for root.
func NewService(root string, sink Sink, debounce time.Duration, logger zerolog.Logger) (*Service, error) {
	config := DefaultConfig()
	if debounce > 0 {
		config.DebounceDelay = debounce
	}
	watcher, err := New(config, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		watcher: watcher,
		root:    root,
		sink:    sink,
		logger:  logger.With().Str("component", "watcher-service").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
	watcher.SetHandler(s.handleEvents)
	return s, nil
}

// Start begins watching the library root.
func (s *Service) Start() error {
	if err := s.watcher.AddPath(s.root); err != nil {
		return err
	}
	s.watcher.Start()
	s.logger.Info().Str("root", s.root).Int("directories", len(s.watcher.WatchedPaths())).Msg("Watcher service started")
	return nil
}

// Stop stops the watcher service.
func (s *Service) Stop() error {
	s.cancel()
	return s.watcher.Stop()
}

func (s *Service) handleEvents(events []FileEvent) {
	for _, event := range events {
		s.logger.Debug().Str("path", event.Path).Str("op", string(event.Op)).Msg("Processing file event")

		var err error
		switch event.Op {
		case OpCreate:
			err = s.sink.Ingest(s.ctx, event.Path)
		case OpRemove:
			err = s.sink.Remove(s.ctx, event.Path)
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("path", event.Path).Str("op", string(event.Op)).Msg("Failed to process file event")
		}
	}
}
