package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/library"
	"github.com/tunedrift/tunedrift/internal/scheduler"
)

const LibrarySyncTaskID = "library-sync"

// Syncer reconciles the library store with the files on disk.
type Syncer interface {
	Sync(ctx context.Context) (library.SyncResult, error)
}

// LibrarySyncTask handles scheduled library reconciliation.
type LibrarySyncTask struct {
	syncer Syncer
	logger zerolog.Logger
}

// NewLibrarySyncTask creates a new library sync task.
func NewLibrarySyncTask(syncer Syncer, logger zerolog.Logger) *LibrarySyncTask {
	return &LibrarySyncTask{
		syncer: syncer,
		logger: logger.With().Str("task", LibrarySyncTaskID).Logger(),
	}
}

// Run executes one reconciliation pass.
func (t *LibrarySyncTask) Run(ctx context.Context) error {
	result, err := t.syncer.Sync(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("Library sync failed")
		return err
	}

	t.logger.Info().
		Int("scanned", result.Scanned).
		Int("added", result.Added).
		Int("removed", result.Removed).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Library sync completed")
	return nil
}

// RegisterLibrarySyncTask registers the periodic library sync with the scheduler.
func RegisterLibrarySyncTask(sched *scheduler.Scheduler, syncer Syncer, interval time.Duration, logger zerolog.Logger) error {
	task := NewLibrarySyncTask(syncer, logger)
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          LibrarySyncTaskID,
		Name:        "Library Sync",
		Description: "Indexes new audio files and drops records whose file is gone",
		Interval:    interval,
		Func:        task.Run,
	})
}
