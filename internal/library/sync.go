package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/tunedrift/tunedrift/internal/audio"
	"github.com/tunedrift/tunedrift/internal/progress"
)

// DefaultSyncWorkers bounds concurrent ingestions during a sync.
const DefaultSyncWorkers = 4

// IngestOutcome reports what an ingestion did with a file.
type IngestOutcome string

const (
	IngestCommitted IngestOutcome = "committed"
	IngestSkipped   IngestOutcome = "skipped"
)

// Ingester turns an audio file into a library record.
type Ingester interface {
	IngestFile(ctx context.Context, absPath string) (IngestOutcome, error)
}

// Progress receives activity updates while a sync runs.
type Progress interface {
	Start(id string, kind progress.ActivityType, title string)
	Update(id, subtitle string, percent int)
	Complete(id, subtitle string)
	Fail(id, message string)
}

// SyncActivityID identifies the library sync in progress reports.
const SyncActivityID = "library-sync"

// SyncResult summarizes one reconciliation pass.
type SyncResult struct {
	Scanned  int           `json:"scanned"`
	Added    int           `json:"added"`
	Removed  int           `json:"removed"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Syncer reconciles the store with the audio files under the library root.
type Syncer struct {
	store    *Store
	fs       afero.Fs
	root     string
	ingester Ingester
	workers  int
	progress Progress
	logger   zerolog.Logger
}

// NewSyncer creates a syncer. A non-positive workers uses DefaultSyncWorkers.
func NewSyncer(store *Store, fs afero.Fs, root string, ingester Ingester, workers int, logger zerolog.Logger) *Syncer {
	if workers <= 0 {
		workers = DefaultSyncWorkers
	}
	return &Syncer{
		store:    store,
		fs:       fs,
		root:     root,
		ingester: ingester,
		workers:  workers,
		logger:   logger.With().Str("component", "library-sync").Logger(),
	}
}

// SetProgress reports sync progress to p.
func (s *Syncer) SetProgress(p Progress) {
	s.progress = p
}

// RelPath returns absPath relative to root in slash form.
func RelPath(root, absPath string) (string, error) {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", absPath, root)
	}
	return filepath.ToSlash(rel), nil
}

// Sync removes records whose file vanished and ingests files that have no record.
func (s *Syncer) Sync(ctx context.Context) (result SyncResult, err error) {
	start := time.Now()
	if s.progress != nil {
		s.progress.Start(SyncActivityID, progress.ActivityLibrarySync, "Library sync")
		defer func() {
			if err != nil {
				s.progress.Fail(SyncActivityID, err.Error())
				return
			}
			s.progress.Complete(SyncActivityID, fmt.Sprintf("%d added, %d removed, %d failed", result.Added, result.Removed, result.Failed))
		}()
	}

	indexed, err := s.store.SongPaths(ctx)
	if err != nil {
		return result, err
	}

	onDisk := make(map[string]string)
	err = afero.Walk(s.fs, s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable path")
			return nil
		}
		if info.IsDir() || !audio.IsAudioFile(path) {
			return nil
		}
		rel, err := RelPath(s.root, path)
		if err != nil {
			return nil
		}
		onDisk[rel] = path
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to walk library root: %w", err)
	}
	result.Scanned = len(onDisk)

	for rel := range indexed {
		if _, ok := onDisk[rel]; ok {
			continue
		}
		if _, err := s.store.RemoveSong(ctx, rel); err != nil {
			s.logger.Warn().Err(err).Str("path", rel).Msg("Failed to remove vanished song")
			continue
		}
		result.Removed++
	}

	var pending []string
	for rel, abs := range onDisk {
		if _, ok := indexed[rel]; !ok {
			pending = append(pending, abs)
		}
	}

	var added, skipped, failed, done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, abs := range pending {
		g.Go(func() error {
			defer func() { s.report(int(done.Add(1)), len(pending)) }()
			outcome, err := s.ingester.IngestFile(gctx, abs)
			switch {
			case err != nil:
				failed.Add(1)
				s.logger.Warn().Err(err).Str("path", abs).Msg("Failed to ingest file")
			case outcome == IngestCommitted:
				added.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Added = int(added.Load())
	result.Skipped = int(skipped.Load())
	result.Failed = int(failed.Load())
	result.Duration = time.Since(start)

	s.logger.Info().
		Int("scanned", result.Scanned).
		Int("added", result.Added).
		Int("removed", result.Removed).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Library sync complete")

	return result, ctx.Err()
}

func (s *Syncer) report(done, total int) {
	if s.progress == nil || total == 0 {
		return
	}
	s.progress.Update(SyncActivityID, fmt.Sprintf("%d of %d files", done, total), done*100/total)
}
