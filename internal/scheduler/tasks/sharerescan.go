package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/library"
	"github.com/tunedrift/tunedrift/internal/progress"
	"github.com/tunedrift/tunedrift/internal/scheduler"
)

const ShareRescanJobKey = "share-rescan"

// Rescanner asks the peer network to rescan shared folders.
type Rescanner interface {
	RescanShares(ctx context.Context) error
}

// ShareRescan runs share rescans on the scheduler, off the event bridge.
type ShareRescan struct {
	sched     *scheduler.Scheduler
	rescanner Rescanner
	progress  library.Progress
	logger    zerolog.Logger
}

// NewShareRescan creates a share rescan runner.
func NewShareRescan(sched *scheduler.Scheduler, rescanner Rescanner, logger zerolog.Logger) *ShareRescan {
	return &ShareRescan{
		sched:     sched,
		rescanner: rescanner,
		logger:    logger.With().Str("task", ShareRescanJobKey).Logger(),
	}
}

// SetProgress reports rescans as activities.
func (r *ShareRescan) SetProgress(p library.Progress) {
	r.progress = p
}

// ScheduleRescan queues a rescan after delay. Pending rescans are replaced.
func (r *ShareRescan) ScheduleRescan(delay time.Duration) {
	if err := r.sched.ScheduleOnce(ShareRescanJobKey, delay, r.Rescan); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to schedule share rescan")
	}
}

// Rescan asks for a rescan now.
func (r *ShareRescan) Rescan(ctx context.Context) error {
	if r.progress != nil {
		r.progress.Start(ShareRescanJobKey, progress.ActivityShareRescan, "Share rescan")
	}
	if err := r.rescanner.RescanShares(ctx); err != nil {
		if r.progress != nil {
			r.progress.Fail(ShareRescanJobKey, err.Error())
		}
		return err
	}
	if r.progress != nil {
		r.progress.Complete(ShareRescanJobKey, "Requested")
	}
	r.logger.Info().Msg("Share rescan requested")
	return nil
}
