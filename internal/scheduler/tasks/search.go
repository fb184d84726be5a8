package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/scheduler"
)

const (
	SearchPushTaskID  = "search-push"
	SearchPruneTaskID = "search-prune"
)

// Sweeper pushes newly arrived search results to their owners.
type Sweeper interface {
	Sweep()
}

// Pruner expires old search sessions.
type Pruner interface {
	Prune(maxAge time.Duration) int
}

// RegisterSearchPushTask registers the live search results push.
func RegisterSearchPushTask(sched *scheduler.Scheduler, sweeper Sweeper, interval time.Duration) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          SearchPushTaskID,
		Name:        "Search Push",
		Description: "Pushes new search results to connected search clients",
		Interval:    interval,
		Quiet:       true,
		Func: func(ctx context.Context) error {
			sweeper.Sweep()
			return nil
		},
	})
}

// RegisterSearchPruneTask registers expiry of sessions older than ttl.
func RegisterSearchPruneTask(sched *scheduler.Scheduler, pruner Pruner, ttl time.Duration, logger zerolog.Logger) error {
	log := logger.With().Str("task", SearchPruneTaskID).Logger()
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          SearchPruneTaskID,
		Name:        "Search Prune",
		Description: "Forgets search sessions that outlived their time to live",
		Interval:    ttl / 2,
		Quiet:       true,
		Func: func(ctx context.Context) error {
			if n := pruner.Prune(ttl); n > 0 {
				log.Info().Int("sessions", n).Msg("Pruned expired search sessions")
			}
			return nil
		},
	})
}
