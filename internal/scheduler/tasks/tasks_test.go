package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunedrift/tunedrift/internal/library"
	"github.com/tunedrift/tunedrift/internal/progress"
	"github.com/tunedrift/tunedrift/internal/scheduler"
)

type fakeSyncer struct {
	err   error
	calls atomic.Int32
}

func (f *fakeSyncer) Sync(ctx context.Context) (library.SyncResult, error) {
	f.calls.Add(1)
	return library.SyncResult{Scanned: 3, Added: 1}, f.err
}

type fakeSweeper struct{ calls atomic.Int32 }

func (f *fakeSweeper) Sweep() { f.calls.Add(1) }

type fakePruner struct{ ttl atomic.Int64 }

func (f *fakePruner) Prune(maxAge time.Duration) int {
	f.ttl.Store(int64(maxAge))
	return 2
}

type fakeRescanner struct {
	err   error
	calls atomic.Int32
}

func (f *fakeRescanner) RescanShares(ctx context.Context) error {
	f.calls.Add(1)
	return f.err
}

func newScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	s, err := scheduler.New(zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestLibrarySyncTaskRun(t *testing.T) {
	syncer := &fakeSyncer{}
	task := NewLibrarySyncTask(syncer, zerolog.Nop())
	assert.NoError(t, task.Run(context.Background()))

	syncer.err = errors.New("disk gone")
	assert.Error(t, task.Run(context.Background()))
	assert.Equal(t, int32(2), syncer.calls.Load())
}

func TestRegisteredTasksRunOnDemand(t *testing.T) {
	s := newScheduler(t)
	syncer := &fakeSyncer{}
	sweeper := &fakeSweeper{}
	pruner := &fakePruner{}

	require.NoError(t, RegisterLibrarySyncTask(s, syncer, time.Hour, zerolog.Nop()))
	require.NoError(t, RegisterSearchPushTask(s, sweeper, time.Hour))
	require.NoError(t, RegisterSearchPruneTask(s, pruner, 30*time.Minute, zerolog.Nop()))
	assert.Len(t, s.ListTasks(), 3)

	require.NoError(t, s.RunNow(LibrarySyncTaskID))
	require.NoError(t, s.RunNow(SearchPushTaskID))
	require.NoError(t, s.RunNow(SearchPruneTaskID))

	require.Eventually(t, func() bool {
		return syncer.calls.Load() == 1 && sweeper.calls.Load() == 1 && pruner.ttl.Load() != 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(30*time.Minute), pruner.ttl.Load())
}

func TestShareRescanIsDelayedAndCollapsed(t *testing.T) {
	s := newScheduler(t)
	rescanner := &fakeRescanner{}
	rescan := NewShareRescan(s, rescanner, zerolog.Nop())

	rescan.ScheduleRescan(50 * time.Millisecond)
	rescan.ScheduleRescan(50 * time.Millisecond)
	assert.Equal(t, int32(0), rescanner.calls.Load())

	require.Eventually(t, func() bool { return rescanner.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), rescanner.calls.Load())
}

func TestShareRescanNow(t *testing.T) {
	rescanner := &fakeRescanner{err: errors.New("offline")}
	rescan := NewShareRescan(newScheduler(t), rescanner, zerolog.Nop())
	assert.Error(t, rescan.Rescan(context.Background()))
}

func TestShareRescanReportsActivity(t *testing.T) {
	activities := progress.NewManager(nil, zerolog.Nop())
	rescanner := &fakeRescanner{}
	r := NewShareRescan(newScheduler(t), rescanner, zerolog.Nop())
	r.SetProgress(activities)

	require.NoError(t, r.Rescan(context.Background()))
	got, ok := activities.Get(ShareRescanJobKey)
	require.True(t, ok)
	assert.Equal(t, progress.StatusCompleted, got.Status)

	rescanner.err = errors.New("offline")
	require.Error(t, r.Rescan(context.Background()))
	got, _ = activities.Get(ShareRescanJobKey)
	assert.Equal(t, progress.StatusFailed, got.Status)
	assert.Equal(t, "offline", got.Error)
}
