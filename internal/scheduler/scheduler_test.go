// internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSync struct {
	calls atomic.Int32
	err   error
}

func (c *countingSync) RunSyncCycle(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, c.err
}

type countingSweeper struct {
	calls atomic.Int32
}

func (c *countingSweeper) Sweep(context.Context) ([]string, error) {
	c.calls.Add(1)
	return []string{"tmp/maven-indexes/old"}, nil
}

func TestScheduler_RunsJobsImmediatelyAndRepeatedly(t *testing.T) {
	s, err := New(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)
	ctx := context.Background()

	syncer := &countingSync{err: errors.New("database down")}
	sweeper := &countingSweeper{}
	syncID, err := s.ScheduleSync(ctx, 50*time.Millisecond, syncer)
	require.NoError(t, err)
	cleanupID, err := s.ScheduleCleanup(ctx, time.Hour, sweeper)
	require.NoError(t, err)
	assert.NotEqual(t, syncID, cleanupID)

	s.Start()
	t.Cleanup(func() { _ = s.Stop() })

	assert.Eventually(t, func() bool { return syncer.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return sweeper.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_RejectsInvalidInterval(t *testing.T) {
	s, err := New(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)

	_, err = s.ScheduleSync(context.Background(), 0, &countingSync{})

	assert.Error(t, err)
}
