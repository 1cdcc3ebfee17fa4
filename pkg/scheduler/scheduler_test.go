package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fadedpez/royalcharge/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsImmediatelyAndOnInterval(t *testing.T) {
	// Setup
	s := NewScheduler(nil)
	var runs atomic.Int32
	s.AddTask("count", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	// Execute
	s.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
	stopped := runs.Load()
	time.Sleep(30 * time.Millisecond)

	// Assert
	assert.Equal(t, stopped, runs.Load(), "no runs after Stop returns")
}

func TestSchedulerKeepsRunningAfterErrors(t *testing.T) {
	s := NewScheduler(nil)
	var runs atomic.Int32
	s.AddTask("failing", 5*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("boom")
	})

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestSchedulerStartAndStopAreIdempotent(t *testing.T) {
	s := NewScheduler(nil)
	var runs atomic.Int32
	s.AddTask("once", time.Hour, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	s.Start(context.Background())
	s.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	assert.Equal(t, int32(1), runs.Load())
}

type fakeReindexer struct {
	calls atomic.Int32
}

func (f *fakeReindexer) ReindexArchive(ctx context.Context) (int, error) {
	f.calls.Add(1)
	return 3, nil
}

type fakeStats struct{}

func (fakeStats) Stats() sql.DBStats {
	return sql.DBStats{OpenConnections: 4, InUse: 1, Idle: 3}
}

func TestMaintenanceScheduler(t *testing.T) {
	// Setup
	reindexer := &fakeReindexer{}
	m := metrics.New()
	s := NewMaintenanceScheduler(MaintenanceConfig{
		Archive:         reindexer,
		ArchiveInterval: time.Hour,
		DB:              fakeStats{},
		StatsInterval:   time.Hour,
		Metrics:         m,
	}, nil)

	// Execute
	s.Start(context.Background())
	defer s.Stop()

	// Assert
	require.Eventually(t, func() bool { return reindexer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.DBConnPoolStats.WithLabelValues("open")) == 4
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DBConnPoolStats.WithLabelValues("in_use")))
}
