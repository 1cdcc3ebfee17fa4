package scheduler

import (
	"context"
	"database/sql"
	"time"

	"github.com/fadedpez/royalcharge/internal/logging"
	"github.com/fadedpez/royalcharge/pkg/metrics"
)

// Reindexer rebuilds the order archive from the ledger
type Reindexer interface {
	ReindexArchive(ctx context.Context) (int, error)
}

// StatsSource reports database pool statistics, e.g. *sql.DB
type StatsSource interface {
	Stats() sql.DBStats
}

// MaintenanceConfig selects the maintenance tasks to run. Nil sources are skipped.
type MaintenanceConfig struct {
	Archive         Reindexer
	ArchiveInterval time.Duration
	DB              StatsSource
	StatsInterval   time.Duration
	Metrics         *metrics.Metrics
}

// MaintenanceScheduler keeps the order archive in sync with the ledger and
// exports database pool statistics
type MaintenanceScheduler struct {
	scheduler *Scheduler
	cfg       MaintenanceConfig
}

// NewMaintenanceScheduler creates a new scheduler for storefront maintenance tasks
func NewMaintenanceScheduler(cfg MaintenanceConfig, log *logging.Logger) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		scheduler: NewScheduler(log),
		cfg:       cfg,
	}
}

// Start initializes and starts the maintenance scheduler
func (s *MaintenanceScheduler) Start(ctx context.Context) {
	if s.cfg.Archive != nil {
		// Default to hourly if not specified
		interval := s.cfg.ArchiveInterval
		if interval <= 0 {
			interval = time.Hour
		}
		s.scheduler.AddTask("archive_reindex", interval, s.reindexArchive)
	}

	if s.cfg.DB != nil && s.cfg.Metrics != nil {
		interval := s.cfg.StatsInterval
		if interval <= 0 {
			interval = 15 * time.Second
		}
		s.scheduler.AddTask("db_pool_stats", interval, s.recordPoolStats)
	}

	s.scheduler.Start(ctx)
}

// Stop stops the maintenance scheduler
func (s *MaintenanceScheduler) Stop() {
	s.scheduler.Stop()
}

func (s *MaintenanceScheduler) reindexArchive(ctx context.Context) error {
	_, err := s.cfg.Archive.ReindexArchive(ctx)
	return err
}

func (s *MaintenanceScheduler) recordPoolStats(ctx context.Context) error {
	s.cfg.Metrics.RecordDBPoolStats(s.cfg.DB.Stats())
	return nil
}
