package scheduler

import (
	"time"

	"github.com/smallbiznis/tradeboard/internal/config"
)

const (
	JobAggregateRecent   = "aggregate_recent"
	JobAggregateRequests = "aggregate_requests"
	JobSnapshotWeek      = "snapshot_week"
	JobSnapshotMonth     = "snapshot_month"
	JobReconcileRatings  = "reconcile_ratings"
)

// Config controls job schedules and batch sizes.
type Config struct {
	Enabled     bool
	EnabledJobs []string
	Location    *time.Location

	AggregateRecentSpec  string
	AggregateRequestSpec string
	SnapshotWeekSpec     string
	SnapshotMonthSpec    string
	ReconcileSpec        string

	RebuildBatchSize   int
	ReconcileBatchSize int
	SnapshotTopN       int
	LockTTL            time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		Location:             time.UTC,
		AggregateRecentSpec:  "*/15 * * * *",
		AggregateRequestSpec: "@every 1m",
		SnapshotWeekSpec:     "5 0 * * 1",
		SnapshotMonthSpec:    "10 0 1 * *",
		ReconcileSpec:        "30 3 * * *",
		RebuildBatchSize:     10,
		ReconcileBatchSize:   500,
		SnapshotTopN:         100,
		LockTTL:              10 * time.Minute,
	}
}

// ProvideConfig maps the application config onto scheduler settings.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:              cfg.Scheduler.Enabled,
		EnabledJobs:          cfg.Scheduler.EnabledJobs,
		Location:             cfg.Location(),
		AggregateRecentSpec:  cfg.Scheduler.AggregateRecentSpec,
		AggregateRequestSpec: cfg.Scheduler.AggregateRequestSpec,
		SnapshotWeekSpec:     cfg.Scheduler.SnapshotWeekSpec,
		SnapshotMonthSpec:    cfg.Scheduler.SnapshotMonthSpec,
		ReconcileSpec:        cfg.Scheduler.ReconcileSpec,
		SnapshotTopN:         cfg.Scheduler.SnapshotTopN,
		LockTTL:              cfg.Scheduler.LockTTL,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Location == nil {
		c.Location = defaults.Location
	}
	if c.AggregateRecentSpec == "" {
		c.AggregateRecentSpec = defaults.AggregateRecentSpec
	}
	if c.AggregateRequestSpec == "" {
		c.AggregateRequestSpec = defaults.AggregateRequestSpec
	}
	if c.SnapshotWeekSpec == "" {
		c.SnapshotWeekSpec = defaults.SnapshotWeekSpec
	}
	if c.SnapshotMonthSpec == "" {
		c.SnapshotMonthSpec = defaults.SnapshotMonthSpec
	}
	if c.ReconcileSpec == "" {
		c.ReconcileSpec = defaults.ReconcileSpec
	}
	if c.RebuildBatchSize <= 0 {
		c.RebuildBatchSize = defaults.RebuildBatchSize
	}
	if c.ReconcileBatchSize <= 0 {
		c.ReconcileBatchSize = defaults.ReconcileBatchSize
	}
	if c.SnapshotTopN <= 0 {
		c.SnapshotTopN = defaults.SnapshotTopN
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
