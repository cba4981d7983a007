package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	aggregationdomain "github.com/smallbiznis/tradeboard/internal/aggregation/domain"
	"github.com/smallbiznis/tradeboard/internal/clock"
	obsmetrics "github.com/smallbiznis/tradeboard/internal/observability/metrics"
	profiledomain "github.com/smallbiznis/tradeboard/internal/profile/domain"
	"github.com/smallbiznis/tradeboard/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Calendar   clock.Calendar
	Config     Config `optional:"true"`
	Aggregates aggregationdomain.Service
	Profiles   profiledomain.Service
	Locker     *ratelimit.Locker `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	calendar   clock.Calendar
	aggregates aggregationdomain.Service
	profiles   profiledomain.Service
	locker     *ratelimit.Locker

	mu   sync.Mutex
	cron *cron.Cron
}

type job struct {
	Name      string
	Spec      string
	BatchSize int
	Timeout   time.Duration
	Run       func(context.Context) error
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Aggregates == nil || p.Profiles == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		calendar:   p.Calendar,
		aggregates: p.Aggregates,
		profiles:   p.Profiles,
		locker:     p.Locker,
	}, nil
}

func (s *Scheduler) jobs() []job {
	return []job{
		{JobAggregateRecent, s.cfg.AggregateRecentSpec, 2, 5 * time.Minute, s.AggregateRecentJob},
		{JobAggregateRequests, s.cfg.AggregateRequestSpec, s.cfg.RebuildBatchSize, 30 * time.Minute, s.AggregateRequestsJob},
		{JobSnapshotWeek, s.cfg.SnapshotWeekSpec, s.cfg.SnapshotTopN, time.Minute, s.SnapshotWeekJob},
		{JobSnapshotMonth, s.cfg.SnapshotMonthSpec, s.cfg.SnapshotTopN, time.Minute, s.SnapshotMonthJob},
		{JobReconcileRatings, s.cfg.ReconcileSpec, s.cfg.ReconcileBatchSize, 10 * time.Minute, s.ReconcileRatingsJob},
	}
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()

	err := s.withJobLock(ctx, name, func(ctx context.Context) error {
		if owner {
			s.logJobStart(ctx, run)
		}
		schedMetrics.IncJobRun(name)
		err := fn(ctx)
		schedMetrics.ObserveJobDuration(name, time.Since(start))
		if owner {
			if err != nil && run.errorCount == 0 {
				run.IncError()
			}
			s.logJobFinish(ctx, run)
		}
		return err
	})
	if errors.Is(err, ratelimit.ErrLockHeld) {
		schedMetrics.IncJobSkipped(name, obsmetrics.SchedulerSkipReasonLockHeld)
		log.Debug("job skipped, lock held elsewhere")
		return nil
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks the work up again
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) withJobLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, "scheduler:lock:"+name, s.cfg.LockTTL, fn)
}

// RunOnce executes every enabled job a single time.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, j.Name, j.BatchSize, j.Timeout, j.Run))
	}
	return err
}

// Start registers enabled jobs on a cron evaluated in the configured timezone.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	cronLog := cronLogger{log: s.log.Sugar()}
	c := cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.Name) {
			continue
		}
		j := j
		if _, err := c.AddFunc(j.Spec, func() {
			if err := s.runJob(context.Background(), j.Name, j.BatchSize, j.Timeout, j.Run); err != nil {
				s.log.Warn("scheduler job failed", zap.String("job", j.Name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", j.Name, j.Spec, err)
		}
		s.log.Info("scheduler job registered", zap.String("job", j.Name), zap.String("spec", j.Spec))
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the cron and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// an empty list enables every job
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// AggregateRecentJob rebuilds yesterday and today from the ledger.
func (s *Scheduler) AggregateRecentJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobAggregateRecent, 2)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	today := s.calendar.Today(s.clock)
	var jobErr error
	for _, date := range []time.Time{clock.AddDays(today, -1), today} {
		rows, err := s.aggregates.RebuildDay(ctx, date)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.aggregate.rebuild_failed", JobAggregateRecent, err,
				zap.String("date", date.Format(time.DateOnly)),
			)
			jobErr = errors.Join(jobErr, err)
			continue
		}
		run.AddProcessed(int(rows))
		obsmetrics.Scheduler().AddBatchProcessed(JobAggregateRecent, "aggregate_rows", int(rows))
	}
	return jobErr
}

// AggregateRequestsJob drains queued rebuild requests.
func (s *Scheduler) AggregateRequestsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobAggregateRequests, s.cfg.RebuildBatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	processed, err := s.aggregates.ProcessRebuildRequests(ctx, s.cfg.RebuildBatchSize)
	run.AddProcessed(processed)
	obsmetrics.Scheduler().AddBatchProcessed(JobAggregateRequests, "rebuild_requests", processed)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.aggregate.requests_failed", JobAggregateRequests, err)
		return err
	}
	return nil
}

func (s *Scheduler) SnapshotWeekJob(ctx context.Context) error {
	return s.snapshotJob(ctx, JobSnapshotWeek, aggregationdomain.SnapshotPeriodWeek)
}

func (s *Scheduler) SnapshotMonthJob(ctx context.Context) error {
	return s.snapshotJob(ctx, JobSnapshotMonth, aggregationdomain.SnapshotPeriodMonth)
}

func (s *Scheduler) snapshotJob(ctx context.Context, name string, period aggregationdomain.SnapshotPeriod) error {
	ctx, run, owner := s.ensureJobRun(ctx, name, s.cfg.SnapshotTopN)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	snapshot, err := s.aggregates.Snapshot(ctx, period, s.cfg.SnapshotTopN)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.snapshot.failed", name, err, zap.String("period", string(period)))
		return err
	}
	run.AddProcessed(1)
	obsmetrics.Scheduler().AddBatchProcessed(name, "snapshots", 1)
	s.logger(ctx).Info("scheduler.snapshot.created",
		zap.String("job", name),
		zap.String("snapshot_id", snapshot.ID.String()),
		zap.String("period", string(period)),
	)
	return nil
}

// ReconcileRatingsJob reports profiles whose cached rating disagrees with the
// ledger. It does not repair them.
func (s *Scheduler) ReconcileRatingsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobReconcileRatings, s.cfg.ReconcileBatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	drift, err := s.profiles.FindDrift(ctx, s.cfg.ReconcileBatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.reconcile.failed", JobReconcileRatings, err)
		return err
	}
	for _, r := range drift {
		s.logDrift(ctx, JobReconcileRatings, r)
	}
	run.AddProcessed(len(drift))
	obsmetrics.Scheduler().AddBatchProcessed(JobReconcileRatings, "rating_drift", len(drift))
	return nil
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
