package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	aggregationdomain "github.com/smallbiznis/tradeboard/internal/aggregation/domain"
	"github.com/smallbiznis/tradeboard/internal/clock"
	leaderboarddomain "github.com/smallbiznis/tradeboard/internal/leaderboard/domain"
	"github.com/smallbiznis/tradeboard/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultRebuildBatch = 10
	rebuildTimeout      = 30 * time.Minute

	defaultSnapshotListLimit = 20
	maxSnapshotListLimit     = 100
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Leaderboard leaderboarddomain.Service
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	leaderboard leaderboarddomain.Service
	metrics     *metrics.Metrics
}

func NewService(p Params) aggregationdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("aggregation.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		leaderboard: p.Leaderboard,
		metrics:     p.Metrics,
	}
}

func (s *Service) IncrementTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, date time.Time, delta int64) error {
	if tx == nil {
		return aggregationdomain.ErrTransactionRequired
	}
	if userID == 0 {
		return aggregationdomain.ErrInvalidUser
	}
	if date.IsZero() {
		return aggregationdomain.ErrInvalidDate
	}
	return tx.WithContext(ctx).Exec(
		`INSERT INTO daily_rating_aggregates (user_id, date, points, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, date)
		 DO UPDATE SET points = daily_rating_aggregates.points + EXCLUDED.points, updated_at = EXCLUDED.updated_at`,
		userID,
		clock.Normalize(date),
		delta,
		s.now(),
	).Error
}

// RebuildDay deletes and replays one date from the ledger in a single transaction.
func (s *Service) RebuildDay(ctx context.Context, date time.Time) (int64, error) {
	if date.IsZero() {
		return 0, aggregationdomain.ErrInvalidDate
	}
	day := clock.Normalize(date)

	var written int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM daily_rating_aggregates WHERE date = ?`, day).Error; err != nil {
			return err
		}
		result := tx.Exec(
			`INSERT INTO daily_rating_aggregates (user_id, date, points, updated_at)
			 SELECT user_id, entry_date, CAST(SUM(delta) AS BIGINT), CURRENT_TIMESTAMP
			 FROM rating_changes
			 WHERE entry_date = ?
			 GROUP BY user_id, entry_date`,
			day,
		)
		if result.Error != nil {
			return result.Error
		}
		written = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Debug("rebuilt daily aggregates",
		zap.String("date", day.Format("2006-01-02")),
		zap.Int64("rows", written),
	)
	return written, nil
}

func (s *Service) RebuildRange(ctx context.Context, from, to time.Time) error {
	days, err := rangeDays(from, to)
	if err != nil {
		return err
	}
	start := clock.Normalize(from)
	for i := 0; i < days; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.RebuildDay(ctx, clock.AddDays(start, i)); err != nil {
			return fmt.Errorf("rebuild %s: %w", clock.AddDays(start, i).Format("2006-01-02"), err)
		}
	}
	return nil
}

func (s *Service) SumFor(ctx context.Context, userID snowflake.ID, from, to time.Time) (int64, error) {
	if userID == 0 {
		return 0, aggregationdomain.ErrInvalidUser
	}
	if _, err := rangeDays(from, to); err != nil && !errors.Is(err, aggregationdomain.ErrRangeTooLarge) {
		return 0, err
	}
	var total int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT CAST(COALESCE(SUM(points), 0) AS BIGINT)
		 FROM daily_rating_aggregates
		 WHERE user_id = ? AND date >= ? AND date <= ?`,
		userID,
		clock.Normalize(from),
		clock.Normalize(to),
	).Scan(&total).Error
	return total, err
}

// EnqueueRebuild stores a range rebuild for async processing.
func (s *Service) EnqueueRebuild(ctx context.Context, from, to time.Time) (*aggregationdomain.RebuildRequest, error) {
	if _, err := rangeDays(from, to); err != nil {
		return nil, err
	}
	req := &aggregationdomain.RebuildRequest{
		ID:        s.genID.Generate(),
		DateFrom:  datatypes.Date(clock.Normalize(from)),
		DateTo:    datatypes.Date(clock.Normalize(to)),
		Status:    aggregationdomain.RebuildStatusPending,
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, err
	}
	return req, nil
}

type rebuildRequestRow struct {
	ID       snowflake.ID `gorm:"column:id"`
	DateFrom time.Time    `gorm:"column:date_from"`
	DateTo   time.Time    `gorm:"column:date_to"`
}

// ProcessRebuildRequests claims pending requests oldest first and replays them.
func (s *Service) ProcessRebuildRequests(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultRebuildBatch
	}

	var rows []rebuildRequestRow
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, date_from, date_to
		 FROM aggregate_rebuild_requests
		 WHERE status = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		aggregationdomain.RebuildStatusPending,
		limit,
	).Scan(&rows).Error; err != nil {
		return 0, err
	}

	var (
		jobErr    error
		processed int
	)
	for _, row := range rows {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}

		claimed, err := s.processRebuildRequest(ctx, row)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Warn("failed to rebuild daily aggregates", zap.Error(err), zap.String("request_id", row.ID.String()))
			continue
		}
		if claimed {
			processed++
		}
	}

	return processed, jobErr
}

func (s *Service) processRebuildRequest(ctx context.Context, row rebuildRequestRow) (bool, error) {
	rebuildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rebuildTimeout)
	defer cancel()

	result := s.db.WithContext(rebuildCtx).Exec(
		`UPDATE aggregate_rebuild_requests
		 SET status = ?, started_at = ?
		 WHERE id = ? AND status = ?`,
		aggregationdomain.RebuildStatusProcessing,
		s.now(),
		row.ID,
		aggregationdomain.RebuildStatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	err := s.RebuildRange(rebuildCtx, row.DateFrom, row.DateTo)
	completedAt := s.now()
	if err != nil {
		s.log.Warn("rebuild request failed", zap.String("request_id", row.ID.String()), zap.Error(err))
		return true, s.db.WithContext(rebuildCtx).Exec(
			`UPDATE aggregate_rebuild_requests
			 SET status = ?, error = ?, completed_at = ?
			 WHERE id = ?`,
			aggregationdomain.RebuildStatusFailed,
			errorSummary(err),
			completedAt,
			row.ID,
		).Error
	}

	return true, s.db.WithContext(rebuildCtx).Exec(
		`UPDATE aggregate_rebuild_requests
		 SET status = ?, completed_at = ?
		 WHERE id = ?`,
		aggregationdomain.RebuildStatusCompleted,
		completedAt,
		row.ID,
	).Error
}

// Snapshot captures the current top N of the board behind period.
func (s *Service) Snapshot(ctx context.Context, period aggregationdomain.SnapshotPeriod, topN int) (*aggregationdomain.RatingSnapshot, error) {
	if _, err := aggregationdomain.ParseSnapshotPeriod(string(period)); err != nil {
		return nil, err
	}
	if topN <= 0 || topN > leaderboarddomain.MaxLimit {
		return nil, aggregationdomain.ErrInvalidTopN
	}

	var (
		entries []leaderboarddomain.Entry
		err     error
	)
	switch period {
	case aggregationdomain.SnapshotPeriodWeek:
		entries, err = s.leaderboard.Windowed(ctx, leaderboarddomain.PeriodWeek, topN)
	case aggregationdomain.SnapshotPeriodMonth:
		entries, err = s.leaderboard.Windowed(ctx, leaderboarddomain.PeriodMonth, topN)
	default:
		entries, err = s.leaderboard.AllTime(ctx, topN)
	}
	if err != nil {
		return nil, err
	}

	payload := make([]aggregationdomain.SnapshotEntry, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, aggregationdomain.SnapshotEntry{
			Rank:     entry.Rank,
			UserID:   entry.UserID.String(),
			Username: entry.Username,
			Rating:   entry.Score,
		})
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	snapshot := &aggregationdomain.RatingSnapshot{
		ID:        s.genID.Generate(),
		Period:    period,
		TopN:      topN,
		Data:      datatypes.JSON(data),
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return nil, err
	}

	s.metrics.RecordSnapshot(ctx, string(period))
	s.log.Info("rating snapshot created",
		zap.String("snapshot_id", snapshot.ID.String()),
		zap.String("period", string(period)),
		zap.Int("entries", len(payload)),
	)
	return snapshot, nil
}

// ListSnapshots returns snapshots newest first, optionally filtered by period.
func (s *Service) ListSnapshots(ctx context.Context, period aggregationdomain.SnapshotPeriod, limit int) ([]aggregationdomain.RatingSnapshot, error) {
	switch {
	case limit <= 0:
		limit = defaultSnapshotListLimit
	case limit > maxSnapshotListLimit:
		limit = maxSnapshotListLimit
	}

	query := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if strings.TrimSpace(string(period)) != "" {
		parsed, err := aggregationdomain.ParseSnapshotPeriod(string(period))
		if err != nil {
			return nil, err
		}
		query = query.Where("period = ?", parsed)
	}

	var rows []aggregationdomain.RatingSnapshot
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) GetSnapshot(ctx context.Context, id snowflake.ID) (*aggregationdomain.RatingSnapshot, error) {
	var snapshot aggregationdomain.RatingSnapshot
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, aggregationdomain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}

// rangeDays validates an inclusive date range and returns its length in days.
func rangeDays(from, to time.Time) (int, error) {
	if from.IsZero() || to.IsZero() {
		return 0, aggregationdomain.ErrInvalidDate
	}
	start, end := clock.Normalize(from), clock.Normalize(to)
	if end.Before(start) {
		return 0, aggregationdomain.ErrInvalidDateRange
	}
	days := int(end.Sub(start).Hours()/24) + 1
	if days > aggregationdomain.MaxRebuildDays {
		return days, aggregationdomain.ErrRangeTooLarge
	}
	return days, nil
}

func errorSummary(err error) string {
	if err == nil {
		return ""
	}
	value := strings.TrimSpace(err.Error())
	if value == "" {
		return "unknown_error"
	}
	if len(value) > 256 {
		return value[:256]
	}
	return value
}
