package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const MaxRebuildDays = 366

type Service interface {
	// IncrementTx adds delta to the (user, date) row inside the caller's transaction.
	IncrementTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, date time.Time, delta int64) error
	// RebuildDay replaces every aggregate row of date with the ledger totals.
	RebuildDay(ctx context.Context, date time.Time) (int64, error)
	RebuildRange(ctx context.Context, from, to time.Time) error
	SumFor(ctx context.Context, userID snowflake.ID, from, to time.Time) (int64, error)

	EnqueueRebuild(ctx context.Context, from, to time.Time) (*RebuildRequest, error)
	ProcessRebuildRequests(ctx context.Context, limit int) (int, error)

	Snapshot(ctx context.Context, period SnapshotPeriod, topN int) (*RatingSnapshot, error)
	ListSnapshots(ctx context.Context, period SnapshotPeriod, limit int) ([]RatingSnapshot, error)
	GetSnapshot(ctx context.Context, id snowflake.ID) (*RatingSnapshot, error)
}

var (
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidDate         = errors.New("invalid_date")
	ErrInvalidDateRange    = errors.New("invalid_date_range")
	ErrRangeTooLarge       = errors.New("date_range_too_large")
	ErrInvalidPeriod       = errors.New("invalid_period")
	ErrInvalidTopN         = errors.New("invalid_top_n")
	ErrSnapshotNotFound    = errors.New("snapshot_not_found")
	ErrTransactionRequired = errors.New("transaction_required")
)
