package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tradeboard/internal/clock"
	ledgerdomain "github.com/smallbiznis/tradeboard/internal/ledger/domain"
	"github.com/smallbiznis/tradeboard/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxReasonLength = 255

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
	}
}

func (s *Service) Append(ctx context.Context, tx *gorm.DB, in ledgerdomain.AppendInput) (*ledgerdomain.RatingChange, error) {
	if tx == nil {
		return nil, ledgerdomain.ErrTransactionRequired
	}
	if in.UserID == 0 {
		return nil, ledgerdomain.ErrInvalidUser
	}
	reason := strings.TrimSpace(in.Reason)
	if len(reason) > maxReasonLength {
		return nil, ledgerdomain.ErrInvalidReason
	}
	if in.EntryDate.IsZero() {
		return nil, ledgerdomain.ErrInvalidEntryDate
	}

	season := in.SeasonNumber
	if season <= 0 {
		season = 1
	}
	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	entry := &ledgerdomain.RatingChange{
		ID:           s.genID.Generate(),
		UserID:       in.UserID,
		SeasonNumber: season,
		Delta:        in.Delta,
		Reason:       reason,
		EntryDate:    datatypes.Date(clock.Normalize(in.EntryDate)),
		CreatedAt:    occurredAt.UTC(),
	}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) SumFor(ctx context.Context, userID snowflake.ID, r ledgerdomain.DateRange) (int64, error) {
	if userID == 0 {
		return 0, ledgerdomain.ErrInvalidUser
	}
	if err := r.Validate(); err != nil {
		return 0, err
	}

	query := s.db.WithContext(ctx).
		Model(&ledgerdomain.RatingChange{}).
		Select("CAST(COALESCE(SUM(delta), 0) AS BIGINT)").
		Where("user_id = ?", userID)
	if !r.From.IsZero() {
		query = query.Where("entry_date >= ?", clock.Normalize(r.From))
	}
	if !r.To.IsZero() {
		query = query.Where("entry_date <= ?", clock.Normalize(r.To))
	}

	var total int64
	if err := query.Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// SumForSeason totals a user's ledger for one season. db may be a transaction.
func (s *Service) SumForSeason(ctx context.Context, db *gorm.DB, userID snowflake.ID, season int) (int64, error) {
	if db == nil {
		db = s.db
	}
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT CAST(COALESCE(SUM(delta), 0) AS BIGINT)
		FROM rating_changes
		WHERE user_id = ? AND season_number = ?`,
		userID,
		season,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// List returns a user's history newest first.
func (s *Service) List(ctx context.Context, userID snowflake.ID, page pagination.Pagination) ([]ledgerdomain.RatingChange, pagination.PageInfo, error) {
	if userID == 0 {
		return nil, pagination.PageInfo{}, ledgerdomain.ErrInvalidUser
	}
	beforeID, err := page.BeforeID()
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	limit := page.Size()

	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit + 1)
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}

	var rows []ledgerdomain.RatingChange
	if err := query.Find(&rows).Error; err != nil {
		return nil, pagination.PageInfo{}, err
	}
	rows, info := pagination.Trim(rows, limit, func(row ledgerdomain.RatingChange) int64 {
		return row.ID.Int64()
	})
	return rows, info, nil
}
