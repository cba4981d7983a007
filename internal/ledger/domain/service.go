package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tradeboard/pkg/db/pagination"
	"gorm.io/gorm"
)

type Service interface {
	// Append writes one row inside the caller's transaction.
	Append(ctx context.Context, tx *gorm.DB, in AppendInput) (*RatingChange, error)
	SumFor(ctx context.Context, userID snowflake.ID, r DateRange) (int64, error)
	SumForSeason(ctx context.Context, db *gorm.DB, userID snowflake.ID, season int) (int64, error)
	List(ctx context.Context, userID snowflake.ID, page pagination.Pagination) ([]RatingChange, pagination.PageInfo, error)
}
