package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	EnsureProfile(ctx context.Context, in EnsureProfileInput) (*ProfileView, bool, error)
	GetProfile(ctx context.Context, userID snowflake.ID) (*ProfileView, error)

	// AddRating applies points in its own transaction and returns the new total.
	AddRating(ctx context.Context, userID snowflake.ID, points int64, reason string) (int64, error)
	// AddRatingTx applies points inside the caller's transaction. Call Announce after commit.
	AddRatingTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, points int64, reason string) (*RatingApplied, error)
	Announce(ctx context.Context, applied ...*RatingApplied)

	// LockTx reads the profile with a row lock held until tx ends.
	LockTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (*Profile, error)
	// AdvanceStreakTx moves the streak forward only if the last check is still expected.
	AdvanceStreakTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, expectedLast, today time.Time, streak int) (bool, error)

	ToggleFollow(ctx context.Context, followerID, followeeID snowflake.ID) (*FollowResult, error)
	StartNewSeason(ctx context.Context, topN int) (*SeasonResult, error)

	Reconcile(ctx context.Context, userID snowflake.ID) (*Reconciliation, error)
	Repair(ctx context.Context, userID snowflake.ID) (*Reconciliation, error)
	FindDrift(ctx context.Context, limit int) ([]Reconciliation, error)
}

var (
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidUsername     = errors.New("invalid_username")
	ErrInvalidReason       = errors.New("invalid_reason")
	ErrUserNotFound        = errors.New("user_not_found")
	ErrProfileNotFound     = errors.New("profile_not_found")
	ErrUsernameTaken       = errors.New("username_taken")
	ErrUserConflict        = errors.New("user_conflict")
	ErrCannotFollowSelf    = errors.New("cannot_follow_self")
	ErrTransactionRequired = errors.New("transaction_required")
)
