package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// ToggleBoost adds or removes a boost. Adding awards the author; removing never reverses points.
	ToggleBoost(ctx context.Context, in BoostInput) (*BoostResult, error)

	UpsertAchievement(ctx context.Context, in UpsertAchievementInput) (*Achievement, bool, error)
	ListAchievements(ctx context.Context) ([]Achievement, error)
	GetAchievement(ctx context.Context, code string) (*Achievement, error)
	// GrantAchievement awards an achievement once per user; re-granting reports Granted false.
	GrantAchievement(ctx context.Context, userID snowflake.ID, code string) (*GrantResult, error)
	ListUserAchievements(ctx context.Context, userID snowflake.ID) ([]UserAchievementView, error)
}

var (
	ErrInvalidPublication  = errors.New("invalid_publication")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrAuthorMismatch      = errors.New("publication_author_mismatch")
	ErrInvalidName         = errors.New("invalid_achievement_name")
	ErrInvalidPoints       = errors.New("invalid_rating_points")
	ErrAchievementNotFound = errors.New("achievement_not_found")
)
