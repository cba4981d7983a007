package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	rewarddomain "github.com/smallbiznis/tradeboard/internal/reward/domain"
	"gorm.io/gorm"
)

type Repository interface {
	UserExists(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error)
	Username(ctx context.Context, db *gorm.DB, userID snowflake.ID) (string, error)

	FindBoost(ctx context.Context, db *gorm.DB, publicationID int64, userID snowflake.ID) (*rewarddomain.PublicationBoost, error)
	PublicationAuthor(ctx context.Context, db *gorm.DB, publicationID int64) (snowflake.ID, error)
	InsertBoost(ctx context.Context, db *gorm.DB, boost *rewarddomain.PublicationBoost) error
	DeleteBoost(ctx context.Context, db *gorm.DB, publicationID int64, userID snowflake.ID) error
	CountBoosts(ctx context.Context, db *gorm.DB, publicationID int64) (int64, error)

	FindAchievement(ctx context.Context, db *gorm.DB, code string) (*rewarddomain.Achievement, error)
	CreateAchievement(ctx context.Context, db *gorm.DB, achievement *rewarddomain.Achievement) error
	UpdateAchievement(ctx context.Context, db *gorm.DB, achievement *rewarddomain.Achievement) error
	ListAchievements(ctx context.Context, db *gorm.DB) ([]rewarddomain.Achievement, error)
	// InsertGrant returns false when the user already holds the achievement.
	InsertGrant(ctx context.Context, db *gorm.DB, grant *rewarddomain.UserAchievement) (bool, error)
	ListUserAchievements(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]rewarddomain.UserAchievementView, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) UserExists(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(1) FROM users WHERE id = ?`, userID).Scan(&count).Error
	return count > 0, err
}

func (r *repo) Username(ctx context.Context, db *gorm.DB, userID snowflake.ID) (string, error) {
	var username string
	err := db.WithContext(ctx).Raw(`SELECT username FROM users WHERE id = ?`, userID).Scan(&username).Error
	return username, err
}

func (r *repo) FindBoost(ctx context.Context, db *gorm.DB, publicationID int64, userID snowflake.ID) (*rewarddomain.PublicationBoost, error) {
	var boost rewarddomain.PublicationBoost
	err := db.WithContext(ctx).
		Where("publication_id = ? AND user_id = ?", publicationID, userID).
		Take(&boost).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &boost, nil
}

func (r *repo) PublicationAuthor(ctx context.Context, db *gorm.DB, publicationID int64) (snowflake.ID, error) {
	var rows []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT author_id FROM publication_boosts WHERE publication_id = ? LIMIT 1`,
		publicationID,
	).Scan(&rows).Error
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	return rows[0], nil
}

func (r *repo) InsertBoost(ctx context.Context, db *gorm.DB, boost *rewarddomain.PublicationBoost) error {
	return db.WithContext(ctx).Create(boost).Error
}

func (r *repo) DeleteBoost(ctx context.Context, db *gorm.DB, publicationID int64, userID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM publication_boosts WHERE publication_id = ? AND user_id = ?`,
		publicationID,
		userID,
	).Error
}

func (r *repo) CountBoosts(ctx context.Context, db *gorm.DB, publicationID int64) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&rewarddomain.PublicationBoost{}).
		Where("publication_id = ?", publicationID).
		Count(&count).Error
	return count, err
}

func (r *repo) FindAchievement(ctx context.Context, db *gorm.DB, code string) (*rewarddomain.Achievement, error) {
	var achievement rewarddomain.Achievement
	err := db.WithContext(ctx).Where("code = ?", code).Take(&achievement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &achievement, nil
}

func (r *repo) CreateAchievement(ctx context.Context, db *gorm.DB, achievement *rewarddomain.Achievement) error {
	return db.WithContext(ctx).Create(achievement).Error
}

func (r *repo) UpdateAchievement(ctx context.Context, db *gorm.DB, achievement *rewarddomain.Achievement) error {
	return db.WithContext(ctx).Exec(
		`UPDATE achievements SET name = ?, description = ?, rating_points = ? WHERE id = ?`,
		achievement.Name,
		achievement.Description,
		achievement.RatingPoints,
		achievement.ID,
	).Error
}

func (r *repo) ListAchievements(ctx context.Context, db *gorm.DB) ([]rewarddomain.Achievement, error) {
	var rows []rewarddomain.Achievement
	err := db.WithContext(ctx).Order("name ASC, id ASC").Find(&rows).Error
	return rows, err
}

func (r *repo) InsertGrant(ctx context.Context, db *gorm.DB, grant *rewarddomain.UserAchievement) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO user_achievements (id, user_id, achievement_id, awarded_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, achievement_id) DO NOTHING`,
		grant.ID,
		grant.UserID,
		grant.AchievementID,
		grant.AwardedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ListUserAchievements(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]rewarddomain.UserAchievementView, error) {
	var rows []rewarddomain.UserAchievementView
	err := db.WithContext(ctx).Raw(
		`SELECT a.id AS achievement_id, a.code AS code, a.name AS name, a.description AS description,
		        a.rating_points AS rating_points, ua.awarded_at AS awarded_at
		 FROM user_achievements ua
		 JOIN achievements a ON a.id = ua.achievement_id
		 WHERE ua.user_id = ?
		 ORDER BY ua.awarded_at ASC, a.id ASC`,
		userID,
	).Scan(&rows).Error
	return rows, err
}
