package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tradeboard/internal/clock"
	profiledomain "github.com/smallbiznis/tradeboard/internal/profile/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	FindUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*profiledomain.User, error)
	FindUserByUsername(ctx context.Context, db *gorm.DB, username string) (*profiledomain.User, error)
	CreateUser(ctx context.Context, db *gorm.DB, user *profiledomain.User) error
	CreateProfile(ctx context.Context, db *gorm.DB, profile *profiledomain.Profile) error
	GetView(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*profiledomain.ProfileView, error)
	Lock(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*profiledomain.Profile, error)

	IncrementRating(ctx context.Context, db *gorm.DB, userID snowflake.ID, points int64, now time.Time) (int64, error)
	ReadTotals(ctx context.Context, db *gorm.DB, userID snowflake.ID) (Totals, error)
	SetRating(ctx context.Context, db *gorm.DB, userID snowflake.ID, rating int64, now time.Time) error
	AdvanceStreak(ctx context.Context, db *gorm.DB, userID snowflake.ID, expectedLast, today time.Time, streak int, now time.Time) (int64, error)

	CurrentSeason(ctx context.Context, db *gorm.DB) (int, error)
	ResetSeason(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)

	FollowExists(ctx context.Context, db *gorm.DB, followerID, followeeID snowflake.ID) (bool, error)
	InsertFollow(ctx context.Context, db *gorm.DB, follow *profiledomain.Follow) error
	DeleteFollow(ctx context.Context, db *gorm.DB, followerID, followeeID snowflake.ID) error
	CountFollowers(ctx context.Context, db *gorm.DB, followeeID snowflake.ID) (int64, error)

	FindDrift(ctx context.Context, db *gorm.DB, limit int) ([]DriftRow, error)
}

type Totals struct {
	RatingScore  int64 `gorm:"column:rating_score"`
	SeasonNumber int   `gorm:"column:season_number"`
	LoginStreak  int   `gorm:"column:login_streak"`
}

type DriftRow struct {
	UserID       snowflake.ID `gorm:"column:user_id"`
	SeasonNumber int          `gorm:"column:season_number"`
	Cached       int64        `gorm:"column:cached"`
	Ledger       int64        `gorm:"column:ledger"`
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) FindUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*profiledomain.User, error) {
	var user profiledomain.User
	err := db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) FindUserByUsername(ctx context.Context, db *gorm.DB, username string) (*profiledomain.User, error) {
	var user profiledomain.User
	err := db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) CreateUser(ctx context.Context, db *gorm.DB, user *profiledomain.User) error {
	return db.WithContext(ctx).Create(user).Error
}

func (r *repo) CreateProfile(ctx context.Context, db *gorm.DB, profile *profiledomain.Profile) error {
	return db.WithContext(ctx).Create(profile).Error
}

func (r *repo) GetView(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*profiledomain.ProfileView, error) {
	var rows []profiledomain.ProfileView
	err := db.WithContext(ctx).Raw(
		`SELECT p.user_id, p.rating_score, p.season_number, p.login_streak, p.last_login_streak_check,
		        p.is_private, p.browser_notifications_enabled, p.created_at, p.updated_at,
		        u.username
		 FROM profiles p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.user_id = ?`,
		userID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) Lock(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*profiledomain.Profile, error) {
	var profile profiledomain.Profile
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// IncrementRating applies points relative to the stored value.
func (r *repo) IncrementRating(ctx context.Context, db *gorm.DB, userID snowflake.ID, points int64, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE profiles
		 SET rating_score = rating_score + ?, updated_at = ?
		 WHERE user_id = ?`,
		points,
		now,
		userID,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ReadTotals(ctx context.Context, db *gorm.DB, userID snowflake.ID) (Totals, error) {
	var totals Totals
	err := db.WithContext(ctx).Raw(
		`SELECT rating_score, season_number, login_streak FROM profiles WHERE user_id = ?`,
		userID,
	).Scan(&totals).Error
	return totals, err
}

func (r *repo) SetRating(ctx context.Context, db *gorm.DB, userID snowflake.ID, rating int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE profiles SET rating_score = ?, updated_at = ? WHERE user_id = ?`,
		rating,
		now,
		userID,
	).Error
}

// AdvanceStreak is a compare-and-set on last_login_streak_check.
func (r *repo) AdvanceStreak(ctx context.Context, db *gorm.DB, userID snowflake.ID, expectedLast, today time.Time, streak int, now time.Time) (int64, error) {
	query := `UPDATE profiles
		 SET login_streak = ?, last_login_streak_check = ?, updated_at = ?
		 WHERE user_id = ?`
	args := []any{streak, clock.Normalize(today), now, userID}
	if expectedLast.IsZero() {
		query += " AND last_login_streak_check IS NULL"
	} else {
		query += " AND last_login_streak_check = ?"
		args = append(args, clock.Normalize(expectedLast))
	}

	result := db.WithContext(ctx).Exec(query, args...)
	return result.RowsAffected, result.Error
}

func (r *repo) CurrentSeason(ctx context.Context, db *gorm.DB) (int, error) {
	var season int
	err := db.WithContext(ctx).Raw(`SELECT COALESCE(MAX(season_number), 1) FROM profiles`).Scan(&season).Error
	if err != nil {
		return 0, err
	}
	if season <= 0 {
		season = 1
	}
	return season, nil
}

func (r *repo) ResetSeason(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE profiles SET season_number = season_number + 1, rating_score = 0, updated_at = ?`,
		now,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) FollowExists(ctx context.Context, db *gorm.DB, followerID, followeeID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&profiledomain.Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) InsertFollow(ctx context.Context, db *gorm.DB, follow *profiledomain.Follow) error {
	return db.WithContext(ctx).Create(follow).Error
}

func (r *repo) DeleteFollow(ctx context.Context, db *gorm.DB, followerID, followeeID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM profile_follows WHERE follower_id = ? AND followee_id = ?`,
		followerID,
		followeeID,
	).Error
}

func (r *repo) CountFollowers(ctx context.Context, db *gorm.DB, followeeID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&profiledomain.Follow{}).
		Where("followee_id = ?", followeeID).
		Count(&count).Error
	return count, err
}

func (r *repo) FindDrift(ctx context.Context, db *gorm.DB, limit int) ([]DriftRow, error) {
	var rows []DriftRow
	err := db.WithContext(ctx).Raw(
		`SELECT p.user_id AS user_id,
		        p.season_number AS season_number,
		        p.rating_score AS cached,
		        CAST(COALESCE(SUM(rc.delta), 0) AS BIGINT) AS ledger
		 FROM profiles p
		 LEFT JOIN rating_changes rc ON rc.user_id = p.user_id AND rc.season_number = p.season_number
		 GROUP BY p.user_id, p.season_number, p.rating_score
		 HAVING p.rating_score <> COALESCE(SUM(rc.delta), 0)
		 ORDER BY p.user_id ASC
		 LIMIT ?`,
		limit,
	).Scan(&rows).Error
	return rows, err
}
