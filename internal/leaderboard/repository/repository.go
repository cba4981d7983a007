package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	AllTime(ctx context.Context, db *gorm.DB, limit int) ([]Row, error)
	Windowed(ctx context.Context, db *gorm.DB, from, to time.Time, limit int) ([]Row, error)
}

type Row struct {
	UserID   snowflake.ID `gorm:"column:user_id"`
	Username string       `gorm:"column:username"`
	Score    int64        `gorm:"column:score"`
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) AllTime(ctx context.Context, db *gorm.DB, limit int) ([]Row, error) {
	var rows []Row
	err := db.WithContext(ctx).Raw(
		`SELECT p.user_id AS user_id, u.username AS username, p.rating_score AS score
		FROM profiles p
		JOIN users u ON u.id = p.user_id
		ORDER BY p.rating_score DESC, p.user_id ASC
		LIMIT ?`,
		limit,
	).Scan(&rows).Error
	return rows, err
}

func (r *repo) Windowed(ctx context.Context, db *gorm.DB, from, to time.Time, limit int) ([]Row, error) {
	var rows []Row
	err := db.WithContext(ctx).Raw(
		`SELECT a.user_id AS user_id, u.username AS username, CAST(SUM(a.points) AS BIGINT) AS score
		FROM daily_rating_aggregates a
		JOIN users u ON u.id = a.user_id
		WHERE a.date >= ? AND a.date <= ?
		GROUP BY a.user_id, u.username
		ORDER BY score DESC, a.user_id ASC
		LIMIT ?`,
		from,
		to,
		limit,
	).Scan(&rows).Error
	return rows, err
}
