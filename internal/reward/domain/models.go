package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const DefaultAchievementPoints int64 = 5

// Achievement is a catalog entry. Code is the slug of the name.
type Achievement struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Code         string       `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Name         string       `gorm:"type:text;not null" json:"name"`
	Description  string       `gorm:"type:text;not null" json:"description"`
	RatingPoints int64        `gorm:"not null" json:"rating_points"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Achievement) TableName() string { return "achievements" }

type UserAchievement struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID        snowflake.ID `gorm:"not null;uniqueIndex:idx_user_achievements_user_achievement,priority:1" json:"user_id"`
	AchievementID snowflake.ID `gorm:"not null;uniqueIndex:idx_user_achievements_user_achievement,priority:2" json:"achievement_id"`
	AwardedAt     time.Time    `gorm:"not null" json:"awarded_at"`
}

// TableName sets the database table name.
func (UserAchievement) TableName() string { return "user_achievements" }

// PublicationBoost records that a user boosted an author's publication.
type PublicationBoost struct {
	PublicationID int64        `gorm:"primaryKey;autoIncrement:false" json:"publication_id"`
	UserID        snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	AuthorID      snowflake.ID `gorm:"not null" json:"author_id"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (PublicationBoost) TableName() string { return "publication_boosts" }

type BoostInput struct {
	PublicationID int64
	BoosterID     snowflake.ID
	AuthorID      snowflake.ID
}

type BoostResult struct {
	Boosted    bool  `json:"boosted"`
	BoostCount int64 `json:"boost_count"`
	Rating     int64 `json:"author_rating,omitempty"`
}

type UpsertAchievementInput struct {
	Name         string
	Description  string
	RatingPoints *int64
}

type GrantResult struct {
	Granted     bool             `json:"granted"`
	Achievement Achievement      `json:"achievement"`
	Rating      int64            `json:"rating"`
	Award       *UserAchievement `json:"award,omitempty"`
}

// UserAchievementView joins a grant with its catalog entry.
type UserAchievementView struct {
	AchievementID snowflake.ID `gorm:"column:achievement_id" json:"achievement_id"`
	Code          string       `gorm:"column:code" json:"code"`
	Name          string       `gorm:"column:name" json:"name"`
	Description   string       `gorm:"column:description" json:"description"`
	RatingPoints  int64        `gorm:"column:rating_points" json:"rating_points"`
	AwardedAt     time.Time    `gorm:"column:awarded_at" json:"awarded_at"`
}
