package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	rewarddomain "github.com/smallbiznis/tradeboard/internal/reward/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type catalogEntry struct {
	Name         string
	Description  string
	RatingPoints int64
}

// DefaultCatalog is the achievement set every fresh community starts with.
var DefaultCatalog = []catalogEntry{
	{Name: "First Check-in", Description: "Checked in for the first time", RatingPoints: 5},
	{Name: "Week Streak", Description: "Checked in seven days in a row", RatingPoints: 10},
	{Name: "First Publication", Description: "Published a first trading idea", RatingPoints: 5},
	{Name: "Crowd Favorite", Description: "A publication received ten boosts", RatingPoints: 15},
	{Name: "Season Champion", Description: "Finished a season at the top of the leaderboard", RatingPoints: 50},
}

// EnsureAchievementCatalog inserts the default catalog. Existing entries,
// including operator edits, are left untouched.
func EnsureAchievementCatalog(db *gorm.DB) (int64, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return 0, err
	}

	ctx := context.Background()
	var inserted int64
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, entry := range DefaultCatalog {
			achievement := rewarddomain.Achievement{
				ID:           node.Generate(),
				Code:         slug.Make(entry.Name),
				Name:         entry.Name,
				Description:  entry.Description,
				RatingPoints: entry.RatingPoints,
				CreatedAt:    now,
			}
			res := tx.WithContext(ctx).
				Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
				Create(&achievement)
			if res.Error != nil {
				return res.Error
			}
			inserted += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
