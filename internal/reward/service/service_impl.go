package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/tradeboard/internal/clock"
	"github.com/smallbiznis/tradeboard/internal/config"
	notificationdomain "github.com/smallbiznis/tradeboard/internal/notification/domain"
	profiledomain "github.com/smallbiznis/tradeboard/internal/profile/domain"
	rewarddomain "github.com/smallbiznis/tradeboard/internal/reward/domain"
	"github.com/smallbiznis/tradeboard/internal/reward/repository"
	"github.com/smallbiznis/tradeboard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	boostReasonPrefix = "boost_publication_"
	maxNameLength     = 255
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Rules         *config.RatingRulesHolder
	Repo          repository.Repository
	Profiles      profiledomain.Service
	Notifications notificationdomain.Service `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	rules         *config.RatingRulesHolder
	repo          repository.Repository
	profiles      profiledomain.Service
	notifications notificationdomain.Service
}

func NewService(p Params) rewarddomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("reward.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		rules:         p.Rules,
		repo:          p.Repo,
		profiles:      p.Profiles,
		notifications: p.Notifications,
	}
}

func (s *Service) ToggleBoost(ctx context.Context, in rewarddomain.BoostInput) (*rewarddomain.BoostResult, error) {
	if in.PublicationID <= 0 {
		return nil, rewarddomain.ErrInvalidPublication
	}
	if in.BoosterID == 0 || in.AuthorID == 0 {
		return nil, rewarddomain.ErrInvalidUser
	}

	var (
		result       rewarddomain.BoostResult
		applied      *profiledomain.RatingApplied
		notification *notificationdomain.Notification
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.repo.UserExists(ctx, tx, in.BoosterID)
		if err != nil {
			return err
		}
		if !exists {
			return profiledomain.ErrUserNotFound
		}

		author, err := s.repo.PublicationAuthor(ctx, tx, in.PublicationID)
		if err != nil {
			return err
		}
		if author != 0 && author != in.AuthorID {
			return rewarddomain.ErrAuthorMismatch
		}

		existing, err := s.repo.FindBoost(ctx, tx, in.PublicationID, in.BoosterID)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := s.repo.DeleteBoost(ctx, tx, in.PublicationID, in.BoosterID); err != nil {
				return err
			}
			result.Boosted = false
		} else {
			if err := s.repo.InsertBoost(ctx, tx, &rewarddomain.PublicationBoost{
				PublicationID: in.PublicationID,
				UserID:        in.BoosterID,
				AuthorID:      in.AuthorID,
				CreatedAt:     s.now(),
			}); err != nil {
				return err
			}
			result.Boosted = true

			if points := s.rules.Get().BoostPoints; points > 0 {
				applied, err = s.profiles.AddRatingTx(ctx, tx, in.AuthorID, points, fmt.Sprintf("%s%d", boostReasonPrefix, in.PublicationID))
				if err != nil {
					return err
				}
				result.Rating = applied.NewTotal
			}

			if in.BoosterID != in.AuthorID && s.notifications != nil {
				booster, err := s.repo.Username(ctx, tx, in.BoosterID)
				if err != nil {
					return err
				}
				notification, err = s.notifications.CreateTx(ctx, tx, notificationdomain.CreateInput{
					UserID:  in.AuthorID,
					Type:    notificationdomain.NotificationTypeBoost,
					Title:   "Publication boosted",
					Message: fmt.Sprintf("%s boosted your publication", booster),
					Link:    fmt.Sprintf("/publications/%d", in.PublicationID),
				})
				if err != nil {
					return err
				}
			}
		}

		count, err := s.repo.CountBoosts(ctx, tx, in.PublicationID)
		if err != nil {
			return err
		}
		result.BoostCount = count
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// A concurrent toggle inserted the same boost first.
			return s.boostState(ctx, in.PublicationID, true)
		}
		return nil, err
	}

	if applied != nil {
		s.profiles.Announce(ctx, applied)
	}
	if notification != nil {
		s.notifications.Publish(ctx, notification)
	}
	return &result, nil
}

func (s *Service) boostState(ctx context.Context, publicationID int64, boosted bool) (*rewarddomain.BoostResult, error) {
	count, err := s.repo.CountBoosts(ctx, s.db, publicationID)
	if err != nil {
		return nil, err
	}
	return &rewarddomain.BoostResult{Boosted: boosted, BoostCount: count}, nil
}

// UpsertAchievement creates or updates the catalog entry keyed by the slug of its name.
func (s *Service) UpsertAchievement(ctx context.Context, in rewarddomain.UpsertAchievementInput) (*rewarddomain.Achievement, bool, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > maxNameLength {
		return nil, false, rewarddomain.ErrInvalidName
	}
	code := slug.Make(name)
	if code == "" {
		return nil, false, rewarddomain.ErrInvalidName
	}

	points := s.rules.Get().AchievementDefault
	if points <= 0 {
		points = rewarddomain.DefaultAchievementPoints
	}
	if in.RatingPoints != nil {
		points = *in.RatingPoints
	}
	if points < 0 {
		return nil, false, rewarddomain.ErrInvalidPoints
	}

	var (
		out     *rewarddomain.Achievement
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindAchievement(ctx, tx, code)
		if err != nil {
			return err
		}
		if existing != nil {
			existing.Name = name
			existing.Description = strings.TrimSpace(in.Description)
			existing.RatingPoints = points
			out = existing
			return s.repo.UpdateAchievement(ctx, tx, existing)
		}

		out = &rewarddomain.Achievement{
			ID:           s.genID.Generate(),
			Code:         code,
			Name:         name,
			Description:  strings.TrimSpace(in.Description),
			RatingPoints: points,
			CreatedAt:    s.now(),
		}
		created = true
		return s.repo.CreateAchievement(ctx, tx, out)
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func (s *Service) ListAchievements(ctx context.Context) ([]rewarddomain.Achievement, error) {
	return s.repo.ListAchievements(ctx, s.db)
}

func (s *Service) GetAchievement(ctx context.Context, code string) (*rewarddomain.Achievement, error) {
	achievement, err := s.repo.FindAchievement(ctx, s.db, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if achievement == nil {
		return nil, rewarddomain.ErrAchievementNotFound
	}
	return achievement, nil
}

func (s *Service) GrantAchievement(ctx context.Context, userID snowflake.ID, code string) (*rewarddomain.GrantResult, error) {
	if userID == 0 {
		return nil, rewarddomain.ErrInvalidUser
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, rewarddomain.ErrAchievementNotFound
	}

	var (
		result       rewarddomain.GrantResult
		applied      *profiledomain.RatingApplied
		notification *notificationdomain.Notification
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := s.profiles.LockTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		achievement, err := s.repo.FindAchievement(ctx, tx, code)
		if err != nil {
			return err
		}
		if achievement == nil {
			return rewarddomain.ErrAchievementNotFound
		}
		result.Achievement = *achievement
		result.Rating = profile.RatingScore

		grant := &rewarddomain.UserAchievement{
			ID:            s.genID.Generate(),
			UserID:        userID,
			AchievementID: achievement.ID,
			AwardedAt:     s.now(),
		}
		inserted, err := s.repo.InsertGrant(ctx, tx, grant)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		result.Granted = true
		result.Award = grant

		if achievement.RatingPoints > 0 {
			applied, err = s.profiles.AddRatingTx(ctx, tx, userID, achievement.RatingPoints, achievement.Name)
			if err != nil {
				return err
			}
			result.Rating = applied.NewTotal
		}

		if s.notifications != nil {
			message := fmt.Sprintf("You earned %q", achievement.Name)
			if achievement.RatingPoints > 0 {
				message = fmt.Sprintf("You earned %q (+%d rating)", achievement.Name, achievement.RatingPoints)
			}
			notification, err = s.notifications.CreateTx(ctx, tx, notificationdomain.CreateInput{
				UserID:  userID,
				Type:    notificationdomain.NotificationTypeAchievement,
				Title:   "Achievement unlocked",
				Message: message,
				Link:    "/achievements",
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied != nil {
		s.profiles.Announce(ctx, applied)
	}
	if notification != nil {
		s.notifications.Publish(ctx, notification)
	}
	if result.Granted {
		s.log.Info("achievement granted",
			zap.String("user_id", userID.String()),
			zap.String("achievement", result.Achievement.Code),
		)
	}
	return &result, nil
}

func (s *Service) ListUserAchievements(ctx context.Context, userID snowflake.ID) ([]rewarddomain.UserAchievementView, error) {
	if userID == 0 {
		return nil, rewarddomain.ErrInvalidUser
	}
	return s.repo.ListUserAchievements(ctx, s.db, userID)
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}
