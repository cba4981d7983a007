package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	checkindomain "github.com/smallbiznis/tradeboard/internal/checkin/domain"
	"github.com/smallbiznis/tradeboard/internal/clock"
	"github.com/smallbiznis/tradeboard/internal/config"
	notificationdomain "github.com/smallbiznis/tradeboard/internal/notification/domain"
	"github.com/smallbiznis/tradeboard/internal/observability/metrics"
	profiledomain "github.com/smallbiznis/tradeboard/internal/profile/domain"
	"github.com/smallbiznis/tradeboard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxAttempts = 3

var errLostRace = errors.New("checkin_lost_race")

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Calendar      clock.Calendar
	Rules         *config.RatingRulesHolder
	Profiles      profiledomain.Service
	Notifications notificationdomain.Service `optional:"true"`
	Metrics       *metrics.Metrics           `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	clock         clock.Clock
	calendar      clock.Calendar
	rules         *config.RatingRulesHolder
	profiles      profiledomain.Service
	notifications notificationdomain.Service
	metrics       *metrics.Metrics
}

func NewService(p Params) checkindomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("checkin.service"),
		clock:         p.Clock,
		calendar:      p.Calendar,
		rules:         p.Rules,
		profiles:      p.Profiles,
		notifications: p.Notifications,
		metrics:       p.Metrics,
	}
}

type outcome struct {
	result       checkindomain.Result
	applied      []*profiledomain.RatingApplied
	notification *notificationdomain.Notification
}

// HandleDailyCheckin awards the daily login for the current local date at most once.
func (s *Service) HandleDailyCheckin(ctx context.Context, userID snowflake.ID) (*checkindomain.Result, error) {
	if userID == 0 {
		return nil, profiledomain.ErrInvalidUser
	}
	today := s.calendar.Today(s.clock)

	var (
		out *outcome
		err error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err = s.checkin(ctx, userID, today)
		if err == nil || !(errors.Is(err, errLostRace) || db.IsRetryableErr(err)) || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		s.metrics.RecordCheckin(ctx, checkindomain.OutcomeError)
		return nil, err
	}

	switch {
	case !out.result.OK:
		s.metrics.RecordCheckin(ctx, checkindomain.OutcomeAlready)
	case len(out.applied) > 1:
		s.metrics.RecordCheckin(ctx, checkindomain.OutcomeStreakBonus)
	default:
		s.metrics.RecordCheckin(ctx, checkindomain.OutcomeAwarded)
	}

	s.profiles.Announce(ctx, out.applied...)
	if out.notification != nil && s.notifications != nil {
		s.notifications.Publish(ctx, out.notification)
	}

	if out.result.OK {
		s.log.Info("daily check-in",
			zap.String("user_id", userID.String()),
			zap.Int("login_streak", out.result.LoginStreak),
			zap.Int64("awarded", out.result.Awarded),
			zap.Int64("rating", out.result.Rating),
		)
	}
	return &out.result, nil
}

func (s *Service) checkin(ctx context.Context, userID snowflake.ID, today time.Time) (*outcome, error) {
	var out outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := s.profiles.LockTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		last := profile.LastCheck()
		if !last.IsZero() && clock.Normalize(last).Equal(today) {
			out.result = checkindomain.Result{
				OK:     false,
				Reason: checkindomain.ReasonAlreadyCheckedToday,
				Rating: profile.RatingScore,
			}
			return nil
		}

		streak := 1
		if !last.IsZero() && clock.AddDays(last, 1).Equal(today) {
			streak = profile.LoginStreak + 1
		}

		// The guard is persisted before any points are awarded.
		advanced, err := s.profiles.AdvanceStreakTx(ctx, tx, userID, last, today, streak)
		if err != nil {
			return err
		}
		if !advanced {
			return errLostRace
		}

		rules := s.rules.Get()
		daily, err := s.profiles.AddRatingTx(ctx, tx, userID, rules.DailyLoginPoints, checkindomain.ReasonDailyLogin)
		if err != nil {
			return err
		}
		out.applied = append(out.applied, daily)
		out.result = checkindomain.Result{
			OK:          true,
			LoginStreak: streak,
			Rating:      daily.NewTotal,
			Awarded:     daily.Delta,
		}

		if !streakBonusDue(rules, streak) {
			return nil
		}
		bonus, err := s.profiles.AddRatingTx(ctx, tx, userID, rules.StreakBonusPoints, fmt.Sprintf("%s%d", checkindomain.StreakBonusReasonPrefix, streak))
		if err != nil {
			return err
		}
		out.applied = append(out.applied, bonus)
		out.result.Rating = bonus.NewTotal
		out.result.Awarded += bonus.Delta

		if s.notifications != nil {
			out.notification, err = s.notifications.CreateTx(ctx, tx, notificationdomain.CreateInput{
				UserID:  userID,
				Type:    notificationdomain.NotificationTypeSystem,
				Title:   "Streak bonus",
				Message: fmt.Sprintf("%d-day login streak! +%d rating", streak, bonus.Delta),
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
	return &out, nil
}

func streakBonusDue(rules config.RatingRules, streak int) bool {
	return rules.StreakBonusEvery > 0 && rules.StreakBonusPoints > 0 && streak%rules.StreakBonusEvery == 0
}
