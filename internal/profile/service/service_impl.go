package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	aggregationdomain "github.com/smallbiznis/tradeboard/internal/aggregation/domain"
	"github.com/smallbiznis/tradeboard/internal/clock"
	ledgerdomain "github.com/smallbiznis/tradeboard/internal/ledger/domain"
	notificationdomain "github.com/smallbiznis/tradeboard/internal/notification/domain"
	"github.com/smallbiznis/tradeboard/internal/observability/metrics"
	profiledomain "github.com/smallbiznis/tradeboard/internal/profile/domain"
	"github.com/smallbiznis/tradeboard/internal/profile/repository"
	"github.com/smallbiznis/tradeboard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxUsernameLength = 150
	maxReasonLength   = 255
	maxAttempts       = 3

	defaultDriftLimit = 100
	maxDriftLimit     = 1000
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Calendar      clock.Calendar
	Repo          repository.Repository
	Ledger        ledgerdomain.Service
	Aggregates    aggregationdomain.Service
	Notifications notificationdomain.Service `optional:"true"`
	Metrics       *metrics.Metrics           `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	calendar      clock.Calendar
	repo          repository.Repository
	ledger        ledgerdomain.Service
	aggregates    aggregationdomain.Service
	notifications notificationdomain.Service
	metrics       *metrics.Metrics
}

func NewService(p Params) profiledomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("profile.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		calendar:      p.Calendar,
		repo:          p.Repo,
		ledger:        p.Ledger,
		aggregates:    p.Aggregates,
		notifications: p.Notifications,
		metrics:       p.Metrics,
	}
}

// EnsureProfile registers a user and its profile, idempotent by username.
// The bool result reports whether the user was created by this call.
func (s *Service) EnsureProfile(ctx context.Context, in profiledomain.EnsureProfileInput) (*profiledomain.ProfileView, bool, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || len(username) > maxUsernameLength {
		return nil, false, profiledomain.ErrInvalidUsername
	}

	var (
		userID  snowflake.ID
		created bool
		err     error
	)
	for attempt := 1; attempt <= 2; attempt++ {
		userID, created, err = s.ensureProfileTx(ctx, in.UserID, username)
		if err == nil || !db.IsDuplicateKeyErr(err) {
			break
		}
	}
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, false, profiledomain.ErrUserConflict
		}
		return nil, false, err
	}

	view, err := s.repo.GetView(ctx, s.db, userID)
	if err != nil {
		return nil, false, err
	}
	if view == nil {
		return nil, false, profiledomain.ErrProfileNotFound
	}
	if created {
		s.log.Info("profile created",
			zap.String("user_id", userID.String()),
			zap.String("username", username),
		)
	}
	return view, created, nil
}

func (s *Service) ensureProfileTx(ctx context.Context, requestedID snowflake.ID, username string) (snowflake.ID, bool, error) {
	var (
		userID  snowflake.ID
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindUserByUsername(ctx, tx, username)
		if err != nil {
			return err
		}
		now := s.now()

		switch {
		case existing != nil:
			if requestedID != 0 && existing.ID != requestedID {
				return profiledomain.ErrUsernameTaken
			}
			userID = existing.ID
		default:
			if requestedID != 0 {
				byID, err := s.repo.FindUser(ctx, tx, requestedID)
				if err != nil {
					return err
				}
				if byID != nil {
					return profiledomain.ErrUserConflict
				}
				userID = requestedID
			} else {
				userID = s.genID.Generate()
			}
			if err := s.repo.CreateUser(ctx, tx, &profiledomain.User{
				ID:        userID,
				Username:  username,
				CreatedAt: now,
			}); err != nil {
				return err
			}
			created = true
		}

		profile, err := s.repo.Lock(ctx, tx, userID)
		if err != nil {
			return err
		}
		if profile != nil {
			return nil
		}

		season, err := s.repo.CurrentSeason(ctx, tx)
		if err != nil {
			return err
		}
		return s.repo.CreateProfile(ctx, tx, &profiledomain.Profile{
			UserID:                      userID,
			RatingScore:                 0,
			SeasonNumber:                season,
			LoginStreak:                 0,
			IsPrivate:                   false,
			BrowserNotificationsEnabled: true,
			CreatedAt:                   now,
			UpdatedAt:                   now,
		})
	})
	return userID, created, err
}

func (s *Service) GetProfile(ctx context.Context, userID snowflake.ID) (*profiledomain.ProfileView, error) {
	if userID == 0 {
		return nil, profiledomain.ErrInvalidUser
	}
	view, err := s.repo.GetView(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, profiledomain.ErrProfileNotFound
	}
	return view, nil
}

// AddRating retries the whole transaction on storage conflicts.
func (s *Service) AddRating(ctx context.Context, userID snowflake.ID, points int64, reason string) (int64, error) {
	var (
		applied *profiledomain.RatingApplied
		err     error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var txErr error
			applied, txErr = s.AddRatingTx(ctx, tx, userID, points, reason)
			return txErr
		})
		if err == nil || !db.IsRetryableErr(err) || ctx.Err() != nil {
			break
		}
		s.log.Warn("retrying rating change",
			zap.String("user_id", userID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	if err != nil {
		return 0, err
	}

	s.Announce(ctx, applied)
	return applied.NewTotal, nil
}

func (s *Service) AddRatingTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, points int64, reason string) (*profiledomain.RatingApplied, error) {
	if tx == nil {
		return nil, profiledomain.ErrTransactionRequired
	}
	if userID == 0 {
		return nil, profiledomain.ErrInvalidUser
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return nil, profiledomain.ErrInvalidReason
	}

	now := s.now()
	affected, err := s.repo.IncrementRating(ctx, tx, userID, points, now)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, profiledomain.ErrProfileNotFound
	}

	totals, err := s.repo.ReadTotals(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	entryDate := s.calendar.DateOf(now)
	entry, err := s.ledger.Append(ctx, tx, ledgerdomain.AppendInput{
		UserID:       userID,
		SeasonNumber: totals.SeasonNumber,
		Delta:        points,
		Reason:       reason,
		OccurredAt:   now,
		EntryDate:    entryDate,
	})
	if err != nil {
		return nil, err
	}
	if err := s.aggregates.IncrementTx(ctx, tx, userID, entryDate, points); err != nil {
		return nil, err
	}

	return &profiledomain.RatingApplied{
		ChangeID:     entry.ID,
		UserID:       userID,
		Delta:        points,
		Reason:       reason,
		NewTotal:     totals.RatingScore,
		SeasonNumber: totals.SeasonNumber,
		EntryDate:    entryDate,
		OccurredAt:   now,
		LoginStreak:  totals.LoginStreak,
	}, nil
}

// Announce records metrics and publishes rating events for committed changes.
func (s *Service) Announce(ctx context.Context, applied ...*profiledomain.RatingApplied) {
	for _, a := range applied {
		if a == nil {
			continue
		}
		s.metrics.RecordRatingChange(ctx, a.Reason, a.Delta)
		s.log.Debug("rating changed",
			zap.String("user_id", a.UserID.String()),
			zap.Int64("delta", a.Delta),
			zap.String("reason", a.Reason),
			zap.Int64("rating", a.NewTotal),
		)
		if s.notifications == nil {
			continue
		}

		eventType := notificationdomain.RatingEventChanged
		if strings.HasPrefix(a.Reason, "streak_bonus_") {
			eventType = notificationdomain.RatingEventStreakBonus
		}
		s.notifications.PublishRatingEvent(ctx, notificationdomain.RatingEvent{
			Type:        eventType,
			UserID:      a.UserID.String(),
			Delta:       a.Delta,
			Reason:      a.Reason,
			Rating:      a.NewTotal,
			LoginStreak: a.LoginStreak,
			OccurredAt:  a.OccurredAt,
		})
	}
}

func (s *Service) LockTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (*profiledomain.Profile, error) {
	if tx == nil {
		return nil, profiledomain.ErrTransactionRequired
	}
	if userID == 0 {
		return nil, profiledomain.ErrInvalidUser
	}
	profile, err := s.repo.Lock(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, profiledomain.ErrProfileNotFound
	}
	return profile, nil
}

func (s *Service) AdvanceStreakTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, expectedLast, today time.Time, streak int) (bool, error) {
	if tx == nil {
		return false, profiledomain.ErrTransactionRequired
	}
	affected, err := s.repo.AdvanceStreak(ctx, tx, userID, expectedLast, today, streak, s.now())
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *Service) ToggleFollow(ctx context.Context, followerID, followeeID snowflake.ID) (*profiledomain.FollowResult, error) {
	if followerID == 0 || followeeID == 0 {
		return nil, profiledomain.ErrInvalidUser
	}
	if followerID == followeeID {
		return nil, profiledomain.ErrCannotFollowSelf
	}

	var (
		result       profiledomain.FollowResult
		notification *notificationdomain.Notification
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		follower, err := s.repo.FindUser(ctx, tx, followerID)
		if err != nil {
			return err
		}
		followee, err := s.repo.FindUser(ctx, tx, followeeID)
		if err != nil {
			return err
		}
		if follower == nil || followee == nil {
			return profiledomain.ErrUserNotFound
		}

		exists, err := s.repo.FollowExists(ctx, tx, followerID, followeeID)
		if err != nil {
			return err
		}
		if exists {
			if err := s.repo.DeleteFollow(ctx, tx, followerID, followeeID); err != nil {
				return err
			}
		} else {
			if err := s.repo.InsertFollow(ctx, tx, &profiledomain.Follow{
				FollowerID: followerID,
				FolloweeID: followeeID,
				CreatedAt:  s.now(),
			}); err != nil {
				return err
			}
			if s.notifications != nil {
				notification, err = s.notifications.CreateTx(ctx, tx, notificationdomain.CreateInput{
					UserID:  followeeID,
					Type:    notificationdomain.NotificationTypeFollow,
					Title:   "New follower",
					Message: fmt.Sprintf("%s started following you", follower.Username),
					Link:    fmt.Sprintf("/profiles/%s", follower.Username),
				})
				if err != nil {
					return err
				}
			}
		}

		count, err := s.repo.CountFollowers(ctx, tx, followeeID)
		if err != nil {
			return err
		}
		result = profiledomain.FollowResult{Following: !exists, FollowerCount: count}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if notification != nil {
		s.notifications.Publish(ctx, notification)
	}
	return &result, nil
}

// StartNewSeason snapshots the current board, then resets every rating in one statement.
func (s *Service) StartNewSeason(ctx context.Context, topN int) (*profiledomain.SeasonResult, error) {
	snapshot, err := s.aggregates.Snapshot(ctx, aggregationdomain.SnapshotPeriodSeason, topN)
	if err != nil {
		return nil, err
	}

	result := profiledomain.SeasonResult{SnapshotID: snapshot.ID}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reset, err := s.repo.ResetSeason(ctx, tx, s.now())
		if err != nil {
			return err
		}
		season, err := s.repo.CurrentSeason(ctx, tx)
		if err != nil {
			return err
		}
		result.ProfilesReset = reset
		result.SeasonNumber = season
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("new season started",
		zap.Int("season_number", result.SeasonNumber),
		zap.Int64("profiles_reset", result.ProfilesReset),
		zap.String("snapshot_id", snapshot.ID.String()),
	)
	return &result, nil
}

func (s *Service) Reconcile(ctx context.Context, userID snowflake.ID) (*profiledomain.Reconciliation, error) {
	view, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum, err := s.ledger.SumForSeason(ctx, s.db, userID, view.SeasonNumber)
	if err != nil {
		return nil, err
	}
	return &profiledomain.Reconciliation{
		UserID:       userID,
		SeasonNumber: view.SeasonNumber,
		Cached:       view.RatingScore,
		Ledger:       sum,
		Drift:        view.RatingScore - sum,
	}, nil
}

// Repair rewrites the cached total from the ledger.
func (s *Service) Repair(ctx context.Context, userID snowflake.ID) (*profiledomain.Reconciliation, error) {
	var out profiledomain.Reconciliation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := s.LockTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		sum, err := s.ledger.SumForSeason(ctx, tx, userID, profile.SeasonNumber)
		if err != nil {
			return err
		}
		out = profiledomain.Reconciliation{
			UserID:       userID,
			SeasonNumber: profile.SeasonNumber,
			Cached:       profile.RatingScore,
			Ledger:       sum,
			Drift:        profile.RatingScore - sum,
		}
		if out.Consistent() {
			return nil
		}
		out.Repaired = true
		return s.repo.SetRating(ctx, tx, userID, sum, s.now())
	})
	if err != nil {
		return nil, err
	}

	if out.Repaired {
		s.log.Warn("rating cache repaired",
			zap.String("user_id", userID.String()),
			zap.Int64("cached", out.Cached),
			zap.Int64("ledger", out.Ledger),
		)
	}
	return &out, nil
}

func (s *Service) FindDrift(ctx context.Context, limit int) ([]profiledomain.Reconciliation, error) {
	switch {
	case limit <= 0:
		limit = defaultDriftLimit
	case limit > maxDriftLimit:
		limit = maxDriftLimit
	}
	rows, err := s.repo.FindDrift(ctx, s.db, limit)
	if err != nil {
		return nil, err
	}
	out := make([]profiledomain.Reconciliation, 0, len(rows))
	for _, row := range rows {
		out = append(out, profiledomain.Reconciliation{
			UserID:       row.UserID,
			SeasonNumber: row.SeasonNumber,
			Cached:       row.Cached,
			Ledger:       row.Ledger,
			Drift:        row.Cached - row.Ledger,
		})
	}
	return out, nil
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}

