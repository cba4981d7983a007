// Package testenv wires the rating services against an in-memory sqlite
// database for package tests.
package testenv

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	aggregationdomain "github.com/smallbiznis/tradeboard/internal/aggregation/domain"
	aggregationservice "github.com/smallbiznis/tradeboard/internal/aggregation/service"
	"github.com/smallbiznis/tradeboard/internal/clock"
	"github.com/smallbiznis/tradeboard/internal/config"
	leaderboarddomain "github.com/smallbiznis/tradeboard/internal/leaderboard/domain"
	leaderboardrepository "github.com/smallbiznis/tradeboard/internal/leaderboard/repository"
	leaderboardservice "github.com/smallbiznis/tradeboard/internal/leaderboard/service"
	ledgerdomain "github.com/smallbiznis/tradeboard/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/tradeboard/internal/ledger/service"
	notificationdomain "github.com/smallbiznis/tradeboard/internal/notification/domain"
	notificationservice "github.com/smallbiznis/tradeboard/internal/notification/service"
	profiledomain "github.com/smallbiznis/tradeboard/internal/profile/domain"
	profilerepository "github.com/smallbiznis/tradeboard/internal/profile/repository"
	profileservice "github.com/smallbiznis/tradeboard/internal/profile/service"
	rewarddomain "github.com/smallbiznis/tradeboard/internal/reward/domain"
	"github.com/smallbiznis/tradeboard/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultNow is the fake clock's starting instant.
var DefaultNow = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

type Env struct {
	DB       *gorm.DB
	Log      *zap.Logger
	Node     *snowflake.Node
	Clock    *clock.FakeClock
	Calendar clock.Calendar
	Config   config.Config
	Redis    *redis.Client

	Ledger        ledgerdomain.Service
	Leaderboard   leaderboarddomain.Service
	Aggregates    aggregationdomain.Service
	Notifications notificationdomain.Service
	Profiles      profiledomain.Service
}

type options struct {
	now   time.Time
	loc   *time.Location
	redis *redis.Client
	ttl   time.Duration
}

type Option func(*options)

func WithNow(now time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

// WithRedis enables the redis-backed paths; ttl configures the leaderboard cache.
func WithRedis(client *redis.Client, ttl time.Duration) Option {
	return func(o *options) {
		o.redis = client
		o.ttl = ttl
	}
}

// Models lists every table the services touch.
func Models() []any {
	return []any{
		&profiledomain.User{},
		&profiledomain.Profile{},
		&profiledomain.Follow{},
		&ledgerdomain.RatingChange{},
		&aggregationdomain.DailyRatingAggregate{},
		&aggregationdomain.RatingSnapshot{},
		&aggregationdomain.RebuildRequest{},
		&notificationdomain.Notification{},
		&rewarddomain.Achievement{},
		&rewarddomain.UserAchievement{},
		&rewarddomain.PublicationBoost{},
	}
}

func New(t testing.TB, opts ...Option) *Env {
	t.Helper()

	o := options{now: DefaultNow, loc: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(Models()...))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	clk := clock.NewFakeClock(o.now)
	cal := clock.NewCalendarIn(o.loc)
	cfg := config.Config{
		Timezone:    o.loc.String(),
		Leaderboard: config.LeaderboardConfig{CacheTTL: o.ttl},
	}

	env := &Env{
		DB:       conn,
		Log:      log,
		Node:     node,
		Clock:    clk,
		Calendar: cal,
		Config:   cfg,
		Redis:    o.redis,
	}

	env.Ledger = ledgerservice.NewService(ledgerservice.Params{DB: conn, Log: log, GenID: node})
	env.Leaderboard = leaderboardservice.NewService(leaderboardservice.Params{
		DB:       conn,
		Log:      log,
		Config:   cfg,
		Clock:    clk,
		Calendar: cal,
		Repo:     leaderboardrepository.Provide(),
		Redis:    o.redis,
	})
	env.Aggregates = aggregationservice.NewService(aggregationservice.Params{
		DB:          conn,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Leaderboard: env.Leaderboard,
	})
	env.Notifications = notificationservice.NewService(notificationservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: clk,
		Redis: o.redis,
	})
	env.Profiles = profileservice.NewService(profileservice.Params{
		DB:            conn,
		Log:           log,
		GenID:         node,
		Clock:         clk,
		Calendar:      cal,
		Repo:          profilerepository.Provide(),
		Ledger:        env.Ledger,
		Aggregates:    env.Aggregates,
		Notifications: env.Notifications,
	})
	return env
}

// CreateUser registers a user with an empty profile.
func (e *Env) CreateUser(t testing.TB, username string) snowflake.ID {
	t.Helper()
	view, _, err := e.Profiles.EnsureProfile(t.Context(), profiledomain.EnsureProfileInput{Username: username})
	require.NoError(t, err)
	return view.UserID
}

// Award adds points through the public rating path.
func (e *Env) Award(t testing.TB, userID snowflake.ID, points int64, reason string) int64 {
	t.Helper()
	total, err := e.Profiles.AddRating(t.Context(), userID, points, reason)
	require.NoError(t, err)
	return total
}

// Today is the current local date of the environment.
func (e *Env) Today() time.Time {
	return e.Calendar.Today(e.Clock)
}
