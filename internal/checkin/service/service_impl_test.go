package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	checkindomain "github.com/smallbiznis/tradeboard/internal/checkin/domain"
	"github.com/smallbiznis/tradeboard/internal/config"
	ledgerdomain "github.com/smallbiznis/tradeboard/internal/ledger/domain"
	notificationdomain "github.com/smallbiznis/tradeboard/internal/notification/domain"
	profiledomain "github.com/smallbiznis/tradeboard/internal/profile/domain"
	"github.com/smallbiznis/tradeboard/internal/testenv"
	"github.com/smallbiznis/tradeboard/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCheckin(env *testenv.Env, rules config.RatingRules) checkindomain.Service {
	return NewService(Params{
		DB:            env.DB,
		Log:           env.Log,
		Clock:         env.Clock,
		Calendar:      env.Calendar,
		Rules:         config.NewStaticRatingRulesHolder(rules),
		Profiles:      env.Profiles,
		Notifications: env.Notifications,
	})
}

func reasons(t *testing.T, env *testenv.Env, user snowflake.ID) []string {
	t.Helper()
	rows, _, err := env.Ledger.List(context.Background(), user, pagination.Pagination{PageSize: 200})
	require.NoError(t, err)
	out := make([]string, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, rows[i].Reason)
	}
	return out
}

func TestFirstCheckinAwardsDailyLogin(t *testing.T) {
	env := testenv.New(t)
	svc := newCheckin(env, config.DefaultRatingRules())
	user := env.CreateUser(t, "alice")

	res, err := svc.HandleDailyCheckin(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, checkindomain.Result{OK: true, LoginStreak: 1, Rating: 1, Awarded: 1}, *res)

	view, err := env.Profiles.GetProfile(context.Background(), user)
	require.NoError(t, err)
	require.NotNil(t, view.LastLoginStreakCheck)
	assert.True(t, view.LastCheck().Equal(env.Today()))
	assert.Equal(t, []string{"daily_login"}, reasons(t, env, user))
}

func TestSecondCheckinSameDayIsSoftRejected(t *testing.T) {
	env := testenv.New(t)
	svc := newCheckin(env, config.DefaultRatingRules())
	ctx := context.Background()
	user := env.CreateUser(t, "alice")

	_, err := svc.HandleDailyCheckin(ctx, user)
	require.NoError(t, err)

	env.Clock.Advance(6 * time.Hour)
	res, err := svc.HandleDailyCheckin(ctx, user)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, checkindomain.ReasonAlreadyCheckedToday, res.Reason)
	assert.Equal(t, int64(1), res.Rating)
	assert.Len(t, reasons(t, env, user), 1)
}

func TestStreakContinuesAndResets(t *testing.T) {
	env := testenv.New(t)
	svc := newCheckin(env, config.DefaultRatingRules())
	ctx := context.Background()
	user := env.CreateUser(t, "alice")

	res, err := svc.HandleDailyCheckin(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 1, res.LoginStreak)

	env.Clock.Advance(24 * time.Hour)
	res, err = svc.HandleDailyCheckin(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 2, res.LoginStreak)

	// Skipping a day resets the streak.
	env.Clock.Advance(48 * time.Hour)
	res, err = svc.HandleDailyCheckin(ctx, user)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 1, res.LoginStreak)
	assert.Equal(t, int64(3), res.Rating)
}

func TestSeventhDayAwardsBonusAndEighthDoesNot(t *testing.T) {
	env := testenv.New(t)
	svc := newCheckin(env, config.DefaultRatingRules())
	ctx := context.Background()
	user := env.CreateUser(t, "alice")

	var before int64
	for day := 1; day <= 8; day++ {
		res, err := svc.HandleDailyCheckin(ctx, user)
		require.NoError(t, err)
		require.True(t, res.OK)
		assert.Equal(t, day, res.LoginStreak)

		switch day {
		case 7:
			assert.Equal(t, int64(6), res.Rating-before)
			assert.Equal(t, int64(6), res.Awarded)
		default:
			assert.Equal(t, int64(1), res.Rating-before)
		}
		before = res.Rating
		env.Clock.Advance(24 * time.Hour)
	}

	got := reasons(t, env, user)
	assert.Contains(t, got, "streak_bonus_7")
	assert.Len(t, got, 9)

	sum, err := env.Ledger.SumFor(ctx, user, ledgerdomain.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, before, sum)

	notifications, _, err := env.Notifications.List(ctx, user, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, notificationdomain.NotificationTypeSystem, notifications[0].NotificationType)
	assert.Contains(t, notifications[0].Message, "7-day")
}

func TestCheckinUsesLocalCalendarDate(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	// 20:00 UTC on the 10th is 03:00 on the 11th in UTC+7.
	env := testenv.New(t,
		testenv.WithLocation(jakarta),
		testenv.WithNow(time.Date(2024, time.March, 10, 20, 0, 0, 0, time.UTC)),
	)
	svc := newCheckin(env, config.DefaultRatingRules())
	ctx := context.Background()
	user := env.CreateUser(t, "alice")

	res, err := svc.HandleDailyCheckin(ctx, user)
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC), env.Today())

	// Still the 11th locally although the UTC date did not change either.
	env.Clock.Set(time.Date(2024, time.March, 10, 23, 0, 0, 0, time.UTC))
	res, err = svc.HandleDailyCheckin(ctx, user)
	require.NoError(t, err)
	assert.False(t, res.OK)

	// 17:30 UTC on the 11th is already the 12th locally.
	env.Clock.Set(time.Date(2024, time.March, 11, 17, 30, 0, 0, time.UTC))
	res, err = svc.HandleDailyCheckin(ctx, user)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 2, res.LoginStreak)
}

func TestConcurrentSameDayCheckinsAwardOnce(t *testing.T) {
	env := testenv.New(t)
	svc := newCheckin(env, config.DefaultRatingRules())
	ctx := context.Background()
	user := env.CreateUser(t, "alice")

	const workers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		awarded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.HandleDailyCheckin(ctx, user)
			if !assert.NoError(t, err) {
				return
			}
			if res.OK {
				mu.Lock()
				awarded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, awarded)
	assert.Equal(t, []string{"daily_login"}, reasons(t, env, user))
}

func TestCheckinConfiguredRules(t *testing.T) {
	env := testenv.New(t)
	rules := config.DefaultRatingRules()
	rules.DailyLoginPoints = 2
	rules.StreakBonusEvery = 2
	rules.StreakBonusPoints = 10
	svc := newCheckin(env, rules)
	ctx := context.Background()
	user := env.CreateUser(t, "alice")

	res, err := svc.HandleDailyCheckin(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Rating)

	env.Clock.Advance(24 * time.Hour)
	res, err = svc.HandleDailyCheckin(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(14), res.Rating)
	assert.Equal(t, []string{"daily_login", "daily_login", "streak_bonus_2"}, reasons(t, env, user))
}

func TestCheckinUnknownProfile(t *testing.T) {
	env := testenv.New(t)
	svc := newCheckin(env, config.DefaultRatingRules())

	_, err := svc.HandleDailyCheckin(context.Background(), 777)
	assert.ErrorIs(t, err, profiledomain.ErrProfileNotFound)

	_, err = svc.HandleDailyCheckin(context.Background(), 0)
	assert.ErrorIs(t, err, profiledomain.ErrInvalidUser)
}
