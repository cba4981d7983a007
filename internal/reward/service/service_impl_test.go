package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tradeboard/internal/config"
	ledgerdomain "github.com/smallbiznis/tradeboard/internal/ledger/domain"
	notificationdomain "github.com/smallbiznis/tradeboard/internal/notification/domain"
	profiledomain "github.com/smallbiznis/tradeboard/internal/profile/domain"
	rewarddomain "github.com/smallbiznis/tradeboard/internal/reward/domain"
	"github.com/smallbiznis/tradeboard/internal/reward/repository"
	"github.com/smallbiznis/tradeboard/internal/testenv"
	"github.com/smallbiznis/tradeboard/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRewards(env *testenv.Env) rewarddomain.Service {
	return NewService(Params{
		DB:            env.DB,
		Log:           env.Log,
		GenID:         env.Node,
		Clock:         env.Clock,
		Rules:         config.NewStaticRatingRulesHolder(config.DefaultRatingRules()),
		Repo:          repository.Provide(),
		Profiles:      env.Profiles,
		Notifications: env.Notifications,
	})
}

func rating(t *testing.T, env *testenv.Env, user snowflake.ID) int64 {
	t.Helper()
	view, err := env.Profiles.GetProfile(context.Background(), user)
	require.NoError(t, err)
	return view.RatingScore
}

func notificationsOf(t *testing.T, env *testenv.Env, user snowflake.ID) []notificationdomain.Notification {
	t.Helper()
	rows, _, err := env.Notifications.List(context.Background(), user, pagination.Pagination{})
	require.NoError(t, err)
	return rows
}

func TestToggleBoostAwardsAuthorAndNotifies(t *testing.T) {
	env := testenv.New(t)
	svc := newRewards(env)
	ctx := context.Background()
	author := env.CreateUser(t, "author")
	fan := env.CreateUser(t, "fan")

	res, err := svc.ToggleBoost(ctx, rewarddomain.BoostInput{PublicationID: 42, BoosterID: fan, AuthorID: author})
	require.NoError(t, err)
	assert.True(t, res.Boosted)
	assert.Equal(t, int64(1), res.BoostCount)
	assert.Equal(t, int64(3), res.Rating)
	assert.Equal(t, int64(3), rating(t, env, author))

	history, _, err := env.Ledger.List(ctx, author, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "boost_publication_42", history[0].Reason)

	notes := notificationsOf(t, env, author)
	require.Len(t, notes, 1)
	assert.Equal(t, notificationdomain.NotificationTypeBoost, notes[0].NotificationType)
	assert.Contains(t, notes[0].Message, "fan")
}

func TestUnboostKeepsPoints(t *testing.T) {
	env := testenv.New(t)
	svc := newRewards(env)
	ctx := context.Background()
	author := env.CreateUser(t, "author")
	fan := env.CreateUser(t, "fan")
	in := rewarddomain.BoostInput{PublicationID: 7, BoosterID: fan, AuthorID: author}

	_, err := svc.ToggleBoost(ctx, in)
	require.NoError(t, err)

	res, err := svc.ToggleBoost(ctx, in)
	require.NoError(t, err)
	assert.False(t, res.Boosted)
	assert.Zero(t, res.BoostCount)
	assert.Equal(t, int64(3), rating(t, env, author))

	sum, err := env.Ledger.SumFor(ctx, author, ledgerdomain.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum)
}

func TestSelfBoostAwardsWithoutNotification(t *testing.T) {
	env := testenv.New(t)
	svc := newRewards(env)
	author := env.CreateUser(t, "author")

	res, err := svc.ToggleBoost(context.Background(), rewarddomain.BoostInput{PublicationID: 1, BoosterID: author, AuthorID: author})
	require.NoError(t, err)
	assert.True(t, res.Boosted)
	assert.Equal(t, int64(3), rating(t, env, author))
	assert.Empty(t, notificationsOf(t, env, author))
}

func TestToggleBoostFailuresLeaveNoTrace(t *testing.T) {
	env := testenv.New(t)
	svc := newRewards(env)
	ctx := context.Background()
	author := env.CreateUser(t, "author")
	fan := env.CreateUser(t, "fan")
	other := env.CreateUser(t, "other")

	_, err := svc.ToggleBoost(ctx, rewarddomain.BoostInput{PublicationID: 0, BoosterID: fan, AuthorID: author})
	assert.ErrorIs(t, err, rewarddomain.ErrInvalidPublication)

	_, err = svc.ToggleBoost(ctx, rewarddomain.BoostInput{PublicationID: 5, BoosterID: 999, AuthorID: author})
	assert.ErrorIs(t, err, profiledomain.ErrUserNotFound)

	// Author without a profile: the boost row must roll back with the failed award.
	require.NoError(t, env.DB.Exec(`DELETE FROM profiles WHERE user_id = ?`, author).Error)
	_, err = svc.ToggleBoost(ctx, rewarddomain.BoostInput{PublicationID: 5, BoosterID: fan, AuthorID: author})
	assert.ErrorIs(t, err, profiledomain.ErrProfileNotFound)

	var count int64
	require.NoError(t, env.DB.Model(&rewarddomain.PublicationBoost{}).Count(&count).Error)
	assert.Zero(t, count)

	_, err = svc.ToggleBoost(ctx, rewarddomain.BoostInput{PublicationID: 6, BoosterID: fan, AuthorID: other})
	require.NoError(t, err)
	_, err = svc.ToggleBoost(ctx, rewarddomain.BoostInput{PublicationID: 6, BoosterID: author, AuthorID: fan})
	assert.ErrorIs(t, err, rewarddomain.ErrAuthorMismatch)
}

func TestUpsertAchievementBySlug(t *testing.T) {
	env := testenv.New(t)
	svc := newRewards(env)
	ctx := context.Background()

	created, isNew, err := svc.UpsertAchievement(ctx, rewarddomain.UpsertAchievementInput{Name: "Week Warrior", Description: "7 day streak"})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "week-warrior", created.Code)
	assert.Equal(t, rewarddomain.DefaultAchievementPoints, created.RatingPoints)

	points := int64(12)
	updated, isNew, err := svc.UpsertAchievement(ctx, rewarddomain.UpsertAchievementInput{Name: "Week  Warrior", RatingPoints: &points})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created.ID, updated.ID)

	got, err := svc.GetAchievement(ctx, "week-warrior")
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.RatingPoints)

	negative := int64(-1)
	_, _, err = svc.UpsertAchievement(ctx, rewarddomain.UpsertAchievementInput{Name: "Bad", RatingPoints: &negative})
	assert.ErrorIs(t, err, rewarddomain.ErrInvalidPoints)
	_, _, err = svc.UpsertAchievement(ctx, rewarddomain.UpsertAchievementInput{Name: "  "})
	assert.ErrorIs(t, err, rewarddomain.ErrInvalidName)

	list, err := svc.ListAchievements(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGrantAchievementOnce(t *testing.T) {
	env := testenv.New(t)
	svc := newRewards(env)
	ctx := context.Background()
	user := env.CreateUser(t, "alice")

	_, _, err := svc.UpsertAchievement(ctx, rewarddomain.UpsertAchievementInput{Name: "First Trade"})
	require.NoError(t, err)

	first, err := svc.GrantAchievement(ctx, user, "first-trade")
	require.NoError(t, err)
	assert.True(t, first.Granted)
	assert.Equal(t, int64(5), first.Rating)

	again, err := svc.GrantAchievement(ctx, user, "first-trade")
	require.NoError(t, err)
	assert.False(t, again.Granted)
	assert.Equal(t, int64(5), again.Rating)
	assert.Equal(t, int64(5), rating(t, env, user))

	history, _, err := env.Ledger.List(ctx, user, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "First Trade", history[0].Reason)

	notes := notificationsOf(t, env, user)
	require.Len(t, notes, 1)
	assert.Equal(t, notificationdomain.NotificationTypeAchievement, notes[0].NotificationType)

	owned, err := svc.ListUserAchievements(ctx, user)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "first-trade", owned[0].Code)

	_, err = svc.GrantAchievement(ctx, user, "missing")
	assert.ErrorIs(t, err, rewarddomain.ErrAchievementNotFound)
	_, err = svc.GrantAchievement(ctx, 404, "first-trade")
	assert.ErrorIs(t, err, profiledomain.ErrProfileNotFound)
}

func TestGrantZeroPointAchievement(t *testing.T) {
	env := testenv.New(t)
	svc := newRewards(env)
	ctx := context.Background()
	user := env.CreateUser(t, "alice")

	zero := int64(0)
	_, _, err := svc.UpsertAchievement(ctx, rewarddomain.UpsertAchievementInput{Name: "Badge Only", RatingPoints: &zero})
	require.NoError(t, err)

	res, err := svc.GrantAchievement(ctx, user, "badge-only")
	require.NoError(t, err)
	assert.True(t, res.Granted)
	assert.Zero(t, res.Rating)

	var count int64
	require.NoError(t, env.DB.Model(&ledgerdomain.RatingChange{}).Count(&count).Error)
	assert.Zero(t, count)
}
