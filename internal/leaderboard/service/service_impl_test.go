package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	leaderboarddomain "github.com/smallbiznis/tradeboard/internal/leaderboard/domain"
	"github.com/smallbiznis/tradeboard/internal/testenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usernames(entries []leaderboarddomain.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Username)
	}
	return out
}

func TestAllTimeOrdersByRatingThenUserID(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()

	// Created in id order: a < b < c < d.
	a := env.CreateUser(t, "a")
	b := env.CreateUser(t, "b")
	c := env.CreateUser(t, "c")
	d := env.CreateUser(t, "d")
	env.Award(t, a, 50, "seed")
	env.Award(t, c, 20, "seed")
	env.Award(t, b, 20, "seed")
	env.Award(t, d, 5, "seed")

	entries, err := env.Leaderboard.AllTime(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, usernames(entries))
	assert.Equal(t, []int64{50, 20, 20, 5}, []int64{entries[0].Score, entries[1].Score, entries[2].Score, entries[3].Score})
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 4, entries[3].Rank)

	top, err := env.Leaderboard.AllTime(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, usernames(top))
}

func TestWindowedSumsPointsInsideWindow(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	alice := env.CreateUser(t, "alice")
	bob := env.CreateUser(t, "bob")

	// 40 days ago: outside both windows.
	env.Clock.Set(testenv.DefaultNow.AddDate(0, 0, -40))
	env.Award(t, alice, 100, "seed")

	// 10 days ago: inside month only.
	env.Clock.Set(testenv.DefaultNow.AddDate(0, 0, -10))
	env.Award(t, bob, 30, "seed")

	// Exactly 7 days ago: the week window is inclusive.
	env.Clock.Set(testenv.DefaultNow.AddDate(0, 0, -7))
	env.Award(t, alice, 4, "seed")

	env.Clock.Set(testenv.DefaultNow)
	env.Award(t, alice, 1, "daily_login")
	env.Award(t, bob, 2, "daily_login")

	week, err := env.Leaderboard.Windowed(ctx, leaderboarddomain.PeriodWeek, 10)
	require.NoError(t, err)
	require.Len(t, week, 2)
	assert.Equal(t, "alice", week[0].Username)
	assert.Equal(t, int64(5), week[0].Score)
	assert.Equal(t, int64(2), week[1].Score)

	month, err := env.Leaderboard.Windowed(ctx, leaderboarddomain.PeriodMonth, 10)
	require.NoError(t, err)
	require.Len(t, month, 2)
	assert.Equal(t, "bob", month[0].Username)
	assert.Equal(t, int64(32), month[0].Score)
	assert.Equal(t, int64(5), month[1].Score)

	_, err = env.Leaderboard.Windowed(ctx, leaderboarddomain.PeriodAll, 10)
	assert.ErrorIs(t, err, leaderboarddomain.ErrUnsupportedPeriod)
}

func TestQueryValidatesInput(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()

	_, err := env.Leaderboard.Query(ctx, "year", 10)
	assert.ErrorIs(t, err, leaderboarddomain.ErrUnsupportedPeriod)

	_, err = env.Leaderboard.Query(ctx, leaderboarddomain.PeriodAll, -1)
	assert.ErrorIs(t, err, leaderboarddomain.ErrInvalidLimit)

	entries, err := env.Leaderboard.Query(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParsePeriodAndLimit(t *testing.T) {
	for raw, want := range map[string]leaderboarddomain.Period{
		"":      leaderboarddomain.PeriodAll,
		"all":   leaderboarddomain.PeriodAll,
		"WEEK":  leaderboarddomain.PeriodWeek,
		"month": leaderboarddomain.PeriodMonth,
	} {
		got, err := leaderboarddomain.ParsePeriod(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}
	_, err := leaderboarddomain.ParsePeriod("season")
	assert.ErrorIs(t, err, leaderboarddomain.ErrUnsupportedPeriod)

	limit, err := leaderboarddomain.NormalizeLimit(0)
	require.NoError(t, err)
	assert.Equal(t, leaderboarddomain.DefaultLimit, limit)
	limit, err = leaderboarddomain.NormalizeLimit(10_000)
	require.NoError(t, err)
	assert.Equal(t, leaderboarddomain.MaxLimit, limit)
}

func TestQueryServesWindowedFromCacheUntilExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := testenv.New(t, testenv.WithRedis(client, time.Minute))
	ctx := context.Background()
	alice := env.CreateUser(t, "alice")
	env.Award(t, alice, 10, "seed")

	first, err := env.Leaderboard.Query(ctx, leaderboarddomain.PeriodWeek, 10)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, int64(10), first[0].Score)
	assert.Len(t, mr.Keys(), 1)

	env.Award(t, alice, 5, "seed")

	cached, err := env.Leaderboard.Query(ctx, leaderboarddomain.PeriodWeek, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), cached[0].Score)

	mr.FastForward(2 * time.Minute)

	fresh, err := env.Leaderboard.Query(ctx, leaderboarddomain.PeriodWeek, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(15), fresh[0].Score)
}

func TestQueryAllTimeBypassesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := testenv.New(t, testenv.WithRedis(client, time.Minute))
	ctx := context.Background()
	alice := env.CreateUser(t, "alice")
	env.Award(t, alice, 10, "seed")

	first, err := env.Leaderboard.Query(ctx, leaderboarddomain.PeriodAll, 10)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, int64(10), first[0].Score)
	assert.Empty(t, mr.Keys())

	env.Award(t, alice, 5, "seed")

	next, err := env.Leaderboard.Query(ctx, leaderboarddomain.PeriodAll, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(15), next[0].Score)
}
