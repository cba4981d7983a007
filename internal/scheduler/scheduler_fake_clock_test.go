package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	aggregationdomain "github.com/smallbiznis/tradeboard/internal/aggregation/domain"
	"github.com/smallbiznis/tradeboard/internal/clock"
	"github.com/smallbiznis/tradeboard/internal/testenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newEnvScheduler(t *testing.T, env *testenv.Env, log *zap.Logger, cfg Config) *Scheduler {
	t.Helper()
	useTestRegistry(t)
	if log == nil {
		log = zap.NewNop()
	}
	s, err := New(Params{
		Log:        log,
		GenID:      env.Node,
		Clock:      env.Clock,
		Calendar:   env.Calendar,
		Config:     cfg,
		Aggregates: env.Aggregates,
		Profiles:   env.Profiles,
	})
	require.NoError(t, err)
	return s
}

func pointsOn(t *testing.T, env *testenv.Env, date time.Time) map[string]int64 {
	t.Helper()
	var rows []aggregationdomain.DailyRatingAggregate
	require.NoError(t, env.DB.Where("date = ?", clock.Normalize(date)).Find(&rows).Error)
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.UserID.String()] = row.Points
	}
	return out
}

func TestNewRequiresServices(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestScheduler_RunOnce_FakeClock_RebuildsRecentDays(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	alice := env.CreateUser(t, "alice")
	bob := env.CreateUser(t, "bob")

	yesterday := clock.AddDays(env.Today(), -1)
	env.Clock.Set(testenv.DefaultNow.AddDate(0, 0, -1))
	env.Award(t, alice, 4, "seed")
	env.Clock.Set(testenv.DefaultNow)
	env.Award(t, alice, 1, "daily_login")
	env.Award(t, bob, 3, "seed")

	require.NoError(t, env.DB.Exec(`DELETE FROM daily_rating_aggregates`).Error)

	s := newEnvScheduler(t, env, nil, Config{EnabledJobs: []string{JobAggregateRecent}})
	require.NoError(t, s.RunOnce(ctx))

	assert.Equal(t, map[string]int64{alice.String(): 4}, pointsOn(t, env, yesterday))
	assert.Equal(t, map[string]int64{alice.String(): 1, bob.String(): 3}, pointsOn(t, env, env.Today()))

	// A day later only the new yesterday and today are touched.
	env.Clock.Advance(24 * time.Hour)
	require.NoError(t, s.RunOnce(ctx))
	assert.Equal(t, map[string]int64{alice.String(): 4}, pointsOn(t, env, yesterday))
}

func TestScheduler_RunOnce_FakeClock_30Days(t *testing.T) {
	env := testenv.New(t, testenv.WithNow(time.Date(2024, time.February, 1, 9, 0, 0, 0, time.UTC)))
	ctx := context.Background()
	alice := env.CreateUser(t, "alice")
	bob := env.CreateUser(t, "bob")

	s := newEnvScheduler(t, env, nil, Config{SnapshotTopN: 10})
	for day := 0; day < 30; day++ {
		env.Award(t, alice, 2, "daily_login")
		if day%3 == 0 {
			env.Award(t, bob, 5, "boost_publication_1")
		}
		require.NoError(t, s.RunOnce(ctx))
		env.Clock.Advance(24 * time.Hour)
	}

	month, err := env.Aggregates.SumFor(ctx, alice, clock.AddDays(env.Today(), -30), env.Today())
	require.NoError(t, err)
	assert.Equal(t, int64(60), month)

	weeks, err := env.Aggregates.ListSnapshots(ctx, aggregationdomain.SnapshotPeriodWeek, 100)
	require.NoError(t, err)
	assert.Len(t, weeks, 30, "RunOnce snapshots every time it is called")

	var entries []aggregationdomain.SnapshotEntry
	require.NoError(t, json.Unmarshal(weeks[0].Data, &entries))
	require.Len(t, entries, 2)
	// The last weekly window covers days 22..29.
	assert.Equal(t, alice.String(), entries[0].UserID)
	assert.Equal(t, int64(16), entries[0].Rating)
	assert.Equal(t, bob.String(), entries[1].UserID)
	assert.Equal(t, int64(10), entries[1].Rating)
}

func TestScheduler_AggregateRequestsJob(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	alice := env.CreateUser(t, "alice")
	env.Award(t, alice, 6, "seed")
	today := env.Today()
	require.NoError(t, env.DB.Exec(`UPDATE daily_rating_aggregates SET points = 1`).Error)

	req, err := env.Aggregates.EnqueueRebuild(ctx, clock.AddDays(today, -2), today)
	require.NoError(t, err)

	s := newEnvScheduler(t, env, nil, Config{EnabledJobs: []string{JobAggregateRequests}})
	require.NoError(t, s.RunOnce(ctx))

	assert.Equal(t, map[string]int64{alice.String(): 6}, pointsOn(t, env, today))
	var stored aggregationdomain.RebuildRequest
	require.NoError(t, env.DB.First(&stored, "id = ?", req.ID).Error)
	assert.Equal(t, aggregationdomain.RebuildStatusCompleted, stored.Status)
}

func TestScheduler_ReconcileRatingsJobReportsDrift(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	alice := env.CreateUser(t, "alice")
	bob := env.CreateUser(t, "bob")
	env.Award(t, alice, 10, "seed")
	env.Award(t, bob, 3, "seed")
	require.NoError(t, env.DB.Exec(`UPDATE profiles SET rating_score = rating_score + 5 WHERE user_id = ?`, alice).Error)

	core, logs := observer.New(zap.WarnLevel)
	s := newEnvScheduler(t, env, zap.New(core), Config{EnabledJobs: []string{JobReconcileRatings}})
	require.NoError(t, s.RunOnce(ctx))

	drift := logs.FilterMessage("scheduler.rating.drift").All()
	require.Len(t, drift, 1)
	fields := drift[0].ContextMap()
	assert.Equal(t, alice.String(), fields["profile_id"])
	assert.Equal(t, int64(5), fields["drift"])

	// Reporting does not repair.
	rec, err := env.Profiles.Reconcile(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.Drift)
}

func TestScheduler_StartRejectsInvalidSpec(t *testing.T) {
	env := testenv.New(t)
	s := newEnvScheduler(t, env, nil, Config{
		EnabledJobs:      []string{JobSnapshotWeek},
		SnapshotWeekSpec: "not a cron spec",
	})
	require.Error(t, s.Start())
}

func TestScheduler_StartStop(t *testing.T) {
	env := testenv.New(t)
	loc := time.FixedZone("UTC+7", 7*60*60)
	s := newEnvScheduler(t, env, nil, Config{Location: loc})
	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "second start is a no-op")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}
