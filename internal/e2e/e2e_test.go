package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tradeboard/internal/clock"
	"github.com/smallbiznis/tradeboard/internal/config"
	"github.com/smallbiznis/tradeboard/internal/observability"
	"github.com/smallbiznis/tradeboard/internal/scheduler"
	"github.com/smallbiznis/tradeboard/internal/seed"
	"github.com/smallbiznis/tradeboard/internal/server"
	"github.com/smallbiznis/tradeboard/internal/testenv"
	"github.com/smallbiznis/tradeboard/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type testEnv struct {
	app       *fx.App
	db        *gorm.DB
	clock     *clock.FakeClock
	scheduler *scheduler.Scheduler
	baseURL   string
	httpSrv   *httptest.Server
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	setDefaultEnv()

	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_SeededAchievementCatalog(t *testing.T) {
	resetDatabase(t, env.db)

	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/api/achievements", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.StatusCode, string(body))
	}
	var payload struct {
		Data []struct {
			Code string `json:"code"`
		} `json:"data"`
	}
	decode(t, body, &payload)
	if len(payload.Data) != len(seed.DefaultCatalog) {
		t.Fatalf("expected %d achievements, got %d", len(seed.DefaultCatalog), len(payload.Data))
	}

	userID := ensureUser(t, "grantee")
	grantURL := env.baseURL + "/internal/achievements/first-check-in/grant"
	resp, body = doJSON(t, http.MethodPost, grantURL, map[string]any{"user_id": userID}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("grant failed: %d: %s", resp.StatusCode, string(body))
	}
	var grant struct {
		Data struct {
			Granted bool  `json:"granted"`
			Rating  int64 `json:"rating"`
		} `json:"data"`
	}
	decode(t, body, &grant)
	if !grant.Data.Granted || grant.Data.Rating != 5 {
		t.Fatalf("unexpected grant result: %+v", grant.Data)
	}

	resp, body = doJSON(t, http.MethodPost, grantURL, map[string]any{"user_id": userID}, nil)
	decode(t, body, &grant)
	if resp.StatusCode != http.StatusOK || grant.Data.Granted {
		t.Fatalf("expected soft no-op on re-grant, got %d: %s", resp.StatusCode, string(body))
	}

	if got := countRows(t, env.db, "notifications", "user_id = ? AND notification_type = ?", mustParseID(t, userID), "ACHIEVEMENT"); got != 1 {
		t.Fatalf("expected 1 achievement notification, got %d", got)
	}
}

func TestE2E_WeekOfCheckinsAndSnapshots(t *testing.T) {
	resetDatabase(t, env.db)
	start := env.clock.Now()
	t.Cleanup(func() { env.clock.Set(start) })

	alice := ensureUser(t, "alice")
	bob := ensureUser(t, "bob")

	for day := 1; day <= 7; day++ {
		checkin(t, alice, true)
		if day%2 == 1 {
			checkin(t, bob, true)
		}
		checkin(t, alice, false)
		env.clock.Advance(24 * time.Hour)
	}

	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/api/profiles/"+alice+"/rating", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rating lookup failed: %d: %s", resp.StatusCode, string(body))
	}
	var rating struct {
		Data struct {
			Rating      int64 `json:"rating"`
			LoginStreak int   `json:"login_streak"`
		} `json:"data"`
	}
	decode(t, body, &rating)
	if rating.Data.Rating != 12 || rating.Data.LoginStreak != 7 {
		t.Fatalf("expected rating 12 with streak 7, got %+v", rating.Data)
	}

	if err := env.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("scheduler run: %v", err)
	}

	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/leaderboard?period=week", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("leaderboard failed: %d: %s", resp.StatusCode, string(body))
	}
	var board struct {
		Period string `json:"period"`
		Data   []struct {
			UserID string `json:"user_id"`
			Points int64  `json:"points"`
		} `json:"data"`
	}
	decode(t, body, &board)
	if board.Period != "week" || len(board.Data) != 2 {
		t.Fatalf("unexpected leaderboard: %s", string(body))
	}
	if board.Data[0].UserID != alice || board.Data[0].Points != 12 {
		t.Fatalf("expected alice first with 12 points, got %+v", board.Data[0])
	}
	if board.Data[1].UserID != bob || board.Data[1].Points != 4 {
		t.Fatalf("expected bob second with 4 points, got %+v", board.Data[1])
	}

	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/internal/snapshots?period=week", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list snapshots failed: %d: %s", resp.StatusCode, string(body))
	}
	var snapshots struct {
		Data []struct {
			ID     string `json:"id"`
			Period string `json:"period"`
		} `json:"data"`
	}
	decode(t, body, &snapshots)
	if len(snapshots.Data) != 1 || snapshots.Data[0].Period != "week" {
		t.Fatalf("expected one weekly snapshot, got %s", string(body))
	}

	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/internal/profiles/"+alice+"/reconcile", nil, nil)
	var rec struct {
		Consistent bool `json:"consistent"`
	}
	decode(t, body, &rec)
	if resp.StatusCode != http.StatusOK || !rec.Consistent {
		t.Fatalf("expected consistent profile, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestE2E_NewSeasonResetsRatings(t *testing.T) {
	resetDatabase(t, env.db)

	carol := ensureUser(t, "carol")
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/internal/ratings", map[string]any{
		"user_id": carol,
		"points":  20,
		"reason":  "manual",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add rating failed: %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, http.MethodPost, env.baseURL+"/internal/seasons", map[string]any{"top_n": 10}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start season failed: %d: %s", resp.StatusCode, string(body))
	}
	var season struct {
		Data struct {
			SeasonNumber  int   `json:"season_number"`
			ProfilesReset int64 `json:"profiles_reset"`
		} `json:"data"`
	}
	decode(t, body, &season)
	if season.Data.SeasonNumber != 2 || season.Data.ProfilesReset != 1 {
		t.Fatalf("unexpected season result: %+v", season.Data)
	}

	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/leaderboard", nil, nil)
	var board struct {
		Data []struct {
			Rating int64 `json:"rating"`
		} `json:"data"`
	}
	decode(t, body, &board)
	if resp.StatusCode != http.StatusOK || len(board.Data) != 1 || board.Data[0].Rating != 0 {
		t.Fatalf("expected reset leaderboard, got %d: %s", resp.StatusCode, string(body))
	}

	if got := countRows(t, env.db, "rating_snapshots", "period = ?", "season"); got != 1 {
		t.Fatalf("expected 1 season snapshot, got %d", got)
	}
}

func startEnv() (*testEnv, error) {
	var (
		dbConn *gorm.DB
		clk    *clock.FakeClock
		sched  *scheduler.Scheduler
		srv    *server.Server
	)

	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		fx.Provide(newTestDB),
		fx.Provide(func() *clock.FakeClock { return clock.NewFakeClock(testenv.DefaultNow) }),
		fx.Provide(func(c *clock.FakeClock) clock.Clock { return c }),
		fx.Provide(clock.NewCalendar),
		server.DomainModule,
		scheduler.Module,
		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Populate(&srv, &dbConn, &clk, &sched),
	)
	if err := app.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:       app,
		db:        dbConn,
		clock:     clk,
		scheduler: sched,
		baseURL:   httpSrv.URL,
		httpSrv:   httpSrv,
	}, nil
}

func newTestDB() (*gorm.DB, error) {
	conn, err := db.NewTest()
	if err != nil {
		return nil, err
	}
	if err := conn.AutoMigrate(testenv.Models()...); err != nil {
		return nil, err
	}
	return conn, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
}

func setDefaultEnv() {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("DATABASE_TYPE", "sqlite")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("OTEL_ENABLED", "false")
	setEnvIfEmpty("SCHEDULER_ENABLED", "false")
	setEnvIfEmpty("APP_TIMEZONE", "UTC")
	_ = os.Unsetenv("REDIS_ADDR")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

func resetDatabase(t *testing.T, dbConn *gorm.DB) {
	t.Helper()
	models := testenv.Models()
	for i := len(models) - 1; i >= 0; i-- {
		if err := dbConn.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(models[i]).Error; err != nil {
			t.Fatalf("truncate tables: %v", err)
		}
	}
	if _, err := seed.EnsureAchievementCatalog(dbConn); err != nil {
		t.Fatalf("seed achievement catalog: %v", err)
	}
}

func ensureUser(t *testing.T, username string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/internal/users", map[string]any{"username": username}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user failed: %d: %s", resp.StatusCode, string(body))
	}
	var payload struct {
		Data struct {
			UserID string `json:"user_id"`
		} `json:"data"`
	}
	decode(t, body, &payload)
	mustParseID(t, payload.Data.UserID)
	return payload.Data.UserID
}

func checkin(t *testing.T, userID string, wantOK bool) {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/checkin", nil, map[string]string{
		server.HeaderUserID: userID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("checkin failed: %d: %s", resp.StatusCode, string(body))
	}
	var result struct {
		OK bool `json:"ok"`
	}
	decode(t, body, &result)
	if result.OK != wantOK {
		t.Fatalf("expected ok=%v, got %s", wantOK, string(body))
	}
}

func countRows(t *testing.T, dbConn *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := dbConn.Table(table).Where(where, args...).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func mustParseID(t *testing.T, value string) snowflake.ID {
	t.Helper()
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed == 0 {
		t.Fatalf("invalid snowflake id: %s", value)
	}
	return parsed
}

func decode(t *testing.T, body []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode response: %v: %s", err, string(body))
	}
}

func doJSON(t *testing.T, method, reqURL string, payload any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, reqURL, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}
