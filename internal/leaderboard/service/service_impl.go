package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tradeboard/internal/clock"
	"github.com/smallbiznis/tradeboard/internal/config"
	leaderboarddomain "github.com/smallbiznis/tradeboard/internal/leaderboard/domain"
	"github.com/smallbiznis/tradeboard/internal/leaderboard/repository"
	"github.com/smallbiznis/tradeboard/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const cacheKeyPrefix = "leaderboard"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Config   config.Config
	Clock    clock.Clock
	Calendar clock.Calendar
	Repo     repository.Repository
	Redis    *redis.Client `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	calendar clock.Calendar
	repo     repository.Repository
	redis    *redis.Client
	cacheTTL time.Duration
}

func NewService(p Params) leaderboarddomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("leaderboard.service"),
		clock:    p.Clock,
		calendar: p.Calendar,
		repo:     p.Repo,
		redis:    p.Redis,
		cacheTTL: p.Config.Leaderboard.CacheTTL,
	}
}

func (s *Service) AllTime(ctx context.Context, limit int) ([]leaderboarddomain.Entry, error) {
	limit, err := leaderboarddomain.NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.AllTime(ctx, s.db, limit)
	if err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

func (s *Service) Windowed(ctx context.Context, period leaderboarddomain.Period, limit int) ([]leaderboarddomain.Entry, error) {
	days, ok := period.WindowDays()
	if !ok {
		return nil, leaderboarddomain.ErrUnsupportedPeriod
	}
	limit, err := leaderboarddomain.NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}

	today := s.calendar.Today(s.clock)
	rows, err := s.repo.Windowed(ctx, s.db, clock.AddDays(today, -days), today, limit)
	if err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

func (s *Service) Query(ctx context.Context, period leaderboarddomain.Period, limit int) ([]leaderboarddomain.Entry, error) {
	ctx, span := tracing.StartSpan(ctx, "leaderboard.query", attribute.String("period", string(period)))
	defer span.End()

	if period == "" {
		period = leaderboarddomain.PeriodAll
	}
	if _, err := leaderboarddomain.ParsePeriod(string(period)); err != nil {
		return nil, err
	}
	limit, err := leaderboarddomain.NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}

	// The all-time board reads profiles.rating_score directly and is never cached.
	if period == leaderboarddomain.PeriodAll {
		entries, err := s.AllTime(ctx, limit)
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			return nil, err
		}
		return entries, nil
	}

	key := s.cacheKey(period, limit)
	if cached, ok := s.readCache(ctx, key); ok {
		return cached, nil
	}

	entries, err := s.Windowed(ctx, period, limit)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		return nil, err
	}

	s.writeCache(ctx, key, entries)
	return entries, nil
}

func (s *Service) cacheEnabled() bool {
	return s.redis != nil && s.cacheTTL > 0
}

// Windowed boards shift at local midnight, so the date is part of the key.
func (s *Service) cacheKey(period leaderboarddomain.Period, limit int) string {
	today := s.calendar.Today(s.clock)
	return fmt.Sprintf("%s:%s:%d:%s", cacheKeyPrefix, period, limit, today.Format("2006-01-02"))
}

func (s *Service) readCache(ctx context.Context, key string) ([]leaderboarddomain.Entry, bool) {
	if !s.cacheEnabled() {
		return nil, false
	}
	raw, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("leaderboard cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var entries []leaderboarddomain.Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.log.Warn("leaderboard cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return entries, true
}

func (s *Service) writeCache(ctx context.Context, key string, entries []leaderboarddomain.Entry) {
	if !s.cacheEnabled() {
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		s.log.Warn("leaderboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func toEntries(rows []repository.Row) []leaderboarddomain.Entry {
	entries := make([]leaderboarddomain.Entry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, leaderboarddomain.Entry{
			Rank:     i + 1,
			UserID:   row.UserID,
			Username: row.Username,
			Score:    row.Score,
		})
	}
	return entries
}
