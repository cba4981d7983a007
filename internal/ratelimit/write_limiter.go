package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tradeboard/internal/config"
)

const keyUserWrite = "ratelimit:write:%s:%d"

// WriteLimiter throttles per-user mutating requests such as check-ins and boosts.
type WriteLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewWriteLimiter(cfg config.Config, client *redis.Client) (*WriteLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return &WriteLimiter{}, nil
	}
	if client == nil {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	if limitCfg.WriteRate <= 0 || limitCfg.WriteBurst <= 0 {
		return nil, errors.New("write rate limit must be positive")
	}

	return &WriteLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.WriteRate,
		burst:   limitCfg.WriteBurst,
	}, nil
}

func (l *WriteLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *WriteLimiter) AllowUser(ctx context.Context, endpoint string, userID int64) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyUserWrite, strings.TrimSpace(endpoint), userID)
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
