package server

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/tradeboard/internal/observability/context"
	"github.com/smallbiznis/tradeboard/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tradeboard/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	HeaderUserID     = "X-User-Id"
	contextUserIDKey = "user_id"

	rateLimitReasonUserWrite = "user-write-rate"
)

// UserRequired trusts the caller identity set by the upstream auth layer.
func (s *Server) UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		id, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || id <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, id)
		c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), id))
		c.Next()
	}
}

func currentUserID(c *gin.Context) snowflake.ID {
	return snowflake.ID(c.GetInt64(contextUserIDKey))
}

// WriteRateLimit throttles mutating calls per user when the limiter is enabled.
func (s *Server) WriteRateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.writeLimiter == nil || !s.writeLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.writeLimiter.AllowUser(ctx, endpoint, c.GetInt64(contextUserIDKey))
		if err != nil {
			logger.FromContext(ctx).Warn("write rate limit check failed", zap.String("endpoint", endpoint), zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			denyWriteRateLimit(c, endpoint, result.RetryAfter, s.obsMetrics)
			return
		}

		recordRateLimitAllowed(ctx, endpoint, s.obsMetrics)
		c.Next()
	}
}

func denyWriteRateLimit(c *gin.Context, endpoint string, retryAfter time.Duration, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("write rate limit exceeded",
		zap.String("reason", rateLimitReasonUserWrite),
		zap.String("endpoint", endpoint),
	)
	recordRateLimitDenied(ctx, endpoint, rateLimitReasonUserWrite, metrics)

	seconds := int(retryAfter.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
	c.Header("X-Rate-Limited-Reason", rateLimitReasonUserWrite)
	AbortWithError(c, ErrRateLimited)
}

func recordRateLimitAllowed(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)
}
