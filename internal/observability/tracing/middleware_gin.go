package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/tradeboard/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const userIDHeader = "X-User-Id"

// MiddlewareConfig controls which rating attributes land on request spans.
// Subject ids identify people, so they are opt-in.
type MiddlewareConfig struct {
	RecordSubjectIDs bool
}

// writeKinds maps rating-affecting routes to the kind of write they perform.
var writeKinds = map[string]string{
	"/api/checkin":                            "checkin",
	"/api/publications/:publication_id/boost": "boost",
	"/api/profiles/:user_id/follow":           "follow",
	"/internal/ratings":                       "adjustment",
	"/internal/achievements/:code/grant":      "achievement",
	"/internal/seasons":                       "season",
	"/internal/profiles/:user_id/repair":      "repair",
	"/internal/aggregates/rebuild":            "rebuild",
	"/internal/snapshots":                     "snapshot",
}

// GinMiddleware instruments inbound HTTP requests.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	tracer := otel.Tracer("tradeboard/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		ctx, span := tracer.Start(ctx, "HTTP "+strings.ToUpper(c.Request.Method), trace.WithSpanKind(trace.SpanKindServer))

		requestID := obscontext.RequestIDFromContext(ctx)
		if requestID != "" {
			member, err := baggage.NewMember("request_id", requestID)
			if err == nil {
				bag, bagErr := baggage.New(member)
				if bagErr == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		span.SetName("HTTP " + strings.ToUpper(c.Request.Method) + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", c.Writer.Status()),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)...)
		span.SetAttributes(RatingAttributes(c, route, cfg)...)

		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		}
		span.End()
	}
}

// RatingAttributes describes what a request did to ratings: the write kind,
// the leaderboard period and, when enabled, the acting and target users.
func RatingAttributes(c *gin.Context, route string, cfg MiddlewareConfig) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if c.Request.Method != http.MethodGet {
		if kind, ok := writeKinds[route]; ok {
			attrs = append(attrs, attribute.String("rating.write", kind))
		}
	}
	if route == "/api/leaderboard" {
		period := strings.ToLower(strings.TrimSpace(c.Query("period")))
		if period == "" {
			period = "all"
		}
		attrs = append(attrs, attribute.String("rating.leaderboard.period", period))
	}
	if publication := c.Param("publication_id"); publication != "" {
		attrs = append(attrs, attribute.String("rating.publication_id", publication))
	}
	if cfg.RecordSubjectIDs {
		if actor := strings.TrimSpace(c.GetHeader(userIDHeader)); actor != "" {
			attrs = append(attrs, attribute.String("rating.actor_id", actor))
		}
		if subject := c.Param("user_id"); subject != "" {
			attrs = append(attrs, attribute.String("rating.subject_id", subject))
		}
	}
	return attrs
}
