package context

import (
	stdctx "context"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
)

type requestIDKey struct{}
type userIDKey struct{}
type correlationIDKey struct{}

// WithRequestID stores the inbound request identifier.
func WithRequestID(ctx stdctx.Context, requestID string) stdctx.Context {
	requestID = strings.TrimSpace(requestID)
	if ctx == nil || requestID == "" {
		return ctx
	}
	return stdctx.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx stdctx.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithUserID stores the acting user for log correlation.
func WithUserID(ctx stdctx.Context, userID int64) stdctx.Context {
	if ctx == nil || userID <= 0 {
		return ctx
	}
	return stdctx.WithValue(ctx, userIDKey{}, userID)
}

func UserIDFromContext(ctx stdctx.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(userIDKey{}).(int64); ok {
		return strconv.FormatInt(v, 10)
	}
	return ""
}

func CorrelationIDFromContext(ctx stdctx.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return v
	}
	return ""
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx stdctx.Context) (stdctx.Context, string) {
	if ctx == nil {
		ctx = stdctx.Background()
	}
	cid := CorrelationIDFromContext(ctx)
	if cid == "" {
		cid = ulid.Make().String()
		ctx = stdctx.WithValue(ctx, correlationIDKey{}, cid)
	}
	return ctx, cid
}
