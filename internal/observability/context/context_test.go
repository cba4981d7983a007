package context

import (
	stdctx "context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestAndUserRoundTrip(t *testing.T) {
	ctx := WithRequestID(stdctx.Background(), " req-1 ")
	ctx = WithUserID(ctx, 42)

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "42", UserIDFromContext(ctx))
	assert.Equal(t, "", UserIDFromContext(stdctx.Background()))
}

func TestEnsureCorrelationIDIsStable(t *testing.T) {
	ctx, first := EnsureCorrelationID(stdctx.Background())
	assert.Len(t, first, 26)

	_, second := EnsureCorrelationID(ctx)
	assert.Equal(t, first, second)
}
