package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/tradeboard/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithUserID(ctx, 7)
	WithContext(ctx, base).Info("checkin")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-9", fields["request_id"])
		assert.Equal(t, "7", fields["user_id"])
		assert.Equal(t, "", fields["trace_id"])
	}
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "UPDATE", operationFromSQL("UPDATE profiles SET rating_score = rating_score + 1"))
	assert.Equal(t, "INSERT", operationFromSQL("  insert into rating_changes (user_id) values (1)"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}
