package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("reason_kind", "daily_login"),
		attribute.String("user_id", "456"),
		attribute.String("period", "week"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "user_id" {
			t.Fatalf("expected user_id to be dropped")
		}
	}
}

func TestReasonKind(t *testing.T) {
	cases := map[string]string{
		"daily_login":            "daily_login",
		"streak_bonus_14":        "streak_bonus",
		"boost_publication_9":    "boost",
		"manual_adjustment":      "other",
		"":                       "unknown",
	}
	for reason, want := range cases {
		if got := ReasonKind(reason); got != want {
			t.Fatalf("ReasonKind(%q) = %q, want %q", reason, got, want)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordRatingChange(context.Background(), "daily_login", 1)
	m.RecordCheckin(context.Background(), "ok")
	m.RecordSnapshot(context.Background(), "week")

	built, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	built.RecordRatingChange(context.Background(), "streak_bonus_7", 5)
}
