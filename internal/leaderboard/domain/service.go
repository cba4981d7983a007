package domain

import (
	"context"
	"errors"
)

type Service interface {
	AllTime(ctx context.Context, limit int) ([]Entry, error)
	Windowed(ctx context.Context, period Period, limit int) ([]Entry, error)
	// Query dispatches on period and serves from the read cache when enabled.
	Query(ctx context.Context, period Period, limit int) ([]Entry, error)
}

var (
	ErrUnsupportedPeriod = errors.New("unsupported_period")
	ErrInvalidLimit      = errors.New("invalid_limit")
)
