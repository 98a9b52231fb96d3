// Package storage defines the persistence interfaces for attribution runs
// and their metric rows, with sentinel errors shared by all backends.
package storage

import (
	"context"

	"defi-revenue-lab/internal/domain"
)

// RunStore provides access to attribution_runs storage.
type RunStore interface {
	// Insert adds a finished run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, run *domain.AttributionRun) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.AttributionRun, error)

	// GetByProtocol retrieves all runs for a (protocol, chain) pair,
	// ordered by from_time ASC.
	GetByProtocol(ctx context.Context, protocol, chain string) ([]*domain.AttributionRun, error)

	// GetByTimeRange retrieves runs whose window start falls within
	// [start, end] (inclusive), ordered by from_time ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.AttributionRun, error)
}

// MetricStore provides access to metric_rows storage.
type MetricStore interface {
	// InsertBulk adds all rows of one run. Fails the entire batch on any
	// duplicate (run_id, metric, token, tag).
	InsertBulk(ctx context.Context, rows []domain.MetricRow) error

	// GetByRunID retrieves all rows for a run, ordered by (metric, token, tag).
	GetByRunID(ctx context.Context, runID string) ([]domain.MetricRow, error)

	// GetByMetric retrieves all rows for one metric across runs, ordered by
	// (run_id, token, tag).
	GetByMetric(ctx context.Context, metric string) ([]domain.MetricRow, error)
}
