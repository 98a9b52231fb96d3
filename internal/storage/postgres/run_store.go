package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"defi-revenue-lab/internal/domain"
	"defi-revenue-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

// Insert adds a finished run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, run *domain.AttributionRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO attribution_runs (
			run_id, protocol, chain, from_block, to_block, from_time, to_time, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		run.RunID,
		run.Protocol,
		run.Chain,
		int64(run.FromBlock),
		int64(run.ToBlock),
		run.FromTime,
		run.ToTime,
		run.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (*domain.AttributionRun, error) {
	query := `
		SELECT run_id, protocol, chain, from_block, to_block, from_time, to_time, created_at
		FROM attribution_runs
		WHERE run_id = $1
	`

	row := s.pool.QueryRow(ctx, query, runID)
	run, err := scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return run, nil
}

// GetByProtocol retrieves all runs for a (protocol, chain) pair, ordered by
// from_time ASC.
func (s *RunStore) GetByProtocol(ctx context.Context, protocol, chain string) ([]*domain.AttributionRun, error) {
	query := `
		SELECT run_id, protocol, chain, from_block, to_block, from_time, to_time, created_at
		FROM attribution_runs
		WHERE protocol = $1 AND chain = $2
		ORDER BY from_time ASC, run_id ASC
	`

	rows, err := s.pool.Query(ctx, query, protocol, chain)
	if err != nil {
		return nil, fmt.Errorf("get runs by protocol: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// GetByTimeRange retrieves runs whose window start falls within [start, end].
func (s *RunStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.AttributionRun, error) {
	query := `
		SELECT run_id, protocol, chain, from_block, to_block, from_time, to_time, created_at
		FROM attribution_runs
		WHERE from_time >= $1 AND from_time <= $2
		ORDER BY from_time ASC, run_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get runs by time range: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// scanRun scans a single run row.
func scanRun(row pgx.Row) (*domain.AttributionRun, error) {
	var run domain.AttributionRun
	var fromBlock, toBlock int64

	err := row.Scan(
		&run.RunID, &run.Protocol, &run.Chain,
		&fromBlock, &toBlock,
		&run.FromTime, &run.ToTime, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.FromBlock = uint64(fromBlock)
	run.ToBlock = uint64(toBlock)
	return &run, nil
}

// scanRuns scans multiple run rows.
func scanRuns(rows pgx.Rows) ([]*domain.AttributionRun, error) {
	var runs []*domain.AttributionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}
