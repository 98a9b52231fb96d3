package clickhouse

import (
	"context"
	"fmt"

	"defi-revenue-lab/internal/domain"
	"defi-revenue-lab/internal/storage"
)

// MetricStore implements storage.MetricStore using ClickHouse.
//
// MergeTree does not enforce uniqueness at insert time, so duplicates are
// rejected with explicit checks before the batch is sent.
type MetricStore struct {
	conn *Conn
}

// NewMetricStore creates a new MetricStore.
func NewMetricStore(conn *Conn) *MetricStore {
	return &MetricStore{conn: conn}
}

// Compile-time interface check.
var _ storage.MetricStore = (*MetricStore)(nil)

// InsertBulk adds all rows of one run. Fails entire batch on any duplicate
// (run_id, metric, token, tag).
func (s *MetricStore) InsertBulk(ctx context.Context, rows []domain.MetricRow) error {
	if len(rows) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		runID  string
		metric string
		token  domain.Address
		tag    string
	}
	seen := make(map[key]struct{}, len(rows))
	runIDs := make(map[string]struct{})
	for _, row := range rows {
		if row.RunID == "" || row.Metric == "" {
			return storage.ErrInvalidInput
		}
		k := key{row.RunID, row.Metric, row.Token, row.Tag}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
		runIDs[row.RunID] = struct{}{}
	}

	// Check for duplicates against existing DB rows. Rows land per run, so
	// one existence probe per run id suffices.
	for runID := range runIDs {
		exists, err := s.runExists(ctx, runID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO metric_rows (
			run_id, metric, token, tag, amount
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, row := range rows {
		err = batch.Append(
			row.RunID, row.Metric, row.Token.String(), row.Tag, row.Amount,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByRunID retrieves all rows for a run, ordered by (metric, token, tag).
func (s *MetricStore) GetByRunID(ctx context.Context, runID string) ([]domain.MetricRow, error) {
	query := `
		SELECT run_id, metric, token, tag, amount
		FROM metric_rows
		WHERE run_id = ?
		ORDER BY metric ASC, token ASC, tag ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query by run id: %w", err)
	}
	defer rows.Close()

	return scanMetricRows(rows)
}

// GetByMetric retrieves all rows for one metric across runs.
func (s *MetricStore) GetByMetric(ctx context.Context, metric string) ([]domain.MetricRow, error) {
	query := `
		SELECT run_id, metric, token, tag, amount
		FROM metric_rows
		WHERE metric = ?
		ORDER BY run_id ASC, token ASC, tag ASC
	`

	rows, err := s.conn.Query(ctx, query, metric)
	if err != nil {
		return nil, fmt.Errorf("query by metric: %w", err)
	}
	defer rows.Close()

	return scanMetricRows(rows)
}

// runExists checks whether any rows exist for a run.
func (s *MetricStore) runExists(ctx context.Context, runID string) (bool, error) {
	query := `SELECT count(*) FROM metric_rows WHERE run_id = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, runID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanMetricRows scans multiple rows.
func scanMetricRows(rows chRows) ([]domain.MetricRow, error) {
	var result []domain.MetricRow

	for rows.Next() {
		var row domain.MetricRow
		var token string

		err := rows.Scan(&row.RunID, &row.Metric, &token, &row.Tag, &row.Amount)
		if err != nil {
			return nil, fmt.Errorf("scan metric row: %w", err)
		}

		row.Token = domain.Address(token)
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric rows: %w", err)
	}

	return result, nil
}
