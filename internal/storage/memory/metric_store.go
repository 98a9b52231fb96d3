package memory

import (
	"context"
	"sort"
	"sync"

	"defi-revenue-lab/internal/domain"
	"defi-revenue-lab/internal/storage"
)

// MetricStore is an in-memory implementation of storage.MetricStore.
type MetricStore struct {
	mu   sync.RWMutex
	data map[metricKey]domain.MetricRow
}

type metricKey struct {
	runID  string
	metric string
	token  domain.Address
	tag    string
}

// NewMetricStore creates a new in-memory metric store.
func NewMetricStore() *MetricStore {
	return &MetricStore{
		data: make(map[metricKey]domain.MetricRow),
	}
}

// Compile-time interface check.
var _ storage.MetricStore = (*MetricStore)(nil)

// InsertBulk adds all rows of one run. Fails the entire batch on any
// duplicate (run_id, metric, token, tag); nothing is written on failure.
func (s *MetricStore) InsertBulk(_ context.Context, rows []domain.MetricRow) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before writing anything.
	seen := make(map[metricKey]struct{}, len(rows))
	for _, row := range rows {
		if row.RunID == "" || row.Metric == "" {
			return storage.ErrInvalidInput
		}
		k := metricKey{row.RunID, row.Metric, row.Token, row.Tag}
		if _, dup := seen[k]; dup {
			return storage.ErrDuplicateKey
		}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, row := range rows {
		s.data[metricKey{row.RunID, row.Metric, row.Token, row.Tag}] = row
	}
	return nil
}

// GetByRunID retrieves all rows for a run, ordered by (metric, token, tag).
func (s *MetricStore) GetByRunID(_ context.Context, runID string) ([]domain.MetricRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.MetricRow
	for k, row := range s.data {
		if k.runID == runID {
			result = append(result, row)
		}
	}
	sortRows(result)
	return result, nil
}

// GetByMetric retrieves all rows for one metric across runs.
func (s *MetricStore) GetByMetric(_ context.Context, metric string) ([]domain.MetricRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.MetricRow
	for k, row := range s.data {
		if k.metric == metric {
			result = append(result, row)
		}
	}
	sortRows(result)
	return result, nil
}

func sortRows(rows []domain.MetricRow) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.RunID != b.RunID {
			return a.RunID < b.RunID
		}
		if a.Metric != b.Metric {
			return a.Metric < b.Metric
		}
		if a.Token != b.Token {
			return a.Token < b.Token
		}
		return a.Tag < b.Tag
	})
}
