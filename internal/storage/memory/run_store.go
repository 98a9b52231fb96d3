// Package memory provides in-memory implementations of the storage
// interfaces, used in tests and single-shot CLI runs without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"defi-revenue-lab/internal/domain"
	"defi-revenue-lab/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.AttributionRun // keyed by run_id
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		data: make(map[string]*domain.AttributionRun),
	}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

// Insert adds a finished run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(_ context.Context, run *domain.AttributionRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[run.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	runCopy := *run
	s.data[run.RunID] = &runCopy
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(_ context.Context, runID string) (*domain.AttributionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	runCopy := *run
	return &runCopy, nil
}

// GetByProtocol retrieves all runs for a (protocol, chain) pair, ordered by
// from_time ASC.
func (s *RunStore) GetByProtocol(_ context.Context, protocol, chain string) ([]*domain.AttributionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AttributionRun
	for _, run := range s.data {
		if run.Protocol == protocol && run.Chain == chain {
			runCopy := *run
			result = append(result, &runCopy)
		}
	}
	sortRuns(result)
	return result, nil
}

// GetByTimeRange retrieves runs whose window start falls within [start, end].
func (s *RunStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.AttributionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AttributionRun
	for _, run := range s.data {
		if run.FromTime >= start && run.FromTime <= end {
			runCopy := *run
			result = append(result, &runCopy)
		}
	}
	sortRuns(result)
	return result, nil
}

func sortRuns(runs []*domain.AttributionRun) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].FromTime != runs[j].FromTime {
			return runs[i].FromTime < runs[j].FromTime
		}
		return runs[i].RunID < runs[j].RunID
	})
}
