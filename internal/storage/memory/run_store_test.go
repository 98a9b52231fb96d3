package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defi-revenue-lab/internal/domain"
	"defi-revenue-lab/internal/storage"
)

func testRun(id string, fromTime int64) *domain.AttributionRun {
	return &domain.AttributionRun{
		RunID:     id,
		Protocol:  "shadow-legacy",
		Chain:     "sonic",
		FromBlock: 1000,
		ToBlock:   2000,
		FromTime:  fromTime,
		ToTime:    fromTime + 86_400,
		CreatedAt: fromTime + 90_000,
	}
}

func TestRunStore_InsertAndGet(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	run := testRun("run-1", 1_700_000_000)
	require.NoError(t, store.Insert(ctx, run))

	got, err := store.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	// Mutating the stored run must not leak back.
	got.Protocol = "mutated"
	again, err := store.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "shadow-legacy", again.Protocol)
}

func TestRunStore_DuplicateRejected(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testRun("run-1", 1_700_000_000)))
	err := store.Insert(ctx, testRun("run-1", 1_700_000_000))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRunStore_InvalidInput(t *testing.T) {
	store := NewRunStore()
	assert.ErrorIs(t, store.Insert(context.Background(), nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(context.Background(), &domain.AttributionRun{}), storage.ErrInvalidInput)
}

func TestRunStore_NotFound(t *testing.T) {
	store := NewRunStore()
	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunStore_GetByProtocolOrdered(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testRun("run-b", 1_700_200_000)))
	require.NoError(t, store.Insert(ctx, testRun("run-a", 1_700_100_000)))
	other := testRun("run-c", 1_700_000_000)
	other.Protocol = "rocksolid-network"
	other.Chain = "ethereum"
	require.NoError(t, store.Insert(ctx, other))

	runs, err := store.GetByProtocol(ctx, "shadow-legacy", "sonic")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-a", runs[0].RunID)
	assert.Equal(t, "run-b", runs[1].RunID)
}

func TestRunStore_GetByTimeRange(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testRun("run-1", 100)))
	require.NoError(t, store.Insert(ctx, testRun("run-2", 200)))
	require.NoError(t, store.Insert(ctx, testRun("run-3", 300)))

	runs, err := store.GetByTimeRange(ctx, 150, 250)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-2", runs[0].RunID)
}
