package postgres

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
		Protocol:  "shadow-exchange",
		Chain:     "sonic",
		FromBlock: 1_705_781,
		ToBlock:   1_800_000,
		FromTime:  fromTime,
		ToTime:    fromTime + 86_400,
		CreatedAt: fromTime + 90_000,
	}
}

func TestRunStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRunStore(pool)
	ctx := context.Background()

	run := testRun("run-1", 1_700_000_000)
	require.NoError(t, store.Insert(ctx, run))

	got, err := store.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, got)
}

func TestRunStore_DuplicateRejected(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRunStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testRun("run-1", 1_700_000_000)))
	err := store.Insert(ctx, testRun("run-1", 1_700_050_000))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRunStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRunStore(pool)
	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunStore_GetByProtocolAndTimeRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRunStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testRun("run-b", 1_700_200_000)))
	require.NoError(t, store.Insert(ctx, testRun("run-a", 1_700_100_000)))

	runs, err := store.GetByProtocol(ctx, "shadow-exchange", "sonic")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-a", runs[0].RunID)

	ranged, err := store.GetByTimeRange(ctx, 1_700_150_000, 1_700_250_000)
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "run-b", ranged[0].RunID)
}
