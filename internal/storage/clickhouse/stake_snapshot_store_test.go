package clickhouse

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/storage"
)

func snapshot(run, adapter string, block uint64, staked, idle int64) *domain.StakeSnapshot {
	return &domain.StakeSnapshot{
		RunID:       run,
		AdapterName: adapter,
		BlockNumber: block,
		Timestamp:   int64(block) * 12,
		Staked:      big.NewInt(staked),
		Idle:        big.NewInt(idle),
	}
}

func TestStakeSnapshotStore_InsertBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStakeSnapshotStore(conn)
	ctx := context.Background()

	assert.NoError(t, store.InsertBulk(ctx, nil))

	huge, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	snaps := []*domain.StakeSnapshot{
		snapshot("run-1", "convex-steth", 102, 500, 0),
		snapshot("run-1", "convex-steth", 100, 1000, 25),
		snapshot("run-1", "curve-steth", 100, 10, 0),
	}
	snaps[0].Staked = huge
	require.NoError(t, store.InsertBulk(ctx, snaps))

	got, err := store.GetByAdapter(ctx, "run-1", "convex-steth")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(100), got[0].BlockNumber)
	assert.Equal(t, int64(1200), got[0].Timestamp)
	assert.Equal(t, 0, got[0].Staked.Cmp(big.NewInt(1000)))
	assert.Equal(t, 0, got[0].Idle.Cmp(big.NewInt(25)))
	assert.Equal(t, 0, got[1].Staked.Cmp(huge))
}

func TestStakeSnapshotStore_InsertBulk_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStakeSnapshotStore(conn)
	ctx := context.Background()

	snaps := []*domain.StakeSnapshot{snapshot("run-1", "convex-steth", 100, 1, 0)}
	require.NoError(t, store.InsertBulk(ctx, snaps))
	assert.ErrorIs(t, store.InsertBulk(ctx, snaps), storage.ErrDuplicateKey)

	intra := []*domain.StakeSnapshot{
		snapshot("run-2", "convex-steth", 100, 1, 0),
		snapshot("run-2", "convex-steth", 100, 2, 0),
	}
	assert.ErrorIs(t, store.InsertBulk(ctx, intra), storage.ErrDuplicateKey)

	got, err := store.GetByAdapter(ctx, "run-2", "convex-steth")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStakeSnapshotStore_GetByBlockRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStakeSnapshotStore(conn)
	ctx := context.Background()

	var snaps []*domain.StakeSnapshot
	for block := uint64(100); block <= 105; block++ {
		snaps = append(snaps, snapshot("run-1", "curve-steth", block, int64(block), 0))
	}
	require.NoError(t, store.InsertBulk(ctx, snaps))

	got, err := store.GetByBlockRange(ctx, "run-1", "curve-steth", 101, 103)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(101), got[0].BlockNumber)
	assert.Equal(t, uint64(103), got[2].BlockNumber)

	got, err = store.GetByBlockRange(ctx, "run-1", "curve-steth", 200, 300)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStakeSnapshotStore_InsertBulk_RejectsNilAmounts(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStakeSnapshotStore(conn)
	sn := snapshot("run-1", "curve-steth", 1, 0, 0)
	sn.Idle = nil
	assert.ErrorIs(t, store.InsertBulk(context.Background(), []*domain.StakeSnapshot{sn}), storage.ErrInvalidInput)
}
