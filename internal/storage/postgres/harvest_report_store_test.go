package postgres

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/storage"
)

var (
	crvToken = common.HexToAddress("0xD533a949740bb3306d119CC777fa900bA034cd52")
	cvxToken = common.HexToAddress("0x4e3FBD56CD56c3e72c1403e103b45Db9da5B9D2B")
)

func newReport(id, run, adapter string, seq int, block uint64) *domain.HarvestReport {
	return &domain.HarvestReport{
		ReportID:     id,
		RunID:        run,
		AdapterName:  adapter,
		AdapterKind:  domain.AdapterKindConvex,
		Sequence:     seq,
		BlockNumber:  block,
		Timestamp:    int64(block) * 12,
		IdleDeployed: amount(100),
		Staked:       amount(1_100),
		TotalAssets:  amount(1_100),
		PrevTotal:    amount(1_000),
		Profit:       amount(100),
		Loss:         amount(0),
	}
}

func TestHarvestReportStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewHarvestReportStore(pool)
	ctx := context.Background()

	huge, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)

	r := newReport("rep-1", "run-1", "convex-steth", 1, 100)
	r.TotalAssets = huge
	r.Rewards = []domain.RewardAmount{
		{Token: crvToken, Amount: amount(42)},
		{Token: cvxToken, Amount: amount(7)},
	}
	require.NoError(t, store.Insert(ctx, r))

	got, err := store.GetByID(ctx, "rep-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, domain.AdapterKindConvex, got.AdapterKind)
	assert.Equal(t, uint64(100), got.BlockNumber)
	assert.Equal(t, 0, got.TotalAssets.Cmp(huge))
	assert.Equal(t, 0, got.Profit.Cmp(amount(100)))
	assert.Equal(t, 0, got.Loss.Sign())
	require.Len(t, got.Rewards, 2)
	assert.Equal(t, crvToken, got.Rewards[0].Token)
	assert.Equal(t, 0, got.Rewards[0].Amount.Cmp(amount(42)))
	assert.Equal(t, cvxToken, got.Rewards[1].Token)
}

func TestHarvestReportStore_Errors(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewHarvestReportStore(pool)
	ctx := context.Background()

	_, err := store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	r := newReport("rep-1", "run-1", "convex-steth", 1, 100)
	require.NoError(t, store.Insert(ctx, r))
	assert.ErrorIs(t, store.Insert(ctx, r), storage.ErrDuplicateKey)

	// Same (run, adapter, sequence) under a new ID.
	dup := newReport("rep-2", "run-1", "convex-steth", 1, 101)
	assert.ErrorIs(t, store.Insert(ctx, dup), storage.ErrDuplicateKey)
}

func TestHarvestReportStore_Ordering(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewHarvestReportStore(pool)
	ctx := context.Background()

	reports := []*domain.HarvestReport{
		newReport("c", "run-1", "curve-steth", 1, 200),
		newReport("b", "run-1", "convex-steth", 2, 200),
		newReport("a", "run-1", "convex-steth", 1, 100),
		newReport("d", "run-2", "convex-steth", 1, 50),
	}
	reports[0].AdapterKind = domain.AdapterKindCurve
	for _, r := range reports {
		require.NoError(t, store.Insert(ctx, r))
	}

	byRun, err := store.GetByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, byRun, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{byRun[0].ReportID, byRun[1].ReportID, byRun[2].ReportID})

	byAdapter, err := store.GetByAdapter(ctx, "convex-steth")
	require.NoError(t, err)
	require.Len(t, byAdapter, 3)
	assert.Equal(t, "d", byAdapter[0].ReportID)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Empty(t, all[0].Rewards)
}
