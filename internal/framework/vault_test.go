package framework

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yield-adapter-lab/internal/access"
	"yield-adapter-lab/internal/chain"
	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/idhash"
	"yield-adapter-lab/internal/protocol"
	"yield-adapter-lab/internal/protocol/stub"
	"yield-adapter-lab/internal/storage/memory"
	"yield-adapter-lab/internal/strategy"
)

var (
	lpToken = common.HexToAddress("0x00000000000000000000000000000000000011a1")
	crv     = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	rwd     = common.HexToAddress("0x00000000000000000000000000000000000000c3")

	gaugeAddr   = common.HexToAddress("0x000000000000000000000000000000000000a001")
	minterAddr  = common.HexToAddress("0x000000000000000000000000000000000000a002")
	adapterAddr = common.HexToAddress("0x000000000000000000000000000000000000ad01")

	management = common.HexToAddress("0x000000000000000000000000000000000000e001")
	emergency  = common.HexToAddress("0x000000000000000000000000000000000000e002")
	keeper     = common.HexToAddress("0x000000000000000000000000000000000000e003")
	alice      = common.HexToAddress("0x000000000000000000000000000000000000a11c")
)

type fixture struct {
	env     *chain.Env
	gauge   *stub.Gauge
	adapter strategy.Adapter
	store   *memory.HarvestReportStore
	vault   *Vault
}

// newFixture hosts a Curve adapter on lpToken and funds alice with 10_000 LP.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	env := chain.NewEnv(chain.EnvOptions{})
	reg := protocol.NewRegistry()

	gauge := stub.NewGauge(env, gaugeAddr, lpToken)
	reg.BindGauge(gaugeAddr, gauge)
	minter := stub.NewMinter(env, minterAddr, crv)
	minter.AddGauge(gauge)
	reg.BindMinter(minterAddr, minter)

	a, err := strategy.NewCurveAdapter(ctx, strategy.Options{Env: env, Registry: reg}, domain.AdapterConfig{
		Kind:           domain.AdapterKindCurve,
		Name:           "curve-lp",
		Address:        adapterAddr,
		Asset:          lpToken,
		Gauge:          gaugeAddr,
		Minter:         minterAddr,
		Management:     management,
		EmergencyAdmin: emergency,
		Keeper:         keeper,
	})
	require.NoError(t, err)

	store := memory.NewHarvestReportStore()
	v, err := New(Options{
		Env:         env,
		Adapter:     a,
		Reports:     store,
		RunID:       "run-1",
		TrackTokens: []common.Address{crv},
	})
	require.NoError(t, err)

	require.NoError(t, env.Ledger().Mint(lpToken, alice, big.NewInt(10_000)))
	return &fixture{env: env, gauge: gauge, adapter: a, store: store, vault: v}
}

func amt(v int64) *big.Int { return big.NewInt(v) }

func requireAmount(t *testing.T, want int64, got *big.Int) {
	t.Helper()
	require.NotNil(t, got)
	require.Zero(t, big.NewInt(want).Cmp(got), "want %d, got %s", want, got)
}

func (f *fixture) staked(t *testing.T) *big.Int {
	t.Helper()
	s, err := f.adapter.BalanceOfStake(context.Background())
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Env: chain.NewEnv(chain.EnvOptions{})})
	assert.Error(t, err)
}

func TestDeposit_DeploysAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.vault.Deposit(ctx, alice, amt(4_000)))

	requireAmount(t, 4_000, f.staked(t))
	requireAmount(t, 4_000, f.vault.TotalAssets())
	requireAmount(t, 6_000, f.env.Ledger().BalanceOf(lpToken, alice))

	assert.ErrorIs(t, f.vault.Deposit(ctx, alice, amt(0)), ErrNonPositiveAmount)

	// Depositor short of funds: nothing moves.
	require.Error(t, f.vault.Deposit(ctx, alice, amt(7_000)))
	requireAmount(t, 4_000, f.vault.TotalAssets())
	requireAmount(t, 6_000, f.env.Ledger().BalanceOf(lpToken, alice))
}

func TestWithdraw_FreesOnlyTheShortfall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.vault.Deposit(ctx, alice, amt(1_000)))

	// 100 idle on the adapter, unaccounted until the next report.
	require.NoError(t, f.env.Ledger().Mint(lpToken, adapterAddr, amt(100)))

	res, err := f.vault.Withdraw(ctx, alice, amt(300))
	require.NoError(t, err)
	requireAmount(t, 200, res.Freed)
	requireAmount(t, 300, res.Withdrawn)
	requireAmount(t, 0, res.Shortfall)
	requireAmount(t, 800, f.staked(t))
	requireAmount(t, 700, f.vault.TotalAssets())
	requireAmount(t, 9_300, f.env.Ledger().BalanceOf(lpToken, alice))

	_, err = f.vault.Withdraw(ctx, alice, amt(701))
	assert.ErrorIs(t, err, ErrInsufficientAssets)
}

func TestWithdraw_IlliquidSourceReverts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.vault.Deposit(ctx, alice, amt(1_000)))
	f.gauge.SetWithdrawLimit(amt(10))

	_, err := f.vault.Withdraw(ctx, alice, amt(500))
	require.ErrorIs(t, err, protocol.ErrInsufficientLiquidity)

	requireAmount(t, 1_000, f.staked(t))
	requireAmount(t, 1_000, f.vault.TotalAssets())
	requireAmount(t, 9_000, f.env.Ledger().BalanceOf(lpToken, alice))
}

func TestReport_ProfitAndRewards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.vault.Deposit(ctx, alice, amt(1_000)))

	// Idle asset deposited by a third party counts as profit once deployed.
	require.NoError(t, f.env.Ledger().Mint(lpToken, adapterAddr, amt(50)))
	f.gauge.AccrueEmission(adapterAddr, amt(25))
	f.env.Mine(10)

	r, err := f.vault.Report(ctx, keeper)
	require.NoError(t, err)

	assert.Equal(t, 1, r.Sequence)
	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, domain.AdapterKindCurve, r.AdapterKind)
	assert.Equal(t, f.env.BlockNumber(), r.BlockNumber)
	assert.Equal(t, idhash.ComputeReportID("run-1", "curve-lp", r.BlockNumber, 1), r.ReportID)
	requireAmount(t, 50, r.IdleDeployed)
	requireAmount(t, 1_050, r.Staked)
	requireAmount(t, 1_050, r.TotalAssets)
	requireAmount(t, 1_000, r.PrevTotal)
	requireAmount(t, 50, r.Profit)
	requireAmount(t, 0, r.Loss)
	require.Len(t, r.Rewards, 1)
	assert.Equal(t, crv, r.Rewards[0].Token)
	requireAmount(t, 25, r.Rewards[0].Amount)

	stored, err := f.store.GetByID(ctx, r.ReportID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Sequence)

	// A second report with nothing new is flat.
	r2, err := f.vault.Report(ctx, management)
	require.NoError(t, err)
	assert.Equal(t, 2, r2.Sequence)
	requireAmount(t, 0, r2.Profit)
	requireAmount(t, 0, r2.Loss)
	assert.Empty(t, r2.Rewards)
}

func TestReport_Loss(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.vault.Deposit(ctx, alice, amt(1_000)))

	// Staked balance drained outside the adapter.
	require.NoError(t, f.env.Ledger().Burn(gaugeAddr, adapterAddr, amt(40)))

	r, err := f.vault.Report(ctx, keeper)
	require.NoError(t, err)
	requireAmount(t, 960, r.TotalAssets)
	requireAmount(t, 40, r.Loss)
	requireAmount(t, 0, r.Profit)
	requireAmount(t, 960, f.vault.TotalAssets())
}

func TestReport_RequiresKeeper(t *testing.T) {
	f := newFixture(t)
	_, err := f.vault.Report(context.Background(), alice)
	require.ErrorIs(t, err, access.ErrUnauthorized)
	assert.Equal(t, 0, f.vault.Reports())
}

func TestReport_RevertRestoresAccounting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.vault.Deposit(ctx, alice, amt(1_000)))
	f.gauge.AddRewardToken(rwd)
	f.gauge.FailNext("claim_rewards", protocol.ErrInsufficientLiquidity)

	_, err := f.vault.Report(ctx, keeper)
	require.ErrorIs(t, err, protocol.ErrInsufficientLiquidity)
	assert.Equal(t, 0, f.vault.Reports())
	requireAmount(t, 1_000, f.vault.TotalAssets())

	all, err := f.store.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestShutdown_AndEmergencyWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.vault.Deposit(ctx, alice, amt(1_000)))

	require.ErrorIs(t, f.vault.EmergencyWithdraw(ctx, emergency, amt(100)), ErrNotShutdown)
	require.ErrorIs(t, f.vault.Shutdown(ctx, keeper), access.ErrUnauthorized)

	require.NoError(t, f.vault.Shutdown(ctx, emergency))
	assert.True(t, f.vault.IsShutdown())
	assert.ErrorIs(t, f.vault.Deposit(ctx, alice, amt(1)), ErrShutdown)

	require.ErrorIs(t, f.vault.EmergencyWithdraw(ctx, keeper, amt(100)), access.ErrUnauthorized)
	require.NoError(t, f.vault.EmergencyWithdraw(ctx, management, amt(5_000)))
	requireAmount(t, 0, f.staked(t))
	requireAmount(t, 1_000, f.env.Ledger().BalanceOf(lpToken, adapterAddr))

	// Idle asset stays idle and still counts.
	r, err := f.vault.Report(ctx, keeper)
	require.NoError(t, err)
	requireAmount(t, 0, r.IdleDeployed)
	requireAmount(t, 0, r.Staked)
	requireAmount(t, 1_000, r.TotalAssets)
	requireAmount(t, 0, r.Profit)
}

func TestClaim_RequiresKeeper(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gauge.AccrueEmission(adapterAddr, amt(9))

	require.ErrorIs(t, f.vault.Claim(ctx, alice), access.ErrUnauthorized)
	require.NoError(t, f.vault.Claim(ctx, keeper))
	requireAmount(t, 9, f.env.Ledger().BalanceOf(crv, adapterAddr))
}
