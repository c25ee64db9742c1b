package strategy

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/protocol"
	"yield-adapter-lab/internal/protocol/stub"
)

func TestNewCurveAdapter_GaugeBinding(t *testing.T) {
	t.Run("lp_token matches asset", func(t *testing.T) {
		f := newFixture(t)
		a := f.curve(t)
		b := a.Binding()
		assert.Equal(t, gaugeAddr, b.Gauge)
		assert.Equal(t, minterAddr, b.Minter)
		assert.Equal(t, lp1, b.LPToken)
	})

	t.Run("lp_token differs from asset", func(t *testing.T) {
		f := newFixture(t)
		_, err := NewCurveAdapter(context.Background(), f.options(), f.config(domain.AdapterKindCurve, lp2))
		require.ErrorIs(t, err, ErrPoolAssetMismatch)
	})

	t.Run("default minter", func(t *testing.T) {
		f := newFixture(t)
		f.registry.BindMinter(domain.CurveMinter, f.minter)
		cfg := f.config(domain.AdapterKindCurve, lp1)
		cfg.Minter = common.Address{}

		a, err := NewCurveAdapter(context.Background(), f.options(), cfg)
		require.NoError(t, err)
		assert.Equal(t, domain.CurveMinter, a.Binding().Minter)
	})

	t.Run("unbound minter", func(t *testing.T) {
		f := newFixture(t)
		cfg := f.config(domain.AdapterKindCurve, lp1)
		cfg.Minter = common.HexToAddress("0x0000000000000000000000000000000000000bad")
		_, err := NewCurveAdapter(context.Background(), f.options(), cfg)
		require.ErrorIs(t, err, protocol.ErrUnknownContract)
	})
}

func TestCurveClaimRewards_NoExtraRewards(t *testing.T) {
	f := newFixture(t)
	a := f.curve(t)
	f.gauge.AccrueEmission(a.Address(), amt(75))

	require.NoError(t, f.tx(a.ClaimRewards))

	assert.Equal(t, 0, f.gauge.CallCount("claim_rewards"))
	assert.Equal(t, 1, f.minter.CallCount("mint"))
	requireAmount(t, 75, f.env.Ledger().BalanceOf(crv, a.Address()))

	// The minter is called even with nothing left to mint.
	require.NoError(t, f.tx(a.ClaimRewards))
	assert.Equal(t, 2, f.minter.CallCount("mint"))
	requireAmount(t, 75, f.env.Ledger().BalanceOf(crv, a.Address()))
}

func TestCurveClaimRewards_WithExtraRewards(t *testing.T) {
	f := newFixture(t)
	a := f.curve(t)
	f.gauge.AddRewardToken(rwd)
	require.NoError(t, f.gauge.AccrueReward(a.Address(), rwd, amt(30)))
	f.gauge.AccrueEmission(a.Address(), amt(12))

	require.NoError(t, f.tx(a.ClaimRewards))

	assert.Equal(t, 1, f.gauge.CallCount("claim_rewards"))
	assert.Equal(t, 1, f.minter.CallCount("mint"))
	requireAmount(t, 30, f.env.Ledger().BalanceOf(rwd, a.Address()))
	requireAmount(t, 12, f.env.Ledger().BalanceOf(crv, a.Address()))

	mint := f.minter.Calls()
	require.Len(t, mint, 1)
	assert.Equal(t, a.Address(), mint[0].Caller)
	assert.Equal(t, []any{gaugeAddr}, mint[0].Args)
}

func TestCurveClaimRewards_ExtraClaimRevertSkipsMint(t *testing.T) {
	f := newFixture(t)
	a := f.curve(t)
	f.gauge.AddRewardToken(rwd)
	f.gauge.FailNext("claim_rewards", protocol.ErrInsufficientLiquidity)

	err := f.tx(a.ClaimRewards)
	require.ErrorIs(t, err, protocol.ErrInsufficientLiquidity)
	assert.Equal(t, 0, f.minter.CallCount("mint"))
}

func TestCurveAdapter_WithdrawLimit(t *testing.T) {
	f := newFixture(t)
	a := f.curve(t)
	f.fund(t, a, 1_000)
	require.NoError(t, f.tx(func(ctx context.Context) error { return a.DeployFunds(ctx, amt(1_000)) }))

	f.gauge.SetWithdrawLimit(amt(100))
	err := f.tx(func(ctx context.Context) error { return a.FreeFunds(ctx, amt(101)) })
	require.ErrorIs(t, err, protocol.ErrInsufficientLiquidity)

	require.NoError(t, f.tx(func(ctx context.Context) error { return a.FreeFunds(ctx, amt(100)) }))
	staked, _ := a.BalanceOfStake(context.Background())
	requireAmount(t, 900, staked)
}

func TestCurveAdapter_MinterFaultRevertsWholeClaim(t *testing.T) {
	f := newFixture(t)
	a := f.curve(t)
	f.gauge.AddRewardToken(rwd)
	require.NoError(t, f.gauge.AccrueReward(a.Address(), rwd, amt(30)))
	f.minter.FailNext("mint", stub.ErrGaugeNotAdded)

	err := f.tx(a.ClaimRewards)
	require.ErrorIs(t, err, stub.ErrGaugeNotAdded)

	requireAmount(t, 0, f.env.Ledger().BalanceOf(rwd, a.Address()))
	requireAmount(t, 30, f.gauge.ClaimableReward(a.Address(), rwd))
}
