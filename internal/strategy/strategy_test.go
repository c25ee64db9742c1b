package strategy

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"yield-adapter-lab/internal/access"
	"yield-adapter-lab/internal/chain"
	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/protocol"
	"yield-adapter-lab/internal/protocol/stub"
)

var (
	lp1  = common.HexToAddress("0x00000000000000000000000000000000000011a1")
	lp2  = common.HexToAddress("0x00000000000000000000000000000000000011a2")
	crv  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	cvx  = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	rwd  = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	rwd2 = common.HexToAddress("0x00000000000000000000000000000000000000c4")

	boosterAddr = common.HexToAddress("0x000000000000000000000000000000000000b005")
	gaugeAddr   = common.HexToAddress("0x000000000000000000000000000000000000a001")
	minterAddr  = common.HexToAddress("0x000000000000000000000000000000000000a002")
	auctionAddr = common.HexToAddress("0x000000000000000000000000000000000000a003")
	tf1Addr     = common.HexToAddress("0x000000000000000000000000000000000000a004")
	tf2Addr     = common.HexToAddress("0x000000000000000000000000000000000000a005")

	adapterAddr = common.HexToAddress("0x000000000000000000000000000000000000ad01")
	management  = common.HexToAddress("0x000000000000000000000000000000000000e001")
	emergency   = common.HexToAddress("0x000000000000000000000000000000000000e002")
	keeper      = common.HexToAddress("0x000000000000000000000000000000000000e003")
	stranger    = common.HexToAddress("0x000000000000000000000000000000000000e004")
)

const convexPID = 7

type fixture struct {
	env      *chain.Env
	registry *protocol.Registry

	booster *stub.Booster
	rewards *stub.RewardPool
	gauge   *stub.Gauge
	minter  *stub.Minter
	auction *stub.Auction
	tf1     *stub.TradeFactory
	tf2     *stub.TradeFactory
}

// newFixture builds a booster whose pid 7 holds lp1, a gauge accepting lp1
// and the sale collaborators.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	env := chain.NewEnv(chain.EnvOptions{})
	reg := protocol.NewRegistry()
	f := &fixture{env: env, registry: reg}

	f.booster = stub.NewBooster(env, boosterAddr)
	reg.BindBooster(boosterAddr, f.booster)
	for i := 0; i < convexPID; i++ {
		filler := stub.NewRewardPool(env, common.BigToAddress(big.NewInt(int64(0xf000+i))), crv)
		f.booster.AddPool(lp2, common.BigToAddress(big.NewInt(int64(0xe000+i))), common.Address{}, filler)
	}
	f.rewards = stub.NewRewardPool(env, common.HexToAddress("0x000000000000000000000000000000000000f777"), crv, cvx)
	pid := f.booster.AddPool(lp1, common.HexToAddress("0x000000000000000000000000000000000000d777"), gaugeAddr, f.rewards)
	require.Equal(t, uint64(convexPID), pid)
	reg.BindRewardPool(f.rewards.Address(), f.rewards)

	f.gauge = stub.NewGauge(env, gaugeAddr, lp1)
	reg.BindGauge(gaugeAddr, f.gauge)
	f.minter = stub.NewMinter(env, minterAddr, crv)
	f.minter.AddGauge(f.gauge)
	reg.BindMinter(minterAddr, f.minter)

	f.auction = stub.NewAuction(env, auctionAddr, lp1)
	reg.BindAuction(auctionAddr, f.auction)
	f.tf1 = stub.NewTradeFactory(env, tf1Addr)
	reg.BindTradeFactory(tf1Addr, f.tf1)
	f.tf2 = stub.NewTradeFactory(env, tf2Addr)
	reg.BindTradeFactory(tf2Addr, f.tf2)

	return f
}

func (f *fixture) options() Options {
	return Options{Env: f.env, Registry: f.registry}
}

func (f *fixture) config(kind domain.AdapterKind, asset common.Address) domain.AdapterConfig {
	pid := uint64(convexPID)
	cfg := domain.AdapterConfig{
		Kind:           kind,
		Name:           "test-" + kind.String(),
		Address:        adapterAddr,
		Asset:          asset,
		Management:     management,
		EmergencyAdmin: emergency,
		Keeper:         keeper,
	}
	switch kind {
	case domain.AdapterKindConvex:
		cfg.Booster = boosterAddr
		cfg.PoolID = &pid
	case domain.AdapterKindCurve:
		cfg.Gauge = gaugeAddr
		cfg.Minter = minterAddr
	}
	return cfg
}

func (f *fixture) convex(t *testing.T) *ConvexAdapter {
	t.Helper()
	a, err := NewConvexAdapter(context.Background(), f.options(), f.config(domain.AdapterKindConvex, lp1))
	require.NoError(t, err)
	return a
}

func (f *fixture) curve(t *testing.T) *CurveAdapter {
	t.Helper()
	a, err := NewCurveAdapter(context.Background(), f.options(), f.config(domain.AdapterKindCurve, lp1))
	require.NoError(t, err)
	return a
}

// fund mints amount of asset to the adapter as idle balance.
func (f *fixture) fund(t *testing.T, a Adapter, amount int64) {
	t.Helper()
	require.NoError(t, f.env.Ledger().Mint(a.Asset(), a.Address(), big.NewInt(amount)))
}

// tx runs fn as one transaction.
func (f *fixture) tx(fn func(ctx context.Context) error) error {
	return f.env.Execute(context.Background(), fn)
}

type fakeHost struct{ shutdown bool }

func (h *fakeHost) IsShutdown() bool { return h.shutdown }

func amt(v int64) *big.Int { return big.NewInt(v) }

func requireAmount(t *testing.T, want int64, got *big.Int) {
	t.Helper()
	require.NotNil(t, got)
	require.Zero(t, big.NewInt(want).Cmp(got), "want %d, got %s", want, got)
}

// adapters returns one adapter of each kind, each on a fresh fixture.
func adapters(t *testing.T) map[string]struct {
	f *fixture
	a Adapter
} {
	t.Helper()
	fc := newFixture(t)
	fv := newFixture(t)
	return map[string]struct {
		f *fixture
		a Adapter
	}{
		"convex": {fc, fc.convex(t)},
		"curve":  {fv, fv.curve(t)},
	}
}

func TestDeployFunds_IncreasesStakeExactly(t *testing.T) {
	for name, tc := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tc.f.fund(t, tc.a, 5_000)

			before, err := tc.a.BalanceOfStake(ctx)
			require.NoError(t, err)

			require.NoError(t, tc.f.tx(func(ctx context.Context) error {
				return tc.a.DeployFunds(ctx, amt(3_000))
			}))

			after, err := tc.a.BalanceOfStake(ctx)
			require.NoError(t, err)
			requireAmount(t, 3_000, new(big.Int).Sub(after, before))

			idle, err := tc.a.BalanceOfAsset(ctx)
			require.NoError(t, err)
			requireAmount(t, 2_000, idle)
		})
	}
}

func TestDeployFunds_OverBalanceReverts(t *testing.T) {
	for name, tc := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tc.f.fund(t, tc.a, 100)

			err := tc.f.tx(func(ctx context.Context) error {
				return tc.a.DeployFunds(ctx, amt(101))
			})
			require.ErrorIs(t, err, chain.ErrInsufficientBalance)

			idle, _ := tc.a.BalanceOfAsset(ctx)
			staked, _ := tc.a.BalanceOfStake(ctx)
			requireAmount(t, 100, idle)
			require.Equal(t, 0, staked.Sign())
		})
	}
}

func TestZeroAmounts_PassThroughOnFreshPools(t *testing.T) {
	for name, tc := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, tc.f.tx(func(ctx context.Context) error {
				return tc.a.FreeFunds(ctx, amt(0))
			}))
			require.NoError(t, tc.f.tx(func(ctx context.Context) error {
				return tc.a.DeployFunds(ctx, amt(0))
			}))

			staked, err := tc.a.BalanceOfStake(ctx)
			require.NoError(t, err)
			require.Equal(t, 0, staked.Sign())
		})
	}
}

func TestFreeFunds_ReturnsAsset(t *testing.T) {
	for name, tc := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tc.f.fund(t, tc.a, 1_000)
			require.NoError(t, tc.f.tx(func(ctx context.Context) error {
				return tc.a.DeployFunds(ctx, amt(1_000))
			}))

			require.NoError(t, tc.f.tx(func(ctx context.Context) error {
				return tc.a.FreeFunds(ctx, amt(400))
			}))

			idle, _ := tc.a.BalanceOfAsset(ctx)
			staked, _ := tc.a.BalanceOfStake(ctx)
			requireAmount(t, 400, idle)
			requireAmount(t, 600, staked)
		})
	}
}

func TestFreeFunds_IlliquidRevertPropagates(t *testing.T) {
	f := newFixture(t)
	a := f.convex(t)
	f.fund(t, a, 1_000)
	require.NoError(t, f.tx(func(ctx context.Context) error { return a.DeployFunds(ctx, amt(1_000)) }))

	f.rewards.SetWithdrawLimit(amt(300))
	err := f.tx(func(ctx context.Context) error { return a.FreeFunds(ctx, amt(500)) })
	require.ErrorIs(t, err, protocol.ErrInsufficientLiquidity)

	staked, _ := a.BalanceOfStake(context.Background())
	requireAmount(t, 1_000, staked)
}

func TestHarvestAndReport_ReportsPostDeploymentStake(t *testing.T) {
	for name, tc := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tc.f.fund(t, tc.a, 700)
			require.NoError(t, tc.f.tx(func(ctx context.Context) error {
				return tc.a.DeployFunds(ctx, amt(700))
			}))
			tc.f.fund(t, tc.a, 300)

			var total *big.Int
			require.NoError(t, tc.f.tx(func(ctx context.Context) (err error) {
				total, err = tc.a.HarvestAndReport(ctx)
				return err
			}))

			staked, _ := tc.a.BalanceOfStake(ctx)
			idle, _ := tc.a.BalanceOfAsset(ctx)
			requireAmount(t, 1_000, total)
			require.Zero(t, staked.Cmp(total))
			require.Equal(t, 0, idle.Sign())
		})
	}
}

func TestHarvestAndReport_ClaimsWithoutSelling(t *testing.T) {
	f := newFixture(t)
	a := f.convex(t)
	f.fund(t, a, 1_000)
	require.NoError(t, f.rewards.Accrue(adapterAddr, crv, amt(50)))
	require.NoError(t, f.rewards.Accrue(adapterAddr, cvx, amt(20)))

	require.NoError(t, f.tx(func(ctx context.Context) error {
		_, err := a.HarvestAndReport(ctx)
		return err
	}))

	ledger := f.env.Ledger()
	requireAmount(t, 50, ledger.BalanceOf(crv, adapterAddr))
	requireAmount(t, 20, ledger.BalanceOf(cvx, adapterAddr))
	require.Empty(t, f.auction.Kicks())
}

func TestHarvestAndReport_NoIdleSkipsDeposit(t *testing.T) {
	f := newFixture(t)
	a := f.convex(t)

	require.NoError(t, f.tx(func(ctx context.Context) error {
		_, err := a.HarvestAndReport(ctx)
		return err
	}))
	require.Equal(t, 0, f.booster.CallCount("deposit"))
	require.Equal(t, 1, f.rewards.CallCount("getReward"))
}

func TestHarvestAndReport_ShutdownKeepsIdle(t *testing.T) {
	for name, tc := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tc.f.fund(t, tc.a, 600)
			require.NoError(t, tc.f.tx(func(ctx context.Context) error {
				return tc.a.DeployFunds(ctx, amt(600))
			}))
			tc.f.fund(t, tc.a, 400)
			tc.a.Attach(&fakeHost{shutdown: true})

			var total *big.Int
			require.NoError(t, tc.f.tx(func(ctx context.Context) (err error) {
				total, err = tc.a.HarvestAndReport(ctx)
				return err
			}))

			idle, _ := tc.a.BalanceOfAsset(ctx)
			requireAmount(t, 400, idle)
			requireAmount(t, 1_000, total)
		})
	}
}

func TestHarvestAndReport_ClaimRevertUndoesDeployment(t *testing.T) {
	f := newFixture(t)
	a := f.curve(t)
	f.fund(t, a, 500)
	f.minter.FailNext("mint", protocol.ErrReadOnly)

	err := f.tx(func(ctx context.Context) error {
		_, err := a.HarvestAndReport(ctx)
		return err
	})
	require.ErrorIs(t, err, protocol.ErrReadOnly)

	idle, _ := a.BalanceOfAsset(context.Background())
	staked, _ := a.BalanceOfStake(context.Background())
	requireAmount(t, 500, idle)
	require.Equal(t, 0, staked.Sign())
}

func TestEmergencyWithdraw_FreesAtMostStake(t *testing.T) {
	for name, tc := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tc.f.fund(t, tc.a, 250)
			require.NoError(t, tc.f.tx(func(ctx context.Context) error {
				return tc.a.DeployFunds(ctx, amt(250))
			}))

			require.NoError(t, tc.f.tx(func(ctx context.Context) error {
				return tc.a.EmergencyWithdraw(ctx, amt(10_000))
			}))

			idle, _ := tc.a.BalanceOfAsset(ctx)
			staked, _ := tc.a.BalanceOfStake(ctx)
			requireAmount(t, 250, idle)
			require.Equal(t, 0, staked.Sign())

			// Nothing staked: no call is made.
			require.NoError(t, tc.f.tx(func(ctx context.Context) error {
				return tc.a.EmergencyWithdraw(ctx, amt(1))
			}))
		})
	}
}

func TestEmergencyWithdraw_InvalidAmount(t *testing.T) {
	for name, tc := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			for _, amount := range []*big.Int{nil, amt(-1)} {
				err := tc.f.tx(func(ctx context.Context) error {
					return tc.a.EmergencyWithdraw(ctx, amount)
				})
				require.ErrorIs(t, err, chain.ErrInvalidAmount)
			}
		})
	}
}

func TestClaimRewardsAs_RequiresKeeper(t *testing.T) {
	for name, tc := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			for _, caller := range []common.Address{keeper, emergency, management} {
				require.NoError(t, tc.f.tx(func(ctx context.Context) error {
					return tc.a.ClaimRewardsAs(ctx, caller)
				}))
			}
			err := tc.f.tx(func(ctx context.Context) error {
				return tc.a.ClaimRewardsAs(ctx, stranger)
			})
			require.ErrorIs(t, err, access.ErrUnauthorized)
		})
	}
}
