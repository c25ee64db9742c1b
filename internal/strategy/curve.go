package strategy

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/protocol"
)

// CurveAdapter stakes its asset directly in one Curve gauge.
type CurveAdapter struct {
	base

	binding domain.GaugeBinding
	gauge   protocol.Gauge
	minter  protocol.Minter
}

// ResolveGaugeBinding reads the gauge's LP token and checks that it is asset.
func ResolveGaugeBinding(ctx context.Context, gauge protocol.Gauge, gaugeAddr, minterAddr, asset common.Address) (domain.GaugeBinding, error) {
	lp, err := gauge.LPToken(ctx)
	if err != nil {
		return domain.GaugeBinding{}, fmt.Errorf("read lp_token of %s: %w", gaugeAddr.Hex(), err)
	}
	if lp != asset {
		return domain.GaugeBinding{}, fmt.Errorf("%w: gauge %s lp_token %s, asset %s",
			ErrPoolAssetMismatch, gaugeAddr.Hex(), lp.Hex(), asset.Hex())
	}
	return domain.GaugeBinding{Gauge: gaugeAddr, Minter: minterAddr, LPToken: lp}, nil
}

// NewCurveAdapter binds cfg.Asset to gauge cfg.Gauge.
// A zero cfg.Minter selects domain.CurveMinter. The gauge receives an
// unbounded allowance over the asset.
func NewCurveAdapter(ctx context.Context, opts Options, cfg domain.AdapterConfig) (*CurveAdapter, error) {
	if cfg.Gauge == (common.Address{}) {
		return nil, ErrMissingGauge
	}
	minterAddr := cfg.Minter
	if minterAddr == (common.Address{}) {
		minterAddr = domain.CurveMinter
	}

	gauge, err := opts.Registry.Gauge(cfg.Gauge)
	if err != nil {
		return nil, err
	}
	binding, err := ResolveGaugeBinding(ctx, gauge, cfg.Gauge, minterAddr, cfg.Asset)
	if err != nil {
		return nil, err
	}
	minter, err := opts.Registry.Minter(minterAddr)
	if err != nil {
		return nil, fmt.Errorf("minter: %w", err)
	}

	a := &CurveAdapter{
		base:    newBase(opts, cfg),
		binding: binding,
		gauge:   gauge,
		minter:  minter,
	}
	if err := a.approveMax(cfg.Asset, cfg.Gauge); err != nil {
		return nil, err
	}
	opts.Env.Register(a)

	a.logger.Info("curve adapter bound", zap.String("gauge", cfg.Gauge.Hex()))
	return a, nil
}

// Binding returns the immutable gauge binding.
func (a *CurveAdapter) Binding() domain.GaugeBinding {
	return a.binding
}

// BalanceOfStake returns the adapter's gauge balance.
func (a *CurveAdapter) BalanceOfStake(ctx context.Context) (*big.Int, error) {
	return a.gauge.BalanceOf(ctx, a.self)
}

// DeployFunds deposits amount into the gauge.
func (a *CurveAdapter) DeployFunds(ctx context.Context, amount *big.Int) error {
	return a.gauge.Deposit(ctx, a.self, amount)
}

// FreeFunds withdraws amount from the gauge.
func (a *CurveAdapter) FreeFunds(ctx context.Context, amount *big.Int) error {
	return a.gauge.Withdraw(ctx, a.self, amount)
}

// HarvestAndReport deploys idle asset, claims rewards and returns total assets.
func (a *CurveAdapter) HarvestAndReport(ctx context.Context) (*big.Int, error) {
	return harvest(ctx, &a.base, a)
}

// ClaimRewards claims gauge extras when any are configured, then mints CRV.
func (a *CurveAdapter) ClaimRewards(ctx context.Context) error {
	n, err := a.gauge.RewardCount(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		if err := a.gauge.ClaimRewards(ctx, a.self); err != nil {
			return err
		}
	}
	return a.minter.Mint(ctx, a.self, a.binding.Gauge)
}

// ClaimRewardsAs is the keeper-gated ClaimRewards.
func (a *CurveAdapter) ClaimRewardsAs(ctx context.Context, caller common.Address) error {
	if err := a.roles.RequireKeeper(caller); err != nil {
		return err
	}
	return a.ClaimRewards(ctx)
}

// EmergencyWithdraw frees min(amount, staked).
func (a *CurveAdapter) EmergencyWithdraw(ctx context.Context, amount *big.Int) error {
	return emergencyWithdraw(ctx, a, amount)
}

// Snapshot implements chain.Stateful.
func (a *CurveAdapter) Snapshot() any {
	return a.snapshotBase()
}

// Restore implements chain.Stateful.
func (a *CurveAdapter) Restore(snapshot any) {
	a.restoreBase(snapshot.(baseState))
}

var _ Adapter = (*CurveAdapter)(nil)
