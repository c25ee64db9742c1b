package strategy

import (
	"context"
	"math/big"

	"go.uber.org/zap"

	"yield-adapter-lab/internal/chain"
)

// hooks is the protocol half of an adapter used by the shared flows.
type hooks interface {
	BalanceOfStake(ctx context.Context) (*big.Int, error)
	DeployFunds(ctx context.Context, amount *big.Int) error
	FreeFunds(ctx context.Context, amount *big.Int) error
	ClaimRewards(ctx context.Context) error
}

// harvest deploys idle asset unless the host is shut down, claims rewards and
// reads the staked balance. Idle asset left by a shutdown counts towards the
// total.
func harvest(ctx context.Context, b *base, h hooks) (*big.Int, error) {
	shutdown := b.isShutdown()

	idle, err := b.BalanceOfAsset(ctx)
	if err != nil {
		return nil, err
	}
	deployed := new(big.Int)
	if !shutdown && idle.Sign() > 0 {
		if err := h.DeployFunds(ctx, idle); err != nil {
			return nil, err
		}
		deployed.Set(idle)
	}

	if err := h.ClaimRewards(ctx); err != nil {
		return nil, err
	}

	total, err := h.BalanceOfStake(ctx)
	if err != nil {
		return nil, err
	}
	if shutdown {
		total = new(big.Int).Add(total, idle)
	}

	b.logger.Debug("harvested",
		zap.String("deployed", deployed.String()),
		zap.String("total_assets", total.String()),
		zap.Bool("shutdown", shutdown),
	)
	return total, nil
}

// emergencyWithdraw frees min(amount, staked).
func emergencyWithdraw(ctx context.Context, h hooks, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return chain.ErrInvalidAmount
	}
	staked, err := h.BalanceOfStake(ctx)
	if err != nil {
		return err
	}
	free := minAmount(amount, staked)
	if free.Sign() == 0 {
		return nil
	}
	return h.FreeFunds(ctx, free)
}
