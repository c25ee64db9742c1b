package onchain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/evm"
	"yield-adapter-lab/internal/protocol"
	"yield-adapter-lab/internal/strategy"
)

// ConvexPool is what an adapter would bind to for a Convex pid.
type ConvexPool struct {
	Binding      domain.PoolBinding
	Info         protocol.PoolInfo
	PoolLength   uint64
	RewardToken  common.Address
	ExtraRewards uint64
}

// CurveGauge is what an adapter would bind to for a Curve gauge.
type CurveGauge struct {
	Binding      domain.GaugeBinding
	MintToken    common.Address
	RewardTokens []common.Address
}

// InspectConvex resolves pid against asset the same way the adapter does at
// construction, then reads the rewards contract.
func InspectConvex(ctx context.Context, caller evm.Caller, booster common.Address, pid uint64, asset common.Address) (*ConvexPool, error) {
	b := NewBooster(caller, booster)

	length, err := b.PoolLength(ctx)
	if err != nil {
		return nil, err
	}
	if pid >= length {
		return nil, fmt.Errorf("pid %d out of range, booster has %d pools", pid, length)
	}

	binding, err := strategy.ResolvePoolBinding(ctx, b, booster, pid, asset)
	if err != nil {
		return nil, err
	}
	info, err := b.PoolInfo(ctx, pid)
	if err != nil {
		return nil, err
	}

	rewards := NewRewardPool(caller, binding.RewardsContract)
	rewardToken, err := rewards.RewardToken(ctx)
	if err != nil {
		return nil, err
	}
	extras, err := rewards.ExtraRewardsLength(ctx)
	if err != nil {
		return nil, err
	}

	return &ConvexPool{
		Binding:      binding,
		Info:         info,
		PoolLength:   length,
		RewardToken:  rewardToken,
		ExtraRewards: extras,
	}, nil
}

// InspectCurve resolves gauge against asset and lists its reward tokens.
// A zero minter selects domain.CurveMinter.
func InspectCurve(ctx context.Context, caller evm.Caller, gauge, minter, asset common.Address) (*CurveGauge, error) {
	if minter == (common.Address{}) {
		minter = domain.CurveMinter
	}
	g := NewGauge(caller, gauge)

	binding, err := strategy.ResolveGaugeBinding(ctx, g, gauge, minter, asset)
	if err != nil {
		return nil, err
	}

	token, err := NewMinter(caller, minter).Token(ctx)
	if err != nil {
		return nil, err
	}

	n, err := g.RewardCount(ctx)
	if err != nil {
		return nil, err
	}
	tokens := make([]common.Address, 0, n)
	for i := uint64(0); i < n; i++ {
		t, err := g.RewardToken(ctx, i)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}

	return &CurveGauge{Binding: binding, MintToken: token, RewardTokens: tokens}, nil
}
