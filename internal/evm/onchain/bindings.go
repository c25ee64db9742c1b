package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"yield-adapter-lab/internal/evm"
	"yield-adapter-lab/internal/protocol"
)

// Booster reads a Convex booster.
type Booster struct{ contract }

// NewBooster binds the booster at address.
func NewBooster(caller evm.Caller, address common.Address) *Booster {
	return &Booster{contract{caller: caller, address: address, abi: BoosterABI}}
}

// PoolInfo returns the record of pool pid.
func (b *Booster) PoolInfo(ctx context.Context, pid uint64) (protocol.PoolInfo, error) {
	values, err := b.call(ctx, "poolInfo", new(big.Int).SetUint64(pid))
	if err != nil {
		return protocol.PoolInfo{}, err
	}
	if len(values) != 6 {
		return protocol.PoolInfo{}, fmt.Errorf("poolInfo: expected 6 outputs, got %d", len(values))
	}

	var info protocol.PoolInfo
	addrs := []*common.Address{&info.LPToken, &info.Token, &info.Gauge, &info.CRVRewards, &info.Stash}
	for i, dst := range addrs {
		a, ok := values[i].(common.Address)
		if !ok {
			return protocol.PoolInfo{}, fmt.Errorf("poolInfo: output %d is %T", i, values[i])
		}
		*dst = a
	}
	shutdown, ok := values[5].(bool)
	if !ok {
		return protocol.PoolInfo{}, fmt.Errorf("poolInfo: output 5 is %T", values[5])
	}
	info.Shutdown = shutdown
	return info, nil
}

// PoolLength returns the number of registered pools.
func (b *Booster) PoolLength(ctx context.Context) (uint64, error) {
	return b.callUint64(ctx, "poolLength")
}

// Deposit is not available on a read-only binding.
func (b *Booster) Deposit(context.Context, common.Address, uint64, *big.Int, bool) error {
	return protocol.ErrReadOnly
}

var _ protocol.Booster = (*Booster)(nil)

// RewardPool reads a Convex BaseRewardPool.
type RewardPool struct{ contract }

// NewRewardPool binds the rewards contract at address.
func NewRewardPool(caller evm.Caller, address common.Address) *RewardPool {
	return &RewardPool{contract{caller: caller, address: address, abi: RewardPoolABI}}
}

// BalanceOf returns holder's staked balance.
func (p *RewardPool) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	return p.callUint(ctx, "balanceOf", holder)
}

// RewardToken returns the main reward token.
func (p *RewardPool) RewardToken(ctx context.Context) (common.Address, error) {
	return p.callAddress(ctx, "rewardToken")
}

// ExtraRewardsLength returns the number of extra reward contracts.
func (p *RewardPool) ExtraRewardsLength(ctx context.Context) (uint64, error) {
	return p.callUint64(ctx, "extraRewardsLength")
}

// WithdrawAndUnwrap is not available on a read-only binding.
func (p *RewardPool) WithdrawAndUnwrap(context.Context, common.Address, *big.Int, bool) error {
	return protocol.ErrReadOnly
}

// GetReward is not available on a read-only binding.
func (p *RewardPool) GetReward(context.Context, common.Address, bool) error {
	return protocol.ErrReadOnly
}

var _ protocol.RewardPool = (*RewardPool)(nil)

// Gauge reads a Curve liquidity gauge.
type Gauge struct{ contract }

// NewGauge binds the gauge at address.
func NewGauge(caller evm.Caller, address common.Address) *Gauge {
	return &Gauge{contract{caller: caller, address: address, abi: GaugeABI}}
}

// LPToken returns the LP token the gauge accepts.
func (g *Gauge) LPToken(ctx context.Context) (common.Address, error) {
	return g.callAddress(ctx, "lp_token")
}

// BalanceOf returns holder's deposited balance.
func (g *Gauge) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	return g.callUint(ctx, "balanceOf", holder)
}

// RewardCount returns the number of extra reward tokens.
func (g *Gauge) RewardCount(ctx context.Context) (uint64, error) {
	return g.callUint64(ctx, "reward_count")
}

// RewardToken returns extra reward token i.
func (g *Gauge) RewardToken(ctx context.Context, i uint64) (common.Address, error) {
	return g.callAddress(ctx, "reward_tokens", new(big.Int).SetUint64(i))
}

// Deposit is not available on a read-only binding.
func (g *Gauge) Deposit(context.Context, common.Address, *big.Int) error {
	return protocol.ErrReadOnly
}

// Withdraw is not available on a read-only binding.
func (g *Gauge) Withdraw(context.Context, common.Address, *big.Int) error {
	return protocol.ErrReadOnly
}

// ClaimRewards is not available on a read-only binding.
func (g *Gauge) ClaimRewards(context.Context, common.Address) error {
	return protocol.ErrReadOnly
}

var _ protocol.Gauge = (*Gauge)(nil)

// Minter reads the Curve token minter.
type Minter struct{ contract }

// NewMinter binds the minter at address.
func NewMinter(caller evm.Caller, address common.Address) *Minter {
	return &Minter{contract{caller: caller, address: address, abi: MinterABI}}
}

// Token returns the emission token.
func (m *Minter) Token(ctx context.Context) (common.Address, error) {
	return m.callAddress(ctx, "token")
}

// Mint is not available on a read-only binding.
func (m *Minter) Mint(context.Context, common.Address, common.Address) error {
	return protocol.ErrReadOnly
}

var _ protocol.Minter = (*Minter)(nil)
