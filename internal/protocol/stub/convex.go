package stub

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"yield-adapter-lab/internal/chain"
	"yield-adapter-lab/internal/protocol"
)

// Booster implements protocol.Booster.
// Deposited LP tokens are held at the booster address.
type Booster struct {
	recorder
	faults

	env     *chain.Env
	address common.Address

	mu    sync.RWMutex
	pools []*boosterPool
}

type boosterPool struct {
	info    protocol.PoolInfo
	rewards *RewardPool
}

// NewBooster creates a booster at address and registers it with env.
func NewBooster(env *chain.Env, address common.Address) *Booster {
	b := &Booster{env: env, address: address}
	env.Register(b)
	return b
}

// Address returns the booster address.
func (b *Booster) Address() common.Address {
	return b.address
}

// AddPool registers a pool and returns its pid.
// rewards is the pool's BaseRewardPool; depositToken and gauge are informational.
func (b *Booster) AddPool(lpToken, depositToken, gauge common.Address, rewards *RewardPool) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	pid := uint64(len(b.pools))
	b.pools = append(b.pools, &boosterPool{
		info: protocol.PoolInfo{
			LPToken:    lpToken,
			Token:      depositToken,
			Gauge:      gauge,
			CRVRewards: rewards.Address(),
		},
		rewards: rewards,
	})
	rewards.bind(b.address, lpToken, depositToken)
	return pid
}

// ShutdownPool marks pid as shut down. Deposits into it revert afterwards.
func (b *Booster) ShutdownPool(pid uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pid >= uint64(len(b.pools)) {
		return ErrUnknownPool
	}
	b.pools[pid].info.Shutdown = true
	return nil
}

// PoolInfo returns the record of pool pid.
func (b *Booster) PoolInfo(_ context.Context, pid uint64) (protocol.PoolInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if pid >= uint64(len(b.pools)) {
		return protocol.PoolInfo{}, fmt.Errorf("%w: %d", ErrUnknownPool, pid)
	}
	return b.pools[pid].info, nil
}

// PoolLength returns the number of registered pools.
func (b *Booster) PoolLength(_ context.Context) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return uint64(len(b.pools)), nil
}

// Deposit pulls LP from caller and, when stake is set, stakes the deposit
// token in the pool's rewards contract for caller.
func (b *Booster) Deposit(ctx context.Context, caller common.Address, pid uint64, amount *big.Int, stake bool) error {
	b.record("deposit", caller, pid, cloneAmount(amount), stake)
	if err := b.take("deposit"); err != nil {
		return err
	}

	b.mu.RLock()
	if pid >= uint64(len(b.pools)) {
		b.mu.RUnlock()
		return fmt.Errorf("%w: %d", ErrUnknownPool, pid)
	}
	p := b.pools[pid]
	b.mu.RUnlock()

	if p.info.Shutdown {
		return protocol.ErrPoolShutdown
	}

	ledger := b.env.Ledger()
	if err := ledger.TransferFrom(p.info.LPToken, b.address, caller, b.address, amount); err != nil {
		return err
	}

	if !stake {
		return ledger.Mint(p.info.Token, caller, amount)
	}
	return p.rewards.stakeFor(caller, amount)
}

// Snapshot implements chain.Stateful.
func (b *Booster) Snapshot() any {
	b.mu.RLock()
	defer b.mu.RUnlock()

	infos := make([]protocol.PoolInfo, len(b.pools))
	for i, p := range b.pools {
		infos[i] = p.info
	}
	return infos
}

// Restore implements chain.Stateful.
func (b *Booster) Restore(snapshot any) {
	infos := snapshot.([]protocol.PoolInfo)

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.pools {
		if i < len(infos) {
			b.pools[i].info = infos[i]
		}
	}
}

var _ protocol.Booster = (*Booster)(nil)

// RewardPool implements protocol.RewardPool (Convex BaseRewardPool).
// Staked balances are a ledger token at the pool's own address; the deposit
// tokens backing them are held by the pool.
type RewardPool struct {
	recorder
	faults

	env         *chain.Env
	address     common.Address
	rewardToken common.Address
	extras      []common.Address

	mu            sync.RWMutex
	booster       common.Address
	lpToken       common.Address
	depositToken  common.Address
	pending       rewardBook
	withdrawLimit *big.Int
}

// NewRewardPool creates a rewards contract paying rewardToken plus extras.
func NewRewardPool(env *chain.Env, address, rewardToken common.Address, extras ...common.Address) *RewardPool {
	p := &RewardPool{
		env:         env,
		address:     address,
		rewardToken: rewardToken,
		extras:      append([]common.Address(nil), extras...),
		pending:     make(rewardBook),
	}
	env.Register(p)
	return p
}

// Address returns the rewards contract address.
func (p *RewardPool) Address() common.Address {
	return p.address
}

func (p *RewardPool) bind(booster, lpToken, depositToken common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.booster = booster
	p.lpToken = lpToken
	p.depositToken = depositToken
}

// SetWithdrawLimit caps a single withdrawal. nil removes the cap.
func (p *RewardPool) SetWithdrawLimit(limit *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.withdrawLimit = cloneAmount(limit)
}

// Accrue credits holder with amount of a reward token, claimable via GetReward.
func (p *RewardPool) Accrue(holder, token common.Address, amount *big.Int) error {
	if !p.isReward(token) {
		return fmt.Errorf("%w: %s", ErrUnknownReward, token.Hex())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.add(holder, token, amount)
	return nil
}

// Earned returns holder's pending amount of token.
func (p *RewardPool) Earned(holder, token common.Address) *big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pending.get(holder, token)
}

func (p *RewardPool) isReward(token common.Address) bool {
	if token == p.rewardToken {
		return true
	}
	for _, e := range p.extras {
		if e == token {
			return true
		}
	}
	return false
}

func (p *RewardPool) stakeFor(holder common.Address, amount *big.Int) error {
	p.mu.RLock()
	depositToken := p.depositToken
	p.mu.RUnlock()

	ledger := p.env.Ledger()
	if err := ledger.Mint(depositToken, p.address, amount); err != nil {
		return err
	}
	return ledger.Mint(p.address, holder, amount)
}

// BalanceOf returns holder's staked balance.
func (p *RewardPool) BalanceOf(_ context.Context, holder common.Address) (*big.Int, error) {
	return p.env.Ledger().BalanceOf(p.address, holder), nil
}

// WithdrawAndUnwrap unstakes amount and returns LP from the booster to caller.
func (p *RewardPool) WithdrawAndUnwrap(ctx context.Context, caller common.Address, amount *big.Int, claim bool) error {
	p.record("withdrawAndUnwrap", caller, cloneAmount(amount), claim)
	if err := p.take("withdrawAndUnwrap"); err != nil {
		return err
	}

	p.mu.RLock()
	limit := p.withdrawLimit
	booster, lpToken, depositToken := p.booster, p.lpToken, p.depositToken
	p.mu.RUnlock()

	if exceedsLimit(limit, amount) {
		return fmt.Errorf("%w: requested %s, available %s", protocol.ErrInsufficientLiquidity, amount, limit)
	}

	ledger := p.env.Ledger()
	if err := ledger.Burn(p.address, caller, amount); err != nil {
		return err
	}
	if err := ledger.Burn(depositToken, p.address, amount); err != nil {
		return err
	}
	if err := ledger.Transfer(lpToken, booster, caller, amount); err != nil {
		return err
	}

	if claim {
		return p.pay(caller, true)
	}
	return nil
}

// GetReward pays holder's main reward and, when claimExtras, every extra reward.
func (p *RewardPool) GetReward(_ context.Context, holder common.Address, claimExtras bool) error {
	p.record("getReward", holder, claimExtras)
	if err := p.take("getReward"); err != nil {
		return err
	}
	return p.pay(holder, claimExtras)
}

func (p *RewardPool) pay(holder common.Address, claimExtras bool) error {
	tokens := []common.Address{p.rewardToken}
	if claimExtras {
		tokens = append(tokens, p.extras...)
	}

	ledger := p.env.Ledger()
	for _, token := range tokens {
		p.mu.Lock()
		amount := p.pending.take(holder, token)
		p.mu.Unlock()

		if amount.Sign() == 0 {
			continue
		}
		if err := ledger.Mint(token, holder, amount); err != nil {
			return err
		}
	}
	return nil
}

// RewardToken returns the main reward token.
func (p *RewardPool) RewardToken(_ context.Context) (common.Address, error) {
	return p.rewardToken, nil
}

// ExtraRewardsLength returns the number of extra reward tokens.
func (p *RewardPool) ExtraRewardsLength(_ context.Context) (uint64, error) {
	return uint64(len(p.extras)), nil
}

// Snapshot implements chain.Stateful.
func (p *RewardPool) Snapshot() any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pending.clone()
}

// Restore implements chain.Stateful.
func (p *RewardPool) Restore(snapshot any) {
	book := snapshot.(rewardBook)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = book.clone()
}

var _ protocol.RewardPool = (*RewardPool)(nil)
