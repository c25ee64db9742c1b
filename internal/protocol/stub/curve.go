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

// Gauge implements protocol.Gauge.
// The gauge is an ERC20 at its own address: deposited balances are ledger
// balances of that token, and the LP backing them is held by the gauge.
type Gauge struct {
	recorder
	faults

	env     *chain.Env
	address common.Address
	lpToken common.Address

	mu                sync.RWMutex
	rewardTokens      []common.Address
	pending           rewardBook
	integrateFraction map[common.Address]*big.Int // cumulative CRV earned per holder
	withdrawLimit     *big.Int
}

type gaugeState struct {
	rewardTokens      []common.Address
	pending           rewardBook
	integrateFraction map[common.Address]*big.Int
}

// NewGauge creates a gauge accepting lpToken and registers it with env.
func NewGauge(env *chain.Env, address, lpToken common.Address) *Gauge {
	g := &Gauge{
		env:               env,
		address:           address,
		lpToken:           lpToken,
		pending:           make(rewardBook),
		integrateFraction: make(map[common.Address]*big.Int),
	}
	env.Register(g)
	return g
}

// Address returns the gauge address.
func (g *Gauge) Address() common.Address {
	return g.address
}

// AddRewardToken configures an extra reward token.
func (g *Gauge) AddRewardToken(token common.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rewardTokens = append(g.rewardTokens, token)
}

// SetWithdrawLimit caps a single withdrawal. nil removes the cap.
func (g *Gauge) SetWithdrawLimit(limit *big.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.withdrawLimit = cloneAmount(limit)
}

// AccrueReward credits holder with amount of an extra reward token.
func (g *Gauge) AccrueReward(holder, token common.Address, amount *big.Int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !containsAddress(g.rewardTokens, token) {
		return fmt.Errorf("%w: %s", ErrUnknownReward, token.Hex())
	}
	g.pending.add(holder, token, amount)
	return nil
}

// AccrueEmission adds amount to holder's cumulative CRV emission.
func (g *Gauge) AccrueEmission(holder common.Address, amount *big.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur, ok := g.integrateFraction[holder]
	if !ok {
		cur = new(big.Int)
	}
	g.integrateFraction[holder] = new(big.Int).Add(cur, amount)
}

// IntegrateFraction returns holder's cumulative CRV emission.
func (g *Gauge) IntegrateFraction(holder common.Address) *big.Int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if v, ok := g.integrateFraction[holder]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// ClaimableReward returns holder's pending amount of an extra reward token.
func (g *Gauge) ClaimableReward(holder, token common.Address) *big.Int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pending.get(holder, token)
}

// LPToken returns the LP token the gauge accepts.
func (g *Gauge) LPToken(_ context.Context) (common.Address, error) {
	return g.lpToken, nil
}

// BalanceOf returns holder's deposited balance.
func (g *Gauge) BalanceOf(_ context.Context, holder common.Address) (*big.Int, error) {
	return g.env.Ledger().BalanceOf(g.address, holder), nil
}

// Deposit pulls amount of LP from caller.
func (g *Gauge) Deposit(_ context.Context, caller common.Address, amount *big.Int) error {
	g.record("deposit", caller, cloneAmount(amount))
	if err := g.take("deposit"); err != nil {
		return err
	}

	ledger := g.env.Ledger()
	if err := ledger.TransferFrom(g.lpToken, g.address, caller, g.address, amount); err != nil {
		return err
	}
	return ledger.Mint(g.address, caller, amount)
}

// Withdraw returns amount of LP to caller.
func (g *Gauge) Withdraw(_ context.Context, caller common.Address, amount *big.Int) error {
	g.record("withdraw", caller, cloneAmount(amount))
	if err := g.take("withdraw"); err != nil {
		return err
	}

	g.mu.RLock()
	limit := g.withdrawLimit
	g.mu.RUnlock()
	if exceedsLimit(limit, amount) {
		return fmt.Errorf("%w: requested %s, available %s", protocol.ErrInsufficientLiquidity, amount, limit)
	}

	ledger := g.env.Ledger()
	if err := ledger.Burn(g.address, caller, amount); err != nil {
		return err
	}
	return ledger.Transfer(g.lpToken, g.address, caller, amount)
}

// ClaimRewards pays caller every pending extra reward.
func (g *Gauge) ClaimRewards(_ context.Context, caller common.Address) error {
	g.record("claim_rewards", caller)
	if err := g.take("claim_rewards"); err != nil {
		return err
	}

	g.mu.Lock()
	tokens := append([]common.Address(nil), g.rewardTokens...)
	amounts := make([]*big.Int, len(tokens))
	for i, token := range tokens {
		amounts[i] = g.pending.take(caller, token)
	}
	g.mu.Unlock()

	ledger := g.env.Ledger()
	for i, token := range tokens {
		if amounts[i].Sign() == 0 {
			continue
		}
		if err := ledger.Mint(token, caller, amounts[i]); err != nil {
			return err
		}
	}
	return nil
}

// RewardCount returns the number of extra reward tokens.
func (g *Gauge) RewardCount(_ context.Context) (uint64, error) {
	g.record("reward_count", common.Address{})
	g.mu.RLock()
	defer g.mu.RUnlock()
	return uint64(len(g.rewardTokens)), nil
}

// RewardToken returns extra reward token i.
func (g *Gauge) RewardToken(_ context.Context, i uint64) (common.Address, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if i >= uint64(len(g.rewardTokens)) {
		return common.Address{}, nil
	}
	return g.rewardTokens[i], nil
}

// Snapshot implements chain.Stateful.
func (g *Gauge) Snapshot() any {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return gaugeState{
		rewardTokens:      append([]common.Address(nil), g.rewardTokens...),
		pending:           g.pending.clone(),
		integrateFraction: copyAmounts(g.integrateFraction),
	}
}

// Restore implements chain.Stateful.
func (g *Gauge) Restore(snapshot any) {
	s := snapshot.(gaugeState)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rewardTokens = append([]common.Address(nil), s.rewardTokens...)
	g.pending = s.pending.clone()
	g.integrateFraction = copyAmounts(s.integrateFraction)
}

var _ protocol.Gauge = (*Gauge)(nil)

// Minter implements protocol.Minter (Curve token minter).
type Minter struct {
	recorder
	faults

	env     *chain.Env
	address common.Address
	token   common.Address

	mu     sync.RWMutex
	gauges map[common.Address]*Gauge
	minted map[common.Address]map[common.Address]*big.Int // holder -> gauge -> minted
}

// NewMinter creates a minter of token and registers it with env.
func NewMinter(env *chain.Env, address, token common.Address) *Minter {
	m := &Minter{
		env:     env,
		address: address,
		token:   token,
		gauges:  make(map[common.Address]*Gauge),
		minted:  make(map[common.Address]map[common.Address]*big.Int),
	}
	env.Register(m)
	return m
}

// Address returns the minter address.
func (m *Minter) Address() common.Address {
	return m.address
}

// AddGauge makes g eligible for minting.
func (m *Minter) AddGauge(g *Gauge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[g.Address()] = g
}

// Minted returns how much CRV holder has minted from gauge.
func (m *Minter) Minted(holder, gauge common.Address) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.minted[holder][gauge]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Mint credits caller with CRV earned in gauge since the last mint.
func (m *Minter) Mint(_ context.Context, caller common.Address, gauge common.Address) error {
	m.record("mint", caller, gauge)
	if err := m.take("mint"); err != nil {
		return err
	}

	m.mu.Lock()
	g, ok := m.gauges[gauge]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrGaugeNotAdded, gauge.Hex())
	}

	total := g.IntegrateFraction(caller)
	perGauge, ok := m.minted[caller]
	if !ok {
		perGauge = make(map[common.Address]*big.Int)
		m.minted[caller] = perGauge
	}
	already, ok := perGauge[gauge]
	if !ok {
		already = new(big.Int)
	}
	toMint := new(big.Int).Sub(total, already)
	perGauge[gauge] = total
	m.mu.Unlock()

	if toMint.Sign() <= 0 {
		return nil
	}
	return m.env.Ledger().Mint(m.token, caller, toMint)
}

// Token returns the emission token.
func (m *Minter) Token(_ context.Context) (common.Address, error) {
	return m.token, nil
}

// Snapshot implements chain.Stateful.
func (m *Minter) Snapshot() any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[common.Address]map[common.Address]*big.Int, len(m.minted))
	for holder, perGauge := range m.minted {
		out[holder] = copyAmounts(perGauge)
	}
	return out
}

// Restore implements chain.Stateful.
func (m *Minter) Restore(snapshot any) {
	s := snapshot.(map[common.Address]map[common.Address]*big.Int)
	m.mu.Lock()
	defer m.mu.Unlock()

	m.minted = make(map[common.Address]map[common.Address]*big.Int, len(s))
	for holder, perGauge := range s {
		m.minted[holder] = copyAmounts(perGauge)
	}
}

var _ protocol.Minter = (*Minter)(nil)

func containsAddress(list []common.Address, a common.Address) bool {
	for _, v := range list {
		if v == a {
			return true
		}
	}
	return false
}

func copyAmounts(src map[common.Address]*big.Int) map[common.Address]*big.Int {
	dst := make(map[common.Address]*big.Int, len(src))
	for k, v := range src {
		dst[k] = new(big.Int).Set(v)
	}
	return dst
}
