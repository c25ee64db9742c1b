package protocol

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry resolves contract addresses to callable collaborators.
// An address may be bound to more than one interface (a Curve gauge is also
// an ERC20), so each interface has its own table.
type Registry struct {
	mu             sync.RWMutex
	boosters       map[common.Address]Booster
	rewardPools    map[common.Address]RewardPool
	gauges         map[common.Address]Gauge
	minters        map[common.Address]Minter
	auctions       map[common.Address]Auction
	tradeFactories map[common.Address]TradeFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		boosters:       make(map[common.Address]Booster),
		rewardPools:    make(map[common.Address]RewardPool),
		gauges:         make(map[common.Address]Gauge),
		minters:        make(map[common.Address]Minter),
		auctions:       make(map[common.Address]Auction),
		tradeFactories: make(map[common.Address]TradeFactory),
	}
}

// BindBooster binds b at addr.
func (r *Registry) BindBooster(addr common.Address, b Booster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boosters[addr] = b
}

// BindRewardPool binds p at addr.
func (r *Registry) BindRewardPool(addr common.Address, p RewardPool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rewardPools[addr] = p
}

// BindGauge binds g at addr.
func (r *Registry) BindGauge(addr common.Address, g Gauge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[addr] = g
}

// BindMinter binds m at addr.
func (r *Registry) BindMinter(addr common.Address, m Minter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.minters[addr] = m
}

// BindAuction binds a at addr.
func (r *Registry) BindAuction(addr common.Address, a Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions[addr] = a
}

// BindTradeFactory binds tf at addr.
func (r *Registry) BindTradeFactory(addr common.Address, tf TradeFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tradeFactories[addr] = tf
}

// Booster returns the booster at addr.
func (r *Registry) Booster(addr common.Address) (Booster, error) {
	return lookup(r, r.boosters, addr, "booster")
}

// RewardPool returns the rewards contract at addr.
func (r *Registry) RewardPool(addr common.Address) (RewardPool, error) {
	return lookup(r, r.rewardPools, addr, "reward pool")
}

// Gauge returns the gauge at addr.
func (r *Registry) Gauge(addr common.Address) (Gauge, error) {
	return lookup(r, r.gauges, addr, "gauge")
}

// Minter returns the minter at addr.
func (r *Registry) Minter(addr common.Address) (Minter, error) {
	return lookup(r, r.minters, addr, "minter")
}

// Auction returns the auction at addr.
func (r *Registry) Auction(addr common.Address) (Auction, error) {
	return lookup(r, r.auctions, addr, "auction")
}

// TradeFactory returns the trade factory at addr.
func (r *Registry) TradeFactory(addr common.Address) (TradeFactory, error) {
	return lookup(r, r.tradeFactories, addr, "trade factory")
}

func lookup[T any](r *Registry, table map[common.Address]T, addr common.Address, kind string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := table[addr]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s %s", ErrUnknownContract, kind, addr.Hex())
	}
	return v, nil
}
