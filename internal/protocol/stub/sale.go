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

// Kick is one started auction.
type Kick struct {
	Caller    common.Address
	Token     common.Address
	Available *big.Int
}

// Auction implements protocol.Auction.
type Auction struct {
	recorder
	faults

	env     *chain.Env
	address common.Address
	want    common.Address

	mu    sync.RWMutex
	kicks []Kick
}

// NewAuction creates an auction buying want and registers it with env.
func NewAuction(env *chain.Env, address, want common.Address) *Auction {
	a := &Auction{env: env, address: address, want: want}
	env.Register(a)
	return a
}

// Address returns the auction address.
func (a *Auction) Address() common.Address {
	return a.address
}

// Kicks returns every auction started so far.
func (a *Auction) Kicks() []Kick {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Kick(nil), a.kicks...)
}

// Want returns the token the auction buys.
func (a *Auction) Want(_ context.Context) (common.Address, error) {
	return a.want, nil
}

// Kick starts an auction for the auction's balance of token.
func (a *Auction) Kick(_ context.Context, caller common.Address, token common.Address) (*big.Int, error) {
	a.record("kick", caller, token)
	if err := a.take("kick"); err != nil {
		return nil, err
	}

	available := a.env.Ledger().BalanceOf(token, a.address)
	if available.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNothingToKick, token.Hex())
	}

	a.mu.Lock()
	a.kicks = append(a.kicks, Kick{Caller: caller, Token: token, Available: available})
	a.mu.Unlock()
	return new(big.Int).Set(available), nil
}

// Snapshot implements chain.Stateful.
func (a *Auction) Snapshot() any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Kick(nil), a.kicks...)
}

// Restore implements chain.Stateful.
func (a *Auction) Restore(snapshot any) {
	kicks := snapshot.([]Kick)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kicks = append([]Kick(nil), kicks...)
}

var _ protocol.Auction = (*Auction)(nil)

// TradePair is one enabled trade on a trade factory.
type TradePair struct {
	Strategy common.Address
	From     common.Address
	To       common.Address
}

// TradeFactory implements protocol.TradeFactory.
type TradeFactory struct {
	recorder
	faults

	address common.Address

	mu      sync.RWMutex
	enabled map[TradePair]struct{}
}

// NewTradeFactory creates a trade factory and registers it with env.
func NewTradeFactory(env *chain.Env, address common.Address) *TradeFactory {
	tf := &TradeFactory{address: address, enabled: make(map[TradePair]struct{})}
	env.Register(tf)
	return tf
}

// Address returns the trade factory address.
func (tf *TradeFactory) Address() common.Address {
	return tf.address
}

// IsEnabled reports whether strategy may sell from for to.
func (tf *TradeFactory) IsEnabled(strategy, from, to common.Address) bool {
	tf.mu.RLock()
	defer tf.mu.RUnlock()
	_, ok := tf.enabled[TradePair{strategy, from, to}]
	return ok
}

// EnabledCount returns the number of enabled trades.
func (tf *TradeFactory) EnabledCount() int {
	tf.mu.RLock()
	defer tf.mu.RUnlock()
	return len(tf.enabled)
}

// Enable allows caller's from balance to be sold for to.
func (tf *TradeFactory) Enable(_ context.Context, caller common.Address, from, to common.Address) error {
	tf.record("enable", caller, from, to)
	if err := tf.take("enable"); err != nil {
		return err
	}

	tf.mu.Lock()
	defer tf.mu.Unlock()
	pair := TradePair{caller, from, to}
	if _, ok := tf.enabled[pair]; ok {
		return ErrAlreadyEnabled
	}
	tf.enabled[pair] = struct{}{}
	return nil
}

// Disable revokes a previous Enable.
func (tf *TradeFactory) Disable(_ context.Context, caller common.Address, from, to common.Address) error {
	tf.record("disable", caller, from, to)
	if err := tf.take("disable"); err != nil {
		return err
	}

	tf.mu.Lock()
	defer tf.mu.Unlock()
	pair := TradePair{caller, from, to}
	if _, ok := tf.enabled[pair]; !ok {
		return ErrNotEnabled
	}
	delete(tf.enabled, pair)
	return nil
}

// Snapshot implements chain.Stateful.
func (tf *TradeFactory) Snapshot() any {
	tf.mu.RLock()
	defer tf.mu.RUnlock()
	out := make(map[TradePair]struct{}, len(tf.enabled))
	for k := range tf.enabled {
		out[k] = struct{}{}
	}
	return out
}

// Restore implements chain.Stateful.
func (tf *TradeFactory) Restore(snapshot any) {
	s := snapshot.(map[TradePair]struct{})
	tf.mu.Lock()
	defer tf.mu.Unlock()
	tf.enabled = make(map[TradePair]struct{}, len(s))
	for k := range s {
		tf.enabled[k] = struct{}{}
	}
}

var _ protocol.TradeFactory = (*TradeFactory)(nil)
