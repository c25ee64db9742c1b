// Package chain provides the simulated execution environment adapters run in:
// an ERC20 ledger, a block clock and all-or-nothing transaction execution.
package chain

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// Ledger errors. These are the ERC20 reverts a collaborator call can raise.
var (
	ErrInsufficientBalance   = errors.New("ERC20: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("ERC20: insufficient allowance")
	ErrInvalidAmount         = errors.New("ERC20: invalid amount")
)

// MaxUint256 is the unbounded allowance. Allowances at this value are never decremented.
var MaxUint256 = new(big.Int).Set(math.MaxBig256)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Ledger tracks ERC20 balances, total supplies and allowances for every token.
type Ledger struct {
	mu         sync.RWMutex
	balances   map[common.Address]map[common.Address]*big.Int // token -> holder -> amount
	supply     map[common.Address]*big.Int
	allowances map[common.Address]map[allowanceKey]*big.Int // token -> (owner, spender) -> amount
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		supply:     make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[allowanceKey]*big.Int),
	}
}

// BalanceOf returns holder's balance of token. Never nil.
func (l *Ledger) BalanceOf(token, holder common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return clone(l.balances[token][holder])
}

// TotalSupply returns the minted supply of token. Never nil.
func (l *Ledger) TotalSupply(token common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return clone(l.supply[token])
}

// Allowance returns how much spender may pull from owner.
func (l *Ledger) Allowance(token, owner, spender common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return clone(l.allowances[token][allowanceKey{owner, spender}])
}

// Mint credits amount of token to holder.
func (l *Ledger) Mint(token, holder common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.credit(token, holder, amount)
	l.supply[token] = new(big.Int).Add(zeroIfNil(l.supply[token]), amount)
	return nil
}

// Burn debits amount of token from holder.
func (l *Ledger) Burn(token, holder common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.debit(token, holder, amount); err != nil {
		return err
	}
	l.supply[token] = new(big.Int).Sub(zeroIfNil(l.supply[token]), amount)
	return nil
}

// Transfer moves amount of token from one holder to another.
func (l *Ledger) Transfer(token, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.debit(token, from, amount); err != nil {
		return err
	}
	l.credit(token, to, amount)
	return nil
}

// Approve sets spender's allowance over owner's token balance.
func (l *Ledger) Approve(token, owner, spender common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.allowances[token]
	if !ok {
		m = make(map[allowanceKey]*big.Int)
		l.allowances[token] = m
	}
	m[allowanceKey{owner, spender}] = new(big.Int).Set(amount)
	return nil
}

// TransferFrom moves amount from owner to recipient using spender's allowance.
func (l *Ledger) TransferFrom(token, spender, owner, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := allowanceKey{owner, spender}
	allowed := zeroIfNil(l.allowances[token][key])
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientAllowance, spender.Hex(), allowed, amount)
	}
	if err := l.debit(token, owner, amount); err != nil {
		return err
	}
	l.credit(token, to, amount)

	if m, ok := l.allowances[token]; ok && allowed.Cmp(MaxUint256) != 0 {
		m[key] = new(big.Int).Sub(allowed, amount)
	}
	return nil
}

// debit must be called with mu held.
func (l *Ledger) debit(token, holder common.Address, amount *big.Int) error {
	bal := zeroIfNil(l.balances[token][holder])
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, holder.Hex(), bal, amount)
	}
	m, ok := l.balances[token]
	if !ok {
		m = make(map[common.Address]*big.Int)
		l.balances[token] = m
	}
	m[holder] = new(big.Int).Sub(bal, amount)
	return nil
}

// credit must be called with mu held.
func (l *Ledger) credit(token, holder common.Address, amount *big.Int) {
	m, ok := l.balances[token]
	if !ok {
		m = make(map[common.Address]*big.Int)
		l.balances[token] = m
	}
	m[holder] = new(big.Int).Add(zeroIfNil(m[holder]), amount)
}

type ledgerState struct {
	balances   map[common.Address]map[common.Address]*big.Int
	supply     map[common.Address]*big.Int
	allowances map[common.Address]map[allowanceKey]*big.Int
}

// Snapshot returns a deep copy of the ledger state.
func (l *Ledger) Snapshot() any {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return ledgerState{
		balances:   copyNested(l.balances),
		supply:     copyFlat(l.supply),
		allowances: copyNested(l.allowances),
	}
}

// Restore replaces the ledger state with a value returned by Snapshot.
func (l *Ledger) Restore(snapshot any) {
	s := snapshot.(ledgerState)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances = copyNested(s.balances)
	l.supply = copyFlat(s.supply)
	l.allowances = copyNested(s.allowances)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func copyFlat[K comparable](src map[K]*big.Int) map[K]*big.Int {
	dst := make(map[K]*big.Int, len(src))
	for k, v := range src {
		dst[k] = new(big.Int).Set(v)
	}
	return dst
}

func copyNested[K comparable, V comparable](src map[K]map[V]*big.Int) map[K]map[V]*big.Int {
	dst := make(map[K]map[V]*big.Int, len(src))
	for k, inner := range src {
		dst[k] = copyFlat(inner)
	}
	return dst
}
