// Package stub provides idealised, no-slippage protocol collaborators for
// tests and simulation. Every stub keeps token balances in the environment's
// ledger, registers its side state with the environment so it reverts with
// the transaction, and records each call it receives.
package stub

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Stub errors
var (
	ErrUnknownPool    = errors.New("pid out of range")
	ErrUnknownReward  = errors.New("token is not a reward of this contract")
	ErrGaugeNotAdded  = errors.New("dev: gauge is not added")
	ErrNothingToKick  = errors.New("nothing to kick")
	ErrAlreadyEnabled = errors.New("trade already enabled")
	ErrNotEnabled     = errors.New("trade not enabled")
)

// Call is one recorded collaborator call.
type Call struct {
	Method string
	Caller common.Address
	Args   []any
}

// recorder keeps the call log of a stub. The log survives reverts.
type recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *recorder) record(method string, caller common.Address, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Method: method, Caller: caller, Args: args})
}

// Calls returns a copy of every recorded call in order.
func (r *recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount returns how many times method was called.
func (r *recorder) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (r *recorder) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// faults injects one-shot reverts per method.
type faults struct {
	mu   sync.Mutex
	next map[string]error
}

// FailNext makes the next call to method revert with err.
func (f *faults) FailNext(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next == nil {
		f.next = make(map[string]error)
	}
	f.next[method] = err
}

func (f *faults) take(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err, ok := f.next[method]
	if !ok {
		return nil
	}
	delete(f.next, method)
	return err
}

// rewardBook tracks pending rewards per holder and token.
type rewardBook map[common.Address]map[common.Address]*big.Int

func (b rewardBook) add(holder, token common.Address, amount *big.Int) {
	m, ok := b[holder]
	if !ok {
		m = make(map[common.Address]*big.Int)
		b[holder] = m
	}
	cur, ok := m[token]
	if !ok {
		cur = new(big.Int)
	}
	m[token] = new(big.Int).Add(cur, amount)
}

// take returns and clears the pending amount. Never nil.
func (b rewardBook) take(holder, token common.Address) *big.Int {
	m, ok := b[holder]
	if !ok {
		return new(big.Int)
	}
	cur, ok := m[token]
	if !ok {
		return new(big.Int)
	}
	delete(m, token)
	return cur
}

func (b rewardBook) get(holder, token common.Address) *big.Int {
	if v, ok := b[holder][token]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (b rewardBook) clone() rewardBook {
	out := make(rewardBook, len(b))
	for holder, m := range b {
		inner := make(map[common.Address]*big.Int, len(m))
		for token, v := range m {
			inner[token] = new(big.Int).Set(v)
		}
		out[holder] = inner
	}
	return out
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// exceedsLimit reports whether amount is above a configured withdraw cap.
func exceedsLimit(limit, amount *big.Int) bool {
	return limit != nil && amount != nil && amount.Cmp(limit) > 0
}
