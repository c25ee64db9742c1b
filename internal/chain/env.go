package chain

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Default clock values.
const (
	DefaultStartBlock     = 19_000_000
	DefaultStartTimestamp = 1_704_067_200 // 2024-01-01T00:00:00Z
	DefaultBlockTime      = 12            // seconds
)

// Stateful is any participant whose state must revert together with the ledger.
type Stateful interface {
	// Snapshot returns an opaque deep copy of the participant's state.
	Snapshot() any
	// Restore replaces the state with a value previously returned by Snapshot.
	Restore(snapshot any)
}

// Env is a single-chain execution environment.
// Transactions run one at a time; a failed transaction leaves no state behind.
type Env struct {
	txMu sync.Mutex // serialises Execute

	ledger *Ledger

	mu           sync.RWMutex
	participants []Stateful
	block        uint64
	timestamp    int64
	blockTime    int64

	logger *zap.Logger
}

// EnvOptions configures an Env.
type EnvOptions struct {
	StartBlock     uint64
	StartTimestamp int64
	BlockTime      int64 // seconds per block
	Logger         *zap.Logger
}

// NewEnv creates an environment with an empty ledger.
func NewEnv(opts EnvOptions) *Env {
	if opts.StartBlock == 0 {
		opts.StartBlock = DefaultStartBlock
	}
	if opts.StartTimestamp == 0 {
		opts.StartTimestamp = DefaultStartTimestamp
	}
	if opts.BlockTime <= 0 {
		opts.BlockTime = DefaultBlockTime
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Env{
		ledger:    NewLedger(),
		block:     opts.StartBlock,
		timestamp: opts.StartTimestamp,
		blockTime: opts.BlockTime,
		logger:    opts.Logger,
	}
}

// Ledger returns the token ledger.
func (e *Env) Ledger() *Ledger {
	return e.ledger
}

// Register adds a participant whose state is snapshotted around every transaction.
func (e *Env) Register(p Stateful) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.participants = append(e.participants, p)
}

// BlockNumber returns the current block number.
func (e *Env) BlockNumber() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.block
}

// Timestamp returns the current block timestamp in unix seconds.
func (e *Env) Timestamp() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.timestamp
}

// Mine advances the clock by n blocks and returns the new block number.
func (e *Env) Mine(n uint64) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.block += n
	e.timestamp += int64(n) * e.blockTime
	return e.block
}

// Execute runs fn as one transaction.
// If fn returns an error every registered participant and the ledger are
// restored to their state before the call and the error is returned unchanged.
// fn must not call Execute.
func (e *Env) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.txMu.Lock()
	defer e.txMu.Unlock()

	e.mu.RLock()
	participants := append([]Stateful{e.ledger}, e.participants...)
	e.mu.RUnlock()

	snapshots := make([]any, len(participants))
	for i, p := range participants {
		snapshots[i] = p.Snapshot()
	}

	if err := fn(ctx); err != nil {
		for i, p := range participants {
			p.Restore(snapshots[i])
		}
		e.logger.Debug("transaction reverted",
			zap.Uint64("block", e.BlockNumber()),
			zap.Error(err),
		)
		return err
	}
	return nil
}
