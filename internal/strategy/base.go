package strategy

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"yield-adapter-lab/internal/access"
	"yield-adapter-lab/internal/chain"
	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/protocol"
)

// Options carries the environment adapters are constructed in.
type Options struct {
	Env      *chain.Env
	Registry *protocol.Registry
	Logger   *zap.Logger
}

// base holds what both adapters share: identity, roles and the reward token
// set exposed to the trade factory.
type base struct {
	env      *chain.Env
	registry *protocol.Registry
	logger   *zap.Logger

	name  string
	kind  domain.AdapterKind
	self  common.Address
	asset common.Address
	roles access.Roles

	hostMu sync.RWMutex
	host   Host

	mu           sync.RWMutex
	rewardTokens []common.Address
	tradeFactory common.Address
}

type baseState struct {
	rewardTokens []common.Address
	tradeFactory common.Address
}

func newBase(opts Options, cfg domain.AdapterConfig) base {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{
		env:      opts.Env,
		registry: opts.Registry,
		logger:   logger.With(zap.String("adapter", cfg.Name), zap.String("kind", cfg.Kind.String())),
		name:     cfg.Name,
		kind:     cfg.Kind,
		self:     cfg.Address,
		asset:    cfg.Asset,
		roles: access.Roles{
			Management:     cfg.Management,
			EmergencyAdmin: cfg.EmergencyAdmin,
			Keeper:         cfg.Keeper,
		},
	}
}

// Name returns the adapter name.
func (b *base) Name() string { return b.name }

// Kind returns the adapter kind.
func (b *base) Kind() domain.AdapterKind { return b.kind }

// Address returns the address the adapter holds funds at.
func (b *base) Address() common.Address { return b.self }

// Asset returns the managed asset.
func (b *base) Asset() common.Address { return b.asset }

// Roles returns the adapter's role assignment.
func (b *base) Roles() access.Roles { return b.roles }

// Attach sets the hosting framework.
func (b *base) Attach(host Host) {
	b.hostMu.Lock()
	defer b.hostMu.Unlock()
	b.host = host
}

func (b *base) isShutdown() bool {
	b.hostMu.RLock()
	defer b.hostMu.RUnlock()
	return b.host != nil && b.host.IsShutdown()
}

// BalanceOfAsset returns the idle asset held by the adapter.
func (b *base) BalanceOfAsset(_ context.Context) (*big.Int, error) {
	return b.env.Ledger().BalanceOf(b.asset, b.self), nil
}

// approveMax grants spender an unbounded allowance over token.
func (b *base) approveMax(token, spender common.Address) error {
	return b.env.Ledger().Approve(token, b.self, spender, chain.MaxUint256)
}

func (b *base) snapshotBase() baseState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return baseState{
		rewardTokens: append([]common.Address(nil), b.rewardTokens...),
		tradeFactory: b.tradeFactory,
	}
}

func (b *base) restoreBase(s baseState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rewardTokens = append([]common.Address(nil), s.rewardTokens...)
	b.tradeFactory = s.tradeFactory
}

// minAmount returns the smaller of a and b.
func minAmount(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
