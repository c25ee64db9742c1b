// Package protocol defines the external contracts adapters talk to.
// Only the calls adapters make are modelled; internals belong to the protocols.
package protocol

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Protocol errors
var (
	// ErrUnknownContract is returned when no collaborator is bound at an address.
	ErrUnknownContract = errors.New("no contract at address")

	// ErrReadOnly is returned by read-only bindings for state-changing calls.
	ErrReadOnly = errors.New("read-only binding")

	// ErrInsufficientLiquidity is the revert raised when a withdrawal cannot be served.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrPoolShutdown is the revert raised when depositing into a shut down Convex pool.
	ErrPoolShutdown = errors.New("pool is closed")
)

// PoolInfo is the Convex booster's per-pool record.
type PoolInfo struct {
	LPToken    common.Address
	Token      common.Address // Convex deposit token
	Gauge      common.Address
	CRVRewards common.Address // BaseRewardPool
	Stash      common.Address
	Shutdown   bool
}

// Booster is the Convex deposit contract.
type Booster interface {
	// PoolInfo returns the record of pool pid.
	PoolInfo(ctx context.Context, pid uint64) (PoolInfo, error)

	// PoolLength returns the number of registered pools.
	PoolLength(ctx context.Context) (uint64, error)

	// Deposit pulls amount of the pool's LP token from caller; stake=true stakes
	// the deposit token in the pool's rewards contract on caller's behalf.
	Deposit(ctx context.Context, caller common.Address, pid uint64, amount *big.Int, stake bool) error
}

// RewardPool is the Convex BaseRewardPool holding staked positions.
type RewardPool interface {
	// BalanceOf returns holder's staked balance.
	BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error)

	// WithdrawAndUnwrap unstakes amount and returns the underlying LP token to caller.
	WithdrawAndUnwrap(ctx context.Context, caller common.Address, amount *big.Int, claim bool) error

	// GetReward pays holder's main reward and, when claimExtras, every extra reward.
	GetReward(ctx context.Context, holder common.Address, claimExtras bool) error

	// RewardToken returns the main reward token (CRV).
	RewardToken(ctx context.Context) (common.Address, error)

	// ExtraRewardsLength returns the number of extra reward contracts.
	ExtraRewardsLength(ctx context.Context) (uint64, error)
}

// Gauge is a Curve liquidity gauge. Deposits are staked on arrival.
type Gauge interface {
	// LPToken returns the LP token the gauge accepts.
	LPToken(ctx context.Context) (common.Address, error)

	// BalanceOf returns holder's deposited balance.
	BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error)

	// Deposit pulls amount of LP token from caller.
	Deposit(ctx context.Context, caller common.Address, amount *big.Int) error

	// Withdraw returns amount of LP token to caller.
	Withdraw(ctx context.Context, caller common.Address, amount *big.Int) error

	// ClaimRewards pays caller every pending extra reward.
	ClaimRewards(ctx context.Context, caller common.Address) error

	// RewardCount returns the number of extra reward tokens configured.
	RewardCount(ctx context.Context) (uint64, error)

	// RewardToken returns extra reward token i.
	RewardToken(ctx context.Context, i uint64) (common.Address, error)
}

// Minter mints Curve base emissions earned in a gauge.
type Minter interface {
	// Mint credits caller with CRV earned in gauge since the last mint.
	Mint(ctx context.Context, caller common.Address, gauge common.Address) error

	// Token returns the emission token (CRV).
	Token(ctx context.Context) (common.Address, error)
}

// Auction sells kicked tokens for its want token.
type Auction interface {
	// Want returns the token the auction buys.
	Want(ctx context.Context) (common.Address, error)

	// Kick starts an auction for the balance of token held by the auction.
	Kick(ctx context.Context, caller common.Address, token common.Address) (*big.Int, error)
}

// TradeFactory swaps enabled reward tokens out of a strategy.
type TradeFactory interface {
	// Enable allows the factory to sell from for to on caller's behalf.
	Enable(ctx context.Context, caller common.Address, from, to common.Address) error

	// Disable revokes a previous Enable.
	Disable(ctx context.Context, caller common.Address, from, to common.Address) error
}
