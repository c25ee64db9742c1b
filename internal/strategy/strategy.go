// Package strategy implements the Convex and Curve yield adapters.
//
// Each adapter binds one asset to one yield source for its whole lifetime and
// exposes the same four lifecycle hooks to the hosting framework:
// DeployFunds, FreeFunds, HarvestAndReport and ClaimRewards. Hooks assume the
// caller runs them inside a chain.Env transaction; collaborator reverts are
// returned unchanged.
package strategy

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"yield-adapter-lab/internal/access"
	"yield-adapter-lab/internal/domain"
)

// Host is the framework view adapters read.
type Host interface {
	IsShutdown() bool
}

// Adapter is the shared contract of both yield adapters.
type Adapter interface {
	Name() string
	Kind() domain.AdapterKind
	Address() common.Address
	Asset() common.Address
	Roles() access.Roles

	// Attach sets the hosting framework.
	Attach(host Host)

	// BalanceOfAsset returns the idle asset held by the adapter.
	BalanceOfAsset(ctx context.Context) (*big.Int, error)

	// BalanceOfStake returns the asset staked in the yield source.
	BalanceOfStake(ctx context.Context) (*big.Int, error)

	// DeployFunds stakes exactly amount of idle asset in one call.
	DeployFunds(ctx context.Context, amount *big.Int) error

	// FreeFunds asks the yield source to return amount of asset.
	// Shortfalls are not detected here.
	FreeFunds(ctx context.Context, amount *big.Int) error

	// HarvestAndReport deploys idle asset, claims rewards and returns the
	// staked balance read after deployment.
	HarvestAndReport(ctx context.Context) (*big.Int, error)

	// ClaimRewards claims pending reward tokens without selling them.
	ClaimRewards(ctx context.Context) error

	// EmergencyWithdraw frees min(amount, staked).
	EmergencyWithdraw(ctx context.Context, amount *big.Int) error

	// ClaimRewardsAs is the keeper-gated external claim.
	ClaimRewardsAs(ctx context.Context, caller common.Address) error

	// Reward token set, shared with the trade factory.
	RewardTokens() []common.Address
	TradeFactory() common.Address
	AddToken(ctx context.Context, caller, token common.Address) error
	AddTokens(ctx context.Context, caller common.Address, tokens []common.Address) error
	RemoveToken(ctx context.Context, caller, token common.Address) error
	SetTradeFactory(ctx context.Context, caller, tradeFactory common.Address) error
	RemoveTradeFactoryPermissions(ctx context.Context, caller common.Address) error
}

// Auctioneer is implemented by adapters that gate reward auctions.
type Auctioneer interface {
	Auction() common.Address
	SetAuction(ctx context.Context, caller, auction common.Address) error
	MinAmountToSell(token common.Address) *big.Int
	SetMinAmountToSell(ctx context.Context, caller, token common.Address, amount *big.Int) error
	Kickable(ctx context.Context, token common.Address) (*big.Int, error)
	KickAuction(ctx context.Context, caller, token common.Address) (*big.Int, error)
}
