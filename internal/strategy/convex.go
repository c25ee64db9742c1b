package strategy

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/protocol"
)

// ConvexAdapter stakes its asset in one Convex pool through the booster.
type ConvexAdapter struct {
	base

	binding domain.PoolBinding
	booster protocol.Booster
	rewards protocol.RewardPool

	auctionMu       sync.RWMutex
	auction         common.Address
	minAmountToSell map[common.Address]*big.Int
}

type convexState struct {
	base            baseState
	auction         common.Address
	minAmountToSell map[common.Address]*big.Int
}

// ResolvePoolBinding reads pool pid from booster and checks that its LP token
// is asset.
func ResolvePoolBinding(ctx context.Context, booster protocol.Booster, boosterAddr common.Address, pid uint64, asset common.Address) (domain.PoolBinding, error) {
	info, err := booster.PoolInfo(ctx, pid)
	if err != nil {
		return domain.PoolBinding{}, fmt.Errorf("read pool %d: %w", pid, err)
	}
	if info.LPToken != asset {
		return domain.PoolBinding{}, fmt.Errorf("%w: pool %d lptoken %s, asset %s",
			ErrPoolAssetMismatch, pid, info.LPToken.Hex(), asset.Hex())
	}
	return domain.PoolBinding{
		Booster:         boosterAddr,
		PoolID:          pid,
		RewardsContract: info.CRVRewards,
		LPToken:         info.LPToken,
	}, nil
}

// NewConvexAdapter binds cfg.Asset to Convex pool cfg.PoolID.
// The booster receives an unbounded allowance over the asset.
func NewConvexAdapter(ctx context.Context, opts Options, cfg domain.AdapterConfig) (*ConvexAdapter, error) {
	if cfg.PoolID == nil {
		return nil, ErrMissingPoolID
	}
	if cfg.Booster == (common.Address{}) {
		return nil, ErrMissingBooster
	}

	booster, err := opts.Registry.Booster(cfg.Booster)
	if err != nil {
		return nil, err
	}
	binding, err := ResolvePoolBinding(ctx, booster, cfg.Booster, *cfg.PoolID, cfg.Asset)
	if err != nil {
		return nil, err
	}
	rewards, err := opts.Registry.RewardPool(binding.RewardsContract)
	if err != nil {
		return nil, fmt.Errorf("rewards contract: %w", err)
	}

	a := &ConvexAdapter{
		base:            newBase(opts, cfg),
		binding:         binding,
		booster:         booster,
		rewards:         rewards,
		minAmountToSell: make(map[common.Address]*big.Int),
	}
	if err := a.approveMax(cfg.Asset, cfg.Booster); err != nil {
		return nil, err
	}
	opts.Env.Register(a)

	a.logger.Info("convex adapter bound",
		zap.Uint64("pid", binding.PoolID),
		zap.String("rewards", binding.RewardsContract.Hex()),
	)
	return a, nil
}

// Binding returns the immutable pool binding.
func (a *ConvexAdapter) Binding() domain.PoolBinding {
	return a.binding
}

// BalanceOfStake returns the adapter's balance in the rewards contract.
func (a *ConvexAdapter) BalanceOfStake(ctx context.Context) (*big.Int, error) {
	return a.rewards.BalanceOf(ctx, a.self)
}

// DeployFunds deposits and stakes amount in one booster call.
func (a *ConvexAdapter) DeployFunds(ctx context.Context, amount *big.Int) error {
	return a.booster.Deposit(ctx, a.self, a.binding.PoolID, amount, true)
}

// FreeFunds unstakes amount and unwraps it back to the asset without claiming.
func (a *ConvexAdapter) FreeFunds(ctx context.Context, amount *big.Int) error {
	return a.rewards.WithdrawAndUnwrap(ctx, a.self, amount, false)
}

// HarvestAndReport deploys idle asset, claims rewards and returns total assets.
func (a *ConvexAdapter) HarvestAndReport(ctx context.Context) (*big.Int, error) {
	return harvest(ctx, &a.base, a)
}

// ClaimRewards claims the main reward and every extra reward.
func (a *ConvexAdapter) ClaimRewards(ctx context.Context) error {
	return a.rewards.GetReward(ctx, a.self, true)
}

// ClaimRewardsAs is the keeper-gated ClaimRewards.
func (a *ConvexAdapter) ClaimRewardsAs(ctx context.Context, caller common.Address) error {
	if err := a.roles.RequireKeeper(caller); err != nil {
		return err
	}
	return a.ClaimRewards(ctx)
}

// EmergencyWithdraw frees min(amount, staked).
func (a *ConvexAdapter) EmergencyWithdraw(ctx context.Context, amount *big.Int) error {
	return emergencyWithdraw(ctx, a, amount)
}

// Auction returns the auction address, zero when unset.
func (a *ConvexAdapter) Auction() common.Address {
	a.auctionMu.RLock()
	defer a.auctionMu.RUnlock()
	return a.auction
}

// SetAuction replaces the auction. A non-zero auction must buy the asset.
func (a *ConvexAdapter) SetAuction(ctx context.Context, caller, auction common.Address) error {
	if err := a.roles.RequireManagement(caller); err != nil {
		return err
	}

	if auction != (common.Address{}) {
		au, err := a.registry.Auction(auction)
		if err != nil {
			return err
		}
		want, err := au.Want(ctx)
		if err != nil {
			return err
		}
		if want != a.asset {
			return fmt.Errorf("%w: want %s, asset %s", ErrWrongWant, want.Hex(), a.asset.Hex())
		}
	}

	a.auctionMu.Lock()
	a.auction = auction
	a.auctionMu.Unlock()
	a.logger.Info("auction set", zap.String("auction", auction.Hex()))
	return nil
}

// MinAmountToSell returns the kick threshold of token, zero when unset.
func (a *ConvexAdapter) MinAmountToSell(token common.Address) *big.Int {
	a.auctionMu.RLock()
	defer a.auctionMu.RUnlock()
	if v, ok := a.minAmountToSell[token]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// SetMinAmountToSell sets the kick threshold of token.
func (a *ConvexAdapter) SetMinAmountToSell(_ context.Context, caller, token common.Address, amount *big.Int) error {
	if err := a.roles.RequireManagement(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("min amount to sell: invalid amount %v", amount)
	}

	a.auctionMu.Lock()
	defer a.auctionMu.Unlock()
	a.minAmountToSell[token] = new(big.Int).Set(amount)
	return nil
}

// Kickable returns the amount the next kick of token would release.
func (a *ConvexAdapter) Kickable(_ context.Context, token common.Address) (*big.Int, error) {
	if token == a.asset {
		return new(big.Int), nil
	}
	return a.env.Ledger().BalanceOf(token, a.self), nil
}

// KickAuction moves the adapter's whole balance of token to the auction and
// starts it. The asset is never auctioned and the amount the auction reports
// as kicked must reach the token's threshold.
func (a *ConvexAdapter) KickAuction(ctx context.Context, caller, token common.Address) (*big.Int, error) {
	if err := a.roles.RequireKeeper(caller); err != nil {
		return nil, err
	}
	if token == a.asset {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotAllowed, token.Hex())
	}

	auctionAddr := a.Auction()
	if auctionAddr == (common.Address{}) {
		return nil, ErrNoAuction
	}
	au, err := a.registry.Auction(auctionAddr)
	if err != nil {
		return nil, err
	}

	amount := a.env.Ledger().BalanceOf(token, a.self)
	if amount.Sign() > 0 {
		if err := a.env.Ledger().Transfer(token, a.self, auctionAddr, amount); err != nil {
			return nil, err
		}
	}
	kicked, err := au.Kick(ctx, a.self, token)
	if err != nil {
		return nil, err
	}
	// The auction decides what was released; the transaction reverts the
	// transfer when it falls short.
	if threshold := a.MinAmountToSell(token); kicked.Cmp(threshold) < 0 {
		return nil, fmt.Errorf("%w: %s kicked %s, minimum %s", ErrBelowMinimum, token.Hex(), kicked, threshold)
	}

	a.logger.Info("auction kicked", zap.String("token", token.Hex()), zap.String("amount", kicked.String()))
	return kicked, nil
}

// Snapshot implements chain.Stateful.
func (a *ConvexAdapter) Snapshot() any {
	a.auctionMu.RLock()
	defer a.auctionMu.RUnlock()

	mins := make(map[common.Address]*big.Int, len(a.minAmountToSell))
	for k, v := range a.minAmountToSell {
		mins[k] = new(big.Int).Set(v)
	}
	return convexState{base: a.snapshotBase(), auction: a.auction, minAmountToSell: mins}
}

// Restore implements chain.Stateful.
func (a *ConvexAdapter) Restore(snapshot any) {
	s := snapshot.(convexState)
	a.restoreBase(s.base)

	a.auctionMu.Lock()
	defer a.auctionMu.Unlock()
	a.auction = s.auction
	a.minAmountToSell = make(map[common.Address]*big.Int, len(s.minAmountToSell))
	for k, v := range s.minAmountToSell {
		a.minAmountToSell[k] = new(big.Int).Set(v)
	}
}

var (
	_ Adapter    = (*ConvexAdapter)(nil)
	_ Auctioneer = (*ConvexAdapter)(nil)
)
