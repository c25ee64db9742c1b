package strategy

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// RewardTokens returns the sellable reward tokens in order.
func (b *base) RewardTokens() []common.Address {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]common.Address(nil), b.rewardTokens...)
}

// TradeFactory returns the current trade factory, zero when unset.
func (b *base) TradeFactory() common.Address {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tradeFactory
}

// AddToken registers a reward token for sale.
func (b *base) AddToken(ctx context.Context, caller, token common.Address) error {
	if err := b.roles.RequireManagement(caller); err != nil {
		return err
	}
	return b.addToken(ctx, token)
}

// AddTokens registers several reward tokens. The first rejected token aborts
// the call; the enclosing transaction discards earlier additions.
func (b *base) AddTokens(ctx context.Context, caller common.Address, tokens []common.Address) error {
	if err := b.roles.RequireManagement(caller); err != nil {
		return err
	}
	for _, token := range tokens {
		if err := b.addToken(ctx, token); err != nil {
			return err
		}
	}
	return nil
}

// RemoveToken drops a reward token. The last token takes its slot.
func (b *base) RemoveToken(ctx context.Context, caller, token common.Address) error {
	if err := b.roles.RequireManagement(caller); err != nil {
		return err
	}
	if err := b.checkRewardToken(token); err != nil {
		return err
	}

	b.mu.Lock()
	idx := -1
	for i, t := range b.rewardTokens {
		if t == token {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTokenNotFound, token.Hex())
	}
	last := len(b.rewardTokens) - 1
	b.rewardTokens[idx] = b.rewardTokens[last]
	b.rewardTokens = b.rewardTokens[:last]
	tf := b.tradeFactory
	b.mu.Unlock()

	if tf != (common.Address{}) {
		if err := b.revoke(ctx, tf, token); err != nil {
			return err
		}
	}
	b.logger.Debug("reward token removed", zap.String("token", token.Hex()))
	return nil
}

// SetTradeFactory moves every permission from the old factory to tf.
// A zero tf only revokes.
func (b *base) SetTradeFactory(ctx context.Context, caller, tf common.Address) error {
	if err := b.roles.RequireManagement(caller); err != nil {
		return err
	}

	if err := b.revokeAll(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	b.tradeFactory = tf
	tokens := append([]common.Address(nil), b.rewardTokens...)
	b.mu.Unlock()

	if tf == (common.Address{}) {
		return nil
	}
	for _, token := range tokens {
		if err := b.grant(ctx, tf, token); err != nil {
			return err
		}
	}
	b.logger.Info("trade factory set", zap.String("trade_factory", tf.Hex()), zap.Int("tokens", len(tokens)))
	return nil
}

// RemoveTradeFactoryPermissions revokes every permission and clears the factory.
func (b *base) RemoveTradeFactoryPermissions(ctx context.Context, caller common.Address) error {
	if err := b.roles.RequireEmergencyAuthorized(caller); err != nil {
		return err
	}
	if err := b.revokeAll(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	b.tradeFactory = common.Address{}
	b.mu.Unlock()
	return nil
}

// checkRewardToken rejects the zero address and the managed asset.
func (b *base) checkRewardToken(token common.Address) error {
	if token == (common.Address{}) {
		return ErrZeroToken
	}
	if token == b.asset {
		return fmt.Errorf("%w: %s", ErrAssetNotAllowed, token.Hex())
	}
	return nil
}

func (b *base) addToken(ctx context.Context, token common.Address) error {
	if err := b.checkRewardToken(token); err != nil {
		return err
	}

	b.mu.Lock()
	for _, t := range b.rewardTokens {
		if t == token {
			b.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrTokenExists, token.Hex())
		}
	}
	b.rewardTokens = append(b.rewardTokens, token)
	tf := b.tradeFactory
	b.mu.Unlock()

	if tf != (common.Address{}) {
		if err := b.grant(ctx, tf, token); err != nil {
			return err
		}
	}
	b.logger.Debug("reward token added", zap.String("token", token.Hex()))
	return nil
}

func (b *base) grant(ctx context.Context, tf, token common.Address) error {
	if err := b.approveMax(token, tf); err != nil {
		return err
	}
	factory, err := b.registry.TradeFactory(tf)
	if err != nil {
		return err
	}
	return factory.Enable(ctx, b.self, token, b.asset)
}

func (b *base) revoke(ctx context.Context, tf, token common.Address) error {
	if err := b.env.Ledger().Approve(token, b.self, tf, new(big.Int)); err != nil {
		return err
	}
	factory, err := b.registry.TradeFactory(tf)
	if err != nil {
		return err
	}
	return factory.Disable(ctx, b.self, token, b.asset)
}

func (b *base) revokeAll(ctx context.Context) error {
	b.mu.RLock()
	tf := b.tradeFactory
	tokens := append([]common.Address(nil), b.rewardTokens...)
	b.mu.RUnlock()

	if tf == (common.Address{}) {
		return nil
	}
	for _, token := range tokens {
		if err := b.revoke(ctx, tf, token); err != nil {
			return err
		}
	}
	return nil
}
