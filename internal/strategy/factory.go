package strategy

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"yield-adapter-lab/internal/domain"
)

// FromConfig creates an Adapter from domain.AdapterConfig.
// Validates required parameters per adapter kind, then applies the optional
// trade factory and auction as management.
func FromConfig(ctx context.Context, opts Options, cfg domain.AdapterConfig) (Adapter, error) {
	if cfg.Asset == (common.Address{}) {
		return nil, ErrMissingAsset
	}
	if cfg.Address == (common.Address{}) {
		return nil, ErrMissingAddress
	}

	var (
		adapter Adapter
		err     error
	)
	switch cfg.Kind {
	case domain.AdapterKindConvex:
		adapter, err = NewConvexAdapter(ctx, opts, cfg)
	case domain.AdapterKindCurve:
		adapter, err = NewCurveAdapter(ctx, opts, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAdapterKind, cfg.Kind)
	}
	if err != nil {
		return nil, err
	}

	if cfg.TradeFactory != (common.Address{}) {
		if err := adapter.SetTradeFactory(ctx, cfg.Management, cfg.TradeFactory); err != nil {
			return nil, fmt.Errorf("set trade factory: %w", err)
		}
	}
	if cfg.Auction != (common.Address{}) {
		auctioneer, ok := adapter.(Auctioneer)
		if !ok {
			return nil, fmt.Errorf("%s adapter has no auction", cfg.Kind)
		}
		if err := auctioneer.SetAuction(ctx, cfg.Management, cfg.Auction); err != nil {
			return nil, fmt.Errorf("set auction: %w", err)
		}
	}
	return adapter, nil
}
