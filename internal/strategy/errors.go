package strategy

import "errors"

// Construction errors
var (
	ErrUnknownAdapterKind = errors.New("unknown adapter kind")
	ErrMissingAsset       = errors.New("adapter requires Asset")
	ErrMissingAddress     = errors.New("adapter requires Address")
	ErrMissingBooster     = errors.New("CONVEX requires Booster")
	ErrMissingPoolID      = errors.New("CONVEX requires PoolID")
	ErrMissingGauge       = errors.New("CURVE requires Gauge")

	// ErrPoolAssetMismatch is returned when the yield source's underlying token is not the asset.
	ErrPoolAssetMismatch = errors.New("wrong pool: underlying token does not match asset")
)

// Administrative errors
var (
	// ErrAssetNotAllowed is returned when the managed asset is passed as a reward token.
	ErrAssetNotAllowed = errors.New("asset cannot be a reward token")

	ErrTokenExists   = errors.New("reward token already added")
	ErrTokenNotFound = errors.New("reward token not found")
	ErrZeroToken     = errors.New("zero address token")
)

// Auction errors
var (
	// ErrBelowMinimum is returned when a kick would release less than the token's minimum.
	ErrBelowMinimum = errors.New("too little to kick")

	ErrNoAuction = errors.New("auction not set")
	ErrWrongWant = errors.New("auction want does not match asset")
)
