package domain

import (
	"github.com/ethereum/go-ethereum/common"
)

// AdapterKind identifies the yield protocol an adapter binds to.
type AdapterKind string

const (
	AdapterKindConvex AdapterKind = "CONVEX"
	AdapterKindCurve  AdapterKind = "CURVE"
)

// String returns the string representation of AdapterKind.
func (k AdapterKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known adapter kind.
func (k AdapterKind) IsValid() bool {
	return k == AdapterKindConvex || k == AdapterKindCurve
}

// CurveMinter is the mainnet CRV minter used when a Curve config leaves it unset.
var CurveMinter = common.HexToAddress("0xd061D61a4d941c39E5453435B6345Dc261C2fcE0")

// AdapterConfig represents adapter construction parameters.
// Convex fields are used only for CONVEX, Curve fields only for CURVE.
type AdapterConfig struct {
	Kind    AdapterKind
	Name    string
	Address common.Address // address the adapter holds funds at
	Asset   common.Address

	// CONVEX parameters
	Booster common.Address
	PoolID  *uint64

	// CURVE parameters
	Gauge  common.Address
	Minter common.Address // defaults to CurveMinter

	// Roles
	Management     common.Address
	EmergencyAdmin common.Address
	Keeper         common.Address

	// Optional sale collaborators
	TradeFactory common.Address
	Auction      common.Address
}

// PoolBinding is the immutable Convex pool binding derived at construction.
type PoolBinding struct {
	Booster         common.Address
	PoolID          uint64
	RewardsContract common.Address // BaseRewardPool from booster.poolInfo
	LPToken         common.Address
}

// GaugeBinding is the immutable Curve gauge binding derived at construction.
type GaugeBinding struct {
	Gauge   common.Address
	Minter  common.Address
	LPToken common.Address
}
