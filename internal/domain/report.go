package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// HarvestReport represents one harvestAndReport result as seen by the framework.
// Corresponds to harvest_reports table.
type HarvestReport struct {
	ReportID    string // deterministic hash
	RunID       string // simulation run or keeper session
	AdapterName string
	AdapterKind AdapterKind
	Sequence    int // report index for this adapter, starting at 1

	BlockNumber uint64
	Timestamp   int64 // unix seconds

	IdleDeployed *big.Int // idle asset swept into the yield source
	Staked       *big.Int // staked balance read after deployment
	TotalAssets  *big.Int // figure returned to the framework
	PrevTotal    *big.Int // accounted total before this report
	Profit       *big.Int
	Loss         *big.Int

	Rewards []RewardAmount // reward balances gained by the claim
}

// RewardAmount is a token/amount pair.
type RewardAmount struct {
	Token  common.Address
	Amount *big.Int
}

// StakeSnapshot represents staked and idle balances of an adapter at a block.
// Corresponds to stake_snapshots table.
type StakeSnapshot struct {
	RunID       string
	AdapterName string
	BlockNumber uint64
	Timestamp   int64
	Staked      *big.Int
	Idle        *big.Int
}
