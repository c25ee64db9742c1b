package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Operation type constants
const (
	OpDeposit           = "DEPOSIT"
	OpWithdraw          = "WITHDRAW"
	OpHarvest           = "HARVEST"
	OpClaim             = "CLAIM"
	OpKick              = "KICK"
	OpSetMinAmount      = "SET_MIN_AMOUNT"
	OpAddToken          = "ADD_TOKEN"
	OpRemoveToken       = "REMOVE_TOKEN"
	OpSetTradeFactory   = "SET_TRADE_FACTORY"
	OpRemoveTFPerms     = "REMOVE_TRADE_FACTORY_PERMISSIONS"
	OpSetAuction        = "SET_AUCTION"
	OpShutdown          = "SHUTDOWN"
	OpEmergencyWithdraw = "EMERGENCY_WITHDRAW"
)

// Operation status constants
const (
	OpStatusOK       = "OK"
	OpStatusReverted = "REVERTED"
)

// OperationRecord is one transaction against an adapter.
// Corresponds to adapter_operations table.
type OperationRecord struct {
	OperationID string // deterministic hash of (run_id, index)
	RunID       string
	Index       int // position within the run
	AdapterName string

	Op          string
	Caller      common.Address
	Token       *common.Address // token argument (nullable)
	Amount      *big.Int        // amount argument or result (nullable)
	BlockNumber uint64

	Status       string // OK | REVERTED
	RevertReason string
}

// Reverted reports whether the operation reverted.
func (o *OperationRecord) Reverted() bool {
	return o.Status == OpStatusReverted
}
