// Package evm talks to an Ethereum node over JSON-RPC: HTTP for reads and a
// websocket for new block heads.
package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Caller is the read-only RPC surface contract bindings need.
type Caller interface {
	// CallContract runs eth_call against to at block (nil for latest).
	CallContract(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error)

	// BlockNumber returns the node's latest block number.
	BlockNumber(ctx context.Context) (uint64, error)
}
