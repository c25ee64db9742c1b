package evm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"yield-adapter-lab/internal/domain"
)

// Header is the subset of a block header read from eth_getBlockByNumber
// and newHeads notifications.
type Header struct {
	Number    hexutil.Uint64 `json:"number"`
	Hash      common.Hash    `json:"hash"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

// Head converts the header to a keeper head.
func (h *Header) Head() domain.Head {
	return domain.Head{
		Number:    uint64(h.Number),
		Hash:      h.Hash,
		Timestamp: int64(h.Timestamp),
	}
}
