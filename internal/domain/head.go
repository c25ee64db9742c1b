package domain

import "github.com/ethereum/go-ethereum/common"

// Head is a new block announced by a head source.
type Head struct {
	Number    uint64
	Hash      common.Hash // zero for simulated heads
	Timestamp int64       // unix seconds
}
