// Package onchain implements the read half of the protocol interfaces against
// a live node. State-changing calls return protocol.ErrReadOnly.
package onchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"yield-adapter-lab/internal/evm"
)

const boosterABI = `[
	{"type":"function","name":"poolInfo","stateMutability":"view",
	 "inputs":[{"name":"","type":"uint256"}],
	 "outputs":[
		{"name":"lptoken","type":"address"},
		{"name":"token","type":"address"},
		{"name":"gauge","type":"address"},
		{"name":"crvRewards","type":"address"},
		{"name":"stash","type":"address"},
		{"name":"shutdown","type":"bool"}]},
	{"type":"function","name":"poolLength","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const rewardPoolABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"rewardToken","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"extraRewardsLength","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const gaugeABI = `[
	{"type":"function","name":"lp_token","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"arg0","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"reward_count","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"reward_tokens","stateMutability":"view",
	 "inputs":[{"name":"arg0","type":"uint256"}],"outputs":[{"name":"","type":"address"}]}
]`

const minterABI = `[
	{"type":"function","name":"token","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

// Parsed ABIs, exported for tests and fakes.
var (
	BoosterABI    = mustParse(boosterABI)
	RewardPoolABI = mustParse(rewardPoolABI)
	GaugeABI      = mustParse(gaugeABI)
	MinterABI     = mustParse(minterABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// contract is one ABI bound to an address.
type contract struct {
	caller  evm.Caller
	address common.Address
	abi     abi.ABI
}

// call packs method, runs eth_call at latest and unpacks the outputs.
func (c contract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.caller.CallContract(ctx, c.address, data, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, c.address.Hex(), err)
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s on %s returned no data", method, c.address.Hex())
	}
	return values, nil
}

func (c contract) callAddress(ctx context.Context, method string, args ...any) (common.Address, error) {
	values, err := c.call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected output %T", method, values[0])
	}
	return addr, nil
}

func (c contract) callUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	values, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output %T", method, values[0])
	}
	return v, nil
}

func (c contract) callUint64(ctx context.Context, method string, args ...any) (uint64, error) {
	v, err := c.callUint(ctx, method, args...)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%s: %s overflows uint64", method, v)
	}
	return v.Uint64(), nil
}
