// Package config loads simulation scenarios from YAML.
//
// A scenario names every account, token and collaborator it uses, then lists
// the steps to run against the adapters. References inside a scenario are
// either a declared name (account, token symbol) or a 0x address.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Step actions.
const (
	ActionDeposit                       = "deposit"
	ActionWithdraw                      = "withdraw"
	ActionAccrue                        = "accrue"
	ActionDonate                        = "donate"
	ActionHarvest                       = "harvest"
	ActionClaim                         = "claim"
	ActionKick                          = "kick"
	ActionSetMinAmount                  = "set_min_amount"
	ActionAddToken                      = "add_token"
	ActionRemoveToken                   = "remove_token"
	ActionSetTradeFactory               = "set_trade_factory"
	ActionRemoveTradeFactoryPermissions = "remove_trade_factory_permissions"
	ActionSetAuction                    = "set_auction"
	ActionMine                          = "mine"
	ActionShutdown                      = "shutdown"
	ActionEmergencyWithdraw             = "emergency_withdraw"
	ActionSetWithdrawLimit              = "set_withdraw_limit"
)

// Scenario is one simulation file.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	Chain ChainSection `yaml:"chain,omitempty"`

	// Accounts maps a name to a 0x address.
	Accounts map[string]string `yaml:"accounts"`
	Tokens   []TokenSpec       `yaml:"tokens"`
	Balances []BalanceSpec     `yaml:"balances,omitempty"`

	Convex         *ConvexSection `yaml:"convex,omitempty"`
	Curve          *CurveSection  `yaml:"curve,omitempty"`
	Auctions       []AuctionSpec  `yaml:"auctions,omitempty"`
	TradeFactories []string       `yaml:"trade_factories,omitempty"`

	Adapters []AdapterSpec `yaml:"adapters"`
	Steps    []Step        `yaml:"steps"`

	names    map[string]common.Address // accounts and token symbols
	decimals map[common.Address]int32
}

// ChainSection overrides the simulated clock. Zero values use the chain defaults.
type ChainSection struct {
	StartBlock     uint64 `yaml:"start_block,omitempty"`
	StartTimestamp int64  `yaml:"start_timestamp,omitempty"`
	BlockTime      int64  `yaml:"block_time,omitempty"`
}

// TokenSpec declares an ERC20 token.
type TokenSpec struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
}

// BalanceSpec mints an initial balance. Amount is in whole token units.
type BalanceSpec struct {
	Account string `yaml:"account"`
	Token   string `yaml:"token"`
	Amount  string `yaml:"amount"`
}

// ConvexSection describes a booster and its pools. Pool ids follow list order.
type ConvexSection struct {
	Booster string           `yaml:"booster"`
	Pools   []ConvexPoolSpec `yaml:"pools"`
}

// ConvexPoolSpec is one booster pool with its BaseRewardPool.
type ConvexPoolSpec struct {
	LPToken      string   `yaml:"lp_token"`
	DepositToken string   `yaml:"deposit_token"`
	Gauge        string   `yaml:"gauge,omitempty"`
	Rewards      string   `yaml:"rewards"`
	RewardToken  string   `yaml:"reward_token"`
	ExtraRewards []string `yaml:"extra_rewards,omitempty"`
}

// CurveSection describes the CRV minter and the gauges it mints for.
type CurveSection struct {
	Minter string      `yaml:"minter"`
	Token  string      `yaml:"token"`
	Gauges []GaugeSpec `yaml:"gauges"`
}

// GaugeSpec is one liquidity gauge.
type GaugeSpec struct {
	Address      string   `yaml:"address"`
	LPToken      string   `yaml:"lp_token"`
	RewardTokens []string `yaml:"reward_tokens,omitempty"`
}

// AuctionSpec is one reward auction.
type AuctionSpec struct {
	Address string `yaml:"address"`
	Want    string `yaml:"want"`
}

// AdapterSpec configures one adapter. Role fields name accounts.
type AdapterSpec struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Address string `yaml:"address"`
	Asset   string `yaml:"asset"`

	Booster string  `yaml:"booster,omitempty"` // defaults to convex.booster
	PoolID  *uint64 `yaml:"pool_id,omitempty"`

	Gauge  string `yaml:"gauge,omitempty"`
	Minter string `yaml:"minter,omitempty"` // defaults to curve.minter

	Management     string `yaml:"management"`
	EmergencyAdmin string `yaml:"emergency_admin"`
	Keeper         string `yaml:"keeper"`

	TradeFactory string `yaml:"trade_factory,omitempty"`
	Auction      string `yaml:"auction,omitempty"`

	// TrackTokens are reported as reward deltas in addition to the adapter's reward tokens.
	TrackTokens []string `yaml:"track_tokens,omitempty"`
}

// Step is one scripted transaction or clock change.
type Step struct {
	Action  string `yaml:"action"`
	Adapter string `yaml:"adapter,omitempty"`

	// Caller defaults to the role the action needs.
	Caller string `yaml:"caller,omitempty"`
	// Account is the depositor, the withdrawal receiver or the accrual holder.
	Account string `yaml:"account,omitempty"`

	Token  string   `yaml:"token,omitempty"`
	Tokens []string `yaml:"tokens,omitempty"`
	// Amount is in whole units of the token the step moves; "max" is 2^256-1.
	Amount string `yaml:"amount,omitempty"`
	Target string `yaml:"target,omitempty"`
	Blocks uint64 `yaml:"blocks,omitempty"`

	ExpectRevert bool `yaml:"expect_revert,omitempty"`
}

// Load reads, parses and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario document. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("parse scenario: empty document")
		}
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
