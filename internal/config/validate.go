package config

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"yield-adapter-lab/internal/domain"
)

// maxDecimals bounds token decimals so whole-unit amounts fit in uint256.
const maxDecimals = 36

var knownActions = map[string]bool{
	ActionDeposit:                       true,
	ActionWithdraw:                      true,
	ActionAccrue:                        true,
	ActionDonate:                        true,
	ActionHarvest:                       true,
	ActionClaim:                         true,
	ActionKick:                          true,
	ActionSetMinAmount:                  true,
	ActionAddToken:                      true,
	ActionRemoveToken:                   true,
	ActionSetTradeFactory:               true,
	ActionRemoveTradeFactoryPermissions: true,
	ActionSetAuction:                    true,
	ActionMine:                          true,
	ActionShutdown:                      true,
	ActionEmergencyWithdraw:             true,
	ActionSetWithdrawLimit:              true,
}

// Validate checks every reference and amount in the scenario and returns all
// problems found, joined.
func (s *Scenario) Validate() error {
	s.index()
	v := &validator{s: s}

	if s.Name == "" {
		v.add("name must be set")
	}
	if s.Chain.BlockTime < 0 {
		v.add("chain.block_time must not be negative")
	}

	v.accountsAndTokens()
	v.collaborators()
	adapters := v.adapters()
	v.steps(adapters)

	return errors.Join(v.errs...)
}

type validator struct {
	s    *Scenario
	errs []error
}

func (v *validator) add(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) ref(field, ref string) {
	if ref == "" {
		v.add("%s must be set", field)
		return
	}
	if _, err := v.s.Address(ref); err != nil {
		v.add("%s: %w", field, err)
	}
}

func (v *validator) optionalRef(field, ref string) {
	if ref != "" {
		v.ref(field, ref)
	}
}

func (v *validator) refs(field string, refs []string) {
	for i, ref := range refs {
		v.ref(fmt.Sprintf("%s[%d]", field, i), ref)
	}
}

func (v *validator) amount(field, value, token string) {
	if value == "" {
		v.add("%s must be set", field)
		return
	}
	var decimals int32
	if token != "" {
		if addr, err := v.s.Address(token); err == nil {
			decimals = v.s.Decimals(addr)
		}
	}
	if _, err := ParseAmount(value, decimals); err != nil {
		v.add("%s: %w", field, err)
	}
}

func (v *validator) accountsAndTokens() {
	s := v.s
	for name, hex := range s.Accounts {
		if !common.IsHexAddress(hex) {
			v.add("accounts.%s: invalid address %q", name, hex)
		}
	}

	symbols := make(map[string]bool)
	addrs := make(map[common.Address]string)
	for i, t := range s.Tokens {
		field := fmt.Sprintf("tokens[%d]", i)
		if t.Symbol == "" {
			v.add("%s.symbol must be set", field)
		}
		if symbols[t.Symbol] {
			v.add("%s: duplicate symbol %q", field, t.Symbol)
		}
		symbols[t.Symbol] = true
		if _, clash := s.Accounts[t.Symbol]; clash {
			v.add("%s: symbol %q is also an account name", field, t.Symbol)
		}
		if !common.IsHexAddress(t.Address) {
			v.add("%s: invalid address %q", field, t.Address)
		} else {
			addr := common.HexToAddress(t.Address)
			if prev, dup := addrs[addr]; dup {
				v.add("%s: address already used by %s", field, prev)
			}
			addrs[addr] = t.Symbol
		}
		if t.Decimals < 0 || t.Decimals > maxDecimals {
			v.add("%s.decimals must be within [0, %d]", field, maxDecimals)
		}
	}

	for i, b := range s.Balances {
		field := fmt.Sprintf("balances[%d]", i)
		v.ref(field+".account", b.Account)
		v.ref(field+".token", b.Token)
		v.amount(field+".amount", b.Amount, b.Token)
	}
}

func (v *validator) collaborators() {
	s := v.s
	if s.Convex != nil {
		v.ref("convex.booster", s.Convex.Booster)
		for i, p := range s.Convex.Pools {
			field := fmt.Sprintf("convex.pools[%d]", i)
			v.ref(field+".lp_token", p.LPToken)
			v.ref(field+".deposit_token", p.DepositToken)
			v.ref(field+".rewards", p.Rewards)
			v.ref(field+".reward_token", p.RewardToken)
			v.optionalRef(field+".gauge", p.Gauge)
			v.refs(field+".extra_rewards", p.ExtraRewards)
		}
	}
	if s.Curve != nil {
		v.ref("curve.minter", s.Curve.Minter)
		v.ref("curve.token", s.Curve.Token)
		for i, g := range s.Curve.Gauges {
			field := fmt.Sprintf("curve.gauges[%d]", i)
			v.ref(field+".address", g.Address)
			v.ref(field+".lp_token", g.LPToken)
			v.refs(field+".reward_tokens", g.RewardTokens)
		}
	}
	for i, a := range s.Auctions {
		field := fmt.Sprintf("auctions[%d]", i)
		v.ref(field+".address", a.Address)
		v.ref(field+".want", a.Want)
	}
	v.refs("trade_factories", s.TradeFactories)
}

func (v *validator) adapters() map[string]AdapterSpec {
	s := v.s
	byName := make(map[string]AdapterSpec, len(s.Adapters))
	if len(s.Adapters) == 0 {
		v.add("at least one adapter is required")
	}

	for i, a := range s.Adapters {
		field := fmt.Sprintf("adapters[%d]", i)
		if a.Name == "" {
			v.add("%s.name must be set", field)
		} else if _, dup := byName[a.Name]; dup {
			v.add("%s: duplicate adapter name %q", field, a.Name)
		}
		byName[a.Name] = a

		v.ref(field+".address", a.Address)
		v.ref(field+".asset", a.Asset)
		v.ref(field+".management", a.Management)
		v.optionalRef(field+".emergency_admin", a.EmergencyAdmin)
		v.optionalRef(field+".keeper", a.Keeper)
		v.optionalRef(field+".trade_factory", a.TradeFactory)
		v.optionalRef(field+".auction", a.Auction)
		v.refs(field+".track_tokens", a.TrackTokens)

		switch domain.AdapterKind(a.Kind) {
		case domain.AdapterKindConvex:
			if a.PoolID == nil {
				v.add("%s.pool_id must be set for CONVEX", field)
			}
			if a.Booster == "" && s.Convex == nil {
				v.add("%s.booster must be set when there is no convex section", field)
			}
			v.optionalRef(field+".booster", a.Booster)
		case domain.AdapterKindCurve:
			v.ref(field+".gauge", a.Gauge)
			v.optionalRef(field+".minter", a.Minter)
			if a.Auction != "" {
				v.add("%s.auction is not supported for CURVE", field)
			}
		default:
			v.add("%s: unknown kind %q", field, a.Kind)
		}
	}
	return byName
}

func (v *validator) steps(adapters map[string]AdapterSpec) {
	for i, st := range v.s.Steps {
		field := fmt.Sprintf("steps[%d] (%s)", i, st.Action)
		if !knownActions[st.Action] {
			v.add("steps[%d]: unknown action %q", i, st.Action)
			continue
		}

		if st.Action == ActionMine {
			if st.Blocks == 0 {
				v.add("%s.blocks must be positive", field)
			}
			continue
		}

		a, ok := adapters[st.Adapter]
		if !ok {
			v.add("%s: unknown adapter %q", field, st.Adapter)
			continue
		}
		v.optionalRef(field+".caller", st.Caller)

		switch st.Action {
		case ActionDeposit, ActionWithdraw:
			v.ref(field+".account", st.Account)
			v.amount(field+".amount", st.Amount, a.Asset)
		case ActionAccrue:
			v.ref(field+".token", st.Token)
			v.amount(field+".amount", st.Amount, st.Token)
		case ActionDonate, ActionEmergencyWithdraw:
			v.amount(field+".amount", st.Amount, a.Asset)
		case ActionKick, ActionRemoveToken:
			v.ref(field+".token", st.Token)
		case ActionSetMinAmount:
			v.ref(field+".token", st.Token)
			v.amount(field+".amount", st.Amount, st.Token)
		case ActionAddToken:
			if st.Token == "" && len(st.Tokens) == 0 {
				v.add("%s: token or tokens must be set", field)
			}
			v.optionalRef(field+".token", st.Token)
			v.refs(field+".tokens", st.Tokens)
		case ActionSetTradeFactory, ActionSetAuction:
			v.ref(field+".target", st.Target)
		case ActionSetWithdrawLimit:
			if st.Amount != "" {
				v.amount(field+".amount", st.Amount, a.Asset)
			}
		}
	}
}
