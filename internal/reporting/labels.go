package reporting

import (
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"yield-adapter-lab/internal/config"
)

// TokenInfo is the display data of one token.
type TokenInfo struct {
	Symbol   string
	Decimals int32
}

// Labels maps addresses to symbols and decimals. A nil or empty Labels
// renders raw base units and hex addresses.
type Labels struct {
	Scenario string
	tokens   map[common.Address]TokenInfo
	assets   map[string]common.Address // adapter name -> asset
}

// NewLabels creates empty labels.
func NewLabels() *Labels {
	return &Labels{
		tokens: make(map[common.Address]TokenInfo),
		assets: make(map[string]common.Address),
	}
}

// LabelsFromScenario collects the token table and adapter assets of sc.
// Unresolvable adapter assets are skipped.
func LabelsFromScenario(sc *config.Scenario) *Labels {
	l := NewLabels()
	l.Scenario = sc.Name
	for _, t := range sc.Tokens {
		if common.IsHexAddress(t.Address) {
			l.AddToken(common.HexToAddress(t.Address), t.Symbol, t.Decimals)
		}
	}
	for _, a := range sc.Adapters {
		if asset, err := sc.Address(a.Asset); err == nil {
			l.SetAsset(a.Name, asset)
		}
	}
	return l
}

// AddToken registers a token.
func (l *Labels) AddToken(token common.Address, symbol string, decimals int32) {
	l.tokens[token] = TokenInfo{Symbol: symbol, Decimals: decimals}
}

// SetAsset records the asset of an adapter.
func (l *Labels) SetAsset(adapter string, asset common.Address) {
	l.assets[adapter] = asset
}

func (l *Labels) token(addr common.Address) (TokenInfo, bool) {
	if l == nil {
		return TokenInfo{}, false
	}
	info, ok := l.tokens[addr]
	return info, ok
}

// Symbol returns the symbol of token, or its hex address.
func (l *Labels) Symbol(token common.Address) string {
	if info, ok := l.token(token); ok {
		return info.Symbol
	}
	return token.Hex()
}

// Amount formats v in whole units of token.
func (l *Labels) Amount(token common.Address, v *big.Int) string {
	info, _ := l.token(token)
	return config.FormatAmount(v, info.Decimals)
}

// Asset returns the asset of an adapter.
func (l *Labels) Asset(adapter string) (common.Address, bool) {
	if l == nil {
		return common.Address{}, false
	}
	a, ok := l.assets[adapter]
	return a, ok
}

// assetAmount formats v in whole units of the adapter's asset.
func (l *Labels) assetAmount(adapter string, v *big.Int) string {
	asset, ok := l.Asset(adapter)
	if !ok {
		return config.FormatAmount(v, 0)
	}
	return l.Amount(asset, v)
}

// rewards renders token amounts as "SYM=amount;..." sorted by symbol.
func (l *Labels) rewards(amounts map[common.Address]*big.Int) string {
	parts := make([]string, 0, len(amounts))
	for token, v := range amounts {
		parts = append(parts, l.Symbol(token)+"="+l.Amount(token, v))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}
