package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"yield-adapter-lab/internal/chain"
)

// AmountMax is the keyword for an unbounded amount.
const AmountMax = "max"

var (
	ErrUnknownReference = errors.New("unknown reference")
	ErrInvalidAmount    = errors.New("invalid amount")
)

// index builds the name tables. Later entries do not override earlier ones;
// duplicates are reported by Validate.
func (s *Scenario) index() {
	s.names = make(map[string]common.Address, len(s.Accounts)+len(s.Tokens))
	s.decimals = make(map[common.Address]int32, len(s.Tokens))
	for name, hex := range s.Accounts {
		if common.IsHexAddress(hex) {
			s.names[name] = common.HexToAddress(hex)
		}
	}
	for _, t := range s.Tokens {
		if !common.IsHexAddress(t.Address) {
			continue
		}
		addr := common.HexToAddress(t.Address)
		if _, ok := s.names[t.Symbol]; !ok {
			s.names[t.Symbol] = addr
		}
		s.decimals[addr] = t.Decimals
	}
}

// Address resolves an account name, token symbol or 0x address.
func (s *Scenario) Address(ref string) (common.Address, error) {
	if s.names == nil {
		s.index()
	}
	if addr, ok := s.names[ref]; ok {
		return addr, nil
	}
	if strings.HasPrefix(ref, "0x") && common.IsHexAddress(ref) {
		return common.HexToAddress(ref), nil
	}
	return common.Address{}, fmt.Errorf("%w: %q", ErrUnknownReference, ref)
}

// Addresses resolves every reference in refs.
func (s *Scenario) Addresses(refs []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(refs))
	for _, ref := range refs {
		addr, err := s.Address(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// Decimals returns the declared decimals of a token. Undeclared tokens have 0.
func (s *Scenario) Decimals(token common.Address) int32 {
	if s.decimals == nil {
		s.index()
	}
	return s.decimals[token]
}

// Amount parses a whole-unit amount of token into base units.
func (s *Scenario) Amount(value string, token common.Address) (*big.Int, error) {
	return ParseAmount(value, s.Decimals(token))
}

// ParseAmount converts a decimal string in whole token units to base units.
// "max" yields 2^256-1. Negative values and sub-unit precision are rejected.
func ParseAmount(value string, decimals int32) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == AmountMax {
		return new(big.Int).Set(chain.MaxUint256), nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidAmount, value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w %q: negative", ErrInvalidAmount, value)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w %q: more than %d decimals", ErrInvalidAmount, value, decimals)
	}
	v := scaled.BigInt()
	if v.Cmp(chain.MaxUint256) > 0 {
		return nil, fmt.Errorf("%w %q: exceeds uint256", ErrInvalidAmount, value)
	}
	return v, nil
}

// FormatAmount renders base units as whole token units.
func FormatAmount(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}
