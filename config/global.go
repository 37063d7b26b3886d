package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending"
	"lendcore/native/lending/auction"
	"lendcore/native/lending/interest"
	"lendcore/native/lending/reserveconfig"
)

const (
	DefaultCloseFactorHFThreshold      = "0.95"
	DefaultAuctionRecoveryHealthFactor = "1.5"

	rayDecimals = 27
)

// ParseAddress accepts a 0x-prefixed hex address.
func ParseAddress(s string) (common.Address, error) {
	trimmed := strings.TrimSpace(s)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(trimmed), nil
}

func parseOptionalAddress(s string) (common.Address, error) {
	if strings.TrimSpace(s) == "" {
		return common.Address{}, nil
	}
	return ParseAddress(s)
}

// ParseRay converts a decimal string with at most 27 fractional digits into
// a ray value.
func ParseRay(s string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("empty decimal")
	}
	whole, frac, _ := strings.Cut(trimmed, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > rayDecimals {
		return nil, fmt.Errorf("decimal %q exceeds %d fractional digits", s, rayDecimals)
	}
	for _, part := range []string{whole, frac} {
		for _, r := range part {
			if r < '0' || r > '9' {
				return nil, fmt.Errorf("invalid decimal %q", s)
			}
		}
	}
	digits := strings.TrimLeft(whole+frac+strings.Repeat("0", rayDecimals-len(frac)), "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("decimal %q: %w", s, err)
	}
	return v, nil
}

// ParseAmount parses a base-10 integer.
func ParseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// Params converts the liquidation section into engine parameters.
func (m *Market) Params() (lending.Params, error) {
	var p lending.Params
	treasury, err := parseOptionalAddress(m.Treasury)
	if err != nil {
		return p, fmt.Errorf("Treasury: %w", err)
	}
	p.Treasury = treasury
	if p.CloseFactorHFThreshold, err = ParseRay(m.Liquidation.CloseFactorHFThreshold); err != nil {
		return p, fmt.Errorf("liquidation.CloseFactorHFThreshold: %w", err)
	}
	if p.AuctionRecoveryHealthFactor, err = ParseRay(m.Liquidation.AuctionRecoveryHealthFactor); err != nil {
		return p, fmt.Errorf("liquidation.AuctionRecoveryHealthFactor: %w", err)
	}
	return p, nil
}

// Build returns the address and validated interest strategy.
func (r RateStrategy) Build() (common.Address, *interest.Strategy, error) {
	addr, err := ParseAddress(r.Address)
	if err != nil {
		return common.Address{}, nil, err
	}
	s, err := interest.NewStrategyBps(r.OptimalUsageBps, r.BaseRateBps, r.Slope1Bps, r.Slope2Bps)
	if err != nil {
		return common.Address{}, nil, err
	}
	return addr, s, nil
}

// Build returns the address and validated auction strategy.
func (a AuctionStrategy) Build() (common.Address, *auction.Strategy, error) {
	addr, err := ParseAddress(a.Address)
	if err != nil {
		return common.Address{}, nil, err
	}
	var p auction.Params
	fields := []struct {
		name string
		src  string
		dst  **uint256.Int
	}{
		{"MaxPriceMultiplier", a.MaxPriceMultiplier, &p.MaxPriceMultiplier},
		{"MinExpPriceMultiplier", a.MinExpPriceMultiplier, &p.MinExpPriceMultiplier},
		{"MinPriceMultiplier", a.MinPriceMultiplier, &p.MinPriceMultiplier},
		{"StepExp", a.StepExp, &p.StepExp},
	}
	for _, f := range fields {
		v, err := ParseRay(f.src)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	if strings.TrimSpace(a.StepLinear) != "" {
		if p.StepLinear, err = ParseRay(a.StepLinear); err != nil {
			return common.Address{}, nil, fmt.Errorf("StepLinear: %w", err)
		}
	}
	p.TickLength = a.TickLength
	s, err := auction.NewStrategy(p)
	if err != nil {
		return common.Address{}, nil, err
	}
	return addr, s, nil
}

// Input converts the listing entry into the configurator input.
func (r Reserve) Input() (lending.ReserveInput, error) {
	var in lending.ReserveInput
	asset, err := ParseAddress(r.Asset)
	if err != nil {
		return in, err
	}
	assetType, err := reserveconfig.ParseAssetType(strings.ToLower(strings.TrimSpace(r.Type)))
	if err != nil {
		return in, err
	}
	rate, err := parseOptionalAddress(r.InterestRateStrategy)
	if err != nil {
		return in, fmt.Errorf("InterestRateStrategy: %w", err)
	}
	auctionAddr, err := parseOptionalAddress(r.AuctionStrategy)
	if err != nil {
		return in, fmt.Errorf("AuctionStrategy: %w", err)
	}
	return lending.ReserveInput{
		Asset:                asset,
		AssetType:            assetType,
		Decimals:             r.Decimals,
		InterestRateStrategy: rate,
		AuctionStrategy:      auctionAddr,
	}, nil
}
