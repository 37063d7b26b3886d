package config

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/native/lending/reserveconfig"
	"lendcore/native/lending/userconfig"
)

const percentageFactor = 10_000

// ValidateMarket checks the market file for inconsistencies the engine would
// otherwise reject one listing at a time.
func ValidateMarket(m *Market) error {
	if m == nil {
		return errors.New("market: nil config")
	}
	params, err := m.Params()
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("liquidation: %w", err)
	}

	rates := make(map[common.Address]struct{})
	for i, rs := range m.RateStrategies {
		addr, _, err := rs.Build()
		if err != nil {
			return fmt.Errorf("rate_strategy[%d]: %w", i, err)
		}
		if _, dup := rates[addr]; dup {
			return fmt.Errorf("rate_strategy[%d]: duplicate address %s", i, addr.Hex())
		}
		rates[addr] = struct{}{}
	}
	auctions := make(map[common.Address]struct{})
	for i, as := range m.AuctionStrategies {
		addr, _, err := as.Build()
		if err != nil {
			return fmt.Errorf("auction_strategy[%d]: %w", i, err)
		}
		if _, dup := auctions[addr]; dup {
			return fmt.Errorf("auction_strategy[%d]: duplicate address %s", i, addr.Hex())
		}
		auctions[addr] = struct{}{}
	}

	if len(m.Reserves) > userconfig.MaxReserves {
		return fmt.Errorf("reserve: %d listings exceed the limit of %d", len(m.Reserves), userconfig.MaxReserves)
	}
	assets := make(map[common.Address]reserveconfig.AssetType)
	for i, r := range m.Reserves {
		if err := validateReserve(r, rates, auctions); err != nil {
			return fmt.Errorf("reserve[%d]: %w", i, err)
		}
		if r.LiquidationProtocolFeeBps != 0 && params.Treasury == (common.Address{}) {
			return fmt.Errorf("reserve[%d]: LiquidationProtocolFeeBps requires a Treasury", i)
		}
		in, _ := r.Input()
		if _, dup := assets[in.Asset]; dup {
			return fmt.Errorf("reserve[%d]: duplicate asset %s", i, in.Asset.Hex())
		}
		assets[in.Asset] = in.AssetType
	}

	for i, p := range m.Prices {
		asset, err := ParseAddress(p.Asset)
		if err != nil {
			return fmt.Errorf("price[%d]: %w", i, err)
		}
		if _, err := ParseAmount(p.Price); err != nil {
			return fmt.Errorf("price[%d]: %w", i, err)
		}
		if kind, listed := assets[asset]; listed && p.Floor != (kind == reserveconfig.AssetTypeUnique) {
			return fmt.Errorf("price[%d]: Floor must match the asset type of %s", i, asset.Hex())
		}
	}
	return nil
}

func validateReserve(r Reserve, rates, auctions map[common.Address]struct{}) error {
	in, err := r.Input()
	if err != nil {
		return err
	}
	if in.AssetType == reserveconfig.AssetTypeFungible {
		if _, ok := rates[in.InterestRateStrategy]; !ok {
			return fmt.Errorf("unknown InterestRateStrategy %q", r.InterestRateStrategy)
		}
		if in.AuctionStrategy != (common.Address{}) {
			return errors.New("AuctionStrategy is only valid for unique reserves")
		}
	} else {
		if r.Decimals != 0 {
			return errors.New("unique reserves have no decimals")
		}
		if r.BorrowingEnabled {
			return errors.New("unique reserves cannot be borrowed")
		}
		if in.AuctionStrategy != (common.Address{}) {
			if _, ok := auctions[in.AuctionStrategy]; !ok {
				return fmt.Errorf("unknown AuctionStrategy %q", r.AuctionStrategy)
			}
		}
	}
	if r.LtvBps > r.LiquidationThresholdBps {
		return fmt.Errorf("LtvBps %d above LiquidationThresholdBps %d", r.LtvBps, r.LiquidationThresholdBps)
	}
	if r.LiquidationThresholdBps > percentageFactor || r.ReserveFactorBps > percentageFactor ||
		r.LiquidationProtocolFeeBps > percentageFactor {
		return errors.New("basis point value above 10000")
	}
	if r.LiquidationThresholdBps != 0 {
		if r.LiquidationBonusBps <= percentageFactor {
			return errors.New("LiquidationBonusBps must exceed 10000 for collateral")
		}
		if r.LiquidationThresholdBps*r.LiquidationBonusBps > percentageFactor*percentageFactor {
			return errors.New("LiquidationThresholdBps times LiquidationBonusBps exceeds 100%")
		}
	} else if r.LiquidationBonusBps != 0 {
		return errors.New("LiquidationBonusBps requires a liquidation threshold")
	}
	if r.LiquidationProtocolFeeBps != 0 && r.LiquidationBonusBps <= percentageFactor {
		return errors.New("LiquidationProtocolFeeBps requires a liquidation bonus")
	}
	if r.BorrowCap > reserveconfig.MaxValidCap || r.SupplyCap > reserveconfig.MaxValidCap {
		return fmt.Errorf("cap above %d", uint64(reserveconfig.MaxValidCap))
	}
	return nil
}
