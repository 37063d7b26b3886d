package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/native/lending"
)

// Apply registers the market's strategies, seeds the oracle and lists every
// reserve not yet present in the engine state. Existing reserves keep their
// stored configuration. caller must be authorized for every configurator
// action.
func (m *Market) Apply(engine *lending.Engine, oracle *lending.StaticOracle, caller common.Address) error {
	params, err := m.Params()
	if err != nil {
		return err
	}
	if err := engine.SetParams(params); err != nil {
		return fmt.Errorf("liquidation: %w", err)
	}
	for i, rs := range m.RateStrategies {
		addr, s, err := rs.Build()
		if err != nil {
			return fmt.Errorf("rate_strategy[%d]: %w", i, err)
		}
		if err := engine.RegisterInterestRateStrategy(addr, s); err != nil {
			return fmt.Errorf("rate_strategy[%d]: %w", i, err)
		}
	}
	for i, as := range m.AuctionStrategies {
		addr, s, err := as.Build()
		if err != nil {
			return fmt.Errorf("auction_strategy[%d]: %w", i, err)
		}
		if err := engine.RegisterAuctionStrategy(addr, s); err != nil {
			return fmt.Errorf("auction_strategy[%d]: %w", i, err)
		}
	}
	if oracle != nil {
		for i, p := range m.Prices {
			asset, err := ParseAddress(p.Asset)
			if err != nil {
				return fmt.Errorf("price[%d]: %w", i, err)
			}
			price, err := ParseAmount(p.Price)
			if err != nil {
				return fmt.Errorf("price[%d]: %w", i, err)
			}
			if p.Floor {
				oracle.SetUniqueAssetFloorPrice(asset, price)
			} else {
				oracle.SetAssetPrice(asset, price)
			}
		}
	}

	existing, err := engine.GetReservesList()
	if err != nil {
		return err
	}
	listed := make(map[common.Address]struct{}, len(existing))
	for _, asset := range existing {
		listed[asset] = struct{}{}
	}
	for i, r := range m.Reserves {
		in, err := r.Input()
		if err != nil {
			return fmt.Errorf("reserve[%d]: %w", i, err)
		}
		if _, ok := listed[in.Asset]; ok {
			continue
		}
		if err := listReserve(engine, caller, in, r); err != nil {
			return fmt.Errorf("reserve[%d] %s: %w", i, in.Asset.Hex(), err)
		}
	}
	return nil
}

func listReserve(engine *lending.Engine, caller common.Address, in lending.ReserveInput, r Reserve) error {
	if _, err := engine.InitReserve(caller, in); err != nil {
		return err
	}
	asset := in.Asset
	if r.LiquidationThresholdBps != 0 {
		if err := engine.ConfigureReserveAsCollateral(caller, asset, r.LtvBps, r.LiquidationThresholdBps, r.LiquidationBonusBps); err != nil {
			return err
		}
	}
	steps := []func() error{
		func() error { return engine.SetReserveFactor(caller, asset, r.ReserveFactorBps) },
		func() error { return engine.SetLiquidationProtocolFee(caller, asset, r.LiquidationProtocolFeeBps) },
		func() error { return engine.SetBorrowCap(caller, asset, r.BorrowCap) },
		func() error { return engine.SetSupplyCap(caller, asset, r.SupplyCap) },
	}
	if r.BorrowingEnabled {
		steps = append(steps, func() error { return engine.SetReserveBorrowingEnabled(caller, asset, true) })
	}
	if r.SiloedBorrowing {
		steps = append(steps, func() error { return engine.SetSiloedBorrowing(caller, asset, true) })
	}
	if r.Frozen {
		steps = append(steps, func() error { return engine.SetReserveFrozen(caller, asset, true) })
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
