package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/native/lending/fixedpoint"
)

// updateState accrues interest on r up to now. It must run before any balance
// of the reserve is read or changed within an operation. Zero elapsed time is
// a no-op.
func (e *Engine) updateState(r *Reserve, now uint64) error {
	s := &r.State
	if now <= s.LastUpdateTimestamp {
		return nil
	}
	elapsed := now - s.LastUpdateTimestamp

	if !s.CurrentLiquidityRate.IsZero() {
		factor, err := fixedpoint.LinearInterest(s.CurrentLiquidityRate, elapsed)
		if err != nil {
			return classify(err, r.Asset, common.Address{})
		}
		next, err := fixedpoint.RayMul(factor, s.LiquidityIndex)
		if err != nil {
			return classify(err, r.Asset, common.Address{})
		}
		s.LiquidityIndex = next
	}

	prevBorrowIndex := fixedpoint.Clone(s.VariableBorrowIndex)
	if !s.TotalScaledVariableDebt.IsZero() {
		factor, err := fixedpoint.LinearInterest(s.CurrentVariableBorrowRate, elapsed)
		if err != nil {
			return classify(err, r.Asset, common.Address{})
		}
		next, err := fixedpoint.RayMul(factor, s.VariableBorrowIndex)
		if err != nil {
			return classify(err, r.Asset, common.Address{})
		}
		s.VariableBorrowIndex = next
	}

	if err := accrueToTreasury(r, prevBorrowIndex); err != nil {
		return classify(err, r.Asset, common.Address{})
	}
	s.LastUpdateTimestamp = now
	return nil
}

// accrueToTreasury credits the reserve-factor share of the debt interest
// accrued since prevBorrowIndex, scaled by the current liquidity index.
func accrueToTreasury(r *Reserve, prevBorrowIndex *uint256.Int) error {
	s := &r.State
	factor := r.Config.ReserveFactor()
	if factor == 0 || s.TotalScaledVariableDebt.IsZero() || !s.VariableBorrowIndex.Gt(prevBorrowIndex) {
		return nil
	}
	prevDebt, err := fixedpoint.RayMul(s.TotalScaledVariableDebt, prevBorrowIndex)
	if err != nil {
		return err
	}
	currDebt, err := fixedpoint.RayMul(s.TotalScaledVariableDebt, s.VariableBorrowIndex)
	if err != nil {
		return err
	}
	accrued := fixedpoint.SubFloor(currDebt, prevDebt)
	share, err := fixedpoint.PercentMul(accrued, factor)
	if err != nil || share.IsZero() {
		return err
	}
	scaled, err := fixedpoint.RayDiv(share, s.LiquidityIndex)
	if err != nil {
		return err
	}
	s.AccruedToTreasury, err = fixedpoint.Add(s.AccruedToTreasury, scaled)
	return err
}

// updateInterestRates recomputes the reserve rates from its current cash and
// debt. Unique reserves carry no rates.
func (e *Engine) updateInterestRates(r *Reserve) error {
	if r.IsUnique() {
		return nil
	}
	strategy, ok := e.rateStrategies[r.InterestRateStrategy]
	if !ok {
		return fail(ErrInterestRateStrategyUnknown, r.Asset, common.Address{})
	}
	totalDebt, err := fixedpoint.RayMul(r.State.TotalScaledVariableDebt, r.State.VariableBorrowIndex)
	if err != nil {
		return classify(err, r.Asset, common.Address{})
	}
	liquidityRate, borrowRate, err := strategy.CalculateRates(r.State.AvailableLiquidity, totalDebt, r.Config.ReserveFactor())
	if err != nil {
		return classify(err, r.Asset, common.Address{})
	}
	r.State.CurrentLiquidityRate = liquidityRate
	r.State.CurrentVariableBorrowRate = borrowRate
	return nil
}

// normalizedIncome is the liquidity index r would have at now, without
// mutating it.
func normalizedIncome(r *Reserve, now uint64) (*uint256.Int, error) {
	s := r.State
	if now <= s.LastUpdateTimestamp || s.CurrentLiquidityRate.IsZero() {
		return fixedpoint.Clone(s.LiquidityIndex), nil
	}
	factor, err := fixedpoint.LinearInterest(s.CurrentLiquidityRate, now-s.LastUpdateTimestamp)
	if err != nil {
		return nil, err
	}
	return fixedpoint.RayMul(factor, s.LiquidityIndex)
}

// normalizedDebt is the variable borrow index r would have at now.
func normalizedDebt(r *Reserve, now uint64) (*uint256.Int, error) {
	s := r.State
	if now <= s.LastUpdateTimestamp || s.TotalScaledVariableDebt.IsZero() || s.CurrentVariableBorrowRate.IsZero() {
		return fixedpoint.Clone(s.VariableBorrowIndex), nil
	}
	factor, err := fixedpoint.LinearInterest(s.CurrentVariableBorrowRate, now-s.LastUpdateTimestamp)
	if err != nil {
		return nil, err
	}
	return fixedpoint.RayMul(factor, s.VariableBorrowIndex)
}

// finalizeReserve recomputes rates, stages the reserve and reports its new
// indices.
func (e *Engine) finalizeReserve(op *operation, r *Reserve) error {
	if err := e.updateInterestRates(r); err != nil {
		return err
	}
	op.tx.putReserve(r)
	if !r.IsUnique() {
		op.events.Emit(events.LendingReserveDataUpdated{
			Asset:               r.Asset,
			LiquidityRate:       fixedpoint.Clone(r.State.CurrentLiquidityRate),
			VariableBorrowRate:  fixedpoint.Clone(r.State.CurrentVariableBorrowRate),
			LiquidityIndex:      fixedpoint.Clone(r.State.LiquidityIndex),
			VariableBorrowIndex: fixedpoint.Clone(r.State.VariableBorrowIndex),
		})
	}
	return nil
}

// balanceOf converts a scaled amount to underlying units at index.
func balanceOf(scaled, index *uint256.Int) (*uint256.Int, error) {
	return fixedpoint.RayMul(scaled, index)
}

// scaledOf converts an underlying amount to scaled units at index.
func scaledOf(amount, index *uint256.Int) (*uint256.Int, error) {
	return fixedpoint.RayDiv(amount, index)
}

// GetReserve returns a read-only view of a reserve with indices projected to
// the current time.
func (e *Engine) GetReserve(asset common.Address) (*ReserveData, error) {
	op, err := e.begin("get_reserve", false)
	if err != nil {
		return nil, err
	}
	r, err := op.tx.reserve(asset)
	if err != nil {
		return nil, classify(err, asset, common.Address{})
	}
	if r == nil {
		return nil, fail(ErrReserveNotListed, asset, common.Address{})
	}
	income, err := normalizedIncome(r, op.now)
	if err != nil {
		return nil, classify(err, asset, common.Address{})
	}
	debtIndex, err := normalizedDebt(r, op.now)
	if err != nil {
		return nil, classify(err, asset, common.Address{})
	}
	data := &ReserveData{
		Reserve:          r.Clone(),
		NormalizedIncome: income,
		NormalizedDebt:   debtIndex,
	}
	if r.IsUnique() {
		data.TotalSupply = fixedpoint.Clone(r.State.TotalScaledSupply)
		data.TotalVariableDebt = fixedpoint.Zero()
		data.AccruedToTreasury = fixedpoint.Zero()
		return data, nil
	}
	if data.TotalSupply, err = balanceOf(r.State.TotalScaledSupply, income); err != nil {
		return nil, classify(err, asset, common.Address{})
	}
	if data.TotalVariableDebt, err = balanceOf(r.State.TotalScaledVariableDebt, debtIndex); err != nil {
		return nil, classify(err, asset, common.Address{})
	}
	if data.AccruedToTreasury, err = balanceOf(r.State.AccruedToTreasury, income); err != nil {
		return nil, classify(err, asset, common.Address{})
	}
	return data, nil
}

// GetReservesList returns the listed reserve assets indexed by reserve id.
func (e *Engine) GetReservesList() ([]common.Address, error) {
	if e.state == nil {
		return nil, fail(ErrStorage, common.Address{}, common.Address{})
	}
	list, err := e.state.GetReservesList()
	if err != nil {
		return nil, classify(err, common.Address{}, common.Address{})
	}
	return append([]common.Address(nil), list...), nil
}

// MintToTreasury converts the accrued reserve-factor share of each asset into
// a supply position of the treasury.
func (e *Engine) MintToTreasury(assets []common.Address) error {
	op, err := e.begin("mint_to_treasury", true)
	if err != nil {
		return err
	}
	treasury, err := e.treasury(common.Address{}, common.Address{})
	if err != nil {
		return e.rejected(op, err)
	}
	for _, asset := range assets {
		r, err := op.tx.reserve(asset)
		if err != nil {
			return e.rejected(op, classify(err, asset, common.Address{}))
		}
		if r == nil || !r.Config.Active() || r.IsUnique() {
			continue
		}
		if err := e.updateState(r, op.now); err != nil {
			return e.rejected(op, err)
		}
		accrued := r.State.AccruedToTreasury
		if accrued.IsZero() {
			op.tx.putReserve(r)
			continue
		}
		amount, err := balanceOf(accrued, r.State.LiquidityIndex)
		if err != nil {
			return e.rejected(op, classify(err, asset, treasury))
		}
		if err := e.creditSupply(op, r, treasury, accrued); err != nil {
			return e.rejected(op, err)
		}
		r.State.AccruedToTreasury = fixedpoint.Zero()
		op.tx.putReserve(r)
		op.events.Emit(events.LendingMintedToTreasury{Asset: asset, Amount: amount})
	}
	return e.commit(op)
}
