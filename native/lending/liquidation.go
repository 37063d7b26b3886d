package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/native/lending/fixedpoint"
	"lendcore/native/lending/reserveconfig"
)

const (
	// DefaultLiquidationCloseFactor caps a liquidation at half the debt while
	// the health factor is at or above the close factor threshold.
	DefaultLiquidationCloseFactor uint64 = 5_000
	// MaxLiquidationCloseFactor applies below the threshold.
	MaxLiquidationCloseFactor uint64 = 10_000
)

// LiquidationResult describes an executed fungible liquidation.
type LiquidationResult struct {
	DebtRepaid       *uint256.Int
	CollateralSeized *uint256.Int
	ProtocolFee      *uint256.Int
	// Account is the snapshot of the liquidated account afterwards.
	Account *AccountData
}

// closeFactor returns the share of debt (basis points) a liquidator may repay
// for the given health factor.
func (e *Engine) closeFactor(healthFactor *uint256.Int) uint64 {
	if healthFactor.Lt(e.params.CloseFactorHFThreshold) {
		return MaxLiquidationCloseFactor
	}
	return DefaultLiquidationCloseFactor
}

// collateralToLiquidate converts debtToCover into collateral units at the
// liquidation bonus. When the user's collateral does not cover it, the whole
// balance is taken and the debt reduced proportionally. The protocol fee is
// carved out of the bonus portion.
func collateralToLiquidate(collateral, debt *Reserve, userCollateral, debtToCover, collateralPrice, debtPrice *uint256.Int) (seized, debtNeeded, fee *uint256.Int, err error) {
	bonus := collateral.Config.LiquidationBonus()
	collateralUnit := collateral.Unit()
	debtUnit := debt.Unit()

	numerator, overflow := new(uint256.Int).MulOverflow(debtPrice, debtToCover)
	if overflow {
		return nil, nil, nil, fixedpoint.ErrOverflow
	}
	denominator, overflow := new(uint256.Int).MulOverflow(collateralPrice, debtUnit)
	if overflow {
		return nil, nil, nil, fixedpoint.ErrOverflow
	}
	base, err := fixedpoint.MulDiv(numerator, collateralUnit, denominator)
	if err != nil {
		return nil, nil, nil, err
	}
	maxCollateral, err := fixedpoint.PercentMul(base, bonus)
	if err != nil {
		return nil, nil, nil, err
	}

	if maxCollateral.Gt(userCollateral) {
		seized = fixedpoint.Clone(userCollateral)
		valueNum, overflow := new(uint256.Int).MulOverflow(collateralPrice, seized)
		if overflow {
			return nil, nil, nil, fixedpoint.ErrOverflow
		}
		valueDen, overflow := new(uint256.Int).MulOverflow(debtPrice, collateralUnit)
		if overflow {
			return nil, nil, nil, fixedpoint.ErrOverflow
		}
		debtEquivalent, err := fixedpoint.MulDiv(valueNum, debtUnit, valueDen)
		if err != nil {
			return nil, nil, nil, err
		}
		if debtNeeded, err = fixedpoint.PercentDiv(debtEquivalent, bonus); err != nil {
			return nil, nil, nil, err
		}
	} else {
		seized = maxCollateral
		debtNeeded = fixedpoint.Clone(debtToCover)
	}

	fee = fixedpoint.Zero()
	if protocolFee := collateral.Config.LiquidationProtocolFee(); protocolFee != 0 {
		withoutBonus, err := fixedpoint.PercentDiv(seized, bonus)
		if err != nil {
			return nil, nil, nil, err
		}
		bonusPortion := fixedpoint.SubFloor(seized, withoutBonus)
		if fee, err = fixedpoint.PercentMul(bonusPortion, protocolFee); err != nil {
			return nil, nil, nil, err
		}
		seized = new(uint256.Int).Sub(seized, fee)
	}
	return seized, debtNeeded, fee, nil
}

// LiquidationCall repays up to debtToCover of user's debt in debtAsset and
// seizes the equivalent collateral plus the liquidation bonus. When
// receiveXToken is set the liquidator takes over the supplied position
// instead of withdrawing the underlying.
func (e *Engine) LiquidationCall(liquidator, collateralAsset, debtAsset, user common.Address, debtToCover *uint256.Int, receiveXToken bool) (*LiquidationResult, error) {
	return run(e, "liquidation_call", func(op *operation) (*LiquidationResult, error) {
		if err := validateAmount(debtToCover, debtAsset, user); err != nil {
			return nil, err
		}
		collateral, err := loadReserve(op, collateralAsset, user)
		if err != nil {
			return nil, err
		}
		debt, err := loadReserve(op, debtAsset, user)
		if err != nil {
			return nil, err
		}
		for _, r := range []*Reserve{collateral, debt} {
			if err := validateUsable(r, user); err != nil {
				return nil, err
			}
		}
		if err := validateAssetType(debt, reserveconfig.AssetTypeFungible, user); err != nil {
			return nil, err
		}
		if collateral.IsUnique() {
			return nil, fail(ErrCollateralCannotBeLiquidated, collateralAsset, user)
		}

		// Accrue both reserves before any balance or price is read.
		if err := e.updateState(debt, op.now); err != nil {
			return nil, err
		}
		if collateral != debt {
			if err := e.updateState(collateral, op.now); err != nil {
				return nil, err
			}
		}

		cfg, err := op.tx.userConfig(user)
		if err != nil {
			return nil, classify(err, debtAsset, user)
		}
		before, err := e.accountData(op, user, cfg)
		if err != nil {
			return nil, err
		}
		if !before.HealthFactor.Lt(fixedpoint.Ray) {
			return nil, fail(ErrHealthFactorNotBelowThreshold, debtAsset, user)
		}
		if collateral.Config.LiquidationThreshold() == 0 || !cfg.IsUsingAsCollateral(collateral.ID) {
			return nil, fail(ErrCollateralCannotBeLiquidated, collateralAsset, user)
		}

		debtPos, err := op.tx.position(user, debtAsset)
		if err != nil {
			return nil, classify(err, debtAsset, user)
		}
		userDebt, err := balanceOf(debtPos.ScaledDebt, debt.State.VariableBorrowIndex)
		if err != nil {
			return nil, classify(err, debtAsset, user)
		}
		if userDebt.IsZero() {
			return nil, fail(ErrSpecifiedCurrencyNotBorrowedByUser, debtAsset, user)
		}
		maxLiquidatable, err := fixedpoint.PercentMul(userDebt, e.closeFactor(before.HealthFactor))
		if err != nil {
			return nil, classify(err, debtAsset, user)
		}
		actualDebtToCover := fixedpoint.Min(debtToCover, maxLiquidatable)

		collPos, err := op.tx.position(user, collateralAsset)
		if err != nil {
			return nil, classify(err, collateralAsset, user)
		}
		userCollateral, err := balanceOf(collPos.ScaledSupply, collateral.State.LiquidityIndex)
		if err != nil {
			return nil, classify(err, collateralAsset, user)
		}
		if userCollateral.IsZero() {
			return nil, fail(ErrCollateralCannotBeLiquidated, collateralAsset, user)
		}
		collateralPrice, err := op.prices.assetPrice(collateralAsset)
		if err != nil {
			return nil, err
		}
		debtPrice, err := op.prices.assetPrice(debtAsset)
		if err != nil {
			return nil, err
		}
		seized, debtNeeded, fee, err := collateralToLiquidate(collateral, debt, userCollateral, actualDebtToCover, collateralPrice, debtPrice)
		if err != nil {
			return nil, classify(err, collateralAsset, user)
		}
		if debtNeeded.IsZero() {
			return nil, fail(ErrInvalidAmount, debtAsset, user)
		}

		repaid, err := e.burnDebt(op, debt, user, debtNeeded)
		if err != nil {
			return nil, err
		}
		if debt.State.AvailableLiquidity, err = fixedpoint.Add(debt.State.AvailableLiquidity, repaid); err != nil {
			return nil, classify(err, debtAsset, user)
		}

		if err := e.seizeCollateral(op, collateral, user, liquidator, seized, fee, receiveXToken); err != nil {
			return nil, err
		}

		if err := e.finalizeReserve(op, debt); err != nil {
			return nil, err
		}
		if collateral != debt {
			if err := e.finalizeReserve(op, collateral); err != nil {
				return nil, err
			}
		}

		after, err := e.snapshot(op, user)
		if err != nil {
			return nil, err
		}
		op.events.Emit(events.LendingLiquidated{
			CollateralAsset:  collateralAsset,
			DebtAsset:        debtAsset,
			User:             user,
			Liquidator:       liquidator,
			DebtRepaid:       fixedpoint.Clone(repaid),
			CollateralSeized: fixedpoint.Clone(seized),
			ProtocolFee:      fixedpoint.Clone(fee),
			ReceiveXToken:    receiveXToken,
		})
		return &LiquidationResult{DebtRepaid: repaid, CollateralSeized: seized, ProtocolFee: fee, Account: after}, nil
	})
}

// seizeCollateral moves seized plus fee out of the user's supply. The fee
// becomes supply of the treasury; the seized part becomes supply of the
// liquidator or leaves the reserve as cash.
func (e *Engine) seizeCollateral(op *operation, r *Reserve, user, liquidator common.Address, seized, fee *uint256.Int, receiveXToken bool) error {
	index := r.State.LiquidityIndex
	pos, err := op.tx.position(user, r.Asset)
	if err != nil {
		return classify(err, r.Asset, user)
	}
	total, err := fixedpoint.Add(seized, fee)
	if err != nil {
		return classify(err, r.Asset, user)
	}
	balance, err := balanceOf(pos.ScaledSupply, index)
	if err != nil {
		return classify(err, r.Asset, user)
	}
	scaledTotal := fixedpoint.Clone(pos.ScaledSupply)
	if total.Lt(balance) {
		if scaledTotal, err = scaledOf(total, index); err != nil {
			return classify(err, r.Asset, user)
		}
		scaledTotal = fixedpoint.Min(scaledTotal, pos.ScaledSupply)
	}
	scaledFee := fixedpoint.Zero()
	if !fee.IsZero() {
		if scaledFee, err = scaledOf(fee, index); err != nil {
			return classify(err, r.Asset, user)
		}
		scaledFee = fixedpoint.Min(scaledFee, scaledTotal)
	}
	scaledSeized := new(uint256.Int).Sub(scaledTotal, scaledFee)

	if err := e.debitSupply(op, r, user, scaledTotal); err != nil {
		return err
	}
	if !scaledFee.IsZero() {
		treasury, err := e.treasury(r.Asset, user)
		if err != nil {
			return err
		}
		if err := e.creditSupply(op, r, treasury, scaledFee); err != nil {
			return err
		}
	}
	if receiveXToken {
		return e.creditSupply(op, r, liquidator, scaledSeized)
	}
	if seized.Gt(r.State.AvailableLiquidity) {
		return fail(ErrInsufficientLiquidity, r.Asset, user)
	}
	r.State.AvailableLiquidity = new(uint256.Int).Sub(r.State.AvailableLiquidity, seized)
	return nil
}
