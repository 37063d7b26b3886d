package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/native/lending/fixedpoint"
	"lendcore/native/lending/reserveconfig"
)

// Borrow draws amount of a fungible asset against the collateral of
// onBehalfOf. The borrowed amount must be covered by ltv-weighted collateral
// and the resulting health factor must stay at or above one. There is no
// credit delegation, so caller must be onBehalfOf.
func (e *Engine) Borrow(caller, asset common.Address, amount *uint256.Int, onBehalfOf common.Address) (*Result, error) {
	return run(e, "borrow", func(op *operation) (*Result, error) {
		if caller != onBehalfOf {
			return nil, fail(ErrBorrowOnBehalfNotAllowed, asset, onBehalfOf)
		}
		if err := validateAmount(amount, asset, onBehalfOf); err != nil {
			return nil, err
		}
		r, err := loadReserve(op, asset, onBehalfOf)
		if err != nil {
			return nil, err
		}
		if err := validateOpen(r, onBehalfOf); err != nil {
			return nil, err
		}
		if err := validateAssetType(r, reserveconfig.AssetTypeFungible, onBehalfOf); err != nil {
			return nil, err
		}
		if !r.Config.BorrowingEnabled() {
			return nil, fail(ErrBorrowingNotEnabled, asset, onBehalfOf)
		}
		if err := e.updateState(r, op.now); err != nil {
			return nil, err
		}
		if amount.Gt(r.State.AvailableLiquidity) {
			return nil, fail(ErrInsufficientLiquidity, asset, onBehalfOf)
		}
		if err := checkBorrowCap(r, amount, onBehalfOf); err != nil {
			return nil, err
		}

		cfg, err := op.tx.userConfig(onBehalfOf)
		if err != nil {
			return nil, classify(err, asset, onBehalfOf)
		}
		if err := e.validateSiloed(op, cfg.IsBorrowingAny(), r, onBehalfOf); err != nil {
			return nil, err
		}

		before, err := e.accountData(op, onBehalfOf, cfg)
		if err != nil {
			return nil, err
		}
		if before.TotalCollateralBase.IsZero() {
			return nil, fail(ErrCollateralBalanceZero, asset, onBehalfOf)
		}
		if before.Ltv == 0 {
			return nil, fail(ErrLtvValidationFailed, asset, onBehalfOf)
		}
		if before.HealthFactor.Lt(fixedpoint.Ray) {
			return nil, fail(ErrHealthFactorBelowThreshold, asset, onBehalfOf)
		}
		price, err := op.prices.assetPrice(asset)
		if err != nil {
			return nil, err
		}
		amountBase, err := fixedpoint.MulDiv(amount, price, r.Unit())
		if err != nil {
			return nil, classify(err, asset, onBehalfOf)
		}
		debtAfter, err := fixedpoint.Add(before.TotalDebtBase, amountBase)
		if err != nil {
			return nil, classify(err, asset, onBehalfOf)
		}
		collateralNeeded, err := fixedpoint.PercentDiv(debtAfter, before.Ltv)
		if err != nil {
			return nil, classify(err, asset, onBehalfOf)
		}
		if collateralNeeded.Gt(before.TotalCollateralBase) {
			return nil, fail(ErrCollateralCannotCoverNewBorrow, asset, onBehalfOf)
		}

		scaled, err := scaledOf(amount, r.State.VariableBorrowIndex)
		if err != nil {
			return nil, classify(err, asset, onBehalfOf)
		}
		if scaled.IsZero() {
			return nil, fail(ErrInvalidScaledAmount, asset, onBehalfOf)
		}
		pos, err := op.tx.position(onBehalfOf, asset)
		if err != nil {
			return nil, classify(err, asset, onBehalfOf)
		}
		if pos.ScaledDebt, err = fixedpoint.Add(pos.ScaledDebt, scaled); err != nil {
			return nil, classify(err, asset, onBehalfOf)
		}
		if r.State.TotalScaledVariableDebt, err = fixedpoint.Add(r.State.TotalScaledVariableDebt, scaled); err != nil {
			return nil, classify(err, asset, onBehalfOf)
		}
		r.State.AvailableLiquidity = new(uint256.Int).Sub(r.State.AvailableLiquidity, amount)
		op.tx.putPosition(onBehalfOf, asset, pos)
		if !cfg.IsBorrowing(r.ID) {
			if err := cfg.SetBorrowing(r.ID, true); err != nil {
				return nil, classify(err, asset, onBehalfOf)
			}
			op.tx.putUserConfig(onBehalfOf, cfg)
		}
		if err := e.finalizeReserve(op, r); err != nil {
			return nil, err
		}
		data, err := e.requireHealthy(op, onBehalfOf, asset)
		if err != nil {
			return nil, err
		}
		op.events.Emit(events.LendingPositionChanged{
			Kind: events.TypeLendingBorrowed, Asset: asset, Caller: caller, OnBehalfOf: onBehalfOf, Amount: fixedpoint.Clone(amount),
		})
		return &Result{Amount: fixedpoint.Clone(amount), Account: data}, nil
	})
}

// validateSiloed enforces that an account borrowing a siloed asset borrows
// nothing else.
func (e *Engine) validateSiloed(op *operation, borrowingAny bool, r *Reserve, user common.Address) error {
	if !borrowingAny {
		return nil
	}
	cfg, err := op.tx.userConfig(user)
	if err != nil {
		return classify(err, r.Asset, user)
	}
	var lookupErr error
	siloed, siloedID := cfg.SiloedBorrowingState(func(id uint16) bool {
		other, err := op.tx.reserveByID(id)
		if err != nil {
			lookupErr = err
			return false
		}
		return other != nil && other.Config.SiloedBorrowing()
	})
	if lookupErr != nil {
		return classify(lookupErr, r.Asset, user)
	}
	if siloed {
		if siloedID != r.ID {
			return fail(ErrSiloedBorrowingViolation, r.Asset, user)
		}
		return nil
	}
	if r.Config.SiloedBorrowing() {
		return fail(ErrSiloedBorrowingViolation, r.Asset, user)
	}
	return nil
}

// Repay pays back up to amount of the variable debt of onBehalfOf. An amount
// of MaxUint256 repays the full debt.
func (e *Engine) Repay(caller, asset common.Address, amount *uint256.Int, onBehalfOf common.Address) (*Result, error) {
	return run(e, "repay", func(op *operation) (*Result, error) {
		if err := validateAmount(amount, asset, onBehalfOf); err != nil {
			return nil, err
		}
		r, err := loadReserve(op, asset, onBehalfOf)
		if err != nil {
			return nil, err
		}
		if err := validateUsable(r, onBehalfOf); err != nil {
			return nil, err
		}
		if err := validateAssetType(r, reserveconfig.AssetTypeFungible, onBehalfOf); err != nil {
			return nil, err
		}
		if err := e.updateState(r, op.now); err != nil {
			return nil, err
		}
		repaid, err := e.burnDebt(op, r, onBehalfOf, amount)
		if err != nil {
			return nil, err
		}
		if r.State.AvailableLiquidity, err = fixedpoint.Add(r.State.AvailableLiquidity, repaid); err != nil {
			return nil, classify(err, asset, onBehalfOf)
		}
		if err := e.finalizeReserve(op, r); err != nil {
			return nil, err
		}
		op.events.Emit(events.LendingPositionChanged{
			Kind: events.TypeLendingRepaid, Asset: asset, Caller: caller, OnBehalfOf: onBehalfOf, Amount: fixedpoint.Clone(repaid),
		})
		data, err := e.snapshot(op, onBehalfOf)
		if err != nil {
			return nil, err
		}
		return &Result{Amount: repaid, Account: data}, nil
	})
}

// burnDebt reduces the debt of user in r by min(amount, debt) and returns the
// amount burned. The borrowing bit is cleared when the debt reaches zero.
// Reserve cash is left to the caller.
func (e *Engine) burnDebt(op *operation, r *Reserve, user common.Address, amount *uint256.Int) (*uint256.Int, error) {
	pos, err := op.tx.position(user, r.Asset)
	if err != nil {
		return nil, classify(err, r.Asset, user)
	}
	debt, err := balanceOf(pos.ScaledDebt, r.State.VariableBorrowIndex)
	if err != nil {
		return nil, classify(err, r.Asset, user)
	}
	if debt.IsZero() {
		return nil, fail(ErrNoDebtOfSelectedType, r.Asset, user)
	}
	payback := fixedpoint.Min(amount, debt)
	scaled := fixedpoint.Clone(pos.ScaledDebt)
	if !payback.Eq(debt) {
		if scaled, err = scaledOf(payback, r.State.VariableBorrowIndex); err != nil {
			return nil, classify(err, r.Asset, user)
		}
		scaled = fixedpoint.Min(scaled, pos.ScaledDebt)
	}
	pos.ScaledDebt = new(uint256.Int).Sub(pos.ScaledDebt, scaled)
	r.State.TotalScaledVariableDebt = fixedpoint.SubFloor(r.State.TotalScaledVariableDebt, scaled)
	op.tx.putPosition(user, r.Asset, pos)
	if pos.ScaledDebt.IsZero() {
		cfg, err := op.tx.userConfig(user)
		if err != nil {
			return nil, classify(err, r.Asset, user)
		}
		if cfg.IsBorrowing(r.ID) {
			if err := cfg.SetBorrowing(r.ID, false); err != nil {
				return nil, classify(err, r.Asset, user)
			}
			op.tx.putUserConfig(user, cfg)
		}
	}
	return payback, nil
}
