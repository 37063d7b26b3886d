package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/fixedpoint"
	"lendcore/native/lending/reserveconfig"
)

// Result is returned by position operations: the amount actually moved and
// the risk snapshot of the affected account after the operation.
type Result struct {
	Amount  *uint256.Int
	Account *AccountData
}

func validateAmount(amount *uint256.Int, asset, user common.Address) error {
	if amount == nil || amount.IsZero() {
		return fail(ErrInvalidAmount, asset, user)
	}
	return nil
}

// loadReserve returns the working copy of a listed reserve.
func loadReserve(op *operation, asset, user common.Address) (*Reserve, error) {
	r, err := op.tx.reserve(asset)
	if err != nil {
		return nil, classify(err, asset, user)
	}
	if r == nil {
		return nil, fail(ErrReserveNotListed, asset, user)
	}
	return r, nil
}

// validateUsable rejects inactive or paused reserves.
func validateUsable(r *Reserve, user common.Address) error {
	active, _, _, paused := r.Config.Flags()
	if !active {
		return fail(ErrReserveInactive, r.Asset, user)
	}
	if paused {
		return fail(ErrReservePaused, r.Asset, user)
	}
	return nil
}

// validateOpen additionally rejects frozen reserves; used for operations that
// increase exposure.
func validateOpen(r *Reserve, user common.Address) error {
	if err := validateUsable(r, user); err != nil {
		return err
	}
	if r.Config.Frozen() {
		return fail(ErrReserveFrozen, r.Asset, user)
	}
	return nil
}

func validateAssetType(r *Reserve, want reserveconfig.AssetType, user common.Address) error {
	if r.Config.AssetType() != want {
		return fail(ErrAssetTypeMismatch, r.Asset, user)
	}
	return nil
}

// checkSupplyCap verifies that adding amount keeps total supply, including
// the unminted treasury share, within the cap.
func checkSupplyCap(r *Reserve, amount *uint256.Int, user common.Address) error {
	limitUnits := r.Config.SupplyCap()
	if limitUnits == 0 {
		return nil
	}
	scaled, err := fixedpoint.Add(r.State.TotalScaledSupply, r.State.AccruedToTreasury)
	if err != nil {
		return classify(err, r.Asset, user)
	}
	total, err := balanceOf(scaled, r.State.LiquidityIndex)
	if err != nil {
		return classify(err, r.Asset, user)
	}
	if total, err = fixedpoint.Add(total, amount); err != nil {
		return classify(err, r.Asset, user)
	}
	limit := new(uint256.Int).Mul(uint256.NewInt(limitUnits), r.Unit())
	if total.Gt(limit) {
		return fail(ErrSupplyCapExceeded, r.Asset, user)
	}
	return nil
}

func checkBorrowCap(r *Reserve, amount *uint256.Int, user common.Address) error {
	limitUnits := r.Config.BorrowCap()
	if limitUnits == 0 {
		return nil
	}
	total, err := balanceOf(r.State.TotalScaledVariableDebt, r.State.VariableBorrowIndex)
	if err != nil {
		return classify(err, r.Asset, user)
	}
	if total, err = fixedpoint.Add(total, amount); err != nil {
		return classify(err, r.Asset, user)
	}
	limit := new(uint256.Int).Mul(uint256.NewInt(limitUnits), r.Unit())
	if total.Gt(limit) {
		return fail(ErrBorrowCapExceeded, r.Asset, user)
	}
	return nil
}
