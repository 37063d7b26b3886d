package lending

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/core/events"
	"lendcore/native/lending/fixedpoint"
	"lendcore/native/lending/reserveconfig"
	"lendcore/native/lending/userconfig"
)

// Action names a permissioned configurator capability.
type Action string

const (
	// ActionListReserve covers listing and dropping reserves.
	ActionListReserve Action = "list_reserve"
	// ActionConfigureRisk covers collateral parameters, caps, fees and
	// strategies.
	ActionConfigureRisk Action = "configure_risk"
	// ActionEmergency covers freezing, pausing and activation.
	ActionEmergency Action = "emergency"
)

// Authorizer decides whether caller may perform action on asset.
type Authorizer interface {
	IsAuthorized(caller common.Address, action Action, asset common.Address) bool
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(caller common.Address, action Action, asset common.Address) bool

func (f AuthorizerFunc) IsAuthorized(caller common.Address, action Action, asset common.Address) bool {
	return f(caller, action, asset)
}

// ReserveInput describes a reserve to list.
type ReserveInput struct {
	Asset                common.Address
	AssetType            reserveconfig.AssetType
	Decimals             uint8
	InterestRateStrategy common.Address
	AuctionStrategy      common.Address
}

func (e *Engine) authorize(caller common.Address, action Action, asset common.Address) error {
	if e.authorizer == nil || !e.authorizer.IsAuthorized(caller, action, asset) {
		e.logger.Warn("lending configurator call denied", "caller", caller.Hex(), "action", string(action), "asset", asset.Hex())
		return fail(ErrCallerNotAuthorized, asset, caller)
	}
	return nil
}

// administer runs a configurator body. Configurator calls are not subject to
// the module pause so that an operator can always recover a reserve.
func administer[T any](e *Engine, caller common.Address, action Action, asset common.Address, name string, body func(op *operation) (T, error)) (T, error) {
	var zero T
	if err := e.authorize(caller, action, asset); err != nil {
		return zero, err
	}
	op, err := e.begin(name, false)
	if err != nil {
		return zero, err
	}
	out, err := body(op)
	if err != nil {
		return zero, e.rejected(op, err)
	}
	if err := e.commit(op); err != nil {
		return zero, err
	}
	return out, nil
}

// InitReserve lists a new reserve in the next free slot. Fungible reserves
// need a registered interest rate strategy; an auction strategy is only
// accepted for unique reserves.
func (e *Engine) InitReserve(caller common.Address, in ReserveInput) (*Reserve, error) {
	return administer(e, caller, ActionListReserve, in.Asset, "init_reserve", func(op *operation) (*Reserve, error) {
		if in.Asset == (common.Address{}) {
			return nil, fail(ErrInvalidReserveParams, in.Asset, caller)
		}
		existing, err := op.tx.reserve(in.Asset)
		if err != nil {
			return nil, classify(err, in.Asset, caller)
		}
		if existing != nil {
			return nil, fail(ErrReserveAlreadyInitialized, in.Asset, caller)
		}
		switch in.AssetType {
		case reserveconfig.AssetTypeFungible:
			if _, ok := e.rateStrategies[in.InterestRateStrategy]; !ok {
				return nil, fail(ErrInterestRateStrategyUnknown, in.Asset, caller)
			}
			if in.AuctionStrategy != (common.Address{}) {
				return nil, fail(ErrAssetTypeMismatch, in.Asset, caller)
			}
		case reserveconfig.AssetTypeUnique:
			if in.Decimals != 0 {
				return nil, fail(ErrInvalidReserveParams, in.Asset, caller)
			}
			if in.AuctionStrategy != (common.Address{}) {
				if _, ok := e.auctionStrategies[in.AuctionStrategy]; !ok {
					return nil, fail(ErrAuctionStrategyUnknown, in.Asset, caller)
				}
			}
		default:
			return nil, fail(ErrInvalidReserveParams, in.Asset, caller)
		}
		list, err := op.tx.reservesList()
		if err != nil {
			return nil, classify(err, in.Asset, caller)
		}
		if len(list) >= userconfig.MaxReserves {
			return nil, fail(ErrNoMoreReservesAllowed, in.Asset, caller)
		}

		var cfg reserveconfig.Config
		if err := cfg.SetDecimals(uint64(in.Decimals)); err != nil {
			return nil, classify(err, in.Asset, caller)
		}
		if err := cfg.SetAssetType(in.AssetType); err != nil {
			return nil, classify(err, in.Asset, caller)
		}
		cfg.SetActive(true)
		r := &Reserve{
			ID:                   uint16(len(list)),
			Asset:                in.Asset,
			Config:               cfg,
			State:                newReserveState(op.now),
			InterestRateStrategy: in.InterestRateStrategy,
			AuctionStrategy:      in.AuctionStrategy,
		}
		if r.IsUnique() {
			r.InterestRateStrategy = common.Address{}
		}
		op.tx.putReserve(r)
		op.tx.putReservesList(append(append([]common.Address(nil), list...), in.Asset))
		e.logger.Info("lending reserve initialized", "asset", in.Asset.Hex(), "id", r.ID, "type", in.AssetType.String())
		op.events.Emit(events.LendingReserveInitialized{
			Asset:                in.Asset,
			ReserveID:            r.ID,
			AssetType:            in.AssetType.String(),
			InterestRateStrategy: r.InterestRateStrategy,
			AuctionStrategy:      r.AuctionStrategy,
		})
		return r.Clone(), nil
	})
}

// DropReserve deactivates a reserve without any outstanding balance. Its slot
// stays reserved so bitmaps of existing accounts remain valid.
func (e *Engine) DropReserve(caller, asset common.Address) error {
	_, err := administer(e, caller, ActionListReserve, asset, "drop_reserve", func(op *operation) (struct{}, error) {
		r, err := loadReserve(op, asset, caller)
		if err != nil {
			return struct{}{}, err
		}
		s := r.State
		if !s.TotalScaledSupply.IsZero() || !s.TotalScaledVariableDebt.IsZero() || !s.AccruedToTreasury.IsZero() {
			return struct{}{}, fail(ErrReserveLiquidityNotZero, asset, caller)
		}
		r.Config.SetActive(false)
		op.tx.putReserve(r)
		e.logger.Info("lending reserve dropped", "asset", asset.Hex(), "id", r.ID)
		op.events.Emit(events.LendingReserveDropped{Asset: asset})
		return struct{}{}, nil
	})
	return err
}

// reconfigure applies one field change to a listed reserve and reports it.
func (e *Engine) reconfigure(caller common.Address, action Action, asset common.Address, field string, apply func(op *operation, r *Reserve) (before, after string, err error)) error {
	_, err := administer(e, caller, action, asset, "set_"+field, func(op *operation) (struct{}, error) {
		r, err := loadReserve(op, asset, caller)
		if err != nil {
			return struct{}{}, err
		}
		before, after, err := apply(op, r)
		if err != nil {
			return struct{}{}, err
		}
		op.tx.putReserve(r)
		op.events.Emit(events.LendingReserveConfigUpdated{Asset: asset, Field: field, Old: before, New: after})
		return struct{}{}, nil
	})
	return err
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

// ConfigureReserveAsCollateral sets ltv, liquidation threshold and bonus in
// one step. A zero threshold disables the reserve as collateral and requires
// a zero bonus and no suppliers.
func (e *Engine) ConfigureReserveAsCollateral(caller, asset common.Address, ltv, threshold, bonus uint64) error {
	_, err := administer(e, caller, ActionConfigureRisk, asset, "configure_reserve_as_collateral", func(op *operation) (struct{}, error) {
		r, err := loadReserve(op, asset, caller)
		if err != nil {
			return struct{}{}, err
		}
		if ltv > threshold {
			return struct{}{}, fail(ErrInvalidReserveParams, asset, caller)
		}
		if threshold != 0 {
			if bonus <= fixedpoint.PercentageFactor {
				return struct{}{}, fail(ErrInvalidReserveParams, asset, caller)
			}
			if threshold*bonus > fixedpoint.PercentageFactor*fixedpoint.PercentageFactor {
				return struct{}{}, fail(ErrThresholdBonusInconsistent, asset, caller)
			}
		} else {
			if bonus != 0 {
				return struct{}{}, fail(ErrInvalidReserveParams, asset, caller)
			}
			if !r.State.TotalScaledSupply.IsZero() {
				return struct{}{}, fail(ErrReserveHasSuppliers, asset, caller)
			}
		}
		oldLtv, oldThreshold, oldBonus, _, _ := r.Config.Params()
		if err := r.Config.SetLtv(ltv); err != nil {
			return struct{}{}, classify(err, asset, caller)
		}
		if err := r.Config.SetLiquidationThreshold(threshold); err != nil {
			return struct{}{}, classify(err, asset, caller)
		}
		if err := r.Config.SetLiquidationBonus(bonus); err != nil {
			return struct{}{}, classify(err, asset, caller)
		}
		op.tx.putReserve(r)
		for _, change := range []struct {
			field      string
			old, value uint64
		}{
			{"ltv", oldLtv, ltv},
			{"liquidation_threshold", oldThreshold, threshold},
			{"liquidation_bonus", oldBonus, bonus},
		} {
			op.events.Emit(events.LendingReserveConfigUpdated{
				Asset: asset, Field: change.field, Old: formatUint(change.old), New: formatUint(change.value),
			})
		}
		return struct{}{}, nil
	})
	return err
}

// SetReserveFactor accrues the reserve under the old factor before applying
// the new one.
func (e *Engine) SetReserveFactor(caller, asset common.Address, factor uint64) error {
	return e.reconfigure(caller, ActionConfigureRisk, asset, "reserve_factor", func(op *operation, r *Reserve) (string, string, error) {
		if err := e.updateState(r, op.now); err != nil {
			return "", "", err
		}
		old := r.Config.ReserveFactor()
		if err := r.Config.SetReserveFactor(factor); err != nil {
			return "", "", classify(err, asset, caller)
		}
		if err := e.finalizeReserve(op, r); err != nil {
			return "", "", err
		}
		return formatUint(old), formatUint(factor), nil
	})
}

// SetBorrowCap sets the borrow cap in whole units; zero disables it.
func (e *Engine) SetBorrowCap(caller, asset common.Address, limit uint64) error {
	return e.reconfigure(caller, ActionConfigureRisk, asset, "borrow_cap", func(_ *operation, r *Reserve) (string, string, error) {
		old := r.Config.BorrowCap()
		if err := r.Config.SetBorrowCap(limit); err != nil {
			return "", "", classify(err, asset, caller)
		}
		return formatUint(old), formatUint(limit), nil
	})
}

// SetSupplyCap sets the supply cap in whole units (tokens for unique
// reserves); zero disables it.
func (e *Engine) SetSupplyCap(caller, asset common.Address, limit uint64) error {
	return e.reconfigure(caller, ActionConfigureRisk, asset, "supply_cap", func(_ *operation, r *Reserve) (string, string, error) {
		old := r.Config.SupplyCap()
		if err := r.Config.SetSupplyCap(limit); err != nil {
			return "", "", classify(err, asset, caller)
		}
		return formatUint(old), formatUint(limit), nil
	})
}

func (e *Engine) SetLiquidationProtocolFee(caller, asset common.Address, fee uint64) error {
	return e.reconfigure(caller, ActionConfigureRisk, asset, "liquidation_protocol_fee", func(_ *operation, r *Reserve) (string, string, error) {
		if fee != 0 && r.Config.LiquidationBonus() <= fixedpoint.PercentageFactor {
			return "", "", fail(ErrLiquidationProtocolFeeWithoutBonus, asset, caller)
		}
		if fee != 0 && e.params.Treasury == (common.Address{}) {
			return "", "", fail(ErrTreasuryNotSet, asset, caller)
		}
		old := r.Config.LiquidationProtocolFee()
		if err := r.Config.SetLiquidationProtocolFee(fee); err != nil {
			return "", "", classify(err, asset, caller)
		}
		return formatUint(old), formatUint(fee), nil
	})
}

// SetReserveActive toggles the active flag. Deactivation requires that
// nobody supplies the reserve.
func (e *Engine) SetReserveActive(caller, asset common.Address, active bool) error {
	return e.reconfigure(caller, ActionEmergency, asset, "active", func(_ *operation, r *Reserve) (string, string, error) {
		if !active && (!r.State.TotalScaledSupply.IsZero() || !r.State.AccruedToTreasury.IsZero()) {
			return "", "", fail(ErrReserveHasSuppliers, asset, caller)
		}
		old := r.Config.Active()
		r.Config.SetActive(active)
		return strconv.FormatBool(old), strconv.FormatBool(active), nil
	})
}

func (e *Engine) SetReserveFrozen(caller, asset common.Address, frozen bool) error {
	return e.reconfigure(caller, ActionEmergency, asset, "frozen", func(_ *operation, r *Reserve) (string, string, error) {
		old := r.Config.Frozen()
		r.Config.SetFrozen(frozen)
		return strconv.FormatBool(old), strconv.FormatBool(frozen), nil
	})
}

func (e *Engine) SetReservePaused(caller, asset common.Address, paused bool) error {
	return e.reconfigure(caller, ActionEmergency, asset, "paused", func(_ *operation, r *Reserve) (string, string, error) {
		old := r.Config.Paused()
		r.Config.SetPaused(paused)
		return strconv.FormatBool(old), strconv.FormatBool(paused), nil
	})
}

// SetReserveBorrowingEnabled toggles borrowing of a fungible reserve.
func (e *Engine) SetReserveBorrowingEnabled(caller, asset common.Address, enabled bool) error {
	return e.reconfigure(caller, ActionConfigureRisk, asset, "borrowing_enabled", func(_ *operation, r *Reserve) (string, string, error) {
		if enabled && r.IsUnique() {
			return "", "", fail(ErrAssetTypeMismatch, asset, caller)
		}
		old := r.Config.BorrowingEnabled()
		r.Config.SetBorrowingEnabled(enabled)
		return strconv.FormatBool(old), strconv.FormatBool(enabled), nil
	})
}

// SetSiloedBorrowing changes the siloed flag, which is only allowed while
// the reserve has no borrowers.
func (e *Engine) SetSiloedBorrowing(caller, asset common.Address, siloed bool) error {
	return e.reconfigure(caller, ActionConfigureRisk, asset, "siloed_borrowing", func(_ *operation, r *Reserve) (string, string, error) {
		if !r.State.TotalScaledVariableDebt.IsZero() {
			return "", "", fail(ErrReserveHasBorrowers, asset, caller)
		}
		old := r.Config.SiloedBorrowing()
		r.Config.SetSiloedBorrowing(siloed)
		return strconv.FormatBool(old), strconv.FormatBool(siloed), nil
	})
}

// SetInterestRateStrategy points a fungible reserve at another registered
// strategy. Interest is accrued under the old rates first.
func (e *Engine) SetInterestRateStrategy(caller, asset, strategy common.Address) error {
	return e.reconfigure(caller, ActionConfigureRisk, asset, "interest_rate_strategy", func(op *operation, r *Reserve) (string, string, error) {
		if r.IsUnique() {
			return "", "", fail(ErrAssetTypeMismatch, asset, caller)
		}
		if _, ok := e.rateStrategies[strategy]; !ok {
			return "", "", fail(ErrInterestRateStrategyUnknown, asset, caller)
		}
		if err := e.updateState(r, op.now); err != nil {
			return "", "", err
		}
		old := r.InterestRateStrategy
		r.InterestRateStrategy = strategy
		if err := e.finalizeReserve(op, r); err != nil {
			return "", "", err
		}
		return old.Hex(), strategy.Hex(), nil
	})
}

// SetAuctionStrategy sets the auction curve of a unique reserve. The zero
// address disables auctions.
func (e *Engine) SetAuctionStrategy(caller, asset, strategy common.Address) error {
	return e.reconfigure(caller, ActionConfigureRisk, asset, "auction_strategy", func(_ *operation, r *Reserve) (string, string, error) {
		if !r.IsUnique() {
			return "", "", fail(ErrAssetTypeMismatch, asset, caller)
		}
		if strategy != (common.Address{}) {
			if _, ok := e.auctionStrategies[strategy]; !ok {
				return "", "", fail(ErrAuctionStrategyUnknown, asset, caller)
			}
		}
		old := r.AuctionStrategy
		r.AuctionStrategy = strategy
		return old.Hex(), strategy.Hex(), nil
	})
}
