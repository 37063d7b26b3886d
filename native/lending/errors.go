package lending

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/native/lending/auction"
	"lendcore/native/lending/fixedpoint"
	"lendcore/native/lending/interest"
	"lendcore/native/lending/reserveconfig"
	"lendcore/native/lending/userconfig"
)

// Error kinds. Every error returned by the engine matches exactly one of these
// through errors.Is.
var (
	ErrParameterOutOfRange               = errors.New("lending engine: parameter out of range")
	ErrReserveStateInvalid               = errors.New("lending engine: reserve state invalid")
	ErrInsufficientCollateral            = errors.New("lending engine: insufficient collateral")
	ErrHealthFactorTooLow                = errors.New("lending engine: health factor too low")
	ErrHealthFactorAboveLiquidationBound = errors.New("lending engine: health factor above liquidation bound")
	ErrAssetNotEligible                  = errors.New("lending engine: asset not eligible")
	ErrCapExceeded                       = errors.New("lending engine: cap exceeded")
	ErrAmountInvalid                     = errors.New("lending engine: amount invalid")
	ErrMathOverflow                      = errors.New("lending engine: math overflow")
	ErrUnauthorized                      = errors.New("lending engine: caller not authorized")
	ErrInternal                          = errors.New("lending engine: internal error")
)

// Error codes. Each code belongs to one kind.
var (
	ErrInvalidAmount                      = errors.New("invalid amount")
	ErrNotEnoughAvailableUserBalance      = errors.New("not enough available user balance")
	ErrNoDebtOfSelectedType               = errors.New("no debt of selected type")
	ErrInvalidScaledAmount                = errors.New("amount too small for current index")
	ErrLiquidationAmountNotEnough         = errors.New("max liquidation amount below liquidation price")
	ErrReserveNotListed                   = errors.New("reserve not listed")
	ErrReserveAlreadyInitialized          = errors.New("reserve already initialized")
	ErrNoMoreReservesAllowed              = errors.New("no more reserves allowed")
	ErrReserveInactive                    = errors.New("reserve inactive")
	ErrReserveFrozen                      = errors.New("reserve frozen")
	ErrReservePaused                      = errors.New("reserve paused")
	ErrModulePaused                       = errors.New("module paused")
	ErrBorrowingNotEnabled                = errors.New("borrowing not enabled")
	ErrInsufficientLiquidity              = errors.New("insufficient reserve liquidity")
	ErrReserveLiquidityNotZero            = errors.New("reserve balances not zero")
	ErrReserveHasSuppliers                = errors.New("reserve has suppliers")
	ErrReserveHasBorrowers                = errors.New("reserve has borrowers")
	ErrInterestRateStrategyUnknown        = errors.New("interest rate strategy not registered")
	ErrAuctionStrategyUnknown             = errors.New("auction strategy not registered")
	ErrPriceUnavailable                   = errors.New("price unavailable")
	ErrInvalidReserveParams               = errors.New("invalid reserve parameters")
	ErrCollateralBalanceZero              = errors.New("collateral balance is zero")
	ErrLtvValidationFailed                = errors.New("ltv validation failed")
	ErrCollateralCannotCoverNewBorrow     = errors.New("collateral cannot cover new borrow")
	ErrHealthFactorBelowThreshold         = errors.New("health factor lower than liquidation threshold")
	ErrHealthFactorNotBelowThreshold      = errors.New("health factor not below threshold")
	ErrAuctionRecoveryHealthFactorNotMet  = errors.New("health factor below auction recovery threshold")
	ErrSupplyCapExceeded                  = errors.New("supply cap exceeded")
	ErrBorrowCapExceeded                  = errors.New("borrow cap exceeded")
	ErrSiloedBorrowingViolation           = errors.New("siloed borrowing violation")
	ErrCollateralCannotBeLiquidated       = errors.New("collateral cannot be liquidated")
	ErrSpecifiedCurrencyNotBorrowedByUser = errors.New("specified currency not borrowed by user")
	ErrAssetTypeMismatch                  = errors.New("operation not supported for asset type")
	ErrTokenAlreadySupplied               = errors.New("token already supplied")
	ErrNotTheOwner                        = errors.New("caller does not own token")
	ErrAuctionNotEnabled                  = errors.New("auction not enabled for reserve")
	ErrAuctionAlreadyStarted              = errors.New("auction already started")
	ErrAuctionNotStarted                  = errors.New("auction not started")
	ErrUnderlyingBalanceZero              = errors.New("underlying balance zero")
	ErrArithmeticOverflow                 = errors.New("arithmetic overflow")
	ErrDivisionByZero                     = errors.New("division by zero")
	ErrStorage                            = errors.New("storage failure")
	ErrCallerNotAuthorized                = errors.New("caller not authorized")
	ErrBorrowOnBehalfNotAllowed           = errors.New("borrowing on behalf of another account is not allowed")
	ErrTreasuryNotSet                     = errors.New("treasury must be set to collect protocol fees")
	ErrInvalidCloseFactorHealthFactor     = errors.New("close factor health factor must be within (0, 1] ray")
	ErrInvalidAuctionRecoveryHealthFactor = errors.New("auction recovery health factor must be at least 1 ray")
	ErrLiquidationProtocolFeeWithoutBonus = errors.New("liquidation protocol fee requires a bonus")
	ErrThresholdBonusInconsistent         = errors.New("threshold and bonus exceed 100%")
)

var codeKinds = map[error]error{
	ErrInvalidAmount:                      ErrAmountInvalid,
	ErrNotEnoughAvailableUserBalance:      ErrAmountInvalid,
	ErrNoDebtOfSelectedType:               ErrAmountInvalid,
	ErrInvalidScaledAmount:                ErrAmountInvalid,
	ErrLiquidationAmountNotEnough:         ErrAmountInvalid,
	ErrSpecifiedCurrencyNotBorrowedByUser: ErrAmountInvalid,
	ErrUnderlyingBalanceZero:              ErrAmountInvalid,
	ErrReserveNotListed:                   ErrReserveStateInvalid,
	ErrReserveAlreadyInitialized:          ErrReserveStateInvalid,
	ErrNoMoreReservesAllowed:              ErrReserveStateInvalid,
	ErrReserveInactive:                    ErrReserveStateInvalid,
	ErrReserveFrozen:                      ErrReserveStateInvalid,
	ErrReservePaused:                      ErrReserveStateInvalid,
	ErrModulePaused:                       ErrReserveStateInvalid,
	ErrBorrowingNotEnabled:                ErrReserveStateInvalid,
	ErrInsufficientLiquidity:              ErrReserveStateInvalid,
	ErrReserveLiquidityNotZero:            ErrReserveStateInvalid,
	ErrReserveHasSuppliers:                ErrReserveStateInvalid,
	ErrReserveHasBorrowers:                ErrReserveStateInvalid,
	ErrInterestRateStrategyUnknown:        ErrReserveStateInvalid,
	ErrAuctionStrategyUnknown:             ErrReserveStateInvalid,
	ErrPriceUnavailable:                   ErrReserveStateInvalid,
	ErrInvalidReserveParams:               ErrParameterOutOfRange,
	ErrInvalidCloseFactorHealthFactor:     ErrParameterOutOfRange,
	ErrInvalidAuctionRecoveryHealthFactor: ErrParameterOutOfRange,
	ErrLiquidationProtocolFeeWithoutBonus: ErrParameterOutOfRange,
	ErrThresholdBonusInconsistent:         ErrParameterOutOfRange,
	ErrCollateralBalanceZero:              ErrInsufficientCollateral,
	ErrLtvValidationFailed:                ErrInsufficientCollateral,
	ErrCollateralCannotCoverNewBorrow:     ErrInsufficientCollateral,
	ErrHealthFactorBelowThreshold:         ErrHealthFactorTooLow,
	ErrAuctionRecoveryHealthFactorNotMet:  ErrHealthFactorTooLow,
	ErrHealthFactorNotBelowThreshold:      ErrHealthFactorAboveLiquidationBound,
	ErrSupplyCapExceeded:                  ErrCapExceeded,
	ErrBorrowCapExceeded:                  ErrCapExceeded,
	ErrSiloedBorrowingViolation:           ErrAssetNotEligible,
	ErrCollateralCannotBeLiquidated:       ErrAssetNotEligible,
	ErrAssetTypeMismatch:                  ErrAssetNotEligible,
	ErrTokenAlreadySupplied:               ErrAssetNotEligible,
	ErrNotTheOwner:                        ErrAssetNotEligible,
	ErrAuctionNotEnabled:                  ErrAssetNotEligible,
	ErrAuctionAlreadyStarted:              ErrAssetNotEligible,
	ErrAuctionNotStarted:                  ErrAssetNotEligible,
	ErrArithmeticOverflow:                 ErrMathOverflow,
	ErrDivisionByZero:                     ErrMathOverflow,
	ErrStorage:                            ErrInternal,
	ErrCallerNotAuthorized:                ErrUnauthorized,
	ErrBorrowOnBehalfNotAllowed:           ErrUnauthorized,
	ErrTreasuryNotSet:                     ErrParameterOutOfRange,
}

// Error is the typed error returned by engine operations. It carries the
// kind, the specific code and the asset/user the failure relates to.
type Error struct {
	Kind  error
	Code  error
	Asset common.Address
	User  common.Address
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Code != nil {
		msg += ": " + e.Code.Error()
	}
	if e.Asset != (common.Address{}) {
		msg += fmt.Sprintf(" (asset %s)", e.Asset.Hex())
	}
	if e.User != (common.Address{}) {
		msg += fmt.Sprintf(" (user %s)", e.User.Hex())
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the kind, the code and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 3)
	for _, err := range []error{e.Kind, e.Code, e.Err} {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

func fail(code error, asset, user common.Address) *Error {
	return failWith(code, asset, user, nil)
}

func failWith(code error, asset, user common.Address, cause error) *Error {
	kind, ok := codeKinds[code]
	if !ok {
		kind = ErrInternal
	}
	return &Error{Kind: kind, Code: code, Asset: asset, User: user, Err: cause}
}

// classify converts errors from the helper packages into engine errors.
// Errors already of type *Error are returned unchanged.
func classify(err error, asset, user common.Address) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	switch {
	case errors.Is(err, fixedpoint.ErrOverflow), errors.Is(err, fixedpoint.ErrUnderflow):
		return failWith(ErrArithmeticOverflow, asset, user, err)
	case errors.Is(err, fixedpoint.ErrDivisionByZero):
		return failWith(ErrDivisionByZero, asset, user, err)
	case errors.Is(err, reserveconfig.ErrInvalidLtv),
		errors.Is(err, reserveconfig.ErrInvalidLiquidationThreshold),
		errors.Is(err, reserveconfig.ErrInvalidLiquidationBonus),
		errors.Is(err, reserveconfig.ErrInvalidDecimals),
		errors.Is(err, reserveconfig.ErrInvalidReserveFactor),
		errors.Is(err, reserveconfig.ErrInvalidLiquidationProtocolFee),
		errors.Is(err, reserveconfig.ErrInvalidBorrowCap),
		errors.Is(err, reserveconfig.ErrInvalidSupplyCap),
		errors.Is(err, reserveconfig.ErrInvalidAssetType),
		errors.Is(err, interest.ErrInvalidOptimalUsageRatio),
		errors.Is(err, auction.ErrInvalidParameters):
		return &Error{Kind: ErrParameterOutOfRange, Code: ErrInvalidReserveParams, Asset: asset, User: user, Err: err}
	case errors.Is(err, userconfig.ErrInvalidReserveIndex):
		return failWith(ErrNoMoreReservesAllowed, asset, user, err)
	default:
		return failWith(ErrStorage, asset, user, err)
	}
}

// KindOf returns the kind sentinel of err, or nil when err is not an engine
// error.
func KindOf(err error) error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return nil
}
