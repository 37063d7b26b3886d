package lending

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/core/events"
	"lendcore/native/lending/interest"
	"lendcore/native/lending/reserveconfig"
)

func TestConfiguratorRequiresAuthorization(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.InitReserve(lender, ReserveInput{Asset: addr(0x40), Decimals: 18, InterestRateStrategy: rateAddr})
	expectCode(t, err, ErrUnauthorized, ErrCallerNotAuthorized)
	err = f.engine.SetReserveFactor(lender, usdc, 100)
	expectCode(t, err, ErrUnauthorized, ErrCallerNotAuthorized)

	f.engine.SetAuthorizer(nil)
	err = f.engine.SetReserveFrozen(admin, usdc, true)
	expectCode(t, err, ErrUnauthorized, ErrCallerNotAuthorized)
}

func TestInitReserveAssignsSequentialIDs(t *testing.T) {
	f := newFixture(t)
	r, err := f.engine.InitReserve(admin, ReserveInput{Asset: addr(0x40), Decimals: 8, InterestRateStrategy: rateAddr})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if r.ID != 3 || !r.Config.Active() || r.Config.BorrowingEnabled() {
		t.Fatalf("unexpected reserve %+v", r)
	}
	list, err := f.engine.GetReservesList()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 4 || list[3] != addr(0x40) {
		t.Fatalf("unexpected list %v", list)
	}
	if f.events.count(events.TypeLendingReserveInitialized) != 1 {
		t.Fatalf("expected init event")
	}

	_, err = f.engine.InitReserve(admin, ReserveInput{Asset: addr(0x40), Decimals: 8, InterestRateStrategy: rateAddr})
	expectCode(t, err, ErrReserveStateInvalid, ErrReserveAlreadyInitialized)
	_, err = f.engine.InitReserve(admin, ReserveInput{Asset: addr(0x41), Decimals: 8, InterestRateStrategy: addr(0x77)})
	expectCode(t, err, ErrReserveStateInvalid, ErrInterestRateStrategyUnknown)
	_, err = f.engine.InitReserve(admin, ReserveInput{Asset: addr(0x42), AssetType: reserveconfig.AssetTypeUnique, AuctionStrategy: addr(0x78)})
	expectCode(t, err, ErrReserveStateInvalid, ErrAuctionStrategyUnknown)
}

func TestInitReserveLimit(t *testing.T) {
	f := newFixture(t)
	for i := 3; i < 128; i++ {
		asset := addr(byte(i))
		asset[1] = 0x01
		if _, err := f.engine.InitReserve(admin, ReserveInput{Asset: asset, Decimals: 6, InterestRateStrategy: rateAddr}); err != nil {
			t.Fatalf("init %d: %v", i, err)
		}
	}
	_, err := f.engine.InitReserve(admin, ReserveInput{Asset: addr(0xfe), Decimals: 6, InterestRateStrategy: rateAddr})
	expectCode(t, err, ErrReserveStateInvalid, ErrNoMoreReservesAllowed)
}

func TestConfigureReserveAsCollateralRules(t *testing.T) {
	f := newFixture(t)
	err := f.engine.ConfigureReserveAsCollateral(admin, usdc, 8100, 8000, 10500)
	expectCode(t, err, ErrParameterOutOfRange, ErrInvalidReserveParams)
	err = f.engine.ConfigureReserveAsCollateral(admin, usdc, 7000, 8000, 10000)
	expectCode(t, err, ErrParameterOutOfRange, ErrInvalidReserveParams)
	err = f.engine.ConfigureReserveAsCollateral(admin, usdc, 9000, 9600, 10500)
	expectCode(t, err, ErrParameterOutOfRange, ErrThresholdBonusInconsistent)
	err = f.engine.ConfigureReserveAsCollateral(admin, usdc, 0, 0, 10500)
	expectCode(t, err, ErrParameterOutOfRange, ErrInvalidReserveParams)

	f.supply(lender, usdc, e6(1))
	err = f.engine.ConfigureReserveAsCollateral(admin, usdc, 0, 0, 0)
	expectCode(t, err, ErrReserveStateInvalid, ErrReserveHasSuppliers)

	if err := f.engine.ConfigureReserveAsCollateral(admin, usdc, 7000, 7500, 11000); err != nil {
		t.Fatalf("configure: %v", err)
	}
	ltv, threshold, bonus, _, _ := f.state.reserves[usdc].Config.Params()
	if ltv != 7000 || threshold != 7500 || bonus != 11000 {
		t.Fatalf("unexpected params %d/%d/%d", ltv, threshold, bonus)
	}
}

func TestConfigUpdateEventCarriesOldAndNew(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.SetBorrowCap(admin, usdc, 5_000); err != nil {
		t.Fatalf("set cap: %v", err)
	}
	var found bool
	for _, ev := range f.events.events {
		updated, ok := ev.(events.LendingReserveConfigUpdated)
		if !ok || updated.Field != "borrow_cap" {
			continue
		}
		found = true
		if updated.Old != "0" || updated.New != "5000" || updated.Asset != usdc {
			t.Fatalf("unexpected event %+v", updated)
		}
	}
	if !found {
		t.Fatalf("config update event missing")
	}
}

func TestSetterRangeValidation(t *testing.T) {
	f := newFixture(t)
	err := f.engine.SetReserveFactor(admin, usdc, 10_001)
	expectCode(t, err, ErrParameterOutOfRange, ErrInvalidReserveParams)
	if err := f.engine.SetReserveFactor(admin, usdc, 10_000); err != nil {
		t.Fatalf("reserve factor at bound: %v", err)
	}
	err = f.engine.SetBorrowCap(admin, usdc, reserveconfig.MaxValidCap+1)
	expectCode(t, err, ErrParameterOutOfRange, ErrInvalidReserveParams)
	err = f.engine.SetLiquidationProtocolFee(admin, usdc, 10_001)
	expectCode(t, err, ErrParameterOutOfRange, ErrInvalidReserveParams)
}

func TestProtocolFeeNeedsBonus(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.InitReserve(admin, ReserveInput{Asset: addr(0x40), Decimals: 6, InterestRateStrategy: rateAddr}); err != nil {
		t.Fatalf("init: %v", err)
	}
	err := f.engine.SetLiquidationProtocolFee(admin, addr(0x40), 500)
	expectCode(t, err, ErrParameterOutOfRange, ErrLiquidationProtocolFeeWithoutBonus)
}

func TestProtocolFeeNeedsTreasury(t *testing.T) {
	f := newFixture(t)
	f.engine.params.Treasury = common.Address{}
	err := f.engine.SetLiquidationProtocolFee(admin, weth, 1_000)
	expectCode(t, err, ErrParameterOutOfRange, ErrTreasuryNotSet)
	if f.state.reserves[weth].Config.LiquidationProtocolFee() != 0 {
		t.Fatalf("fee must stay unset")
	}
	if err := f.engine.SetLiquidationProtocolFee(admin, weth, 0); err != nil {
		t.Fatalf("clearing the fee needs no treasury: %v", err)
	}
	err = f.engine.MintToTreasury([]common.Address{usdc})
	expectCode(t, err, ErrParameterOutOfRange, ErrTreasuryNotSet)
}

func TestDeactivateAndDropReserve(t *testing.T) {
	f := newFixture(t)
	f.supply(lender, usdc, e6(10))
	err := f.engine.SetReserveActive(admin, usdc, false)
	expectCode(t, err, ErrReserveStateInvalid, ErrReserveHasSuppliers)
	err = f.engine.DropReserve(admin, usdc)
	expectCode(t, err, ErrReserveStateInvalid, ErrReserveLiquidityNotZero)

	if err := f.engine.DropReserve(admin, weth); err != nil {
		t.Fatalf("drop: %v", err)
	}
	_, err = f.engine.Supply(lender, weth, e18(1), lender)
	expectCode(t, err, ErrReserveStateInvalid, ErrReserveInactive)
	list, _ := f.engine.GetReservesList()
	if len(list) != 3 || list[1] != weth {
		t.Fatalf("dropped reserve keeps its slot, got %v", list)
	}
}

func TestPausedReserveRejectsRepay(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	if err := f.engine.SetReservePaused(admin, usdc, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	_, err := f.engine.Repay(borrower, usdc, e6(1), borrower)
	expectCode(t, err, ErrReserveStateInvalid, ErrReservePaused)
}

func TestSwitchInterestRateStrategy(t *testing.T) {
	f := newFixture(t)
	steep, err := interest.NewStrategyBps(5000, 200, 1000, 30000)
	if err != nil {
		t.Fatalf("strategy: %v", err)
	}
	if err := f.engine.RegisterInterestRateStrategy(addr(0x22), steep); err != nil {
		t.Fatalf("register: %v", err)
	}
	f.leveraged()
	before := f.state.reserves[usdc].State.CurrentVariableBorrowRate.Clone()
	if err := f.engine.SetInterestRateStrategy(admin, usdc, addr(0x22)); err != nil {
		t.Fatalf("switch: %v", err)
	}
	after := f.state.reserves[usdc].State.CurrentVariableBorrowRate
	if !after.Gt(before) {
		t.Fatalf("steeper curve must raise the rate: %s -> %s", before, after)
	}
	err = f.engine.SetInterestRateStrategy(admin, usdc, addr(0x23))
	expectCode(t, err, ErrReserveStateInvalid, ErrInterestRateStrategyUnknown)
	err = f.engine.SetAuctionStrategy(admin, usdc, auctAddr)
	expectCode(t, err, ErrAssetNotEligible, ErrAssetTypeMismatch)
}

func TestEngineParamsValidation(t *testing.T) {
	f := newFixture(t)
	p := f.engine.Params()
	p.CloseFactorHFThreshold = dec("1000000000000000000000000001")
	err := f.engine.SetParams(p)
	expectCode(t, err, ErrParameterOutOfRange, ErrInvalidCloseFactorHealthFactor)
	p = f.engine.Params()
	p.AuctionRecoveryHealthFactor = dec("999999999999999999999999999")
	err = f.engine.SetParams(p)
	expectCode(t, err, ErrParameterOutOfRange, ErrInvalidAuctionRecoveryHealthFactor)
}
