package lending

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/core/events"
)

func TestLiquidationRejectsHealthyAccount(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	_, err := f.engine.LiquidationCall(keeper, weth, usdc, borrower, e6(100), false)
	expectCode(t, err, ErrHealthFactorAboveLiquidationBound, ErrHealthFactorNotBelowThreshold)
}

func TestLiquidationSeizesWithBonus(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	// 1750 * 0.825 / 1500 = 0.9625: liquidatable, above the close factor
	// threshold.
	f.oracle.SetAssetPrice(weth, e8(1_750))

	res, err := f.engine.LiquidationCall(keeper, weth, usdc, borrower, e6(700), false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if !res.DebtRepaid.Eq(e6(700)) {
		t.Fatalf("unexpected repaid %s", res.DebtRepaid)
	}
	// 700 USDC at 1750 is 0.4 WETH, plus a 5% bonus.
	if !res.CollateralSeized.Eq(dec("420000000000000000")) {
		t.Fatalf("unexpected seized %s", res.CollateralSeized)
	}
	if res.ProtocolFee.Sign() != 0 {
		t.Fatalf("no protocol fee configured")
	}
	if !f.position(borrower, weth).ScaledSupply.Eq(dec("580000000000000000")) {
		t.Fatalf("unexpected remaining collateral %s", f.position(borrower, weth).ScaledSupply)
	}
	if !f.position(borrower, usdc).ScaledDebt.Eq(e6(800)) {
		t.Fatalf("unexpected remaining debt %s", f.position(borrower, usdc).ScaledDebt)
	}
	if !f.state.reserves[weth].State.AvailableLiquidity.Eq(dec("580000000000000000")) {
		t.Fatalf("seized collateral must leave the reserve")
	}
	if !f.state.reserves[usdc].State.AvailableLiquidity.Eq(e6(99_200)) {
		t.Fatalf("repaid debt must return to the reserve")
	}
	if f.events.count(events.TypeLendingLiquidated) != 1 {
		t.Fatalf("expected liquidation event")
	}
}

func TestLiquidationCloseFactorHalfAboveThreshold(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	f.oracle.SetAssetPrice(weth, e8(1_750))
	res, err := f.engine.LiquidationCall(keeper, weth, usdc, borrower, maxUint(), false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if !res.DebtRepaid.Eq(e6(750)) {
		t.Fatalf("request must be clamped to half the debt, got %s", res.DebtRepaid)
	}
}

func TestLiquidationCloseFactorFullBelowThreshold(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	// 1700 * 0.825 / 1500 = 0.935, below the 0.95 threshold.
	f.oracle.SetAssetPrice(weth, e8(1_700))
	res, err := f.engine.LiquidationCall(keeper, weth, usdc, borrower, maxUint(), false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if !res.DebtRepaid.Eq(e6(1_500)) {
		t.Fatalf("full debt must be repayable, got %s", res.DebtRepaid)
	}
	if f.state.configs[borrower].IsBorrowing(f.state.reserves[usdc].ID) {
		t.Fatalf("borrowing bit must be cleared")
	}
	if !res.Account.TotalDebtBase.IsZero() {
		t.Fatalf("unexpected remaining debt %s", res.Account.TotalDebtBase)
	}
}

func TestLiquidationCapsAtUserCollateral(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	// 1000 USDC of collateral against 1500 USDC of debt.
	f.oracle.SetAssetPrice(weth, e8(1_000))
	res, err := f.engine.LiquidationCall(keeper, weth, usdc, borrower, maxUint(), false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if !res.CollateralSeized.Eq(e18(1)) {
		t.Fatalf("whole balance must be seized, got %s", res.CollateralSeized)
	}
	// 1000 / 1.05 rounded half up.
	if !res.DebtRepaid.Eq(u(952_380_952)) {
		t.Fatalf("unexpected repaid %s", res.DebtRepaid)
	}
	if f.state.configs[borrower].IsUsingAsCollateral(f.state.reserves[weth].ID) {
		t.Fatalf("collateral bit must be cleared once the balance is gone")
	}
}

func TestLiquidationProtocolFeeGoesToTreasury(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.SetLiquidationProtocolFee(admin, weth, 1_000); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	f.leveraged()
	f.oracle.SetAssetPrice(weth, e8(1_750))
	res, err := f.engine.LiquidationCall(keeper, weth, usdc, borrower, e6(700), false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	// 10% of the 0.02 WETH bonus.
	if !res.ProtocolFee.Eq(dec("2000000000000000")) {
		t.Fatalf("unexpected fee %s", res.ProtocolFee)
	}
	if !res.CollateralSeized.Eq(dec("418000000000000000")) {
		t.Fatalf("unexpected seized %s", res.CollateralSeized)
	}
	if !f.position(treasury, weth).ScaledSupply.Eq(dec("2000000000000000")) {
		t.Fatalf("treasury must hold the fee as supply")
	}
	if !f.position(borrower, weth).ScaledSupply.Eq(dec("580000000000000000")) {
		t.Fatalf("unexpected remaining collateral")
	}
}

func TestLiquidationFeeWithoutTreasuryRejected(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.SetLiquidationProtocolFee(admin, weth, 1_000); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	f.leveraged()
	f.oracle.SetAssetPrice(weth, e8(1_750))
	// A reserve persisted with a fee outlives a restart without a treasury.
	f.engine.params.Treasury = common.Address{}
	commits := f.state.commits
	_, err := f.engine.LiquidationCall(keeper, weth, usdc, borrower, e6(700), false)
	expectCode(t, err, ErrParameterOutOfRange, ErrTreasuryNotSet)
	if f.state.commits != commits {
		t.Fatalf("rejected liquidation must not commit")
	}
	if _, ok := f.state.positions[PositionKey{User: common.Address{}, Asset: weth}]; ok {
		t.Fatalf("no supply may be credited to the zero address")
	}
	if !f.position(borrower, weth).ScaledSupply.Eq(e18(1)) {
		t.Fatalf("collateral must be untouched")
	}
}

func TestLiquidationReceiveXToken(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	f.oracle.SetAssetPrice(weth, e8(1_750))
	if _, err := f.engine.LiquidationCall(keeper, weth, usdc, borrower, e6(700), true); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if !f.position(keeper, weth).ScaledSupply.Eq(dec("420000000000000000")) {
		t.Fatalf("liquidator must receive the supply position")
	}
	if !f.state.configs[keeper].IsUsingAsCollateral(f.state.reserves[weth].ID) {
		t.Fatalf("received supply is enabled as collateral")
	}
	if !f.state.reserves[weth].State.AvailableLiquidity.Eq(e18(1)) {
		t.Fatalf("no cash leaves the reserve")
	}
}

func TestLiquidationRequiresBorrowedAsset(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	f.supply(lender, weth, e18(1))
	f.oracle.SetAssetPrice(weth, e8(1_750))
	_, err := f.engine.LiquidationCall(keeper, weth, weth, borrower, e6(1), false)
	expectCode(t, err, ErrAmountInvalid, ErrSpecifiedCurrencyNotBorrowedByUser)
	_, err = f.engine.LiquidationCall(keeper, usdc, usdc, borrower, e6(1), false)
	expectCode(t, err, ErrAssetNotEligible, ErrCollateralCannotBeLiquidated)
}
