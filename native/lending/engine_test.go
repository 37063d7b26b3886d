package lending

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
	nativecommon "lendcore/native/common"
	"lendcore/native/lending/interest"
	"lendcore/native/lending/reserveconfig"
	"lendcore/native/lending/userconfig"
)

type mockState struct {
	reserves  map[common.Address]*Reserve
	list      []common.Address
	configs   map[common.Address]userconfig.Config
	positions map[PositionKey]*Position
	uniques   map[PositionKey]*UniqueBalance
	tokens    map[TokenKey]*TokenRecord
	auctions  map[TokenKey]*AuctionRecord

	commits    int
	failCommit error
}

func newMockState() *mockState {
	return &mockState{
		reserves:  make(map[common.Address]*Reserve),
		configs:   make(map[common.Address]userconfig.Config),
		positions: make(map[PositionKey]*Position),
		uniques:   make(map[PositionKey]*UniqueBalance),
		tokens:    make(map[TokenKey]*TokenRecord),
		auctions:  make(map[TokenKey]*AuctionRecord),
	}
}

func (m *mockState) GetReserve(asset common.Address) (*Reserve, error) {
	return m.reserves[asset].Clone(), nil
}

func (m *mockState) GetReservesList() ([]common.Address, error) {
	return append([]common.Address(nil), m.list...), nil
}

func (m *mockState) GetUserConfig(user common.Address) (userconfig.Config, error) {
	return m.configs[user], nil
}

func (m *mockState) GetPosition(user, asset common.Address) (*Position, error) {
	p, ok := m.positions[PositionKey{User: user, Asset: asset}]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

func (m *mockState) GetUniqueBalance(user, collection common.Address) (*UniqueBalance, error) {
	b, ok := m.uniques[PositionKey{User: user, Asset: collection}]
	if !ok {
		return nil, nil
	}
	clone := *b
	return &clone, nil
}

func (m *mockState) GetToken(collection common.Address, id *uint256.Int) (*TokenRecord, error) {
	rec, ok := m.tokens[tokenKey(collection, id)]
	if !ok {
		return nil, nil
	}
	clone := *rec
	return &clone, nil
}

func (m *mockState) GetAuction(collection common.Address, id *uint256.Int) (*AuctionRecord, error) {
	rec, ok := m.auctions[tokenKey(collection, id)]
	if !ok {
		return nil, nil
	}
	return &AuctionRecord{Collection: rec.Collection, TokenID: new(uint256.Int).Set(rec.TokenID), StartTime: rec.StartTime}, nil
}

func (m *mockState) Commit(c *ChangeSet) error {
	if m.failCommit != nil {
		return m.failCommit
	}
	m.commits++
	for k, v := range c.Reserves {
		m.reserves[k] = v.Clone()
	}
	if c.ReservesList != nil {
		m.list = append([]common.Address(nil), c.ReservesList...)
	}
	for k, v := range c.UserConfigs {
		m.configs[k] = v
	}
	for k, v := range c.Positions {
		m.positions[k] = v.Clone()
	}
	for k, v := range c.UniqueBalances {
		clone := *v
		m.uniques[k] = &clone
	}
	for k, v := range c.Tokens {
		if v == nil {
			delete(m.tokens, k)
			continue
		}
		clone := *v
		m.tokens[k] = &clone
	}
	for k, v := range c.Auctions {
		if v == nil {
			delete(m.auctions, k)
			continue
		}
		m.auctions[k] = &AuctionRecord{Collection: v.Collection, TokenID: new(uint256.Int).Set(v.TokenID), StartTime: v.StartTime}
	}
	return nil
}

type recorder struct {
	events []events.Event
}

func (r *recorder) Emit(ev events.Event) { r.events = append(r.events, ev) }

func (r *recorder) count(eventType string) int {
	n := 0
	for _, ev := range r.events {
		if ev.EventType() == eventType {
			n++
		}
	}
	return n
}

func addr(b byte) common.Address {
	var a common.Address
	a[0] = 0xaa
	a[19] = b
	return a
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func dec(s string) *uint256.Int { return uint256.MustFromDecimal(s) }

// e6 and e18 scale whole units of the six and eighteen decimal test assets;
// e8 scales base-currency prices.
func e6(v uint64) *uint256.Int { return new(uint256.Int).Mul(u(v), u(1_000_000)) }

func e8(v uint64) *uint256.Int { return new(uint256.Int).Mul(u(v), u(100_000_000)) }

func e18(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(u(v), dec("1000000000000000000"))
}

var (
	admin    = addr(0x01)
	treasury = addr(0x02)
	usdc     = addr(0x10)
	weth     = addr(0x11)
	punks    = addr(0x12)
	rateAddr = addr(0x20)
	auctAddr = addr(0x21)
	lender   = addr(0x30)
	borrower = addr(0x31)
	keeper   = addr(0x32)
)

const t0 uint64 = 1_700_000_000

type fixture struct {
	t      *testing.T
	engine *Engine
	state  *mockState
	oracle *StaticOracle
	events *recorder
	now    uint64
}

// newFixture lists USDC (6 decimals), WETH (18 decimals) and a unique
// collection priced at 1, 2000 and 10000 base units respectively.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	params := DefaultParams()
	params.Treasury = treasury
	f := &fixture{
		t:      t,
		engine: NewEngine(params),
		state:  newMockState(),
		oracle: NewStaticOracle(),
		events: &recorder{},
		now:    t0,
	}
	f.engine.SetState(f.state)
	f.engine.SetOracle(f.oracle)
	f.engine.SetEmitter(f.events)
	f.engine.SetClock(func() uint64 { return f.now })
	f.engine.SetAuthorizer(AuthorizerFunc(func(caller common.Address, _ Action, _ common.Address) bool {
		return caller == admin
	}))
	if err := f.engine.RegisterInterestRateStrategy(rateAddr, interest.DefaultStrategy()); err != nil {
		t.Fatalf("register rate strategy: %v", err)
	}

	f.listFungible(usdc, 6, 7500, 8000, 10500)
	f.listFungible(weth, 18, 8000, 8250, 10500)
	if _, err := f.engine.InitReserve(admin, ReserveInput{Asset: punks, AssetType: reserveconfig.AssetTypeUnique}); err != nil {
		t.Fatalf("init unique reserve: %v", err)
	}
	if err := f.engine.ConfigureReserveAsCollateral(admin, punks, 5000, 7000, 12500); err != nil {
		t.Fatalf("configure unique reserve: %v", err)
	}

	f.oracle.SetAssetPrice(usdc, e8(1))
	f.oracle.SetAssetPrice(weth, e8(2000))
	f.oracle.SetUniqueAssetFloorPrice(punks, e8(10_000))
	f.events.events = nil
	return f
}

func (f *fixture) listFungible(asset common.Address, decimals uint8, ltv, threshold, bonus uint64) {
	f.t.Helper()
	if _, err := f.engine.InitReserve(admin, ReserveInput{Asset: asset, Decimals: decimals, InterestRateStrategy: rateAddr}); err != nil {
		f.t.Fatalf("init reserve: %v", err)
	}
	if err := f.engine.ConfigureReserveAsCollateral(admin, asset, ltv, threshold, bonus); err != nil {
		f.t.Fatalf("configure reserve: %v", err)
	}
	if err := f.engine.SetReserveBorrowingEnabled(admin, asset, true); err != nil {
		f.t.Fatalf("enable borrowing: %v", err)
	}
}

func (f *fixture) supply(user, asset common.Address, amount *uint256.Int) {
	f.t.Helper()
	if _, err := f.engine.Supply(user, asset, amount, user); err != nil {
		f.t.Fatalf("supply: %v", err)
	}
}

func (f *fixture) borrow(user, asset common.Address, amount *uint256.Int) {
	f.t.Helper()
	if _, err := f.engine.Borrow(user, asset, amount, user); err != nil {
		f.t.Fatalf("borrow: %v", err)
	}
}

// leveraged leaves borrower with 1 WETH of collateral and 1500 USDC of debt:
// a health factor of exactly 1.1.
func (f *fixture) leveraged() {
	f.t.Helper()
	f.supply(lender, usdc, e6(100_000))
	f.supply(borrower, weth, e18(1))
	f.borrow(borrower, usdc, e6(1_500))
}

func (f *fixture) position(user, asset common.Address) *Position {
	p, _ := f.state.GetPosition(user, asset)
	return p.Clone()
}

func (f *fixture) account(user common.Address) *AccountData {
	f.t.Helper()
	data, err := f.engine.GetAccountData(user)
	if err != nil {
		f.t.Fatalf("account data: %v", err)
	}
	return data
}

func expectCode(t *testing.T, err error, kind, code error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", code)
	}
	if !errors.Is(err, kind) {
		t.Fatalf("expected kind %v, got %v", kind, err)
	}
	if code != nil && !errors.Is(err, code) {
		t.Fatalf("expected code %v, got %v", code, err)
	}
}

func TestSupplyEnablesCollateralAndMovesCash(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.Supply(lender, usdc, e6(1_000), lender)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if !res.Amount.Eq(e6(1_000)) {
		t.Fatalf("unexpected amount %s", res.Amount)
	}
	if !res.Account.TotalCollateralBase.Eq(e8(1_000)) {
		t.Fatalf("unexpected collateral %s", res.Account.TotalCollateralBase)
	}
	if !res.Account.HealthFactor.Eq(maxUint()) {
		t.Fatalf("health factor without debt must be the max sentinel")
	}
	r := f.state.reserves[usdc]
	if !r.State.AvailableLiquidity.Eq(e6(1_000)) || !r.State.TotalScaledSupply.Eq(e6(1_000)) {
		t.Fatalf("unexpected reserve state %+v", r.State)
	}
	if !f.state.configs[lender].IsUsingAsCollateral(r.ID) {
		t.Fatalf("first supply must enable collateral")
	}
	if f.events.count(events.TypeLendingSupplied) != 1 || f.events.count(events.TypeLendingCollateralToggled) != 1 {
		t.Fatalf("unexpected events %v", f.events.events)
	}
}

func TestSupplyRejectsZeroAndUnlisted(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Supply(lender, usdc, u(0), lender)
	expectCode(t, err, ErrAmountInvalid, ErrInvalidAmount)
	_, err = f.engine.Supply(lender, addr(0x99), u(1), lender)
	expectCode(t, err, ErrReserveStateInvalid, ErrReserveNotListed)
	_, err = f.engine.Supply(lender, punks, u(1), lender)
	expectCode(t, err, ErrAssetNotEligible, ErrAssetTypeMismatch)
}

func TestSupplyCapIncludesExistingSupply(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.SetSupplyCap(admin, usdc, 1_000); err != nil {
		t.Fatalf("set cap: %v", err)
	}
	f.supply(lender, usdc, e6(600))
	_, err := f.engine.Supply(lender, usdc, e6(401), lender)
	expectCode(t, err, ErrCapExceeded, ErrSupplyCapExceeded)
	f.supply(lender, usdc, e6(400))
}

func TestFrozenReserveRejectsSupplyButAllowsRepay(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	if err := f.engine.SetReserveFrozen(admin, usdc, true); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	_, err := f.engine.Supply(lender, usdc, e6(1), lender)
	expectCode(t, err, ErrReserveStateInvalid, ErrReserveFrozen)
	if _, err := f.engine.Repay(borrower, usdc, e6(100), borrower); err != nil {
		t.Fatalf("repay on frozen reserve: %v", err)
	}
}

func TestBorrowComputesHealthFactor(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	data := f.account(borrower)
	if !data.TotalCollateralBase.Eq(e8(2_000)) || !data.TotalDebtBase.Eq(e8(1_500)) {
		t.Fatalf("unexpected totals %s / %s", data.TotalCollateralBase, data.TotalDebtBase)
	}
	if data.Ltv != 8000 || data.CurrentLiquidationThreshold != 8250 {
		t.Fatalf("unexpected weights ltv=%d lt=%d", data.Ltv, data.CurrentLiquidationThreshold)
	}
	if !data.HealthFactor.Eq(dec("1100000000000000000000000000")) {
		t.Fatalf("unexpected health factor %s", data.HealthFactor)
	}
	if !data.AvailableBorrowsBase.Eq(e8(100)) {
		t.Fatalf("unexpected available borrows %s", data.AvailableBorrowsBase)
	}
	cfg := f.state.configs[borrower]
	if !cfg.IsBorrowing(f.state.reserves[usdc].ID) {
		t.Fatalf("borrowing bit not set")
	}
	if !f.state.reserves[usdc].State.AvailableLiquidity.Eq(e6(98_500)) {
		t.Fatalf("unexpected cash %s", f.state.reserves[usdc].State.AvailableLiquidity)
	}
}

func TestBorrowBeyondLtvRejected(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	before := f.state.commits
	_, err := f.engine.Borrow(borrower, usdc, e6(101), borrower)
	expectCode(t, err, ErrInsufficientCollateral, ErrCollateralCannotCoverNewBorrow)
	if f.state.commits != before {
		t.Fatalf("rejected borrow must not commit")
	}
}

func TestBorrowWithoutCollateralRejected(t *testing.T) {
	f := newFixture(t)
	f.supply(lender, usdc, e6(1_000))
	_, err := f.engine.Borrow(borrower, usdc, e6(1), borrower)
	expectCode(t, err, ErrInsufficientCollateral, ErrCollateralBalanceZero)
}

func TestBorrowOnBehalfOfAnotherAccountRejected(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	before := f.state.commits
	_, err := f.engine.Borrow(keeper, usdc, e6(50), borrower)
	expectCode(t, err, ErrUnauthorized, ErrBorrowOnBehalfNotAllowed)
	if f.state.commits != before {
		t.Fatalf("rejected borrow must not commit")
	}
	if data := f.account(borrower); !data.TotalDebtBase.Eq(e8(1_500)) {
		t.Fatalf("borrower debt changed to %s", data.TotalDebtBase)
	}
	if !f.state.reserves[usdc].State.AvailableLiquidity.Eq(e6(98_500)) {
		t.Fatalf("unexpected cash %s", f.state.reserves[usdc].State.AvailableLiquidity)
	}
}

func TestBorrowDisabledAndLiquidity(t *testing.T) {
	f := newFixture(t)
	f.supply(borrower, weth, e18(10))
	_, err := f.engine.Borrow(borrower, usdc, e6(1), borrower)
	expectCode(t, err, ErrReserveStateInvalid, ErrInsufficientLiquidity)
	if err := f.engine.SetReserveBorrowingEnabled(admin, usdc, false); err != nil {
		t.Fatalf("disable borrowing: %v", err)
	}
	_, err = f.engine.Borrow(borrower, usdc, e6(1), borrower)
	expectCode(t, err, ErrReserveStateInvalid, ErrBorrowingNotEnabled)
}

func TestBorrowCap(t *testing.T) {
	f := newFixture(t)
	f.supply(lender, usdc, e6(10_000))
	f.supply(borrower, weth, e18(1))
	if err := f.engine.SetBorrowCap(admin, usdc, 100); err != nil {
		t.Fatalf("set cap: %v", err)
	}
	_, err := f.engine.Borrow(borrower, usdc, e6(101), borrower)
	expectCode(t, err, ErrCapExceeded, ErrBorrowCapExceeded)
	f.borrow(borrower, usdc, e6(100))
}

func TestSiloedBorrowing(t *testing.T) {
	f := newFixture(t)
	f.supply(lender, usdc, e6(10_000))
	f.supply(lender, weth, e18(10))
	if err := f.engine.SetSiloedBorrowing(admin, weth, true); err != nil {
		t.Fatalf("set siloed: %v", err)
	}
	f.supply(borrower, usdc, e6(10_000))
	f.borrow(borrower, weth, dec("100000000000000000"))
	_, err := f.engine.Borrow(borrower, usdc, e6(10), borrower)
	expectCode(t, err, ErrAssetNotEligible, ErrSiloedBorrowingViolation)
	f.borrow(borrower, weth, dec("100000000000000000"))

	err = f.engine.SetSiloedBorrowing(admin, weth, false)
	expectCode(t, err, ErrReserveStateInvalid, ErrReserveHasBorrowers)
}

func TestRepayFullClearsBorrowingBit(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	res, err := f.engine.Repay(borrower, usdc, maxUint(), borrower)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if !res.Amount.Eq(e6(1_500)) {
		t.Fatalf("unexpected repaid amount %s", res.Amount)
	}
	if f.state.configs[borrower].IsBorrowing(f.state.reserves[usdc].ID) {
		t.Fatalf("borrowing bit must be cleared")
	}
	if !f.position(borrower, usdc).ScaledDebt.IsZero() {
		t.Fatalf("debt must be zero")
	}
	_, err = f.engine.Repay(borrower, usdc, e6(1), borrower)
	expectCode(t, err, ErrAmountInvalid, ErrNoDebtOfSelectedType)
}

func TestWithdrawChecksHealth(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	_, err := f.engine.Withdraw(borrower, weth, dec("200000000000000000"), borrower)
	expectCode(t, err, ErrHealthFactorTooLow, ErrHealthFactorBelowThreshold)

	res, err := f.engine.Withdraw(borrower, weth, dec("50000000000000000"), borrower)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !res.Amount.Eq(dec("50000000000000000")) {
		t.Fatalf("unexpected amount %s", res.Amount)
	}
	_, err = f.engine.Withdraw(borrower, weth, e18(2), borrower)
	expectCode(t, err, ErrAmountInvalid, ErrNotEnoughAvailableUserBalance)
}

func TestWithdrawMaxClearsCollateral(t *testing.T) {
	f := newFixture(t)
	f.supply(lender, usdc, e6(500))
	res, err := f.engine.Withdraw(lender, usdc, maxUint(), lender)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !res.Amount.Eq(e6(500)) {
		t.Fatalf("unexpected amount %s", res.Amount)
	}
	if !f.state.configs[lender].IsEmpty() {
		t.Fatalf("user config must be empty")
	}
}

func TestDisableCollateralRejectedLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	commits := f.state.commits
	emitted := len(f.events.events)
	_, err := f.engine.SetUsingAsCollateral(borrower, weth, false)
	expectCode(t, err, ErrHealthFactorTooLow, ErrHealthFactorBelowThreshold)
	if f.state.commits != commits || len(f.events.events) != emitted {
		t.Fatalf("rejected toggle must not commit or emit")
	}
	if !f.state.configs[borrower].IsUsingAsCollateral(f.state.reserves[weth].ID) {
		t.Fatalf("collateral flag must be unchanged")
	}
}

func TestEnableCollateralAllowedWhileUnhealthy(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	f.supply(borrower, usdc, e6(500))
	if _, err := f.engine.SetUsingAsCollateral(borrower, usdc, false); err != nil {
		t.Fatalf("disable while healthy: %v", err)
	}
	f.oracle.SetAssetPrice(weth, e8(1_000))
	one := dec("1000000000000000000000000000")
	before := f.account(borrower).HealthFactor
	if !before.Lt(one) {
		t.Fatalf("expected an unhealthy account, got %s", before)
	}
	res, err := f.engine.SetUsingAsCollateral(borrower, usdc, true)
	if err != nil {
		t.Fatalf("enable while unhealthy: %v", err)
	}
	if !res.Account.HealthFactor.Gt(before) || !res.Account.HealthFactor.Lt(one) {
		t.Fatalf("unexpected health factor %s after enabling, was %s", res.Account.HealthFactor, before)
	}
	if !f.state.configs[borrower].IsUsingAsCollateral(f.state.reserves[usdc].ID) {
		t.Fatalf("collateral flag must be set")
	}
	_, err = f.engine.SetUsingAsCollateral(borrower, usdc, false)
	expectCode(t, err, ErrHealthFactorTooLow, ErrHealthFactorBelowThreshold)
}

func TestCollateralToggleWithoutDebt(t *testing.T) {
	f := newFixture(t)
	f.supply(lender, usdc, e6(10))
	if _, err := f.engine.SetUsingAsCollateral(lender, usdc, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if f.account(lender).TotalCollateralBase.Sign() != 0 {
		t.Fatalf("collateral should not count once disabled")
	}
	if _, err := f.engine.SetUsingAsCollateral(lender, usdc, true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	_, err := f.engine.SetUsingAsCollateral(borrower, usdc, true)
	expectCode(t, err, ErrAmountInvalid, ErrUnderlyingBalanceZero)
}

func TestAccrualIsIdempotentWithinTimestamp(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	f.now += 365 * 24 * 3600
	f.supply(lender, usdc, e6(1))
	first := f.state.reserves[usdc].State.Clone()
	if !first.LiquidityIndex.Gt(dec("1000000000000000000000000000")) {
		t.Fatalf("liquidity index must grow, got %s", first.LiquidityIndex)
	}
	if !first.VariableBorrowIndex.Gt(first.LiquidityIndex) {
		t.Fatalf("borrow index must outgrow liquidity index")
	}
	if first.AccruedToTreasury.Sign() != 0 {
		t.Fatalf("zero reserve factor accrues nothing to the treasury")
	}
	f.supply(lender, usdc, e6(1))
	second := f.state.reserves[usdc].State
	if !second.LiquidityIndex.Eq(first.LiquidityIndex) || !second.VariableBorrowIndex.Eq(first.VariableBorrowIndex) {
		t.Fatalf("second update within the same second must not accrue")
	}
}

func TestReserveFactorAccruesToTreasury(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.SetReserveFactor(admin, usdc, 1_000); err != nil {
		t.Fatalf("reserve factor: %v", err)
	}
	f.leveraged()
	f.now += 30 * 24 * 3600
	if err := f.engine.MintToTreasury([]common.Address{usdc}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if f.position(treasury, usdc).ScaledSupply.Sign() == 0 {
		t.Fatalf("treasury must receive supply")
	}
	if f.state.reserves[usdc].State.AccruedToTreasury.Sign() != 0 {
		t.Fatalf("accrued must reset")
	}
	if f.events.count(events.TypeLendingMintedToTreasury) != 1 {
		t.Fatalf("expected mint event")
	}
}

func TestGetReserveProjectsIndices(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	f.now += 24 * 3600
	data, err := f.engine.GetReserve(usdc)
	if err != nil {
		t.Fatalf("get reserve: %v", err)
	}
	if !data.NormalizedDebt.Gt(data.Reserve.State.VariableBorrowIndex) {
		t.Fatalf("normalized debt must include pending interest")
	}
	if !data.TotalVariableDebt.Gt(e6(1_500)) {
		t.Fatalf("unexpected total debt %s", data.TotalVariableDebt)
	}
	if f.state.reserves[usdc].State.LastUpdateTimestamp != t0 {
		t.Fatalf("read path must not mutate state")
	}
}

func TestModulePauseBlocksMutations(t *testing.T) {
	f := newFixture(t)
	pauses := nativecommon.NewPauseSet(moduleName)
	f.engine.SetPauses(pauses)
	_, err := f.engine.Supply(lender, usdc, e6(1), lender)
	expectCode(t, err, ErrReserveStateInvalid, ErrModulePaused)
	if !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("cause must be preserved: %v", err)
	}
	if _, err := f.engine.GetAccountData(lender); err != nil {
		t.Fatalf("reads stay available: %v", err)
	}
	pauses.Set(moduleName, false)
	f.supply(lender, usdc, e6(1))
}

func TestCommitFailureDropsEvents(t *testing.T) {
	f := newFixture(t)
	f.state.failCommit = errors.New("disk full")
	_, err := f.engine.Supply(lender, usdc, e6(1), lender)
	expectCode(t, err, ErrInternal, ErrStorage)
	if len(f.events.events) != 0 {
		t.Fatalf("events must not be published on failed commit")
	}
}

func TestMissingPriceRejectsBorrow(t *testing.T) {
	f := newFixture(t)
	f.supply(lender, usdc, e6(1_000))
	f.supply(borrower, weth, e18(1))
	f.oracle.SetAssetPrice(weth, u(0))
	_, err := f.engine.Borrow(borrower, usdc, e6(1), borrower)
	expectCode(t, err, ErrReserveStateInvalid, ErrPriceUnavailable)
}

func TestGetUserPositions(t *testing.T) {
	f := newFixture(t)
	f.leveraged()
	positions, err := f.engine.GetUserPositions(borrower)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("expected two positions, got %d", len(positions))
	}
}

func maxUint() *uint256.Int { return new(uint256.Int).SetAllOne() }
