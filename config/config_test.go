package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending"
	"lendcore/native/lending/reserveconfig"
	"lendcore/state/lendstate"
	"lendcore/storage"
)

var (
	usdc  = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	weth  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	punks = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	admin = common.HexToAddress("0x0000000000000000000000000000000000000001")
)

func loadSample(t *testing.T) *Market {
	t.Helper()
	cfg, err := Load(filepath.Join("testdata", "market.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cfg
}

func writeMarket(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "market.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadParsesMarket(t *testing.T) {
	cfg := loadSample(t)
	if len(cfg.Reserves) != 3 || len(cfg.RateStrategies) != 1 || len(cfg.AuctionStrategies) != 1 || len(cfg.Prices) != 3 {
		t.Fatalf("unexpected market %+v", cfg)
	}
	if cfg.Reserves[1].Type != "fungible" {
		t.Fatalf("reserve type must default to fungible, got %q", cfg.Reserves[1].Type)
	}
	params, err := cfg.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.CloseFactorHFThreshold.Dec() != "950000000000000000000000000" {
		t.Fatalf("unexpected close factor threshold %s", params.CloseFactorHFThreshold.Dec())
	}
	if params.Treasury != common.HexToAddress("0x00000000000000000000000000000000000000fe") {
		t.Fatalf("unexpected treasury %s", params.Treasury.Hex())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeMarket(t, "Treasury = \"0x00000000000000000000000000000000000000fe\"\nCloseFactor = 5000\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "CloseFactor") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "market.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Liquidation.AuctionRecoveryHealthFactor != DefaultAuctionRecoveryHealthFactor {
		t.Fatalf("unexpected default %+v", cfg.Liquidation)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(again.Reserves) != 0 {
		t.Fatalf("unexpected reserves in default market")
	}
}

func TestParseRay(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1", "1000000000000000000000000000", true},
		{"0.95", "950000000000000000000000000", true},
		{".5", "500000000000000000000000000", true},
		{"0", "0", true},
		{"0.000000000000000000000000001", "1", true},
		{"0.0000000000000000000000000001", "", false},
		{"1e3", "", false},
		{"-1", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseRay(tc.in)
		if tc.ok != (err == nil) {
			t.Fatalf("%q: unexpected error state %v", tc.in, err)
		}
		if tc.ok && got.Dec() != tc.want {
			t.Fatalf("%q: got %s want %s", tc.in, got.Dec(), tc.want)
		}
	}
}

func TestValidateMarketRejects(t *testing.T) {
	cases := map[string]func(m *Market){
		"bad treasury":          func(m *Market) { m.Treasury = "nhb1xyz" },
		"close factor above 1":  func(m *Market) { m.Liquidation.CloseFactorHFThreshold = "1.01" },
		"recovery below 1":      func(m *Market) { m.Liquidation.AuctionRecoveryHealthFactor = "0.9" },
		"duplicate rate":        func(m *Market) { m.RateStrategies = append(m.RateStrategies, m.RateStrategies[0]) },
		"bad optimal usage":     func(m *Market) { m.RateStrategies[0].OptimalUsageBps = 10_000 },
		"unknown rate strategy": func(m *Market) { m.Reserves[0].InterestRateStrategy = "0x0000000000000000000000000000000000000bad" },
		"ltv above threshold":   func(m *Market) { m.Reserves[0].LtvBps = 9000 },
		"bonus too small":       func(m *Market) { m.Reserves[0].LiquidationBonusBps = 10_000 },
		"threshold times bonus": func(m *Market) { m.Reserves[0].LiquidationThresholdBps = 9600 },
		"duplicate asset":       func(m *Market) { m.Reserves = append(m.Reserves, m.Reserves[0]) },
		"unique with decimals":  func(m *Market) { m.Reserves[2].Decimals = 18 },
		"unique borrowable":     func(m *Market) { m.Reserves[2].BorrowingEnabled = true },
		"auction on fungible":   func(m *Market) { m.Reserves[0].AuctionStrategy = m.AuctionStrategies[0].Address },
		"floor on fungible":     func(m *Market) { m.Prices[0].Floor = true },
		"bad price":             func(m *Market) { m.Prices[0].Price = "1.5" },
		"fee without treasury":  func(m *Market) { m.Treasury = "" },
		"cap too large":         func(m *Market) { m.Reserves[0].BorrowCap = reserveconfig.MaxValidCap + 1 },
	}
	for name, mutate := range cases {
		cfg := loadSample(t)
		mutate(cfg)
		if err := ValidateMarket(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestApplyListsReserves(t *testing.T) {
	cfg := loadSample(t)
	params, err := cfg.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	engine := lending.NewEngine(params)
	engine.SetState(lendstate.New(storage.NewMemDB()))
	engine.SetAuthorizer(lending.AuthorizerFunc(func(caller common.Address, _ lending.Action, _ common.Address) bool {
		return caller == admin
	}))
	oracle := lending.NewStaticOracle()
	engine.SetOracle(oracle)

	if err := cfg.Apply(engine, oracle, admin); err != nil {
		t.Fatalf("apply: %v", err)
	}
	list, err := engine.GetReservesList()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0] != usdc || list[1] != weth || list[2] != punks {
		t.Fatalf("unexpected list %v", list)
	}
	data, err := engine.GetReserve(usdc)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	c := data.Reserve.Config
	if c.ReserveFactor() != 1000 || c.LiquidationProtocolFee() != 1000 || c.SupplyCap() != 1_000_000_000 || !c.BorrowingEnabled() {
		t.Fatalf("unexpected usdc config %+v", c)
	}
	unique, err := engine.GetReserve(punks)
	if err != nil {
		t.Fatalf("unique reserve: %v", err)
	}
	if !unique.Reserve.IsUnique() || unique.Reserve.AuctionStrategy != common.HexToAddress("0x0000000000000000000000000000000000000f02") {
		t.Fatalf("unexpected unique reserve %+v", unique.Reserve)
	}
	floor, err := oracle.GetUniqueAssetFloorPrice(punks)
	if err != nil || !floor.Eq(uint256.NewInt(1_000_000_000_000)) {
		t.Fatalf("unexpected floor %v %v", floor, err)
	}

	// A second run leaves listed reserves alone.
	if err := engine.SetReserveFactor(admin, usdc, 2000); err != nil {
		t.Fatalf("set factor: %v", err)
	}
	if err := cfg.Apply(engine, oracle, admin); err != nil {
		t.Fatalf("reapply: %v", err)
	}
	data, _ = engine.GetReserve(usdc)
	if data.Reserve.Config.ReserveFactor() != 2000 {
		t.Fatalf("reapply must not reconfigure existing reserves")
	}
}

func TestApplyRequiresAuthorization(t *testing.T) {
	cfg := loadSample(t)
	engine := lending.NewEngine(lending.DefaultParams())
	engine.SetState(lendstate.New(storage.NewMemDB()))
	if err := cfg.Apply(engine, nil, admin); err == nil {
		t.Fatalf("expected authorization failure without an authorizer")
	}
}
