package reserveconfig

import (
	"errors"
	"testing"
)

func TestReserveFactorBounds(t *testing.T) {
	var cfg Config
	if err := cfg.SetReserveFactor(10_001); !errors.Is(err, ErrInvalidReserveFactor) {
		t.Fatalf("expected invalid reserve factor, got %v", err)
	}
	if cfg.ReserveFactor() != 0 {
		t.Fatalf("rejected setter must not mutate, got %d", cfg.ReserveFactor())
	}
	if err := cfg.SetReserveFactor(10_000); err != nil {
		t.Fatalf("10000 must be accepted: %v", err)
	}
	if cfg.ReserveFactor() != 10_000 {
		t.Fatalf("unexpected reserve factor %d", cfg.ReserveFactor())
	}
}

func TestSetterRanges(t *testing.T) {
	var cfg Config
	checks := []struct {
		name string
		err  error
		want error
	}{
		{"ltv", cfg.SetLtv(65_536), ErrInvalidLtv},
		{"threshold", cfg.SetLiquidationThreshold(65_536), ErrInvalidLiquidationThreshold},
		{"bonus", cfg.SetLiquidationBonus(65_536), ErrInvalidLiquidationBonus},
		{"decimals", cfg.SetDecimals(256), ErrInvalidDecimals},
		{"protocol fee", cfg.SetLiquidationProtocolFee(10_001), ErrInvalidLiquidationProtocolFee},
		{"borrow cap", cfg.SetBorrowCap(MaxValidCap + 1), ErrInvalidBorrowCap},
		{"supply cap", cfg.SetSupplyCap(MaxValidCap + 1), ErrInvalidSupplyCap},
		{"asset type", cfg.SetAssetType(AssetType(7)), ErrInvalidAssetType},
	}
	for _, c := range checks {
		if !errors.Is(c.err, c.want) {
			t.Fatalf("%s: expected %v, got %v", c.name, c.want, c.err)
		}
	}
	if err := cfg.SetLtv(65_535); err != nil {
		t.Fatalf("max ltv rejected: %v", err)
	}
	if err := cfg.SetSupplyCap(MaxValidCap); err != nil {
		t.Fatalf("max supply cap rejected: %v", err)
	}
}

func TestSettersDoNotCrossValidate(t *testing.T) {
	var cfg Config
	// ltv above threshold is the configurator's concern.
	if err := cfg.SetLtv(9_000); err != nil {
		t.Fatalf("set ltv: %v", err)
	}
	if err := cfg.SetLiquidationThreshold(8_000); err != nil {
		t.Fatalf("set threshold: %v", err)
	}
}

func TestPackUnpack(t *testing.T) {
	var cfg Config
	mustSet := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("setter: %v", err)
		}
	}
	mustSet(cfg.SetLtv(7_500))
	mustSet(cfg.SetLiquidationThreshold(8_000))
	mustSet(cfg.SetLiquidationBonus(10_500))
	mustSet(cfg.SetDecimals(18))
	mustSet(cfg.SetReserveFactor(1_000))
	mustSet(cfg.SetBorrowCap(MaxValidCap))
	mustSet(cfg.SetSupplyCap(1_234_567))
	mustSet(cfg.SetLiquidationProtocolFee(1_000))
	mustSet(cfg.SetAssetType(AssetTypeUnique))
	cfg.SetActive(true)
	cfg.SetBorrowingEnabled(true)
	cfg.SetSiloedBorrowing(true)

	word := cfg.Pack()
	if got := word.Uint64() & 0xffff; got != 7_500 {
		t.Fatalf("ltv not in low bits: %d", got)
	}
	decoded, err := Unpack(word)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if decoded != cfg {
		t.Fatalf("decoded config differs: %+v vs %+v", decoded, cfg)
	}
	if decoded.Frozen() || decoded.Paused() {
		t.Fatalf("unexpected flags set")
	}
}

func TestParseAssetType(t *testing.T) {
	if got, err := ParseAssetType("nft"); err != nil || got != AssetTypeUnique {
		t.Fatalf("unexpected parse result %v %v", got, err)
	}
	if _, err := ParseAssetType("bond"); !errors.Is(err, ErrInvalidAssetType) {
		t.Fatalf("expected invalid asset type, got %v", err)
	}
}
