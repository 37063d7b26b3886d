// Package reserveconfig holds the per-reserve risk parameters of the lending
// engine. Setters only validate the range of their own field; cross-field
// rules are enforced by the configurator that owns the reserve.
package reserveconfig

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidLtv                    = errors.New("reserve config: invalid ltv")
	ErrInvalidLiquidationThreshold   = errors.New("reserve config: invalid liquidation threshold")
	ErrInvalidLiquidationBonus       = errors.New("reserve config: invalid liquidation bonus")
	ErrInvalidDecimals               = errors.New("reserve config: invalid decimals")
	ErrInvalidReserveFactor          = errors.New("reserve config: invalid reserve factor")
	ErrInvalidLiquidationProtocolFee = errors.New("reserve config: invalid liquidation protocol fee")
	ErrInvalidBorrowCap              = errors.New("reserve config: invalid borrow cap")
	ErrInvalidSupplyCap              = errors.New("reserve config: invalid supply cap")
	ErrInvalidAssetType              = errors.New("reserve config: invalid asset type")
)

const (
	MaxValidLtv                    = 65_535
	MaxValidLiquidationThreshold   = 65_535
	MaxValidLiquidationBonus       = 65_535
	MaxValidDecimals               = 255
	MaxValidReserveFactor          = 10_000
	MaxValidLiquidationProtocolFee = 10_000
	// MaxValidCap is the largest whole-unit cap that fits the 36 bit slot.
	MaxValidCap uint64 = 1<<36 - 1
)

// AssetType distinguishes fungible reserves from unique-token collections.
type AssetType uint8

const (
	AssetTypeFungible AssetType = iota
	AssetTypeUnique
)

func (a AssetType) String() string {
	switch a {
	case AssetTypeFungible:
		return "fungible"
	case AssetTypeUnique:
		return "unique"
	default:
		return fmt.Sprintf("asset_type(%d)", uint8(a))
	}
}

// ParseAssetType maps the textual form used in configuration files.
func ParseAssetType(s string) (AssetType, error) {
	switch s {
	case "", "fungible", "erc20":
		return AssetTypeFungible, nil
	case "unique", "nft", "erc721":
		return AssetTypeUnique, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidAssetType, s)
	}
}

// Config is the risk parameter record of one reserve. Percentages are basis
// points. LiquidationBonus is stored as 10000 plus the liquidator premium, so
// 10500 grants a 5% premium.
type Config struct {
	ltv                    uint64
	liquidationThreshold   uint64
	liquidationBonus       uint64
	decimals               uint64
	reserveFactor          uint64
	liquidationProtocolFee uint64
	borrowCap              uint64
	supplyCap              uint64
	assetType              AssetType

	active           bool
	frozen           bool
	paused           bool
	borrowingEnabled bool
	siloedBorrowing  bool
}

func (c Config) Ltv() uint64                    { return c.ltv }
func (c Config) LiquidationThreshold() uint64   { return c.liquidationThreshold }
func (c Config) LiquidationBonus() uint64       { return c.liquidationBonus }
func (c Config) Decimals() uint8                { return uint8(c.decimals) }
func (c Config) ReserveFactor() uint64          { return c.reserveFactor }
func (c Config) LiquidationProtocolFee() uint64 { return c.liquidationProtocolFee }
func (c Config) BorrowCap() uint64              { return c.borrowCap }
func (c Config) SupplyCap() uint64              { return c.supplyCap }
func (c Config) AssetType() AssetType           { return c.assetType }
func (c Config) Active() bool                   { return c.active }
func (c Config) Frozen() bool                   { return c.frozen }
func (c Config) Paused() bool                   { return c.paused }
func (c Config) BorrowingEnabled() bool         { return c.borrowingEnabled }
func (c Config) SiloedBorrowing() bool          { return c.siloedBorrowing }

func (c *Config) SetLtv(v uint64) error {
	if v > MaxValidLtv {
		return fmt.Errorf("%w: %d", ErrInvalidLtv, v)
	}
	c.ltv = v
	return nil
}

func (c *Config) SetLiquidationThreshold(v uint64) error {
	if v > MaxValidLiquidationThreshold {
		return fmt.Errorf("%w: %d", ErrInvalidLiquidationThreshold, v)
	}
	c.liquidationThreshold = v
	return nil
}

func (c *Config) SetLiquidationBonus(v uint64) error {
	if v > MaxValidLiquidationBonus {
		return fmt.Errorf("%w: %d", ErrInvalidLiquidationBonus, v)
	}
	c.liquidationBonus = v
	return nil
}

func (c *Config) SetDecimals(v uint64) error {
	if v > MaxValidDecimals {
		return fmt.Errorf("%w: %d", ErrInvalidDecimals, v)
	}
	c.decimals = v
	return nil
}

// SetReserveFactor accepts 0..10000 inclusive.
func (c *Config) SetReserveFactor(v uint64) error {
	if v > MaxValidReserveFactor {
		return fmt.Errorf("%w: %d", ErrInvalidReserveFactor, v)
	}
	c.reserveFactor = v
	return nil
}

func (c *Config) SetLiquidationProtocolFee(v uint64) error {
	if v > MaxValidLiquidationProtocolFee {
		return fmt.Errorf("%w: %d", ErrInvalidLiquidationProtocolFee, v)
	}
	c.liquidationProtocolFee = v
	return nil
}

// SetBorrowCap sets the cap in whole units of the asset. Zero disables it.
func (c *Config) SetBorrowCap(v uint64) error {
	if v > MaxValidCap {
		return fmt.Errorf("%w: %d", ErrInvalidBorrowCap, v)
	}
	c.borrowCap = v
	return nil
}

// SetSupplyCap sets the cap in whole units (token count for unique
// reserves). Zero disables it.
func (c *Config) SetSupplyCap(v uint64) error {
	if v > MaxValidCap {
		return fmt.Errorf("%w: %d", ErrInvalidSupplyCap, v)
	}
	c.supplyCap = v
	return nil
}

func (c *Config) SetAssetType(t AssetType) error {
	if t > AssetTypeUnique {
		return fmt.Errorf("%w: %d", ErrInvalidAssetType, uint8(t))
	}
	c.assetType = t
	return nil
}

func (c *Config) SetActive(v bool)           { c.active = v }
func (c *Config) SetFrozen(v bool)           { c.frozen = v }
func (c *Config) SetPaused(v bool)           { c.paused = v }
func (c *Config) SetBorrowingEnabled(v bool) { c.borrowingEnabled = v }
func (c *Config) SetSiloedBorrowing(v bool)  { c.siloedBorrowing = v }

// Flags returns active, frozen, borrowing enabled and paused in one call.
func (c Config) Flags() (active, frozen, borrowing, paused bool) {
	return c.active, c.frozen, c.borrowingEnabled, c.paused
}

// Params returns ltv, liquidation threshold, liquidation bonus, decimals and
// reserve factor.
func (c Config) Params() (ltv, threshold, bonus uint64, decimals uint8, reserveFactor uint64) {
	return c.ltv, c.liquidationThreshold, c.liquidationBonus, uint8(c.decimals), c.reserveFactor
}

// IsCollateral reports whether the reserve can back debt at all.
func (c Config) IsCollateral() bool { return c.liquidationThreshold != 0 }
