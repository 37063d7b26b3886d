package reserveconfig

import (
	"errors"

	"github.com/holiman/uint256"
)

// Bit layout of the packed word.
const (
	ltvStart                    = 0
	liquidationThresholdStart   = 16
	liquidationBonusStart       = 32
	decimalsStart               = 48
	activeBit                   = 56
	frozenBit                   = 57
	borrowingBit                = 58
	pausedBit                   = 60
	siloedBit                   = 62
	reserveFactorStart          = 64
	borrowCapStart              = 80
	supplyCapStart              = 116
	liquidationProtocolFeeStart = 152
	assetTypeStart              = 168
)

var ErrMalformedWord = errors.New("reserve config: malformed packed word")

// Pack encodes the config into a single 256-bit word. Storage code uses it to
// keep one slot per reserve; the engine works on the struct form.
func (c Config) Pack() *uint256.Int {
	out := new(uint256.Int)
	put := func(v uint64, start uint) {
		out.Or(out, new(uint256.Int).Lsh(uint256.NewInt(v), start))
	}
	flag := func(v bool, bit uint) {
		if v {
			put(1, bit)
		}
	}
	put(c.ltv, ltvStart)
	put(c.liquidationThreshold, liquidationThresholdStart)
	put(c.liquidationBonus, liquidationBonusStart)
	put(c.decimals, decimalsStart)
	flag(c.active, activeBit)
	flag(c.frozen, frozenBit)
	flag(c.borrowingEnabled, borrowingBit)
	flag(c.paused, pausedBit)
	flag(c.siloedBorrowing, siloedBit)
	put(c.reserveFactor, reserveFactorStart)
	put(c.borrowCap, borrowCapStart)
	put(c.supplyCap, supplyCapStart)
	put(c.liquidationProtocolFee, liquidationProtocolFeeStart)
	put(uint64(c.assetType), assetTypeStart)
	return out
}

// Unpack decodes a word produced by Pack. Out-of-range fields are rejected
// through the regular setters.
func Unpack(word *uint256.Int) (Config, error) {
	var c Config
	if word == nil {
		return c, ErrMalformedWord
	}
	get := func(start, width uint) uint64 {
		v := new(uint256.Int).Rsh(word, start)
		mask := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), width), uint256.NewInt(1))
		return v.And(v, mask).Uint64()
	}
	bit := func(pos uint) bool { return get(pos, 1) == 1 }

	if err := errors.Join(
		c.SetLtv(get(ltvStart, 16)),
		c.SetLiquidationThreshold(get(liquidationThresholdStart, 16)),
		c.SetLiquidationBonus(get(liquidationBonusStart, 16)),
		c.SetDecimals(get(decimalsStart, 8)),
		c.SetReserveFactor(get(reserveFactorStart, 16)),
		c.SetBorrowCap(get(borrowCapStart, 36)),
		c.SetSupplyCap(get(supplyCapStart, 36)),
		c.SetLiquidationProtocolFee(get(liquidationProtocolFeeStart, 16)),
		c.SetAssetType(AssetType(get(assetTypeStart, 8))),
	); err != nil {
		return Config{}, errors.Join(ErrMalformedWord, err)
	}
	c.active = bit(activeBit)
	c.frozen = bit(frozenBit)
	c.borrowingEnabled = bit(borrowingBit)
	c.paused = bit(pausedBit)
	c.siloedBorrowing = bit(siloedBit)
	return c, nil
}
