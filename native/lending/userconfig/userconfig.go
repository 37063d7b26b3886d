// Package userconfig implements the per-account reserve bitmap: two bits per
// reserve id, borrowing at 2*id and collateral at 2*id+1.
package userconfig

import (
	"errors"
	"math/bits"

	"github.com/holiman/uint256"
)

// MaxReserves is the number of reserve ids addressable by one bitmap.
const MaxReserves = 128

var ErrInvalidReserveIndex = errors.New("user config: invalid reserve index")

// Config is a copyable value; the zero value is an empty position.
type Config struct {
	data uint256.Int
}

// FromWord wraps a stored bitmap.
func FromWord(word *uint256.Int) Config {
	var c Config
	if word != nil {
		c.data.Set(word)
	}
	return c
}

// Word returns a copy of the underlying bitmap.
func (c Config) Word() *uint256.Int { return new(uint256.Int).Set(&c.data) }

func bitSet(w *uint256.Int, pos uint) bool {
	return w[pos/64]&(1<<(pos%64)) != 0
}

func setBit(w *uint256.Int, pos uint, v bool) {
	if v {
		w[pos/64] |= 1 << (pos % 64)
		return
	}
	w[pos/64] &^= 1 << (pos % 64)
}

func check(id uint16) error {
	if id >= MaxReserves {
		return ErrInvalidReserveIndex
	}
	return nil
}

func (c *Config) SetBorrowing(id uint16, borrowing bool) error {
	if err := check(id); err != nil {
		return err
	}
	setBit(&c.data, uint(id)*2, borrowing)
	return nil
}

func (c *Config) SetUsingAsCollateral(id uint16, using bool) error {
	if err := check(id); err != nil {
		return err
	}
	setBit(&c.data, uint(id)*2+1, using)
	return nil
}

func (c Config) IsBorrowing(id uint16) bool {
	return id < MaxReserves && bitSet(&c.data, uint(id)*2)
}

func (c Config) IsUsingAsCollateral(id uint16) bool {
	return id < MaxReserves && bitSet(&c.data, uint(id)*2+1)
}

func (c Config) IsUsingAsCollateralOrBorrowing(id uint16) bool {
	return c.IsBorrowing(id) || c.IsUsingAsCollateral(id)
}

const (
	borrowingMask  = 0x5555555555555555
	collateralMask = 0xAAAAAAAAAAAAAAAA
)

func (c Config) count(mask uint64) int {
	n := 0
	for _, limb := range c.data {
		n += bits.OnesCount64(limb & mask)
	}
	return n
}

func (c Config) IsBorrowingAny() bool { return c.count(borrowingMask) > 0 }

// IsBorrowingOne reports whether exactly one reserve is borrowed.
func (c Config) IsBorrowingOne() bool { return c.count(borrowingMask) == 1 }

func (c Config) IsUsingAsCollateralAny() bool { return c.count(collateralMask) > 0 }

func (c Config) IsUsingAsCollateralOne() bool { return c.count(collateralMask) == 1 }

func (c Config) IsEmpty() bool { return c.data.IsZero() }

// FirstBorrowed returns the lowest borrowed reserve id.
func (c Config) FirstBorrowed() (uint16, bool) {
	for i, limb := range c.data {
		if masked := limb & borrowingMask; masked != 0 {
			return uint16((i*64 + bits.TrailingZeros64(masked)) / 2), true
		}
	}
	return 0, false
}

// Reserves calls fn for every id that is borrowed or used as collateral, in
// ascending order. Iteration stops when fn returns false.
func (c Config) Reserves(fn func(id uint16, borrowing, collateral bool) bool) {
	for id := uint16(0); id < MaxReserves; id++ {
		b, col := c.IsBorrowing(id), c.IsUsingAsCollateral(id)
		if !b && !col {
			continue
		}
		if !fn(id, b, col) {
			return
		}
	}
}

// SiloedBorrowingState resolves the siloed rule: when the account borrows
// exactly one reserve, the id of that reserve is returned together with
// whether isSiloed reports it as siloed.
func (c Config) SiloedBorrowingState(isSiloed func(id uint16) bool) (bool, uint16) {
	if !c.IsBorrowingOne() {
		return false, 0
	}
	id, _ := c.FirstBorrowed()
	return isSiloed(id), id
}
