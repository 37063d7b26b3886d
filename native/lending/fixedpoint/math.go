// Package fixedpoint implements the two numeric domains used by the lending
// engine: percentage math with four decimals of precision (basis points) and
// ray math with 27 decimals. Every helper operates on 256-bit unsigned
// integers, rounds half up, and reports overflow of the multiply step instead
// of wrapping.
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow reports that an intermediate product or sum exceeded 256 bits.
	ErrOverflow = errors.New("fixedpoint: arithmetic overflow")
	// ErrDivisionByZero reports a division by a zero denominator.
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
	// ErrUnderflow reports a subtraction whose result would be negative.
	ErrUnderflow = errors.New("fixedpoint: arithmetic underflow")
)

const (
	// PercentageFactor is 100.00% expressed in basis points.
	PercentageFactor uint64 = 10_000
	// HalfPercentage is 50.00% expressed in basis points.
	HalfPercentage uint64 = PercentageFactor / 2
	// SecondsPerYear is the year length used for linear interest accrual.
	SecondsPerYear uint64 = 365 * 24 * 60 * 60
)

var (
	// Ray is 1.0 with 27 decimals.
	Ray = uint256.MustFromDecimal("1000000000000000000000000000")
	// HalfRay is 0.5 with 27 decimals.
	HalfRay = uint256.MustFromDecimal("500000000000000000000000000")
	// MaxUint256 is the largest representable value. The risk evaluator
	// uses it as the "infinite" health factor sentinel.
	MaxUint256 = new(uint256.Int).SetAllOne()

	rayPerPercent  = uint256.MustFromDecimal("100000000000000000000000")
	percentFactor  = uint256.NewInt(PercentageFactor)
	halfPercentage = uint256.NewInt(HalfPercentage)
	secondsPerYear = uint256.NewInt(SecondsPerYear)
)

// Zero returns a freshly allocated zero value.
func Zero() *uint256.Int { return new(uint256.Int) }

// One returns a freshly allocated copy of Ray.
func One() *uint256.Int { return new(uint256.Int).Set(Ray) }

// Clone returns a copy of v, treating nil as zero.
func Clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return Clone(a)
	}
	return Clone(b)
}

// Max returns a copy of the larger of a and b.
func Max(a, b *uint256.Int) *uint256.Int {
	if a.Gt(b) {
		return Clone(a)
	}
	return Clone(b)
}

// Add returns a+b or ErrOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Sub returns a-b or ErrUnderflow.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrUnderflow
	}
	return out, nil
}

// SubFloor returns a-b, or zero when b > a.
func SubFloor(a, b *uint256.Int) *uint256.Int {
	if b.Gt(a) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

// MulDiv returns floor(a*b/d). The product must fit in 256 bits.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, d), nil
}

// PercentMul returns value*percentage/10000 rounded half up.
func PercentMul(value *uint256.Int, percentage uint64) (*uint256.Int, error) {
	if value.IsZero() || percentage == 0 {
		return new(uint256.Int), nil
	}
	product, overflow := new(uint256.Int).MulOverflow(value, uint256.NewInt(percentage))
	if overflow {
		return nil, ErrOverflow
	}
	if _, overflow = product.AddOverflow(product, halfPercentage); overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, percentFactor), nil
}

// PercentDiv returns value*10000/percentage rounded half up.
func PercentDiv(value *uint256.Int, percentage uint64) (*uint256.Int, error) {
	if percentage == 0 {
		return nil, ErrDivisionByZero
	}
	pct := uint256.NewInt(percentage)
	product, overflow := new(uint256.Int).MulOverflow(value, percentFactor)
	if overflow {
		return nil, ErrOverflow
	}
	if _, overflow = product.AddOverflow(product, uint256.NewInt(percentage/2)); overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, pct), nil
}

// RayMul returns a*b/1e27 rounded half up.
func RayMul(a, b *uint256.Int) (*uint256.Int, error) {
	if a.IsZero() || b.IsZero() {
		return new(uint256.Int), nil
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	if _, overflow = product.AddOverflow(product, HalfRay); overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, Ray), nil
}

// RayDiv returns a*1e27/b rounded half up.
func RayDiv(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	product, overflow := new(uint256.Int).MulOverflow(a, Ray)
	if overflow {
		return nil, ErrOverflow
	}
	half := new(uint256.Int).Rsh(b, 1)
	if _, overflow = product.AddOverflow(product, half); overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, b), nil
}

// PercentToRay converts basis points to ray (1 bp = 1e23 ray).
func PercentToRay(percentage uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(percentage), rayPerPercent)
}

// RayToPercent converts a ray value to basis points rounded half up.
func RayToPercent(value *uint256.Int) (uint64, error) {
	out, overflow := new(uint256.Int).AddOverflow(value, new(uint256.Int).Rsh(rayPerPercent, 1))
	if overflow {
		return 0, ErrOverflow
	}
	out.Div(out, rayPerPercent)
	if !out.IsUint64() {
		return 0, ErrOverflow
	}
	return out.Uint64(), nil
}

// LinearInterest returns the ray growth factor 1 + rate*elapsed/SecondsPerYear
// for a yearly ray rate applied over elapsed seconds.
func LinearInterest(rate *uint256.Int, elapsed uint64) (*uint256.Int, error) {
	if rate.IsZero() || elapsed == 0 {
		return One(), nil
	}
	product, overflow := new(uint256.Int).MulOverflow(rate, uint256.NewInt(elapsed))
	if overflow {
		return nil, ErrOverflow
	}
	product.Div(product, secondsPerYear)
	return Add(product, Ray)
}

// Pow10 returns 10^exp for the decimals range of a reserve.
func Pow10(exp uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(exp)))
}
