// Package auction prices unique collateral during a liquidation auction. The
// price multiplier starts at MaxPriceMultiplier, decays exponentially per tick
// down to MinExpPriceMultiplier, then linearly by StepLinear per tick until it
// reaches MinPriceMultiplier. Multipliers and steps are ray values.
package auction

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ALTree/bigfloat"
	"github.com/holiman/uint256"

	"lendcore/native/lending/fixedpoint"
)

// precision is the mantissa size used for exp/ln. Fixed so results are
// reproducible across platforms.
const precision = 256

var ErrInvalidParameters = errors.New("auction: invalid strategy parameters")

// Params is the plain configuration form of a Strategy.
type Params struct {
	MaxPriceMultiplier    *uint256.Int
	MinExpPriceMultiplier *uint256.Int
	MinPriceMultiplier    *uint256.Int
	StepLinear            *uint256.Int
	StepExp               *uint256.Int
	TickLength            uint64
}

// Strategy is an immutable pricing curve.
type Strategy struct {
	params Params

	maxF, minF, stepExpF, stepLinF *big.Float
	ticksMinExp                    *big.Float
	priceMinExp                    *big.Float
	firstTickEnd                   *big.Float
}

func newFloat() *big.Float { return new(big.Float).SetPrec(precision) }

func rayToFloat(v *uint256.Int) *big.Float {
	num := newFloat().SetInt(v.ToBig())
	return num.Quo(num, newFloat().SetInt(fixedpoint.Ray.ToBig()))
}

// NewStrategy validates the parameters: max >= minExp >= min > 0, a non-zero
// exponential step, a non-zero tick length, and a first tick that does not
// already cross the exponential floor.
func NewStrategy(p Params) (*Strategy, error) {
	if p.MaxPriceMultiplier == nil || p.MinExpPriceMultiplier == nil || p.MinPriceMultiplier == nil ||
		p.StepExp == nil {
		return nil, fmt.Errorf("%w: missing multiplier", ErrInvalidParameters)
	}
	if p.StepLinear == nil {
		p.StepLinear = new(uint256.Int)
	}
	switch {
	case p.MinPriceMultiplier.IsZero():
		return nil, fmt.Errorf("%w: min multiplier is zero", ErrInvalidParameters)
	case p.MinExpPriceMultiplier.Lt(p.MinPriceMultiplier):
		return nil, fmt.Errorf("%w: min exp multiplier below min multiplier", ErrInvalidParameters)
	case p.MaxPriceMultiplier.Lt(p.MinExpPriceMultiplier):
		return nil, fmt.Errorf("%w: max multiplier below min exp multiplier", ErrInvalidParameters)
	case p.StepExp.IsZero():
		return nil, fmt.Errorf("%w: exponential step is zero", ErrInvalidParameters)
	case p.TickLength == 0:
		return nil, fmt.Errorf("%w: tick length is zero", ErrInvalidParameters)
	}

	s := &Strategy{
		params: Params{
			MaxPriceMultiplier:    fixedpoint.Clone(p.MaxPriceMultiplier),
			MinExpPriceMultiplier: fixedpoint.Clone(p.MinExpPriceMultiplier),
			MinPriceMultiplier:    fixedpoint.Clone(p.MinPriceMultiplier),
			StepLinear:            fixedpoint.Clone(p.StepLinear),
			StepExp:               fixedpoint.Clone(p.StepExp),
			TickLength:            p.TickLength,
		},
		maxF:     rayToFloat(p.MaxPriceMultiplier),
		minF:     rayToFloat(p.MinPriceMultiplier),
		stepExpF: rayToFloat(p.StepExp),
		stepLinF: rayToFloat(p.StepLinear),
	}

	// ticksMinExp = (ln(max) - ln(minExp)) / stepExp
	lnSpan := newFloat().Sub(bigfloat.Log(s.maxF), bigfloat.Log(rayToFloat(p.MinExpPriceMultiplier)))
	s.ticksMinExp = newFloat().Quo(lnSpan, s.stepExpF)
	if s.ticksMinExp.Cmp(newFloat().SetInt64(1)) < 0 {
		return nil, fmt.Errorf("%w: first tick decays below min exp multiplier", ErrInvalidParameters)
	}
	s.priceMinExp = s.exponential(s.ticksMinExp)
	s.firstTickEnd = s.exponential(newFloat().SetInt64(1))
	return s, nil
}

// Params returns a copy of the strategy parameters.
func (s *Strategy) Params() Params {
	return Params{
		MaxPriceMultiplier:    fixedpoint.Clone(s.params.MaxPriceMultiplier),
		MinExpPriceMultiplier: fixedpoint.Clone(s.params.MinExpPriceMultiplier),
		MinPriceMultiplier:    fixedpoint.Clone(s.params.MinPriceMultiplier),
		StepLinear:            fixedpoint.Clone(s.params.StepLinear),
		StepExp:               fixedpoint.Clone(s.params.StepExp),
		TickLength:            s.params.TickLength,
	}
}

func (s *Strategy) MaxPriceMultiplier() *uint256.Int {
	return fixedpoint.Clone(s.params.MaxPriceMultiplier)
}

func (s *Strategy) MinPriceMultiplier() *uint256.Int {
	return fixedpoint.Clone(s.params.MinPriceMultiplier)
}

// exponential returns max / e^(stepExp*ticks).
func (s *Strategy) exponential(ticks *big.Float) *big.Float {
	exponent := newFloat().Mul(s.stepExpF, ticks)
	return newFloat().Quo(s.maxF, bigfloat.Exp(exponent))
}

// multiplier evaluates the curve at a tick position.
func (s *Strategy) multiplier(ticks *big.Float) *big.Float {
	one := newFloat().SetInt64(1)
	var m *big.Float
	switch {
	case ticks.Cmp(one) <= 0:
		// max - (max - firstTickEnd) * ticks
		drop := newFloat().Sub(s.maxF, s.firstTickEnd)
		m = newFloat().Sub(s.maxF, drop.Mul(drop, ticks))
	case ticks.Cmp(s.ticksMinExp) <= 0:
		m = s.exponential(ticks)
	default:
		delta := newFloat().Sub(ticks, s.ticksMinExp)
		dec := newFloat().Mul(s.stepLinF, delta)
		m = newFloat().Sub(s.priceMinExp, dec)
	}
	if m.Cmp(s.minF) < 0 {
		return newFloat().Set(s.minF)
	}
	return m
}

// MultiplierAt returns the ray multiplier for the given elapsed seconds since
// the auction started.
func (s *Strategy) MultiplierAt(elapsed uint64) *uint256.Int {
	if elapsed == 0 {
		return s.MaxPriceMultiplier()
	}
	ticks := newFloat().SetUint64(elapsed)
	ticks.Quo(ticks, newFloat().SetUint64(s.params.TickLength))
	return floatToRay(s.multiplier(ticks), s.params.MinPriceMultiplier)
}

// CalculateAuctionPriceMultiplier returns the multiplier at now for an
// auction started at start. A clock behind the start is treated as zero
// elapsed time.
func (s *Strategy) CalculateAuctionPriceMultiplier(start, now uint64) *uint256.Int {
	if now <= start {
		return s.MaxPriceMultiplier()
	}
	return s.MultiplierAt(now - start)
}

// floatToRay scales to ray and rounds half up. The result is never below
// floor so rounding cannot cross the configured minimum.
func floatToRay(f *big.Float, floor *uint256.Int) *uint256.Int {
	scaled := newFloat().Mul(f, newFloat().SetInt(fixedpoint.Ray.ToBig()))
	scaled.Add(scaled, newFloat().SetFloat64(0.5))
	i, _ := scaled.Int(nil)
	out, overflow := uint256.FromBig(i)
	if overflow {
		return fixedpoint.Clone(fixedpoint.MaxUint256)
	}
	if out.Lt(floor) {
		return fixedpoint.Clone(floor)
	}
	return out
}
