// Package interest implements the kinked variable borrow rate curve used by
// lending reserves. All rates are yearly and expressed in ray.
package interest

import (
	"errors"

	"github.com/holiman/uint256"

	"lendcore/native/lending/fixedpoint"
)

var ErrInvalidOptimalUsageRatio = errors.New("interest: optimal usage ratio must be within (0, 1) ray")

// Strategy encapsulates the parameters that shape how the variable borrow rate
// reacts to reserve utilisation.
type Strategy struct {
	// OptimalUsageRatio is the utilisation where the slope changes.
	OptimalUsageRatio *uint256.Int
	// BaseVariableBorrowRate applies when utilisation is zero.
	BaseVariableBorrowRate *uint256.Int
	// VariableRateSlope1 is the rate increase from zero to the optimal
	// utilisation.
	VariableRateSlope1 *uint256.Int
	// VariableRateSlope2 is the rate increase from the optimal utilisation
	// to full utilisation.
	VariableRateSlope2 *uint256.Int

	maxExcessUsageRatio *uint256.Int
}

// NewStrategy validates the curve parameters. Rates and the optimal ratio are
// ray values.
func NewStrategy(optimal, base, slope1, slope2 *uint256.Int) (*Strategy, error) {
	if optimal == nil || optimal.IsZero() || !optimal.Lt(fixedpoint.Ray) {
		return nil, ErrInvalidOptimalUsageRatio
	}
	s := &Strategy{
		OptimalUsageRatio:      fixedpoint.Clone(optimal),
		BaseVariableBorrowRate: fixedpoint.Clone(base),
		VariableRateSlope1:     fixedpoint.Clone(slope1),
		VariableRateSlope2:     fixedpoint.Clone(slope2),
		maxExcessUsageRatio:    new(uint256.Int).Sub(fixedpoint.Ray, optimal),
	}
	if _, err := s.sumRates(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStrategyBps is a convenience constructor taking basis point inputs, the
// unit used by configuration files.
func NewStrategyBps(optimalBps, baseBps, slope1Bps, slope2Bps uint64) (*Strategy, error) {
	return NewStrategy(
		fixedpoint.PercentToRay(optimalBps),
		fixedpoint.PercentToRay(baseBps),
		fixedpoint.PercentToRay(slope1Bps),
		fixedpoint.PercentToRay(slope2Bps),
	)
}

// Clone returns a deep copy of the strategy.
func (s *Strategy) Clone() *Strategy {
	if s == nil {
		return nil
	}
	return &Strategy{
		OptimalUsageRatio:      fixedpoint.Clone(s.OptimalUsageRatio),
		BaseVariableBorrowRate: fixedpoint.Clone(s.BaseVariableBorrowRate),
		VariableRateSlope1:     fixedpoint.Clone(s.VariableRateSlope1),
		VariableRateSlope2:     fixedpoint.Clone(s.VariableRateSlope2),
		maxExcessUsageRatio:    fixedpoint.Clone(s.maxExcessUsageRatio),
	}
}

func (s *Strategy) sumRates() (*uint256.Int, error) {
	sum, err := fixedpoint.Add(s.BaseVariableBorrowRate, s.VariableRateSlope1)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Add(sum, s.VariableRateSlope2)
}

// MaxVariableBorrowRate is the rate at 100% utilisation.
func (s *Strategy) MaxVariableBorrowRate() *uint256.Int {
	sum, err := s.sumRates()
	if err != nil {
		// NewStrategy rejects parameter sets whose sum overflows.
		return fixedpoint.Clone(fixedpoint.MaxUint256)
	}
	return sum
}

// Utilisation computes U = debt / (liquidity + debt) in ray. When nothing is
// supplied or borrowed the utilisation is defined as zero.
func Utilisation(availableLiquidity, totalDebt *uint256.Int) (*uint256.Int, error) {
	if totalDebt.IsZero() {
		return new(uint256.Int), nil
	}
	total, err := fixedpoint.Add(availableLiquidity, totalDebt)
	if err != nil {
		return nil, err
	}
	return fixedpoint.RayDiv(totalDebt, total)
}

// CalculateRates returns the liquidity (supply) rate and the variable borrow
// rate for the given reserve balances. reserveFactor is in basis points.
func (s *Strategy) CalculateRates(availableLiquidity, totalDebt *uint256.Int, reserveFactor uint64) (liquidityRate, borrowRate *uint256.Int, err error) {
	borrowRate = fixedpoint.Clone(s.BaseVariableBorrowRate)
	usage, err := Utilisation(availableLiquidity, totalDebt)
	if err != nil {
		return nil, nil, err
	}
	if usage.IsZero() {
		return new(uint256.Int), borrowRate, nil
	}

	if usage.Gt(s.OptimalUsageRatio) {
		excess := new(uint256.Int).Sub(usage, s.OptimalUsageRatio)
		ratio, err := fixedpoint.RayDiv(excess, s.maxExcessUsageRatio)
		if err != nil {
			return nil, nil, err
		}
		extra, err := fixedpoint.RayMul(s.VariableRateSlope2, ratio)
		if err != nil {
			return nil, nil, err
		}
		if borrowRate, err = fixedpoint.Add(borrowRate, s.VariableRateSlope1); err != nil {
			return nil, nil, err
		}
		if borrowRate, err = fixedpoint.Add(borrowRate, extra); err != nil {
			return nil, nil, err
		}
	} else {
		scaled, err := fixedpoint.RayMul(s.VariableRateSlope1, usage)
		if err != nil {
			return nil, nil, err
		}
		extra, err := fixedpoint.RayDiv(scaled, s.OptimalUsageRatio)
		if err != nil {
			return nil, nil, err
		}
		if borrowRate, err = fixedpoint.Add(borrowRate, extra); err != nil {
			return nil, nil, err
		}
	}

	gross, err := fixedpoint.RayMul(borrowRate, usage)
	if err != nil {
		return nil, nil, err
	}
	if reserveFactor > fixedpoint.PercentageFactor {
		reserveFactor = fixedpoint.PercentageFactor
	}
	liquidityRate, err = fixedpoint.PercentMul(gross, fixedpoint.PercentageFactor-reserveFactor)
	if err != nil {
		return nil, nil, err
	}
	return liquidityRate, borrowRate, nil
}

// DefaultStrategy mirrors a conservative stable-asset curve: 80% optimal
// usage, no base rate, 4% slope below the kink and 75% above it.
func DefaultStrategy() *Strategy {
	s, err := NewStrategyBps(8_000, 0, 400, 7_500)
	if err != nil {
		panic(err)
	}
	return s
}
