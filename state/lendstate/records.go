package lendstate

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending"
	"lendcore/native/lending/reserveconfig"
	"lendcore/native/lending/userconfig"
)

type storedReserve struct {
	ID                        uint64
	Asset                     [20]byte
	Config                    *big.Int
	InterestRateStrategy      [20]byte
	AuctionStrategy           [20]byte
	LiquidityIndex            *big.Int
	VariableBorrowIndex       *big.Int
	CurrentLiquidityRate      *big.Int
	CurrentVariableBorrowRate *big.Int
	LastUpdateTimestamp       uint64
	TotalScaledSupply         *big.Int
	TotalScaledVariableDebt   *big.Int
	AccruedToTreasury         *big.Int
	AvailableLiquidity        *big.Int
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v.ToBig()
}

func fromBig(field string, v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	out, overflow := uint256.FromBig(v)
	if overflow || v.Sign() < 0 {
		return nil, fmt.Errorf("lendstate: %s out of range", field)
	}
	return out, nil
}

func newStoredReserve(r *lending.Reserve) *storedReserve {
	return &storedReserve{
		ID:                        uint64(r.ID),
		Asset:                     r.Asset,
		Config:                    r.Config.Pack().ToBig(),
		InterestRateStrategy:      r.InterestRateStrategy,
		AuctionStrategy:           r.AuctionStrategy,
		LiquidityIndex:            toBig(r.State.LiquidityIndex),
		VariableBorrowIndex:       toBig(r.State.VariableBorrowIndex),
		CurrentLiquidityRate:      toBig(r.State.CurrentLiquidityRate),
		CurrentVariableBorrowRate: toBig(r.State.CurrentVariableBorrowRate),
		LastUpdateTimestamp:       r.State.LastUpdateTimestamp,
		TotalScaledSupply:         toBig(r.State.TotalScaledSupply),
		TotalScaledVariableDebt:   toBig(r.State.TotalScaledVariableDebt),
		AccruedToTreasury:         toBig(r.State.AccruedToTreasury),
		AvailableLiquidity:        toBig(r.State.AvailableLiquidity),
	}
}

func (s *storedReserve) toReserve() (*lending.Reserve, error) {
	if s == nil {
		return nil, fmt.Errorf("lendstate: nil reserve record")
	}
	if s.ID >= userconfig.MaxReserves {
		return nil, fmt.Errorf("lendstate: reserve id %d out of range", s.ID)
	}
	word, err := fromBig("config", s.Config)
	if err != nil {
		return nil, err
	}
	cfg, err := reserveconfig.Unpack(word)
	if err != nil {
		return nil, fmt.Errorf("lendstate: reserve %s: %w", common.Address(s.Asset).Hex(), err)
	}
	out := &lending.Reserve{
		ID:                   uint16(s.ID),
		Asset:                s.Asset,
		Config:               cfg,
		InterestRateStrategy: s.InterestRateStrategy,
		AuctionStrategy:      s.AuctionStrategy,
	}
	out.State.LastUpdateTimestamp = s.LastUpdateTimestamp
	fields := []struct {
		name string
		src  *big.Int
		dst  **uint256.Int
	}{
		{"liquidity index", s.LiquidityIndex, &out.State.LiquidityIndex},
		{"variable borrow index", s.VariableBorrowIndex, &out.State.VariableBorrowIndex},
		{"liquidity rate", s.CurrentLiquidityRate, &out.State.CurrentLiquidityRate},
		{"variable borrow rate", s.CurrentVariableBorrowRate, &out.State.CurrentVariableBorrowRate},
		{"total scaled supply", s.TotalScaledSupply, &out.State.TotalScaledSupply},
		{"total scaled debt", s.TotalScaledVariableDebt, &out.State.TotalScaledVariableDebt},
		{"accrued to treasury", s.AccruedToTreasury, &out.State.AccruedToTreasury},
		{"available liquidity", s.AvailableLiquidity, &out.State.AvailableLiquidity},
	}
	for _, f := range fields {
		v, err := fromBig(f.name, f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	return out, nil
}

type storedWord struct {
	Word *big.Int
}

type storedPosition struct {
	ScaledSupply *big.Int
	ScaledDebt   *big.Int
}

func (s *storedPosition) toPosition() (*lending.Position, error) {
	supply, err := fromBig("scaled supply", s.ScaledSupply)
	if err != nil {
		return nil, err
	}
	debt, err := fromBig("scaled debt", s.ScaledDebt)
	if err != nil {
		return nil, err
	}
	return &lending.Position{ScaledSupply: supply, ScaledDebt: debt}, nil
}

type storedUniqueBalance struct {
	Supplied   uint64
	Collateral uint64
}

type storedToken struct {
	Owner      [20]byte
	Collateral bool
}

type storedAuction struct {
	Collection [20]byte
	TokenID    *big.Int
	StartTime  uint64
}
