package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/types"
)

const (
	TypeLendingReserveInitialized   = "lending.reserve.initialized"
	TypeLendingReserveDropped       = "lending.reserve.dropped"
	TypeLendingReserveConfigUpdated = "lending.reserve.config_updated"
	TypeLendingReserveDataUpdated   = "lending.reserve.data_updated"
	TypeLendingSupplied             = "lending.supplied"
	TypeLendingWithdrawn            = "lending.withdrawn"
	TypeLendingBorrowed             = "lending.borrowed"
	TypeLendingRepaid               = "lending.repaid"
	TypeLendingCollateralToggled    = "lending.collateral.toggled"
	TypeLendingLiquidated           = "lending.liquidated"
	TypeLendingUniqueLiquidated     = "lending.unique.liquidated"
	TypeLendingAuctionStarted       = "lending.auction.started"
	TypeLendingAuctionEnded         = "lending.auction.ended"
	TypeLendingMintedToTreasury     = "lending.treasury.minted"
)

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func addressString(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}

// LendingReserveInitialized is emitted when a new reserve is listed.
type LendingReserveInitialized struct {
	Asset                common.Address
	ReserveID            uint16
	AssetType            string
	InterestRateStrategy common.Address
	AuctionStrategy      common.Address
}

func (LendingReserveInitialized) EventType() string { return TypeLendingReserveInitialized }

func (e LendingReserveInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingReserveInitialized,
		Attributes: map[string]string{
			"asset":                addressString(e.Asset),
			"reserveId":            strconv.FormatUint(uint64(e.ReserveID), 10),
			"assetType":            e.AssetType,
			"interestRateStrategy": addressString(e.InterestRateStrategy),
			"auctionStrategy":      addressString(e.AuctionStrategy),
		},
	}
}

type LendingReserveDropped struct {
	Asset common.Address
}

func (LendingReserveDropped) EventType() string { return TypeLendingReserveDropped }

func (e LendingReserveDropped) Event() *types.Event {
	return &types.Event{
		Type:       TypeLendingReserveDropped,
		Attributes: map[string]string{"asset": addressString(e.Asset)},
	}
}

// LendingReserveConfigUpdated records a single risk parameter change. Old and
// New carry the textual form of the value.
type LendingReserveConfigUpdated struct {
	Asset common.Address
	Field string
	Old   string
	New   string
}

func (LendingReserveConfigUpdated) EventType() string { return TypeLendingReserveConfigUpdated }

func (e LendingReserveConfigUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingReserveConfigUpdated,
		Attributes: map[string]string{
			"asset": addressString(e.Asset),
			"field": e.Field,
			"old":   e.Old,
			"new":   e.New,
		},
	}
}

// LendingReserveDataUpdated reports the indices and rates of a reserve after
// an operation touched it.
type LendingReserveDataUpdated struct {
	Asset               common.Address
	LiquidityRate       *uint256.Int
	VariableBorrowRate  *uint256.Int
	LiquidityIndex      *uint256.Int
	VariableBorrowIndex *uint256.Int
}

func (LendingReserveDataUpdated) EventType() string { return TypeLendingReserveDataUpdated }

func (e LendingReserveDataUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingReserveDataUpdated,
		Attributes: map[string]string{
			"asset":               addressString(e.Asset),
			"liquidityRate":       amountString(e.LiquidityRate),
			"variableBorrowRate":  amountString(e.VariableBorrowRate),
			"liquidityIndex":      amountString(e.LiquidityIndex),
			"variableBorrowIndex": amountString(e.VariableBorrowIndex),
		},
	}
}

// LendingPositionChanged is shared by supply, withdraw, borrow and repay.
type LendingPositionChanged struct {
	Kind       string
	Asset      common.Address
	Caller     common.Address
	OnBehalfOf common.Address
	Amount     *uint256.Int
	TokenIDs   []*uint256.Int
}

func (e LendingPositionChanged) EventType() string { return e.Kind }

func (e LendingPositionChanged) Event() *types.Event {
	attrs := map[string]string{
		"asset":      addressString(e.Asset),
		"caller":     addressString(e.Caller),
		"onBehalfOf": addressString(e.OnBehalfOf),
		"amount":     amountString(e.Amount),
	}
	if len(e.TokenIDs) > 0 {
		attrs["tokenIds"] = joinAmounts(e.TokenIDs)
	}
	return &types.Event{Type: e.Kind, Attributes: attrs}
}

func joinAmounts(values []*uint256.Int) string {
	out := make([]byte, 0, len(values)*4)
	for i, v := range values {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, amountString(v)...)
	}
	return string(out)
}

type LendingCollateralToggled struct {
	Asset   common.Address
	User    common.Address
	Enabled bool
	TokenID *uint256.Int
}

func (LendingCollateralToggled) EventType() string { return TypeLendingCollateralToggled }

func (e LendingCollateralToggled) Event() *types.Event {
	attrs := map[string]string{
		"asset":   addressString(e.Asset),
		"user":    addressString(e.User),
		"enabled": strconv.FormatBool(e.Enabled),
	}
	if e.TokenID != nil {
		attrs["tokenId"] = e.TokenID.Dec()
	}
	return &types.Event{Type: TypeLendingCollateralToggled, Attributes: attrs}
}

// LendingLiquidated is emitted for fungible collateral liquidations.
type LendingLiquidated struct {
	CollateralAsset  common.Address
	DebtAsset        common.Address
	User             common.Address
	Liquidator       common.Address
	DebtRepaid       *uint256.Int
	CollateralSeized *uint256.Int
	ProtocolFee      *uint256.Int
	ReceiveXToken    bool
}

func (LendingLiquidated) EventType() string { return TypeLendingLiquidated }

func (e LendingLiquidated) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingLiquidated,
		Attributes: map[string]string{
			"collateralAsset":  addressString(e.CollateralAsset),
			"debtAsset":        addressString(e.DebtAsset),
			"user":             addressString(e.User),
			"liquidator":       addressString(e.Liquidator),
			"debtRepaid":       amountString(e.DebtRepaid),
			"collateralSeized": amountString(e.CollateralSeized),
			"protocolFee":      amountString(e.ProtocolFee),
			"receiveXToken":    strconv.FormatBool(e.ReceiveXToken),
		},
	}
}

// LendingUniqueLiquidated is emitted when a unique token is sold for debt.
type LendingUniqueLiquidated struct {
	Collection     common.Address
	TokenID        *uint256.Int
	DebtAsset      common.Address
	User           common.Address
	Liquidator     common.Address
	Price          *uint256.Int
	DebtRepaid     *uint256.Int
	ExcessSupplied *uint256.Int
	ProtocolFee    *uint256.Int
	Multiplier     *uint256.Int
}

func (LendingUniqueLiquidated) EventType() string { return TypeLendingUniqueLiquidated }

func (e LendingUniqueLiquidated) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingUniqueLiquidated,
		Attributes: map[string]string{
			"collection":     addressString(e.Collection),
			"tokenId":        amountString(e.TokenID),
			"debtAsset":      addressString(e.DebtAsset),
			"user":           addressString(e.User),
			"liquidator":     addressString(e.Liquidator),
			"price":          amountString(e.Price),
			"debtRepaid":     amountString(e.DebtRepaid),
			"excessSupplied": amountString(e.ExcessSupplied),
			"protocolFee":    amountString(e.ProtocolFee),
			"multiplier":     amountString(e.Multiplier),
		},
	}
}

type LendingAuction struct {
	Started    bool
	Collection common.Address
	TokenID    *uint256.Int
	User       common.Address
	Timestamp  uint64
}

func (e LendingAuction) EventType() string {
	if e.Started {
		return TypeLendingAuctionStarted
	}
	return TypeLendingAuctionEnded
}

func (e LendingAuction) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"collection": addressString(e.Collection),
			"tokenId":    amountString(e.TokenID),
			"user":       addressString(e.User),
			"timestamp":  strconv.FormatUint(e.Timestamp, 10),
		},
	}
}

type LendingMintedToTreasury struct {
	Asset  common.Address
	Amount *uint256.Int
}

func (LendingMintedToTreasury) EventType() string { return TypeLendingMintedToTreasury }

func (e LendingMintedToTreasury) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingMintedToTreasury,
		Attributes: map[string]string{
			"asset":  addressString(e.Asset),
			"amount": amountString(e.Amount),
		},
	}
}
