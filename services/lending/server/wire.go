package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending"
	"lendcore/native/lending/fixedpoint"
)

const requestLimit = 1 << 20 // 1 MiB

// maxKeyword requests the full balance on withdraw and repay.
const maxKeyword = "max"

// Amount is a 256-bit unsigned integer carried as a decimal JSON string.
type Amount struct {
	uint256.Int
}

func newAmount(v *uint256.Int) Amount {
	var a Amount
	if v != nil {
		a.Set(v)
	}
	return a
}

// MarshalJSON writes the decimal form. The no-debt health factor sentinel is
// written as its full decimal value.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Dec())
}

// UnmarshalJSON accepts a decimal or 0x-prefixed hex string, or "max".
func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("amount must be a string: %w", err)
	}
	raw = strings.TrimSpace(raw)
	switch {
	case strings.EqualFold(raw, maxKeyword):
		a.Set(fixedpoint.MaxUint256)
		return nil
	case strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X"):
		v, err := uint256.FromHex(raw)
		if err != nil {
			return fmt.Errorf("invalid hex amount %q: %w", raw, err)
		}
		a.Set(v)
		return nil
	default:
		v, err := uint256.FromDecimal(raw)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", raw, err)
		}
		a.Set(v)
		return nil
	}
}

func (a *Amount) ptr() *uint256.Int {
	if a == nil {
		return nil
	}
	return new(uint256.Int).Set(&a.Int)
}

func tokenIDs(in []Amount) []*uint256.Int {
	out := make([]*uint256.Int, len(in))
	for i := range in {
		out[i] = in[i].ptr()
	}
	return out
}

// decodeRequest reads a bounded JSON body into dst and rejects unknown
// fields.
func decodeRequest(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, requestLimit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

type supplyRequest struct {
	Asset      common.Address  `json:"asset"`
	Amount     Amount          `json:"amount"`
	OnBehalfOf *common.Address `json:"onBehalfOf,omitempty"`
}

type withdrawRequest struct {
	Asset  common.Address  `json:"asset"`
	Amount Amount          `json:"amount"`
	To     *common.Address `json:"to,omitempty"`
}

type collateralRequest struct {
	Asset common.Address `json:"asset"`
	Use   bool           `json:"use"`
}

type uniqueRequest struct {
	Collection common.Address  `json:"collection"`
	TokenIDs   []Amount        `json:"tokenIds"`
	Account    *common.Address `json:"account,omitempty"`
}

type uniqueCollateralRequest struct {
	Collection common.Address `json:"collection"`
	TokenIDs   []Amount       `json:"tokenIds"`
	Use        bool           `json:"use"`
}

type liquidationRequest struct {
	CollateralAsset common.Address `json:"collateralAsset"`
	DebtAsset       common.Address `json:"debtAsset"`
	User            common.Address `json:"user"`
	DebtToCover     Amount         `json:"debtToCover"`
	ReceiveXToken   bool           `json:"receiveXToken"`
}

type auctionRequest struct {
	User       common.Address `json:"user"`
	Collection common.Address `json:"collection"`
	TokenID    Amount         `json:"tokenId"`
}

type uniqueLiquidationRequest struct {
	Collection           common.Address `json:"collection"`
	TokenID              Amount         `json:"tokenId"`
	DebtAsset            common.Address `json:"debtAsset"`
	User                 common.Address `json:"user"`
	MaxLiquidationAmount Amount         `json:"maxLiquidationAmount"`
	ReceiveXToken        bool           `json:"receiveXToken"`
}

type initReserveRequest struct {
	Asset                common.Address `json:"asset"`
	Type                 string         `json:"type"`
	Decimals             uint8          `json:"decimals"`
	InterestRateStrategy common.Address `json:"interestRateStrategy"`
	AuctionStrategy      common.Address `json:"auctionStrategy"`
}

type collateralParamsRequest struct {
	Ltv                  uint64 `json:"ltv"`
	LiquidationThreshold uint64 `json:"liquidationThreshold"`
	LiquidationBonus     uint64 `json:"liquidationBonus"`
}

// valueRequest carries the new value of a single reserve field. Only the
// member matching the field is read.
type valueRequest struct {
	Uint    *uint64         `json:"uint,omitempty"`
	Bool    *bool           `json:"bool,omitempty"`
	Address *common.Address `json:"address,omitempty"`
}

type priceRequest struct {
	Price Amount `json:"price"`
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

type mintRequest struct {
	Assets []common.Address `json:"assets"`
}

type accountDataView struct {
	TotalCollateralBase         Amount `json:"totalCollateralBase"`
	TotalDebtBase               Amount `json:"totalDebtBase"`
	AvailableBorrowsBase        Amount `json:"availableBorrowsBase"`
	CurrentLiquidationThreshold uint64 `json:"currentLiquidationThreshold"`
	Ltv                         uint64 `json:"ltv"`
	HealthFactor                Amount `json:"healthFactor"`
}

func toAccountView(d *lending.AccountData) *accountDataView {
	if d == nil {
		return nil
	}
	return &accountDataView{
		TotalCollateralBase:         newAmount(d.TotalCollateralBase),
		TotalDebtBase:               newAmount(d.TotalDebtBase),
		AvailableBorrowsBase:        newAmount(d.AvailableBorrowsBase),
		CurrentLiquidationThreshold: d.CurrentLiquidationThreshold,
		Ltv:                         d.Ltv,
		HealthFactor:                newAmount(d.HealthFactor),
	}
}

type resultView struct {
	Amount  Amount           `json:"amount"`
	Account *accountDataView `json:"account,omitempty"`
}

func toResultView(r *lending.Result) resultView {
	if r == nil {
		return resultView{}
	}
	return resultView{Amount: newAmount(r.Amount), Account: toAccountView(r.Account)}
}

type liquidationView struct {
	DebtRepaid       Amount           `json:"debtRepaid"`
	CollateralSeized Amount           `json:"collateralSeized"`
	ProtocolFee      Amount           `json:"protocolFee"`
	Account          *accountDataView `json:"account,omitempty"`
}

type uniqueLiquidationView struct {
	Price          Amount           `json:"price"`
	DebtRepaid     Amount           `json:"debtRepaid"`
	ExcessSupplied Amount           `json:"excessSupplied"`
	ProtocolFee    Amount           `json:"protocolFee"`
	Multiplier     Amount           `json:"multiplier"`
	Account        *accountDataView `json:"account,omitempty"`
}

type auctionView struct {
	Collection common.Address `json:"collection"`
	TokenID    Amount         `json:"tokenId"`
	StartTime  uint64         `json:"startTime"`
}

type reserveConfigView struct {
	Type                   string `json:"type"`
	Ltv                    uint64 `json:"ltv"`
	LiquidationThreshold   uint64 `json:"liquidationThreshold"`
	LiquidationBonus       uint64 `json:"liquidationBonus"`
	Decimals               uint8  `json:"decimals"`
	ReserveFactor          uint64 `json:"reserveFactor"`
	LiquidationProtocolFee uint64 `json:"liquidationProtocolFee"`
	BorrowCap              uint64 `json:"borrowCap"`
	SupplyCap              uint64 `json:"supplyCap"`
	Active                 bool   `json:"active"`
	Frozen                 bool   `json:"frozen"`
	Paused                 bool   `json:"paused"`
	BorrowingEnabled       bool   `json:"borrowingEnabled"`
	SiloedBorrowing        bool   `json:"siloedBorrowing"`
}

type reserveView struct {
	ID                        uint16            `json:"id"`
	Asset                     common.Address    `json:"asset"`
	Config                    reserveConfigView `json:"config"`
	InterestRateStrategy      common.Address    `json:"interestRateStrategy"`
	AuctionStrategy           common.Address    `json:"auctionStrategy"`
	LiquidityIndex            Amount            `json:"liquidityIndex"`
	VariableBorrowIndex       Amount            `json:"variableBorrowIndex"`
	CurrentLiquidityRate      Amount            `json:"currentLiquidityRate"`
	CurrentVariableBorrowRate Amount            `json:"currentVariableBorrowRate"`
	LastUpdateTimestamp       uint64            `json:"lastUpdateTimestamp"`
	AvailableLiquidity        Amount            `json:"availableLiquidity"`
	NormalizedIncome          Amount            `json:"normalizedIncome"`
	NormalizedDebt            Amount            `json:"normalizedDebt"`
	TotalSupply               Amount            `json:"totalSupply"`
	TotalVariableDebt         Amount            `json:"totalVariableDebt"`
	AccruedToTreasury         Amount            `json:"accruedToTreasury"`
}

func toReserveView(d *lending.ReserveData) *reserveView {
	if d == nil || d.Reserve == nil {
		return nil
	}
	r := d.Reserve
	c := r.Config
	return &reserveView{
		ID:    r.ID,
		Asset: r.Asset,
		Config: reserveConfigView{
			Type:                   c.AssetType().String(),
			Ltv:                    c.Ltv(),
			LiquidationThreshold:   c.LiquidationThreshold(),
			LiquidationBonus:       c.LiquidationBonus(),
			Decimals:               c.Decimals(),
			ReserveFactor:          c.ReserveFactor(),
			LiquidationProtocolFee: c.LiquidationProtocolFee(),
			BorrowCap:              c.BorrowCap(),
			SupplyCap:              c.SupplyCap(),
			Active:                 c.Active(),
			Frozen:                 c.Frozen(),
			Paused:                 c.Paused(),
			BorrowingEnabled:       c.BorrowingEnabled(),
			SiloedBorrowing:        c.SiloedBorrowing(),
		},
		InterestRateStrategy:      r.InterestRateStrategy,
		AuctionStrategy:           r.AuctionStrategy,
		LiquidityIndex:            newAmount(r.State.LiquidityIndex),
		VariableBorrowIndex:       newAmount(r.State.VariableBorrowIndex),
		CurrentLiquidityRate:      newAmount(r.State.CurrentLiquidityRate),
		CurrentVariableBorrowRate: newAmount(r.State.CurrentVariableBorrowRate),
		LastUpdateTimestamp:       r.State.LastUpdateTimestamp,
		AvailableLiquidity:        newAmount(r.State.AvailableLiquidity),
		NormalizedIncome:          newAmount(d.NormalizedIncome),
		NormalizedDebt:            newAmount(d.NormalizedDebt),
		TotalSupply:               newAmount(d.TotalSupply),
		TotalVariableDebt:         newAmount(d.TotalVariableDebt),
		AccruedToTreasury:         newAmount(d.AccruedToTreasury),
	}
}

type positionView struct {
	Asset             common.Address `json:"asset"`
	Supplied          Amount         `json:"supplied"`
	Debt              Amount         `json:"debt"`
	UsingAsCollateral bool           `json:"usingAsCollateral"`
	Borrowing         bool           `json:"borrowing"`
	TokensSupplied    uint64         `json:"tokensSupplied,omitempty"`
	TokensCollateral  uint64         `json:"tokensCollateral,omitempty"`
}

func toPositionViews(in []lending.UserPosition) []positionView {
	out := make([]positionView, 0, len(in))
	for _, p := range in {
		v := positionView{
			Asset:             p.Asset,
			Supplied:          newAmount(p.Supplied),
			Debt:              newAmount(p.Debt),
			UsingAsCollateral: p.UsingAsCollateral,
			Borrowing:         p.Borrowing,
		}
		if p.Tokens != nil {
			v.TokensSupplied = p.Tokens.Supplied
			v.TokensCollateral = p.Tokens.Collateral
		}
		out = append(out, v)
	}
	return out
}
