package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/fixedpoint"
	"lendcore/native/lending/reserveconfig"
	"lendcore/native/lending/userconfig"
)

// ReserveState captures the accounting state of one reserve. Indices and rates
// are ray values; balances are in the smallest unit of the asset.
type ReserveState struct {
	// LiquidityIndex is the cumulative supplier income index.
	LiquidityIndex *uint256.Int
	// VariableBorrowIndex is the cumulative debt growth index.
	VariableBorrowIndex *uint256.Int
	// CurrentLiquidityRate is the yearly supply rate set by the last update.
	CurrentLiquidityRate *uint256.Int
	// CurrentVariableBorrowRate is the yearly borrow rate set by the last
	// update.
	CurrentVariableBorrowRate *uint256.Int
	// LastUpdateTimestamp is the unix second of the last index accrual.
	LastUpdateTimestamp uint64
	// TotalScaledSupply is the sum of supplier scaled balances. For unique
	// reserves it is the number of supplied tokens.
	TotalScaledSupply *uint256.Int
	// TotalScaledVariableDebt is the sum of borrower scaled debts.
	TotalScaledVariableDebt *uint256.Int
	// AccruedToTreasury is the scaled reserve-factor share not yet minted to
	// the treasury.
	AccruedToTreasury *uint256.Int
	// AvailableLiquidity is the cash held by the reserve.
	AvailableLiquidity *uint256.Int
}

func newReserveState(now uint64) ReserveState {
	return ReserveState{
		LiquidityIndex:            fixedpoint.One(),
		VariableBorrowIndex:       fixedpoint.One(),
		CurrentLiquidityRate:      fixedpoint.Zero(),
		CurrentVariableBorrowRate: fixedpoint.Zero(),
		LastUpdateTimestamp:       now,
		TotalScaledSupply:         fixedpoint.Zero(),
		TotalScaledVariableDebt:   fixedpoint.Zero(),
		AccruedToTreasury:         fixedpoint.Zero(),
		AvailableLiquidity:        fixedpoint.Zero(),
	}
}

// Clone returns a deep copy of the reserve state.
func (s ReserveState) Clone() ReserveState {
	return ReserveState{
		LiquidityIndex:            fixedpoint.Clone(s.LiquidityIndex),
		VariableBorrowIndex:       fixedpoint.Clone(s.VariableBorrowIndex),
		CurrentLiquidityRate:      fixedpoint.Clone(s.CurrentLiquidityRate),
		CurrentVariableBorrowRate: fixedpoint.Clone(s.CurrentVariableBorrowRate),
		LastUpdateTimestamp:       s.LastUpdateTimestamp,
		TotalScaledSupply:         fixedpoint.Clone(s.TotalScaledSupply),
		TotalScaledVariableDebt:   fixedpoint.Clone(s.TotalScaledVariableDebt),
		AccruedToTreasury:         fixedpoint.Clone(s.AccruedToTreasury),
		AvailableLiquidity:        fixedpoint.Clone(s.AvailableLiquidity),
	}
}

// Reserve is one listed asset. ID is its slot in the reserve list and the
// index used in user configuration bitmaps.
type Reserve struct {
	ID                   uint16
	Asset                common.Address
	Config               reserveconfig.Config
	State                ReserveState
	InterestRateStrategy common.Address
	// AuctionStrategy is the zero address when the auction path is disabled.
	AuctionStrategy common.Address
}

// Clone returns a deep copy of the reserve.
func (r *Reserve) Clone() *Reserve {
	if r == nil {
		return nil
	}
	clone := *r
	clone.State = r.State.Clone()
	return &clone
}

// IsUnique reports whether the reserve holds unique tokens.
func (r *Reserve) IsUnique() bool {
	return r.Config.AssetType() == reserveconfig.AssetTypeUnique
}

// Unit returns 10^decimals.
func (r *Reserve) Unit() *uint256.Int {
	return fixedpoint.Pow10(r.Config.Decimals())
}

// Position holds the fungible balances of one account in one reserve.
type Position struct {
	ScaledSupply *uint256.Int
	ScaledDebt   *uint256.Int
}

func newPosition() *Position {
	return &Position{ScaledSupply: fixedpoint.Zero(), ScaledDebt: fixedpoint.Zero()}
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return newPosition()
	}
	return &Position{ScaledSupply: fixedpoint.Clone(p.ScaledSupply), ScaledDebt: fixedpoint.Clone(p.ScaledDebt)}
}

// IsEmpty reports whether both balances are zero.
func (p *Position) IsEmpty() bool {
	return p == nil || (p.ScaledSupply.IsZero() && p.ScaledDebt.IsZero())
}

// UniqueBalance counts the tokens an account supplied to one unique reserve.
type UniqueBalance struct {
	Supplied   uint64
	Collateral uint64
}

// TokenRecord is the ownership entry of a supplied unique token.
type TokenRecord struct {
	Owner      common.Address
	Collateral bool
}

// AuctionRecord marks a unique token as being auctioned since StartTime.
type AuctionRecord struct {
	Collection common.Address
	TokenID    *uint256.Int
	StartTime  uint64
}

// PositionKey addresses per-account, per-reserve records.
type PositionKey struct {
	User  common.Address
	Asset common.Address
}

// TokenKey addresses a unique token within its collection.
type TokenKey struct {
	Collection common.Address
	ID         uint256.Int
}

func tokenKey(collection common.Address, id *uint256.Int) TokenKey {
	k := TokenKey{Collection: collection}
	k.ID.Set(id)
	return k
}

// AccountData is the risk snapshot of one account. Base amounts are in the
// oracle's base currency.
type AccountData struct {
	TotalCollateralBase  *uint256.Int
	TotalDebtBase        *uint256.Int
	AvailableBorrowsBase *uint256.Int
	// CurrentLiquidationThreshold is the value-weighted threshold in basis
	// points.
	CurrentLiquidationThreshold uint64
	// Ltv is the value-weighted loan to value in basis points.
	Ltv uint64
	// HealthFactor is a ray value; MaxUint256 when the account has no debt.
	HealthFactor *uint256.Int
}

// ReserveData is the read-only view returned by GetReserve.
type ReserveData struct {
	Reserve           *Reserve
	NormalizedIncome  *uint256.Int
	NormalizedDebt    *uint256.Int
	TotalSupply       *uint256.Int
	TotalVariableDebt *uint256.Int
	AccruedToTreasury *uint256.Int
}

// ChangeSet is the full write set of one operation. A nil map value deletes
// the record.
type ChangeSet struct {
	Reserves       map[common.Address]*Reserve
	ReservesList   []common.Address
	UserConfigs    map[common.Address]userconfig.Config
	Positions      map[PositionKey]*Position
	UniqueBalances map[PositionKey]*UniqueBalance
	Tokens         map[TokenKey]*TokenRecord
	Auctions       map[TokenKey]*AuctionRecord
}

// NewChangeSet returns an empty change set.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		Reserves:       make(map[common.Address]*Reserve),
		UserConfigs:    make(map[common.Address]userconfig.Config),
		Positions:      make(map[PositionKey]*Position),
		UniqueBalances: make(map[PositionKey]*UniqueBalance),
		Tokens:         make(map[TokenKey]*TokenRecord),
		Auctions:       make(map[TokenKey]*AuctionRecord),
	}
}

// IsEmpty reports whether the change set carries no writes.
func (c *ChangeSet) IsEmpty() bool {
	return c == nil || (len(c.Reserves) == 0 && c.ReservesList == nil && len(c.UserConfigs) == 0 &&
		len(c.Positions) == 0 && len(c.UniqueBalances) == 0 && len(c.Tokens) == 0 && len(c.Auctions) == 0)
}

// State is the persistence boundary of the engine. Getters return nil (and
// the zero configuration) for absent records. Commit must apply the change
// set atomically.
type State interface {
	GetReserve(asset common.Address) (*Reserve, error)
	GetReservesList() ([]common.Address, error)
	GetUserConfig(user common.Address) (userconfig.Config, error)
	GetPosition(user, asset common.Address) (*Position, error)
	GetUniqueBalance(user, collection common.Address) (*UniqueBalance, error)
	GetToken(collection common.Address, id *uint256.Int) (*TokenRecord, error)
	GetAuction(collection common.Address, id *uint256.Int) (*AuctionRecord, error)
	Commit(changes *ChangeSet) error
}
