package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/userconfig"
)

// txn buffers every read and write of one engine operation. Records read from
// the state are cloned, so mutations stay local until commit and a failed
// operation leaves the state untouched.
type txn struct {
	state   State
	changes *ChangeSet

	reserves    map[common.Address]*Reserve
	list        []common.Address
	listLoaded  bool
	configs     map[common.Address]userconfig.Config
	positions   map[PositionKey]*Position
	uniques     map[PositionKey]*UniqueBalance
	tokens      map[TokenKey]*TokenRecord
	tokenLoaded map[TokenKey]bool
	auctions    map[TokenKey]*AuctionRecord
	auctionRead map[TokenKey]bool
}

func newTxn(state State) *txn {
	return &txn{
		state:       state,
		changes:     NewChangeSet(),
		reserves:    make(map[common.Address]*Reserve),
		configs:     make(map[common.Address]userconfig.Config),
		positions:   make(map[PositionKey]*Position),
		uniques:     make(map[PositionKey]*UniqueBalance),
		tokens:      make(map[TokenKey]*TokenRecord),
		tokenLoaded: make(map[TokenKey]bool),
		auctions:    make(map[TokenKey]*AuctionRecord),
		auctionRead: make(map[TokenKey]bool),
	}
}

// reserve returns the working copy of a reserve, or nil when not listed.
func (t *txn) reserve(asset common.Address) (*Reserve, error) {
	if r, ok := t.reserves[asset]; ok {
		return r, nil
	}
	stored, err := t.state.GetReserve(asset)
	if err != nil {
		return nil, err
	}
	r := stored.Clone()
	t.reserves[asset] = r
	return r, nil
}

func (t *txn) putReserve(r *Reserve) {
	t.reserves[r.Asset] = r
	t.changes.Reserves[r.Asset] = r
}

func (t *txn) reservesList() ([]common.Address, error) {
	if !t.listLoaded {
		list, err := t.state.GetReservesList()
		if err != nil {
			return nil, err
		}
		t.list = append([]common.Address(nil), list...)
		t.listLoaded = true
	}
	return t.list, nil
}

func (t *txn) putReservesList(list []common.Address) {
	t.list = list
	t.listLoaded = true
	t.changes.ReservesList = append([]common.Address(nil), list...)
}

// reserveByID resolves a bitmap index to its reserve.
func (t *txn) reserveByID(id uint16) (*Reserve, error) {
	list, err := t.reservesList()
	if err != nil {
		return nil, err
	}
	if int(id) >= len(list) || list[id] == (common.Address{}) {
		return nil, nil
	}
	return t.reserve(list[id])
}

func (t *txn) userConfig(user common.Address) (userconfig.Config, error) {
	if cfg, ok := t.configs[user]; ok {
		return cfg, nil
	}
	cfg, err := t.state.GetUserConfig(user)
	if err != nil {
		return userconfig.Config{}, err
	}
	t.configs[user] = cfg
	return cfg, nil
}

func (t *txn) putUserConfig(user common.Address, cfg userconfig.Config) {
	t.configs[user] = cfg
	t.changes.UserConfigs[user] = cfg
}

// position never returns nil; absent positions are zero balances.
func (t *txn) position(user, asset common.Address) (*Position, error) {
	key := PositionKey{User: user, Asset: asset}
	if p, ok := t.positions[key]; ok {
		return p, nil
	}
	stored, err := t.state.GetPosition(user, asset)
	if err != nil {
		return nil, err
	}
	p := stored.Clone()
	t.positions[key] = p
	return p, nil
}

func (t *txn) putPosition(user, asset common.Address, p *Position) {
	key := PositionKey{User: user, Asset: asset}
	t.positions[key] = p
	t.changes.Positions[key] = p
}

func (t *txn) uniqueBalance(user, collection common.Address) (*UniqueBalance, error) {
	key := PositionKey{User: user, Asset: collection}
	if b, ok := t.uniques[key]; ok {
		return b, nil
	}
	stored, err := t.state.GetUniqueBalance(user, collection)
	if err != nil {
		return nil, err
	}
	b := &UniqueBalance{}
	if stored != nil {
		*b = *stored
	}
	t.uniques[key] = b
	return b, nil
}

func (t *txn) putUniqueBalance(user, collection common.Address, b *UniqueBalance) {
	key := PositionKey{User: user, Asset: collection}
	t.uniques[key] = b
	t.changes.UniqueBalances[key] = b
}

// token returns the ownership record, or nil when the token is not supplied.
func (t *txn) token(collection common.Address, id *uint256.Int) (*TokenRecord, error) {
	key := tokenKey(collection, id)
	if t.tokenLoaded[key] {
		return t.tokens[key], nil
	}
	stored, err := t.state.GetToken(collection, id)
	if err != nil {
		return nil, err
	}
	var rec *TokenRecord
	if stored != nil {
		clone := *stored
		rec = &clone
	}
	t.tokens[key] = rec
	t.tokenLoaded[key] = true
	return rec, nil
}

// putToken stores rec; nil deletes the record.
func (t *txn) putToken(collection common.Address, id *uint256.Int, rec *TokenRecord) {
	key := tokenKey(collection, id)
	t.tokens[key] = rec
	t.tokenLoaded[key] = true
	t.changes.Tokens[key] = rec
}

func (t *txn) auction(collection common.Address, id *uint256.Int) (*AuctionRecord, error) {
	key := tokenKey(collection, id)
	if t.auctionRead[key] {
		return t.auctions[key], nil
	}
	stored, err := t.state.GetAuction(collection, id)
	if err != nil {
		return nil, err
	}
	var rec *AuctionRecord
	if stored != nil {
		rec = &AuctionRecord{Collection: stored.Collection, TokenID: new(uint256.Int).Set(stored.TokenID), StartTime: stored.StartTime}
	}
	t.auctions[key] = rec
	t.auctionRead[key] = true
	return rec, nil
}

// putAuction stores rec; nil deletes the record.
func (t *txn) putAuction(collection common.Address, id *uint256.Int, rec *AuctionRecord) {
	key := tokenKey(collection, id)
	t.auctions[key] = rec
	t.auctionRead[key] = true
	t.changes.Auctions[key] = rec
}

func (t *txn) commit() error {
	if t.changes.IsEmpty() {
		return nil
	}
	return t.state.Commit(t.changes)
}
