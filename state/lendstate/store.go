// Package lendstate persists the lending engine's records in a key-value
// database. Records are RLP encoded under Keccak-256 keys and every engine
// change set is written as one batch.
package lendstate

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"lendcore/native/lending"
	"lendcore/native/lending/userconfig"
	"lendcore/storage"
)

var (
	reservePrefix       = []byte("lending/reserve/")
	reserveListKeyBytes = []byte("lending/reserves")
	userConfigPrefix    = []byte("lending/user-config/")
	positionPrefix      = []byte("lending/position/")
	uniqueBalancePrefix = []byte("lending/unique-balance/")
	tokenPrefix         = []byte("lending/token/")
	auctionPrefix       = []byte("lending/auction/")
)

func hashKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return ethcrypto.Keccak256(buf)
}

func reserveKey(asset common.Address) []byte { return hashKey(reservePrefix, asset[:]) }

func reserveListKey() []byte { return ethcrypto.Keccak256(reserveListKeyBytes) }

func userConfigKey(user common.Address) []byte { return hashKey(userConfigPrefix, user[:]) }

func positionKey(user, asset common.Address) []byte {
	return hashKey(positionPrefix, user[:], asset[:])
}

func uniqueBalanceKey(user, collection common.Address) []byte {
	return hashKey(uniqueBalancePrefix, user[:], collection[:])
}

func tokenStorageKey(collection common.Address, id *uint256.Int) []byte {
	word := id.Bytes32()
	return hashKey(tokenPrefix, collection[:], word[:])
}

func auctionKey(collection common.Address, id *uint256.Int) []byte {
	word := id.Bytes32()
	return hashKey(auctionPrefix, collection[:], word[:])
}

// Store implements lending.State on top of a storage.Database.
type Store struct {
	db storage.Database
}

var _ lending.State = (*Store)(nil)

// New wraps the database.
func New(db storage.Database) *Store {
	return &Store{db: db}
}

// load decodes the record under key into out. It reports false when the key
// is absent.
func (s *Store) load(key []byte, out interface{}) (bool, error) {
	data, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) GetReserve(asset common.Address) (*lending.Reserve, error) {
	var stored storedReserve
	ok, err := s.load(reserveKey(asset), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return stored.toReserve()
}

func (s *Store) GetReservesList() ([]common.Address, error) {
	var list [][20]byte
	if _, err := s.load(reserveListKey(), &list); err != nil {
		return nil, err
	}
	out := make([]common.Address, len(list))
	for i, a := range list {
		out[i] = a
	}
	return out, nil
}

func (s *Store) GetUserConfig(user common.Address) (userconfig.Config, error) {
	var word storedWord
	ok, err := s.load(userConfigKey(user), &word)
	if err != nil || !ok {
		return userconfig.Config{}, err
	}
	v, err := fromBig("user config", word.Word)
	if err != nil {
		return userconfig.Config{}, err
	}
	return userconfig.FromWord(v), nil
}

func (s *Store) GetPosition(user, asset common.Address) (*lending.Position, error) {
	var stored storedPosition
	ok, err := s.load(positionKey(user, asset), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return stored.toPosition()
}

func (s *Store) GetUniqueBalance(user, collection common.Address) (*lending.UniqueBalance, error) {
	var stored storedUniqueBalance
	ok, err := s.load(uniqueBalanceKey(user, collection), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &lending.UniqueBalance{Supplied: stored.Supplied, Collateral: stored.Collateral}, nil
}

func (s *Store) GetToken(collection common.Address, id *uint256.Int) (*lending.TokenRecord, error) {
	var stored storedToken
	ok, err := s.load(tokenStorageKey(collection, id), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &lending.TokenRecord{Owner: stored.Owner, Collateral: stored.Collateral}, nil
}

func (s *Store) GetAuction(collection common.Address, id *uint256.Int) (*lending.AuctionRecord, error) {
	var stored storedAuction
	ok, err := s.load(auctionKey(collection, id), &stored)
	if err != nil || !ok {
		return nil, err
	}
	tokenID, err := fromBig("auction token id", stored.TokenID)
	if err != nil {
		return nil, err
	}
	return &lending.AuctionRecord{Collection: stored.Collection, TokenID: tokenID, StartTime: stored.StartTime}, nil
}

// Commit writes the change set in a single batch. Nothing is written when
// encoding any record fails.
func (s *Store) Commit(changes *lending.ChangeSet) error {
	if changes.IsEmpty() {
		return nil
	}
	batch := s.db.NewBatch()
	put := func(key []byte, value interface{}) error {
		encoded, err := rlp.EncodeToBytes(value)
		if err != nil {
			return err
		}
		batch.Put(key, encoded)
		return nil
	}

	for asset, r := range changes.Reserves {
		if r == nil {
			batch.Delete(reserveKey(asset))
			continue
		}
		if r.Asset != asset {
			return fmt.Errorf("lendstate: reserve %s stored under %s", r.Asset.Hex(), asset.Hex())
		}
		if err := put(reserveKey(asset), newStoredReserve(r)); err != nil {
			return fmt.Errorf("lendstate: encode reserve %s: %w", asset.Hex(), err)
		}
	}
	if changes.ReservesList != nil {
		list := make([][20]byte, len(changes.ReservesList))
		for i, a := range changes.ReservesList {
			list[i] = a
		}
		if err := put(reserveListKey(), list); err != nil {
			return fmt.Errorf("lendstate: encode reserve list: %w", err)
		}
	}
	for user, cfg := range changes.UserConfigs {
		key := userConfigKey(user)
		if cfg.IsEmpty() {
			batch.Delete(key)
			continue
		}
		if err := put(key, &storedWord{Word: toBig(cfg.Word())}); err != nil {
			return fmt.Errorf("lendstate: encode user config: %w", err)
		}
	}
	for k, p := range changes.Positions {
		key := positionKey(k.User, k.Asset)
		if p.IsEmpty() {
			batch.Delete(key)
			continue
		}
		if err := put(key, &storedPosition{ScaledSupply: toBig(p.ScaledSupply), ScaledDebt: toBig(p.ScaledDebt)}); err != nil {
			return fmt.Errorf("lendstate: encode position: %w", err)
		}
	}
	for k, b := range changes.UniqueBalances {
		key := uniqueBalanceKey(k.User, k.Asset)
		if b == nil || (b.Supplied == 0 && b.Collateral == 0) {
			batch.Delete(key)
			continue
		}
		if err := put(key, &storedUniqueBalance{Supplied: b.Supplied, Collateral: b.Collateral}); err != nil {
			return fmt.Errorf("lendstate: encode unique balance: %w", err)
		}
	}
	for k, rec := range changes.Tokens {
		id := k.ID
		key := tokenStorageKey(k.Collection, &id)
		if rec == nil {
			batch.Delete(key)
			continue
		}
		if err := put(key, &storedToken{Owner: rec.Owner, Collateral: rec.Collateral}); err != nil {
			return fmt.Errorf("lendstate: encode token: %w", err)
		}
	}
	for k, rec := range changes.Auctions {
		id := k.ID
		key := auctionKey(k.Collection, &id)
		if rec == nil {
			batch.Delete(key)
			continue
		}
		if err := put(key, &storedAuction{Collection: rec.Collection, TokenID: toBig(rec.TokenID), StartTime: rec.StartTime}); err != nil {
			return fmt.Errorf("lendstate: encode auction: %w", err)
		}
	}
	return batch.Write()
}
