package lending

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PriceOracle supplies prices in the base currency. Fungible assets are priced
// per whole unit (10^decimals); unique collections by floor price per token.
type PriceOracle interface {
	GetAssetPrice(asset common.Address) (*uint256.Int, error)
	GetUniqueAssetFloorPrice(collection common.Address) (*uint256.Int, error)
}

// priceCache reads each price at most once per operation.
type priceCache struct {
	oracle PriceOracle
	prices map[common.Address]*uint256.Int
	floors map[common.Address]*uint256.Int
}

func newPriceCache(oracle PriceOracle) *priceCache {
	return &priceCache{
		oracle: oracle,
		prices: make(map[common.Address]*uint256.Int),
		floors: make(map[common.Address]*uint256.Int),
	}
}

func (c *priceCache) assetPrice(asset common.Address) (*uint256.Int, error) {
	if p, ok := c.prices[asset]; ok {
		return p, nil
	}
	if c.oracle == nil {
		return nil, fail(ErrPriceUnavailable, asset, common.Address{})
	}
	p, err := c.oracle.GetAssetPrice(asset)
	if err != nil {
		return nil, failWith(ErrPriceUnavailable, asset, common.Address{}, err)
	}
	if p == nil || p.IsZero() {
		return nil, fail(ErrPriceUnavailable, asset, common.Address{})
	}
	c.prices[asset] = p
	return p, nil
}

func (c *priceCache) floorPrice(collection common.Address) (*uint256.Int, error) {
	if p, ok := c.floors[collection]; ok {
		return p, nil
	}
	if c.oracle == nil {
		return nil, fail(ErrPriceUnavailable, collection, common.Address{})
	}
	p, err := c.oracle.GetUniqueAssetFloorPrice(collection)
	if err != nil {
		return nil, failWith(ErrPriceUnavailable, collection, common.Address{}, err)
	}
	if p == nil || p.IsZero() {
		return nil, fail(ErrPriceUnavailable, collection, common.Address{})
	}
	c.floors[collection] = p
	return p, nil
}

// reservePrice returns the unit price for fungible reserves and the floor
// price for unique ones.
func (c *priceCache) reservePrice(r *Reserve) (*uint256.Int, error) {
	if r.IsUnique() {
		return c.floorPrice(r.Asset)
	}
	return c.assetPrice(r.Asset)
}

// StaticOracle is a PriceOracle backed by prices set by an operator, used by
// the daemon's manual price feed and in tests.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[common.Address]*uint256.Int
	floors map[common.Address]*uint256.Int
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{
		prices: make(map[common.Address]*uint256.Int),
		floors: make(map[common.Address]*uint256.Int),
	}
}

func (o *StaticOracle) SetAssetPrice(asset common.Address, price *uint256.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[asset] = new(uint256.Int).Set(price)
}

func (o *StaticOracle) SetUniqueAssetFloorPrice(collection common.Address, price *uint256.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.floors[collection] = new(uint256.Int).Set(price)
}

func (o *StaticOracle) GetAssetPrice(asset common.Address) (*uint256.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.prices[asset]
	if !ok {
		return nil, ErrPriceUnavailable
	}
	return new(uint256.Int).Set(p), nil
}

func (o *StaticOracle) GetUniqueAssetFloorPrice(collection common.Address) (*uint256.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.floors[collection]
	if !ok {
		return nil, ErrPriceUnavailable
	}
	return new(uint256.Int).Set(p), nil
}
