package lending

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type countingOracle struct {
	*StaticOracle
	reads map[common.Address]int
}

func (o *countingOracle) GetAssetPrice(asset common.Address) (*uint256.Int, error) {
	o.reads[asset]++
	return o.StaticOracle.GetAssetPrice(asset)
}

func (o *countingOracle) GetUniqueAssetFloorPrice(collection common.Address) (*uint256.Int, error) {
	o.reads[collection]++
	return o.StaticOracle.GetUniqueAssetFloorPrice(collection)
}

func TestPriceCacheReadsOncePerAsset(t *testing.T) {
	asset := common.HexToAddress("0xa0")
	collection := common.HexToAddress("0xb0")
	oracle := &countingOracle{StaticOracle: NewStaticOracle(), reads: map[common.Address]int{}}
	oracle.SetAssetPrice(asset, uint256.NewInt(100))
	oracle.SetUniqueAssetFloorPrice(collection, uint256.NewInt(7))

	cache := newPriceCache(oracle)
	for i := 0; i < 3; i++ {
		p, err := cache.assetPrice(asset)
		if err != nil || !p.Eq(uint256.NewInt(100)) {
			t.Fatalf("asset price: %v %v", p, err)
		}
		if _, err := cache.floorPrice(collection); err != nil {
			t.Fatalf("floor price: %v", err)
		}
	}
	if oracle.reads[asset] != 1 || oracle.reads[collection] != 1 {
		t.Fatalf("expected one read each, got %v", oracle.reads)
	}

	// A price change mid-operation is not observed.
	oracle.SetAssetPrice(asset, uint256.NewInt(1))
	if p, _ := cache.assetPrice(asset); !p.Eq(uint256.NewInt(100)) {
		t.Fatalf("cached price changed to %s", p)
	}
}

func TestPriceCacheRejectsMissingAndZero(t *testing.T) {
	asset := common.HexToAddress("0xa0")
	oracle := NewStaticOracle()
	if _, err := newPriceCache(oracle).assetPrice(asset); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
	oracle.SetAssetPrice(asset, new(uint256.Int))
	if _, err := newPriceCache(oracle).assetPrice(asset); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("zero price must be rejected, got %v", err)
	}
	if _, err := newPriceCache(nil).floorPrice(asset); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("nil oracle must be rejected, got %v", err)
	}
}
