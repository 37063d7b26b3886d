package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Market is the listing file of a lending market.
type Market struct {
	Treasury          string            `toml:"Treasury"`
	Liquidation       Liquidation       `toml:"liquidation"`
	Pauses            Pauses            `toml:"pauses"`
	RateStrategies    []RateStrategy    `toml:"rate_strategy"`
	AuctionStrategies []AuctionStrategy `toml:"auction_strategy"`
	Reserves          []Reserve         `toml:"reserve"`
	Prices            []Price           `toml:"price"`
}

// Load reads and validates the market file at path. A missing file yields an
// empty market with default liquidation constants, written back to path.
func Load(path string) (*Market, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Market{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("market config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := ValidateMarket(cfg); err != nil {
		return nil, fmt.Errorf("market config %s: %w", path, err)
	}
	return cfg, nil
}

func (m *Market) applyDefaults() {
	if strings.TrimSpace(m.Liquidation.CloseFactorHFThreshold) == "" {
		m.Liquidation.CloseFactorHFThreshold = DefaultCloseFactorHFThreshold
	}
	if strings.TrimSpace(m.Liquidation.AuctionRecoveryHealthFactor) == "" {
		m.Liquidation.AuctionRecoveryHealthFactor = DefaultAuctionRecoveryHealthFactor
	}
	for i := range m.Reserves {
		if strings.TrimSpace(m.Reserves[i].Type) == "" {
			m.Reserves[i].Type = "fungible"
		}
	}
}

// createDefault creates and saves an empty market.
func createDefault(path string) (*Market, error) {
	cfg := &Market{
		Liquidation: Liquidation{
			CloseFactorHFThreshold:      DefaultCloseFactorHFThreshold,
			AuctionRecoveryHealthFactor: DefaultAuctionRecoveryHealthFactor,
		},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Market) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
