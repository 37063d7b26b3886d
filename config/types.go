package config

// Liquidation holds the engine wide liquidation constants. Health factors are
// decimal strings such as "0.95".
type Liquidation struct {
	CloseFactorHFThreshold      string `toml:"CloseFactorHFThreshold"`
	AuctionRecoveryHealthFactor string `toml:"AuctionRecoveryHealthFactor"`
}

// RateStrategy describes one kinked interest rate curve in basis points.
type RateStrategy struct {
	Address         string `toml:"Address"`
	OptimalUsageBps uint64 `toml:"OptimalUsageBps"`
	BaseRateBps     uint64 `toml:"BaseRateBps"`
	Slope1Bps       uint64 `toml:"Slope1Bps"`
	Slope2Bps       uint64 `toml:"Slope2Bps"`
}

// AuctionStrategy describes one decaying auction price curve. Multipliers
// and steps are decimal strings; TickLength is in seconds.
type AuctionStrategy struct {
	Address               string `toml:"Address"`
	MaxPriceMultiplier    string `toml:"MaxPriceMultiplier"`
	MinExpPriceMultiplier string `toml:"MinExpPriceMultiplier"`
	MinPriceMultiplier    string `toml:"MinPriceMultiplier"`
	StepLinear            string `toml:"StepLinear"`
	StepExp               string `toml:"StepExp"`
	TickLength            uint64 `toml:"TickLength"`
}

// Reserve lists one asset and its risk parameters.
type Reserve struct {
	Asset                     string `toml:"Asset"`
	Type                      string `toml:"Type"`
	Decimals                  uint8  `toml:"Decimals"`
	InterestRateStrategy      string `toml:"InterestRateStrategy"`
	AuctionStrategy           string `toml:"AuctionStrategy"`
	LtvBps                    uint64 `toml:"LtvBps"`
	LiquidationThresholdBps   uint64 `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps       uint64 `toml:"LiquidationBonusBps"`
	ReserveFactorBps          uint64 `toml:"ReserveFactorBps"`
	LiquidationProtocolFeeBps uint64 `toml:"LiquidationProtocolFeeBps"`
	BorrowCap                 uint64 `toml:"BorrowCap"`
	SupplyCap                 uint64 `toml:"SupplyCap"`
	BorrowingEnabled          bool   `toml:"BorrowingEnabled"`
	SiloedBorrowing           bool   `toml:"SiloedBorrowing"`
	Frozen                    bool   `toml:"Frozen"`
}

// Price seeds the static oracle. Price is an integer in base currency units;
// Floor marks a unique collection floor price.
type Price struct {
	Asset string `toml:"Asset"`
	Price string `toml:"Price"`
	Floor bool   `toml:"Floor"`
}

// Pauses lists the modules that start paused.
type Pauses struct {
	Lending bool `toml:"Lending"`
}
