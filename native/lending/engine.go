package lending

import (
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
	nativecommon "lendcore/native/common"
	"lendcore/native/lending/auction"
	"lendcore/native/lending/fixedpoint"
	"lendcore/native/lending/interest"
)

const moduleName = "lending"

// Params groups the engine wide liquidation constants.
type Params struct {
	// Treasury receives reserve-factor income and liquidation protocol fees.
	Treasury common.Address
	// CloseFactorHFThreshold is the health factor (ray) below which a
	// liquidation may repay the full debt instead of half of it.
	CloseFactorHFThreshold *uint256.Int
	// AuctionRecoveryHealthFactor is the health factor (ray) an account must
	// reach before a running auction can be ended.
	AuctionRecoveryHealthFactor *uint256.Int
}

// DefaultParams returns the 0.95 close factor threshold and the 1.5 recovery
// health factor.
func DefaultParams() Params {
	return Params{
		CloseFactorHFThreshold:      uint256.MustFromDecimal("950000000000000000000000000"),
		AuctionRecoveryHealthFactor: uint256.MustFromDecimal("1500000000000000000000000000"),
	}
}

// Validate checks the threshold ranges.
func (p Params) Validate() error {
	if p.CloseFactorHFThreshold == nil || p.CloseFactorHFThreshold.IsZero() || p.CloseFactorHFThreshold.Gt(fixedpoint.Ray) {
		return fail(ErrInvalidCloseFactorHealthFactor, common.Address{}, common.Address{})
	}
	if p.AuctionRecoveryHealthFactor == nil || p.AuctionRecoveryHealthFactor.Lt(fixedpoint.Ray) {
		return fail(ErrInvalidAuctionRecoveryHealthFactor, common.Address{}, common.Address{})
	}
	return nil
}

// treasury returns the fee recipient. Protocol income is never credited to
// the zero address.
func (e *Engine) treasury(asset, user common.Address) (common.Address, error) {
	if e.params.Treasury == (common.Address{}) {
		return common.Address{}, fail(ErrTreasuryNotSet, asset, user)
	}
	return e.params.Treasury, nil
}

func (p Params) clone() Params {
	return Params{
		Treasury:                    p.Treasury,
		CloseFactorHFThreshold:      fixedpoint.Clone(p.CloseFactorHFThreshold),
		AuctionRecoveryHealthFactor: fixedpoint.Clone(p.AuctionRecoveryHealthFactor),
	}
}

// Engine orchestrates the state transitions of the lending module. It holds no
// locks; callers serialize operations.
type Engine struct {
	state      State
	oracle     PriceOracle
	authorizer Authorizer
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	logger     *slog.Logger
	clock      func() uint64
	params     Params

	rateStrategies    map[common.Address]*interest.Strategy
	auctionStrategies map[common.Address]*auction.Strategy
}

// NewEngine constructs an engine with the supplied liquidation parameters.
// Nil thresholds fall back to DefaultParams.
func NewEngine(params Params) *Engine {
	defaults := DefaultParams()
	if params.CloseFactorHFThreshold == nil {
		params.CloseFactorHFThreshold = defaults.CloseFactorHFThreshold
	}
	if params.AuctionRecoveryHealthFactor == nil {
		params.AuctionRecoveryHealthFactor = defaults.AuctionRecoveryHealthFactor
	}
	return &Engine{
		params:            params.clone(),
		emitter:           events.NoopEmitter{},
		logger:            slog.Default(),
		clock:             func() uint64 { return uint64(time.Now().Unix()) },
		rateStrategies:    make(map[common.Address]*interest.Strategy),
		auctionStrategies: make(map[common.Address]*auction.Strategy),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state State) { e.state = state }

// SetOracle configures the price source.
func (e *Engine) SetOracle(oracle PriceOracle) { e.oracle = oracle }

// SetAuthorizer configures the permission gate consulted by the configurator.
func (e *Engine) SetAuthorizer(a Authorizer) { e.authorizer = a }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures where committed events are published.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetClock overrides the unix-seconds clock used for index accrual and
// auctions.
func (e *Engine) SetClock(clock func() uint64) {
	if clock != nil {
		e.clock = clock
	}
}

// SetParams replaces the liquidation constants after validation.
func (e *Engine) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.params = p.clone()
	return nil
}

// Params returns a copy of the liquidation constants.
func (e *Engine) Params() Params { return e.params.clone() }

// RegisterInterestRateStrategy makes a rate strategy available to reserves
// under addr.
func (e *Engine) RegisterInterestRateStrategy(addr common.Address, s *interest.Strategy) error {
	if addr == (common.Address{}) || s == nil {
		return fail(ErrInvalidReserveParams, addr, common.Address{})
	}
	e.rateStrategies[addr] = s.Clone()
	return nil
}

// RegisterAuctionStrategy makes an auction curve available to unique
// reserves under addr.
func (e *Engine) RegisterAuctionStrategy(addr common.Address, s *auction.Strategy) error {
	if addr == (common.Address{}) || s == nil {
		return fail(ErrInvalidReserveParams, addr, common.Address{})
	}
	e.auctionStrategies[addr] = s
	return nil
}

func (e *Engine) InterestRateStrategy(addr common.Address) (*interest.Strategy, bool) {
	s, ok := e.rateStrategies[addr]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

func (e *Engine) AuctionStrategy(addr common.Address) (*auction.Strategy, bool) {
	s, ok := e.auctionStrategies[addr]
	return s, ok
}

// operation is the working context of one engine call.
type operation struct {
	name   string
	tx     *txn
	prices *priceCache
	events events.Buffer
	now    uint64
}

func (e *Engine) begin(name string, mutating bool) (*operation, error) {
	if e.state == nil {
		return nil, fail(ErrStorage, common.Address{}, common.Address{})
	}
	if mutating {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return nil, failWith(ErrModulePaused, common.Address{}, common.Address{}, err)
		}
	}
	return &operation{
		name:   name,
		tx:     newTxn(e.state),
		prices: newPriceCache(e.oracle),
		now:    e.clock(),
	}, nil
}

// commit applies the buffered writes and publishes events on success.
func (e *Engine) commit(op *operation) error {
	if err := op.tx.commit(); err != nil {
		e.logger.Error("lending commit failed", "op", op.name, "error", err)
		return failWith(ErrStorage, common.Address{}, common.Address{}, err)
	}
	e.logger.Debug("lending operation committed", "op", op.name, "events", op.events.Len())
	op.events.Flush(e.emitter)
	return nil
}

func (e *Engine) rejected(op *operation, err error) error {
	e.logger.Debug("lending operation rejected", "op", op.name, "error", err)
	return err
}

// run executes body inside a fresh operation and commits its writes only when
// body succeeds.
func run[T any](e *Engine, name string, body func(op *operation) (T, error)) (T, error) {
	var zero T
	op, err := e.begin(name, true)
	if err != nil {
		return zero, err
	}
	out, err := body(op)
	if err != nil {
		return zero, e.rejected(op, err)
	}
	if err := e.commit(op); err != nil {
		return zero, err
	}
	return out, nil
}
