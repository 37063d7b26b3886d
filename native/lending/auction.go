package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/native/lending/auction"
	"lendcore/native/lending/fixedpoint"
	"lendcore/native/lending/reserveconfig"
)

// UniqueLiquidationResult describes an executed unique-token liquidation.
// Amounts are in units of the debt asset.
type UniqueLiquidationResult struct {
	// Price is what the liquidator paid for the token, fee excluded.
	Price          *uint256.Int
	DebtRepaid     *uint256.Int
	ExcessSupplied *uint256.Int
	ProtocolFee    *uint256.Int
	// Multiplier is the ray price multiplier applied to the floor price.
	Multiplier *uint256.Int
	Account    *AccountData
}

// auctionStrategyFor resolves the curve of a unique reserve. A nil strategy
// with a nil error means the auction path is disabled.
func (e *Engine) auctionStrategyFor(r *Reserve, user common.Address) (*auction.Strategy, error) {
	if r.AuctionStrategy == (common.Address{}) {
		return nil, nil
	}
	s, ok := e.auctionStrategies[r.AuctionStrategy]
	if !ok {
		return nil, fail(ErrAuctionStrategyUnknown, r.Asset, user)
	}
	return s, nil
}

// loadUniqueCollateral returns the reserve and token record of a token that
// user supplies as collateral.
func loadUniqueCollateral(op *operation, collection common.Address, tokenID *uint256.Int, user common.Address) (*Reserve, *TokenRecord, error) {
	if tokenID == nil {
		return nil, nil, fail(ErrInvalidAmount, collection, user)
	}
	r, err := loadReserve(op, collection, user)
	if err != nil {
		return nil, nil, err
	}
	if err := validateUsable(r, user); err != nil {
		return nil, nil, err
	}
	if err := validateAssetType(r, reserveconfig.AssetTypeUnique, user); err != nil {
		return nil, nil, err
	}
	rec, err := op.tx.token(collection, tokenID)
	if err != nil {
		return nil, nil, classify(err, collection, user)
	}
	if rec == nil || rec.Owner != user {
		return nil, nil, fail(ErrNotTheOwner, collection, user)
	}
	if !rec.Collateral || r.Config.LiquidationThreshold() == 0 {
		return nil, nil, fail(ErrCollateralCannotBeLiquidated, collection, user)
	}
	return r, rec, nil
}

// StartAuction opens the price auction on a collateral token of an
// unhealthy account.
func (e *Engine) StartAuction(caller, user, collection common.Address, tokenID *uint256.Int) (*AuctionRecord, error) {
	return run(e, "start_auction", func(op *operation) (*AuctionRecord, error) {
		r, _, err := loadUniqueCollateral(op, collection, tokenID, user)
		if err != nil {
			return nil, err
		}
		s, err := e.auctionStrategyFor(r, user)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fail(ErrAuctionNotEnabled, collection, user)
		}
		running, err := op.tx.auction(collection, tokenID)
		if err != nil {
			return nil, classify(err, collection, user)
		}
		if running != nil {
			return nil, fail(ErrAuctionAlreadyStarted, collection, user)
		}
		data, err := e.snapshot(op, user)
		if err != nil {
			return nil, err
		}
		if !data.HealthFactor.Lt(fixedpoint.Ray) {
			return nil, fail(ErrHealthFactorNotBelowThreshold, collection, user)
		}
		rec := &AuctionRecord{Collection: collection, TokenID: new(uint256.Int).Set(tokenID), StartTime: op.now}
		op.tx.putAuction(collection, tokenID, rec)
		e.logger.Info("lending auction started", "collection", collection.Hex(), "token", tokenID.Dec(), "user", user.Hex(), "caller", caller.Hex())
		op.events.Emit(events.LendingAuction{
			Started: true, Collection: collection, TokenID: new(uint256.Int).Set(tokenID), User: user, Timestamp: op.now,
		})
		return &AuctionRecord{Collection: collection, TokenID: new(uint256.Int).Set(tokenID), StartTime: op.now}, nil
	})
}

// EndAuction closes a running auction once the owner's health factor has
// recovered to the configured recovery threshold.
func (e *Engine) EndAuction(caller, user, collection common.Address, tokenID *uint256.Int) (*AccountData, error) {
	return run(e, "end_auction", func(op *operation) (*AccountData, error) {
		if tokenID == nil {
			return nil, fail(ErrInvalidAmount, collection, user)
		}
		r, err := loadReserve(op, collection, user)
		if err != nil {
			return nil, err
		}
		if err := validateAssetType(r, reserveconfig.AssetTypeUnique, user); err != nil {
			return nil, err
		}
		running, err := op.tx.auction(collection, tokenID)
		if err != nil {
			return nil, classify(err, collection, user)
		}
		if running == nil {
			return nil, fail(ErrAuctionNotStarted, collection, user)
		}
		rec, err := op.tx.token(collection, tokenID)
		if err != nil {
			return nil, classify(err, collection, user)
		}
		if rec == nil || rec.Owner != user {
			return nil, fail(ErrNotTheOwner, collection, user)
		}
		data, err := e.snapshot(op, user)
		if err != nil {
			return nil, err
		}
		if data.HealthFactor.Lt(e.params.AuctionRecoveryHealthFactor) {
			return nil, fail(ErrAuctionRecoveryHealthFactorNotMet, collection, user)
		}
		op.tx.putAuction(collection, tokenID, nil)
		e.logger.Info("lending auction ended", "collection", collection.Hex(), "token", tokenID.Dec(), "user", user.Hex(), "caller", caller.Hex())
		op.events.Emit(events.LendingAuction{
			Collection: collection, TokenID: new(uint256.Int).Set(tokenID), User: user, Timestamp: op.now,
		})
		return data, nil
	})
}

// uniquePrice is the auction price of one token in the debt asset: the
// discounted price the liquidator pays and the protocol fee on top.
type uniquePrice struct {
	multiplier *uint256.Int
	amount     *uint256.Int
	fee        *uint256.Int
}

// priceUniqueToken evaluates floor·multiplier, applies the bonus discount and
// converts the result into units of the debt reserve.
func priceUniqueToken(collateral, debt *Reserve, floor, debtPrice, multiplier *uint256.Int, bonus uint64) (*uniquePrice, error) {
	price, err := fixedpoint.RayMul(floor, multiplier)
	if err != nil {
		return nil, err
	}
	discounted, err := fixedpoint.PercentDiv(price, bonus)
	if err != nil {
		return nil, err
	}
	amount, err := fixedpoint.MulDiv(discounted, debt.Unit(), debtPrice)
	if err != nil {
		return nil, err
	}
	fee := fixedpoint.Zero()
	if protocolFee := collateral.Config.LiquidationProtocolFee(); protocolFee != 0 {
		feeBase, err := fixedpoint.PercentMul(fixedpoint.SubFloor(price, discounted), protocolFee)
		if err != nil {
			return nil, err
		}
		if fee, err = fixedpoint.MulDiv(feeBase, debt.Unit(), debtPrice); err != nil {
			return nil, err
		}
	}
	return &uniquePrice{multiplier: multiplier, amount: amount, fee: fee}, nil
}

// LiquidateUniqueAsset sells one collateral token of an unhealthy account to
// the liquidator for debt asset. The price repays the user's debt; whatever
// exceeds the debt is supplied to the user. maxLiquidationAmount bounds what
// the liquidator pays including the protocol fee. With receiveXToken the
// token stays supplied under the liquidator instead of being withdrawn. When
// the collection has an auction strategy the token must be under a started
// auction.
func (e *Engine) LiquidateUniqueAsset(liquidator, collection common.Address, tokenID *uint256.Int, debtAsset, user common.Address, maxLiquidationAmount *uint256.Int, receiveXToken bool) (*UniqueLiquidationResult, error) {
	return run(e, "liquidate_unique_asset", func(op *operation) (*UniqueLiquidationResult, error) {
		if err := validateAmount(maxLiquidationAmount, debtAsset, user); err != nil {
			return nil, err
		}
		collateral, rec, err := loadUniqueCollateral(op, collection, tokenID, user)
		if err != nil {
			return nil, err
		}
		debt, err := loadReserve(op, debtAsset, user)
		if err != nil {
			return nil, err
		}
		if err := validateUsable(debt, user); err != nil {
			return nil, err
		}
		if err := validateAssetType(debt, reserveconfig.AssetTypeFungible, user); err != nil {
			return nil, err
		}
		if err := e.updateState(debt, op.now); err != nil {
			return nil, err
		}

		before, err := e.snapshot(op, user)
		if err != nil {
			return nil, err
		}
		if !before.HealthFactor.Lt(fixedpoint.Ray) {
			return nil, fail(ErrHealthFactorNotBelowThreshold, collection, user)
		}
		debtPos, err := op.tx.position(user, debtAsset)
		if err != nil {
			return nil, classify(err, debtAsset, user)
		}
		if debtPos.ScaledDebt.IsZero() {
			return nil, fail(ErrSpecifiedCurrencyNotBorrowedByUser, debtAsset, user)
		}

		multiplier := fixedpoint.One()
		bonus := collateral.Config.LiquidationBonus()
		s, err := e.auctionStrategyFor(collateral, user)
		if err != nil {
			return nil, err
		}
		running, err := op.tx.auction(collection, tokenID)
		if err != nil {
			return nil, classify(err, collection, user)
		}
		if s != nil {
			// An enabled auction path only sells through a started auction.
			if running == nil {
				return nil, fail(ErrAuctionNotStarted, collection, user)
			}
			multiplier = s.CalculateAuctionPriceMultiplier(running.StartTime, op.now)
			bonus = fixedpoint.PercentageFactor
		}

		floor, err := op.prices.floorPrice(collection)
		if err != nil {
			return nil, err
		}
		debtPrice, err := op.prices.assetPrice(debtAsset)
		if err != nil {
			return nil, err
		}
		quote, err := priceUniqueToken(collateral, debt, floor, debtPrice, multiplier, bonus)
		if err != nil {
			return nil, classify(err, debtAsset, user)
		}
		if quote.amount.IsZero() {
			return nil, fail(ErrInvalidAmount, debtAsset, user)
		}
		outlay, err := fixedpoint.Add(quote.amount, quote.fee)
		if err != nil {
			return nil, classify(err, debtAsset, user)
		}
		if outlay.Gt(maxLiquidationAmount) {
			return nil, fail(ErrLiquidationAmountNotEnough, debtAsset, user)
		}

		repaid, err := e.burnDebt(op, debt, user, quote.amount)
		if err != nil {
			return nil, err
		}
		if debt.State.AvailableLiquidity, err = fixedpoint.Add(debt.State.AvailableLiquidity, outlay); err != nil {
			return nil, classify(err, debtAsset, user)
		}
		excess := new(uint256.Int).Sub(quote.amount, repaid)
		if err := e.supplyProceeds(op, debt, user, excess); err != nil {
			return nil, err
		}
		if !quote.fee.IsZero() {
			treasury, err := e.treasury(debtAsset, user)
			if err != nil {
				return nil, err
			}
			if err := e.supplyProceeds(op, debt, treasury, quote.fee); err != nil {
				return nil, err
			}
		}

		if err := e.transferToken(op, collateral, user, liquidator, tokenID, rec, receiveXToken); err != nil {
			return nil, err
		}
		if err := e.finalizeReserve(op, debt); err != nil {
			return nil, err
		}
		op.tx.putReserve(collateral)

		after, err := e.snapshot(op, user)
		if err != nil {
			return nil, err
		}
		e.logger.Info("lending unique liquidation", "collection", collection.Hex(), "token", tokenID.Dec(),
			"user", user.Hex(), "liquidator", liquidator.Hex(), "price", quote.amount.Dec())
		op.events.Emit(events.LendingUniqueLiquidated{
			Collection:     collection,
			TokenID:        new(uint256.Int).Set(tokenID),
			DebtAsset:      debtAsset,
			User:           user,
			Liquidator:     liquidator,
			Price:          fixedpoint.Clone(quote.amount),
			DebtRepaid:     fixedpoint.Clone(repaid),
			ExcessSupplied: fixedpoint.Clone(excess),
			ProtocolFee:    fixedpoint.Clone(quote.fee),
			Multiplier:     fixedpoint.Clone(quote.multiplier),
		})
		return &UniqueLiquidationResult{
			Price:          quote.amount,
			DebtRepaid:     repaid,
			ExcessSupplied: excess,
			ProtocolFee:    quote.fee,
			Multiplier:     quote.multiplier,
			Account:        after,
		}, nil
	})
}

// supplyProceeds credits amount of r, already counted as reserve cash, to the
// supply position of to.
func (e *Engine) supplyProceeds(op *operation, r *Reserve, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	scaled, err := scaledOf(amount, r.State.LiquidityIndex)
	if err != nil {
		return classify(err, r.Asset, to)
	}
	if scaled.IsZero() {
		return nil
	}
	return e.creditSupply(op, r, to, scaled)
}

// transferToken moves a liquidated token away from user. With keepSupplied
// the liquidator becomes the owner of a non-collateral supply; otherwise the
// token leaves the reserve.
func (e *Engine) transferToken(op *operation, r *Reserve, user, liquidator common.Address, id *uint256.Int, rec *TokenRecord, keepSupplied bool) error {
	bal, err := op.tx.uniqueBalance(user, r.Asset)
	if err != nil {
		return classify(err, r.Asset, user)
	}
	if err := e.removeToken(op, r, user, id, rec, bal); err != nil {
		return err
	}
	op.tx.putUniqueBalance(user, r.Asset, bal)
	if bal.Collateral == 0 {
		if err := e.setCollateralBit(op, r, user, false, nil); err != nil {
			return err
		}
	}
	if !keepSupplied {
		return nil
	}
	received, err := op.tx.uniqueBalance(liquidator, r.Asset)
	if err != nil {
		return classify(err, r.Asset, liquidator)
	}
	received.Supplied++
	op.tx.putUniqueBalance(liquidator, r.Asset, received)
	op.tx.putToken(r.Asset, id, &TokenRecord{Owner: liquidator})
	r.State.TotalScaledSupply, err = fixedpoint.Add(r.State.TotalScaledSupply, uint256.NewInt(1))
	return classify(err, r.Asset, liquidator)
}
