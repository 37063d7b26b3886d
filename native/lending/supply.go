package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/native/lending/fixedpoint"
	"lendcore/native/lending/reserveconfig"
)

// creditSupply adds scaled supply to user. The first supply of a reserve with
// a non-zero ltv enables it as collateral.
func (e *Engine) creditSupply(op *operation, r *Reserve, user common.Address, scaled *uint256.Int) error {
	pos, err := op.tx.position(user, r.Asset)
	if err != nil {
		return classify(err, r.Asset, user)
	}
	wasEmpty := pos.ScaledSupply.IsZero()
	if pos.ScaledSupply, err = fixedpoint.Add(pos.ScaledSupply, scaled); err != nil {
		return classify(err, r.Asset, user)
	}
	if r.State.TotalScaledSupply, err = fixedpoint.Add(r.State.TotalScaledSupply, scaled); err != nil {
		return classify(err, r.Asset, user)
	}
	op.tx.putPosition(user, r.Asset, pos)
	if wasEmpty && !scaled.IsZero() && r.Config.Ltv() != 0 {
		return e.setCollateralBit(op, r, user, true, nil)
	}
	return nil
}

// debitSupply removes scaled supply from user and clears the collateral bit
// once the balance is gone.
func (e *Engine) debitSupply(op *operation, r *Reserve, user common.Address, scaled *uint256.Int) error {
	pos, err := op.tx.position(user, r.Asset)
	if err != nil {
		return classify(err, r.Asset, user)
	}
	if scaled.Gt(pos.ScaledSupply) {
		return fail(ErrNotEnoughAvailableUserBalance, r.Asset, user)
	}
	pos.ScaledSupply = new(uint256.Int).Sub(pos.ScaledSupply, scaled)
	r.State.TotalScaledSupply = fixedpoint.SubFloor(r.State.TotalScaledSupply, scaled)
	op.tx.putPosition(user, r.Asset, pos)
	if pos.ScaledSupply.IsZero() {
		return e.setCollateralBit(op, r, user, false, nil)
	}
	return nil
}

// setCollateralBit flips the collateral flag of r in the user bitmap when it
// differs from enabled.
func (e *Engine) setCollateralBit(op *operation, r *Reserve, user common.Address, enabled bool, tokenID *uint256.Int) error {
	cfg, err := op.tx.userConfig(user)
	if err != nil {
		return classify(err, r.Asset, user)
	}
	if cfg.IsUsingAsCollateral(r.ID) == enabled {
		return nil
	}
	if err := cfg.SetUsingAsCollateral(r.ID, enabled); err != nil {
		return classify(err, r.Asset, user)
	}
	op.tx.putUserConfig(user, cfg)
	op.events.Emit(events.LendingCollateralToggled{Asset: r.Asset, User: user, Enabled: enabled, TokenID: tokenID})
	return nil
}

// snapshot returns the pending account data of user.
func (e *Engine) snapshot(op *operation, user common.Address) (*AccountData, error) {
	cfg, err := op.tx.userConfig(user)
	if err != nil {
		return nil, classify(err, common.Address{}, user)
	}
	return e.accountData(op, user, cfg)
}

// Supply deposits amount of a fungible asset on behalf of onBehalfOf.
func (e *Engine) Supply(caller, asset common.Address, amount *uint256.Int, onBehalfOf common.Address) (*Result, error) {
	return run(e, "supply", func(op *operation) (*Result, error) {
		if err := validateAmount(amount, asset, onBehalfOf); err != nil {
			return nil, err
		}
		r, err := loadReserve(op, asset, onBehalfOf)
		if err != nil {
			return nil, err
		}
		if err := validateOpen(r, onBehalfOf); err != nil {
			return nil, err
		}
		if err := validateAssetType(r, reserveconfig.AssetTypeFungible, onBehalfOf); err != nil {
			return nil, err
		}
		if err := e.updateState(r, op.now); err != nil {
			return nil, err
		}
		if err := checkSupplyCap(r, amount, onBehalfOf); err != nil {
			return nil, err
		}
		scaled, err := scaledOf(amount, r.State.LiquidityIndex)
		if err != nil {
			return nil, classify(err, asset, onBehalfOf)
		}
		if scaled.IsZero() {
			return nil, fail(ErrInvalidScaledAmount, asset, onBehalfOf)
		}
		if r.State.AvailableLiquidity, err = fixedpoint.Add(r.State.AvailableLiquidity, amount); err != nil {
			return nil, classify(err, asset, onBehalfOf)
		}
		if err := e.creditSupply(op, r, onBehalfOf, scaled); err != nil {
			return nil, err
		}
		if err := e.finalizeReserve(op, r); err != nil {
			return nil, err
		}
		op.events.Emit(events.LendingPositionChanged{
			Kind: events.TypeLendingSupplied, Asset: asset, Caller: caller, OnBehalfOf: onBehalfOf, Amount: fixedpoint.Clone(amount),
		})
		data, err := e.snapshot(op, onBehalfOf)
		if err != nil {
			return nil, err
		}
		return &Result{Amount: fixedpoint.Clone(amount), Account: data}, nil
	})
}

// Withdraw redeems amount of the caller's supply to the address to. An amount
// of MaxUint256 withdraws the full balance.
func (e *Engine) Withdraw(caller, asset common.Address, amount *uint256.Int, to common.Address) (*Result, error) {
	return run(e, "withdraw", func(op *operation) (*Result, error) {
		if err := validateAmount(amount, asset, caller); err != nil {
			return nil, err
		}
		r, err := loadReserve(op, asset, caller)
		if err != nil {
			return nil, err
		}
		if err := validateUsable(r, caller); err != nil {
			return nil, err
		}
		if err := validateAssetType(r, reserveconfig.AssetTypeFungible, caller); err != nil {
			return nil, err
		}
		if err := e.updateState(r, op.now); err != nil {
			return nil, err
		}
		pos, err := op.tx.position(caller, asset)
		if err != nil {
			return nil, classify(err, asset, caller)
		}
		balance, err := balanceOf(pos.ScaledSupply, r.State.LiquidityIndex)
		if err != nil {
			return nil, classify(err, asset, caller)
		}
		withdrawn := fixedpoint.Clone(amount)
		if amount.Eq(fixedpoint.MaxUint256) {
			withdrawn = balance
		}
		if withdrawn.IsZero() || withdrawn.Gt(balance) {
			return nil, fail(ErrNotEnoughAvailableUserBalance, asset, caller)
		}
		if withdrawn.Gt(r.State.AvailableLiquidity) {
			return nil, fail(ErrInsufficientLiquidity, asset, caller)
		}
		scaled := fixedpoint.Clone(pos.ScaledSupply)
		if !withdrawn.Eq(balance) {
			if scaled, err = scaledOf(withdrawn, r.State.LiquidityIndex); err != nil {
				return nil, classify(err, asset, caller)
			}
			scaled = fixedpoint.Min(scaled, pos.ScaledSupply)
		}
		if scaled.IsZero() {
			return nil, fail(ErrInvalidScaledAmount, asset, caller)
		}
		if err := e.debitSupply(op, r, caller, scaled); err != nil {
			return nil, err
		}
		r.State.AvailableLiquidity = new(uint256.Int).Sub(r.State.AvailableLiquidity, withdrawn)
		if err := e.finalizeReserve(op, r); err != nil {
			return nil, err
		}
		data, err := e.requireHealthy(op, caller, asset)
		if err != nil {
			return nil, err
		}
		op.events.Emit(events.LendingPositionChanged{
			Kind: events.TypeLendingWithdrawn, Asset: asset, Caller: caller, OnBehalfOf: to, Amount: fixedpoint.Clone(withdrawn),
		})
		return &Result{Amount: withdrawn, Account: data}, nil
	})
}

// SetUsingAsCollateral enables or disables a fungible supply as collateral.
// Disabling is rejected when it would leave an indebted account below a
// health factor of one.
func (e *Engine) SetUsingAsCollateral(user, asset common.Address, use bool) (*Result, error) {
	return run(e, "set_using_as_collateral", func(op *operation) (*Result, error) {
		r, err := loadReserve(op, asset, user)
		if err != nil {
			return nil, err
		}
		if err := validateUsable(r, user); err != nil {
			return nil, err
		}
		if err := validateAssetType(r, reserveconfig.AssetTypeFungible, user); err != nil {
			return nil, err
		}
		cfg, err := op.tx.userConfig(user)
		if err != nil {
			return nil, classify(err, asset, user)
		}
		if cfg.IsUsingAsCollateral(r.ID) != use {
			pos, err := op.tx.position(user, asset)
			if err != nil {
				return nil, classify(err, asset, user)
			}
			if pos.ScaledSupply.IsZero() {
				return nil, fail(ErrUnderlyingBalanceZero, asset, user)
			}
			if use && r.Config.Ltv() == 0 {
				return nil, fail(ErrLtvValidationFailed, asset, user)
			}
			if err := e.setCollateralBit(op, r, user, use, nil); err != nil {
				return nil, err
			}
		}
		data, err := e.collateralToggleAccount(op, user, asset, use)
		if err != nil {
			return nil, err
		}
		return &Result{Amount: fixedpoint.Zero(), Account: data}, nil
	})
}

func validateTokenIDs(ids []*uint256.Int, collection, user common.Address) error {
	if len(ids) == 0 {
		return fail(ErrInvalidAmount, collection, user)
	}
	for _, id := range ids {
		if id == nil {
			return fail(ErrInvalidAmount, collection, user)
		}
	}
	return nil
}

// SupplyUnique deposits unique tokens of collection on behalf of onBehalfOf.
// Tokens are flagged as collateral when the reserve has a non-zero ltv.
func (e *Engine) SupplyUnique(caller, collection common.Address, tokenIDs []*uint256.Int, onBehalfOf common.Address) (*Result, error) {
	return run(e, "supply_unique", func(op *operation) (*Result, error) {
		if err := validateTokenIDs(tokenIDs, collection, onBehalfOf); err != nil {
			return nil, err
		}
		r, err := loadReserve(op, collection, onBehalfOf)
		if err != nil {
			return nil, err
		}
		if err := validateOpen(r, onBehalfOf); err != nil {
			return nil, err
		}
		if err := validateAssetType(r, reserveconfig.AssetTypeUnique, onBehalfOf); err != nil {
			return nil, err
		}
		count := uint256.NewInt(uint64(len(tokenIDs)))
		if limit := r.Config.SupplyCap(); limit != 0 {
			total, err := fixedpoint.Add(r.State.TotalScaledSupply, count)
			if err != nil {
				return nil, classify(err, collection, onBehalfOf)
			}
			if total.GtUint64(limit) {
				return nil, fail(ErrSupplyCapExceeded, collection, onBehalfOf)
			}
		}
		bal, err := op.tx.uniqueBalance(onBehalfOf, collection)
		if err != nil {
			return nil, classify(err, collection, onBehalfOf)
		}
		asCollateral := r.Config.Ltv() != 0
		for _, id := range tokenIDs {
			rec, err := op.tx.token(collection, id)
			if err != nil {
				return nil, classify(err, collection, onBehalfOf)
			}
			if rec != nil {
				return nil, fail(ErrTokenAlreadySupplied, collection, onBehalfOf)
			}
			op.tx.putToken(collection, id, &TokenRecord{Owner: onBehalfOf, Collateral: asCollateral})
			bal.Supplied++
			if asCollateral {
				bal.Collateral++
			}
		}
		op.tx.putUniqueBalance(onBehalfOf, collection, bal)
		if r.State.TotalScaledSupply, err = fixedpoint.Add(r.State.TotalScaledSupply, count); err != nil {
			return nil, classify(err, collection, onBehalfOf)
		}
		if asCollateral {
			if err := e.setCollateralBit(op, r, onBehalfOf, true, nil); err != nil {
				return nil, err
			}
		}
		op.tx.putReserve(r)
		op.events.Emit(events.LendingPositionChanged{
			Kind: events.TypeLendingSupplied, Asset: collection, Caller: caller, OnBehalfOf: onBehalfOf,
			Amount: count, TokenIDs: cloneIDs(tokenIDs),
		})
		data, err := e.snapshot(op, onBehalfOf)
		if err != nil {
			return nil, err
		}
		return &Result{Amount: count, Account: data}, nil
	})
}

// removeToken deletes a supplied token from its owner and from any running
// auction.
func (e *Engine) removeToken(op *operation, r *Reserve, owner common.Address, id *uint256.Int, rec *TokenRecord, bal *UniqueBalance) error {
	op.tx.putToken(r.Asset, id, nil)
	if bal.Supplied > 0 {
		bal.Supplied--
	}
	if rec.Collateral && bal.Collateral > 0 {
		bal.Collateral--
	}
	r.State.TotalScaledSupply = fixedpoint.SubFloor(r.State.TotalScaledSupply, uint256.NewInt(1))
	running, err := op.tx.auction(r.Asset, id)
	if err != nil {
		return classify(err, r.Asset, owner)
	}
	if running != nil {
		op.tx.putAuction(r.Asset, id, nil)
	}
	return nil
}

// WithdrawUnique returns supplied tokens to the caller. Running auctions on
// the tokens are closed.
func (e *Engine) WithdrawUnique(caller, collection common.Address, tokenIDs []*uint256.Int, to common.Address) (*Result, error) {
	return run(e, "withdraw_unique", func(op *operation) (*Result, error) {
		if err := validateTokenIDs(tokenIDs, collection, caller); err != nil {
			return nil, err
		}
		r, err := loadReserve(op, collection, caller)
		if err != nil {
			return nil, err
		}
		if err := validateUsable(r, caller); err != nil {
			return nil, err
		}
		if err := validateAssetType(r, reserveconfig.AssetTypeUnique, caller); err != nil {
			return nil, err
		}
		bal, err := op.tx.uniqueBalance(caller, collection)
		if err != nil {
			return nil, classify(err, collection, caller)
		}
		for _, id := range tokenIDs {
			rec, err := op.tx.token(collection, id)
			if err != nil {
				return nil, classify(err, collection, caller)
			}
			if rec == nil || rec.Owner != caller {
				return nil, fail(ErrNotTheOwner, collection, caller)
			}
			if err := e.removeToken(op, r, caller, id, rec, bal); err != nil {
				return nil, err
			}
		}
		op.tx.putUniqueBalance(caller, collection, bal)
		if bal.Collateral == 0 {
			if err := e.setCollateralBit(op, r, caller, false, nil); err != nil {
				return nil, err
			}
		}
		op.tx.putReserve(r)
		data, err := e.requireHealthy(op, caller, collection)
		if err != nil {
			return nil, err
		}
		count := uint256.NewInt(uint64(len(tokenIDs)))
		op.events.Emit(events.LendingPositionChanged{
			Kind: events.TypeLendingWithdrawn, Asset: collection, Caller: caller, OnBehalfOf: to,
			Amount: count, TokenIDs: cloneIDs(tokenIDs),
		})
		return &Result{Amount: count, Account: data}, nil
	})
}

// SetUniqueUsingAsCollateral flips the collateral flag of individual tokens.
// Revoking the flag of an auctioned token ends its auction, and a revoking
// call is rejected if the account would fall below a health factor of one.
func (e *Engine) SetUniqueUsingAsCollateral(user, collection common.Address, tokenIDs []*uint256.Int, use bool) (*Result, error) {
	return run(e, "set_unique_using_as_collateral", func(op *operation) (*Result, error) {
		if err := validateTokenIDs(tokenIDs, collection, user); err != nil {
			return nil, err
		}
		r, err := loadReserve(op, collection, user)
		if err != nil {
			return nil, err
		}
		if err := validateUsable(r, user); err != nil {
			return nil, err
		}
		if err := validateAssetType(r, reserveconfig.AssetTypeUnique, user); err != nil {
			return nil, err
		}
		if use && r.Config.Ltv() == 0 {
			return nil, fail(ErrLtvValidationFailed, collection, user)
		}
		bal, err := op.tx.uniqueBalance(user, collection)
		if err != nil {
			return nil, classify(err, collection, user)
		}
		changed := uint64(0)
		for _, id := range tokenIDs {
			rec, err := op.tx.token(collection, id)
			if err != nil {
				return nil, classify(err, collection, user)
			}
			if rec == nil || rec.Owner != user {
				return nil, fail(ErrNotTheOwner, collection, user)
			}
			if rec.Collateral == use {
				continue
			}
			updated := &TokenRecord{Owner: rec.Owner, Collateral: use}
			op.tx.putToken(collection, id, updated)
			if use {
				bal.Collateral++
			} else {
				bal.Collateral--
				running, err := op.tx.auction(collection, id)
				if err != nil {
					return nil, classify(err, collection, user)
				}
				if running != nil {
					op.tx.putAuction(collection, id, nil)
				}
			}
			changed++
			op.events.Emit(events.LendingCollateralToggled{Asset: collection, User: user, Enabled: use, TokenID: new(uint256.Int).Set(id)})
		}
		if changed > 0 {
			op.tx.putUniqueBalance(user, collection, bal)
			cfg, err := op.tx.userConfig(user)
			if err != nil {
				return nil, classify(err, collection, user)
			}
			if want := bal.Collateral > 0; cfg.IsUsingAsCollateral(r.ID) != want {
				if err := cfg.SetUsingAsCollateral(r.ID, want); err != nil {
					return nil, classify(err, collection, user)
				}
				op.tx.putUserConfig(user, cfg)
			}
		}
		data, err := e.collateralToggleAccount(op, user, collection, use)
		if err != nil {
			return nil, err
		}
		return &Result{Amount: uint256.NewInt(changed), Account: data}, nil
	})
}

// collateralToggleAccount enforces the health factor only when collateral is
// removed. An unhealthy account may still add collateral.
func (e *Engine) collateralToggleAccount(op *operation, user, asset common.Address, use bool) (*AccountData, error) {
	if use {
		return e.pendingAccount(op, user, asset)
	}
	return e.requireHealthy(op, user, asset)
}

func cloneIDs(ids []*uint256.Int) []*uint256.Int {
	out := make([]*uint256.Int, len(ids))
	for i, id := range ids {
		out[i] = new(uint256.Int).Set(id)
	}
	return out
}
