package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/fixedpoint"
	"lendcore/native/lending/userconfig"
)

// accountData evaluates the risk snapshot of user with the configuration cfg,
// reading balances and prices through op. Reserves not yet accrued in this
// operation are projected to op.now without being mutated.
func (e *Engine) accountData(op *operation, user common.Address, cfg userconfig.Config) (*AccountData, error) {
	totalCollateral := fixedpoint.Zero()
	totalDebt := fixedpoint.Zero()
	weightedLtv := fixedpoint.Zero()
	weightedThreshold := fixedpoint.Zero()

	var iterErr error
	cfg.Reserves(func(id uint16, borrowing, collateral bool) bool {
		r, err := op.tx.reserveByID(id)
		if err != nil {
			iterErr = classify(err, common.Address{}, user)
			return false
		}
		useCollateral := collateral && r != nil && r.Config.LiquidationThreshold() != 0
		useDebt := borrowing && r != nil && !r.IsUnique()
		if !useCollateral && !useDebt {
			return true
		}
		price, err := op.prices.reservePrice(r)
		if err != nil {
			iterErr = err
			return false
		}
		if useCollateral {
			value, err := e.collateralValue(op, r, user, price)
			if err != nil {
				iterErr = classify(err, r.Asset, user)
				return false
			}
			if err := accumulate(totalCollateral, value); err != nil {
				iterErr = classify(err, r.Asset, user)
				return false
			}
			if err := accumulateWeighted(weightedLtv, value, r.Config.Ltv()); err != nil {
				iterErr = classify(err, r.Asset, user)
				return false
			}
			if err := accumulateWeighted(weightedThreshold, value, r.Config.LiquidationThreshold()); err != nil {
				iterErr = classify(err, r.Asset, user)
				return false
			}
		}
		if useDebt {
			value, err := debtValue(op, r, user, price)
			if err != nil {
				iterErr = classify(err, r.Asset, user)
				return false
			}
			if err := accumulate(totalDebt, value); err != nil {
				iterErr = classify(err, r.Asset, user)
				return false
			}
		}
		return true
	})
	if iterErr != nil {
		return nil, iterErr
	}

	data := &AccountData{
		TotalCollateralBase:  totalCollateral,
		TotalDebtBase:        totalDebt,
		AvailableBorrowsBase: fixedpoint.Zero(),
		HealthFactor:         fixedpoint.Clone(fixedpoint.MaxUint256),
	}
	if !totalCollateral.IsZero() {
		data.Ltv = new(uint256.Int).Div(weightedLtv, totalCollateral).Uint64()
		data.CurrentLiquidationThreshold = new(uint256.Int).Div(weightedThreshold, totalCollateral).Uint64()
	}
	adjusted, err := fixedpoint.PercentMul(totalCollateral, data.CurrentLiquidationThreshold)
	if err != nil {
		return nil, classify(err, common.Address{}, user)
	}
	if !totalDebt.IsZero() {
		if data.HealthFactor, err = fixedpoint.RayDiv(adjusted, totalDebt); err != nil {
			return nil, classify(err, common.Address{}, user)
		}
	}
	borrowable, err := fixedpoint.PercentMul(totalCollateral, data.Ltv)
	if err != nil {
		return nil, classify(err, common.Address{}, user)
	}
	data.AvailableBorrowsBase = fixedpoint.SubFloor(borrowable, totalDebt)
	return data, nil
}

// collateralValue is balance*price/10^decimals for fungible reserves and
// collateral token count times floor price for unique ones.
func (e *Engine) collateralValue(op *operation, r *Reserve, user common.Address, price *uint256.Int) (*uint256.Int, error) {
	if r.IsUnique() {
		bal, err := op.tx.uniqueBalance(user, r.Asset)
		if err != nil {
			return nil, err
		}
		count := uint256.NewInt(bal.Collateral)
		out, overflow := new(uint256.Int).MulOverflow(count, price)
		if overflow {
			return nil, fixedpoint.ErrOverflow
		}
		return out, nil
	}
	pos, err := op.tx.position(user, r.Asset)
	if err != nil {
		return nil, err
	}
	if pos.ScaledSupply.IsZero() {
		return fixedpoint.Zero(), nil
	}
	index, err := normalizedIncome(r, op.now)
	if err != nil {
		return nil, err
	}
	balance, err := balanceOf(pos.ScaledSupply, index)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(balance, price, r.Unit())
}

func debtValue(op *operation, r *Reserve, user common.Address, price *uint256.Int) (*uint256.Int, error) {
	pos, err := op.tx.position(user, r.Asset)
	if err != nil {
		return nil, err
	}
	if pos.ScaledDebt.IsZero() {
		return fixedpoint.Zero(), nil
	}
	index, err := normalizedDebt(r, op.now)
	if err != nil {
		return nil, err
	}
	debt, err := balanceOf(pos.ScaledDebt, index)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(debt, price, r.Unit())
}

func accumulate(total, value *uint256.Int) error {
	if _, overflow := total.AddOverflow(total, value); overflow {
		return fixedpoint.ErrOverflow
	}
	return nil
}

func accumulateWeighted(total, value *uint256.Int, weight uint64) error {
	product, overflow := new(uint256.Int).MulOverflow(value, uint256.NewInt(weight))
	if overflow {
		return fixedpoint.ErrOverflow
	}
	return accumulate(total, product)
}

// GetAccountData computes the current risk snapshot of user.
func (e *Engine) GetAccountData(user common.Address) (*AccountData, error) {
	op, err := e.begin("get_account_data", false)
	if err != nil {
		return nil, err
	}
	cfg, err := op.tx.userConfig(user)
	if err != nil {
		return nil, classify(err, common.Address{}, user)
	}
	return e.accountData(op, user, cfg)
}

// pendingAccount computes the account snapshot of user from the pending
// state of op.
func (e *Engine) pendingAccount(op *operation, user, asset common.Address) (*AccountData, error) {
	cfg, err := op.tx.userConfig(user)
	if err != nil {
		return nil, classify(err, asset, user)
	}
	return e.accountData(op, user, cfg)
}

// requireHealthy rejects the pending state of user when it carries debt and
// its health factor is below one ray.
func (e *Engine) requireHealthy(op *operation, user, asset common.Address) (*AccountData, error) {
	data, err := e.pendingAccount(op, user, asset)
	if err != nil {
		return nil, err
	}
	if !data.TotalDebtBase.IsZero() && data.HealthFactor.Lt(fixedpoint.Ray) {
		return nil, fail(ErrHealthFactorBelowThreshold, asset, user)
	}
	return data, nil
}

// UserPosition is the underlying-unit view of one account in one reserve.
type UserPosition struct {
	Asset             common.Address
	Supplied          *uint256.Int
	Debt              *uint256.Int
	UsingAsCollateral bool
	Borrowing         bool
	// Tokens holds the supplied and collateral token counts of unique
	// reserves.
	Tokens *UniqueBalance
}

// GetUserPositions lists every reserve user supplies or borrows with balances
// projected to the current time.
func (e *Engine) GetUserPositions(user common.Address) ([]UserPosition, error) {
	op, err := e.begin("get_user_positions", false)
	if err != nil {
		return nil, err
	}
	list, err := op.tx.reservesList()
	if err != nil {
		return nil, classify(err, common.Address{}, user)
	}
	cfg, err := op.tx.userConfig(user)
	if err != nil {
		return nil, classify(err, common.Address{}, user)
	}
	var out []UserPosition
	for id, asset := range list {
		if asset == (common.Address{}) {
			continue
		}
		r, err := op.tx.reserve(asset)
		if err != nil {
			return nil, classify(err, asset, user)
		}
		if r == nil {
			continue
		}
		p := UserPosition{
			Asset:             asset,
			Supplied:          fixedpoint.Zero(),
			Debt:              fixedpoint.Zero(),
			UsingAsCollateral: cfg.IsUsingAsCollateral(uint16(id)),
			Borrowing:         cfg.IsBorrowing(uint16(id)),
		}
		if r.IsUnique() {
			bal, err := op.tx.uniqueBalance(user, asset)
			if err != nil {
				return nil, classify(err, asset, user)
			}
			if bal.Supplied == 0 {
				continue
			}
			p.Tokens = &UniqueBalance{Supplied: bal.Supplied, Collateral: bal.Collateral}
			p.Supplied = uint256.NewInt(bal.Supplied)
			out = append(out, p)
			continue
		}
		pos, err := op.tx.position(user, asset)
		if err != nil {
			return nil, classify(err, asset, user)
		}
		if pos.IsEmpty() {
			continue
		}
		income, err := normalizedIncome(r, op.now)
		if err != nil {
			return nil, classify(err, asset, user)
		}
		debtIndex, err := normalizedDebt(r, op.now)
		if err != nil {
			return nil, classify(err, asset, user)
		}
		if p.Supplied, err = balanceOf(pos.ScaledSupply, income); err != nil {
			return nil, classify(err, asset, user)
		}
		if p.Debt, err = balanceOf(pos.ScaledDebt, debtIndex); err != nil {
			return nil, classify(err, asset, user)
		}
		out = append(out, p)
	}
	return out, nil
}
