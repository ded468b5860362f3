package operation

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/stratagem/internal/compiler"
	"github.com/roach88/stratagem/internal/ir"
)

// Evaluate reports whether c holds. It only reads chain state.
//
// A missing order makes limit_order_filled false; every other query error
// is returned.
func Evaluate(ctx context.Context, deps Deps, c ir.Condition) (bool, error) {
	switch c.Kind() {
	case ir.ConditionTimestampElapsed:
		return !deps.Env.Time.Before(c.TimestampElapsed.Timestamp), nil

	case ir.ConditionBlocksCompleted:
		return deps.Env.Height >= c.BlocksCompleted.Height, nil

	case ir.ConditionCanSwap:
		best, err := swapOp{s: *c.CanSwap}.bestQuote(ctx, deps)
		return best != nil, err

	case ir.ConditionLimitOrderFilled:
		lf := c.LimitOrderFilled
		owner := lf.Owner
		if owner == "" {
			owner = deps.Env.Contract
		}
		order, err := deps.Order(ctx, lf.PairAddress, owner, lf.Side, lf.Price)
		if errors.Is(err, ErrOrderNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if order.Remaining.IsZero() {
			return true, nil
		}
		return lf.MinimumFilledAmount != nil && order.Filled.Cmp(*lf.MinimumFilledAmount) >= 0, nil

	case ir.ConditionBalanceAvailable:
		ba := c.BalanceAvailable
		address := ba.Address
		if address == "" {
			address = deps.Env.Contract
		}
		balance, err := deps.Balance(ctx, address, ba.Amount.Denom)
		if err != nil {
			return false, err
		}
		return balance.Cmp(ba.Amount.Amount) >= 0, nil

	case ir.ConditionStrategyBalanceAvailable:
		amount := c.StrategyBalanceAvailable.Amount
		balances, err := deps.StrategyBalances(ctx, deps.Env.Contract)
		if err != nil {
			return false, err
		}
		return balances.AmountOf(amount.Denom).Cmp(amount.Amount) >= 0, nil

	case ir.ConditionStrategyStatus:
		ss := c.StrategyStatus
		info, err := deps.Strategy(ctx, ss.ManagerContract, ss.ContractAddress)
		if err != nil {
			return false, err
		}
		return info.Status == ss.Status, nil

	case ir.ConditionOraclePrice:
		op := c.OraclePrice
		price, err := deps.OraclePrice(ctx, op.Asset)
		if err != nil {
			return false, err
		}
		if op.Direction == ir.DirectionAbove {
			return price.Cmp(op.Price) > 0, nil
		}
		return price.Cmp(op.Price) < 0, nil

	case ir.ConditionNot:
		ok, err := Evaluate(ctx, deps, *c.Not)
		return !ok, err

	case ir.ConditionComposite:
		all := c.Composite.Threshold == ir.ThresholdAll
		for _, sub := range c.Composite.Conditions {
			ok, err := Evaluate(ctx, deps, sub)
			if err != nil {
				return false, err
			}
			if ok != all {
				return ok, nil
			}
		}
		return all, nil

	default:
		return false, fmt.Errorf("condition must set exactly one predicate")
	}
}

// CheckCondition runs the static checks of c and confirms that the pairs,
// registry entries, and oracle assets it references exist.
func CheckCondition(ctx context.Context, deps Deps, c ir.Condition) error {
	if err := compiler.Join(compiler.CheckCondition(c)); err != nil {
		return err
	}
	return checkReferences(ctx, deps, c)
}

func checkReferences(ctx context.Context, deps Deps, c ir.Condition) error {
	switch c.Kind() {
	case ir.ConditionCanSwap:
		_, err := swapOp{s: *c.CanSwap}.Init(ctx, deps, nil)
		return err
	case ir.ConditionLimitOrderFilled:
		_, err := deps.Pair(ctx, c.LimitOrderFilled.PairAddress)
		return err
	case ir.ConditionStrategyStatus:
		_, err := deps.Strategy(ctx, c.StrategyStatus.ManagerContract, c.StrategyStatus.ContractAddress)
		return err
	case ir.ConditionOraclePrice:
		_, err := deps.OraclePrice(ctx, c.OraclePrice.Asset)
		return err
	case ir.ConditionNot:
		return checkReferences(ctx, deps, *c.Not)
	case ir.ConditionComposite:
		for i, sub := range c.Composite.Conditions {
			if err := checkReferences(ctx, deps, sub); err != nil {
				return fmt.Errorf("composite condition %d: %w", i, err)
			}
		}
	}
	return nil
}
