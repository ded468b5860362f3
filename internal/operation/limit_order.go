package operation

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/stratagem/internal/compiler"
	"github.com/roach88/stratagem/internal/ir"
)

// errEmptyBook marks a book side with no orders to price from.
var errEmptyBook = errors.New("book side is empty")

type limitOrderOp struct {
	o ir.LimitOrder
}

func (op limitOrderOp) action() ir.Action {
	o := op.o
	return ir.Action{LimitOrder: &o}
}

func (op limitOrderOp) Init(ctx context.Context, deps Deps, _ []ir.Affiliate) (ir.Action, error) {
	if err := compiler.Join(compiler.CheckLimitOrder(op.o)); err != nil {
		return ir.Action{}, err
	}
	pair, err := deps.Pair(ctx, op.o.PairAddress)
	if err != nil {
		return ir.Action{}, err
	}
	if offer := pair.OfferDenom(op.o.Side); op.o.BidDenom != offer {
		return ir.Action{}, fmt.Errorf("bid denom %s does not match the %s side denom %s of pair %s",
			op.o.BidDenom, op.o.Side, offer, pair.Address)
	}
	return op.action(), nil
}

// price computes where the order should rest now.
func (op limitOrderOp) price(ctx context.Context, deps Deps) (ir.Dec, error) {
	ps := op.o.Strategy
	if ps.Fixed != nil {
		return *ps.Fixed, nil
	}
	if ps.Offset == nil {
		return ir.Dec{}, fmt.Errorf("strategy must be exactly one of fixed or offset")
	}

	book, err := deps.Book(ctx, op.o.PairAddress, 1)
	if err != nil {
		return ir.Dec{}, err
	}
	entries := book.Side(op.o.Side)
	if len(entries) == 0 {
		return ir.Dec{}, fmt.Errorf("%w: no %s orders on %s", errEmptyBook, op.o.Side, op.o.PairAddress)
	}
	top := entries[0].Price

	var price ir.Dec
	off := ps.Offset
	switch {
	case off.Offset.Exact != nil && off.Direction == ir.DirectionAbove:
		price = top.Add(*off.Offset.Exact)
	case off.Offset.Exact != nil:
		price = top.SatSub(*off.Offset.Exact)
	case off.Offset.Percent != nil && off.Direction == ir.DirectionAbove:
		price = top.Mul(ir.Percent(100 + *off.Offset.Percent))
	case off.Offset.Percent != nil:
		price = top.Mul(ir.Percent(100)).SatSub(top.Mul(ir.Percent(*off.Offset.Percent)))
	default:
		return ir.Dec{}, fmt.Errorf("offset must be exactly one of exact or percent")
	}
	if price.IsZero() {
		return ir.Dec{}, fmt.Errorf("offset from %s leaves no positive price", top)
	}
	return price, nil
}

// shouldReset reports whether an order resting at current must move to
// next. Without a tolerance any change moves it.
func (op limitOrderOp) shouldReset(current, next ir.Dec) bool {
	off := op.o.Strategy.Offset
	if off == nil || off.Tolerance == nil {
		return !current.Equal(next)
	}
	delta := current.AbsDiff(next)
	switch {
	case off.Tolerance.Exact != nil:
		return delta.Cmp(*off.Tolerance.Exact) > 0
	case off.Tolerance.Percent != nil:
		return current.Mul(ir.Percent(*off.Tolerance.Percent)).Cmp(delta) < 0
	}
	return !current.Equal(next)
}

// refresh reads the cached order back from the pair. A nil state means the
// order no longer exists.
func (op limitOrderOp) refresh(ctx context.Context, deps Deps) (*ir.OrderState, error) {
	cur := op.o.CurrentOrder
	if cur == nil {
		return nil, nil
	}
	order, err := deps.Order(ctx, op.o.PairAddress, deps.Env.Contract, op.o.Side, cur.Price)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (op limitOrderOp) orderMsg(price, amount ir.Dec, funds ...ir.Coin) (ir.Msg, error) {
	return ir.WasmMsg(op.o.PairAddress, ir.FinExecuteMsg{
		Order: &ir.FinOrder{Side: op.o.Side, Price: price, Amount: amount},
	}, funds...)
}

// Execute withdraws the resting order when it has filled or drifted out of
// tolerance, then sets an order at the target price funded from the
// balance and anything withdrawn.
func (op limitOrderOp) Execute(ctx context.Context, deps Deps) ([]ir.Msg, ir.Action, error) {
	price, err := op.price(ctx, deps)
	if errors.Is(err, errEmptyBook) {
		deps.Log().Debug("limit order skipped", "pair", op.o.PairAddress, "error", err)
		return nil, op.action(), nil
	}
	if err != nil {
		return nil, ir.Action{}, err
	}

	existing, err := op.refresh(ctx, deps)
	if err != nil {
		return nil, ir.Action{}, err
	}

	var (
		msgs        []ir.Msg
		withdrawing ir.Dec
		remaining   ir.Dec
		target      = price
		reset       = true
	)
	if existing != nil {
		stale := op.o.CurrentOrder.Price
		reset = op.shouldReset(stale, price)
		if !existing.Filled.IsZero() || reset {
			msg, err := op.orderMsg(stale, ir.Dec{})
			if err != nil {
				return nil, ir.Action{}, err
			}
			msgs = append(msgs, msg)
			withdrawing = existing.Remaining
		} else {
			// Within tolerance: top up the resting order where it is.
			remaining = existing.Remaining
			target = stale
		}
	}

	balance, err := deps.Balance(ctx, deps.Env.Contract, op.o.BidDenom)
	if err != nil {
		return nil, ir.Action{}, err
	}
	available := balance.Add(withdrawing).Add(remaining)
	offer := available
	if op.o.BidAmount != nil {
		offer = ir.MinDec(available, *op.o.BidAmount)
	}
	funding := ir.MinDec(balance.Add(withdrawing), offer)

	next := op.o
	switch {
	case offer.IsZero() || (funding.IsZero() && !reset):
		if remaining.IsZero() {
			next.CurrentOrder = nil
		}
	default:
		msg, err := op.orderMsg(target, offer, ir.Coin{Denom: op.o.BidDenom, Amount: funding})
		if err != nil {
			return nil, ir.Action{}, err
		}
		msgs = append(msgs, msg)
		next.CurrentOrder = &ir.StaleOrder{Price: target}
	}
	return msgs, ir.Action{LimitOrder: &next}, nil
}

// Commit forgets the cached order once the pair no longer holds it.
func (op limitOrderOp) Commit(ctx context.Context, deps Deps) (ir.Action, error) {
	existing, err := op.refresh(ctx, deps)
	if err != nil {
		return ir.Action{}, err
	}
	next := op.o
	if existing == nil {
		next.CurrentOrder = nil
	}
	return ir.Action{LimitOrder: &next}, nil
}

func (op limitOrderOp) Withdraw(ctx context.Context, deps Deps, desired ir.DenomSet) ([]ir.Msg, ir.Action, error) {
	if !desired.Has(op.o.BidDenom) {
		return nil, op.action(), nil
	}
	return op.Cancel(ctx, deps)
}

// Cancel withdraws the cached order if the pair still holds it. The
// following Commit clears the cache; an order already gone is forgotten
// here since no Commit follows an empty response.
func (op limitOrderOp) Cancel(ctx context.Context, deps Deps) ([]ir.Msg, ir.Action, error) {
	if op.o.CurrentOrder == nil {
		return nil, op.action(), nil
	}
	existing, err := op.refresh(ctx, deps)
	if err != nil {
		return nil, ir.Action{}, err
	}
	if existing == nil {
		deps.Log().Debug("limit order already gone", "pair", op.o.PairAddress, "price", op.o.CurrentOrder.Price.String())
		next := op.o
		next.CurrentOrder = nil
		return nil, ir.Action{LimitOrder: &next}, nil
	}
	msg, err := op.orderMsg(op.o.CurrentOrder.Price, ir.Dec{})
	if err != nil {
		return nil, ir.Action{}, err
	}
	return []ir.Msg{msg}, op.action(), nil
}

// Balances reports the unfilled bid and the filled proceeds.
func (op limitOrderOp) Balances(ctx context.Context, deps Deps, denoms ir.DenomSet) (ir.Coins, error) {
	pair, err := deps.Pair(ctx, op.o.PairAddress)
	if err != nil {
		return nil, err
	}
	if !denoms.Has(pair.Base) && !denoms.Has(pair.Quote) {
		return nil, nil
	}
	existing, err := op.refresh(ctx, deps)
	if err != nil || existing == nil {
		return nil, err
	}
	return ir.Coins{
		{Denom: op.o.BidDenom, Amount: existing.Remaining},
		{Denom: pair.AskDenom(op.o.Side), Amount: existing.Filled},
	}.Normalize(), nil
}

func (op limitOrderOp) Denoms(ctx context.Context, deps Deps) (ir.DenomSet, error) {
	pair, err := deps.Pair(ctx, op.o.PairAddress)
	if err != nil {
		return nil, err
	}
	return ir.NewDenomSet(pair.Base, pair.Quote), nil
}

// Escrowed is the ask denom: fill proceeds accrue there inside the order.
func (op limitOrderOp) Escrowed(ctx context.Context, deps Deps) (ir.DenomSet, error) {
	pair, err := deps.Pair(ctx, op.o.PairAddress)
	if err != nil {
		return nil, err
	}
	return ir.NewDenomSet(pair.AskDenom(op.o.Side)), nil
}
