package operation

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/stratagem/internal/compiler"
	"github.com/roach88/stratagem/internal/ir"
)

// Thorchain streaming defaults: swap every 3 blocks and let the chain pick
// the sub-swap count.
const (
	defaultStreamingInterval = 3
	defaultStreamingQuantity = 0
)

type swapOp struct {
	s ir.Swap
}

// quote is a route that passed adjustment and validation.
type quote struct {
	route      int
	amount     ir.Dec
	minReceive ir.Dec
	expected   ir.Dec
	latest     *ir.StreamingSwap
}

func (o swapOp) action() ir.Action {
	s := o.s
	s.Routes = slices.Clone(o.s.Routes)
	return ir.Action{Swap: &s}
}

func (o swapOp) offer() string   { return o.s.SwapAmount.Denom }
func (o swapOp) receive() string { return o.s.MinimumReceiveAmount.Denom }

func (o swapOp) Init(ctx context.Context, deps Deps, affiliates []ir.Affiliate) (ir.Action, error) {
	if err := compiler.Join(compiler.CheckSwap(o.s)); err != nil {
		return ir.Action{}, err
	}

	next := o.action()
	for i := range next.Swap.Routes {
		if t := next.Swap.Routes[i].Thorchain; t != nil {
			route := *t
			code, bps := ir.ThorchainAffiliate, uint64(ir.ThorchainAffiliateBps)
			route.AffiliateCode = &code
			route.AffiliateBps = &bps
			next.Swap.Routes[i].Thorchain = &route
		}
	}

	checked := swapOp{s: *next.Swap}
	for i, r := range checked.s.Routes {
		if err := checked.verifyRoute(ctx, deps, r); err != nil {
			return ir.Action{}, fmt.Errorf("route %d: %w", i, err)
		}
	}
	return next, nil
}

// verifyRoute checks that the route can trade the swap's denoms.
func (o swapOp) verifyRoute(ctx context.Context, deps Deps, r ir.SwapRoute) error {
	switch {
	case r.Fin != nil:
		pair, err := deps.Pair(ctx, r.Fin.PairAddress)
		if err != nil {
			return err
		}
		if !pair.Has(o.offer()) {
			return fmt.Errorf("pair at %s does not support swapping from %s", pair.Address, o.offer())
		}
		if !pair.Has(o.receive()) {
			return fmt.Errorf("pair at %s does not support swapping into %s", pair.Address, o.receive())
		}
		return nil
	case r.Thorchain != nil:
		if _, err := o.thorQuote(ctx, deps, *r.Thorchain, o.s.SwapAmount.Amount); err != nil {
			return fmt.Errorf("get swap quote for thorchain route: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("route must be exactly one of fin or thorchain")
	}
}

func (o swapOp) Execute(ctx context.Context, deps Deps) ([]ir.Msg, ir.Action, error) {
	best, err := o.bestQuote(ctx, deps)
	if err != nil {
		return nil, ir.Action{}, err
	}
	next := o.action()
	if best == nil {
		return nil, next, nil
	}

	offer := ir.Coin{Denom: o.offer(), Amount: best.amount}
	route := next.Swap.Routes[best.route]
	switch {
	case route.Fin != nil:
		minReturn := best.minReceive
		msg, err := ir.WasmMsg(route.Fin.PairAddress, ir.FinExecuteMsg{
			Swap: &ir.FinSwap{MinReturn: &minReturn},
		}, offer)
		if err != nil {
			return nil, ir.Action{}, err
		}
		return []ir.Msg{msg}, next, nil
	default:
		t := *route.Thorchain
		t.LatestSwap = best.latest
		next.Swap.Routes[best.route].Thorchain = &t
		return []ir.Msg{ir.DepositMsg(best.latest.Memo, offer)}, next, nil
	}
}

// bestQuote returns the qualifying route with the highest expected output,
// or nil when no route qualifies. A route that fails to quote is skipped.
func (o swapOp) bestQuote(ctx context.Context, deps Deps) (*quote, error) {
	balance, err := deps.Balance(ctx, deps.Env.Contract, o.offer())
	if err != nil {
		return nil, fmt.Errorf("query %s balance: %w", o.offer(), err)
	}

	var best *quote
	for i, r := range o.s.Routes {
		q, err := o.quoteRoute(ctx, deps, r, balance)
		if err != nil {
			deps.Log().Debug("swap route skipped", "route", i, "error", err)
			continue
		}
		q.route = i
		if best == nil || q.expected.Cmp(best.expected) > 0 {
			best = q
		}
	}
	return best, nil
}

func (o swapOp) quoteRoute(ctx context.Context, deps Deps, r ir.SwapRoute, balance ir.Dec) (*quote, error) {
	amount, minReceive, err := o.adjust(ctx, deps, r, balance)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("swap amount after adjustment is zero")
	}
	switch {
	case r.Fin != nil:
		return o.validateFin(ctx, deps, *r.Fin, amount, minReceive)
	case r.Thorchain != nil:
		return o.validateThorchain(ctx, deps, *r.Thorchain, amount, minReceive)
	default:
		return nil, fmt.Errorf("route must be exactly one of fin or thorchain")
	}
}

// adjust caps the swap at the balance and applies the adjustment. Returns
// the swap amount and the scaled minimum receive amount.
func (o swapOp) adjust(ctx context.Context, deps Deps, r ir.SwapRoute, balance ir.Dec) (ir.Dec, ir.Dec, error) {
	configured := o.s.SwapAmount.Amount
	capped := ir.MinDec(balance, configured)

	if ls := o.s.Adjustment.LinearScalar; ls != nil {
		expected, err := o.expectedOut(ctx, deps, r, capped)
		if err != nil {
			return ir.Dec{}, ir.Dec{}, err
		}
		if expected.IsZero() {
			return ir.Dec{}, ir.Dec{}, fmt.Errorf("no expected return for %s", ir.Coin{Denom: o.offer(), Amount: capped})
		}
		basePrice, err := configured.Quo(ls.BaseReceiveAmount.Amount)
		if err != nil {
			return ir.Dec{}, ir.Dec{}, err
		}
		currentPrice, err := capped.Quo(expected)
		if err != nil {
			return ir.Dec{}, ir.Dec{}, err
		}
		delta, err := basePrice.AbsDiff(currentPrice).Quo(basePrice)
		if err != nil {
			return ir.Dec{}, ir.Dec{}, err
		}
		delta = delta.Mul(ls.Scalar)

		one := ir.NewDec(1)
		var scaled ir.Dec
		if currentPrice.Cmp(basePrice) < 0 {
			scaled = capped.MulFloor(one.Add(delta))
		} else {
			scaled = capped.MulFloor(one.SatSub(delta))
		}
		if ls.MinimumSwapAmount != nil {
			scaled = ir.MaxDec(scaled, ls.MinimumSwapAmount.Amount)
		}
		amount := ir.MinDec(scaled, balance)

		ratio, err := amount.Quo(configured)
		if err != nil {
			return ir.Dec{}, ir.Dec{}, err
		}
		return amount, o.s.MinimumReceiveAmount.Amount.MulCeil(ratio), nil
	}

	ratio, err := capped.Quo(configured)
	if err != nil {
		return ir.Dec{}, ir.Dec{}, err
	}
	return capped, o.s.MinimumReceiveAmount.Amount.MulFloor(ratio), nil
}

func (o swapOp) expectedOut(ctx context.Context, deps Deps, r ir.SwapRoute, amount ir.Dec) (ir.Dec, error) {
	switch {
	case r.Fin != nil:
		return deps.Simulate(ctx, r.Fin.PairAddress, ir.Coin{Denom: o.offer(), Amount: amount})
	case r.Thorchain != nil:
		q, err := o.thorQuote(ctx, deps, *r.Thorchain, amount)
		if err != nil {
			return ir.Dec{}, err
		}
		return q.ExpectedAmountOut, nil
	default:
		return ir.Dec{}, fmt.Errorf("route must be exactly one of fin or thorchain")
	}
}

// validateFin checks the minimum receive and the slippage against the mid
// price of the book.
func (o swapOp) validateFin(ctx context.Context, deps Deps, r ir.FinRoute, amount, minReceive ir.Dec) (*quote, error) {
	book, err := deps.Book(ctx, r.PairAddress, 1)
	if err != nil {
		return nil, err
	}
	if len(book.Base) == 0 || len(book.Quote) == 0 {
		return nil, fmt.Errorf("pair at %s has an empty book", r.PairAddress)
	}
	pair, err := deps.Pair(ctx, r.PairAddress)
	if err != nil {
		return nil, err
	}

	mid, err := book.Base[0].Price.Add(book.Quote[0].Price).Quo(ir.NewDec(2))
	if err != nil {
		return nil, err
	}
	// Units of the offered denom per unit received.
	spot := mid
	if o.offer() == pair.Base {
		if spot, err = ir.NewDec(1).Quo(mid); err != nil {
			return nil, err
		}
	}

	expected, err := deps.Simulate(ctx, r.PairAddress, ir.Coin{Denom: o.offer(), Amount: amount})
	if err != nil {
		return nil, err
	}
	if expected.Cmp(minReceive) < 0 {
		return nil, fmt.Errorf("expected amount out %s for swapping %s is less than minimum receive amount %s",
			expected, amount, minReceive)
	}

	inverse, err := ir.NewDec(1).Quo(spot)
	if err != nil {
		return nil, err
	}
	optimal := ir.MaxDec(expected, amount.MulFloor(inverse))
	ratio, err := expected.Quo(optimal)
	if err != nil {
		return nil, fmt.Errorf("pair at %s returns nothing for %s", r.PairAddress, amount)
	}
	slippage := ir.NewDec(10_000).MulCeil(ir.NewDec(1).SatSub(ratio))
	if slippage.Cmp(ir.NewDec(int64(o.s.MaximumSlippageBps))) > 0 {
		return nil, fmt.Errorf("slippage of %s bps exceeds maximum allowed of %d bps", slippage, o.s.MaximumSlippageBps)
	}

	return &quote{amount: amount, minReceive: minReceive, expected: expected}, nil
}

func (o swapOp) validateThorchain(ctx context.Context, deps Deps, r ir.ThorchainRoute, amount, minReceive ir.Dec) (*quote, error) {
	q, err := o.thorQuote(ctx, deps, r, amount)
	if err != nil {
		return nil, err
	}
	if q.SlippageBps > o.s.MaximumSlippageBps {
		return nil, fmt.Errorf("slippage bps (%d) exceeds maximum allowed (%d)", q.SlippageBps, o.s.MaximumSlippageBps)
	}
	if q.ExpectedAmountOut.Cmp(minReceive) < 0 {
		return nil, fmt.Errorf("expected amount out (%s) is less than minimum receive amount (%s)", q.ExpectedAmountOut, minReceive)
	}
	if q.RecommendedMinAmountIn.Cmp(amount) > 0 {
		return nil, fmt.Errorf("recommended min amount in (%s) is greater than swap amount (%s)", q.RecommendedMinAmountIn, amount)
	}

	return &quote{
		amount:     amount,
		minReceive: minReceive,
		expected:   q.ExpectedAmountOut,
		latest: &ir.StreamingSwap{
			SwapAmount:            ir.Coin{Denom: o.offer(), Amount: amount},
			ExpectedReceiveAmount: ir.Coin{Denom: o.receive(), Amount: q.ExpectedAmountOut},
			StartingBlock:         deps.Env.Height + 1,
			Memo:                  q.Memo,
		},
	}, nil
}

func (o swapOp) thorQuote(ctx context.Context, deps Deps, r ir.ThorchainRoute, amount ir.Dec) (ir.ThorQuote, error) {
	from, err := ir.ThorAsset(o.offer())
	if err != nil {
		return ir.ThorQuote{}, err
	}
	to, err := ir.ThorAsset(o.receive())
	if err != nil {
		return ir.ThorQuote{}, err
	}
	req := ir.ThorQuoteRequest{
		FromAsset:         from,
		ToAsset:           to,
		Amount:            amount,
		StreamingInterval: defaultStreamingInterval,
		StreamingQuantity: defaultStreamingQuantity,
		Destination:       deps.Env.Contract,
	}
	if r.StreamingInterval != nil {
		req.StreamingInterval = *r.StreamingInterval
	}
	if r.MaxStreamingQuantity != nil {
		req.StreamingQuantity = *r.MaxStreamingQuantity
	}
	if r.AffiliateCode != nil {
		req.AffiliateCode = *r.AffiliateCode
	}
	if r.AffiliateBps != nil {
		req.AffiliateBps = *r.AffiliateBps
	}
	return deps.ThorchainQuote(ctx, req)
}

func (o swapOp) Commit(_ context.Context, _ Deps) (ir.Action, error) {
	return o.action(), nil
}

func (o swapOp) Withdraw(_ context.Context, _ Deps, _ ir.DenomSet) ([]ir.Msg, ir.Action, error) {
	return nil, o.action(), nil
}

func (o swapOp) Cancel(_ context.Context, _ Deps) ([]ir.Msg, ir.Action, error) {
	return nil, o.action(), nil
}

func (o swapOp) Balances(_ context.Context, _ Deps, _ ir.DenomSet) (ir.Coins, error) {
	return nil, nil
}

func (o swapOp) Denoms(_ context.Context, _ Deps) (ir.DenomSet, error) {
	return ir.NewDenomSet(o.offer(), o.receive()), nil
}

func (o swapOp) Escrowed(_ context.Context, _ Deps) (ir.DenomSet, error) {
	return ir.NewDenomSet(), nil
}
