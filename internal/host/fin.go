package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/store"
)

// Pair contracts are order books. Prices are quote per base. A base-side
// order offers base (an ask) and fills into quote; a quote-side order
// offers quote (a bid) and fills into base. The pair address holds every
// resting order's remaining offer and unclaimed fill proceeds.

// restingOrders returns the orders on side of pair, best price first:
// asks ascending, bids descending. Exhausted orders are skipped.
func restingOrders(ctx context.Context, tx *store.Tx, pair string, side ir.Side) ([]ir.OrderState, error) {
	all, err := tx.Orders(ctx, pair)
	if err != nil {
		return nil, err
	}
	var out []ir.OrderState
	for _, o := range all {
		if o.Side == side && !o.Remaining.IsZero() {
			out = append(out, o)
		}
	}
	slices.SortStableFunc(out, func(a, b ir.OrderState) int {
		if side == ir.SideBase {
			return a.Price.Cmp(b.Price)
		}
		return b.Price.Cmp(a.Price)
	})
	return out, nil
}

// book aggregates resting orders into price levels. limit caps the levels
// per side; zero means all.
func book(ctx context.Context, tx *store.Tx, pair string, limit int) (ir.Book, error) {
	var b ir.Book
	for _, side := range []ir.Side{ir.SideBase, ir.SideQuote} {
		orders, err := restingOrders(ctx, tx, pair, side)
		if err != nil {
			return ir.Book{}, err
		}
		var levels []ir.BookEntry
		for _, o := range orders {
			if n := len(levels); n > 0 && levels[n-1].Price.Equal(o.Price) {
				levels[n-1].Total = levels[n-1].Total.Add(o.Remaining)
				continue
			}
			if limit > 0 && len(levels) == limit {
				break
			}
			levels = append(levels, ir.BookEntry{Price: o.Price, Total: o.Remaining})
		}
		if side == ir.SideBase {
			b.Base = levels
		} else {
			b.Quote = levels
		}
	}
	return b, nil
}

// fill is one maker order consumed by a market swap.
type fill struct {
	order ir.OrderState
	take  ir.Dec // maker offer consumed
	pay   ir.Dec // taker offer the maker receives
}

// match walks the book against offer and returns the fills, what the
// taker receives, and what it spends.
func match(p ir.PairConfig, orders []ir.OrderState, offer ir.Coin) ([]fill, ir.Dec, ir.Dec, error) {
	var (
		fills []fill
		out   = ir.NewDec(0)
		left  = offer.Amount
	)
	for _, o := range orders {
		if left.IsZero() {
			break
		}
		var take, pay ir.Dec
		if offer.Denom == p.Quote {
			// Buying base from asks.
			affordable, err := left.Quo(o.Price)
			if err != nil {
				return nil, ir.Dec{}, ir.Dec{}, err
			}
			take = ir.MinDec(o.Remaining, affordable.Floor())
			pay = take.MulCeil(o.Price)
		} else {
			// Selling base into bids.
			absorbable, err := o.Remaining.Quo(o.Price)
			if err != nil {
				return nil, ir.Dec{}, ir.Dec{}, err
			}
			pay = ir.MinDec(left, absorbable.Floor())
			take = pay.MulFloor(o.Price)
		}
		if take.IsZero() || pay.IsZero() {
			break
		}
		fills = append(fills, fill{order: o, take: take, pay: pay})
		out = out.Add(take)
		left = left.Sub(pay)
	}
	return fills, out, offer.Amount.Sub(left), nil
}

// simulate returns what a market swap of offer on pair would return.
func simulate(ctx context.Context, tx *store.Tx, pairAddr string, offer ir.Coin) (ir.Dec, error) {
	p, err := tx.Pair(ctx, pairAddr)
	if err != nil {
		return ir.Dec{}, err
	}
	if !p.Has(offer.Denom) {
		return ir.Dec{}, fmt.Errorf("pair %s does not trade %s", pairAddr, offer.Denom)
	}
	makers := ir.SideBase
	if offer.Denom == p.Base {
		makers = ir.SideQuote
	}
	orders, err := restingOrders(ctx, tx, pairAddr, makers)
	if err != nil {
		return ir.Dec{}, err
	}
	_, out, _, err := match(p, orders, offer)
	return out, err
}

// executePair handles a message to a pair contract. The attached funds
// already sit at the pair address.
func (r *txRun) executePair(ctx context.Context, sender string, p ir.PairConfig, w ir.WasmExecute) ([]ir.Event, error) {
	var msg ir.FinExecuteMsg
	if err := json.Unmarshal(w.Msg, &msg); err != nil {
		return nil, fmt.Errorf("decode pair message for %s: %w", p.Address, err)
	}
	switch {
	case msg.Swap != nil && msg.Order == nil:
		return r.swap(ctx, sender, p, *msg.Swap, w.Funds)
	case msg.Order != nil && msg.Swap == nil:
		return r.order(ctx, sender, p, *msg.Order, w.Funds)
	}
	return nil, fmt.Errorf("pair message must set exactly one of swap or order")
}

func (r *txRun) swap(ctx context.Context, sender string, p ir.PairConfig, s ir.FinSwap, funds ir.Coins) ([]ir.Event, error) {
	if len(funds) != 1 || !p.Has(funds[0].Denom) {
		return nil, fmt.Errorf("swap on %s needs exactly one coin of %s or %s, got %q", p.Address, p.Base, p.Quote, funds.String())
	}
	offer := funds[0]
	makers, askDenom := ir.SideBase, p.Base
	if offer.Denom == p.Base {
		makers, askDenom = ir.SideQuote, p.Quote
	}

	orders, err := restingOrders(ctx, r.tx, p.Address, makers)
	if err != nil {
		return nil, err
	}
	fills, out, spent, err := match(p, orders, offer)
	if err != nil {
		return nil, err
	}
	if s.MinReturn != nil && out.Cmp(*s.MinReturn) < 0 {
		return nil, fmt.Errorf("%w: swap on %s returns %s%s, minimum is %s", ErrReturnBelowMinimum, p.Address, out, askDenom, *s.MinReturn)
	}

	for _, f := range fills {
		o := f.order
		o.Remaining = o.Remaining.Sub(f.take)
		o.Filled = o.Filled.Add(f.pay)
		if err := r.tx.PutOrder(ctx, p.Address, o); err != nil {
			return nil, err
		}
	}
	payout := ir.Coins{{Denom: askDenom, Amount: out}}
	if refund := offer.Amount.Sub(spent); !refund.IsZero() {
		payout = payout.Add(ir.Coin{Denom: offer.Denom, Amount: refund})
	}
	if err := r.transfer(ctx, p.Address, sender, payout.Normalize()); err != nil {
		return nil, err
	}

	return []ir.Event{ir.NewEvent("swap",
		"pair", p.Address,
		"offer", offer.String(),
		"spent", spent.String(),
		"return", ir.Coin{Denom: askDenom, Amount: out}.String(),
		"fills", fmt.Sprint(len(fills)),
	)}, nil
}

// order sets sender's order at a price to offer Amount in total. Funds
// cover any increase and the excess is refunded. Amount zero withdraws the
// order's remaining offer and its fill proceeds.
func (r *txRun) order(ctx context.Context, sender string, p ir.PairConfig, o ir.FinOrder, funds ir.Coins) ([]ir.Event, error) {
	if o.Side != ir.SideBase && o.Side != ir.SideQuote {
		return nil, fmt.Errorf("order on %s: unknown side %q", p.Address, o.Side)
	}
	if o.Price.IsZero() || o.Price.IsNegative() {
		return nil, fmt.Errorf("order on %s: price must be positive, got %s", p.Address, o.Price)
	}
	if err := ir.CheckAmount(o.Amount); err != nil {
		return nil, fmt.Errorf("order on %s: %w", p.Address, err)
	}
	offerDenom, askDenom := p.OfferDenom(o.Side), p.AskDenom(o.Side)
	for _, c := range funds {
		if c.Denom != offerDenom {
			return nil, fmt.Errorf("order on %s: %s side takes %s, got %s", p.Address, o.Side, offerDenom, c.Denom)
		}
	}

	existing, err := r.tx.Order(ctx, p.Address, sender, o.Side, o.Price)
	found := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if o.Amount.IsZero() {
		if !found {
			return nil, fmt.Errorf("order on %s: %s has no %s order at %s", p.Address, sender, o.Side, o.Price)
		}
		if err := r.tx.DeleteOrder(ctx, p.Address, sender, o.Side, o.Price); err != nil {
			return nil, err
		}
		payout := ir.Coins{
			{Denom: offerDenom, Amount: existing.Remaining},
			{Denom: askDenom, Amount: existing.Filled},
		}.Add(funds...)
		if err := r.transfer(ctx, p.Address, sender, payout); err != nil {
			return nil, err
		}
		return []ir.Event{ir.NewEvent("order",
			"pair", p.Address,
			"owner", sender,
			"side", string(o.Side),
			"price", o.Price.String(),
			"outcome", "withdrawn",
			"remaining", existing.Remaining.String(),
			"filled", existing.Filled.String(),
		)}, nil
	}

	next := ir.OrderState{
		Owner:     sender,
		Side:      o.Side,
		Price:     o.Price,
		Offer:     o.Amount,
		Remaining: o.Amount,
		Filled:    ir.NewDec(0),
	}
	previous := ir.NewDec(0)
	if found {
		previous = existing.Remaining
		next.Filled = existing.Filled
		next.Offer = existing.Offer.Add(ir.MaxDec(o.Amount.Sub(previous), ir.NewDec(0)))
	}

	attached := funds.AmountOf(offerDenom)
	refund := attached.Add(previous).Sub(o.Amount)
	if refund.IsNegative() {
		return nil, fmt.Errorf("%w: order on %s needs %s%s more, %s attached",
			ErrInsufficientFunds, p.Address, o.Amount.Sub(previous), offerDenom, attached)
	}
	if err := r.tx.PutOrder(ctx, p.Address, next); err != nil {
		return nil, err
	}
	if !refund.IsZero() {
		if err := r.transfer(ctx, p.Address, sender, ir.Coins{{Denom: offerDenom, Amount: refund}}); err != nil {
			return nil, err
		}
	}
	return []ir.Event{ir.NewEvent("order",
		"pair", p.Address,
		"owner", sender,
		"side", string(o.Side),
		"price", o.Price.String(),
		"outcome", "placed",
		"amount", o.Amount.String(),
	)}, nil
}

// fillOrder fills amount of a resting order as an outside taker would:
// the offer leaves the pair and the proceeds arrive in it.
func fillOrder(ctx context.Context, tx *store.Tx, pairAddr, owner string, side ir.Side, price, amount ir.Dec) (ir.OrderState, error) {
	if err := ir.CheckAmount(amount); err != nil {
		return ir.OrderState{}, fmt.Errorf("fill order %s %s@%s: %w", owner, side, price, err)
	}
	p, err := tx.Pair(ctx, pairAddr)
	if err != nil {
		return ir.OrderState{}, err
	}
	o, err := tx.Order(ctx, pairAddr, owner, side, price)
	if err != nil {
		return ir.OrderState{}, err
	}
	if amount.Cmp(o.Remaining) > 0 {
		return ir.OrderState{}, fmt.Errorf("fill %s of order %s %s@%s: only %s remains", amount, owner, side, price, o.Remaining)
	}

	var proceeds ir.Dec
	if side == ir.SideBase {
		proceeds = amount.MulFloor(price)
	} else {
		q, err := amount.Quo(price)
		if err != nil {
			return ir.OrderState{}, err
		}
		proceeds = q.Floor()
	}
	o.Remaining = o.Remaining.Sub(amount)
	o.Filled = o.Filled.Add(proceeds)
	if err := tx.PutOrder(ctx, pairAddr, o); err != nil {
		return ir.OrderState{}, err
	}
	if err := burn(ctx, tx, pairAddr, ir.Coins{{Denom: p.OfferDenom(side), Amount: amount}}); err != nil {
		return ir.OrderState{}, err
	}
	if err := mint(ctx, tx, pairAddr, ir.Coins{{Denom: p.AskDenom(side), Amount: proceeds}}); err != nil {
		return ir.OrderState{}, err
	}
	return o, nil
}
