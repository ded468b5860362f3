package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/store"
)

// Operator actions seed and move the simulated chain. They run outside the
// transaction journal, each in its own store transaction.

func (c *Chain) update(ctx context.Context, fn func(*store.Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Update(ctx, fn)
}

// Fund mints coins to address.
func (c *Chain) Fund(ctx context.Context, address string, coins ...ir.Coin) error {
	return c.update(ctx, func(tx *store.Tx) error {
		return mint(ctx, tx, address, ir.Coins(coins).Normalize())
	})
}

// SetPair creates or replaces a pair contract.
func (c *Chain) SetPair(ctx context.Context, p ir.PairConfig) error {
	if p.Address == "" || p.Base == "" || p.Quote == "" || p.Base == p.Quote {
		return fmt.Errorf("pair needs an address and two distinct denoms, got %+v", p)
	}
	return c.update(ctx, func(tx *store.Tx) error {
		return tx.PutPair(ctx, p)
	})
}

// SetOraclePrice sets the oracle price of asset.
func (c *Chain) SetOraclePrice(ctx context.Context, asset string, price ir.Dec) error {
	if price.IsNegative() || price.IsZero() {
		return fmt.Errorf("oracle price of %s must be positive, got %s", asset, price)
	}
	return c.update(ctx, func(tx *store.Tx) error {
		return tx.SetOraclePrice(ctx, asset, price)
	})
}

// PlaceOrder rests a market maker's order on a pair. The offer is minted
// to the pair as the maker's escrow.
func (c *Chain) PlaceOrder(ctx context.Context, pairAddr, owner string, side ir.Side, price, amount ir.Dec) error {
	return c.update(ctx, func(tx *store.Tx) error {
		return placeOrder(ctx, tx, pairAddr, owner, side, price, amount)
	})
}

func placeOrder(ctx context.Context, tx *store.Tx, pairAddr, owner string, side ir.Side, price, amount ir.Dec) error {
	p, err := tx.Pair(ctx, pairAddr)
	if err != nil {
		return err
	}
	if price.IsZero() || price.IsNegative() || amount.IsZero() || ir.CheckAmount(amount) != nil {
		return fmt.Errorf("order on %s needs a positive price and a positive whole amount", pairAddr)
	}
	o, err := tx.Order(ctx, pairAddr, owner, side, price)
	switch {
	case errors.Is(err, store.ErrNotFound):
		o = ir.OrderState{Owner: owner, Side: side, Price: price, Offer: ir.NewDec(0), Remaining: ir.NewDec(0), Filled: ir.NewDec(0)}
	case err != nil:
		return err
	}
	o.Offer = o.Offer.Add(amount)
	o.Remaining = o.Remaining.Add(amount)
	if err := tx.PutOrder(ctx, pairAddr, o); err != nil {
		return err
	}
	return mint(ctx, tx, pairAddr, ir.Coins{{Denom: p.OfferDenom(side), Amount: amount}})
}

// FillOrder fills amount of a resting order, as a taker outside the
// simulation would.
func (c *Chain) FillOrder(ctx context.Context, pairAddr, owner string, side ir.Side, price, amount ir.Dec) (ir.OrderState, error) {
	var o ir.OrderState
	err := c.update(ctx, func(tx *store.Tx) error {
		var err error
		o, err = fillOrder(ctx, tx, pairAddr, owner, side, price, amount)
		return err
	})
	return o, err
}

// Advance moves the block clock forward.
func (c *Chain) Advance(ctx context.Context, blocks uint64, seconds int64) (uint64, time.Time, error) {
	if seconds < 0 {
		return 0, time.Time{}, fmt.Errorf("cannot move time backwards by %ds", -seconds)
	}
	var (
		height uint64
		at     time.Time
	)
	err := c.update(ctx, func(tx *store.Tx) error {
		h, t, err := tx.ChainState(ctx)
		if err != nil {
			return err
		}
		height, at = h+blocks, t.Add(time.Duration(seconds)*time.Second)
		return tx.SetChainState(ctx, height, at)
	})
	return height, at, err
}

// Height returns the current block.
func (c *Chain) Height(ctx context.Context) (uint64, time.Time, error) {
	var (
		height uint64
		at     time.Time
	)
	err := c.view(ctx, func(tx *store.Tx) error {
		var err error
		height, at, err = tx.ChainState(ctx)
		return err
	})
	return height, at, err
}

func (c *Chain) view(ctx context.Context, fn func(*store.Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.View(ctx, fn)
}

// Balances returns every balance of address.
func (c *Chain) Balances(ctx context.Context, address string) (ir.Coins, error) {
	var coins ir.Coins
	err := c.view(ctx, func(tx *store.Tx) error {
		var err error
		coins, err = tx.Balances(ctx, address)
		return err
	})
	return coins, err
}

// Book returns the aggregated order book of a pair.
func (c *Chain) Book(ctx context.Context, pairAddr string) (ir.Book, error) {
	var b ir.Book
	err := c.view(ctx, func(tx *store.Tx) error {
		if _, err := tx.Pair(ctx, pairAddr); err != nil {
			return err
		}
		var err error
		b, err = book(ctx, tx, pairAddr, 0)
		return err
	})
	return b, err
}

// Orders returns every order resting on a pair.
func (c *Chain) Orders(ctx context.Context, pairAddr string) ([]ir.OrderState, error) {
	var orders []ir.OrderState
	err := c.view(ctx, func(tx *store.Tx) error {
		var err error
		orders, err = tx.Orders(ctx, pairAddr)
		return err
	})
	return orders, err
}

// Query answers a strategy query. Addresses that are not strategies
// return ErrUnknownContract.
func (c *Chain) Query(ctx context.Context, address string, msg ir.QueryMsg) (any, error) {
	var result any
	err := c.view(ctx, func(tx *store.Tx) error {
		ok, err := tx.IsStrategy(ctx, address)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownContract, address)
		}
		height, at, err := tx.ChainState(ctx)
		if err != nil {
			return err
		}
		run := &txRun{chain: c, tx: tx, height: height, time: at}
		result, err = c.contract.Query(ctx, tx, run.querier(), run.env(address), msg)
		return err
	})
	return result, err
}

// Strategies lists every strategy.
func (c *Chain) Strategies(ctx context.Context) ([]store.Strategy, error) {
	var out []store.Strategy
	err := c.view(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.Strategies(ctx)
		return err
	})
	return out, err
}

// Transaction returns a journaled transaction and its messages.
func (c *Chain) Transaction(ctx context.Context, id string) (store.TxRecord, []store.MessageRecord, error) {
	var (
		rec  store.TxRecord
		msgs []store.MessageRecord
	)
	err := c.view(ctx, func(tx *store.Tx) error {
		var err error
		rec, msgs, err = tx.Transaction(ctx, id)
		return err
	})
	return rec, msgs, err
}

// Transactions returns the most recent journaled transactions.
func (c *Chain) Transactions(ctx context.Context, limit int) ([]store.TxRecord, error) {
	var out []store.TxRecord
	err := c.view(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.Transactions(ctx, limit)
		return err
	})
	return out, err
}
