package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/operation"
	"github.com/roach88/stratagem/internal/store"
)

// querier is the contracts' read view of the chain. It reads through the
// transaction in flight, so it observes every message already applied.
type querier struct {
	run *txRun
}

var _ operation.Querier = (*querier)(nil)

func (q *querier) Balance(ctx context.Context, address, denom string) (ir.Dec, error) {
	return q.run.tx.Balance(ctx, address, denom)
}

func (q *querier) Pair(ctx context.Context, pair string) (ir.PairConfig, error) {
	p, err := q.run.tx.Pair(ctx, pair)
	return p, notFound(err, operation.ErrPairNotFound)
}

func (q *querier) Book(ctx context.Context, pair string, limit int) (ir.Book, error) {
	if _, err := q.Pair(ctx, pair); err != nil {
		return ir.Book{}, err
	}
	return book(ctx, q.run.tx, pair, limit)
}

func (q *querier) Simulate(ctx context.Context, pair string, offer ir.Coin) (ir.Dec, error) {
	out, err := simulate(ctx, q.run.tx, pair, offer)
	return out, notFound(err, operation.ErrPairNotFound)
}

func (q *querier) Order(ctx context.Context, pair, owner string, side ir.Side, price ir.Dec) (ir.OrderState, error) {
	o, err := q.run.tx.Order(ctx, pair, owner, side, price)
	return o, notFound(err, operation.ErrOrderNotFound)
}

func (q *querier) Strategy(ctx context.Context, manager, address string) (ir.StrategyInfo, error) {
	info, err := q.run.tx.RegistryEntry(ctx, manager, address)
	return info, notFound(err, operation.ErrStrategyNotFound)
}

func (q *querier) OraclePrice(ctx context.Context, asset string) (ir.Dec, error) {
	p, err := q.run.tx.OraclePrice(ctx, asset)
	return p, notFound(err, operation.ErrPriceNotFound)
}

func (q *querier) ThorchainQuote(ctx context.Context, req ir.ThorQuoteRequest) (ir.ThorQuote, error) {
	quote, err := q.run.chain.thor.quote(ctx, q.run.tx, req)
	return quote, notFound(err, operation.ErrPriceNotFound)
}

func (q *querier) StrategyBalances(ctx context.Context, address string) (ir.Coins, error) {
	coins, err := q.run.chain.contract.Balances(ctx, q.run.tx, q, q.run.env(address))
	if errors.Is(err, store.ErrStrategyNotFound) {
		return nil, fmt.Errorf("%w: %s", operation.ErrStrategyNotFound, address)
	}
	return coins, err
}

// notFound translates the store's ErrNotFound into the sentinel callers
// of operation.Querier test for.
func notFound(err, sentinel error) error {
	if err != nil && errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return err
}
