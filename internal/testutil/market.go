package testutil

import (
	"context"
	"fmt"

	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/operation"
)

// Market is an in-memory operation.Querier for unit tests.
//
// Simulate follows the host's pricing: offering quote buys base at the best
// base-side price, offering base sells at the best quote-side price.
// Market is not safe for concurrent mutation.
type Market struct {
	Balances         map[string]ir.Coins
	Pairs            map[string]ir.PairConfig
	Books            map[string]ir.Book
	Orders           map[string]ir.OrderState
	Strategies       map[string]ir.StrategyInfo
	Prices           map[string]ir.Dec
	StrategyHoldings map[string]ir.Coins

	// Quote answers ThorchainQuote; nil means every quote fails.
	Quote func(req ir.ThorQuoteRequest) (ir.ThorQuote, error)

	// Registry is the only manager address Strategy accepts.
	Registry string
}

var _ operation.Querier = (*Market)(nil)

// NewMarket returns an empty market whose registry lives at "registry".
func NewMarket() *Market {
	return &Market{
		Balances:         map[string]ir.Coins{},
		Pairs:            map[string]ir.PairConfig{},
		Books:            map[string]ir.Book{},
		Orders:           map[string]ir.OrderState{},
		Strategies:       map[string]ir.StrategyInfo{},
		Prices:           map[string]ir.Dec{},
		StrategyHoldings: map[string]ir.Coins{},
		Registry:         "registry",
	}
}

// Deps wraps m for contract at the given block.
func (m *Market) Deps(contract string, height uint64) operation.Deps {
	return operation.Deps{Querier: m, Env: ir.Env{Contract: contract, Height: height}}
}

// Fund adds coins to address.
func (m *Market) Fund(address string, coins ...ir.Coin) {
	m.Balances[address] = m.Balances[address].Add(coins...)
}

// AddPair registers a pair with a one-level book.
func (m *Market) AddPair(address, base, quote string, basePrice, quotePrice string) {
	m.Pairs[address] = ir.PairConfig{Address: address, Base: base, Quote: quote}
	m.Books[address] = ir.Book{
		Base:  []ir.BookEntry{{Price: ir.MustDec(basePrice), Total: ir.NewDec(1_000_000_000)}},
		Quote: []ir.BookEntry{{Price: ir.MustDec(quotePrice), Total: ir.NewDec(1_000_000_000)}},
	}
}

// OrderKey is the Orders map key of an order.
func OrderKey(pair, owner string, side ir.Side, price ir.Dec) string {
	return fmt.Sprintf("%s|%s|%s|%s", pair, owner, side, price)
}

// PlaceOrder stores an order as the pair would report it.
func (m *Market) PlaceOrder(pair, owner string, side ir.Side, price ir.Dec, remaining, filled int64) {
	m.Orders[OrderKey(pair, owner, side, price)] = ir.OrderState{
		Owner:     owner,
		Side:      side,
		Price:     price,
		Offer:     ir.NewDec(remaining + filled),
		Remaining: ir.NewDec(remaining),
		Filled:    ir.NewDec(filled),
	}
}

func (m *Market) Balance(_ context.Context, address, denom string) (ir.Dec, error) {
	return m.Balances[address].AmountOf(denom), nil
}

func (m *Market) Pair(_ context.Context, pair string) (ir.PairConfig, error) {
	p, ok := m.Pairs[pair]
	if !ok {
		return ir.PairConfig{}, fmt.Errorf("%w: %s", operation.ErrPairNotFound, pair)
	}
	return p, nil
}

func (m *Market) Book(_ context.Context, pair string, limit int) (ir.Book, error) {
	if _, ok := m.Pairs[pair]; !ok {
		return ir.Book{}, fmt.Errorf("%w: %s", operation.ErrPairNotFound, pair)
	}
	b := m.Books[pair]
	if limit > 0 {
		b.Base = b.Base[:min(limit, len(b.Base))]
		b.Quote = b.Quote[:min(limit, len(b.Quote))]
	}
	return b, nil
}

func (m *Market) Simulate(ctx context.Context, pair string, offer ir.Coin) (ir.Dec, error) {
	p, err := m.Pair(ctx, pair)
	if err != nil {
		return ir.Dec{}, err
	}
	book := m.Books[pair]
	switch offer.Denom {
	case p.Quote:
		if len(book.Base) == 0 {
			return ir.Dec{}, nil
		}
		out, err := offer.Amount.Quo(book.Base[0].Price)
		if err != nil {
			return ir.Dec{}, err
		}
		return out.Floor(), nil
	case p.Base:
		if len(book.Quote) == 0 {
			return ir.Dec{}, nil
		}
		return offer.Amount.MulFloor(book.Quote[0].Price), nil
	default:
		return ir.Dec{}, fmt.Errorf("pair %s does not trade %s", pair, offer.Denom)
	}
}

func (m *Market) Order(_ context.Context, pair, owner string, side ir.Side, price ir.Dec) (ir.OrderState, error) {
	o, ok := m.Orders[OrderKey(pair, owner, side, price)]
	if !ok {
		return ir.OrderState{}, operation.ErrOrderNotFound
	}
	return o, nil
}

func (m *Market) Strategy(_ context.Context, manager, address string) (ir.StrategyInfo, error) {
	info, ok := m.Strategies[address]
	if manager != m.Registry || !ok {
		return ir.StrategyInfo{}, fmt.Errorf("%w: %s", operation.ErrStrategyNotFound, address)
	}
	return info, nil
}

func (m *Market) OraclePrice(_ context.Context, asset string) (ir.Dec, error) {
	p, ok := m.Prices[asset]
	if !ok {
		return ir.Dec{}, fmt.Errorf("%w: %s", operation.ErrPriceNotFound, asset)
	}
	return p, nil
}

func (m *Market) ThorchainQuote(_ context.Context, req ir.ThorQuoteRequest) (ir.ThorQuote, error) {
	if m.Quote == nil {
		return ir.ThorQuote{}, fmt.Errorf("no thorchain pool for %s -> %s", req.FromAsset, req.ToAsset)
	}
	return m.Quote(req)
}

// StrategyBalances returns the configured holdings, falling back to the
// plain balance of address.
func (m *Market) StrategyBalances(_ context.Context, address string) (ir.Coins, error) {
	if h, ok := m.StrategyHoldings[address]; ok {
		return h, nil
	}
	return m.Balances[address], nil
}
