package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/stratagem/internal/ir"
)

// Balance returns the balance of address in denom. Missing rows are zero.
func (t *Tx) Balance(ctx context.Context, address, denom string) (ir.Dec, error) {
	var amount string
	err := t.queryRow(ctx, `
		SELECT amount FROM balances WHERE address = ? AND denom = ?
	`, address, denom).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.NewDec(0), nil
	}
	if err != nil {
		return ir.Dec{}, fmt.Errorf("balance %s %s: %w", address, denom, err)
	}
	return parseDecColumn("amount", amount)
}

// Balances returns every non-zero balance of address, sorted by denom.
func (t *Tx) Balances(ctx context.Context, address string) (ir.Coins, error) {
	rows, err := t.query(ctx, `
		SELECT denom, amount FROM balances
		WHERE address = ?
		ORDER BY denom COLLATE BINARY ASC
	`, address)
	if err != nil {
		return nil, fmt.Errorf("query balances %s: %w", address, err)
	}
	defer rows.Close()

	coins := ir.Coins{}
	for rows.Next() {
		var denom, amount string
		if err := rows.Scan(&denom, &amount); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		d, err := parseDecColumn("amount", amount)
		if err != nil {
			return nil, err
		}
		coins = append(coins, ir.Coin{Denom: denom, Amount: d})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	return coins.Normalize(), nil
}

// SetBalance writes the balance of address in denom. A zero amount
// removes the row; a negative amount is an error.
func (t *Tx) SetBalance(ctx context.Context, address, denom string, amount ir.Dec) error {
	if amount.IsNegative() {
		return fmt.Errorf("set balance %s %s: negative amount %s", address, denom, amount)
	}
	if amount.IsZero() {
		if _, err := t.exec(ctx, `
			DELETE FROM balances WHERE address = ? AND denom = ?
		`, address, denom); err != nil {
			return fmt.Errorf("set balance %s %s: %w", address, denom, err)
		}
		return nil
	}
	if _, err := t.exec(ctx, `
		INSERT INTO balances (address, denom, amount) VALUES (?, ?, ?)
		ON CONFLICT(address, denom) DO UPDATE SET amount = excluded.amount
	`, address, denom, amount.String()); err != nil {
		return fmt.Errorf("set balance %s %s: %w", address, denom, err)
	}
	return nil
}

// Pair returns the pair contract at address, or ErrNotFound.
func (t *Tx) Pair(ctx context.Context, address string) (ir.PairConfig, error) {
	p := ir.PairConfig{Address: address}
	err := t.queryRow(ctx, `
		SELECT base, quote FROM pairs WHERE address = ?
	`, address).Scan(&p.Base, &p.Quote)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.PairConfig{}, fmt.Errorf("pair %s: %w", address, ErrNotFound)
	}
	if err != nil {
		return ir.PairConfig{}, fmt.Errorf("pair %s: %w", address, err)
	}
	return p, nil
}

// PutPair creates or replaces a pair contract.
func (t *Tx) PutPair(ctx context.Context, p ir.PairConfig) error {
	if _, err := t.exec(ctx, `
		INSERT INTO pairs (address, base, quote) VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET base = excluded.base, quote = excluded.quote
	`, p.Address, p.Base, p.Quote); err != nil {
		return fmt.Errorf("put pair %s: %w", p.Address, err)
	}
	return nil
}

// Order returns the order of owner at price on side, or ErrNotFound.
func (t *Tx) Order(ctx context.Context, pair, owner string, side ir.Side, price ir.Dec) (ir.OrderState, error) {
	row := t.queryRow(ctx, `
		SELECT owner, side, price, offer, remaining, filled
		FROM orders WHERE pair = ? AND owner = ? AND side = ? AND price = ?
	`, pair, owner, string(side), price.String())
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.OrderState{}, fmt.Errorf("order %s %s %s@%s: %w", pair, owner, side, price, ErrNotFound)
	}
	if err != nil {
		return ir.OrderState{}, fmt.Errorf("order %s %s %s@%s: %w", pair, owner, side, price, err)
	}
	return o, nil
}

// Orders returns every order resting on pair, ordered by owner and price
// text. Callers sort by price value.
func (t *Tx) Orders(ctx context.Context, pair string) ([]ir.OrderState, error) {
	rows, err := t.query(ctx, `
		SELECT owner, side, price, offer, remaining, filled
		FROM orders WHERE pair = ?
		ORDER BY side ASC, owner COLLATE BINARY ASC, price COLLATE BINARY ASC
	`, pair)
	if err != nil {
		return nil, fmt.Errorf("query orders %s: %w", pair, err)
	}
	defer rows.Close()

	orders := []ir.OrderState{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// PutOrder creates or replaces an order on pair.
func (t *Tx) PutOrder(ctx context.Context, pair string, o ir.OrderState) error {
	if _, err := t.exec(ctx, `
		INSERT INTO orders (pair, owner, side, price, offer, remaining, filled)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pair, owner, side, price) DO UPDATE SET
			offer = excluded.offer,
			remaining = excluded.remaining,
			filled = excluded.filled
	`,
		pair,
		o.Owner,
		string(o.Side),
		o.Price.String(),
		o.Offer.String(),
		o.Remaining.String(),
		o.Filled.String(),
	); err != nil {
		return fmt.Errorf("put order %s %s %s@%s: %w", pair, o.Owner, o.Side, o.Price, err)
	}
	return nil
}

// DeleteOrder removes an order. Deleting a missing order is a no-op.
func (t *Tx) DeleteOrder(ctx context.Context, pair, owner string, side ir.Side, price ir.Dec) error {
	if _, err := t.exec(ctx, `
		DELETE FROM orders WHERE pair = ? AND owner = ? AND side = ? AND price = ?
	`, pair, owner, string(side), price.String()); err != nil {
		return fmt.Errorf("delete order %s %s %s@%s: %w", pair, owner, side, price, err)
	}
	return nil
}

func scanOrder(row rowScanner) (ir.OrderState, error) {
	var o ir.OrderState
	var side, price, offer, remaining, filled string
	if err := row.Scan(&o.Owner, &side, &price, &offer, &remaining, &filled); err != nil {
		return ir.OrderState{}, err
	}
	o.Side = ir.Side(side)
	var err error
	if o.Price, err = parseDecColumn("price", price); err != nil {
		return ir.OrderState{}, err
	}
	if o.Offer, err = parseDecColumn("offer", offer); err != nil {
		return ir.OrderState{}, err
	}
	if o.Remaining, err = parseDecColumn("remaining", remaining); err != nil {
		return ir.OrderState{}, err
	}
	if o.Filled, err = parseDecColumn("filled", filled); err != nil {
		return ir.OrderState{}, err
	}
	return o, nil
}

// OraclePrice returns the price of asset, or ErrNotFound.
func (t *Tx) OraclePrice(ctx context.Context, asset string) (ir.Dec, error) {
	var price string
	err := t.queryRow(ctx, `SELECT price FROM oracle_prices WHERE asset = ?`, asset).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Dec{}, fmt.Errorf("oracle price %s: %w", asset, ErrNotFound)
	}
	if err != nil {
		return ir.Dec{}, fmt.Errorf("oracle price %s: %w", asset, err)
	}
	return parseDecColumn("price", price)
}

// SetOraclePrice creates or replaces the price of asset.
func (t *Tx) SetOraclePrice(ctx context.Context, asset string, price ir.Dec) error {
	if _, err := t.exec(ctx, `
		INSERT INTO oracle_prices (asset, price) VALUES (?, ?)
		ON CONFLICT(asset) DO UPDATE SET price = excluded.price
	`, asset, price.String()); err != nil {
		return fmt.Errorf("set oracle price %s: %w", asset, err)
	}
	return nil
}

// RegistryEntry returns the entry of address under manager, or
// ErrNotFound.
func (t *Tx) RegistryEntry(ctx context.Context, manager, address string) (ir.StrategyInfo, error) {
	info := ir.StrategyInfo{Address: address}
	var status string
	err := t.queryRow(ctx, `
		SELECT owner, label, status FROM registry WHERE manager = ? AND address = ?
	`, manager, address).Scan(&info.Owner, &info.Label, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.StrategyInfo{}, fmt.Errorf("registry %s entry %s: %w", manager, address, ErrNotFound)
	}
	if err != nil {
		return ir.StrategyInfo{}, fmt.Errorf("registry %s entry %s: %w", manager, address, err)
	}
	info.Status = ir.StrategyStatus(status)
	return info, nil
}

// PutRegistryEntry creates or replaces the entry of info.Address under
// manager.
func (t *Tx) PutRegistryEntry(ctx context.Context, manager string, info ir.StrategyInfo) error {
	if _, err := t.exec(ctx, `
		INSERT INTO registry (manager, address, owner, label, status) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(manager, address) DO UPDATE SET
			owner = excluded.owner,
			label = excluded.label,
			status = excluded.status
	`, manager, info.Address, info.Owner, info.Label, string(info.Status)); err != nil {
		return fmt.Errorf("put registry %s entry %s: %w", manager, info.Address, err)
	}
	return nil
}

// ChainState returns the current block height and time.
func (t *Tx) ChainState(ctx context.Context) (uint64, time.Time, error) {
	var (
		height uint64
		unix   int64
	)
	if err := t.queryRow(ctx, `
		SELECT height, time FROM chain_state WHERE id = 1
	`).Scan(&height, &unix); err != nil {
		return 0, time.Time{}, fmt.Errorf("chain state: %w", err)
	}
	return height, time.Unix(unix, 0).UTC(), nil
}

// SetChainState moves the block clock. Time is stored at second
// resolution.
func (t *Tx) SetChainState(ctx context.Context, height uint64, at time.Time) error {
	if _, err := t.exec(ctx, `
		UPDATE chain_state SET height = ?, time = ? WHERE id = 1
	`, height, at.Unix()); err != nil {
		return fmt.Errorf("set chain state: %w", err)
	}
	return nil
}
