package host

import (
	"context"
	"fmt"

	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/store"
)

// transfer moves coins from one address to another.
func (r *txRun) transfer(ctx context.Context, from, to string, coins ir.Coins) error {
	if err := burn(ctx, r.tx, from, coins); err != nil {
		return err
	}
	return mint(ctx, r.tx, to, coins)
}

// mint credits coins to address.
func mint(ctx context.Context, tx *store.Tx, address string, coins ir.Coins) error {
	for _, c := range coins {
		if c.Amount.IsZero() {
			continue
		}
		if err := ir.CheckAmount(c.Amount); err != nil {
			return fmt.Errorf("credit %s: %w: %v", address, ErrInvalidFunds, err)
		}
		held, err := tx.Balance(ctx, address, c.Denom)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, address, c.Denom, held.Add(c.Amount)); err != nil {
			return err
		}
	}
	return nil
}

// burn debits coins from address.
func burn(ctx context.Context, tx *store.Tx, address string, coins ir.Coins) error {
	for _, c := range coins {
		if c.Amount.IsZero() {
			continue
		}
		if err := ir.CheckAmount(c.Amount); err != nil {
			return fmt.Errorf("debit %s: %w: %v", address, ErrInvalidFunds, err)
		}
		held, err := tx.Balance(ctx, address, c.Denom)
		if err != nil {
			return err
		}
		if held.Cmp(c.Amount) < 0 {
			return fmt.Errorf("%w: %s has %s%s, needs %s", ErrInsufficientFunds, address, held, c.Denom, c)
		}
		if err := tx.SetBalance(ctx, address, c.Denom, held.Sub(c.Amount)); err != nil {
			return err
		}
	}
	return nil
}
