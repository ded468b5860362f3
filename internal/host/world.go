package host

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/store"
)

// World is a chain seed: balances, pairs with resting maker orders, and
// oracle prices.
type World struct {
	Height   uint64            `yaml:"height,omitempty"`
	Time     *time.Time        `yaml:"time,omitempty"`
	Balances map[string]string `yaml:"balances,omitempty"`
	Pairs    []ir.PairConfig   `yaml:"pairs,omitempty"`
	Orders   []WorldOrder      `yaml:"orders,omitempty"`
	Prices   map[string]ir.Dec `yaml:"prices,omitempty"`
}

// WorldOrder is a maker order resting on a pair.
type WorldOrder struct {
	Pair   string  `yaml:"pair"`
	Owner  string  `yaml:"owner"`
	Side   ir.Side `yaml:"side"`
	Price  ir.Dec  `yaml:"price"`
	Amount ir.Dec  `yaml:"amount"`
}

// LoadWorld reads a world seed from a YAML file.
func LoadWorld(path string) (World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return World{}, fmt.Errorf("read world %s: %w", path, err)
	}
	var w World
	if err := yaml.Unmarshal(data, &w); err != nil {
		return World{}, fmt.Errorf("parse world %s: %w", path, err)
	}
	return w, nil
}

// Seed applies w in one store transaction. Balances are added to what is
// already there.
func (c *Chain) Seed(ctx context.Context, w World) error {
	return c.update(ctx, func(tx *store.Tx) error {
		if w.Height > 0 || w.Time != nil {
			height, at, err := tx.ChainState(ctx)
			if err != nil {
				return err
			}
			if w.Height > 0 {
				height = w.Height
			}
			if w.Time != nil {
				at = *w.Time
			}
			if err := tx.SetChainState(ctx, height, at); err != nil {
				return err
			}
		}

		addresses := make([]string, 0, len(w.Balances))
		for addr := range w.Balances {
			addresses = append(addresses, addr)
		}
		sort.Strings(addresses)
		for _, addr := range addresses {
			coins, err := ir.ParseCoins(w.Balances[addr])
			if err != nil {
				return fmt.Errorf("balances of %s: %w", addr, err)
			}
			if err := mint(ctx, tx, addr, coins); err != nil {
				return err
			}
		}

		for _, p := range w.Pairs {
			if err := tx.PutPair(ctx, p); err != nil {
				return err
			}
		}
		for _, o := range w.Orders {
			if err := placeOrder(ctx, tx, o.Pair, o.Owner, o.Side, o.Price, o.Amount); err != nil {
				return fmt.Errorf("order of %s on %s: %w", o.Owner, o.Pair, err)
			}
		}
		for asset, price := range w.Prices {
			if err := tx.SetOraclePrice(ctx, asset, price); err != nil {
				return err
			}
		}
		return nil
	})
}
