package host

import (
	"context"
	"fmt"

	"github.com/roach88/stratagem/internal/engine"
	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/store"
)

// InstantiateRequest asks a manager to create a strategy.
type InstantiateRequest struct {
	// Manager instantiates the strategy and tracks it in the registry.
	// Empty means the chain's registry.
	Manager    string
	Owner      string
	Label      string
	Affiliates []ir.Affiliate
	Nodes      []ir.Node
	Funds      ir.Coins
}

// Instantiate creates a strategy at a fresh address, records it as active
// in the manager's registry, and runs its Instantiate entry, all in one
// transaction.
func (c *Chain) Instantiate(ctx context.Context, req InstantiateRequest) (string, Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	manager := req.Manager
	if manager == "" {
		manager = c.registry
	}
	var address string
	if err := c.store.View(ctx, func(tx *store.Tx) error {
		strategies, err := tx.Strategies(ctx)
		if err != nil {
			return err
		}
		address = fmt.Sprintf("strategy-%d", len(strategies)+1)
		return nil
	}); err != nil {
		return "", Receipt{}, err
	}

	msg, err := NewRequest(manager, address, ir.ExecuteMsg{Instantiate: &ir.InstantiateMsg{
		Owner:      req.Owner,
		Label:      req.Label,
		Affiliates: req.Affiliates,
		Nodes:      req.Nodes,
	}}, req.Funds...)
	if err != nil {
		return "", Receipt{}, err
	}
	owner := req.Owner
	if owner == "" {
		owner = manager
	}
	receipt, err := c.submit(ctx, msg, func(ctx context.Context, tx *store.Tx) error {
		return tx.PutRegistryEntry(ctx, manager, ir.StrategyInfo{
			Address: address,
			Owner:   owner,
			Label:   req.Label,
			Status:  ir.StatusActive,
		})
	})
	return address, receipt, err
}

// SetStatus changes a strategy's registry status and applies it in the
// same transaction: active submits Execute, paused and archived submit
// Cancel. Only the owner or the manager may change the status, and an
// archived strategy stays archived.
func (c *Chain) SetStatus(ctx context.Context, sender, address string, status ir.StrategyStatus) (Receipt, error) {
	if !status.Valid() {
		return Receipt{}, fmt.Errorf("unknown strategy status %q", status)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := ir.ExecuteCancel()
	if status == ir.StatusActive {
		msg = ir.ExecuteExecute()
	}
	req, err := NewRequest(sender, address, msg)
	if err != nil {
		return Receipt{}, err
	}
	return c.submit(ctx, req, func(ctx context.Context, tx *store.Tx) error {
		st, err := tx.Strategy(ctx, address)
		if err != nil {
			return err
		}
		if sender != st.Owner && sender != st.Manager {
			return engine.NewAuthorizationError(address, "status", sender)
		}
		info, err := tx.RegistryEntry(ctx, st.Manager, address)
		if err != nil {
			return err
		}
		if info.Status == ir.StatusArchived && status != ir.StatusArchived {
			return fmt.Errorf("strategy %s is archived", address)
		}
		info.Status = status
		return tx.PutRegistryEntry(ctx, st.Manager, info)
	})
}
