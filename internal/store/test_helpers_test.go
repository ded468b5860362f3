package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/stratagem/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// beginTestTx opens a transaction that is rolled back at cleanup unless
// the test commits it.
func beginTestTx(t *testing.T, s *Store) *Tx {
	t.Helper()
	tx, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	t.Cleanup(func() { tx.Rollback() })
	return tx
}

// createTestStrategy inserts a strategy row with minimal fields.
func createTestStrategy(t *testing.T, tx *Tx, address string) {
	t.Helper()
	err := tx.CreateStrategy(context.Background(), Strategy{
		Address:   address,
		Owner:     "owner",
		Manager:   "registry",
		Label:     "test",
		CreatedAt: 1,
	})
	if err != nil {
		t.Fatalf("CreateStrategy() failed: %v", err)
	}
}

func blockAt(height uint64) ir.Condition {
	return ir.Condition{BlocksCompleted: &ir.BlocksCompleted{Height: height}}
}

func conditionNode(i uint16, onSuccess, onFailure *uint16) ir.Node {
	return ir.Node{Index: i, Condition: &ir.ConditionNode{
		Condition: blockAt(10),
		OnSuccess: onSuccess,
		OnFailure: onFailure,
	}}
}

func actionNode(i uint16, next *uint16) ir.Node {
	price := ir.MustDec("0.9")
	return ir.Node{Index: i, Action: &ir.ActionNode{
		Action: ir.Action{LimitOrder: &ir.LimitOrder{
			PairAddress: "pair",
			BidDenom:    "uusk",
			Side:        ir.SideQuote,
			Strategy:    ir.PriceStrategy{Fixed: &price},
		}},
		Next: next,
	}}
}
