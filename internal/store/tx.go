package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/stratagem/internal/ir"
)

// Sentinel errors for missing rows.
var (
	ErrNotFound         = errors.New("not found")
	ErrNodeNotFound     = errors.New("node not found")
	ErrStrategyNotFound = errors.New("strategy not found")
	ErrStrategyExists   = errors.New("strategy already exists")
)

// Tx is one SQL transaction over strategy and host state.
// Not safe for concurrent use.
type Tx struct {
	tx *sql.Tx
}

// Commit makes every write of the transaction durable.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback discards every write of the transaction.
// Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

func (t *Tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *Tx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *Tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

// marshalColumn encodes v as canonical JSON TEXT, so identical state
// always produces identical rows.
func marshalColumn(v any) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalColumn(data string, v any) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}

// marshalDenoms stores a set as its sorted member list.
func marshalDenoms(s ir.DenomSet) (string, error) {
	sorted := s.Sorted()
	if sorted == nil {
		sorted = []string{}
	}
	return marshalColumn(sorted)
}

func unmarshalDenoms(data string) (ir.DenomSet, error) {
	var denoms []string
	if err := unmarshalColumn(data, &denoms); err != nil {
		return nil, err
	}
	return ir.NewDenomSet(denoms...), nil
}

func parseDecColumn(name, value string) (ir.Dec, error) {
	d, err := ir.ParseDec(value)
	if err != nil {
		return ir.Dec{}, fmt.Errorf("column %s: %w", name, err)
	}
	return d, nil
}
