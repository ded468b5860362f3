package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/stratagem/internal/ir"
)

// Strategy is the persisted identity and bookkeeping of a strategy
// contract. The graph lives separately in the nodes table.
type Strategy struct {
	Address    string         `json:"address"`
	Owner      string         `json:"owner"`
	Manager    string         `json:"manager"`
	Label      string         `json:"label"`
	Affiliates []ir.Affiliate `json:"affiliates"`
	Denoms     ir.DenomSet    `json:"denoms"`
	Escrowed   ir.DenomSet    `json:"escrowed"`
	Guard      bool           `json:"guard"`
	CreatedAt  uint64         `json:"created_at"`
	UpdatedAt  uint64         `json:"updated_at"`
}

// CreateStrategy inserts a new strategy row. An existing address returns
// ErrStrategyExists.
func (t *Tx) CreateStrategy(ctx context.Context, s Strategy) error {
	affiliates := s.Affiliates
	if affiliates == nil {
		affiliates = []ir.Affiliate{}
	}
	affJSON, err := marshalColumn(affiliates)
	if err != nil {
		return fmt.Errorf("create strategy %s: %w", s.Address, err)
	}
	denoms, err := marshalDenoms(s.Denoms)
	if err != nil {
		return fmt.Errorf("create strategy %s: %w", s.Address, err)
	}
	escrowed, err := marshalDenoms(s.Escrowed)
	if err != nil {
		return fmt.Errorf("create strategy %s: %w", s.Address, err)
	}

	res, err := t.exec(ctx, `
		INSERT INTO strategies
		(address, owner, manager, label, affiliates, denoms, escrowed, guard, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO NOTHING
	`,
		s.Address,
		s.Owner,
		s.Manager,
		s.Label,
		affJSON,
		denoms,
		escrowed,
		s.Guard,
		s.CreatedAt,
		s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create strategy %s: %w", s.Address, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("create strategy %s: %w", s.Address, err)
	} else if n == 0 {
		return fmt.Errorf("create strategy %s: %w", s.Address, ErrStrategyExists)
	}
	return nil
}

// Strategy reads a strategy row. Unknown addresses return
// ErrStrategyNotFound.
func (t *Tx) Strategy(ctx context.Context, address string) (Strategy, error) {
	row := t.queryRow(ctx, `
		SELECT address, owner, manager, label, affiliates, denoms, escrowed, guard, created_at, updated_at
		FROM strategies WHERE address = ?
	`, address)
	s, err := scanStrategy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Strategy{}, fmt.Errorf("strategy %s: %w", address, ErrStrategyNotFound)
	}
	if err != nil {
		return Strategy{}, fmt.Errorf("strategy %s: %w", address, err)
	}
	return s, nil
}

// IsStrategy reports whether address is a strategy contract.
func (t *Tx) IsStrategy(ctx context.Context, address string) (bool, error) {
	var n int
	if err := t.queryRow(ctx, `
		SELECT COUNT(*) FROM strategies WHERE address = ?
	`, address).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup strategy %s: %w", address, err)
	}
	return n > 0, nil
}

// Strategies lists every strategy ordered by address.
func (t *Tx) Strategies(ctx context.Context) ([]Strategy, error) {
	rows, err := t.query(ctx, `
		SELECT address, owner, manager, label, affiliates, denoms, escrowed, guard, created_at, updated_at
		FROM strategies ORDER BY address COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query strategies: %w", err)
	}
	defer rows.Close()

	strategies := []Strategy{}
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan strategy: %w", err)
		}
		strategies = append(strategies, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategies: %w", err)
	}
	return strategies, nil
}

// SetGuard sets or clears the reentrancy guard.
func (t *Tx) SetGuard(ctx context.Context, address string, on bool, height uint64) error {
	return t.updateStrategy(ctx, address, "set guard", `
		UPDATE strategies SET guard = ?, updated_at = ? WHERE address = ?
	`, on, height, address)
}

// SetDenoms records the tracked and escrowed denomination sets derived
// from the current graph.
func (t *Tx) SetDenoms(ctx context.Context, address string, denoms, escrowed ir.DenomSet, height uint64) error {
	d, err := marshalDenoms(denoms)
	if err != nil {
		return fmt.Errorf("set denoms %s: %w", address, err)
	}
	e, err := marshalDenoms(escrowed)
	if err != nil {
		return fmt.Errorf("set denoms %s: %w", address, err)
	}
	return t.updateStrategy(ctx, address, "set denoms", `
		UPDATE strategies SET denoms = ?, escrowed = ?, updated_at = ? WHERE address = ?
	`, d, e, height, address)
}

func (t *Tx) updateStrategy(ctx context.Context, address, op, query string, args ...any) error {
	res, err := t.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, address, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, address, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, address, ErrStrategyNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStrategy(row rowScanner) (Strategy, error) {
	var s Strategy
	var affJSON, denoms, escrowed string
	if err := row.Scan(
		&s.Address,
		&s.Owner,
		&s.Manager,
		&s.Label,
		&affJSON,
		&denoms,
		&escrowed,
		&s.Guard,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return Strategy{}, err
	}
	if err := unmarshalColumn(affJSON, &s.Affiliates); err != nil {
		return Strategy{}, fmt.Errorf("decode affiliates: %w", err)
	}
	var err error
	if s.Denoms, err = unmarshalDenoms(denoms); err != nil {
		return Strategy{}, fmt.Errorf("decode denoms: %w", err)
	}
	if s.Escrowed, err = unmarshalDenoms(escrowed); err != nil {
		return Strategy{}, fmt.Errorf("decode escrowed: %w", err)
	}
	return s, nil
}
