package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/stratagem/internal/compiler"
	"github.com/roach88/stratagem/internal/ir"
)

// Graph is the node table of one strategy, read and written through the
// enclosing transaction.
type Graph struct {
	tx       *Tx
	strategy string
}

// Graph returns the node table of strategy.
func (t *Tx) Graph(strategy string) *Graph {
	return &Graph{tx: t, strategy: strategy}
}

// Init validates nodes and replaces the stored graph with them.
// On a validation failure nothing is written and the error is a
// compiler.ValidationError.
func (g *Graph) Init(ctx context.Context, nodes []ir.Node) error {
	if err := compiler.ValidateGraph(nodes); err != nil {
		return err
	}

	if _, err := g.tx.exec(ctx, `DELETE FROM nodes WHERE strategy = ?`, g.strategy); err != nil {
		return fmt.Errorf("init graph: clear nodes: %w", err)
	}
	for _, n := range nodes {
		data, err := marshalColumn(n)
		if err != nil {
			return fmt.Errorf("init graph: node %d: %w", n.Index, err)
		}
		if _, err := g.tx.exec(ctx, `
			INSERT INTO nodes (strategy, idx, node) VALUES (?, ?, ?)
		`, g.strategy, n.Index, data); err != nil {
			return fmt.Errorf("init graph: node %d: %w", n.Index, err)
		}
	}
	return nil
}

// Load returns node i. Unknown indexes return ErrNodeNotFound.
func (g *Graph) Load(ctx context.Context, i uint16) (ir.Node, error) {
	var data string
	err := g.tx.queryRow(ctx, `
		SELECT node FROM nodes WHERE strategy = ? AND idx = ?
	`, g.strategy, i).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Node{}, fmt.Errorf("load node %d: %w", i, ErrNodeNotFound)
	}
	if err != nil {
		return ir.Node{}, fmt.Errorf("load node %d: %w", i, err)
	}
	return decodeNode(int(i), data)
}

// Save overwrites the node at node.Index. Indexes outside the graph
// return ErrNodeNotFound.
func (g *Graph) Save(ctx context.Context, n ir.Node) error {
	data, err := marshalColumn(n)
	if err != nil {
		return fmt.Errorf("save node %d: %w", n.Index, err)
	}
	res, err := g.tx.exec(ctx, `
		UPDATE nodes SET node = ? WHERE strategy = ? AND idx = ?
	`, data, g.strategy, n.Index)
	if err != nil {
		return fmt.Errorf("save node %d: %w", n.Index, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save node %d: %w", n.Index, err)
	}
	if affected == 0 {
		return fmt.Errorf("save node %d: %w", n.Index, ErrNodeNotFound)
	}
	return nil
}

// Len returns the number of nodes.
func (g *Graph) Len(ctx context.Context) (int, error) {
	var n int
	if err := g.tx.queryRow(ctx, `
		SELECT COUNT(*) FROM nodes WHERE strategy = ?
	`, g.strategy).Scan(&n); err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return n, nil
}

// Nodes returns the whole graph in index order.
func (g *Graph) Nodes(ctx context.Context) ([]ir.Node, error) {
	nodes := []ir.Node{}
	err := g.scan(ctx, 0, func(n ir.Node) bool {
		nodes = append(nodes, n)
		return true
	})
	return nodes, err
}

// Next resolves the node after current. A nil current starts the walk.
//
// In execute mode an action follows Next and a condition follows
// OnSuccess or OnFailure by satisfied. In withdraw and cancel modes the
// walk visits every action in ascending index order and skips conditions.
// A nil result ends the walk.
func (g *Graph) Next(ctx context.Context, current *ir.Node, mode ir.Mode, satisfied bool) (*uint16, error) {
	switch mode {
	case ir.ModeExecute:
		if current == nil {
			n, err := g.Len(ctx)
			if err != nil || n == 0 {
				return nil, err
			}
			return ir.Ptr(0), nil
		}
		switch current.Kind() {
		case ir.NodeKindAction:
			return current.Action.Next, nil
		case ir.NodeKindCondition:
			if satisfied {
				return current.Condition.OnSuccess, nil
			}
			return current.Condition.OnFailure, nil
		}
		return nil, fmt.Errorf("next after node %d: malformed node", current.Index)

	case ir.ModeWithdraw, ir.ModeCancel:
		from := 0
		if current != nil {
			from = int(current.Index) + 1
		}
		var next *uint16
		err := g.scan(ctx, from, func(n ir.Node) bool {
			if n.Kind() == ir.NodeKindAction {
				next = ir.Ptr(n.Index)
				return false
			}
			return true
		})
		return next, err
	}
	return nil, fmt.Errorf("next: unknown mode %q", mode)
}

// scan visits nodes from index from upward until visit returns false.
func (g *Graph) scan(ctx context.Context, from int, visit func(ir.Node) bool) error {
	rows, err := g.tx.query(ctx, `
		SELECT idx, node FROM nodes
		WHERE strategy = ? AND idx >= ?
		ORDER BY idx ASC
	`, g.strategy, from)
	if err != nil {
		return fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			idx  int
			data string
		)
		if err := rows.Scan(&idx, &data); err != nil {
			return fmt.Errorf("scan node: %w", err)
		}
		n, err := decodeNode(idx, data)
		if err != nil {
			return err
		}
		if !visit(n) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate nodes: %w", err)
	}
	return nil
}

func decodeNode(idx int, data string) (ir.Node, error) {
	var n ir.Node
	if err := unmarshalColumn(data, &n); err != nil {
		return ir.Node{}, fmt.Errorf("decode node %d: %w", idx, err)
	}
	if int(n.Index) != idx {
		return ir.Node{}, fmt.Errorf("node stored at %d declares index %d", idx, n.Index)
	}
	return n, nil
}
