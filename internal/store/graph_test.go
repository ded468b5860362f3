package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stratagem/internal/compiler"
	"github.com/roach88/stratagem/internal/ir"
)

// fourNodeGraph branches at node 0: success runs 1 then 3, failure runs 2.
func fourNodeGraph() []ir.Node {
	return []ir.Node{
		conditionNode(0, ir.Ptr(1), ir.Ptr(2)),
		actionNode(1, ir.Ptr(3)),
		actionNode(2, nil),
		actionNode(3, nil),
	}
}

func TestGraphInitAndLoad(t *testing.T) {
	ctx := context.Background()
	tx := beginTestTx(t, createTestStore(t))
	createTestStrategy(t, tx, "s1")
	g := tx.Graph("s1")

	nodes := fourNodeGraph()
	require.NoError(t, g.Init(ctx, nodes))

	n, err := g.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	for i := range nodes {
		got, err := g.Load(ctx, uint16(i))
		require.NoError(t, err)
		assert.Equal(t, uint16(i), got.Index)
		assert.Equal(t, nodes[i].Kind(), got.Kind())
	}

	all, err := g.Nodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.MustGraphHash(nodes), ir.MustGraphHash(all))
}

func TestGraphInitRejectsWithoutWriting(t *testing.T) {
	ctx := context.Background()
	tx := beginTestTx(t, createTestStore(t))
	createTestStrategy(t, tx, "s1")
	g := tx.Graph("s1")

	require.NoError(t, g.Init(ctx, fourNodeGraph()))

	cyclic := []ir.Node{
		actionNode(0, ir.Ptr(1)),
		actionNode(1, ir.Ptr(0)),
	}
	err := g.Init(ctx, cyclic)
	var verr compiler.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	assert.Equal(t, compiler.ErrGraphCycle, verr.Code)

	n, err := g.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "rejected graph must leave the stored graph untouched")

	fresh := tx.Graph("s2")
	err = fresh.Init(ctx, []ir.Node{actionNode(0, ir.Ptr(0))})
	require.Error(t, err)
	n, err = fresh.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGraphInitReplaces(t *testing.T) {
	ctx := context.Background()
	tx := beginTestTx(t, createTestStore(t))
	createTestStrategy(t, tx, "s1")
	g := tx.Graph("s1")

	require.NoError(t, g.Init(ctx, fourNodeGraph()))
	require.NoError(t, g.Init(ctx, []ir.Node{actionNode(0, nil)}))

	n, err := g.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = g.Load(ctx, 3)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestGraphScopedByStrategy(t *testing.T) {
	ctx := context.Background()
	tx := beginTestTx(t, createTestStore(t))
	createTestStrategy(t, tx, "s1")
	createTestStrategy(t, tx, "s2")

	require.NoError(t, tx.Graph("s1").Init(ctx, fourNodeGraph()))
	require.NoError(t, tx.Graph("s2").Init(ctx, []ir.Node{actionNode(0, nil)}))

	n, err := tx.Graph("s1").Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	n, err = tx.Graph("s2").Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGraphLoadUnknown(t *testing.T) {
	tx := beginTestTx(t, createTestStore(t))
	_, err := tx.Graph("nobody").Load(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestGraphSave(t *testing.T) {
	ctx := context.Background()
	tx := beginTestTx(t, createTestStore(t))
	createTestStrategy(t, tx, "s1")
	g := tx.Graph("s1")
	require.NoError(t, g.Init(ctx, fourNodeGraph()))

	node, err := g.Load(ctx, 1)
	require.NoError(t, err)
	node.Action.Action.LimitOrder.CurrentOrder = &ir.StaleOrder{Price: ir.MustDec("0.95")}
	require.NoError(t, g.Save(ctx, node))

	got, err := g.Load(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got.Action.Action.LimitOrder.CurrentOrder)
	assert.Equal(t, "0.95", got.Action.Action.LimitOrder.CurrentOrder.Price.String())

	err = g.Save(ctx, actionNode(9, nil))
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestGraphNextExecute(t *testing.T) {
	ctx := context.Background()
	tx := beginTestTx(t, createTestStore(t))
	createTestStrategy(t, tx, "s1")
	g := tx.Graph("s1")
	nodes := fourNodeGraph()
	require.NoError(t, g.Init(ctx, nodes))

	tests := []struct {
		name      string
		current   *ir.Node
		satisfied bool
		want      *uint16
	}{
		{"start", nil, false, ir.Ptr(0)},
		{"condition satisfied", &nodes[0], true, ir.Ptr(1)},
		{"condition unsatisfied", &nodes[0], false, ir.Ptr(2)},
		{"action next", &nodes[1], false, ir.Ptr(3)},
		{"terminal action", &nodes[3], false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Next(ctx, tt.current, ir.ModeExecute, tt.satisfied)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGraphNextWithdrawVisitsActionsInOrder(t *testing.T) {
	ctx := context.Background()
	tx := beginTestTx(t, createTestStore(t))
	createTestStrategy(t, tx, "s1")
	g := tx.Graph("s1")
	require.NoError(t, g.Init(ctx, fourNodeGraph()))

	for _, mode := range []ir.Mode{ir.ModeWithdraw, ir.ModeCancel} {
		var visited []uint16
		var current *ir.Node
		for {
			next, err := g.Next(ctx, current, mode, false)
			require.NoError(t, err)
			if next == nil {
				break
			}
			visited = append(visited, *next)
			n, err := g.Load(ctx, *next)
			require.NoError(t, err)
			current = &n
		}
		assert.Equal(t, []uint16{1, 2, 3}, visited, "mode %s", mode)
	}
}

func TestGraphNextWithoutActions(t *testing.T) {
	ctx := context.Background()
	tx := beginTestTx(t, createTestStore(t))
	createTestStrategy(t, tx, "s1")
	g := tx.Graph("s1")
	require.NoError(t, g.Init(ctx, []ir.Node{conditionNode(0, nil, nil)}))

	next, err := g.Next(ctx, nil, ir.ModeCancel, false)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestGraphNextUnknownMode(t *testing.T) {
	tx := beginTestTx(t, createTestStore(t))
	_, err := tx.Graph("s1").Next(context.Background(), nil, ir.Mode("sideways"), false)
	assert.Error(t, err)
}
