package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stratagem/internal/ir"
)

const dcaSource = `
strategy: {
	label: "weekly dca"
	owner: "owner"
	nodes: [
		{
			index: 0
			condition: {
				condition: blocks_completed: height: 100
				on_success: 1
			}
		},
		{
			index: 1
			action: action: swap: {
				swap_amount: {denom: "uusk", amount: 1000}
				minimum_receive_amount: {denom: "ukuji", amount: "1"}
				maximum_slippage_bps: 100
				adjustment: fixed: {}
				routes: [{fin: pair_address: "pair"}]
			}
		},
	]
}
`

func TestCompileStrategySource(t *testing.T) {
	def, err := CompileStrategySource("dca.cue", []byte(dcaSource))
	require.NoError(t, err)

	assert.Equal(t, "weekly dca", def.Label)
	assert.Equal(t, "owner", def.Owner)
	require.Len(t, def.Nodes, 2)

	assert.Equal(t, ir.NodeKindCondition, def.Nodes[0].Kind())
	require.NotNil(t, def.Nodes[0].Condition.OnSuccess)
	assert.Equal(t, uint16(1), *def.Nodes[0].Condition.OnSuccess)
	assert.Nil(t, def.Nodes[0].Condition.OnFailure)

	swap := def.Nodes[1].Action.Action.Swap
	require.NotNil(t, swap)
	assert.Equal(t, "1000", swap.SwapAmount.Amount.String())
	assert.Equal(t, "ukuji", swap.MinimumReceiveAmount.Denom)
	require.Len(t, swap.Routes, 1)
	assert.Equal(t, "pair", swap.Routes[0].Fin.PairAddress)

	assert.NoError(t, ValidateGraph(def.Nodes))
	assert.Empty(t, ValidateOperations(def.Nodes))
}

func TestCompileStrategyFromValue(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`strategy: {
		label: "offset bid"
		nodes: [{
			index: 0
			action: action: limit_order: {
				pair_address: "pair"
				bid_denom: "uusk"
				side: "quote"
				strategy: offset: {direction: "below", offset: percent: 2}
			}
		}]
	}`)
	require.NoError(t, v.Err())

	def, err := CompileStrategy(v.LookupPath(cue.ParsePath("strategy")))
	require.NoError(t, err)
	lo := def.Nodes[0].Action.Action.LimitOrder
	require.NotNil(t, lo)
	assert.Equal(t, ir.DirectionBelow, lo.Strategy.Offset.Direction)
	assert.Equal(t, uint64(2), *lo.Strategy.Offset.Offset.Percent)
}

func TestCompileStrategyRejectsFloats(t *testing.T) {
	src := `strategy: {
	label: "fixed"
	nodes: [{
		index: 0
		action: action: limit_order: {
			pair_address: "pair"
			bid_denom: "uusk"
			side: "quote"
			strategy: fixed: 1.25
		}
	}]
}`
	_, err := CompileStrategySource("fixed.cue", []byte(src))
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Message, "floats are forbidden")
	assert.Contains(t, cerr.Field, "fixed")
}

func TestCompileStrategyErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"missing strategy", `other: 1`, "strategy"},
		{"missing nodes", `strategy: label: "x"`, "nodes"},
		{"missing label", `strategy: nodes: [{index: 0, action: action: {}}]`, "label"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileStrategySource("bad.cue", []byte(tt.src))
			require.Error(t, err)
			var cerr *CompileError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestCompileStrategyRejectsIncompleteValues(t *testing.T) {
	_, err := CompileStrategySource("open.cue", []byte(`strategy: {label: string, nodes: []}`))
	assert.Error(t, err)
}

func TestCompileStrategySyntaxError(t *testing.T) {
	_, err := CompileStrategySource("broken.cue", []byte("strategy: {\n\tlabel: \n"))
	assert.Error(t, err)
}
