package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = Schema{
	"balances": {Columns: []string{"address", "denom", "amount"}, Key: []string{"address", "denom"}},
}

func TestValidateAccepts(t *testing.T) {
	queries := []Query{
		Select{From: "balances"},
		&Select{From: "balances", Columns: []string{"amount"}},
		Select{From: "balances", Filter: And{Predicates: []Predicate{
			Equals{Field: "address", Value: "alice"},
			And{Predicates: []Predicate{Equals{Field: "denom", Value: "uusk"}}},
		}}},
	}
	for _, q := range queries {
		assert.NoError(t, Validate(q, testSchema))
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	err := Validate(Select{
		From:    "balances",
		Columns: []string{"amount", "owner", "1bad"},
		Filter: And{Predicates: []Predicate{
			Equals{Field: "address", Value: 1.5},
			And{},
			nil,
		}},
	}, testSchema)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{
		`table balances has no column "owner"`,
		`invalid column name "1bad"`,
		"address: floats are forbidden in queries; got 1.5",
		"empty AND",
		"nil predicate",
	}, verr.Problems)
	assert.Contains(t, err.Error(), "invalid query: ")
}

func TestValidateTables(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		want string
	}{
		{"nil", nil, "nil query"},
		{"nil pointer", (*Select)(nil), "nil query"},
		{"injection", Select{From: "balances; DROP TABLE balances"}, "invalid table name"},
		{"unknown", Select{From: "orders"}, `unknown table "orders"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, Validate(tt.q, testSchema), tt.want)
		})
	}
}

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("tx_id"))
	assert.True(t, ValidIdentifier("_x1"))
	assert.False(t, ValidIdentifier(""))
	assert.False(t, ValidIdentifier("a-b"))
	assert.False(t, ValidIdentifier("a b"))
}
