package queryir

import (
	"fmt"
	"math"
	"sort"
)

// Query is a read over one state table.
type Query interface {
	queryNode()
}

// Predicate is a row filter.
type Predicate interface {
	predicateNode()
}

// Select reads the rows of From that satisfy Filter.
//
// Columns lists the columns to return, in order. Empty means every column
// of the table in schema order; backends expand it rather than emitting
// SELECT *.
type Select struct {
	From    string
	Filter  Predicate // nil = every row
	Columns []string
}

func (Select) queryNode() {}

// Equals matches rows whose Field equals Value.
type Equals struct {
	Field string
	Value any // string, int64, or bool; see Literal
}

func (Equals) predicateNode() {}

// And matches rows that satisfy every predicate. It must not be empty.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Table describes one state table.
type Table struct {
	Columns []string
	// Key orders rows deterministically: the primary key, or every
	// column when the table has none.
	Key []string
}

// Has reports whether the table has column name.
func (t Table) Has(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Schema maps table names to their columns.
type Schema map[string]Table

// Literal normalizes a decoded value (YAML or JSON) into a query literal.
// Integers of any width become int64.
func Literal(v any) (any, error) {
	switch val := v.(type) {
	case string, bool, int64:
		return val, nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return int64(val), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden in queries; got %v", val)
	case nil:
		return nil, fmt.Errorf("null literals are not supported")
	default:
		return nil, fmt.Errorf("unsupported literal type %T", v)
	}
}

// WhereEquals builds the conjunction of field = value for every entry of
// where, in sorted field order. An empty map yields a nil predicate.
func WhereEquals(where map[string]any) (Predicate, error) {
	if len(where) == 0 {
		return nil, nil
	}
	fields := make([]string, 0, len(where))
	for f := range where {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	preds := make([]Predicate, 0, len(fields))
	for _, f := range fields {
		v, err := Literal(where[f])
		if err != nil {
			return nil, fmt.Errorf("where %s: %w", f, err)
		}
		preds = append(preds, Equals{Field: f, Value: v})
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return And{Predicates: preds}, nil
}
