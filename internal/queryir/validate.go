package queryir

import (
	"fmt"
	"regexp"
	"strings"
)

// identifier matches names that may be spliced into SQL. Identifiers
// cannot be bound as parameters, so anything else is rejected.
var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is usable as a table or column name.
func ValidIdentifier(s string) bool {
	return identifier.MatchString(s)
}

// ValidationError lists every problem found in a query.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + strings.Join(e.Problems, "; ")
}

// Validate checks q against schema and returns a *ValidationError listing
// all problems, or nil.
func Validate(q Query, schema Schema) error {
	v := &validator{schema: schema}
	v.query(q)
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

type validator struct {
	schema   Schema
	problems []string
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) query(q Query) {
	switch query := q.(type) {
	case nil:
		v.addf("nil query")
	case Select:
		v.selectQuery(query)
	case *Select:
		if query == nil {
			v.addf("nil query")
			return
		}
		v.selectQuery(*query)
	default:
		v.addf("unsupported query type %T", q)
	}
}

func (v *validator) selectQuery(sel Select) {
	if !ValidIdentifier(sel.From) {
		v.addf("invalid table name %q", sel.From)
		return
	}
	table, ok := v.schema[sel.From]
	if !ok {
		v.addf("unknown table %q", sel.From)
		return
	}
	for _, c := range sel.Columns {
		v.column(table, sel.From, c)
	}
	if sel.Filter != nil {
		v.predicate(table, sel.From, sel.Filter)
	}
}

func (v *validator) column(t Table, from, name string) {
	switch {
	case !ValidIdentifier(name):
		v.addf("invalid column name %q", name)
	case !t.Has(name):
		v.addf("table %s has no column %q", from, name)
	}
}

func (v *validator) predicate(t Table, from string, p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.column(t, from, pred.Field)
		if _, err := Literal(pred.Value); err != nil {
			v.addf("%s: %v", pred.Field, err)
		}
	case And:
		if len(pred.Predicates) == 0 {
			v.addf("empty AND")
		}
		for _, sub := range pred.Predicates {
			v.predicate(t, from, sub)
		}
	case nil:
		v.addf("nil predicate")
	default:
		v.addf("unsupported predicate type %T", p)
	}
}
