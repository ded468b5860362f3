// Package querysql compiles queryir queries to parameterized SQLite.
package querysql

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/stratagem/internal/queryir"
)

// Compiler turns queries into SQL for one schema.
//
// Every statement has an ORDER BY over the table's key so results are
// deterministic, and every literal is a bound parameter.
type Compiler struct {
	schema queryir.Schema
}

// NewCompiler returns a compiler for schema.
func NewCompiler(schema queryir.Schema) *Compiler {
	return &Compiler{schema: schema}
}

// Compile validates q and returns its SQL with parameters.
func (c *Compiler) Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q, c.schema); err != nil {
		return "", nil, err
	}
	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *Compiler) compileSelect(q queryir.Select) (string, []any, error) {
	table := c.schema[q.From]
	columns := q.Columns
	if len(columns) == 0 {
		columns = table.Columns
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(columns, ", "), q.From)

	var params []any
	if q.Filter != nil {
		where, p, err := compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
		params = p
	}

	key := table.Key
	if len(key) == 0 {
		key = table.Columns
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(key, ", "))
	return b.String(), params, nil
}

func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return pred.Field + " = ?", []any{pred.Value}, nil
	case queryir.And:
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for _, sub := range pred.Predicates {
			s, p, err := compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			if _, nested := sub.(queryir.And); nested {
				s = "(" + s + ")"
			}
			parts = append(parts, s)
			params = append(params, p...)
		}
		return strings.Join(parts, " AND "), params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// Introspect reads the schema of every user table in db from SQLite's
// catalog.
func Introspect(ctx context.Context, db *sql.DB) (queryir.Schema, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	schema := make(queryir.Schema, len(names))
	for _, name := range names {
		t, err := introspectTable(ctx, db, name)
		if err != nil {
			return nil, err
		}
		schema[name] = t
	}
	return schema, nil
}

func introspectTable(ctx context.Context, db *sql.DB, name string) (queryir.Table, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, pk FROM pragma_table_info(?) ORDER BY cid`, name)
	if err != nil {
		return queryir.Table{}, fmt.Errorf("table info %s: %w", name, err)
	}
	defer rows.Close()

	type keyCol struct {
		name string
		pos  int
	}
	var (
		t    queryir.Table
		keys []keyCol
	)
	for rows.Next() {
		var (
			col string
			pk  int
		)
		if err := rows.Scan(&col, &pk); err != nil {
			return queryir.Table{}, fmt.Errorf("scan table info %s: %w", name, err)
		}
		t.Columns = append(t.Columns, col)
		if pk > 0 {
			keys = append(keys, keyCol{col, pk})
		}
	}
	if err := rows.Err(); err != nil {
		return queryir.Table{}, err
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].pos < keys[j].pos })
	for _, k := range keys {
		t.Key = append(t.Key, k.name)
	}
	return t, nil
}
