package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/stratagem/internal/host"
	"github.com/roach88/stratagem/internal/queryir"
	"github.com/roach88/stratagem/internal/querysql"
	"github.com/roach88/stratagem/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			switch event.Type {
			case EventTransaction:
				fmt.Fprintf(&buf, "  [step %d] %s %s by %s: %s\n", event.Step, event.Entry, event.Contract, event.Sender, event.Status)
			case EventMessage:
				fmt.Fprintf(&buf, "    %s%d %s from %s\n", strings.Repeat("  ", event.Depth), event.Seq, event.Label(), event.Sender)
			}
		}
	}
	return buf.String()
}

// AssertionContext provides the chain and name mapping assertions need.
type AssertionContext struct {
	Ctx       context.Context
	Chain     *host.Chain
	Store     *store.Store
	Addresses map[string]string
}

func (a *AssertionContext) address(name string) string {
	if a == nil {
		return name
	}
	return resolveAddress(a.Addresses, name)
}

// matches reports whether a message event has the assertion's kind,
// target, and sender. Empty fields match anything.
func matches(event TraceEvent, a Assertion, actx *AssertionContext) bool {
	if event.Type != EventMessage {
		return false
	}
	if a.Kind != "" && event.Kind != a.Kind {
		return false
	}
	if a.Target != "" && event.Target != actx.address(a.Target) {
		return false
	}
	if a.Sender != "" && event.Sender != actx.address(a.Sender) {
		return false
	}
	return true
}

func describe(a Assertion) string {
	parts := []string{}
	if a.Kind != "" {
		parts = append(parts, "kind="+a.Kind)
	}
	if a.Target != "" {
		parts = append(parts, "target="+a.Target)
	}
	if a.Sender != "" {
		parts = append(parts, "sender="+a.Sender)
	}
	return strings.Join(parts, " ")
}

// assertTraceContains checks that some dispatched message matches.
func assertTraceContains(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	for _, event := range trace {
		if matches(event, a, actx) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: "message with " + describe(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the kind@target steps occur in order.
// Other messages may appear between them.
func assertTraceOrder(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	next := 0
	for _, event := range trace {
		if next == len(a.Steps) {
			break
		}
		if event.Type != EventMessage {
			continue
		}
		if event.Label() == resolveStep(a.Steps[next], actx) {
			next++
		}
	}
	if next < len(a.Steps) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("messages in order: %v", a.Steps),
			Actual:   fmt.Sprintf("no %s after the first %d", a.Steps[next], next),
			Trace:    trace,
		}
	}
	return nil
}

// resolveStep maps the target of a kind@target step through the strategy
// names.
func resolveStep(step string, actx *AssertionContext) string {
	kind, target, ok := strings.Cut(step, "@")
	if !ok {
		return step
	}
	return kind + "@" + actx.address(target)
}

// assertTraceCount checks the exact number of matching messages.
func assertTraceCount(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	count := 0
	for _, event := range trace {
		if matches(event, a, actx) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d messages with %s", a.Count, describe(a)),
			Actual:   fmt.Sprintf("%d messages", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertBalance compares an address's bank balance, rendered as a coin
// list, with the expected string.
func assertBalance(actx *AssertionContext, a Assertion) error {
	coins, err := actx.Chain.Balances(actx.Ctx, actx.address(a.Address))
	if err != nil {
		return fmt.Errorf("balance of %s: %w", a.Address, err)
	}
	if got := coins.String(); got != a.Equals {
		return &AssertionError{
			Type:     AssertBalance,
			Expected: fmt.Sprintf("%s holds %q", a.Address, a.Equals),
			Actual:   fmt.Sprintf("%q", got),
		}
	}
	return nil
}

// assertFinalState checks one row of a state table. The read is built as a
// queryir.Select against the live schema, so unknown tables and columns
// are rejected before any SQL runs. Only fields named in Expect are
// compared.
func assertFinalState(actx *AssertionContext, a Assertion) error {
	where := make(map[string]any, len(a.Where))
	for k, v := range a.Where {
		if s, ok := v.(string); ok {
			v = actx.address(s)
		}
		where[k] = v
	}
	filter, err := queryir.WhereEquals(where)
	if err != nil {
		return err
	}

	schema, err := querysql.Introspect(actx.Ctx, actx.Store.DB())
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	query, whereArgs, err := querysql.NewCompiler(schema).Compile(queryir.Select{From: a.Table, Filter: filter})
	if err != nil {
		return err
	}

	rows, err := actx.Store.DB().QueryContext(actx.Ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, formatWhereClause(where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, formatWhereClause(where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		expected := a.Expect[key]
		if s, ok := expected.(string); ok {
			expected = actx.address(s)
		}
		actual, exists := row[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expected, actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expected, expected),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actual, actual),
			}
		}
	}
	return nil
}

// formatWhereClause describes WHERE conditions for error messages.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares a YAML value with a SQLite column value.
// SQLite returns integers as int64, booleans as 0/1, and text as string
// or []byte.
func stateValuesEqual(expected, actual any) bool {
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	switch exp := expected.(type) {
	case string:
		s, ok := actual.(string)
		return ok && exp == s
	case int:
		n, ok := actual.(int64)
		return ok && int64(exp) == n
	case int64:
		n, ok := actual.(int64)
		return ok && exp == n
	case bool:
		if b, ok := actual.(bool); ok {
			return exp == b
		}
		n, ok := actual.(int64)
		return ok && exp == (n != 0)
	}
	return reflect.DeepEqual(expected, actual)
}

// EvaluateAssertions evaluates all assertions against the result and
// returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a, actx)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a, actx)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a, actx)
		case AssertBalance:
			if actx == nil || actx.Chain == nil {
				err = fmt.Errorf("assertion[%d]: balance requires a chain", i)
			} else {
				err = assertBalance(actx, a)
			}
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
