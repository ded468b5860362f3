// Package queryir is a small query representation over the store's state
// tables, used where callers outside the store need to read arbitrary
// rows (scenario final_state assertions).
//
// A Query names one table, an optional filter, and the columns to read.
// Query and Predicate are sealed: only this package implements them, so
// backends can switch over every case.
//
//	switch q := query.(type) {
//	case Select:
//	    // compile
//	default:
//	    // unreachable
//	}
//
// The fragment is deliberately narrow:
//   - Predicates: Equals, And
//   - Literals: string, int64, bool (no floats, no NULL)
//   - Identifiers must match [A-Za-z_][A-Za-z0-9_]* and exist in the Schema
//
// Validation happens before any SQL is built. Values are always bound as
// parameters by the backend (see package querysql).
package queryir
