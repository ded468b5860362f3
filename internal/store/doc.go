// Package store provides SQLite-backed durable storage for strategies and
// the host chain they run on.
//
// One database holds both, so a single SQL transaction (Tx) covers
// everything a host transaction touches:
//   - Strategies: identity, affiliates, tracked and escrowed denoms, and
//     the reentrancy guard
//   - Nodes: the graph of each strategy, one row per node (Graph)
//   - Host state: balances, pairs, orders, oracle prices, registry, and
//     the block clock
//   - Journal: transactions and the messages each one dispatched
//
// # Critical Patterns
//
// Atomicity: callers open one Tx per host transaction and roll it back
// on any error, so a failed transaction leaves every table untouched.
//
// Deterministic rows: JSON columns are RFC 8785 canonical JSON and
// amounts are reduced decimal strings. Identical state always produces
// identical bytes, and order keys compare by text.
//
// Deterministic reads: every multi-row query has an explicit ORDER BY.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The pool holds a single connection. A Store method must not be called
// while a Tx from the same Store is open.
package store
