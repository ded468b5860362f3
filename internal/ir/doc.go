// Package ir provides the data model shared by every stratagem package:
// strategy graphs, predicates, operations, coins, and messages.
//
// This package contains types and pure helpers only. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Closed unions are structs with exactly one non-nil variant pointer
//   - NO float types anywhere; amounts and prices are Dec
//   - All JSON tags use snake_case
//   - Canonical JSON (RFC 8785) for every content hash
package ir
