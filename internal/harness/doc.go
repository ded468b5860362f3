// Package harness runs scripted scenarios against a simulated chain.
//
// A scenario seeds a world, instantiates strategies from CUE definitions,
// applies a list of steps, and checks the resulting trace and state.
//
// # Scenario Format
//
//	name: four_node_success
//	description: "Funded strategy swaps and rests the proceeds"
//	world:
//	  pairs:
//	    - {address: pair, base: ukuji, quote: uusk}
//	  orders:
//	    - {pair: pair, owner: maker, side: base, price: "1.01", amount: 1000000}
//	strategies:
//	  - name: dca
//	    definition: ../strategies/branch.cue
//	    owner: owner
//	steps:
//	  - fund: {address: dca, coins: 5000uusk}
//	  - submit: {entry: execute, contract: dca, sender: owner}
//	  - submit: {entry: withdraw, contract: dca, sender: mallory, coins: 1uusk}
//	    expect: {status: failed, code: UNAUTHORIZED}
//	assertions:
//	  - type: trace_order
//	    steps: [wasm@dca, wasm@pair, wasm@dca]
//	  - type: balance
//	    address: dca
//	    equals: 4000uusk
//	  - type: final_state
//	    table: strategies
//	    where: {address: dca}
//	    expect: {guard: 0}
//
// Strategy names may stand in for addresses anywhere a step or assertion
// takes one.
//
// # Assertion Types
//
//   - trace_contains: some message matches kind, target, and sender
//   - trace_order: kind@target messages occur in order, gaps allowed
//   - trace_count: exactly N messages match
//   - balance: an address holds exactly the given coins
//   - final_state: one row of a state table has the expected columns
//
// # Determinism
//
// Every run uses a fresh in-memory SQLite store and sequential transaction
// IDs, so traces are reproducible and can be compared with golden files
// (goldie, under testdata/golden).
package harness
