package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/stratagem/internal/ir"
)

// adjacency maps a node index to the indexes its edges point at.
type adjacency [][]uint16

func buildAdjacency(nodes []ir.Node) adjacency {
	adj := make(adjacency, len(nodes))
	for i, n := range nodes {
		adj[i] = n.Edges()
	}
	return adj
}

// kahnRemainder runs Kahn's algorithm and returns the nodes that could not
// be removed, in ascending order. An empty result means the graph is a DAG.
//
// Edges must already be known to reference valid indexes.
func kahnRemainder(adj adjacency) []uint16 {
	inDegree := make([]int, len(adj))
	for _, targets := range adj {
		for _, t := range targets {
			inDegree[t]++
		}
	}

	queue := make([]uint16, 0, len(adj))
	for i, d := range inDegree {
		if d == 0 {
			queue = append(queue, uint16(i))
		}
	}

	removed := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		removed++
		for _, t := range adj[n] {
			inDegree[t]--
			if inDegree[t] == 0 {
				queue = append(queue, t)
			}
		}
	}

	if removed == len(adj) {
		return nil
	}
	var remaining []uint16
	for i, d := range inDegree {
		if d > 0 {
			remaining = append(remaining, uint16(i))
		}
	}
	return remaining
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(adj adjacency) [][]uint16 {
	var (
		index   = 0
		stack   []uint16
		indices = make(map[uint16]int)
		lowlink = make(map[uint16]int)
		onStack = make(map[uint16]bool)
		sccs    [][]uint16
	)

	var strongConnect func(uint16)
	strongConnect = func(v uint16) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []uint16
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	for v := range adj {
		if _, visited := indices[uint16(v)]; !visited {
			strongConnect(uint16(v))
		}
	}
	return sccs
}

// cyclePath returns one concrete cycle, e.g. [1 3 1], or nil for a DAG.
// The lowest-indexed cyclic component is reported so the diagnostic is
// stable across runs.
func cyclePath(adj adjacency) []uint16 {
	var found []uint16
	for _, scc := range tarjanSCC(adj) {
		if len(scc) == 1 && !slices.Contains(adj[scc[0]], scc[0]) {
			continue
		}
		if found == nil || scc[0] < found[0] {
			found = scc
		}
	}
	if found == nil {
		return nil
	}
	return reconstructCyclePath(found, adj)
}

// reconstructCyclePath follows edges inside the component from its lowest
// member until it returns there.
func reconstructCyclePath(scc []uint16, adj adjacency) []uint16 {
	members := make(map[uint16]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[0]
	current := start
	path := []uint16{current}
	visited := map[uint16]bool{}

	for {
		visited[current] = true
		next, ok := uint16(0), false
		for _, w := range adj[current] {
			if members[w] && (!visited[w] || w == start) {
				next, ok = w, true
				break
			}
		}
		if !ok {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}

func formatPath(path []uint16) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return strings.Join(parts, " → ")
}
