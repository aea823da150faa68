package modgraph

import (
	"fmt"
	"strings"
)

// ResolutionError reports a module name claimed by more than one target.
type ResolutionError struct {
	Module  string
	Targets []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("module %s is built by more than one target: %s", e.Module, strings.Join(e.Targets, ", "))
}

// CycleError reports targets that depend on each other. Path lists the
// targets of the cycle in dependency order; the last depends on the first.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "dependency cycle"
	}
	return "dependency cycle: " + strings.Join(append(e.Path[:len(e.Path):len(e.Path)], e.Path[0]), " -> ")
}

// findCycle runs a depth-first search over names in order, visiting
// dependencies in order, and returns the first cycle found or nil.
// The result only depends on the graph, not on map iteration order.
func findCycle(names []string, deps map[string][]string) []string {
	const (
		white = iota
		gray  // on the recursion stack
		black
	)
	color := make(map[string]int, len(names))
	parent := make(map[string]string, len(names))

	var cycle []string
	var dfs func(u string) bool
	dfs = func(u string) bool {
		color[u] = gray
		for _, v := range deps[u] {
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				// back edge u -> v: the cycle is v ... u
				for cur := u; cur != v; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return true
			}
		}
		color[u] = black
		return false
	}

	for _, name := range names {
		if color[name] == white && dfs(name) {
			return cycle
		}
	}
	return nil
}
