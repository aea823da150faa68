// Package export declares planned invocations to a host build engine.
package export

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/goplus/swbuild/internal/host"
	"github.com/goplus/swbuild/internal/modgraph"
	"github.com/goplus/swbuild/internal/plan"
)

// Export registers one node per invocation with eng, dependencies first.
// A node runs after the nodes of the local targets it imports and after the
// nodes producing its implicit inputs; both are found by asking eng which
// node produces the output. Export runs nothing.
func Export(g *modgraph.Graph, invs []*plan.Invocation, eng host.Engine, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	byTarget := make(map[string]*plan.Invocation, len(invs))
	for _, inv := range invs {
		if _, dup := byTarget[inv.ID.Target]; dup {
			return fmt.Errorf("export: target %s planned twice", inv.ID.Target)
		}
		byTarget[inv.ID.Target] = inv
	}
	localDeps := make(map[string][]string)
	for _, e := range g.Edges() {
		if e.Resolution == modgraph.Local && !slices.Contains(localDeps[e.From], e.Target) {
			localDeps[e.From] = append(localDeps[e.From], e.Target)
		}
	}

	for _, name := range g.Order() {
		inv, ok := byTarget[name]
		if !ok {
			continue
		}
		n := &host.Node{
			ID:       inv.ID.String(),
			Target:   inv.ID.Target,
			Artifact: string(inv.ID.Artifact),
			Command:  slices.Clone(inv.Args),
			WorkDir:  inv.WorkDir,
			Inputs:   merge(inv.Inputs, inv.Implicit),
			Outputs:  slices.Clone(inv.Outputs),
		}

		var after []string
		addAfter := func(id string) {
			if !slices.Contains(after, id) {
				after = append(after, id)
			}
		}
		for _, dep := range localDeps[name] {
			depInv, ok := byTarget[dep]
			if !ok {
				return fmt.Errorf("export: %s depends on %s, which was not planned", name, dep)
			}
			depNode, ok := eng.Lookup(depInv.ID.Output)
			if !ok {
				return fmt.Errorf("export: %s depends on %s, which is not registered", name, depInv.ID.Output)
			}
			addAfter(depNode.ID)
		}
		for _, in := range inv.Implicit {
			if producer, ok := eng.Lookup(in); ok {
				addAfter(producer.ID)
			}
		}
		n.After = after

		if err := eng.Register(n); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		logger.Debug("registered node", "node", n.ID, "inputs", len(n.Inputs), "after", len(n.After))
	}
	return nil
}

// merge returns explicit followed by the implicit paths not already in
// it, without duplicates.
func merge(explicit, implicit []string) []string {
	out := make([]string, 0, len(explicit)+len(implicit))
	seen := make(map[string]bool, cap(out))
	for _, list := range [][]string{explicit, implicit} {
		for _, p := range list {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
