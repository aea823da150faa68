// Package modgraph resolves the modules imported by compilation units to the
// targets that build them and assembles the target dependency graph.
//
// A Graph is built once per build from a complete set of scan results and
// is read-only afterwards.
package modgraph

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/dominikbraun/graph"
	"github.com/goplus/swbuild/internal/config"
	"github.com/goplus/swbuild/internal/scan"
)

// Resolution says where an imported module comes from.
type Resolution int

const (
	// External modules are opaque: the compiler finds them through the
	// configured search paths.
	External Resolution = iota
	// Local modules are built by a target of this build.
	Local
)

func (r Resolution) String() string {
	if r == Local {
		return "local"
	}
	return "external"
}

// Edge is a resolved import of one compilation unit, or an explicit
// depends_on entry of a target (then Unit is empty).
type Edge struct {
	From       string // importing target
	Unit       string // importing source file
	Module     string
	Line       int
	Resolution Resolution
	Target     string // the target building Module, for Local edges
}

// Options control resolution.
type Options struct {
	// Prefer decides how a module that is both built by a target and
	// listed in External resolves. The zero value means config.PreferLocal.
	Prefer config.Preference

	// External lists modules known to be available from the system.
	External []string

	Logger *slog.Logger
}

// Graph is the resolved target dependency graph.
type Graph struct {
	targets    map[string]*config.Target
	edges      []Edge
	deps       map[string][]string
	dependents map[string][]string
	order      []string
	rank       map[string]int
	externals  []string
}

// Build resolves the imports in scans, keyed by target name, against
// targets and returns the acyclic target graph.
//
// It fails with a *ResolutionError when two targets claim one module name,
// a *config.Error for a bad depends_on entry and a *CycleError when the
// targets depend on each other in a cycle.
func Build(targets []*config.Target, scans map[string][]*scan.Result, opts Options) (*Graph, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefer := opts.Prefer
	if prefer == "" {
		prefer = config.PreferLocal
	}

	g := &Graph{
		targets:    make(map[string]*config.Target, len(targets)),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}
	var names []string
	for _, t := range targets {
		if _, dup := g.targets[t.Name]; dup {
			return nil, config.Errorf(t.Name, "", "target declared twice")
		}
		g.targets[t.Name] = t
		names = append(names, t.Name)
	}
	sort.Strings(names)

	owners, err := register(targets)
	if err != nil {
		return nil, err
	}
	external := make(map[string]bool, len(opts.External))
	for _, name := range opts.External {
		external[name] = true
	}

	depSet := make(map[string]map[string]bool)
	addDep := func(from, to string) {
		if depSet[from] == nil {
			depSet[from] = make(map[string]bool)
		}
		depSet[from][to] = true
	}
	extSet := make(map[string]bool)

	for _, name := range names {
		t := g.targets[name]
		for _, dep := range t.DependsOn {
			if dep == name {
				return nil, config.Errorf(name, "depends_on", "target depends on itself")
			}
			if _, ok := g.targets[dep]; !ok {
				return nil, config.Errorf(name, "depends_on", "unknown target %q", dep)
			}
			g.edges = append(g.edges, Edge{From: name, Module: g.targets[dep].ModuleName, Resolution: Local, Target: dep})
			addDep(name, dep)
		}
		for _, res := range scans[name] {
			for _, imp := range res.Imports {
				mod := imp.Module()
				if mod == t.ModuleName {
					logger.Debug("ignoring self import", "target", name, "file", res.File, "line", imp.Line)
					continue
				}
				e := Edge{From: name, Unit: res.File, Module: mod, Line: imp.Line}
				if owner, ok := owners[mod]; ok && !(external[mod] && prefer == config.PreferExternal) {
					e.Resolution = Local
					e.Target = owner
					addDep(name, owner)
				} else {
					extSet[mod] = true
				}
				g.edges = append(g.edges, e)
			}
		}
	}

	for from, set := range depSet {
		for to := range set {
			g.deps[from] = append(g.deps[from], to)
			g.dependents[to] = append(g.dependents[to], from)
		}
		sort.Strings(g.deps[from])
	}
	for to := range g.dependents {
		sort.Strings(g.dependents[to])
	}

	if path := findCycle(names, g.deps); path != nil {
		return nil, &CycleError{Path: path}
	}
	if g.order, err = topoSort(names, g.deps); err != nil {
		return nil, err
	}
	g.rank = make(map[string]int, len(g.order))
	for i, name := range g.order {
		g.rank[name] = i
	}
	for _, list := range g.deps {
		g.byRank(list)
	}
	for _, list := range g.dependents {
		g.byRank(list)
	}
	for mod := range extSet {
		g.externals = append(g.externals, mod)
	}
	sort.Strings(g.externals)

	logger.Debug("resolved module graph", "targets", len(names), "edges", len(g.edges), "externals", len(g.externals))
	return g, nil
}

// register maps every declared module name to its target.
func register(targets []*config.Target) (map[string]string, error) {
	claims := make(map[string][]string)
	for _, t := range targets {
		claims[t.ModuleName] = append(claims[t.ModuleName], t.Name)
	}
	mods := make([]string, 0, len(claims))
	for mod := range claims {
		mods = append(mods, mod)
	}
	sort.Strings(mods)

	owners := make(map[string]string, len(claims))
	for _, mod := range mods {
		names := claims[mod]
		if len(names) > 1 {
			sort.Strings(names)
			return nil, &ResolutionError{Module: mod, Targets: names}
		}
		owners[mod] = names[0]
	}
	return owners, nil
}

// topoSort orders names so that every target follows its dependencies,
// breaking ties by name.
func topoSort(names []string, deps map[string][]string) ([]string, error) {
	g := graph.New(graph.StringHash, graph.Directed())
	for _, name := range names {
		if err := g.AddVertex(name); err != nil {
			return nil, fmt.Errorf("adding target %s: %w", name, err)
		}
	}
	for _, from := range names {
		for _, to := range deps[from] {
			if err := g.AddEdge(to, from); err != nil {
				return nil, fmt.Errorf("adding edge %s -> %s: %w", from, to, err)
			}
		}
	}
	return graph.StableTopologicalSort(g, func(a, b string) bool { return a < b })
}

func (g *Graph) byRank(list []string) {
	sort.Slice(list, func(i, j int) bool { return g.rank[list[i]] < g.rank[list[j]] })
}

// Order returns all targets, each after the targets it depends on.
func (g *Graph) Order() []string {
	return slices.Clone(g.order)
}

// Target returns the configuration of the named target, or nil.
func (g *Graph) Target(name string) *config.Target {
	return g.targets[name]
}

// Edges returns every resolved import, grouped by target in name order.
func (g *Graph) Edges() []Edge {
	return slices.Clone(g.edges)
}

// Deps returns the targets name depends on directly, in build order.
func (g *Graph) Deps(name string) []string {
	return slices.Clone(g.deps[name])
}

// Dependents returns the targets depending directly on name, in build order.
func (g *Graph) Dependents(name string) []string {
	return slices.Clone(g.dependents[name])
}

// TransitiveDeps returns every target name depends on, in build order.
func (g *Graph) TransitiveDeps(name string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		for _, d := range g.deps[n] {
			if !seen[d] {
				seen[d] = true
				walk(d)
			}
		}
	}
	walk(name)
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	g.byRank(out)
	return out
}

// Externals returns the external modules imported anywhere, sorted.
func (g *Graph) Externals() []string {
	return slices.Clone(g.externals)
}
