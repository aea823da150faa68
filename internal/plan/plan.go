// Package plan turns configured targets into compiler invocations.
//
// Flags are composed in a fixed order of stages, each able to override the
// ones before it:
//
//	global → platform → mode → capability → dependency → user-override
//
// The argument vector of a target is the compiler, the action flags of its
// kind, the stages in that order, the output flags and finally its inputs.
// Identical configuration always yields identical argument vectors.
package plan

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"al.essio.dev/pkg/shellescape"
	"github.com/goplus/swbuild/internal/config"
	"github.com/goplus/swbuild/internal/modgraph"
	"github.com/goplus/swbuild/internal/probe"
	"golang.org/x/sync/errgroup"
)

// Prober reports what a compiler supports. *probe.Cache implements it.
type Prober interface {
	Probe(ctx context.Context, id probe.Identity) *probe.Result
}

// Stage is a step of flag composition.
type Stage string

const (
	StageGlobal     Stage = "global"
	StagePlatform   Stage = "platform"
	StageMode       Stage = "mode"
	StageCapability Stage = "capability"
	StageDependency Stage = "dependency"
	StageOverride   Stage = "user-override"
)

// Stages lists the stages in composition order.
var Stages = []Stage{StageGlobal, StagePlatform, StageMode, StageCapability, StageDependency, StageOverride}

// StageFlags are the flags contributed by one stage.
type StageFlags struct {
	Stage Stage
	Args  []string
}

// ID identifies an invocation to the host engine.
type ID struct {
	Target   string
	Artifact config.Kind
	Output   string // primary output
}

func (id ID) String() string {
	return fmt.Sprintf("%s:%s:%s", id.Target, id.Artifact, id.Output)
}

// Invocation is a planned compiler command. It is immutable once returned.
type Invocation struct {
	ID      ID
	Args    []string
	WorkDir string

	Outputs  []string
	Inputs   []string // sources and configured inputs
	Implicit []string // artifacts of local dependencies

	// Deps are the local targets this one depends on directly.
	Deps []string

	Stages []StageFlags

	// Omitted lists capability-gated flags left out because the compiler
	// lacks the capability.
	Omitted []string

	Probe *probe.Result
}

// String returns the command line, quoted for a POSIX shell.
func (inv *Invocation) String() string {
	return shellescape.QuoteCommand(inv.Args)
}

// StageArgs returns the flags contributed by stage s.
func (inv *Invocation) StageArgs(s Stage) []string {
	for _, sf := range inv.Stages {
		if sf.Stage == s {
			return sf.Args
		}
	}
	return nil
}

// Planner plans the invocations of the targets of a resolved graph.
type Planner struct {
	cfg     *config.Config
	graph   *modgraph.Graph
	sources map[string][]string
	prober  Prober
	logger  *slog.Logger

	mu       sync.Mutex
	warned   map[string]bool
	warnings []*probe.DegradedError
}

// New returns a Planner. sources maps target names to their expanded,
// sorted source files. A nil logger means slog.Default().
func New(cfg *config.Config, g *modgraph.Graph, sources map[string][]string, prober Prober, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		cfg:     cfg,
		graph:   g,
		sources: sources,
		prober:  prober,
		logger:  logger,
		warned:  make(map[string]bool),
	}
}

// Identity returns the compiler identity the planner probes.
func (p *Planner) Identity() probe.Identity {
	id := probe.Identity{Compiler: p.cfg.Compiler}
	if p.cfg.TargetTriple != "" {
		id.Flags = append(id.Flags, "-target", p.cfg.TargetTriple)
	}
	if p.cfg.SDKPath != "" {
		id.Flags = append(id.Flags, "-sdk", p.cfg.SDKPath)
	}
	return id
}

// Warnings returns one warning per compiler identity whose probe degraded.
func (p *Planner) Warnings() []*probe.DegradedError {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.warnings)
}

func (p *Planner) probe(ctx context.Context) *probe.Result {
	id := p.Identity()
	r := p.prober.Probe(ctx, id)
	if r.Warning != nil {
		p.mu.Lock()
		if key := id.Key(); !p.warned[key] {
			p.warned[key] = true
			p.warnings = append(p.warnings, r.Warning)
		}
		p.mu.Unlock()
	}
	return r
}

// PlanAll plans every target of the graph concurrently and returns the
// invocations in build order.
func (p *Planner) PlanAll(ctx context.Context) ([]*Invocation, error) {
	order := p.graph.Order()
	invs := make([]*Invocation, len(order))
	g, ctx := errgroup.WithContext(ctx)
	for i, name := range order {
		i, name := i, name
		g.Go(func() error {
			inv, err := p.Plan(ctx, name)
			if err != nil {
				return err
			}
			invs[i] = inv
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	p.logger.Info("planned invocations", "targets", len(invs))
	return invs, nil
}

// Plan plans the invocation building target name. Illegal combinations of
// options are reported as *config.Error.
func (p *Planner) Plan(ctx context.Context, name string) (*Invocation, error) {
	t := p.graph.Target(name)
	if t == nil {
		return nil, fmt.Errorf("plan: unknown target %q", name)
	}
	if err := p.check(t); err != nil {
		return nil, err
	}

	r := p.probe(ctx)
	a := p.layout(t)
	b := &builder{p: p, t: t, r: r, a: a}
	b.compose()

	inv := &Invocation{
		ID:       ID{Target: t.Name, Artifact: t.Kind, Output: a.all()[0]},
		WorkDir:  a.dir,
		Outputs:  a.all(),
		Deps:     p.graph.Deps(t.Name),
		Stages:   b.stages,
		Omitted:  b.omitted,
		Implicit: b.implicit,
		Probe:    r,
	}
	inv.Args = append(inv.Args, p.cfg.Compiler)
	inv.Args = append(inv.Args, b.action...)
	for _, sf := range b.stages {
		inv.Args = append(inv.Args, sf.Args...)
	}
	inv.Args = append(inv.Args, b.output...)
	inv.Args = append(inv.Args, p.sources[t.Name]...)
	inv.Args = append(inv.Args, b.linkInputs...)

	inv.Inputs = slices.Clone(p.sources[t.Name])
	for _, in := range t.Inputs {
		inv.Inputs = append(inv.Inputs, p.cfg.Abs(in))
	}

	p.logger.Debug("planned target", "target", t.Name, "kind", t.Kind, "args", len(inv.Args), "omitted", len(inv.Omitted))
	return inv, nil
}

// check reports option combinations no compiler invocation could honor.
func (p *Planner) check(t *config.Target) error {
	if p.cfg.Compiler == "" {
		return config.Errorf("", "compiler", "no compiler configured")
	}
	if p.cfg.Platform == "darwin" && p.cfg.SDKPath == "" {
		return config.Errorf("", "sdk_path", "platform darwin requires an SDK path")
	}
	srcs := p.sources[t.Name]
	if len(srcs) == 0 {
		return config.Errorf(t.Name, "sources", "no source files")
	}
	if t.WantsInteropHeader() {
		if !t.CxxInterop {
			return config.Errorf(t.Name, "interop_header", "interop header requested without cxx_interop")
		}
		if t.Kind != config.KindModule {
			return config.Errorf(t.Name, "interop_header", "interop headers are only generated for module targets, not %s", t.Kind)
		}
	}
	if emitsObjects(t.Kind) && !wholeModule(t) {
		seen := make(map[string]string, len(srcs))
		for _, src := range srcs {
			obj := objectName(src)
			if prev, ok := seen[obj]; ok {
				return config.Errorf(t.Name, "sources", "%s and %s both compile to %s", prev, src, obj)
			}
			seen[obj] = src
		}
	}
	return nil
}

func absAll(cfg *config.Config, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Clean(cfg.Abs(p))
	}
	return out
}
