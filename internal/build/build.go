// Package build drives a build: it expands the sources of every target,
// scans them in parallel, resolves the module graph, plans the compiler
// invocations and declares them to the host engine.
package build

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goplus/swbuild/internal/config"
	"github.com/goplus/swbuild/internal/env"
	"github.com/goplus/swbuild/internal/export"
	"github.com/goplus/swbuild/internal/host"
	"github.com/goplus/swbuild/internal/modgraph"
	"github.com/goplus/swbuild/internal/par"
	"github.com/goplus/swbuild/internal/plan"
	"github.com/goplus/swbuild/internal/probe"
	"github.com/goplus/swbuild/internal/scan"
	"github.com/qiniu/x/errors"
	"github.com/spf13/afero"
)

// Options configure a Builder.
type Options struct {
	// Fs holds the sources. Nil means the OS file system.
	Fs afero.Fs

	// Prober answers capability queries. Nil means a fresh probe.Cache
	// using the configured probe timeout.
	Prober plan.Prober

	// Jobs bounds parallel scanning. Non-positive means GOMAXPROCS.
	Jobs int

	Logger *slog.Logger
}

// Builder runs the phases of one build. A Builder is used once.
type Builder struct {
	cfg    *config.Config
	fs     afero.Fs
	prober plan.Prober
	jobs   int
	logger *slog.Logger
}

// Unit is a source file of a target.
type Unit struct {
	Target string
	Path   string
}

// Result is what the phases of a build produced.
type Result struct {
	Sources map[string][]string       // target name -> sorted source files
	Scans   map[string][]*scan.Result // target name -> scans, in Sources order
	Graph   *modgraph.Graph

	Invocations []*plan.Invocation // in build order; nil before planning
	Warnings    []*probe.DegradedError
}

// NewBuilder returns a Builder for cfg.
func NewBuilder(cfg *config.Config, opts Options) *Builder {
	b := &Builder{cfg: cfg, fs: opts.Fs, prober: opts.Prober, jobs: opts.Jobs, logger: opts.Logger}
	if b.fs == nil {
		b.fs = afero.NewOsFs()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.prober == nil {
		b.prober = probe.New(nil, cfg.ProbeTimeout, b.logger)
	}
	if b.jobs <= 0 {
		b.jobs = runtime.GOMAXPROCS(0)
	}
	return b
}

// Toolchain fills in the compiler and SDK of cfg from the environment
// when the configuration leaves them empty. A configured compiler is
// resolved to an absolute path, relative to the configuration directory.
func Toolchain(ctx context.Context, cfg *config.Config, runner probe.Runner) error {
	var err error
	if cfg.Compiler == "" {
		cfg.Compiler, err = env.Compiler()
	} else {
		cfg.Compiler, err = env.Resolve(cfg.Dir, cfg.Compiler)
	}
	if err != nil {
		return err
	}
	if cfg.SDKPath == "" {
		sdk, err := env.SDKPath(ctx, cfg.Platform, runner)
		if err != nil {
			return err
		}
		cfg.SDKPath = sdk
	}
	return nil
}

// Resolve expands and scans the sources of every target and resolves the
// module graph. Scanning finishes for all targets before resolution starts.
func (b *Builder) Resolve(ctx context.Context) (*Result, error) {
	sources, err := b.Sources()
	if err != nil {
		return nil, err
	}
	scans, err := b.Scan(ctx, sources)
	if err != nil {
		return nil, err
	}
	g, err := modgraph.Build(b.cfg.Targets, scans, modgraph.Options{
		Prefer:   b.cfg.Prefer,
		External: b.cfg.ExternalModules,
		Logger:   b.logger,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Sources: sources, Scans: scans, Graph: g}, nil
}

// Plan resolves the graph and plans every target.
func (b *Builder) Plan(ctx context.Context) (*Result, error) {
	res, err := b.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	p := plan.New(b.cfg, res.Graph, res.Sources, b.prober, b.logger)
	if res.Invocations, err = p.PlanAll(ctx); err != nil {
		return nil, err
	}
	res.Warnings = p.Warnings()
	return res, nil
}

// Build plans every target and declares the invocations to eng.
func (b *Builder) Build(ctx context.Context, eng host.Engine) (*Result, error) {
	res, err := b.Plan(ctx)
	if err != nil {
		return nil, err
	}
	if err := export.Export(res.Graph, res.Invocations, eng, b.logger); err != nil {
		return nil, err
	}
	b.logger.Info("exported build graph", "nodes", len(res.Invocations), "degraded_probes", len(res.Warnings))
	return res, nil
}

// Sources expands the source patterns of every target, relative to the
// configuration directory. Patterns without glob characters name a file
// that must exist; it is kept even when missing so that scanning reports it.
func (b *Builder) Sources() (map[string][]string, error) {
	dir, err := filepath.Abs(b.cfg.Dir)
	if err != nil {
		return nil, err
	}
	fsys := afero.NewIOFS(afero.NewBasePathFs(b.fs, dir))
	out := make(map[string][]string, len(b.cfg.Targets))
	for _, t := range b.cfg.Targets {
		seen := make(map[string]bool)
		var files []string
		for _, pattern := range t.Sources {
			if filepath.IsAbs(pattern) {
				return nil, config.Errorf(t.Name, "sources", "pattern %q must be relative", pattern)
			}
			pattern = filepath.ToSlash(filepath.Clean(pattern))
			if !doublestar.ValidatePattern(pattern) {
				return nil, config.Errorf(t.Name, "sources", "invalid pattern %q", pattern)
			}
			var matches []string
			if strings.ContainsAny(pattern, "*?[{\\") {
				var err error
				matches, err = doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
				if err != nil {
					return nil, &config.Error{Target: t.Name, Field: "sources", Err: err}
				}
			} else {
				matches = []string{pattern}
			}
			for _, m := range matches {
				path := filepath.Join(dir, filepath.FromSlash(m))
				if !seen[path] {
					seen[path] = true
					files = append(files, path)
				}
			}
		}
		sort.Strings(files)
		out[t.Name] = files
		b.logger.Debug("expanded sources", "target", t.Name, "files", len(files))
	}
	return out, nil
}

// Scan reads and scans every source file in parallel. All scan errors are
// reported together.
func (b *Builder) Scan(ctx context.Context, sources map[string][]string) (map[string][]*scan.Result, error) {
	index := make(map[Unit]int)
	scans := make(map[string][]*scan.Result, len(sources))
	var w par.Work[Unit]
	for target, files := range sources {
		scans[target] = make([]*scan.Result, len(files))
		for i, path := range files {
			u := Unit{Target: target, Path: path}
			index[u] = i
			w.Add(u)
		}
	}

	var (
		mu   sync.Mutex
		errs errors.List
	)
	w.Do(b.jobs, func(u Unit) {
		res, err := b.scanUnit(ctx, u)
		mu.Lock()
		defer mu.Unlock()
		scans[u.Target][index[u]] = res
		if list, ok := err.(errors.List); ok {
			for _, e := range list {
				errs.Add(e)
			}
		} else if err != nil {
			errs.Add(err)
		}
	})
	if len(errs) > 0 {
		sort.SliceStable(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
		return nil, errs.ToError()
	}
	return scans, nil
}

func (b *Builder) scanUnit(ctx context.Context, u Unit) (*scan.Result, error) {
	if err := ctx.Err(); err != nil {
		return &scan.Result{File: u.Path}, err
	}
	src, err := afero.ReadFile(b.fs, u.Path)
	if err != nil {
		return &scan.Result{File: u.Path}, &scan.Error{File: u.Path, Msg: "unreadable source", Err: err}
	}
	res, err := scan.Imports(u.Path, src)
	if err != nil {
		return res, err
	}
	b.logger.Debug("scanned unit", "target", u.Target, "file", u.Path, "imports", len(res.Imports))
	return res, nil
}

// Describe returns a one-line summary of res for logs.
func (res *Result) Describe() string {
	units := 0
	for _, files := range res.Sources {
		units += len(files)
	}
	return fmt.Sprintf("%d targets, %d units, %d external modules", len(res.Sources), units, len(res.Graph.Externals()))
}
