package plan

import (
	"path/filepath"
	"slices"

	"github.com/goplus/swbuild/internal/config"
	"github.com/goplus/swbuild/internal/probe"
)

const (
	flagInteropMode         = "-cxx-interoperability-mode=default"
	flagInteropExperimental = "-enable-experimental-cxx-interop"
	flagClangHeader         = "-emit-clang-header-path"
	flagObjCHeader          = "-emit-objc-header-path"
	flagStrictConcurrency   = "-strict-concurrency=complete"
	flagBareSlashRegex      = "-enable-bare-slash-regex"
	flagUpcomingFeature     = "-enable-upcoming-feature"
)

// builder composes the flags of one target.
type builder struct {
	p *Planner
	t *config.Target
	r *probe.Result
	a *artifacts

	action     []string
	stages     []StageFlags
	output     []string
	linkInputs []string
	implicit   []string
	omitted    []string
}

func (b *builder) compose() {
	b.action = b.actionFlags()
	for _, s := range Stages {
		var args []string
		switch s {
		case StageGlobal:
			args = b.global()
		case StagePlatform:
			args = b.platform()
		case StageMode:
			args = b.mode()
		case StageCapability:
			args = b.capability()
		case StageDependency:
			args = b.dependency()
		case StageOverride:
			args = slices.Clone(b.t.Flags)
		}
		b.stages = append(b.stages, StageFlags{Stage: s, Args: args})
	}
	b.output = b.outputFlags()
}

func (b *builder) actionFlags() []string {
	t := b.t
	var args []string
	switch t.Kind {
	case config.KindObject:
		args = []string{"-c", "-parse-as-library"}
	case config.KindModule:
		args = []string{"-c", "-emit-module", "-parse-as-library"}
	case config.KindStaticLibrary:
		args = []string{"-emit-library", "-static", "-emit-module", "-parse-as-library"}
	case config.KindSharedLibrary:
		args = []string{"-emit-library", "-emit-module", "-parse-as-library"}
	case config.KindExecutable:
		args = []string{"-emit-executable"}
	}
	return append(args, "-module-name", t.ModuleName)
}

func (b *builder) global() []string {
	cfg := b.p.cfg
	args := append([]string(nil), cfg.Flags...)
	for _, dir := range absAll(cfg, cfg.ModuleSearchPaths) {
		args = append(args, "-I", dir)
	}
	for _, dir := range absAll(cfg, cfg.FrameworkSearchPaths) {
		args = append(args, "-F", dir)
	}
	for _, dir := range absAll(cfg, cfg.LibrarySearchPaths) {
		args = append(args, "-L", dir)
	}
	return args
}

func (b *builder) platform() []string {
	cfg := b.p.cfg
	var args []string
	if cfg.TargetTriple != "" {
		args = append(args, "-target", cfg.TargetTriple)
	}
	if cfg.SDKPath != "" {
		args = append(args, "-sdk", cfg.SDKPath)
	}
	if cfg.Platform == "darwin" && b.t.CxxInterop && b.t.Kind.Links() {
		args = append(args, "-L", filepath.Join(cfg.SDKPath, "usr", "lib", "swift"), "-lswiftCore")
	}
	return args
}

func (b *builder) mode() []string {
	var args []string
	switch b.t.Mode {
	case config.ModeRelease:
		args = []string{"-O"}
	default:
		args = []string{"-Onone", "-g", "-DDEBUG"}
	}
	switch {
	case b.t.WholeModule == nil:
		if b.t.Mode == config.ModeRelease {
			args = append(args, "-wmo")
		}
	case *b.t.WholeModule:
		args = append(args, "-wmo")
	default:
		args = append(args, "-no-whole-module-optimization")
	}
	return args
}

// interopFlag returns the flag enabling C++ interoperability, preferring
// the stable spelling when the compiler knows it.
func (b *builder) interopFlag() string {
	if b.r.Has(probe.CxxInteropMode) {
		return flagInteropMode
	}
	return flagInteropExperimental
}

// interopModeOmitted reports the stable interop flag as omitted when the
// fallback spelling is used.
func (b *builder) interopModeOmitted() {
	if !b.r.Has(probe.CxxInteropMode) {
		b.omitted = append(b.omitted, flagInteropMode)
	}
}

func (b *builder) capability() []string {
	t := b.t
	var args []string
	gated := func(c probe.Capability, flags ...string) {
		if b.r.Has(c) {
			args = append(args, flags...)
		} else {
			b.omitted = append(b.omitted, flags...)
		}
	}
	if t.CxxInterop {
		args = append(args, b.interopFlag())
		b.interopModeOmitted()
	}
	if t.StrictConcurrency {
		gated(probe.ConcurrencySyntax, flagStrictConcurrency)
	}
	if t.BareSlashRegex {
		gated(probe.RegexLiterals, flagBareSlashRegex)
	}
	for _, f := range t.UpcomingFeatures {
		gated(probe.UpcomingFeatures, flagUpcomingFeature, f)
	}
	return args
}

// dependency adds search paths and link flags for local dependencies.
// Modules of all transitive dependencies must be visible to the compiler;
// interop is enabled only when a direct dependency has it.
func (b *builder) dependency() []string {
	p, t := b.p, b.t
	var args []string
	deps := p.graph.TransitiveDeps(t.Name)
	layouts := make(map[string]*artifacts, len(deps))
	for _, name := range deps {
		layouts[name] = p.layout(p.graph.Target(name))
	}

	for _, name := range deps {
		dt, da := p.graph.Target(name), layouts[name]
		if emitsModule(dt.Kind) {
			args = append(args, "-I", da.dir)
			b.implicit = append(b.implicit, da.module)
		}
	}
	if t.Kind.Links() {
		for _, name := range deps {
			dt, da := p.graph.Target(name), layouts[name]
			switch {
			case dt.Kind.IsLibrary():
				args = append(args, "-L", da.dir, "-l"+dt.ModuleName)
				b.implicit = append(b.implicit, da.library)
			case emitsObjects(dt.Kind):
				b.linkInputs = append(b.linkInputs, da.objects...)
				b.implicit = append(b.implicit, da.objects...)
			}
		}
		for _, lib := range t.LinkLibraries {
			args = append(args, "-l"+lib)
		}
	}
	if !t.CxxInterop {
		for _, name := range p.graph.Deps(t.Name) {
			if p.graph.Target(name).CxxInterop {
				args = append(args, b.interopFlag())
				break
			}
		}
	}
	for _, name := range deps {
		if da := layouts[name]; da.header != "" {
			args = append(args, "-Xcc", "-I"+da.dir)
			b.implicit = append(b.implicit, da.header)
		}
	}
	return args
}

func (b *builder) outputFlags() []string {
	t, a := b.t, b.a
	var args []string
	if a.module != "" {
		args = append(args,
			"-emit-module-path", a.module,
			"-emit-module-doc-path", a.doc,
			"-emit-module-source-info-path", a.sourceInfo,
		)
	}
	if a.header != "" {
		if b.r.Has(probe.ClangHeaderPath) {
			args = append(args, flagClangHeader, a.header)
		} else {
			args = append(args, flagObjCHeader, a.header)
			b.omitted = append(b.omitted, flagClangHeader)
		}
	}
	switch {
	case a.library != "":
		args = append(args, "-o", a.library)
	case a.executable != "":
		args = append(args, "-o", a.executable)
	case emitsObjects(t.Kind) && wholeModule(t):
		args = append(args, "-o", a.objects[0])
	}
	return args
}
