package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/goplus/swbuild/pkgs/mod/module"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
)

// DefaultFile is the configuration file looked up in a project directory.
const DefaultFile = "swbuild.hcl"

// DefaultBuildDir is where artifacts go unless build_dir says otherwise.
const DefaultBuildDir = ".build"

// fileSchema is the HCL shape of a configuration file.
type fileSchema struct {
	Compiler             string          `hcl:"compiler,optional"`
	Platform             string          `hcl:"platform,optional"`
	TargetTriple         string          `hcl:"target_triple,optional"`
	SDKPath              string          `hcl:"sdk_path,optional"`
	BuildDir             string          `hcl:"build_dir,optional"`
	Flags                string          `hcl:"flags,optional"`
	ModuleSearchPaths    []string        `hcl:"module_search_paths,optional"`
	LibrarySearchPaths   []string        `hcl:"library_search_paths,optional"`
	FrameworkSearchPaths []string        `hcl:"framework_search_paths,optional"`
	ExternalModules      []string        `hcl:"external_modules,optional"`
	Prefer               string          `hcl:"prefer,optional"`
	ProbeTimeout         string          `hcl:"probe_timeout,optional"`
	Targets              []*targetSchema `hcl:"target,block"`
}

type targetSchema struct {
	Name              string   `hcl:"name,label"`
	Kind              string   `hcl:"kind"`
	ModuleName        string   `hcl:"module_name,optional"`
	Sources           []string `hcl:"sources"`
	Mode              string   `hcl:"mode,optional"`
	WholeModule       *bool    `hcl:"whole_module,optional"`
	CxxInterop        bool     `hcl:"cxx_interop,optional"`
	InteropHeader     string   `hcl:"interop_header,optional"`
	EmitInteropHeader bool     `hcl:"emit_interop_header,optional"`
	StrictConcurrency bool     `hcl:"strict_concurrency,optional"`
	BareSlashRegex    bool     `hcl:"bare_slash_regex,optional"`
	UpcomingFeatures  []string `hcl:"upcoming_features,optional"`
	DependsOn         []string `hcl:"depends_on,optional"`
	Inputs            []string `hcl:"inputs,optional"`
	LinkLibraries     []string `hcl:"link_libraries,optional"`
	Flags             string   `hcl:"flags,optional"`
}

// Vars are the variables configuration expressions may reference.
type Vars struct {
	HostOS   string
	HostArch string
	Env      map[string]string
}

// HostVars returns the Vars of the running process.
func HostVars() Vars {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return Vars{HostOS: runtime.GOOS, HostArch: runtime.GOARCH, Env: env}
}

func (v Vars) evalContext() *hcl.EvalContext {
	env := cty.MapValEmpty(cty.String)
	if len(v.Env) > 0 {
		m := make(map[string]cty.Value, len(v.Env))
		for k, val := range v.Env {
			m[k] = cty.StringVal(val)
		}
		env = cty.MapVal(m)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"host_os":   cty.StringVal(v.HostOS),
			"host_arch": cty.StringVal(v.HostArch),
			"env":       env,
		},
	}
}

// Load reads and parses the configuration file at path. Relative paths in
// the configuration are resolved against the file's directory.
func Load(fsys afero.Fs, path string) (*Config, error) {
	src, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, &Error{Msg: "reading " + path, Err: err}
	}
	cfg, err := Parse(src, path, HostVars())
	if err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	cfg.Dir = dir
	return cfg, nil
}

// Parse parses an HCL configuration. Unknown attributes and blocks are
// errors, as are invalid enum values and malformed flag strings.
func Parse(src []byte, filename string, vars Vars) (*Config, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, &Error{Msg: "parsing " + filename, Err: diags}
	}
	var root fileSchema
	if diags := gohcl.DecodeBody(file.Body, vars.evalContext(), &root); diags.HasErrors() {
		return nil, &Error{Msg: "decoding " + filename, Err: diags}
	}
	return translate(&root, vars)
}

func translate(s *fileSchema, vars Vars) (*Config, error) {
	cfg := &Config{
		Compiler:             s.Compiler,
		Platform:             s.Platform,
		TargetTriple:         s.TargetTriple,
		SDKPath:              s.SDKPath,
		BuildDir:             s.BuildDir,
		ModuleSearchPaths:    s.ModuleSearchPaths,
		LibrarySearchPaths:   s.LibrarySearchPaths,
		FrameworkSearchPaths: s.FrameworkSearchPaths,
		ExternalModules:      s.ExternalModules,
		Prefer:               Preference(s.Prefer),
	}
	if cfg.Platform == "" {
		cfg.Platform = vars.HostOS
	}
	if cfg.BuildDir == "" {
		cfg.BuildDir = DefaultBuildDir
	}
	switch cfg.Prefer {
	case "":
		cfg.Prefer = PreferLocal
	case PreferLocal, PreferExternal:
	default:
		return nil, Errorf("", "prefer", "must be %q or %q, got %q", PreferLocal, PreferExternal, s.Prefer)
	}
	for _, name := range cfg.ExternalModules {
		if err := module.CheckName(name); err != nil {
			return nil, &Error{Field: "external_modules", Err: err}
		}
	}

	var err error
	if cfg.Flags, err = splitFlags(s.Flags); err != nil {
		return nil, &Error{Field: "flags", Err: err}
	}
	if s.ProbeTimeout != "" {
		d, err := time.ParseDuration(s.ProbeTimeout)
		if err != nil {
			return nil, &Error{Field: "probe_timeout", Err: err}
		}
		if d <= 0 {
			return nil, Errorf("", "probe_timeout", "must be positive, got %s", d)
		}
		cfg.ProbeTimeout = d
	}

	seen := make(map[string]bool)
	for _, ts := range s.Targets {
		if seen[ts.Name] {
			return nil, Errorf(ts.Name, "", "target declared twice")
		}
		seen[ts.Name] = true
		t, err := translateTarget(ts)
		if err != nil {
			return nil, err
		}
		cfg.Targets = append(cfg.Targets, t)
	}
	sort.Slice(cfg.Targets, func(i, j int) bool {
		return cfg.Targets[i].Name < cfg.Targets[j].Name
	})
	return cfg, nil
}

func translateTarget(s *targetSchema) (*Target, error) {
	if s.Name == "" {
		return nil, Errorf("", "target", "empty target name")
	}
	t := &Target{
		Name:              s.Name,
		Kind:              Kind(s.Kind),
		ModuleName:        s.ModuleName,
		Sources:           s.Sources,
		Mode:              Mode(s.Mode),
		WholeModule:       s.WholeModule,
		CxxInterop:        s.CxxInterop,
		InteropHeader:     s.InteropHeader,
		EmitInteropHeader: s.EmitInteropHeader,
		StrictConcurrency: s.StrictConcurrency,
		BareSlashRegex:    s.BareSlashRegex,
		UpcomingFeatures:  s.UpcomingFeatures,
		DependsOn:         s.DependsOn,
		Inputs:            s.Inputs,
		LinkLibraries:     s.LinkLibraries,
	}
	if !kinds[t.Kind] {
		return nil, Errorf(t.Name, "kind", "unknown kind %q", s.Kind)
	}
	switch t.Mode {
	case "":
		t.Mode = ModeDebug
	case ModeDebug, ModeRelease:
	default:
		return nil, Errorf(t.Name, "mode", "must be %q or %q, got %q", ModeDebug, ModeRelease, s.Mode)
	}
	if t.ModuleName == "" {
		t.ModuleName = t.Name
	}
	if err := module.CheckName(t.ModuleName); err != nil {
		return nil, &Error{Target: t.Name, Field: "module_name", Err: err}
	}
	if strings.ContainsAny(t.InteropHeader, `/\`) {
		return nil, Errorf(t.Name, "interop_header", "must be a file name, got %q", t.InteropHeader)
	}
	for _, f := range t.UpcomingFeatures {
		if !module.IsIdent(f) {
			return nil, Errorf(t.Name, "upcoming_features", "invalid feature name %q", f)
		}
	}
	var err error
	if t.Flags, err = splitFlags(s.Flags); err != nil {
		return nil, &Error{Target: t.Name, Field: "flags", Err: err}
	}
	return t, nil
}

func splitFlags(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	args, err := shellwords.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", s, err)
	}
	return args, nil
}
