// Package config defines the build configuration: the compiler, global
// search paths and flags, and the targets to build. Every recognized option
// is a field here; configuration files are decoded strictly, so unknown keys
// are errors.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Kind is the kind of artifact a target produces.
type Kind string

const (
	KindObject        Kind = "object"
	KindStaticLibrary Kind = "static_library"
	KindSharedLibrary Kind = "shared_library"
	KindExecutable    Kind = "executable"
	KindModule        Kind = "module" // module interface
)

var kinds = map[Kind]bool{
	KindObject:        true,
	KindStaticLibrary: true,
	KindSharedLibrary: true,
	KindExecutable:    true,
	KindModule:        true,
}

// IsLibrary reports whether k produces a linkable library.
func (k Kind) IsLibrary() bool {
	return k == KindStaticLibrary || k == KindSharedLibrary
}

// Links reports whether building k runs the linker.
func (k Kind) Links() bool {
	return k.IsLibrary() || k == KindExecutable
}

// Mode is the optimization mode.
type Mode string

const (
	ModeDebug   Mode = "debug"
	ModeRelease Mode = "release"
)

// Preference decides how a module name that is both built locally and
// available as an external system module resolves.
type Preference string

const (
	PreferLocal    Preference = "local"
	PreferExternal Preference = "external"
)

// Config is a loaded build configuration.
type Config struct {
	// Dir is the directory relative paths are resolved against.
	Dir string

	Compiler     string
	Platform     string // GOOS-style name, e.g. "darwin", "linux"
	TargetTriple string
	SDKPath      string
	BuildDir     string
	Flags        []string

	ModuleSearchPaths    []string
	LibrarySearchPaths   []string
	FrameworkSearchPaths []string

	ExternalModules []string
	Prefer          Preference
	ProbeTimeout    time.Duration

	Targets []*Target
}

// Target is the configuration of one build target.
type Target struct {
	Name       string
	Kind       Kind
	ModuleName string
	Sources    []string // glob patterns, relative to Config.Dir
	Mode       Mode

	// WholeModule overrides the mode's default when not nil.
	WholeModule *bool

	CxxInterop        bool
	InteropHeader     string
	EmitInteropHeader bool

	StrictConcurrency bool
	BareSlashRegex    bool
	UpcomingFeatures  []string

	DependsOn     []string
	Inputs        []string
	LinkLibraries []string

	// Flags are user overrides, applied last.
	Flags []string
}

// Target returns the target called name, or nil.
func (c *Config) Target(name string) *Target {
	for _, t := range c.Targets {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Abs resolves path against c.Dir.
func (c *Config) Abs(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// OutputDir returns the absolute directory artifacts of target go to.
func (c *Config) OutputDir(target string) string {
	return filepath.Join(c.Abs(c.BuildDir), target)
}

// WantsInteropHeader reports whether the target asks for an interop header.
func (t *Target) WantsInteropHeader() bool {
	return t.EmitInteropHeader || t.InteropHeader != ""
}

// InteropHeaderName returns the configured header name, defaulting to
// "<Module>-Swift.h".
func (t *Target) InteropHeaderName() string {
	if t.InteropHeader != "" {
		return t.InteropHeader
	}
	return t.ModuleName + "-Swift.h"
}

// Error is a configuration error: an illegal value or combination of values.
type Error struct {
	Target string // empty for global options
	Field  string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	s := "configuration"
	if e.Target != "" {
		s += fmt.Sprintf(": target %q", e.Target)
	}
	if e.Field != "" {
		s += ": " + e.Field
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf returns a configuration *Error for field of target.
func Errorf(target, field, format string, args ...any) *Error {
	return &Error{Target: target, Field: field, Msg: fmt.Sprintf(format, args...)}
}
