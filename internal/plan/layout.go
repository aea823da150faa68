package plan

import (
	"path/filepath"
	"strings"

	"github.com/goplus/swbuild/internal/config"
)

// artifacts lists the files a target produces.
type artifacts struct {
	dir        string
	objects    []string
	module     string // .swiftmodule
	doc        string // .swiftdoc
	sourceInfo string // .swiftsourceinfo
	header     string // interop header
	library    string
	executable string
}

// all returns every artifact path, primary output first.
func (a *artifacts) all() []string {
	var out []string
	add := func(paths ...string) {
		for _, p := range paths {
			if p != "" {
				out = append(out, p)
			}
		}
	}
	add(a.executable, a.library, a.module, a.doc, a.sourceInfo)
	add(a.objects...)
	add(a.header)
	return out
}

// wholeModule reports whether t compiles in whole-module mode.
func wholeModule(t *config.Target) bool {
	if t.WholeModule != nil {
		return *t.WholeModule
	}
	return t.Mode == config.ModeRelease
}

// emitsModule reports whether targets of kind k produce a .swiftmodule
// other targets can import.
func emitsModule(k config.Kind) bool {
	return k == config.KindModule || k.IsLibrary()
}

// emitsObjects reports whether targets of kind k leave object files for
// dependents to link.
func emitsObjects(k config.Kind) bool {
	return k == config.KindObject || k == config.KindModule
}

func objectName(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".o"
}

func libraryName(platform, module string, k config.Kind) string {
	if k == config.KindStaticLibrary {
		if platform == "windows" {
			return module + ".lib"
		}
		return "lib" + module + ".a"
	}
	switch platform {
	case "windows":
		return module + ".dll"
	case "darwin", "ios":
		return "lib" + module + ".dylib"
	}
	return "lib" + module + ".so"
}

func executableName(platform, name string) string {
	if platform == "windows" {
		return name + ".exe"
	}
	return name
}

// layout returns the artifacts of t given its expanded sources.
func (p *Planner) layout(t *config.Target) *artifacts {
	a := &artifacts{dir: p.cfg.OutputDir(t.Name)}
	join := func(name string) string { return filepath.Join(a.dir, name) }

	if emitsObjects(t.Kind) {
		if wholeModule(t) {
			a.objects = []string{join(t.ModuleName + ".o")}
		} else {
			for _, src := range p.sources[t.Name] {
				a.objects = append(a.objects, join(objectName(src)))
			}
		}
	}
	if emitsModule(t.Kind) {
		a.module = join(t.ModuleName + ".swiftmodule")
		a.doc = join(t.ModuleName + ".swiftdoc")
		a.sourceInfo = join(t.ModuleName + ".swiftsourceinfo")
	}
	if t.Kind == config.KindModule && t.CxxInterop && t.WantsInteropHeader() {
		a.header = join(t.InteropHeaderName())
	}
	switch {
	case t.Kind.IsLibrary():
		a.library = join(libraryName(p.cfg.Platform, t.ModuleName, t.Kind))
	case t.Kind == config.KindExecutable:
		a.executable = join(executableName(p.cfg.Platform, t.Name))
	}
	return a
}
