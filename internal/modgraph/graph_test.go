package modgraph

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/goplus/swbuild/internal/config"
	"github.com/goplus/swbuild/internal/scan"
	"github.com/google/go-cmp/cmp"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func target(name string, deps ...string) *config.Target {
	return &config.Target{
		Name:       name,
		Kind:       config.KindModule,
		ModuleName: name,
		Mode:       config.ModeDebug,
		DependsOn:  deps,
	}
}

func mustScan(t *testing.T, file, src string) *scan.Result {
	t.Helper()
	res, err := scan.Imports(file, []byte(src))
	if err != nil {
		t.Fatalf("scanning %s: %v", file, err)
	}
	return res
}

func TestBuildImportScenario(t *testing.T) {
	targets := []*config.Target{target("App"), target("Foo"), target("Bar")}
	scans := map[string][]*scan.Result{
		"App": {mustScan(t, "main.swift", "import Foo\nimport Bar.Sub\nimport Foundation\n")},
	}
	g, err := Build(targets, scans, Options{Logger: discard})
	if err != nil {
		t.Fatal(err)
	}

	want := []Edge{
		{From: "App", Unit: "main.swift", Module: "Foo", Line: 1, Resolution: Local, Target: "Foo"},
		{From: "App", Unit: "main.swift", Module: "Bar", Line: 2, Resolution: Local, Target: "Bar"},
		{From: "App", Unit: "main.swift", Module: "Foundation", Line: 3, Resolution: External},
	}
	if diff := cmp.Diff(want, g.Edges()); diff != "" {
		t.Errorf("Edges() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Bar", "Foo", "App"}, g.Order()); diff != "" {
		t.Errorf("Order() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Bar", "Foo"}, g.Deps("App")); diff != "" {
		t.Errorf("Deps(App) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"App"}, g.Dependents("Foo")); diff != "" {
		t.Errorf("Dependents(Foo) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Foundation"}, g.Externals()); diff != "" {
		t.Errorf("Externals() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildDuplicateModuleName(t *testing.T) {
	a, b := target("A"), target("B")
	b.ModuleName = "A"
	for _, targets := range [][]*config.Target{{a, b}, {b, a}} {
		_, err := Build(targets, nil, Options{Logger: discard})
		var resErr *ResolutionError
		if !errors.As(err, &resErr) {
			t.Fatalf("err = %v, want *ResolutionError", err)
		}
		if resErr.Module != "A" || !cmp.Equal(resErr.Targets, []string{"A", "B"}) {
			t.Errorf("ResolutionError = %+v", resErr)
		}
	}
}

func TestBuildCycle(t *testing.T) {
	// the cycle is reported the same whatever unrelated targets exist
	for n := 0; n < 5; n++ {
		targets := []*config.Target{target("B"), target("A")}
		for i := 0; i < n; i++ {
			targets = append(targets, target(fmt.Sprintf("Z%d", i), "A"))
		}
		scans := map[string][]*scan.Result{
			"A": {mustScan(t, "a.swift", "import B")},
			"B": {mustScan(t, "b.swift", "import A")},
		}
		_, err := Build(targets, scans, Options{Logger: discard})
		var cycleErr *CycleError
		if !errors.As(err, &cycleErr) {
			t.Fatalf("err = %v, want *CycleError", err)
		}
		if diff := cmp.Diff([]string{"A", "B"}, cycleErr.Path); diff != "" {
			t.Errorf("Path mismatch (-want +got):\n%s", diff)
		}
		if got, want := cycleErr.Error(), "dependency cycle: A -> B -> A"; got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
	}
}

func TestBuildLongCycle(t *testing.T) {
	targets := []*config.Target{target("A", "B"), target("B", "C"), target("C", "A"), target("D", "A")}
	_, err := Build(targets, nil, Options{Logger: discard})
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("err = %v, want *CycleError", err)
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, cycleErr.Path); diff != "" {
		t.Errorf("Path mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPrefer(t *testing.T) {
	targets := []*config.Target{target("App"), target("Logging")}
	scans := map[string][]*scan.Result{
		"App": {mustScan(t, "main.swift", "import Logging")},
	}
	tests := []struct {
		prefer config.Preference
		want   Resolution
	}{
		{"", Local},
		{config.PreferLocal, Local},
		{config.PreferExternal, External},
	}
	for _, tt := range tests {
		g, err := Build(targets, scans, Options{Prefer: tt.prefer, External: []string{"Logging"}, Logger: discard})
		if err != nil {
			t.Fatal(err)
		}
		if got := g.Edges()[0].Resolution; got != tt.want {
			t.Errorf("prefer %q: resolution = %v, want %v", tt.prefer, got, tt.want)
		}
	}

	// not listed as external: always local
	g, err := Build(targets, scans, Options{Prefer: config.PreferExternal, Logger: discard})
	if err != nil {
		t.Fatal(err)
	}
	if got := g.Edges()[0].Resolution; got != Local {
		t.Errorf("resolution = %v, want local", got)
	}
}

func TestBuildSelfImportAndConditional(t *testing.T) {
	targets := []*config.Target{target("Core"), target("UIKitSupport")}
	src := "import Core\n#if canImport(UIKitSupport)\nimport Foundation\n#endif\n"
	scans := map[string][]*scan.Result{"Core": {mustScan(t, "core.swift", src)}}
	g, err := Build(targets, scans, Options{Logger: discard})
	if err != nil {
		t.Fatal(err)
	}
	if deps := g.Deps("Core"); len(deps) != 0 {
		t.Errorf("Deps(Core) = %v, want none", deps)
	}
	if diff := cmp.Diff([]string{"Foundation"}, g.Externals()); diff != "" {
		t.Errorf("Externals() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildDependsOn(t *testing.T) {
	targets := []*config.Target{target("App", "Net"), target("Net", "Base"), target("Base")}
	g, err := Build(targets, nil, Options{Logger: discard})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Base", "Net"}, g.TransitiveDeps("App")); diff != "" {
		t.Errorf("TransitiveDeps(App) mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range [][]*config.Target{
		{target("App", "Missing")},
		{target("App", "App")},
	} {
		_, err := Build(bad, nil, Options{Logger: discard})
		var cfgErr *config.Error
		if !errors.As(err, &cfgErr) || cfgErr.Field != "depends_on" {
			t.Errorf("err = %v, want depends_on configuration error", err)
		}
	}
}

func TestBuildOrderIndependentOfInput(t *testing.T) {
	mk := func() []*config.Target {
		return []*config.Target{target("D", "B", "C"), target("C", "A"), target("B", "A"), target("A")}
	}
	first, err := Build(mk(), nil, Options{Logger: discard})
	if err != nil {
		t.Fatal(err)
	}
	reversed := mk()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	second, err := Build(reversed, nil, Options{Logger: discard})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first.Order(), second.Order()); diff != "" {
		t.Errorf("Order() depends on input order (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A", "B", "C", "D"}, first.Order()); diff != "" {
		t.Errorf("Order() mismatch (-want +got):\n%s", diff)
	}
}
