package host

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

func TestMemoryRegister(t *testing.T) {
	m := NewMemory()
	core := &Node{ID: "Core", Outputs: []string{"/b/Core.swiftmodule", "/b/Core.o"}}
	app := &Node{ID: "App", Outputs: []string{"/b/App"}, After: []string{"Core"}}
	if err := m.Register(core); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(app); err != nil {
		t.Fatal(err)
	}
	if n, ok := m.Lookup("/b/Core.o"); !ok || n != core {
		t.Errorf("Lookup(Core.o) = %v, %v", n, ok)
	}
	if _, ok := m.Lookup("/b/missing"); ok {
		t.Error("Lookup of an unknown output succeeded")
	}
	if got := m.Nodes(); len(got) != 2 || got[0] != core || got[1] != app {
		t.Errorf("Nodes() = %v", got)
	}
}

func TestMemoryRegisterErrors(t *testing.T) {
	m := NewMemory()
	if err := m.Register(&Node{ID: "A", Outputs: []string{"/b/a.o"}}); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		node *Node
		want error
	}{
		{&Node{ID: "A"}, ErrDuplicateNode},
		{&Node{ID: "B", Outputs: []string{"/b/a.o"}}, ErrOutputClaimed},
		{&Node{ID: "C", After: []string{"Z"}}, ErrUnknownNode},
	}
	for _, tt := range tests {
		if err := m.Register(tt.node); !errors.Is(err, tt.want) {
			t.Errorf("Register(%s) = %v, want %v", tt.node.ID, err, tt.want)
		}
	}
	if n := len(m.Nodes()); n != 1 {
		t.Errorf("%d nodes registered after failures, want 1", n)
	}
}

func TestSaveAndLoadManifest(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := NewMemory()
	if _, err := uuid.Parse(m.BuildID()); err != nil {
		t.Fatalf("BuildID %q: %v", m.BuildID(), err)
	}
	node := &Node{
		ID:       "Core:module:/b/Core.swiftmodule",
		Target:   "Core",
		Artifact: "module",
		Command:  []string{"swiftc", "-c"},
		WorkDir:  "/b",
		Inputs:   []string{"/s/a.swift"},
		Outputs:  []string{"/b/Core.swiftmodule"},
	}
	if err := m.Register(node); err != nil {
		t.Fatal(err)
	}
	if err := m.Save(fs, "/out"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	manifest, err := LoadManifest(fs, filepath.Join("/out", ManifestFile))
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if manifest.BuildID != m.BuildID() {
		t.Errorf("BuildID = %q, want %q", manifest.BuildID, m.BuildID())
	}
	if diff := cmp.Diff([]*Node{node}, manifest.Nodes); diff != "" {
		t.Errorf("Nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := LoadManifest(fs, "/not_exist.json"); err == nil {
		t.Error("expected error for non-existent file")
	}
	if err := afero.WriteFile(fs, "/bad.json", []byte("invalid json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(fs, "/bad.json"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
