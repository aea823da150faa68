// Package host defines the interface of the build engine that schedules and
// runs the planned compiler commands, and an in-memory implementation that
// records them as a manifest.
package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ManifestFile is the file Memory.Save writes.
const ManifestFile = "nodes.json"

// Node is a build step declared to the engine.
type Node struct {
	ID       string   `json:"id"`
	Target   string   `json:"target"`
	Artifact string   `json:"artifact"`
	Command  []string `json:"command"`
	WorkDir  string   `json:"work_dir"`
	Inputs   []string `json:"inputs"`
	Outputs  []string `json:"outputs"`

	// After lists the IDs of nodes that must complete first.
	After []string `json:"after,omitempty"`
}

// Engine is the registration API of a host build engine.
type Engine interface {
	// Register declares a node. Nodes it runs after must already be
	// registered.
	Register(n *Node) error

	// Lookup returns the registered node producing output.
	Lookup(output string) (*Node, bool)
}

var (
	ErrDuplicateNode = errors.New("node already registered")
	ErrOutputClaimed = errors.New("output produced by another node")
	ErrUnknownNode   = errors.New("unknown node")
)

// Memory is an Engine keeping registered nodes in memory.
type Memory struct {
	buildID string
	created time.Time

	mu       sync.Mutex
	nodes    []*Node
	byID     map[string]*Node
	byOutput map[string]*Node
}

// NewMemory returns an empty Memory with a fresh build id.
func NewMemory() *Memory {
	return &Memory{
		buildID:  uuid.NewString(),
		created:  time.Now(),
		byID:     make(map[string]*Node),
		byOutput: make(map[string]*Node),
	}
}

// BuildID identifies the build the nodes belong to.
func (m *Memory) BuildID() string {
	return m.buildID
}

func (m *Memory) Register(n *Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[n.ID]; ok {
		return fmt.Errorf("registering %s: %w", n.ID, ErrDuplicateNode)
	}
	for _, out := range n.Outputs {
		if other, ok := m.byOutput[out]; ok {
			return fmt.Errorf("registering %s: %s: %w %s", n.ID, out, ErrOutputClaimed, other.ID)
		}
	}
	for _, id := range n.After {
		if _, ok := m.byID[id]; !ok {
			return fmt.Errorf("registering %s: runs after %s: %w", n.ID, id, ErrUnknownNode)
		}
	}
	m.nodes = append(m.nodes, n)
	m.byID[n.ID] = n
	for _, out := range n.Outputs {
		m.byOutput[out] = n
	}
	return nil
}

func (m *Memory) Lookup(output string) (*Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.byOutput[output]
	return n, ok
}

// Nodes returns the registered nodes in registration order.
func (m *Memory) Nodes() []*Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.nodes)
}

// Manifest is the saved form of a Memory.
type Manifest struct {
	BuildID string    `json:"build_id"`
	Created time.Time `json:"created"`
	Nodes   []*Node   `json:"nodes"`
}

// Save writes the registered nodes to dir/nodes.json.
func (m *Memory) Save(fs afero.Fs, dir string) error {
	manifest := &Manifest{BuildID: m.buildID, Created: m.created, Nodes: m.Nodes()}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, filepath.Join(dir, ManifestFile), data, 0o644)
}

// LoadManifest reads a manifest written by Save.
func LoadManifest(fs afero.Fs, path string) (*Manifest, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &manifest, nil
}
