// Package lineage implements the Lineage Tracker of spec.md §4.4: an
// append-only genealogy graph keyed by agent id.
package lineage

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/evoforge/evoforge/internal/dna"
)

// ErrUnknownParent is an InvariantViolation (spec §7): registering a child
// whose parent id isn't already in the tracker is a programmer error.
var ErrUnknownParent = errors.New("lineage: unknown parent id")

// ErrUnknownAgent is returned by traversals given an id never registered.
var ErrUnknownAgent = errors.New("lineage: unknown agent id")

// EpigeneticMemory is written only by the orchestrator on spawn.
type EpigeneticMemory struct {
	Insights        []string `json:"insights"`
	LearnedPatterns []string `json:"learnedPatterns"`
	AvoidedMistakes []string `json:"avoidedMistakes"`
}

// Node is one entry in the lineage DAG.
type Node struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	ParentIDs  []string         `json:"parentIds"`
	ChildIDs   []string         `json:"childIds"`
	Depth      int              `json:"depth"`
	BirthOrder int              `json:"birthOrder"`
	Generation int              `json:"generation"`
	BornAt     time.Time        `json:"bornAt"`
	Memory     EpigeneticMemory `json:"memory"`
}

// Tracker owns the append-only genealogy graph for one run.
type Tracker struct {
	mu         sync.RWMutex
	nodes      map[string]*Node
	birthOrder int
	logger     *slog.Logger
}

// New builds an empty Tracker.
func New(logger *slog.Logger) *Tracker {
	return &Tracker{
		nodes:  make(map[string]*Node),
		logger: logger.With("component", "lineage"),
	}
}

// Register inserts a node for d and updates its parents' child lists.
// Parents must already exist; specialists (spec §4.6) pass a DNA with no
// ParentIDs and register as a new root.
func (t *Tracker) Register(d *dna.DNA) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.nodes[d.ID]; exists {
		return fmt.Errorf("lineage: agent already registered: %s", d.ID)
	}

	depth := 0
	for _, pid := range d.ParentIDs {
		parent, ok := t.nodes[pid]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownParent, pid)
		}
		if parent.Depth+1 > depth {
			depth = parent.Depth + 1
		}
	}

	node := &Node{
		ID:         d.ID,
		Name:       d.Name,
		ParentIDs:  append([]string{}, d.ParentIDs...),
		Depth:      depth,
		BirthOrder: t.birthOrder,
		Generation: d.Generation,
		BornAt:     d.BirthTimestamp,
	}
	t.birthOrder++
	t.nodes[d.ID] = node

	for _, pid := range d.ParentIDs {
		parent := t.nodes[pid]
		parent.ChildIDs = append(parent.ChildIDs, d.ID)
	}

	t.logger.Info("agent registered", "id", d.ID, "generation", d.Generation, "parents", len(d.ParentIDs))
	return nil
}

// RecordMemory attaches an epigenetic-memory entry to an already-registered
// agent; only the orchestrator calls this, and only on spawn.
func (t *Tracker) RecordMemory(id string, mem EpigeneticMemory) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	node.Memory = mem
	return nil
}

// Ancestors walks parent edges from id to every root, cycle-guarded.
func (t *Tracker) Ancestors(id string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}

	visited := map[string]bool{id: true}
	var result []string
	queue := append([]string{}, t.nodes[id].ParentIDs...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		result = append(result, cur)
		if node, ok := t.nodes[cur]; ok {
			queue = append(queue, node.ParentIDs...)
		}
	}
	return result, nil
}

// Descendants walks child edges from id, cycle-guarded.
func (t *Tracker) Descendants(id string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}

	visited := map[string]bool{id: true}
	var result []string
	queue := append([]string{}, t.nodes[id].ChildIDs...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		result = append(result, cur)
		if node, ok := t.nodes[cur]; ok {
			queue = append(queue, node.ChildIDs...)
		}
	}
	return result, nil
}

// Siblings returns agents sharing at least one parent with id, excluding
// id itself.
func (t *Tracker) Siblings(id string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}

	seen := map[string]bool{id: true}
	var result []string
	for _, pid := range node.ParentIDs {
		parent, ok := t.nodes[pid]
		if !ok {
			continue
		}
		for _, childID := range parent.ChildIDs {
			if seen[childID] {
				continue
			}
			seen[childID] = true
			result = append(result, childID)
		}
	}
	return result, nil
}

// TreeNode is a hierarchical rendering of one family-tree branch.
type TreeNode struct {
	Node     Node        `json:"node"`
	Children []*TreeNode `json:"children,omitempty"`
}

// FamilyTree returns the forest rooted at every parentless agent.
func (t *Tracker) FamilyTree() []*TreeNode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var roots []string
	for id, node := range t.nodes {
		if len(node.ParentIDs) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Slice(roots, func(i, j int) bool {
		return t.nodes[roots[i]].BirthOrder < t.nodes[roots[j]].BirthOrder
	})

	var build func(id string, visited map[string]bool) *TreeNode
	build = func(id string, visited map[string]bool) *TreeNode {
		if visited[id] {
			return nil
		}
		visited[id] = true
		node := t.nodes[id]
		tn := &TreeNode{Node: *node}
		children := append([]string{}, node.ChildIDs...)
		sort.Slice(children, func(i, j int) bool {
			return t.nodes[children[i]].BirthOrder < t.nodes[children[j]].BirthOrder
		})
		for _, cid := range children {
			if child := build(cid, visited); child != nil {
				tn.Children = append(tn.Children, child)
			}
		}
		return tn
	}

	visited := make(map[string]bool)
	forest := make([]*TreeNode, 0, len(roots))
	for _, r := range roots {
		forest = append(forest, build(r, visited))
	}
	return forest
}

// Stats summarizes the tracker's current shape.
type Stats struct {
	TotalAgents      int     `json:"totalAgents"`
	MaxDepth         int     `json:"maxDepth"`
	Roots            int     `json:"roots"`
	MeanChildrenNode float64 `json:"meanChildrenPerNode"`
}

// Stats computes total agents, max depth, root count, and mean children
// per node.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var maxDepth, roots, totalChildren int
	for _, node := range t.nodes {
		if node.Depth > maxDepth {
			maxDepth = node.Depth
		}
		if len(node.ParentIDs) == 0 {
			roots++
		}
		totalChildren += len(node.ChildIDs)
	}
	mean := 0.0
	if len(t.nodes) > 0 {
		mean = float64(totalChildren) / float64(len(t.nodes))
	}
	return Stats{
		TotalAgents:      len(t.nodes),
		MaxDepth:         maxDepth,
		Roots:            roots,
		MeanChildrenNode: mean,
	}
}

// Snapshot is a deterministic export of the full graph, for debugging only
// (spec §4.4: "NOT used on the hot path").
type Snapshot struct {
	Nodes []Node `json:"nodes"`
}

// ExportSnapshot serializes the tracker deterministically (sorted by birth
// order) for offline inspection or a round-trip test.
func (t *Tracker) ExportSnapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	nodes := make([]Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		cp := *n
		cp.ParentIDs = append([]string{}, n.ParentIDs...)
		cp.ChildIDs = append([]string{}, n.ChildIDs...)
		nodes = append(nodes, cp)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].BirthOrder < nodes[j].BirthOrder })
	return Snapshot{Nodes: nodes}
}

// Import rebuilds a Tracker from a Snapshot, e.g. for the round-trip
// property in spec §8 or for reloading a sqlite debug dump.
func Import(logger *slog.Logger, snap Snapshot) *Tracker {
	t := New(logger)
	for _, n := range snap.Nodes {
		cp := n
		cp.ParentIDs = append([]string{}, n.ParentIDs...)
		cp.ChildIDs = append([]string{}, n.ChildIDs...)
		t.nodes[cp.ID] = &cp
		if cp.BirthOrder >= t.birthOrder {
			t.birthOrder = cp.BirthOrder + 1
		}
	}
	return t
}
