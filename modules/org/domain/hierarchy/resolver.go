// Package hierarchy resolves reporting lines among positions. Positions are
// held in an arena keyed by identifier with parents stored as identifiers,
// so every walk is an index lookup.
package hierarchy

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrCycleDetected  = errors.New("reporting line would create a cycle")
	ErrNodeNotFound   = errors.New("position not found in hierarchy")
	ErrParentNotFound = errors.New("parent position not found in hierarchy")
	ErrDuplicateNode  = errors.New("duplicate position id")
	ErrOrphan         = errors.New("position has an unreachable parent")
)

// Node is the minimal view of a position the resolver needs. An empty
// ParentID marks a root.
type Node struct {
	ID       string
	ParentID string
}

type Index struct {
	nodes    map[string]Node
	order    []string
	children map[string][]string
}

func NewIndex(nodes []Node) (*Index, error) {
	idx := &Index{
		nodes:    make(map[string]Node, len(nodes)),
		order:    make([]string, 0, len(nodes)),
		children: make(map[string][]string),
	}
	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: empty id", ErrNodeNotFound)
		}
		if _, exists := idx.nodes[n.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		idx.nodes[n.ID] = n
		idx.order = append(idx.order, n.ID)
	}
	for _, id := range idx.order {
		if parent := idx.nodes[id].ParentID; parent != "" {
			idx.children[parent] = append(idx.children[parent], id)
		}
	}
	return idx, nil
}

func (x *Index) Has(id string) bool {
	_, ok := x.nodes[id]
	return ok
}

func (x *Index) Len() int { return len(x.order) }

// Children returns the direct reports of id in insertion order.
func (x *Index) Children(id string) []string {
	return append([]string(nil), x.children[id]...)
}

// Roots returns every node without a parent, in insertion order.
func (x *Index) Roots() []string {
	var out []string
	for _, id := range x.order {
		if x.nodes[id].ParentID == "" {
			out = append(out, id)
		}
	}
	return out
}

// Ancestors returns the chain from id's parent up to the root. The node
// itself is never part of the result.
func (x *Index) Ancestors(id string) ([]string, error) {
	node, ok := x.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	var out []string
	seen := map[string]struct{}{id: {}}
	for parent := node.ParentID; parent != ""; {
		if _, loop := seen[parent]; loop {
			return nil, fmt.Errorf("%w: %s reaches itself through %s", ErrCycleDetected, id, parent)
		}
		p, ok := x.nodes[parent]
		if !ok {
			return out, fmt.Errorf("%w: %s reports to missing %s", ErrOrphan, id, parent)
		}
		seen[parent] = struct{}{}
		out = append(out, parent)
		parent = p.ParentID
	}
	return out, nil
}

// ValidateNoCycle checks that re-parenting id under newParent keeps the
// hierarchy acyclic. An empty newParent makes id a root and is always valid.
func (x *Index) ValidateNoCycle(id, newParent string) error {
	if newParent == "" {
		return nil
	}
	if id == newParent {
		return fmt.Errorf("%w: %s cannot report to itself", ErrCycleDetected, id)
	}
	if _, ok := x.nodes[newParent]; !ok {
		return fmt.Errorf("%w: %s", ErrParentNotFound, newParent)
	}
	seen := map[string]struct{}{}
	for cur := newParent; cur != ""; {
		if cur == id {
			return fmt.Errorf("%w: %s is an ancestor of %s", ErrCycleDetected, id, newParent)
		}
		if _, loop := seen[cur]; loop {
			// the existing chain is already broken; id is not on it
			return nil
		}
		seen[cur] = struct{}{}
		n, ok := x.nodes[cur]
		if !ok {
			return nil
		}
		cur = n.ParentID
	}
	return nil
}

type OrphanReason string

const (
	// OrphanDanglingParent: the parent id is not in the hierarchy.
	OrphanDanglingParent OrphanReason = "dangling_parent"
	// OrphanUnreachable: the parent exists but no root reaches it, either
	// because an ancestor dangles or because the chain loops.
	OrphanUnreachable OrphanReason = "unreachable"
)

type Levels struct {
	Levels  map[string]int
	Orphans map[string]OrphanReason
}

// Depth is the highest level assigned.
func (l Levels) Depth() int {
	depth := 0
	for _, lvl := range l.Levels {
		depth = max(depth, lvl)
	}
	return depth
}

// OrphanIDs returns the flagged ids sorted for stable reporting.
func (l Levels) OrphanIDs() []string {
	out := make([]string, 0, len(l.Orphans))
	for id := range l.Orphans {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ComputeLevels assigns level 1 to each root candidate and parent+1 to every
// descendant. Nodes not reachable from a root are flagged as orphans instead
// of receiving a default level. A nil rootCandidates uses Roots().
func (x *Index) ComputeLevels(rootCandidates []string) Levels {
	if rootCandidates == nil {
		rootCandidates = x.Roots()
	}
	out := Levels{
		Levels:  make(map[string]int, len(x.order)),
		Orphans: make(map[string]OrphanReason),
	}

	queue := make([]string, 0, len(x.order))
	for _, root := range rootCandidates {
		if !x.Has(root) {
			continue
		}
		if _, done := out.Levels[root]; done {
			continue
		}
		out.Levels[root] = 1
		queue = append(queue, root)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range x.children[id] {
			if _, done := out.Levels[child]; done {
				continue
			}
			out.Levels[child] = out.Levels[id] + 1
			queue = append(queue, child)
		}
	}

	for _, id := range x.order {
		if _, ok := out.Levels[id]; ok {
			continue
		}
		if parent := x.nodes[id].ParentID; parent != "" && !x.Has(parent) {
			out.Orphans[id] = OrphanDanglingParent
		} else {
			out.Orphans[id] = OrphanUnreachable
		}
	}
	return out
}
