package domain

import (
	"fmt"
	"sort"
)

// Arena indexes knowledge texts by id. Parent/child relations are kept as id
// references, and nested Children are only materialised on demand by Tree and
// Forest, so no record is ever copied into two places.
type Arena struct {
	nodes    map[string]*KnowledgeText
	children map[string][]string
}

// NewArena builds an arena from records. Duplicate ids are rejected.
func NewArena(records ...*KnowledgeText) (*Arena, error) {
	a := &Arena{
		nodes:    make(map[string]*KnowledgeText, len(records)),
		children: make(map[string][]string),
	}
	for _, k := range records {
		if err := a.Add(k); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Add stores a copy of k (without its Children) under k.ID.
func (a *Arena) Add(k *KnowledgeText) error {
	if k == nil || k.ID == "" {
		return ErrMissingID
	}
	if _, exists := a.nodes[k.ID]; exists {
		return fmt.Errorf("%w: %s", ErrKnowledgeTextAlreadyExists, k.ID)
	}
	a.nodes[k.ID] = k.Clone()
	if k.ParentID != nil {
		a.children[*k.ParentID] = append(a.children[*k.ParentID], k.ID)
	}
	return nil
}

// Len returns the number of records
func (a *Arena) Len() int {
	return len(a.nodes)
}

// Has reports whether id is in the arena
func (a *Arena) Has(id string) bool {
	_, ok := a.nodes[id]
	return ok
}

// Get returns the stored record without children
func (a *Arena) Get(id string) (*KnowledgeText, bool) {
	k, ok := a.nodes[id]
	if !ok {
		return nil, false
	}
	return k.Clone(), true
}

// Children returns the ids of id's direct children, oldest first.
func (a *Arena) Children(id string) []string {
	ids := append([]string(nil), a.children[id]...)
	a.sortByCreation(ids)
	return ids
}

// Roots returns the ids of records without a parent, or whose parent is not
// in the arena, oldest first.
func (a *Arena) Roots() []string {
	var ids []string
	for id, k := range a.nodes {
		if k.ParentID == nil || !a.Has(*k.ParentID) {
			ids = append(ids, id)
		}
	}
	a.sortByCreation(ids)
	return ids
}

// Ancestors returns the chain of parent ids from id's parent up to its root.
func (a *Arena) Ancestors(id string) ([]string, error) {
	k, ok := a.nodes[id]
	if !ok {
		return nil, ErrKnowledgeTextNotFound
	}
	seen := map[string]bool{id: true}
	var chain []string
	for k.ParentID != nil {
		pid := *k.ParentID
		if seen[pid] {
			return chain, fmt.Errorf("%w: %s", ErrHierarchyCycle, pid)
		}
		parent, ok := a.nodes[pid]
		if !ok {
			break
		}
		seen[pid] = true
		chain = append(chain, pid)
		k = parent
	}
	return chain, nil
}

// Descendants returns every id below id, breadth first.
func (a *Arena) Descendants(id string) []string {
	seen := map[string]bool{id: true}
	var out []string
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range a.Children(cur) {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}

// IsDescendant reports whether id lies strictly below ancestorID
func (a *Arena) IsDescendant(ancestorID, id string) bool {
	chain, _ := a.Ancestors(id)
	for _, pid := range chain {
		if pid == ancestorID {
			return true
		}
	}
	return false
}

// Cycles returns every parent loop in the arena, each listed once starting
// from its smallest id.
func (a *Arena) Cycles() [][]string {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[string]int, len(a.nodes))
	ids := make([]string, 0, len(a.nodes))
	for id := range a.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var cycles [][]string
	for _, start := range ids {
		if state[start] != unvisited {
			continue
		}
		var path []string
		cur := start
		for {
			if state[cur] == onPath {
				idx := indexOf(path, cur)
				cycles = append(cycles, rotateToMin(path[idx:]))
				break
			}
			if state[cur] == done {
				break
			}
			state[cur] = onPath
			path = append(path, cur)
			k := a.nodes[cur]
			if k.ParentID == nil || !a.Has(*k.ParentID) {
				break
			}
			cur = *k.ParentID
		}
		for _, id := range path {
			state[id] = done
		}
	}
	return cycles
}

// Tree materialises the subtree rooted at id. depth limits how many levels
// of Children are populated; a negative depth expands everything. Nodes at
// the depth limit keep Children nil.
func (a *Arena) Tree(id string, depth int) (*KnowledgeText, error) {
	if _, ok := a.nodes[id]; !ok {
		return nil, ErrKnowledgeTextNotFound
	}
	return a.build(id, depth, map[string]bool{})
}

// Forest materialises every root with Tree. It fails when the arena contains
// a cycle, since records on a loop are unreachable from any root.
func (a *Arena) Forest(depth int) ([]*KnowledgeText, error) {
	if cycles := a.Cycles(); len(cycles) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrHierarchyCycle, cycles[0])
	}
	roots := a.Roots()
	out := make([]*KnowledgeText, 0, len(roots))
	for _, id := range roots {
		t, err := a.build(id, depth, map[string]bool{})
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (a *Arena) build(id string, depth int, onPath map[string]bool) (*KnowledgeText, error) {
	if onPath[id] {
		return nil, fmt.Errorf("%w: %s", ErrHierarchyCycle, id)
	}
	node := a.nodes[id].Clone()
	if depth == 0 {
		return node, nil
	}

	onPath[id] = true
	defer delete(onPath, id)

	childIDs := a.Children(id)
	node.Children = make([]*KnowledgeText, 0, len(childIDs))
	for _, cid := range childIDs {
		child, err := a.build(cid, depth-1, onPath)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

func (a *Arena) sortByCreation(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		ki, kj := a.nodes[ids[i]], a.nodes[ids[j]]
		if ki == nil || kj == nil {
			return ids[i] < ids[j]
		}
		if !ki.CreatedAt.Equal(kj.CreatedAt) {
			return ki.CreatedAt.Before(kj.CreatedAt)
		}
		return ids[i] < ids[j]
	})
}

// CheckChildren verifies that every populated child points back at its parent.
func CheckChildren(k *KnowledgeText) error {
	if k == nil {
		return nil
	}
	for _, child := range k.Children {
		if child == nil || child.ParentID == nil || *child.ParentID != k.ID {
			childID := ""
			if child != nil {
				childID = child.ID
			}
			return fmt.Errorf("%w: parent %s, child %s", ErrChildParentMismatch, k.ID, childID)
		}
		if err := CheckChildren(child); err != nil {
			return err
		}
	}
	return nil
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func rotateToMin(cycle []string) []string {
	minIdx := 0
	for i, id := range cycle {
		if id < cycle[minIdx] {
			minIdx = i
		}
	}
	out := make([]string, 0, len(cycle))
	out = append(out, cycle[minIdx:]...)
	out = append(out, cycle[:minIdx]...)
	return out
}
