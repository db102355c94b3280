package project

import (
	"errors"
	"fmt"
)

// Tree tracks parent/child relationships between exploration projects.
// Each node has a single parent pointer and a child set; attachment is
// validated so the structure stays a forest (no cycles, no reparenting).
type Tree struct {
	parent   map[string]string
	children map[string][]string
}

// NewTree creates an empty project tree.
func NewTree() *Tree {
	return &Tree{
		parent:   make(map[string]string),
		children: make(map[string][]string),
	}
}

// Attach records childID as a child of parentID.
// A node may have at most one parent, and the new edge must not create a cycle.
func (t *Tree) Attach(parentID, childID string) error {
	if parentID == "" || childID == "" {
		return errors.New("parent and child ids are required")
	}
	if parentID == childID {
		return fmt.Errorf("project %s cannot be its own parent", childID)
	}
	if existing, ok := t.parent[childID]; ok {
		return fmt.Errorf("project %s already has parent %s", childID, existing)
	}
	// Walk up from the parent; finding the child means the edge would close a cycle.
	for cur := parentID; cur != ""; cur = t.parent[cur] {
		if cur == childID {
			return fmt.Errorf("attaching %s under %s would create a cycle", childID, parentID)
		}
	}
	t.parent[childID] = parentID
	t.children[parentID] = append(t.children[parentID], childID)
	return nil
}

// Detach removes childID from the tree along with its parent edge.
// Detaching an unknown node is a no-op.
func (t *Tree) Detach(childID string) {
	parentID, ok := t.parent[childID]
	if !ok {
		return
	}
	delete(t.parent, childID)
	kids := t.children[parentID]
	for i, id := range kids {
		if id == childID {
			t.children[parentID] = append(kids[:i], kids[i+1:]...)
			break
		}
	}
}

// Parent returns the parent of id, or "" for a root.
func (t *Tree) Parent(id string) string { return t.parent[id] }

// Children returns a copy of the child set of id.
func (t *Tree) Children(id string) []string {
	kids := t.children[id]
	out := make([]string, len(kids))
	copy(out, kids)
	return out
}
