// Package tree turns flat node lists into the nested forests rendered by
// clients. Folders are loaded lazily, so a node only hangs under its parent once
// that parent's children have been fetched.
package tree

import (
	"sort"
	"strings"

	"github.com/aretw0/arbor/pkg/core"
)

// Node is a rendered tree entry.
type Node struct {
	ID       string  `json:"key"`
	Name     string  `json:"title"`
	IsFolder bool    `json:"isFolder"`
	IsLeaf   bool    `json:"isLeaf"`
	Trashed  bool    `json:"isTrashItem"`
	ParentID *string `json:"parentId"`
	Children []*Node `json:"children,omitempty"`
}

func newNode(n core.Node, trashed bool) *Node {
	return &Node{
		ID:       n.ID,
		Name:     n.Name,
		IsFolder: n.IsFolder(),
		IsLeaf:   !n.IsFolder(),
		Trashed:  trashed,
		ParentID: core.Ref(n.Parent()),
	}
}

// Build assembles the active forest. A node is attached under its parent only when
// the parent is present in nodes and its ID is in loaded; root-level nodes are
// always roots. Nodes whose parent is absent or not loaded are omitted.
func Build(nodes []core.Node, loaded map[string]bool) []*Node {
	index := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		index[n.ID] = newNode(n, false)
	}

	var roots []*Node
	for _, n := range nodes {
		item := index[n.ID]
		if n.IsRoot() {
			roots = append(roots, item)
			continue
		}
		parent, ok := index[*n.ParentID]
		if ok && loaded[*n.ParentID] {
			parent.Children = append(parent.Children, item)
		}
	}
	sortForest(roots)
	return roots
}

// BuildTrash assembles the trash forest. A trashed node nests under its parent
// when that parent is also in the set; everything else sits at the trash root.
func BuildTrash(nodes []core.Node) []*Node {
	index := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		index[n.ID] = newNode(n, true)
	}

	var roots []*Node
	for _, n := range nodes {
		item := index[n.ID]
		if n.ParentID != nil && *n.ParentID != n.ID {
			if parent, ok := index[*n.ParentID]; ok {
				parent.Children = append(parent.Children, item)
				continue
			}
		}
		roots = append(roots, item)
	}
	sortForest(roots)
	return roots
}

// Less orders siblings: folders first, then case-insensitive name, then exact
// name, then ID.
func Less(a, b *Node) bool {
	if a.IsFolder != b.IsFolder {
		return a.IsFolder
	}
	la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if la != lb {
		return la < lb
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}

func sortForest(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return Less(nodes[i], nodes[j]) })
	for _, n := range nodes {
		sortForest(n.Children)
	}
}

// Walk visits the forest in pre-order. Returning false from fn skips the
// children of that node.
func Walk(forest []*Node, fn func(n *Node, depth int) bool) {
	var visit func([]*Node, int)
	visit = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			if fn(n, depth) {
				visit(n.Children, depth+1)
			}
		}
	}
	visit(forest, 0)
}

// Match returns, in pre-order, the IDs of nodes whose name contains term
// case-insensitively. The subtree of a matching node is not searched further.
func Match(forest []*Node, term string) []string {
	needle := strings.ToLower(term)
	var keys []string
	Walk(forest, func(n *Node, _ int) bool {
		if strings.Contains(strings.ToLower(n.Name), needle) {
			keys = append(keys, n.ID)
			return false
		}
		return true
	})
	return keys
}

// Find returns the node with id, or nil.
func Find(forest []*Node, id string) *Node {
	var found *Node
	Walk(forest, func(n *Node, _ int) bool {
		if found != nil {
			return false
		}
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Count returns the number of nodes in the forest.
func Count(forest []*Node) int {
	total := 0
	Walk(forest, func(*Node, int) bool {
		total++
		return true
	})
	return total
}
