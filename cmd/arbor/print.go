package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/arbor/pkg/core"
	"github.com/aretw0/arbor/pkg/tree"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTree(w io.Writer, forest []*tree.Node) {
	tree.Walk(forest, func(n *tree.Node, depth int) bool {
		fmt.Fprintf(w, "%s%s  %s\n", strings.Repeat("  ", depth), label(n.Name, n.IsFolder), n.ID)
		return true
	})
}

func printNodes(w io.Writer, nodes []core.Node) {
	for _, n := range nodes {
		fmt.Fprintf(w, "%s  %s\n", label(n.Name, n.IsFolder()), n.ID)
	}
}

func label(name string, folder bool) string {
	if folder {
		return name + "/"
	}
	return name
}
