package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/pkg/core"
	"github.com/aretw0/arbor/pkg/query"
	"github.com/aretw0/arbor/pkg/tree"
)

func newListCmd(a *app) *cobra.Command {
	var (
		trash  bool
		all    bool
		where  string
		asJSON bool
		parent string
	)
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List the tree",
		Long: `List the root level, the children of --parent, the whole tree (--all) or
the trash (--trash). --where filters with an expression such as
  isFolder == false && name contains "plan" && ageDays < 7
and prints the matches as a flat list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var nodes []core.Node
			switch {
			case trash:
				nodes, err = s.ListTrash(s.ctx)
			case all || where != "":
				nodes, err = s.ListActive(s.ctx)
			case parent != "":
				nodes, err = s.ListChildren(s.ctx, parent)
			default:
				nodes, err = s.ListRoot(s.ctx)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if where != "" {
				filter, err := query.Compile(where)
				if err != nil {
					return err
				}
				if nodes, err = filter.Apply(nodes); err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, nodes)
				}
				printNodes(out, nodes)
				return nil
			}

			var forest []*tree.Node
			switch {
			case trash:
				forest = tree.BuildTrash(nodes)
			case all:
				loaded := make(map[string]bool, len(nodes))
				for _, n := range nodes {
					loaded[n.ID] = true
				}
				forest = tree.Build(nodes, loaded)
			default:
				if asJSON {
					return writeJSON(out, nodes)
				}
				printNodes(out, nodes)
				return nil
			}
			if asJSON {
				return writeJSON(out, forest)
			}
			printTree(out, forest)
			return nil
		},
	}
	cmd.Flags().BoolVar(&trash, "trash", false, "List the trash as a tree")
	cmd.Flags().BoolVar(&all, "all", false, "List every active node as a tree")
	cmd.Flags().StringVar(&where, "where", "", "Filter expression")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	cmd.Flags().StringVar(&parent, "parent", "", "List the children of this folder")
	cmd.MarkFlagsMutuallyExclusive("trash", "all", "parent")
	return cmd
}
