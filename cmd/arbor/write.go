package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/pkg/core"
)

func newMkdirCmd(a *app) *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "mkdir NAME",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.create(cmd, core.CreateInput{Name: args[0], IsFolder: true, ParentID: parentRef(parent)})
		},
	}
	cmd.Flags().StringVarP(&parent, "parent", "p", "", "Parent folder ID")
	return cmd
}

func newNewCmd(a *app) *cobra.Command {
	var parent, content, from string
	cmd := &cobra.Command{
		Use:   "new NAME",
		Short: "Create a note",
		Long: `Create a note. --content - reads the body from stdin. --from copies the
content and tags of an existing note.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readContent(cmd, content)
			if err != nil {
				return err
			}
			return a.create(cmd, core.CreateInput{
				Name:            args[0],
				ParentID:        parentRef(parent),
				Content:         body,
				DuplicateFromID: from,
			})
		},
	}
	cmd.Flags().StringVarP(&parent, "parent", "p", "", "Parent folder ID")
	cmd.Flags().StringVarP(&content, "content", "c", "", "Note body, or - for stdin")
	cmd.Flags().StringVar(&from, "from", "", "Duplicate the content of this note")
	cmd.MarkFlagsMutuallyExclusive("content", "from")
	return cmd
}

func (a *app) create(cmd *cobra.Command, in core.CreateInput) error {
	s, err := a.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.Create(s.ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), n.ID)
	return nil
}

func newRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[1]
			return a.update(cmd, args[0], core.Patch{Name: &name})
		},
	}
}

func newEditCmd(a *app) *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Replace the content of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readContent(cmd, content)
			if err != nil {
				return err
			}
			return a.update(cmd, args[0], core.Patch{Content: &body})
		},
	}
	cmd.Flags().StringVarP(&content, "content", "c", "", "New body, or - for stdin")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func (a *app) update(cmd *cobra.Command, id string, p core.Patch) error {
	s, err := a.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.Update(s.ctx, id, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (%s)\n", n.ID, n.Name)
	return nil
}

func newMoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mv ID [PARENT]",
		Short: "Move a node under a folder, or to the root when PARENT is omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var parent *string
			if len(args) == 2 {
				parent = parentRef(args[1])
			}
			n, err := s.Move(s.ctx, args[0], parent)
			if err != nil {
				return err
			}
			where := "the root"
			if !n.IsRoot() {
				where = n.Parent()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to %s\n", n.ID, where)
			return nil
		},
	}
}
