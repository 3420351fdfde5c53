package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/pkg/core"
	"github.com/aretw0/arbor/pkg/git"
)

func newShowCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "show ID",
		Aliases: []string{"cat"},
		Short:   "Print a node with its content",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.Get(s.ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, n)
			}
			fmt.Fprintf(out, "# %s\n", n.Name)
			fmt.Fprintf(out, "id: %s\nupdated: %s\n", n.ID, n.UpdatedAt.Format(time.RFC3339))
			if n.Trashed() {
				fmt.Fprintf(out, "trashed: %s\n", n.DeletedAt.Format(time.RFC3339))
			}
			if len(n.Tags) > 0 {
				fmt.Fprintf(out, "tags: %s\n", strings.Join(n.Tags, ", "))
			}
			if !n.IsFolder() {
				fmt.Fprintf(out, "\n%s", n.Content())
				if c := n.Content(); c != "" && !strings.HasSuffix(c, "\n") {
					fmt.Fprintln(out)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var page, limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search active notes by name and content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Search(s.ctx, core.SearchQuery{Q: strings.Join(args, " "), Page: page, Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, res)
			}
			for _, hit := range res.Data {
				fmt.Fprintf(out, "%s  %s\n", hit.Node.Name, hit.Node.ID)
				if hit.Excerpt != "" {
					fmt.Fprintf(out, "    %s\n", hit.Excerpt)
				}
			}
			if res.HasMore {
				fmt.Fprintf(out, "more results: --page %d\n", max(page, 1)+1)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Result page")
	cmd.Flags().IntVar(&limit, "limit", 0, "Results per page (default 10)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.Stats(s.ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, st)
			}
			fmt.Fprintf(out, "notes: %d\nfolders: %d\ntrash: %d\nupdated this week: %d\n", st.Notes, st.Folders, st.Trash, st.Recent)
			for _, d := range st.Activity {
				fmt.Fprintf(out, "  %s %s\n", d.Date, strings.Repeat("#", d.Count))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func newRevealCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reveal ID",
		Short: "Print the folder path leading to a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			m, err := s.manager(a.logger)
			if err != nil {
				return err
			}
			defer m.Close()

			if _, err := m.FetchRoot(cmd.Context()); err != nil {
				return err
			}
			n, res, err := m.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			snap := m.Snapshot()
			path := make([]string, 0, len(res.Chain)+1)
			for _, id := range res.Chain {
				if p, ok := snap.Find(id); ok {
					path = append(path, p.Name)
				} else {
					path = append(path, id)
				}
			}
			path = append(path, label(n.Name, n.IsFolder()))

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, strings.Join(path, " / "))
			switch {
			case res.Broken:
				fmt.Fprintln(out, "warning: parent links loop back on themselves")
			case res.Detached:
				fmt.Fprintln(out, "in trash")
			}
			return nil
		},
	}
}

type historian interface {
	History(ctx context.Context, owner, id string, limit int) ([]git.Revision, error)
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history ID",
		Short: "List the git revisions of a node (versioned fs vaults)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			h, ok := s.Repository.(historian)
			if !ok {
				return errors.New("history requires the fs adapter")
			}
			revs, err := h.History(cmd.Context(), s.owner, args[0], limit)
			if err != nil {
				return err
			}
			for _, r := range revs {
				fmt.Fprintf(cmd.OutOrStdout(), "%.8s  %s  %s\n", r.Hash, r.Date.Format("2006-01-02 15:04"), r.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum revisions")
	return cmd
}
