package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/pkg/core"
)

func newRemoveCmd(a *app) *cobra.Command {
	var permanent, soft bool
	cmd := &cobra.Command{
		Use:   "rm ID",
		Short: "Move a node and its subtree to the trash, or purge it from the trash",
		Long: `rm trashes an active node together with its descendants. Run on a trashed
node it deletes the subtree for good. --permanent only purges and refuses
active nodes; --soft only trashes and resumes an interrupted cascade.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			mode := core.DeleteAuto
			switch {
			case permanent:
				mode = core.DeletePermanent
			case soft:
				mode = core.DeleteSoft
			}
			res, err := s.Delete(s.ctx, args[0], mode)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %d affected)\n", res.Message, res.Outcome, res.Affected)
			return nil
		},
	}
	cmd.Flags().BoolVar(&permanent, "permanent", false, "Purge a trashed node")
	cmd.Flags().BoolVar(&soft, "soft", false, "Only move to the trash")
	cmd.MarkFlagsMutuallyExclusive("permanent", "soft")
	return cmd
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore ID",
		Short: "Bring a trashed node and its subtree back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Restore(s.ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s with %d descendants\n", res.Node.Name, res.ChildrenCount)
			return nil
		},
	}
}
