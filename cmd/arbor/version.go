package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of arbor",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "arbor version %s\n", arbor.Version)
		},
	}
}
