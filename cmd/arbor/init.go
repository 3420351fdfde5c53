package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/platform"
	"github.com/aretw0/arbor/pkg/core"
)

func newInitCmd(a *app) *cobra.Command {
	var (
		noGit  bool
		format string
	)
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Initialize a vault",
		Long: `Initialize a new vault in the given directory (default: current directory).
The vault config is written to .arbor/config.yaml; the --adapter, --dsn and
--owner flags given here become its defaults.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			versioning := !noGit
			cfg := platform.Config{
				Adapter:    a.adapter,
				DSN:        a.dsn,
				Owner:      a.owner,
				Versioning: &versioning,
				Format:     format,
			}

			if a.adapter == "" || a.adapter == arbor.AdapterFS {
				cfg.Adapter = ""
				opts := []arbor.Option{
					arbor.WithAutoInit(true),
					arbor.WithVersioning(versioning),
					arbor.WithLogger(a.logger),
					arbor.WithDevSafety(false),
				}
				if format != "" {
					opts = append(opts, arbor.WithFormat(format))
				}
				if _, err := arbor.Init(cmd.Context(), abs, opts...); err != nil {
					return fmt.Errorf("failed to initialize vault: %w", err)
				}
			} else {
				if err := os.MkdirAll(abs, 0755); err != nil {
					return err
				}
				if a.adapter != arbor.AdapterHTTP && a.adapter != arbor.AdapterMemory {
					repo, err := arbor.Init(cmd.Context(), a.dsn, arbor.WithAdapter(a.adapter), arbor.WithLogger(a.logger))
					if err != nil {
						return fmt.Errorf("failed to initialize %s store: %w", a.adapter, err)
					}
					if c, ok := repo.(core.Closer); ok {
						_ = c.Close(cmd.Context())
					}
				}
			}

			if err := platform.SaveConfig(abs, "", cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Initialized empty arbor vault in", abs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noGit, "no-git", false, "Do not version the vault with git")
	cmd.Flags().StringVar(&format, "format", "", "File format of new nodes: .md or .json")
	return cmd
}
