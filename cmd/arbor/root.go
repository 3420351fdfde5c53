package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/user"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/platform"
	"github.com/aretw0/arbor/pkg/client"
	"github.com/aretw0/arbor/pkg/core"
)

// app holds the global flags shared by every command.
type app struct {
	verbose bool
	adapter string
	dsn     string
	owner   string
	dir     string
	message string
	ctype   string
	scope   string
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "arbor",
		Short: "A hierarchical note store with trash, restore and cascading deletes",
		Long: `Arbor keeps notes and folders as a tree per owner.
Deleting a folder moves its whole subtree to the trash; restoring brings it back.
Vaults live in plain files (optionally versioned with git), SQLite, Neo4j or
behind an arbor server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if a.verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			slog.SetDefault(a.logger)
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVar(&a.adapter, "adapter", "", "Store adapter: fs, memory, sqlite, neo4j or http")
	flags.StringVar(&a.dsn, "dsn", "", "Adapter URI: vault dir, database file, bolt URL or server URL")
	flags.StringVar(&a.owner, "owner", "", "Owner whose tree is used (default $ARBOR_OWNER or the OS user)")
	flags.StringVarP(&a.dir, "dir", "C", "", "Start vault discovery from this directory")
	flags.StringVarP(&a.message, "message", "m", "", "Change reason recorded by versioned vaults")
	flags.StringVar(&a.ctype, "type", "", "Change reason type (feat, fix, docs, chore...)")
	flags.StringVar(&a.scope, "scope", "", "Change reason scope")

	cmd.AddCommand(
		newInitCmd(a),
		newListCmd(a),
		newMkdirCmd(a),
		newNewCmd(a),
		newShowCmd(a),
		newRenameCmd(a),
		newEditCmd(a),
		newMoveCmd(a),
		newRemoveCmd(a),
		newRestoreCmd(a),
		newSearchCmd(a),
		newStatsCmd(a),
		newRevealCmd(a),
		newHistoryCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// session is an opened store scoped to one owner.
type session struct {
	*arbor.Store
	owner string
	root  string
	cfg   arbor.Config
	ctx   context.Context
}

func (s *session) Close() {
	if err := s.Store.Close(context.Background()); err != nil {
		slog.Warn("failed to close store", "error", err)
	}
}

// open resolves the vault, merges its config file with the flags and opens
// the store. Flags win over the config file.
func (a *app) open(cmd *cobra.Command, extra ...arbor.Option) (*session, error) {
	start := a.dir
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		start = wd
	}

	s := &session{}
	if root, err := platform.FindRoot(start, ""); err == nil {
		s.root = root
		if s.cfg, err = platform.LoadConfig(root, ""); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, platform.ErrRootNotFound) {
		return nil, err
	}

	adapter := firstOf(a.adapter, s.cfg.Adapter, arbor.AdapterFS)
	uri := firstOf(a.dsn, s.cfg.DSN)
	if adapter == arbor.AdapterFS && uri == "" {
		if s.root == "" {
			return nil, fmt.Errorf("not an arbor vault (run 'arbor init' or pass --dsn): %s", start)
		}
		uri = s.root
	}

	opts := append(s.cfg.Options(),
		arbor.WithAdapter(adapter),
		arbor.WithLogger(a.logger),
		arbor.WithMustExist(true),
	)
	opts = append(opts, extra...)

	store, err := arbor.New(cmd.Context(), uri, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", adapter, err)
	}
	s.Store = store
	s.owner = firstOf(a.owner, s.cfg.Owner, os.Getenv("ARBOR_OWNER"), currentUser(), "default")
	s.ctx = core.WithOwner(cmd.Context(), s.owner)
	if reason := a.changeReason(); reason != "" {
		s.ctx = arbor.WithChangeReason(s.ctx, reason)
	}
	return s, nil
}

// manager starts an optimistic client session over the store.
func (s *session) manager(logger *slog.Logger) (*arbor.Manager, error) {
	var opts []client.Option
	opts = append(opts, client.WithLogger(logger))
	timeout, err := s.cfg.RequestTimeout()
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		opts = append(opts, client.WithRequestTimeout(timeout))
	}
	return arbor.NewManager(s.Store, s.owner, opts...), nil
}

func (a *app) changeReason() string {
	switch {
	case a.ctype != "":
		return arbor.FormatChangeReason(a.ctype, a.scope, firstOf(a.message, "update"), "")
	case a.message != "":
		return platform.AppendFooter(a.message)
	}
	return ""
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

// readContent returns flag, or stdin when flag is "-".
func readContent(cmd *cobra.Command, flag string) (string, error) {
	if flag != "-" {
		return flag, nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

// parentRef maps "" and "/" to the root.
func parentRef(id string) *string {
	id = strings.TrimSpace(id)
	if id == "" || id == "/" {
		return nil
	}
	return core.Ref(id)
}
