package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/lifecycle"
	"github.com/spf13/cobra"

	arborlifecycle "github.com/aretw0/arbor/pkg/adapters/lifecycle"
	"github.com/aretw0/arbor/pkg/core"
)

func newWatchCmd(a *app) *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print changes made to the vault by other processes",
		Long: `Watch streams the creations, edits and deletions other editors or devices
make to the vault's files. --pattern narrows it with a glob over
"owner/file" paths, e.g. "alice/**".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			events, err := watchEvents(ctx, s, pattern, arborlifecycle.WithOwner(s.owner))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for e := range events {
				fmt.Fprintln(out, e.String())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "Glob over owner/file paths (default: the session owner)")
	return cmd
}

// watchEvents bridges the store's change feed through a lifecycle source.
func watchEvents(ctx context.Context, s *session, pattern string, opts ...arborlifecycle.Option) (<-chan lifecycle.Event, error) {
	w, ok := s.Repository.(core.Watchable)
	if !ok {
		return nil, errors.New("watch requires the fs adapter")
	}
	if pattern == "" {
		pattern = s.owner + "/**"
	}
	feed, err := w.Watch(ctx, pattern)
	if err != nil {
		return nil, err
	}
	src := arborlifecycle.NewSource(feed, opts...)
	if err := src.Start(ctx); err != nil {
		return nil, err
	}
	return src.Events(), nil
}

// logEvents drains events into logger until the channel closes.
func logEvents(ctx context.Context, events <-chan lifecycle.Event, logger *slog.Logger) {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		for e := range events {
			logger.Info("external change", "event", e.String())
		}
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		logger.Error("event logger stopped", "error", err)
	}))
}

