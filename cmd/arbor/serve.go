package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/pkg/adapters/httpapi"
	"github.com/aretw0/arbor/pkg/core"
)

const defaultListen = "127.0.0.1:7410"

func newServeCmd(a *app) *cobra.Command {
	var (
		addr   string
		header string
		watch  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the store over HTTP",
		Long: `Serve exposes the store through the /note API. The owner of each request is
read from the --owner-header header, which a fronting proxy is expected to set
after authenticating the user.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if watch {
				if _, ok := s.Repository.(core.Watchable); ok {
					events, err := watchEvents(ctx, s, "**")
					if err != nil {
						return err
					}
					logEvents(ctx, events, a.logger)
				}
			}

			listen := firstOf(addr, s.cfg.Listen, defaultListen)
			srv := &http.Server{
				Addr: listen,
				Handler: httpapi.NewServer(s.Store,
					httpapi.WithLogger(a.logger),
					httpapi.WithAuthenticator(httpapi.HeaderAuth(header)),
				),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s store on http://%s\n", s.Adapter, listen)

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default "+defaultListen+")")
	cmd.Flags().StringVar(&header, "owner-header", httpapi.DefaultOwnerHeader, "Header carrying the request owner")
	cmd.Flags().BoolVar(&watch, "watch", true, "Log changes made to fs vaults by other processes")
	return cmd
}
