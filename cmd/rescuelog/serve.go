package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/rescuelog/internal/httpapi"
	"github.com/hurttlocker/rescuelog/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(g *globalFlags) *cobra.Command {
	var cf commandFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored records over HTTP",
		Long: `Serve the browse and audit API over the record database.

Routes: /health, /messages, /messages/{id}, /search, /audit, /rescue-log, /metrics.

Examples:
  rescuelog serve
  rescuelog serve --addr :8080 --db ./rescue.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(g, cf)
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			api := httpapi.New(a.engine(s), a.logger, metrics.NewMetrics())
			srv := &http.Server{
				Addr:              a.cfg.Addr.Value,
				Handler:           api.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				a.logger.Info("listening", zap.String("addr", srv.Addr))
				fmt.Fprintf(cmd.ErrOrStderr(), "rescuelog serving on http://%s\n", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			eg.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return eg.Wait()
		},
	}
	cmd.Flags().StringVar(&cf.addr, "addr", "", "listen address (default 127.0.0.1:5055)")
	return cmd
}
