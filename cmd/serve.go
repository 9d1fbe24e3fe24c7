package cmd

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"govsync/internal/bootstrap"
	"govsync/internal/bootstrap/logging"
	"govsync/internal/errs"
	"govsync/internal/httpapi"
	"govsync/internal/usecase/governance"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the voting API and run the reconciler in the background",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *governance.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		addr, _ := cmd.Flags().GetString("addr")
		noReconcile, _ := cmd.Flags().GetBool("no-reconcile")
		addr = strings.TrimSpace(addr)
		if addr == "" {
			addr = app.Config.HTTP.Addr
		}

		if err := app.InitSchema(ctx); err != nil {
			return errs.Wrap(err, "initialize schema")
		}

		server := httpapi.NewServer(httpapi.ServerConfig{
			Addr:         addr,
			ReadTimeout:  app.Config.HTTP.ReadTimeout,
			WriteTimeout: app.Config.HTTP.WriteTimeout,
		}, app.API.Handler())
		if err := server.Start(ctx); err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			select {
			case err, ok := <-server.Err():
				if ok && err != nil {
					return errs.Wrap(err, "serve http")
				}
				return nil
			case <-gctx.Done():
				return nil
			}
		})
		if !noReconcile {
			g.Go(func() error {
				return reconcileLoop(gctx, svc, app.Config.Governance.ReconcileInterval, nil)
			})
		}
		if app.FileRequests != nil {
			g.Go(func() error {
				return app.FileRequests.Watch(gctx)
			})
		}

		waitErr := g.Wait()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Error(ctx, "http shutdown failed", slog.Any("err", errs.Loggable(err)))
		}
		logging.Info(ctx, "server stopped")

		if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
			return waitErr
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (defaults to http.addr)")
	serveCmd.Flags().Bool("no-reconcile", false, "Serve the API without the background reconciler")
}
