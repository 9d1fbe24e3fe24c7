package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"govsync/internal/bootstrap"
	"govsync/internal/bootstrap/logging"
	"govsync/internal/errs"
	"govsync/internal/usecase/governance"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Sync proposals with the request source",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *governance.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		once, _ := cmd.Flags().GetBool("once")
		pollInterval, _ := cmd.Flags().GetDuration("poll-interval")
		if !cmd.Flags().Changed("poll-interval") {
			pollInterval = app.Config.Governance.ReconcileInterval
		}

		report := func(result governance.ReconcileResult) error {
			if _, err := fmt.Fprintf(
				cmd.OutOrStdout(),
				"reconcile materialized=%d checked=%d transitioned=%d executed=%d signals=%d failed=%d\n",
				result.Materialized,
				result.Checked,
				result.Transitioned,
				result.Executed,
				result.SignalsSent,
				result.Failed,
			); err != nil {
				return errs.Wrap(err, "write reconcile output")
			}
			return nil
		}

		if once {
			result, err := svc.ReconcileOnce(ctx)
			if err != nil {
				return err
			}
			return report(result)
		}
		if err := reconcileLoop(ctx, svc, pollInterval, report); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}),
}

// reconcileLoop ticks until ctx ends. A failed tick is logged and the loop continues.
func reconcileLoop(ctx context.Context, svc *governance.Service, interval time.Duration, report func(governance.ReconcileResult) error) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := svc.ReconcileOnce(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return errs.Wrap(ctx.Err(), "reconcile loop stopped")
		case err != nil:
			logging.Error(ctx, "reconcile tick failed", slog.Any("err", errs.Loggable(err)))
		case report != nil:
			if err := report(result); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return errs.Wrap(ctx.Err(), "reconcile loop stopped")
		case <-ticker.C:
		}
	}
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().Bool("once", false, "Run one reconcile tick and exit")
	reconcileCmd.Flags().Duration("poll-interval", 5*time.Second, "Interval between ticks (defaults to governance.reconcile_interval)")
}
