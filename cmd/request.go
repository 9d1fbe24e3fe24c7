package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"govsync/internal/bootstrap"
	"govsync/internal/bootstrap/logging"
	"govsync/internal/domain/governance"
	"govsync/internal/errs"
	govuc "govsync/internal/usecase/governance"
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Operate on the local request file",
}

var requestSetStatusCmd = &cobra.Command{
	Use:   "set-status",
	Short: "Set a request's status in the file request source",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, _ *govuc.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		if app.FileRequests == nil {
			return errors.New("set-status needs request_source.driver=file")
		}
		scope, _ := cmd.Flags().GetString("scope")
		request, _ := cmd.Flags().GetString("request")
		rawStatus, _ := cmd.Flags().GetString("status")

		status, err := governance.ParseRequestStatus(rawStatus)
		if err != nil {
			return err
		}
		if err := app.FileRequests.SetStatus(ctx, scope, request, status); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "request %s/%s -> %s\n", scope, request, status); err != nil {
			return errs.Wrap(err, "write request output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(requestCmd)
	requestCmd.AddCommand(requestSetStatusCmd)

	requestSetStatusCmd.Flags().String("scope", "", "Governance scope id")
	requestSetStatusCmd.Flags().String("request", "", "Request id")
	requestSetStatusCmd.Flags().String("status", "", "New status (Created, Approved, Rejected, Processing, Scheduled, Completed, Failed, Cancelled)")
	_ = requestSetStatusCmd.MarkFlagRequired("scope")
	_ = requestSetStatusCmd.MarkFlagRequired("request")
	_ = requestSetStatusCmd.MarkFlagRequired("status")
}
