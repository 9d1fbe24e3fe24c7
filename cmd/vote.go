package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"govsync/internal/bootstrap"
	"govsync/internal/bootstrap/logging"
	"govsync/internal/domain/governance"
	"govsync/internal/errs"
	govuc "govsync/internal/usecase/governance"
)

var voteCmd = &cobra.Command{
	Use:   "vote",
	Short: "Cast and inspect votes",
}

var voteCastCmd = &cobra.Command{
	Use:   "cast",
	Short: "Cast a weighted vote as a principal",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *govuc.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		scope, _ := cmd.Flags().GetString("scope")
		request, _ := cmd.Flags().GetString("request")
		principal, _ := cmd.Flags().GetString("principal")
		rawChoice, _ := cmd.Flags().GetString("choice")

		choice, err := governance.ParseVoteChoice(rawChoice)
		if err != nil {
			return err
		}
		vote, err := svc.CastVote(ctx, govuc.CastVoteInput{
			ScopeID:   scope,
			RequestID: request,
			Principal: principal,
			Choice:    choice,
		})
		if err != nil {
			return err
		}

		p, err := svc.GetProposal(ctx, scope, request)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(
			cmd.OutOrStdout(),
			"vote %s recorded: %s %s weight=%d; proposal %s yes=%d no=%d total=%d\n",
			vote.ID, vote.Principal, vote.Choice, vote.Weight,
			p.Status, p.YesVotes, p.NoVotes, p.TotalVotingPower,
		); err != nil {
			return errs.Wrap(err, "write vote output")
		}
		return nil
	}),
}

var voteGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show a principal's vote on a request",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *govuc.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		scope, _ := cmd.Flags().GetString("scope")
		request, _ := cmd.Flags().GetString("request")
		principal, _ := cmd.Flags().GetString("principal")

		vote, err := svc.GetVote(ctx, scope, request, principal)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s voted %s with weight %d at %s\n",
			vote.Principal, vote.Choice, vote.Weight, vote.CastAt.Format("2006-01-02T15:04:05Z07:00")); err != nil {
			return errs.Wrap(err, "write vote output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(voteCmd)
	voteCmd.AddCommand(voteCastCmd, voteGetCmd)

	for _, c := range []*cobra.Command{voteCastCmd, voteGetCmd} {
		c.Flags().String("scope", "", "Governance scope id")
		c.Flags().String("request", "", "External request id")
		c.Flags().String("principal", "", "Voting principal")
		_ = c.MarkFlagRequired("scope")
		_ = c.MarkFlagRequired("request")
		_ = c.MarkFlagRequired("principal")
	}
	voteCastCmd.Flags().String("choice", "", "yes or no")
	_ = voteCastCmd.MarkFlagRequired("choice")
}
