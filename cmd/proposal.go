package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"govsync/internal/bootstrap"
	"govsync/internal/bootstrap/logging"
	"govsync/internal/domain/governance"
	"govsync/internal/errs"
	govuc "govsync/internal/usecase/governance"
)

var proposalCmd = &cobra.Command{
	Use:   "proposal",
	Short: "Inspect and materialize governance proposals",
}

var proposalGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the proposal for a request",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *govuc.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		scope, _ := cmd.Flags().GetString("scope")
		request, _ := cmd.Flags().GetString("request")

		p, err := svc.GetProposal(ctx, scope, request)
		if err != nil {
			return err
		}
		return writeProposalDetail(cmd.OutOrStdout(), p)
	}),
}

var proposalEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Materialize the proposal for a request if it does not exist",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *govuc.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		scope, _ := cmd.Flags().GetString("scope")
		request, _ := cmd.Flags().GetString("request")
		category, _ := cmd.Flags().GetString("category")
		proposer, _ := cmd.Flags().GetString("proposer")

		p, err := svc.EnsureProposal(ctx, govuc.EnsureProposalInput{
			ScopeID:   scope,
			RequestID: request,
			Category:  category,
			Proposer:  proposer,
		})
		if err != nil {
			return err
		}
		return writeProposalDetail(cmd.OutOrStdout(), p)
	}),
}

var proposalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List proposals",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *govuc.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		scope, _ := cmd.Flags().GetString("scope")
		statuses, _ := cmd.Flags().GetStringSlice("status")
		limit, _ := cmd.Flags().GetInt("limit")

		input := govuc.ListProposalsInput{ScopeID: scope, Limit: limit}
		for _, raw := range statuses {
			status, err := governance.ParseProposalStatus(raw)
			if err != nil {
				return err
			}
			input.Statuses = append(input.Statuses, status)
		}

		items, err := svc.ListProposals(ctx, input)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "no proposals")
			return errs.Wrap(err, "write proposal list")
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(cmd.OutOrStdout())
		tw.SetStyle(table.StyleLight)
		tw.AppendHeader(table.Row{"Scope", "Request", "Category", "Threshold", "Yes", "No", "Total", "Voters", "Status", "Expires"})
		for _, p := range items {
			tw.AppendRow(table.Row{
				p.ScopeID,
				p.RequestID,
				p.Category,
				fmt.Sprintf("%d%%", p.ThresholdPct),
				p.YesVotes,
				p.NoVotes,
				p.TotalVotingPower,
				p.VoterCount,
				p.Status,
				p.ExpiresAt.Format("2006-01-02 15:04"),
			})
		}
		tw.SetColumnConfigs([]table.ColumnConfig{
			{Number: 5, Align: text.AlignRight},
			{Number: 6, Align: text.AlignRight},
			{Number: 7, Align: text.AlignRight},
			{Number: 8, Align: text.AlignRight},
		})
		tw.Render()
		return nil
	}),
}

var proposalEvaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Re-evaluate a proposal by id and signal the request source if it resolved",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *govuc.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		id, _ := cmd.Flags().GetString("id")

		p, err := svc.EvaluateProposal(ctx, id)
		if err != nil {
			return err
		}
		return writeProposalDetail(cmd.OutOrStdout(), p)
	}),
}

func writeProposalDetail(w io.Writer, p governance.Proposal) error {
	lines := []string{
		fmt.Sprintf("proposal %s", p.ID),
		fmt.Sprintf("  request:    %s/%s", p.ScopeID, p.RequestID),
		fmt.Sprintf("  category:   %s (%s)", p.Category, p.OperationType),
		fmt.Sprintf("  threshold:  %d%% %s, needs %d yes", p.ThresholdPct, p.RiskTier(), governance.RequiredYes(p.TotalVotingPower, p.ThresholdPct)),
		fmt.Sprintf("  tally:      yes=%d no=%d total=%d voters=%d", p.YesVotes, p.NoVotes, p.TotalVotingPower, p.VoterCount),
		fmt.Sprintf("  status:     %s (signal %s)", p.Status, p.SignalState),
		fmt.Sprintf("  expires_at: %s", p.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")),
	}
	if _, err := fmt.Fprintln(w, strings.Join(lines, "\n")); err != nil {
		return errs.Wrap(err, "write proposal")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(proposalCmd)
	proposalCmd.AddCommand(proposalGetCmd, proposalEnsureCmd, proposalListCmd, proposalEvaluateCmd)

	for _, c := range []*cobra.Command{proposalGetCmd, proposalEnsureCmd} {
		c.Flags().String("scope", "", "Governance scope id")
		c.Flags().String("request", "", "External request id")
		_ = c.MarkFlagRequired("scope")
		_ = c.MarkFlagRequired("request")
	}
	proposalEnsureCmd.Flags().String("category", "", "Operation category hint")
	proposalEnsureCmd.Flags().String("proposer", "", "Principal proposing; checked against the minimum voting power")

	proposalListCmd.Flags().String("scope", "", "Only this scope")
	proposalListCmd.Flags().StringSlice("status", nil, "Only these statuses (active, passed, rejected, expired, executed)")
	proposalListCmd.Flags().Int("limit", 100, "Maximum rows")

	proposalEvaluateCmd.Flags().String("id", "", "Proposal id")
	_ = proposalEvaluateCmd.MarkFlagRequired("id")
}
