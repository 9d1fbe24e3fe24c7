package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"govsync/internal/auth"
	"govsync/internal/bootstrap"
	"govsync/internal/errs"
	govuc "govsync/internal/usecase/governance"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API bearer tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a bearer token for a voting principal",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, _ *govuc.Service) error {
		principal, _ := cmd.Flags().GetString("principal")
		scopes, _ := cmd.Flags().GetStringSlice("scope")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		tokens, err := auth.NewTokens(app.Config.Auth.JWTSecret, app.Config.Auth.Issuer, app.Config.Auth.TokenTTL)
		if err != nil {
			return errs.Wrap(err, "auth.jwt_secret")
		}
		signed, expires, err := tokens.Issue(principal, scopes, ttl)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\n# expires %s\n", signed, expires.Format(time.RFC3339)); err != nil {
			return errs.Wrap(err, "write token")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd)

	tokenIssueCmd.Flags().String("principal", "", "Principal id (token subject)")
	tokenIssueCmd.Flags().StringSlice("scope", nil, "Restrict the token to these scopes")
	tokenIssueCmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to auth.token_ttl)")
	_ = tokenIssueCmd.MarkFlagRequired("principal")
}
