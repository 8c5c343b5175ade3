package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/beacon/internal/connect"
	"github.com/zfogg/beacon/internal/integrations"
	"github.com/zfogg/beacon/internal/kernel"
)

var (
	tokenOrg      string
	tokenProvider string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Work with stored provider tokens",
}

var checkTokenCmd = &cobra.Command{
	Use:   "check",
	Short: "Load a provider token, refreshing it when it is about to expire",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := integrations.ParseProvider(tokenProvider)
		if err != nil {
			return err
		}
		return withKernel(cmd, func(ctx context.Context, k *kernel.Kernel) error {
			return checkToken(ctx, k.Connect(), tokenOrg, p, cmd.OutOrStdout())
		})
	},
}

func init() {
	checkTokenCmd.Flags().StringVar(&tokenOrg, "org", "", "Organization ID")
	checkTokenCmd.Flags().StringVar(&tokenProvider, "provider", "", "Provider: google, facebook, instagram, linkedin or webflow")
	_ = checkTokenCmd.MarkFlagRequired("org")
	_ = checkTokenCmd.MarkFlagRequired("provider")
	tokenCmd.AddCommand(checkTokenCmd)
}

// TokenSource yields a usable token for a provider
type TokenSource interface {
	Token(ctx context.Context, orgID string, p integrations.Provider) (*integrations.ProviderConfig, error)
}

var _ TokenSource = (*connect.Service)(nil)

func checkToken(ctx context.Context, tokens TokenSource, orgID string, p integrations.Provider, w io.Writer) error {
	cfg, err := tokens.Token(ctx, orgID, p)
	if err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	status := integrations.StatusOf(p, cfg, time.Now())
	if output == "json" {
		return printJSON(w, status)
	}

	fmt.Fprintf(w, "%s is connected", p)
	if status.AccountName != "" {
		fmt.Fprintf(w, " as %s", status.AccountName)
	}
	fmt.Fprintln(w)
	if status.ExpiresAt != nil {
		fmt.Fprintf(w, "  expires:       %s (in %s)\n", status.ExpiresAt.Format(time.RFC3339), time.Until(*status.ExpiresAt).Round(time.Minute))
	} else {
		fmt.Fprintln(w, "  expires:       never")
	}
	fmt.Fprintf(w, "  refresh token: %t\n", status.HasRefreshToken)
	return nil
}
