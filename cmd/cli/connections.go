package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/beacon/internal/integrations"
	"github.com/zfogg/beacon/internal/kernel"
)

var connectionsOrg string

var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "Inspect provider connections",
}

var listConnectionsCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the connection status of every provider for an organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKernel(cmd, func(ctx context.Context, k *kernel.Kernel) error {
			return listConnections(ctx, k.Configs(), connectionsOrg, cmd.OutOrStdout())
		})
	},
}

func init() {
	listConnectionsCmd.Flags().StringVar(&connectionsOrg, "org", "", "Organization ID")
	_ = listConnectionsCmd.MarkFlagRequired("org")
	connectionsCmd.AddCommand(listConnectionsCmd)
}

func listConnections(ctx context.Context, store integrations.Store, orgID string, w io.Writer) error {
	statuses, err := integrations.Statuses(ctx, store, orgID)
	if err != nil {
		return err
	}
	if output == "json" {
		return printJSON(w, statuses)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tCONNECTED\tACCOUNT\tEXPIRES")
	for _, st := range statuses {
		expires := "-"
		switch {
		case st.Expired:
			expires = "expired"
		case st.ExpiresAt != nil:
			expires = st.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", st.Provider, st.Connected, st.AccountName, expires)
	}
	return tw.Flush()
}
