package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zfogg/beacon/internal/kernel"
	"github.com/zfogg/beacon/internal/models"
	"gorm.io/gorm"
)

var orgsCmd = &cobra.Command{
	Use:   "orgs",
	Short: "Inspect organizations",
}

var listOrgsCmd = &cobra.Command{
	Use:   "list",
	Short: "List every organization with its member count",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKernel(cmd, func(ctx context.Context, k *kernel.Kernel) error {
			return listOrgs(ctx, k.DB(), cmd.OutOrStdout())
		})
	},
}

func init() {
	orgsCmd.AddCommand(listOrgsCmd)
}

type orgRow struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Members int64  `json:"members"`
}

func listOrgs(ctx context.Context, db *gorm.DB, w io.Writer) error {
	var rows []orgRow
	err := db.WithContext(ctx).
		Model(&models.Organization{}).
		Select("organizations.id, organizations.name, organizations.slug, COUNT(memberships.id) AS members").
		Joins("LEFT JOIN memberships ON memberships.org_id = organizations.id").
		Group("organizations.id, organizations.name, organizations.slug").
		Order("organizations.name").
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to list organizations: %w", err)
	}

	if output == "json" {
		return printJSON(w, rows)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSLUG\tMEMBERS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.ID, r.Name, r.Slug, r.Members)
	}
	return tw.Flush()
}
