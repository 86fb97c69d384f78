package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/news-intel/internal/model"
	"github.com/sells-group/news-intel/internal/store"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect prospect leads",
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prospect leads, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("query"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		leads, err := st.ListLeads(ctx, store.LeadFilter{Status: model.LeadStatus(status), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "leads list")
		}
		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}

		formatLeads(os.Stdout, leads)
		return nil
	},
}

func formatLeads(w io.Writer, leads []model.ProspectLead) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tSTATUS\tCOMPANY\tSECTOR\tRATIONALE")
	for _, l := range leads {
		sector := l.Sector
		if sector == "" {
			sector = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			l.CreatedAt.Format("2006-01-02 15:04"),
			l.Status,
			l.CompanyName,
			sector,
			truncate(l.Rationale, 60),
		)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	leadsListCmd.Flags().String("status", "", "filter by status (new, contacted, qualified, closed)")
	leadsListCmd.Flags().Int("limit", 50, "maximum leads to list")
	leadsCmd.AddCommand(leadsListCmd)
	rootCmd.AddCommand(leadsCmd)
}
