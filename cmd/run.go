package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/news-intel/internal/model"
)

var runJSON bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one pipeline pass",
	Long:  "Fetches every configured source, analyses fresh articles, stores the relevant ones and raises alerts and leads.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "pipeline")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Run(ctx)
		if err != nil {
			return err
		}

		if runJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		formatRunResult(os.Stdout, res)
		return nil
	},
}

func formatRunResult(w io.Writer, res *model.RunResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Fetched\t%d\n", res.Fetched)
	fmt.Fprintf(tw, "Fresh\t%d\n", res.Fresh)
	fmt.Fprintf(tw, "Relevant\t%d\n", res.Relevant)
	fmt.Fprintf(tw, "Deep analysed\t%d\n", res.DeepRuns)
	fmt.Fprintf(tw, "Stored\t%d\n", res.Stored)
	fmt.Fprintf(tw, "Alerts\t%d\n", res.Alerts)
	fmt.Fprintf(tw, "Leads\t%d\n", res.Leads)
	fmt.Fprintf(tw, "Failed\t%d\n", res.Failed)
	fmt.Fprintf(tw, "Est. cost\t$%.4f\n", res.EstCostUSD)
	fmt.Fprintf(tw, "Elapsed\t%s\n", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	tw.Flush() //nolint:errcheck

	if len(res.Articles) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tBREAKING\tCOMPANY\tTITLE")
	for _, a := range res.Articles {
		company := "-"
		if m, ok := a.PrimaryCompany(); ok {
			company = m.CompanyID
		}
		breaking := ""
		if a.IsBreaking {
			breaking = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", a.RelevanceScore, breaking, company, truncate(a.Title, 80))
	}
	tw.Flush() //nolint:errcheck
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the run result as JSON")
	rootCmd.AddCommand(runCmd)
}
