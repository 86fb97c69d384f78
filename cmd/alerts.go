package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/news-intel/internal/alert"
	"github.com/sells-group/news-intel/internal/model"
	"github.com/sells-group/news-intel/internal/notify"
	"github.com/sells-group/news-intel/internal/store"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect and manage user alerts",
}

// openDispatcher opens the store and a dispatcher over it for the alert
// subcommands.
func openDispatcher(cmd *cobra.Command) (store.Store, *alert.Dispatcher, func(), error) {
	if err := cfg.Validate("query"); err != nil {
		return nil, nil, nil, err
	}
	st, err := initStore(cmd.Context())
	if err != nil {
		return nil, nil, nil, err
	}
	n, err := notify.New(cfg.Notify)
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, err
	}
	closeFn := func() {
		_ = notify.Close(n)
		_ = st.Close()
	}
	return st, alert.NewDispatcher(alert.NewClassifier(cfg.Alerts.MinRelevance), st, n), closeFn, nil
}

// -- alerts list --

var alertsListCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List a user's alerts, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, closeFn, err := openDispatcher(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		unread, _ := cmd.Flags().GetBool("unread")
		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")

		alerts, err := st.ListAlerts(cmd.Context(), store.AlertFilter{
			UserID:           args[0],
			UnreadOnly:       unread,
			IncludeDismissed: all,
			Limit:            limit,
		})
		if err != nil {
			return eris.Wrap(err, "alerts list")
		}
		if len(alerts) == 0 {
			fmt.Fprintln(os.Stderr, "No alerts found.")
			return nil
		}
		formatAlerts(os.Stdout, alerts)
		return nil
	},
}

func formatAlerts(w io.Writer, alerts []model.Alert) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tPRIORITY\tTYPE\tSTATE\tTITLE")
	for _, a := range alerts {
		state := "unread"
		switch {
		case a.DismissedAt != nil:
			state = "dismissed"
		case a.ReadAt != nil:
			state = "read"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID,
			a.CreatedAt.Format("2006-01-02 15:04"),
			a.Priority,
			a.Type,
			state,
			truncate(a.Title, 70),
		)
	}
	tw.Flush() //nolint:errcheck
}

// -- alerts read / dismiss --

var alertsReadCmd = &cobra.Command{
	Use:   "read <alert-id>",
	Short: "Mark an alert as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, d, closeFn, err := openDispatcher(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		return d.MarkRead(cmd.Context(), args[0])
	},
}

var alertsDismissCmd = &cobra.Command{
	Use:   "dismiss <alert-id>",
	Short: "Dismiss an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, d, closeFn, err := openDispatcher(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		return d.Dismiss(cmd.Context(), args[0])
	},
}

// -- alerts digest --

var alertsDigestCmd = &cobra.Command{
	Use:   "digest <user-id>",
	Short: "Build a user's alert digest, optionally delivering it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, d, closeFn, err := openDispatcher(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		window, _ := cmd.Flags().GetDuration("since")
		send, _ := cmd.Flags().GetBool("send")
		since := time.Now().Add(-window)

		var dg *alert.Digest
		if send {
			u, err := findUser(cmd, st, args[0])
			if err != nil {
				return err
			}
			dg, err = d.SendDigest(cmd.Context(), u, since)
			if err != nil {
				return err
			}
		} else {
			dg, err = d.Digest(cmd.Context(), args[0], since)
			if err != nil {
				return err
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(dg)
	},
}

func findUser(cmd *cobra.Command, st store.Store, id string) (model.User, error) {
	users, err := st.ListUsers(cmd.Context())
	if err != nil {
		return model.User{}, eris.Wrap(err, "list users")
	}
	for _, u := range users {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{}, eris.Wrapf(store.ErrNotFound, "user %s", id)
}

func init() {
	alertsListCmd.Flags().Bool("unread", false, "only unread alerts")
	alertsListCmd.Flags().Bool("all", false, "include dismissed alerts")
	alertsListCmd.Flags().Int("limit", 50, "maximum alerts to list")
	alertsDigestCmd.Flags().Duration("since", 24*time.Hour, "digest window")
	alertsDigestCmd.Flags().Bool("send", false, "deliver the digest through the configured notifier")

	alertsCmd.AddCommand(alertsListCmd, alertsReadCmd, alertsDismissCmd, alertsDigestCmd)
	rootCmd.AddCommand(alertsCmd)
}
