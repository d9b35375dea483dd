package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/atlas-utilities/billing-cli/internal/history"
	"github.com/atlas-utilities/billing-cli/internal/model"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or reset the packet generation history",
	Long:  "Commands for listing stored packet fingerprints and forcing regeneration by deleting them.",
}

// -- history list --

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List generated packets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("history"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		workRequest, _ := cmd.Flags().GetString("work-request")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		recs, err := st.List(ctx, history.Filter{
			WorkRequest: workRequest,
			Limit:       limit,
			Offset:      offset,
		})
		if err != nil {
			return eris.Wrap(err, "history list")
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No history records found.")
			return nil
		}

		formatHistoryList(os.Stdout, recs)
		return nil
	},
}

// -- history reset --

var historyResetAll bool

var historyResetCmd = &cobra.Command{
	Use:   "reset [key...]",
	Short: "Delete history records so the next run regenerates those packets",
	Long: `Delete stored fingerprints by packet key, or every record with --all.
A packet with no history record is treated as first generation on the
next run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("history"); err != nil {
			return err
		}

		if len(args) == 0 && !historyResetAll {
			return eris.New("nothing to reset: pass packet keys or --all")
		}
		if len(args) > 0 && historyResetAll {
			return eris.New("pass packet keys or --all, not both")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		// nil keys means delete everything.
		var keys []string
		if !historyResetAll {
			keys = args
		}

		n, err := st.Reset(ctx, keys)
		if err != nil {
			return eris.Wrap(err, "history reset")
		}

		fmt.Fprintf(os.Stdout, "Deleted %d history record(s).\n", n)
		return nil
	},
}

func init() {
	historyListCmd.Flags().String("work-request", "", "filter by work request number")
	historyListCmd.Flags().Int("limit", 50, "max number of records to display")
	historyListCmd.Flags().Int("offset", 0, "records to skip")

	historyResetCmd.Flags().BoolVar(&historyResetAll, "all", false, "delete every history record")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyResetCmd)
	rootCmd.AddCommand(historyCmd)
}

// formatHistoryList writes a tabular list of history records to w.
func formatHistoryList(out io.Writer, recs []model.HistoryRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tFINGERPRINT\tGENERATED\tARTIFACT")
	_, _ = fmt.Fprintln(w, "---\t-----------\t---------\t--------")

	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.Key,
			r.Fingerprint,
			r.GeneratedAt.Format("2006-01-02 15:04"),
			r.ArtifactRef,
		)
	}
	_ = w.Flush()
}
