package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/config"
	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"github.com/kursadbilgin/attendance-notifier/internal/failures"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type storeOptions struct {
	logPath     string
	recordsPath string
}

func (o *storeOptions) open() (*failures.Store, error) {
	return failures.Open(o.logPath, o.recordsPath)
}

func rootCmd() *cobra.Command {
	opts := &storeOptions{}
	if paths, err := config.LoadFailurePaths(); err == nil {
		opts.logPath = paths.LogPath
		opts.recordsPath = paths.RecordsPath
	}

	cmd := &cobra.Command{
		Use:           "failures",
		Short:         "Inspect and maintain the failed delivery records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logPath, "log", opts.logPath, "Failure line log (CSV)")
	cmd.PersistentFlags().StringVar(&opts.recordsPath, "records", opts.recordsPath, "Per-contact failure records (JSON)")

	cmd.AddCommand(listCmd(opts))
	cmd.AddCommand(summaryCmd(opts))
	cmd.AddCommand(exportCmd(opts))
	cmd.AddCommand(removeCmd(opts))
	cmd.AddCommand(clearCmd(opts))

	return cmd
}

func listCmd(opts *storeOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List failed contacts, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.open()
			if err != nil {
				return err
			}

			records, err := store.Records()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CONTACT\tREASON\tATTEMPTS\tLAST ATTEMPT\tDETAIL")
			for _, r := range records {
				if reason != "" && r.Reason.String() != reason {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					r.Contact, r.Reason, r.Attempts, r.LastAttempt.Format(time.RFC3339), r.Detail)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Only show one failure reason")
	return cmd
}

func summaryCmd(opts *storeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Count failed contacts by reason",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.open()
			if err != nil {
				return err
			}
			summary, err := store.Summary()
			if err != nil {
				return err
			}
			writeSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}

func writeSummary(out io.Writer, summary failures.Summary) {
	fmt.Fprintf(out, "Failed contacts: %d\n", summary.Total)

	reasons := make([]domain.FailureReason, 0, len(summary.ByReason))
	for reason := range summary.ByReason {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if summary.ByReason[reasons[i]] != summary.ByReason[reasons[j]] {
			return summary.ByReason[reasons[i]] > summary.ByReason[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	for _, reason := range reasons {
		fmt.Fprintf(out, "  %-20s %4d  %s\n", reason, summary.ByReason[reason], reason.Description())
	}
}

func exportCmd(opts *storeOptions) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the failure report as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.open()
			if err != nil {
				return err
			}
			if outPath == "" || outPath == "-" {
				return store.ExportCSV(cmd.OutOrStdout())
			}

			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", outPath, err)
			}
			if err := store.ExportCSV(f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			summary, err := store.Summary()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to %s\n", summary.Total, outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func removeCmd(opts *storeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove [contact]",
		Short: "Forget one contact after its number was corrected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.open()
			if err != nil {
				return err
			}
			removed, err := store.Remove(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no failure record for %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}

func clearCmd(opts *storeOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every failure record; the line log is kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear without --yes")
			}
			store, err := opts.open()
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cleared failure records")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm clearing")
	return cmd
}
