package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jamesainslie/hasher/pkg/hasher/history"
	"github.com/jamesainslie/hasher/pkg/hasher/manifest"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recorded runs",
	Long: `View the history of generation and verification runs.

Each run records the manifest self-checksum, so 'hasher check' can warn
when a manifest changed after it was generated.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of a run",
	Long:  `Display a run by its ID or a unique prefix of at least four characters.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove runs older than the retention period",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of runs to show")
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of runs to show")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

var errHistoryDisabled = errors.New("history is disabled")

// requireHistory opens the history store for the history commands, which
// cannot degrade silently.
func requireHistory() (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, errHistoryDisabled
	}
	return history.Open(cfg.History.Path)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	store, err := requireHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		fmt.Fprintln(out, "Run 'hasher size [path]' or 'hasher xxh3 [path]' to generate a manifest.")
		return nil
	}

	fmt.Fprintf(out, "%-8s  %-16s  %-8s  %-11s  %8s  %7s  %s\n",
		"ID", "TIME", "OP", "MANIFEST", "FILES", "INVALID", "ROOT")
	fmt.Fprintln(out, strings.Repeat("-", 90))
	for _, r := range runs {
		invalid := "-"
		if r.Operation == history.OpVerify {
			invalid = fmt.Sprintf("%d", r.Invalid)
		}
		fmt.Fprintf(out, "%-8s  %-16s  %-8s  %-11s  %8d  %7s  %s\n",
			r.ShortID(),
			r.Time.Format("2006-01-02 15:04"),
			r.Operation,
			r.Manifest,
			r.Files,
			invalid,
			r.Root,
		)
	}
	fmt.Fprintln(out, strings.Repeat("-", 90))
	fmt.Fprintf(out, "Showing %d runs. Use --limit to see more.\n", len(runs))
	fmt.Fprintln(out, "Use 'hasher history show <id>' for details on a run.")
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := requireHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := store.Get(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Run Details")
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "ID:         %s\n", r.ID)
	fmt.Fprintf(out, "Time:       %s (%s)\n", r.Time.Format("2006-01-02 15:04:05 MST"), humanize.Time(r.Time))
	fmt.Fprintf(out, "Operation:  %s\n", r.Operation)
	fmt.Fprintf(out, "Root:       %s\n", r.Root)
	fmt.Fprintf(out, "Manifest:   %s\n", r.Manifest)
	fmt.Fprintf(out, "Kind:       %s\n", r.Kind)
	fmt.Fprintf(out, "Checksum:   %s\n", manifest.FormatChecksum(r.Checksum))
	fmt.Fprintf(out, "Files:      %d\n", r.Files)
	if r.Operation == history.OpVerify {
		fmt.Fprintf(out, "Invalid:    %d\n", r.Invalid)
		fmt.Fprintf(out, "Missing:    %d\n", r.Missing)
		if r.Untracked > 0 {
			fmt.Fprintf(out, "Untracked:  %d\n", r.Untracked)
		}
	}
	fmt.Fprintf(out, "Duration:   %s\n", r.Duration.Round(time.Millisecond))
	return nil
}

func runHistoryClean(cmd *cobra.Command, _ []string) error {
	store, err := requireHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	days := cfg.History.RetentionDays
	removed, err := store.Cleanup(days)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d runs older than %d days.\n", removed, days)
	return nil
}
