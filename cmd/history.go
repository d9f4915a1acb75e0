package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"clipmux/domain/video"
	"clipmux/infrastructure/history"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// HistoryLister returns stored invocations, newest first
type HistoryLister interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show previous trims",
	Long: `Show the most recent trims recorded in paths.history_database,
including failures, cancellations and swallowed cleanup errors.

Example:
  clipmux history --limit 5`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if cfg.Paths.HistoryDatabase == "" {
		return fmt.Errorf("history is disabled; set paths.history_database in the config file")
	}

	store, err := history.Open(cfg.Paths.HistoryDatabase)
	if err != nil {
		return err
	}
	defer store.Close()

	return RunHistoryWithDependencies(cmd.Context(), store, historyLimit, os.Stdout)
}

// RunHistoryWithDependencies runs the history command with injected dependencies (for testing)
func RunHistoryWithDependencies(ctx context.Context, lister HistoryLister, limit int, out OutputWriter) error {
	entries, err := lister.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No trims recorded.")
		return nil
	}

	headers := []string{"Finished", "Status", "Source", "Output", "Window", "Samples", "Elapsed", "Notes"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		window := fmt.Sprintf("%s-%s", video.TimestampFromMillis(e.StartMs), video.TimestampFromMillis(e.EndMs))
		rows = append(rows, []string{
			humanize.Time(e.FinishedAt),
			e.Status,
			e.Source,
			e.Destination,
			window,
			strconv.Itoa(e.SamplesWritten),
			e.Duration().Round(time.Millisecond).String(),
			entryNotes(e),
		})
	}

	fmt.Fprintln(out, renderTable(headers, rows, aligns))
	return nil
}

func entryNotes(e history.Entry) string {
	var notes []string
	if e.Error != "" {
		notes = append(notes, e.Error)
	}
	if e.CleanupError != "" {
		notes = append(notes, "cleanup: "+e.CleanupError)
	}
	if len(e.SkippedTracks) > 0 {
		notes = append(notes, fmt.Sprintf("skipped tracks %v", e.SkippedTracks))
	}
	return strings.Join(notes, "; ")
}
