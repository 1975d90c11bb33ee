package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the vector index with the corpus",
	Long: `Scan the corpus, diff it against the last committed sync state, and
apply the changes to the vector index: removed documents are deleted,
new and changed documents are chunked, embedded, and upserted.

Interrupting a run commits nothing; the next run redoes the unfinished
work.

Examples:
  # One-shot sync with defaults
  corpusd sync --config config.yaml

  # Against an explicit corpus root
  CORPUSD_CORPUS_ROOT=/srv/docs corpusd sync`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := a.reconciler.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"run %s: scanned %d, added %d, updated %d, deleted %d, skipped %d, chunks upserted %d\n",
		report.RunID, report.Scanned, report.Added, report.Updated,
		report.Deleted, report.Skipped, report.ChunksUpserted)
	if report.Skipped > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d documents skipped; they will be retried on the next run\n", report.Skipped)
	}
	return nil
}
