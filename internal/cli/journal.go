package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/swapwatch/internal/core/domain"
	"github.com/vietddude/swapwatch/internal/infra/storage/postgres"
)

var (
	recentLimit int
	olderThan   time.Duration
)

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recent journaled opportunities",
	Run:   runRecent,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete journaled opportunities older than a duration",
	Run:   runPrune,
}

func init() {
	recentCmd.Flags().IntVar(&recentLimit, "limit", 20, "number of events to show")
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "age of events to delete")
	rootCmd.AddCommand(recentCmd, pruneCmd)
}

func openJournal(ctx context.Context) (*postgres.DB, *postgres.OpportunityRepo) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("database.url is not configured; the in-memory journal lives inside the watcher process")
		os.Exit(1)
	}
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return db, postgres.NewOpportunityRepo(db)
}

func runRecent(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	db, repo := openJournal(ctx)
	defer func() {
		_ = db.Close()
	}()

	events, err := repo.Recent(ctx, recentLimit)
	if err != nil {
		slog.Error("Failed to query journal", "error", err)
		os.Exit(1)
	}
	printEvents(os.Stdout, events)
}

func runPrune(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	db, repo := openJournal(ctx)
	defer func() {
		_ = db.Close()
	}()

	n, err := repo.DeleteOlderThan(ctx, time.Now().Add(-olderThan))
	if err != nil {
		slog.Error("Failed to prune journal", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d opportunities older than %s\n", n, olderThan)
}

func printEvents(out io.Writer, events []*domain.OpportunityEvent) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "DETECTED\tTX\tROUTER\tMETHOD\tVALUE_USD\tIMPACT_%")
	for _, e := range events {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%.4f\n",
			e.DetectedAt.Format(time.RFC3339), e.TxHash, e.Router.Name, e.Swap.Method, e.ValueUSD, e.ImpactPercent)
	}
	_ = w.Flush()
}
