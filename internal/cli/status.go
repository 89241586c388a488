package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/swapwatch/internal/indexing/health"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show endpoint and pipeline status of a running watcher",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "health server address (default localhost:<server.port>)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	addr := statusAddr
	if addr == "" {
		cfg := loadConfig()
		addr = fmt.Sprintf("localhost:%d", cfg.Server.Port)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report, err := fetchReport(ctx, "http://"+addr+"/health/detailed")
	if err != nil {
		slog.Error("Failed to fetch health report", "addr", addr, "error", err)
		os.Exit(1)
	}
	printReport(os.Stdout, report)
}

func fetchReport(ctx context.Context, url string) (*health.HealthReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var report health.HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}

func printReport(out io.Writer, r *health.HealthReport) {
	_, _ = fmt.Fprintf(out, "chain %s: %s\n", r.Chain, r.SystemStatus)
	_, _ = fmt.Fprintf(out, "pipeline: %s running=%t subscribed=%t queue=%d dropped=%d\n",
		r.Pipeline.Status, r.Pipeline.Running, r.Pipeline.Subscribed, r.Pipeline.QueueDepth, r.Pipeline.Dropped)
	_, _ = fmt.Fprintf(out, "price: %s stale=%t\n\n", r.Price.Status, r.Price.Stale)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ENDPOINT\tACTIVE\tCONNECTED\tFAILURES\tHEALTH\tLATENCY")
	for _, ep := range r.RPC.Endpoints {
		_, _ = fmt.Fprintf(w, "%s\t%t\t%t\t%d\t%s\t%s\n",
			ep.Name, ep.Active, ep.Connected, ep.FailureCount, ep.Health, ep.AverageLatency)
	}
	_ = w.Flush()
}
