package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/swapwatch/internal/indexing/emitter"
	"github.com/vietddude/swapwatch/internal/indexing/mempool"
	"github.com/vietddude/swapwatch/internal/indexing/metrics"
	"github.com/vietddude/swapwatch/internal/infra/rpc/routing"
)

// Sources are the components the reporter reads from. Nil entries are skipped.
type Sources struct {
	ChainName string
	Pipeline  interface{ Stats() mempool.Stats }
	Emitter   interface{ Stats() emitter.Stats }
	Executor  interface{ CurrentProvider() routing.ProviderInfo }
	Price     interface {
		SpotPriceUSD() (float64, bool)
	}
}

// Reporter logs pipeline statistics on a fixed cadence, whatever the state of
// the endpoints.
type Reporter struct {
	interval time.Duration
	src      Sources
	log      *slog.Logger
}

// NewReporter creates a reporter. A non-positive interval defaults to one minute.
func NewReporter(interval time.Duration, src Sources) *Reporter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reporter{
		interval: interval,
		src:      src,
		log:      slog.Default().With("component", "stats"),
	}
}

// Start runs the report loop until ctx is cancelled.
func (r *Reporter) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report()
		}
	}
}

// report emits one statistics line and returns the attributes it logged.
func (r *Reporter) report() []any {
	attrs := []any{"chain", r.src.ChainName}

	if r.src.Pipeline != nil {
		s := r.src.Pipeline.Stats()
		metrics.MempoolQueueDepth.WithLabelValues(r.src.ChainName).Set(float64(s.QueueDepth))
		attrs = append(attrs,
			"observed", s.Observed,
			"classified", s.Classified,
			"decoded", s.Decoded,
			"large", s.Large,
			"qualifying", s.Qualifying,
			"dropped", s.Dropped,
			"not_found", s.NotFound,
			"fetch_errors", s.FetchErrors,
			"queue_depth", s.QueueDepth,
			"dedup_size", s.DedupSize,
			"dedup_trims", s.DedupTrims,
			"subscribed", s.Subscribed,
		)
	}
	if r.src.Emitter != nil {
		s := r.src.Emitter.Stats()
		attrs = append(attrs, "emitted", s.Emitted, "events_dropped", s.Dropped)
	}
	if r.src.Executor != nil {
		attrs = append(attrs, "endpoint", r.src.Executor.CurrentProvider().Name)
	}
	if r.src.Price != nil {
		price, stale := r.src.Price.SpotPriceUSD()
		attrs = append(attrs, "spot_usd", price, "price_stale", stale)
	}

	r.log.Info("Mempool statistics", attrs...)
	return attrs
}
