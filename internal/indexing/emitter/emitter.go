// Package emitter gates scored swaps against the opportunity thresholds and
// hands qualifying events to downstream sinks.
package emitter

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/swapwatch/internal/core/domain"
	"github.com/vietddude/swapwatch/internal/indexing/metrics"
)

// Sink receives each emitted event once. Failures are logged and counted,
// never retried.
type Sink interface {
	Name() string
	Emit(ctx context.Context, event *domain.OpportunityEvent) error
	Close() error
}

// Config holds the emission thresholds.
type Config struct {
	ChainID         domain.ChainID
	MinValueUSD     float64
	ImpactThreshold float64
	ChannelSize     int
}

// Stats is a snapshot of emitter counters.
type Stats struct {
	Emitted   uint64
	Dropped   uint64
	Delivered uint64
	Pending   int
}

// Emitter builds OpportunityEvents and delivers them without blocking the
// caller. When the hand-off channel is full the event is dropped.
type Emitter struct {
	cfg    Config
	events chan *domain.OpportunityEvent
	sinks  []Sink
	log    *slog.Logger

	now   func() time.Time
	newID func() string

	emitted   atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// New creates an emitter delivering to the given sinks.
func New(cfg Config, sinks ...Sink) *Emitter {
	if cfg.ChannelSize <= 0 {
		cfg.ChannelSize = 256
	}
	return &Emitter{
		cfg:    cfg,
		events: make(chan *domain.OpportunityEvent, cfg.ChannelSize),
		sinks:  sinks,
		log:    slog.Default().With("component", "emitter"),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// Qualifies reports whether a valuation passes both thresholds.
func (e *Emitter) Qualifies(valueUSD, impact float64) bool {
	return valueUSD >= e.cfg.MinValueUSD && impact > e.cfg.ImpactThreshold
}

// Offer builds and enqueues an event when the swap passes both thresholds.
//
// It returns (nil, false) when the swap does not qualify, (event, false) when
// the event qualified but was dropped on a full channel, and (event, true)
// when the event was queued for delivery.
func (e *Emitter) Offer(
	tx *domain.PendingTransaction,
	router domain.RouterInfo,
	swap *domain.NormalizedSwap,
	valueUSD, impact float64,
) (*domain.OpportunityEvent, bool) {
	if tx == nil || swap == nil || !e.Qualifies(valueUSD, impact) {
		return nil, false
	}

	event := &domain.OpportunityEvent{
		ID:            e.newID(),
		ChainID:       e.cfg.ChainID,
		TxHash:        tx.Hash.Hex(),
		From:          tx.From.Hex(),
		Router:        router,
		Swap:          *swap,
		ValueUSD:      valueUSD,
		ImpactPercent: impact,
		DetectedAt:    e.now(),
	}
	if tx.GasPrice != nil {
		event.GasPrice = tx.GasPrice.String()
	}

	select {
	case e.events <- event:
		e.emitted.Add(1)
		metrics.OpportunitiesTotal.WithLabelValues(string(e.cfg.ChainID), router.Name).Inc()
		return event, true
	default:
		e.dropped.Add(1)
		metrics.MempoolDroppedTotal.WithLabelValues(string(e.cfg.ChainID), "opportunities").Inc()
		e.log.Warn("Opportunity channel full, dropping event",
			"tx", event.TxHash,
			"value_usd", valueUSD,
		)
		return event, false
	}
}

// Run delivers queued events to every sink until ctx is cancelled.
func (e *Emitter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-e.events:
			e.deliver(ctx, event)
		}
	}
}

// Drain delivers whatever is still queued without waiting for more.
func (e *Emitter) Drain(ctx context.Context) {
	for {
		select {
		case event := <-e.events:
			e.deliver(ctx, event)
		default:
			return
		}
	}
}

func (e *Emitter) deliver(ctx context.Context, event *domain.OpportunityEvent) {
	for _, sink := range e.sinks {
		if err := sink.Emit(ctx, event); err != nil {
			metrics.SinkErrorsTotal.WithLabelValues(sink.Name()).Inc()
			e.log.Error("Failed to deliver opportunity",
				"sink", sink.Name(),
				"id", event.ID,
				"error", err,
			)
		}
	}
	e.delivered.Add(1)
}

// Stats returns the current counters.
func (e *Emitter) Stats() Stats {
	return Stats{
		Emitted:   e.emitted.Load(),
		Dropped:   e.dropped.Load(),
		Delivered: e.delivered.Load(),
		Pending:   len(e.events),
	}
}

// Close closes every sink.
func (e *Emitter) Close() error {
	var first error
	for _, sink := range e.sinks {
		if err := sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
