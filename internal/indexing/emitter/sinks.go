package emitter

import (
	"context"
	"log/slog"

	"github.com/vietddude/swapwatch/internal/core/domain"
	"github.com/vietddude/swapwatch/internal/infra/storage"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{log: slog.Default().With("component", "opportunity")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Emit(ctx context.Context, e *domain.OpportunityEvent) error {
	s.log.Info("Large swap detected",
		"id", e.ID,
		"tx", e.TxHash,
		"router", e.Router.Name,
		"method", e.Swap.Method,
		"token_in", e.Swap.TokenIn,
		"token_out", e.Swap.TokenOut,
		"amount_in", e.Swap.AmountIn.String(),
		"value_usd", e.ValueUSD,
		"impact_pct", e.ImpactPercent,
	)
	return nil
}

func (s *LogSink) Close() error { return nil }

// Publisher is the subset of the Redis stream publisher the sink needs.
type Publisher interface {
	Publish(ctx context.Context, event *domain.OpportunityEvent) (string, error)
}

// StreamSink appends events to a Redis stream.
type StreamSink struct {
	pub Publisher
}

func NewStreamSink(pub Publisher) *StreamSink {
	return &StreamSink{pub: pub}
}

func (s *StreamSink) Name() string { return "redis_stream" }

func (s *StreamSink) Emit(ctx context.Context, e *domain.OpportunityEvent) error {
	_, err := s.pub.Publish(ctx, e)
	return err
}

func (s *StreamSink) Close() error { return nil }

// JournalSink records events in an OpportunityRepository.
type JournalSink struct {
	repo storage.OpportunityRepository
}

func NewJournalSink(repo storage.OpportunityRepository) *JournalSink {
	return &JournalSink{repo: repo}
}

func (s *JournalSink) Name() string { return "journal" }

func (s *JournalSink) Emit(ctx context.Context, e *domain.OpportunityEvent) error {
	return s.repo.Save(ctx, e)
}

func (s *JournalSink) Close() error { return nil }
