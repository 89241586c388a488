package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/swapwatch/internal/infra/storage"
)

// Pruner deletes journaled opportunities older than the retention period.
type Pruner struct {
	retention time.Duration
	repo      storage.OpportunityRepository
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, repo storage.OpportunityRepository) *Pruner {
	return &Pruner{
		retention: retention,
		repo:      repo,
		now:       time.Now,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check every tenth of the retention period, between 1 minute and 1 hour.
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) int64 {
	cutoff := p.now().Add(-p.retention)
	removed, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to prune opportunity journal", "error", err)
		return 0
	}
	if removed > 0 {
		slog.Info("Pruned opportunity journal", "removed", removed, "cutoff", cutoff)
	}
	return removed
}
