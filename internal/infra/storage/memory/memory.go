package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/swapwatch/internal/core/domain"
	"github.com/vietddude/swapwatch/internal/infra/storage"
)

// DefaultCapacity bounds the in-memory journal.
const DefaultCapacity = 1000

// OpportunityRepo keeps the most recent events in process memory. Older
// events are dropped once capacity is reached.
type OpportunityRepo struct {
	mu       sync.RWMutex
	capacity int
	events   []*domain.OpportunityEvent // oldest first
	ids      map[string]struct{}
	total    int
}

var _ storage.OpportunityRepository = (*OpportunityRepo)(nil)

func NewOpportunityRepo(capacity int) *OpportunityRepo {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &OpportunityRepo{
		capacity: capacity,
		ids:      make(map[string]struct{}),
	}
}

func (r *OpportunityRepo) Save(ctx context.Context, event *domain.OpportunityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[event.ID]; ok {
		return storage.ErrDuplicateEvent
	}
	r.events = append(r.events, event)
	r.ids[event.ID] = struct{}{}
	r.total++

	if over := len(r.events) - r.capacity; over > 0 {
		for _, old := range r.events[:over] {
			delete(r.ids, old.ID)
		}
		r.events = append([]*domain.OpportunityEvent(nil), r.events[over:]...)
	}
	return nil
}

func (r *OpportunityRepo) Recent(ctx context.Context, limit int) ([]*domain.OpportunityEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.events) {
		limit = len(r.events)
	}
	out := make([]*domain.OpportunityEvent, 0, limit)
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.events[i])
	}
	return out, nil
}

// Count returns every event saved since start, including ones since evicted.
func (r *OpportunityRepo) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total, nil
}

func (r *OpportunityRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.events[:0]
	var removed int64
	for _, e := range r.events {
		if e.DetectedAt.Before(cutoff) {
			delete(r.ids, e.ID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return removed, nil
}
