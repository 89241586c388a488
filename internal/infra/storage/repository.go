package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/swapwatch/internal/core/domain"
)

var (
	// ErrDuplicateEvent is returned when an event ID was already journaled
	ErrDuplicateEvent = errors.New("opportunity already recorded")
)

// OpportunityRepository journals emitted opportunity events
type OpportunityRepository interface {
	// Save records one event
	Save(ctx context.Context, event *domain.OpportunityEvent) error

	// Recent returns up to limit events, newest first
	Recent(ctx context.Context, limit int) ([]*domain.OpportunityEvent, error)

	// Count returns the number of recorded events
	Count(ctx context.Context) (int, error)

	// DeleteOlderThan removes events detected before the cutoff
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
