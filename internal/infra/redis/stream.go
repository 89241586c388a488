package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/swapwatch/internal/core/domain"
)

// StreamPublisher appends opportunity events to a capped Redis stream.
type StreamPublisher struct {
	client *Client
	key    string
	maxLen int64
}

// NewStreamPublisher publishes to key, trimming the stream to roughly maxLen
// entries. A non-positive maxLen disables trimming.
func NewStreamPublisher(client *Client, key string, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: client, key: key, maxLen: maxLen}
}

// Key returns the stream key.
func (p *StreamPublisher) Key() string {
	return p.key
}

// Publish appends one event and returns the stream entry ID.
func (p *StreamPublisher) Publish(ctx context.Context, event *domain.OpportunityEvent) (string, error) {
	values, err := streamValues(event)
	if err != nil {
		return "", err
	}

	args := &redis.XAddArgs{
		Stream: p.key,
		Values: values,
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s failed: %w", p.key, err)
	}
	return id, nil
}

// streamValues flattens the fields consumers filter on and carries the full
// event as JSON.
func streamValues(event *domain.OpportunityEvent) (map[string]any, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal opportunity: %w", err)
	}
	return map[string]any{
		"id":        event.ID,
		"type":      string(domain.EventTypeLargeSwap),
		"chain_id":  string(event.ChainID),
		"tx_hash":   event.TxHash,
		"router":    event.Router.Name,
		"value_usd": strconv.FormatFloat(event.ValueUSD, 'f', 2, 64),
		"impact":    strconv.FormatFloat(event.ImpactPercent, 'f', 4, 64),
		"payload":   string(payload),
	}, nil
}
