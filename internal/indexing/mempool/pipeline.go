// Package mempool runs the pending-transaction surveillance pipeline: one
// subscription feeds a bounded queue drained by a fixed pool of workers that
// fetch, classify, decode, value and gate each transaction.
package mempool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/swapwatch/internal/core/domain"
	"github.com/vietddude/swapwatch/internal/indexing/dedup"
	"github.com/vietddude/swapwatch/internal/indexing/estimator"
	"github.com/vietddude/swapwatch/internal/indexing/metrics"
	"github.com/vietddude/swapwatch/internal/infra/rpc/provider"
	"github.com/vietddude/swapwatch/internal/infra/rpc/routing"
)

// ErrSubscriptionClosed is reported when the node ends a subscription
// without an error.
var ErrSubscriptionClosed = errors.New("pending transaction subscription closed")

// Classifier maps a transaction to a known router.
type Classifier interface {
	IdentifyTx(tx *domain.PendingTransaction) (domain.RouterInfo, bool)
}

// Decoder extracts a swap from router calldata.
type Decoder interface {
	Decode(tx *domain.PendingTransaction, router domain.RouterInfo) (*domain.NormalizedSwap, bool)
}

// Estimator values a decoded swap.
type Estimator interface {
	Estimate(swap *domain.NormalizedSwap, nativeValue *big.Int) estimator.Estimate
}

// Emitter gates and hands off opportunity events.
type Emitter interface {
	Offer(
		tx *domain.PendingTransaction,
		router domain.RouterInfo,
		swap *domain.NormalizedSwap,
		valueUSD, impact float64,
	) (*domain.OpportunityEvent, bool)
}

// Config holds pipeline settings and collaborators.
type Config struct {
	ChainID          domain.ChainID
	ChainName        string
	Workers          int
	QueueSize        int
	FetchTimeout     time.Duration
	ResubscribeDelay time.Duration
	DedupCeiling     int
	DedupRetain      int
	// MinValueUSD marks a decoded swap as large for statistics.
	MinValueUSD float64

	Executor   *routing.Executor
	Classifier Classifier
	Decoder    Decoder
	Estimator  Estimator
	Emitter    Emitter
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Observed        uint64 `json:"observed"`
	Duplicates      uint64 `json:"duplicates"`
	Fetched         uint64 `json:"fetched"`
	NotFound        uint64 `json:"not_found"`
	FetchErrors     uint64 `json:"fetch_errors"`
	Classified      uint64 `json:"classified"`
	Decoded         uint64 `json:"decoded"`
	Large           uint64 `json:"large"`
	Qualifying      uint64 `json:"qualifying"`
	Dropped         uint64 `json:"dropped"`
	Resubscriptions uint64 `json:"resubscriptions"`
	QueueDepth      int    `json:"queue_depth"`
	DedupSize       int    `json:"dedup_size"`
	DedupTrims      uint64 `json:"dedup_trims"`
	Subscribed      bool   `json:"subscribed"`
}

type counters struct {
	observed, duplicates, fetched, notFound, fetchErrors atomic.Uint64
	classified, decoded, large, qualifying, dropped      atomic.Uint64
	resubscriptions                                      atomic.Uint64
}

// Pipeline is the mempool surveillance loop.
type Pipeline struct {
	cfg     Config
	seen    *dedup.Window
	backoff routing.BackoffConfig
	log     *slog.Logger

	queue      chan common.Hash
	counters   counters
	subscribed atomic.Bool
	started    atomic.Bool
	running    atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a pipeline. Zero-valued settings fall back to defaults.
func New(cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	if cfg.ResubscribeDelay <= 0 {
		cfg.ResubscribeDelay = 3 * time.Second
	}
	return &Pipeline{
		cfg:  cfg,
		seen: dedup.New(cfg.DedupCeiling, cfg.DedupRetain),
		backoff: routing.BackoffConfig{
			InitialDelay:    cfg.ResubscribeDelay,
			MaxDelay:        10 * cfg.ResubscribeDelay,
			BackoffMultiple: 2,
		},
		log:   slog.Default().With("component", "mempool", "chain", cfg.ChainName),
		queue: make(chan common.Hash, cfg.QueueSize),
		stop:  make(chan struct{}),
	}
}

// Start runs the subscription and the worker pool until ctx is cancelled or
// Stop is called. It returns nil on a clean shutdown.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already started")
	}
	p.running.Store(true)
	defer p.running.Store(false)

	p.log.Info("Starting mempool pipeline",
		"workers", p.cfg.Workers,
		"queue_size", p.cfg.QueueSize,
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.subscribeLoop(gCtx)
	})
	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error {
			return p.work(gCtx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop ends the subscription. Workers finish the hashes already queued.
func (p *Pipeline) Stop() error {
	p.stopOnce.Do(func() { close(p.stop) })
	return nil
}

// Running reports whether Start is active.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	c := &p.counters
	return Stats{
		Observed:        c.observed.Load(),
		Duplicates:      c.duplicates.Load(),
		Fetched:         c.fetched.Load(),
		NotFound:        c.notFound.Load(),
		FetchErrors:     c.fetchErrors.Load(),
		Classified:      c.classified.Load(),
		Decoded:         c.decoded.Load(),
		Large:           c.large.Load(),
		Qualifying:      c.qualifying.Load(),
		Dropped:         c.dropped.Load(),
		Resubscriptions: c.resubscriptions.Load(),
		QueueDepth:      len(p.queue),
		DedupSize:       p.seen.Len(),
		DedupTrims:      p.seen.Trims(),
		Subscribed:      p.subscribed.Load(),
	}
}

// subscribeLoop owns the queue and closes it on exit so workers drain it.
// Stop cancels only the subscription side; workers keep running under ctx.
func (p *Pipeline) subscribeLoop(ctx context.Context) error {
	defer close(p.queue)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.stop:
			cancel()
		case <-subCtx.Done():
		}
	}()

	failures := 0
	for {
		delivered, err := p.subscribeOnce(subCtx)
		if subCtx.Err() != nil {
			return nil
		}
		if delivered {
			failures = 0
		}
		failures++
		p.counters.resubscriptions.Add(1)

		p.log.Warn("Pending transaction subscription ended, resubscribing",
			"error", err,
			"retry_in", p.backoff.Delay(failures-1),
		)
		if err := p.backoff.Sleep(subCtx, failures-1); err != nil {
			return nil
		}
	}
}

// subscribeOnce binds a subscription through the executor and forwards hashes
// until it fails. delivered reports whether any hash arrived.
func (p *Pipeline) subscribeOnce(ctx context.Context) (delivered bool, err error) {
	hashes := make(chan common.Hash, 256)

	res, idx, err := p.cfg.Executor.ExecuteBound(ctx,
		func(ctx context.Context, conn provider.Conn) (any, error) {
			sub, err := conn.SubscribePendingTransactions(ctx, hashes)
			if err != nil {
				return nil, err
			}
			// The attempt may have been abandoned while the call was in flight.
			if ctx.Err() != nil {
				sub.Unsubscribe()
				return nil, ctx.Err()
			}
			return sub, nil
		},
		routing.WithMethod("eth_subscribe"),
	)
	if err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	sub := res.(ethereum.Subscription)
	defer sub.Unsubscribe()

	endpoint := p.cfg.Executor.CurrentProvider().Name
	p.subscribed.Store(true)
	defer p.subscribed.Store(false)
	p.log.Info("Subscribed to pending transactions", "endpoint", endpoint)

	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = ErrSubscriptionClosed
			}
			metrics.SubscriptionErrorsTotal.WithLabelValues(p.cfg.ChainName, endpoint).Inc()
			p.cfg.Executor.RotateFrom(idx, "subscription")
			return delivered, err
		case h := <-hashes:
			delivered = true
			p.enqueue(h)
		}
	}
}

func (p *Pipeline) enqueue(h common.Hash) {
	p.counters.observed.Add(1)
	metrics.MempoolTxTotal.WithLabelValues(p.cfg.ChainName, "observed").Inc()

	select {
	case p.queue <- h:
	default:
		p.counters.dropped.Add(1)
		metrics.MempoolDroppedTotal.WithLabelValues(p.cfg.ChainName, "queue").Inc()
	}
}

func (p *Pipeline) work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case h, ok := <-p.queue:
			if !ok {
				return nil
			}
			p.Process(ctx, h)
		}
	}
}

// Process runs one hash through dedup, fetch, classification, decoding,
// valuation and the emission gate.
func (p *Pipeline) Process(ctx context.Context, h common.Hash) {
	if p.seen.Seen(h) {
		p.counters.duplicates.Add(1)
		return
	}

	tx, err := p.fetch(ctx, h)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			p.counters.notFound.Add(1)
			return
		}
		if ctx.Err() == nil {
			p.counters.fetchErrors.Add(1)
			p.log.Debug("Failed to fetch pending transaction", "tx", h.Hex(), "error", err)
		}
		return
	}
	p.counters.fetched.Add(1)

	router, ok := p.cfg.Classifier.IdentifyTx(tx)
	if !ok {
		return
	}
	p.counters.classified.Add(1)
	metrics.MempoolTxTotal.WithLabelValues(p.cfg.ChainName, "classified").Inc()

	swap, ok := p.cfg.Decoder.Decode(tx, router)
	if !ok {
		return
	}
	p.counters.decoded.Add(1)
	metrics.SwapsDecodedTotal.WithLabelValues(p.cfg.ChainName, router.Name, swap.Method).Inc()

	est := p.cfg.Estimator.Estimate(swap, tx.Value)
	metrics.SwapValueUSD.WithLabelValues(p.cfg.ChainName, router.Name).Observe(est.ValueUSD)
	if est.ValueUSD >= p.cfg.MinValueUSD {
		p.counters.large.Add(1)
		metrics.MempoolTxTotal.WithLabelValues(p.cfg.ChainName, "large").Inc()
	}

	if ev, queued := p.cfg.Emitter.Offer(tx, router, swap, est.ValueUSD, est.ImpactPercent); queued {
		p.counters.qualifying.Add(1)
		metrics.MempoolTxTotal.WithLabelValues(p.cfg.ChainName, "qualifying").Inc()
		p.log.Debug("Qualifying swap",
			"tx", ev.TxHash,
			"value_usd", est.ValueUSD,
			"impact_pct", est.ImpactPercent,
			"price_stale", est.PriceStale,
		)
	}
}

func (p *Pipeline) fetch(ctx context.Context, h common.Hash) (*domain.PendingTransaction, error) {
	tx, err := routing.Do(ctx, p.cfg.Executor,
		func(ctx context.Context, conn provider.Conn) (*types.Transaction, error) {
			tx, _, err := conn.TransactionByHash(ctx, h)
			if errors.Is(err, ethereum.NotFound) {
				// Dropped or replaced; no endpoint would do better.
				return nil, routing.Permanent(err)
			}
			return tx, err
		},
		routing.WithTimeout(p.cfg.FetchTimeout),
		routing.WithMethod("eth_getTransactionByHash"),
	)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ethereum.NotFound
	}
	return domain.NewPendingTransaction(tx), nil
}
