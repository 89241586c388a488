package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/swapwatch/internal/core/worker"
	"github.com/vietddude/swapwatch/internal/indexing/decoder"
	"github.com/vietddude/swapwatch/internal/indexing/emitter"
	"github.com/vietddude/swapwatch/internal/indexing/estimator"
	"github.com/vietddude/swapwatch/internal/indexing/health"
	"github.com/vietddude/swapwatch/internal/indexing/mempool"
	"github.com/vietddude/swapwatch/internal/indexing/price"
	redisclient "github.com/vietddude/swapwatch/internal/infra/redis"
	"github.com/vietddude/swapwatch/internal/infra/rpc/provider"
	"github.com/vietddude/swapwatch/internal/infra/rpc/routing"
	"github.com/vietddude/swapwatch/internal/infra/storage"
	"github.com/vietddude/swapwatch/internal/infra/storage/memory"
	"github.com/vietddude/swapwatch/internal/infra/storage/postgres"
)

// Watcher is the main application struct that manages the pipeline lifecycle.
type Watcher struct {
	cfg          Config
	pool         *provider.Pool
	executor     *routing.Executor
	price        *price.Cache
	pipeline     *mempool.Pipeline
	emitter      *emitter.Emitter
	journal      storage.OpportunityRepository
	healthMon    *health.Monitor
	healthServer *health.Server
	reporter     *worker.Reporter
	pruner       *worker.Pruner
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger

	cancel       context.CancelFunc
	pipelineDone chan struct{}
	wg           sync.WaitGroup
}

// NewWatcher creates a new Watcher instance with all dependencies initialized.
func NewWatcher(cfg Config) (*Watcher, error) {
	if cfg.Dial == nil {
		cfg.Dial = provider.DialEth
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = 10 * time.Second
	}
	chainName := string(cfg.Chain.Name)
	log := slog.Default().With("chain", chainName)

	// 1. Journal storage
	var journal storage.OpportunityRepository
	var db *postgres.DB
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
		journal = postgres.NewOpportunityRepo(db)
		log.Info("Using PostgreSQL journal")
	} else {
		journal = memory.NewOpportunityRepo(cfg.Opportunity.JournalCapacity)
		log.Info("Using memory journal", "capacity", cfg.Opportunity.JournalCapacity)
	}

	// 2. Redis stream, optional
	var redisClient *redisclient.Client
	if cfg.Redis.Enabled() {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, stream sink disabled", "error", err)
			redisClient = nil
		}
	}

	// release closes what was opened before a later step failed.
	var opened []func() error
	if db != nil {
		opened = append(opened, db.Close)
	}
	if redisClient != nil {
		opened = append(opened, redisClient.Close)
	}
	release := func() { closeAll(log, opened) }

	// 3. Endpoint pool and failover executor
	pool, err := provider.NewPool(endpointConfigs(cfg.Endpoints), cfg.Dial)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to build endpoint pool: %w", err)
	}
	exec := routing.NewExecutor(pool, routing.Config{
		FailoverThreshold: cfg.Failover.Threshold,
		CooldownPeriod:    cfg.Failover.Cooldown,
		ChainName:         chainName,
	})
	exec.SetRotationCallback(func(from, to, reason string) {
		log.Info("Active endpoint changed", "from", from, "to", to, "reason", reason)
	})
	exec.SetAttemptObserver(func(a routing.Attempt) {
		if a.Err != nil {
			log.Debug("RPC attempt failed", "endpoint", a.Endpoint, "elapsed", a.Elapsed, "error", a.Err)
		}
	})

	// 4. Valuation
	var feed common.Address
	if cfg.Price.Feed != "" {
		feed = common.HexToAddress(cfg.Price.Feed)
	}
	priceCache, err := price.New(exec, price.Config{
		ChainName:       chainName,
		Feed:            feed,
		RefreshInterval: cfg.Price.RefreshInterval,
		MaxAge:          cfg.Price.MaxAge,
		Initial:         cfg.Price.Initial,
	})
	if err != nil {
		release()
		return nil, err
	}
	tokenReg := tokenRegistry(cfg.Chain.ID, cfg.Tokens)
	routers := routerRegistry(cfg.Chain.ID, cfg.Routers)
	est := estimator.New(tokenReg, priceCache, estimator.Config{
		ImpactDivisor: cfg.Opportunity.ImpactDivisor,
		ImpactCap:     cfg.Opportunity.ImpactCap,
	})

	// 5. Emitter and sinks
	sinks := []emitter.Sink{emitter.NewLogSink(), emitter.NewJournalSink(journal)}
	if redisClient != nil {
		pub := redisclient.NewStreamPublisher(
			redisClient,
			cfg.Opportunity.StreamKey,
			cfg.Opportunity.StreamMaxLen,
		)
		sinks = append(sinks, emitter.NewStreamSink(pub))
		log.Info("Publishing opportunities to Redis stream", "key", pub.Key())
	}
	em := emitter.New(emitter.Config{
		ChainID:         cfg.Chain.ID,
		MinValueUSD:     cfg.Opportunity.MinValueUSD,
		ImpactThreshold: cfg.Opportunity.ImpactThreshold,
		ChannelSize:     cfg.Opportunity.ChannelSize,
	}, sinks...)

	// 6. Mempool pipeline
	pipeline := mempool.New(mempool.Config{
		ChainID:          cfg.Chain.ID,
		ChainName:        chainName,
		Workers:          cfg.Mempool.Workers,
		QueueSize:        cfg.Mempool.QueueSize,
		FetchTimeout:     cfg.Mempool.FetchTimeout,
		ResubscribeDelay: cfg.Mempool.ResubscribeDelay,
		DedupCeiling:     cfg.Mempool.DedupCeiling,
		DedupRetain:      cfg.Mempool.DedupRetain,
		MinValueUSD:      cfg.Opportunity.MinValueUSD,
		Executor:         exec,
		Classifier:       routers,
		Decoder:          decoder.New(tokenReg),
		Estimator:        est,
		Emitter:          em,
	})

	// 7. Health, statistics and retention
	healthMon := health.NewMonitor(chainName, exec, priceCache, pipeline)
	healthServer := health.NewServer(healthMon, cfg.Port)

	reporter := worker.NewReporter(cfg.Stats.Interval, worker.Sources{
		ChainName: chainName,
		Pipeline:  pipeline,
		Emitter:   em,
		Executor:  exec,
		Price:     priceCache,
	})

	var pruner *worker.Pruner
	if cfg.Opportunity.Retention > 0 {
		pruner = worker.NewPruner(cfg.Opportunity.Retention, journal)
	}

	log.Info("Watcher initialized",
		"endpoints", pool.Size(),
		"routers", routers.Size(),
		"tokens", tokenReg.Size(),
		"sinks", len(sinks),
	)

	return &Watcher{
		cfg:          cfg,
		pool:         pool,
		executor:     exec,
		price:        priceCache,
		pipeline:     pipeline,
		emitter:      em,
		journal:      journal,
		healthMon:    healthMon,
		healthServer: healthServer,
		reporter:     reporter,
		pruner:       pruner,
		db:           db,
		redisClient:  redisClient,
		log:          log,
		pipelineDone: make(chan struct{}),
	}, nil
}

// Start starts the watcher and all its components. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	// Start Health Server
	go func() {
		if err := w.healthServer.Start(); err != nil {
			w.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if w.db != nil {
		w.db.StartMetricsCollector(ctx)
	}

	reachable := w.pool.Warmup(ctx)
	w.log.Info("Endpoints warmed up", "reachable", reachable, "total", w.pool.Size())

	w.goWorker(func() {
		if err := w.price.Run(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("Price cache failed", "error", err)
		}
	})
	w.goWorker(func() {
		if err := w.emitter.Run(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("Emitter failed", "error", err)
		}
	})
	go func() {
		defer close(w.pipelineDone)
		if err := w.pipeline.Start(ctx); err != nil {
			w.log.Error("Mempool pipeline failed", "error", err)
		}
	}()
	w.goWorker(func() { w.reporter.Start(ctx) })
	if w.pruner != nil {
		w.goWorker(func() { w.pruner.Start(ctx) })
	}
	w.goWorker(func() { w.runMetricsUpdater(ctx) })

	return nil
}

// Stop ends the subscription, lets workers drain the queue, flushes pending
// events and releases connections.
func (w *Watcher) Stop(ctx context.Context) error {
	w.log.Info("Stopping Watcher...")

	_ = w.pipeline.Stop()
	if w.cancel != nil {
		select {
		case <-w.pipelineDone:
		case <-ctx.Done():
			w.log.Warn("Pipeline did not drain before deadline")
		}
		w.cancel()
		w.wg.Wait()
	}

	w.emitter.Drain(ctx)
	if err := w.emitter.Close(); err != nil {
		w.log.Warn("Failed to close sinks", "error", err)
	}

	stats := w.emitter.Stats()
	w.log.Info("Emitter flushed", "emitted", stats.Emitted, "delivered", stats.Delivered, "dropped", stats.Dropped)

	w.pool.Close()

	if w.redisClient != nil {
		if err := w.redisClient.Close(); err != nil {
			w.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if w.db != nil {
		if err := w.db.Close(); err != nil {
			w.log.Warn("Failed to close database", "error", err)
		}
	}

	// Stop Health Server
	return w.healthServer.Stop(ctx)
}

// Health returns the current health report.
func (w *Watcher) Health(ctx context.Context) health.HealthReport {
	return w.healthMon.CheckHealth(ctx)
}

// Journal returns the opportunity journal.
func (w *Watcher) Journal() storage.OpportunityRepository {
	return w.journal
}

func (w *Watcher) goWorker(fn func()) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

func (w *Watcher) runMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.executor.UpdateMetrics()
			slog.Debug("Updating RPC metrics", "current", w.executor.CurrentProvider().Name)
		}
	}
}

// closeAll runs fns in reverse order, logging failures without stopping.
func closeAll(log *slog.Logger, fns []func() error) {
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil {
			log.Warn("Failed to release resource", "error", err)
		}
	}
}
