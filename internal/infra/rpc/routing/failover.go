// Package routing runs blockchain reads against the endpoint pool with
// timeout, retry and failover.
//
// This package contains:
//   - Executor: binds the active endpoint, races each attempt against a
//     timeout and rotates on failure
//   - ClassifyError / ErrorType: error classification for logging and metrics
//   - BackoffConfig: exponential backoff for callers that retry on their own
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/swapwatch/internal/indexing/metrics"
	"github.com/vietddude/swapwatch/internal/infra/rpc/provider"
)

var (
	// ErrAllEndpointsExhausted is matched by every *ExhaustedError.
	ErrAllEndpointsExhausted = errors.New("all endpoints exhausted")

	// ErrAttemptTimeout is returned when an attempt outlives its timeout.
	ErrAttemptTimeout = errors.New("attempt timed out")
)

// ExhaustedError reports a call that failed on every attempt.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all endpoints exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrAllEndpointsExhausted, e.Last}
}

// Operation is a unit of work bound to one endpoint's connection.
type Operation func(ctx context.Context, conn provider.Conn) (any, error)

// Attempt describes one execution attempt.
type Attempt struct {
	Endpoint string
	Index    int
	Elapsed  time.Duration
	Err      error
}

// Config holds failover policy.
type Config struct {
	// FailoverThreshold is the failure count at which sustained-failure
	// rotation kicks in.
	FailoverThreshold int
	// CooldownPeriod must have elapsed since the previous failure for
	// sustained-failure rotation to apply.
	CooldownPeriod time.Duration
	// ChainName labels metrics and logs.
	ChainName string
}

// ProviderInfo identifies the active endpoint.
type ProviderInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

type endpointState struct {
	failureCount int
	lastFailure  time.Time
}

// Executor owns endpoint selection state. The mutex guards only that state;
// network calls run outside it.
type Executor struct {
	pool *provider.Pool
	cfg  Config
	log  *slog.Logger

	mu        sync.Mutex
	current   int
	states    []endpointState
	rotations int

	now        func() time.Time
	onRotation func(from, to, reason string)
	onAttempt  func(Attempt)
}

// NewExecutor creates an executor bound to the first endpoint of the pool.
func NewExecutor(pool *provider.Pool, cfg Config) *Executor {
	if cfg.FailoverThreshold <= 0 {
		cfg.FailoverThreshold = 3
	}
	e := &Executor{
		pool:   pool,
		cfg:    cfg,
		log:    slog.Default().With("component", "failover"),
		states: make([]endpointState, pool.Size()),
		now:    time.Now,
	}
	e.publishActive(0)
	return e
}

// SetRotationCallback registers a callback fired after every rotation.
func (e *Executor) SetRotationCallback(fn func(from, to, reason string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRotation = fn
}

// SetAttemptObserver registers a callback fired after every attempt.
func (e *Executor) SetAttemptObserver(fn func(Attempt)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAttempt = fn
}

// CallOption customizes a single Execute call.
type CallOption func(*callOptions)

type callOptions struct {
	maxAttempts int
	timeout     time.Duration
	method      string
}

// WithMaxAttempts caps the number of attempts. Defaults to the pool size.
func WithMaxAttempts(n int) CallOption {
	return func(o *callOptions) { o.maxAttempts = n }
}

// WithTimeout overrides the per-attempt timeout. Defaults to the bound
// endpoint's configured timeout.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// WithMethod labels the call in metrics and logs.
func WithMethod(method string) CallOption {
	return func(o *callOptions) { o.method = method }
}

// Execute runs op against the active endpoint, failing over per policy.
func (e *Executor) Execute(ctx context.Context, op Operation, opts ...CallOption) (any, error) {
	result, _, err := e.ExecuteBound(ctx, op, opts...)
	return result, err
}

// ExecuteBound is Execute that also reports the index of the endpoint that
// produced the result.
func (e *Executor) ExecuteBound(
	ctx context.Context,
	op Operation,
	opts ...CallOption,
) (any, int, error) {
	o := callOptions{maxAttempts: e.pool.Size(), method: "call"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxAttempts < 1 {
		o.maxAttempts = 1
	}

	tries := make(map[int]int, e.pool.Size())
	var lastErr error

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, -1, err
		}

		idx := e.bind()
		ep := e.pool.At(idx)
		timeout := o.timeout
		if timeout <= 0 {
			timeout = ep.Config.Timeout
		}

		start := time.Now()
		result, used, err := e.runAttempt(ctx, ep, op, timeout)
		elapsed := time.Since(start)
		tries[idx]++

		metrics.RPCCallsTotal.WithLabelValues(e.cfg.ChainName, ep.Name(), o.method).Inc()
		metrics.RPCLatency.WithLabelValues(e.cfg.ChainName, ep.Name(), o.method).
			Observe(elapsed.Seconds())
		e.observe(Attempt{Endpoint: ep.Name(), Index: idx, Elapsed: elapsed, Err: err})

		if err == nil {
			ep.Monitor.RecordRequest(elapsed)
			e.recordSuccess(idx)
			return result, idx, nil
		}

		// Caller cancellation and op-declared errors are not the endpoint's fault.
		if ctx.Err() != nil {
			return nil, -1, ctx.Err()
		}
		action := ClassifyError(err)
		if action == ActionFatal {
			return nil, idx, err
		}

		lastErr = err
		errType := ErrorType(err)
		metrics.RPCErrorsTotal.WithLabelValues(e.cfg.ChainName, ep.Name(), errType).Inc()
		ep.Monitor.RecordError(err)
		// A timeout bounds only this call; the connection may still carry
		// subscriptions and other in-flight calls.
		if errType == "connection" && ep.Invalidate(used) {
			e.log.Warn("Dropped broken connection", "endpoint", ep.Name(), "error", err)
		}

		retriesLeft := attempt < o.maxAttempts
		budgetSpent := tries[idx] > ep.Config.MaxRetries || action == ActionFailover
		e.recordFailure(idx, retriesLeft && budgetSpent, err)

		e.log.Debug("RPC attempt failed",
			"endpoint", ep.Name(),
			"method", o.method,
			"attempt", attempt,
			"max_attempts", o.maxAttempts,
			"error_type", errType,
			"error", err,
		)
	}

	metrics.RPCExhaustedTotal.WithLabelValues(e.cfg.ChainName, o.method).Inc()
	return nil, -1, &ExhaustedError{Attempts: o.maxAttempts, Last: lastErr}
}

// Do runs a typed operation through the executor.
func Do[T any](
	ctx context.Context,
	e *Executor,
	op func(ctx context.Context, conn provider.Conn) (T, error),
	opts ...CallOption,
) (T, error) {
	var zero T
	v, err := e.Execute(ctx, func(ctx context.Context, conn provider.Conn) (any, error) {
		return op(ctx, conn)
	}, opts...)
	if err != nil {
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

// HealthCheck reports whether the active endpoint answers a block number
// request on the first try.
func (e *Executor) HealthCheck(ctx context.Context) bool {
	_, err := e.Execute(ctx, func(ctx context.Context, conn provider.Conn) (any, error) {
		return conn.BlockNumber(ctx)
	}, WithMaxAttempts(1), WithMethod("eth_blockNumber"))
	return err == nil
}

// CurrentProvider returns the active endpoint.
func (e *Executor) CurrentProvider() ProviderInfo {
	idx := e.bind()
	ep := e.pool.At(idx)
	return ProviderInfo{Index: idx, Name: ep.Name(), URL: provider.RedactURL(ep.Config.URL)}
}

// ProviderStatus returns a snapshot of every endpoint.
func (e *Executor) ProviderStatus() []provider.EndpointStatus {
	e.mu.Lock()
	current := e.current
	states := make([]endpointState, len(e.states))
	copy(states, e.states)
	e.mu.Unlock()

	out := make([]provider.EndpointStatus, len(states))
	for i, st := range states {
		ep := e.pool.At(i)
		stats := ep.Monitor.GetStats()
		out[i] = provider.EndpointStatus{
			Name:           ep.Name(),
			URL:            provider.RedactURL(ep.Config.URL),
			Active:         i == current,
			FailureCount:   st.failureCount,
			LastFailure:    st.lastFailure,
			Connected:      ep.Connected(),
			Health:         stats.Status.String(),
			AverageLatency: stats.AverageLatency,
			RetryAfter:     stats.RetryAfter,
		}
	}
	return out
}

// Rotations returns how many times the active endpoint has changed.
func (e *Executor) Rotations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rotations
}

// RotateFrom moves off endpoint idx if it is still the active one. It
// returns false when another caller already rotated.
func (e *Executor) RotateFrom(idx int, reason string) bool {
	e.mu.Lock()
	if idx != e.current {
		e.mu.Unlock()
		return false
	}
	from, to, cb := e.rotateLocked(reason)
	e.mu.Unlock()

	e.afterRotation(from, to, reason, cb)
	return true
}

// UpdateMetrics publishes per-endpoint gauges.
func (e *Executor) UpdateMetrics() {
	for _, st := range e.ProviderStatus() {
		metrics.RPCEndpointFailures.WithLabelValues(e.cfg.ChainName, st.Name).
			Set(float64(st.FailureCount))
	}
}

func (e *Executor) bind() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Executor) runAttempt(
	ctx context.Context,
	ep *provider.Endpoint,
	op Operation,
	timeout time.Duration,
) (any, provider.Conn, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value any
		conn  provider.Conn
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		conn, err := ep.Conn(attemptCtx)
		if err != nil {
			done <- outcome{err: fmt.Errorf("connect %s: %w", ep.Name(), err)}
			return
		}
		v, err := op(attemptCtx, conn)
		done <- outcome{value: v, conn: conn, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() == nil &&
			errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, out.conn, fmt.Errorf("%s after %s: %w", ep.Name(), timeout, ErrAttemptTimeout)
		}
		return out.value, out.conn, out.err
	case <-attemptCtx.Done():
		return nil, nil, fmt.Errorf("%s after %s: %w", ep.Name(), timeout, ErrAttemptTimeout)
	}
}

func (e *Executor) recordSuccess(idx int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states[idx] = endpointState{}
}

func (e *Executor) recordFailure(idx int, eager bool, cause error) {
	e.mu.Lock()

	st := &e.states[idx]
	now := e.now()
	previous := st.lastFailure
	st.failureCount++
	st.lastFailure = now

	sustained := st.failureCount >= e.cfg.FailoverThreshold &&
		(previous.IsZero() || now.Sub(previous) > e.cfg.CooldownPeriod)

	// Only the endpoint that is still active may be rotated away from.
	if idx != e.current || !(sustained || eager) {
		e.mu.Unlock()
		return
	}

	reason := "retry"
	if sustained {
		reason = "threshold"
	}
	from, to, cb := e.rotateLocked(reason)
	e.mu.Unlock()

	e.log.Warn("Rotating RPC endpoint",
		"from", e.pool.At(from).Name(),
		"to", e.pool.At(to).Name(),
		"reason", reason,
		"error", cause,
	)
	e.afterRotation(from, to, reason, cb)
}

// rotateLocked advances the active index. Callers hold e.mu.
func (e *Executor) rotateLocked(reason string) (from, to int, cb func(from, to, reason string)) {
	from = e.current
	to = (from + 1) % len(e.states)
	e.states[from].failureCount = 0
	e.states[to].failureCount = 0
	e.current = to
	e.rotations++
	return from, to, e.onRotation
}

func (e *Executor) afterRotation(from, to int, reason string, cb func(from, to, reason string)) {
	metrics.RPCRotationsTotal.WithLabelValues(e.cfg.ChainName, reason).Inc()
	e.publishActive(to)
	if cb != nil {
		cb(e.pool.At(from).Name(), e.pool.At(to).Name(), reason)
	}
}

func (e *Executor) publishActive(active int) {
	for i, ep := range e.pool.Endpoints() {
		v := 0.0
		if i == active {
			v = 1
		}
		metrics.RPCActiveEndpoint.WithLabelValues(e.cfg.ChainName, ep.Name()).Set(v)
	}
}

func (e *Executor) observe(a Attempt) {
	e.mu.Lock()
	fn := e.onAttempt
	e.mu.Unlock()
	if fn != nil {
		fn(a)
	}
}
