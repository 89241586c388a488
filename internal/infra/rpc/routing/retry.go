package routing

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFailover
	ActionFatal
)

// ClassifyError determines the action for a given error. Fatal errors end a
// call without penalizing the endpoint; failover errors skip the endpoint's
// retry budget.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry // Should not happen
	}
	if IsPermanent(err) {
		return ActionFatal
	}

	s := err.Error()
	sLower := strings.ToLower(s)

	// Fatal (Code or Request issues)
	// -32700: Parse error, -32600: Invalid Request, -32602: Invalid params
	if strings.Contains(s, "-32700") || strings.Contains(s, "-32600") ||
		strings.Contains(s, "-32602") {
		return ActionFatal
	}

	// Failover (endpoint specific issues)
	if strings.Contains(s, "429") || strings.Contains(sLower, "too many requests") ||
		strings.Contains(s, "403") || strings.Contains(sLower, "forbidden") ||
		strings.Contains(sLower, "quota") || strings.Contains(sLower, "plan limit") ||
		strings.Contains(sLower, "unauthorized") ||
		strings.Contains(sLower, "rate limit") ||
		strings.Contains(sLower, "count exceeded") ||
		strings.Contains(s, "-32601") ||
		strings.Contains(sLower, "notifications not supported") {
		return ActionFailover
	}

	// Default to Retry (Network, 5xx, etc)
	return ActionRetry
}

// ErrorType returns a short label for metrics.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrAttemptTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if IsPermanent(err) {
		return "permanent"
	}

	sLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(sLower, "429") || strings.Contains(sLower, "rate limit") ||
		strings.Contains(sLower, "too many requests") || strings.Contains(sLower, "quota"):
		return "rate_limit"
	case strings.Contains(sLower, "connection") || strings.Contains(sLower, "dial") ||
		strings.Contains(sLower, "eof") || strings.Contains(sLower, "broken pipe") ||
		strings.Contains(sLower, "no such host") || strings.Contains(sLower, "client is closed"):
		return "connection"
	default:
		return "rpc"
	}
}

// permanentError marks an error the endpoint is not to blame for.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the executor returns it at once without counting a
// failure against the endpoint or trying another one.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// BackoffConfig defines exponential backoff between retries.
type BackoffConfig struct {
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultBackoffConfig provides sensible defaults.
var DefaultBackoffConfig = BackoffConfig{
	InitialDelay:    1 * time.Second,
	MaxDelay:        60 * time.Second,
	BackoffMultiple: 2.0,
}

// Delay returns the wait before the given zero-based retry.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	multiple := c.BackoffMultiple
	if multiple < 1 {
		multiple = 1
	}
	delay := float64(c.InitialDelay) * math.Pow(multiple, float64(attempt))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	return time.Duration(delay)
}

// Sleep waits for the delay of the given retry or until ctx is done.
func (c BackoffConfig) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.Delay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
