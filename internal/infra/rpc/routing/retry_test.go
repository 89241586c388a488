package routing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorAction
	}{
		{errors.New("429 Too Many Requests"), ActionFailover},
		{errors.New("project rate limit exceeded"), ActionFailover},
		{errors.New("quota exceeded"), ActionFailover},
		{errors.New("daily request count exceeded"), ActionFailover},
		{errors.New("403 Forbidden"), ActionFailover},
		{errors.New("the method eth_subscribe does not exist -32601"), ActionFailover},
		{errors.New("notifications not supported"), ActionFailover},
		{errors.New("Invalid JSON-RPC request -32600"), ActionFatal},
		{errors.New("Parse error -32700"), ActionFatal},
		{Permanent(errors.New("not found")), ActionFatal},
		{errors.New("connection reset by peer"), ActionRetry},
		{errors.New("timeout"), ActionRetry},
		{errors.New("500 Internal Server Error"), ActionRetry},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.expect {
			t.Errorf("ClassifyError(%q) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err    error
		expect string
	}{
		{fmt.Errorf("wrapped: %w", ErrAttemptTimeout), "timeout"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("429 Too Many Requests"), "rate_limit"},
		{errors.New("dial tcp: connection refused"), "connection"},
		{errors.New("unexpected EOF"), "connection"},
		{errors.New("client is closed"), "connection"},
		{Permanent(errors.New("not found")), "permanent"},
		{errors.New("execution reverted"), "rpc"},
	}

	for _, tt := range tests {
		if got := ErrorType(tt.err); got != tt.expect {
			t.Errorf("ErrorType(%q) = %q, want %q", tt.err, got, tt.expect)
		}
	}
}

func TestPermanentUnwraps(t *testing.T) {
	base := errors.New("base")
	err := fmt.Errorf("fetch: %w", Permanent(base))
	if !IsPermanent(err) {
		t.Error("expected wrapped permanent error to be detected")
	}
	if !errors.Is(err, base) {
		t.Error("expected permanent error to unwrap to its cause")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := BackoffConfig{
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        time.Second,
		BackoffMultiple: 2,
	}
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		if got := cfg.Delay(i); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestBackoffSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := BackoffConfig{InitialDelay: time.Hour}
	if err := cfg.Sleep(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
