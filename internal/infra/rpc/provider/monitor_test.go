package provider

import (
	"errors"
	"testing"
	"time"
)

func TestMonitorAccumulation(t *testing.T) {
	m := NewProviderMonitor()

	m.RecordRequest(100 * time.Millisecond)

	stats := m.GetStats()
	if stats.RequestsLast1Hour != 1 {
		t.Errorf("Expected 1 request, got %d", stats.RequestsLast1Hour)
	}

	for i := 0; i < 100; i++ {
		m.RecordRequest(50 * time.Millisecond)
	}

	stats = m.GetStats()
	if stats.RequestsLast1Hour != 101 {
		t.Errorf("Expected 101 requests, got %d", stats.RequestsLast1Hour)
	}
	// Latency window keeps only the newest 100 samples.
	if stats.AverageLatency != 50*time.Millisecond {
		t.Errorf("Expected 50ms average, got %v", stats.AverageLatency)
	}
	if stats.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", stats.Status)
	}
}

func TestMonitorRecordError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect ProviderStatus
	}{
		{"rate limited", errors.New("429 Too Many Requests"), StatusThrottled},
		{"quota", errors.New("daily request count exceeded"), StatusThrottled},
		{"blocked", errors.New("403 Forbidden"), StatusBlocked},
		{"plain error", errors.New("connection reset by peer"), StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewProviderMonitor()
			m.RecordError(tt.err)
			if got := m.GetStats().Status; got != tt.expect {
				t.Errorf("status after %q = %s, want %s", tt.err, got, tt.expect)
			}
		})
	}
}

func TestMonitorDegradedOnErrorRate(t *testing.T) {
	m := NewProviderMonitor()
	for i := 0; i < 6; i++ {
		m.RecordRequest(10 * time.Millisecond)
	}
	for i := 0; i < 4; i++ {
		m.RecordError(errors.New("i/o timeout"))
	}

	stats := m.GetStats()
	if stats.Status != StatusDegraded {
		t.Errorf("Expected degraded at 40%% errors, got %s", stats.Status)
	}
	if stats.ErrorRate != 0.4 {
		t.Errorf("Expected error rate 0.4, got %v", stats.ErrorRate)
	}
}

func TestMonitorRetryAfter(t *testing.T) {
	m := NewProviderMonitor()
	if ra := m.GetStats().RetryAfter; ra != 0 {
		t.Fatalf("Expected no retry-after on a fresh monitor, got %v", ra)
	}
	m.RecordError(errors.New("Project Rate Limit Exceeded"))
	stats := m.GetStats()
	if stats.RetryAfter <= 0 || stats.RetryAfter > time.Minute {
		t.Errorf("Expected retry-after within 1m, got %v", stats.RetryAfter)
	}
	if stats.ThrottleCount != 1 {
		t.Errorf("Expected throttle match regardless of case, got %d", stats.ThrottleCount)
	}
}
