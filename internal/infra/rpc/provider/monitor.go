package provider

import (
	"strings"
	"sync"
	"time"
)

// ProviderStatus represents the health state of an endpoint.
type ProviderStatus int

const (
	StatusHealthy   ProviderStatus = iota // Endpoint is working normally
	StatusDegraded                        // Endpoint is slow or failing often
	StatusThrottled                       // Endpoint is rate limiting
	StatusBlocked                         // Endpoint has blocked this client
)

func (s ProviderStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// MonitorStats holds monitoring statistics for an endpoint.
type MonitorStats struct {
	Status            ProviderStatus
	AverageLatency    time.Duration
	RetryAfter        time.Duration
	ThrottleCount     int
	BlockCount        int
	ErrorCount        int
	RequestsLast1Hour int
	ErrorRate         float64
}

// ProviderMonitor tracks latency, errors and rate limiting for one endpoint.
type ProviderMonitor struct {
	mu sync.RWMutex

	// Response time tracking
	recentLatencies  []time.Duration
	maxLatencyWindow int

	// Error tracking
	throttleCount      int
	blockCount         int
	errorCount         int
	successCount       int
	throttlePatterns   []string
	blockPatterns      []string
	lastThrottleTime   time.Time
	retryAfterDuration time.Duration

	// Sliding window of request timestamps
	requestTimestamps []time.Time
	windowDuration    time.Duration

	// Thresholds
	slowResponseThreshold time.Duration
	degradedThreshold     float64
}

// NewProviderMonitor creates a new monitor with default settings.
func NewProviderMonitor() *ProviderMonitor {
	return &ProviderMonitor{
		recentLatencies:  make([]time.Duration, 0, 100),
		maxLatencyWindow: 100,
		throttlePatterns: []string{
			"429",
			"rate limit",
			"too many requests",
			"daily request count exceeded",
			"monthly quota exceeded",
			"capacity exceeded",
		},
		blockPatterns: []string{
			"403",
			"forbidden",
			"unauthorized",
		},
		requestTimestamps:     make([]time.Time, 0),
		windowDuration:        time.Hour,
		slowResponseThreshold: 3 * time.Second,
		degradedThreshold:     0.3, // 30% error rate
	}
}

// RecordRequest records a successful request with its latency.
func (pm *ProviderMonitor) RecordRequest(latency time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.successCount++
	pm.recentLatencies = append(pm.recentLatencies, latency)
	if len(pm.recentLatencies) > pm.maxLatencyWindow {
		pm.recentLatencies = pm.recentLatencies[1:]
	}
	pm.trackTimestamp(time.Now())
}

// RecordError records a failed request and classifies throttle and block responses.
func (pm *ProviderMonitor) RecordError(err error) {
	if err == nil {
		return
	}
	msg := strings.ToLower(err.Error())

	pm.mu.Lock()
	defer pm.mu.Unlock()

	now := time.Now()
	pm.errorCount++
	pm.trackTimestamp(now)

	if containsAny(msg, pm.blockPatterns) {
		pm.blockCount++
		pm.lastThrottleTime = now
		pm.retryAfterDuration = 10 * time.Minute // Longer for IP block
		return
	}
	if containsAny(msg, pm.throttlePatterns) {
		pm.throttleCount++
		pm.lastThrottleTime = now
		pm.retryAfterDuration = time.Minute
	}
}

func (pm *ProviderMonitor) statusLocked() ProviderStatus {
	sinceThrottle := time.Since(pm.lastThrottleTime)

	if pm.blockCount > 0 && sinceThrottle < pm.retryAfterDuration {
		return StatusBlocked
	}
	if pm.throttleCount > 0 && sinceThrottle < pm.retryAfterDuration {
		return StatusThrottled
	}

	if avg := pm.averageLatencyLocked(); len(pm.recentLatencies) > 10 &&
		avg > pm.slowResponseThreshold {
		return StatusDegraded
	}

	total := pm.successCount + pm.errorCount
	if total >= 10 && float64(pm.errorCount)/float64(total) > pm.degradedThreshold {
		return StatusDegraded
	}

	return StatusHealthy
}

// retryAfterLocked returns how long until a throttled or blocked endpoint
// should be tried again.
func (pm *ProviderMonitor) retryAfterLocked() time.Duration {
	if pm.retryAfterDuration > 0 {
		if remaining := pm.retryAfterDuration - time.Since(pm.lastThrottleTime); remaining > 0 {
			return remaining
		}
	}
	return 0
}

func (pm *ProviderMonitor) averageLatencyLocked() time.Duration {
	if len(pm.recentLatencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, lat := range pm.recentLatencies {
		total += lat
	}
	return total / time.Duration(len(pm.recentLatencies))
}

// GetStats returns current monitoring statistics.
func (pm *ProviderMonitor) GetStats() MonitorStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	stats := MonitorStats{
		Status:            pm.statusLocked(),
		AverageLatency:    pm.averageLatencyLocked(),
		RetryAfter:        pm.retryAfterLocked(),
		ThrottleCount:     pm.throttleCount,
		BlockCount:        pm.blockCount,
		ErrorCount:        pm.errorCount,
		RequestsLast1Hour: len(pm.requestTimestamps),
	}
	if total := pm.successCount + pm.errorCount; total > 0 {
		stats.ErrorRate = float64(pm.errorCount) / float64(total)
	}
	return stats
}

// trackTimestamp appends now and drops entries older than the window.
func (pm *ProviderMonitor) trackTimestamp(now time.Time) {
	pm.requestTimestamps = append(pm.requestTimestamps, now)

	cutoff := now.Add(-pm.windowDuration)
	drop := 0
	for drop < len(pm.requestTimestamps) && !pm.requestTimestamps[drop].After(cutoff) {
		drop++
	}
	if drop > 0 {
		pm.requestTimestamps = pm.requestTimestamps[drop:]
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
