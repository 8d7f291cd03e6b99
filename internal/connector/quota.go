package connector

import (
	"sync"
	"time"

	"github.com/omnipost/publisher/internal/core/domain"
)

// PlatformStatus is the quota-level health of one platform.
type PlatformStatus int

const (
	PlatformHealthy   PlatformStatus = iota // normal request flow
	PlatformDegraded                        // slow responses
	PlatformThrottled                       // recent 429s
)

func (s PlatformStatus) String() string {
	switch s {
	case PlatformDegraded:
		return "degraded"
	case PlatformThrottled:
		return "throttled"
	default:
		return "healthy"
	}
}

// QuotaStats summarizes request accounting for one platform.
type QuotaStats struct {
	Status           PlatformStatus
	AverageLatency   time.Duration
	ThrottleCount    int
	RequestsLastHour int
}

// QuotaMonitor tracks per-platform request rates, latency, and throttling so
// the engine can see an approaching rate limit before the platform enforces
// it harder.
type QuotaMonitor struct {
	mu        sync.RWMutex
	platforms map[domain.Platform]*platformWindow
}

type platformWindow struct {
	latencies        []time.Duration
	maxLatencyWindow int

	throttleCount    int
	lastThrottleTime time.Time

	requestTimestamps []time.Time
	windowDuration    time.Duration

	slowResponseThreshold time.Duration
	throttleCooldown      time.Duration
}

func NewQuotaMonitor() *QuotaMonitor {
	return &QuotaMonitor{platforms: make(map[domain.Platform]*platformWindow)}
}

func (qm *QuotaMonitor) window(platform domain.Platform) *platformWindow {
	w, ok := qm.platforms[platform]
	if !ok {
		w = &platformWindow{
			latencies:             make([]time.Duration, 0, 100),
			maxLatencyWindow:      100,
			windowDuration:        time.Hour,
			slowResponseThreshold: 3 * time.Second,
			throttleCooldown:      5 * time.Minute,
		}
		qm.platforms[platform] = w
	}
	return w
}

// RecordRequest records a completed platform call with its latency.
func (qm *QuotaMonitor) RecordRequest(platform domain.Platform, latency time.Duration) {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	w := qm.window(platform)
	now := time.Now()

	w.latencies = append(w.latencies, latency)
	if len(w.latencies) > w.maxLatencyWindow {
		w.latencies = w.latencies[1:]
	}

	w.requestTimestamps = append(w.requestTimestamps, now)
	cutoff := now.Add(-w.windowDuration)
	filtered := w.requestTimestamps[:0]
	for _, t := range w.requestTimestamps {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	w.requestTimestamps = filtered
}

// RecordThrottle records a rate-limiting response from the platform.
func (qm *QuotaMonitor) RecordThrottle(platform domain.Platform) {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	w := qm.window(platform)
	w.throttleCount++
	w.lastThrottleTime = time.Now()
}

// Stats returns the current accounting for a platform.
func (qm *QuotaMonitor) Stats(platform domain.Platform) QuotaStats {
	qm.mu.RLock()
	defer qm.mu.RUnlock()

	w, ok := qm.platforms[platform]
	if !ok {
		return QuotaStats{Status: PlatformHealthy}
	}

	stats := QuotaStats{
		ThrottleCount:    w.throttleCount,
		RequestsLastHour: len(w.requestTimestamps),
	}

	if len(w.latencies) > 0 {
		var total time.Duration
		for _, l := range w.latencies {
			total += l
		}
		stats.AverageLatency = total / time.Duration(len(w.latencies))
	}

	switch {
	case time.Since(w.lastThrottleTime) < w.throttleCooldown && w.throttleCount > 0:
		stats.Status = PlatformThrottled
	case stats.AverageLatency > w.slowResponseThreshold:
		stats.Status = PlatformDegraded
	default:
		stats.Status = PlatformHealthy
	}
	return stats
}

// Snapshot returns stats for every platform seen so far.
func (qm *QuotaMonitor) Snapshot() map[domain.Platform]QuotaStats {
	qm.mu.RLock()
	platforms := make([]domain.Platform, 0, len(qm.platforms))
	for p := range qm.platforms {
		platforms = append(platforms, p)
	}
	qm.mu.RUnlock()

	out := make(map[domain.Platform]QuotaStats, len(platforms))
	for _, p := range platforms {
		out[p] = qm.Stats(p)
	}
	return out
}
