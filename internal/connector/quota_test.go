package connector

import (
	"testing"
	"time"

	"github.com/omnipost/publisher/internal/core/domain"
)

func TestQuotaMonitorHealthyByDefault(t *testing.T) {
	qm := NewQuotaMonitor()
	stats := qm.Stats(domain.PlatformMeta)
	if stats.Status != PlatformHealthy {
		t.Errorf("status = %s, want healthy", stats.Status)
	}
	if stats.RequestsLastHour != 0 {
		t.Errorf("requests = %d, want 0", stats.RequestsLastHour)
	}
}

func TestQuotaMonitorTracksRequests(t *testing.T) {
	qm := NewQuotaMonitor()
	qm.RecordRequest(domain.PlatformMeta, 100*time.Millisecond)
	qm.RecordRequest(domain.PlatformMeta, 300*time.Millisecond)

	stats := qm.Stats(domain.PlatformMeta)
	if stats.RequestsLastHour != 2 {
		t.Errorf("requests = %d, want 2", stats.RequestsLastHour)
	}
	if stats.AverageLatency != 200*time.Millisecond {
		t.Errorf("avg latency = %s, want 200ms", stats.AverageLatency)
	}
	if stats.Status != PlatformHealthy {
		t.Errorf("status = %s, want healthy", stats.Status)
	}
}

func TestQuotaMonitorDegradedOnSlowResponses(t *testing.T) {
	qm := NewQuotaMonitor()
	qm.RecordRequest(domain.PlatformLinkedIn, 5*time.Second)

	if got := qm.Stats(domain.PlatformLinkedIn).Status; got != PlatformDegraded {
		t.Errorf("status = %s, want degraded", got)
	}
}

func TestQuotaMonitorThrottledAfter429(t *testing.T) {
	qm := NewQuotaMonitor()
	qm.RecordRequest(domain.PlatformTikTok, 50*time.Millisecond)
	qm.RecordThrottle(domain.PlatformTikTok)

	stats := qm.Stats(domain.PlatformTikTok)
	if stats.Status != PlatformThrottled {
		t.Errorf("status = %s, want throttled", stats.Status)
	}
	if stats.ThrottleCount != 1 {
		t.Errorf("throttle count = %d, want 1", stats.ThrottleCount)
	}

	// Throttled wins over degraded while the cooldown holds.
	qm.RecordRequest(domain.PlatformTikTok, 10*time.Second)
	if got := qm.Stats(domain.PlatformTikTok).Status; got != PlatformThrottled {
		t.Errorf("status = %s, want throttled during cooldown", got)
	}
}

func TestQuotaMonitorSnapshot(t *testing.T) {
	qm := NewQuotaMonitor()
	qm.RecordRequest(domain.PlatformMeta, time.Millisecond)
	qm.RecordThrottle(domain.PlatformMailchimp)

	snap := qm.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot platforms = %d, want 2", len(snap))
	}
	if snap[domain.PlatformMailchimp].Status != PlatformThrottled {
		t.Errorf("mailchimp status = %s, want throttled", snap[domain.PlatformMailchimp].Status)
	}
}
