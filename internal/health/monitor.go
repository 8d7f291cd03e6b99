package health

import (
	"context"
	"sync"
	"time"

	"github.com/omnipost/publisher/internal/connector"
	"github.com/omnipost/publisher/internal/queue"
	"github.com/omnipost/publisher/internal/vault"
)

// DBChecker reports database reachability.
type DBChecker interface {
	Health(ctx context.Context) error
}

// Monitor aggregates health status from the engine's dependencies.
type Monitor struct {
	db    DBChecker
	queue *queue.Queue
	vault *vault.Vault
	quota *connector.QuotaMonitor

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *Report
}

func NewMonitor(db DBChecker, q *queue.Queue, v *vault.Vault, quota *connector.QuotaMonitor) *Monitor {
	return &Monitor{db: db, queue: q, vault: v, quota: quota}
}

// CheckHealth probes every dependency. Results are cached briefly so the
// endpoint cannot be used to hammer Postgres and Redis.
func (m *Monitor) CheckHealth(ctx context.Context) *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport != nil {
		return m.lastReport
	}

	report := &Report{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
		Platforms:    make(map[string]PlatformHealth),
	}

	report.Components["postgres"] = m.component("postgres", m.db.Health(ctx))
	report.Components["redis"] = m.component("redis", m.queue.Ping(ctx))
	report.Components["vault"] = m.component("vault", m.vault.HealthCheck())

	if depth, err := m.queue.ReadyDepth(ctx); err == nil {
		report.QueueDepth = depth
	}
	if dlq, err := m.queue.DLQPeek(ctx, 100); err == nil {
		report.DeadLetters = len(dlq)
	}

	for platform, stats := range m.quota.Snapshot() {
		report.Platforms[string(platform)] = PlatformHealth{
			Platform:         platform,
			Status:           stats.Status.String(),
			AvgLatencyMs:     stats.AverageLatency.Milliseconds(),
			RequestsLastHour: stats.RequestsLastHour,
			ThrottleCount:    stats.ThrottleCount,
		}
	}

	// Worst component wins.
	for _, c := range report.Components {
		if c.Status == StatusCritical {
			report.SystemStatus = StatusCritical
			break
		}
		if c.Status == StatusDegraded {
			report.SystemStatus = StatusDegraded
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func (m *Monitor) component(name string, err error) ComponentHealth {
	if err != nil {
		return ComponentHealth{Name: name, Status: StatusCritical, Error: err.Error()}
	}
	return ComponentHealth{Name: name, Status: StatusHealthy}
}
