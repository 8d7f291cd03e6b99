package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/omnipost/publisher/internal/connector"
	"github.com/omnipost/publisher/internal/core/domain"
	"github.com/omnipost/publisher/internal/queue"
	"github.com/omnipost/publisher/internal/vault"
)

type fakeDB struct{ err error }

func (f fakeDB) Health(ctx context.Context) error { return f.err }

type memSecrets struct{ rows []*domain.SecretRecord }

func (m *memSecrets) Insert(ctx context.Context, rec *domain.SecretRecord) error {
	m.rows = append(m.rows, rec)
	return nil
}
func (m *memSecrets) GetLatest(ctx context.Context, tenantID, connectionID string, typ domain.SecretType) (*domain.SecretRecord, error) {
	for i := len(m.rows) - 1; i >= 0; i-- {
		r := m.rows[i]
		if r.TenantID == tenantID && r.ConnectionID == connectionID && r.Type == typ {
			return r, nil
		}
	}
	return nil, nil
}
func (m *memSecrets) DeleteOldGenerations(ctx context.Context, keep int) (int64, error) {
	return 0, nil
}

func newMonitor(t *testing.T, db DBChecker) (*Monitor, *queue.Queue) {
	t.Helper()
	mr := miniredis.RunT(t)
	q := queue.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	v, err := vault.New("master", "key-1", &memSecrets{})
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	return NewMonitor(db, q, v, connector.NewQuotaMonitor()), q
}

func TestCheckHealthAllHealthy(t *testing.T) {
	m, _ := newMonitor(t, fakeDB{})
	report := m.CheckHealth(context.Background())

	if report.SystemStatus != StatusHealthy {
		t.Errorf("system status = %s, want healthy", report.SystemStatus)
	}
	for name, c := range report.Components {
		if c.Status != StatusHealthy {
			t.Errorf("component %s = %s, want healthy", name, c.Status)
		}
	}
}

func TestCheckHealthCriticalComponentWins(t *testing.T) {
	m, _ := newMonitor(t, fakeDB{err: errors.New("connection refused")})
	report := m.CheckHealth(context.Background())

	if report.SystemStatus != StatusCritical {
		t.Errorf("system status = %s, want critical", report.SystemStatus)
	}
	if report.Components["postgres"].Error == "" {
		t.Error("expected postgres component error to be reported")
	}
}

func TestCheckHealthReportsQueueDepth(t *testing.T) {
	m, q := newMonitor(t, fakeDB{})
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	report := m.CheckHealth(ctx)
	if report.QueueDepth != 3 {
		t.Errorf("queue depth = %d, want 3", report.QueueDepth)
	}
}

func TestCheckHealthCachesReport(t *testing.T) {
	m, q := newMonitor(t, fakeDB{})
	ctx := context.Background()

	first := m.CheckHealth(ctx)
	if err := q.Enqueue(ctx, "late"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	second := m.CheckHealth(ctx)

	if first != second {
		t.Error("expected the cached report within the rate-limit window")
	}

	m.lastCheck = time.Now().Add(-time.Minute)
	third := m.CheckHealth(ctx)
	if third.QueueDepth != 1 {
		t.Errorf("refreshed queue depth = %d, want 1", third.QueueDepth)
	}
}
