package worker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/omnipost/publisher/internal/connector"
	"github.com/omnipost/publisher/internal/core/domain"
	"github.com/omnipost/publisher/internal/infra/httpx"
	"github.com/omnipost/publisher/internal/queue"
	"github.com/omnipost/publisher/internal/resilience/pause"
	"github.com/omnipost/publisher/internal/vault"
)

// scriptedConnector fails Publish with the scripted errors in order, then
// succeeds.
type scriptedConnector struct {
	platform       domain.Platform
	publishErrs    []error
	publishCalls   int
	refreshResult  *domain.OAuthResult
	refreshErr     error
	refreshCalls   int
	lastRefreshTok string
}

func (s *scriptedConnector) Platform() domain.Platform { return s.platform }
func (s *scriptedConnector) Authenticate(ctx context.Context, code, state string) (*domain.OAuthResult, error) {
	return nil, errors.New("not implemented")
}
func (s *scriptedConnector) RefreshToken(ctx context.Context, refreshToken string) (*domain.OAuthResult, error) {
	s.refreshCalls++
	s.lastRefreshTok = refreshToken
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return s.refreshResult, nil
}
func (s *scriptedConnector) FetchAccounts(ctx context.Context) ([]*domain.Account, error) {
	return nil, nil
}
func (s *scriptedConnector) Publish(ctx context.Context, accountID, title, body string, mediaURLs []string, options map[string]string) (*domain.PublishResult, error) {
	call := s.publishCalls
	s.publishCalls++
	if call < len(s.publishErrs) {
		return nil, s.publishErrs[call]
	}
	return &domain.PublishResult{PostID: "post-1", Status: domain.PublishStatusPublished}, nil
}
func (s *scriptedConnector) DeletePost(ctx context.Context, accountID, postID string) error {
	return nil
}
func (s *scriptedConnector) PostAnalytics(ctx context.Context, accountID, postID string) (*domain.AnalyticsMetrics, error) {
	return nil, nil
}
func (s *scriptedConnector) HealthCheck(ctx context.Context) (*domain.HealthCheckResult, error) {
	return &domain.HealthCheckResult{Status: domain.HealthHealthy}, nil
}
func (s *scriptedConnector) ValidateWebhookSignature(signature string, payload []byte) bool {
	return true
}
func (s *scriptedConnector) ParseWebhookEvent(payload []byte) (*domain.WebhookEvent, error) {
	return nil, nil
}

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.PublishJob
}

func newMemJobRepo() *memJobRepo { return &memJobRepo{jobs: make(map[string]*domain.PublishJob)} }

func (r *memJobRepo) Create(ctx context.Context, job *domain.PublishJob) (*domain.PublishJob, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.jobs[job.ID]; ok {
		cp := *existing
		return &cp, true, nil
	}
	cp := *job
	r.jobs[job.ID] = &cp
	out := cp
	return &out, false, nil
}

func (r *memJobRepo) Get(ctx context.Context, jobID string) (*domain.PublishJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

func (r *memJobRepo) MarkInProgress(ctx context.Context, jobID string) error {
	return r.update(jobID, func(j *domain.PublishJob) { j.Status = domain.JobInProgress })
}
func (r *memJobRepo) MarkCompleted(ctx context.Context, jobID string) error {
	return r.update(jobID, func(j *domain.PublishJob) {
		now := time.Now().UTC()
		j.Status = domain.JobCompleted
		j.CompletedAt = &now
	})
}
func (r *memJobRepo) MarkFailed(ctx context.Context, jobID string, lastError string) error {
	return r.update(jobID, func(j *domain.PublishJob) {
		j.Status = domain.JobFailed
		j.LastError = lastError
	})
}
func (r *memJobRepo) RecordAttempt(ctx context.Context, jobID string, attempts int, lastError string) error {
	return r.update(jobID, func(j *domain.PublishJob) {
		j.Attempts = attempts
		j.LastError = lastError
	})
}
func (r *memJobRepo) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, j := range r.jobs {
		if j.Status == domain.JobCompleted && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}

func (r *memJobRepo) update(jobID string, fn func(*domain.PublishJob)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[jobID]; ok {
		fn(job)
	}
	return nil
}

type memConnRepo struct {
	mu    sync.Mutex
	conns map[string]*domain.Connection
}

func newMemConnRepo(conns ...*domain.Connection) *memConnRepo {
	r := &memConnRepo{conns: make(map[string]*domain.Connection)}
	for _, c := range conns {
		r.conns[c.ID] = c
	}
	return r
}

func (r *memConnRepo) Save(ctx context.Context, conn *domain.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID] = conn
	return nil
}
func (r *memConnRepo) Get(ctx context.Context, tenantID, connectionID string) (*domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[connectionID]
	if !ok {
		return nil, nil
	}
	cp := *conn
	return &cp, nil
}
func (r *memConnRepo) ListActive(ctx context.Context) ([]*domain.Connection, error) {
	return nil, nil
}
func (r *memConnRepo) ListExpiringTokens(ctx context.Context, deadline time.Time) ([]*domain.Connection, error) {
	return nil, nil
}
func (r *memConnRepo) ListPaused(ctx context.Context, tenantID string) ([]*domain.Connection, error) {
	return nil, nil
}
func (r *memConnRepo) SetPause(ctx context.Context, tenantID, connectionID string, status domain.ConnectionStatus, reason domain.PauseReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[connectionID]; ok {
		conn.Status = status
		conn.HealthStatus = domain.HealthCritical
		code := reason.Code
		conn.PauseReason = &code
		conn.PauseDescription = reason.Description
		ts := reason.Timestamp
		conn.PausedAt = &ts
	}
	return nil
}
func (r *memConnRepo) ClearPause(ctx context.Context, tenantID, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[connectionID]; ok {
		conn.Status = domain.ConnectionActive
		conn.HealthStatus = domain.HealthHealthy
		conn.PauseReason = nil
		conn.PauseDescription = ""
		conn.PausedAt = nil
	}
	return nil
}
func (r *memConnRepo) UpdateHealth(ctx context.Context, tenantID, connectionID string, health domain.HealthStatus, status domain.ConnectionStatus, checkErr string, checkedAt time.Time) error {
	return nil
}
func (r *memConnRepo) UpdateTokenRefresh(ctx context.Context, tenantID, connectionID string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[connectionID]; ok {
		conn.TokenExpiresAt = &expiresAt
		now := time.Now().UTC()
		conn.LastTokenRefresh = &now
	}
	return nil
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry
}

func (r *memAuditRepo) Append(ctx context.Context, entry *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}
func (r *memAuditRepo) ListByConnection(ctx context.Context, connectionID string, limit int) ([]*domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries, nil
}

type memSecretRepo struct {
	mu   sync.Mutex
	rows []*domain.SecretRecord
}

func (r *memSecretRepo) Insert(ctx context.Context, rec *domain.SecretRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, rec)
	return nil
}
func (r *memSecretRepo) GetLatest(ctx context.Context, tenantID, connectionID string, typ domain.SecretType) (*domain.SecretRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.rows) - 1; i >= 0; i-- {
		rec := r.rows[i]
		if rec.TenantID == tenantID && rec.ConnectionID == connectionID && rec.Type == typ {
			return rec, nil
		}
	}
	return nil, nil
}
func (r *memSecretRepo) DeleteOldGenerations(ctx context.Context, keep int) (int64, error) {
	return 0, nil
}

type memHealthLog struct{}

func (memHealthLog) Append(ctx context.Context, rec *domain.HealthCheckRecord) error { return nil }

type harness struct {
	worker *Worker
	queue  *queue.Queue
	jobs   *memJobRepo
	conns  *memConnRepo
	audits *memAuditRepo
	vault  *vault.Vault
}

func newHarness(t *testing.T, sc *scriptedConnector) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	q := queue.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	jobs := newMemJobRepo()
	conns := newMemConnRepo(&domain.Connection{
		ID:       "conn-1",
		TenantID: "t1",
		Platform: sc.platform,
		Status:   domain.ConnectionActive,
	})
	audits := &memAuditRepo{}

	secrets := &memSecretRepo{}
	v, err := vault.New("test-master-secret", "key-1", secrets)
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}

	factories := map[domain.Platform]connector.Factory{
		sc.platform: func(deps connector.Deps) connector.Connector { return sc },
	}
	mgr := connector.NewManager(factories, nil, v, q, jobs, conns, memHealthLog{})
	pauser := pause.NewManager(conns, audits)

	return &harness{
		worker: New(q, jobs, conns, mgr, pauser, v),
		queue:  q,
		jobs:   jobs,
		conns:  conns,
		audits: audits,
		vault:  v,
	}
}

// drain processes ready jobs, promoting scheduled retries eagerly, until the
// queue is empty or maxRounds is hit.
func (h *harness) drain(t *testing.T, maxRounds int) int {
	t.Helper()
	ctx := context.Background()
	processed := 0
	for round := 0; round < maxRounds; round++ {
		// Promote everything scheduled, regardless of backoff delay.
		if _, err := h.queue.PromoteScheduled(ctx, time.Now().Add(10*time.Minute), 100); err != nil {
			t.Fatalf("PromoteScheduled: %v", err)
		}
		jobID, err := h.queue.DequeueWithLease(ctx)
		if err != nil {
			t.Fatalf("DequeueWithLease: %v", err)
		}
		if jobID == "" {
			return processed
		}
		h.worker.ProcessJob(ctx, jobID)
		processed++
	}
	return processed
}

func enqueuePublish(t *testing.T, h *harness, id string) {
	t.Helper()
	ctx := context.Background()
	_, _, err := h.jobs.Create(ctx, &domain.PublishJob{
		ID:           id,
		Type:         domain.JobPublish,
		TenantID:     "t1",
		ConnectionID: "conn-1",
		Platform:     domain.PlatformMeta,
		AccountID:    "acct-1",
		Title:        "Launch",
		Body:         "We shipped.",
		Status:       domain.JobQueued,
		MaxAttempts:  connector.PublishAttempts,
	})
	if err != nil {
		t.Fatalf("jobs.Create: %v", err)
	}
	if err := h.queue.Enqueue(ctx, id); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
}

func rateLimited() error {
	return &httpx.APIError{
		StatusCode: http.StatusTooManyRequests,
		Body:       map[string]any{"error": map[string]any{"message": "too many requests"}},
	}
}

func TestPublishRetriesThroughRateLimitThenSucceeds(t *testing.T) {
	sc := &scriptedConnector{
		platform:    domain.PlatformMeta,
		publishErrs: []error{rateLimited(), rateLimited(), rateLimited()},
	}
	h := newHarness(t, sc)
	enqueuePublish(t, h, "job-429")

	processed := h.drain(t, 10)

	if processed != 4 {
		t.Errorf("processed %d attempts, want 4", processed)
	}
	if sc.publishCalls != 4 {
		t.Errorf("publish calls = %d, want 4", sc.publishCalls)
	}

	job, _ := h.jobs.Get(context.Background(), "job-429")
	if job.Status != domain.JobCompleted {
		t.Errorf("job status = %s, want completed", job.Status)
	}
	if job.Attempts != 3 {
		t.Errorf("recorded failed attempts = %d, want 3", job.Attempts)
	}

	conn, _ := h.conns.Get(context.Background(), "t1", "conn-1")
	if conn.Status != domain.ConnectionActive {
		t.Errorf("connection status = %s, want active", conn.Status)
	}
	if len(h.audits.entries) != 0 {
		t.Errorf("audit entries = %d, want 0", len(h.audits.entries))
	}
}

func TestPublishAuthFailurePausesWithoutRetry(t *testing.T) {
	sc := &scriptedConnector{
		platform: domain.PlatformMeta,
		publishErrs: []error{&httpx.APIError{
			StatusCode: http.StatusUnauthorized,
			Body:       map[string]any{"error": map[string]any{"message": "Invalid OAuth access token"}},
		}},
	}
	h := newHarness(t, sc)
	enqueuePublish(t, h, "job-401")

	processed := h.drain(t, 10)

	if processed != 1 {
		t.Errorf("processed %d attempts, want 1 (no retries on auth failure)", processed)
	}
	if sc.publishCalls != 1 {
		t.Errorf("publish calls = %d, want 1", sc.publishCalls)
	}

	job, _ := h.jobs.Get(context.Background(), "job-401")
	if job.Status != domain.JobFailed {
		t.Errorf("job status = %s, want failed", job.Status)
	}

	conn, _ := h.conns.Get(context.Background(), "t1", "conn-1")
	if conn.Status != domain.ConnectionAttention {
		t.Errorf("connection status = %s, want attention", conn.Status)
	}
	if conn.PauseReason == nil || *conn.PauseReason != domain.ErrAuthInvalid {
		t.Errorf("pause reason = %v, want AUTH_INVALID", conn.PauseReason)
	}

	if len(h.audits.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(h.audits.entries))
	}
	if h.audits.entries[0].Action != domain.AuditAutoPause {
		t.Errorf("audit action = %s, want auto_pause", h.audits.entries[0].Action)
	}

	dlq, err := h.queue.DLQPeek(context.Background(), 10)
	if err != nil {
		t.Fatalf("DLQPeek: %v", err)
	}
	if len(dlq) != 1 || dlq[0] != "job-401" {
		t.Errorf("dlq = %v, want [job-401]", dlq)
	}
}

func TestPublishExhaustsRetriesAndDeadLetters(t *testing.T) {
	server := &httpx.APIError{StatusCode: http.StatusInternalServerError, Body: map[string]any{}}
	sc := &scriptedConnector{
		platform:    domain.PlatformMeta,
		publishErrs: []error{server, server, server, server, server},
	}
	h := newHarness(t, sc)
	enqueuePublish(t, h, "job-500")

	h.drain(t, 10)

	job, _ := h.jobs.Get(context.Background(), "job-500")
	if job.Status != domain.JobFailed {
		t.Errorf("job status = %s, want failed", job.Status)
	}
	// PARTNER_5XX allows 3 retries, so the full attempt budget is consumed.
	if sc.publishCalls > connector.PublishAttempts {
		t.Errorf("publish calls = %d, want at most %d", sc.publishCalls, connector.PublishAttempts)
	}

	conn, _ := h.conns.Get(context.Background(), "t1", "conn-1")
	if conn.Status != domain.ConnectionActive {
		t.Errorf("connection status = %s, want active (5xx does not pause)", conn.Status)
	}

	dlq, _ := h.queue.DLQPeek(context.Background(), 10)
	if len(dlq) != 1 {
		t.Errorf("dlq entries = %d, want 1", len(dlq))
	}
}

func TestPublishUnresolvableConnectorDeadLetters(t *testing.T) {
	sc := &scriptedConnector{platform: domain.PlatformMeta}
	h := newHarness(t, sc)
	ctx := context.Background()

	// Platform with no registered factory: GetConnector fails and the job
	// must dead-letter on the first round, never retry.
	_, _, err := h.jobs.Create(ctx, &domain.PublishJob{
		ID:           "job-nofactory",
		Type:         domain.JobPublish,
		TenantID:     "t1",
		ConnectionID: "conn-1",
		Platform:     domain.PlatformTikTok,
		AccountID:    "acct-1",
		Title:        "Launch",
		Body:         "We shipped.",
		Status:       domain.JobQueued,
		MaxAttempts:  connector.PublishAttempts,
	})
	if err != nil {
		t.Fatalf("jobs.Create: %v", err)
	}
	if err := h.queue.Enqueue(ctx, "job-nofactory"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	processed := h.drain(t, 10)
	if processed != 1 {
		t.Errorf("processed %d attempts, want 1", processed)
	}
	if sc.publishCalls != 0 {
		t.Errorf("publish calls = %d, want 0", sc.publishCalls)
	}

	job, _ := h.jobs.Get(ctx, "job-nofactory")
	if job.Status != domain.JobFailed {
		t.Errorf("job status = %s, want failed", job.Status)
	}

	dlq, err := h.queue.DLQPeek(ctx, 10)
	if err != nil {
		t.Fatalf("DLQPeek: %v", err)
	}
	if len(dlq) != 1 || dlq[0] != "job-nofactory" {
		t.Errorf("dlq = %v, want [job-nofactory]", dlq)
	}
}

func TestPublishMissingTokenTreatedAsAuthInvalid(t *testing.T) {
	sc := &scriptedConnector{
		platform:    domain.PlatformMeta,
		publishErrs: []error{connector.ErrNoToken},
	}
	h := newHarness(t, sc)
	enqueuePublish(t, h, "job-notoken")

	h.drain(t, 10)

	conn, _ := h.conns.Get(context.Background(), "t1", "conn-1")
	if conn.Status != domain.ConnectionAttention {
		t.Errorf("connection status = %s, want attention", conn.Status)
	}
	if conn.PauseReason == nil || *conn.PauseReason != domain.ErrAuthInvalid {
		t.Errorf("pause reason = %v, want AUTH_INVALID", conn.PauseReason)
	}
}

func TestTokenRefreshJobStoresNewSecret(t *testing.T) {
	sc := &scriptedConnector{
		platform: domain.PlatformMeta,
		refreshResult: &domain.OAuthResult{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			ExpiresIn:    3600,
		},
	}
	h := newHarness(t, sc)
	ctx := context.Background()

	if err := h.vault.StoreSecret(ctx, "t1", "conn-1", domain.SecretRefreshToken, "old-refresh"); err != nil {
		t.Fatalf("StoreSecret: %v", err)
	}

	_, _, err := h.jobs.Create(ctx, &domain.PublishJob{
		ID:           "refresh-1",
		Type:         domain.JobTokenRefresh,
		TenantID:     "t1",
		ConnectionID: "conn-1",
		Platform:     domain.PlatformMeta,
		Status:       domain.JobQueued,
		MaxAttempts:  connector.PublishAttempts,
	})
	if err != nil {
		t.Fatalf("jobs.Create: %v", err)
	}
	if err := h.queue.Enqueue(ctx, "refresh-1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	h.drain(t, 5)

	if sc.refreshCalls != 1 {
		t.Fatalf("refresh calls = %d, want 1", sc.refreshCalls)
	}
	if sc.lastRefreshTok != "old-refresh" {
		t.Errorf("refresh used token %q, want old-refresh", sc.lastRefreshTok)
	}

	access, ok, err := h.vault.RetrieveSecret(ctx, "t1", "conn-1", domain.SecretAccessToken)
	if err != nil || !ok {
		t.Fatalf("RetrieveSecret access: ok=%v err=%v", ok, err)
	}
	if access != "new-access" {
		t.Errorf("access token = %q, want new-access", access)
	}
	refresh, ok, _ := h.vault.RetrieveSecret(ctx, "t1", "conn-1", domain.SecretRefreshToken)
	if !ok || refresh != "new-refresh" {
		t.Errorf("refresh token = %q ok=%v, want new-refresh", refresh, ok)
	}

	job, _ := h.jobs.Get(ctx, "refresh-1")
	if job.Status != domain.JobCompleted {
		t.Errorf("job status = %s, want completed", job.Status)
	}
	conn, _ := h.conns.Get(ctx, "t1", "conn-1")
	if conn.TokenExpiresAt == nil {
		t.Error("expected TokenExpiresAt to be stamped")
	}
}

func TestReaperPrunesCompletedJobs(t *testing.T) {
	jobs := newMemJobRepo()
	secrets := &memSecretRepo{}
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour).UTC()
	jobs.jobs["done-old"] = &domain.PublishJob{ID: "done-old", Status: domain.JobCompleted, CompletedAt: &old}
	jobs.jobs["failed-old"] = &domain.PublishJob{ID: "failed-old", Status: domain.JobFailed}
	recent := time.Now().UTC()
	jobs.jobs["done-new"] = &domain.PublishJob{ID: "done-new", Status: domain.JobCompleted, CompletedAt: &recent}

	r := NewReaper(jobs, secrets, time.Hour)
	r.reap(ctx)

	if _, err := jobs.Get(ctx, "done-old"); err != nil {
		t.Fatal(err)
	}
	if j, _ := jobs.Get(ctx, "done-old"); j != nil {
		t.Error("expected old completed job to be reaped")
	}
	if j, _ := jobs.Get(ctx, "failed-old"); j == nil {
		t.Error("failed jobs must never be reaped")
	}
	if j, _ := jobs.Get(ctx, "done-new"); j == nil {
		t.Error("recent completed job should survive")
	}
}
