// Package control wires the engine together and manages its lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/omnipost/publisher/internal/connector"
	"github.com/omnipost/publisher/internal/connector/linkedin"
	"github.com/omnipost/publisher/internal/connector/mailchimp"
	"github.com/omnipost/publisher/internal/connector/meta"
	"github.com/omnipost/publisher/internal/connector/tiktok"
	"github.com/omnipost/publisher/internal/core/config"
	"github.com/omnipost/publisher/internal/core/domain"
	"github.com/omnipost/publisher/internal/health"
	"github.com/omnipost/publisher/internal/infra/httpx"
	"github.com/omnipost/publisher/internal/queue"
	"github.com/omnipost/publisher/internal/resilience/pause"
	"github.com/omnipost/publisher/internal/storage/postgres"
	"github.com/omnipost/publisher/internal/vault"
	"github.com/omnipost/publisher/internal/worker"
)

const httpTimeout = 30 * time.Second

// platformFactories maps platform identifiers to their constructors.
var platformFactories = map[domain.Platform]connector.Factory{
	domain.PlatformMeta:      meta.New,
	domain.PlatformLinkedIn:  linkedin.New,
	domain.PlatformTikTok:    tiktok.New,
	domain.PlatformMailchimp: mailchimp.New,
}

// App is the composed engine: storage, queue, vault, connectors, workers,
// and the health server.
type App struct {
	cfg *config.AppConfig

	db           *postgres.DB
	queue        *queue.Queue
	vault        *vault.Vault
	manager      *connector.Manager
	pauser       *pause.Manager
	worker       *worker.Worker
	reaper       *worker.Reaper
	healthServer *health.Server

	log    *slog.Logger
	cancel context.CancelFunc
}

// NewApp initializes every dependency from configuration.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}

	q, err := queue.New(cfg.Queue)
	if err != nil {
		return nil, fmt.Errorf("failed to init queue: %w", err)
	}

	connections := postgres.NewConnectionRepo(db)
	secrets := postgres.NewSecretRepo(db)
	audits := postgres.NewAuditRepo(db)
	jobs := postgres.NewJobRepo(db)
	healthLog := postgres.NewHealthLogRepo(db)

	v, err := vault.New(cfg.Vault.MasterSecret, cfg.Vault.KeyID, secrets)
	if err != nil {
		return nil, fmt.Errorf("failed to init vault: %w", err)
	}

	client := httpx.NewClient(httpTimeout)

	factories := make(map[domain.Platform]connector.Factory, len(platformFactories))
	for platform, factory := range platformFactories {
		creds, ok := cfg.Platforms[string(platform)]
		if !ok {
			slog.Warn("no credentials configured for platform", "platform", platform)
		}
		factory := factory
		factories[platform] = func(deps connector.Deps) connector.Connector {
			deps.ClientID = creds.ClientID
			deps.ClientSecret = creds.ClientSecret
			return factory(deps)
		}
	}

	manager := connector.NewManager(factories, client, v, q, jobs, connections, healthLog)
	pauser := pause.NewManager(connections, audits)
	w := worker.New(q, jobs, connections, manager, pauser, v)
	reaper := worker.NewReaper(jobs, secrets, cfg.Worker.JobRetention)

	monitor := health.NewMonitor(db, q, v, manager.Quota())
	healthServer := health.NewServer(monitor, cfg.Server.Port)

	return &App{
		cfg:          cfg,
		db:           db,
		queue:        q,
		vault:        v,
		manager:      manager,
		pauser:       pauser,
		worker:       w,
		reaper:       reaper,
		healthServer: healthServer,
		log:          slog.Default(),
	}, nil
}

// Manager exposes the connector manager (CLI subcommands use it).
func (a *App) Manager() *connector.Manager { return a.manager }

// Pauser exposes the pause manager.
func (a *App) Pauser() *pause.Manager { return a.pauser }

// Start launches the health server, the queue workers, and the periodic
// maintenance loops. It returns immediately.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	go func() {
		if err := a.healthServer.Start(); err != nil {
			a.log.Error("health server failed", "error", err)
		}
	}()

	a.worker.Start(ctx)
	go a.reaper.Start(ctx)
	go a.runScheduler(ctx)

	a.log.Info("publisher started", "port", a.cfg.Server.Port)
	return nil
}

// runScheduler drives the proactive loops: token refresh scheduling and
// connection health checks.
func (a *App) runScheduler(ctx context.Context) {
	refreshTicker := time.NewTicker(a.cfg.Worker.TokenRefreshInterval)
	healthTicker := time.NewTicker(a.cfg.Worker.HealthCheckInterval)
	defer refreshTicker.Stop()
	defer healthTicker.Stop()

	// Kick off one scheduling pass immediately so a restart doesn't delay
	// refreshes by a full interval.
	if _, err := a.manager.ScheduleTokenRefreshes(ctx); err != nil {
		a.log.Error("token refresh scheduling failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-refreshTicker.C:
			if _, err := a.manager.ScheduleTokenRefreshes(ctx); err != nil {
				a.log.Error("token refresh scheduling failed", "error", err)
			}
		case <-healthTicker.C:
			if err := a.manager.RunHealthChecks(ctx); err != nil {
				a.log.Error("health check sweep failed", "error", err)
			}
		}
	}
}

// Stop shuts the engine down: loops first, then the health server, then the
// infrastructure connections.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping publisher")

	if a.cancel != nil {
		a.cancel()
	}
	a.worker.Wait()

	if err := a.queue.Close(); err != nil {
		a.log.Warn("failed to close queue", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn("failed to close db", "error", err)
	}
	return a.healthServer.Stop(ctx)
}
