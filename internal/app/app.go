// Package app initializes and holds long-lived application services, acting
// as a dependency injection container. It is built once at startup and
// closed once on shutdown.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/chatstash/chatstash/internal/api"
	"github.com/chatstash/chatstash/internal/clock/system"
	"github.com/chatstash/chatstash/internal/config"
	collyfetcher "github.com/chatstash/chatstash/internal/fetcher/colly"
	"github.com/chatstash/chatstash/internal/fetchpool"
	"github.com/chatstash/chatstash/internal/hash/sha256"
	"github.com/chatstash/chatstash/internal/jobsearch"
	"github.com/chatstash/chatstash/internal/logging"
	"github.com/chatstash/chatstash/internal/metrics"
	"github.com/chatstash/chatstash/internal/policy/blocklist"
	"github.com/chatstash/chatstash/internal/policy/ratelimit"
	"github.com/chatstash/chatstash/internal/progress"
	"github.com/chatstash/chatstash/internal/tenant"
)

// App holds all the shared, long-lived services for the service.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	stores *tenant.Manager
	hub    *progress.Hub
	server *api.Server
}

// New builds every service from configuration. It fails fast if any
// critical dependency cannot be initialized.
func New(cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	metrics.Init()

	stores := tenant.NewManager(cfg.Store.Dir, logger.Named("tenant"))

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})

	var limiter *ratelimit.Limiter
	if cfg.Fetch.PerDomainRPS > 0 {
		limiter = ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Fetch.PerDomainRPS,
			DefaultBurst: cfg.Fetch.PerDomainBurst,
		})
	}

	var poolOpts []fetchpool.Option
	if bl := blocklist.New(cfg.Fetch.BlockedDomains); bl != nil {
		poolOpts = append(poolOpts, fetchpool.WithBlocklist(bl))
	}

	var hub *progress.Hub
	if cfg.Progress.LogEvents {
		hub = progress.NewHub(
			progress.Config{Logger: logger.Named("progress")},
			progress.NewLogSink(logger.Named("progress")),
		)
		poolOpts = append(poolOpts, fetchpool.WithProgress(hub))
	}

	pool := fetchpool.New(fetcher, limiter, fetchpool.Config{
		Workers:       cfg.Fetch.Workers,
		MaxBatch:      cfg.Fetch.MaxBatch,
		FetchTimeout:  cfg.FetchTimeout(),
		MaxContentLen: cfg.Fetch.MaxContentLen,
		ExcerptLen:    cfg.Fetch.ExcerptLen,
	}, logger.Named("fetchpool"), poolOpts...)

	clock := system.New()
	coordinator := jobsearch.NewCoordinator(
		buildSources(cfg.Jobs),
		cfg.JobsCacheTTL(),
		clock,
		logger.Named("jobsearch"),
	)

	server := api.NewServer(stores, pool, coordinator, sha256.New(), clock, cfg, logger.Named("api"))

	logger.Info("application services initialized",
		zap.Int("fetch_workers", cfg.Fetch.Workers),
		zap.String("store_dir", cfg.Store.Dir),
		zap.Bool("auth_enabled", cfg.Auth.Enabled),
	)

	return &App{
		cfg:    cfg,
		logger: logger,
		stores: stores,
		hub:    hub,
		server: server,
	}, nil
}

// buildSources instantiates every configured job board, in merge-precedence
// order.
func buildSources(cfg config.JobsConfig) []jobsearch.Source {
	return []jobsearch.Source{
		jobsearch.NewRemotiveSource(cfg.RemotiveBaseURL),
		jobsearch.NewArbeitnowSource(cfg.ArbeitnowBaseURL),
		jobsearch.NewJobicySource(cfg.JobicyBaseURL),
	}
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler exposes the HTTP router for the embedded server.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Addr returns the listen address from configuration.
func (a *App) Addr() string {
	return fmt.Sprintf(":%d", a.cfg.Server.Port)
}

// Close releases every held resource. The App is unusable afterwards.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.hub.Close(closeCtx); err != nil {
		a.logger.Warn("error closing progress hub", zap.Error(err))
	}
	if err := a.stores.Close(); err != nil {
		a.logger.Warn("error closing tenant stores", zap.Error(err))
	}
	// Best effort: stderr syncing fails on some platforms and that is fine.
	_ = a.logger.Sync()
}
