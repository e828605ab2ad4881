package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/coverage-backend/internal/coverage/store"
	"github.com/yungbote/coverage-backend/internal/data/db"
	"github.com/yungbote/coverage-backend/internal/domain/coverage"
	"github.com/yungbote/coverage-backend/internal/http"
	"github.com/yungbote/coverage-backend/internal/observability"
	"github.com/yungbote/coverage-backend/internal/platform/logger"
	"github.com/yungbote/coverage-backend/internal/services"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *db.Service
	Paths    *coverage.PathTable
	Store    *store.Store
	Repos    Repos
	Clients  Clients
	Coverage services.CoverageService
	Metrics  *observability.Metrics
	Health   *observability.Health
	Router   *gin.Engine

	// Origin tags this instance's report bus messages.
	Origin string

	server       *http.Server
	shutdownOTel func(context.Context) error
}

func New(ctx context.Context, cfg Config) (*App, error) {
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.OTel.Enabled,
		ServiceName: cfg.OTel.ServiceName,
		Environment: cfg.OTel.Environment,
		Endpoint:    cfg.OTel.Endpoint,
		Insecure:    cfg.OTel.Insecure,
		SampleRatio: cfg.OTel.SampleRatio,
	})

	metrics := observability.NewMetrics()
	health := observability.NewHealth()
	paths := coverage.NewPathTable()
	origin := uuid.NewString()

	dbs, err := openDatabase(log, cfg.Store)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	theDB := dbs.DB()
	if theDB != nil {
		if err := metrics.RegisterDB(theDB); err != nil {
			log.Warn("database metrics not registered", "error", err)
		}
		health.MarkHealthy("store", cfg.Store.Driver)
	} else {
		health.MarkHealthy("store", StoreMemory)
	}

	clients, err := wireClients(ctx, log, cfg, origin, health)
	if err != nil {
		_ = dbs.Close()
		log.Sync()
		return nil, err
	}
	if clients.ReportBus != nil {
		health.MarkHealthy("redis", "connected")
	}
	if clients.Archive != nil {
		health.MarkHealthy("archive", "configured")
	}

	reposet := wireRepos(theDB, log)
	opts := store.Options{Backend: wireBackend(theDB, reposet, paths, log)}
	if clients.ReportBus != nil {
		opts.Notifier = clients.ReportBus
	}
	st := store.New(log, opts)

	svc := services.NewCoverageService(log, paths, st, clients.Archive, metrics, health, services.CoverageServiceConfig{
		MergeConcurrency: cfg.Merge.Concurrency,
	})

	handlerset := wireHandlers(log, cfg, svc, metrics, health)
	server := http.NewServer(log, http.ServerConfig{
		Addr:            cfg.HTTP.Addr,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, routerConfig(log, cfg, handlerset, metrics))

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           dbs,
		Paths:        paths,
		Store:        st,
		Repos:        reposet,
		Clients:      clients,
		Coverage:     svc,
		Metrics:      metrics,
		Health:       health,
		Router:       server.Engine,
		Origin:       origin,
		server:       server,
		shutdownOTel: shutdownOTel,
	}, nil
}

// Run serves the API and the observability listener until ctx is done or
// one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}
	g, ctx := errgroup.WithContext(ctx)

	if bus := a.Clients.ReportBus; bus != nil {
		g.Go(func() error {
			return bus.StartForwarder(ctx, a.onScopeChanged)
		})
		a.Metrics.StartRedisCollector(ctx, a.Log, a.Cfg.Redis.Addr, 15*time.Second)
	}
	g.Go(func() error {
		return observability.Serve(ctx, a.Log, a.Cfg.Metrics.Addr, observability.NewRouter(a.Metrics, a.Health))
	})
	g.Go(func() error {
		return a.server.Run(ctx)
	})
	return g.Wait()
}

// onScopeChanged drops cached snapshots that another instance rewrote.
func (a *App) onScopeChanged(scope coverage.Scope, origin string) {
	if origin == a.Origin {
		return
	}
	a.Store.Invalidate(scope)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if err := a.DB.Close(); err != nil {
		a.Log.Warn("database close", "error", err)
	}
	if a.shutdownOTel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownOTel(ctx); err != nil {
			a.Log.Warn("otel shutdown", "error", err)
		}
	}
	a.Log.Sync()
}
