package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/flashcards-ai-queue/internal/api"
	"github.com/phrazzld/flashcards-ai-queue/internal/config"
	"github.com/phrazzld/flashcards-ai-queue/internal/events"
	"github.com/phrazzld/flashcards-ai-queue/internal/generation"
	"github.com/phrazzld/flashcards-ai-queue/internal/metrics"
	"github.com/phrazzld/flashcards-ai-queue/internal/platform/gemini"
	"github.com/phrazzld/flashcards-ai-queue/internal/platform/postgres"
	"github.com/phrazzld/flashcards-ai-queue/internal/platform/together"
	"github.com/phrazzld/flashcards-ai-queue/internal/ratelimit"
	"github.com/phrazzld/flashcards-ai-queue/internal/registry"
	"github.com/phrazzld/flashcards-ai-queue/internal/service"
	"github.com/phrazzld/flashcards-ai-queue/internal/task"
)

// dependencies are the externally backed collaborators the application is
// assembled from. archive is nil when no database is configured.
type dependencies struct {
	apps      *registry.Registry
	limiter   ratelimit.Limiter
	completer generation.Completer
	archive   *postgres.JobArchive
}

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	// Configuration
	config *config.Config

	// Core services
	logger *slog.Logger
	db     *sql.DB
	redis  *ratelimit.Redis

	// Event system
	emitter *events.InMemoryEventEmitter
	hub     *api.StatusHub
	metrics *metrics.Prom
	archive *postgres.JobArchive

	// Job handling
	store   *task.Store
	queue   *task.Queue
	pool    *task.WorkerPool
	sweeper *task.Sweeper
	gateway *service.RequestGateway

	router http.Handler
}

// newApplication creates a new application instance with all dependencies
// initialized. External connections (Redis, PostgreSQL) are opened here and
// released by cleanup.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	apps, err := loadApps(cfg.AppsFile)
	if err != nil {
		return nil, err
	}
	logger.Info("App registry loaded", "apps", apps.Len(), "source", appsSource(cfg.AppsFile))

	deps := dependencies{apps: apps}

	var redisLimiter *ratelimit.Redis
	switch cfg.RateLimit.Backend {
	case "redis":
		redisLimiter, err = ratelimit.NewRedis(cfg.RateLimit.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis rate limiter: %w", err)
		}
		deps.limiter = redisLimiter
	default:
		deps.limiter = ratelimit.NewFixedWindow()
	}
	logger.Info("Rate limiter initialized", "backend", cfg.RateLimit.Backend)

	deps.completer, err = newCompleter(ctx, cfg.LLM, logger)
	if err != nil {
		_ = redisLimiter.Close()
		return nil, fmt.Errorf("failed to initialize LLM completer: %w", err)
	}
	logger.Info("LLM completer initialized", "provider", deps.completer.Name())

	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			_ = redisLimiter.Close()
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := postgres.Migrate(ctx, db, logger); err != nil {
			_ = db.Close()
			_ = redisLimiter.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		deps.archive = postgres.NewJobArchive(db, postgres.DefaultBacklog, logger)
		logger.Info("Job archive enabled")
	}

	app := assemble(cfg, logger, deps)
	app.db = db
	app.redis = redisLimiter

	logger.Info("Application initialized successfully")
	return app, nil
}

// assemble wires the in-process components around deps. It opens no
// connections, so tests can build a complete application from fakes.
func assemble(cfg *config.Config, logger *slog.Logger, deps dependencies) *application {
	app := &application{
		config:  cfg,
		logger:  logger,
		emitter: events.NewInMemoryEventEmitter(logger),
		hub:     api.NewStatusHub(logger),
		metrics: metrics.NewProm(),
		archive: deps.archive,
	}

	app.emitter.RegisterHandler(app.metrics)
	app.emitter.RegisterHandler(app.hub)
	if app.archive != nil {
		app.emitter.RegisterHandler(app.archive)
	}

	app.store = task.NewStore(logger, task.WithEmitter(app.emitter))
	app.queue = task.NewQueue(cfg.Queue.MaxSize, logger)

	app.pool = task.NewWorkerPool(app.store, app.queue, deps.apps, deps.completer, task.WorkerPoolConfig{
		WorkerCount:    cfg.Queue.Workers,
		RequestTimeout: cfg.Queue.RequestTimeout,
		Retry: task.RetryPolicy{
			MaxAttempts: cfg.Queue.MaxAttempts,
			BackoffBase: cfg.Queue.BackoffBase,
			BackoffMax:  cfg.Queue.BackoffMax,
		},
	}, logger)
	app.pool.SetCallObserver(app.metrics)

	app.sweeper = task.NewSweeper(app.store, task.SweeperConfig{
		Interval:           cfg.Queue.SweepInterval,
		ProcessingDeadline: cfg.Queue.ProcessingDeadline,
		Retention:          cfg.Queue.Retention,
	}, logger)

	opts := []service.GatewayOption{
		service.WithWorkers(app.pool),
		service.WithProvider(deps.completer),
		service.WithSubmissionObserver(app.metrics),
	}
	if app.archive != nil {
		opts = append(opts, service.WithArchive(app.archive))
	}
	app.gateway = service.NewRequestGateway(deps.apps, deps.limiter, app.store, app.queue, service.GatewayConfig{
		MaxPayloadChars:        cfg.Queue.MaxPayloadChars,
		EstimatedSecondsPerJob: cfg.Queue.EstimatedSecondsPerJob,
	}, logger, opts...)

	app.metrics.RegisterQueueGauges(app.queue.Len, app.queue.Cap, app.pool.Busy)

	app.router = api.NewRouter(api.RouterConfig{
		Gateway:     app.gateway,
		Hub:         app.hub,
		Logger:      logger,
		Version:     version,
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     app.metrics,
	})

	return app
}

func loadApps(path string) (*registry.Registry, error) {
	if path == "" {
		return registry.Default(), nil
	}
	apps, err := registry.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load app registry: %w", err)
	}
	return apps, nil
}

func appsSource(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}

// newCompleter builds the completion client for the configured provider.
func newCompleter(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (generation.Completer, error) {
	switch cfg.Provider {
	case "gemini":
		return gemini.NewCompleter(ctx, logger, cfg)
	case "together":
		return together.NewCompleter(logger, cfg, &http.Client{})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", generation.ErrInvalidConfig, cfg.Provider)
	}
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("Error closing redis connection", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
