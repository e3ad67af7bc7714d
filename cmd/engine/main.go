package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"fresh-hub/internal/config"
	"fresh-hub/internal/database"
	"fresh-hub/internal/engine"
	"fresh-hub/internal/engine/actors"
	"fresh-hub/internal/handlers"
	"fresh-hub/internal/middleware"
	"fresh-hub/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
)

// App holds all dependencies of a running engine process
type App struct {
	config     *config.Config
	logger     *slog.Logger
	metrics    *utils.MetricsCollector
	store      database.Store
	engine     *engine.Engine
	dispatcher *actors.Dispatcher
	handler    http.Handler
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := utils.NewLogger(os.Stderr, cfg.LogFormat, cfg.Debug)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    cfg.Server.Address(),
		Handler: app.handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", srv.Addr, "store", cfg.Database.Type)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			app.Close(context.Background())
			return fmt.Errorf("server failed to start: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	return app.Close(shutdownCtx)
}

// NewApp opens the configured store and wires the engine, actors and routes.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	metrics := utils.NewMetricsCollector()
	eng := engine.New(store, engine.WithLogger(logger), engine.WithMetrics(metrics))

	if cfg.SeedSampleData {
		if _, err := eng.SeedSampleUsers(ctx); err != nil {
			store.Close(ctx)
			return nil, fmt.Errorf("failed to seed sample users: %w", err)
		}
	}

	dispatcher := actors.NewDispatcher(actor.NewActorSystem(), eng, cfg.Server.RequestTimeout, logger)
	server := handlers.NewServer(eng, dispatcher, metrics, logger, cfg.Server.RequestTimeout)

	return &App{
		config:     cfg,
		logger:     logger,
		metrics:    metrics,
		store:      store,
		engine:     eng,
		dispatcher: dispatcher,
		handler:    server.Handler(cfg.Server.MetricsEnabled, middleware.DefaultCORSConfig(cfg.AllowedOrigins)),
	}, nil
}

// Close stops the actors before releasing the store they write to.
func (a *App) Close(ctx context.Context) error {
	a.dispatcher.Stop()
	return a.store.Close(ctx)
}

func openStore(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (database.Store, error) {
	switch cfg.Type {
	case config.StoreMemory:
		logger.Warn("Using in-memory store, data is lost on restart")
		return database.NewMemoryStore(), nil

	case config.StorePostgres:
		db, err := database.NewPostgresDB(cfg.Driver, cfg.URI, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := db.InitializeTables(ctx); err != nil {
			db.Close(ctx)
			return nil, fmt.Errorf("failed to initialize tables: %w", err)
		}
		return db, nil

	case config.StoreMongoDB:
		db, err := database.NewMongoDB(cfg.URI, cfg.Name, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		if err := db.EnsureIndexes(ctx); err != nil {
			db.Close(ctx)
			return nil, fmt.Errorf("failed to create indexes: %w", err)
		}
		return db, nil

	case config.StoreRedis:
		db, err := database.NewRedisStore(cfg.URI, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return db, nil

	default:
		return nil, fmt.Errorf("unsupported store type %q", cfg.Type)
	}
}
