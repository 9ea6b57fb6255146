package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/terra-clan/checklist-engine/internal/api"
	"github.com/terra-clan/checklist-engine/internal/auth"
	"github.com/terra-clan/checklist-engine/internal/checklist"
	"github.com/terra-clan/checklist-engine/internal/cleanup"
	"github.com/terra-clan/checklist-engine/internal/config"
	"github.com/terra-clan/checklist-engine/internal/events"
	"github.com/terra-clan/checklist-engine/internal/services"
	"github.com/terra-clan/checklist-engine/internal/templates"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server and the overdue sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	slog.Info("starting checklist-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"database", cfg.Database.Driver,
		"sessions", cfg.Session.Backend,
		"events", cfg.Events.Backend,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	defer initCancel()

	repo, err := openRepository(initCtx, cfg.Database, cfg.Database.AutoMigrate)
	if err != nil {
		return err
	}
	defer repo.Close()
	slog.Info("database connected successfully")

	// Initialize service registry
	registry := services.NewRegistry()
	registry.Register("database", services.NewPingProvider(cfg.Database.Driver, repo))

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisProvider, err := services.NewRedisProvider(initCtx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer redisProvider.Close()
		registry.Register("redis", redisProvider)
		redisClient = redisProvider.Client()
	}

	broker, err := newBroker(initCtx, redisClient)
	if err != nil {
		return err
	}
	defer broker.Close()
	registry.Register("events", services.NewPingProvider(cfg.Events.Backend, broker))

	manager := checklist.NewManager(repo, checklist.WithBroker(broker))

	if cfg.Templates.Dir != "" {
		res, err := templates.ImportDir(initCtx, cfg.Templates.Dir, manager)
		if err != nil {
			slog.Warn("failed to import templates", "dir", cfg.Templates.Dir, "error", err)
		} else {
			slog.Info("templates imported", "dir", cfg.Templates.Dir,
				"created", res.Created, "updated", res.Updated, "failed", len(res.Failed))
		}
	}

	// Setup HTTP server
	server := api.NewServer(cfg.Server, cfg.Session, api.Dependencies{
		Manager:  manager,
		Users:    repo,
		Sessions: newSessionStore(redisClient),
		Broker:   broker,
		Registry: registry,
	})
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if cfg.Cleanup.Enabled {
		sweeper := cleanup.NewSweeper(manager, cfg.Cleanup.Interval)
		g.Go(func() error {
			return sweeper.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("checklist-engine stopped with error", "error", err)
		return err
	}

	slog.Info("checklist-engine stopped")
	return nil
}

// newBroker creates the configured change-event broker
func newBroker(ctx context.Context, redisClient *redis.Client) (events.Broker, error) {
	switch cfg.Events.Backend {
	case config.BackendRedis:
		b, err := events.NewRedisBroker(ctx, redisClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis event broker: %w", err)
		}
		return b, nil
	case config.BackendPostgres:
		b, err := events.NewPostgresBroker(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres event broker: %w", err)
		}
		return b, nil
	}
	return events.NewLocalBroker(), nil
}

// newSessionStore creates the configured admin session store
func newSessionStore(redisClient *redis.Client) auth.SessionStore {
	if cfg.Session.Backend == config.BackendRedis {
		return auth.NewRedisSessionStore(redisClient, cfg.Session.TTL)
	}
	return auth.NewCookieSessionStore()
}
