package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-dashboard/internal/analytics"
	"github.com/p-n-ai/pai-dashboard/internal/content"
	"github.com/p-n-ai/pai-dashboard/internal/dashboard"
	"github.com/p-n-ai/pai-dashboard/internal/lessontree"
	"github.com/p-n-ai/pai-dashboard/internal/notify"
	"github.com/p-n-ai/pai-dashboard/internal/platform/cache"
	"github.com/p-n-ai/pai-dashboard/internal/platform/config"
	"github.com/p-n-ai/pai-dashboard/internal/platform/database"
	"github.com/p-n-ai/pai-dashboard/internal/platform/logging"
)

const sweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	go a.manager.Run(ctx, sweepInterval)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// app holds the wired service.
type app struct {
	handler http.Handler
	manager *dashboard.Manager
	closers []func()
}

func (a *app) close() {
	if a.manager != nil {
		a.manager.CloseAll()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp connects the configured backends and builds the HTTP handler.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	checks := make(map[string]dashboard.HealthChecker)
	chain := content.NewChain()

	var invalidator dashboard.Invalidator
	if cfg.Content.APIURL != "" {
		client := content.NewClient(cfg.Content.APIURL,
			content.WithHTTPClient(&http.Client{Timeout: cfg.Content.Timeout}),
			content.WithAPIKey(cfg.Content.APIKey),
			content.WithMaxRetries(cfg.Content.MaxRetries),
		)
		checks["content"] = client
		var src content.Source = client

		if cfg.Cache.Enabled {
			c, err := cache.New(ctx, cfg.Cache.URL)
			if err != nil {
				a.close()
				return nil, err
			}
			a.closers = append(a.closers, func() { c.Close() })
			checks["cache"] = c
			cached := content.NewCachedSource(client, c, cfg.Cache.TTL)
			invalidator = cached
			src = cached
			slog.Info("content cache enabled", "ttl", cfg.Cache.TTL)
		}
		chain.Register("api", src)
	}

	if cfg.Content.FixturesPath != "" {
		files, err := content.NewFileSource(cfg.Content.FixturesPath)
		if err != nil {
			a.close()
			return nil, err
		}
		chain.Register("fixtures", files)
	}

	var events analytics.EventLogger = analytics.NopEventLogger{}
	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := db.EnsureSchema(ctx); err != nil {
			a.close()
			return nil, err
		}
		checks["database"] = db
		events = analytics.NewPostgresEventLogger(db.Pool)
	}

	gateway := notify.NewGateway()
	gateway.Register("log", notify.LogChannel{})

	a.manager = dashboard.NewManager(dashboard.Deps{
		Source:      chain,
		Invalidator: invalidator,
		Notifier:    gateway,
		Events:      events,
		Loader: lessontree.LoaderConfig{
			InitialBatchSize: cfg.Loader.InitialBatch,
			BatchSize:        cfg.Loader.Batch,
			BatchDelay:       cfg.Loader.BatchDelay,
		},
		AutoLoadInterval: cfg.Loader.AutoInterval,
		ScrollThreshold:  cfg.Loader.ScrollThreshold,
	}, cfg.Session.IdleTTL)
	gateway.Register("websocket", a.manager)

	a.handler = dashboard.NewHandler(a.manager, checks, logger)
	return a, nil
}
