// Package main is the entrypoint for the vigil master.
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
	"time"

	"github.com/vigilhq/vigil-master/internal/api"
	"github.com/vigilhq/vigil-master/internal/api/handler"
	mw "github.com/vigilhq/vigil-master/internal/api/middleware"
	"github.com/vigilhq/vigil-master/internal/cache"
	"github.com/vigilhq/vigil-master/internal/config"
	"github.com/vigilhq/vigil-master/internal/correlate"
	"github.com/vigilhq/vigil-master/internal/directory"
	"github.com/vigilhq/vigil-master/internal/inventory"
	"github.com/vigilhq/vigil-master/internal/notify"
	"github.com/vigilhq/vigil-master/internal/respcache"
	"github.com/vigilhq/vigil-master/internal/store"
)

const shutdownTimeout = 30 * time.Second

// version is stamped by the build.
var version = "dev"

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := run(logger, level); err != nil {
		slog.Error("master failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, level *slog.LevelVar) error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level.Set(parseLogLevel(cfg.Server.LogLevel))
	slog.Info("config loaded", "env", cfg.Server.Env, "log_level", cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to the alarm database and run migrations
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := store.Migrate(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database ready")

	alarms := store.NewPostgresStore(pool)

	// 3. Cache service client. The master stays up while redis is down, so
	// a failed initial connect is not fatal; the client keeps retrying in
	// the background.
	redisClient, err := respcache.NewClient(respcache.ClientConfig{
		URL: cfg.Redis.URL,
		DB:  cfg.Redis.DB,
	}, logger)
	if err != nil {
		return fmt.Errorf("create cache-service client: %w", err)
	}
	defer redisClient.Shutdown()
	rc := respcache.NewRedisCache(redisClient)

	// 4. Directory client, gateway, and the read caches in front of it
	ldapClient := directory.NewClient(directory.ClientConfig{
		URL:          cfg.Directory.URL,
		BindDN:       cfg.Directory.BindDN,
		BindPassword: cfg.Directory.BindPassword,
		OpTimeout:    cfg.Directory.OpTimeout,
	}, logger)
	defer ldapClient.Shutdown()
	gw := directory.NewGateway(ldapClient, logger)

	reg := cache.NewRegistry(cache.Options{
		Enabled:         cfg.Cache.Enabled,
		Size:            cfg.Cache.Size,
		Expiry:          cfg.Cache.Expiry,
		AgentProbesSize: cfg.Cache.AgentProbesSize,
	}, logger)

	users := directory.NewUserDirectory(gw, reg, logger)
	probes := directory.NewProbeStore(gw, reg, logger)
	groups := directory.NewProbeGroupStore(gw, reg, logger)
	agentProbes := directory.NewAgentProbes(gw, reg, logger)

	// 5. Fleet inventory
	invClient := inventory.NewHTTPClient(cfg.Inventory.BaseURL, cfg.Inventory.Timeout)
	if err := invClient.Ready(ctx); err != nil {
		slog.Warn("inventory service not reachable at startup", "error", err)
	}
	roster := inventory.NewRoster(invClient, reg, logger)

	// 6. Notification channels
	plugins := []notify.Plugin{notify.NewWebhookPlugin(30 * time.Second)}
	if cfg.Notify.SMTPAddr != "" {
		plugins = append(plugins, notify.NewEmailPlugin(cfg.Notify.SMTPAddr, cfg.Notify.SMTPFrom))
		slog.Info("email notifications enabled", "relay", cfg.Notify.SMTPAddr)
	}
	dispatcher := notify.NewDispatcher(notify.NewRegistry(plugins...), logger)

	// 7. Correlation engine. No maintenance scheduler is wired in-process;
	// windows arrive through HandleMaintenanceEnd when one is deployed.
	engine := correlate.New(users, probes, groups, alarms, dispatcher, nil, logger)

	// 8. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(cfg.Admin.TokenHash),
		RateLimit: mw.NewRateLimit(rc, cfg.RateLimit.RequestsPerMin),

		PingHandler:        handler.NewPingHandler(alarms, rc, version),
		EventsHandler:      handler.NewEventsHandler(engine, roster),
		AgentProbesHandler: handler.NewAgentProbesHandler(agentProbes, rc),
		StateHandler:       handler.NewStateHandler(reg, level),
		StateActionHandler: handler.NewStateActionHandler(reg),

		ListAlarmsHandler:  handler.NewListAlarmsHandler(users, alarms),
		GetAlarmHandler:    handler.NewGetAlarmHandler(users, alarms),
		AlarmActionHandler: handler.NewAlarmActionHandler(users, alarms),
		DeleteAlarmHandler: handler.NewDeleteAlarmHandler(users, alarms),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("master listening", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("master stopped gracefully")
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
