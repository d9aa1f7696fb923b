package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/adapter/httpserver"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/adapter/metrics"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/adapter/postgres"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/adapter/redis"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/app"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/config"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/crypto"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/crypto/cryptotest"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/logging"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/version"
)

const (
	shutdownTimeout       = 10 * time.Second
	cacheEvictionInterval = time.Minute
)

func runGracefulShutdown(srv *httpserver.Server, stopBackground context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// stops the rollout ticker (releasing its lease) and the invalidation subscriber
		stopBackground()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config, m *metrics.DBMetrics) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.NewMetricsTracer(m))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// the breaker sits outside the metrics hook so rejected commands are not timed
	client, err := redis.NewClient(ctx, cfg.RedisURL, redis.NewCircuitBreakerHook(m), redis.NewMetricsHook(m))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupSealer(cfg *config.Config) crypto.Service {
	if cfg.SettingsEncryptionKey == "" {
		slog.Warn("SETTINGS_ENCRYPTION_KEY not set, secret settings are stored in plain text")
		return cryptotest.PlainService{}
	}
	sealer, err := crypto.NewAesGcmService(cfg.SettingsEncryptionKey)
	if err != nil {
		slog.Error("Failed to create settings cipher", "error", err)
		os.Exit(1)
	}
	return sealer
}

func instanceID(cfg *config.Config) string {
	if cfg.InstanceID != "" {
		return cfg.InstanceID
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Version)

	reg := metrics.NewRegistry()
	dbMetrics := metrics.NewDBMetrics(reg)
	redisMetrics := metrics.NewRedisMetrics(reg)
	cacheMetrics := metrics.NewCacheMetrics(reg)
	domainMetrics := metrics.NewDomainMetrics(reg)
	httpMetrics := metrics.NewHTTPMetrics(reg)

	pool := setupDB(cfg, dbMetrics)
	defer pool.Close()

	redisClient := setupRedis(cfg, redisMetrics)
	defer func() { _ = redisClient.Close() }()

	packRepo := postgres.NewPackRepo(pool)
	packCache := redis.NewPackCache(redisClient, packRepo, cfg.PackCacheTTL, clock, cacheMetrics)
	stopEviction := packCache.StartEvictionTimer(cacheEvictionInterval)
	defer stopEviction()

	appSvc := app.NewService(app.Deps{
		Businesses:  postgres.NewBusinessRepo(pool),
		Staff:       postgres.NewStaffRepo(pool),
		Customers:   postgres.NewCustomerRepo(pool),
		Offerings:   postgres.NewOfferingRepo(pool),
		Bookings:    postgres.NewBookingRepo(pool),
		Packs:       packRepo,
		Support:     postgres.NewSupportCaseRepo(pool),
		Settings:    postgres.NewSettingsRepo(pool),
		Snapshots:   packCache,
		Invalidator: packCache,
		Sealer:      setupSealer(cfg),
		Guard:       redis.NewDebouncer(redisClient),
		Observer:    domainMetrics,
		Clock:       clock,
	})

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	go redis.NewPackInvalidationSubscriber(redisClient, packCache).Start(bgCtx)

	id := instanceID(cfg)
	ticker := app.NewRolloutTicker(redis.NewLeaderElector(redisClient, id), appSvc, cfg.RolloutTickInterval, clock)
	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		ticker.Run(bgCtx)
	}()
	slog.Info("Rollout ticker started", "instance_id", id, "interval", cfg.RolloutTickInterval)

	srv, err := httpserver.NewServer(cfg, appSvc, httpserver.Options{
		HealthChecks: []httpserver.HealthCheck{
			{Name: "postgres", Check: pool.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
		MetricsHandler: metrics.Handler(reg),
		HTTPMetrics:    httpMetrics,
	})
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(srv, stopBackground)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	<-tickerDone
	slog.Info("Shutdown complete")
}
