package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/vnmchuo/costs-service/config"
	"github.com/vnmchuo/costs-service/internal/api"
	"github.com/vnmchuo/costs-service/internal/auth"
	"github.com/vnmchuo/costs-service/internal/logging"
	"github.com/vnmchuo/costs-service/internal/metrics"
	"github.com/vnmchuo/costs-service/internal/pricing"
	"github.com/vnmchuo/costs-service/internal/seeder"
	"github.com/vnmchuo/costs-service/internal/telemetry"
	"github.com/vnmchuo/costs-service/pkg/ratelimit"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Init logger
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// 3. Init telemetry
	ctx := context.Background()
	shutdownTracer, err := telemetry.Setup(ctx, telemetry.OptionsFromConfig("costs-service", cfg))
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	// 4. Connect PostgreSQL
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}
	logger.Info("PostgreSQL connected")

	// 5. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to ping redis", zap.Error(err))
	}
	logger.Info("Redis connected")

	// 6. Run migrations if RUN_MIGRATIONS=true
	if cfg.RunMigrations {
		if err := pricing.Migrate(ctx, pool); err != nil {
			logger.Fatal("failed to migrate pricing tables", zap.Error(err))
		}
		if err := auth.Migrate(ctx, pool); err != nil {
			logger.Fatal("failed to migrate api_keys", zap.Error(err))
		}
		logger.Info("migrations applied")
	}

	// 7. Init stores
	store := pricing.NewBreakerStore(pricing.NewPostgresStore(pool), pricing.BreakerSettings{
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("store circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	authStore := auth.NewPostgresStore(pool)
	authMiddleware := auth.NewMiddleware(authStore, rdb, logger)

	// 8. Seed catalog and admin key if RUN_SEED=true
	if cfg.RunSeed {
		catalog, err := seeder.Default()
		if err != nil {
			logger.Fatal("failed to load seed catalog", zap.Error(err))
		}
		if _, err := catalog.Apply(ctx, store, logger); err != nil {
			logger.Fatal("failed to seed catalog", zap.Error(err))
		}
		seeder.SeedAdminAPIKey(ctx, authStore, cfg.AdminAPIKey, logger)
	}

	// 9. Init metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 10. Init handler
	tracer := otel.GetTracerProvider().Tracer("costs-service")
	handler := api.NewHandler(api.Options{
		Plans:   store,
		Prices:  store,
		Limiter: ratelimit.NewLimiter(rdb, cfg.WriteRateLimitPerMinute),
		Metrics: m,
		Tracer:  tracer,
		Logger:  logger,
	})

	// 11. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(handler, authMiddleware, m),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("costs service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}
