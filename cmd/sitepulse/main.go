package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/sitepulse/pkg/analytics"
	"github.com/platinummonkey/sitepulse/pkg/api"
	"github.com/platinummonkey/sitepulse/pkg/config"
	"github.com/platinummonkey/sitepulse/pkg/ga4"
	"github.com/platinummonkey/sitepulse/pkg/middleware"
	"github.com/platinummonkey/sitepulse/pkg/observability"
	"github.com/platinummonkey/sitepulse/pkg/storage"
)

var version = "dev"

func main() {
	envFile := flag.String("env-file", ".env", "Optional .env file loaded before reading configuration")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).Named("sitepulse")
	ctx := context.Background()

	tp, err := observability.InitTracing(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		logger.WithError(err).Warn("Tracing disabled, initialization failed")
	}

	var registry *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}

	// Redis is optional; without it rate limits are per process
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = storage.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, rate limiting per process")
			redisClient = nil
		} else {
			logger.Info("Redis connected for shared rate limiting")
		}
	}

	clock := clockwork.NewRealClock()
	limiter := middleware.NewLimiter(redisClient, clock, logger, metrics)

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.RateLimit.CleanupSchedule, func() {
		if n := limiter.Cleanup(); n > 0 {
			logger.WithField("removed", n).Debug("Pruned expired rate limit windows")
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule rate limit cleanup: %v", err)
	}
	scheduler.Start()

	eventLog := analytics.NewEventLog()
	ingestor := analytics.NewIngestor(eventLog, clock, logger, metrics)

	ga4Client, err := ga4.NewFromConfig(ctx, cfg.GA4, logger, metrics)
	if err != nil {
		logger.WithError(err).Error("GA4 credentials invalid, serving local statistics only")
		ga4Client = ga4.New(cfg.GA4, nil, logger, metrics)
	}
	if !ga4Client.Configured() {
		logger.Info("GA4 not configured, summaries use locally ingested events")
	}

	aggregator := analytics.NewAggregator(eventLog, ga4Client, nil, logger, metrics)
	health := observability.NewHealthChecker(redisClient, version).WithUpstream(ga4Client.Configured)

	srv := api.NewServer(api.Dependencies{
		Config:     cfg,
		Ingestor:   ingestor,
		Aggregator: aggregator,
		Limiter:    limiter,
		Health:     health,
		Registry:   registry,
		Metrics:    metrics,
		Logger:     logger,
		Clock:      clock,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      otelhttp.NewHandler(srv.Handler(), "sitepulse"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
		}
		return nil
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownTracing(ctx, tp)
	})

	go func() {
		logger.Infof("Starting sitepulse %s on %s", version, httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown did not complete cleanly")
		os.Exit(1)
	}
	logger.Info("sitepulse stopped")
}
