// relay runs the webhook delivery reliability engine behind an HTTP API.
//
// The engine itself performs no webhook transport; the delivery callback
// wired here POSTs replay payloads to destinations from the configured
// webhook target table.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/relaycore/relay/internal/api"
	"github.com/relaycore/relay/internal/backoff"
	"github.com/relaycore/relay/internal/clock"
	"github.com/relaycore/relay/internal/config"
	"github.com/relaycore/relay/internal/engine"
	"github.com/relaycore/relay/internal/kafka"
	"github.com/relaycore/relay/internal/ledger"
	"github.com/relaycore/relay/internal/logindex"
	"github.com/relaycore/relay/internal/monitor"
	"github.com/relaycore/relay/internal/observability"
	"github.com/relaycore/relay/internal/policy"
	"github.com/relaycore/relay/internal/replay"
	"github.com/relaycore/relay/internal/resilience"
	"github.com/relaycore/relay/internal/store/postgres"
	"github.com/relaycore/relay/internal/store/redisstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.RealClock{}

	policies := policy.NewStore(clk)
	if err := policies.SetFallback(cfg.DefaultRetryPolicy()); err != nil {
		logger.Error("invalid default retry policy", "error", err)
		os.Exit(1)
	}
	scheduler := backoff.NewScheduler(policies, clk, logger)
	led := ledger.New(scheduler, clk, logger)
	mon := monitor.New(clk, logger)
	index := logindex.New(clk)

	metrics := observability.NewMetrics("relay")
	healthHandler := observability.NewHealthHandler()

	mon.OnSubscriberPanic(metrics.SubscriberPanics.Inc)

	// Optional durable attempt archive.
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database")

		led.WithArchiver(postgres.NewAttemptStore(pool))
		healthHandler.AddCheck("database", pool)
	}

	// Optional shared recent-event ring.
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opt)

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not available, recent events stay local", "error", err)
		} else {
			logger.Info("connected to redis")
			ring := redisstore.NewEventRing(redisClient, redisstore.DefaultEventRingConfig(), logger)
			mon.Subscribe(ring.Subscriber())
			healthHandler.AddCheck("redis", ring)
		}
	}

	// Optional Kafka feed for external monitoring consumers.
	if len(cfg.KafkaBrokers) > 0 {
		pubConfig := kafka.DefaultPublisherConfig()
		pubConfig.Brokers = cfg.KafkaBrokers
		if cfg.KafkaTopic != "" {
			pubConfig.Topic = cfg.KafkaTopic
		}
		publisher := kafka.NewPublisher(pubConfig, logger)
		defer publisher.Close()
		mon.Subscribe(publisher.Subscriber())
		logger.Info("publishing delivery events to kafka", "brokers", cfg.KafkaBrokers, "topic", pubConfig.Topic)
	}

	httpClient := &http.Client{Timeout: cfg.DeliveryTimeout}
	deliver := httpDeliver(httpClient, cfg.WebhookTargets)

	rateLimiter := resilience.NewRateLimiterManager(resilience.DefaultRateLimiterConfig())
	circuitBreaker := resilience.NewCircuitBreakerManager(resilience.DefaultCircuitBreakerConfig())
	circuitBreaker.OnStateChange(func(webhookID string, from, to resilience.CircuitBreakerState) {
		logger.Warn("circuit breaker state changed", "webhook_id", webhookID, "from", from, "to", to)
	})

	replays := replay.NewEngine(deliver, policies,
		replay.WithLogger(logger),
		replay.WithResilience(rateLimiter, circuitBreaker),
	)

	eng := engine.New(policies, scheduler, led, replays, mon, index, logger).WithMetrics(metrics)

	// Periodic retention housekeeping.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := eng.CleanupOldAttempts(cfg.AttemptRetentionDays)
				evicted := mon.Cleanup()
				logger.Debug("housekeeping done", "attempts_removed", removed, "events_evicted", evicted)
			}
		}
	}()

	handler := api.NewHandler(eng, logger)
	router := api.NewRouter(api.RouterConfig{
		Handler:       handler,
		HealthHandler: healthHandler,
		Metrics:       metrics,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	healthHandler.SetReady(true)

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	scheduler.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
}

// httpDeliver builds the injected delivery callback from the static target
// table. Webhooks without a configured target fail immediately.
func httpDeliver(client *http.Client, targets map[string]string) replay.DeliverFunc {
	return func(ctx context.Context, webhookID string, payload json.RawMessage, headers map[string]string) (int, error) {
		url, ok := targets[webhookID]
		if !ok {
			return 0, fmt.Errorf("no delivery target configured for webhook %s", webhookID)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return 0, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Relay-Webhook-ID", webhookID)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		resp.Body.Close()
		return resp.StatusCode, nil
	}
}

func logLevel(s string) slog.Level {
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
