package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_cart/internal/cache"
	"github.com/fjod/go_cart/internal/config"
	h "github.com/fjod/go_cart/internal/http"
	"github.com/fjod/go_cart/internal/observability"
	"github.com/fjod/go_cart/internal/publisher"
	"github.com/fjod/go_cart/internal/repository"
	"github.com/fjod/go_cart/internal/repository/memory"
	"github.com/fjod/go_cart/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type backend interface {
	repository.Store
	repository.OutboxRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Endpoint:       cfg.OtelEndpoint,
		Insecure:       cfg.OtelInsecure,
	})
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	store, ready, closeStore := openStore(cfg, logger)
	defer closeStore()

	cartCache, closeCache := openCache(ctx, cfg, logger)
	defer closeCache()

	retry := service.DefaultRetryPolicy()
	retry.MaxRetries = cfg.RetryAttempts

	carts := service.NewCartService(store, cartCache, retry, logger)
	checkout := service.NewCheckoutService(store, carts, retry, logger)

	var wg sync.WaitGroup
	if len(cfg.KafkaBrokers) > 0 {
		writer := publisher.NewKafkaWriter(cfg.OrderEventsTopic, cfg.KafkaBrokers...)
		poller := publisher.NewOutboxPoller(store, writer, cfg.OutboxInterval, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
			if err := writer.Close(); err != nil {
				logger.Warn("failed to close kafka writer", zap.Error(err))
			}
		}()
		logger.Info("outbox publisher started",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.OrderEventsTopic))
	} else {
		logger.Info("KAFKA_BROKERS not set, order events stay in the outbox")
	}

	router := h.NewRouter(h.RouterConfig{
		Carts:          carts,
		Checkout:       checkout,
		Orders:         service.NewOrderService(store),
		Catalog:        service.NewCatalogService(store),
		JWTSecret:      []byte(cfg.JWTSecret),
		RequestTimeout: cfg.RequestTimeout,
		RateLimit:      rate.Limit(cfg.RateLimitRPS),
		RateBurst:      cfg.RateLimitBurst,
		Ready:          ready,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("store service starting", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	wg.Wait()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("failed to flush traces", zap.Error(err))
	}

	logger.Info("server exited")
}

func openStore(cfg *config.Config, logger *zap.Logger) (backend, func(context.Context) error, func()) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(memory.DemoCatalog()...), nil, func() {}
	}

	creds := &repository.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
		LockTimeout:       cfg.LockTimeout,
	}

	repo, err := repository.NewRepository(creds)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := repo.RunMigrations(creds); err != nil {
		_ = repo.Close()
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations completed", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))

	return repo, repo.Ping, func() {
		if err := repo.Close(); err != nil {
			logger.Warn("failed to close database", zap.Error(err))
		}
	}
}

func openCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.CartCache, func()) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, cart cache disabled")
		return cache.Noop{}, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		// The breaker keeps requests flowing to the store while Redis is down.
		logger.Warn("redis ping failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	} else {
		logger.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))
	}

	breaker := cache.NewBreakerCache(cache.NewRedisCache(client, cfg.CacheTTL), cache.BreakerSettings{
		ConsecutiveFailures: cfg.BreakerFailures,
		OpenTimeout:         cfg.BreakerOpenTimeout,
	}, logger)

	return breaker, func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
}
