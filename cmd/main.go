package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/cart"
	"github.com/fjod/go_cart/storefront-service/internal/config"
	"github.com/fjod/go_cart/storefront-service/internal/health"
	h "github.com/fjod/go_cart/storefront-service/internal/http"
	"github.com/fjod/go_cart/storefront-service/internal/logger"
	"github.com/fjod/go_cart/storefront-service/internal/metrics"
	"github.com/fjod/go_cart/storefront-service/internal/poller"
	"github.com/fjod/go_cart/storefront-service/internal/session"
	"github.com/fjod/go_cart/storefront-service/internal/variant"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer l.Sync()
	zap.ReplaceGlobals(l)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session backend
	backend, pinger, closeBackend, err := openBackend(ctx, cfg, l)
	if err != nil {
		l.Fatal("Failed to open session backend", zap.String("backend", cfg.SessionBackend), zap.Error(err))
	}
	defer closeBackend()

	breaker := session.NewBreakerBackend(backend, session.BreakerSettings{
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	// Variant persistence
	repo, err := variant.NewSQLiteRepository(cfg.SQLitePath)
	if err != nil {
		l.Fatal("Failed to open variant database", zap.String("path", cfg.SQLitePath), zap.Error(err))
	}
	defer repo.Close()
	if err := repo.RunMigrations(); err != nil {
		l.Fatal("Failed to run migrations", zap.Error(err))
	}
	l.Info("Variant database ready", zap.String("path", cfg.SQLitePath))

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewServerMetrics(reg)

	var cartOpts []cart.Option
	if cfg.QuantityFloor != nil {
		cartOpts = append(cartOpts, cart.WithQuantityFloor(*cfg.QuantityFloor))
	}

	router := h.NewRouter(h.RouterConfig{
		Cart:           h.NewCartHandler(breaker, cfg.RequestTimeout, l, cartOpts...),
		Variants:       h.NewVariantHandler(variant.NewService(repo), cfg.RequestTimeout, l),
		Metrics:        m,
		MetricsHandler: metrics.Handler(reg),
		Logger:         l,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info("Storefront HTTP listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("server error", zap.Error(err))
		}
	}()

	// gRPC health
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		l.Fatal("Failed to listen", zap.String("port", cfg.GRPCPort), zap.Error(err))
	}
	healthServer := health.NewServer(pinger, 10*time.Second, l)
	go healthServer.Watch(ctx)
	go func() {
		l.Info("Health service listening", zap.String("port", cfg.GRPCPort))
		if err := healthServer.Serve(lis); err != nil {
			l.Error("health server stopped", zap.Error(err))
		}
	}()

	// Checkout events
	var p *poller.Poller
	if len(cfg.KafkaBrokers) > 0 {
		p = poller.NewPoller(breaker, l, m, cfg.KafkaBrokers...)
		go p.Run(ctx)
		l.Info("Checkout poller started", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", poller.Topic))
	} else {
		l.Info("KAFKA_BROKERS not set, checkout poller disabled")
	}

	// Wait for interrupt signal
	<-ctx.Done()

	l.Info("Shutting down storefront service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("server forced to shutdown", zap.Error(err))
	}
	healthServer.GracefulStop()
	if p != nil {
		p.Close()
	}
	l.Info("Storefront service stopped")
}

// openBackend connects the configured session backend. The returned pinger
// is nil for the in-memory backend.
func openBackend(ctx context.Context, cfg *config.Config, l *zap.Logger) (session.Backend, health.Pinger, func(), error) {
	switch cfg.SessionBackend {
	case config.BackendRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		l.Info("Redis ping succeeded", zap.String("addr", cfg.RedisAddr))
		b := session.NewRedisBackend(redisClient)
		return b, b, func() { redisClient.Close() }, nil

	case config.BackendMongo:
		db, err := session.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, nil, err
		}
		b := session.NewMongoBackend(db, 0)
		if err := b.CreateIndexes(ctx); err != nil {
			db.Client().Disconnect(context.Background())
			return nil, nil, nil, err
		}
		l.Info("Connected to MongoDB", zap.String("uri", cfg.MongoURI), zap.String("db", cfg.MongoDBName))
		return b, b, func() { db.Client().Disconnect(context.Background()) }, nil

	default:
		b := session.NewMemoryBackend(session.DefaultMemoryTTL)
		l.Warn("Using in-memory sessions; carts are lost on restart")
		return b, nil, func() { b.Close() }, nil
	}
}
