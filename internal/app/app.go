// Package app wires the API server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/ruxstar-pod/internal/cache"
	"github.com/xenking/ruxstar-pod/internal/domain/order"
	"github.com/xenking/ruxstar-pod/internal/domain/pricing"
	"github.com/xenking/ruxstar-pod/internal/domain/product"
	"github.com/xenking/ruxstar-pod/internal/handler"
	"github.com/xenking/ruxstar-pod/internal/notify"
	"github.com/xenking/ruxstar-pod/internal/storage/postgres"
	"github.com/xenking/ruxstar-pod/pkg/health"
	"github.com/xenking/ruxstar-pod/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("pricing_policy", cfg.Pricing.Policy),
		zap.Bool("redis", cfg.RedisEnabled()),
		zap.Bool("kafka", cfg.KafkaEnabled()),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
		MaxConns:        cfg.DB.MaxConns,
		MaxConnLifetime: cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.Readiness("postgres", health.Ping(pool.Ping))
	healthSvc.Liveness("goroutines", health.Goroutines(10000), health.WithTimeout(time.Second))
	healthSvc.Liveness("gc_pause", health.GCPause(500*time.Millisecond), health.WithTimeout(time.Second))

	g, gctx := errgroup.WithContext(ctx)

	// Repositories.
	var products product.Repository = postgres.NewProductRepository(pool)
	vendorRepo := postgres.NewVendorRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)
	fileStore := postgres.NewFileStore(pool, cfg.PublicBaseURL)

	// Redis: product cache and the shared rate limiter.
	var limiter httpmiddleware.Limiter
	if cfg.RedisEnabled() {
		rdb, err := newRedis(cfg.Redis)
		if err != nil {
			return errors.Wrap(err, "create redis client")
		}
		defer func() { _ = rdb.Close() }()
		healthSvc.Readiness("redis", health.Ping(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))

		cached := cache.NewProducts(products, rdb, cfg.Redis.TTL)
		if err := cached.Warm(ctx); err != nil {
			lg.Warn("Product cache warm-up failed", zap.Error(err))
		}
		g.Go(func() error {
			cached.Refresh(gctx, cfg.Redis.Refresh)
			return nil
		})
		products = cached
		limiter = httpmiddleware.NewRedisLimiter(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window)
	} else {
		mem := httpmiddleware.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
		g.Go(func() error {
			mem.RunSweeper(gctx)
			return nil
		})
		limiter = mem
	}

	// Customer notifications: always logged, also published when Kafka is
	// configured.
	notifiers := notify.Multi{notify.Log{}}
	if cfg.KafkaEnabled() {
		publisher := notify.NewKafka(
			notify.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.CreatedTopic),
			notify.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.ReadyTopic),
		)
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Warn("Close kafka writers", zap.Error(err))
			}
		}()
		notifiers = append(notifiers, publisher)
	}

	// Domain services.
	policy, err := pricing.PolicyByName(cfg.Pricing.Policy)
	if err != nil {
		return errors.Wrap(err, "pricing policy")
	}
	orderService := order.NewService(
		products,
		vendorRepo,
		orderRepo,
		fileStore,
		notifiers,
		pricing.NewEngine(policy),
		order.WithQuantityRange(cfg.Pricing.MinQuantity, cfg.Pricing.MaxQuantity),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)

	// HTTP handlers: health endpoints + API routes on one server.
	h := handler.New(
		handler.Config{ImageBaseURL: cfg.ImageBaseURL, MaxBodyBytes: cfg.MaxBodyBytes},
		products,
		orderService,
		fileStore,
		handler.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)),
	)
	mux := http.NewServeMux()
	healthSvc.Register(mux)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(limiter, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("pod-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	g.Go(func() error {
		return healthSvc.Run(gctx, 10*time.Second)
	})
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

func newRedis(cfg RedisConfig) (*redis.Client, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}
