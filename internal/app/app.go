// Package app wires configuration, storage, domain services, and the HTTP
// server into a runnable API process.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vendimo/marketplace/internal/audit"
	"github.com/vendimo/marketplace/internal/domain/cart"
	"github.com/vendimo/marketplace/internal/domain/order"
	"github.com/vendimo/marketplace/internal/handler"
	"github.com/vendimo/marketplace/internal/storage/postgres"
	"github.com/vendimo/marketplace/internal/storage/rediscache"
	"github.com/vendimo/marketplace/pkg/health"
	"github.com/vendimo/marketplace/pkg/httpmiddleware"
)

func otelOptions(m *app.Telemetry) []otelhttp.Option {
	return []otelhttp.Option{
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	}
}

// Run creates all dependencies, starts the HTTP server and the audit
// publisher, and handles graceful shutdown. It is the single wiring point
// for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	defaultRate, err := decimal.NewFromString(cfg.Commission.DefaultRate)
	if err != nil {
		return errors.Wrap(err, "parse commission rate")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc-pause", time.Second, health.GCMaxPauseCheck(500*time.Millisecond))

	// Optional Redis cart cache.
	var cartStore cart.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		cartStore = rediscache.NewCartCache(rdb)
		healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	promoRepo := postgres.NewPromoRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	escrowRepo := postgres.NewEscrowRepository(pool)
	refundRepo := postgres.NewRefundRepository(pool)
	settingsRepo := postgres.NewSettingsRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)
	outbox := postgres.NewOutboxRepository(pool)

	// Domain services.
	orderService := order.NewService(order.ServiceDeps{
		Products:              productRepo,
		Promos:                promoRepo,
		Stores:                settingsRepo,
		Orders:                orderRepo,
		Escrow:                escrowRepo,
		Refunds:               refundRepo,
		Ledger:                outbox,
		Tx:                    postgres.NewTxManager(pool),
		DefaultCommissionRate: defaultRate,
	})

	// HTTP handlers.
	h := handler.New(handler.Deps{
		Orders:    orderService,
		Products:  productRepo,
		Promos:    promoRepo,
		Carts:     cartStore,
		APIKeys:   apikeyRepo,
		KeyPepper: []byte(cfg.APIKeyPepper),
		Logger:    lg,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-Api-Key", "X-Buyer-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("marketplace-api",
				otelOptions(m)...),
			httpmiddleware.LogRequests(),
		),
	}

	g, gctx := errgroup.WithContext(ctx)

	// Audit publisher: outbox rows written by checkout and the money
	// lifecycle are drained to Kafka. Without brokers the rows stay in the
	// table and can be drained later.
	if len(cfg.Audit.Brokers) > 0 {
		poller := audit.NewPoller(outbox, cfg.Audit.Brokers, cfg.Audit.Topic, lg.Named("audit"))
		g.Go(func() error {
			poller.Run(gctx)
			return nil
		})
	} else {
		lg.Info("Audit publishing disabled: no Kafka brokers configured")
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return g.Wait()
}
