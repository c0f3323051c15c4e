package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/pos-backoffice/internal/domain/order"
	"github.com/xenking/pos-backoffice/internal/domain/report"
	"github.com/xenking/pos-backoffice/internal/domain/settings"
	"github.com/xenking/pos-backoffice/internal/events"
	"github.com/xenking/pos-backoffice/internal/handler"
	"github.com/xenking/pos-backoffice/internal/storage/cache"
	"github.com/xenking/pos-backoffice/internal/storage/postgres"
	"github.com/xenking/pos-backoffice/pkg/health"
	"github.com/xenking/pos-backoffice/pkg/httpmiddleware"
)

// newPublisher returns the event publisher selected by cfg.
func newPublisher(cfg EventsConfig) (events.Publisher, error) {
	switch cfg.Driver {
	case "kafka":
		return events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic), nil
	case "amqp":
		p, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, errors.Wrap(err, "connect amqp")
		}
		return p, nil
	default:
		return events.Nop{}, nil
	}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("timezone", cfg.Timezone),
		zap.String("events", cfg.Events.Driver),
	)

	// Money is rendered as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	loc, err := cfg.Location()
	if err != nil {
		return err
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
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool.Ping))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	var settingsStore settings.Store = postgres.NewSettingsStore(pool)
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewClient(ctx, cfg.Redis.Addr)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		settingsStore = cache.NewSettingsCache(settingsStore, rdb, cfg.Redis.KeyPrefix, cfg.Redis.SettingsTTL)
		healthSvc.AddReadinessCheckWithThresholds("redis", 2*time.Second,
			health.PingCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
			health.Thresholds{Failure: 3, Success: 1},
		)
		lg.Info("Settings cache enabled", zap.String("redis", cfg.Redis.Addr))
	}

	publisher, err := newPublisher(cfg.Events)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			lg.Warn("Close event publisher", zap.Error(err))
		}
	}()

	apiHandler, err := newRouter(ctx, cfg, loc, wiring{
		pool:      pool,
		settings:  settingsStore,
		publisher: publisher,
		health:    healthSvc,
		tracer:    m.TracerProvider(),
		meter:     m.MeterProvider(),
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           apiHandler,
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
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
	return nil
}

// wiring carries the infrastructure the HTTP stack is built on.
type wiring struct {
	pool      *pgxpool.Pool
	settings  settings.Store
	publisher events.Publisher
	health    *health.Health
	tracer    trace.TracerProvider
	meter     metric.MeterProvider
}

// newRouter builds the domain services and returns the fully wrapped API
// handler, including probes and the metrics endpoint.
func newRouter(ctx context.Context, cfg *Config, loc *time.Location, w wiring) (http.Handler, error) {
	orderStore := postgres.NewOrderStore(w.pool)
	catalogStore := postgres.NewCatalogStore(w.pool)
	customerStore := postgres.NewCustomerStore(w.pool)
	staffStore := postgres.NewStaffStore(w.pool)

	orderService, err := order.NewService(orderStore, catalogStore, customerStore,
		postgres.NewTxManager(w.pool),
		settings.NewResolver(w.settings),
		order.WithLocation(loc),
		order.WithPublisher(w.publisher),
		order.WithPublishTimeout(cfg.Events.PublishTimeout),
		order.WithTracerProvider(w.tracer),
		order.WithMeterProvider(w.meter),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}
	reportEngine := report.NewEngine(orderStore, catalogStore, customerStore, staffStore,
		report.WithLocation(loc),
	)

	// HTTP metrics live in their own registry.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := httpmiddleware.NewMetrics(registry, "pos")

	h := handler.New(handler.Config{Location: loc}, orderService, reportEngine)
	auth := handler.NewAuthenticator(staffStore, []byte(cfg.APIKeyPepper))

	r := chi.NewRouter()
	r.Use(
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.Origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
			ExposedHeaders:   []string{httpmiddleware.RequestIDHeader, "Content-Disposition"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpMetrics.Middleware(),
		httpmiddleware.LogRequests(),
	)
	r.Get("/livez", w.health.LiveEndpoint)
	r.Get("/readyz", w.health.ReadyEndpoint)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		h.Register(r)
	})

	return httpmiddleware.Wrap(
		otelhttp.NewHandler(r, "pos-api",
			otelhttp.WithTracerProvider(w.tracer),
			otelhttp.WithMeterProvider(w.meter),
		),
		httpmiddleware.Recovery(),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.RateLimit.Max,
			Window:  cfg.RateLimit.Window,
			KeyFunc: httpmiddleware.KeyByHeader(handler.APIKeyHeader),
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
	), nil
}
