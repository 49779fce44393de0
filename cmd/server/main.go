package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	appbilling "github.com/medledger/billing/internal/application/billing"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/infrastructure/auth"
	"github.com/medledger/billing/internal/infrastructure/cache"
	"github.com/medledger/billing/internal/infrastructure/config"
	"github.com/medledger/billing/internal/infrastructure/event"
	"github.com/medledger/billing/internal/infrastructure/logger"
	"github.com/medledger/billing/internal/infrastructure/persistence"
	"github.com/medledger/billing/internal/infrastructure/scheduler"
	"github.com/medledger/billing/internal/infrastructure/telemetry"
	"github.com/medledger/billing/internal/interfaces/http/handler"
	"github.com/medledger/billing/internal/interfaces/http/middleware"
	"github.com/medledger/billing/internal/interfaces/http/router"
	"go.uber.org/zap"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx := context.Background()

	// Base logger first; telemetry setup logs through it
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = cfg.App.Name
	}

	// OpenTelemetry: traces, metrics, logs
	tel, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       serviceName,
		ServiceVersion:    version,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log = tel.BridgeLogger(log)
	defer func() {
		_ = logger.Sync(log)
	}()

	profiler, err := telemetry.StartProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeAddress,
		ApplicationName: serviceName,
		Tags:            map[string]string{"env": cfg.App.Env},
	}, log)
	if err != nil {
		log.Warn("Continuous profiling unavailable", zap.Error(err))
		profiler = &telemetry.Profiler{}
	}
	if profiler.IsEnabled() {
		tel.EnableSpanProfiles()
	}

	log.Info("Starting billing ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Database with zap-backed GORM logger
	gormLog := logger.NewGormLogger(log, logger.GormLoggerConfig{
		Level:         logger.MapGormLogLevel(cfg.Log.Level),
		SlowThreshold: cfg.Telemetry.DBSlowQueryThresh,
	})
	db, err := persistence.Open(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", db.Driver))

	// postgres schemas come from cmd/migrate; sqlite is migrated in place
	if db.Driver == persistence.DriverSQLite || cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	dbSystem := "postgresql"
	if db.Driver == persistence.DriverSQLite {
		dbSystem = "sqlite"
	}
	dbTelemetry, err := telemetry.InstrumentGorm(db.DB, tel.Meter("billing.db"), telemetry.GormConfig{
		Tracing:            tel.TracingEnabled() && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:         cfg.Telemetry.DBLogFullSQL,
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:           dbSystem,
	}, log)
	if err != nil {
		log.Warn("Database instrumentation unavailable", zap.Error(err))
	}

	// Idempotency store: Redis when enabled, otherwise in-process
	idempotencyStore, err := cache.OpenIdempotencyStore(ctx, cfg.Redis, cfg.Redis.Required, log)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()
	idempotencyCfg := shared.IdempotencyConfig{
		Enabled: cfg.Billing.IdempotencyEnabled,
		TTL:     cfg.Billing.IdempotencyTTL,
	}

	// Ledger and application services
	ledger := appbilling.NewLedger(
		persistence.NewGormRepositories(db.DB),
		persistence.NewGormTransactionScope(db.DB),
		appbilling.NewInvoiceLocks(cfg.Billing.InvoiceLockStripes),
	)
	ledger.SetLogger(log)
	ledger.SetDefaultDueDays(cfg.Billing.DefaultDueDays)

	invoiceService := appbilling.NewInvoiceService(ledger)
	claimService := appbilling.NewClaimService(ledger)
	statisticsService := appbilling.NewStatisticsService(ledger)
	paymentService := appbilling.NewPaymentService(ledger, idempotencyStore, idempotencyCfg)

	// Event bus: audit trail of every ledger event
	eventBus := event.NewInMemoryEventBus(log)
	if cfg.Audit.Enabled {
		publisher, err := event.DialAuditPublisher(cfg.Audit.AMQPURL, cfg.Audit.Exchange, log)
		if err != nil {
			log.Fatal("Failed to connect audit publisher", zap.Error(err))
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Error("Error closing audit publisher", zap.Error(err))
			}
		}()
		// at-most-once forwarding per event id
		eventBus.Subscribe(event.NewIdempotentHandler(publisher, idempotencyStore, log,
			event.WithIdempotencyConfig(idempotencyCfg)))
		log.Info("Audit events forwarded to RabbitMQ", zap.String("exchange", cfg.Audit.Exchange))
	} else {
		eventBus.Subscribe(event.NewAuditLogHandler(log))
	}
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()
	ledger.SetEventPublisher(eventBus)

	// Business metrics and periodic receivables snapshot
	if tel.MetricsEnabled() {
		billingMetrics, err := telemetry.NewBillingMetrics(telemetry.BillingMetricsConfig{
			Meter:          tel.Meter("billing"),
			Logger:         log,
			LedgerProvider: statisticsService,
		})
		if err != nil {
			log.Warn("Billing metrics unavailable", zap.Error(err))
		} else {
			ledger.SetBillingMetrics(billingMetrics)
			billingMetrics.StartPeriodicCollection(ctx, cfg.Billing.SnapshotInterval)
			defer billingMetrics.Stop()
		}
	}

	// Overdue sweeper
	sweeper, err := scheduler.NewOverdueSweeper(invoiceService, log, scheduler.OverdueSweeperConfig{
		Enabled:  cfg.Billing.OverdueSweepEnabled,
		Interval: cfg.Billing.OverdueSweepInterval,
	})
	if err != nil {
		log.Fatal("Invalid overdue sweeper configuration", zap.Error(err))
	}
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal("Failed to start overdue sweeper", zap.Error(err))
	}
	defer func() {
		if err := sweeper.Stop(context.Background()); err != nil {
			log.Error("Error stopping overdue sweeper", zap.Error(err))
		}
	}()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	var verifier middleware.TokenVerifier
	if cfg.Auth.Enabled {
		verifier = auth.NewTokenVerifier(cfg.Auth)
	}
	authCfg := middleware.DefaultAuthConfig(verifier)
	authCfg.Logger = log

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	tracingCfg := middleware.DefaultTracingConfig()
	tracingCfg.ServiceName = serviceName
	tracingCfg.Enabled = tel.TracingEnabled()

	profilingCfg := middleware.DefaultProfilingConfig()
	profilingCfg.Enabled = profiler.IsEnabled()

	// Middleware order: request id before the request log, actor before span tagging
	engine.Use(
		middleware.RequestID(),
		logger.AccessLog(log),
		logger.Recovery(log),
		middleware.Secure(),
		middleware.CORSWithConfig(corsCfg),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.Tracing(tracingCfg),
		middleware.Authenticate(authCfg),
		middleware.TracingAttributeInjector(),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(tel.Meter("http.server")),
		middleware.Profiling(profilingCfg),
	)

	checks := map[string]handler.Pinger{
		"database": db,
	}
	if pinger, ok := idempotencyStore.(handler.Pinger); ok {
		checks["redis"] = pinger
	}

	router.SetupBilling(engine, router.Handlers{
		Invoice:    handler.NewInvoiceHandler(invoiceService),
		Claim:      handler.NewClaimHandler(claimService),
		Payment:    handler.NewPaymentHandler(paymentService, statisticsService),
		Statistics: handler.NewStatisticsHandler(statisticsService),
		Health:     handler.NewHealthHandler(version, checks),
	}, router.WithAPIVersion("v1"))

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := dbTelemetry.Close(); err != nil {
		log.Warn("Failed to stop database instrumentation", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Profiler stop failed", zap.Error(err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		log.Warn("Telemetry shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
