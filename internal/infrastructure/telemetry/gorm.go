package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormConfig selects the database instrumentation
type GormConfig struct {
	Tracing            bool          // otelgorm spans per statement
	LogFullSQL         bool          // keep bound variables in span statements
	SlowQueryThreshold time.Duration // default 200ms
	DBSystem           string        // "postgresql" or "sqlite"
}

const (
	defaultSlowQueryThreshold = 200 * time.Millisecond
	queryStartKey             = "billing:query_start"
)

// GormInstrumentation records per-statement latency and pool gauges for
// the ledger database
type GormInstrumentation struct {
	duration *Histogram
	failures *Counter
	slow     *Counter
	poolReg  metric.Registration

	threshold time.Duration
	logger    *zap.Logger
}

// InstrumentGorm attaches tracing, statement metrics and pool gauges to db.
// With a no-op meter the metric calls cost nothing, so callers need not branch.
func InstrumentGorm(db *gorm.DB, meter metric.Meter, cfg GormConfig, logger *zap.Logger) (*GormInstrumentation, error) {
	g := &GormInstrumentation{threshold: cfg.SlowQueryThreshold, logger: logger}
	if g.threshold <= 0 {
		g.threshold = defaultSlowQueryThreshold
	}

	if cfg.Tracing {
		opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
		if !cfg.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return nil, fmt.Errorf("register otelgorm: %w", err)
		}
	}

	var err error
	if g.duration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Ledger database statement latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if g.failures, err = NewCounter(meter, "db_query_errors_total", "Ledger database statements that failed", "{queries}"); err != nil {
		return nil, err
	}
	if g.slow, err = NewCounter(meter, "db_slow_queries_total", "Statements slower than the slow-query threshold", "{queries}"); err != nil {
		return nil, err
	}
	if err := g.registerCallbacks(db); err != nil {
		return nil, err
	}
	if err := g.observePool(db, meter); err != nil {
		return nil, err
	}

	logger.Info("Database instrumentation enabled",
		zap.Bool("tracing", cfg.Tracing),
		zap.Duration("slow_query_threshold", g.threshold),
		zap.String("db_system", cfg.DBSystem),
	)
	return g, nil
}

func (g *GormInstrumentation) registerCallbacks(db *gorm.DB) error {
	before := func(tx *gorm.DB) { tx.InstanceSet(queryStartKey, time.Now()) }
	cb := db.Callback()

	steps := []func() error{
		func() error { return cb.Create().Before("gorm:create").Register("billing:before_create", before) },
		func() error {
			return cb.Create().After("gorm:create").Register("billing:after_create", g.after("create"))
		},
		func() error { return cb.Query().Before("gorm:query").Register("billing:before_query", before) },
		func() error { return cb.Query().After("gorm:query").Register("billing:after_query", g.after("select")) },
		func() error { return cb.Update().Before("gorm:update").Register("billing:before_update", before) },
		func() error {
			return cb.Update().After("gorm:update").Register("billing:after_update", g.after("update"))
		},
		func() error { return cb.Delete().Before("gorm:delete").Register("billing:before_delete", before) },
		func() error {
			return cb.Delete().After("gorm:delete").Register("billing:after_delete", g.after("delete"))
		},
		func() error { return cb.Row().Before("gorm:row").Register("billing:before_row", before) },
		func() error { return cb.Row().After("gorm:row").Register("billing:after_row", g.after("row")) },
		func() error { return cb.Raw().Before("gorm:raw").Register("billing:before_raw", before) },
		func() error { return cb.Raw().After("gorm:raw").Register("billing:after_raw", g.after("raw")) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return fmt.Errorf("register gorm callback: %w", err)
		}
	}
	return nil
}

func (g *GormInstrumentation) after(operation string) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		v, ok := tx.InstanceGet(queryStartKey)
		if !ok {
			return
		}
		start, ok := v.(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(start)

		ctx := tx.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		attrs := []attribute.KeyValue{AttrDBOperation.String(operation), AttrDBTable.String(tx.Statement.Table)}
		g.duration.RecordDuration(ctx, elapsed, attrs...)

		span := trace.SpanFromContext(ctx)
		if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			g.failures.Inc(ctx, attrs...)
			span.RecordError(tx.Error)
			span.SetStatus(codes.Error, tx.Error.Error())
		}
		if elapsed >= g.threshold {
			g.slow.Inc(ctx, attrs...)
			span.AddEvent("slow_query", trace.WithAttributes(
				attribute.Int64("duration_ms", elapsed.Milliseconds()),
				attribute.Int64("threshold_ms", g.threshold.Milliseconds()),
			))
			g.logger.Warn("Slow ledger query",
				zap.String("operation", operation),
				zap.String("table", tx.Statement.Table),
				zap.Duration("elapsed", elapsed),
			)
		}
	}
}

// observePool exports database/sql pool stats at each metric collection
func (g *GormInstrumentation) observePool(db *gorm.DB, meter metric.Meter) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	conns, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Connections in the ledger pool by state"), metric.WithUnit("{connections}"))
	if err != nil {
		return err
	}
	waits, err := meter.Int64ObservableCounter("db_pool_wait_total",
		metric.WithDescription("Connections that had to wait for a free slot"), metric.WithUnit("{waits}"))
	if err != nil {
		return err
	}
	g.poolReg, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := sqlDB.Stats()
		o.ObserveInt64(conns, int64(s.OpenConnections), metric.WithAttributes(AttrDBState.String("open")))
		o.ObserveInt64(conns, int64(s.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(conns, int64(s.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(waits, s.WaitCount)
		return nil
	}, conns, waits)
	return err
}

// Close stops the pool observation
func (g *GormInstrumentation) Close() error {
	if g == nil || g.poolReg == nil {
		return nil
	}
	return g.poolReg.Unregister()
}
