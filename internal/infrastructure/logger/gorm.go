package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerConfig tunes the zap-backed GORM logger
type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration // 0 disables slow statement warnings
	LogNotFound   bool          // log gorm.ErrRecordNotFound as an error
}

// GormLogger routes GORM output into zap with the request's correlation fields
type GormLogger struct {
	base *zap.Logger
	cfg  GormLoggerConfig
}

// NewGormLogger creates a GORM logger under the "gorm" name
func NewGormLogger(base *zap.Logger, cfg GormLoggerConfig) *GormLogger {
	return &GormLogger{base: base.Named("gorm"), cfg: cfg}
}

// LogMode returns a copy at level
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.cfg.Level = level
	return &cp
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.cfg.Level >= gormlogger.Info {
		l.sugar(ctx).Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.cfg.Level >= gormlogger.Warn {
		l.sugar(ctx).Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.cfg.Level >= gormlogger.Error {
		l.sugar(ctx).Errorf(msg, data...)
	}
}

func (l *GormLogger) sugar(ctx context.Context) *zap.SugaredLogger {
	return l.base.With(Fields(ctx)...).Sugar()
}

// Trace logs one statement: failures at error, slow statements at warn and
// everything else at debug when the level is Info
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && (l.cfg.LogNotFound || !errors.Is(err, gormlogger.ErrRecordNotFound))
	slow := l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold

	var emit func(string, ...zap.Field)
	var msg string
	switch {
	case failed && l.cfg.Level >= gormlogger.Error:
		emit, msg = l.base.Error, "ledger sql failed"
	case slow && l.cfg.Level >= gormlogger.Warn:
		emit, msg = l.base.Warn, "slow ledger sql"
	case err == nil && l.cfg.Level >= gormlogger.Info:
		emit, msg = l.base.Debug, "ledger sql"
	default:
		return
	}

	sql, rows := fc()
	fields := append(Fields(ctx),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	)
	if slow {
		fields = append(fields, zap.Duration("slow_threshold", l.cfg.SlowThreshold))
	}
	if failed {
		fields = append(fields, zap.Error(err))
	}
	emit(msg, fields...)
}

// MapGormLogLevel maps the application log level to a GORM level.
// SQL is only echoed at debug; info keeps slow statements and errors.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
