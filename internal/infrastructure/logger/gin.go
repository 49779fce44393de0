package logger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Gin context keys shared with the HTTP middleware
const (
	GinRequestIDKey = "request_id"
	GinActorKey     = "actor"
	ginLoggerKey    = "logger"
)

// accessLogMessage is the message of the one-line-per-call access log
const accessLogMessage = "HTTP Request"

// levelForStatus maps a response status onto the access log level
func levelForStatus(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// AccessLog writes one line per API call and hands a request-scoped logger
// to the gin context and to the request context (see FromContext).
// RequestID must run before it.
func AccessLog(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		req := c.Request
		id := c.GetString(GinRequestIDKey)

		scoped := base.With(zap.String("method", req.Method), zap.String("path", req.URL.Path))
		ctx := req.Context()
		if id != "" {
			ctx, scoped = WithRequestID(ctx, scoped, id)
		}
		c.Set(ginLoggerKey, scoped)
		c.Request = req.WithContext(WithContext(ctx, scoped))

		c.Next()

		status := c.Writer.Status()
		fields := append(make([]zap.Field, 0, 8),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(began)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		)
		optional := map[string]string{
			"route": c.FullPath(),
			"query": req.URL.RawQuery,
			"actor": c.GetString(GinActorKey),
		}
		for _, k := range []string{"route", "query", "actor"} {
			if v := optional[k]; v != "" {
				fields = append(fields, zap.String(k, v))
			}
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}
		if ce := scoped.Check(levelForStatus(status), accessLogMessage); ce != nil {
			ce.Write(fields...)
		}
	}
}

// Recovery turns a handler panic into a 500 carrying the INTERNAL_ERROR
// body and logs the stack.
func Recovery(base *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		base.Error("Panic recovered",
			zap.String("request_id", c.GetString(GinRequestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
			zap.Stack("stacktrace"),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "INTERNAL_ERROR", "message": "internal server error"},
		})
	})
}

// GetGinLogger returns the request logger stored by AccessLog, or a no-op logger
func GetGinLogger(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(ginLoggerKey); ok {
		if zl, ok := v.(*zap.Logger); ok {
			return zl
		}
	}
	return zap.NewNop()
}
