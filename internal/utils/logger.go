package utils

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger is the logging facade used by the handler layer. Services receive the
// underlying *slog.Logger directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

type slogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps a *slog.Logger in the Logger facade.
func NewSlogLogger(logger *slog.Logger) Logger {
	return &slogLogger{logger: logger}
}

func (l *slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{logger: l.logger.With(args...)}
}

const loggerContextKey = "logger"

// ContextLogger attaches a request-scoped logger (with request_id) to the gin
// context so downstream handlers can log with correlation.
func ContextLogger(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestLogger := logger
		if requestID, ok := c.Get("request_id"); ok {
			requestLogger = logger.With("request_id", requestID)
		}
		c.Set(loggerContextKey, requestLogger)
		c.Next()
	}
}

// FromContext returns the request-scoped logger, or the fallback when the
// middleware did not run.
func FromContext(c *gin.Context, fallback Logger) Logger {
	if l, ok := c.Get(loggerContextKey); ok {
		if logger, ok := l.(Logger); ok {
			return logger
		}
	}
	return fallback
}

// LoggerMiddleware logs one line per request with latency and status.
func LoggerMiddleware(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}
