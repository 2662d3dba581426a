package logging

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// contextKey for trace ID
type contextKey string

const TraceIDKey contextKey = "trace_id"

var (
	logger *zap.Logger
	level  = zap.NewAtomicLevelAt(zap.InfoLevel)
)

func parseLevel(name string) zapcore.Level {
	switch name {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// Init initializes the structured logger. Debug mode switches to a colored console encoder.
func Init(levelName string, debug bool) error {
	level.SetLevel(parseLevel(levelName))

	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.Level = level

	if debug {
		config.Development = true
		config.Encoding = "console"
		config.EncoderConfig = zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}
	}

	l, err := config.Build()
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// SetLevel changes the level of the running logger.
func SetLevel(levelName string) {
	level.SetLevel(parseLevel(levelName))
}

// Level returns the current log level.
func Level() zapcore.Level {
	return level.Level()
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	logger = l
}

// WithTraceID adds trace ID to context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves trace ID from context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

func withTrace(ctx context.Context, fields []zap.Field) []zap.Field {
	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	return fields
}

// LogHTTPRequest logs HTTP request with structured fields
func LogHTTPRequest(ctx context.Context, method, path string, status int, latencyMs, size int64) {
	GetLogger().Info("http_request", withTrace(ctx, []zap.Field{
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Int64("latency_ms", latencyMs),
		zap.Int64("size_bytes", size),
	})...)
}

// LogLookupFailure records a failed public IP lookup. It is debug-only: callers only
// ever see the fallback value.
func LogLookupFailure(ctx context.Context, url string, err error) {
	GetLogger().Debug("public_ip_lookup_failed", withTrace(ctx, []zap.Field{
		zap.String("url", url),
		zap.Error(err),
	})...)
}

// LogRenderFailure logs a template that could not be parsed or executed.
func LogRenderFailure(ctx context.Context, err error) {
	GetLogger().Warn("template_render_failed", withTrace(ctx, []zap.Field{
		zap.Error(err),
	})...)
}

// LogRateLimited logs rate limiting events
func LogRateLimited(ctx context.Context, route string) {
	GetLogger().Warn("rate_limited", withTrace(ctx, []zap.Field{
		zap.String("route", route),
		zap.String("event", "rate_limited"),
	})...)
}

// LogHTTPServerStart logs HTTP server startup
func LogHTTPServerStart(addr string) {
	GetLogger().Info("http_server_start",
		zap.String("listen_addr", addr),
	)
}

func toFields(fields map[string]interface{}) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			zapFields = append(zapFields, zap.String(k, val))
		case int:
			zapFields = append(zapFields, zap.Int(k, val))
		case bool:
			zapFields = append(zapFields, zap.Bool(k, val))
		case float64:
			zapFields = append(zapFields, zap.Float64(k, val))
		case error:
			zapFields = append(zapFields, zap.NamedError(k, val))
		default:
			zapFields = append(zapFields, zap.Any(k, v))
		}
	}
	return zapFields
}

// LogInfo logs general info messages with structured fields
func LogInfo(message string, fields map[string]interface{}) {
	GetLogger().Info(message, toFields(fields)...)
}

// LogError logs error messages with structured fields
func LogError(message string, fields map[string]interface{}) {
	GetLogger().Error(message, toFields(fields)...)
}

// Sync flushes any buffered log entries
func Sync() error {
	if logger != nil {
		return logger.Sync()
	}
	return nil
}
