package logger

import (
	"context"
	"os"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	Level       string
	ServiceName string
	Development bool
	// Encoding is "json" or "console". Empty picks console in development.
	Encoding string
}

// Logger wraps zap.Logger with trace-aware helpers
type Logger struct {
	*zap.Logger
}

var (
	global *Logger
	mu     sync.RWMutex
)

// Init builds the global logger from cfg
func Init(cfg *Config) error {
	if cfg == nil {
		cfg = &Config{Level: "info"}
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "json"
		if cfg.Development {
			encoding = "console"
		}
	}

	var encoder zapcore.Encoder
	if encoding == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(level))
	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	z := zap.New(core, opts...)
	if cfg.ServiceName != "" {
		z = z.With(zap.String("service", cfg.ServiceName))
	}

	mu.Lock()
	global = &Logger{Logger: z}
	mu.Unlock()
	return nil
}

// New wraps an existing zap logger, mainly for tests using zaptest/observer
func New(z *zap.Logger) *Logger {
	return &Logger{Logger: z}
}

// Get returns the global logger, falling back to a no-op logger before Init
func Get() *Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l == nil {
		return &Logger{Logger: zap.NewNop()}
	}
	return l
}

// Sync flushes any buffered log entries
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return nil
	}
	return global.Logger.Sync()
}

// With returns a child logger with the given fields
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Info logs at info level
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.Logger.Info(msg, fields...)
}

// Warn logs at warn level
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.Logger.Warn(msg, fields...)
}

// Error logs at error level
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.Logger.Error(msg, fields...)
}

// Debug logs at debug level
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.Logger.Debug(msg, fields...)
}

// Fatal logs at fatal level and exits
func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.Logger.Fatal(msg, fields...)
}

// InfoContext logs at info level with trace ids from ctx
func (l *Logger) InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.Logger.Info(msg, append(fields, traceFields(ctx)...)...)
}

// WarnContext logs at warn level with trace ids from ctx
func (l *Logger) WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.Logger.Warn(msg, append(fields, traceFields(ctx)...)...)
}

// ErrorContext logs at error level with trace ids from ctx
func (l *Logger) ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.Logger.Error(msg, append(fields, traceFields(ctx)...)...)
}

func traceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
