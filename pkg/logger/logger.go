package logger

import (
	"encoding/hex"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents log level
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Config holds logger configuration
type Config struct {
	Level  string
	Format string // "json" or "text"
	Output io.Writer
}

// Logger is a structured logger backed by zap
type Logger struct {
	level Level
	zl    *zap.Logger
}

// Field is a structured logging field
type Field = zap.Field

// New creates a new logger
func New(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	level := parseLevel(cfg.Level)

	core := zapcore.NewCore(
		newEncoder(cfg.Format),
		zapcore.Lock(zapcore.AddSync(output)),
		zap.NewAtomicLevelAt(level.zap()),
	)

	return &Logger{
		level: level,
		zl:    zap.New(core),
	}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{level: ErrorLevel + 1, zl: zap.NewNop()}
}

func newEncoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	if strings.EqualFold(format, "json") {
		return zapcore.NewJSONEncoder(cfg)
	}

	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.ConsoleSeparator = " "
	return zapcore.NewConsoleEncoder(cfg)
}

// WithComponent creates a child logger named after component. Nested
// components are joined with dots.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		level: l.level,
		zl:    l.zl.Named(component),
	}
}

// With returns a child logger that always carries fields
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{
		level: l.level,
		zl:    l.zl.With(fields...),
	}
}

// Enabled reports whether messages at level would be written
func (l *Logger) Enabled(level Level) bool {
	return l.level <= level
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...Field) {
	l.zl.Debug(msg, fields...)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...Field) {
	l.zl.Info(msg, fields...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...Field) {
	l.zl.Warn(msg, fields...)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...Field) {
	l.zl.Error(msg, fields...)
}

// Sync flushes buffered output
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

// Zap exposes the underlying logger for libraries that take one
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

func (lv Level) zap() zapcore.Level {
	switch lv {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func parseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// ValidLevel reports whether level is a recognised level name
func ValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// Field constructors

// String creates a string field
func String(key, val string) Field {
	return zap.String(key, val)
}

// Int creates an int field
func Int(key string, val int) Field {
	return zap.Int(key, val)
}

// Int64 creates an int64 field
func Int64(key string, val int64) Field {
	return zap.Int64(key, val)
}

// Uint64 creates a uint64 field
func Uint64(key string, val uint64) Field {
	return zap.Uint64(key, val)
}

// Bool creates a bool field
func Bool(key string, val bool) Field {
	return zap.Bool(key, val)
}

// Uint creates a uint field
func Uint(key string, val uint) Field {
	return zap.Uint(key, val)
}

// Uint32 creates a uint32 field
func Uint32(key string, val uint32) Field {
	return zap.Uint32(key, val)
}

// Float64 creates a float64 field
func Float64(key string, val float64) Field {
	return zap.Float64(key, val)
}

// Duration creates a duration field
func Duration(key string, val time.Duration) Field {
	return zap.Duration(key, val)
}

// Hex creates a field rendering b as lowercase hex
func Hex(key string, b []byte) Field {
	return zap.String(key, hex.EncodeToString(b))
}

// Error creates an error field
func Error(err error) Field {
	if err == nil {
		return zap.String("error", "nil")
	}
	return zap.String("error", err.Error())
}

// Any creates a field with any value
func Any(key string, val interface{}) Field {
	return zap.Any(key, val)
}
