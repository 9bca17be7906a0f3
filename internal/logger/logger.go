package logger

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	// Level is the minimum enabled level: debug, info, warn or error.
	// Default: "info"
	Level string

	// Format is "json" or "console". Default: "json"
	Format string

	// Development adds caller stack traces on warnings and colors console levels
	Development bool

	// OutputPaths receive log output. Default: ["stderr"], so command
	// output on stdout stays machine readable.
	OutputPaths []string

	// InitialFields are added to every entry
	InitialFields map[string]interface{}
}

type contextKey struct{}

var loggerKey = contextKey{}

// NewDevelopment creates a debug level console logger
func NewDevelopment() (*zap.Logger, error) {
	return NewWithConfig(&Config{Level: "debug", Format: "console", Development: true})
}

// NewProduction creates an info level JSON logger
func NewProduction() (*zap.Logger, error) {
	return NewWithConfig(&Config{})
}

// NewWithConfig creates a logger with the specified configuration
func NewWithConfig(cfg *Config) (*zap.Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	format := strings.ToLower(cfg.Format)
	switch format {
	case "":
		format = "json"
	case "json", "console":
	default:
		return nil, fmt.Errorf("invalid log format %q: must be json or console", cfg.Format)
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		if format == "console" {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          format,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		InitialFields:     cfg.InitialFields,
		DisableStacktrace: !cfg.Development,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// ParseLevel parses a level name. Empty means info.
func ParseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// WithLogger returns a new context with the given logger attached
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from the context, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return zap.NewNop()
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}

// WithComponent returns a logger with a "component" field
func WithComponent(logger *zap.Logger, component string) *zap.Logger {
	return logger.With(zap.String("component", component))
}
