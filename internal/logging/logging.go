// Package logging builds the zap loggers used across the memory
// subsystem. Components receive loggers through their constructors; a
// nil logger is replaced with zap.NewNop so library consumers are never
// forced to configure logging.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger for the given environment ("development" gets the
// console encoder and debug defaults, anything else the production JSON
// encoder) at the given level ("debug", "info", "warn", "error").
func New(environment, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if environment == "development" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("logging: parse level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger, nil
}

// OrNop returns the logger unchanged, or a no-op logger when nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
