// Package logging constructs the shared *zap.Logger passed into every
// WithLogger option across pkg/cachecore, internal/remote, internal/indexsrv
// and internal/reorg. The cache hot path never logs, only slow events such
// as reconnects, evictions and reorg rounds; this is solely process-startup
// wiring.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style JSON logger at the given level name
// ("debug", "info", "warn", "error"; defaults to "info" on an unknown or
// empty value), with the given component name attached to every line.
func New(levelName, component string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if levelName != "" {
		_ = level.UnmarshalText([]byte(levelName))
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if component != "" {
		logger = logger.With(zap.String("component", component))
	}
	return logger, nil
}
