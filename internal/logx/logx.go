// Package logx builds the run-scoped zap logger shared by the reporting
// components.
package logx

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production-configured logger, at debug level when verbose.
// The caller owns the lifecycle and should Sync on exit.
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	// Diagnostics go to stderr; stdout is the CI command channel.
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
