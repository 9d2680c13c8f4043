// Package logging builds the process-wide *zap.Logger for cmd/primed and
// cmd/primectl. No file in the retrieval pack constructs a zap logger
// outside of test code (every internal/ package accepts an already-built
// *zap.Logger and falls back to zap.NewNop() when none is given), so this
// is grounded directly on zap's own documented entrypoints rather than on
// a pack call site.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger at the given level, either console-formatted
// (the default, for a terminal) or JSON (for log aggregation).
func New(level string, json bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: parse level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if !json {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}
