package cli

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newDiagLogger builds the diagnostic logger handed to trace sessions. It
// carries instrumentation-internal failures only, never trace records, and is
// a nop unless verbose mode is on.
func newDiagLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
