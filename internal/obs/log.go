package obs

import (
	"go.uber.org/zap"
)

// NewLogger builds the console logger. Development mode gets the
// human-readable encoder; everything else logs structured JSON.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// Nop returns a logger that discards everything, for tests and for callers
// that have not configured logging.
func Nop() *zap.Logger {
	return zap.NewNop()
}
