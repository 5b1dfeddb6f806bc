package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production and explicit "json"
// configurations emit structured JSON for log shipping; anything else gets
// the readable text handler for local development.
func NewLogger(cfg *Config) *slog.Logger {
	if cfg != nil && (cfg.LogFormat == "json" || cfg.IsProduction()) {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
}
