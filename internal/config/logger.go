package config

import (
	"fmt"
	"log/slog"
	"os"
)

// NewLogger builds the process logger from the resolved config.
func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	switch cfg.LogFormat {
	case LogFormatText:
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case LogFormatJSON:
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}
}
