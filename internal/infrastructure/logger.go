// Package infrastructure wires the cross-cutting runtime pieces: the
// structured logger and the OpenTelemetry tracer.
package infrastructure

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"psmcli/internal/config"
)

// InitializeLogger creates the application logger from configuration and
// installs it as the slog default. Callers own the returned closer when
// file output is enabled.
func InitializeLogger(cfg config.LoggingConfig) (*slog.Logger, func() error, error) {
	writer, closer, err := logWriter(cfg)
	if err != nil {
		return nil, nil, err
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closer, nil
}

// logWriter resolves the configured output destination.
func logWriter(cfg config.LoggingConfig) (io.Writer, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Output {
	case "console", "":
		return os.Stdout, noop, nil
	case "file", "both":
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		if cfg.Output == "both" {
			return io.MultiWriter(os.Stdout, f), f.Close, nil
		}
		return f, f.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}
}

// parseLevel maps a config level string onto slog levels, defaulting to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
