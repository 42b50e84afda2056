package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/wtask/chatrelay/internal/config"
)

// newLogger - builds logger writing to stdout and optional file, returned func closes the file.
func newLogger(cfg config.Log) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
	}

	var out io.Writer = os.Stdout
	closeLog := func() error { return nil }
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closeLog = f.Close
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(out, options)
	default:
		handler = slog.NewTextHandler(out, options)
	}
	return slog.New(handler).With(slog.String("app", BinaryName)), closeLog, nil
}
