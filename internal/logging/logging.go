// Package logging configures the relayer's single structured logger on
// top of github.com/luxfi/geth/log, the same slog-based handler the
// node binaries initialize directly in their app.Before hooks. When a
// log file path is configured, records are duplicated to a rotating
// gopkg.in/natefinch/lumberjack.v2 writer alongside the terminal.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/luxfi/geth/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where log records go and at what level.
type Config struct {
	Level string // trace|debug|info|warn|error|crit, default info
	File  string // optional rotating log file path
}

// Init installs the process-wide default logger and returns it so
// callers that want a handle (rather than the package-level log.Info et
// al.) can hold one.
func Init(cfg Config) (log.Logger, error) {
	level, err := levelFromString(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	writer := io.Writer(os.Stderr)
	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		writer = io.MultiWriter(os.Stderr, rotated)
	}

	handler := log.NewTerminalHandlerWithLevel(writer, level, false)
	logger := log.NewLogger(handler)
	log.SetDefault(logger)
	return logger, nil
}

func levelFromString(s string) (slog.Level, error) {
	switch s {
	case "", "info":
		return log.LevelInfo, nil
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "warn":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	default:
		return log.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
