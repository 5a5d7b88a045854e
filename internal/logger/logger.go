// Package logger provides structured logging for the review service
// using zerolog. Loggers are constructed once and passed into services
// rather than accessed through a process-wide registry.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"scenereview/internal/config"
)

// New creates a logger writing human-readable output to stderr and JSON
// to a file in the configured log directory.
func New(cfg *config.Config) (zerolog.Logger, error) {
	if err := os.MkdirAll(cfg.LogDirectory, 0755); err != nil {
		return zerolog.Nop(), err
	}

	logFile, err := os.OpenFile(
		filepath.Join(cfg.LogDirectory, "scenereview.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0644,
	)
	if err != nil {
		return zerolog.Nop(), err
	}

	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}

	l := zerolog.New(io.MultiWriter(console, logFile)).
		Level(level).
		With().
		Timestamp().
		Logger()

	return l, nil
}
