// Package logger installs the process-wide slog handler.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration.
type Config struct {
	Level string
	// File, when set, receives a copy of every record with size-based rotation.
	File string
}

// New builds a charmbracelet logger writing to w.
func New(w io.Writer, level string) (*log.Logger, error) {
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    lvl == log.DebugLevel,
		Level:           lvl,
		Prefix:          "habbit",
	}), nil
}

// Init installs a logger for cfg as the slog default. The returned closer
// flushes the log file, if any.
func Init(cfg Config) (io.Closer, error) {
	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		w = io.MultiWriter(os.Stderr, fileWriter)
		closer = fileWriter
	}

	l, err := New(w, cfg.Level)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(l))
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
