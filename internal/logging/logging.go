package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

type Options struct {
	File  string
	Level string
	// Quiet discards output entirely when no file is set. The terminal view
	// uses it so log lines cannot tear the screen.
	Quiet bool
}

// Setup builds the process logger. File output is JSON, terminal output is
// text. The returned closer releases the log file, if any.
func Setup(opts Options) (*log.Logger, io.Closer, error) {
	logger := log.New()

	level := log.InfoLevel
	if opts.Level != "" {
		parsed, err := log.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	if opts.File == "" {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		if opts.Quiet {
			logger.SetOutput(io.Discard)
		} else {
			logger.SetOutput(os.Stderr)
		}
		return logger, nopCloser{}, nil
	}

	path, err := expandHome(opts.File)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	logger.SetFormatter(&log.JSONFormatter{})
	logger.SetOutput(f)
	return logger, f, nil
}

// Component tags every entry with the subsystem that produced it.
func Component(logger *log.Logger, name string) *log.Entry {
	return logger.WithField("component", name)
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
