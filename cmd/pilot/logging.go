package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/pixelpilot/internal/config"
)

// newLogger builds the session logger. When toFile is set the console owns
// the terminal, so records go to cfg.File instead of stderr.
func newLogger(cfg config.LoggingConfig, toFile bool) (*log.Logger, func(), error) {
	level := log.InfoLevel
	if cfg.Level != "" {
		parsed, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("logging.level: %w", err)
		}
		level = parsed
	}

	var w io.Writer = os.Stderr
	closer := func() {}
	if toFile && cfg.File != "" {
		path, err := config.ExpandHome(cfg.File)
		if err != nil {
			return nil, nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("cannot create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot open log file: %w", err)
		}
		w = f
		closer = func() { f.Close() }
	} else if toFile {
		w = io.Discard
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          "pilot",
		Level:           level,
	})
	return logger, closer, nil
}

// loadConfig loads the configuration named by --config.
func loadConfig() (config.Config, error) {
	return config.Load(flagConfig)
}

// dbPath resolves the episode database path: --db, then storage.path.
func dbPath(cfg config.Config) string {
	if flagDBPath != "" {
		return flagDBPath
	}
	return cfg.Storage.Path
}
