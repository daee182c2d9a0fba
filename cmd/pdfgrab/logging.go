package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"pdfgrab/internal/config"
)

// newLogger builds the diagnostic logger. While the TUI owns the terminal,
// logs only go somewhere when --log-file is set.
func newLogger(cfg config.Config, tui bool) (*logrus.Logger, func(), error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	closer := func() {}
	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		log.SetOutput(f)
		closer = func() { _ = f.Close() }
	case tui:
		log.SetOutput(io.Discard)
	default:
		log.SetOutput(os.Stderr)
	}

	if cfg.ConfigFile != "" {
		log.WithField("file", cfg.ConfigFile).Debug("loaded config file")
	}
	return log, closer, nil
}
