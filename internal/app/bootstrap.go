package app

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/cvd-expert-server/internal/config"
	"github.com/cvd-expert-server/internal/domain"
)

// Options control Bootstrap.
type Options struct {
	ConfigFile string
	// Stdio reserves stdout for a protocol stream; logs that would go
	// there are sent to stderr instead.
	Stdio bool
}

// Bootstrap loads and validates configuration and builds the logger.
func Bootstrap(opts Options) (*config.Manager, *logrus.Logger, io.Closer, error) {
	manager, err := config.NewManager(opts.ConfigFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := manager.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	logging := manager.GetConfig().Logging
	if opts.Stdio && (logging.Output == "" || logging.Output == "stdout") {
		logging.Output = "stderr"
	}
	logger, closer, err := NewLogger(logging)
	if err != nil {
		return nil, nil, nil, err
	}
	return manager, logger, closer, nil
}

// Build is Bootstrap followed by New.
func Build(opts Options) (*App, io.Closer, error) {
	manager, logger, closer, err := Bootstrap(opts)
	if err != nil {
		return nil, nil, err
	}
	a, err := New(manager.GetConfig(), logger)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return a, closer, nil
}

var _ domain.ConfigManager = (*config.Manager)(nil)
