package client

import (
	"context"
	"fmt"

	"github.com/mwantia/gotape/internal/agent"
	"github.com/mwantia/gotape/pkg/log"

	config "github.com/mwantia/gotape/internal/config/server"
)

// newRuntime builds the connected core services for a one-shot client
// command. Callers must Close the runtime when done.
func newRuntime(ctx context.Context) (*agent.Runtime, *config.BaseServerConfig, error) {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := log.NewLoggerService("gotape", cfg.Log)
	runtime, err := agent.NewRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return runtime, cfg, nil
}

// resolveDevice falls back to the configured default device.
func resolveDevice(device string, cfg *config.BaseServerConfig) string {
	if device != "" {
		return device
	}
	return cfg.Tape.DefaultDevice
}
