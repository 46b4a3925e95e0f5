package adapter

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

// LaunchDaemonsDir is where system service plists live.
const LaunchDaemonsDir = "/System/Library/LaunchDaemons"

// LaunchdManager handles launchd service operations
type LaunchdManager struct {
	runner Runner
	logger *zap.Logger
}

// NewLaunchdManager creates a new LaunchdManager
func NewLaunchdManager(runner Runner, logger *zap.Logger) *LaunchdManager {
	return &LaunchdManager{runner: runner, logger: logger}
}

// IsLoaded checks whether a service is currently registered with launchd.
// The raw probe output is returned so captures can persist it.
func (m *LaunchdManager) IsLoaded(ctx context.Context, service string) (bool, string, error) {
	result, err := m.runner.Run(ctx, "sudo", "-n", "launchctl", "list", service)
	if err != nil {
		return false, "", err
	}
	if result.ExitCode != 0 {
		return false, "", nil
	}
	return true, result.Stdout, nil
}

// Load registers a system service with launchd.
func (m *LaunchdManager) Load(ctx context.Context, service string) error {
	plist := filepath.Join(LaunchDaemonsDir, service+".plist")
	result, err := m.runner.Run(ctx, "sudo", "-n", "launchctl", "load", "-w", plist)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("launchctl load %s failed: %s", service, result.Stderr)
	}
	m.logger.Info("loaded service", zap.String("service", service))
	return nil
}
