package adapter

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// DefaultsManager handles macOS defaults database operations
type DefaultsManager struct {
	runner Runner
	logger *zap.Logger
}

// NewDefaultsManager creates a new DefaultsManager
func NewDefaultsManager(runner Runner, logger *zap.Logger) *DefaultsManager {
	return &DefaultsManager{runner: runner, logger: logger}
}

// Read returns the current value of a defaults key and whether it exists.
// A non-zero exit from defaults read means the key is absent, not an error.
func (m *DefaultsManager) Read(ctx context.Context, domain, key string, useSudo bool) (string, bool, error) {
	name, args := m.command(useSudo, "read", domain, key)
	result, err := m.runner.Run(ctx, name, args...)
	if err != nil {
		return "", false, err
	}
	if result.ExitCode != 0 {
		return "", false, nil
	}
	return result.Stdout, true, nil
}

// Write sets a defaults key to the given value.
func (m *DefaultsManager) Write(ctx context.Context, domain, key, value string, useSudo bool) error {
	name, args := m.command(useSudo, "write", domain, key, value)
	result, err := m.runner.Run(ctx, name, args...)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("defaults write %s %s failed: %s", domain, key, result.Stderr)
	}
	m.logger.Info("restored defaults setting",
		zap.String("domain", domain),
		zap.String("key", key))
	return nil
}

// Delete removes a defaults key. Deleting an already-absent key is treated
// as success; delete is idempotent by construction.
func (m *DefaultsManager) Delete(ctx context.Context, domain, key string, useSudo bool) error {
	name, args := m.command(useSudo, "delete", domain, key)
	result, err := m.runner.Run(ctx, name, args...)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		m.logger.Debug("defaults delete reported failure, key likely already absent",
			zap.String("domain", domain),
			zap.String("key", key),
			zap.String("stderr", result.Stderr))
		return nil
	}
	m.logger.Info("deleted defaults setting",
		zap.String("domain", domain),
		zap.String("key", key))
	return nil
}

func (m *DefaultsManager) command(useSudo bool, verb string, rest ...string) (string, []string) {
	cmd := append([]string{"defaults", verb}, rest...)
	if useSudo {
		cmd = append([]string{"sudo", "-n"}, cmd...)
	}
	return cmd[0], cmd[1:]
}
