package adapter

import (
	"context"
	"os"

	"github.com/cluster2600/ALBATOR/internal/shared/types"
	"go.uber.org/zap"
)

// SystemInfoManager collects host environment information
type SystemInfoManager struct {
	runner Runner
	logger *zap.Logger
}

// NewSystemInfoManager creates a new SystemInfoManager
func NewSystemInfoManager(runner Runner, logger *zap.Logger) *SystemInfoManager {
	return &SystemInfoManager{runner: runner, logger: logger}
}

// MacOSVersion returns the product version reported by sw_vers, or
// "unknown" when it cannot be determined.
func (m *SystemInfoManager) MacOSVersion(ctx context.Context) string {
	result, err := m.runner.Run(ctx, "sw_vers", "-productVersion")
	if err != nil || result.ExitCode != 0 || result.Stdout == "" {
		return "unknown"
	}
	return result.Stdout
}

// Environment captures the creator environment recorded in rollback point
// metadata.
func (m *SystemInfoManager) Environment(ctx context.Context) types.SystemInfo {
	user := os.Getenv("USER")
	if user == "" {
		user = "unknown"
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return types.SystemInfo{
		MacOSVersion: m.MacOSVersion(ctx),
		User:         user,
		Hostname:     hostname,
	}
}

// FirewallState queries the application firewall global state. Used only as
// an output-signature probe.
func (m *SystemInfoManager) FirewallState(ctx context.Context) (string, bool) {
	result, err := m.runner.Run(ctx, "/usr/libexec/ApplicationFirewall/socketfilterfw", "--getglobalstate")
	if err != nil {
		return err.Error(), false
	}
	return result.Combined(), result.ExitCode == 0
}

// GatekeeperStatus queries the Gatekeeper assessment state. Used only as an
// output-signature probe.
func (m *SystemInfoManager) GatekeeperStatus(ctx context.Context) (string, bool) {
	result, err := m.runner.Run(ctx, "spctl", "--status")
	if err != nil {
		return err.Error(), false
	}
	return result.Combined(), result.ExitCode == 0
}
