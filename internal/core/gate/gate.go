// Package gate decides which commands require a passing preflight run
// before they may mutate the system, and with what strictness.
package gate

import (
	"context"

	"github.com/cluster2600/ALBATOR/internal/core/preflight"
	"github.com/cluster2600/ALBATOR/internal/shared/config"
	"github.com/cluster2600/ALBATOR/internal/shared/types"
	"go.uber.org/zap"
)

// Requirements is the strictness the gate demands for one command.
type Requirements struct {
	RequireSudo  bool
	RequireRules bool
}

// mutatingScripts are the hardening scripts that change system state and
// therefore need elevation probes before they run.
var mutatingScripts = map[string]bool{
	"privacy":      true,
	"firewall":     true,
	"encryption":   true,
	"app_security": true,
}

// baselineActions are the baseline subcommands that consume rule documents.
var baselineActions = map[string]bool{
	"apply":    true,
	"generate": true,
	"tailor":   true,
}

// RequirementsFor returns the gate requirements for a command and reports
// whether the command is gated at all. For the baseline command the action
// argument selects the requirements; for everything else action is ignored.
func RequirementsFor(command, action string) (Requirements, bool) {
	if mutatingScripts[command] {
		return Requirements{RequireSudo: true, RequireRules: false}, true
	}
	if command == "baseline" && baselineActions[action] {
		return Requirements{
			RequireSudo:  action == "apply",
			RequireRules: true,
		}, true
	}
	return Requirements{}, false
}

// Controller runs the gate check for gated commands.
type Controller struct {
	evaluator *preflight.Evaluator
	policy    config.GatePolicy
	logger    *zap.Logger
}

// NewController creates a Controller with the configured version policy.
func NewController(evaluator *preflight.Evaluator, policy config.GatePolicy, logger *zap.Logger) *Controller {
	return &Controller{evaluator: evaluator, policy: policy, logger: logger}
}

// Check runs preflight for the given command and reports whether execution
// may proceed. Ungated commands proceed without a preflight run and return a
// nil summary. minVersionOverride and enforceOverride, when set, replace the
// configured version policy for this one check.
func (c *Controller) Check(ctx context.Context, command, action, minVersionOverride string, enforceOverride *bool) (*types.PreflightSummary, bool) {
	reqs, gated := RequirementsFor(command, action)
	if !gated {
		return nil, true
	}

	minVersion := c.policy.MinMacOSVersion
	if minVersionOverride != "" {
		minVersion = minVersionOverride
	}
	enforce := c.policy.EnforceMinVersion
	if enforceOverride != nil {
		enforce = *enforceOverride
	}

	summary := c.evaluator.Run(ctx, preflight.Options{
		RequireSudo:       reqs.RequireSudo,
		RequireRules:      reqs.RequireRules,
		MinMacOSVersion:   minVersion,
		EnforceMinVersion: enforce,
	})

	if !summary.Passed {
		c.logger.Warn("gate blocked command",
			zap.String("command", command),
			zap.String("action", action),
			zap.Int("failed_required", summary.FailedRequiredCount))
	}
	return summary, summary.Passed
}
