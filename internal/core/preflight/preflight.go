// Package preflight evaluates the host environment before mutating
// operations are allowed to run. The evaluator never returns an error:
// every failed probe degrades to a FAIL or WARN check.
package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/cluster2600/ALBATOR/internal/core/adapter"
	"github.com/cluster2600/ALBATOR/internal/shared/config"
	"github.com/cluster2600/ALBATOR/internal/shared/types"
	"github.com/cluster2600/ALBATOR/internal/shared/utils"
	"go.uber.org/zap"
)

// PinnedMacOSVersion is the exact release whose diagnostic command output
// signatures the hardening scripts were validated against.
const PinnedMacOSVersion = "26.3"

// minGoVersion is the oldest Go release the tool supports running under.
var minGoVersion = []int{1, 21}

// Options selects how strict a preflight run is. RequireSudo and
// RequireRules come from the gate; the version policy comes from
// configuration with command-line overrides.
type Options struct {
	RequireSudo       bool
	RequireRules      bool
	MinMacOSVersion   string
	EnforceMinVersion bool
}

// Evaluator runs the preflight check battery.
type Evaluator struct {
	rootDir string
	adapter *adapter.SystemAdapter
	logger  *zap.Logger

	requiredTools []string
	optionalTools []string
	pinnedVersion string

	// probes, overridable in tests
	lookPath       func(string) (string, error)
	geteuid        func() int
	goos           string
	runtimeVersion func() string
}

// NewEvaluator creates an Evaluator rooted at rootDir probing the tools
// listed in deps.
func NewEvaluator(rootDir string, deps config.DependencyConfig, ad *adapter.SystemAdapter, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		rootDir:        rootDir,
		adapter:        ad,
		logger:         logger,
		requiredTools:  deps.Required,
		optionalTools:  deps.Optional,
		pinnedVersion:  PinnedMacOSVersion,
		lookPath:       exec.LookPath,
		geteuid:        os.Geteuid,
		goos:           runtime.GOOS,
		runtimeVersion: runtime.Version,
	}
}

// SetProbesForTesting replaces the evaluator's host probes so tests in other
// packages can decouple evaluation from the machine running them. Any nil
// argument keeps the current probe; an empty goos keeps the current one.
func (e *Evaluator) SetProbesForTesting(lookPath func(string) (string, error), geteuid func() int, goos string, runtimeVersion func() string) {
	if lookPath != nil {
		e.lookPath = lookPath
	}
	if geteuid != nil {
		e.geteuid = geteuid
	}
	if goos != "" {
		e.goos = goos
	}
	if runtimeVersion != nil {
		e.runtimeVersion = runtimeVersion
	}
}

// Run executes the full check battery and returns the summary. Check order
// is fixed so reports are reproducible.
func (e *Evaluator) Run(ctx context.Context, opts Options) *types.PreflightSummary {
	rootDir, err := filepath.Abs(e.rootDir)
	if err != nil {
		rootDir = e.rootDir
	}

	checks := []types.PreflightCheck{
		e.checkRuntimeVersion(),
		e.checkOSTarget(ctx),
	}
	for _, tool := range e.requiredTools {
		checks = append(checks, e.checkTool(tool, true))
	}
	for _, tool := range e.optionalTools {
		checks = append(checks, e.checkTool(tool, false))
	}
	checks = append(checks,
		e.checkSudoOrRoot(ctx, opts.RequireSudo),
		e.checkConfigFile(rootDir),
		e.checkRuleDirs(rootDir, opts.RequireRules),
		e.checkVersionProfile(rootDir),
	)
	checks = append(checks, e.checkVersionSignatures(ctx)...)
	checks = append(checks, e.checkMinVersionPolicy(ctx, opts.MinMacOSVersion, opts.EnforceMinVersion))

	summary := &types.PreflightSummary{
		RootDir:      rootDir,
		RequireSudo:  opts.RequireSudo,
		RequireRules: opts.RequireRules,
		Checks:       checks,
	}
	summary.Finalize()

	e.logger.Info("preflight completed",
		zap.Bool("passed", summary.Passed),
		zap.Int("failed_required", summary.FailedRequiredCount),
		zap.Int("warnings", summary.WarningCount))
	return summary
}

func (e *Evaluator) checkRuntimeVersion() types.PreflightCheck {
	current := e.runtimeVersion()
	parts, ok := goVersionTuple(current)
	if !ok {
		// devel or vendor-patched toolchains report unparseable versions
		return types.PreflightCheck{
			Name:     "go_runtime",
			Status:   types.StatusWarn,
			Message:  fmt.Sprintf("Unrecognized Go runtime version %q", current),
			Required: false,
		}
	}
	if compareTuples(parts, minGoVersion) >= 0 {
		return types.PreflightCheck{
			Name:     "go_runtime",
			Status:   types.StatusPass,
			Message:  fmt.Sprintf("Go runtime %s", current),
			Required: true,
		}
	}
	return types.PreflightCheck{
		Name:     "go_runtime",
		Status:   types.StatusFail,
		Message:  fmt.Sprintf("Go runtime %s < go%d.%d", current, minGoVersion[0], minGoVersion[1]),
		Required: true,
	}
}

func (e *Evaluator) checkOSTarget(ctx context.Context) types.PreflightCheck {
	if e.goos == "darwin" {
		version := e.adapter.SysInfo.MacOSVersion(ctx)
		return types.PreflightCheck{
			Name:     "os_target",
			Status:   types.StatusPass,
			Message:  fmt.Sprintf("macOS detected (%s)", version),
			Required: true,
		}
	}
	return types.PreflightCheck{
		Name:     "os_target",
		Status:   types.StatusWarn,
		Message:  fmt.Sprintf("Non-macOS environment detected (%s)", e.goos),
		Required: false,
	}
}

func (e *Evaluator) checkTool(tool string, required bool) types.PreflightCheck {
	name := "tool_" + tool
	path, err := e.lookPath(tool)
	if err == nil {
		return types.PreflightCheck{
			Name:     name,
			Status:   types.StatusPass,
			Message:  fmt.Sprintf("%s found at %s", tool, path),
			Required: required,
		}
	}
	status := types.StatusWarn
	if required {
		status = types.StatusFail
	}
	return types.PreflightCheck{
		Name:     name,
		Status:   status,
		Message:  fmt.Sprintf("%s not found in PATH", tool),
		Required: required,
	}
}

func (e *Evaluator) checkSudoOrRoot(ctx context.Context, requireSudo bool) types.PreflightCheck {
	if !requireSudo {
		return types.PreflightCheck{
			Name:     "sudo_or_root",
			Status:   types.StatusPass,
			Message:  "Not required for this operation",
			Required: false,
		}
	}

	if e.geteuid() == 0 {
		return types.PreflightCheck{
			Name:     "sudo_or_root",
			Status:   types.StatusPass,
			Message:  "Running as root",
			Required: true,
		}
	}

	// Probe for non-interactive elevation; -n guarantees no prompt.
	result, err := e.adapter.Runner.Run(ctx, "sudo", "-n", "true")
	if err == nil && result.ExitCode == 0 {
		return types.PreflightCheck{
			Name:     "sudo_or_root",
			Status:   types.StatusPass,
			Message:  "sudo available without prompt",
			Required: true,
		}
	}

	return types.PreflightCheck{
		Name:     "sudo_or_root",
		Status:   types.StatusFail,
		Message:  "No root privileges and non-interactive sudo unavailable",
		Required: true,
	}
}

func (e *Evaluator) checkConfigFile(rootDir string) types.PreflightCheck {
	for _, candidate := range config.CandidatePaths {
		path := filepath.Join(rootDir, candidate)
		if utils.IsReadable(path) {
			return types.PreflightCheck{
				Name:     "config_file",
				Status:   types.StatusPass,
				Message:  fmt.Sprintf("Readable config found: %s", path),
				Required: false,
			}
		}
	}
	return types.PreflightCheck{
		Name:     "config_file",
		Status:   types.StatusWarn,
		Message:  "No readable config file found (using defaults)",
		Required: false,
	}
}

func (e *Evaluator) checkRuleDirs(rootDir string, requireRules bool) types.PreflightCheck {
	rulesDir := filepath.Join(rootDir, "rules")
	customRulesDir := filepath.Join(rootDir, "custom", "rules")

	found := utils.ContainsFileWithExt(rulesDir, ".yaml") ||
		utils.ContainsFileWithExt(customRulesDir, ".yaml")

	if found {
		return types.PreflightCheck{
			Name:     "rule_files",
			Status:   types.StatusPass,
			Message:  "Rule YAML files detected",
			Required: requireRules,
		}
	}

	status := types.StatusWarn
	if requireRules {
		status = types.StatusFail
	}
	return types.PreflightCheck{
		Name:     "rule_files",
		Status:   status,
		Message:  fmt.Sprintf("No rule YAML files under %s or %s", rulesDir, customRulesDir),
		Required: requireRules,
	}
}

func (e *Evaluator) checkVersionProfile(rootDir string) types.PreflightCheck {
	name := "macos_" + versionSlug(e.pinnedVersion) + "_profile"
	profilePath := filepath.Join(rootDir, "config", "profiles",
		fmt.Sprintf("macos_%s.yaml", versionSlug(e.pinnedVersion)))
	if utils.IsReadable(profilePath) {
		return types.PreflightCheck{
			Name:     name,
			Status:   types.StatusPass,
			Message:  fmt.Sprintf("Profile present: %s", profilePath),
			Required: false,
		}
	}
	return types.PreflightCheck{
		Name:     name,
		Status:   types.StatusWarn,
		Message:  fmt.Sprintf("macOS %s profile pack not found", e.pinnedVersion),
		Required: false,
	}
}

// checkVersionSignatures sanity-checks that the diagnostic commands the
// hardening scripts parse still produce recognizable output on the pinned
// release. An OS upgrade that changes these formats should surface here, not
// as a silent downstream parse failure.
func (e *Evaluator) checkVersionSignatures(ctx context.Context) []types.PreflightCheck {
	if e.goos != "darwin" {
		return nil
	}

	slug := versionSlug(e.pinnedVersion)
	version := e.adapter.SysInfo.MacOSVersion(ctx)
	if !onPinnedRelease(version, e.pinnedVersion) {
		return []types.PreflightCheck{{
			Name:     "macos_" + slug + "_mode",
			Status:   types.StatusWarn,
			Message:  fmt.Sprintf("%s-specific checks skipped on %s", e.pinnedVersion, version),
			Required: false,
		}}
	}

	var checks []types.PreflightCheck

	fwOutput, fwOK := e.adapter.SysInfo.FirewallState(ctx)
	lower := strings.ToLower(fwOutput)
	if fwOK && (strings.Contains(lower, "enabled") || strings.Contains(lower, "disabled")) {
		checks = append(checks, types.PreflightCheck{
			Name:     "macos_" + slug + "_firewall_signature",
			Status:   types.StatusPass,
			Message:  "Firewall status output signature looks compatible",
			Required: false,
		})
	} else {
		checks = append(checks, types.PreflightCheck{
			Name:     "macos_" + slug + "_firewall_signature",
			Status:   types.StatusWarn,
			Message:  fmt.Sprintf("Unexpected firewall status output: %s", fwOutput),
			Required: false,
		})
	}

	gkOutput, gkOK := e.adapter.SysInfo.GatekeeperStatus(ctx)
	if gkOK && strings.Contains(strings.ToLower(gkOutput), "assessment") {
		checks = append(checks, types.PreflightCheck{
			Name:     "macos_" + slug + "_gatekeeper_signature",
			Status:   types.StatusPass,
			Message:  "Gatekeeper output signature looks compatible",
			Required: false,
		})
	} else {
		checks = append(checks, types.PreflightCheck{
			Name:     "macos_" + slug + "_gatekeeper_signature",
			Status:   types.StatusWarn,
			Message:  fmt.Sprintf("Unexpected Gatekeeper output: %s", gkOutput),
			Required: false,
		})
	}

	return checks
}

func (e *Evaluator) checkMinVersionPolicy(ctx context.Context, minVersion string, enforce bool) types.PreflightCheck {
	detected := "unknown"
	if e.goos == "darwin" {
		detected = e.adapter.SysInfo.MacOSVersion(ctx)
	}

	detectedTuple, detectedOK := versionTuple(detected)
	minTuple, minOK := versionTuple(minVersion)
	meets := detectedOK && minOK && compareTuples(detectedTuple, minTuple) >= 0

	message := fmt.Sprintf("detected=%s, minimum=%s", detected, minVersion)

	if enforce {
		if meets {
			return types.PreflightCheck{
				Name:     "min_macos_version",
				Status:   types.StatusPass,
				Message:  message,
				Required: true,
			}
		}
		return types.PreflightCheck{
			Name:     "min_macos_version",
			Status:   types.StatusFail,
			Message:  message + " (enforced)",
			Required: true,
		}
	}

	status := types.StatusPass
	if !meets {
		status = types.StatusWarn
	}
	return types.PreflightCheck{
		Name:     "min_macos_version",
		Status:   status,
		Message:  message + " (not enforced)",
		Required: false,
	}
}

// versionTuple parses the leading dot-separated integer components of a
// version string. Non-numeric trailing segments are ignored; a string with
// no leading numeric component yields ok=false.
func versionTuple(version string) ([]int, bool) {
	var tuple []int
	for _, part := range strings.Split(version, ".") {
		digits := part
		for i, r := range part {
			if r < '0' || r > '9' {
				digits = part[:i]
				break
			}
		}
		if digits == "" {
			break
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			break
		}
		tuple = append(tuple, n)
	}
	return tuple, len(tuple) > 0
}

// compareTuples compares two version tuples element-wise, treating missing
// elements as zero.
func compareTuples(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

// goVersionTuple parses strings like "go1.23.4".
func goVersionTuple(version string) ([]int, bool) {
	if !strings.HasPrefix(version, "go") {
		return nil, false
	}
	return versionTuple(strings.TrimPrefix(version, "go"))
}

func versionSlug(version string) string {
	return strings.ReplaceAll(version, ".", "_")
}

// onPinnedRelease reports whether the detected version sits on the pinned
// release line. The leading components are compared numerically so that a
// string prefix collision ("26.30" against "26.3") does not count, while a
// patch release ("26.3.1") does.
func onPinnedRelease(detected, pinned string) bool {
	detectedTuple, ok := versionTuple(detected)
	if !ok {
		return false
	}
	pinnedTuple, ok := versionTuple(pinned)
	if !ok || len(detectedTuple) < len(pinnedTuple) {
		return false
	}
	return compareTuples(detectedTuple[:len(pinnedTuple)], pinnedTuple) == 0
}
