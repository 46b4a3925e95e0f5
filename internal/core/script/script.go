// Package script locates and executes the bundled hardening shell scripts.
package script

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cluster2600/ALBATOR/internal/shared/types"
	"github.com/cluster2600/ALBATOR/internal/shared/utils"
	"go.uber.org/zap"
)

// Known maps script keywords to their file names under the scripts
// directory. Keywords outside this map are rejected before anything touches
// the filesystem.
var Known = map[string]string{
	"privacy":       "privacy.sh",
	"firewall":      "firewall.sh",
	"encryption":    "encryption.sh",
	"app_security":  "app_security.sh",
	"cve_fetch":     "cve_fetch.sh",
	"apple_updates": "apple_updates.sh",
}

// Runner resolves and executes hardening scripts with inherited stdio;
// script output goes straight to the terminal, not through the capture
// runner used for probes.
type Runner struct {
	scriptsDir string
	logger     *zap.Logger

	// exec hook, overridable in tests
	run func(ctx context.Context, name string, args ...string) error
}

// NewRunner creates a Runner rooted at scriptsDir.
func NewRunner(scriptsDir string, logger *zap.Logger) *Runner {
	return &Runner{
		scriptsDir: scriptsDir,
		logger:     logger,
		run:        runPassthrough,
	}
}

func runPassthrough(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// SetRunForTesting replaces the exec hook so tests in other packages can
// observe script invocations without spawning processes.
func SetRunForTesting(r *Runner, run func(ctx context.Context, name string, args ...string) error) {
	r.run = run
}

// Path resolves a script keyword to its on-disk path. The file must exist;
// ErrScriptNotFound covers both unknown keywords and missing files.
func (r *Runner) Path(keyword string) (string, error) {
	file, ok := Known[keyword]
	if !ok {
		return "", fmt.Errorf("%w: unknown keyword %q", types.ErrScriptNotFound, keyword)
	}
	path := filepath.Join(r.scriptsDir, file)
	if !utils.FileExists(path) {
		return "", fmt.Errorf("%w: %s", types.ErrScriptNotFound, path)
	}
	return path, nil
}

// Run executes a script by keyword, forwarding args verbatim. Scripts are
// run through bash explicitly so a missing executable bit does not matter.
func (r *Runner) Run(ctx context.Context, keyword string, args ...string) error {
	path, err := r.Path(keyword)
	if err != nil {
		return err
	}

	r.logger.Info("running hardening script",
		zap.String("keyword", keyword),
		zap.String("path", path),
		zap.Strings("args", args))

	bashArgs := append([]string{path}, args...)
	if err := r.run(ctx, "bash", bashArgs...); err != nil {
		return fmt.Errorf("script %s failed: %w", keyword, err)
	}
	return nil
}
