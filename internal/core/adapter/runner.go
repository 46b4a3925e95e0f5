// Package adapter shells out to the macOS diagnostic and configuration
// commands the hardening core depends on. Every probe is a blocking call
// with a bounded timeout; a probe that exceeds its timeout is a failed
// probe, not a hang.
package adapter

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds individual subprocess probes.
const DefaultProbeTimeout = 30 * time.Second

// CommandResult carries everything the core is allowed to depend on from a
// subprocess: exit code, stdout and stderr.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stdout and stderr joined, for log and signature matching.
func (r *CommandResult) Combined() string {
	if r.Stdout == "" {
		return r.Stderr
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner executes external commands. The production implementation is
// ExecRunner; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*CommandResult, error)
}

// ExecRunner runs commands via os/exec with a per-invocation timeout.
type ExecRunner struct {
	Timeout time.Duration
}

// NewExecRunner creates an ExecRunner with the given timeout, falling back
// to DefaultProbeTimeout when zero.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &ExecRunner{Timeout: timeout}
}

// Run executes the command and captures its output. A non-zero exit is not
// an error; it is reported through ExitCode. The returned error is reserved
// for spawn failures and timeouts.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (*CommandResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &CommandResult{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.ExitCode = -1
			return result, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		return result, err
	}

	return result, nil
}

// Shell runs a raw command line through sh -c. It exists only for the
// read-only capture probes whose check command is supplied by the caller;
// restore never goes through here.
func Shell(ctx context.Context, r Runner, command string) (*CommandResult, error) {
	return r.Run(ctx, "sh", "-c", command)
}
