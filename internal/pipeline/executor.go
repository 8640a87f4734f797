package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/automakerhq/automaker/internal/models"
)

// termGrace is how long a timed-out or cancelled process gets to exit after
// SIGTERM before it is killed.
const termGrace = 5 * time.Second

// stderrDelimiter separates captured stderr from stdout in a step's output.
const stderrDelimiter = "\n--- stderr ---\n"

// Executor runs a single deployment step to completion or timeout. It never
// returns an error: every outcome, including spawn failure, is reported
// through the StepResult so the orchestrator is the only place failure
// policy is decided.
type Executor struct {
	shell  string
	logger *slog.Logger
}

// NewExecutor creates a step executor.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		shell:  "/bin/sh",
		logger: logger,
	}
}

// Run executes one step under the project root. The command runs through
// the shell so pipes and redirects work; the step's working directory is
// resolved relative to projectPath; the step env is merged over the parent
// environment with the step entries winning on conflict.
func (e *Executor) Run(ctx context.Context, projectPath string, step models.DeploymentStep) models.StepResult {
	start := time.Now()
	timeout := step.Timeout()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.shell, "-c", step.Command)
	cmd.Dir = resolveDir(projectPath, step.WorkingDirectory)
	cmd.Env = mergeEnv(os.Environ(), step.Env)

	// SIGTERM first, SIGKILL after the grace period. No process survives
	// past this call.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = termGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("running step",
		"step", step.Name,
		"dir", cmd.Dir,
		"timeout", timeout.String(),
	)

	err := cmd.Run()

	result := models.StepResult{
		StepName:   step.Name,
		Status:     models.StepStatusSuccess,
		Output:     combineOutput(stdout.String(), stderr.String()),
		DurationMs: time.Since(start).Milliseconds(),
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.Status = models.StepStatusFailed
		result.Error = fmt.Sprintf("Command timed out after %dms", timeout.Milliseconds())
	case err != nil:
		result.Status = models.StepStatusFailed
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.Error = fmt.Sprintf("Exit code: %d", exitErr.ExitCode())
		} else {
			result.Error = err.Error()
		}
	}

	e.logger.Debug("step finished",
		"step", step.Name,
		"status", result.Status,
		"duration_ms", result.DurationMs,
	)
	return result
}

// resolveDir resolves a step working directory against the project root.
// Absolute directories are used as-is.
func resolveDir(projectPath, dir string) string {
	if dir == "" {
		return projectPath
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(projectPath, dir)
}

// mergeEnv appends overrides to the base environment. Later entries win in
// the child process, so overrides take precedence on conflicting names.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	env := make([]string, 0, len(base)+len(overrides))
	env = append(env, base...)
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

// combineOutput returns stdout with a delimited stderr block appended only
// when stderr was non-empty.
func combineOutput(stdout, stderr string) string {
	if strings.TrimSpace(stderr) == "" {
		return stdout
	}
	return stdout + stderrDelimiter + stderr
}
