package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/automakerhq/automaker/internal/models"
)

func TestExecutorRunSuccess(t *testing.T) {
	exec := NewExecutor(nil)
	project := t.TempDir()

	result := exec.Run(context.Background(), project, models.DeploymentStep{
		Name:    "hello",
		Command: "echo hello",
	})

	if result.Status != models.StepStatusSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.Error)
	}
	if result.StepName != "hello" {
		t.Errorf("expected step name hello, got %s", result.StepName)
	}
	if strings.TrimSpace(result.Output) != "hello" {
		t.Errorf("expected output hello, got %q", result.Output)
	}
	if result.Error != "" {
		t.Errorf("expected empty error, got %q", result.Error)
	}
	if result.DurationMs < 0 {
		t.Errorf("expected non-negative duration, got %d", result.DurationMs)
	}
}

func TestExecutorRunNonZeroExit(t *testing.T) {
	exec := NewExecutor(nil)

	result := exec.Run(context.Background(), t.TempDir(), models.DeploymentStep{
		Name:    "fail",
		Command: "exit 3",
	})

	if result.Status != models.StepStatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.Error != "Exit code: 3" {
		t.Errorf("expected 'Exit code: 3', got %q", result.Error)
	}
}

func TestExecutorRunCapturesStderr(t *testing.T) {
	exec := NewExecutor(nil)

	result := exec.Run(context.Background(), t.TempDir(), models.DeploymentStep{
		Name:    "noisy",
		Command: "echo out; echo err >&2",
	})

	if result.Status != models.StepStatusSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.Error)
	}
	if !strings.Contains(result.Output, "out") {
		t.Errorf("expected stdout in output, got %q", result.Output)
	}
	if !strings.Contains(result.Output, stderrDelimiter) {
		t.Errorf("expected stderr delimiter in output, got %q", result.Output)
	}
	if !strings.Contains(result.Output, "err") {
		t.Errorf("expected stderr in output, got %q", result.Output)
	}
}

func TestExecutorRunNoStderrNoDelimiter(t *testing.T) {
	exec := NewExecutor(nil)

	result := exec.Run(context.Background(), t.TempDir(), models.DeploymentStep{
		Name:    "quiet",
		Command: "echo only-stdout",
	})

	if strings.Contains(result.Output, stderrDelimiter) {
		t.Errorf("expected no delimiter for empty stderr, got %q", result.Output)
	}
}

func TestExecutorRunTimeout(t *testing.T) {
	exec := NewExecutor(nil)
	start := time.Now()

	result := exec.Run(context.Background(), t.TempDir(), models.DeploymentStep{
		Name:      "slow",
		Command:   "sleep 10",
		TimeoutMs: 200,
	})

	if result.Status != models.StepStatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.Error != "Command timed out after 200ms" {
		t.Errorf("expected timeout error, got %q", result.Error)
	}
	if elapsed := time.Since(start); elapsed > 8*time.Second {
		t.Errorf("expected prompt return after timeout, took %s", elapsed)
	}
}

func TestExecutorRunStepEnvWins(t *testing.T) {
	exec := NewExecutor(nil)
	t.Setenv("AUTOMAKER_TEST_VAR", "parent")

	result := exec.Run(context.Background(), t.TempDir(), models.DeploymentStep{
		Name:    "env",
		Command: "echo $AUTOMAKER_TEST_VAR",
		Env:     map[string]string{"AUTOMAKER_TEST_VAR": "step"},
	})

	if result.Status != models.StepStatusSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.Error)
	}
	if strings.TrimSpace(result.Output) != "step" {
		t.Errorf("expected step env to win, got %q", result.Output)
	}
}

func TestExecutorRunWorkingDirectory(t *testing.T) {
	exec := NewExecutor(nil)
	project := t.TempDir()
	if err := os.MkdirAll(filepath.Join(project, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	result := exec.Run(context.Background(), project, models.DeploymentStep{
		Name:             "pwd",
		Command:          "pwd",
		WorkingDirectory: "sub",
	})

	if result.Status != models.StepStatusSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.Error)
	}
	if !strings.HasSuffix(strings.TrimSpace(result.Output), filepath.Join(project, "sub")) {
		t.Errorf("expected working dir %s, got %q", filepath.Join(project, "sub"), result.Output)
	}
}

func TestExecutorRunShellSpawnFailureIsResult(t *testing.T) {
	exec := NewExecutor(nil)
	// The shell itself starts, so a missing binary surfaces as a non-zero
	// exit rather than a Go error.
	result := exec.Run(context.Background(), t.TempDir(), models.DeploymentStep{
		Name:    "missing",
		Command: "definitely-not-a-real-binary-automaker",
	})

	if result.Status != models.StepStatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if !strings.HasPrefix(result.Error, "Exit code: ") {
		t.Errorf("expected exit code error, got %q", result.Error)
	}
}

func TestExecutorRunCancelledContext(t *testing.T) {
	exec := NewExecutor(nil)

	ctx, cancel := context.WithCancel(context.Background())
	project := t.TempDir()
	done := make(chan models.StepResult, 1)
	go func() {
		done <- exec.Run(ctx, project, models.DeploymentStep{
			Name:    "cancelled",
			Command: "sleep 10",
		})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case result := <-done:
		if result.Status != models.StepStatusFailed {
			t.Errorf("expected failed after cancel, got %s", result.Status)
		}
	case <-time.After(8 * time.Second):
		t.Fatal("executor did not return after context cancel")
	}
}

func TestResolveDir(t *testing.T) {
	tests := []struct {
		name    string
		project string
		dir     string
		want    string
	}{
		{"empty uses project", "/srv/app", "", "/srv/app"},
		{"relative joins", "/srv/app", "web", "/srv/app/web"},
		{"absolute wins", "/srv/app", "/opt/other", "/opt/other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveDir(tt.project, tt.dir); got != tt.want {
				t.Errorf("resolveDir(%q, %q) = %q, want %q", tt.project, tt.dir, got, tt.want)
			}
		})
	}
}
