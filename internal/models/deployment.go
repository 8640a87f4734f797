// Package models defines the core data types for the deployment pipeline.
package models

import (
	"time"
)

// DeploymentStatus represents the current state of a deployment run.
type DeploymentStatus string

const (
	DeploymentStatusIdle             DeploymentStatus = "idle"
	DeploymentStatusBuilding         DeploymentStatus = "building"
	DeploymentStatusDeploying        DeploymentStatus = "deploying"
	DeploymentStatusWaitingForHealth DeploymentStatus = "waiting_for_health"
	DeploymentStatusRunningTests     DeploymentStatus = "running_tests"
	DeploymentStatusSuccess          DeploymentStatus = "success"
	DeploymentStatusFailed           DeploymentStatus = "failed"
)

// IsTerminal reports whether the status is a final state.
func (s DeploymentStatus) IsTerminal() bool {
	return s == DeploymentStatusSuccess || s == DeploymentStatusFailed
}

// IsActive reports whether a deployment with this status is still in flight.
func (s DeploymentStatus) IsActive() bool {
	return s != DeploymentStatusIdle && !s.IsTerminal()
}

// DeploymentTrigger identifies why a deployment was started.
type DeploymentTrigger string

const (
	// TriggerManual means the deployment was started by a user.
	TriggerManual DeploymentTrigger = "manual"
	// TriggerAutoModeComplete means the deployment was started automatically
	// when all in-flight automated feature work finished.
	TriggerAutoModeComplete DeploymentTrigger = "auto_mode_complete"
)

// Default timeouts applied when the corresponding config field is absent.
const (
	DefaultStepTimeout        = 5 * time.Minute
	DefaultHealthCheckTimeout = 30 * time.Second
	DefaultE2EWaitTimeout     = 60 * time.Second
	DefaultE2ETimeout         = 10 * time.Minute
)

// ConfigVersion is the current schema version of the persisted configuration.
const ConfigVersion = 1

// DeploymentStep is one named shell command in the build or deploy phase.
// Steps are immutable once read from configuration; order is significant.
//
// JSON tags match the persisted per-project document, which is shared with
// external tooling and therefore uses camelCase field names.
type DeploymentStep struct {
	Name             string            `json:"name"`
	Command          string            `json:"command"`
	WorkingDirectory string            `json:"workingDirectory,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
	TimeoutMs        int64             `json:"timeoutMs,omitempty"`
	ContinueOnError  bool              `json:"continueOnError,omitempty"`
}

// Timeout returns the step timeout, falling back to DefaultStepTimeout.
func (s *DeploymentStep) Timeout() time.Duration {
	if s.TimeoutMs > 0 {
		return time.Duration(s.TimeoutMs) * time.Millisecond
	}
	return DefaultStepTimeout
}

// E2ETestConfig describes the end-to-end test run that follows a deployment.
type E2ETestConfig struct {
	Command          string            `json:"command"`
	WorkingDirectory string            `json:"workingDirectory,omitempty"`
	WaitForURL       string            `json:"waitForUrl,omitempty"`
	WaitTimeoutMs    int64             `json:"waitTimeoutMs,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
	TimeoutMs        int64             `json:"timeoutMs,omitempty"`
}

// WaitTimeout returns the wait-for-URL deadline, falling back to the default.
func (c *E2ETestConfig) WaitTimeout() time.Duration {
	if c.WaitTimeoutMs > 0 {
		return time.Duration(c.WaitTimeoutMs) * time.Millisecond
	}
	return DefaultE2EWaitTimeout
}

// Timeout returns the test command timeout, falling back to the default.
func (c *E2ETestConfig) Timeout() time.Duration {
	if c.TimeoutMs > 0 {
		return time.Duration(c.TimeoutMs) * time.Millisecond
	}
	return DefaultE2ETimeout
}

// DeploymentConfig is the per-project deployment configuration, persisted as
// a single JSON document.
type DeploymentConfig struct {
	Version              int              `json:"version"`
	AutoDeployOnComplete bool             `json:"autoDeployOnComplete"`
	BuildSteps           []DeploymentStep `json:"buildSteps"`
	DeploySteps          []DeploymentStep `json:"deploySteps"`
	E2ETests             *E2ETestConfig   `json:"e2eTests,omitempty"`
	HealthCheckURL       string           `json:"healthCheckUrl,omitempty"`
	HealthCheckTimeoutMs int64            `json:"healthCheckTimeoutMs,omitempty"`
}

// HealthCheckTimeout returns the health probe deadline, falling back to the default.
func (c *DeploymentConfig) HealthCheckTimeout() time.Duration {
	if c.HealthCheckTimeoutMs > 0 {
		return time.Duration(c.HealthCheckTimeoutMs) * time.Millisecond
	}
	return DefaultHealthCheckTimeout
}

// StepStatus is the outcome of a single executed step.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

// StepResult records the outcome of one executed step. It is created once
// per step and never mutated afterwards.
type StepResult struct {
	StepName   string     `json:"stepName"`
	Status     StepStatus `json:"status"`
	Output     string     `json:"output"`
	Error      string     `json:"error,omitempty"`
	DurationMs int64      `json:"durationMs"`
}

// E2EStatus is the outcome of the end-to-end test phase.
type E2EStatus string

const (
	E2EStatusPassed  E2EStatus = "passed"
	E2EStatusFailed  E2EStatus = "failed"
	E2EStatusSkipped E2EStatus = "skipped"
)

// E2ETestResult records the outcome of the E2E phase. The count fields are
// populated only when they could be parsed out of the runner output.
type E2ETestResult struct {
	Status     E2EStatus `json:"status"`
	Output     string    `json:"output"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"durationMs"`
	Passed     *int      `json:"passed,omitempty"`
	Failed     *int      `json:"failed,omitempty"`
	Skipped    *int      `json:"skipped,omitempty"`
}

// DeploymentResult is the aggregate record of one pipeline run. Exactly one
// result is current at a time, process-wide; the orchestrator owns it and
// hands out clones to readers.
type DeploymentResult struct {
	ID            string            `json:"id"`
	ProjectPath   string            `json:"projectPath"`
	StartedAt     time.Time         `json:"startedAt"`
	FinishedAt    *time.Time        `json:"finishedAt,omitempty"`
	Status        DeploymentStatus  `json:"status"`
	BuildResults  []StepResult      `json:"buildResults"`
	DeployResults []StepResult      `json:"deployResults"`
	E2EResult     *E2ETestResult    `json:"e2eResult,omitempty"`
	Error         string            `json:"error,omitempty"`
	Trigger       DeploymentTrigger `json:"trigger"`
	FeatureIDs    []string          `json:"featureIds,omitempty"`
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (r *DeploymentResult) Clone() *DeploymentResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		out.FinishedAt = &t
	}
	out.BuildResults = append([]StepResult(nil), r.BuildResults...)
	out.DeployResults = append([]StepResult(nil), r.DeployResults...)
	if r.E2EResult != nil {
		e := *r.E2EResult
		e.Passed = cloneIntPtr(r.E2EResult.Passed)
		e.Failed = cloneIntPtr(r.E2EResult.Failed)
		e.Skipped = cloneIntPtr(r.E2EResult.Skipped)
		out.E2EResult = &e
	}
	out.FeatureIDs = append([]string(nil), r.FeatureIDs...)
	return &out
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
