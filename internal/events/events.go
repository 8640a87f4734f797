// Package events provides deployment lifecycle events and their fan-out to
// external listeners.
package events

import (
	"time"
)

// Type identifies a deployment lifecycle event.
type Type string

const (
	TypeDeploymentStarted   Type = "deployment_started"
	TypeBuildStepStarted    Type = "build_step_started"
	TypeBuildStepCompleted  Type = "build_step_completed"
	TypeDeployStepStarted   Type = "deploy_step_started"
	TypeDeployStepCompleted Type = "deploy_step_completed"
	TypeHealthCheckStarted  Type = "health_check_started"
	TypeHealthCheckComplete Type = "health_check_completed"
	TypeE2EStarted          Type = "e2e_started"
	TypeE2EOutput           Type = "e2e_output"
	TypeE2ECompleted        Type = "e2e_completed"
	TypeDeploymentCompleted Type = "deployment_completed"
	TypeDeploymentFailed    Type = "deployment_failed"
)

// Data carries the event-type-dependent payload subset.
type Data struct {
	StepName string `json:"stepName,omitempty"`
	Status   string `json:"status,omitempty"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
	Result   any    `json:"result,omitempty"`
}

// Event is a single deployment lifecycle event. Timestamp is ISO-8601.
type Event struct {
	Type         Type   `json:"type"`
	DeploymentID string `json:"deploymentId"`
	Timestamp    string `json:"timestamp"`
	Data         *Data  `json:"data,omitempty"`
}

// New creates an event stamped with the current time.
func New(t Type, deploymentID string, data *Data) *Event {
	return &Event{
		Type:         t,
		DeploymentID: deploymentID,
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		Data:         data,
	}
}

// Sink receives deployment events. Implementations must not block the
// publisher; the orchestrator emits events inline with pipeline execution.
type Sink interface {
	Publish(event *Event)
}

// NopSink discards all events. It is the default sink so the pipeline can
// run headless, without any transport attached.
type NopSink struct{}

// Publish implements Sink.
func (NopSink) Publish(*Event) {}
