package pipeline

import "errors"

// Common errors returned by pipeline operations.
var (
	// ErrDeploymentInProgress is returned when a deployment is requested
	// while another one is already running.
	ErrDeploymentInProgress = errors.New("deployment already in progress")

	// ErrConfigNotFound is returned when a deployment is requested for a
	// project that has no saved deployment configuration.
	ErrConfigNotFound = errors.New("no deployment configuration found for project")
)

// CancelledMessage is recorded on a run that was cancelled by the user.
const CancelledMessage = "Deployment cancelled by user"
