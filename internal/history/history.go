// Package history provides storage for completed deployment results.
package history

import (
	"context"
	"errors"

	"github.com/automakerhq/automaker/internal/models"
)

// ErrNotFound is returned when no deployment record exists.
var ErrNotFound = errors.New("deployment record not found")

// Store records completed deployment results. The pipeline only guarantees
// retention of the most recent result; durable implementations keep more.
type Store interface {
	// Append records a finished deployment result.
	Append(ctx context.Context, result *models.DeploymentResult) error

	// List returns the most recent results, newest first, up to limit.
	List(ctx context.Context, limit int) ([]*models.DeploymentResult, error)

	// Latest returns the most recent result, or ErrNotFound.
	Latest(ctx context.Context) (*models.DeploymentResult, error)
}
