package history

import (
	"context"
	"sync"

	"github.com/automakerhq/automaker/internal/models"
)

// DefaultCapacity is how many results the in-memory store retains.
const DefaultCapacity = 50

// MemoryStore keeps the most recent deployment results in memory. This is
// the default store; history does not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	results  []*models.DeploymentResult // newest last
	capacity int
}

// NewMemoryStore creates an in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{capacity: DefaultCapacity}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, result *models.DeploymentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, result.Clone())
	if len(s.results) > s.capacity {
		s.results = s.results[len(s.results)-s.capacity:]
	}
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, limit int) ([]*models.DeploymentResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.results) {
		limit = len(s.results)
	}

	out := make([]*models.DeploymentResult, 0, limit)
	for i := len(s.results) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.results[i].Clone())
	}
	return out, nil
}

// Latest implements Store.
func (s *MemoryStore) Latest(_ context.Context) (*models.DeploymentResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.results) == 0 {
		return nil, ErrNotFound
	}
	return s.results[len(s.results)-1].Clone(), nil
}
