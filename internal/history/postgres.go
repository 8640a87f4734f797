package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/automakerhq/automaker/internal/models"
)

// PostgresStore is a durable history store backed by PostgreSQL. Results
// are stored as JSON documents in an append-only table.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a PostgreSQL-backed history store and ensures
// the backing table exists.
func NewPostgresStore(ctx context.Context, db *sql.DB, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PostgresStore{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS deployment_history (
			id           TEXT PRIMARY KEY,
			status       TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			started_at   TIMESTAMPTZ NOT NULL,
			finished_at  TIMESTAMPTZ,
			result       JSONB NOT NULL
		)`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("creating deployment_history table: %w", err)
	}
	return nil
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, result *models.DeploymentResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling deployment result: %w", err)
	}

	query := `
		INSERT INTO deployment_history (id, status, trigger_type, started_at, finished_at, result)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, finished_at = EXCLUDED.finished_at, result = EXCLUDED.result`

	_, err = s.db.ExecContext(ctx, query,
		result.ID, string(result.Status), string(result.Trigger),
		result.StartedAt.UTC(), result.FinishedAt, data,
	)
	if err != nil {
		return fmt.Errorf("inserting deployment record: %w", err)
	}

	s.logger.Debug("deployment record stored", "deployment_id", result.ID, "status", result.Status)
	return nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]*models.DeploymentResult, error) {
	if limit <= 0 {
		limit = DefaultCapacity
	}

	query := `
		SELECT result
		FROM deployment_history
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying deployment history: %w", err)
	}
	defer rows.Close()

	var results []*models.DeploymentResult
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning deployment record: %w", err)
		}
		var result models.DeploymentResult
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("unmarshaling deployment record: %w", err)
		}
		results = append(results, &result)
	}
	return results, rows.Err()
}

// Latest implements Store.
func (s *PostgresStore) Latest(ctx context.Context) (*models.DeploymentResult, error) {
	query := `
		SELECT result
		FROM deployment_history
		ORDER BY started_at DESC
		LIMIT 1`

	var data []byte
	err := s.db.QueryRowContext(ctx, query).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying latest deployment: %w", err)
	}

	var result models.DeploymentResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshaling deployment record: %w", err)
	}
	return &result, nil
}
