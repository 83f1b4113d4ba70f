package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"blaze/internal/experiment/models"
	id "blaze/pkg/domain"
	"blaze/pkg/platform/sentinel"
)

// PostgresStore persists assignments in experiment_assignments. The primary key
// on (visitor_id, experiment_id) makes the first write win.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed assignment store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, visitorID id.VisitorID, experimentID id.ExperimentID) (*models.Assignment, error) {
	a := models.Assignment{ExperimentID: experimentID}
	var variant string
	err := s.db.QueryRowContext(ctx, `
		SELECT variant_id, assigned_at
		FROM experiment_assignments
		WHERE visitor_id = $1 AND experiment_id = $2
	`, visitorID.String(), experimentID.String()).Scan(&variant, &a.AssignedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	a.VariantID = id.VariantID(variant)
	return &a, nil
}

func (s *PostgresStore) SaveIfAbsent(ctx context.Context, visitorID id.VisitorID, a models.Assignment) (*models.Assignment, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	query := `
		INSERT INTO experiment_assignments (visitor_id, experiment_id, variant_id, assigned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (visitor_id, experiment_id) DO UPDATE SET
			visitor_id = experiment_assignments.visitor_id
		RETURNING variant_id, assigned_at
	`
	stored := models.Assignment{ExperimentID: a.ExperimentID}
	var variant string
	err := s.db.QueryRowContext(ctx, query,
		visitorID.String(), a.ExperimentID.String(), a.VariantID.String(), a.AssignedAt,
	).Scan(&variant, &stored.AssignedAt)
	if err != nil {
		return nil, fmt.Errorf("save assignment: %w", err)
	}
	stored.VariantID = id.VariantID(variant)
	return &stored, nil
}

func (s *PostgresStore) Delete(ctx context.Context, visitorID id.VisitorID, experimentID id.ExperimentID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM experiment_assignments WHERE visitor_id = $1 AND experiment_id = $2
	`, visitorID.String(), experimentID.String())
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}
