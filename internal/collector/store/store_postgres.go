package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	expmodels "blaze/internal/experiment/models"
	"blaze/internal/telemetry/models"
	id "blaze/pkg/domain"
	txcontext "blaze/pkg/platform/tx"
)

// PostgresStore writes events to experiment_events. The primary key on id
// absorbs redelivered batches.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Save inserts the batch in one transaction and returns the events that were
// new. Duplicates are skipped by ON CONFLICT DO NOTHING.
func (s *PostgresStore) Save(ctx context.Context, events []models.Event, receivedAt time.Time) ([]models.Event, error) {
	var inserted []models.Event
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		inserted = inserted[:0]
		for _, e := range events {
			ok, err := s.insert(ctx, e, receivedAt)
			if err != nil {
				return err
			}
			if ok {
				inserted = append(inserted, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func (s *PostgresStore) insert(ctx context.Context, e models.Event, receivedAt time.Time) (bool, error) {
	props, err := json.Marshal(orEmpty(e.Properties))
	if err != nil {
		return false, fmt.Errorf("marshal properties: %w", err)
	}
	expCtx, err := json.Marshal(orEmptyContext(e.ExperimentContext))
	if err != nil {
		return false, fmt.Errorf("marshal experiment context: %w", err)
	}

	query := `
		INSERT INTO experiment_events (
			id, event_name, visitor_id, session_id, occurred_at, received_at, properties, experiment_context
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
		RETURNING id
	`
	var returned uuid.UUID
	err = s.querier(ctx).QueryRowContext(ctx, query,
		uuid.UUID(e.ID),
		e.EventName,
		e.VisitorID.String(),
		e.SessionID.String(),
		e.Timestamp,
		receivedAt,
		props,
		expCtx,
	).Scan(&returned)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	return true, nil
}

// ListByExperiment returns events tagged with expID, optionally filtered by name.
func (s *PostgresStore) ListByExperiment(ctx context.Context, expID id.ExperimentID, names []string) ([]models.Event, error) {
	query := `
		SELECT id, event_name, visitor_id, session_id, occurred_at, properties, experiment_context
		FROM experiment_events
		WHERE experiment_context ? $1
		  AND (cardinality($2::text[]) = 0 OR event_name = ANY($2::text[]))
		ORDER BY occurred_at, id
	`
	if names == nil {
		names = []string{}
	}
	rows, err := s.querier(ctx).QueryContext(ctx, query, expID.String(), pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var (
			e                models.Event
			eventID          uuid.UUID
			visitor, session string
			rawProps, rawCtx []byte
		)
		if err := rows.Scan(&eventID, &e.EventName, &visitor, &session, &e.Timestamp, &rawProps, &rawCtx); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.ID = id.EventID(eventID)
		e.VisitorID = id.VisitorID(visitor)
		e.SessionID = id.SessionID(session)
		if err := json.Unmarshal(rawProps, &e.Properties); err != nil {
			return nil, fmt.Errorf("decode properties: %w", err)
		}
		if err := json.Unmarshal(rawCtx, &e.ExperimentContext); err != nil {
			return nil, fmt.Errorf("decode experiment context: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func orEmpty(p models.Properties) models.Properties {
	if p == nil {
		return models.Properties{}
	}
	return p
}

func orEmptyContext(c expmodels.Context) expmodels.Context {
	if c == nil {
		return expmodels.Context{}
	}
	return c
}
