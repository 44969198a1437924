package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/persistence"
)

// ReferenceRepository handles reference_records operations.
type ReferenceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewReferenceRepository creates a new reference repository.
func NewReferenceRepository(db *sql.DB, logger *slog.Logger) *ReferenceRepository {
	return &ReferenceRepository{db: db, logger: logger}
}

// SaveReference inserts a record; an existing (run, type, id) row is left untouched.
func (rr *ReferenceRepository) SaveReference(ctx context.Context, runID, entityType, instanceID string) error {
	if err := persistence.ValidateReference(runID, entityType, instanceID); err != nil {
		return err
	}

	query := `
		INSERT INTO reference_records (run_id, entity_type, instance_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, entity_type, instance_id) DO NOTHING
	`

	_, err := rr.db.ExecContext(ctx, query, runID, entityType, instanceID)
	if err != nil {
		return fmt.Errorf("failed to save reference %s/%s: %w", entityType, instanceID, err)
	}

	return nil
}

// References returns the ids recorded for entityType in insertion order.
func (rr *ReferenceRepository) References(ctx context.Context, runID, entityType string) ([]string, error) {
	query := `
		SELECT instance_id
		FROM reference_records
		WHERE run_id = $1 AND entity_type = $2
		ORDER BY seq
	`

	rows, err := rr.db.QueryContext(ctx, query, runID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to query references: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			rr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	ids := []string{}

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan reference: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate references: %w", err)
	}

	return ids, nil
}

// ReferencesByRun returns every record of the run in insertion order.
func (rr *ReferenceRepository) ReferencesByRun(ctx context.Context, runID string) ([]models.ReferenceRecord, error) {
	query := `
		SELECT run_id, entity_type, instance_id, created_at
		FROM reference_records
		WHERE run_id = $1
		ORDER BY seq
	`

	rows, err := rr.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query references: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			rr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	records := []models.ReferenceRecord{}

	for rows.Next() {
		var record models.ReferenceRecord
		if err := rows.Scan(&record.RunID, &record.EntityType, &record.InstanceID, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reference: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate references: %w", err)
	}

	return records, nil
}
