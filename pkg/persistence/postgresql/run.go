package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/persistence"
)

// RunRepository handles run-related database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

// Save upserts a run.
func (rr *RunRepository) Save(ctx context.Context, run *models.Run) error {
	entityTypesJSON, err := json.Marshal(run.EntityTypes)
	if err != nil {
		return fmt.Errorf("failed to marshal entity types: %w", err)
	}

	var reportJSON []byte
	if run.Report != nil {
		reportJSON, err = json.Marshal(run.Report)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
	}

	query := `
		INSERT INTO runs (
			id, target_id, token_set, entity_types, status,
			error_message, report, created_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			target_id = EXCLUDED.target_id,
			token_set = EXCLUDED.token_set,
			entity_types = EXCLUDED.entity_types,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			report = EXCLUDED.report,
			completed_at = EXCLUDED.completed_at
	`

	_, err = rr.db.ExecContext(ctx, query,
		run.ID,
		run.TargetID,
		run.TokenSet,
		entityTypesJSON,
		run.Status,
		nullableString(run.Error),
		nullableJSON(reportJSON),
		run.CreatedAt,
		run.CompletedAt,
	)
	if err != nil {
		return persistence.NewRunError("SaveRun", run.ID, err)
	}

	return nil
}

// GetByID retrieves a run by its ID.
func (rr *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	query := `
		SELECT id, target_id, token_set, entity_types, status,
			   error_message, report, created_at, completed_at
		FROM runs
		WHERE id = $1
	`

	run, err := rr.scanRun(rr.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("RunByID", id, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

// GetAll retrieves every run, newest first.
func (rr *RunRepository) GetAll(ctx context.Context) ([]*models.Run, error) {
	query := `
		SELECT id, target_id, token_set, entity_types, status,
			   error_message, report, created_at, completed_at
		FROM runs
		ORDER BY created_at DESC
	`

	rows, err := rr.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			rr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	runs := []*models.Run{}

	for rows.Next() {
		run, err := rr.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (rr *RunRepository) scanRun(row scanner) (*models.Run, error) {
	var (
		run             models.Run
		entityTypesJSON []byte
		reportJSON      []byte
		errorMessage    sql.NullString
		completedAt     sql.NullTime
	)

	err := row.Scan(
		&run.ID,
		&run.TargetID,
		&run.TokenSet,
		&entityTypesJSON,
		&run.Status,
		&errorMessage,
		&reportJSON,
		&run.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(entityTypesJSON, &run.EntityTypes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity types: %w", err)
	}

	if len(reportJSON) > 0 {
		run.Report = &models.RunReport{}
		if err := json.Unmarshal(reportJSON, run.Report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report: %w", err)
		}
	}

	run.Error = errorMessage.String

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}

	return &run, nil
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullableJSON(value []byte) any {
	if len(value) == 0 {
		return nil
	}

	return value
}
