package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"vetchat/pkg"
)

// Repository records summarization passes in Postgres. Conversation messages
// themselves live in the practice backend, not here.
type Repository struct {
	DB *sql.DB
}

// NewRepository constructs a new Repository from an existing sql.DB.
// The caller is responsible for managing the DB connection lifecycle.
func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

// RecordRun inserts a summarization pass. A missing ID is generated.
func (r *Repository) RecordRun(ctx context.Context, run pkg.SummarizationRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	var errText sql.NullString
	if run.Error != "" {
		errText = sql.NullString{String: run.Error, Valid: true}
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO summarization_runs
             (id, patient_id, outcome, summarized_count, deleted_count, error, started_at, finished_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.PatientID, run.Outcome, run.SummarizedCount, run.DeletedCount, errText, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("db: record summarization run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent passes for a patient, newest first.
func (r *Repository) ListRuns(ctx context.Context, patientID string, limit int) ([]pkg.SummarizationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, patient_id, outcome, summarized_count, deleted_count, error, started_at, finished_at
         FROM summarization_runs
         WHERE patient_id = $1
         ORDER BY started_at DESC
         LIMIT $2`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("db: list summarization runs: %w", err)
	}
	defer rows.Close()

	runs := []pkg.SummarizationRun{}
	for rows.Next() {
		var (
			run     pkg.SummarizationRun
			errText sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.PatientID, &run.Outcome, &run.SummarizedCount, &run.DeletedCount, &errText, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("db: scan summarization run: %w", err)
		}
		run.Error = errText.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
