package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// JobRepository persists JobExecution history (spec.md §4.9's "survives
// process restart" requirement). ScheduledJob entries are stored by
// ScheduleRepository.
type JobRepository struct {
	db *Store
}

func NewJobRepository(db *Store) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) InsertExecution(ctx context.Context, exec JobExecution) error {
	query := `
		INSERT INTO job_executions (
			id, job_key, job_name, status, start_time, end_time, error_message,
			activity_text, final_text, progress_current, progress_total,
			result_schema_version, result_json
		) VALUES (
			:id, :job_key, :job_name, :status, :start_time, :end_time, :error_message,
			:activity_text, :final_text, :progress_current, :progress_total,
			:result_schema_version, :result_json
		)`
	if _, err := r.db.NamedExecContext(ctx, query, exec); err != nil {
		return fmt.Errorf("insert job execution: %w", err)
	}
	return nil
}

// UpsertExecution overwrites a job execution row in place, used by the
// JobReporter's coalesced progress-publish loop rather than appending a new
// row per tick.
func (r *JobRepository) UpsertExecution(ctx context.Context, exec JobExecution) error {
	query := `
		UPDATE job_executions SET
			status = :status,
			end_time = :end_time,
			error_message = :error_message,
			activity_text = :activity_text,
			final_text = :final_text,
			progress_current = :progress_current,
			progress_total = :progress_total,
			result_schema_version = :result_schema_version,
			result_json = :result_json
		WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, exec); err != nil {
		return fmt.Errorf("update job execution: %w", err)
	}
	return nil
}

func (r *JobRepository) GetExecution(ctx context.Context, id uuid.UUID) (*JobExecution, error) {
	var exec JobExecution
	if err := r.db.GetContext(ctx, &exec, `SELECT * FROM job_executions WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get job execution: %w", err)
	}
	return &exec, nil
}

// ListRecentHistory returns the most recent executions across all jobs, most
// recent first, for the job history view (spec.md §6).
func (r *JobRepository) ListRecentHistory(ctx context.Context, limit int) ([]JobExecution, error) {
	var execs []JobExecution
	query := `SELECT * FROM job_executions ORDER BY start_time DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &execs, query, limit); err != nil {
		return nil, fmt.Errorf("list job history: %w", err)
	}
	return execs, nil
}

// ListRunning returns executions still in the running state, used to mark
// them Failed on process restart recovery.
func (r *JobRepository) ListRunning(ctx context.Context) ([]JobExecution, error) {
	var execs []JobExecution
	query := `SELECT * FROM job_executions WHERE status = $1`
	if err := r.db.SelectContext(ctx, &execs, query, JobStatusRunning); err != nil {
		return nil, fmt.Errorf("list running job executions: %w", err)
	}
	return execs, nil
}
