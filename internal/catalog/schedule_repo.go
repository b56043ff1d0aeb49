package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScheduleRepository persists cron dispatch entries (spec.md §4.10).
type ScheduleRepository struct {
	db *Store
}

func NewScheduleRepository(db *Store) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) List(ctx context.Context) ([]ScheduledJob, error) {
	var jobs []ScheduledJob
	if err := r.db.SelectContext(ctx, &jobs, `SELECT * FROM scheduled_jobs ORDER BY job_name`); err != nil {
		return nil, fmt.Errorf("list scheduled jobs: %w", err)
	}
	return jobs, nil
}

func (r *ScheduleRepository) ListEnabled(ctx context.Context) ([]ScheduledJob, error) {
	var jobs []ScheduledJob
	query := `SELECT * FROM scheduled_jobs WHERE is_enabled = true`
	if err := r.db.SelectContext(ctx, &jobs, query); err != nil {
		return nil, fmt.Errorf("list enabled scheduled jobs: %w", err)
	}
	return jobs, nil
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id uuid.UUID) (*ScheduledJob, error) {
	var job ScheduledJob
	if err := r.db.GetContext(ctx, &job, `SELECT * FROM scheduled_jobs WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get scheduled job: %w", err)
	}
	return &job, nil
}

// Seed inserts a default schedule entry if one doesn't already exist for the
// given job name, used at startup to populate the defaults from spec.md §9.
func (r *ScheduleRepository) Seed(ctx context.Context, jobName, cronExpr string) error {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM scheduled_jobs WHERE job_name = $1)`, jobName)
	if err != nil {
		return fmt.Errorf("check existing schedule: %w", err)
	}
	if exists {
		return nil
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (id, job_name, cron_expression, is_enabled, last_run, next_run)
		VALUES ($1, $2, $3, false, NULL, NULL)`, uuid.New(), jobName, cronExpr)
	if err != nil {
		return fmt.Errorf("seed scheduled job: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) UpdateCron(ctx context.Context, id uuid.UUID, cronExpr string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE scheduled_jobs SET cron_expression = $1 WHERE id = $2`, cronExpr, id)
	if err != nil {
		return fmt.Errorf("update scheduled job cron: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE scheduled_jobs SET is_enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("set scheduled job enabled: %w", err)
	}
	return nil
}

// RecordRun updates last/next run timestamps after a cron-driven dispatch.
func (r *ScheduleRepository) RecordRun(ctx context.Context, id uuid.UUID, lastRun, nextRun time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE scheduled_jobs SET last_run = $1, next_run = $2 WHERE id = $3`,
		lastRun, nextRun, id)
	if err != nil {
		return fmt.Errorf("record scheduled job run: %w", err)
	}
	return nil
}
