// Package scheduler dispatches registered jobs on a cron schedule
// (spec.md §4.10), seeding defaults at startup and polling the schedule
// table for due entries.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/maukemana/library-indexer/internal/apperr"
	"github.com/maukemana/library-indexer/internal/catalog"
	"github.com/maukemana/library-indexer/internal/jobs"
)

const pollInterval = 30 * time.Second

// defaultSchedule is one startup-seeded cron entry. All defaults are seeded
// disabled; an operator opts in explicitly.
type defaultSchedule struct {
	jobKey string
	cron   string
}

var defaultSchedules = []defaultSchedule{
	{jobKey: "scan-all-libraries", cron: "0 */6 * * *"},
	{jobKey: "generate-thumbnails", cron: "30 */6 * * *"},
	{jobKey: "find-duplicates", cron: "0 3 * * 0"},
}

// Scheduler polls enabled schedule entries and dispatches due jobs through
// the Job Service.
type Scheduler struct {
	scheduleRepo *catalog.ScheduleRepository
	jobService   *jobs.Service
	parser       cron.Parser
}

func New(store *catalog.Store, jobService *jobs.Service) *Scheduler {
	return &Scheduler{
		scheduleRepo: catalog.NewScheduleRepository(store),
		jobService:   jobService,
		parser:       cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// SeedDefaults inserts the built-in schedule entries if they don't already
// exist, leaving any operator-edited entry untouched.
func (s *Scheduler) SeedDefaults(ctx context.Context) error {
	for _, d := range defaultSchedules {
		if err := s.scheduleRepo.Seed(ctx, d.jobKey, d.cron); err != nil {
			return err
		}
	}
	return nil
}

// Run polls the schedule table every pollInterval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	entries, err := s.scheduleRepo.ListEnabled(ctx)
	if err != nil {
		slog.Error("scheduler: list enabled schedules failed", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, entry := range entries {
		if entry.NextRun != nil && entry.NextRun.After(now) {
			continue
		}

		schedule, err := s.parser.Parse(entry.CronExpression)
		if err != nil {
			slog.Error("scheduler: invalid cron expression", "job_name", entry.JobName, "cron", entry.CronExpression, "error", err)
			continue
		}

		s.dispatch(ctx, entry, schedule, now)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, entry catalog.ScheduledJob, schedule cron.Schedule, now time.Time) {
	_, err := s.jobService.StartJob(ctx, entry.JobName, jobs.ModeMissing)
	switch {
	case err == nil:
		next := schedule.Next(now)
		if err := s.scheduleRepo.RecordRun(ctx, entry.ID, now, next); err != nil {
			slog.Error("scheduler: record run failed", "job_name", entry.JobName, "error", err)
		}
	case apperr.Is(err, apperr.KindNotFound):
		slog.Warn("scheduler: disabling schedule for unknown job", "job_name", entry.JobName)
		if disableErr := s.scheduleRepo.SetEnabled(ctx, entry.ID, false); disableErr != nil {
			slog.Error("scheduler: failed to disable unknown-job schedule", "job_name", entry.JobName, "error", disableErr)
		}
	case apperr.Is(err, apperr.KindConflict):
		// Already running from a manual start or a previous tick that
		// hasn't completed; leave next_run untouched so the next poll
		// retries.
	default:
		slog.Error("scheduler: dispatch failed", "job_name", entry.JobName, "error", err)
	}
}

// CronPreviewResult is the outcome of previewing a cron expression.
type CronPreviewResult struct {
	Valid        bool        `json:"valid"`
	Error        string      `json:"error,omitempty"`
	Occurrences  []time.Time `json:"occurrences,omitempty"`
}

// PreviewCron returns up to count (clamped 1-10) upcoming UTC occurrences
// for a cron expression, or a validation error.
func PreviewCron(expr string, count int) CronPreviewResult {
	if count < 1 {
		count = 1
	}
	if count > 10 {
		count = 10
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return CronPreviewResult{Valid: false, Error: err.Error()}
	}

	occurrences := make([]time.Time, 0, count)
	next := time.Now().UTC()
	for i := 0; i < count; i++ {
		next = schedule.Next(next)
		occurrences = append(occurrences, next)
	}
	return CronPreviewResult{Valid: true, Occurrences: occurrences}
}
