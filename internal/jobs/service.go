package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maukemana/library-indexer/internal/apperr"
	"github.com/maukemana/library-indexer/internal/catalog"
)

// runningInstance tracks one in-flight execution, keyed by JobKey to
// enforce "at most one instance per JobKey" (spec.md §5).
type runningInstance struct {
	jobID    uuid.UUID
	cancel   context.CancelFunc
	reporter *Reporter
}

// Service is the in-process job registry and state machine. It deliberately
// holds its running-instance map in memory rather than in an external
// queue: a single process owns job execution, matching spec.md §9's design
// note that the Job Service is not backed by a distributed broker.
type Service struct {
	store   *catalog.Store
	jobRepo *catalog.JobRepository

	progressInterval time.Duration

	mu       sync.Mutex
	registry map[string]Job
	running  map[string]*runningInstance

	cleanupWG sync.WaitGroup
}

func NewService(store *catalog.Store, progressInterval time.Duration) *Service {
	return &Service{
		store:             store,
		jobRepo:           catalog.NewJobRepository(store),
		progressInterval:  progressInterval,
		registry:          make(map[string]Job),
		running:           make(map[string]*runningInstance),
	}
}

// Register adds a job to the registry at process start.
func (s *Service) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[job.Key()] = job
}

// Jobs returns every registered job, for the job-list endpoint.
func (s *Service) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.registry))
	for _, j := range s.registry {
		out = append(out, j)
	}
	return out
}

// StartJob launches a job asynchronously and returns its execution id.
func (s *Service) StartJob(ctx context.Context, jobKey string, mode Mode) (uuid.UUID, error) {
	s.mu.Lock()
	job, ok := s.registry[jobKey]
	if !ok {
		s.mu.Unlock()
		return uuid.Nil, apperr.NotFound("StartJob", fmt.Errorf("unknown job key %q", jobKey))
	}
	if _, alreadyRunning := s.running[jobKey]; alreadyRunning {
		s.mu.Unlock()
		return uuid.Nil, apperr.Conflict("StartJob", fmt.Errorf("job %q already running", jobKey))
	}
	if mode == ModeAll && !job.SupportsAllMode() {
		s.mu.Unlock()
		return uuid.Nil, apperr.InvalidInput("StartJob", fmt.Errorf("job %q does not support mode=all", jobKey))
	}

	jobID := uuid.New()
	runCtx, cancel := context.WithCancel(context.Background())

	exec := catalog.JobExecution{
		ID:                  jobID,
		JobKey:              jobKey,
		JobName:             job.Name(),
		Status:              catalog.JobStatusRunning,
		StartTime:           time.Now().UTC(),
		ActivityText:        "Starting...",
		ResultSchemaVersion: 1,
	}

	reporter := newReporter(s.progressInterval, func(snap ReporterSnapshot) {
		s.onReporterPublish(jobID, snap)
	})

	s.running[jobKey] = &runningInstance{jobID: jobID, cancel: cancel, reporter: reporter}
	s.mu.Unlock()

	if err := s.jobRepo.InsertExecution(ctx, exec); err != nil {
		s.mu.Lock()
		delete(s.running, jobKey)
		s.mu.Unlock()
		cancel()
		return uuid.Nil, apperr.TransientStorage("StartJob", err)
	}

	go s.runJob(runCtx, jobKey, jobID, job, mode, reporter)

	return jobID, nil
}

func (s *Service) runJob(ctx context.Context, jobKey string, jobID uuid.UUID, job Job, mode Mode, reporter *Reporter) {
	persistDone := make(chan struct{})
	go s.persistenceLoop(ctx, jobID, reporter, persistDone)

	err := job.Execute(ctx, mode, reporter)

	close(persistDone)

	status := catalog.JobStatusCompleted
	var errMsg *string
	finalText := reporter.finalText
	activityText := reporter.activityText

	switch {
	case err == nil:
		if activityText == "" {
			activityText = "Completed"
		}
		if finalText == "" {
			finalText = "Completed successfully."
		}
	case apperr.IsCancelled(err):
		status = catalog.JobStatusCancelled
		finalText = "Cancelled."
	default:
		status = catalog.JobStatusFailed
		msg := err.Error()
		errMsg = &msg
		finalText = msg
	}

	reporter.mu.Lock()
	reporter.activityText = activityText
	reporter.finalText = finalText
	snapshot := ReporterSnapshot{
		ActivityText: activityText,
		FinalText:    finalText,
		Current:      reporter.current,
		Total:        reporter.total,
		HasProgress:  reporter.hasProgress,
		ResultSchema: reporter.resultSchema,
		ResultJSON:   reporter.resultJSON,
	}
	reporter.mu.Unlock()

	now := time.Now().UTC()
	exec := catalog.JobExecution{
		ID:                  jobID,
		JobKey:              jobKey,
		JobName:             job.Name(),
		Status:              status,
		EndTime:             &now,
		ErrorMessage:        errMsg,
		ActivityText:        snapshot.ActivityText,
		FinalText:            snapshot.FinalText,
		ProgressCurrent:     snapshot.Current,
		ProgressTotal:       snapshot.Total,
		ResultSchemaVersion: snapshot.ResultSchema,
		ResultJSON:          snapshot.ResultJSON,
	}
	if err := s.jobRepo.UpsertExecution(context.Background(), exec); err != nil {
		slog.Error("jobs: final execution write failed", "job_key", jobKey, "job_id", jobID, "error", err)
	}

	// Cleanup: the key and its in-memory instance are removed immediately so
	// the next run may start. No in-memory record of the finished run is
	// kept (the goroutine below only sleeps for 30s); its terminal state is
	// available from the JobExecution row written above.
	s.mu.Lock()
	delete(s.running, jobKey)
	s.mu.Unlock()

	s.cleanupWG.Add(1)
	go func() {
		defer s.cleanupWG.Done()
		time.Sleep(30 * time.Second)
	}()
}

func (s *Service) persistenceLoop(ctx context.Context, jobID uuid.UUID, reporter *Reporter, done <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			reporter.Flush()
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) onReporterPublish(jobID uuid.UUID, snap ReporterSnapshot) {
	exec, err := s.jobRepo.GetExecution(context.Background(), jobID)
	if err != nil || exec == nil {
		return
	}
	exec.ActivityText = snap.ActivityText
	exec.FinalText = snap.FinalText
	exec.ProgressCurrent = snap.Current
	exec.ProgressTotal = snap.Total
	exec.ResultSchemaVersion = snap.ResultSchema
	exec.ResultJSON = snap.ResultJSON
	if err := s.jobRepo.UpsertExecution(context.Background(), *exec); err != nil {
		slog.Warn("jobs: progress write failed", "job_id", jobID, "error", err)
	}
}

// CancelJob signals the cancellation source for a running job; the job
// observes it at its next safe point.
func (s *Service) CancelJob(jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.running {
		if inst.jobID == jobID {
			inst.cancel()
			return nil
		}
	}
	return apperr.NotFound("CancelJob", fmt.Errorf("job %s is not running", jobID))
}

// History returns a page of past executions ordered by start time descending.
func (s *Service) History(ctx context.Context, limit int) ([]catalog.JobExecution, error) {
	return s.jobRepo.ListRecentHistory(ctx, limit)
}

// RecoverFromRestart marks any execution left in Running state as Failed,
// since the process that was running it no longer exists.
func (s *Service) RecoverFromRestart(ctx context.Context) error {
	stale, err := s.jobRepo.ListRunning(ctx)
	if err != nil {
		return fmt.Errorf("list stale running executions: %w", err)
	}
	for _, exec := range stale {
		now := time.Now().UTC()
		exec.Status = catalog.JobStatusFailed
		exec.EndTime = &now
		msg := "process restarted while job was running"
		exec.ErrorMessage = &msg
		exec.FinalText = msg
		if err := s.jobRepo.UpsertExecution(ctx, exec); err != nil {
			slog.Error("jobs: failed to mark stale execution failed", "job_id", exec.ID, "error", err)
		}
	}
	return nil
}
