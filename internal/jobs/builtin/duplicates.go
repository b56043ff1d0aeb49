package builtin

import (
	"context"
	"fmt"

	"github.com/maukemana/library-indexer/internal/duplicate"
	"github.com/maukemana/library-indexer/internal/jobs"
)

// DuplicateDetectionJob runs both duplicate-detection passes against the
// full catalog and records the resulting groups.
type DuplicateDetectionJob struct {
	detector *duplicate.Detector
}

func NewDuplicateDetectionJob(detector *duplicate.Detector) *DuplicateDetectionJob {
	return &DuplicateDetectionJob{detector: detector}
}

func (j *DuplicateDetectionJob) Key() string           { return "find-duplicates" }
func (j *DuplicateDetectionJob) Name() string          { return "Find Duplicates" }
func (j *DuplicateDetectionJob) Description() string {
	return "Finds exact and visually similar duplicate posts across the catalog."
}
func (j *DuplicateDetectionJob) DisplayOrder() int     { return 50 }
func (j *DuplicateDetectionJob) SupportsAllMode() bool { return false }

func (j *DuplicateDetectionJob) Execute(ctx context.Context, mode jobs.Mode, reporter *jobs.Reporter) error {
	reporter.SetActivity("Finding exact duplicates...")
	if err := j.detector.RunExactPass(ctx); err != nil {
		return fmt.Errorf("exact duplicate pass: %w", err)
	}

	reporter.SetActivity("Finding visually similar duplicates...")
	if err := j.detector.RunPerceptualPass(ctx); err != nil {
		return fmt.Errorf("perceptual duplicate pass: %w", err)
	}

	reporter.SetFinalText("Duplicate detection complete.")
	return nil
}
