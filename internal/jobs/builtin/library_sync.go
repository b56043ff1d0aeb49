package builtin

import (
	"context"
	"fmt"

	"github.com/maukemana/library-indexer/internal/catalog"
	"github.com/maukemana/library-indexer/internal/jobs"
	"github.com/maukemana/library-indexer/internal/librarysync"
)

// LibrarySyncJob reconciles every configured library's on-disk state
// against the catalog. mode=all is not supported: a sync always walks the
// filesystem in full, so there is no smaller "missing only" variant.
type LibrarySyncJob struct {
	store       *catalog.Store
	libraryRepo *catalog.LibraryRepository
	processor   *librarysync.Processor
}

func NewLibrarySyncJob(store *catalog.Store, processor *librarysync.Processor) *LibrarySyncJob {
	return &LibrarySyncJob{
		store:       store,
		libraryRepo: catalog.NewLibraryRepository(store),
		processor:   processor,
	}
}

func (j *LibrarySyncJob) Key() string           { return "scan-all-libraries" }
func (j *LibrarySyncJob) Name() string          { return "Scan All Libraries" }
func (j *LibrarySyncJob) Description() string {
	return "Reconciles every library's on-disk files against the catalog."
}
func (j *LibrarySyncJob) DisplayOrder() int     { return 0 }
func (j *LibrarySyncJob) SupportsAllMode() bool { return false }

func (j *LibrarySyncJob) Execute(ctx context.Context, mode jobs.Mode, reporter *jobs.Reporter) error {
	libraries, err := j.libraryRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("list libraries: %w", err)
	}

	var totals librarysync.ScanResult
	for i, lib := range libraries {
		reporter.SetActivity(fmt.Sprintf("Scanning %s (%d/%d)...", lib.Name, i+1, len(libraries)))
		result, err := j.processor.ProcessDirectory(ctx, lib, lib.RootPath, reporter)
		if err != nil {
			return fmt.Errorf("scan library %s: %w", lib.Name, err)
		}
		totals.Scanned += result.Scanned
		totals.Added += result.Added
		totals.Updated += result.Updated
		totals.Moved += result.Moved
		totals.Orphaned += result.Orphaned
	}

	reporter.ClearProgress()
	reporter.SetFinalText(fmt.Sprintf(
		"Scanned %d libraries: %d files seen, %d added, %d updated, %d moved, %d removed.",
		len(libraries), totals.Scanned, totals.Added, totals.Updated, totals.Moved, totals.Orphaned))
	return nil
}
