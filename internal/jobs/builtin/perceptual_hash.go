package builtin

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/maukemana/library-indexer/internal/catalog"
	"github.com/maukemana/library-indexer/internal/jobs"
	"github.com/maukemana/library-indexer/internal/mediabackend"
)

const perceptualHashBatchSize = 50

// PerceptualHashJob backfills the perceptual hash used for similarity
// clustering (spec.md §4.5). Video posts are skipped entirely; the backend
// does not support perceptual hashing for them.
type PerceptualHashJob struct {
	store       *catalog.Store
	backend     *mediabackend.Backend
	parallelism int
}

func NewPerceptualHashJob(store *catalog.Store, backend *mediabackend.Backend, parallelism int) *PerceptualHashJob {
	return &PerceptualHashJob{store: store, backend: backend, parallelism: parallelism}
}

func (j *PerceptualHashJob) Key() string           { return "compute-perceptual-hashes" }
func (j *PerceptualHashJob) Name() string          { return "Compute Perceptual Hashes" }
func (j *PerceptualHashJob) Description() string {
	return "Computes perceptual hashes for still-image posts, used for similarity clustering."
}
func (j *PerceptualHashJob) DisplayOrder() int     { return 30 }
func (j *PerceptualHashJob) SupportsAllMode() bool { return true }

func (j *PerceptualHashJob) Execute(ctx context.Context, mode jobs.Mode, reporter *jobs.Reporter) error {
	reporter.SetActivity("Finding posts missing a perceptual hash...")

	var posts []postWithRoot
	baseQuery := `SELECT p.*, l.root_path AS library_root FROM posts p JOIN libraries l ON l.id = p.library_id`
	var err error
	if mode == jobs.ModeAll {
		err = j.store.SelectContext(ctx, &posts, baseQuery)
	} else {
		err = j.store.SelectContext(ctx, &posts, baseQuery+` WHERE p.perceptual_hash IS NULL ORDER BY p.import_date LIMIT $1`, perceptualHashBatchSize*20)
	}
	if err != nil {
		return fmt.Errorf("load posts for perceptual hashing: %w", err)
	}

	// Video posts are never hashed; trim them from the work set up front so
	// progress totals reflect actual work.
	filtered := posts[:0]
	for _, p := range posts {
		if !mediabackend.IsVideo(p.RelativePath) {
			filtered = append(filtered, p)
		}
	}
	posts = filtered

	total := len(posts)
	reporter.SetProgress(0, total)
	if total == 0 {
		reporter.SetFinalText("No posts needed a perceptual hash.")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.parallelism)

	var processed, failed atomic.Int64
	for i := range posts {
		post := posts[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			fullPath := filepath.Join(post.LibraryRoot, post.RelativePath)
			hash, err := j.backend.ComputePerceptualHash(fullPath)
			if err == nil {
				_, _ = j.store.ExecContext(ctx, `UPDATE posts SET perceptual_hash = $1 WHERE id = $2`, hash, post.ID)
			} else {
				failed.Add(1)
			}
			reporter.SetProgress(int(processed.Add(1)), total)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	failedCount := int(failed.Load())
	reporter.SetFinalText(fmt.Sprintf("Hashed %d posts (%d failed).", total-failedCount, failedCount))
	return nil
}
