package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/maukemana/library-indexer/internal/catalog"
	"github.com/maukemana/library-indexer/internal/jobs"
	"github.com/maukemana/library-indexer/internal/mediabackend"
)

const thumbnailMaxEdge = 512

// ThumbnailJob generates missing thumbnails, sharded two levels deep by
// content-hash hex prefix (spec.md §6).
type ThumbnailJob struct {
	store       *catalog.Store
	backend     *mediabackend.Backend
	thumbRoot   string
	parallelism int
}

func NewThumbnailJob(store *catalog.Store, backend *mediabackend.Backend, thumbRoot string, parallelism int) *ThumbnailJob {
	return &ThumbnailJob{store: store, backend: backend, thumbRoot: thumbRoot, parallelism: parallelism}
}

func (j *ThumbnailJob) Key() string           { return "generate-thumbnails" }
func (j *ThumbnailJob) Name() string          { return "Generate Thumbnails" }
func (j *ThumbnailJob) Description() string   { return "Generates missing post thumbnails." }
func (j *ThumbnailJob) DisplayOrder() int     { return 20 }
func (j *ThumbnailJob) SupportsAllMode() bool { return true }

// ThumbnailPath returns the sharded on-disk path for a post's thumbnail.
func ThumbnailPath(thumbRoot string, libraryID string, contentHash string) string {
	if len(contentHash) < 4 {
		contentHash = contentHash + "0000"
	}
	return filepath.Join(thumbRoot, libraryID, contentHash[0:2], contentHash[2:4], contentHash+".jpg")
}

func (j *ThumbnailJob) Execute(ctx context.Context, mode jobs.Mode, reporter *jobs.Reporter) error {
	reporter.SetActivity("Finding posts needing thumbnails...")

	var posts []postWithRoot
	baseQuery := `SELECT p.*, l.root_path AS library_root FROM posts p JOIN libraries l ON l.id = p.library_id`
	var err error
	if mode == jobs.ModeAll {
		err = j.store.SelectContext(ctx, &posts, baseQuery)
	} else {
		var needing []postWithRoot
		if err = j.store.SelectContext(ctx, &needing, baseQuery); err == nil {
			for _, p := range needing {
				dst := ThumbnailPath(j.thumbRoot, p.LibraryID.String(), p.ContentHash)
				if _, statErr := os.Stat(dst); os.IsNotExist(statErr) {
					posts = append(posts, p)
				}
			}
		}
	}
	if err != nil {
		return fmt.Errorf("load posts for thumbnail generation: %w", err)
	}

	total := len(posts)
	reporter.SetProgress(0, total)
	if total == 0 {
		reporter.SetFinalText("No thumbnails needed generation.")
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
			src := filepath.Join(post.LibraryRoot, post.RelativePath)
			dst := ThumbnailPath(j.thumbRoot, post.LibraryID.String(), post.ContentHash)
			if err := j.backend.GenerateThumbnail(src, dst, thumbnailMaxEdge); err != nil {
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
	reporter.SetFinalText(fmt.Sprintf("Generated %d thumbnails (%d failed).", total-failedCount, failedCount))
	return nil
}
