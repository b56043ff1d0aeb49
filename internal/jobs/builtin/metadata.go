// Package builtin provides the engine's concrete registered jobs.
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

const metadataBatchSize = 50

// MetadataJob backfills width/height/contentType for posts missing them.
type MetadataJob struct {
	store       *catalog.Store
	postRepo    *catalog.PostRepository
	backend     *mediabackend.Backend
	parallelism int
}

func NewMetadataJob(store *catalog.Store, backend *mediabackend.Backend, parallelism int) *MetadataJob {
	return &MetadataJob{
		store:       store,
		postRepo:    catalog.NewPostRepository(store),
		backend:     backend,
		parallelism: parallelism,
	}
}

func (j *MetadataJob) Key() string             { return "extract-metadata" }
func (j *MetadataJob) Name() string            { return "Extract Metadata" }
func (j *MetadataJob) Description() string     { return "Probes width, height, and content type for posts missing them." }
func (j *MetadataJob) DisplayOrder() int       { return 10 }
func (j *MetadataJob) SupportsAllMode() bool   { return true }

type postWithRoot struct {
	catalog.Post
	LibraryRoot string `db:"library_root"`
}

func (j *MetadataJob) Execute(ctx context.Context, mode jobs.Mode, reporter *jobs.Reporter) error {
	reporter.SetActivity("Scanning for posts missing metadata...")

	var posts []postWithRoot
	baseQuery := `SELECT p.*, l.root_path AS library_root FROM posts p JOIN libraries l ON l.id = p.library_id`
	var err error
	if mode == jobs.ModeAll {
		err = j.store.SelectContext(ctx, &posts, baseQuery)
	} else {
		err = j.store.SelectContext(ctx, &posts, baseQuery+` WHERE p.width = 0 OR p.height = 0 LIMIT $1`, metadataBatchSize*20)
	}
	if err != nil {
		return fmt.Errorf("load posts for metadata extraction: %w", err)
	}

	total := len(posts)
	reporter.SetProgress(0, total)
	if total == 0 {
		reporter.SetFinalText("No posts needed metadata extraction.")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.parallelism)

	var processed atomic.Int64
	for i := range posts {
		post := posts[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			fullPath := filepath.Join(post.LibraryRoot, post.RelativePath)
			meta, err := j.backend.GetMetadata(fullPath)
			if err == nil {
				post.Width = meta.Width
				post.Height = meta.Height
				if meta.ContentType != "" {
					post.ContentType = meta.ContentType
				}
				_, _ = j.store.ExecContext(ctx, `UPDATE posts SET width = $1, height = $2, content_type = $3 WHERE id = $4`,
					post.Width, post.Height, post.ContentType, post.ID)
			}
			reporter.SetProgress(int(processed.Add(1)), total)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	reporter.SetFinalText(fmt.Sprintf("Extracted metadata for %d posts.", total))
	return nil
}
