package builtin

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/maukemana/library-indexer/internal/catalog"
	"github.com/maukemana/library-indexer/internal/jobs"
)

// ThumbnailCleanupJob removes thumbnail files on disk that no longer
// correspond to any indexed post, e.g. after a post is deleted or a
// library is removed.
type ThumbnailCleanupJob struct {
	store     *catalog.Store
	thumbRoot string
}

func NewThumbnailCleanupJob(store *catalog.Store, thumbRoot string) *ThumbnailCleanupJob {
	return &ThumbnailCleanupJob{store: store, thumbRoot: thumbRoot}
}

func (j *ThumbnailCleanupJob) Key() string           { return "cleanup-orphan-thumbnails" }
func (j *ThumbnailCleanupJob) Name() string          { return "Clean Up Orphan Thumbnails" }
func (j *ThumbnailCleanupJob) Description() string {
	return "Removes thumbnail files that no longer correspond to an indexed post."
}
func (j *ThumbnailCleanupJob) DisplayOrder() int     { return 40 }
func (j *ThumbnailCleanupJob) SupportsAllMode() bool { return false }

func (j *ThumbnailCleanupJob) Execute(ctx context.Context, mode jobs.Mode, reporter *jobs.Reporter) error {
	reporter.SetActivity("Loading content hashes...")

	known, err := j.knownThumbnailPaths(ctx)
	if err != nil {
		return fmt.Errorf("load known content hashes: %w", err)
	}

	reporter.SetActivity("Scanning thumbnail directory...")

	var removed, scanned int
	walkErr := filepath.WalkDir(j.thumbRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".jpg") {
			return nil
		}
		scanned++
		if _, ok := known[path]; !ok {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		if scanned%200 == 0 {
			reporter.SetActivity(fmt.Sprintf("Scanned %d thumbnails, removed %d orphans...", scanned, removed))
		}
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		return fmt.Errorf("walk thumbnail directory: %w", walkErr)
	}

	j.removeEmptyDirs(j.thumbRoot)

	reporter.SetFinalText(fmt.Sprintf("Removed %d orphan thumbnails (scanned %d).", removed, scanned))
	return nil
}

// knownThumbnailPaths builds the set of thumbnail paths that should exist
// on disk given the current catalog, keyed by the same sharded scheme
// ThumbnailJob writes to.
func (j *ThumbnailCleanupJob) knownThumbnailPaths(ctx context.Context) (map[string]struct{}, error) {
	type row struct {
		LibraryID   string `db:"library_id"`
		ContentHash string `db:"content_hash"`
	}
	var rows []row
	if err := j.store.SelectContext(ctx, &rows, `SELECT library_id::text AS library_id, content_hash FROM posts`); err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		known[ThumbnailPath(j.thumbRoot, r.LibraryID, r.ContentHash)] = struct{}{}
	}
	return known, nil
}

// removeEmptyDirs best-effort prunes directories left empty after thumbnail
// removal, walking bottom-up. Failures are ignored; an empty shard directory
// left behind is harmless.
func (j *ThumbnailCleanupJob) removeEmptyDirs(root string) {
	var dirs []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == root {
			return nil
		}
		dirs = append(dirs, path)
		return nil
	})
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i])
	}
}
