// Package mediasource enumerates a directory tree for files the engine can
// index, per spec.md §4.2.
package mediasource

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// Item is one file yielded by Enumerate.
type Item struct {
	FullPath     string
	RelativePath string
	SizeBytes    int64
	ModifiedUTC  time.Time
}

// supportedExtensions is the fixed in-core table of media the engine indexes.
var supportedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".bmp":  {},
	".jxl":  {},
	".avif": {},
	".mp4":  {},
	".webm": {},
	".mkv":  {},
	".mov":  {},
	".avi":  {},
}

// IsSupported reports whether the extension of name belongs to the
// supported-media set.
func IsSupported(name string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Enumerate walks root on a producer goroutine and streams matching items
// on the returned channel. The sequence is finite and not restartable; the
// channel is closed when the walk completes or ctx is cancelled. Errors
// encountered while walking a particular entry are swallowed per spec.md
// §4.2 ("files that cannot be stat'ed are silently skipped"); a fatal error
// on the root itself is reported on errCh.
func Enumerate(ctx context.Context, root string) (<-chan Item, <-chan error) {
	items := make(chan Item)
	errs := make(chan error, 1)

	go func() {
		defer close(items)
		defer close(errs)

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				if path == root {
					return err
				}
				// Unreadable entry; skip it and keep walking the rest of the tree.
				if d != nil && d.IsDir() {
					return nil
				}
				return nil
			}
			if d.IsDir() {
				if isHiddenOrSystem(d.Name()) && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if isHiddenOrSystem(d.Name()) {
				return nil
			}
			if !IsSupported(d.Name()) {
				return nil
			}

			info, statErr := d.Info()
			if statErr != nil {
				return nil
			}

			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return nil
			}

			item := Item{
				FullPath:     path,
				RelativePath: filepath.ToSlash(rel),
				SizeBytes:    info.Size(),
				ModifiedUTC:  info.ModTime().UTC(),
			}

			select {
			case items <- item:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})

		if err != nil && err != context.Canceled && err != context.DeadlineExceeded {
			errs <- err
		}
	}()

	return items, errs
}

// Count walks root and returns the number of items Enumerate would yield.
// Used only for progress reporting; never authoritative (spec.md §4.2).
func Count(ctx context.Context, root string) (int, error) {
	count := 0
	items, errs := Enumerate(ctx, root)
	for range items {
		count++
	}
	if err := <-errs; err != nil {
		return count, err
	}
	return count, nil
}

// isHiddenOrSystem reports whether name carries a hidden/temporary
// convention the scanner must not enumerate.
func isHiddenOrSystem(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	if strings.HasPrefix(name, "~$") {
		return true
	}
	if strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, ".part") {
		return true
	}
	return false
}
