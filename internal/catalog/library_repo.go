package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LibraryRepository handles library, ignored-path, and excluded-file
// persistence.
type LibraryRepository struct {
	db *Store
}

func NewLibraryRepository(db *Store) *LibraryRepository {
	return &LibraryRepository{db: db}
}

func (r *LibraryRepository) Create(ctx context.Context, lib *Library) error {
	query := `
		INSERT INTO libraries (id, name, root_path, scan_interval_hours, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, lib.ID, lib.Name, lib.RootPath, lib.ScanIntervalHours, lib.CreatedAt)
	if err != nil {
		return fmt.Errorf("create library: %w", err)
	}
	return nil
}

func (r *LibraryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Library, error) {
	var lib Library
	query := `SELECT id, name, root_path, scan_interval_hours, created_at FROM libraries WHERE id = $1`
	if err := r.db.GetContext(ctx, &lib, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get library: %w", err)
	}
	return &lib, nil
}

func (r *LibraryRepository) List(ctx context.Context) ([]Library, error) {
	var libs []Library
	query := `SELECT id, name, root_path, scan_interval_hours, created_at FROM libraries ORDER BY name`
	if err := r.db.SelectContext(ctx, &libs, query); err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	return libs, nil
}

func (r *LibraryRepository) Update(ctx context.Context, lib *Library) error {
	query := `UPDATE libraries SET name = $1, root_path = $2, scan_interval_hours = $3 WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, lib.Name, lib.RootPath, lib.ScanIntervalHours, lib.ID)
	if err != nil {
		return fmt.Errorf("update library: %w", err)
	}
	return nil
}

// Delete removes a library; cascading FKs take posts, links, sources, and
// duplicate-group entries with it (spec.md §3 ownership).
func (r *LibraryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM libraries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete library: %w", err)
	}
	return nil
}

// ListIgnoredPaths returns the normalized prefixes ignored for a library.
func (r *LibraryRepository) ListIgnoredPaths(ctx context.Context, libraryID uuid.UUID) ([]LibraryIgnoredPath, error) {
	var rows []LibraryIgnoredPath
	query := `SELECT id, library_id, relative_path_prefix, created_date FROM library_ignored_paths WHERE library_id = $1`
	if err := r.db.SelectContext(ctx, &rows, query, libraryID); err != nil {
		return nil, fmt.Errorf("list ignored paths: %w", err)
	}
	return rows, nil
}

// AddIgnoredPath inserts a prefix and deletes any existing posts that fall
// within it, per spec.md §3's LibraryIgnoredPath invariant. Returns the
// number of posts removed.
func (r *LibraryRepository) AddIgnoredPath(ctx context.Context, libraryID uuid.UUID, prefix string) (int, error) {
	var removed int
	err := r.db.WithSession(ctx, func(sess Session) error {
		id := uuid.New()
		_, err := sess.ExecContext(ctx, `
			INSERT INTO library_ignored_paths (id, library_id, relative_path_prefix, created_date)
			VALUES ($1, $2, $3, $4)`, id, libraryID, prefix, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("insert ignored path: %w", err)
		}

		res, err := sess.ExecContext(ctx, `
			DELETE FROM posts
			WHERE library_id = $1
			  AND (relative_path = $2 OR relative_path LIKE $2 || '/%')`, libraryID, prefix)
		if err != nil {
			return fmt.Errorf("delete posts under ignored prefix: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		removed = int(n)
		return nil
	})
	return removed, err
}

func (r *LibraryRepository) DeleteIgnoredPath(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM library_ignored_paths WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ignored path: %w", err)
	}
	return nil
}

// ListExcludedPaths returns the relative paths the scanner must skip
// unconditionally for a library.
func (r *LibraryRepository) ListExcludedPaths(ctx context.Context, libraryID uuid.UUID) ([]ExcludedFile, error) {
	var rows []ExcludedFile
	query := `SELECT id, library_id, relative_path, content_hash, excluded_date, reason FROM excluded_files WHERE library_id = $1`
	if err := r.db.SelectContext(ctx, &rows, query, libraryID); err != nil {
		return nil, fmt.Errorf("list excluded files: %w", err)
	}
	return rows, nil
}

// AddExcludedFile records a skip-unconditionally entry, unless one already
// exists for the same (library, relativePath).
func (r *LibraryRepository) AddExcludedFile(ctx context.Context, sess Session, libraryID uuid.UUID, relativePath, contentHash, reason string) error {
	var exists bool
	err := sess.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM excluded_files WHERE library_id = $1 AND relative_path = $2)`,
		libraryID, relativePath)
	if err != nil {
		return fmt.Errorf("check existing exclusion: %w", err)
	}
	if exists {
		return nil
	}

	_, err = sess.ExecContext(ctx, `
		INSERT INTO excluded_files (id, library_id, relative_path, content_hash, excluded_date, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), libraryID, relativePath, contentHash, time.Now().UTC(), reason)
	if err != nil {
		return fmt.Errorf("insert excluded file: %w", err)
	}
	return nil
}
