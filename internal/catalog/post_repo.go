package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostRepository handles post persistence, including the snapshot reads and
// batch writes the library sync processor drives (spec.md §4.7).
type PostRepository struct {
	db *Store
}

func NewPostRepository(db *Store) *PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) GetByID(ctx context.Context, id uuid.UUID) (*Post, error) {
	var p Post
	query := `SELECT * FROM posts WHERE id = $1`
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return &p, nil
}

// SnapshotByPath preloads every post under a library keyed by relative path,
// for phase 0 of the sync processor (spec.md §4.7 "Preload").
func (r *PostRepository) SnapshotByPath(ctx context.Context, libraryID uuid.UUID) (map[string]Post, error) {
	var posts []Post
	query := `SELECT * FROM posts WHERE library_id = $1`
	if err := r.db.SelectContext(ctx, &posts, query, libraryID); err != nil {
		return nil, fmt.Errorf("snapshot posts by path: %w", err)
	}
	out := make(map[string]Post, len(posts))
	for _, p := range posts {
		out[p.RelativePath] = p
	}
	return out, nil
}

// SnapshotByIdentity indexes the same library snapshot by device+inode/file-id,
// for resolving moves the path index alone can't (spec.md §4.3/§4.7).
func (r *PostRepository) SnapshotByIdentity(ctx context.Context, libraryID uuid.UUID) (map[string]Post, error) {
	var posts []Post
	query := `
		SELECT * FROM posts
		WHERE library_id = $1 AND file_identity_device IS NOT NULL AND file_identity_value IS NOT NULL`
	if err := r.db.SelectContext(ctx, &posts, query, libraryID); err != nil {
		return nil, fmt.Errorf("snapshot posts by identity: %w", err)
	}
	out := make(map[string]Post, len(posts))
	for _, p := range posts {
		out[identityKey(*p.FileIdentityDevice, *p.FileIdentityValue)] = p
	}
	return out, nil
}

func identityKey(device, value string) string {
	return device + "|" + value
}

// BatchInsert inserts new posts discovered during a scan within the caller's
// session.
func (r *PostRepository) BatchInsert(ctx context.Context, sess Session, posts []Post) error {
	if len(posts) == 0 {
		return nil
	}
	query := `
		INSERT INTO posts (
			id, library_id, relative_path, content_hash, size_bytes, file_modified_date,
			import_date, width, height, content_type, perceptual_hash, is_favorite,
			file_identity_device, file_identity_value
		) VALUES (
			:id, :library_id, :relative_path, :content_hash, :size_bytes, :file_modified_date,
			:import_date, :width, :height, :content_type, :perceptual_hash, :is_favorite,
			:file_identity_device, :file_identity_value
		)`
	if _, err := sess.NamedExecContext(ctx, query, posts); err != nil {
		return fmt.Errorf("batch insert posts: %w", err)
	}
	return nil
}

// UpdateMetadata applies a re-hash/re-probe result to an existing post
// (content changed at the same path).
func (r *PostRepository) UpdateMetadata(ctx context.Context, sess Session, p Post) error {
	query := `
		UPDATE posts SET
			content_hash = :content_hash,
			size_bytes = :size_bytes,
			file_modified_date = :file_modified_date,
			width = :width,
			height = :height,
			content_type = :content_type,
			perceptual_hash = :perceptual_hash,
			file_identity_device = :file_identity_device,
			file_identity_value = :file_identity_value
		WHERE id = :id`
	if _, err := sess.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("update post metadata: %w", err)
	}
	return nil
}

// Move rewrites a post's relative path after the file was renamed/moved but
// its identity and content matched an existing post (spec.md §4.7 phase 2).
func (r *PostRepository) Move(ctx context.Context, sess Session, id uuid.UUID, newRelativePath string, modifiedDate time.Time) error {
	query := `UPDATE posts SET relative_path = $1, file_modified_date = $2 WHERE id = $3`
	if _, err := sess.ExecContext(ctx, query, newRelativePath, modifiedDate, id); err != nil {
		return fmt.Errorf("move post: %w", err)
	}
	return nil
}

// BatchDelete removes posts whose backing files no longer exist (orphans),
// per spec.md §4.7 phase 5.
func (r *PostRepository) BatchDelete(ctx context.Context, sess Session, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM posts WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("build orphan delete query: %w", err)
	}
	query = sess.Rebind(query)
	if _, err := sess.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("batch delete posts: %w", err)
	}
	return nil
}

// SetPerceptualHash persists a computed perceptual hash for a post, used by
// the similarity job (spec.md §4.6/§4.9).
func (r *PostRepository) SetPerceptualHash(ctx context.Context, id uuid.UUID, hash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE posts SET perceptual_hash = $1 WHERE id = $2`, hash, id)
	if err != nil {
		return fmt.Errorf("set perceptual hash: %w", err)
	}
	return nil
}

// SetFavorite toggles the favorite flag for a post.
func (r *PostRepository) SetFavorite(ctx context.Context, id uuid.UUID, favorite bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE posts SET is_favorite = $1 WHERE id = $2`, favorite, id)
	if err != nil {
		return fmt.Errorf("set favorite: %w", err)
	}
	return nil
}

// ListByContentHash returns every post sharing an exact content hash, for
// exact-duplicate grouping (spec.md §4.8).
func (r *PostRepository) ListByContentHash(ctx context.Context, hash string) ([]Post, error) {
	var posts []Post
	query := `SELECT * FROM posts WHERE content_hash = $1 ORDER BY import_date`
	if err := r.db.SelectContext(ctx, &posts, query, hash); err != nil {
		return nil, fmt.Errorf("list posts by content hash: %w", err)
	}
	return posts, nil
}

// ListHashedForSimilarity returns every post carrying a perceptual hash, the
// candidate set the duplicate detector clusters (spec.md §4.8).
func (r *PostRepository) ListHashedForSimilarity(ctx context.Context) ([]Post, error) {
	var posts []Post
	query := `SELECT * FROM posts WHERE perceptual_hash IS NOT NULL`
	if err := r.db.SelectContext(ctx, &posts, query); err != nil {
		return nil, fmt.Errorf("list posts for similarity: %w", err)
	}
	return posts, nil
}

// ListMissingPerceptualHash returns posts still needing a perceptual hash
// computed, the work queue for the hashing job.
func (r *PostRepository) ListMissingPerceptualHash(ctx context.Context, limit int) ([]Post, error) {
	var posts []Post
	query := `SELECT * FROM posts WHERE perceptual_hash IS NULL ORDER BY import_date LIMIT $1`
	if err := r.db.SelectContext(ctx, &posts, query, limit); err != nil {
		return nil, fmt.Errorf("list posts missing perceptual hash: %w", err)
	}
	return posts, nil
}

// CountByLibrary returns the indexed post count for a library.
func (r *PostRepository) CountByLibrary(ctx context.Context, libraryID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM posts WHERE library_id = $1`
	if err := r.db.GetContext(ctx, &count, query, libraryID); err != nil {
		return 0, fmt.Errorf("count posts by library: %w", err)
	}
	return count, nil
}
