package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// TagRepository handles tag, tag-category, post-tag-link, and post-source
// persistence.
type TagRepository struct {
	db *Store
}

func NewTagRepository(db *Store) *TagRepository {
	return &TagRepository{db: db}
}

// GetOrCreate returns the tag with the given lowercase name, creating it
// within sess if it doesn't already exist (folder-name and auto-tagger
// ingestion both funnel through this, spec.md §4.1).
func (r *TagRepository) GetOrCreate(ctx context.Context, sess Session, name string) (Tag, error) {
	var tag Tag
	err := sess.GetContext(ctx, &tag, `SELECT * FROM tags WHERE name = $1`, name)
	if err == nil {
		return tag, nil
	}
	if err != sql.ErrNoRows {
		return Tag{}, fmt.Errorf("lookup tag: %w", err)
	}

	tag = Tag{ID: uuid.New(), Name: name}
	_, err = sess.ExecContext(ctx, `INSERT INTO tags (id, name, tag_category_id, post_count) VALUES ($1, $2, NULL, 0)`,
		tag.ID, tag.Name)
	if err != nil {
		// Lost the race against a concurrent inserter; re-read the winner.
		var existing Tag
		if getErr := sess.GetContext(ctx, &existing, `SELECT * FROM tags WHERE name = $1`, name); getErr == nil {
			return existing, nil
		}
		return Tag{}, fmt.Errorf("create tag: %w", err)
	}
	return tag, nil
}

func (r *TagRepository) List(ctx context.Context) ([]Tag, error) {
	var tags []Tag
	if err := r.db.SelectContext(ctx, &tags, `SELECT * FROM tags ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

func (r *TagRepository) ListCategories(ctx context.Context) ([]TagCategory, error) {
	var cats []TagCategory
	if err := r.db.SelectContext(ctx, &cats, `SELECT * FROM tag_categories ORDER BY order_index`); err != nil {
		return nil, fmt.Errorf("list tag categories: %w", err)
	}
	return cats, nil
}

// LinkTag attaches a tag to a post under the given source, idempotently.
func (r *TagRepository) LinkTag(ctx context.Context, sess Session, postID, tagID uuid.UUID, source PostTagSource) error {
	query := `
		INSERT INTO post_tags (post_id, tag_id, source)
		VALUES ($1, $2, $3)
		ON CONFLICT (post_id, tag_id, source) DO NOTHING`
	res, err := sess.ExecContext(ctx, query, postID, tagID, source)
	if err != nil {
		return fmt.Errorf("link tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := sess.ExecContext(ctx, `UPDATE tags SET post_count = post_count + 1 WHERE id = $1`, tagID); err != nil {
			return fmt.Errorf("increment tag post count: %w", err)
		}
	}
	return nil
}

// UnlinkTag removes one (post, tag, source) link.
func (r *TagRepository) UnlinkTag(ctx context.Context, sess Session, postID, tagID uuid.UUID, source PostTagSource) error {
	res, err := sess.ExecContext(ctx, `DELETE FROM post_tags WHERE post_id = $1 AND tag_id = $2 AND source = $3`,
		postID, tagID, source)
	if err != nil {
		return fmt.Errorf("unlink tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := sess.ExecContext(ctx, `UPDATE tags SET post_count = GREATEST(post_count - 1, 0) WHERE id = $1`, tagID); err != nil {
			return fmt.Errorf("decrement tag post count: %w", err)
		}
	}
	return nil
}

// ListTagsForPost returns every (tag, source) pair attached to a post.
func (r *TagRepository) ListTagsForPost(ctx context.Context, postID uuid.UUID) ([]PostTag, error) {
	var links []PostTag
	query := `SELECT post_id, tag_id, source FROM post_tags WHERE post_id = $1`
	if err := r.db.SelectContext(ctx, &links, query, postID); err != nil {
		return nil, fmt.Errorf("list tags for post: %w", err)
	}
	return links, nil
}

// CopyNonFolderLinks copies every manual/auto-tagger tag link from src to
// dst, used to carry tags forward across a duplicate-resolution merge
// (spec.md §4.8's "survivor inherits tags" rule). Folder-derived tags are
// excluded: the destination's own folder placement already determines those.
func (r *TagRepository) CopyNonFolderLinks(ctx context.Context, sess Session, srcPostID, dstPostID uuid.UUID) error {
	var links []PostTag
	query := `SELECT post_id, tag_id, source FROM post_tags WHERE post_id = $1 AND source != $2`
	if err := sess.SelectContext(ctx, &links, query, srcPostID, PostTagSourceFolder); err != nil {
		return fmt.Errorf("list inheritable tags: %w", err)
	}
	for _, l := range links {
		if err := r.LinkTag(ctx, sess, dstPostID, l.TagID, l.Source); err != nil {
			return fmt.Errorf("inherit tag %s: %w", l.TagID, err)
		}
	}
	return nil
}

// ListSourcesForPost returns a post's external source URLs in display order.
func (r *TagRepository) ListSourcesForPost(ctx context.Context, postID uuid.UUID) ([]PostSource, error) {
	var sources []PostSource
	query := `SELECT post_id, url, order_index FROM post_sources WHERE post_id = $1 ORDER BY order_index`
	if err := r.db.SelectContext(ctx, &sources, query, postID); err != nil {
		return nil, fmt.Errorf("list sources for post: %w", err)
	}
	return sources, nil
}

// AddSource appends an external URL to a post's source list.
func (r *TagRepository) AddSource(ctx context.Context, postID uuid.UUID, url string) error {
	var nextOrder int
	err := r.db.GetContext(ctx, &nextOrder, `SELECT COALESCE(MAX(order_index) + 1, 0) FROM post_sources WHERE post_id = $1`, postID)
	if err != nil {
		return fmt.Errorf("compute next source order: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO post_sources (post_id, url, order_index) VALUES ($1, $2, $3)`,
		postID, url, nextOrder)
	if err != nil {
		return fmt.Errorf("add source: %w", err)
	}
	return nil
}
