package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/maukemana/library-indexer/internal/apperr"
	"github.com/maukemana/library-indexer/internal/catalog"
)

// TagService implements tag and category CRUD plus the merge operation
// (spec.md §6): move all links from a source tag to a target, delete the
// source, and have the target inherit the source's category if it has none.
type TagService struct {
	store   *catalog.Store
	tagRepo *catalog.TagRepository
}

func NewTagService(store *catalog.Store) *TagService {
	return &TagService{store: store, tagRepo: catalog.NewTagRepository(store)}
}

func (s *TagService) List(ctx context.Context) ([]catalog.Tag, error) {
	return s.tagRepo.List(ctx)
}

func (s *TagService) ListCategories(ctx context.Context) ([]catalog.TagCategory, error) {
	return s.tagRepo.ListCategories(ctx)
}

// Rename changes a tag's display name, trimming the new name and
// converting it to lowercase.
func (s *TagService) Rename(ctx context.Context, id uuid.UUID, newName string) error {
	newName = strings.ToLower(strings.TrimSpace(newName))
	if newName == "" {
		return apperr.InvalidInput("TagService.Rename", fmt.Errorf("tag name cannot be empty"))
	}
	_, err := s.store.ExecContext(ctx, `UPDATE tags SET name = $1 WHERE id = $2`, newName, id)
	if err != nil {
		return apperr.TransientStorage("TagService.Rename", err)
	}
	return nil
}

// SetCategory assigns or clears (categoryID == nil) a tag's category.
func (s *TagService) SetCategory(ctx context.Context, id uuid.UUID, categoryID *uuid.UUID) error {
	_, err := s.store.ExecContext(ctx, `UPDATE tags SET tag_category_id = $1 WHERE id = $2`, categoryID, id)
	if err != nil {
		return apperr.TransientStorage("TagService.SetCategory", err)
	}
	return nil
}

// Delete removes a tag and every post_tags link referencing it.
func (s *TagService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.WithSession(ctx, func(sess catalog.Session) error {
		if _, err := sess.ExecContext(ctx, `DELETE FROM post_tags WHERE tag_id = $1`, id); err != nil {
			return fmt.Errorf("delete post tag links: %w", err)
		}
		if _, err := sess.ExecContext(ctx, `DELETE FROM tags WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete tag: %w", err)
		}
		return nil
	})
}

// CreateCategory creates a new tag category.
func (s *TagService) CreateCategory(ctx context.Context, name, color string, order int) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.store.ExecContext(ctx,
		`INSERT INTO tag_categories (id, name, color, order_index) VALUES ($1, $2, $3, $4)`,
		id, name, color, order)
	if err != nil {
		return uuid.Nil, apperr.TransientStorage("TagService.CreateCategory", err)
	}
	return id, nil
}

// Merge moves every post_tags link from source to target, deletes source,
// and has target inherit source's category when target has none set.
func (s *TagService) Merge(ctx context.Context, sourceID, targetID uuid.UUID) error {
	if sourceID == targetID {
		return apperr.InvalidInput("TagService.Merge", fmt.Errorf("cannot merge a tag into itself"))
	}

	return s.store.WithSession(ctx, func(sess catalog.Session) error {
		var source, target catalog.Tag
		if err := sess.GetContext(ctx, &source, `SELECT * FROM tags WHERE id = $1`, sourceID); err != nil {
			return apperr.NotFound("TagService.Merge", fmt.Errorf("source tag %s not found", sourceID))
		}
		if err := sess.GetContext(ctx, &target, `SELECT * FROM tags WHERE id = $1`, targetID); err != nil {
			return apperr.NotFound("TagService.Merge", fmt.Errorf("target tag %s not found", targetID))
		}

		// Re-point links, skipping any that would violate the unique
		// (post_id, tag_id, source) constraint because the post already
		// carries the target tag from the same source.
		var links []catalog.PostTag
		if err := sess.SelectContext(ctx, &links, `SELECT * FROM post_tags WHERE tag_id = $1`, sourceID); err != nil {
			return fmt.Errorf("list source tag links: %w", err)
		}
		for _, link := range links {
			_, err := sess.ExecContext(ctx,
				`INSERT INTO post_tags (post_id, tag_id, source) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				link.PostID, targetID, link.Source)
			if err != nil {
				return fmt.Errorf("repoint tag link: %w", err)
			}
		}
		if _, err := sess.ExecContext(ctx, `DELETE FROM post_tags WHERE tag_id = $1`, sourceID); err != nil {
			return fmt.Errorf("delete source tag links: %w", err)
		}

		if target.TagCategoryID == nil && source.TagCategoryID != nil {
			if _, err := sess.ExecContext(ctx, `UPDATE tags SET tag_category_id = $1 WHERE id = $2`, source.TagCategoryID, targetID); err != nil {
				return fmt.Errorf("inherit source category: %w", err)
			}
		}

		var postCount int
		if err := sess.GetContext(ctx, &postCount, `SELECT COUNT(DISTINCT post_id) FROM post_tags WHERE tag_id = $1`, targetID); err != nil {
			return fmt.Errorf("recount target tag: %w", err)
		}
		if _, err := sess.ExecContext(ctx, `UPDATE tags SET post_count = $1 WHERE id = $2`, postCount, targetID); err != nil {
			return fmt.Errorf("update target tag post count: %w", err)
		}

		if _, err := sess.ExecContext(ctx, `DELETE FROM tags WHERE id = $1`, sourceID); err != nil {
			return fmt.Errorf("delete source tag: %w", err)
		}
		return nil
	})
}
