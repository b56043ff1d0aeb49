package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DuplicateRepository handles duplicate-group persistence (spec.md §4.8).
type DuplicateRepository struct {
	db *Store
}

func NewDuplicateRepository(db *Store) *DuplicateRepository {
	return &DuplicateRepository{db: db}
}

// CreateGroup inserts a new duplicate group and its member entries within a
// single session.
func (r *DuplicateRepository) CreateGroup(ctx context.Context, sess Session, groupType DuplicateGroupType, similarityPercent *int, postIDs []uuid.UUID) (uuid.UUID, error) {
	id := uuid.New()
	_, err := sess.ExecContext(ctx, `
		INSERT INTO duplicate_groups (id, group_type, similarity_percent, detected_date, is_resolved)
		VALUES ($1, $2, $3, $4, false)`,
		id, groupType, similarityPercent, time.Now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("create duplicate group: %w", err)
	}
	for _, postID := range postIDs {
		_, err = sess.ExecContext(ctx, `INSERT INTO duplicate_group_entries (group_id, post_id) VALUES ($1, $2)`, id, postID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("add duplicate group entry: %w", err)
		}
	}
	return id, nil
}

// ListUnresolved returns every unresolved group row, newest first; member
// post ids are loaded separately with ListEntries.
func (r *DuplicateRepository) ListUnresolved(ctx context.Context) ([]DuplicateGroup, error) {
	var groups []DuplicateGroup
	query := `SELECT * FROM duplicate_groups WHERE is_resolved = false ORDER BY detected_date DESC`
	if err := r.db.SelectContext(ctx, &groups, query); err != nil {
		return nil, fmt.Errorf("list unresolved duplicate groups: %w", err)
	}
	return groups, nil
}

func (r *DuplicateRepository) GetGroup(ctx context.Context, id uuid.UUID) (*DuplicateGroup, error) {
	var g DuplicateGroup
	if err := r.db.GetContext(ctx, &g, `SELECT * FROM duplicate_groups WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get duplicate group: %w", err)
	}
	return &g, nil
}

func (r *DuplicateRepository) ListEntries(ctx context.Context, groupID uuid.UUID) ([]DuplicateGroupEntry, error) {
	var entries []DuplicateGroupEntry
	query := `SELECT group_id, post_id FROM duplicate_group_entries WHERE group_id = $1`
	if err := r.db.SelectContext(ctx, &entries, query, groupID); err != nil {
		return nil, fmt.Errorf("list duplicate group entries: %w", err)
	}
	return entries, nil
}

// RemoveEntry drops a single post from a group, used by exclude-single and
// delete-single resolutions.
func (r *DuplicateRepository) RemoveEntry(ctx context.Context, sess Session, groupID, postID uuid.UUID) error {
	_, err := sess.ExecContext(ctx, `DELETE FROM duplicate_group_entries WHERE group_id = $1 AND post_id = $2`, groupID, postID)
	if err != nil {
		return fmt.Errorf("remove duplicate group entry: %w", err)
	}
	return nil
}

// CountEntries reports how many posts remain in a group, used to decide
// whether a group has collapsed below two members after a removal.
func (r *DuplicateRepository) CountEntries(ctx context.Context, sess Session, groupID uuid.UUID) (int, error) {
	var count int
	if err := sess.GetContext(ctx, &count, `SELECT COUNT(*) FROM duplicate_group_entries WHERE group_id = $1`, groupID); err != nil {
		return 0, fmt.Errorf("count duplicate group entries: %w", err)
	}
	return count, nil
}

// MarkResolved flags a group as resolved (dismissed or fully auto-resolved).
func (r *DuplicateRepository) MarkResolved(ctx context.Context, sess Session, groupID uuid.UUID) error {
	_, err := sess.ExecContext(ctx, `UPDATE duplicate_groups SET is_resolved = true WHERE id = $1`, groupID)
	if err != nil {
		return fmt.Errorf("mark duplicate group resolved: %w", err)
	}
	return nil
}

// DeleteGroup removes a group and its entries outright.
func (r *DuplicateRepository) DeleteGroup(ctx context.Context, sess Session, groupID uuid.UUID) error {
	if _, err := sess.ExecContext(ctx, `DELETE FROM duplicate_group_entries WHERE group_id = $1`, groupID); err != nil {
		return fmt.Errorf("delete duplicate group entries: %w", err)
	}
	if _, err := sess.ExecContext(ctx, `DELETE FROM duplicate_groups WHERE id = $1`, groupID); err != nil {
		return fmt.Errorf("delete duplicate group: %w", err)
	}
	return nil
}

// ReplaceExactGroups atomically drops every existing exact-type group and
// inserts freshly computed ones, matching the spec's "recomputed from
// scratch each run" contract for exact-hash grouping (spec.md §4.8).
func (r *DuplicateRepository) ReplaceExactGroups(ctx context.Context, clusters [][]uuid.UUID) error {
	return r.db.WithSession(ctx, func(sess Session) error {
		if _, err := sess.ExecContext(ctx, `
			DELETE FROM duplicate_group_entries
			WHERE group_id IN (SELECT id FROM duplicate_groups WHERE group_type = $1 AND is_resolved = false)`,
			DuplicateGroupExact); err != nil {
			return fmt.Errorf("clear exact duplicate entries: %w", err)
		}
		if _, err := sess.ExecContext(ctx, `DELETE FROM duplicate_groups WHERE group_type = $1 AND is_resolved = false`,
			DuplicateGroupExact); err != nil {
			return fmt.Errorf("clear exact duplicate groups: %w", err)
		}
		exactSimilarity := 100
		for _, cluster := range clusters {
			if len(cluster) < 2 {
				continue
			}
			if _, err := r.CreateGroup(ctx, sess, DuplicateGroupExact, &exactSimilarity, cluster); err != nil {
				return err
			}
		}
		return nil
	})
}
