// Package services implements the query-and-write facades the external
// HTTP surface consumes (spec.md §6): post listing and detail, tag CRUD and
// merge, library CRUD, and duplicate-group resolution.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/maukemana/library-indexer/internal/apperr"
	"github.com/maukemana/library-indexer/internal/catalog"
	"github.com/maukemana/library-indexer/internal/queryparser"
)

// PostListResult is a single page of the post list, plus the total count
// for paging UI.
type PostListResult struct {
	Posts []catalog.Post
	Total int
}

// PostService answers the post-list and post-detail operations.
type PostService struct {
	store *catalog.Store
}

func NewPostService(store *catalog.Store) *PostService {
	return &PostService{store: store}
}

// List resolves a query string against the catalog with paging and sorting.
func (s *PostService) List(ctx context.Context, rawQuery string, page, pageSize int) (PostListResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	q := queryparser.Parse(rawQuery)
	where, args := s.buildWhere(q)
	orderBy := s.buildOrderBy(q.Sort)

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(DISTINCT p.id) FROM posts p %s`, where)
	if err := s.store.GetContext(ctx, &total, countQuery, args...); err != nil {
		return PostListResult{}, fmt.Errorf("count posts: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	listQuery := fmt.Sprintf(`
		SELECT DISTINCT p.* FROM posts p
		%s
		%s
		LIMIT $%d OFFSET $%d`, where, orderBy, len(args)-1, len(args))

	var posts []catalog.Post
	if err := s.store.SelectContext(ctx, &posts, listQuery, args...); err != nil {
		return PostListResult{}, fmt.Errorf("list posts: %w", err)
	}

	return PostListResult{Posts: posts, Total: total}, nil
}

// Detail returns a single post by id.
func (s *PostService) Detail(ctx context.Context, id uuid.UUID) (*catalog.Post, error) {
	postRepo := catalog.NewPostRepository(s.store)
	post, err := postRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	if post == nil {
		return nil, apperr.NotFound("PostService.Detail", fmt.Errorf("post %s not found", id))
	}
	return post, nil
}

// AdjacentResult holds a previous/next post id pair within a query's order.
type AdjacentResult struct {
	PreviousID *uuid.UUID
	NextID     *uuid.UUID
}

// Adjacent returns the previous and next post ids around postID within the
// ordering a given query string would produce, for gallery navigation.
func (s *PostService) Adjacent(ctx context.Context, rawQuery string, postID uuid.UUID) (AdjacentResult, error) {
	q := queryparser.Parse(rawQuery)
	where, args := s.buildWhere(q)
	orderBy := s.buildOrderBy(q.Sort)

	query := fmt.Sprintf(`SELECT DISTINCT p.id FROM posts p %s %s`, where, orderBy)
	var ids []uuid.UUID
	if err := s.store.SelectContext(ctx, &ids, query, args...); err != nil {
		return AdjacentResult{}, fmt.Errorf("list post ids for navigation: %w", err)
	}

	for i, id := range ids {
		if id == postID {
			var result AdjacentResult
			if i > 0 {
				result.PreviousID = &ids[i-1]
			}
			if i < len(ids)-1 {
				result.NextID = &ids[i+1]
			}
			return result, nil
		}
	}
	return AdjacentResult{}, nil
}

func (s *PostService) buildWhere(q queryparser.Query) (string, []any) {
	var clauses []string
	var args []any

	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	for _, tag := range q.Included {
		add(`EXISTS (SELECT 1 FROM post_tags pt JOIN tags t ON t.id = pt.tag_id WHERE pt.post_id = p.id AND t.name = $%d)`, tag)
	}
	for _, tag := range q.Excluded {
		add(`NOT EXISTS (SELECT 1 FROM post_tags pt JOIN tags t ON t.id = pt.tag_id WHERE pt.post_id = p.id AND t.name = $%d)`, tag)
	}

	if len(q.IncludedTypes) > 0 {
		clauses = append(clauses, s.typeClause(q.IncludedTypes, true))
	}
	if len(q.ExcludedTypes) > 0 {
		clauses = append(clauses, s.typeClause(q.ExcludedTypes, false))
	}

	if q.TagCount != nil {
		op := sqlCompareOp(q.TagCount.Op)
		add(fmt.Sprintf(`(SELECT COUNT(*) FROM post_tags pt WHERE pt.post_id = p.id) %s $%%d`, op), q.TagCount.Value)
	}

	if q.Favorite != nil {
		add(`p.is_favorite = $%d`, *q.Favorite)
	}

	for _, glob := range q.FilenameGlobs {
		add(`p.relative_path LIKE $%d`, globToLike(glob))
	}
	for _, glob := range q.ExcludedFilenameGlobs {
		add(`p.relative_path NOT LIKE $%d`, globToLike(glob))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (s *PostService) typeClause(types map[queryparser.MediaType]struct{}, include bool) string {
	var exts []string
	for t := range types {
		exts = append(exts, extensionsForType(t)...)
	}
	var likes []string
	for _, ext := range exts {
		likes = append(likes, fmt.Sprintf(`p.relative_path ILIKE '%%%s'`, ext))
	}
	joined := strings.Join(likes, " OR ")
	if include {
		return "(" + joined + ")"
	}
	return "NOT (" + joined + ")"
}

func extensionsForType(t queryparser.MediaType) []string {
	switch t {
	case queryparser.MediaTypeImage:
		return []string{".jpg", ".jpeg", ".png", ".webp", ".bmp", ".jxl", ".avif"}
	case queryparser.MediaTypeGIF:
		return []string{".gif"}
	case queryparser.MediaTypeVideo:
		return []string{".mp4", ".webm", ".mkv", ".mov", ".avi"}
	default:
		return nil
	}
}

func sqlCompareOp(op queryparser.CompareOp) string {
	switch op {
	case queryparser.OpEqual:
		return "="
	case queryparser.OpGreater:
		return ">"
	case queryparser.OpGreaterEqual:
		return ">="
	case queryparser.OpLess:
		return "<"
	case queryparser.OpLessEqual:
		return "<="
	default:
		return "="
	}
}

func globToLike(glob string) string {
	replacer := strings.NewReplacer("*", "%", "?", "_")
	return replacer.Replace(glob)
}

func (s *PostService) buildOrderBy(sort queryparser.Sort) string {
	column := sortColumn(sort.Field)
	direction := "DESC"
	if sort.Direction == queryparser.SortAsc {
		direction = "ASC"
	}
	return fmt.Sprintf("ORDER BY %s %s", column, direction)
}

func sortColumn(field queryparser.SortField) string {
	switch field {
	case queryparser.SortFileModifiedDate:
		return "p.file_modified_date"
	case queryparser.SortImportDate:
		return "p.import_date"
	case queryparser.SortTagCount:
		return "(SELECT COUNT(*) FROM post_tags pt WHERE pt.post_id = p.id)"
	case queryparser.SortWidth:
		return "p.width"
	case queryparser.SortHeight:
		return "p.height"
	case queryparser.SortSizeBytes:
		return "p.size_bytes"
	case queryparser.SortID:
		return "p.id"
	default:
		return "p.file_modified_date"
	}
}
