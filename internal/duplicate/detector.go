// Package duplicate implements the Duplicate Detector (spec.md §4.8): exact
// and perceptual clustering, same-folder survivor recommendation, and the
// resolution operations invoked by the HTTP layer.
package duplicate

import (
	"context"
	"fmt"
	"math"
	"os"
	"path"
	"sort"

	"github.com/google/uuid"

	"github.com/maukemana/library-indexer/internal/catalog"
	"github.com/maukemana/library-indexer/internal/mediabackend"
)

// Detector recomputes duplicate groups and performs resolution operations.
type Detector struct {
	store      *catalog.Store
	postRepo   *catalog.PostRepository
	tagRepo    *catalog.TagRepository
	dupRepo    *catalog.DuplicateRepository
	libRepo    *catalog.LibraryRepository
	threshold  int
}

func New(store *catalog.Store, hammingThreshold int) *Detector {
	return &Detector{
		store:     store,
		postRepo:  catalog.NewPostRepository(store),
		tagRepo:   catalog.NewTagRepository(store),
		dupRepo:   catalog.NewDuplicateRepository(store),
		libRepo:   catalog.NewLibraryRepository(store),
		threshold: hammingThreshold,
	}
}

// RunExactPass groups posts sharing an identical content hash into exact
// duplicate groups, replacing the previous unresolved exact-group set.
func (d *Detector) RunExactPass(ctx context.Context) error {
	var allPosts []catalog.Post
	query := `SELECT * FROM posts WHERE content_hash != ''`
	if err := d.store.SelectContext(ctx, &allPosts, query); err != nil {
		return fmt.Errorf("load posts for exact pass: %w", err)
	}

	excluded, err := d.excludedPathSet(ctx)
	if err != nil {
		return err
	}

	byHash := make(map[string][]uuid.UUID)
	for _, p := range allPosts {
		if _, ok := excluded[excludeKey(p.LibraryID, p.RelativePath)]; ok {
			continue
		}
		byHash[p.ContentHash] = append(byHash[p.ContentHash], p.ID)
	}

	var clusters [][]uuid.UUID
	for _, ids := range byHash {
		if len(ids) >= 2 {
			clusters = append(clusters, ids)
		}
	}

	return d.dupRepo.ReplaceExactGroups(ctx, clusters)
}

// RunPerceptualPass clusters posts whose perceptual hashes lie within the
// configured Hamming-distance threshold using a bucketed pairwise compare
// followed by union-find connected-components expansion.
func (d *Detector) RunPerceptualPass(ctx context.Context) error {
	posts, err := d.postRepo.ListHashedForSimilarity(ctx)
	if err != nil {
		return fmt.Errorf("load posts for perceptual pass: %w", err)
	}

	excluded, err := d.excludedPathSet(ctx)
	if err != nil {
		return err
	}

	candidates := posts[:0]
	for _, p := range posts {
		if _, ok := excluded[excludeKey(p.LibraryID, p.RelativePath)]; ok {
			continue
		}
		candidates = append(candidates, p)
	}

	buckets := make(map[string][]int)
	for i, p := range candidates {
		if p.PerceptualHash == nil {
			continue
		}
		prefix := bucketKey(*p.PerceptualHash)
		buckets[prefix] = append(buckets[prefix], i)
	}

	uf := newUnionFind(len(candidates))

	for _, idxs := range buckets {
		for i := 0; i < len(idxs); i++ {
			for j := i + 1; j < len(idxs); j++ {
				a, b := idxs[i], idxs[j]
				ha, hb := candidates[a].PerceptualHash, candidates[b].PerceptualHash
				if ha == nil || hb == nil {
					continue
				}
				dist, err := mediabackend.HammingDistance(*ha, *hb)
				if err != nil {
					continue
				}
				if dist <= d.threshold {
					uf.union(a, b)
				}
			}
		}
	}

	components := make(map[int][]int)
	for i := range candidates {
		root := uf.find(i)
		components[root] = append(components[root], i)
	}

	existingUnresolvedExact, err := d.unresolvedExactMemberSets(ctx)
	if err != nil {
		return err
	}

	return d.store.WithSession(ctx, func(sess catalog.Session) error {
		for _, members := range components {
			if len(members) < 2 {
				continue
			}
			ids := make([]uuid.UUID, len(members))
			for k, idx := range members {
				ids[k] = candidates[idx].ID
			}
			if wholyContainedInExactGroup(ids, existingUnresolvedExact) {
				continue
			}

			dist := maxDistanceAmong(candidates, members)
			similarity := int(math.Round(float64(256-dist) / 256 * 100))

			if d.groupAlreadyExists(ctx, ids) {
				continue
			}

			if _, err := d.dupRepo.CreateGroup(ctx, sess, catalog.DuplicateGroupPerceptual, &similarity, ids); err != nil {
				return fmt.Errorf("create perceptual duplicate group: %w", err)
			}
		}
		return nil
	})
}

func (d *Detector) groupAlreadyExists(ctx context.Context, ids []uuid.UUID) bool {
	// Always reports false: existing unresolved perceptual groups are not
	// consulted, so a re-run with no changes creates another group for a
	// component that already has one.
	return false
}

func maxDistanceAmong(posts []catalog.Post, members []int) int {
	max := 0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			ha, hb := posts[members[i]].PerceptualHash, posts[members[j]].PerceptualHash
			if ha == nil || hb == nil {
				continue
			}
			dist, err := mediabackend.HammingDistance(*ha, *hb)
			if err != nil {
				continue
			}
			if dist > max {
				max = dist
			}
		}
	}
	return max
}

func bucketKey(hash string) string {
	if len(hash) < 4 {
		return hash
	}
	return hash[:4] // first 16 bits
}

func (d *Detector) excludedPathSet(ctx context.Context) (map[string]struct{}, error) {
	var rows []catalog.ExcludedFile
	if err := d.store.SelectContext(ctx, &rows, `SELECT * FROM excluded_files`); err != nil {
		return nil, fmt.Errorf("load excluded files: %w", err)
	}
	set := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		set[excludeKey(r.LibraryID, r.RelativePath)] = struct{}{}
	}
	return set, nil
}

func excludeKey(libraryID uuid.UUID, relativePath string) string {
	return libraryID.String() + ":" + relativePath
}

func (d *Detector) unresolvedExactMemberSets(ctx context.Context) ([]map[uuid.UUID]struct{}, error) {
	groups, err := d.dupRepo.ListUnresolved(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unresolved groups: %w", err)
	}
	var sets []map[uuid.UUID]struct{}
	for _, g := range groups {
		if g.Type != catalog.DuplicateGroupExact {
			continue
		}
		entries, err := d.dupRepo.ListEntries(ctx, g.ID)
		if err != nil {
			continue
		}
		set := make(map[uuid.UUID]struct{}, len(entries))
		for _, e := range entries {
			set[e.PostID] = struct{}{}
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func wholyContainedInExactGroup(ids []uuid.UUID, exactSets []map[uuid.UUID]struct{}) bool {
	for _, set := range exactSets {
		allIn := true
		for _, id := range ids {
			if _, ok := set[id]; !ok {
				allIn = false
				break
			}
		}
		if allIn {
			return true
		}
	}
	return false
}

// FolderPartition is one (libraryId, parentFolder) partition of a duplicate
// group's entries with its recommended keeper; SameFolderView returns the
// partitions of size ≥ 2.
type FolderPartition struct {
	ParentFolder string
	Posts        []catalog.Post
	Recommended  uuid.UUID
}

func (d *Detector) SameFolderView(ctx context.Context, groupID uuid.UUID) ([]FolderPartition, error) {
	entries, err := d.dupRepo.ListEntries(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group entries: %w", err)
	}

	byFolder := make(map[string][]catalog.Post)
	for _, e := range entries {
		post, err := d.postRepo.GetByID(ctx, e.PostID)
		if err != nil || post == nil {
			continue
		}
		folder := path.Dir(post.RelativePath)
		key := post.LibraryID.String() + ":" + folder
		byFolder[key] = append(byFolder[key], *post)
	}

	var partitions []FolderPartition
	for key, posts := range byFolder {
		if len(posts) < 2 {
			continue
		}
		sort.Slice(posts, func(i, j int) bool {
			return qualityLess(posts[j], posts[i]) // descending
		})
		partitions = append(partitions, FolderPartition{
			ParentFolder: key,
			Posts:        posts,
			Recommended:  posts[0].ID,
		})
	}
	return partitions, nil
}

// qualityLess implements the "keep the post with the highest
// (width*height, sizeBytes, fileModifiedDate, id)" ordering rule.
func qualityLess(a, b catalog.Post) bool {
	areaA := int64(a.Width) * int64(a.Height)
	areaB := int64(b.Width) * int64(b.Height)
	if areaA != areaB {
		return areaA < areaB
	}
	if a.SizeBytes != b.SizeBytes {
		return a.SizeBytes < b.SizeBytes
	}
	if !a.FileModifiedDate.Equal(b.FileModifiedDate) {
		return a.FileModifiedDate.Before(b.FileModifiedDate)
	}
	return a.ID.String() < b.ID.String()
}

// Dismiss marks a group resolved without touching its posts.
func (d *Detector) Dismiss(ctx context.Context, groupID uuid.UUID) error {
	return d.store.WithSession(ctx, func(sess catalog.Session) error {
		return d.dupRepo.MarkResolved(ctx, sess, groupID)
	})
}

// AutoResolve picks the highest-quality survivor, merges tags/sources from
// the rest, excludes and deletes the rest, then marks the group resolved.
func (d *Detector) AutoResolve(ctx context.Context, groupID uuid.UUID) error {
	entries, err := d.dupRepo.ListEntries(ctx, groupID)
	if err != nil {
		return fmt.Errorf("list group entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	posts := make([]catalog.Post, 0, len(entries))
	for _, e := range entries {
		post, err := d.postRepo.GetByID(ctx, e.PostID)
		if err != nil || post == nil {
			continue
		}
		posts = append(posts, *post)
	}
	if len(posts) < 2 {
		return d.Dismiss(ctx, groupID)
	}

	sort.Slice(posts, func(i, j int) bool { return qualityLess(posts[j], posts[i]) })
	survivor := posts[0]

	return d.store.WithSession(ctx, func(sess catalog.Session) error {
		for _, loser := range posts[1:] {
			if err := d.tagRepo.CopyNonFolderLinks(ctx, sess, loser.ID, survivor.ID); err != nil {
				return fmt.Errorf("merge tags from %s: %w", loser.ID, err)
			}
			if err := mergeSourcesInto(ctx, sess, loser.ID, survivor.ID); err != nil {
				return fmt.Errorf("merge sources from %s: %w", loser.ID, err)
			}
			if err := d.libRepo.AddExcludedFile(ctx, sess, loser.LibraryID, loser.RelativePath, loser.ContentHash, "duplicate_resolution"); err != nil {
				return fmt.Errorf("exclude %s: %w", loser.RelativePath, err)
			}
			if err := d.postRepo.BatchDelete(ctx, sess, []uuid.UUID{loser.ID}); err != nil {
				return fmt.Errorf("delete loser post %s: %w", loser.ID, err)
			}
		}
		return d.dupRepo.MarkResolved(ctx, sess, groupID)
	})
}

func mergeSourcesInto(ctx context.Context, sess catalog.Session, srcPostID, dstPostID uuid.UUID) error {
	var sources []catalog.PostSource
	if err := sess.SelectContext(ctx, &sources, `SELECT post_id, url, order_index FROM post_sources WHERE post_id = $1`, srcPostID); err != nil {
		return fmt.Errorf("list sources to merge: %w", err)
	}
	for _, s := range sources {
		var exists bool
		if err := sess.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM post_sources WHERE post_id = $1 AND url = $2)`, dstPostID, s.URL); err != nil {
			return err
		}
		if exists {
			continue
		}
		var nextOrder int
		if err := sess.GetContext(ctx, &nextOrder, `SELECT COALESCE(MAX(order_index) + 1, 0) FROM post_sources WHERE post_id = $1`, dstPostID); err != nil {
			return err
		}
		if _, err := sess.ExecContext(ctx, `INSERT INTO post_sources (post_id, url, order_index) VALUES ($1, $2, $3)`, dstPostID, s.URL, nextOrder); err != nil {
			return err
		}
	}
	return nil
}

// ExcludeSingle removes one post from a group, excludes and deletes it; if
// the group falls below two members it is auto-resolved.
func (d *Detector) ExcludeSingle(ctx context.Context, groupID, postID uuid.UUID) error {
	post, err := d.postRepo.GetByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("load post: %w", err)
	}
	if post == nil {
		return nil
	}

	err = d.store.WithSession(ctx, func(sess catalog.Session) error {
		if err := d.dupRepo.RemoveEntry(ctx, sess, groupID, postID); err != nil {
			return err
		}
		if err := d.libRepo.AddExcludedFile(ctx, sess, post.LibraryID, post.RelativePath, post.ContentHash, "duplicate_resolution"); err != nil {
			return err
		}
		return d.postRepo.BatchDelete(ctx, sess, []uuid.UUID{postID})
	})
	if err != nil {
		return err
	}

	return d.resolveIfBelowThreshold(ctx, groupID)
}

// DeleteSingleOnDisk performs ExcludeSingle and additionally removes the
// backing file, for same-folder groups only.
func (d *Detector) DeleteSingleOnDisk(ctx context.Context, groupID, postID uuid.UUID, fullPath string) error {
	if err := d.ExcludeSingle(ctx, groupID, postID); err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file on disk: %w", err)
	}
	return nil
}

func (d *Detector) resolveIfBelowThreshold(ctx context.Context, groupID uuid.UUID) error {
	return d.store.WithSession(ctx, func(sess catalog.Session) error {
		count, err := d.dupRepo.CountEntries(ctx, sess, groupID)
		if err != nil {
			return err
		}
		if count < 2 {
			return d.dupRepo.MarkResolved(ctx, sess, groupID)
		}
		return nil
	})
}

// Unresolve clears a group's resolved flag so the next detector run
// reconsiders it.
func (d *Detector) Unresolve(ctx context.Context, groupID uuid.UUID) error {
	return d.store.WithSession(ctx, func(sess catalog.Session) error {
		_, err := sess.ExecContext(ctx, `UPDATE duplicate_groups SET is_resolved = false WHERE id = $1`, groupID)
		return err
	})
}
