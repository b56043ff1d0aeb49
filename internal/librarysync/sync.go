// Package librarysync implements the Library Sync Processor (spec.md §4.7):
// reconciling a directory tree against the catalog, in five phases.
package librarysync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maukemana/library-indexer/internal/catalog"
	"github.com/maukemana/library-indexer/internal/contenthash"
	"github.com/maukemana/library-indexer/internal/fileidentity"
	"github.com/maukemana/library-indexer/internal/ingestion"
	"github.com/maukemana/library-indexer/internal/mediabackend"
	"github.com/maukemana/library-indexer/internal/mediasource"
)

// ScanResult summarizes one processDirectory run.
type ScanResult struct {
	Scanned  int
	Added    int
	Updated  int
	Moved    int
	Orphaned int
}

// ProgressReporter receives coarse progress updates during a scan.
type ProgressReporter interface {
	SetProgress(current, total int)
}

// Processor reconciles a library's on-disk state against the catalog.
type Processor struct {
	store        *catalog.Store
	libraryRepo  *catalog.LibraryRepository
	postRepo     *catalog.PostRepository
	tagRepo      *catalog.TagRepository
	pipeline     *ingestion.Pipeline
	backend      *mediabackend.Backend
	parallelism  int
}

func New(store *catalog.Store, pipeline *ingestion.Pipeline, backend *mediabackend.Backend, parallelism int) *Processor {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Processor{
		store:       store,
		libraryRepo: catalog.NewLibraryRepository(store),
		postRepo:    catalog.NewPostRepository(store),
		tagRepo:     catalog.NewTagRepository(store),
		pipeline:    pipeline,
		backend:     backend,
		parallelism: parallelism,
	}
}

// updateTicket describes metadata that changed in place.
type updateTicket struct {
	postID           uuid.UUID
	newHash          string
	newSize          int64
	newMTime         time.Time
	identityDevice   *string
	identityValue    *string
	hashChanged      bool
}

type moveCandidate struct {
	identityKey    string
	oldPostID      uuid.UUID
	oldPath        string
	newPath        string
	newFullPath    string
	newHash        string
	newSize        int64
	newMTime       time.Time
	identityDevice *string
	identityValue  *string
}

// ProcessDirectory reconciles directoryPath against library's catalog state.
func (p *Processor) ProcessDirectory(ctx context.Context, library catalog.Library, directoryPath string, reporter ProgressReporter) (ScanResult, error) {
	result := ScanResult{}

	// Phase 0: preload.
	existingByPath, err := p.postRepo.SnapshotByPath(ctx, library.ID)
	if err != nil {
		return result, fmt.Errorf("preload posts by path: %w", err)
	}
	existingByIdentity, err := p.postRepo.SnapshotByIdentity(ctx, library.ID)
	if err != nil {
		return result, fmt.Errorf("preload posts by identity: %w", err)
	}
	excludedRows, err := p.libraryRepo.ListExcludedPaths(ctx, library.ID)
	if err != nil {
		return result, fmt.Errorf("preload excluded files: %w", err)
	}
	excludedPaths := make(map[string]struct{}, len(excludedRows))
	for _, e := range excludedRows {
		excludedPaths[e.RelativePath] = struct{}{}
	}
	ignoredRows, err := p.libraryRepo.ListIgnoredPaths(ctx, library.ID)
	if err != nil {
		return result, fmt.Errorf("preload ignored prefixes: %w", err)
	}
	ignoredPrefixes := make([]string, 0, len(ignoredRows))
	for _, ig := range ignoredRows {
		ignoredPrefixes = append(ignoredPrefixes, normalizePath(ig.RelativePathPrefix))
	}

	var (
		mu            sync.Mutex
		seenPaths     = make(map[string]struct{})
		postsToUpdate []updateTicket
		potentialMoves []moveCandidate
		addedPaths    []string
		failed        int
	)

	// Phase 1: streaming classification, bounded parallelism.
	root := directoryPath
	if root == "" {
		root = library.RootPath
	}
	items, walkErrs := mediasource.Enumerate(ctx, root)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)

	for rawItem := range items {
		item, relErr := rebaseToLibraryRoot(rawItem, library.RootPath)
		if relErr != nil {
			continue
		}
		g.Go(func() error {
			return p.classifyItem(gctx, library, item, &mu, existingByPath, existingByIdentity,
				excludedPaths, ignoredPrefixes, seenPaths, &postsToUpdate, &potentialMoves, &addedPaths, &result, &failed)
		})
	}
	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("classification phase: %w", err)
	}
	if err := <-walkErrs; err != nil {
		return result, fmt.Errorf("enumerate library root: %w", err)
	}

	if reporter != nil {
		reporter.SetProgress(80, 100)
	}

	// Phase 2: resolve move candidates.
	moveTickets, err := p.resolveMoveCandidates(ctx, library, potentialMoves, existingByIdentity, seenPaths, &addedPaths, &result.Added)
	if err != nil {
		return result, fmt.Errorf("resolve move candidates: %w", err)
	}

	// Phase 3: apply updates and moves in one scoped session.
	if len(postsToUpdate) > 0 || len(moveTickets) > 0 {
		err = p.store.WithSession(ctx, func(sess catalog.Session) error {
			for _, t := range postsToUpdate {
				if err := p.applyUpdate(ctx, sess, t); err != nil {
					return err
				}
				result.Updated++
			}
			for _, m := range moveTickets {
				if err := p.applyMove(ctx, sess, m); err != nil {
					return err
				}
				result.Moved++
			}
			return nil
		})
		if err != nil {
			return result, fmt.Errorf("apply phase 3 updates: %w", err)
		}
	}

	if reporter != nil {
		reporter.SetProgress(90, 100)
	}

	// Phase 4: tag inheritance for newly added duplicates.
	if err := p.inheritTagsForAdded(ctx, library.ID, addedPaths); err != nil {
		slog.Error("librarysync: tag inheritance failed", "library_id", library.ID, "error", err)
	}

	// Phase 5: orphan removal.
	var orphanIDs []uuid.UUID
	for path, post := range existingByPath {
		if _, ok := seenPaths[path]; !ok {
			orphanIDs = append(orphanIDs, post.ID)
		}
	}
	result.Orphaned = len(orphanIDs)
	if err := p.deleteOrphansInBatches(ctx, orphanIDs); err != nil {
		return result, fmt.Errorf("orphan removal: %w", err)
	}

	if reporter != nil {
		reporter.SetProgress(100, 100)
	}

	if failed > 0 {
		slog.Warn("librarysync: scan completed with per-file failures", "library_id", library.ID, "failed", failed)
	}

	return result, nil
}

// rebaseToLibraryRoot recomputes an item's RelativePath against the
// library's root rather than the directory actually walked, so catalog
// paths stay stable across full and partial rescans.
func rebaseToLibraryRoot(item mediasource.Item, libraryRoot string) (mediasource.Item, error) {
	rel, err := filepath.Rel(libraryRoot, item.FullPath)
	if err != nil {
		return item, err
	}
	item.RelativePath = filepath.ToSlash(rel)
	return item, nil
}

// normalizePath applies spec.md §4.7's normalization rule: backslashes to
// forward slashes, trimmed leading/trailing slashes, "." becomes "".
func normalizePath(path string) string {
	p := strings.ReplaceAll(path, "\\", "/")
	p = strings.Trim(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// isWithinPrefix reports whether normalized lies within prefix per spec.md
// §4.7: equal, or begins with prefix + "/".
func isWithinPrefix(normalized, prefix string) bool {
	if prefix == "" {
		return false
	}
	return normalized == prefix || strings.HasPrefix(normalized, prefix+"/")
}

func (p *Processor) classifyItem(
	ctx context.Context,
	library catalog.Library,
	item mediasource.Item,
	mu *sync.Mutex,
	existingByPath map[string]catalog.Post,
	existingByIdentity map[string]catalog.Post,
	excludedPaths map[string]struct{},
	ignoredPrefixes []string,
	seenPaths map[string]struct{},
	postsToUpdate *[]updateTicket,
	potentialMoves *[]moveCandidate,
	addedPaths *[]string,
	result *ScanResult,
	failed *int,
) error {
	normalized := normalizePath(item.RelativePath)

	for _, prefix := range ignoredPrefixes {
		if isWithinPrefix(normalized, prefix) {
			return nil
		}
	}

	mu.Lock()
	seenPaths[normalized] = struct{}{}
	result.Scanned++
	mu.Unlock()

	if _, excluded := excludedPaths[normalized]; excluded {
		return nil
	}

	mu.Lock()
	existing, hasExisting := existingByPath[normalized]
	mu.Unlock()

	if hasExisting {
		mtimeMatches := absDuration(existing.FileModifiedDate.Sub(item.ModifiedUTC)) <= time.Second
		sizeMatches := existing.SizeBytes == item.SizeBytes

		if sizeMatches && mtimeMatches && existing.FileIdentityDevice != nil {
			return nil // unchanged
		}

		if sizeMatches && mtimeMatches {
			// Size/mtime match but no identity on file: try to resolve it now.
			identity, ok := fileidentity.TryResolve(item.FullPath)
			if !ok {
				return nil
			}
			mu.Lock()
			*postsToUpdate = append(*postsToUpdate, updateTicket{
				postID:         existing.ID,
				newHash:        existing.ContentHash,
				newSize:        existing.SizeBytes,
				newMTime:       existing.FileModifiedDate,
				identityDevice: strPtr(identity.Device),
				identityValue:  strPtr(identity.Value),
				hashChanged:    false,
			})
			mu.Unlock()
			return nil
		}

		hash, err := contenthash.Compute(item.FullPath)
		if err != nil {
			slog.Warn("librarysync: hash failed, skipping file", "path", item.FullPath, "error", err)
			mu.Lock()
			*failed++
			mu.Unlock()
			return nil
		}
		identity, _ := fileidentity.TryResolve(item.FullPath)

		mu.Lock()
		*postsToUpdate = append(*postsToUpdate, updateTicket{
			postID:         existing.ID,
			newHash:        hash,
			newSize:        item.SizeBytes,
			newMTime:       item.ModifiedUTC,
			identityDevice: identityDevicePtr(identity),
			identityValue:  identityValuePtr(identity),
			hashChanged:    hash != existing.ContentHash,
		})
		mu.Unlock()
		return nil
	}

	// New on-disk path.
	hash, err := contenthash.Compute(item.FullPath)
	if err != nil {
		slog.Warn("librarysync: hash failed, skipping file", "path", item.FullPath, "error", err)
		mu.Lock()
		*failed++
		mu.Unlock()
		return nil
	}
	identity, hasIdentity := fileidentity.TryResolve(item.FullPath)

	if hasIdentity {
		mu.Lock()
		if matched, ok := existingByIdentity[identity.Key()]; ok {
			*potentialMoves = append(*potentialMoves, moveCandidate{
				identityKey:    identity.Key(),
				oldPostID:      matched.ID,
				oldPath:        matched.RelativePath,
				newPath:        normalized,
				newFullPath:    item.FullPath,
				newHash:        hash,
				newSize:        item.SizeBytes,
				newMTime:       item.ModifiedUTC,
				identityDevice: strPtr(identity.Device),
				identityValue:  strPtr(identity.Value),
			})
			mu.Unlock()
			return nil
		}
		mu.Unlock()
	}

	if err := p.enqueueNewPost(ctx, library, normalized, hash, item, identity, hasIdentity); err != nil {
		return fmt.Errorf("enqueue new post: %w", err)
	}

	mu.Lock()
	*addedPaths = append(*addedPaths, normalized)
	result.Added++
	mu.Unlock()

	return nil
}

func (p *Processor) enqueueNewPost(ctx context.Context, library catalog.Library, relativePath, hash string, item mediasource.Item, identity fileidentity.Identity, hasIdentity bool) error {
	meta, err := p.backend.GetMetadata(item.FullPath)
	if err != nil {
		meta = mediabackend.Metadata{}
	}

	post := catalog.Post{
		ID:               uuid.New(),
		LibraryID:        library.ID,
		RelativePath:     relativePath,
		ContentHash:      hash,
		SizeBytes:        item.SizeBytes,
		FileModifiedDate: item.ModifiedUTC,
		ImportDate:       time.Now().UTC(),
		Width:            meta.Width,
		Height:           meta.Height,
		ContentType:      contentTypeOrExt(meta.ContentType, relativePath),
	}
	if hasIdentity {
		post.FileIdentityDevice = strPtr(identity.Device)
		post.FileIdentityValue = strPtr(identity.Value)
	}

	return p.pipeline.Enqueue(ctx, post)
}

func contentTypeOrExt(contentType, relativePath string) string {
	if contentType != "" {
		return contentType
	}
	return mediabackend.ContentTypeForPath(relativePath)
}

// resolveMoveCandidates walks the candidate list, greedily matching each
// against the first still-unclaimed existingByIdentity entry that isn't
// already seen on disk. Unmatched candidates become true new posts: they are
// enqueued into the ingestion pipeline here and recorded as added.
func (p *Processor) resolveMoveCandidates(
	ctx context.Context,
	library catalog.Library,
	candidates []moveCandidate,
	existingByIdentity map[string]catalog.Post,
	seenPaths map[string]struct{},
	addedPaths *[]string,
	addedCount *int,
) ([]moveCandidate, error) {
	matchedOld := make(map[string]struct{})
	var tickets []moveCandidate

	for _, c := range candidates {
		_, wasSeen := seenPaths[c.oldPath]
		_, alreadyMatched := matchedOld[c.oldPath]
		_, identityStillExists := existingByIdentity[c.identityKey]

		if wasSeen || alreadyMatched || !identityStillExists {
			if err := p.enqueueRejectedCandidateAsNewPost(ctx, library, c); err != nil {
				return nil, err
			}
			*addedPaths = append(*addedPaths, c.newPath)
			*addedCount++
			continue
		}

		matchedOld[c.oldPath] = struct{}{}
		seenPaths[c.oldPath] = struct{}{}
		tickets = append(tickets, c)
	}

	return tickets, nil
}

func (p *Processor) enqueueRejectedCandidateAsNewPost(ctx context.Context, library catalog.Library, c moveCandidate) error {
	meta, err := p.backend.GetMetadata(c.newFullPath)
	if err != nil {
		meta = mediabackend.Metadata{}
	}
	post := catalog.Post{
		ID:                 uuid.New(),
		LibraryID:          library.ID,
		RelativePath:       c.newPath,
		ContentHash:        c.newHash,
		SizeBytes:          c.newSize,
		FileModifiedDate:   c.newMTime,
		ImportDate:         time.Now().UTC(),
		Width:              meta.Width,
		Height:             meta.Height,
		ContentType:        contentTypeOrExt(meta.ContentType, c.newPath),
		FileIdentityDevice: c.identityDevice,
		FileIdentityValue:  c.identityValue,
	}
	return p.pipeline.Enqueue(ctx, post)
}

func (p *Processor) applyUpdate(ctx context.Context, sess catalog.Session, t updateTicket) error {
	post, err := p.postRepo.GetByID(ctx, t.postID)
	if err != nil {
		return fmt.Errorf("reload post for update: %w", err)
	}
	if post == nil {
		return nil
	}
	post.ContentHash = t.newHash
	post.SizeBytes = t.newSize
	post.FileModifiedDate = t.newMTime
	post.FileIdentityDevice = t.identityDevice
	post.FileIdentityValue = t.identityValue
	if t.hashChanged {
		post.Width = 0
		post.Height = 0
		post.PerceptualHash = nil
	}
	return p.postRepo.UpdateMetadata(ctx, sess, *post)
}

func (p *Processor) applyMove(ctx context.Context, sess catalog.Session, m moveCandidate) error {
	oldPost, err := p.postRepo.GetByID(ctx, m.oldPostID)
	if err != nil {
		return fmt.Errorf("reload post for move: %w", err)
	}
	if oldPost == nil {
		return nil
	}
	oldPost.RelativePath = m.newPath
	oldPost.ContentHash = m.newHash
	oldPost.SizeBytes = m.newSize
	oldPost.FileModifiedDate = m.newMTime
	oldPost.FileIdentityDevice = m.identityDevice
	oldPost.FileIdentityValue = m.identityValue
	oldPost.ContentType = contentTypeOrExt("", m.newPath)
	if err := p.postRepo.Move(ctx, sess, oldPost.ID, m.newPath, m.newMTime); err != nil {
		return err
	}
	return p.postRepo.UpdateMetadata(ctx, sess, *oldPost)
}

func (p *Processor) inheritTagsForAdded(ctx context.Context, libraryID uuid.UUID, addedPaths []string) error {
	if len(addedPaths) == 0 {
		return nil
	}
	return p.store.WithSession(ctx, func(sess catalog.Session) error {
		for _, path := range addedPaths {
			var post catalog.Post
			if err := sess.GetContext(ctx, &post, `SELECT * FROM posts WHERE library_id = $1 AND relative_path = $2`, libraryID, path); err != nil {
				continue
			}
			var siblings []catalog.Post
			if err := sess.SelectContext(ctx, &siblings, `
				SELECT * FROM posts WHERE library_id = $1 AND content_hash = $2 AND id != $3`,
				libraryID, post.ContentHash, post.ID); err != nil {
				continue
			}
			for _, sibling := range siblings {
				if err := p.tagRepo.CopyNonFolderLinks(ctx, sess, sibling.ID, post.ID); err != nil {
					return fmt.Errorf("inherit tags from %s: %w", sibling.ID, err)
				}
			}
		}
		return nil
	})
}

func (p *Processor) deleteOrphansInBatches(ctx context.Context, ids []uuid.UUID) error {
	const batchSize = 100
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		err := p.store.WithSession(ctx, func(sess catalog.Session) error {
			return p.postRepo.BatchDelete(ctx, sess, batch)
		})
		if err != nil {
			return fmt.Errorf("delete orphan batch: %w", err)
		}
	}
	return nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func strPtr(s string) *string { return &s }

func identityDevicePtr(id fileidentity.Identity) *string {
	if id.Device == "" {
		return nil
	}
	return &id.Device
}

func identityValuePtr(id fileidentity.Identity) *string {
	if id.Value == "" {
		return nil
	}
	return &id.Value
}
