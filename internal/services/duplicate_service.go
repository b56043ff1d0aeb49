package services

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/maukemana/library-indexer/internal/apperr"
	"github.com/maukemana/library-indexer/internal/catalog"
	"github.com/maukemana/library-indexer/internal/duplicate"
)

// DuplicateService exposes duplicate-group listing and the resolution
// operations from spec.md §4.8 to the external surface.
type DuplicateService struct {
	store    *catalog.Store
	dupRepo  *catalog.DuplicateRepository
	postRepo *catalog.PostRepository
	libRepo  *catalog.LibraryRepository
	detector *duplicate.Detector
}

func NewDuplicateService(store *catalog.Store, detector *duplicate.Detector) *DuplicateService {
	return &DuplicateService{
		store:    store,
		dupRepo:  catalog.NewDuplicateRepository(store),
		postRepo: catalog.NewPostRepository(store),
		libRepo:  catalog.NewLibraryRepository(store),
		detector: detector,
	}
}

func (s *DuplicateService) ListUnresolved(ctx context.Context) ([]catalog.DuplicateGroup, error) {
	return s.dupRepo.ListUnresolved(ctx)
}

func (s *DuplicateService) GetGroup(ctx context.Context, id uuid.UUID) (*catalog.DuplicateGroup, error) {
	group, err := s.dupRepo.GetGroup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get duplicate group: %w", err)
	}
	if group == nil {
		return nil, apperr.NotFound("DuplicateService.GetGroup", fmt.Errorf("duplicate group %s not found", id))
	}
	return group, nil
}

func (s *DuplicateService) ListEntries(ctx context.Context, groupID uuid.UUID) ([]catalog.DuplicateGroupEntry, error) {
	return s.dupRepo.ListEntries(ctx, groupID)
}

func (s *DuplicateService) SameFolderView(ctx context.Context, groupID uuid.UUID) ([]duplicate.FolderPartition, error) {
	return s.detector.SameFolderView(ctx, groupID)
}

func (s *DuplicateService) Dismiss(ctx context.Context, groupID uuid.UUID) error {
	return s.detector.Dismiss(ctx, groupID)
}

func (s *DuplicateService) Unresolve(ctx context.Context, groupID uuid.UUID) error {
	return s.detector.Unresolve(ctx, groupID)
}

func (s *DuplicateService) AutoResolve(ctx context.Context, groupID uuid.UUID) error {
	return s.detector.AutoResolve(ctx, groupID)
}

func (s *DuplicateService) ExcludeSingle(ctx context.Context, groupID, postID uuid.UUID) error {
	return s.detector.ExcludeSingle(ctx, groupID, postID)
}

// DeleteSingle removes one entry's underlying file from disk in addition to
// excluding it, resolving the library root itself so callers never need to
// know the on-disk layout.
func (s *DuplicateService) DeleteSingle(ctx context.Context, groupID, postID uuid.UUID) error {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("get post: %w", err)
	}
	if post == nil {
		return apperr.NotFound("DuplicateService.DeleteSingle", fmt.Errorf("post %s not found", postID))
	}
	library, err := s.libRepo.GetByID(ctx, post.LibraryID)
	if err != nil {
		return fmt.Errorf("get library: %w", err)
	}
	if library == nil {
		return apperr.NotFound("DuplicateService.DeleteSingle", fmt.Errorf("library %s not found", post.LibraryID))
	}

	fullPath := filepath.Join(library.RootPath, post.RelativePath)
	return s.detector.DeleteSingleOnDisk(ctx, groupID, postID, fullPath)
}

// RunDetection triggers both passes synchronously, used by callers outside
// the job scheduler (e.g. a manual "run now" action).
func (s *DuplicateService) RunDetection(ctx context.Context) error {
	if err := s.detector.RunExactPass(ctx); err != nil {
		return fmt.Errorf("exact duplicate pass: %w", err)
	}
	if err := s.detector.RunPerceptualPass(ctx); err != nil {
		return fmt.Errorf("perceptual duplicate pass: %w", err)
	}
	return nil
}
