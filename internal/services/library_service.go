package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/maukemana/library-indexer/internal/apperr"
	"github.com/maukemana/library-indexer/internal/catalog"
	"github.com/maukemana/library-indexer/internal/jobs"
)

// LibraryService implements library CRUD, ignored-path management, scan
// triggering, and folder browsing (spec.md §6).
type LibraryService struct {
	store       *catalog.Store
	libraryRepo *catalog.LibraryRepository
	jobService  *jobs.Service
}

func NewLibraryService(store *catalog.Store, jobService *jobs.Service) *LibraryService {
	return &LibraryService{
		store:       store,
		libraryRepo: catalog.NewLibraryRepository(store),
		jobService:  jobService,
	}
}

func (s *LibraryService) List(ctx context.Context) ([]catalog.Library, error) {
	return s.libraryRepo.List(ctx)
}

func (s *LibraryService) Get(ctx context.Context, id uuid.UUID) (*catalog.Library, error) {
	lib, err := s.libraryRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get library: %w", err)
	}
	if lib == nil {
		return nil, apperr.NotFound("LibraryService.Get", fmt.Errorf("library %s not found", id))
	}
	return lib, nil
}

// Create validates rootPath exists and is a directory before persisting.
func (s *LibraryService) Create(ctx context.Context, name, rootPath string, scanIntervalHours int) (uuid.UUID, error) {
	if strings.TrimSpace(name) == "" {
		return uuid.Nil, apperr.InvalidInput("LibraryService.Create", fmt.Errorf("name cannot be empty"))
	}
	if err := validateDirectory(rootPath); err != nil {
		return uuid.Nil, apperr.InvalidInput("LibraryService.Create", err)
	}

	lib := &catalog.Library{
		ID:                uuid.New(),
		Name:              name,
		RootPath:          filepath.Clean(rootPath),
		ScanIntervalHours: scanIntervalHours,
	}
	if err := s.libraryRepo.Create(ctx, lib); err != nil {
		return uuid.Nil, apperr.TransientStorage("LibraryService.Create", err)
	}
	return lib.ID, nil
}

func (s *LibraryService) Update(ctx context.Context, id uuid.UUID, name, rootPath string, scanIntervalHours int) error {
	lib, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if rootPath != "" {
		if err := validateDirectory(rootPath); err != nil {
			return apperr.InvalidInput("LibraryService.Update", err)
		}
		lib.RootPath = filepath.Clean(rootPath)
	}
	if name != "" {
		lib.Name = name
	}
	if scanIntervalHours > 0 {
		lib.ScanIntervalHours = scanIntervalHours
	}
	if err := s.libraryRepo.Update(ctx, lib); err != nil {
		return apperr.TransientStorage("LibraryService.Update", err)
	}
	return nil
}

func (s *LibraryService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.libraryRepo.Delete(ctx, id); err != nil {
		return apperr.TransientStorage("LibraryService.Delete", err)
	}
	return nil
}

func (s *LibraryService) ListIgnoredPaths(ctx context.Context, libraryID uuid.UUID) ([]catalog.LibraryIgnoredPath, error) {
	return s.libraryRepo.ListIgnoredPaths(ctx, libraryID)
}

// AddIgnoredPath records a prefix and returns how many existing posts were
// removed as a result.
func (s *LibraryService) AddIgnoredPath(ctx context.Context, libraryID uuid.UUID, prefix string) (int, error) {
	if strings.TrimSpace(prefix) == "" {
		return 0, apperr.InvalidInput("LibraryService.AddIgnoredPath", fmt.Errorf("prefix cannot be empty"))
	}
	return s.libraryRepo.AddIgnoredPath(ctx, libraryID, prefix)
}

func (s *LibraryService) DeleteIgnoredPath(ctx context.Context, id uuid.UUID) error {
	return s.libraryRepo.DeleteIgnoredPath(ctx, id)
}

func (s *LibraryService) ListExcludedPaths(ctx context.Context, libraryID uuid.UUID) ([]catalog.ExcludedFile, error) {
	return s.libraryRepo.ListExcludedPaths(ctx, libraryID)
}

// TriggerScan starts the all-libraries scan job; the processor walks every
// configured library in one run, so there is no single-library job key.
func (s *LibraryService) TriggerScan(ctx context.Context) (uuid.UUID, error) {
	return s.jobService.StartJob(ctx, "scan-all-libraries", jobs.ModeMissing)
}

// FolderEntry is one child of a browsed directory.
type FolderEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
}

// Browse lists the immediate children of relativePath within a library's
// root, rejecting any path that would escape it.
func (s *LibraryService) Browse(ctx context.Context, libraryID uuid.UUID, relativePath string) ([]FolderEntry, error) {
	lib, err := s.Get(ctx, libraryID)
	if err != nil {
		return nil, err
	}

	target := filepath.Join(lib.RootPath, relativePath)
	cleanRoot := filepath.Clean(lib.RootPath)
	cleanTarget := filepath.Clean(target)
	if cleanTarget != cleanRoot && !strings.HasPrefix(cleanTarget, cleanRoot+string(filepath.Separator)) {
		return nil, apperr.InvalidInput("LibraryService.Browse", fmt.Errorf("path escapes library root"))
	}

	entries, err := os.ReadDir(cleanTarget)
	if err != nil {
		return nil, apperr.InvalidInput("LibraryService.Browse", fmt.Errorf("read directory: %w", err))
	}

	out := make([]FolderEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, FolderEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return out, nil
}

func validateDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat root path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path %q is not a directory", path)
	}
	return nil
}
