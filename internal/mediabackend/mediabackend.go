// Package mediabackend implements the Media Backend (spec.md §4.5): still
// and video metadata probing, thumbnail generation, and perceptual hashing.
package mediabackend

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/maukemana/library-indexer/internal/apperr"
)

var errVideoUnsupported = errors.New("perceptual hashing is not supported for video inputs")

// Metadata is the result of getMetadata: zero-valued when the file could
// not be read.
type Metadata struct {
	Width       int
	Height      int
	Format      string
	ContentType string
}

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".webm": {},
	".mkv":  {},
	".mov":  {},
	".avi":  {},
}

// IsVideo reports whether path's extension belongs to the video set, the
// only signal the backend uses to route between the still-image and video
// code paths.
func IsVideo(path string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

var imageExtensionContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".avif": "image/avif",
}

// ContentTypeForPath maps path's extension to a MIME type without reading
// the file, for callers that only need to recompute content type after a
// rename (spec.md §4.7 move handling).
func ContentTypeForPath(path string) string {
	if IsVideo(path) {
		return contentTypeForVideo(path)
	}
	if ct, ok := imageExtensionContentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Backend dispatches metadata, thumbnail, and perceptual-hash requests to
// the still-image or video implementation.
type Backend struct{}

func New() *Backend {
	return &Backend{}
}

// GetMetadata returns width, height, format and content type for path,
// returning a zero Metadata when the file is unreadable (spec.md §4.5).
func (b *Backend) GetMetadata(path string) (Metadata, error) {
	if IsVideo(path) {
		return videoMetadata(path)
	}
	return imageMetadata(path)
}

// GenerateThumbnail writes a still JPEG thumbnail to dst with its longest
// edge capped at maxEdge, creating dst's directory as needed. An empty or
// missing output file is a backend error.
func (b *Backend) GenerateThumbnail(src, dst string, maxEdge int) error {
	if IsVideo(src) {
		return videoThumbnail(src, dst, maxEdge)
	}
	return imageThumbnail(src, dst, maxEdge)
}

// ComputePerceptualHash returns a 256-bit perceptual hash (64 hex digits)
// for an image input. Callers must not invoke this for video paths.
func (b *Backend) ComputePerceptualHash(path string) (string, error) {
	if IsVideo(path) {
		return "", apperr.InvalidInput("ComputePerceptualHash", errVideoUnsupported)
	}
	return imagePerceptualHash(path)
}
