package mediabackend

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
	"github.com/maukemana/library-indexer/internal/apperr"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var vipsStartup sync.Once

func ensureVips() {
	vipsStartup.Do(func() {
		vips.LoggingSettings(nil, vips.LogLevelError)
		vips.Startup(nil)
	})
}

func imageMetadata(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, nil
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Metadata{}, nil
	}

	return Metadata{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Format:      format,
		ContentType: contentTypeForFormat(format),
	}, nil
}

func contentTypeForFormat(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "bmp":
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}

// imageThumbnail decodes src with the pure-Go imaging library, fits it
// within maxEdge preserving aspect ratio, and writes a JPEG. AVIF/WEBP
// sources that the standard decoders can't handle fall through to govips,
// which decodes, resizes and exports them as JPEG too.
func imageThumbnail(src, dst string, maxEdge int) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		ensureVips()
		vipsImg, vErr := vips.NewImageFromFile(src)
		if vErr != nil {
			return apperr.BackendFailure("GenerateThumbnail", fmt.Errorf("decode %s: %w", src, err))
		}
		defer vipsImg.Close()
		return thumbnailViaVips(vipsImg, dst, maxEdge)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	var resized image.Image
	if w >= h {
		resized = imaging.Resize(img, maxEdge, 0, imaging.Lanczos)
	} else {
		resized = imaging.Resize(img, 0, maxEdge, imaging.Lanczos)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return apperr.BackendFailure("GenerateThumbnail", fmt.Errorf("create thumbnail dir: %w", err))
	}

	if err := imaging.Save(resized, dst, imaging.JPEGQuality(85)); err != nil {
		return apperr.BackendFailure("GenerateThumbnail", fmt.Errorf("encode thumbnail: %w", err))
	}

	return validateNonEmpty(dst)
}

// thumbnailViaVips handles formats the pure-Go decoders reject (AVIF, some
// WEBP variants), resizing with libvips and exporting JPEG.
func thumbnailViaVips(img *vips.ImageRef, dst string, maxEdge int) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return apperr.BackendFailure("GenerateThumbnail", fmt.Errorf("create thumbnail dir: %w", err))
	}

	width := img.Width()
	height := img.Height()
	scale := 1.0
	if width >= height && width > 0 {
		scale = float64(maxEdge) / float64(width)
	} else if height > 0 {
		scale = float64(maxEdge) / float64(height)
	}
	if scale < 1.0 {
		if err := img.Resize(scale, vips.KernelLanczos3); err != nil {
			return apperr.BackendFailure("GenerateThumbnail", fmt.Errorf("vips resize: %w", err))
		}
	}

	ep := vips.NewJpegExportParams()
	ep.Quality = 85
	buf, _, err := img.ExportJpeg(ep)
	if err != nil {
		return apperr.BackendFailure("GenerateThumbnail", fmt.Errorf("vips export: %w", err))
	}
	if len(buf) == 0 {
		return apperr.BackendFailure("GenerateThumbnail", fmt.Errorf("vips export produced empty output"))
	}
	if err := os.WriteFile(dst, buf, 0o644); err != nil {
		return apperr.BackendFailure("GenerateThumbnail", fmt.Errorf("write thumbnail: %w", err))
	}
	return validateNonEmpty(dst)
}

func validateNonEmpty(dst string) error {
	info, err := os.Stat(dst)
	if err != nil {
		return apperr.BackendFailure("GenerateThumbnail", fmt.Errorf("missing thumbnail output: %w", err))
	}
	if info.Size() == 0 {
		return apperr.BackendFailure("GenerateThumbnail", fmt.Errorf("empty thumbnail output"))
	}
	return nil
}
