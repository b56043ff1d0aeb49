package mediabackend

import (
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/maukemana/library-indexer/internal/apperr"
	"gocv.io/x/gocv"
)

func videoMetadata(path string) (Metadata, error) {
	cap, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return Metadata{}, nil
	}
	defer cap.Close()

	width := int(cap.Get(gocv.VideoCaptureFrameWidth))
	height := int(cap.Get(gocv.VideoCaptureFrameHeight))
	if width == 0 || height == 0 {
		return Metadata{}, nil
	}

	return Metadata{
		Width:       width,
		Height:      height,
		Format:      "mp4",
		ContentType: contentTypeForVideo(path),
	}, nil
}

func contentTypeForVideo(path string) string {
	switch filepath.Ext(path) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	default:
		return "video/mp4"
	}
}

// framePickTime implements spec.md §4.5's frame-selection rule: never the
// first frame, never beyond EOF.
func framePickTime(duration time.Duration) time.Duration {
	candidate := time.Duration(float64(duration) * 0.2)
	if candidate < 250*time.Millisecond {
		candidate = 250 * time.Millisecond
	}
	if candidate > 10*time.Second {
		candidate = 10 * time.Second
	}
	ceiling := duration - 50*time.Millisecond
	if candidate > ceiling {
		candidate = ceiling
	}
	if candidate < 0 {
		candidate = 0
	}
	return candidate
}

func videoThumbnail(src, dst string, maxEdge int) error {
	cap, err := gocv.VideoCaptureFile(src)
	if err != nil {
		return apperr.BackendFailure("GenerateThumbnail", fmt.Errorf("open video %s: %w", src, err))
	}
	defer cap.Close()

	fps := cap.Get(gocv.VideoCaptureFPS)
	frameCount := cap.Get(gocv.VideoCaptureFrameCount)
	if fps <= 0 || frameCount <= 0 {
		return apperr.BackendFailure("GenerateThumbnail", fmt.Errorf("video %s reports no frames", src))
	}

	duration := time.Duration(frameCount / fps * float64(time.Second))
	pick := framePickTime(duration)
	targetFrame := int(math.Round(pick.Seconds() * fps))

	cap.Set(gocv.VideoCapturePosFrames, float64(targetFrame))

	frame := gocv.NewMat()
	defer frame.Close()

	if ok := cap.Read(&frame); !ok || frame.Empty() {
		return apperr.BackendFailure("GenerateThumbnail", fmt.Errorf("could not read frame %d from %s", targetFrame, src))
	}

	img, err := frame.ToImage()
	if err != nil {
		return apperr.BackendFailure("GenerateThumbnail", fmt.Errorf("convert frame to image: %w", err))
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

	out, err := os.Create(dst)
	if err != nil {
		return apperr.BackendFailure("GenerateThumbnail", fmt.Errorf("create thumbnail file: %w", err))
	}
	defer out.Close()

	if err := jpeg.Encode(out, resized, &jpeg.Options{Quality: 85}); err != nil {
		return apperr.BackendFailure("GenerateThumbnail", fmt.Errorf("encode thumbnail: %w", err))
	}

	return validateNonEmpty(dst)
}
