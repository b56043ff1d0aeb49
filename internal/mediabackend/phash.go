package mediabackend

import (
	"fmt"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/maukemana/library-indexer/internal/apperr"
)

// imagePerceptualHash computes a 256-bit DCT-based perceptual hash: decode,
// downscale to 32x32 grayscale, take the 2-D DCT, keep the top-left 16x16
// low-frequency block, and threshold each coefficient against the block
// median. No library in the dependency set covers perceptual hashing (it
// is a narrower need than the general-purpose image/video libraries the
// rest of the backend uses), so this is a direct stdlib implementation.
func imagePerceptualHash(path string) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", apperr.BackendFailure("ComputePerceptualHash", fmt.Errorf("decode %s: %w", path, err))
	}

	const sampleSize = 32
	const keep = 16

	gray := imaging.Resize(img, sampleSize, sampleSize, imaging.Lanczos)
	pixels := make([][]float64, sampleSize)
	for y := 0; y < sampleSize; y++ {
		pixels[y] = make([]float64, sampleSize)
		for x := 0; x < sampleSize; x++ {
			pixels[y][x] = luminance(gray.At(x, y))
		}
	}

	dct := dct2D(pixels, sampleSize)

	coeffs := make([]float64, 0, keep*keep-1)
	for y := 0; y < keep; y++ {
		for x := 0; x < keep; x++ {
			if x == 0 && y == 0 {
				continue // skip the DC term, which carries no structure
			}
			coeffs = append(coeffs, dct[y][x])
		}
	}

	median := medianOf(coeffs)

	var bits [256]byte
	bitIndex := 0
	for y := 0; y < keep; y++ {
		for x := 0; x < keep; x++ {
			if x == 0 && y == 0 {
				continue
			}
			if bitIndex >= 256 {
				break
			}
			if dct[y][x] > median {
				bits[bitIndex] = 1
			}
			bitIndex++
		}
	}

	return hexEncodeBits(bits), nil
}

func luminance(c color.Color) float64 {
	r, g, b, _ := c.RGBA()
	return 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
}

// dct2D applies a separable 2-D discrete cosine transform (type II) over an
// n x n sample grid.
func dct2D(pixels [][]float64, n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}

	for v := 0; v < n; v++ {
		for u := 0; u < n; u++ {
			var sum float64
			for y := 0; y < n; y++ {
				for x := 0; x < n; x++ {
					sum += pixels[y][x] *
						math.Cos((2*float64(x)+1)*float64(u)*math.Pi/(2*float64(n))) *
						math.Cos((2*float64(y)+1)*float64(v)*math.Pi/(2*float64(n)))
				}
			}
			alphaU := scaleFactor(u, n)
			alphaV := scaleFactor(v, n)
			out[v][u] = alphaU * alphaV * sum
		}
	}
	return out
}

func scaleFactor(k, n int) float64 {
	if k == 0 {
		return math.Sqrt(1.0 / float64(n))
	}
	return math.Sqrt(2.0 / float64(n))
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	insertionSort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func insertionSort(v []float64) {
	for i := 1; i < len(v); i++ {
		key := v[i]
		j := i - 1
		for j >= 0 && v[j] > key {
			v[j+1] = v[j]
			j--
		}
		v[j+1] = key
	}
}

func hexEncodeBits(bits [256]byte) string {
	var out [64]byte
	const hexDigits = "0123456789abcdef"
	for i := 0; i < 64; i++ {
		var nibble byte
		for b := 0; b < 4; b++ {
			nibble = nibble<<1 | bits[i*4+b]
		}
		out[i] = hexDigits[nibble]
	}
	return string(out[:])
}

// HammingDistance returns the number of differing bits between two 64-hex-
// digit perceptual hashes, used by the duplicate detector's perceptual pass
// (spec.md §4.8).
func HammingDistance(a, b string) (int, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("hash length mismatch: %d vs %d", len(a), len(b))
	}
	distance := 0
	for i := 0; i < len(a); i++ {
		av, err := hexNibble(a[i])
		if err != nil {
			return 0, err
		}
		bv, err := hexNibble(b[i])
		if err != nil {
			return 0, err
		}
		distance += popcount4(av ^ bv)
	}
	return distance, nil
}

func hexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit %q", c)
	}
}

func popcount4(n byte) int {
	count := 0
	for n > 0 {
		count += int(n & 1)
		n >>= 1
	}
	return count
}
