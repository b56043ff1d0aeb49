package mediabackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHammingDistance_IdenticalIsZero(t *testing.T) {
	hash := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"
	distance, err := HammingDistance(hash, hash)
	require.NoError(t, err)
	assert.Equal(t, 0, distance)
}

func TestHammingDistance_CountsDifferingBits(t *testing.T) {
	distance, err := HammingDistance("0", "1")
	require.NoError(t, err)
	assert.Equal(t, 1, distance)

	distance, err = HammingDistance("0", "f")
	require.NoError(t, err)
	assert.Equal(t, 4, distance)
}

func TestHammingDistance_LengthMismatch(t *testing.T) {
	_, err := HammingDistance("00", "0")
	assert.Error(t, err)
}

func TestHammingDistance_InvalidHexDigit(t *testing.T) {
	_, err := HammingDistance("0g", "00")
	assert.Error(t, err)
}

func TestMedianOf(t *testing.T) {
	assert.Equal(t, 3.0, medianOf([]float64{1, 2, 3, 4, 5}))
	assert.Equal(t, 2.5, medianOf([]float64{1, 2, 3, 4}))
	assert.Equal(t, 0.0, medianOf(nil))
}

func TestDCT2D_ConstantInputHasZeroACTerms(t *testing.T) {
	const n = 8
	pixels := make([][]float64, n)
	for y := range pixels {
		pixels[y] = make([]float64, n)
		for x := range pixels[y] {
			pixels[y][x] = 128
		}
	}

	dct := dct2D(pixels, n)

	assert.Greater(t, dct[0][0], 0.0, "DC term should carry the constant energy")
	for v := 0; v < n; v++ {
		for u := 0; u < n; u++ {
			if u == 0 && v == 0 {
				continue
			}
			assert.InDelta(t, 0, dct[v][u], 1e-6, "AC terms of a constant input should vanish")
		}
	}
}
