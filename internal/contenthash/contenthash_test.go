package contenthash

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, contents []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.bin")
	require.NoError(t, os.WriteFile(path, contents, 0o644))
	return path
}

func TestCompute_Idempotent(t *testing.T) {
	path := writeTempFile(t, []byte("the quick brown fox jumps over the lazy dog"))

	a, err := Compute(path)
	require.NoError(t, err)
	b, err := Compute(path)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestCompute_DiffersOnContentChange(t *testing.T) {
	pathA := writeTempFile(t, []byte("content one"))
	pathB := writeTempFile(t, []byte("content two, a different length"))

	hashA, err := Compute(pathA)
	require.NoError(t, err)
	hashB, err := Compute(pathB)
	require.NoError(t, err)

	assert.NotEqual(t, hashA, hashB)
}

func TestCompute_LargeFileHashesHeadAndTail(t *testing.T) {
	size := 300 * 1024
	contents := make([]byte, size)
	for i := range contents {
		contents[i] = byte(i % 251)
	}
	path := writeTempFile(t, contents)

	original, err := Compute(path)
	require.NoError(t, err)

	mutated := make([]byte, size)
	copy(mutated, contents)
	// Flip a byte in the middle, well outside the first/last 64 KiB.
	mutated[size/2] ^= 0xFF
	mutatedPath := writeTempFile(t, mutated)

	afterMiddleFlip, err := Compute(mutatedPath)
	require.NoError(t, err)
	assert.Equal(t, original, afterMiddleFlip, "changes outside head/tail windows must not affect the hash")

	mutated[0] ^= 0xFF
	headFlippedPath := writeTempFile(t, mutated)
	afterHeadFlip, err := Compute(headFlippedPath)
	require.NoError(t, err)
	assert.NotEqual(t, original, afterHeadFlip, "changes within the head window must affect the hash")
}

func TestCompute_EmptyFile(t *testing.T) {
	path := writeTempFile(t, []byte{})
	hash, err := Compute(path)
	require.NoError(t, err)
	assert.Len(t, hash, 16)
}
