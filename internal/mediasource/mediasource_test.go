package mediasource

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("photo.JPG"))
	assert.True(t, IsSupported("clip.mp4"))
	assert.False(t, IsSupported("notes.txt"))
	assert.False(t, IsSupported("noextension"))
}

func TestIsHiddenOrSystem(t *testing.T) {
	assert.True(t, isHiddenOrSystem(".DS_Store"))
	assert.True(t, isHiddenOrSystem("~$lock"))
	assert.True(t, isHiddenOrSystem("upload.tmp"))
	assert.True(t, isHiddenOrSystem("upload.part"))
	assert.False(t, isHiddenOrSystem("photo.jpg"))
}

func TestEnumerate_SkipsHiddenAndUnsupported(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "nested.png"), []byte("x"), 0o644))

	items, errs := Enumerate(context.Background(), root)

	var relPaths []string
	for item := range items {
		relPaths = append(relPaths, item.RelativePath)
	}
	for err := range errs {
		require.NoError(t, err)
	}

	sort.Strings(relPaths)
	assert.Equal(t, []string{"keep.jpg", "sub/nested.png"}, relPaths)
}

func TestCount(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.png"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.gif"), []byte("x"), 0o644))

	count, err := Count(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
