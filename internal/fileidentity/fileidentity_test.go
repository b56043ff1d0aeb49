package fileidentity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity_Key(t *testing.T) {
	id := Identity{Device: "2049", Value: "123456"}
	assert.Equal(t, "2049|123456", id.Key())
}

func TestTryResolve_SameFileSameIdentity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	a, okA := TryResolve(path)
	b, okB := TryResolve(path)
	if !okA || !okB {
		t.Skip("platform has no stable file-identity primitive")
	}

	assert.Equal(t, a, b)
	assert.NotEmpty(t, a.Key())
}

func TestTryResolve_DifferentFilesDifferentIdentity(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(pathA, []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("world"), 0o644))

	a, okA := TryResolve(pathA)
	b, okB := TryResolve(pathB)
	if !okA || !okB {
		t.Skip("platform has no stable file-identity primitive")
	}

	assert.NotEqual(t, a.Key(), b.Key())
}
