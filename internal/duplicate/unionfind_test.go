package duplicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnionFind_ConnectedComponents(t *testing.T) {
	uf := newUnionFind(6)
	uf.union(0, 1)
	uf.union(1, 2)
	uf.union(3, 4)

	assert.Equal(t, uf.find(0), uf.find(2))
	assert.Equal(t, uf.find(3), uf.find(4))
	assert.NotEqual(t, uf.find(0), uf.find(3))
	assert.NotEqual(t, uf.find(5), uf.find(0))
}

func TestUnionFind_UnionIsIdempotent(t *testing.T) {
	uf := newUnionFind(3)
	uf.union(0, 1)
	root := uf.find(0)
	uf.union(0, 1)
	assert.Equal(t, root, uf.find(0))
}
