package queryparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse_Empty(t *testing.T) {
	q := Parse("")
	assert.Empty(t, q.Included)
	assert.Empty(t, q.Excluded)
	assert.Equal(t, Sort{Field: SortFileModifiedDate, Direction: SortDesc}, q.Sort)
}

func TestParse_TagsAndTypeAndSort(t *testing.T) {
	q := Parse("a -b type:image sort:new")

	assert.Equal(t, []string{"a"}, q.Included)
	assert.Equal(t, []string{"b"}, q.Excluded)
	assert.Contains(t, q.IncludedTypes, MediaTypeImage)
	assert.Equal(t, Sort{Field: SortFileModifiedDate, Direction: SortDesc}, q.Sort)
}

func TestParse_SortOldest(t *testing.T) {
	q := Parse("sort:oldest")
	assert.Equal(t, Sort{Field: SortFileModifiedDate, Direction: SortAsc}, q.Sort)
}

func TestParse_SortExplicitFieldAndDirection(t *testing.T) {
	q := Parse("sort:width:asc")
	assert.Equal(t, Sort{Field: SortWidth, Direction: SortAsc}, q.Sort)
}

func TestParse_TagCount(t *testing.T) {
	q := Parse("tag-count:>=3")
	assert.NotNil(t, q.TagCount)
	assert.Equal(t, OpGreaterEqual, q.TagCount.Op)
	assert.Equal(t, 3, q.TagCount.Value)
}

func TestParse_Favorite(t *testing.T) {
	q := Parse("favorite:true")
	assert.NotNil(t, q.Favorite)
	assert.True(t, *q.Favorite)
}

func TestParse_FilenameGlobAndNegation(t *testing.T) {
	q := Parse("filename:*.png -filename:thumb_*")
	assert.Equal(t, []string{"*.png"}, q.FilenameGlobs)
	assert.Equal(t, []string{"thumb_*"}, q.ExcludedFilenameGlobs)
}

func TestParse_EscapedColonInTagName(t *testing.T) {
	q := Parse(`artist\:jane`)
	assert.Equal(t, []string{"artist:jane"}, q.Included)
}

func TestParse_MultipleTypesCommaSeparated(t *testing.T) {
	q := Parse("type:image,gif")
	assert.Contains(t, q.IncludedTypes, MediaTypeImage)
	assert.Contains(t, q.IncludedTypes, MediaTypeGIF)
	assert.NotContains(t, q.IncludedTypes, MediaTypeVideo)
}

func TestMatchFilename(t *testing.T) {
	assert.True(t, MatchFilename("*.png", "photo.png"))
	assert.False(t, MatchFilename("*.png", "photo.jpg"))
	assert.True(t, MatchFilename("img_???.jpg", "img_001.jpg"))
}
