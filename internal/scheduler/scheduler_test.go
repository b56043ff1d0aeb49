package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreviewCron_Valid(t *testing.T) {
	result := PreviewCron("0 3 * * 0", 5)
	require.True(t, result.Valid)
	assert.Empty(t, result.Error)
	assert.Len(t, result.Occurrences, 5)
	for i := 1; i < len(result.Occurrences); i++ {
		assert.True(t, result.Occurrences[i].After(result.Occurrences[i-1]))
	}
}

func TestPreviewCron_Invalid(t *testing.T) {
	result := PreviewCron("not a cron expression", 5)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Error)
	assert.Nil(t, result.Occurrences)
}

func TestPreviewCron_ClampsCount(t *testing.T) {
	assert.Len(t, PreviewCron("* * * * *", 0).Occurrences, 1)
	assert.Len(t, PreviewCron("* * * * *", 50).Occurrences, 10)
}
