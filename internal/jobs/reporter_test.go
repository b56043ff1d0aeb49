package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter_FlushForcesPublishRegardlessOfInterval(t *testing.T) {
	var published []ReporterSnapshot
	r := newReporter(time.Hour, func(s ReporterSnapshot) {
		published = append(published, s)
	})

	r.SetActivity("starting")
	require.Len(t, published, 1, "first publish always fires regardless of interval")

	r.SetActivity("still going")
	assert.Len(t, published, 1, "second update within the interval should be coalesced")

	r.Flush()
	require.Len(t, published, 2)
	assert.Equal(t, "still going", published[1].ActivityText)
}

func TestReporter_FlushIsNoOpWhenNotDirty(t *testing.T) {
	var publishCount int
	r := newReporter(time.Hour, func(s ReporterSnapshot) {
		publishCount++
	})

	r.SetActivity("a")
	assert.Equal(t, 1, publishCount)

	r.Flush()
	assert.Equal(t, 1, publishCount, "flush with no new state should not republish")
}

func TestReporter_SetResultMarshalsJSON(t *testing.T) {
	r := newReporter(0, func(ReporterSnapshot) {})
	err := r.SetResult(1, map[string]int{"count": 3})
	require.NoError(t, err)
	require.NotNil(t, r.resultJSON)
	assert.JSONEq(t, `{"count":3}`, *r.resultJSON)
}

func TestReporter_ProgressCoalescesUnderMinInterval(t *testing.T) {
	var snapshots []ReporterSnapshot
	r := newReporter(time.Hour, func(s ReporterSnapshot) {
		snapshots = append(snapshots, s)
	})

	r.SetProgress(1, 10)
	r.SetProgress(2, 10)
	r.SetProgress(3, 10)
	require.Len(t, snapshots, 1)

	r.Flush()
	require.Len(t, snapshots, 2)
	assert.Equal(t, 3, snapshots[1].Current)
}
