package mediabackend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFramePickTime_ShortClip(t *testing.T) {
	// 1 second clip: 20% is 200ms, clamped up to the 250ms floor, then
	// capped by duration-50ms (950ms), so the floor wins.
	got := framePickTime(1 * time.Second)
	assert.Equal(t, 250*time.Millisecond, got)
}

func TestFramePickTime_LongClipCapsAtTenSeconds(t *testing.T) {
	got := framePickTime(2 * time.Minute)
	assert.Equal(t, 10*time.Second, got)
}

func TestFramePickTime_NeverReachesDurationEnd(t *testing.T) {
	duration := 500 * time.Millisecond
	got := framePickTime(duration)
	assert.LessOrEqual(t, got, duration-50*time.Millisecond)
}

func TestFramePickTime_MidLengthClip(t *testing.T) {
	// 10 seconds: 20% is 2s, within [250ms, 10s], and well under duration-50ms.
	got := framePickTime(10 * time.Second)
	assert.Equal(t, 2*time.Second, got)
}

func TestIsVideo(t *testing.T) {
	assert.True(t, IsVideo("clip.mp4"))
	assert.True(t, IsVideo("CLIP.MKV"))
	assert.False(t, IsVideo("photo.png"))
}
