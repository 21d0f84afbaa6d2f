package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUniqueName(t *testing.T) {
	ts := time.Unix(1700000000, 123456789)
	tests := []struct {
		original string
		want     string
	}{
		{"clip.mp4", "1700000000123456789-clip.mp4"},
		{"my clip.mov", "1700000000123456789-my clip.mov"},
		{"../../etc/passwd", "1700000000123456789-passwd"},
		{`C:\Users\me\clip.mp4`, "1700000000123456789-clip.mp4"},
		{"", "1700000000123456789-upload"},
		{"..", "1700000000123456789-upload"},
		{"/", "1700000000123456789-upload"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UniqueName(ts, tt.original), tt.original)
	}
}

func TestUniqueName_DistinctTimestamps(t *testing.T) {
	ts := time.Unix(1700000000, 0)

	a := UniqueName(ts, "clip.mp4")
	b := UniqueName(ts.Add(time.Nanosecond), "clip.mp4")
	c := UniqueName(ts.Add(time.Millisecond), "clip.mp4")

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, b, c)
}

// Same instant and same name collide; the archive write of the later upload
// replaces the earlier one.
func TestUniqueName_SameInstantCollides(t *testing.T) {
	ts := time.Unix(1700000000, 5)
	assert.Equal(t, UniqueName(ts, "clip.mp4"), UniqueName(ts, "clip.mp4"))
	assert.NotEqual(t, UniqueName(ts, "clip.mp4"), UniqueName(ts, "other.mp4"))
}
