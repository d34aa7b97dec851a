package npb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseScore(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"１０", 10, true},
		{"3", 3, true},
		{" 0 ", 0, true},
		{"12点", 12, true},
		{"X", 0, false},
		{"", 0, false},
		{"-", 0, false},
		{"－", 0, false},
		{"中止", 0, false},
		{"3x", 3, true},
	}
	for _, tc := range cases {
		got, ok := ParseScore(tc.in)
		assert.Equal(t, tc.ok, ok, "ParseScore(%q)", tc.in)
		assert.Equal(t, tc.want, got, "ParseScore(%q)", tc.in)
	}
}

func TestParseInningCell(t *testing.T) {
	t.Parallel()

	_, ok := ParseInningCell("X")
	assert.False(t, ok, "walk-off marker is not played")
	_, ok = ParseInningCell("×")
	assert.False(t, ok)

	got, ok := ParseInningCell("０")
	assert.True(t, ok, "zero runs is played")
	assert.Equal(t, 0, got)

	got, ok = ParseInningCell("2x")
	assert.True(t, ok)
	assert.Equal(t, 2, got)

	assert.False(t, InningCell("").Valid)
	assert.Equal(t, int32(4), InningCell("４").Int32)
}

func TestWalkOffHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, IsWalkOffMarker(" X "))
	assert.False(t, IsWalkOffMarker("1X"))
	assert.True(t, ContainsWalkOff("1X"))
	assert.False(t, ContainsWalkOff("12"))
}
