package trace_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"loov.dev/tracemodel/trace"
)

func TestFindLowIndexInSortedArray(t *testing.T) {
	identity := func(v trace.Time) trace.Time { return v }
	ary := []trace.Time{1, 3, 3, 5}

	assert.Equal(t, 1, trace.FindLowIndexInSortedArray(nil, identity, 4))
	assert.Equal(t, 0, trace.FindLowIndexInSortedArray(ary, identity, 0))
	assert.Equal(t, 0, trace.FindLowIndexInSortedArray(ary, identity, 1))
	assert.Equal(t, 1, trace.FindLowIndexInSortedArray(ary, identity, 3))
	assert.Equal(t, 3, trace.FindLowIndexInSortedArray(ary, identity, 4))
	assert.Equal(t, 4, trace.FindLowIndexInSortedArray(ary, identity, 6))
}

func TestFindLowIndexInSortedIntervals(t *testing.T) {
	type interval struct{ lo, width trace.Time }
	ary := []interval{{0, 2}, {3, 1}, {5, 5}}
	lo := func(v interval) trace.Time { return v.lo }
	width := func(v interval, _ int) trace.Time { return v.width }

	tests := []struct {
		val  trace.Time
		want int
	}{
		{-1, -1},
		{0, 0},
		{1, 0},
		{2, 3},
		{3, 1},
		{4, 3},
		{5, 2},
		{9, 2},
		{10, 3},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, trace.FindLowIndexInSortedIntervals(ary, lo, width, test.val), "val=%v", test.val)
	}
	assert.Equal(t, 0, trace.FindLowIndexInSortedIntervals([]interval{}, lo, width, 1))
}
