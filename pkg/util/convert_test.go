package util

import (
	"slices"
	"testing"
)

func TestScaleTimestamp(t *testing.T) {
	for _, tc := range []struct {
		ts, mul, div, want int64
	}{
		{90000, MicrosPerSecond, 90000, 1000000},
		{1024, MicrosPerSecond, 1000, 1024000},
		{3, MicrosPerSecond, 2000000, 1},
		{30000, MicrosPerSecond, 90000, 333333},
		{1024, MicrosPerSecond, 44100, 23219},
	} {
		if got := ScaleTimestamp(tc.ts, tc.mul, tc.div); got != tc.want {
			t.Errorf("%d*%d/%d = %d, want %d", tc.ts, tc.mul, tc.div, got, tc.want)
		}
	}
	ts := []int64{0, 30000, 90000}
	ScaleTimestamps(ts, MicrosPerSecond, 90000)
	if !slices.Equal(ts, []int64{0, 333333, 1000000}) {
		t.Errorf("scaled %v", ts)
	}
	if ToMicros(500, 1000) != 500000 {
		t.Error("ToMicros")
	}
}

func TestBinarySearchFloor(t *testing.T) {
	a := []int64{10, 20, 20, 30}
	for _, tc := range []struct {
		v      int64
		bounds bool
		want   int
	}{
		{5, false, -1},
		{5, true, 0},
		{10, false, 0},
		{20, false, 2},
		{25, false, 2},
		{99, false, 3},
	} {
		if got := BinarySearchFloor(a, tc.v, tc.bounds); got != tc.want {
			t.Errorf("floor(%d) = %d, want %d", tc.v, got, tc.want)
		}
	}
	if _, ok := CheckedInt(1 << 32); ok {
		t.Error("CheckedInt accepted an oversized value")
	}
}
