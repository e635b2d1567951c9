package util

import (
	"math"
)

// MicrosPerSecond is the timebase of every timestamp the demuxer emits.
const MicrosPerSecond = 1_000_000

// ScaleTimestamp returns ts * multiplier / divisor, staying in integer
// arithmetic whenever one of the factors divides the other.
func ScaleTimestamp(ts, multiplier, divisor int64) int64 {
	switch {
	case divisor >= multiplier && divisor%multiplier == 0:
		return ts / (divisor / multiplier)
	case divisor < multiplier && multiplier%divisor == 0:
		return ts * (multiplier / divisor)
	}
	return int64(float64(ts) * (float64(multiplier) / float64(divisor)))
}

// ScaleTimestamps scales every element of ts in place.
func ScaleTimestamps(ts []int64, multiplier, divisor int64) {
	switch {
	case divisor >= multiplier && divisor%multiplier == 0:
		d := divisor / multiplier
		for i := range ts {
			ts[i] /= d
		}
	case divisor < multiplier && multiplier%divisor == 0:
		m := multiplier / divisor
		for i := range ts {
			ts[i] *= m
		}
	default:
		f := float64(multiplier) / float64(divisor)
		for i := range ts {
			ts[i] = int64(float64(ts[i]) * f)
		}
	}
}

// ToMicros converts ts in timescale units to microseconds.
func ToMicros(ts int64, timescale uint32) int64 {
	return ScaleTimestamp(ts, MicrosPerSecond, int64(timescale))
}

// CheckedInt narrows v to an int that fits 31 bits.
func CheckedInt(v uint64) (int, bool) {
	if v > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

// BinarySearchFloor returns the index of the last element <= v, or -1 when
// every element is larger. With stayInBounds -1 becomes 0.
func BinarySearchFloor(a []int64, v int64, stayInBounds bool) int {
	lo, hi := 0, len(a)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if a[mid] <= v {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	i := lo - 1
	if stayInBounds && i < 0 {
		return 0
	}
	return i
}
