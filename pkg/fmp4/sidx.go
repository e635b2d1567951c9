package fmp4

import (
	"m7s.live/fmp4/pkg"
	"m7s.live/fmp4/pkg/box"
	"m7s.live/fmp4/pkg/util"
)

// parseSidx builds a chunk index from a segment index payload. end is the
// absolute position just past the sidx box, which first_offset is relative to.
// The time accumulator is kept in timescale units and each boundary is
// converted once, so rounding never breaks continuity between entries.
func parseSidx(payload []byte, end int64) (earliestTimeUs int64, index *ChunkIndex, err error) {
	var sidx box.SegmentIndexBox
	if err = sidx.Decode(payload); err != nil {
		return
	}
	if sidx.TimeScale == 0 {
		return 0, nil, pkg.Malformed("sidx timescale is zero")
	}
	timescale := int64(sidx.TimeScale)
	offset := end + int64(sidx.FirstOffset)
	earliestTimeUs = util.ScaleTimestamp(int64(sidx.EarliestPresentationTime), util.MicrosPerSecond, timescale)

	n := len(sidx.Entrys)
	index = &ChunkIndex{
		Sizes:       make([]int, n),
		Offsets:     make([]int64, n),
		DurationsUs: make([]int64, n),
		TimesUs:     make([]int64, n),
	}
	t := int64(sidx.EarliestPresentationTime)
	timeUs := earliestTimeUs
	for i, e := range sidx.Entrys {
		if e.ReferenceType != 0 {
			return 0, nil, pkg.Unsupported("sidx indirect reference")
		}
		index.Sizes[i] = int(e.ReferencedSize)
		index.Offsets[i] = offset
		index.TimesUs[i] = timeUs
		t += int64(e.SubsegmentDuration)
		timeUs = util.ScaleTimestamp(t, util.MicrosPerSecond, timescale)
		index.DurationsUs[i] = timeUs - index.TimesUs[i]
		offset += int64(e.ReferencedSize)
	}
	return
}
