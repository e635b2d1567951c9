package fmp4

import (
	"m7s.live/fmp4/pkg"
	"m7s.live/fmp4/pkg/box"
	"m7s.live/fmp4/pkg/util"
)

type movchunk struct {
	chunknum    uint32
	samplenum   uint32
	chunkoffset uint64
}

// buildSampleTable lays out the samples stored in the moov sample tables of
// track. Fragmented files carry empty tables and get an empty result.
func buildSampleTable(track *Track, stbl *containerAtom) (*trackSampleTable, error) {
	table := &trackSampleTable{Track: track}
	var stsz box.SampleSizeBox
	if leaf := stbl.leaf(box.TypeSTSZ); leaf != nil {
		if err := leaf.decode(&stsz); err != nil {
			return nil, err
		}
	} else if leaf = stbl.leaf(box.TypeSTZ2); leaf != nil {
		if err := pkg.WithBox(stsz.DecodeCompact(leaf.Payload), leaf.Type, leaf.Position); err != nil {
			return nil, err
		}
	}
	if stsz.SampleCount == 0 {
		return table, nil
	}
	if stsz.SampleCount > box.MaxTableSamples {
		return nil, pkg.Unsupported("%d samples in one track", stsz.SampleCount).At(box.TypeSTSZ, stbl.Position)
	}
	count := int(stsz.SampleCount)

	var stco box.ChunkOffsetBox
	if leaf := stbl.leaf(box.TypeSTCO); leaf != nil {
		if err := pkg.WithBox(stco.Decode(leaf.Payload, false), leaf.Type, leaf.Position); err != nil {
			return nil, err
		}
	} else if leaf = stbl.leaf(box.TypeCO64); leaf != nil {
		if err := pkg.WithBox(stco.Decode(leaf.Payload, true), leaf.Type, leaf.Position); err != nil {
			return nil, err
		}
	} else {
		return nil, pkg.Malformed("stbl without chunk offsets").At(box.TypeSTBL, stbl.Position)
	}
	var stsc box.SampleToChunkBox
	var stts box.TimeToSampleBox
	var ctts box.CompositionOffsetBox
	var stss box.SyncSampleBox
	for _, l := range []struct {
		t [4]byte
		b interface{ Decode([]byte) error }
	}{{box.TypeSTSC, &stsc}, {box.TypeSTTS, &stts}, {box.TypeCTTS, &ctts}, {box.TypeSTSS, &stss}} {
		if _, err := stbl.decodeLeaf(l.t, l.b); err != nil {
			return nil, err
		}
	}
	if len(stsc) == 0 {
		return nil, pkg.Malformed("stbl without sample to chunk table").At(box.TypeSTBL, stbl.Position)
	}

	chunks := make([]movchunk, len(stco))
	var capacity uint64
	iterator := 0
	for i := range chunks {
		chunks[i].chunknum = uint32(i + 1)
		chunks[i].chunkoffset = stco[i]
		for iterator+1 < len(stsc) && stsc[iterator+1].FirstChunk <= chunks[i].chunknum {
			iterator++
		}
		chunks[i].samplenum = stsc[iterator].SamplesPerChunk
		capacity += uint64(chunks[i].samplenum)
	}
	// constant size stsz boxes declare counts their payload never backs
	if capacity < uint64(count) {
		return nil, pkg.Malformed("chunks hold %d of %d samples", capacity, count).At(box.TypeSTBL, stbl.Position)
	}

	table.Sizes = make([]int, count)
	table.Offsets = make([]int64, count)
	table.TimestampsUs = make([]int64, count)
	table.Flags = make([]SampleFlags, count)
	for i := range table.Sizes {
		size, ok := util.CheckedInt(uint64(stsz.Size(i)))
		if !ok {
			return nil, pkg.Unsupported("sample size %d", stsz.Size(i)).At(box.TypeSTSZ, stbl.Position)
		}
		table.Sizes[i] = size
		table.MaximumSize = max(table.MaximumSize, size)
	}

	iterator = 0
	for i := range chunks {
		for j := 0; j < int(chunks[i].samplenum) && iterator < count; j++ {
			if j == 0 {
				table.Offsets[iterator] = int64(chunks[i].chunkoffset)
			} else {
				table.Offsets[iterator] = table.Offsets[iterator-1] + int64(table.Sizes[iterator-1])
			}
			iterator++
		}
	}

	// decode times, shifted to presentation times below
	var dts int64
	iterator = 0
	for _, e := range stts {
		for j := uint32(0); j < e.SampleCount && iterator < count; j++ {
			table.TimestampsUs[iterator] = dts
			dts += int64(e.SampleDelta)
			iterator++
		}
	}
	for ; iterator < count; iterator++ {
		table.TimestampsUs[iterator] = dts
	}
	duration := dts

	iterator = 0
	for _, e := range ctts {
		for j := uint32(0); j < e.SampleCount && iterator < count; j++ {
			table.TimestampsUs[iterator] += int64(e.SampleOffset)
			iterator++
		}
	}
	if offset := track.editListOffset(); offset != 0 {
		for i := range table.TimestampsUs {
			table.TimestampsUs[i] -= offset
		}
	}
	util.ScaleTimestamps(table.TimestampsUs, util.MicrosPerSecond, int64(track.Timescale))
	table.DurationUs = util.ToMicros(duration, track.Timescale)

	if stss == nil {
		for i := range table.Flags {
			table.Flags[i] = FlagKeyFrame
		}
	} else {
		for _, n := range stss {
			if n >= 1 && int(n) <= count {
				table.Flags[n-1] = FlagKeyFrame
			}
		}
	}
	return table, nil
}
