package box

import (
	"m7s.live/fmp4/pkg"
)

// aligned(8) class TimeToSampleBox extends FullBox(’stts’, version = 0, 0) {
// 	unsigned int(32) entry_count;
// 	for (i=1; i <= entry_count; i++) {
// 		unsigned int(32) sample_count;
// 		unsigned int(32) sample_delta;
// 	}
// }

type STTSEntry struct {
	SampleCount uint32
	SampleDelta uint32
}

type TimeToSampleBox []STTSEntry

func (stts *TimeToSampleBox) Decode(payload []byte) error {
	r := NewReader(payload)
	r.Skip(4)
	count := r.U32()
	if err := r.Fits(TypeSTTS, uint64(count), 8); err != nil {
		return err
	}
	*stts = make([]STTSEntry, count)
	for i := range *stts {
		(*stts)[i] = STTSEntry{SampleCount: r.U32(), SampleDelta: r.U32()}
	}
	return r.Err(TypeSTTS)
}

// aligned(8) class CompositionOffsetBox extends FullBox(‘ctts’, version, 0) {
// 	unsigned int(32) entry_count;
// 	for (i=1; i <= entry_count; i++) {
// 		unsigned int(32) sample_count;
// 		if (version==0) unsigned int(32) sample_offset;
// 		else int(32) sample_offset;
// 	}
// }

// CTTSEntry offsets are read signed for both versions; version 0 writers
// emit negative offsets too.
type CTTSEntry struct {
	SampleCount  uint32
	SampleOffset int32
}

type CompositionOffsetBox []CTTSEntry

func (ctts *CompositionOffsetBox) Decode(payload []byte) error {
	r := NewReader(payload)
	r.Skip(4)
	count := r.U32()
	if err := r.Fits(TypeCTTS, uint64(count), 8); err != nil {
		return err
	}
	*ctts = make([]CTTSEntry, count)
	for i := range *ctts {
		(*ctts)[i] = CTTSEntry{SampleCount: r.U32(), SampleOffset: r.I32()}
	}
	return r.Err(TypeCTTS)
}

// aligned(8) class SampleToChunkBox extends FullBox(‘stsc’, version = 0, 0) {
//     unsigned int(32) entry_count;
//     for (i=1; i <= entry_count; i++) {
//         unsigned int(32) first_chunk;
//         unsigned int(32) samples_per_chunk;
//         unsigned int(32) sample_description_index;
//     }
// }

type STSCEntry struct {
	FirstChunk             uint32
	SamplesPerChunk        uint32
	SampleDescriptionIndex uint32
}

type SampleToChunkBox []STSCEntry

func (stsc *SampleToChunkBox) Decode(payload []byte) error {
	r := NewReader(payload)
	r.Skip(4)
	count := r.U32()
	if err := r.Fits(TypeSTSC, uint64(count), 12); err != nil {
		return err
	}
	*stsc = make([]STSCEntry, count)
	for i := range *stsc {
		(*stsc)[i] = STSCEntry{FirstChunk: r.U32(), SamplesPerChunk: r.U32(), SampleDescriptionIndex: r.U32()}
	}
	return r.Err(TypeSTSC)
}

// aligned(8) class SampleSizeBox extends FullBox(‘stsz’, version = 0, 0) {
// 		unsigned int(32) sample_size;
// 		unsigned int(32) sample_count;
// 		if (sample_size==0) {
// 		for (i=1; i <= sample_count; i++) {
// 		unsigned int(32) entry_size;
// 		}
// 	}
// }
//
// aligned(8) class CompactSampleSizeBox extends FullBox(‘stz2’, version = 0, 0) {
// 	unsigned int(24) reserved = 0;
// 	unisgned int(8) field_size;
// 	unsigned int(32) sample_count;
// 	for (i=1; i <= sample_count; i++) {
// 		unsigned int(field_size) entry_size;
// 	}
// }

type SampleSizeBox struct {
	SampleSize    uint32
	SampleCount   uint32
	EntrySizelist []uint32
}

// Size returns the size of sample i.
func (stsz *SampleSizeBox) Size(i int) uint32 {
	if stsz.SampleSize != 0 {
		return stsz.SampleSize
	}
	return stsz.EntrySizelist[i]
}

func (stsz *SampleSizeBox) Decode(payload []byte) error {
	r := NewReader(payload)
	r.Skip(4)
	stsz.SampleSize = r.U32()
	stsz.SampleCount = r.U32()
	if stsz.SampleSize != 0 {
		return r.Err(TypeSTSZ)
	}
	if err := r.Fits(TypeSTSZ, uint64(stsz.SampleCount), 4); err != nil {
		return err
	}
	stsz.EntrySizelist = make([]uint32, stsz.SampleCount)
	for i := range stsz.EntrySizelist {
		stsz.EntrySizelist[i] = r.U32()
	}
	return r.Err(TypeSTSZ)
}

func (stsz *SampleSizeBox) DecodeCompact(payload []byte) error {
	r := NewReader(payload)
	r.Skip(7)
	fieldSize := r.U8()
	stsz.SampleSize = 0
	stsz.SampleCount = r.U32()
	if err := r.Err(TypeSTZ2); err != nil {
		return err
	}
	switch fieldSize {
	case 4, 8, 16:
	default:
		return pkg.Malformed("stz2 field size %d", fieldSize)
	}
	if uint64(stsz.SampleCount)*uint64(fieldSize) > uint64(r.Left())*8 {
		return pkg.Malformed("stz2 declares %d entries, payload holds %d bytes", stsz.SampleCount, r.Left())
	}
	stsz.EntrySizelist = make([]uint32, stsz.SampleCount)
	var cur uint8
	for i := range stsz.EntrySizelist {
		switch fieldSize {
		case 4:
			if i%2 == 0 {
				cur = r.U8()
				stsz.EntrySizelist[i] = uint32(cur >> 4)
			} else {
				stsz.EntrySizelist[i] = uint32(cur & 0x0F)
			}
		case 8:
			stsz.EntrySizelist[i] = uint32(r.U8())
		case 16:
			stsz.EntrySizelist[i] = uint32(r.U16())
		}
	}
	return r.Err(TypeSTZ2)
}

// aligned(8) class ChunkOffsetBox extends FullBox(‘stco’, version = 0, 0) {
// 	unsigned int(32) entry_count;
// 	for (i=1; i <= entry_count; i++) {
// 		unsigned int(32) chunk_offset;
// 	}
// }
//
// aligned(8) class ChunkLargeOffsetBox extends FullBox(‘co64’, version = 0, 0) {
// 	unsigned int(32) entry_count;
// 	for (i=1; i <= entry_count; i++) {
// 		unsigned int(64) chunk_offset;
// 	}
// }

type ChunkOffsetBox []uint64

func (stco *ChunkOffsetBox) Decode(payload []byte, large bool) error {
	t, width := TypeSTCO, 4
	if large {
		t, width = TypeCO64, 8
	}
	r := NewReader(payload)
	r.Skip(4)
	count := r.U32()
	if err := r.Fits(t, uint64(count), width); err != nil {
		return err
	}
	*stco = make([]uint64, count)
	for i := range *stco {
		if large {
			(*stco)[i] = r.U64()
		} else {
			(*stco)[i] = uint64(r.U32())
		}
	}
	return r.Err(t)
}

// aligned(8) class SyncSampleBox extends FullBox(‘stss’, version = 0, 0) {
// 	unsigned int(32) entry_count;
// 	for (i=1; i <= entry_count; i++) {
// 		unsigned int(32) sample_number;
// 	}
// }

type SyncSampleBox []uint32

func (stss *SyncSampleBox) Decode(payload []byte) error {
	r := NewReader(payload)
	r.Skip(4)
	count := r.U32()
	if err := r.Fits(TypeSTSS, uint64(count), 4); err != nil {
		return err
	}
	*stss = make([]uint32, count)
	for i := range *stss {
		(*stss)[i] = r.U32()
	}
	return r.Err(TypeSTSS)
}
