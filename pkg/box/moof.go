package box

import (
	"m7s.live/fmp4/pkg"
)

// aligned(8) class TrackFragmentHeaderBox extends FullBox(‘tfhd’, 0, tf_flags){
//     unsigned int(32) track_ID;
//     // all the following are optional fields
//     unsigned int(64) base_data_offset;
//     unsigned int(32) sample_description_index;
//     unsigned int(32) default_sample_duration;
//     unsigned int(32) default_sample_size;
//     unsigned int(32) default_sample_flags
// }

const (
	TF_FLAG_BASE_DATA_OFFSET                 uint32 = 0x000001
	TF_FLAG_SAMPLE_DESCRIPTION_INDEX_PRESENT uint32 = 0x000002
	TF_FLAG_DEFAULT_SAMPLE_DURATION_PRESENT  uint32 = 0x000008
	TF_FLAG_DEFAULT_SAMPLE_SIZE_PRESENT      uint32 = 0x000010
	TF_FLAG_DEFAULT_SAMPLE_FLAGS_PRESENT     uint32 = 0x000020
	TF_FLAG_DURATION_IS_EMPTY                uint32 = 0x010000
	TF_FLAG_DEFAULT_BASE_IS_MOOF             uint32 = 0x020000

	//ffmpeg isom.h
	MOV_FRAG_SAMPLE_FLAG_DEGRADATION_PRIORITY_MASK uint32 = 0x0000ffff
	MOV_FRAG_SAMPLE_FLAG_IS_NON_SYNC               uint32 = 0x00010000
	MOV_FRAG_SAMPLE_FLAG_PADDING_MASK              uint32 = 0x000e0000
	MOV_FRAG_SAMPLE_FLAG_REDUNDANCY_MASK           uint32 = 0x00300000
	MOV_FRAG_SAMPLE_FLAG_DEPENDED_MASK             uint32 = 0x00c00000
	MOV_FRAG_SAMPLE_FLAG_DEPENDS_MASK              uint32 = 0x03000000

	MOV_FRAG_SAMPLE_FLAG_DEPENDS_NO  uint32 = 0x02000000
	MOV_FRAG_SAMPLE_FLAG_DEPENDS_YES uint32 = 0x01000000
)

// IsSyncSampleFlags reports whether sample_flags mark a sync sample.
func IsSyncSampleFlags(flags uint32) bool {
	return flags&MOV_FRAG_SAMPLE_FLAG_IS_NON_SYNC == 0
}

type TrackFragmentHeaderBox struct {
	FullBox
	TrackID                uint32
	BaseDataOffset         uint64
	SampleDescriptionIndex uint32
	DefaultSampleDuration  uint32
	DefaultSampleSize      uint32
	DefaultSampleFlags     uint32
}

func (tfhd *TrackFragmentHeaderBox) Decode(payload []byte) error {
	r := NewReader(payload)
	tfhd.FullBox.decode(r)
	tfhd.TrackID = r.U32()
	if tfhd.Has(TF_FLAG_BASE_DATA_OFFSET) {
		tfhd.BaseDataOffset = r.U64()
	}
	if tfhd.Has(TF_FLAG_SAMPLE_DESCRIPTION_INDEX_PRESENT) {
		tfhd.SampleDescriptionIndex = r.U32()
	}
	if tfhd.Has(TF_FLAG_DEFAULT_SAMPLE_DURATION_PRESENT) {
		tfhd.DefaultSampleDuration = r.U32()
	}
	if tfhd.Has(TF_FLAG_DEFAULT_SAMPLE_SIZE_PRESENT) {
		tfhd.DefaultSampleSize = r.U32()
	}
	if tfhd.Has(TF_FLAG_DEFAULT_SAMPLE_FLAGS_PRESENT) {
		tfhd.DefaultSampleFlags = r.U32()
	}
	return r.Err(TypeTFHD)
}

// aligned(8) class TrackFragmentBaseMediaDecodeTimeBox extends FullBox(‘tfdt’, version, 0) {
// 	if (version==1) {
// 		unsigned int(64) baseMediaDecodeTime;
// 	} else { // version==0
// 		unsigned int(32) baseMediaDecodeTime;
// 	}
// }

type TrackFragmentBaseMediaDecodeTimeBox struct {
	FullBox
	BaseMediaDecodeTime uint64
}

func (tfdt *TrackFragmentBaseMediaDecodeTimeBox) Decode(payload []byte) error {
	r := NewReader(payload)
	tfdt.FullBox.decode(r)
	if tfdt.Version == 1 {
		tfdt.BaseMediaDecodeTime = r.U64()
	} else {
		tfdt.BaseMediaDecodeTime = uint64(r.U32())
	}
	return r.Err(TypeTFDT)
}

// aligned(8) class TrackRunBox extends FullBox(‘trun’, version, tr_flags) {
//      unsigned int(32) sample_count;
//      // the following are optional fields
//      signed int(32) data_offset;
//       unsigned int(32) first_sample_flags;
//      // all fields in the following array are optional
//      {
//          unsigned int(32) sample_duration;
//          unsigned int(32) sample_size;
//          unsigned int(32) sample_flags
//          if (version == 0)
//          {
//              unsigned int(32) sample_composition_time_offset;
//          }
//          else
//          {
//              signed int(32) sample_composition_time_offset;
//          }
//      }[ sample_count ]
// }

const (
	TR_FLAG_DATA_OFFSET                  uint32 = 0x000001
	TR_FLAG_DATA_FIRST_SAMPLE_FLAGS      uint32 = 0x000004
	TR_FLAG_DATA_SAMPLE_DURATION         uint32 = 0x000100
	TR_FLAG_DATA_SAMPLE_SIZE             uint32 = 0x000200
	TR_FLAG_DATA_SAMPLE_FLAGS            uint32 = 0x000400
	TR_FLAG_DATA_SAMPLE_COMPOSITION_TIME uint32 = 0x000800
)

// TrunEntry fields are only meaningful when the matching TR_FLAG bit is set.
// Composition offsets are read signed for both versions.
type TrunEntry struct {
	SampleDuration              uint32
	SampleSize                  uint32
	SampleFlags                 uint32
	SampleCompositionTimeOffset int32
}

type TrackRunBox struct {
	FullBox
	SampleCount      uint32
	DataOffset       int32
	FirstSampleFlags uint32
	EntryList        []TrunEntry
}

// TrunSampleCount reads sample_count without decoding the entries.
func TrunSampleCount(payload []byte) (uint32, error) {
	r := NewReader(payload)
	r.Skip(4)
	count := r.U32()
	return count, r.Err(TypeTRUN)
}

func (trun *TrackRunBox) Decode(payload []byte) error {
	r := NewReader(payload)
	trun.FullBox.decode(r)
	trun.SampleCount = r.U32()
	if trun.Has(TR_FLAG_DATA_OFFSET) {
		trun.DataOffset = r.I32()
	}
	if trun.Has(TR_FLAG_DATA_FIRST_SAMPLE_FLAGS) {
		trun.FirstSampleFlags = r.U32()
	}
	if err := r.Err(TypeTRUN); err != nil {
		return err
	}
	entrySize := 0
	for _, flag := range []uint32{TR_FLAG_DATA_SAMPLE_DURATION, TR_FLAG_DATA_SAMPLE_SIZE, TR_FLAG_DATA_SAMPLE_FLAGS, TR_FLAG_DATA_SAMPLE_COMPOSITION_TIME} {
		if trun.Has(flag) {
			entrySize += 4
		}
	}
	if err := r.Fits(TypeTRUN, uint64(trun.SampleCount), entrySize); err != nil {
		return err
	}
	if trun.SampleCount > MaxRunSamples {
		return pkg.Unsupported("trun sample count %d", trun.SampleCount)
	}
	trun.EntryList = make([]TrunEntry, trun.SampleCount)
	if entrySize == 0 {
		return nil
	}
	for i := range trun.EntryList {
		e := &trun.EntryList[i]
		if trun.Has(TR_FLAG_DATA_SAMPLE_DURATION) {
			e.SampleDuration = r.U32()
		}
		if trun.Has(TR_FLAG_DATA_SAMPLE_SIZE) {
			e.SampleSize = r.U32()
		}
		if trun.Has(TR_FLAG_DATA_SAMPLE_FLAGS) {
			e.SampleFlags = r.U32()
		}
		if trun.Has(TR_FLAG_DATA_SAMPLE_COMPOSITION_TIME) {
			e.SampleCompositionTimeOffset = r.I32()
		}
	}
	return r.Err(TypeTRUN)
}
