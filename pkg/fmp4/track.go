package fmp4

import (
	"m7s.live/fmp4/pkg/box"
	"m7s.live/fmp4/pkg/util"
)

type SampleTransformation int

const (
	TransformationNone SampleTransformation = iota
	// TransformationCEA608CDAT strips the cdat box header from each sample.
	TransformationCEA608CDAT
)

// Track is the static description of one track, from its trak box or
// supplied up front for streams that carry no moov.
type Track struct {
	ID             uint32
	Type           TrackType
	Timescale      uint32
	MovieTimescale uint32
	DurationUs     int64
	Format         *Format
	Transformation SampleTransformation
	// NALLengthSize is the width of the length prefix of NAL units, 0 for
	// codecs that are not NAL based.
	NALLengthSize int
	// EncryptionBoxes is indexed by sample description index.
	EncryptionBoxes    []*box.TrackEncryptionBox
	EditListDurations  []uint64
	EditListMediaTimes []int64
}

// SampleDescriptionEncryptionBox returns the encryption box of the sample
// description at index, or nil.
func (t *Track) SampleDescriptionEncryptionBox(index int) *box.TrackEncryptionBox {
	if index < 0 || index >= len(t.EncryptionBoxes) {
		return nil
	}
	return t.EncryptionBoxes[index]
}

// editListOffset is the media time subtracted from every sample when the
// track has a single edit covering the whole timeline.
func (t *Track) editListOffset() int64 {
	if len(t.EditListDurations) != 1 || len(t.EditListMediaTimes) != 1 {
		return 0
	}
	mediaTime := t.EditListMediaTimes[0]
	if mediaTime < 0 {
		return 0
	}
	if t.EditListDurations[0] == 0 {
		return mediaTime
	}
	if t.DurationUs == TimeUnset || t.MovieTimescale == 0 || t.Timescale == 0 {
		return 0
	}
	end := util.ToMicros(int64(t.EditListDurations[0]), t.MovieTimescale) + util.ToMicros(mediaTime, t.Timescale)
	if end >= t.DurationUs {
		return mediaTime
	}
	return 0
}

// DefaultSampleValues are the per-track sample defaults of a trex box,
// overridden per fragment by tfhd.
type DefaultSampleValues struct {
	SampleDescriptionIndex int
	Duration               uint32
	Size                   uint32
	Flags                  uint32
}

// trackSampleTable holds the samples described by the moov of a track.
type trackSampleTable struct {
	Track        *Track
	Offsets      []int64
	Sizes        []int
	MaximumSize  int
	TimestampsUs []int64
	Flags        []SampleFlags
	DurationUs   int64
}

func (t *trackSampleTable) SampleCount() int {
	return len(t.Sizes)
}

func trackTypeOf(handler [4]byte) TrackType {
	switch handler {
	case box.TypeVIDE:
		return TrackTypeVideo
	case box.TypeSOUN:
		return TrackTypeAudio
	case box.TypeTEXT, box.TypeSBTL, box.TypeSUBT, box.TypeCLCP:
		return TrackTypeText
	case box.TypeMETA:
		return TrackTypeMetadata
	}
	return TrackTypeUnknown
}
