package codec

import "encoding/binary"

type FourCC [4]byte

var (
	FourCC_H264 = FourCC{'a', 'v', 'c', '1'}
	FourCC_AVC3 = FourCC{'a', 'v', 'c', '3'}
	FourCC_H265 = FourCC{'h', 'v', 'c', '1'}
	FourCC_HEV1 = FourCC{'h', 'e', 'v', '1'}
	FourCC_MP4A = FourCC{'m', 'p', '4', 'a'}
	FourCC_AC3  = FourCC{'a', 'c', '-', '3'}
	FourCC_EC3  = FourCC{'e', 'c', '-', '3'}
	FourCC_AC4  = FourCC{'a', 'c', '-', '4'}
	FourCC_OPUS = FourCC{'O', 'p', 'u', 's'}
	FourCC_FLAC = FourCC{'f', 'L', 'a', 'C'}
	FourCC_ALAW = FourCC{'a', 'l', 'a', 'w'}
	FourCC_ULAW = FourCC{'u', 'l', 'a', 'w'}
	FourCC_WVTT = FourCC{'w', 'v', 't', 't'}
	FourCC_STPP = FourCC{'s', 't', 'p', 'p'}
	FourCC_TX3G = FourCC{'t', 'x', '3', 'g'}
	FourCC_C608 = FourCC{'c', '6', '0', '8'}
	FourCC_EMSG = FourCC{'e', 'm', 's', 'g'}
)

func (f FourCC) String() string {
	return string(f[:])
}

func (f FourCC) Uint32() uint32 {
	return binary.BigEndian.Uint32(f[:])
}

// IsH264 matches both in-band and out-of-band parameter set variants.
func (f FourCC) IsH264() bool {
	return f == FourCC_H264 || f == FourCC_AVC3
}

func (f FourCC) IsH265() bool {
	return f == FourCC_H265 || f == FourCC_HEV1
}

// NALHeaderSize is the size of a NAL unit header, 0 for non-NAL codecs.
func (f FourCC) NALHeaderSize() int {
	switch {
	case f.IsH264():
		return 1
	case f.IsH265():
		return 2
	}
	return 0
}

type SPSInfo struct {
	ProfileIdc uint
	LevelIdc   uint

	Width  uint
	Height uint

	// MaxNumReorderFrames is -1 when the stream does not advertise it.
	MaxNumReorderFrames int
	// MaxSubLayers is only set for H.265.
	MaxSubLayers int
}

// IsSEI reports whether a NAL unit starting with header carries SEI messages.
func (f FourCC) IsSEI(header byte) bool {
	switch {
	case f.IsH264():
		return ParseH264NALUType(header) == NALU_SEI
	case f.IsH265():
		return ParseH265NALUType(header) == NAL_UNIT_PREFIX_SEI
	}
	return false
}
