package fmp4

import (
	"fmt"
	"strings"

	"m7s.live/fmp4/pkg/codec"
)

// TimeUnset marks an unknown timestamp or duration.
const TimeUnset int64 = -1 << 63

type TrackType int

const (
	TrackTypeUnknown TrackType = iota
	TrackTypeVideo
	TrackTypeAudio
	TrackTypeText
	TrackTypeMetadata
)

func (t TrackType) String() string {
	switch t {
	case TrackTypeVideo:
		return "video"
	case TrackTypeAudio:
		return "audio"
	case TrackTypeText:
		return "text"
	case TrackTypeMetadata:
		return "metadata"
	}
	return "unknown"
}

type SampleFlags uint32

const (
	FlagKeyFrame SampleFlags = 1 << iota
	FlagEncrypted
	FlagNotDependedOn
	FlagEndOfStream
)

func (f SampleFlags) Has(flag SampleFlags) bool {
	return f&flag != 0
}

func (f SampleFlags) String() string {
	var s []string
	if f.Has(FlagKeyFrame) {
		s = append(s, "key")
	}
	if f.Has(FlagEncrypted) {
		s = append(s, "encrypted")
	}
	if f.Has(FlagNotDependedOn) {
		s = append(s, "not-depended-on")
	}
	if f.Has(FlagEndOfStream) {
		s = append(s, "eos")
	}
	return strings.Join(s, "|")
}

type CryptoMode int

const (
	CryptoModeUnencrypted CryptoMode = iota
	CryptoModeAESCTR
	CryptoModeAESCBC
)

func (m CryptoMode) String() string {
	switch m {
	case CryptoModeAESCTR:
		return "aes-ctr"
	case CryptoModeAESCBC:
		return "aes-cbc"
	}
	return "unencrypted"
}

// CryptoData describes how the payload of an encrypted sample is protected.
// Per-sample IVs and subsample partitions are written into the sample data
// ahead of the payload.
type CryptoData struct {
	Mode            CryptoMode
	KeyID           [16]byte
	EncryptedBlocks int
	ClearBlocks     int
}

// SchemeData is the payload of one pssh box.
type SchemeData struct {
	SystemID [16]byte
	Data     []byte // the whole pssh box, header included
}

// Format describes the samples of one track.
type Format struct {
	ID                    string
	Kind                  TrackType
	FourCC                codec.FourCC
	Codecs                string
	Width, Height         int
	Rotation              int
	PixelWidthHeightRatio float32
	SampleRate            int
	Channels              int
	Language              string
	InitializationData    [][]byte
	DRMInitData           []SchemeData
	MaxNumReorderSamples  int
	MaxSubLayers          int
	NALLengthSize         int
	Metadata              [][]byte
	DurationUs            int64
	Codec                 codec.ICodecCtx
}

func (f *Format) String() string {
	switch f.Kind {
	case TrackTypeVideo:
		return fmt.Sprintf("%s %s %dx%d", f.ID, f.Codecs, f.Width, f.Height)
	case TrackTypeAudio:
		return fmt.Sprintf("%s %s %dHz %dch", f.ID, f.Codecs, f.SampleRate, f.Channels)
	}
	return fmt.Sprintf("%s %s %s", f.ID, f.Kind, f.FourCC)
}

// copyWithDRMInitData returns a copy of f carrying data as its DRM init data.
func (f *Format) copyWithDRMInitData(data []SchemeData) *Format {
	c := *f
	c.DRMInitData = data
	return &c
}

// Output receives tracks and the seek map.
type Output interface {
	Track(id int, kind TrackType) TrackOutput
	EndTracks()
	SeekMap(SeekMap)
}

// TrackOutput receives the samples of one track. SampleData may be called
// several times per sample; SampleMetadata commits the last size bytes
// written, ending offset bytes before the most recent SampleData byte.
type TrackOutput interface {
	Format(*Format)
	SampleData(p []byte)
	SampleMetadata(timeUs int64, flags SampleFlags, size int, offset int, crypto *CryptoData)
}
