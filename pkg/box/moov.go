package box

import (
	"github.com/yapingcat/gomedia/go-codec"
)

// aligned(8) class MovieHeaderBox extends FullBox(‘mvhd’, version, 0) {
//  if (version==1) {
//     unsigned int(64) creation_time;
//     unsigned int(64) modification_time;
//     unsigned int(32) timescale;
//     unsigned int(64) duration;
//  } else { // version==0
//     unsigned int(32) creation_time;
//     unsigned int(32) modification_time;
//     unsigned int(32) timescale;
//     unsigned int(32) duration;
//  }
//  ...
// }

type MovieHeaderBox struct {
	FullBox
	CreationTime     uint64
	ModificationTime uint64
	Timescale        uint32
	Duration         uint64
}

func (mvhd *MovieHeaderBox) Decode(payload []byte) error {
	r := NewReader(payload)
	mvhd.FullBox.decode(r)
	if mvhd.Version == 1 {
		mvhd.CreationTime = r.U64()
		mvhd.ModificationTime = r.U64()
		mvhd.Timescale = r.U32()
		mvhd.Duration = r.U64()
	} else {
		mvhd.CreationTime = uint64(r.U32())
		mvhd.ModificationTime = uint64(r.U32())
		mvhd.Timescale = r.U32()
		mvhd.Duration = uint64(r.U32())
	}
	return r.Err(TypeMVHD)
}

// aligned(8) class MovieExtendsHeaderBox extends FullBox(‘mehd’, version, 0) {
//     if (version==1) {
//         unsigned int(64) fragment_duration;
//     } else { // version==0
//         unsigned int(32) fragment_duration;
//     }
// }

type MovieExtendsHeaderBox struct {
	FullBox
	FragmentDuration uint64
}

func (mehd *MovieExtendsHeaderBox) Decode(payload []byte) error {
	r := NewReader(payload)
	mehd.FullBox.decode(r)
	if mehd.Version == 1 {
		mehd.FragmentDuration = r.U64()
	} else {
		mehd.FragmentDuration = uint64(r.U32())
	}
	return r.Err(TypeMEHD)
}

// aligned(8) class TrackHeaderBox extends FullBox(‘tkhd’, version, flags){
//  if (version==1) {
//     unsigned int(64) creation_time;
//     unsigned int(64) modification_time;
//     unsigned int(32) track_ID;
//     const unsigned int(32) reserved = 0;
//     unsigned int(64) duration;
//  } else { // version==0
//     unsigned int(32) creation_time;
//     unsigned int(32) modification_time;
//     unsigned int(32) track_ID;
//     const unsigned int(32) reserved = 0;
//     unsigned int(32) duration;
//  }
//  const unsigned int(32)[2] reserved = 0;
//  template int(16) layer = 0;
//  template int(16) alternate_group = 0;
//  template int(16) volume = {if track_is_audio 0x0100 else 0};
//  const unsigned int(16) reserved = 0;
//  template int(32)[9] matrix= { 0x00010000,0,0,0,0x00010000,0,0,0,0x40000000 };
//  unsigned int(32) width;
//  unsigned int(32) height;
// }

type TrackHeaderBox struct {
	FullBox
	TrackID  uint32
	Duration uint64
	Matrix   [9]int32
	Width    uint32 // 16.16 fixed point
	Height   uint32
}

func (tkhd *TrackHeaderBox) Decode(payload []byte) error {
	r := NewReader(payload)
	tkhd.FullBox.decode(r)
	if tkhd.Version == 1 {
		r.Skip(16)
		tkhd.TrackID = r.U32()
		r.Skip(4)
		tkhd.Duration = r.U64()
	} else {
		r.Skip(8)
		tkhd.TrackID = r.U32()
		r.Skip(4)
		tkhd.Duration = uint64(r.U32())
	}
	r.Skip(16)
	for i := range tkhd.Matrix {
		tkhd.Matrix[i] = r.I32()
	}
	tkhd.Width = r.U32()
	tkhd.Height = r.U32()
	return r.Err(TypeTKHD)
}

// Rotation returns the clockwise display rotation encoded in the matrix.
func (tkhd *TrackHeaderBox) Rotation() int {
	const one = 1 << 16
	switch [4]int32{tkhd.Matrix[0], tkhd.Matrix[1], tkhd.Matrix[3], tkhd.Matrix[4]} {
	case [4]int32{0, one, -one, 0}:
		return 90
	case [4]int32{-one, 0, 0, -one}:
		return 180
	case [4]int32{0, -one, one, 0}:
		return 270
	}
	return 0
}

// aligned(8) class TrackExtendsBox extends FullBox(‘trex’, 0, 0){
// 	unsigned int(32) track_ID;
// 	unsigned int(32) default_sample_description_index;
// 	unsigned int(32) default_sample_duration;
// 	unsigned int(32) default_sample_size;
// 	unsigned int(32) default_sample_flags;
// }

type TrackExtendsBox struct {
	FullBox
	TrackID                       uint32
	DefaultSampleDescriptionIndex uint32
	DefaultSampleDuration         uint32
	DefaultSampleSize             uint32
	DefaultSampleFlags            uint32
}

func (trex *TrackExtendsBox) Decode(payload []byte) error {
	r := NewReader(payload)
	trex.FullBox.decode(r)
	trex.TrackID = r.U32()
	trex.DefaultSampleDescriptionIndex = r.U32()
	trex.DefaultSampleDuration = r.U32()
	trex.DefaultSampleSize = r.U32()
	trex.DefaultSampleFlags = r.U32()
	return r.Err(TypeTREX)
}

// aligned(8) class MediaHeaderBox extends FullBox(‘mdhd’, version, 0) {
//  if (version==1) {
// 	unsigned int(64)  creation_time;
// 	unsigned int(64)  modification_time;
// 	unsigned int(32)  timescale;
// 	unsigned int(64)  duration;
//  } else { // version==0
// 	unsigned int(32)  creation_time;
// 	unsigned int(32)  modification_time;
// 	unsigned int(32)  timescale;
// 	unsigned int(32)  duration;
// }
// bit(1) pad = 0;
// unsigned int(5)[3] language; // ISO-639-2/T language code
// unsigned int(16) pre_defined = 0;
// }

type MediaHeaderBox struct {
	FullBox
	Timescale uint32
	Duration  uint64
	Language  [3]uint8 // packed 5-bit codes, add 0x60 for ASCII
}

func (mdhd *MediaHeaderBox) Decode(payload []byte) error {
	r := NewReader(payload)
	mdhd.FullBox.decode(r)
	if mdhd.Version == 1 {
		r.Skip(16)
		mdhd.Timescale = r.U32()
		mdhd.Duration = r.U64()
	} else {
		r.Skip(8)
		mdhd.Timescale = r.U32()
		mdhd.Duration = uint64(r.U32())
	}
	lang := r.Bytes(2)
	if err := r.Err(TypeMDHD); err != nil {
		return err
	}
	bs := codec.NewBitStream(lang)
	bs.SkipBits(1)
	mdhd.Language[0] = bs.Uint8(5)
	mdhd.Language[1] = bs.Uint8(5)
	mdhd.Language[2] = bs.Uint8(5)
	return nil
}

// LanguageCode returns the ISO-639-2/T code, or "" when unset.
func (mdhd *MediaHeaderBox) LanguageCode() string {
	var code [3]byte
	for i, c := range mdhd.Language {
		if c == 0 {
			return ""
		}
		code[i] = c + 0x60
	}
	return string(code[:])
}

// aligned(8) class HandlerBox extends FullBox(‘hdlr’, version = 0, 0) {
// 	unsigned int(32) pre_defined = 0;
// 	unsigned int(32) handler_type;
// 	const unsigned int(32)[3] reserved = 0;
// 	string name;
// }

type HandlerBox struct {
	FullBox
	HandlerType [4]byte
	Name        string
}

func (hdlr *HandlerBox) Decode(payload []byte) error {
	r := NewReader(payload)
	hdlr.FullBox.decode(r)
	r.Skip(4)
	if b := r.Bytes(4); b != nil {
		hdlr.HandlerType = [4]byte(b)
	}
	r.Skip(12)
	if err := r.Err(TypeHDLR); err != nil {
		return err
	}
	hdlr.Name = r.CString()
	return nil
}

// aligned(8) class EditListBox extends FullBox(‘elst’, version, 0) {
// 	unsigned int(32) entry_count;
// 	for (i=1; i <= entry_count; i++) {
// 		  if (version==1) {
// 			 unsigned int(64) segment_duration;
// 			 int(64) media_time;
// 		  } else { // version==0
// 			 unsigned int(32) segment_duration;
// 			 int(32) media_time;
// 		  }
// 		  int(16) media_rate_integer;
// 		  int(16) media_rate_fraction = 0;
// 	}
// }

type ELSTEntry struct {
	SegmentDuration   uint64
	MediaTime         int64
	MediaRateInteger  int16
	MediaRateFraction int16
}

type EditListBox struct {
	FullBox
	Entries []ELSTEntry
}

func (elst *EditListBox) Decode(payload []byte) error {
	r := NewReader(payload)
	elst.FullBox.decode(r)
	count := r.U32()
	entrySize := 12
	if elst.Version == 1 {
		entrySize = 20
	}
	if err := r.Fits(TypeELST, uint64(count), entrySize); err != nil {
		return err
	}
	elst.Entries = make([]ELSTEntry, count)
	for i := range elst.Entries {
		e := &elst.Entries[i]
		if elst.Version == 1 {
			e.SegmentDuration = r.U64()
			e.MediaTime = r.I64()
		} else {
			e.SegmentDuration = uint64(r.U32())
			e.MediaTime = int64(r.I32())
		}
		e.MediaRateInteger = int16(r.U16())
		e.MediaRateFraction = int16(r.U16())
	}
	return r.Err(TypeELST)
}
