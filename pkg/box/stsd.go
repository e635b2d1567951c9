package box

import (
	"encoding/binary"
	"math"

	"m7s.live/fmp4/pkg"
)

// aligned(8) class SampleDescriptionBox (unsigned int(32) handler_type) extends FullBox('stsd', 0, 0){
// 	int i ;
// 	unsigned int(32) entry_count;
// 	for (i = 1 ; i <= entry_count ; i++){
// 		switch (handler_type){
// 			case ‘soun’: // for audio tracks
// 				AudioSampleEntry();
// 				break;
// 			case ‘vide’: // for video tracks
// 				VisualSampleEntry();
// 				break;
// 			case ‘hint’: // Hint track
// 				HintSampleEntry();
// 				break;
// 			case ‘meta’: // Metadata track
// 				MetadataSampleEntry();
// 				break;
// 		}
// 	}
// }

// aligned(8) abstract class SampleEntry (unsigned int(32) format) extends Box(format){
// 	const unsigned int(8)[6] reserved = 0;
// 	unsigned int(16) data_reference_index;
// }

// class VisualSampleEntry(codingname) extends SampleEntry (codingname){
// 	unsigned int(16) pre_defined = 0;
// 	const unsigned int(16) reserved = 0;
// 	unsigned int(32)[3] pre_defined = 0;
// 	unsigned int(16) width;
// 	unsigned int(16) height;
// 	template unsigned int(32) horizresolution = 0x00480000; // 72 dpi
// 	template unsigned int(32) vertresolution = 0x00480000; // 72 dpi
// 	const unsigned int(32) reserved = 0;
// 	template unsigned int(16) frame_count = 1;
// 	string[32] compressorname;
// 	template unsigned int(16) depth = 0x0018;
// 	int(16) pre_defined = -1;
// }

// class AudioSampleEntry(codingname) extends SampleEntry (codingname){
// 	const unsigned int(32)[2] reserved = 0;
// 	template unsigned int(16) channelcount = 2;
// 	template unsigned int(16) samplesize = 16;
// 	unsigned int(16) pre_defined = 0;
// 	const unsigned int(16) reserved = 0 ;
// 	template unsigned int(32) samplerate = { default samplerate of media}<<16;
// }

const (
	SampleEntryLen       = 8
	VisualSampleEntryLen = SampleEntryLen + 70
	AudioSampleEntryLen  = SampleEntryLen + 20
)

type ProtectionSchemeInfo struct {
	OriginalFormat [4]byte
	SchemeType     [4]byte
	SchemeVersion  uint32
	Tenc           *TrackEncryptionBox
}

type SampleEntry struct {
	Type               [4]byte
	DataReferenceIndex uint16

	Width, Height         uint16
	PixelWidthHeightRatio float32
	ChannelCount          uint16
	SampleSize            uint16
	SampleRate            uint32
	Children              []Child
	Protection            *ProtectionSchemeInfo
	DecoderConfigType     [4]byte
	DecoderConfig         []byte
	ObjectTypeIndication  uint8
	DecoderSpecificInfo   []byte
}

// Format is the coding name, looking through encv/enca to the original format.
func (e *SampleEntry) Format() [4]byte {
	if (e.Type == TypeENCV || e.Type == TypeENCA) && e.Protection != nil {
		return e.Protection.OriginalFormat
	}
	return e.Type
}

func (e *SampleEntry) IsVisual() bool {
	switch e.Format() {
	case TypeAVC1, TypeAVC3, TypeHVC1, TypeHEV1:
		return true
	}
	return e.Type == TypeENCV
}

func (e *SampleEntry) IsAudio() bool {
	switch e.Format() {
	case TypeMP4A, TypeAC3, TypeEC3, TypeAC4, TypeOPUS, TypeFLAC, TypeULAW, TypeALAW:
		return true
	}
	return e.Type == TypeENCA
}

type SampleDescriptionBox struct {
	FullBox
	Entries []*SampleEntry
}

// Decode parses the entries of an stsd payload. base is the absolute
// position of the payload, used only for error reporting.
func (stsd *SampleDescriptionBox) Decode(payload []byte, base int64) error {
	r := NewReader(payload)
	stsd.FullBox.decode(r)
	count := r.U32()
	if err := r.Err(TypeSTSD); err != nil {
		return err
	}
	children, err := Children(payload[r.Pos():], base+int64(r.Pos()))
	if err != nil {
		return err
	}
	if uint32(len(children)) < count {
		return pkg.Malformed("stsd declares %d entries, found %d", count, len(children))
	}
	stsd.Entries = make([]*SampleEntry, count)
	for i := range stsd.Entries {
		e := &SampleEntry{Type: children[i].Type}
		if err = e.decode(children[i]); err != nil {
			return pkg.WithBox(err, children[i].Type, children[i].Offset)
		}
		stsd.Entries[i] = e
	}
	return nil
}

func (e *SampleEntry) decode(c Child) (err error) {
	r := NewReader(c.Payload)
	r.Skip(6)
	e.DataReferenceIndex = r.U16()
	childStart := SampleEntryLen
	switch {
	case e.Type == TypeENCV || e.Type == TypeAVC1 || e.Type == TypeAVC3 || e.Type == TypeHVC1 || e.Type == TypeHEV1:
		r.Skip(16)
		e.Width = r.U16()
		e.Height = r.U16()
		r.Skip(50)
		childStart = VisualSampleEntryLen
	case e.Type == TypeENCA || e.Type == TypeMP4A || e.Type == TypeAC3 || e.Type == TypeEC3 || e.Type == TypeAC4 ||
		e.Type == TypeOPUS || e.Type == TypeFLAC || e.Type == TypeULAW || e.Type == TypeALAW:
		version := r.U16()
		r.Skip(6)
		switch version {
		case 0, 1:
			e.ChannelCount = r.U16()
			e.SampleSize = r.U16()
			r.Skip(4)
			e.SampleRate = r.U32() >> 16
			childStart = AudioSampleEntryLen
			if version == 1 {
				r.Skip(16)
				childStart += 16
			}
		case 2:
			r.Skip(16)
			e.SampleRate = uint32(math.Round(math.Float64frombits(r.U64())))
			e.ChannelCount = uint16(r.U32())
			r.Skip(20)
			childStart = AudioSampleEntryLen + 36
		default:
			return pkg.Unsupported("audio sample entry version %d", version)
		}
	}
	if err = r.Err(c.Type); err != nil {
		return
	}
	if childStart > len(c.Payload) {
		return pkg.Malformed("sample entry truncated")
	}
	base := c.Offset + int64(c.HeaderLen) + int64(childStart)
	if e.Children, err = Children(c.Payload[childStart:], base); err != nil {
		return
	}
	return e.decodeChildren(e.Children)
}

func (e *SampleEntry) decodeChildren(children []Child) (err error) {
	for _, child := range children {
		switch child.Type {
		case TypeAVCC, TypeHVCC, TypeDOPS, TypeDFLA:
			e.DecoderConfigType = child.Type
			e.DecoderConfig = child.Payload
		case TypeESDS:
			e.DecoderConfigType = child.Type
			e.DecoderConfig = child.Payload
			if len(child.Payload) < 4 {
				return pkg.Malformed("esds truncated")
			}
			if e.ObjectTypeIndication, e.DecoderSpecificInfo, err = DecodeESDescriptor(child.Payload[4:]); err != nil {
				return pkg.WithBox(err, child.Type, child.Offset)
			}
		case TypeWAVE:
			// QuickTime audio keeps esds inside wave
			var nested []Child
			if nested, err = Children(child.Payload, child.Offset+int64(child.HeaderLen)); err != nil {
				return
			}
			if err = e.decodeChildren(nested); err != nil {
				return
			}
		case TypePASP:
			if len(child.Payload) >= 8 {
				h := binary.BigEndian.Uint32(child.Payload)
				v := binary.BigEndian.Uint32(child.Payload[4:])
				if v != 0 {
					e.PixelWidthHeightRatio = float32(h) / float32(v)
				}
			}
		case TypeSINF:
			var p *ProtectionSchemeInfo
			if p, err = decodeSinf(child); err != nil {
				return pkg.WithBox(err, child.Type, child.Offset)
			}
			if p != nil {
				e.Protection = p
			}
		}
	}
	return nil
}

// aligned(8) class ProtectionSchemeInfoBox(fmt) extends Box('sinf') {
// 	OriginalFormatBox(fmt) original_format;
// 	SchemeTypeBox scheme_type_box; // optional
// 	SchemeInformationBox info; // optional
// }

func decodeSinf(c Child) (*ProtectionSchemeInfo, error) {
	children, err := Children(c.Payload, c.Offset+int64(c.HeaderLen))
	if err != nil {
		return nil, err
	}
	var p ProtectionSchemeInfo
	hasFrma := false
	for _, child := range children {
		switch child.Type {
		case TypeFRMA:
			if len(child.Payload) < 4 {
				return nil, pkg.Malformed("frma truncated")
			}
			p.OriginalFormat = [4]byte(child.Payload)
			hasFrma = true
		case TypeSCHM:
			r := NewReader(child.Payload)
			r.Skip(4)
			p.SchemeType = TypeFromUint32(r.U32())
			p.SchemeVersion = r.U32()
			if err = r.Err(TypeSCHM); err != nil {
				return nil, err
			}
		case TypeSCHI:
			var schi []Child
			if schi, err = Children(child.Payload, child.Offset+int64(child.HeaderLen)); err != nil {
				return nil, err
			}
			if tenc := FindChild(schi, TypeTENC); tenc != nil {
				p.Tenc = &TrackEncryptionBox{}
				if err = p.Tenc.Decode(tenc.Payload); err != nil {
					return nil, err
				}
			}
		}
	}
	if !hasFrma {
		return nil, nil
	}
	if p.Tenc != nil {
		p.Tenc.SchemeType = p.SchemeType
	}
	return &p, nil
}
