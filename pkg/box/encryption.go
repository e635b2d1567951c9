package box

import (
	"m7s.live/fmp4/pkg"
)

// aligned(8) class SampleAuxiliaryInformationSizesBox extends FullBox(‘saiz’, version = 0, flags) {
// 	if (flags & 1) {
// 		unsigned int(32) aux_info_type;
// 		unsigned int(32) aux_info_type_parameter;
// 	}
// 	unsigned int(8) default_sample_info_size;
// 	unsigned int(32) sample_count;
// 	if (default_sample_info_size == 0) {
// 		unsigned int(8) sample_info_size[ sample_count ];
// 	}
// }

type SaizBox struct {
	FullBox
	AuxInfoType           [4]byte
	AuxInfoTypeParameter  uint32
	DefaultSampleInfoSize uint8
	SampleCount           uint32
	SampleInfo            []uint8
}

func (saiz *SaizBox) Decode(payload []byte) error {
	r := NewReader(payload)
	saiz.FullBox.decode(r)
	if saiz.Has(1) {
		saiz.AuxInfoType = TypeFromUint32(r.U32())
		saiz.AuxInfoTypeParameter = r.U32()
	}
	saiz.DefaultSampleInfoSize = r.U8()
	saiz.SampleCount = r.U32()
	if saiz.DefaultSampleInfoSize == 0 {
		if err := r.Fits(TypeSAIZ, uint64(saiz.SampleCount), 1); err != nil {
			return err
		}
		saiz.SampleInfo = r.Bytes(int(saiz.SampleCount))
	}
	return r.Err(TypeSAIZ)
}

// TotalSize is the number of auxiliary information bytes described.
func (saiz *SaizBox) TotalSize() int {
	if saiz.DefaultSampleInfoSize != 0 {
		return int(saiz.DefaultSampleInfoSize) * int(saiz.SampleCount)
	}
	total := 0
	for _, s := range saiz.SampleInfo {
		total += int(s)
	}
	return total
}

// aligned(8) class SampleAuxiliaryInformationOffsetsBox extends FullBox(‘saio’, version, flags) {
// 	if (flags & 1) {
// 		unsigned int(32) aux_info_type;
// 		unsigned int(32) aux_info_type_parameter;
// 	}
// 	unsigned int(32) entry_count;
// 	if ( version == 0 ) {
// 		unsigned int(32) offset[ entry_count ];
// 	} else {
// 		unsigned int(64) offset[ entry_count ];
// 	}
// }

type SaioBox struct {
	FullBox
	Offset []uint64
}

func (saio *SaioBox) Decode(payload []byte) error {
	r := NewReader(payload)
	saio.FullBox.decode(r)
	if saio.Has(1) {
		r.Skip(8)
	}
	count := r.U32()
	width := 4
	if saio.Version == 1 {
		width = 8
	}
	if err := r.Fits(TypeSAIO, uint64(count), width); err != nil {
		return err
	}
	saio.Offset = make([]uint64, count)
	for i := range saio.Offset {
		if saio.Version == 0 {
			saio.Offset[i] = uint64(r.U32())
		} else {
			saio.Offset[i] = r.U64()
		}
	}
	return r.Err(TypeSAIO)
}

// aligned(8) class SampleEncryptionBox extends FullBox(‘senc’, version=0, flags) {
// 	unsigned int(32) sample_count;
// 	{
// 		unsigned int(Per_Sample_IV_Size*8) InitializationVector;
// 		if (flags & 0x000002) {
// 			unsigned int(16) subsample_count;
// 			{
// 				unsigned int(16) BytesOfClearData;
// 				unsigned int(32) BytesOfProtectedData;
// 			} [ subsample_count ]
// 		}
// 	}[ sample_count ]
// }
//
// The PIFF variant carried in a uuid box shares this body. Entries are kept
// raw: their layout depends on the IV size of the active encryption box.

const (
	SENC_FLAG_OVERRIDE_TRACK_ENCRYPTION = 0x000001
	UseSubsampleEncryption              = 0x000002
)

type SampleEncryptionBox struct {
	FullBox
	SampleCount uint32
	Data        []byte
}

func (senc *SampleEncryptionBox) Decode(payload []byte) error {
	r := NewReader(payload)
	senc.FullBox.decode(r)
	if senc.Has(SENC_FLAG_OVERRIDE_TRACK_ENCRYPTION) {
		return pkg.Unsupported("overriding track encryption parameters in senc")
	}
	senc.SampleCount = r.U32()
	if err := r.Err(TypeSENC); err != nil {
		return err
	}
	senc.Data = r.Bytes(r.Left())
	return nil
}

func (senc *SampleEncryptionBox) SubsampleEncryption() bool {
	return senc.Has(UseSubsampleEncryption)
}

// SubSampleEntry is one clear/protected span of a sample.
type SubSampleEntry struct {
	BytesOfClearData     uint16
	BytesOfProtectedData uint32
}

// SencEntry is one decoded per-sample record.
type SencEntry struct {
	IV         []byte
	SubSamples []SubSampleEntry
}

// Entries decodes the raw per-sample records given the IV size in force.
func (senc *SampleEncryptionBox) Entries(ivSize int) ([]SencEntry, error) {
	r := NewReader(senc.Data)
	if err := r.Fits(TypeSENC, uint64(senc.SampleCount), ivSize); err != nil {
		return nil, err
	}
	entries := make([]SencEntry, senc.SampleCount)
	for i := range entries {
		entries[i].IV = r.Bytes(ivSize)
		if senc.SubsampleEncryption() {
			n := r.U16()
			if err := r.Fits(TypeSENC, uint64(n), 6); err != nil {
				return nil, err
			}
			entries[i].SubSamples = make([]SubSampleEntry, n)
			for j := range entries[i].SubSamples {
				entries[i].SubSamples[j] = SubSampleEntry{BytesOfClearData: r.U16(), BytesOfProtectedData: r.U32()}
			}
		}
	}
	return entries, r.Err(TypeSENC)
}

// aligned(8) class SampleToGroupBox extends FullBox(‘sbgp’, version, 0) {
// 	unsigned int(32) grouping_type;
// 	if (version == 1) {
// 		unsigned int(32) grouping_type_parameter;
// 	}
// 	unsigned int(32) entry_count;
// 	...
// }

type SbgpBox struct {
	FullBox
	GroupingType [4]byte
	EntryCount   uint32
}

func (sbgp *SbgpBox) Decode(payload []byte) error {
	r := NewReader(payload)
	sbgp.FullBox.decode(r)
	sbgp.GroupingType = TypeFromUint32(r.U32())
	if sbgp.Version == 1 {
		r.Skip(4)
	}
	sbgp.EntryCount = r.U32()
	return r.Err(TypeSBGP)
}

// SeigSampleGroupEntry - CencSampleEncryptionInformationGroupEntry as defined in
// CEF ISO/IEC 23001-7 3rd edition 2016
type SeigSampleGroupEntry struct {
	CryptByteBlock  byte
	SkipByteBlock   byte
	IsProtected     byte
	PerSampleIVSize byte
	KID             [16]byte
	// ConstantIVSize byte given by len(ConstantIV)
	ConstantIV []byte
}

// SgpdBox - Sample Group Description Box, ISO/IEC 14496-12 6'th edition 2020 Section 8.9.3
// Only single-entry seig descriptions are decoded.
type SgpdBox struct {
	FullBox
	GroupingType  [4]byte
	DefaultLength uint32
	EntryCount    uint32
	Seig          *SeigSampleGroupEntry
}

func (sgpd *SgpdBox) Decode(payload []byte) error {
	r := NewReader(payload)
	sgpd.FullBox.decode(r)
	sgpd.GroupingType = TypeFromUint32(r.U32())
	if sgpd.GroupingType != TypeSEIG {
		return r.Err(TypeSGPD)
	}
	if sgpd.Version == 1 {
		sgpd.DefaultLength = r.U32()
		if sgpd.DefaultLength == 0 {
			return pkg.Unsupported("variable length description in sgpd")
		}
	} else if sgpd.Version >= 2 {
		r.Skip(4)
	}
	sgpd.EntryCount = r.U32()
	if err := r.Err(TypeSGPD); err != nil {
		return err
	}
	if sgpd.EntryCount != 1 {
		return pkg.Unsupported("sgpd entry count %d", sgpd.EntryCount)
	}
	s := &SeigSampleGroupEntry{}
	r.Skip(1)
	pattern := r.U8()
	s.CryptByteBlock = pattern >> 4
	s.SkipByteBlock = pattern & 0x0F
	s.IsProtected = r.U8()
	s.PerSampleIVSize = r.U8()
	if kid := r.Bytes(16); kid != nil {
		s.KID = [16]byte(kid)
	}
	if s.IsProtected == 1 && s.PerSampleIVSize == 0 {
		s.ConstantIV = r.Bytes(int(r.U8()))
	}
	sgpd.Seig = s
	return r.Err(TypeSGPD)
}

// aligned(8) class TrackEncryptionBox extends FullBox(‘tenc’, version, flags=0) {
// 	unsigned int(8) reserved = 0;
// 	if (version==0) {
// 		unsigned int(8) reserved = 0;
// 	} else {
// 		unsigned int(4) default_crypt_byte_block;
// 		unsigned int(4) default_skip_byte_block;
// 	}
// 	unsigned int(8) default_isProtected;
// 	unsigned int(8) default_Per_Sample_IV_Size;
// 	unsigned int(8)[16] default_KID;
// 	if (default_isProtected ==1 && default_Per_Sample_IV_Size == 0) {
// 		unsigned int(8) default_constant_IV_size;
// 		unsigned int(8)[default_constant_IV_size] default_constant_IV;
// 	}
// }

// TrackEncryptionBox is the encryption configuration of one sample
// description, from tenc or from a seig sample group.
type TrackEncryptionBox struct {
	IsEncrypted     bool
	SchemeType      [4]byte
	PerSampleIVSize uint8
	KID             [16]byte
	CryptByteBlock  uint8
	SkipByteBlock   uint8
	ConstantIV      []byte
}

func (tenc *TrackEncryptionBox) Decode(payload []byte) error {
	r := NewReader(payload)
	var fb FullBox
	fb.decode(r)
	r.Skip(1)
	pattern := r.U8()
	if fb.Version != 0 {
		tenc.CryptByteBlock = pattern >> 4
		tenc.SkipByteBlock = pattern & 0x0F
	}
	tenc.IsEncrypted = r.U8() == 1
	tenc.PerSampleIVSize = r.U8()
	if kid := r.Bytes(16); kid != nil {
		tenc.KID = [16]byte(kid)
	}
	if tenc.IsEncrypted && tenc.PerSampleIVSize == 0 {
		tenc.ConstantIV = r.Bytes(int(r.U8()))
	}
	return r.Err(TypeTENC)
}

// TrackEncryption converts a seig group entry into a fragment-level encryption box.
func (s *SeigSampleGroupEntry) TrackEncryption(schemeType [4]byte) *TrackEncryptionBox {
	return &TrackEncryptionBox{
		IsEncrypted:     s.IsProtected == 1,
		SchemeType:      schemeType,
		PerSampleIVSize: s.PerSampleIVSize,
		KID:             s.KID,
		CryptByteBlock:  s.CryptByteBlock,
		SkipByteBlock:   s.SkipByteBlock,
		ConstantIV:      s.ConstantIV,
	}
}

// aligned(8) class ProtectionSystemSpecificHeaderBox extends FullBox(‘pssh’, version, flags=0) {
// 	unsigned int(8)[16] SystemID;
// 	if (version > 0) {
// 		unsigned int(32) KID_count;
// 		{
// 			unsigned int(8)[16] KID;
// 		} [KID_count];
// 	}
// 	unsigned int(32) DataSize;
// 	unsigned int(8)[DataSize] Data;
// }

type PsshBox struct {
	FullBox
	SystemID [16]byte
	KIDs     [][16]byte
	Data     []byte
}

func (pssh *PsshBox) Decode(payload []byte) error {
	r := NewReader(payload)
	pssh.FullBox.decode(r)
	if id := r.Bytes(16); id != nil {
		pssh.SystemID = [16]byte(id)
	}
	if pssh.Version > 0 {
		count := r.U32()
		if err := r.Fits(TypePSSH, uint64(count), 16); err != nil {
			return err
		}
		pssh.KIDs = make([][16]byte, count)
		for i := range pssh.KIDs {
			pssh.KIDs[i] = [16]byte(r.Bytes(16))
		}
	}
	size := r.U32()
	if err := r.Fits(TypePSSH, uint64(size), 1); err != nil {
		return err
	}
	pssh.Data = r.Bytes(int(size))
	return r.Err(TypePSSH)
}
