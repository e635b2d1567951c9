package codec

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/bluenviron/mediacommon/pkg/codecs/h265"
	"github.com/deepch/vdk/codec/h265parser"
	gocodec "github.com/yapingcat/gomedia/go-codec"

	"m7s.live/fmp4/pkg"
)

type H265NALUType byte

func ParseH265NALUType(b byte) H265NALUType {
	return H265NALUType(b & 0x7E >> 1)
}

const (
	NAL_UNIT_RSV_VCL_N14 H265NALUType = 14
	NAL_UNIT_VPS         H265NALUType = 32
	NAL_UNIT_SPS         H265NALUType = 33
	NAL_UNIT_PPS         H265NALUType = 34
	NAL_UNIT_AUD         H265NALUType = 35
	NAL_UNIT_PREFIX_SEI  H265NALUType = 39
	NAL_UNIT_SUFFIX_SEI  H265NALUType = 40
)

// H265NALHeader is the two byte header of an H.265 NAL unit.
//
//	forbidden_zero_bit    f(1)
//	nal_unit_type         u(6)
//	nuh_layer_id          u(6)
//	nuh_temporal_id_plus1 u(3)
type H265NALHeader struct {
	Type       H265NALUType
	LayerID    uint8
	TemporalID int
}

func ParseH265NALHeader(b []byte) (h H265NALHeader) {
	bs := gocodec.NewBitStream(b[:2])
	bs.SkipBits(1)
	h.Type = H265NALUType(bs.Uint8(6))
	h.LayerID = bs.Uint8(6)
	h.TemporalID = int(bs.Uint8(3)) - 1
	return
}

// IsH265NALDependedOn reports whether other units may reference the unit.
// Sub-layer non-reference pictures in the highest temporal sub-layer and
// access unit delimiters are never referenced.
func IsH265NALDependedOn(h H265NALHeader, maxSubLayers int) bool {
	if h.Type == NAL_UNIT_AUD {
		return false
	}
	subLayerNonReference := h.Type <= NAL_UNIT_RSV_VCL_N14 && h.Type%2 == 0
	return !(subLayerNonReference && h.TemporalID == maxSubLayers-1)
}

type H265Ctx struct {
	h265parser.CodecData
	FourCCValue        FourCC
	Info               SPSInfo
	LengthSizeMinusOne uint8
	VPS, SPS, PPS      [][]byte
}

// aligned(8) class HEVCDecoderConfigurationRecord {
// 	unsigned int(8) configurationVersion = 1;
// 	unsigned int(2) general_profile_space;
// 	unsigned int(1) general_tier_flag;
// 	unsigned int(5) general_profile_idc;
// 	unsigned int(32) general_profile_compatibility_flags;
// 	unsigned int(48) general_constraint_indicator_flags;
// 	unsigned int(8) general_level_idc;
// 	...
// 	bit(6) reserved = '111111'b;
// 	unsigned int(2) lengthSizeMinusOne;
// 	unsigned int(8) numOfArrays;
// 	for (j=0; j < numOfArrays; j++) {
// 		bit(1) array_completeness;
// 		unsigned int(1) reserved = 0;
// 		unsigned int(6) NAL_unit_type;
// 		unsigned int(16) numNalus;
// 		for (i=0; i< numNalus; i++) {
// 			unsigned int(16) nalUnitLength;
// 			bit(8*nalUnitLength) nalUnit;
// 		}
// 	}
// }

const hvcCHeaderLen = 23

func NewH265Ctx(fourcc FourCC, record []byte) (*H265Ctx, error) {
	if len(record) < hvcCHeaderLen {
		return nil, pkg.Malformed("hvcC record of %d bytes", len(record))
	}
	ctx := &H265Ctx{FourCCValue: fourcc}
	ctx.Info.MaxNumReorderFrames = -1
	ctx.Info.MaxSubLayers = 1
	ctx.Record = record
	ctx.LengthSizeMinusOne = record[21] & 0x03
	n := int(record[22])
	pos := hvcCHeaderLen
	for i := 0; i < n; i++ {
		if pos+3 > len(record) {
			return nil, pkg.Malformed("hvcC array %d truncated", i)
		}
		typ := H265NALUType(record[pos] & 0x3F)
		count := int(record[pos+1])<<8 | int(record[pos+2])
		pos += 3
		for j := 0; j < count; j++ {
			if pos+2 > len(record) {
				return nil, pkg.Malformed("hvcC nal %d truncated", j)
			}
			size := int(record[pos])<<8 | int(record[pos+1])
			pos += 2
			if pos+size > len(record) {
				return nil, pkg.Malformed("hvcC nal %d truncated", j)
			}
			nalu := record[pos : pos+size]
			pos += size
			switch typ {
			case NAL_UNIT_VPS:
				ctx.VPS = append(ctx.VPS, nalu)
			case NAL_UNIT_SPS:
				ctx.SPS = append(ctx.SPS, nalu)
			case NAL_UNIT_PPS:
				ctx.PPS = append(ctx.PPS, nalu)
			}
		}
	}
	if len(ctx.VPS) > 0 && len(ctx.SPS) > 0 && len(ctx.PPS) > 0 {
		if cd, err := h265parser.NewCodecDataFromVPSAndSPSAndPPS(ctx.VPS[0], ctx.SPS[0], ctx.PPS[0]); err == nil {
			cd.Record = record
			ctx.CodecData = cd
		}
	}
	if len(ctx.SPS) > 0 {
		ctx.Info.parseH265(ctx.SPS[0])
	}
	return ctx, nil
}

func (info *SPSInfo) parseH265(nalu []byte) {
	var sps h265.SPS
	if err := sps.Unmarshal(nalu); err != nil {
		return
	}
	info.ProfileIdc = uint(sps.ProfileTierLevel.GeneralProfileIdc)
	info.Width = uint(sps.Width())
	info.Height = uint(sps.Height())
	info.MaxSubLayers = int(sps.MaxSubLayersMinus1) + 1
	if l := len(sps.MaxNumReorderPics); l > 0 {
		info.MaxNumReorderFrames = int(sps.MaxNumReorderPics[l-1])
	}
}

func (ctx *H265Ctx) FourCC() FourCC {
	return ctx.FourCCValue
}

func (ctx *H265Ctx) GetInfo() string {
	return fmt.Sprintf("resolution: %dx%d, reorder: %d, sub-layers: %d", ctx.Width(), ctx.Height(), ctx.Info.MaxNumReorderFrames, ctx.Info.MaxSubLayers)
}

// CodecString follows ISO/IEC 14496-15 Annex E.
func (ctx *H265Ctx) CodecString() string {
	r := ctx.Record
	var sb strings.Builder
	sb.WriteString(ctx.FourCCValue.String())
	sb.WriteByte('.')
	if space := r[1] >> 6; space > 0 {
		sb.WriteByte('A' + space - 1)
	}
	fmt.Fprintf(&sb, "%d", r[1]&0x1F)
	compat := uint32(r[2])<<24 | uint32(r[3])<<16 | uint32(r[4])<<8 | uint32(r[5])
	fmt.Fprintf(&sb, ".%X", bits.Reverse32(compat))
	tier := byte('L')
	if r[1]&0x20 != 0 {
		tier = 'H'
	}
	fmt.Fprintf(&sb, ".%c%d", tier, r[12])
	constraints := r[6:12]
	last := len(constraints)
	for last > 0 && constraints[last-1] == 0 {
		last--
	}
	for _, c := range constraints[:last] {
		fmt.Fprintf(&sb, ".%X", c)
	}
	return sb.String()
}

func (ctx *H265Ctx) GetRecord() []byte {
	return ctx.Record
}

func (ctx *H265Ctx) Width() int {
	if ctx.Info.Width == 0 {
		return ctx.CodecData.Width()
	}
	return int(ctx.Info.Width)
}

func (ctx *H265Ctx) Height() int {
	if ctx.Info.Height == 0 {
		return ctx.CodecData.Height()
	}
	return int(ctx.Info.Height)
}

func (ctx *H265Ctx) NALLengthSize() int {
	return int(ctx.LengthSizeMinusOne) + 1
}

func (ctx *H265Ctx) ReorderDepth() int {
	return ctx.Info.MaxNumReorderFrames
}

func (ctx *H265Ctx) MaxSubLayers() int {
	return ctx.Info.MaxSubLayers
}

// ParameterSets returns VPS, SPS then PPS units.
func (ctx *H265Ctx) ParameterSets() (sets [][]byte) {
	sets = append(sets, ctx.VPS...)
	sets = append(sets, ctx.SPS...)
	return append(sets, ctx.PPS...)
}
