package codec

import (
	"bytes"
	"fmt"

	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
	"github.com/deepch/vdk/codec/h264parser"
)

// Start Code + NAL Unit -> NALU Header + NALU Body
// MP4 sample -> (NALU length + NALU Header + NALU Body) ...
type H264NALUType byte

func ParseH264NALUType(b byte) H264NALUType {
	return H264NALUType(b & 0x1F)
}

const (
	// NALU Type
	NALU_Unspecified           H264NALUType = iota
	NALU_Non_IDR_Picture                    // 1
	NALU_Data_Partition_A                   // 2
	NALU_Data_Partition_B                   // 3
	NALU_Data_Partition_C                   // 4
	NALU_IDR_Picture                        // 5
	NALU_SEI                                // 6
	NALU_SPS                                // 7
	NALU_PPS                                // 8
	NALU_Access_Unit_Delimiter              // 9
	NALU_Sequence_End                       // 10
	NALU_Stream_End                         // 11
	NALU_Filler_Data                        // 12
	NALU_SPS_Extension                      // 13
	NALU_Prefix                             // 14
	NALU_SPS_Subset                         // 15
	NALU_DPS                                // 16
)

var (
	NALU_Delimiter1 = []byte{0x00, 0x00, 0x01}
	NALU_Delimiter2 = []byte{0x00, 0x00, 0x00, 0x01}
)

// SplitAnnexB 以起始码分割H264/H265裸数据
func SplitAnnexB(payload []byte) (nalus [][]byte) {
	for _, v := range bytes.SplitN(payload, NALU_Delimiter2, -1) {
		if len(v) == 0 {
			continue
		}
		nalus = append(nalus, bytes.SplitN(v, NALU_Delimiter1, -1)...)
	}
	return
}

// IsH264NALDependedOn reports whether other units may reference the unit
// starting with header. Only nal_ref_idc and the unit type are inspected.
func IsH264NALDependedOn(header byte) bool {
	if (header>>5)&0x03 != 0 {
		return true
	}
	switch ParseH264NALUType(header) {
	case NALU_Non_IDR_Picture, NALU_Access_Unit_Delimiter, NALU_Prefix:
		return false
	}
	return true
}

type H264Ctx struct {
	h264parser.CodecData
	FourCCValue FourCC
	Info        SPSInfo
}

// NewH264Ctx decodes an avcC record. The record header is required; parameter
// set details are filled in when the SPS parses.
func NewH264Ctx(fourcc FourCC, record []byte) (ctx *H264Ctx, err error) {
	ctx = &H264Ctx{FourCCValue: fourcc}
	ctx.Info.MaxNumReorderFrames = -1
	if ctx.CodecData, err = h264parser.NewCodecDataFromAVCDecoderConfRecord(record); err != nil {
		// avc3 carries its parameter sets in band
		ctx.CodecData = h264parser.CodecData{Record: record}
		if _, err = ctx.RecordInfo.Unmarshal(record); err != nil {
			return nil, fmt.Errorf("avcC: %w", err)
		}
	}
	if len(ctx.RecordInfo.SPS) > 0 {
		ctx.Info.parseH264(ctx.RecordInfo.SPS[0])
	}
	return ctx, nil
}

func (info *SPSInfo) parseH264(nalu []byte) {
	var sps h264.SPS
	if err := sps.Unmarshal(nalu); err != nil {
		return
	}
	info.ProfileIdc = uint(sps.ProfileIdc)
	info.LevelIdc = uint(sps.LevelIdc)
	info.Width = uint(sps.Width())
	info.Height = uint(sps.Height())
	if sps.VUI != nil && sps.VUI.BitstreamRestriction != nil {
		info.MaxNumReorderFrames = int(sps.VUI.BitstreamRestriction.MaxNumReorderFrames)
	} else if sps.ProfileIdc == 66 {
		// baseline has no B slices
		info.MaxNumReorderFrames = 0
	}
}

func (ctx *H264Ctx) FourCC() FourCC {
	return ctx.FourCCValue
}

func (ctx *H264Ctx) GetInfo() string {
	return fmt.Sprintf("resolution: %dx%d, reorder: %d", ctx.Width(), ctx.Height(), ctx.Info.MaxNumReorderFrames)
}

func (ctx *H264Ctx) CodecString() string {
	r := ctx.RecordInfo
	return fmt.Sprintf("%s.%02X%02X%02X", ctx.FourCCValue, r.AVCProfileIndication, r.ProfileCompatibility, r.AVCLevelIndication)
}

func (ctx *H264Ctx) GetRecord() []byte {
	return ctx.Record
}

func (ctx *H264Ctx) Width() int {
	if ctx.Info.Width == 0 {
		return ctx.CodecData.Width()
	}
	return int(ctx.Info.Width)
}

func (ctx *H264Ctx) Height() int {
	if ctx.Info.Height == 0 {
		return ctx.CodecData.Height()
	}
	return int(ctx.Info.Height)
}

func (ctx *H264Ctx) NALLengthSize() int {
	return int(ctx.RecordInfo.LengthSizeMinusOne&0x03) + 1
}

func (ctx *H264Ctx) ReorderDepth() int {
	return ctx.Info.MaxNumReorderFrames
}

// ParameterSets returns SPS then PPS units.
func (ctx *H264Ctx) ParameterSets() (sets [][]byte) {
	sets = append(sets, ctx.RecordInfo.SPS...)
	return append(sets, ctx.RecordInfo.PPS...)
}
