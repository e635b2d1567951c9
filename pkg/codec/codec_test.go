package codec

import (
	"testing"
)

var (
	testSPS = []byte{0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02, 0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04, 0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9, 0x20}
	testPPS = []byte{0x68, 0xce, 0x3c, 0x80}
)

func avcC(sps, pps []byte) []byte {
	b := []byte{1, sps[1], sps[2], sps[3], 0xFF, 0xE1, byte(len(sps) >> 8), byte(len(sps))}
	b = append(b, sps...)
	b = append(b, 1, byte(len(pps)>>8), byte(len(pps)))
	return append(b, pps...)
}

func TestH264Ctx(t *testing.T) {
	ctx, err := NewH264Ctx(FourCC_H264, avcC(testSPS, testPPS))
	if err != nil {
		t.Fatal(err)
	}
	if got := ctx.CodecString(); got != "avc1.42C028" {
		t.Errorf("codec string %s", got)
	}
	if ctx.NALLengthSize() != 4 {
		t.Errorf("length size %d", ctx.NALLengthSize())
	}
	if ctx.Width() != 1920 || ctx.Height() != 1080 {
		t.Errorf("resolution %dx%d", ctx.Width(), ctx.Height())
	}
	if ctx.ReorderDepth() != 0 {
		t.Errorf("baseline reorder depth %d", ctx.ReorderDepth())
	}
	if sets := ctx.ParameterSets(); len(sets) != 2 {
		t.Errorf("parameter sets %d", len(sets))
	}
}

func TestH264DependedOn(t *testing.T) {
	cases := []struct {
		header byte
		want   bool
	}{
		{0x65, true},  // IDR, ref_idc 3
		{0x41, true},  // non-IDR, ref_idc 2
		{0x01, false}, // non-IDR, ref_idc 0
		{0x09, false}, // AUD
		{0x0E, false}, // prefix
		{0x06, true},  // SEI
	}
	for _, c := range cases {
		if got := IsH264NALDependedOn(c.header); got != c.want {
			t.Errorf("header %02x: got %v", c.header, got)
		}
	}
}

func TestH265Header(t *testing.T) {
	// TRAIL_N in temporal layer 2
	h := ParseH265NALHeader([]byte{0x00, 0x03})
	if h.Type != 0 || h.LayerID != 0 || h.TemporalID != 2 {
		t.Fatalf("unexpected %+v", h)
	}
	if IsH265NALDependedOn(h, 3) {
		t.Error("highest sub-layer non-reference picture is not depended on")
	}
	if !IsH265NALDependedOn(h, 4) {
		t.Error("lower sub-layer pictures are depended on")
	}
	// TRAIL_R is a reference picture
	if !IsH265NALDependedOn(ParseH265NALHeader([]byte{0x02, 0x03}), 3) {
		t.Error("TRAIL_R")
	}
	if IsH265NALDependedOn(ParseH265NALHeader([]byte{0x46, 0x01}), 1) {
		t.Error("AUD")
	}
	if !FourCC_HEV1.IsSEI(0x4E) || FourCC_HEV1.IsSEI(0x50) || !FourCC_H264.IsSEI(0x06) {
		t.Error("IsSEI")
	}
}

func TestH265CodecString(t *testing.T) {
	record := make([]byte, hvcCHeaderLen)
	record[0] = 1
	record[1] = 0x01                                           // main profile, tier L
	record[2], record[3], record[4], record[5] = 0x60, 0, 0, 0 // compatibility flags 1 and 2
	record[6] = 0x90                                           // progressive, frame only
	record[12] = 93
	record[21] = 0xFF
	record[22] = 0
	ctx, err := NewH265Ctx(FourCC_H265, record)
	if err != nil {
		t.Fatal(err)
	}
	if got := ctx.CodecString(); got != "hvc1.1.6.L93.90" {
		t.Errorf("codec string %s", got)
	}
	if ctx.NALLengthSize() != 4 || ctx.MaxSubLayers() != 1 || ctx.ReorderDepth() != -1 {
		t.Errorf("unexpected %+v", ctx.Info)
	}
	if _, err = NewH265Ctx(FourCC_H265, record[:10]); err == nil {
		t.Error("short record accepted")
	}
}

func TestAACCtx(t *testing.T) {
	ctx, err := NewAACCtx([]byte{0x12, 0x10})
	if err != nil {
		t.Fatal(err)
	}
	if ctx.GetSampleRate() != 44100 || ctx.GetChannels() != 2 || ctx.CodecString() != "mp4a.40.2" {
		t.Errorf("unexpected %s %s", ctx.GetInfo(), ctx.CodecString())
	}
}

func TestSplitAnnexB(t *testing.T) {
	nalus := SplitAnnexB([]byte{0, 0, 0, 1, 0x67, 1, 0, 0, 0, 1, 0x68, 2, 0, 0, 1, 0x65, 3})
	if len(nalus) != 3 || nalus[0][0] != 0x67 || nalus[1][0] != 0x68 || nalus[2][0] != 0x65 {
		t.Errorf("unexpected %v", nalus)
	}
	if ParseH264NALUType(nalus[2][0]) != NALU_IDR_Picture {
		t.Errorf("type %d", ParseH264NALUType(nalus[2][0]))
	}
}
