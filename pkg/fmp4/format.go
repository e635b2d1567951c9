package fmp4

import (
	"errors"
	"fmt"
	"strconv"

	"m7s.live/fmp4/pkg"
	"m7s.live/fmp4/pkg/box"
	"m7s.live/fmp4/pkg/codec"
)

// buildFormat describes the samples of entry, the first sample description
// of a track. The codec configuration is decoded when the codec is known.
func buildFormat(track *Track, entry *box.SampleEntry, language string) (f *Format, err error) {
	fourcc := codec.FourCC(entry.Format())
	f = &Format{
		ID:                   strconv.FormatUint(uint64(track.ID), 10),
		Kind:                 track.Type,
		FourCC:               fourcc,
		Codecs:               fourcc.String(),
		Language:             language,
		MaxNumReorderSamples: -1,
		DurationUs:           track.DurationUs,
	}
	switch {
	case fourcc.IsH264():
		var ctx *codec.H264Ctx
		if ctx, err = codec.NewH264Ctx(fourcc, entry.DecoderConfig); err != nil {
			return nil, parseError(err)
		}
		f.Codec = ctx
		f.InitializationData = ctx.ParameterSets()
		f.MaxNumReorderSamples = ctx.ReorderDepth()
	case fourcc.IsH265():
		var ctx *codec.H265Ctx
		if ctx, err = codec.NewH265Ctx(fourcc, entry.DecoderConfig); err != nil {
			return nil, parseError(err)
		}
		f.Codec = ctx
		f.InitializationData = ctx.ParameterSets()
		f.MaxNumReorderSamples = ctx.ReorderDepth()
		f.MaxSubLayers = ctx.MaxSubLayers()
	case fourcc == codec.FourCC_MP4A && entry.ObjectTypeIndication == codec.ObjectTypeAudioISO14496 && len(entry.DecoderSpecificInfo) > 0:
		var ctx *codec.AACCtx
		if ctx, err = codec.NewAACCtx(entry.DecoderSpecificInfo); err != nil {
			return nil, parseError(err)
		}
		f.Codec = ctx
		f.InitializationData = [][]byte{entry.DecoderSpecificInfo}
	case entry.IsAudio():
		ctx := &codec.AudioCtx{
			FourCCValue: fourcc,
			SampleRate:  int(entry.SampleRate),
			Channels:    int(entry.ChannelCount),
			SampleSize:  int(entry.SampleSize),
			Record:      entry.DecoderConfig,
		}
		if fourcc == codec.FourCC_MP4A {
			ctx.Record = entry.DecoderSpecificInfo
		}
		f.Codec = ctx
		if len(ctx.Record) > 0 {
			f.InitializationData = [][]byte{ctx.Record}
		}
	}
	switch ctx := f.Codec.(type) {
	case codec.IVideoCodecCtx:
		f.Codecs = ctx.CodecString()
		f.Width, f.Height = ctx.Width(), ctx.Height()
		f.NALLengthSize = ctx.NALLengthSize()
	case codec.IAudioCodecCtx:
		f.Codecs = ctx.CodecString()
		f.SampleRate, f.Channels = ctx.GetSampleRate(), ctx.GetChannels()
	}
	if fourcc == codec.FourCC_MP4A && f.Codec != nil && entry.ObjectTypeIndication != codec.ObjectTypeAudioISO14496 && entry.ObjectTypeIndication != 0 {
		f.Codecs = fmt.Sprintf("mp4a.%02x", entry.ObjectTypeIndication)
	}
	if entry.IsVisual() {
		if f.Width == 0 {
			f.Width, f.Height = int(entry.Width), int(entry.Height)
		}
		f.PixelWidthHeightRatio = entry.PixelWidthHeightRatio
	}
	if entry.IsAudio() {
		if f.SampleRate == 0 {
			f.SampleRate = int(entry.SampleRate)
		}
		if f.Channels == 0 {
			f.Channels = int(entry.ChannelCount)
		}
	}
	return f, nil
}

// parseError classifies codec configuration errors as malformed input.
func parseError(err error) error {
	var pe *pkg.ParseError
	if errors.As(err, &pe) {
		return err
	}
	return pkg.Malformed("%v", err)
}

// encryptionBoxes lists the tenc of every sample description, nil for clear ones.
func encryptionBoxes(stsd *box.SampleDescriptionBox) []*box.TrackEncryptionBox {
	boxes := make([]*box.TrackEncryptionBox, len(stsd.Entries))
	for i, e := range stsd.Entries {
		if e.Protection != nil {
			boxes[i] = e.Protection.Tenc
		}
	}
	return boxes
}

func cryptoDataOf(enc *box.TrackEncryptionBox) *CryptoData {
	c := &CryptoData{
		Mode:            CryptoModeAESCTR,
		KeyID:           enc.KID,
		EncryptedBlocks: int(enc.CryptByteBlock),
		ClearBlocks:     int(enc.SkipByteBlock),
	}
	switch enc.SchemeType {
	case box.TypeCBCS, box.TypeCBC1:
		c.Mode = CryptoModeAESCBC
	}
	return c
}
