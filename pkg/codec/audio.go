package codec

import (
	"fmt"

	"github.com/deepch/vdk/codec/aacparser"
)

const ObjectTypeAudioISO14496 = 0x40

type (
	// AudioCtx describes audio whose configuration is carried by the sample
	// entry alone.
	AudioCtx struct {
		FourCCValue FourCC
		SampleRate  int
		Channels    int
		SampleSize  int
		Record      []byte
	}
	AACCtx struct {
		aacparser.CodecData
	}
)

func (ctx *AudioCtx) FourCC() FourCC {
	return ctx.FourCCValue
}

func (ctx *AudioCtx) GetRecord() []byte {
	return ctx.Record
}

func (ctx *AudioCtx) GetSampleRate() int {
	return ctx.SampleRate
}

func (ctx *AudioCtx) GetChannels() int {
	return ctx.Channels
}

func (ctx *AudioCtx) GetInfo() string {
	return fmt.Sprintf("sample rate: %d, channels: %d, sample size: %d", ctx.SampleRate, ctx.Channels, ctx.SampleSize)
}

func (ctx *AudioCtx) CodecString() string {
	switch ctx.FourCCValue {
	case FourCC_OPUS:
		return "opus"
	case FourCC_FLAC:
		return "flac"
	}
	return ctx.FourCCValue.String()
}

// NewAACCtx decodes an AudioSpecificConfig.
func NewAACCtx(asc []byte) (ctx *AACCtx, err error) {
	ctx = &AACCtx{}
	if ctx.CodecData, err = aacparser.NewCodecDataFromMPEG4AudioConfigBytes(asc); err != nil {
		return nil, fmt.Errorf("aac config: %w", err)
	}
	return
}

func (*AACCtx) FourCC() FourCC {
	return FourCC_MP4A
}

func (ctx *AACCtx) GetChannels() int {
	return ctx.ChannelLayout().Count()
}

func (ctx *AACCtx) GetSampleRate() int {
	return ctx.SampleRate()
}

func (ctx *AACCtx) GetRecord() []byte {
	return ctx.ConfigBytes
}

func (ctx *AACCtx) GetInfo() string {
	return fmt.Sprintf("sample rate: %d, channels: %d, object type: %d", ctx.SampleRate(), ctx.GetChannels(), ctx.Config.ObjectType)
}

func (ctx *AACCtx) CodecString() string {
	return fmt.Sprintf("mp4a.%02x.%d", ObjectTypeAudioISO14496, ctx.Config.ObjectType)
}
