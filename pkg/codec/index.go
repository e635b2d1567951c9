package codec

// ICodecCtx is the decoded configuration of a sample description.
type ICodecCtx interface {
	FourCC() FourCC
	GetInfo() string
	// CodecString is the RFC 6381 codecs parameter.
	CodecString() string
	GetRecord() []byte
}

type IVideoCodecCtx interface {
	ICodecCtx
	Width() int
	Height() int
	NALLengthSize() int
	ReorderDepth() int
}

type IAudioCodecCtx interface {
	ICodecCtx
	GetSampleRate() int
	GetChannels() int
}
