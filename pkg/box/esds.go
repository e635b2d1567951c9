package box

import (
	"github.com/yapingcat/gomedia/go-codec"

	"m7s.live/fmp4/pkg"
)

// abstract aligned(8) expandable(228-1) class BaseDescriptor : bit(8) tag=0 {
// 	// empty. To be filled by classes extending this class.
// }

//  int sizeOfInstance = 0;
// 	bit(1) nextByte;
// 	bit(7) sizeOfInstance;
// 	while(nextByte) {
// 		bit(1) nextByte;
// 		bit(7) sizeByte;
// 		sizeOfInstance = sizeOfInstance<<7 | sizeByte;
// }

type BaseDescriptor struct {
	tag            uint8
	sizeOfInstance uint32
}

func (base *BaseDescriptor) Decode(data []byte) *codec.BitStream {
	bs := codec.NewBitStream(data)
	base.tag = bs.Uint8(8)
	nextbit := uint8(1)
	for i := 0; nextbit == 1 && i < 4; i++ {
		nextbit = bs.GetBit()
		base.sizeOfInstance = base.sizeOfInstance<<7 | bs.Uint32(7)
	}
	return bs
}

const (
	ES_DescrTag             = 0x03
	DecoderConfigDescrTag   = 0x04
	DecSpecificInfoTag      = 0x05
	ObjectTypeAudioISO14496 = 0x40
)

// DecodeESDescriptor walks the descriptors of an esds payload (after the
// full box header) and returns the object type and decoder specific info.
func DecodeESDescriptor(esd []byte) (objectType uint8, dsi []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pkg.Malformed("esds descriptor truncated: %v", r)
		}
	}()
	var bs *codec.BitStream
	for len(esd) > 0 {
		based := BaseDescriptor{}
		bs = based.Decode(esd)
		switch based.tag {
		case ES_DescrTag:
			_ = bs.Uint32(16) // esId
			streamDependenceFlag := bs.GetBit()
			urlFlag := bs.GetBit()
			oCRstreamFlag := bs.GetBit()
			_ = bs.Uint8(5) //streamPriority
			if streamDependenceFlag == 1 {
				_ = bs.Uint32(16) // dependsOnEsId
			}
			if urlFlag == 1 {
				bs.SkipBits(int(bs.Uint8(8)) * 8)
			}
			if oCRstreamFlag == 1 {
				_ = bs.Uint32(16) // oCREsId
			}
			esd = bs.RemainData()
		case DecoderConfigDescrTag:
			objectType = bs.Uint8(8)
			bs.SkipBits(8 + 24 + 32 + 32)
			esd = bs.RemainData()
		case DecSpecificInfoTag:
			dsi = bs.GetBytes(int(based.sizeOfInstance))
			esd = bs.RemainData()
		default:
			bs.SkipBits(int(based.sizeOfInstance) * 8)
			esd = bs.RemainData()
		}
	}
	return
}
