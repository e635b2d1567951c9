package caption

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zsiec/ccx"

	"m7s.live/fmp4/pkg/codec"
)

func addParity(b byte) byte {
	b &= 0x7F
	ones := 0
	for v := b; v != 0; v >>= 1 {
		ones += int(v & 1)
	}
	if ones%2 == 0 {
		return b | 0x80
	}
	return b
}

// a53SEI builds an H.264 SEI NAL unit carrying one field 1 byte pair.
func a53SEI(cc1, cc2 byte) []byte {
	payload := []byte{0xB5, 0x00, 0x31, 'G', 'A', '9', '4', 0x03, 0x40 | 1, 0xFF}
	payload = append(payload, 0xFC, addParity(cc1), addParity(cc2), 0xFF)
	nal := []byte{0x06, 0x04, byte(len(payload))}
	nal = append(nal, payload...)
	return append(nal, 0x80)
}

func TestDecoder(t *testing.T) {
	t.Run("roll-up text", func(t *testing.T) {
		var frames []*ccx.CaptionFrame
		d := NewDecoder(nil, func(f *ccx.CaptionFrame) { frames = append(frames, f) })
		pairs := [][2]byte{
			{0x14, 0x25}, {0x14, 0x25}, // RU2
			{0x14, 0x2C}, {0x14, 0x2C}, // EDM
			{0x14, 0x60}, {0x14, 0x60}, // PAC row 14
			{'H', 'I'},
		}
		for i, p := range pairs {
			d.ConsumeSEI(int64(i)*33367, codec.FourCC_H264, a53SEI(p[0], p[1]))
		}
		d.Flush()
		require.NotEmpty(t, frames)
		found := false
		for _, f := range frames {
			require.Equal(t, 1, f.Channel)
			found = found || strings.Contains(f.Text, "HI")
		}
		require.True(t, found, "no caption frame with the decoded text")
		require.Equal(t, int64(len(pairs)-1)*33367, frames[len(frames)-1].PTS)
	})

	t.Run("ignored units", func(t *testing.T) {
		var frames []*ccx.CaptionFrame
		d := NewDecoder(nil, func(f *ccx.CaptionFrame) { frames = append(frames, f) })
		unregistered := []byte{0x06, 0x05, 0x10}
		unregistered = append(unregistered, []byte("0123456789abcdef")...)
		unregistered = append(unregistered, 0x80)
		d.ConsumeSEI(0, codec.FourCC_H264, unregistered)
		d.ConsumeSEI(0, codec.FourCC_MP4A, a53SEI('H', 'I'))
		d.ConsumeSEI(0, codec.FourCC_H265, []byte{0x4E, 0x01})
		d.Flush()
		require.Empty(t, frames)
		require.Equal(t, int64(1), d.units)
	})
}
