// Package caption decodes CEA-608 and CEA-708 closed captions carried in
// ATSC A/53 SEI messages of H.264 and H.265 video tracks.
package caption

import (
	"log/slog"

	"github.com/zsiec/ccx"

	"m7s.live/fmp4/pkg/codec"
)

// 608 channels are numbered 1-4, 708 services are reported as channel
// service+6 so both can share one channel space.
const serviceChannelOffset = 6

// Decoder consumes SEI NAL units and reports every caption update to the
// frame callback. It is not safe for concurrent use.
type Decoder struct {
	*slog.Logger
	onFrame    func(*ccx.CaptionFrame)
	cea608Decs map[int]*ccx.CEA608Decoder
	cea708Svcs map[int]*ccx.CEA708Service
	dtvccBuf   []byte
	dtvccTime  int64

	// access units are counted by distinct presentation time
	units    int64
	lastTime int64

	lastCtrl      [2][2]byte
	lastWasCtrl   [2]bool
	lastCtrlFrame [2]int64
}

func NewDecoder(logger *slog.Logger, onFrame func(*ccx.CaptionFrame)) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Decoder{
		Logger:     logger.With("component", "caption"),
		onFrame:    onFrame,
		cea608Decs: make(map[int]*ccx.CEA608Decoder, 4),
		cea708Svcs: make(map[int]*ccx.CEA708Service, 6),
		lastTime:   -1,
	}
	for ch := 1; ch <= 4; ch++ {
		d.cea608Decs[ch] = ccx.NewCEA608Decoder()
	}
	for svc := 1; svc <= 6; svc++ {
		d.cea708Svcs[svc] = ccx.NewCEA708Service()
	}
	return d
}

// ConsumeSEI implements fmp4.SEIConsumer. nal must start with its NAL unit
// header.
func (d *Decoder) ConsumeSEI(timeUs int64, fourcc codec.FourCC, nal []byte) {
	if !fourcc.IsH264() && !fourcc.IsH265() || len(nal) <= fourcc.NALHeaderSize() {
		return
	}
	if timeUs != d.lastTime {
		d.units++
		d.lastTime = timeUs
	}
	cd := ccx.ExtractCaptions(nal)
	if cd == nil {
		return
	}

	for _, pair := range cd.CC608Pairs {
		cc1, cc2 := pair.Data[0], pair.Data[1]
		f := pair.Field
		if f < 0 || f > 1 {
			continue
		}
		// control codes are transmitted twice, the repeat is dropped
		if cc1 >= 0x10 && cc1 <= 0x1F {
			cp := [2]byte{cc1, cc2}
			if d.lastWasCtrl[f] && d.lastCtrl[f] == cp && d.units-d.lastCtrlFrame[f] <= 2 {
				d.lastWasCtrl[f] = false
				continue
			}
			d.lastCtrl[f] = cp
			d.lastWasCtrl[f] = true
			d.lastCtrlFrame[f] = d.units
		} else {
			d.lastWasCtrl[f] = false
		}

		dec := d.cea608Decs[pair.Channel]
		if dec == nil {
			continue
		}
		if text := dec.Decode(cc1, cc2); text != "" {
			d.emit(&ccx.CaptionFrame{PTS: timeUs, Text: text, Channel: pair.Channel, Regions: dec.StyledRegions()})
		}
	}

	for _, t := range cd.DTVCC {
		if t.Start {
			d.drainDTVCC()
			d.dtvccBuf = d.dtvccBuf[:0]
			d.dtvccTime = timeUs
		}
		d.dtvccBuf = append(d.dtvccBuf, t.Data[0], t.Data[1])
	}
}

// Flush decodes a buffered DTVCC packet. Packets are otherwise only decoded
// when the next one starts.
func (d *Decoder) Flush() {
	d.drainDTVCC()
	d.dtvccBuf = d.dtvccBuf[:0]
}

func (d *Decoder) drainDTVCC() {
	if len(d.dtvccBuf) < 1 {
		return
	}
	packetSize := ccx.DTVCCPacketSize(d.dtvccBuf[0])
	if len(d.dtvccBuf) < packetSize {
		d.Debug("incomplete dtvcc packet", "size", packetSize, "buffered", len(d.dtvccBuf))
		return
	}
	for _, block := range ccx.ParseDTVCCPacket(d.dtvccBuf[:packetSize]) {
		svc := d.cea708Svcs[block.ServiceNum]
		if svc == nil {
			continue
		}
		if svc.ProcessBlock(block.Data) {
			if text := svc.DisplayText(); text != "" {
				d.emit(&ccx.CaptionFrame{
					PTS:     d.dtvccTime,
					Text:    text,
					Channel: block.ServiceNum + serviceChannelOffset,
					Regions: svc.StyledRegions(),
				})
			}
		}
	}
}

func (d *Decoder) emit(frame *ccx.CaptionFrame) {
	d.Debug("caption", "channel", frame.Channel, "pts", frame.PTS, "text", frame.Text)
	if d.onFrame != nil {
		d.onFrame(frame)
	}
}
