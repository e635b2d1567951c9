package fmp4

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"m7s.live/fmp4/pkg"
	"m7s.live/fmp4/pkg/box"
	"m7s.live/fmp4/pkg/codec"
	"m7s.live/fmp4/pkg/util"
)

// EmsgTrackID is the output id of the event message track.
const EmsgTrackID = 100

// EventMessage is an emsg box as written to the event message track.
type EventMessage struct {
	SchemeIDURI string
	Value       string
	DurationMs  uint64
	ID          uint64
	MessageData []byte
}

// Encode lays the message out as scheme\0value\0, the duration and id as
// 64-bit big endian integers, then the message data.
func (m *EventMessage) Encode() []byte {
	b := make([]byte, 0, len(m.SchemeIDURI)+len(m.Value)+18+len(m.MessageData))
	b = append(b, m.SchemeIDURI...)
	b = append(b, 0)
	b = append(b, m.Value...)
	b = append(b, 0)
	b = binary.BigEndian.AppendUint64(b, m.DurationMs)
	b = binary.BigEndian.AppendUint64(b, m.ID)
	return append(b, m.MessageData...)
}

// DecodeEventMessage parses a sample of the event message track.
func DecodeEventMessage(b []byte) (*EventMessage, error) {
	var m EventMessage
	var ok bool
	if m.SchemeIDURI, b, ok = cutString(b); !ok {
		return nil, fmt.Errorf("event message: scheme not terminated")
	}
	if m.Value, b, ok = cutString(b); !ok {
		return nil, fmt.Errorf("event message: value not terminated")
	}
	if len(b) < 16 {
		return nil, fmt.Errorf("event message: %d bytes left for duration and id", len(b))
	}
	m.DurationMs = binary.BigEndian.Uint64(b)
	m.ID = binary.BigEndian.Uint64(b[8:])
	m.MessageData = b[16:]
	return &m, nil
}

func cutString(b []byte) (string, []byte, bool) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", b, false
	}
	return string(b[:i]), b[i+1:], true
}

// pendingMetadataSample is an event message written to the track whose
// metadata waits for the next media sample.
type pendingMetadataSample struct {
	timeUs   int64
	relative bool // timeUs is an offset from the next media sample
	size     int
}

func newEmsgFormat() *Format {
	return &Format{
		ID:                   fmt.Sprint(EmsgTrackID),
		Kind:                 TrackTypeMetadata,
		FourCC:               codec.FourCC_EMSG,
		Codecs:               "emsg",
		MaxNumReorderSamples: -1,
		DurationUs:           TimeUnset,
	}
}

// onEmsg writes a top-level emsg to the event message track.
func (d *Demuxer) onEmsg(leaf *leafAtom) error {
	if d.emsgOutput == nil {
		return nil
	}
	var emsg box.EventMessageBox
	if err := leaf.decode(&emsg); err != nil {
		return err
	}
	if emsg.Version > 1 {
		d.Warn("skip emsg", "version", emsg.Version, "position", leaf.Position)
		return nil
	}
	if emsg.TimeScale == 0 {
		return pkg.Malformed("emsg timescale is zero").At(leaf.Type, leaf.Position)
	}
	timescale := int64(emsg.TimeScale)
	timeUs, deltaUs := TimeUnset, int64(0)
	if emsg.Version == 0 {
		deltaUs = util.ScaleTimestamp(int64(emsg.PresentationTimeDelta), util.MicrosPerSecond, timescale)
		if d.segmentIndexEarliestPresentationTimeUs != TimeUnset {
			timeUs = d.segmentIndexEarliestPresentationTimeUs + deltaUs
		}
	} else {
		timeUs = util.ScaleTimestamp(int64(emsg.PresentationTime), util.MicrosPerSecond, timescale)
	}
	m := EventMessage{
		SchemeIDURI: emsg.SchemeIDURI,
		Value:       emsg.Value,
		DurationMs:  uint64(util.ScaleTimestamp(int64(emsg.EventDuration), 1000, timescale)),
		ID:          uint64(emsg.ID),
		MessageData: emsg.MessageData,
	}
	sample := m.Encode()
	d.emsgOutput.SampleData(sample)
	switch {
	case timeUs == TimeUnset:
		d.pendingMetadata = append(d.pendingMetadata, pendingMetadataSample{timeUs: deltaUs, relative: true, size: len(sample)})
		d.pendingMetadataBytes += len(sample)
	case len(d.pendingMetadata) > 0:
		d.pendingMetadata = append(d.pendingMetadata, pendingMetadataSample{timeUs: timeUs, size: len(sample)})
		d.pendingMetadataBytes += len(sample)
	default:
		d.emsgOutput.SampleMetadata(timeUs, FlagKeyFrame, len(sample), 0, nil)
	}
	return nil
}

// outputPendingMetadataSamples commits queued event messages once the media
// sample at sampleTimeUs anchors their times.
func (d *Demuxer) outputPendingMetadataSamples(sampleTimeUs int64) {
	for len(d.pendingMetadata) > 0 {
		p := d.pendingMetadata[0]
		d.pendingMetadata = d.pendingMetadata[1:]
		d.pendingMetadataBytes -= p.size
		timeUs := p.timeUs
		if p.relative {
			timeUs += sampleTimeUs
		}
		d.emsgOutput.SampleMetadata(timeUs, FlagKeyFrame, p.size, d.pendingMetadataBytes, nil)
	}
}
