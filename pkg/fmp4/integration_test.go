package fmp4

import (
	"testing"

	"github.com/bluenviron/mediacommon/pkg/codecs/mpeg4audio"
	mcfmp4 "github.com/bluenviron/mediacommon/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/pkg/formats/fmp4/seekablebuffer"
	"github.com/stretchr/testify/require"

	"m7s.live/fmp4/pkg/codec"
	"m7s.live/fmp4/pkg/config"
	"m7s.live/fmp4/pkg/util"
)

var (
	testSPS = []byte{
		0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
		0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
		0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9,
		0x20,
	}
	testPPS = []byte{0x68, 0xce, 0x3c, 0x80}
)

func avcc(nalus ...[]byte) (b []byte) {
	for _, n := range nalus {
		b = append(b, u32(uint32(len(n)))...)
		b = append(b, n...)
	}
	return
}

func annexB(nalus ...[]byte) (b []byte) {
	for _, n := range nalus {
		b = append(b, 0, 0, 0, 1)
		b = append(b, n...)
	}
	return
}

func marshalStream(t *testing.T, parts ...*mcfmp4.Part) []byte {
	init := mcfmp4.Init{Tracks: []*mcfmp4.InitTrack{
		{ID: 1, TimeScale: 90000, Codec: &mcfmp4.CodecH264{SPS: testSPS, PPS: testPPS}},
		{ID: 2, TimeScale: 44100, Codec: &mcfmp4.CodecMPEG4Audio{Config: mpeg4audio.Config{
			Type:         mpeg4audio.ObjectTypeAACLC,
			SampleRate:   44100,
			ChannelCount: 2,
		}}},
	}}
	var buf seekablebuffer.Buffer
	require.NoError(t, init.Marshal(&buf))
	data := append([]byte(nil), buf.Bytes()...)
	for _, p := range parts {
		var pb seekablebuffer.Buffer
		require.NoError(t, p.Marshal(&pb))
		data = append(data, pb.Bytes()...)
	}
	return data
}

func TestMuxedStream(t *testing.T) {
	idr := []byte{0x65, 0x88, 0x84, 0x00, 0x33}
	aud := []byte{0x09, 0xf0}
	nonRef := []byte{0x01, 0x9a, 0x02, 0x04}
	sei := []byte{0x06, 0x04, 0x02, 0xaa, 0xbb, 0x80}
	ref := []byte{0x41, 0x9a, 0x04, 0x08}
	aac := [][]byte{{0x21, 0x10, 0x04}, {0x21, 0x10, 0x05, 0x60}}

	part := &mcfmp4.Part{SequenceNumber: 1, Tracks: []*mcfmp4.PartTrack{
		{ID: 1, BaseTime: 0, Samples: []*mcfmp4.PartSample{
			{Duration: 3000, Payload: avcc(testSPS, testPPS, idr)},
			{Duration: 3000, IsNonSyncSample: true, Payload: avcc(aud, nonRef)},
			{Duration: 3000, IsNonSyncSample: true, Payload: avcc(sei, ref)},
		}},
		{ID: 2, BaseTime: 0, Samples: []*mcfmp4.PartSample{
			{Duration: 1024, Payload: aac[0]},
			{Duration: 1024, Payload: aac[1]},
		}},
	}}
	data := marshalStream(t, part)

	cfg := config.Default()
	cfg.ReadWithinGopSampleDependencies = true
	var captions seiLog
	var rec Recorder
	d := newTestDemuxer(&rec, WithConfig(cfg), WithCaptionSink(&captions))
	require.NoError(t, demux(t, d, data))
	require.True(t, rec.TracksEnded)
	require.Len(t, rec.Tracks, 2)

	video := rec.TrackByID(0)
	format := video.LastFormat()
	require.Equal(t, TrackTypeVideo, video.Kind)
	require.Equal(t, "avc1.42C028", format.Codecs)
	require.Equal(t, 1920, format.Width)
	require.Equal(t, 1080, format.Height)
	require.Equal(t, 4, format.NALLengthSize)
	require.Equal(t, [][]byte{testSPS, testPPS}, format.InitializationData)

	require.Len(t, video.Samples, 3)
	require.Equal(t, annexB(testSPS, testPPS, idr), video.Samples[0].Data)
	require.Equal(t, annexB(aud, nonRef), video.Samples[1].Data)
	require.Equal(t, annexB(sei, ref), video.Samples[2].Data)
	require.Equal(t, FlagKeyFrame, video.Samples[0].Flags)
	require.Equal(t, FlagNotDependedOn, video.Samples[1].Flags)
	require.Equal(t, SampleFlags(0), video.Samples[2].Flags)
	for i, s := range video.Samples {
		require.Equal(t, util.ScaleTimestamp(int64(i)*3000, util.MicrosPerSecond, 90000), s.TimeUs)
	}

	audio := rec.TrackByID(1)
	require.Equal(t, TrackTypeAudio, audio.Kind)
	require.Equal(t, 44100, audio.LastFormat().SampleRate)
	require.Equal(t, codec.FourCC_MP4A, audio.LastFormat().FourCC)
	require.Len(t, audio.Samples, 2)
	for i, s := range audio.Samples {
		require.Equal(t, aac[i], s.Data)
		require.Equal(t, FlagKeyFrame, s.Flags)
		require.Equal(t, util.ScaleTimestamp(int64(i)*1024, util.MicrosPerSecond, 44100), s.TimeUs)
	}

	require.Equal(t, []int64{video.Samples[2].TimeUs}, captions.times)
	require.Equal(t, [][]byte{sei}, captions.nals)

	_, ok := rec.LastSeekMap().(*Unseekable)
	require.True(t, ok)
}

func TestMuxedStreamTrickled(t *testing.T) {
	var parts []*mcfmp4.Part
	for i := range 3 {
		parts = append(parts, &mcfmp4.Part{SequenceNumber: uint32(i + 1), Tracks: []*mcfmp4.PartTrack{
			{ID: 1, BaseTime: uint64(i) * 6000, Samples: []*mcfmp4.PartSample{
				{Duration: 3000, Payload: avcc([]byte{0x65, 0x88, byte(i)})},
				{Duration: 3000, IsNonSyncSample: true, Payload: avcc([]byte{0x41, 0x9a, byte(i)}, []byte{0x01, 0x9a})},
			}},
			{ID: 2, BaseTime: uint64(i) * 2048, Samples: []*mcfmp4.PartSample{
				{Duration: 1024, Payload: []byte{0x21, byte(i)}},
				{Duration: 1024, Payload: []byte{0x21, byte(i), 0xff}},
			}},
		}})
	}
	data := marshalStream(t, parts...)

	var whole, trickled Recorder
	require.NoError(t, demux(t, newTestDemuxer(&whole), data))
	require.NoError(t, demuxTrickle(t, newTestDemuxer(&trickled), data))
	require.Len(t, whole.TrackByID(0).Samples, 6)
	require.Len(t, whole.TrackByID(1).Samples, 6)
	for i := range whole.Tracks {
		require.Equal(t, whole.Tracks[i].Samples, trickled.Tracks[i].Samples)
	}
}
