package fmp4

import (
	"bytes"
	"testing"
)

func TestEventMessageEncode(t *testing.T) {
	m := EventMessage{SchemeIDURI: "urn:mpeg:dash:event:2012", Value: "1", DurationMs: 1500, ID: 42, MessageData: []byte("hi")}
	b := m.Encode()
	want := concat([]byte("urn:mpeg:dash:event:2012\x001\x00"), u64(1500), u64(42), []byte("hi"))
	if !bytes.Equal(b, want) {
		t.Fatalf("unexpected encoding % x", b)
	}
	got, err := DecodeEventMessage(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.SchemeIDURI != m.SchemeIDURI || got.Value != m.Value || got.DurationMs != 1500 || got.ID != 42 || string(got.MessageData) != "hi" {
		t.Fatalf("unexpected message %+v", got)
	}

	for _, bad := range [][]byte{
		[]byte("no terminator"),
		[]byte("scheme\x00value"),
		[]byte("scheme\x00value\x00short"),
	} {
		if _, err := DecodeEventMessage(bad); err == nil {
			t.Fatalf("%q decoded", bad)
		}
	}
}

func TestEventMessageTimes(t *testing.T) {
	rec := &Recorder{}
	d := newTestDemuxer(rec, WithEmsgTrack())
	d.segmentIndexEarliestPresentationTimeUs = 10000000

	emsg := fullBox("emsg", 0, 0, []byte("s\x00v\x00"), u32(90000), u32(45000), u32(90000), u32(1), []byte{1})
	leaf := &leafAtom{Type: [4]byte{'e', 'm', 's', 'g'}, Payload: emsg[8:]}
	if err := d.onEmsg(leaf); err != nil {
		t.Fatal(err)
	}
	track := rec.TrackByID(EmsgTrackID)
	if len(track.Samples) != 1 || track.Samples[0].TimeUs != 10500000 {
		t.Fatalf("unexpected samples %v", track.Samples)
	}
	m, err := DecodeEventMessage(track.Samples[0].Data)
	if err != nil || m.DurationMs != 1000 {
		t.Fatalf("unexpected message %+v %v", m, err)
	}

	leaf.Payload = fullBox("emsg", 0, 0, []byte("s\x00v\x00"), u32(0), u32(0), u32(0), u32(1))[8:]
	if err := d.onEmsg(leaf); err == nil {
		t.Fatal("zero timescale accepted")
	}
	leaf.Payload = fullBox("emsg", 2, 0, []byte{1, 2, 3})[8:]
	if err := d.onEmsg(leaf); err != nil || len(track.Samples) != 1 {
		t.Fatalf("unknown version not skipped: %v", err)
	}
}
