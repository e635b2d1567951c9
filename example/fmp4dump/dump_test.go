package main

import (
	"strings"
	"testing"

	"m7s.live/fmp4/pkg/codec"
	"m7s.live/fmp4/pkg/fmp4"
)

func TestNALTypes(t *testing.T) {
	avc := &fmp4.Format{FourCC: codec.FourCC_H264}
	s := &fmp4.RecordedSample{Data: []byte{0, 0, 0, 1, 0x09, 0xF0, 0, 0, 0, 1, 0x65, 0x88}}
	if got := nalTypes(avc, s); got != "nals=9,5" {
		t.Fatalf("avc %q", got)
	}
	hevc := &fmp4.Format{FourCC: codec.FourCC_H265}
	s = &fmp4.RecordedSample{Data: []byte{0, 0, 0, 1, 0x26, 0x01, 0xAF}}
	if got := nalTypes(hevc, s); got != "nals=19" {
		t.Fatalf("hevc %q", got)
	}
	s.Crypto = &fmp4.CryptoData{}
	if got := nalTypes(hevc, s); got != "" {
		t.Fatalf("encrypted sample %q", got)
	}
	if got := nalTypes(&fmp4.Format{FourCC: codec.FourCC_MP4A}, &fmp4.RecordedSample{Data: []byte{0, 0, 0, 1, 0x21}}); got != "" {
		t.Fatalf("audio %q", got)
	}
}

func TestEventMessage(t *testing.T) {
	m := &fmp4.EventMessage{SchemeIDURI: "urn:test", Value: "1", DurationMs: 250, ID: 7, MessageData: []byte{1, 2}}
	if got := eventMessage(m.Encode()); got != "scheme=urn:test value=1 id=7 duration=250ms data=2" {
		t.Fatalf("got %q", got)
	}
	if got := eventMessage([]byte("urn:test")); !strings.Contains(got, "not terminated") {
		t.Fatalf("got %q", got)
	}
}
