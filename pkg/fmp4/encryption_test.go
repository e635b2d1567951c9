package fmp4

import (
	"bytes"
	"errors"
	"testing"

	"m7s.live/fmp4/pkg"
	"m7s.live/fmp4/pkg/box"
)

var (
	testKID = [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	testIVs = [][]byte{{1, 1, 1, 1, 1, 1, 1, 1}, {2, 2, 2, 2, 2, 2, 2, 2}}
)

func encryptedHeader(entry []byte) []byte {
	track := testTrack{id: 1, handler: "soun", timescale: 1000, entry: entry}
	return concat(ftyp(), moov([]testTrack{track}, trex(1, 10, 0, 0)))
}

// checkSamples compares the recorded samples of the only track with want,
// every sample being encrypted with key.
func checkSamples(t *testing.T, rec *Recorder, key [16]byte, want ...[]byte) {
	t.Helper()
	track := rec.TrackByID(0)
	if track == nil || len(track.Samples) != len(want) {
		t.Fatalf("unexpected tracks %+v", rec.Tracks)
	}
	for i, w := range want {
		s := track.Samples[i]
		if !bytes.Equal(s.Data, w) {
			t.Fatalf("sample %d: % x, want % x", i, s.Data, w)
		}
		if s.Flags != FlagKeyFrame|FlagEncrypted {
			t.Fatalf("sample %d flags %s", i, s.Flags)
		}
		if s.Crypto == nil || s.Crypto.Mode != CryptoModeAESCTR || s.Crypto.KeyID != key {
			t.Fatalf("sample %d crypto %+v", i, s.Crypto)
		}
	}
}

func TestAC4ClearHeader(t *testing.T) {
	ac4Header := func(size byte) []byte { return []byte{0xAC, 0x40, 0xFF, 0xFF, 0, 0, size} }

	t.Run("clear", func(t *testing.T) {
		track := testTrack{id: 1, handler: "soun", timescale: 1000, entry: audioEntry("ac-4")}
		data := concat(ftyp(), moov([]testTrack{track}, trex(1, 10, 0, 0)),
			testFragment{trackID: 1, samples: textSamples("abcd")}.bytes())
		var rec Recorder
		if err := demux(t, newTestDemuxer(&rec), data); err != nil {
			t.Fatal(err)
		}
		s := rec.TrackByID(0).Samples[0]
		if want := concat(ac4Header(4), []byte("abcd")); !bytes.Equal(s.Data, want) || s.Crypto != nil {
			t.Fatalf("sample % x", s.Data)
		}
	})

	header := encryptedHeader(protectedAudioEntry("ac-4", testKID))

	t.Run("synthesized subsample", func(t *testing.T) {
		f := testFragment{trackID: 1, samples: textSamples("abcd"),
			extra: [][]byte{fullBox("senc", 0, 0, u32(1), testIVs[0])}}
		var rec Recorder
		if err := demux(t, newTestDemuxer(&rec), concat(header, f.bytes())); err != nil {
			t.Fatal(err)
		}
		// one subsample: the 7 header bytes clear, the payload protected
		subsamples := concat(u16(1), u16(7), u32(4))
		checkSamples(t, &rec, testKID, concat([]byte{0x88}, testIVs[0], subsamples, ac4Header(4), []byte("abcd")))
	})

	t.Run("clear bytes bumped", func(t *testing.T) {
		entry := concat(testIVs[0], u16(1), u16(2), u32(2))
		f := testFragment{trackID: 1, samples: textSamples("abcd"),
			extra: [][]byte{fullBox("senc", 0, box.UseSubsampleEncryption, u32(1), entry)}}
		var rec Recorder
		if err := demux(t, newTestDemuxer(&rec), concat(header, f.bytes())); err != nil {
			t.Fatal(err)
		}
		subsamples := concat(u16(1), u16(2+7), u32(2))
		checkSamples(t, &rec, testKID, concat([]byte{0x88}, testIVs[0], subsamples, ac4Header(4), []byte("abcd")))
	})
}

func TestAuxiliaryDataInMdat(t *testing.T) {
	header := encryptedHeader(encryptedAudioEntry(testKID))
	// saio points at the start of the mdat payload, relative to the moof
	build := func(saiz, aux []byte) []byte {
		f := testFragment{trackID: 1, samples: textSamples("abcd", "efgh"), auxiliary: aux}
		f.extra = [][]byte{saiz, fullBox("saio", 0, 0, u32(1), u32(0))}
		offset := len(f.moof(0)) + 8
		f.extra[1] = fullBox("saio", 0, 0, u32(1), u32(uint32(offset)))
		return concat(header, f.bytes())
	}

	for _, tc := range []struct {
		name string
		data []byte
		want [][]byte
	}{
		{
			name: "default size",
			data: build(fullBox("saiz", 0, 0, []byte{8}, u32(2)), concat(testIVs[0], testIVs[1])),
			want: [][]byte{
				concat([]byte{8}, testIVs[0], []byte("abcd")),
				concat([]byte{8}, testIVs[1], []byte("efgh")),
			},
		},
		{
			name: "per sample sizes",
			data: build(fullBox("saiz", 0, 0, []byte{0}, u32(2), []byte{8, 16}),
				concat(testIVs[0], testIVs[1], u16(1), u16(1), u32(3))),
			want: [][]byte{
				concat([]byte{8}, testIVs[0], []byte("abcd")),
				concat([]byte{0x88}, testIVs[1], u16(1), u16(1), u32(3), []byte("efgh")),
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var rec Recorder
			if err := demux(t, newTestDemuxer(&rec), tc.data); err != nil {
				t.Fatal(err)
			}
			checkSamples(t, &rec, testKID, tc.want...)

			var trickled Recorder
			if err := demuxTrickle(t, newTestDemuxer(&trickled), tc.data); err != nil {
				t.Fatal(err)
			}
			checkSamples(t, &trickled, testKID, tc.want...)
		})
	}

	t.Run("exhausted", func(t *testing.T) {
		// two samples need 16 bytes, saiz describes 8
		data := build(fullBox("saiz", 0, 0, []byte{4}, u32(2)), concat(testIVs[0]))
		var rec Recorder
		if err := demux(t, newTestDemuxer(&rec), data); !errors.Is(err, pkg.ErrMalformedContainer) {
			t.Fatalf("unexpected error %v", err)
		}
	})
}

func TestPiffSampleEncryption(t *testing.T) {
	header := encryptedHeader(encryptedAudioEntry(testKID))
	uuid := boxOf("uuid", box.PiffSampleEncryptionType[:], u32(0), u32(2), testIVs[0], testIVs[1])
	other := boxOf("uuid", make([]byte, 16), []byte("ignored"))
	f := testFragment{trackID: 1, samples: textSamples("abcd", "efgh"), extra: [][]byte{other, uuid}}
	var rec Recorder
	if err := demux(t, newTestDemuxer(&rec), concat(header, f.bytes())); err != nil {
		t.Fatal(err)
	}
	checkSamples(t, &rec, testKID,
		concat([]byte{8}, testIVs[0], []byte("abcd")),
		concat([]byte{8}, testIVs[1], []byte("efgh")))
}

func TestSeigSampleGroup(t *testing.T) {
	header := encryptedHeader(encryptedAudioEntry(testKID))
	groupKID := [16]byte{0xF0, 0xF1, 0xF2, 0xF3, 0xF4, 0xF5, 0xF6, 0xF7, 0xF8, 0xF9, 0xFA, 0xFB, 0xFC, 0xFD, 0xFE, 0xFF}
	sbgp := fullBox("sbgp", 0, 0, []byte("seig"), u32(1), u32(2), u32(0x10001))
	senc := fullBox("senc", 0, 0, u32(2), testIVs[0], testIVs[1])

	t.Run("overrides key and pattern", func(t *testing.T) {
		sgpd := fullBox("sgpd", 1, 0, []byte("seig"), u32(20), u32(1), []byte{0, 0x19, 1, 8}, groupKID[:])
		f := testFragment{trackID: 1, samples: textSamples("abcd", "efgh"), extra: [][]byte{sbgp, sgpd, senc}}
		var rec Recorder
		if err := demux(t, newTestDemuxer(&rec), concat(header, f.bytes())); err != nil {
			t.Fatal(err)
		}
		checkSamples(t, &rec, groupKID,
			concat([]byte{8}, testIVs[0], []byte("abcd")),
			concat([]byte{8}, testIVs[1], []byte("efgh")))
		if c := rec.TrackByID(0).Samples[0].Crypto; c.EncryptedBlocks != 1 || c.ClearBlocks != 9 {
			t.Fatalf("pattern %+v", c)
		}
	})

	t.Run("unprotected group ignored", func(t *testing.T) {
		sgpd := fullBox("sgpd", 1, 0, []byte("seig"), u32(20), u32(1), []byte{0, 0, 0, 0}, groupKID[:])
		f := testFragment{trackID: 1, samples: textSamples("abcd", "efgh"), extra: [][]byte{sbgp, sgpd, senc}}
		var rec Recorder
		if err := demux(t, newTestDemuxer(&rec), concat(header, f.bytes())); err != nil {
			t.Fatal(err)
		}
		checkSamples(t, &rec, testKID,
			concat([]byte{8}, testIVs[0], []byte("abcd")),
			concat([]byte{8}, testIVs[1], []byte("efgh")))
	})

	t.Run("group without sample mapping", func(t *testing.T) {
		sgpd := fullBox("sgpd", 1, 0, []byte("seig"), u32(20), u32(1), []byte{0, 0, 1, 8}, groupKID[:])
		f := testFragment{trackID: 1, samples: textSamples("abcd", "efgh"), extra: [][]byte{sgpd, senc}}
		var rec Recorder
		if err := demux(t, newTestDemuxer(&rec), concat(header, f.bytes())); err != nil {
			t.Fatal(err)
		}
		if s := rec.TrackByID(0).Samples[0]; s.Crypto == nil || s.Crypto.KeyID != testKID {
			t.Fatalf("crypto %+v", s.Crypto)
		}
	})
}
