package fmp4

import (
	"errors"
	"testing"

	"m7s.live/fmp4/pkg/util"
)

func TestSniff(t *testing.T) {
	fragmented := concat(ftyp(), moov([]testTrack{textTrack(1)}, trex(1, 1000, 0, 0)))
	for _, tc := range []struct {
		name string
		data []byte
		want bool
	}{
		{"fragmented", fragmented, true},
		{"moof after ftyp", concat(ftyp(), testFragment{trackID: 1, samples: textSamples("a")}.bytes()), true},
		{"3gp brand", concat(boxOf("ftyp", []byte("3gp9"), u32(0)), boxOf("moof")), true},
		{"not fragmented", concat(ftyp(), moov([]testTrack{textTrack(1)})), false},
		{"unknown brand", concat(boxOf("ftyp", []byte("abcd"), u32(0), []byte("wxyz")), boxOf("moof")), false},
		{"no ftyp", concat(boxOf("free"), boxOf("moof")), false},
		{"garbage", []byte("this is not an mp4 file at all"), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			in := util.NewMemoryInput(int64(len(tc.data)))
			in.Feed(tc.data)
			in.Close()
			got, err := Sniff(in)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("sniffed %v", got)
			}
			if in.Position() != 0 || in.Buffered() != len(tc.data) {
				t.Fatal("sniff consumed input")
			}
		})
	}

	t.Run("starved", func(t *testing.T) {
		in := util.NewMemoryInput(-1)
		in.Feed(ftyp()[:6])
		if _, err := Sniff(in); !errors.Is(err, util.ErrNeedMoreData) {
			t.Fatalf("unexpected error %v", err)
		}
	})

	t.Run("demux after sniff", func(t *testing.T) {
		data := concat(fragmented, testFragment{trackID: 1, samples: textSamples("a", "b")}.bytes())
		in := util.NewMemoryInput(int64(len(data)))
		in.Feed(data)
		in.Close()
		if ok, err := Sniff(in); !ok || err != nil {
			t.Fatalf("sniff %v %v", ok, err)
		}
		var rec Recorder
		d := newTestDemuxer(&rec)
		for {
			res, err := d.Read(in, &PositionHolder{})
			if err != nil {
				t.Fatal(err)
			}
			if res == ResultEndOfInput {
				break
			}
		}
		if len(rec.TrackByID(0).Samples) != 2 {
			t.Fatalf("unexpected samples %v", rec.TrackByID(0).Samples)
		}
	})
}
