package fmp4

import "testing"

func TestRecordedTrack(t *testing.T) {
	var rec Recorder
	out := rec.Track(3, TrackTypeAudio)
	if rec.Track(3, TrackTypeAudio) != out || len(rec.Tracks) != 1 {
		t.Fatal("track not reused")
	}
	out.SampleData([]byte("skipped"))
	out.SampleData([]byte("first"))
	out.SampleData([]byte("second"))
	// "first" ends six bytes before the last byte written
	out.SampleMetadata(1, FlagKeyFrame, 5, 6, nil)
	out.SampleMetadata(2, 0, 6, 0, nil)
	track := rec.TrackByID(3)
	if len(track.Samples) != 2 || string(track.Samples[0].Data) != "first" || string(track.Samples[1].Data) != "second" {
		t.Fatalf("unexpected samples %v", track.Samples)
	}
	if len(track.pending) != 0 {
		t.Fatalf("%d bytes left pending", len(track.pending))
	}

	defer func() {
		if recover() == nil {
			t.Fatal("oversized sample accepted")
		}
	}()
	out.SampleMetadata(3, 0, 1, 0, nil)
}
