package fmp4

import (
	"fmt"
	"slices"
)

type RecordedSample struct {
	TimeUs int64
	Flags  SampleFlags
	Data   []byte
	Crypto *CryptoData
}

func (s *RecordedSample) String() string {
	return fmt.Sprintf("time=%d flags=%s size=%d", s.TimeUs, s.Flags, len(s.Data))
}

// RecordedTrack keeps every format and committed sample of one track.
type RecordedTrack struct {
	ID      int
	Kind    TrackType
	Formats []*Format
	Samples []RecordedSample
	pending []byte
}

func (t *RecordedTrack) Format(f *Format) {
	t.Formats = append(t.Formats, f)
}

// LastFormat is the format in force, nil before the first one.
func (t *RecordedTrack) LastFormat() *Format {
	if len(t.Formats) == 0 {
		return nil
	}
	return t.Formats[len(t.Formats)-1]
}

func (t *RecordedTrack) SampleData(p []byte) {
	t.pending = append(t.pending, p...)
}

func (t *RecordedTrack) SampleMetadata(timeUs int64, flags SampleFlags, size int, offset int, crypto *CryptoData) {
	end := len(t.pending) - offset
	start := end - size
	if start < 0 || end > len(t.pending) {
		panic(fmt.Sprintf("track %d: sample of %d bytes at offset %d, %d pending", t.ID, size, offset, len(t.pending)))
	}
	t.Samples = append(t.Samples, RecordedSample{
		TimeUs: timeUs,
		Flags:  flags,
		Data:   slices.Clone(t.pending[start:end]),
		Crypto: crypto,
	})
	// bytes before the sample were never committed and are dropped
	t.pending = t.pending[:copy(t.pending, t.pending[end:])]
}

// Recorder is an Output that keeps everything in memory.
type Recorder struct {
	Tracks      []*RecordedTrack
	SeekMaps    []SeekMap
	TracksEnded bool
}

func (r *Recorder) Track(id int, kind TrackType) TrackOutput {
	if t := r.TrackByID(id); t != nil {
		return t
	}
	t := &RecordedTrack{ID: id, Kind: kind}
	r.Tracks = append(r.Tracks, t)
	return t
}

func (r *Recorder) TrackByID(id int) *RecordedTrack {
	for _, t := range r.Tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (r *Recorder) EndTracks() {
	r.TracksEnded = true
}

func (r *Recorder) SeekMap(m SeekMap) {
	r.SeekMaps = append(r.SeekMaps, m)
}

// LastSeekMap is the seek map in force, nil before the first one.
func (r *Recorder) LastSeekMap() SeekMap {
	if len(r.SeekMaps) == 0 {
		return nil
	}
	return r.SeekMaps[len(r.SeekMaps)-1]
}
