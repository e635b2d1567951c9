package fmp4

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"

	"m7s.live/fmp4/pkg/util"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func u16(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }
func u32(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }
func u64(v uint64) []byte { return binary.BigEndian.AppendUint64(nil, v) }

func concat(parts ...[]byte) (b []byte) {
	for _, p := range parts {
		b = append(b, p...)
	}
	return
}

func boxOf(t string, payload ...[]byte) []byte {
	body := concat(payload...)
	return concat(u32(uint32(8+len(body))), []byte(t), body)
}

// largeBoxOf writes a box with a 64-bit size field.
func largeBoxOf(t string, payload ...[]byte) []byte {
	body := concat(payload...)
	return concat(u32(1), []byte(t), u64(uint64(16+len(body))), body)
}

func fullBox(t string, version uint8, flags uint32, body ...[]byte) []byte {
	return boxOf(t, u32(uint32(version)<<24|flags), concat(body...))
}

func ftyp() []byte {
	return boxOf("ftyp", []byte("iso6"), u32(0), []byte("iso6dash"))
}

// testTrack describes one trak of a hand built moov.
type testTrack struct {
	id        uint32
	handler   string
	timescale uint32
	entry     []byte
	stbl      [][]byte // tables besides stsd, empty tables when nil
	edts      []byte
}

func textEntry() []byte {
	return boxOf("wvtt", make([]byte, 6), u16(1))
}

func audioEntry(t string, children ...[]byte) []byte {
	return boxOf(t, make([]byte, 6), u16(1),
		u16(0), make([]byte, 6), u16(1), u16(16), make([]byte, 4), u32(8000<<16),
		concat(children...))
}

// encryptedAudioEntry protects a ulaw entry with cenc and 8 byte IVs.
func encryptedAudioEntry(kid [16]byte) []byte {
	return protectedAudioEntry("ulaw", kid)
}

func protectedAudioEntry(original string, kid [16]byte) []byte {
	tenc := fullBox("tenc", 0, 0, []byte{0, 0, 1, 8}, kid[:])
	sinf := boxOf("sinf",
		boxOf("frma", []byte(original)),
		fullBox("schm", 0, 0, []byte("cenc"), u32(0x10000)),
		boxOf("schi", tenc))
	return audioEntry("enca", sinf)
}

func emptyTables() [][]byte {
	return [][]byte{
		fullBox("stts", 0, 0, u32(0)),
		fullBox("stsc", 0, 0, u32(0)),
		fullBox("stsz", 0, 0, u32(0), u32(0)),
		fullBox("stco", 0, 0, u32(0)),
	}
}

func (t testTrack) trak() []byte {
	matrix := concat(u32(0x10000), u32(0), u32(0), u32(0), u32(0x10000), u32(0), u32(0), u32(0), u32(0x40000000))
	tkhd := fullBox("tkhd", 0, 7, u32(0), u32(0), u32(t.id), u32(0), u32(0), make([]byte, 16), matrix, u32(0), u32(0))
	mdhd := fullBox("mdhd", 0, 0, u32(0), u32(0), u32(t.timescale), u32(0), u16(0x55c4), u16(0))
	hdlr := fullBox("hdlr", 0, 0, u32(0), []byte(t.handler), make([]byte, 12), []byte("trk\x00"))
	tables := t.stbl
	if tables == nil {
		tables = emptyTables()
	}
	stbl := boxOf("stbl", fullBox("stsd", 0, 0, u32(1), t.entry), concat(tables...))
	return boxOf("trak", tkhd, t.edts, boxOf("mdia", mdhd, hdlr, boxOf("minf", stbl)))
}

// trex carries the fragment defaults of a track.
func trex(id, duration, size, flags uint32) []byte {
	return fullBox("trex", 0, 0, u32(id), u32(1), u32(duration), u32(size), u32(flags))
}

func moov(tracks []testTrack, mvex ...[]byte) []byte {
	parts := [][]byte{fullBox("mvhd", 0, 0, u32(0), u32(0), u32(1000), u32(0), make([]byte, 80))}
	for _, t := range tracks {
		parts = append(parts, t.trak())
	}
	if len(mvex) > 0 {
		parts = append(parts, boxOf("mvex", mvex...))
	}
	return boxOf("moov", parts...)
}

func textTrack(id uint32) testTrack {
	return testTrack{id: id, handler: "text", timescale: 1000, entry: textEntry()}
}

// testSample is one sample of a hand built fragment. A zero duration leaves
// the duration to the defaults.
type testSample struct {
	duration uint32
	flags    uint32
	data     []byte
}

const nonSyncFlags = 0x10000

// testFragment builds one moof and mdat pair holding a single traf.
type testFragment struct {
	trackID    uint32
	decodeTime int64 // negative leaves tfdt out
	tfhd       [][]byte
	tfhdFlags  uint32
	samples    []testSample
	extra      [][]byte // further traf children
	largeMdat  bool
	auxiliary  []byte // mdat bytes ahead of the samples
}

func (f testFragment) trunFlags() uint32 {
	flags := uint32(0x1 | 0x200)
	for _, s := range f.samples {
		if s.duration != 0 {
			flags |= 0x100
		}
		if s.flags != 0 {
			flags |= 0x400
		}
	}
	return flags
}

func (f testFragment) moof(dataOffset uint32) []byte {
	flags := f.trunFlags()
	var entries []byte
	for _, s := range f.samples {
		if flags&0x100 != 0 {
			entries = append(entries, u32(s.duration)...)
		}
		entries = append(entries, u32(uint32(len(s.data)))...)
		if flags&0x400 != 0 {
			entries = append(entries, u32(s.flags)...)
		}
	}
	traf := [][]byte{fullBox("tfhd", 0, 0x20000|f.tfhdFlags, u32(f.trackID), concat(f.tfhd...))}
	if f.decodeTime >= 0 {
		traf = append(traf, fullBox("tfdt", 1, 0, u64(uint64(f.decodeTime))))
	}
	traf = append(traf, fullBox("trun", 0, flags, u32(uint32(len(f.samples))), u32(dataOffset), entries))
	traf = append(traf, f.extra...)
	return boxOf("moof", fullBox("mfhd", 0, 0, u32(1)), boxOf("traf", traf...))
}

func (f testFragment) bytes() []byte {
	data := append([]byte(nil), f.auxiliary...)
	for _, s := range f.samples {
		data = append(data, s.data...)
	}
	header := 8
	if f.largeMdat {
		header = 16
	}
	moof := f.moof(0)
	moof = f.moof(uint32(len(moof) + header + len(f.auxiliary)))
	if f.largeMdat {
		return concat(moof, largeBoxOf("mdat", data))
	}
	return concat(moof, boxOf("mdat", data))
}

// demux runs d over data fed in one piece, honouring seek requests.
func demux(t *testing.T, d *Demuxer, data []byte) error {
	t.Helper()
	in := util.NewMemoryInput(int64(len(data)))
	in.Feed(data)
	in.Close()
	var pos PositionHolder
	for i := 0; i < 100000; i++ {
		res, err := d.Read(in, &pos)
		if err != nil {
			return err
		}
		switch res {
		case ResultEndOfInput:
			return nil
		case ResultSeek:
			in.Reset(pos.Position)
			in.Feed(data[pos.Position:])
			in.Close()
		}
	}
	t.Fatal("demuxer made no progress")
	return nil
}

// demuxTrickle feeds data one byte at a time whenever the demuxer runs dry.
func demuxTrickle(t *testing.T, d *Demuxer, data []byte) error {
	t.Helper()
	in := util.NewMemoryInput(int64(len(data)))
	var pos PositionHolder
	fed := 0
	for i := 0; i < 100*len(data)+100; i++ {
		res, err := d.Read(in, &pos)
		switch {
		case errors.Is(err, util.ErrNeedMoreData):
			if fed == len(data) {
				t.Fatal("need more data after the whole stream was fed")
			}
			in.Feed(data[fed : fed+1])
			fed++
			if fed == len(data) {
				in.Close()
			}
			continue
		case err != nil:
			return err
		}
		if res == ResultEndOfInput {
			return nil
		}
	}
	t.Fatal("demuxer made no progress")
	return nil
}

func newTestDemuxer(rec *Recorder, opts ...Option) *Demuxer {
	return New(rec, append([]Option{WithLogger(testLogger)}, opts...)...)
}

func sampleTimes(track *RecordedTrack) (times []int64) {
	for _, s := range track.Samples {
		times = append(times, s.TimeUs)
	}
	return
}
