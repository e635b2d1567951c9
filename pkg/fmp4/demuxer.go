package fmp4

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"m7s.live/fmp4/pkg"
	"m7s.live/fmp4/pkg/box"
	"m7s.live/fmp4/pkg/codec"
	"m7s.live/fmp4/pkg/config"
	"m7s.live/fmp4/pkg/util"
)

type parserState int

const (
	stateReadingAtomHeader parserState = iota
	stateReadingAtomPayload
	stateSkippingPadding
	stateReadingEncryptionData
	stateReadingSample
)

func (s parserState) String() string {
	switch s {
	case stateReadingAtomHeader:
		return "header"
	case stateReadingAtomPayload:
		return "payload"
	case stateSkippingPadding:
		return "padding"
	case stateReadingEncryptionData:
		return "encryption data"
	case stateReadingSample:
		return "sample"
	}
	return "unknown"
}

// samplePhase is the progress through the sample being read, so a starved
// input resumes in the middle of it.
type samplePhase int

const (
	sampleSelect samplePhase = iota
	sampleGap
	sampleStart
	sampleSkipWhole
	sampleSkipCDAT
	sampleHeader
	sampleBody
	sampleDiscard
)

const (
	nalStartCodeLength = 4
	ac4SampleHeaderLen = 7
	cdatHeaderLen      = box.BasicBoxLen
	sampleScratchLen   = 16 * 1024
)

var nalStartCode = []byte{0, 0, 0, 1}

// Demuxer reads fragmented ISO-BMFF streams. It pulls bytes from an Input on
// every Read and pushes tracks, samples and seek maps to an Output.
type Demuxer struct {
	*slog.Logger
	cfg             config.Demux
	out             Output
	sideloadedTrack *Track
	seiQueue        *seiReorderQueue
	emsgEnabled     bool
	emsgOutput      TrackOutput
	released        bool

	trackBundles util.Collection[uint32, *trackBundle]

	state          parserState
	headerReader   box.HeaderReader
	atomHeader     box.Header
	atomData       []byte
	atomRead       int
	atomBuffering  bool
	atomSkip       int64 // -1 skips to the end of input
	padding        int64
	containerAtoms []*containerAtom

	endOfMdatPosition                      int64
	pendingSeekTimeUs                      int64
	durationUs                             int64
	segmentIndexEarliestPresentationTimeUs int64
	haveOutputSeekMap                      bool
	haveOutputChunkIndex                   bool

	pendingMetadata      []pendingMetadataSample
	pendingMetadataBytes int

	currentTrackBundle *trackBundle
	samplePhase        samplePhase
	sampleTimeUs       int64
	sampleSize         int
	sampleBytesWritten int
	sampleSkip         int64
	isSampleDependedOn bool
	nalRemaining       int
	nalPrefix          [8]byte
	nalPrefixRead      int
	processSEI         bool
	nalBuffer          []byte
	nalBufferRead      int
	ac4Header          [ac4SampleHeaderLen]byte
	scratch            []byte

	merging        bool
	mergeStart     int64
	segmentIndices []*ChunkIndex
}

type Option func(*Demuxer)

func WithConfig(cfg config.Demux) Option {
	return func(d *Demuxer) {
		d.cfg = cfg
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Demuxer) {
		d.Logger = logger
	}
}

// WithSideloadedTrack demuxes a stream without moov, whose fragments all
// belong to track.
func WithSideloadedTrack(track *Track) Option {
	return func(d *Demuxer) {
		d.sideloadedTrack = track
	}
}

// WithCaptionSink hands SEI NAL units of video tracks to consumer in
// presentation order.
func WithCaptionSink(consumer SEIConsumer) Option {
	return func(d *Demuxer) {
		d.seiQueue = newSEIReorderQueue(consumer)
	}
}

// WithEmsgTrack outputs top-level emsg boxes on a metadata track.
func WithEmsgTrack() Option {
	return func(d *Demuxer) {
		d.emsgEnabled = true
	}
}

func New(out Output, opts ...Option) *Demuxer {
	d := &Demuxer{
		Logger:                                 slog.Default(),
		cfg:                                    config.Default(),
		out:                                    out,
		endOfMdatPosition:                      -1,
		pendingSeekTimeUs:                      TimeUnset,
		durationUs:                             TimeUnset,
		segmentIndexEarliestPresentationTimeUs: TimeUnset,
		mergeStart:                             -1,
		scratch:                                make([]byte, sampleScratchLen),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.cfg.MaxLeafSize == 0 {
		d.cfg.MaxLeafSize = box.MaxLeafSize
	}
	d.merging = d.cfg.MergeFragmentedSidx
	if d.emsgEnabled || d.cfg.EnableEmsgTrack {
		d.emsgOutput = out.Track(EmsgTrackID, TrackTypeMetadata)
		d.emsgOutput.Format(newEmsgFormat())
	}
	if t := d.sideloadedTrack; t != nil {
		if t.Format == nil {
			t.Format = &Format{Kind: t.Type, MaxNumReorderSamples: -1, DurationUs: t.DurationUs}
		}
		table := &trackSampleTable{Track: t}
		bundle := newTrackBundle(out.Track(0, t.Type), table, DefaultSampleValues{})
		d.trackBundles.Add(bundle)
		d.durationUs = t.DurationUs
		out.EndTracks()
	}
	d.Debug("demuxer created", "flags", d.cfg.Flags(), "sideloaded", d.sideloadedTrack != nil)
	return d
}

// Read performs one unit of work: it returns after emitting or skipping a
// sample, at the end of input, or when the caller must reposition the input
// to pos.Position. util.ErrNeedMoreData from the input is returned as is and
// the next call resumes where this one stopped.
func (d *Demuxer) Read(in Input, pos *PositionHolder) (Result, error) {
	if d.released {
		return ResultEndOfInput, pkg.ErrReleased
	}
	if d.merging && d.mergeStart < 0 {
		d.mergeStart = in.Position()
	}
	for {
		var err error
		switch d.state {
		case stateReadingAtomHeader:
			err = d.readAtomHeader(in)
			if errors.Is(err, io.EOF) {
				if d.merging {
					return d.endMerge(pos), nil
				}
				return ResultEndOfInput, d.endOfInput()
			}
		case stateReadingAtomPayload:
			err = d.readAtomPayload(in)
		case stateSkippingPadding:
			err = d.skipPadding(in)
		case stateReadingEncryptionData:
			err = d.readEncryptionData(in)
		default:
			var emitted bool
			if emitted, err = d.readSample(in); err == nil && emitted {
				return ResultContinue, nil
			}
		}
		if err != nil {
			return ResultContinue, err
		}
	}
}

// SeekTo drops everything read since the last moov and prepares for reading
// from a box boundary at position. The first fragment read afterwards starts
// at its last sync sample at or before timeUs.
func (d *Demuxer) SeekTo(position, timeUs int64) {
	for _, b := range d.trackBundles.Items {
		b.resetFragmentInfo()
	}
	d.pendingMetadata = d.pendingMetadata[:0]
	d.pendingMetadataBytes = 0
	if d.seiQueue != nil {
		d.seiQueue.clear()
	}
	d.pendingSeekTimeUs = timeUs
	d.containerAtoms = d.containerAtoms[:0]
	d.enterReadingAtomHeaderState()
	d.Debug("seek", "position", position, "timeUs", timeUs)
}

// Release frees buffers; the demuxer cannot be used afterwards.
func (d *Demuxer) Release() {
	d.released = true
	d.trackBundles.Clear()
	d.containerAtoms = nil
	d.pendingMetadata = nil
	d.atomData = nil
	d.nalBuffer = nil
	d.scratch = nil
	d.segmentIndices = nil
	if d.seiQueue != nil {
		d.seiQueue.clear()
		d.seiQueue.free = nil
	}
}

func (d *Demuxer) enterReadingAtomHeaderState() {
	d.state = stateReadingAtomHeader
	d.headerReader.Reset()
	d.atomBuffering = false
	d.atomSkip = 0
	d.currentTrackBundle = nil
	d.samplePhase = sampleSelect
}

func (d *Demuxer) enterSkipState(remaining int64) {
	d.atomBuffering = false
	d.atomSkip = remaining
	d.state = stateReadingAtomPayload
}

func (d *Demuxer) readAtomHeader(in Input) error {
	start := in.Position() - int64(d.headerReader.BytesRead())
	containerEnd := int64(-1)
	if n := len(d.containerAtoms); n > 0 {
		containerEnd = d.containerAtoms[n-1].End
	}
	h, err := d.headerReader.Next(in, start, containerEnd, in.Length())
	if err != nil {
		return err
	}
	d.atomHeader = h
	position := in.Position()
	if containerEnd >= 0 && (!h.Resolved() || h.End() > containerEnd) {
		d.enterSkipState(max(containerEnd-position, 0))
		return pkg.Malformed("box overruns its parent ending at %d", containerEnd).At(h.Type, h.Offset)
	}
	d.Log(context.Background(), pkg.TraceLevel, "box", "type", box.TypeString(h.Type), "position", h.Offset, "size", h.Size)

	if d.merging {
		if h.Type == box.TypeSIDX && h.Resolved() && h.PayloadSize() <= int64(d.cfg.MaxLeafSize) {
			d.bufferLeaf(h)
		} else {
			d.enterSkipState(h.PayloadSize())
		}
		return nil
	}

	if h.Type == box.TypeMOOF || h.Type == box.TypeMDAT {
		if !d.haveOutputSeekMap {
			d.out.SeekMap(&Unseekable{DurationUs: d.durationUs, StartPosition: h.Offset})
			d.haveOutputSeekMap = true
		}
	}
	if h.Type == box.TypeMOOF {
		for _, b := range d.trackBundles.Items {
			f := &b.fragment
			f.atomPosition = h.Offset
			f.dataPosition = h.Offset
			f.auxiliaryDataPosition = h.Offset
		}
	}
	if h.Type == box.TypeMDAT {
		d.currentTrackBundle = nil
		d.samplePhase = sampleSelect
		d.endOfMdatPosition = h.End()
		d.state = stateReadingEncryptionData
		return nil
	}

	switch {
	case box.IsContainer(h.Type):
		d.containerAtoms = append(d.containerAtoms, &containerAtom{Type: h.Type, Position: h.Offset, End: h.End()})
		if h.End() == position {
			return d.processAtomEnded(position)
		}
	case box.IsLeaf(h.Type):
		if !h.Resolved() {
			d.enterSkipState(-1)
			return pkg.Unsupported("leaf box extends to unknown end of input").At(h.Type, h.Offset)
		}
		if h.PayloadSize() > int64(d.cfg.MaxLeafSize) {
			d.enterSkipState(h.PayloadSize())
			return pkg.Unsupported("leaf box payload of %d bytes", h.PayloadSize()).At(h.Type, h.Offset)
		}
		d.bufferLeaf(h)
	default:
		d.enterSkipState(h.PayloadSize())
	}
	return nil
}

// bufferLeaf prepares reading the payload of h. Every leaf gets its own
// buffer since closed leaves stay referenced by their container.
func (d *Demuxer) bufferLeaf(h box.Header) {
	d.atomData = make([]byte, h.PayloadSize())
	d.atomRead = 0
	d.atomBuffering = true
	d.state = stateReadingAtomPayload
}

func (d *Demuxer) readAtomPayload(in Input) (err error) {
	h := d.atomHeader
	switch {
	case d.atomBuffering:
		if err = readFull(in, d.atomData, &d.atomRead); err != nil {
			return truncated(err)
		}
		d.atomBuffering = false
		leaf := leafAtom{Type: h.Type, Position: h.Offset, End: h.End(), Payload: d.atomData}
		d.atomData = nil
		err = d.onLeafAtomRead(&leaf)
	case d.atomSkip < 0:
		for {
			_, serr := in.Skip(1 << 20)
			if errors.Is(serr, io.EOF) {
				d.enterReadingAtomHeaderState()
				return nil
			}
			if serr != nil {
				return serr
			}
		}
	default:
		if serr := skipFull(in, &d.atomSkip); serr != nil {
			return truncated(serr)
		}
	}
	d.state = stateReadingAtomHeader
	if perr := d.atomEnded(h.PayloadSize(), in.Position()); err == nil {
		err = perr
	}
	return err
}

// atomEnded runs once the payload of a box was consumed, skipping the
// padding byte of an odd payload first when configured.
func (d *Demuxer) atomEnded(payloadSize, position int64) error {
	if d.cfg.PadOddSizedBoxes && payloadSize%2 == 1 {
		d.padding = 1
		d.state = stateSkippingPadding
		return nil
	}
	return d.processAtomEnded(position)
}

func (d *Demuxer) skipPadding(in Input) error {
	err := skipFull(in, &d.padding)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	// a missing pad byte at the end of input is tolerated
	d.padding = 0
	d.state = stateReadingAtomHeader
	return d.processAtomEnded(in.Position())
}

// processAtomEnded closes every open container ending at position, innermost
// first.
func (d *Demuxer) processAtomEnded(position int64) (err error) {
	for n := len(d.containerAtoms); n > 0 && closesAt(d.containerAtoms[n-1], position); n = len(d.containerAtoms) {
		c := d.containerAtoms[n-1]
		d.containerAtoms = d.containerAtoms[:n-1]
		if cerr := d.onContainerAtomRead(c); cerr != nil && err == nil {
			err = cerr
		}
		if d.cfg.PadOddSizedBoxes && (c.End-c.Position)%2 == 1 {
			d.padding = 1
			d.state = stateSkippingPadding
			return
		}
	}
	return
}

// closesAt reports whether c ends at position. A container that a malformed
// child overran closes at the first box boundary after its end.
func closesAt(c *containerAtom, position int64) bool {
	return c.End >= 0 && c.End <= position
}

func (d *Demuxer) onContainerAtomRead(c *containerAtom) error {
	switch c.Type {
	case box.TypeMOOV:
		d.Debug("moov", "position", c.Position, "traks", len(c.Containers))
		return d.onMoov(c)
	case box.TypeMOOF:
		return d.onMoof(c)
	}
	if n := len(d.containerAtoms); n > 0 {
		parent := d.containerAtoms[n-1]
		parent.Containers = append(parent.Containers, c)
	}
	return nil
}

func (d *Demuxer) onLeafAtomRead(leaf *leafAtom) error {
	if n := len(d.containerAtoms); n > 0 {
		parent := d.containerAtoms[n-1]
		parent.Leaves = append(parent.Leaves, *leaf)
		return nil
	}
	switch leaf.Type {
	case box.TypeSIDX:
		return d.onSidx(leaf)
	case box.TypeEMSG:
		return d.onEmsg(leaf)
	}
	return nil
}

func (d *Demuxer) onSidx(leaf *leafAtom) error {
	earliestTimeUs, index, err := parseSidx(leaf.Payload, leaf.End)
	if err != nil {
		return pkg.WithBox(err, leaf.Type, leaf.Position)
	}
	if d.merging {
		d.segmentIndices = append(d.segmentIndices, index)
		return nil
	}
	d.segmentIndexEarliestPresentationTimeUs = earliestTimeUs
	if !d.haveOutputChunkIndex {
		d.Debug("sidx", "position", leaf.Position, "chunks", index.Len(), "durationUs", index.Duration())
		d.out.SeekMap(index)
		d.haveOutputSeekMap = true
		d.haveOutputChunkIndex = true
	}
	return nil
}

// endMerge finishes the segment index scan: the merged index is emitted and
// the caller is sent back to where the scan started.
func (d *Demuxer) endMerge(pos *PositionHolder) Result {
	merged := MergeChunkIndices(d.segmentIndices...)
	d.Debug("merged sidx", "boxes", len(d.segmentIndices), "chunks", merged.Len())
	if merged.Len() > 0 {
		d.out.SeekMap(merged)
		d.haveOutputSeekMap = true
		d.haveOutputChunkIndex = true
	}
	d.segmentIndices = nil
	d.merging = false
	d.containerAtoms = d.containerAtoms[:0]
	d.enterReadingAtomHeaderState()
	if pos != nil {
		pos.Position = max(d.mergeStart, 0)
	}
	return ResultSeek
}

// endOfInput closes containers that were open to the end of the stream.
func (d *Demuxer) endOfInput() (err error) {
	for n := len(d.containerAtoms); n > 0; n = len(d.containerAtoms) {
		c := d.containerAtoms[n-1]
		d.containerAtoms = d.containerAtoms[:n-1]
		if c.End >= 0 {
			d.Warn("truncated container", "type", box.TypeString(c.Type), "position", c.Position, "end", c.End)
			continue
		}
		if cerr := d.onContainerAtomRead(c); cerr != nil && err == nil {
			err = cerr
		}
	}
	if d.seiQueue != nil {
		d.seiQueue.flush()
	}
	return
}

// readEncryptionData fills the auxiliary data of the fragments that keep it
// inside the mdat, in stream order.
func (d *Demuxer) readEncryptionData(in Input) error {
	var next *trackBundle
	for _, b := range d.trackBundles.Items {
		f := &b.fragment
		if f.sampleEncryptionDataNeedsFill && (next == nil || f.auxiliaryDataPosition < next.fragment.auxiliaryDataPosition) {
			next = b
		}
	}
	if next == nil {
		d.state = stateReadingSample
		d.samplePhase = sampleSelect
		return nil
	}
	f := &next.fragment
	skip := f.auxiliaryDataPosition + int64(f.sampleEncryptionDataRead) - in.Position()
	if skip < 0 {
		position := f.auxiliaryDataPosition
		next.dropFragment()
		return pkg.Malformed("auxiliary data of track %d at %d precedes position %d", next.GetKey(), position, in.Position()).At(box.TypeMDAT, d.atomHeader.Offset)
	}
	if err := skipFull(in, &skip); err != nil {
		return truncated(err)
	}
	return f.fillEncryptionData(in)
}

// nextTrackBundle picks the track whose next sample comes first in the
// current mdat.
func (d *Demuxer) nextTrackBundle() *trackBundle {
	next, _ := d.trackBundles.MinBy(func(b *trackBundle) (int64, bool) {
		if b.exhausted() {
			return 0, false
		}
		offset := b.currentSampleOffset()
		return offset, d.endOfMdatPosition < 0 || offset < d.endOfMdatPosition
	})
	return next
}

func (d *Demuxer) dependencyDetection(b *trackBundle) bool {
	fourcc := b.baseFormat.FourCC
	return (fourcc.IsH264() && d.cfg.ReadWithinGopSampleDependencies) ||
		(fourcc.IsH265() && d.cfg.ReadWithinGopSampleDependenciesH265)
}

// nalRewrite reports whether samples of b are length prefixed NAL units to
// be turned into start code delimited ones.
func nalRewrite(b *trackBundle) bool {
	l := b.track().NALLengthSize
	return l >= 1 && l <= 4 && b.baseFormat.FourCC.NALHeaderSize() > 0
}

// readSample reads, or skips, the next sample of the current mdat. It reports
// whether a sample was consumed.
func (d *Demuxer) readSample(in Input) (bool, error) {
	for {
		b := d.currentTrackBundle
		switch d.samplePhase {
		case sampleSelect:
			if b == nil {
				if b = d.nextTrackBundle(); b == nil {
					return false, d.leaveMdat(in)
				}
				d.currentTrackBundle = b
				// samples of a run follow each other, only a new run may start after a gap
				d.sampleSkip = b.currentSampleOffset() - in.Position()
				if d.sampleSkip < 0 {
					d.Warn("sample data precedes position", "track", b.GetKey(), "offset", b.currentSampleOffset(), "position", in.Position())
					d.sampleSkip = 0
				}
			}
			d.samplePhase = sampleGap

		case sampleGap:
			if err := skipFull(in, &d.sampleSkip); err != nil {
				return false, truncated(err)
			}
			d.samplePhase = sampleStart

		case sampleStart:
			d.sampleSize = b.currentSampleSize()
			d.sampleTimeUs = b.currentSamplePresentationTimeUs()
			d.sampleBytesWritten = 0
			d.nalRemaining = 0
			d.nalPrefixRead = 0
			d.isSampleDependedOn = false
			d.processSEI = false
			switch {
			case b.sampleIndex < b.firstSampleToOutputIndex:
				d.sampleSkip = int64(d.sampleSize)
				d.samplePhase = sampleSkipWhole
			case b.track().Transformation == TransformationCEA608CDAT:
				d.sampleSkip = cdatHeaderLen
				d.samplePhase = sampleSkipCDAT
			default:
				d.samplePhase = sampleHeader
			}

		case sampleSkipWhole:
			if err := skipFull(in, &d.sampleSkip); err != nil {
				return false, truncated(err)
			}
			b.skipSampleEncryptionData()
			d.advance(b)
			return true, nil

		case sampleSkipCDAT:
			if err := skipFull(in, &d.sampleSkip); err != nil {
				return false, truncated(err)
			}
			d.sampleSize -= cdatHeaderLen
			d.samplePhase = sampleHeader

		case sampleHeader:
			var written int
			var err error
			if b.baseFormat.FourCC == codec.FourCC_AC4 {
				if written, err = b.outputSampleEncryptionData(d.sampleSize, ac4SampleHeaderLen); err == nil {
					d.ac4Header = [ac4SampleHeaderLen]byte{0xAC, 0x40, 0xFF, 0xFF, byte(d.sampleSize >> 16), byte(d.sampleSize >> 8), byte(d.sampleSize)}
					b.output.SampleData(d.ac4Header[:])
					written += ac4SampleHeaderLen
				}
			} else {
				written, err = b.outputSampleEncryptionData(d.sampleSize, 0)
			}
			if err != nil {
				// the payload is left unread; the next selection skips past it
				b.dropFragment()
				d.currentTrackBundle = nil
				d.samplePhase = sampleSelect
				return false, pkg.WithBox(err, box.TypeMDAT, d.atomHeader.Offset)
			}
			d.sampleBytesWritten = written
			d.sampleSize += written
			if d.seiQueue != nil && nalRewrite(b) {
				d.seiQueue.setMaxSize(max(b.baseFormat.MaxNumReorderSamples, 0))
			}
			d.samplePhase = sampleBody

		case sampleBody:
			var err error
			if nalRewrite(b) {
				err = d.readNALUnits(in, b)
			} else {
				err = d.copySampleData(in, b)
			}
			if err != nil {
				return false, err
			}
			d.commitSample(b)
			return true, nil

		case sampleDiscard:
			if err := skipFull(in, &d.sampleSkip); err != nil {
				return false, truncated(err)
			}
			d.advance(b)
			return true, nil
		}
	}
}

// leaveMdat skips whatever follows the last sample of the mdat.
func (d *Demuxer) leaveMdat(in Input) error {
	d.currentTrackBundle = nil
	d.samplePhase = sampleSelect
	if d.endOfMdatPosition < 0 {
		d.enterSkipState(-1)
		return nil
	}
	skip := d.endOfMdatPosition - in.Position()
	if skip < 0 {
		d.Warn("read past end of mdat", "end", d.endOfMdatPosition, "position", in.Position())
		skip = 0
	}
	d.enterSkipState(skip)
	return nil
}

func (d *Demuxer) advance(b *trackBundle) {
	if !b.next() {
		d.currentTrackBundle = nil
	}
	d.samplePhase = sampleSelect
}

func (d *Demuxer) copySampleData(in Input, b *trackBundle) error {
	for d.sampleBytesWritten < d.sampleSize {
		n, err := in.Read(d.scratch[:min(len(d.scratch), d.sampleSize-d.sampleBytesWritten)])
		if n > 0 {
			b.output.SampleData(d.scratch[:n])
			d.sampleBytesWritten += n
		}
		if err != nil {
			if d.sampleBytesWritten == d.sampleSize {
				break
			}
			return truncated(err)
		}
	}
	return nil
}

// readNALUnits copies the sample replacing each NAL length prefix by a start
// code. SEI units are buffered whole for the caption sink and the NAL headers
// tell whether the sample is referenced by others.
func (d *Demuxer) readNALUnits(in Input, b *trackBundle) error {
	fourcc := b.baseFormat.FourCC
	lengthSize := b.track().NALLengthSize
	headerSize := fourcc.NALHeaderSize()
	prefix := d.nalPrefix[nalStartCodeLength-lengthSize : nalStartCodeLength+headerSize]
	for d.sampleBytesWritten < d.sampleSize {
		if d.nalRemaining == 0 && !d.processSEI {
			if err := readFull(in, prefix, &d.nalPrefixRead); err != nil {
				return truncated(err)
			}
			d.nalPrefixRead = 0
			clear(d.nalPrefix[:nalStartCodeLength-lengthSize])
			length := int(d.nalPrefix[0])<<24 | int(d.nalPrefix[1])<<16 | int(d.nalPrefix[2])<<8 | int(d.nalPrefix[3])
			left := d.sampleSize - d.sampleBytesWritten - len(prefix)
			if length < headerSize || length-headerSize > left {
				d.sampleSkip = int64(max(left, 0))
				d.samplePhase = sampleDiscard
				return pkg.Malformed("NAL unit length %d in sample %d of track %d", length, b.sampleIndex, b.GetKey()).At(box.TypeMDAT, d.atomHeader.Offset)
			}
			header := d.nalPrefix[nalStartCodeLength : nalStartCodeLength+headerSize]
			b.output.SampleData(nalStartCode)
			b.output.SampleData(header)
			d.sampleBytesWritten += nalStartCodeLength + headerSize
			d.sampleSize += nalStartCodeLength - lengthSize
			d.nalRemaining = length - headerSize
			if !d.isSampleDependedOn {
				switch {
				case fourcc.IsH264() && d.cfg.ReadWithinGopSampleDependencies:
					d.isSampleDependedOn = codec.IsH264NALDependedOn(header[0])
				case fourcc.IsH265() && d.cfg.ReadWithinGopSampleDependenciesH265:
					d.isSampleDependedOn = codec.IsH265NALDependedOn(codec.ParseH265NALHeader(header), b.baseFormat.MaxSubLayers)
				}
			}
			if d.seiQueue != nil && fourcc.IsSEI(header[0]) {
				d.processSEI = true
				d.nalBuffer = append(d.nalBuffer[:0], header...)
				d.nalBuffer = append(d.nalBuffer, make([]byte, d.nalRemaining)...)
				d.nalBufferRead = headerSize
			}
			continue
		}
		if d.processSEI {
			if err := readFull(in, d.nalBuffer, &d.nalBufferRead); err != nil {
				return truncated(err)
			}
			b.output.SampleData(d.nalBuffer[headerSize:])
			d.sampleBytesWritten += d.nalRemaining
			d.nalRemaining = 0
			d.processSEI = false
			d.seiQueue.add(d.sampleTimeUs, fourcc, d.nalBuffer)
			continue
		}
		n, err := in.Read(d.scratch[:min(len(d.scratch), d.nalRemaining)])
		if n > 0 {
			b.output.SampleData(d.scratch[:n])
			d.sampleBytesWritten += n
			d.nalRemaining -= n
		}
		if err != nil && (d.nalRemaining > 0 || d.sampleBytesWritten < d.sampleSize) {
			return truncated(err)
		}
	}
	return nil
}

func (d *Demuxer) commitSample(b *trackBundle) {
	flags := b.currentSampleFlags()
	if nalRewrite(b) && d.dependencyDetection(b) && !d.isSampleDependedOn {
		flags |= FlagNotDependedOn
	}
	var crypto *CryptoData
	if enc := b.encryptionBoxIfEncrypted(); enc != nil {
		crypto = cryptoDataOf(enc)
	}
	b.output.SampleMetadata(d.sampleTimeUs, flags, d.sampleSize, 0, crypto)
	d.Log(context.Background(), pkg.TraceLevel, "sample", "track", b.GetKey(), "index", b.sampleIndex, "timeUs", d.sampleTimeUs, "size", d.sampleSize, "flags", flags)
	d.outputPendingMetadataSamples(d.sampleTimeUs)
	if flags.Has(FlagEndOfStream) && d.seiQueue != nil {
		d.seiQueue.flush()
	}
	d.advance(b)
}
