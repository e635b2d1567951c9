package fmp4

import (
	"encoding/binary"

	"m7s.live/fmp4/pkg/box"
)

// singleSubsampleEncryptionDataLength is the size of a synthesized
// subsample table with one entry.
const singleSubsampleEncryptionDataLength = 8

// trackBundle is everything known about one track: its static sample table,
// the current fragment and the read cursors over both.
type trackBundle struct {
	output      TrackOutput
	table       *trackSampleTable
	defaults    DefaultSampleValues
	fragment    trackFragment
	baseFormat  *Format
	scratch     [singleSubsampleEncryptionDataLength]byte
	subsamples  []byte
	constantIV  []byte
	signal      [1]byte
	inFragment  bool
	sampleIndex int
	// run cursors, only meaningful while inFragment
	runIndex    int
	sampleInRun int

	firstSampleToOutputIndex int
}

func newTrackBundle(output TrackOutput, table *trackSampleTable, defaults DefaultSampleValues) *trackBundle {
	b := &trackBundle{output: output}
	b.reset(table, defaults)
	return b
}

func (b *trackBundle) GetKey() uint32 {
	return b.table.Track.ID
}

func (b *trackBundle) track() *Track {
	return b.table.Track
}

func (b *trackBundle) reset(table *trackSampleTable, defaults DefaultSampleValues) {
	b.table = table
	b.defaults = defaults
	b.baseFormat = table.Track.Format
	b.output.Format(b.baseFormat)
	b.resetFragmentInfo()
}

// updateDRMInitData publishes a format carrying scheme data from a moof pssh.
func (b *trackBundle) updateDRMInitData(data []SchemeData) {
	b.output.Format(b.baseFormat.copyWithDRMInitData(data))
}

func (b *trackBundle) resetFragmentInfo() {
	b.fragment.reset()
	b.sampleIndex = 0
	b.runIndex = 0
	b.sampleInRun = 0
	b.firstSampleToOutputIndex = 0
	b.inFragment = false
}

// dropFragment forgets the samples of the current fragment while keeping its
// decode time, so nothing of a fragment that failed to parse is emitted.
func (b *trackBundle) dropFragment() {
	decodeTime := b.fragment.nextFragmentDecodeTime
	includesMoov := b.fragment.nextFragmentDecodeTimeIncludesMoov
	b.resetFragmentInfo()
	b.inFragment = true
	b.fragment.nextFragmentDecodeTime = decodeTime
	b.fragment.nextFragmentDecodeTimeIncludesMoov = includesMoov
}

// seek moves the first sample to output to the last sync sample at or
// before timeUs within the current fragment.
func (b *trackBundle) seek(timeUs int64) {
	for i := b.sampleIndex; i < b.fragment.sampleCount && b.fragment.samplePresentationTimeUs(i) <= timeUs; i++ {
		if b.fragment.sampleIsSyncFrame[i] {
			b.firstSampleToOutputIndex = i
		}
	}
}

// exhausted reports whether no sample is left to read.
func (b *trackBundle) exhausted() bool {
	if !b.inFragment {
		return b.sampleIndex >= b.table.SampleCount()
	}
	return b.runIndex >= b.fragment.trunCount
}

func (b *trackBundle) currentSamplePresentationTimeUs() int64 {
	if !b.inFragment {
		return b.table.TimestampsUs[b.sampleIndex]
	}
	return b.fragment.samplePresentationTimeUs(b.sampleIndex)
}

func (b *trackBundle) currentSampleOffset() int64 {
	if !b.inFragment {
		return b.table.Offsets[b.sampleIndex]
	}
	return b.fragment.trunDataPosition[b.runIndex]
}

func (b *trackBundle) currentSampleSize() int {
	if !b.inFragment {
		return b.table.Sizes[b.sampleIndex]
	}
	return b.fragment.sampleSizeTable[b.sampleIndex]
}

func (b *trackBundle) currentSampleFlags() (flags SampleFlags) {
	if !b.inFragment {
		flags = b.table.Flags[b.sampleIndex]
	} else if b.fragment.sampleIsSyncFrame[b.sampleIndex] {
		flags = FlagKeyFrame
	}
	if b.encryptionBoxIfEncrypted() != nil {
		flags |= FlagEncrypted
	}
	return
}

// next advances the cursors. It returns false when the next sample must be
// located again, at the end of a run or outside fragments.
func (b *trackBundle) next() bool {
	b.sampleIndex++
	if !b.inFragment {
		return false
	}
	b.sampleInRun++
	if b.sampleInRun == b.fragment.trunLength[b.runIndex] {
		b.runIndex++
		b.sampleInRun = 0
		return false
	}
	return true
}

// encryptionBoxIfEncrypted returns the encryption box in force for the
// current fragment, or nil when its samples are clear.
func (b *trackBundle) encryptionBoxIfEncrypted() *box.TrackEncryptionBox {
	if !b.inFragment || b.fragment.encryptionDisabled {
		return nil
	}
	enc := b.fragment.trackEncryptionBox
	if enc == nil {
		enc = b.track().SampleDescriptionEncryptionBox(b.fragment.header.SampleDescriptionIndex)
	}
	if enc != nil && enc.IsEncrypted {
		return enc
	}
	return nil
}

// outputSampleEncryptionData writes the signal byte, IV and subsample table
// of the current sample ahead of its payload and returns the bytes written.
// clearHeaderSize bytes synthesized in front of the payload are accounted
// for as clear data.
func (b *trackBundle) outputSampleEncryptionData(sampleSize, clearHeaderSize int) (int, error) {
	enc := b.encryptionBoxIfEncrypted()
	if enc == nil {
		return 0, nil
	}
	f := &b.fragment
	var iv []byte
	if enc.PerSampleIVSize != 0 {
		if iv = f.takeEncryptionData(int(enc.PerSampleIVSize)); iv == nil {
			return 0, errAuxiliaryDataExhausted(b.sampleIndex)
		}
	} else {
		b.constantIV = append(b.constantIV[:0], enc.ConstantIV...)
		iv = b.constantIV
	}
	haveSubsampleTable := f.sampleHasSubsampleTable(b.sampleIndex)
	var table []byte
	if haveSubsampleTable {
		count, ok := f.peekSubsampleCount()
		if table = f.takeEncryptionData(2 + 6*count); !ok || table == nil {
			return 0, errAuxiliaryDataExhausted(b.sampleIndex)
		}
		if clearHeaderSize != 0 && count > 0 {
			b.subsamples = append(b.subsamples[:0], table...)
			table = b.subsamples
			clearBytes := binary.BigEndian.Uint16(table[2:]) + uint16(clearHeaderSize)
			binary.BigEndian.PutUint16(table[2:], clearBytes)
		}
	} else if clearHeaderSize != 0 {
		table = b.scratch[:]
		table[0], table[1] = 0, 1
		binary.BigEndian.PutUint16(table[2:], uint16(clearHeaderSize))
		binary.BigEndian.PutUint32(table[4:], uint32(sampleSize))
	}

	b.signal[0] = byte(len(iv))
	if table != nil {
		b.signal[0] |= 0x80
	}
	b.output.SampleData(b.signal[:])
	b.output.SampleData(iv)
	if table == nil {
		return 1 + len(iv), nil
	}
	b.output.SampleData(table)
	return 1 + len(iv) + len(table), nil
}

// skipSampleEncryptionData moves the auxiliary data cursor past a sample
// that is not output.
func (b *trackBundle) skipSampleEncryptionData() {
	enc := b.encryptionBoxIfEncrypted()
	if enc == nil {
		return
	}
	f := &b.fragment
	if enc.PerSampleIVSize != 0 {
		f.takeEncryptionData(int(enc.PerSampleIVSize))
	}
	if f.sampleHasSubsampleTable(b.sampleIndex) {
		if count, ok := f.peekSubsampleCount(); ok {
			f.takeEncryptionData(2 + 6*count)
		}
	}
}
