package fmp4

import (
	"encoding/binary"

	"m7s.live/fmp4/pkg/box"
)

// trackFragment is the state of one track inside the current movie fragment.
// Its tables are reused from fragment to fragment.
type trackFragment struct {
	header DefaultSampleValues
	// Positions of the enclosing moof, of the data and of the auxiliary
	// encryption data, absolute.
	atomPosition          int64
	dataPosition          int64
	auxiliaryDataPosition int64

	trunCount         int
	sampleCount       int
	trunLength        []int
	trunDataPosition  []int64
	sampleSizeTable   []int
	sampleTimesUs     []int64
	sampleIsSyncFrame []bool

	// definesEncryptionData is set by a protected seig sample group, whose
	// trackEncryptionBox then overrides the sample description's.
	definesEncryptionData bool
	trackEncryptionBox    *box.TrackEncryptionBox
	// encryptionDisabled is set by a senc listing no samples.
	encryptionDisabled bool

	sampleHasSubsampleEncryptionTable []bool
	sampleEncryptionData              []byte
	sampleEncryptionDataRead          int // fill progress
	sampleEncryptionDataPos           int // read cursor
	sampleEncryptionDataNeedsFill     bool

	nextFragmentDecodeTime             int64
	nextFragmentDecodeTimeIncludesMoov bool
}

func (f *trackFragment) reset() {
	f.trunCount = 0
	f.sampleCount = 0
	f.nextFragmentDecodeTime = 0
	f.nextFragmentDecodeTimeIncludesMoov = false
	f.definesEncryptionData = false
	f.trackEncryptionBox = nil
	f.encryptionDisabled = false
	f.sampleEncryptionDataNeedsFill = false
	f.sampleEncryptionData = f.sampleEncryptionData[:0]
	f.sampleEncryptionDataRead = 0
	f.sampleEncryptionDataPos = 0
}

// initTables sizes the tables for trunCount runs holding sampleCount samples.
func (f *trackFragment) initTables(trunCount, sampleCount int) {
	f.trunCount = trunCount
	f.sampleCount = sampleCount
	if cap(f.trunLength) < trunCount {
		f.trunLength = make([]int, trunCount)
		f.trunDataPosition = make([]int64, trunCount)
	}
	f.trunLength = f.trunLength[:trunCount]
	f.trunDataPosition = f.trunDataPosition[:trunCount]
	if cap(f.sampleSizeTable) < sampleCount {
		// grow by a quarter to avoid reallocating for every slightly larger fragment
		n := sampleCount * 125 / 100
		f.sampleSizeTable = make([]int, n)
		f.sampleTimesUs = make([]int64, n)
		f.sampleIsSyncFrame = make([]bool, n)
		f.sampleHasSubsampleEncryptionTable = make([]bool, n)
	}
	f.sampleSizeTable = f.sampleSizeTable[:sampleCount]
	f.sampleTimesUs = f.sampleTimesUs[:sampleCount]
	f.sampleIsSyncFrame = f.sampleIsSyncFrame[:sampleCount]
	f.sampleHasSubsampleEncryptionTable = f.sampleHasSubsampleEncryptionTable[:sampleCount]
	clear(f.sampleHasSubsampleEncryptionTable)
}

// initEncryptionData prepares a buffer of length bytes of auxiliary data,
// to be filled from the input.
func (f *trackFragment) initEncryptionData(length int) {
	if cap(f.sampleEncryptionData) < length {
		f.sampleEncryptionData = make([]byte, length)
	}
	f.sampleEncryptionData = f.sampleEncryptionData[:length]
	f.sampleEncryptionDataRead = 0
	f.sampleEncryptionDataPos = 0
	f.definesEncryptionData = true
	f.sampleEncryptionDataNeedsFill = true
}

// fillEncryptionData reads the auxiliary data from in, resuming a previous
// partial fill.
func (f *trackFragment) fillEncryptionData(in Input) error {
	if err := readFull(in, f.sampleEncryptionData, &f.sampleEncryptionDataRead); err != nil {
		return truncated(err)
	}
	f.sampleEncryptionDataNeedsFill = false
	return nil
}

// fillEncryptionDataFrom takes the auxiliary data from a senc payload.
func (f *trackFragment) fillEncryptionDataFrom(data []byte) {
	f.initEncryptionData(len(data))
	copy(f.sampleEncryptionData, data)
	f.sampleEncryptionDataRead = len(data)
	f.sampleEncryptionDataNeedsFill = false
}

// takeEncryptionData consumes n bytes of auxiliary data, returning nil when
// fewer are left.
func (f *trackFragment) takeEncryptionData(n int) []byte {
	if n < 0 || f.sampleEncryptionDataPos+n > len(f.sampleEncryptionData) {
		return nil
	}
	b := f.sampleEncryptionData[f.sampleEncryptionDataPos : f.sampleEncryptionDataPos+n]
	f.sampleEncryptionDataPos += n
	return b
}

// peekSubsampleCount reads the subsample count at the cursor without consuming it.
func (f *trackFragment) peekSubsampleCount() (int, bool) {
	if f.sampleEncryptionDataPos+2 > len(f.sampleEncryptionData) {
		return 0, false
	}
	return int(binary.BigEndian.Uint16(f.sampleEncryptionData[f.sampleEncryptionDataPos:])), true
}

func (f *trackFragment) samplePresentationTimeUs(i int) int64 {
	return f.sampleTimesUs[i]
}

func (f *trackFragment) sampleHasSubsampleTable(i int) bool {
	return f.sampleHasSubsampleEncryptionTable[i] && !f.encryptionDisabled
}
