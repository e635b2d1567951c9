package fmp4

import (
	"fmt"
	"slices"

	"m7s.live/fmp4/pkg/util"
)

type SeekPoint struct {
	TimeUs   int64
	Position int64
}

func (p SeekPoint) String() string {
	return fmt.Sprintf("[timeUs=%d, position=%d]", p.TimeUs, p.Position)
}

// SeekMap maps playback times to byte positions in the stream.
type SeekMap interface {
	IsSeekable() bool
	// Duration in microseconds, TimeUnset when unknown.
	Duration() int64
	// SeekPoints returns the closest point at or before timeUs and, when
	// different, the next one after it.
	SeekPoints(timeUs int64) (SeekPoint, SeekPoint)
}

// Unseekable is emitted as soon as media data is reached so consumers can
// start before the stream is fully indexed.
type Unseekable struct {
	DurationUs    int64
	StartPosition int64
}

func (u *Unseekable) IsSeekable() bool {
	return false
}

func (u *Unseekable) Duration() int64 {
	return u.DurationUs
}

func (u *Unseekable) SeekPoints(int64) (SeekPoint, SeekPoint) {
	p := SeekPoint{Position: u.StartPosition}
	return p, p
}

// ChunkIndex is a seek table of independently decodable chunks, as listed by
// segment index boxes. TimesUs[i]+DurationsUs[i] == TimesUs[i+1] holds for
// every adjacent pair.
type ChunkIndex struct {
	Sizes       []int
	Offsets     []int64
	DurationsUs []int64
	TimesUs     []int64
}

func (c *ChunkIndex) Len() int {
	return len(c.TimesUs)
}

func (c *ChunkIndex) IsSeekable() bool {
	return true
}

func (c *ChunkIndex) Duration() int64 {
	n := c.Len()
	if n == 0 {
		return 0
	}
	return c.TimesUs[n-1] + c.DurationsUs[n-1]
}

// ChunkIndex returns the index of the chunk containing timeUs.
func (c *ChunkIndex) ChunkIndex(timeUs int64) int {
	return util.BinarySearchFloor(c.TimesUs, timeUs, true)
}

func (c *ChunkIndex) SeekPoints(timeUs int64) (SeekPoint, SeekPoint) {
	if c.Len() == 0 {
		return SeekPoint{}, SeekPoint{}
	}
	i := c.ChunkIndex(timeUs)
	p := SeekPoint{TimeUs: c.TimesUs[i], Position: c.Offsets[i]}
	if p.TimeUs >= timeUs || i == c.Len()-1 {
		return p, p
	}
	return p, SeekPoint{TimeUs: c.TimesUs[i+1], Position: c.Offsets[i+1]}
}

func (c *ChunkIndex) String() string {
	return fmt.Sprintf("ChunkIndex(length=%d, sizes=%v, offsets=%v, timeUs=%v, durationsUs=%v)",
		c.Len(), c.Sizes, c.Offsets, c.TimesUs, c.DurationsUs)
}

type chunk struct {
	size     int
	offset   int64
	duration int64
	time     int64
}

// MergeChunkIndices combines indices into one table ordered by time. Each
// entry but the last runs until the next one starts, which keeps the table
// continuous when the inputs leave gaps or overlap: an overlapping entry is
// clipped at the start of its successor, so its duration no longer matches
// the source index. Entries repeated with the same time and offset, as from
// a sidx read twice, are kept once.
func MergeChunkIndices(indices ...*ChunkIndex) *ChunkIndex {
	var chunks []chunk
	for _, index := range indices {
		for i := range index.TimesUs {
			chunks = append(chunks, chunk{index.Sizes[i], index.Offsets[i], index.DurationsUs[i], index.TimesUs[i]})
		}
	}
	slices.SortStableFunc(chunks, func(a, b chunk) int {
		switch {
		case a.time < b.time:
			return -1
		case a.time > b.time:
			return 1
		}
		return 0
	})
	chunks = slices.CompactFunc(chunks, func(a, b chunk) bool {
		return a.time == b.time && a.offset == b.offset
	})
	merged := &ChunkIndex{
		Sizes:       make([]int, len(chunks)),
		Offsets:     make([]int64, len(chunks)),
		DurationsUs: make([]int64, len(chunks)),
		TimesUs:     make([]int64, len(chunks)),
	}
	for i, c := range chunks {
		merged.Sizes[i] = c.size
		merged.Offsets[i] = c.offset
		merged.TimesUs[i] = c.time
		if i+1 < len(chunks) {
			merged.DurationsUs[i] = chunks[i+1].time - c.time
		} else {
			merged.DurationsUs[i] = c.duration
		}
	}
	return merged
}
