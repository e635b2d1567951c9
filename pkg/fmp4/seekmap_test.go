package fmp4

import (
	"errors"
	"reflect"
	"testing"

	"m7s.live/fmp4/pkg"
)

func TestParseSidx(t *testing.T) {
	// thirds of a second at 90 kHz do not convert to whole microseconds
	var refs []byte
	for i := 0; i < 3; i++ {
		refs = concat(refs, u32(100), u32(30000), u32(0x90000000))
	}
	payload := fullBox("sidx", 0, 0, u32(1), u32(90000), u32(0), u32(0), u16(0), u16(3), refs)[8:]
	_, index, err := parseSidx(payload, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(index.Offsets, []int64{1000, 1100, 1200}) || !reflect.DeepEqual(index.Sizes, []int{100, 100, 100}) {
		t.Fatalf("unexpected index %v", index)
	}
	for i := 0; i+1 < index.Len(); i++ {
		if index.TimesUs[i]+index.DurationsUs[i] != index.TimesUs[i+1] {
			t.Fatalf("chunk %d is not continuous: %v", i, index)
		}
	}
	if index.Duration() != 1000000 {
		t.Fatalf("duration %d", index.Duration())
	}

	t.Run("earliest time", func(t *testing.T) {
		earliest, index, err := parseSidx(sidxBox(2500, 500)[8:], 0)
		if err != nil {
			t.Fatal(err)
		}
		if earliest != 2500000 || index.TimesUs[0] != 2500000 {
			t.Fatalf("unexpected earliest time %d %v", earliest, index)
		}
	})

	t.Run("indirect reference", func(t *testing.T) {
		payload := fullBox("sidx", 0, 0, u32(1), u32(1000), u32(0), u32(0), u16(0), u16(1),
			u32(1<<31|100), u32(500), u32(0))[8:]
		if _, _, err := parseSidx(payload, 0); !errors.Is(err, pkg.ErrUnsupportedFeature) {
			t.Fatalf("unexpected error %v", err)
		}
	})

	t.Run("zero timescale", func(t *testing.T) {
		payload := fullBox("sidx", 0, 0, u32(1), u32(0), u32(0), u32(0), u16(0), u16(0))[8:]
		if _, _, err := parseSidx(payload, 0); !errors.Is(err, pkg.ErrMalformedContainer) {
			t.Fatalf("unexpected error %v", err)
		}
	})
}

func TestChunkIndexSeekPoints(t *testing.T) {
	index := &ChunkIndex{
		Sizes:       []int{10, 10, 10},
		Offsets:     []int64{100, 110, 120},
		DurationsUs: []int64{1000, 1000, 1000},
		TimesUs:     []int64{0, 1000, 2000},
	}
	for _, tc := range []struct {
		timeUs        int64
		first, second SeekPoint
	}{
		{0, SeekPoint{0, 100}, SeekPoint{0, 100}},
		{1500, SeekPoint{1000, 110}, SeekPoint{2000, 120}},
		{2000, SeekPoint{2000, 120}, SeekPoint{2000, 120}},
		{9000, SeekPoint{2000, 120}, SeekPoint{2000, 120}},
	} {
		first, second := index.SeekPoints(tc.timeUs)
		if first != tc.first || second != tc.second {
			t.Fatalf("time %d: %s %s", tc.timeUs, first, second)
		}
	}
	if !index.IsSeekable() || index.Duration() != 3000 {
		t.Fatal("unexpected duration")
	}
}

func TestMergeChunkIndices(t *testing.T) {
	a := &ChunkIndex{Sizes: []int{1, 2}, Offsets: []int64{10, 20}, DurationsUs: []int64{400, 400}, TimesUs: []int64{0, 1000}}
	b := &ChunkIndex{Sizes: []int{3}, Offsets: []int64{30}, DurationsUs: []int64{700}, TimesUs: []int64{500}}
	merged := MergeChunkIndices(a, b)
	if merged.Len() != a.Len()+b.Len() {
		t.Fatalf("merged %d chunks", merged.Len())
	}
	if !reflect.DeepEqual(merged.TimesUs, []int64{0, 500, 1000}) ||
		!reflect.DeepEqual(merged.Offsets, []int64{10, 30, 20}) ||
		!reflect.DeepEqual(merged.DurationsUs, []int64{500, 500, 400}) {
		t.Fatalf("unexpected merge %v", merged)
	}
	if MergeChunkIndices().Len() != 0 {
		t.Fatal("empty merge not empty")
	}

	t.Run("overlap and repeats", func(t *testing.T) {
		// a read twice, c overlapping the first chunk of a
		c := &ChunkIndex{Sizes: []int{4}, Offsets: []int64{40}, DurationsUs: []int64{900}, TimesUs: []int64{200}}
		merged := MergeChunkIndices(a, c, a)
		if !reflect.DeepEqual(merged.TimesUs, []int64{0, 200, 1000}) ||
			!reflect.DeepEqual(merged.Offsets, []int64{10, 40, 20}) ||
			!reflect.DeepEqual(merged.DurationsUs, []int64{200, 800, 400}) {
			t.Fatalf("unexpected merge %v", merged)
		}
		for i := 0; i+1 < merged.Len(); i++ {
			if merged.TimesUs[i]+merged.DurationsUs[i] != merged.TimesUs[i+1] {
				t.Fatalf("gap after chunk %d", i)
			}
		}
	})
}
