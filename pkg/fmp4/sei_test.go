package fmp4

import (
	"reflect"
	"testing"

	"m7s.live/fmp4/pkg/codec"
)

type seiLog struct {
	times []int64
	nals  [][]byte
}

func (l *seiLog) ConsumeSEI(timeUs int64, _ codec.FourCC, nal []byte) {
	l.times = append(l.times, timeUs)
	l.nals = append(l.nals, append([]byte(nil), nal...))
}

func TestSEIReorderQueue(t *testing.T) {
	t.Run("pass through", func(t *testing.T) {
		var log seiLog
		q := newSEIReorderQueue(&log)
		q.add(3, codec.FourCC_H264, []byte{6, 3})
		q.add(1, codec.FourCC_H264, []byte{6, 1})
		if !reflect.DeepEqual(log.times, []int64{3, 1}) {
			t.Fatalf("unexpected order %v", log.times)
		}
	})

	t.Run("reorder", func(t *testing.T) {
		var log seiLog
		q := newSEIReorderQueue(&log)
		q.setMaxSize(2)
		nal := []byte{6, 0}
		for _, ts := range []int64{3, 1, 2, 5, 0} {
			nal[1] = byte(ts)
			q.add(ts, codec.FourCC_H264, nal)
		}
		q.flush()
		if !reflect.DeepEqual(log.times, []int64{1, 2, 0, 3, 5}) {
			t.Fatalf("unexpected order %v", log.times)
		}
		// queued units were copied, not aliased
		for i, ts := range log.times {
			if log.nals[i][1] != byte(ts) {
				t.Fatalf("unit %d holds % x", i, log.nals[i])
			}
		}
	})

	t.Run("equal times keep arrival order", func(t *testing.T) {
		var log seiLog
		q := newSEIReorderQueue(&log)
		q.setMaxSize(4)
		q.add(1, codec.FourCC_H264, []byte{6, 'a'})
		q.add(1, codec.FourCC_H264, []byte{6, 'b'})
		q.add(0, codec.FourCC_H264, []byte{6, 'c'})
		q.flush()
		var got string
		for _, nal := range log.nals {
			got += string(nal[1:])
		}
		if got != "cab" {
			t.Fatalf("unexpected order %q", got)
		}
	})

	t.Run("shrink flushes", func(t *testing.T) {
		var log seiLog
		q := newSEIReorderQueue(&log)
		q.setMaxSize(3)
		q.add(2, codec.FourCC_H264, []byte{6})
		q.add(1, codec.FourCC_H264, []byte{6})
		q.setMaxSize(1)
		if !reflect.DeepEqual(log.times, []int64{1}) {
			t.Fatalf("unexpected order %v", log.times)
		}
		q.clear()
		q.flush()
		if len(log.times) != 1 {
			t.Fatalf("cleared queue emitted %v", log.times)
		}
	})
}
