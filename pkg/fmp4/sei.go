package fmp4

import (
	"slices"

	"m7s.live/fmp4/pkg/codec"
)

// SEIConsumer receives SEI NAL units in presentation order. nal starts with
// the NAL unit header and is still emulation-prevention escaped; it is only
// valid for the duration of the call.
type SEIConsumer interface {
	ConsumeSEI(timeUs int64, fourcc codec.FourCC, nal []byte)
}

type SEIConsumerFunc func(timeUs int64, fourcc codec.FourCC, nal []byte)

func (f SEIConsumerFunc) ConsumeSEI(timeUs int64, fourcc codec.FourCC, nal []byte) {
	f(timeUs, fourcc, nal)
}

type seiMessage struct {
	timeUs int64
	fourcc codec.FourCC
	nal    []byte
}

// seiReorderQueue turns SEI messages read in decode order into presentation
// order, holding up to maxSize messages.
type seiReorderQueue struct {
	consumer SEIConsumer
	maxSize  int
	pending  []seiMessage
	free     [][]byte
}

func newSEIReorderQueue(consumer SEIConsumer) *seiReorderQueue {
	return &seiReorderQueue{consumer: consumer}
}

func (q *seiReorderQueue) setMaxSize(n int) {
	q.maxSize = n
	q.flushDownTo(n)
}

func (q *seiReorderQueue) add(timeUs int64, fourcc codec.FourCC, nal []byte) {
	if q.maxSize == 0 || (len(q.pending) >= q.maxSize && timeUs < q.pending[0].timeUs) {
		q.consumer.ConsumeSEI(timeUs, fourcc, nal)
		return
	}
	var buf []byte
	if n := len(q.free); n > 0 {
		buf, q.free = q.free[n-1][:0], q.free[:n-1]
	}
	msg := seiMessage{timeUs: timeUs, fourcc: fourcc, nal: append(buf, nal...)}
	// after every message with the same time, keeping arrival order
	i, _ := slices.BinarySearchFunc(q.pending, timeUs+1, func(m seiMessage, t int64) int {
		if m.timeUs < t {
			return -1
		}
		return 1
	})
	q.pending = slices.Insert(q.pending, i, msg)
	q.flushDownTo(q.maxSize)
}

// flush hands every queued message to the consumer.
func (q *seiReorderQueue) flush() {
	q.flushDownTo(0)
}

func (q *seiReorderQueue) clear() {
	for _, m := range q.pending {
		q.free = append(q.free, m.nal)
	}
	q.pending = q.pending[:0]
}

func (q *seiReorderQueue) flushDownTo(n int) {
	for len(q.pending) > n {
		m := q.pending[0]
		q.pending = q.pending[1:]
		q.consumer.ConsumeSEI(m.timeUs, m.fourcc, m.nal)
		q.free = append(q.free, m.nal)
	}
}
