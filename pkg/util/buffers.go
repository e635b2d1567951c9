package util

import (
	"io"
	"net"
)

// Buffers is a queue of byte slices consumed front to back without joining them.
type Buffers struct {
	Offset int // bytes consumed so far
	offset int // index of the slice curBuf belongs to
	Length int // bytes not yet consumed
	curBuf []byte
	net.Buffers
}

func NewBuffersFromBytes(b ...[]byte) *Buffers {
	ret := &Buffers{}
	ret.ReadFromBytes(b...)
	return ret
}

func (buffers *Buffers) ReadFromBytes(b ...[]byte) {
	for _, level0 := range b {
		if len(level0) == 0 {
			continue
		}
		buffers.Buffers = append(buffers.Buffers, level0)
		buffers.Length += len(level0)
	}
	if len(buffers.curBuf) == 0 && buffers.offset < len(buffers.Buffers) {
		buffers.curBuf = buffers.Buffers[buffers.offset]
	}
}

// ReadBytesTo fills buf completely or returns io.EOF without consuming anything.
func (buffers *Buffers) ReadBytesTo(buf []byte) error {
	if len(buf) > buffers.Length {
		return io.EOF
	}
	buffers.ReadAvailable(buf)
	return nil
}

// ReadAvailable copies as many bytes as are queued, up to len(buf).
func (buffers *Buffers) ReadAvailable(buf []byte) (n int) {
	for n < len(buf) && buffers.Length > 0 {
		c := copy(buf[n:], buffers.curBuf)
		buffers.forward(c)
		n += c
	}
	return
}

func (buffers *Buffers) ReadByte() (byte, error) {
	if buffers.Length == 0 {
		return 0, io.EOF
	}
	b := buffers.curBuf[0]
	buffers.forward(1)
	return b, nil
}

func (buffers *Buffers) ReadBE(n int) (num int, err error) {
	if n > buffers.Length {
		return -1, io.EOF
	}
	for i := range n {
		b, _ := buffers.ReadByte()
		num += int(b) << ((n - i - 1) << 3)
	}
	return
}

func (buffers *Buffers) Skip(n int) error {
	if n > buffers.Length {
		return io.EOF
	}
	buffers.SkipAvailable(n)
	return nil
}

// SkipAvailable drops up to n queued bytes and reports how many were dropped.
func (buffers *Buffers) SkipAvailable(n int) (skipped int) {
	for skipped < n && buffers.Length > 0 {
		c := min(n-skipped, len(buffers.curBuf))
		buffers.forward(c)
		skipped += c
	}
	return
}

// PeekAt copies queued bytes starting at distance at from the read position
// without consuming them.
func (buffers *Buffers) PeekAt(buf []byte, at int) (n int) {
	if at >= buffers.Length {
		return 0
	}
	chunk, next := buffers.curBuf, buffers.offset+1
	for n < len(buf) {
		if at < len(chunk) {
			c := copy(buf[n:], chunk[at:])
			n += c
			at += c
			continue
		}
		at -= len(chunk)
		if next >= len(buffers.Buffers) {
			break
		}
		chunk = buffers.Buffers[next]
		next++
	}
	return
}

// Compact releases slices that were fully consumed.
func (buffers *Buffers) Compact() {
	if buffers.offset == 0 {
		return
	}
	rest := copy(buffers.Buffers, buffers.Buffers[buffers.offset:])
	clear(buffers.Buffers[rest:])
	buffers.Buffers = buffers.Buffers[:rest]
	buffers.offset = 0
}

// Reset drops everything queued.
func (buffers *Buffers) Reset() {
	clear(buffers.Buffers)
	buffers.Buffers = buffers.Buffers[:0]
	buffers.offset = 0
	buffers.Length = 0
	buffers.curBuf = nil
}

func (buffers *Buffers) forward(n int) {
	buffers.curBuf = buffers.curBuf[n:]
	buffers.Length -= n
	buffers.Offset += n
	if len(buffers.curBuf) == 0 {
		buffers.skipBuf()
	}
}

func (buffers *Buffers) skipBuf() {
	buffers.offset++
	if buffers.offset < len(buffers.Buffers) {
		buffers.curBuf = buffers.Buffers[buffers.offset]
	} else {
		buffers.curBuf = nil
	}
}

func (buffers *Buffers) ToBytes() []byte {
	ret := make([]byte, buffers.Length)
	buffers.ReadAvailable(ret)
	buffers.Reset()
	return ret
}
