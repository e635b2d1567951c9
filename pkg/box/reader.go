package box

import (
	"encoding/binary"

	"m7s.live/fmp4/pkg"
)

// Reader is a cursor over a buffered box payload. Reading past the end yields
// zero values and marks the reader short; callers check Err once after decoding.
type Reader struct {
	buf   []byte
	pos   int
	short bool
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func (r *Reader) take(n int) []byte {
	if n < 0 || r.pos+n > len(r.buf) {
		r.short = true
		r.pos = len(r.buf)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) U8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *Reader) U16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *Reader) U24() uint32 {
	if b := r.take(3); b != nil {
		return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	}
	return 0
}

func (r *Reader) U32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *Reader) I32() int32 {
	return int32(r.U32())
}

func (r *Reader) U64() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *Reader) I64() int64 {
	return int64(r.U64())
}

// Bytes returns the next n bytes without copying.
func (r *Reader) Bytes(n int) []byte {
	return r.take(n)
}

func (r *Reader) Skip(n int) {
	r.take(n)
}

// CString reads a null-terminated string. A missing terminator consumes the rest.
func (r *Reader) CString() string {
	for i := r.pos; i < len(r.buf); i++ {
		if r.buf[i] == 0 {
			s := string(r.buf[r.pos:i])
			r.pos = i + 1
			return s
		}
	}
	s := string(r.buf[r.pos:])
	r.pos = len(r.buf)
	return s
}

func (r *Reader) Left() int {
	return len(r.buf) - r.pos
}

func (r *Reader) Pos() int {
	return r.pos
}

func (r *Reader) Seek(pos int) {
	if pos < 0 || pos > len(r.buf) {
		r.short = true
		r.pos = len(r.buf)
		return
	}
	r.pos = pos
}

func (r *Reader) Short() bool {
	return r.short
}

// Err reports a truncated payload for box t.
func (r *Reader) Err(t [4]byte) error {
	if r.short {
		return pkg.Malformed("%s payload truncated", TypeString(t))
	}
	return nil
}

// Fits checks that count entries of entrySize bytes remain, so table
// allocations are bounded by the payload.
func (r *Reader) Fits(t [4]byte, count uint64, entrySize int) error {
	if count*uint64(entrySize) > uint64(r.Left()) {
		return pkg.Malformed("%s declares %d entries, payload holds %d bytes", TypeString(t), count, r.Left())
	}
	return nil
}
