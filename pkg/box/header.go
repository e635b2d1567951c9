package box

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"m7s.live/fmp4/pkg"
)

// Header is a decoded box header.
//
//	aligned(8) class Box (unsigned int(32) boxtype, optional unsigned int(8)[16] extended_type) {
//	    unsigned int(32) size;
//	    unsigned int(32) type = boxtype;
//	    if (size==1) {
//	        unsigned int(64) largesize;
//	    } else if (size==0) {
//	        // box extends to end of file
//	    }
//	}
//
// The extended type of uuid boxes is left in the payload.
type Header struct {
	Type      [4]byte
	Offset    int64 // absolute position of the first header byte
	Size      int64 // total size including the header, -1 while unresolved
	HeaderLen int
}

func (h Header) Resolved() bool {
	return h.Size >= 0
}

// End is the absolute offset just past the box, or -1 while unresolved.
func (h Header) End() int64 {
	if h.Size < 0 {
		return -1
	}
	return h.Offset + h.Size
}

// PayloadSize is the number of bytes after the header, or -1 while unresolved.
func (h Header) PayloadSize() int64 {
	if h.Size < 0 {
		return -1
	}
	return h.Size - int64(h.HeaderLen)
}

// HeaderReader decodes box headers over a source that may deliver bytes in
// several calls. Progress is kept between calls to Next.
type HeaderReader struct {
	scratch [LargeBoxLen]byte
	read    int
}

func (hr *HeaderReader) Reset() {
	hr.read = 0
}

// BytesRead is the number of header bytes consumed so far.
func (hr *HeaderReader) BytesRead() int {
	return hr.read
}

func (hr *HeaderReader) fill(r io.Reader, want int) error {
	for hr.read < want {
		n, err := r.Read(hr.scratch[hr.read:want])
		hr.read += n
		if err != nil {
			if hr.read < want {
				return err
			}
			return nil
		}
		if n == 0 {
			return io.ErrNoProgress
		}
	}
	return nil
}

// Next resumes decoding a header whose first byte is at absolute position
// start. containerEnd is the end of the innermost open container and
// streamLength the total input length, each -1 when unknown; they resolve
// boxes that extend to the end of their parent.
//
// Errors from r are returned unchanged so the caller can tell a starved input
// from the end of the stream. An io.EOF after a partial header is reported as
// io.ErrUnexpectedEOF.
func (hr *HeaderReader) Next(r io.Reader, start, containerEnd, streamLength int64) (h Header, err error) {
	if err = hr.fill(r, BasicBoxLen); err != nil {
		return h, hr.eof(err)
	}
	size := uint64(binary.BigEndian.Uint32(hr.scratch[0:4]))
	h.Type = [4]byte(hr.scratch[4:8])
	h.Offset = start
	h.HeaderLen = BasicBoxLen
	switch size {
	case 1:
		if err = hr.fill(r, LargeBoxLen); err != nil {
			return h, hr.eof(err)
		}
		h.HeaderLen = LargeBoxLen
		size = binary.BigEndian.Uint64(hr.scratch[8:16])
		if size > math.MaxInt64 {
			hr.read = 0
			return h, pkg.Unsupported("box size %d overflows", size).At(h.Type, start)
		}
		h.Size = int64(size)
	case 0:
		switch {
		case containerEnd >= 0:
			h.Size = containerEnd - start
		case streamLength >= 0:
			h.Size = streamLength - start
		default:
			h.Size = -1
		}
	default:
		h.Size = int64(size)
	}
	hr.read = 0
	if h.Size >= 0 && h.Size < int64(h.HeaderLen) {
		return h, pkg.Malformed("box size %d smaller than header %d", h.Size, h.HeaderLen).At(h.Type, start)
	}
	return h, nil
}

func (hr *HeaderReader) eof(err error) error {
	if errors.Is(err, io.EOF) && hr.read > 0 {
		hr.read = 0
		return io.ErrUnexpectedEOF
	}
	return err
}

// ParseHeader decodes a header from a complete byte slice, as used when
// walking children inside an already buffered box. end bounds size-0 boxes.
func ParseHeader(b []byte, offset int64, end int64) (h Header, err error) {
	if len(b) < BasicBoxLen {
		return h, pkg.Malformed("box header truncated")
	}
	size := uint64(binary.BigEndian.Uint32(b[0:4]))
	h.Type = [4]byte(b[4:8])
	h.Offset = offset
	h.HeaderLen = BasicBoxLen
	switch size {
	case 1:
		if len(b) < LargeBoxLen {
			return h, pkg.Malformed("box header truncated").At(h.Type, offset)
		}
		h.HeaderLen = LargeBoxLen
		size = binary.BigEndian.Uint64(b[8:16])
		if size > math.MaxInt64 {
			return h, pkg.Unsupported("box size %d overflows", size).At(h.Type, offset)
		}
	case 0:
		size = uint64(end - offset)
	}
	h.Size = int64(size)
	if h.Size < int64(h.HeaderLen) {
		return h, pkg.Malformed("box size %d smaller than header %d", h.Size, h.HeaderLen).At(h.Type, offset)
	}
	if h.End() > end {
		return h, pkg.Malformed("box overruns its parent").At(h.Type, offset)
	}
	return h, nil
}

// Child is a box found inside a buffered payload.
type Child struct {
	Header
	Payload []byte
}

// Children splits a buffered payload into its child boxes. base is the
// absolute offset of b[0].
func Children(b []byte, base int64) ([]Child, error) {
	var children []Child
	end := base + int64(len(b))
	for pos := 0; pos+BasicBoxLen <= len(b); {
		h, err := ParseHeader(b[pos:], base+int64(pos), end)
		if err != nil {
			return children, err
		}
		children = append(children, Child{Header: h, Payload: b[pos+h.HeaderLen : pos+int(h.Size)]})
		pos += int(h.Size)
	}
	return children, nil
}

// FindChild returns the first child of type t.
func FindChild(children []Child, t [4]byte) *Child {
	for i := range children {
		if children[i].Type == t {
			return &children[i]
		}
	}
	return nil
}
