package util

import (
	"errors"
	"io"
)

// ErrNeedMoreData is returned by inputs that have nothing buffered yet but
// have not reached the end of the stream.
var ErrNeedMoreData = errors.New("need more data")

const compactThreshold = 16

// MemoryInput is fed with chunks as they arrive, for example from a network
// download, and hands them to the demuxer.
type MemoryInput struct {
	buf      Buffers
	position int64
	length   int64
	peek     int
	closed   bool
}

// NewMemoryInput creates an input starting at stream offset 0. length is the
// total stream length or -1 when unknown.
func NewMemoryInput(length int64) *MemoryInput {
	return &MemoryInput{length: length}
}

// Feed queues p. The slice is retained and must not be modified afterwards.
func (m *MemoryInput) Feed(p ...[]byte) {
	m.buf.ReadFromBytes(p...)
}

// Close marks the end of the stream.
func (m *MemoryInput) Close() {
	m.closed = true
	if m.length < 0 {
		m.length = m.position + int64(m.buf.Length)
	}
}

// Reset discards buffered bytes and restarts the stream at position, used to
// honour seek requests. The caller feeds bytes from position onwards.
func (m *MemoryInput) Reset(position int64) {
	m.buf.Reset()
	m.position = position
	m.peek = 0
	m.closed = false
}

func (m *MemoryInput) Buffered() int {
	return m.buf.Length
}

func (m *MemoryInput) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := m.buf.ReadAvailable(p)
	if n > 0 {
		m.consumed(n)
		return n, nil
	}
	return 0, m.starved()
}

func (m *MemoryInput) Skip(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	skipped := m.buf.SkipAvailable(n)
	if skipped > 0 {
		m.consumed(skipped)
		return skipped, nil
	}
	return 0, m.starved()
}

func (m *MemoryInput) Peek(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := m.buf.PeekAt(p, m.peek)
	if n > 0 {
		m.peek += n
		return n, nil
	}
	return 0, m.starved()
}

func (m *MemoryInput) ResetPeekPosition() {
	m.peek = 0
}

func (m *MemoryInput) Position() int64 {
	return m.position
}

func (m *MemoryInput) Length() int64 {
	return m.length
}

func (m *MemoryInput) consumed(n int) {
	m.position += int64(n)
	m.peek = max(0, m.peek-n)
	if m.buf.offset > compactThreshold {
		m.buf.Compact()
	}
}

func (m *MemoryInput) starved() error {
	if m.closed {
		return io.EOF
	}
	return ErrNeedMoreData
}

// SeekerInput reads from a file or any other io.ReadSeeker.
type SeekerInput struct {
	r        io.ReadSeeker
	position int64
	length   int64
	ahead    Buffers
	peek     int
	chunk    int
}

func NewSeekerInput(r io.ReadSeeker) (*SeekerInput, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if _, err = r.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}
	return &SeekerInput{r: r, position: start, length: end, chunk: 32 * 1024}, nil
}

// ResetTo repositions the input at an absolute position, dropping any
// peeked bytes.
func (s *SeekerInput) ResetTo(position int64) error {
	if _, err := s.r.Seek(position, io.SeekStart); err != nil {
		return err
	}
	s.position = position
	s.ahead.Reset()
	s.peek = 0
	return nil
}

func (s *SeekerInput) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if s.ahead.Length > 0 {
		n = s.ahead.ReadAvailable(p)
	} else {
		n, err = s.r.Read(p)
		if n > 0 {
			err = nil
		} else if err == nil {
			err = io.ErrNoProgress
		}
	}
	s.position += int64(n)
	s.peek = max(0, s.peek-n)
	return
}

func (s *SeekerInput) Skip(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	if s.ahead.Length > 0 {
		skipped := s.ahead.SkipAvailable(n)
		s.position += int64(skipped)
		s.peek = max(0, s.peek-skipped)
		return skipped, nil
	}
	if s.position >= s.length {
		return 0, io.EOF
	}
	skip := min(int64(n), s.length-s.position)
	if _, err := s.r.Seek(s.position+skip, io.SeekStart); err != nil {
		return 0, err
	}
	s.position += skip
	return int(skip), nil
}

func (s *SeekerInput) Peek(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for s.ahead.Length < s.peek+len(p) {
		chunk := make([]byte, max(s.chunk, len(p)))
		n, err := s.r.Read(chunk)
		s.ahead.ReadFromBytes(chunk[:n])
		if err == io.EOF || (err == nil && n == 0) {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	n := s.ahead.PeekAt(p, s.peek)
	if n == 0 {
		return 0, io.EOF
	}
	s.peek += n
	return n, nil
}

func (s *SeekerInput) ResetPeekPosition() {
	s.peek = 0
}

func (s *SeekerInput) Position() int64 {
	return s.position
}

func (s *SeekerInput) Length() int64 {
	return s.length
}
