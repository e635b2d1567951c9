package fmp4

import (
	"errors"
	"io"

	"m7s.live/fmp4/pkg/util"
)

// Input is the byte source the demuxer pulls from. Read and Skip may make
// partial progress. When nothing is available yet they return
// util.ErrNeedMoreData, at the end of the stream io.EOF.
type Input interface {
	Read(p []byte) (int, error)
	Skip(n int) (int, error)
	Peek(p []byte) (int, error)
	ResetPeekPosition()
	Position() int64
	// Length is the total stream length, -1 when unknown.
	Length() int64
}

var (
	_ Input = (*util.MemoryInput)(nil)
	_ Input = (*util.SeekerInput)(nil)
)

// PositionHolder receives the target of a ResultSeek.
type PositionHolder struct {
	Position int64
}

type Result int

const (
	ResultContinue Result = iota
	ResultEndOfInput
	ResultSeek
)

func (r Result) String() string {
	switch r {
	case ResultContinue:
		return "continue"
	case ResultEndOfInput:
		return "end of input"
	case ResultSeek:
		return "seek"
	}
	return "unknown"
}

// readFull reads into p until it is full, keeping count of progress in *done
// so an interrupted read resumes where it stopped.
func readFull(in Input, p []byte, done *int) error {
	for *done < len(p) {
		n, err := in.Read(p[*done:])
		*done += n
		if err != nil {
			if *done == len(p) {
				return nil
			}
			return err
		}
		if n == 0 {
			return io.ErrNoProgress
		}
	}
	return nil
}

// skipFull skips *remaining bytes, decrementing it as progress is made.
func skipFull(in Input, remaining *int64) error {
	for *remaining > 0 {
		n, err := in.Skip(int(min(*remaining, 1<<30)))
		*remaining -= int64(n)
		if err != nil {
			if *remaining == 0 {
				return nil
			}
			return err
		}
		if n == 0 {
			return io.ErrNoProgress
		}
	}
	return nil
}

// truncated turns an end of stream in the middle of a box into an error.
func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
