package pkg

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedContainer = errors.New("malformed container")
	ErrUnsupportedFeature = errors.New("unsupported feature")
	ErrNoTracks           = errors.New("no tracks")
	ErrUnexpectedMoov     = errors.New("unexpected moov with sideloaded track")
	ErrReleased           = errors.New("demuxer released")
)

// ParseError carries the box being parsed when a structural problem was found.
// errors.Is matches it against ErrMalformedContainer or ErrUnsupportedFeature.
type ParseError struct {
	Kind     error
	BoxType  [4]byte
	Position int64
	Msg      string
}

func (e *ParseError) Error() string {
	if e.BoxType == [4]byte{} {
		return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%v: %s (box %q at %d)", e.Kind, e.Msg, e.BoxType[:], e.Position)
}

func (e *ParseError) Unwrap() error {
	return e.Kind
}

func Malformed(format string, args ...any) *ParseError {
	return &ParseError{Kind: ErrMalformedContainer, Position: -1, Msg: fmt.Sprintf(format, args...)}
}

func Unsupported(format string, args ...any) *ParseError {
	return &ParseError{Kind: ErrUnsupportedFeature, Position: -1, Msg: fmt.Sprintf(format, args...)}
}

// At attaches the box location unless one is already set.
func (e *ParseError) At(boxType [4]byte, position int64) *ParseError {
	if e.Position < 0 {
		e.BoxType = boxType
		e.Position = position
	}
	return e
}

// WithBox annotates err with a box location if it is a *ParseError.
func WithBox(err error, boxType [4]byte, position int64) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		pe.At(boxType, position)
	}
	return err
}
