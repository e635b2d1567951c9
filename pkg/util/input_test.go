package util

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestMemoryInput(t *testing.T) {
	in := NewMemoryInput(-1)
	in.Feed([]byte("abc"), []byte("def"))
	peek := make([]byte, 4)
	if n, err := in.Peek(peek); n != 4 || err != nil || string(peek) != "abcd" {
		t.Fatalf("peek %d %v %q", n, err, peek)
	}
	if n, _ := in.Peek(peek); n != 2 || string(peek[:n]) != "ef" {
		t.Fatalf("second peek %q", peek[:n])
	}
	in.ResetPeekPosition()

	buf := make([]byte, 5)
	if n, err := in.Read(buf); n != 5 || err != nil || string(buf) != "abcde" {
		t.Fatalf("read %d %v %q", n, err, buf)
	}
	if in.Position() != 5 || in.Buffered() != 1 {
		t.Fatalf("position %d buffered %d", in.Position(), in.Buffered())
	}
	if n, err := in.Skip(3); n != 1 || err != nil {
		t.Fatalf("skip %d %v", n, err)
	}
	if _, err := in.Read(buf); !errors.Is(err, ErrNeedMoreData) {
		t.Fatalf("starved read %v", err)
	}
	if _, err := in.Skip(1); !errors.Is(err, ErrNeedMoreData) {
		t.Fatalf("starved skip %v", err)
	}

	in.Feed([]byte("gh"))
	in.Close()
	if in.Length() != 8 {
		t.Fatalf("length %d", in.Length())
	}
	if n, _ := in.Read(buf); string(buf[:n]) != "gh" {
		t.Fatalf("read %q", buf[:n])
	}
	if _, err := in.Read(buf); err != io.EOF {
		t.Fatalf("read after close %v", err)
	}

	t.Run("reset", func(t *testing.T) {
		in.Reset(3)
		in.Feed([]byte("defgh"))
		in.Close()
		if n, _ := in.Read(buf[:2]); in.Position() != 5 || string(buf[:n]) != "de" {
			t.Fatalf("position %d read %q", in.Position(), buf[:n])
		}
	})

	t.Run("many chunks", func(t *testing.T) {
		in := NewMemoryInput(100)
		for i := 0; i < 100; i++ {
			in.Feed([]byte{byte(i)})
		}
		b := make([]byte, 1)
		for i := 0; i < 100; i++ {
			if _, err := in.Read(b); err != nil || b[0] != byte(i) {
				t.Fatalf("byte %d: %d %v", i, b[0], err)
			}
		}
	})
}

func TestSeekerInput(t *testing.T) {
	data := []byte("0123456789")
	in, err := NewSeekerInput(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if in.Length() != 10 || in.Position() != 0 {
		t.Fatalf("length %d position %d", in.Length(), in.Position())
	}
	peek := make([]byte, 3)
	if n, err := in.Peek(peek); n != 3 || err != nil || string(peek) != "012" {
		t.Fatalf("peek %d %v %q", n, err, peek)
	}
	buf := make([]byte, 4)
	if n, _ := in.Read(buf); string(buf[:n]) != "0123" || in.Position() != int64(n) {
		t.Fatalf("read %q at %d", buf[:n], in.Position())
	}
	for in.Position() < 6 {
		if _, err := in.Skip(6 - int(in.Position())); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := in.Read(buf[:2]); string(buf[:n]) != "67" {
		t.Fatalf("read %q", buf[:n])
	}
	if err = in.ResetTo(1); err != nil {
		t.Fatal(err)
	}
	if n, _ := in.Read(buf[:1]); string(buf[:n]) != "1" || in.Position() != 2 {
		t.Fatalf("read %q after seek", buf[:n])
	}
	if _, err = in.Skip(20); err != nil {
		t.Fatal(err)
	}
	if in.Position() != 10 {
		t.Fatalf("position %d", in.Position())
	}
	if _, err = in.Skip(1); err != io.EOF {
		t.Fatalf("skip past end %v", err)
	}
	if _, err = in.Peek(peek); err != io.EOF {
		t.Fatalf("peek past end %v", err)
	}
}
