package rawmcu

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

// stutterReader alternates zero-byte reads with single-byte reads, the
// worst legal io.Reader behavior short of an error.
type stutterReader struct {
	data  string
	stall bool
}

func (r *stutterReader) Read(p []byte) (int, error) {
	r.stall = !r.stall
	if r.stall {
		return 0, nil
	}
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

// catchFatal runs fn and returns the *CodecError it unwound with, or
// nil when fn returned normally.
func catchFatal(fn func()) (ce *CodecError) {
	defer func() {
		if r := recover(); r != nil {
			var ok bool
			if ce, ok = r.(*CodecError); !ok {
				panic(r)
			}
		}
	}()
	fn()
	return nil
}

func TestFillInputDrainsReader(t *testing.T) {
	s := newSourceManager(iotest.OneByteReader(strings.NewReader("abcdef")), UnwindOnFatal)
	var got []byte
	buf := make([]byte, 4)
	for len(got) < 6 {
		n := s.FillInput(buf)
		if n < 1 {
			t.Fatalf("FillInput returned %d, want at least 1", n)
		}
		got = append(got, buf[:n]...)
	}
	if string(got) != "abcdef" {
		t.Errorf("FillInput produced %q, want %q", got, "abcdef")
	}
}

func TestFillInputToleratesStutter(t *testing.T) {
	s := newSourceManager(&stutterReader{data: "xyz"}, UnwindOnFatal)
	buf := make([]byte, 8)
	var got []byte
	for len(got) < 3 {
		n := s.FillInput(buf)
		got = append(got, buf[:n]...)
	}
	if string(got) != "xyz" {
		t.Errorf("FillInput produced %q, want %q", got, "xyz")
	}
}

func TestFillInputSynthesizesEndMarker(t *testing.T) {
	s := newSourceManager(strings.NewReader("ab"), UnwindOnFatal)
	buf := make([]byte, 8)
	if n := s.FillInput(buf); n != 2 || string(buf[:2]) != "ab" {
		t.Fatalf("first fill = %d %q", n, buf[:2])
	}
	// Once the reader is exhausted the source serves end markers
	// indefinitely instead of starving the caller.
	for i := 0; i < 3; i++ {
		n := s.FillInput(buf)
		if n != 2 || buf[0] != EOI[0] || buf[1] != EOI[1] {
			t.Fatalf("fill %d after EOF = %d % X, want the end marker", i, n, buf[:n])
		}
	}
}

func TestFillInputEmptyStream(t *testing.T) {
	s := newSourceManager(strings.NewReader(""), UnwindOnFatal)
	ce := catchFatal(func() { s.FillInput(make([]byte, 4)) })
	if ce == nil || ce.Code != ErrCodeEmptyInput {
		t.Errorf("fill on empty stream = %v, want EmptyInput", ce)
	}
}

func TestFillInputReadError(t *testing.T) {
	s := newSourceManager(iotest.ErrReader(errors.New("disk on fire")), UnwindOnFatal)
	ce := catchFatal(func() { s.FillInput(make([]byte, 4)) })
	if ce == nil || ce.Code != ErrCodeSourceFailure {
		t.Errorf("fill on broken reader = %v, want SourceFailure", ce)
	}
}

func TestSkipInputAcrossRefills(t *testing.T) {
	s := newSourceManager(iotest.OneByteReader(strings.NewReader("0123456789")), UnwindOnFatal)
	s.SkipInput(7)
	buf := make([]byte, 4)
	n := s.FillInput(buf)
	if n < 1 || buf[0] != '7' {
		t.Errorf("fill after skip = %d %q, want to land on '7'", n, buf[:n])
	}
}

func TestTerminateIdempotentAndCloses(t *testing.T) {
	r := &closeCounter{Reader: strings.NewReader("input")}
	s := newSourceManager(r, UnwindOnFatal)
	s.Terminate()
	s.Terminate()
	if r.closes != 1 {
		t.Errorf("reader closed %d times, want 1", r.closes)
	}
	ce := catchFatal(func() { s.FillInput(make([]byte, 4)) })
	if ce == nil || ce.Code != ErrCodeSourceFailure {
		t.Errorf("fill after terminate = %v, want SourceFailure", ce)
	}
	ce = catchFatal(func() { s.SkipInput(1) })
	if ce == nil || ce.Code != ErrCodeSourceFailure {
		t.Errorf("skip after terminate = %v, want SourceFailure", ce)
	}
}
