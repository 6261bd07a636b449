package rawmcu

import (
	"fmt"
	"io"
)

// readBufferSize is the capacity of the resident fill buffer.
const readBufferSize = 4096

type sourceState int

const (
	sourceUninitialized sourceState = iota
	sourceActive
	sourceTerminated
)

// sourceManager adapts a pull-based io.Reader to the ByteSource refill
// protocol. It exclusively owns the reader for its lifetime: Terminate
// closes the reader when it implements io.Closer, and is idempotent so
// that the engine's normal completion path and the owning session's
// teardown path release the reader exactly once between them.
type sourceManager struct {
	r    io.Reader
	errh FatalHandler

	buf []byte // resident fill buffer
	pos int    // start of unconsumed bytes in buf
	n   int    // count of unconsumed bytes

	state         sourceState
	eof           bool
	startOfStream bool
}

func newSourceManager(r io.Reader, errh FatalHandler) *sourceManager {
	return &sourceManager{
		r:             r,
		errh:          errh,
		buf:           make([]byte, readBufferSize),
		state:         sourceActive,
		startOfStream: true,
	}
}

// prime performs the initial fill so header parsing can proceed
// immediately once the engine starts pulling.
func (s *sourceManager) prime() {
	if s.n == 0 {
		s.refill()
	}
}

// refill pulls at least one byte from the reader into the resident
// buffer. Readers may legally return zero bytes without an error on
// transient stalls, so it loops. Genuine end of data synthesizes an
// end marker so truncated streams fail deterministically instead of
// leaving the engine waiting.
func (s *sourceManager) refill() {
	if s.eof {
		s.synthesizeEOI()
		return
	}
	for {
		m, err := s.r.Read(s.buf)
		if m > 0 {
			s.pos, s.n = 0, m
			s.startOfStream = false
			return
		}
		if err == io.EOF {
			s.eof = true
			if s.startOfStream {
				s.errh.FatalError(ErrCodeEmptyInput, "input stream is empty")
			}
			s.synthesizeEOI()
			return
		}
		if err != nil {
			s.errh.FatalError(ErrCodeSourceFailure, fmt.Sprintf("reading input: %v", err))
		}
	}
}

func (s *sourceManager) synthesizeEOI() {
	s.buf[0], s.buf[1] = EOI[0], EOI[1]
	s.pos, s.n = 0, 2
}

// FillInput implements ByteSource.
func (s *sourceManager) FillInput(dst []byte) int {
	if s.state != sourceActive {
		s.errh.FatalError(ErrCodeSourceFailure, "fill on released source")
	}
	if len(dst) == 0 {
		return 0
	}
	if s.n == 0 {
		s.refill()
	}
	c := copy(dst, s.buf[s.pos:s.pos+s.n])
	s.pos += c
	s.n -= c
	return c
}

// SkipInput implements ByteSource. It consumes already-buffered bytes
// first, then reads and drops from the reader for any remainder; the
// reader is not required to support seeking.
func (s *sourceManager) SkipInput(n int) {
	if s.state != sourceActive {
		s.errh.FatalError(ErrCodeSourceFailure, "skip on released source")
	}
	for n > 0 {
		if s.n == 0 {
			s.refill()
		}
		c := min(n, s.n)
		s.pos += c
		s.n -= c
		n -= c
	}
}

// Terminate implements ByteSource.
func (s *sourceManager) Terminate() {
	if s.state == sourceTerminated {
		return
	}
	s.state = sourceTerminated
	s.buf = nil
	if c, ok := s.r.(io.Closer); ok {
		c.Close()
	}
	s.r = nil
}
