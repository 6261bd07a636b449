package rawmcu

import (
	"fmt"
	"io"
)

// Decompress drives a DecompressEngine and collects its output into
// caller-visible buffers.
//
// The session wraps the reader handed to NewDecompress as the engine's
// byte source and owns it until the pass completes or Close is called;
// readers implementing io.Closer are closed when the source is
// released, on exactly one of those two paths.
type Decompress struct {
	engine DecompressEngine
	errh   FatalHandler
	src    *sourceManager
	frame  Frame

	raw     bool
	started bool
	closed  bool
}

// NewDecompress registers r as the engine's byte source and reads the
// stream header. On error the reader has already been released.
func NewDecompress(engine DecompressEngine, r io.Reader) (_ *Decompress, err error) {
	d := &Decompress{
		engine: engine,
		errh:   UnwindOnFatal,
	}
	engine.SetFatalHandler(d.errh)
	defer func() {
		if err != nil {
			d.Close()
		}
	}()
	defer recoverFatal(&err)

	d.src = newSourceManager(r, d.errh)
	d.engine.SetSource(d.src)
	d.src.prime()
	d.frame = d.engine.ReadHeader()
	if err := d.frame.validate(d.engine.BlockSize()); err != nil {
		return nil, err
	}
	d.frame.ComputeStrides(d.engine.BlockSize())
	return d, nil
}

// Width returns the frame width in pixels.
func (d *Decompress) Width() int {
	return d.frame.Width
}

// Height returns the frame height in pixels.
func (d *Decompress) Height() int {
	return d.frame.Height
}

// Size returns (width, height).
func (d *Decompress) Size() (int, int) {
	return d.frame.Width, d.frame.Height
}

// ColorSpace returns the color space the stream declares.
func (d *Decompress) ColorSpace() ColorSpace {
	return d.frame.ColorSpace
}

// Components returns the frame's components with computed strides.
func (d *Decompress) Components() []Component {
	return d.frame.Components
}

// StartRaw begins decompression in raw mode: rows are produced in each
// component's native subsampled layout.
func (d *Decompress) StartRaw() error {
	return d.start(true)
}

// Start begins decompression with interleaved full-resolution output.
func (d *Decompress) Start() error {
	return d.start(false)
}

func (d *Decompress) start(raw bool) (err error) {
	defer recoverFatal(&err)
	if d.closed {
		return NewCodecError(ErrCodeSessionClosed, "session is closed")
	}
	if d.started {
		return NewCodecError(ErrCodeBadConfiguration, "session already started")
	}
	d.engine.StartDecompress(raw)
	d.raw = raw
	d.started = true
	return nil
}

// ReadRawData grows each plane in dest by whole MCU row groups until
// the engine's scanline cursor reaches the frame height, and returns
// the grown planes. dest may be nil; otherwise it must hold one slice
// per component, each containing previously collected data. Planes
// only ever grow, and never past RowStride*ColStride bytes for their
// component.
func (d *Decompress) ReadRawData(dest [][]byte) (planes [][]byte, err error) {
	defer recoverFatal(&err)
	if !d.started || !d.raw {
		return dest, NewCodecError(ErrCodeRawModeRequired, "raw decompression not started")
	}
	comps := d.frame.Components
	if dest == nil {
		dest = make([][]byte, len(comps))
	}
	if len(dest) < len(comps) {
		return dest, NewCodecError(ErrCodeTooManyComponents,
			fmt.Sprintf("frame has %d components, destination has %d planes", len(comps), len(dest)))
	}
	for d.engine.OutputScanline() < d.frame.Height {
		more, err := d.readRawGroup(dest)
		if err != nil {
			return dest, err
		}
		if !more {
			break
		}
	}
	return dest, nil
}

// readRawGroup collects one MCU row group into dest. It reports false
// when the engine signals end of input.
func (d *Decompress) readRawGroup(dest [][]byte) (bool, error) {
	blockSize := d.engine.BlockSize()
	mcuRows := d.frame.MCUHeight(blockSize)
	comps := d.frame.Components

	rows := make([][][]byte, len(comps))
	origLens := make([]int, len(comps))
	for ci := range comps {
		comp := &comps[ci]
		collected := len(dest[ci]) / comp.RowStride
		groupRows := min(comp.VSampFactor*blockSize, comp.ColStride-collected)
		if groupRows < 0 {
			groupRows = 0
		}
		origLens[ci] = len(dest[ci])
		dest[ci] = append(dest[ci], make([]byte, groupRows*comp.RowStride)...)
		rows[ci] = make([][]byte, mcuRows)
		for ri := 0; ri < groupRows; ri++ {
			off := origLens[ci] + ri*comp.RowStride
			rows[ci][ri] = dest[ci][off : off+comp.RowStride]
		}
		// Slots past the group stay nil, at the tail only.
	}

	produced := d.engine.ReadRows(rows, mcuRows)
	if produced == 0 {
		// End of input. Roll the growth back so no plane holds bytes
		// ahead of the engine's read cursor.
		for ci := range comps {
			dest[ci] = dest[ci][:origLens[ci]]
		}
		return false, nil
	}
	if produced != mcuRows {
		return false, NewCodecError(ErrCodeAmbiguousBatchHeight,
			fmt.Sprintf("engine produced %d of %d rows, subsampled row count is ambiguous", produced, mcuRows))
	}
	return true, nil
}

// ReadScanlinesFlat reads the whole interleaved image into one flat
// buffer of width*height*numComponents bytes. On truncated input it
// returns the rows read so far along with the error.
func (d *Decompress) ReadScanlinesFlat() (buf []byte, err error) {
	defer recoverFatal(&err)
	if !d.started || d.raw {
		return nil, NewCodecError(ErrCodeBadConfiguration, "interleaved decompression not started")
	}
	byteWidth := d.frame.Width * len(d.frame.Components)
	buf = make([]byte, d.frame.Height*byteWidth)
	rows := [][][]byte{{nil}}
	for d.engine.OutputScanline() < d.frame.Height {
		line := d.engine.OutputScanline()
		rows[0][0] = buf[line*byteWidth : (line+1)*byteWidth]
		if d.engine.ReadRows(rows, 1) == 0 {
			return buf[:line*byteWidth], NewCodecError(ErrCodeTruncatedStream,
				fmt.Sprintf("input ended at scanline %d of %d", line, d.frame.Height))
		}
	}
	return buf, nil
}

// FinishDecompress completes the pass; the engine releases the byte
// source itself on this path.
func (d *Decompress) FinishDecompress() (err error) {
	defer recoverFatal(&err)
	if !d.started {
		return NewCodecError(ErrCodeBadConfiguration, "session not started")
	}
	if !d.engine.FinishDecompress() {
		return NewCodecError(ErrCodeEngineFailure, "engine did not finish cleanly")
	}
	return nil
}

// Close releases the byte source if the engine still holds this
// session's source, guaranteeing the underlying reader is released
// exactly once even when decoding is abandoned mid-stream. Close is
// safe to call multiple times and after FinishDecompress.
func (d *Decompress) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.src != nil && d.engine.Source() == ByteSource(d.src) {
		d.src.Terminate()
		d.engine.SetSource(nil)
	}
	return nil
}
