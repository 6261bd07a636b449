package rawmcu

import (
	"bytes"
	"fmt"
	"io"
)

// Compress drives a CompressEngine from caller-supplied pixel buffers.
//
// Configure the session with the setters, call StartCompress, then
// feed rows with WriteScanlines (interleaved full-resolution input) or
// WriteRawData (per-component subsampled planes) until the frame
// height is reached, and call FinishCompress.
type Compress struct {
	engine CompressEngine
	errh   FatalHandler
	frame  Frame
	raw    bool

	dst io.Writer
	mem *bytes.Buffer

	started  bool
	finished bool
}

// NewCompress creates a compression session whose input pixels are in
// the given color space. Components receive default sampling factors;
// adjust them through Components or SetChromaSamplingPixelSizes before
// StartCompress.
func NewCompress(engine CompressEngine, colorSpace ColorSpace) *Compress {
	c := &Compress{
		engine: engine,
		errh:   UnwindOnFatal,
	}
	c.frame.ColorSpace = colorSpace
	c.frame.Components = defaultComponents(colorSpace)
	engine.SetFatalHandler(c.errh)
	return c
}

// SetFatalHandler replaces the default unwinding fatal-error policy.
// It must be called before StartCompress.
func (c *Compress) SetFatalHandler(h FatalHandler) {
	c.errh = h
	c.engine.SetFatalHandler(h)
}

// SetSize sets the full-resolution frame dimensions.
func (c *Compress) SetSize(width, height int) {
	c.frame.Width = width
	c.frame.Height = height
}

// SetRawDataIn selects raw mode: input arrives as one plane per
// component, already in that component's subsampled layout.
func (c *Compress) SetRawDataIn(raw bool) {
	c.raw = raw
}

// SetWriter directs the compressed stream to w.
func (c *Compress) SetWriter(w io.Writer) {
	c.dst = w
	c.mem = nil
}

// SetMemDest directs the compressed stream to an in-memory buffer,
// retrieved with Data after FinishCompress. This is the default.
func (c *Compress) SetMemDest() {
	c.mem = &bytes.Buffer{}
	c.dst = c.mem
}

// Components exposes the frame's components for inspection and for
// adjusting sampling factors before StartCompress.
func (c *Compress) Components() []Component {
	return c.frame.Components
}

// SetChromaSamplingPixelSizes sets chroma subsampling for a YCbCr
// frame in terms of chroma "pixel sizes" per luma pixel, separately
// for Cb and Cr:
//
//	(1,1), (1,1) == 4:4:4
//	(2,1), (2,1) == 4:2:2
//	(2,2), (2,2) == 4:2:0
func (c *Compress) SetChromaSamplingPixelSizes(cb, cr [2]int) {
	maxH := max(cb[0], cr[0], 1)
	maxV := max(cb[1], cr[1], 1)
	pxSizes := [][2]int{{1, 1}, cb, cr}
	for i := range c.frame.Components {
		if i >= len(pxSizes) {
			break
		}
		c.frame.Components[i].HSampFactor = maxH / max(pxSizes[i][0], 1)
		c.frame.Components[i].VSampFactor = maxV / max(pxSizes[i][1], 1)
	}
}

// StartCompress validates the configuration, computes component
// strides and locks settings. Configuration violations are reported
// here, before any engine work begins.
func (c *Compress) StartCompress() (err error) {
	defer recoverFatal(&err)
	if c.started {
		return NewCodecError(ErrCodeBadConfiguration, "session already started")
	}
	if err := c.frame.validate(c.engine.BlockSize()); err != nil {
		return err
	}
	if c.dst == nil {
		c.SetMemDest()
	}
	c.frame.ComputeStrides(c.engine.BlockSize())
	c.engine.StartCompress(c.frame, c.raw, c.dst)
	c.started = true
	return nil
}

// WriteScanlines submits interleaved full-resolution rows. buf must
// hold whole scanlines of width*numComponents bytes; it need not hold
// the whole image, so callers may stream the frame in several calls.
// The engine refusing to accept rows is terminal for the session.
func (c *Compress) WriteScanlines(buf []byte) (err error) {
	defer recoverFatal(&err)
	if !c.started {
		return NewCodecError(ErrCodeBadConfiguration, "session not started")
	}
	if c.raw {
		return NewCodecError(ErrCodeBadConfiguration, "session is in raw mode, use WriteRawData")
	}
	byteWidth := c.frame.Width * c.frame.ColorSpace.NumComponents()
	if byteWidth == 0 || len(buf)%byteWidth != 0 {
		return NewCodecError(ErrCodeBufferTooSmall,
			fmt.Sprintf("buffer of %d bytes is not a whole number of %d-byte scanlines", len(buf), byteWidth))
	}
	mcuRows := c.frame.MCUHeight(c.engine.BlockSize())
	rows := [][][]byte{make([][]byte, 0, mcuRows)}
	for start := 0; start < len(buf); start += mcuRows * byteWidth {
		end := min(start+mcuRows*byteWidth, len(buf))
		chunk := buf[start:end]
		batch := rows[0][:0]
		for off := 0; off < len(chunk); off += byteWidth {
			batch = append(batch, chunk[off:off+byteWidth])
		}
		for len(batch) > 0 {
			rows[0] = batch
			accepted := c.engine.WriteRows(rows, len(batch))
			if accepted == 0 {
				return NewCodecError(ErrCodeEngineFailure, "engine accepted no rows")
			}
			if accepted > len(batch) {
				accepted = len(batch)
			}
			batch = batch[accepted:]
		}
	}
	return nil
}

// WriteRawData submits per-component plane buffers, each already laid
// out in its component's native subsampled geometry, and drives the
// engine until the frame height is reached. Each plane must hold at
// least RowStride*ColStride bytes for its component.
func (c *Compress) WriteRawData(planes [][]byte) (err error) {
	defer recoverFatal(&err)
	if !c.started {
		return NewCodecError(ErrCodeBadConfiguration, "session not started")
	}
	if !c.raw {
		return NewCodecError(ErrCodeRawModeRequired, "raw mode not enabled")
	}
	comps := c.frame.Components
	if len(planes) != len(comps) {
		return NewCodecError(ErrCodeTooManyComponents,
			fmt.Sprintf("frame has %d components, got %d planes", len(comps), len(planes)))
	}
	for ci := range comps {
		if need := comps[ci].RowStride * comps[ci].ColStride; len(planes[ci]) < need {
			return NewCodecError(ErrCodeBufferTooSmall,
				fmt.Sprintf("component %d plane holds %d bytes, need %d", ci, len(planes[ci]), need))
		}
	}

	blockSize := c.engine.BlockSize()
	mcuRows := c.frame.MCUHeight(blockSize)
	_, maxV := c.frame.MaxSampling()
	rows := make([][][]byte, len(comps))
	for ci := range rows {
		rows[ci] = make([][]byte, mcuRows)
	}

	startRow := c.engine.NextScanline()
	for c.engine.NextScanline() < c.frame.Height {
		terminal := startRow+mcuRows >= c.frame.Height
		for ci := range comps {
			comp := &comps[ci]
			planeRows := len(planes[ci]) / comp.RowStride
			compStart := startRow * comp.VSampFactor / maxV
			compRows := min(planeRows-compStart, comp.VSampFactor*blockSize)
			if compRows < blockSize && !terminal {
				return NewCodecError(ErrCodeBufferTooSmall,
					fmt.Sprintf("component %d has only %d rows left mid-frame, row groups need %d",
						ci, compRows, blockSize))
			}
			for ri := 0; ri < compRows; ri++ {
				off := (compStart + ri) * comp.RowStride
				rows[ci][ri] = planes[ci][off : off+comp.RowStride]
			}
			// Unused slots are padded with nil, at the tail only.
			for ri := compRows; ri < mcuRows; ri++ {
				rows[ci][ri] = nil
			}
		}
		written := c.engine.WriteRows(rows, mcuRows)
		if written == 0 {
			return NewCodecError(ErrCodeEngineFailure, "engine accepted no rows")
		}
		startRow += written
	}
	return nil
}

// FinishCompress flushes the stream. For in-memory destinations the
// result becomes available through Data.
func (c *Compress) FinishCompress() (err error) {
	defer recoverFatal(&err)
	if !c.started {
		return NewCodecError(ErrCodeBadConfiguration, "session not started")
	}
	if c.finished {
		return nil
	}
	c.engine.FinishCompress()
	c.finished = true
	return nil
}

// Data returns the compressed stream when the in-memory destination is
// in use, or nil otherwise.
func (c *Compress) Data() []byte {
	if c.mem == nil {
		return nil
	}
	return c.mem.Bytes()
}
