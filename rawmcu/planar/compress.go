package planar

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/image/draw"

	"github.com/qix67/rawmcu_go/rawmcu"
)

// Compressor implements rawmcu.CompressEngine.
//
// Rows are buffered into padded component planes as they arrive; the
// container is written in one piece by FinishCompress. In interleaved
// mode the engine deinterleaves into full-resolution planes first and
// resamples subsampled components at finish time.
type Compressor struct {
	errh  rawmcu.FatalHandler
	level zstd.EncoderLevel

	frame rawmcu.Frame
	raw   bool
	dst   io.Writer

	planes  [][]byte // padded subsampled planes, one per component
	planeAt []int    // next plane row per component (raw mode)
	full    [][]byte // full-resolution planes (interleaved mode)
	next    int      // next full-resolution scanline

	started bool
}

// NewCompressor returns an engine writing at the default zstd level.
func NewCompressor() *Compressor {
	return &Compressor{
		errh:  rawmcu.UnwindOnFatal,
		level: zstd.SpeedDefault,
	}
}

// SetEncoderLevel selects the zstd level for the plane payload.
func (c *Compressor) SetEncoderLevel(level zstd.EncoderLevel) {
	c.level = level
}

// BlockSize implements rawmcu.CompressEngine.
func (c *Compressor) BlockSize() int {
	return blockSize
}

// SetFatalHandler implements rawmcu.CompressEngine.
func (c *Compressor) SetFatalHandler(h rawmcu.FatalHandler) {
	c.errh = h
}

// StartCompress implements rawmcu.CompressEngine.
func (c *Compressor) StartCompress(frame rawmcu.Frame, raw bool, dst io.Writer) {
	c.frame = frame
	c.raw = raw
	c.dst = dst
	c.next = 0
	c.planes = make([][]byte, len(frame.Components))
	c.planeAt = make([]int, len(frame.Components))
	for ci, comp := range frame.Components {
		c.planes[ci] = make([]byte, comp.RowStride*comp.ColStride)
	}
	if !raw {
		c.full = make([][]byte, len(frame.Components))
		for ci := range c.full {
			c.full[ci] = make([]byte, frame.Width*frame.Height)
		}
	}
	c.started = true
}

// WriteRows implements rawmcu.CompressEngine.
func (c *Compressor) WriteRows(rows [][][]byte, maxRows int) int {
	if !c.started {
		c.errh.FatalError(rawmcu.ErrCodeEngineFailure, "write before start")
	}
	if c.raw {
		return c.writeRawRows(rows, maxRows)
	}
	return c.writeInterleavedRows(rows, maxRows)
}

func (c *Compressor) writeRawRows(rows [][][]byte, maxRows int) int {
	for ci := range rows {
		if ci >= len(c.planes) {
			break
		}
		rowStride := c.frame.Components[ci].RowStride
		for _, row := range rows[ci] {
			if row == nil {
				break
			}
			at := c.planeAt[ci]
			if (at+1)*rowStride > len(c.planes[ci]) {
				break
			}
			copy(c.planes[ci][at*rowStride:(at+1)*rowStride], row)
			c.planeAt[ci] = at + 1
		}
	}
	c.next += maxRows
	return maxRows
}

func (c *Compressor) writeInterleavedRows(rows [][][]byte, maxRows int) int {
	numComps := len(c.frame.Components)
	width := c.frame.Width
	count := 0
	for _, row := range rows[0] {
		if row == nil || count >= maxRows || c.next >= c.frame.Height {
			break
		}
		if len(row) < width*numComps {
			c.errh.FatalError(rawmcu.ErrCodeBufferTooSmall,
				fmt.Sprintf("scanline holds %d bytes, need %d", len(row), width*numComps))
		}
		base := c.next * width
		for x := 0; x < width; x++ {
			for comp := 0; comp < numComps; comp++ {
				c.full[comp][base+x] = row[x*numComps+comp]
			}
		}
		c.next++
		count++
	}
	return count
}

// NextScanline implements rawmcu.CompressEngine.
func (c *Compressor) NextScanline() int {
	return c.next
}

// FinishCompress implements rawmcu.CompressEngine.
func (c *Compressor) FinishCompress() {
	if !c.started {
		c.errh.FatalError(rawmcu.ErrCodeEngineFailure, "finish before start")
	}
	if !c.raw {
		c.resamplePlanes()
	}

	var payload bytes.Buffer
	zw, err := zstd.NewWriter(&payload, zstd.WithEncoderLevel(c.level))
	if err != nil {
		c.errh.FatalError(rawmcu.ErrCodeEngineFailure, fmt.Sprintf("zstd encoder: %v", err))
	}
	for _, plane := range c.planes {
		if _, err := zw.Write(plane); err != nil {
			c.errh.FatalError(rawmcu.ErrCodeEngineFailure, fmt.Sprintf("compressing planes: %v", err))
		}
	}
	if err := zw.Close(); err != nil {
		c.errh.FatalError(rawmcu.ErrCodeEngineFailure, fmt.Sprintf("compressing planes: %v", err))
	}

	h := &header{
		colorSpace: c.frame.ColorSpace,
		width:      c.frame.Width,
		height:     c.frame.Height,
		payloadLen: payload.Len(),
	}
	for _, comp := range c.frame.Components {
		h.samp = append(h.samp, [2]int{comp.HSampFactor, comp.VSampFactor})
	}

	out := appendHeader(nil, h)
	out = append(out, payload.Bytes()...)
	out = append(out, rawmcu.EOI[:]...)
	if _, err := c.dst.Write(out); err != nil {
		c.errh.FatalError(rawmcu.ErrCodeDestinationFailure, fmt.Sprintf("writing stream: %v", err))
	}
	c.started = false
}

// resamplePlanes fills the padded subsampled planes from the
// full-resolution planes gathered on the interleaved path.
func (c *Compressor) resamplePlanes() {
	maxH, maxV := c.frame.MaxSampling()
	for ci, comp := range c.frame.Components {
		compW := ceilDiv(c.frame.Width*comp.HSampFactor, maxH)
		compH := ceilDiv(c.frame.Height*comp.VSampFactor, maxV)
		resamplePlane(c.planes[ci], comp.RowStride, compW, compH,
			c.full[ci], c.frame.Width, c.frame.Width, c.frame.Height)
		padPlane(c.planes[ci], comp.RowStride, compW, compH, comp.ColStride)
	}
	c.full = nil
}

// resamplePlane copies or rescales a grayscale plane into dst. Source
// and destination use independent strides.
func resamplePlane(dst []byte, dstStride, dstW, dstH int, src []byte, srcStride, srcW, srcH int) {
	if dstW == srcW && dstH == srcH {
		for y := 0; y < dstH; y++ {
			copy(dst[y*dstStride:y*dstStride+dstW], src[y*srcStride:y*srcStride+srcW])
		}
		return
	}
	srcImg := &image.Gray{Pix: src, Stride: srcStride, Rect: image.Rect(0, 0, srcW, srcH)}
	dstImg := &image.Gray{Pix: dst, Stride: dstStride, Rect: image.Rect(0, 0, dstW, dstH)}
	draw.ApproxBiLinear.Scale(dstImg, dstImg.Rect, srcImg, srcImg.Rect, draw.Src, nil)
}

// padPlane replicates the last real column and row into the padding so
// block boundaries do not pick up garbage.
func padPlane(plane []byte, rowStride, realW, realH, colStride int) {
	for y := 0; y < realH; y++ {
		row := plane[y*rowStride : (y+1)*rowStride]
		for x := realW; x < rowStride; x++ {
			row[x] = row[realW-1]
		}
	}
	for y := realH; y < colStride; y++ {
		copy(plane[y*rowStride:(y+1)*rowStride], plane[(realH-1)*rowStride:realH*rowStride])
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
