package planar

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/qix67/rawmcu_go/rawmcu"
)

// Decompressor implements rawmcu.DecompressEngine.
//
// The header is parsed through the byte-source protocol on ReadHeader;
// the plane payload is pulled and inflated in StartDecompress, after
// which ReadRows serves whole row groups straight from the decoded
// planes.
type Decompressor struct {
	errh rawmcu.FatalHandler
	src  rawmcu.ByteSource

	hdr   *header
	frame rawmcu.Frame

	planes  [][]byte // padded subsampled planes
	planeAt []int    // next plane row per component (raw mode)
	full    [][]byte // full-resolution planes (interleaved mode)

	raw     bool
	out     int // next full-resolution scanline
	started bool
}

// NewDecompressor returns an engine for the planar container format.
func NewDecompressor() *Decompressor {
	return &Decompressor{errh: rawmcu.UnwindOnFatal}
}

// BlockSize implements rawmcu.DecompressEngine.
func (d *Decompressor) BlockSize() int {
	return blockSize
}

// SetFatalHandler implements rawmcu.DecompressEngine.
func (d *Decompressor) SetFatalHandler(h rawmcu.FatalHandler) {
	d.errh = h
}

// SetSource implements rawmcu.DecompressEngine.
func (d *Decompressor) SetSource(src rawmcu.ByteSource) {
	d.src = src
}

// Source implements rawmcu.DecompressEngine.
func (d *Decompressor) Source() rawmcu.ByteSource {
	return d.src
}

// srcReader adapts the byte-source refill protocol to io.Reader for
// header and payload parsing. It never reports EOF: the source
// synthesizes end markers once the underlying stream runs out.
type srcReader struct {
	src rawmcu.ByteSource
}

func (r srcReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return r.src.FillInput(p), nil
}

// ReadHeader implements rawmcu.DecompressEngine.
func (d *Decompressor) ReadHeader() rawmcu.Frame {
	h, err := parseHeader(srcReader{d.src})
	if err != nil {
		d.fatalErr(err)
	}
	d.hdr = h
	d.frame = h.frame()
	return d.frame
}

// StartDecompress implements rawmcu.DecompressEngine.
func (d *Decompressor) StartDecompress(raw bool) {
	if d.hdr == nil {
		d.errh.FatalError(rawmcu.ErrCodeEngineFailure, "start before header")
	}
	d.raw = raw
	d.out = 0
	d.frame.ComputeStrides(blockSize)

	total := 0
	for _, comp := range d.frame.Components {
		total += comp.RowStride * comp.ColStride
	}
	// The payload length comes straight off the wire; bound it by the
	// worst-case zstd growth over the plane total before trusting it
	// with an allocation.
	if maxPayload := total + total/128 + 1024; d.hdr.payloadLen > maxPayload {
		d.errh.FatalError(rawmcu.ErrCodeBadStreamHeader,
			fmt.Sprintf("payload length %d exceeds the %d-byte bound for this frame",
				d.hdr.payloadLen, maxPayload))
	}

	payload := make([]byte, d.hdr.payloadLen)
	if _, err := io.ReadFull(srcReader{d.src}, payload); err != nil {
		d.errh.FatalError(rawmcu.ErrCodeTruncatedStream,
			fmt.Sprintf("reading plane payload: %v", err))
	}

	zr, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(total)))
	if err != nil {
		d.errh.FatalError(rawmcu.ErrCodeEngineFailure, fmt.Sprintf("zstd decoder: %v", err))
	}
	defer zr.Close()
	inflated, err := zr.DecodeAll(payload, make([]byte, 0, total))
	if err != nil {
		d.errh.FatalError(rawmcu.ErrCodeTruncatedStream,
			fmt.Sprintf("plane payload damaged or truncated: %v", err))
	}

	if len(inflated) != total {
		d.errh.FatalError(rawmcu.ErrCodeTruncatedStream,
			fmt.Sprintf("plane payload has %d bytes, expected %d", len(inflated), total))
	}
	d.planes = make([][]byte, len(d.frame.Components))
	d.planeAt = make([]int, len(d.frame.Components))
	off := 0
	for ci, comp := range d.frame.Components {
		size := comp.RowStride * comp.ColStride
		d.planes[ci] = inflated[off : off+size]
		off += size
	}

	var trailer [2]byte
	if _, err := io.ReadFull(srcReader{d.src}, trailer[:]); err != nil {
		d.errh.FatalError(rawmcu.ErrCodeTruncatedStream,
			fmt.Sprintf("reading end marker: %v", err))
	}
	if trailer != rawmcu.EOI {
		d.errh.FatalError(rawmcu.ErrCodeTruncatedStream, "missing end marker")
	}

	if !raw {
		d.upsamplePlanes()
	}
	d.started = true
}

// upsamplePlanes rebuilds full-resolution planes for interleaved
// output.
func (d *Decompressor) upsamplePlanes() {
	maxH, maxV := d.frame.MaxSampling()
	d.full = make([][]byte, len(d.frame.Components))
	for ci, comp := range d.frame.Components {
		compW := ceilDiv(d.frame.Width*comp.HSampFactor, maxH)
		compH := ceilDiv(d.frame.Height*comp.VSampFactor, maxV)
		d.full[ci] = make([]byte, d.frame.Width*d.frame.Height)
		resamplePlane(d.full[ci], d.frame.Width, d.frame.Width, d.frame.Height,
			d.planes[ci], comp.RowStride, compW, compH)
	}
}

// ReadRows implements rawmcu.DecompressEngine.
func (d *Decompressor) ReadRows(rows [][][]byte, maxRows int) int {
	if !d.started {
		d.errh.FatalError(rawmcu.ErrCodeEngineFailure, "read before start")
	}
	if d.out >= d.frame.Height {
		return 0
	}
	if d.raw {
		return d.readRawRows(rows, maxRows)
	}
	return d.readInterleavedRows(rows, maxRows)
}

func (d *Decompressor) readRawRows(rows [][][]byte, maxRows int) int {
	for ci := range rows {
		if ci >= len(d.planes) {
			break
		}
		rowStride := d.frame.Components[ci].RowStride
		for _, row := range rows[ci] {
			if row == nil {
				break
			}
			at := d.planeAt[ci]
			if (at+1)*rowStride > len(d.planes[ci]) {
				break
			}
			copy(row, d.planes[ci][at*rowStride:(at+1)*rowStride])
			d.planeAt[ci] = at + 1
		}
	}
	d.out += maxRows
	return maxRows
}

func (d *Decompressor) readInterleavedRows(rows [][][]byte, maxRows int) int {
	numComps := len(d.frame.Components)
	width := d.frame.Width
	count := 0
	for _, row := range rows[0] {
		if row == nil || count >= maxRows || d.out >= d.frame.Height {
			break
		}
		base := d.out * width
		for x := 0; x < width; x++ {
			for comp := 0; comp < numComps; comp++ {
				row[x*numComps+comp] = d.full[comp][base+x]
			}
		}
		d.out++
		count++
	}
	return count
}

// OutputScanline implements rawmcu.DecompressEngine.
func (d *Decompressor) OutputScanline() int {
	return d.out
}

// FinishDecompress implements rawmcu.DecompressEngine.
func (d *Decompressor) FinishDecompress() bool {
	if d.src != nil {
		d.src.Terminate()
	}
	return true
}

func (d *Decompressor) fatalErr(err error) {
	ce, ok := err.(*rawmcu.CodecError)
	if !ok {
		d.errh.FatalError(rawmcu.ErrCodeEngineFailure, err.Error())
		return
	}
	d.errh.FatalError(ce.Code, ce.Message)
}
