package rawmcu

import (
	"io"
	"strings"
	"testing"
)

// readCall records the shape of one ReadRows batch.
type readCall struct {
	maxRows int
	rows    []int // non-nil rows per component
}

// stubDecompressEngine serves a fixed frame and fills whatever rows the
// session hands it. producePlan, when non-empty, overrides the produced
// row count one call at a time.
type stubDecompressEngine struct {
	errh  FatalHandler
	src   ByteSource
	frame Frame
	raw   bool
	out   int

	producePlan []int
	calls       []readCall
	finished    bool
}

func (e *stubDecompressEngine) BlockSize() int { return 8 }

func (e *stubDecompressEngine) SetFatalHandler(h FatalHandler) { e.errh = h }

func (e *stubDecompressEngine) SetSource(src ByteSource) { e.src = src }

func (e *stubDecompressEngine) Source() ByteSource { return e.src }

func (e *stubDecompressEngine) ReadHeader() Frame { return e.frame }

func (e *stubDecompressEngine) StartDecompress(raw bool) { e.raw = raw }

func (e *stubDecompressEngine) OutputScanline() int { return e.out }

func (e *stubDecompressEngine) ReadRows(rows [][][]byte, maxRows int) int {
	call := readCall{maxRows: maxRows}
	marker := byte(len(e.calls) + 1)
	for ci := range rows {
		n := 0
		for _, row := range rows[ci] {
			if row == nil {
				continue
			}
			n++
			for x := range row {
				row[x] = marker
			}
		}
		call.rows = append(call.rows, n)
	}
	e.calls = append(e.calls, call)

	produced := maxRows
	if len(e.producePlan) > 0 {
		produced = e.producePlan[0]
		e.producePlan = e.producePlan[1:]
	}
	e.out += produced
	return produced
}

func (e *stubDecompressEngine) FinishDecompress() bool {
	if e.src != nil {
		e.src.Terminate()
	}
	e.finished = true
	return true
}

// closeCounter counts how many times the underlying reader is closed.
type closeCounter struct {
	io.Reader
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func frame420(width, height int) Frame {
	return Frame{
		Width:      width,
		Height:     height,
		ColorSpace: ColorSpaceYCbCr,
		Components: []Component{
			{ID: 0, HSampFactor: 2, VSampFactor: 2},
			{ID: 1, HSampFactor: 1, VSampFactor: 1},
			{ID: 2, HSampFactor: 1, VSampFactor: 1},
		},
	}
}

func newRawDecoder(t *testing.T, eng *stubDecompressEngine) *Decompress {
	t.Helper()
	d, err := NewDecompress(eng, strings.NewReader("input"))
	if err != nil {
		t.Fatalf("NewDecompress: %v", err)
	}
	if err := d.StartRaw(); err != nil {
		t.Fatalf("StartRaw: %v", err)
	}
	return d
}

func TestReadRawDataGrowth(t *testing.T) {
	eng := &stubDecompressEngine{frame: frame420(45, 30)}
	d := newRawDecoder(t, eng)
	planes, err := d.ReadRawData(nil)
	if err != nil {
		t.Fatalf("ReadRawData: %v", err)
	}
	// Two 16-row groups grow luma by 16 plane rows each and chroma by 8.
	wantLens := []int{48 * 32, 24 * 16, 24 * 16}
	for ci, plane := range planes {
		if len(plane) != wantLens[ci] {
			t.Errorf("component %d plane holds %d bytes, want %d", ci, len(plane), wantLens[ci])
		}
	}
	if len(eng.calls) != 2 {
		t.Fatalf("engine saw %d batches, want 2", len(eng.calls))
	}
	for i, call := range eng.calls {
		if call.maxRows != 16 {
			t.Errorf("batch %d maxRows = %d, want 16", i, call.maxRows)
		}
		want := []int{16, 8, 8}
		for ci, n := range call.rows {
			if n != want[ci] {
				t.Errorf("batch %d component %d has %d rows, want %d", i, ci, n, want[ci])
			}
		}
	}
	// Each plane row was filled by exactly one batch, in order.
	if planes[0][0] != 1 || planes[0][16*48] != 2 {
		t.Error("luma rows were not collected in batch order")
	}
}

// A 24-row 4:2:0 frame needs two 16-row groups, but the luma plane only
// has 24 padded rows. The second batch must stop at the plane edge
// instead of growing past ColStride.
func TestReadRawDataClampsAtColStride(t *testing.T) {
	eng := &stubDecompressEngine{frame: frame420(45, 24)}
	d := newRawDecoder(t, eng)
	planes, err := d.ReadRawData(nil)
	if err != nil {
		t.Fatalf("ReadRawData: %v", err)
	}
	if len(planes[0]) != 48*24 {
		t.Errorf("luma plane holds %d bytes, want %d", len(planes[0]), 48*24)
	}
	if len(planes[1]) != 24*16 {
		t.Errorf("chroma plane holds %d bytes, want %d", len(planes[1]), 24*16)
	}
	if len(eng.calls) != 2 {
		t.Fatalf("engine saw %d batches, want 2", len(eng.calls))
	}
	if got := eng.calls[1].rows[0]; got != 8 {
		t.Errorf("second batch offered %d luma rows, want 8", got)
	}
}

func TestReadRawDataEndOfInputRollsBack(t *testing.T) {
	eng := &stubDecompressEngine{frame: frame420(45, 30), producePlan: []int{16, 0}}
	d := newRawDecoder(t, eng)
	planes, err := d.ReadRawData(nil)
	if err != nil {
		t.Fatalf("ReadRawData: %v", err)
	}
	// The second batch produced nothing, so its growth must be undone.
	wantLens := []int{48 * 16, 24 * 8, 24 * 8}
	for ci, plane := range planes {
		if len(plane) != wantLens[ci] {
			t.Errorf("component %d plane holds %d bytes, want %d", ci, len(plane), wantLens[ci])
		}
	}
}

func TestReadRawDataPartialBatch(t *testing.T) {
	eng := &stubDecompressEngine{frame: frame420(45, 30), producePlan: []int{10}}
	d := newRawDecoder(t, eng)
	_, err := d.ReadRawData(nil)
	if codeOf(t, err) != ErrCodeAmbiguousBatchHeight {
		t.Errorf("partial batch error = %v, want AmbiguousBatchHeight", err)
	}
}

func TestReadRawDataResumesIntoDest(t *testing.T) {
	eng := &stubDecompressEngine{frame: frame420(45, 30), producePlan: []int{16, 0}}
	d := newRawDecoder(t, eng)
	planes, err := d.ReadRawData(nil)
	if err != nil {
		t.Fatalf("ReadRawData: %v", err)
	}
	planes, err = d.ReadRawData(planes)
	if err != nil {
		t.Fatalf("resumed ReadRawData: %v", err)
	}
	if len(planes[0]) != 48*32 {
		t.Errorf("resumed luma plane holds %d bytes, want %d", len(planes[0]), 48*32)
	}
	if planes[0][16*48] != 3 {
		t.Error("resumed collection did not continue at the rollback point")
	}
}

func TestReadRawDataRequiresRawMode(t *testing.T) {
	eng := &stubDecompressEngine{frame: frame420(45, 30)}
	d, err := NewDecompress(eng, strings.NewReader("input"))
	if err != nil {
		t.Fatalf("NewDecompress: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := d.ReadRawData(nil); codeOf(t, err) != ErrCodeRawModeRequired {
		t.Errorf("ReadRawData in interleaved mode = %v, want RawModeRequired", err)
	}
}

func TestReadScanlinesFlatTruncation(t *testing.T) {
	eng := &stubDecompressEngine{
		frame: Frame{
			Width:      4,
			Height:     10,
			ColorSpace: ColorSpaceGrayscale,
			Components: []Component{{ID: 0, HSampFactor: 1, VSampFactor: 1}},
		},
		producePlan: []int{1, 1, 1, 0},
	}
	d, err := NewDecompress(eng, strings.NewReader("input"))
	if err != nil {
		t.Fatalf("NewDecompress: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	buf, err := d.ReadScanlinesFlat()
	if codeOf(t, err) != ErrCodeTruncatedStream {
		t.Fatalf("truncation error = %v, want TruncatedStream", err)
	}
	if len(buf) != 3*4 {
		t.Errorf("partial read returned %d bytes, want 12", len(buf))
	}
	for row := 0; row < 3; row++ {
		if buf[row*4] != byte(row+1) {
			t.Errorf("row %d carries marker %d, want %d", row, buf[row*4], row+1)
		}
	}
}

func TestNewDecompressEmptyInput(t *testing.T) {
	r := &closeCounter{Reader: strings.NewReader("")}
	_, err := NewDecompress(&stubDecompressEngine{frame: frame420(45, 30)}, r)
	if codeOf(t, err) != ErrCodeEmptyInput {
		t.Fatalf("NewDecompress on empty input = %v, want EmptyInput", err)
	}
	if r.closes != 1 {
		t.Errorf("reader closed %d times on the failure path, want 1", r.closes)
	}
}

func TestNewDecompressBadFrame(t *testing.T) {
	f := frame420(45, 30)
	f.Components[0].VSampFactor = 3 // 24-row groups exceed the limit
	r := &closeCounter{Reader: strings.NewReader("input")}
	_, err := NewDecompress(&stubDecompressEngine{frame: f}, r)
	if codeOf(t, err) != ErrCodeSamplingTooLarge {
		t.Fatalf("NewDecompress with bad frame = %v, want SamplingTooLarge", err)
	}
	if r.closes != 1 {
		t.Errorf("reader closed %d times on the failure path, want 1", r.closes)
	}
}

func TestCloseReleasesReaderOnce(t *testing.T) {
	t.Run("abandoned mid-stream", func(t *testing.T) {
		r := &closeCounter{Reader: strings.NewReader("input")}
		eng := &stubDecompressEngine{frame: frame420(45, 30)}
		d, err := NewDecompress(eng, r)
		if err != nil {
			t.Fatalf("NewDecompress: %v", err)
		}
		if err := d.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if err := d.Close(); err != nil {
			t.Fatalf("second Close: %v", err)
		}
		if r.closes != 1 {
			t.Errorf("reader closed %d times, want 1", r.closes)
		}
	})
	t.Run("after finish", func(t *testing.T) {
		r := &closeCounter{Reader: strings.NewReader("input")}
		eng := &stubDecompressEngine{frame: frame420(45, 30)}
		d, err := NewDecompress(eng, r)
		if err != nil {
			t.Fatalf("NewDecompress: %v", err)
		}
		if err := d.StartRaw(); err != nil {
			t.Fatalf("StartRaw: %v", err)
		}
		if _, err := d.ReadRawData(nil); err != nil {
			t.Fatalf("ReadRawData: %v", err)
		}
		if err := d.FinishDecompress(); err != nil {
			t.Fatalf("FinishDecompress: %v", err)
		}
		if err := d.Close(); err != nil {
			t.Fatalf("Close after finish: %v", err)
		}
		if r.closes != 1 {
			t.Errorf("reader closed %d times, want 1", r.closes)
		}
		if !eng.finished {
			t.Error("engine was not finished")
		}
	})
}

func TestDecompressAccessors(t *testing.T) {
	eng := &stubDecompressEngine{frame: frame420(45, 30)}
	d, err := NewDecompress(eng, strings.NewReader("input"))
	if err != nil {
		t.Fatalf("NewDecompress: %v", err)
	}
	if w, h := d.Size(); w != 45 || h != 30 {
		t.Errorf("Size = %dx%d, want 45x30", w, h)
	}
	if d.ColorSpace() != ColorSpaceYCbCr {
		t.Errorf("ColorSpace = %v, want YCbCr", d.ColorSpace())
	}
	comps := d.Components()
	if comps[0].RowStride != 48 || comps[0].ColStride != 32 {
		t.Errorf("luma strides = (%d, %d), want (48, 32)", comps[0].RowStride, comps[0].ColStride)
	}
}
