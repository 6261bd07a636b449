package rawmcu

import "io"

// Row batches are passed to engines as [][][]byte indexed
// [component][row]. A nil row marks an unused slot; engines tolerate
// nil rows only as tail padding of a final, partial batch. In
// interleaved (non-raw) mode only component slot 0 is used and each
// row carries width*numComponents interleaved bytes.

// CompressEngine is the write side of a block-oriented codec engine.
//
// Engines report unrecoverable conditions through the registered
// FatalHandler, which never returns; a session must not touch the
// engine again after a fatal condition.
type CompressEngine interface {
	// BlockSize returns the engine's fixed square processing unit.
	BlockSize() int

	// SetFatalHandler registers the non-returning fatal-error policy.
	SetFatalHandler(h FatalHandler)

	// StartCompress locks the frame configuration and destination.
	// Component strides are already computed. raw selects per-plane
	// input in each component's native subsampled layout.
	StartCompress(frame Frame, raw bool, dst io.Writer)

	// WriteRows consumes up to maxRows rows from the batch and returns
	// how many were accepted, in full-resolution scanline units.
	// Returning 0 while rows remain signals that the engine cannot
	// proceed.
	WriteRows(rows [][][]byte, maxRows int) int

	// NextScanline is the index of the next full-resolution scanline
	// the engine expects.
	NextScanline() int

	// FinishCompress flushes the compressed stream to the destination.
	FinishCompress()
}

// DecompressEngine is the read side of a block-oriented codec engine.
type DecompressEngine interface {
	// BlockSize returns the engine's fixed square processing unit.
	BlockSize() int

	// SetFatalHandler registers the non-returning fatal-error policy.
	SetFatalHandler(h FatalHandler)

	// SetSource registers the byte source the engine pulls input from.
	SetSource(src ByteSource)

	// Source returns the currently registered byte source, so the
	// owning session can verify its own source is still registered
	// before releasing it.
	Source() ByteSource

	// ReadHeader parses the stream header and returns the frame it
	// declares. Strides are not yet computed.
	ReadHeader() Frame

	// StartDecompress begins producing rows; raw selects per-plane
	// output in each component's native subsampled layout.
	StartDecompress(raw bool)

	// ReadRows fills the non-nil rows of the batch and returns how
	// many rows were produced in full-resolution scanline units.
	// Returning 0 signals end of input.
	ReadRows(rows [][][]byte, maxRows int) int

	// OutputScanline is the index of the next full-resolution scanline
	// the engine will produce.
	OutputScanline() int

	// FinishDecompress completes the pass and releases the byte
	// source. It reports whether the stream was consumed cleanly.
	FinishDecompress() bool
}

// ByteSource is the buffer-refill protocol a DecompressEngine pulls
// input through.
type ByteSource interface {
	// FillInput copies buffered input into dst and returns the number
	// of bytes provided, always at least 1 for a non-empty dst: when
	// the underlying stream is exhausted the source synthesizes an end
	// marker instead of starving the engine.
	FillInput(dst []byte) int

	// SkipInput advances the logical read position by n bytes.
	SkipInput(n int)

	// Terminate releases the fill buffer and the underlying reader.
	// It is idempotent.
	Terminate()
}
