// Package rawmcu bridges flat pixel buffers and block-oriented image
// codec engines that process pixel data as fixed-height groups of rows
// (minimum coded units) per color component, where components may be
// sampled at different resolutions.
//
// The codec engine itself is a black box behind the CompressEngine and
// DecompressEngine interfaces. This package supplies the three pieces
// that sit between caller buffers and such an engine: the subsampling
// geometry (StrideFor), the row-group assembly and collection loops
// (Compress, Decompress), and a streaming adapter that presents any
// io.Reader to the engine's buffer-refill protocol with well-defined
// release semantics.
//
// Sessions are single-threaded and synchronous. One Compress or
// Decompress value owns its engine, fill buffer and output buffers
// exclusively; engines must not be shared across concurrent sessions.
package rawmcu
