package rawmcu

const (
	// MaxComponents is the maximum number of color components per frame.
	MaxComponents = 4

	// MaxMCUHeight is the hard upper bound on rows per MCU batch.
	// Sampling configurations implying a taller batch are rejected
	// before any engine call.
	MaxMCUHeight = 16
)

const (
	markerPrefix byte = 0xFF
	markerSOI    byte = 0xD8
	markerEOI    byte = 0xD9
)

// SOI is the start-of-stream marker sequence.
var SOI = [2]byte{markerPrefix, markerSOI}

// EOI is the end-of-stream marker sequence. The source adapter
// synthesizes it when input ends early, so a truncated stream fails
// deterministically instead of stalling the engine.
var EOI = [2]byte{markerPrefix, markerEOI}
