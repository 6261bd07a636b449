// Package planar is a lossless block-oriented codec engine for the
// rawmcu bridge. Component planes are padded to block geometry,
// entropy-coded as one zstd stream and framed by start/end markers, so
// the engine exercises the full row-group and byte-source protocols
// without any frequency-domain machinery.
package planar

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/qix67/rawmcu_go/rawmcu"
)

const (
	blockSize     = 8
	formatVersion = 1
)

// magic follows the start marker.
var magic = [4]byte{'p', 'M', 'C', 'U'}

// fixedHeaderLen covers start marker, magic, version, color space,
// dimensions and component count.
const fixedHeaderLen = 2 + 4 + 1 + 1 + 8 + 1

// header is the container header: everything between the start marker
// and the zstd plane payload.
type header struct {
	colorSpace rawmcu.ColorSpace
	width      int
	height     int
	samp       [][2]int // per-component (h, v) sampling factors
	payloadLen int
}

// frame converts the header into the bridge's frame description.
// Strides are left for the caller to compute.
func (h *header) frame() rawmcu.Frame {
	f := rawmcu.Frame{
		Width:      h.width,
		Height:     h.height,
		ColorSpace: h.colorSpace,
	}
	for i, s := range h.samp {
		f.Components = append(f.Components, rawmcu.Component{
			ID:          i,
			HSampFactor: s[0],
			VSampFactor: s[1],
		})
	}
	return f
}

// appendHeader serializes h, start marker included.
func appendHeader(dst []byte, h *header) []byte {
	dst = append(dst, rawmcu.SOI[:]...)
	dst = append(dst, magic[:]...)
	dst = append(dst, formatVersion, byte(h.colorSpace))
	dst = binary.BigEndian.AppendUint32(dst, uint32(h.width))
	dst = binary.BigEndian.AppendUint32(dst, uint32(h.height))
	dst = append(dst, byte(len(h.samp)))
	for _, s := range h.samp {
		dst = append(dst, byte(s[0]), byte(s[1]))
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(h.payloadLen))
	return dst
}

// parseHeader reads and validates a container header. The reader never
// reports EOF (the byte source synthesizes end markers), so truncation
// shows up as content mismatches.
func parseHeader(r io.Reader) (*header, error) {
	var fixed [fixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, rawmcu.NewCodecError(rawmcu.ErrCodeTruncatedStream, "stream ended inside header")
	}
	if fixed[0] != rawmcu.SOI[0] || fixed[1] != rawmcu.SOI[1] {
		return nil, rawmcu.NewCodecError(rawmcu.ErrCodeBadStreamHeader, "missing start marker")
	}
	if !bytes.Equal(fixed[2:6], magic[:]) {
		return nil, rawmcu.NewCodecError(rawmcu.ErrCodeBadStreamHeader,
			fmt.Sprintf("bad magic %q", fixed[2:6]))
	}
	if fixed[6] != formatVersion {
		return nil, rawmcu.NewCodecError(rawmcu.ErrCodeUnsupportedVersion,
			fmt.Sprintf("container version %d, expected %d", fixed[6], formatVersion))
	}
	h := &header{
		colorSpace: rawmcu.ColorSpace(fixed[7]),
		width:      int(binary.BigEndian.Uint32(fixed[8:12])),
		height:     int(binary.BigEndian.Uint32(fixed[12:16])),
	}
	numComps := int(fixed[16])
	if numComps == 0 || numComps > rawmcu.MaxComponents {
		return nil, rawmcu.NewCodecError(rawmcu.ErrCodeBadStreamHeader,
			fmt.Sprintf("component count %d out of range", numComps))
	}
	rest := make([]byte, 2*numComps+4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, rawmcu.NewCodecError(rawmcu.ErrCodeTruncatedStream, "stream ended inside header")
	}
	for i := 0; i < numComps; i++ {
		h.samp = append(h.samp, [2]int{int(rest[2*i]), int(rest[2*i+1])})
	}
	h.payloadLen = int(binary.BigEndian.Uint32(rest[2*numComps:]))
	return h, nil
}
