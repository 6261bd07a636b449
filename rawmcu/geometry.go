package rawmcu

// StrideFor computes the padded byte layout of one component's plane.
//
// A component sampled at (hSamp, vSamp) inside a frame whose largest
// factors are (maxHSamp, maxVSamp) covers ceil(width*hSamp/maxHSamp)
// columns and ceil(height*vSamp/maxVSamp) rows of real samples; both
// are rounded up to whole engine blocks. rowStride is the byte width
// of one plane row, colStride the number of plane rows, and both are
// always multiples of blockSize.
//
// The function is pure. Sampling factors must be positive; callers
// validate configurations before consulting it.
func StrideFor(hSamp, vSamp, maxHSamp, maxVSamp, width, height, blockSize int) (rowStride, colStride int) {
	compWidth := ceilDiv(width*hSamp, maxHSamp)
	compHeight := ceilDiv(height*vSamp, maxVSamp)
	rowStride = ceilDiv(compWidth, blockSize) * blockSize
	colStride = ceilDiv(compHeight, blockSize) * blockSize
	return rowStride, colStride
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
