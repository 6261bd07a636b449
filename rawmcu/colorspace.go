package rawmcu

import "fmt"

// ColorSpace identifies the sample layout of interleaved pixel data.
type ColorSpace int

const (
	ColorSpaceUnknown ColorSpace = iota
	ColorSpaceGrayscale
	ColorSpaceRGB
	ColorSpaceYCbCr
	ColorSpaceCMYK
)

// NumComponents returns how many samples one pixel carries in this
// color space, or 0 when unknown.
func (c ColorSpace) NumComponents() int {
	switch c {
	case ColorSpaceGrayscale:
		return 1
	case ColorSpaceRGB, ColorSpaceYCbCr:
		return 3
	case ColorSpaceCMYK:
		return 4
	default:
		return 0
	}
}

func (c ColorSpace) String() string {
	switch c {
	case ColorSpaceGrayscale:
		return "Grayscale"
	case ColorSpaceRGB:
		return "RGB"
	case ColorSpaceYCbCr:
		return "YCbCr"
	case ColorSpaceCMYK:
		return "CMYK"
	default:
		return fmt.Sprintf("ColorSpace(%d)", int(c))
	}
}
