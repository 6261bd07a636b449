package planar

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/qix67/rawmcu_go/rawmcu"
)

// EncodeImage compresses img into the planar container. Grayscale
// images keep their single plane; YCbCr images keep their subsampling;
// everything else is converted to YCbCr 4:2:0. quality in 0..100
// selects compression effort only, the planes themselves are stored
// losslessly.
func EncodeImage(w io.Writer, img image.Image, quality int) error {
	eng := NewCompressor()
	eng.SetEncoderLevel(levelForQuality(quality))
	switch src := img.(type) {
	case *image.Gray:
		return encodeGray(w, eng, src)
	case *image.YCbCr:
		switch src.SubsampleRatio {
		case image.YCbCrSubsampleRatio444, image.YCbCrSubsampleRatio422, image.YCbCrSubsampleRatio420:
			return encodeYCbCr(w, eng, src)
		}
	}
	return encodeGeneric(w, eng, img)
}

// levelForQuality maps a 0..100 effort knob onto the zstd levels.
func levelForQuality(quality int) zstd.EncoderLevel {
	switch {
	case quality >= 75:
		return zstd.SpeedBestCompression
	case quality >= 40:
		return zstd.SpeedBetterCompression
	case quality >= 10:
		return zstd.SpeedDefault
	default:
		return zstd.SpeedFastest
	}
}

func encodeGray(w io.Writer, eng *Compressor, src *image.Gray) error {
	b := src.Bounds()
	c := rawmcu.NewCompress(eng, rawmcu.ColorSpaceGrayscale)
	c.SetSize(b.Dx(), b.Dy())
	c.SetRawDataIn(true)
	c.SetWriter(w)
	if err := c.StartCompress(); err != nil {
		return err
	}
	comp := c.Components()[0]
	plane := make([]byte, comp.RowStride*comp.ColStride)
	for y := 0; y < b.Dy(); y++ {
		off := src.PixOffset(b.Min.X, b.Min.Y+y)
		copy(plane[y*comp.RowStride:y*comp.RowStride+b.Dx()], src.Pix[off:off+b.Dx()])
	}
	padPlane(plane, comp.RowStride, b.Dx(), b.Dy(), comp.ColStride)
	if err := c.WriteRawData([][]byte{plane}); err != nil {
		return err
	}
	return c.FinishCompress()
}

func encodeYCbCr(w io.Writer, eng *Compressor, src *image.YCbCr) error {
	b := src.Bounds()
	c := rawmcu.NewCompress(eng, rawmcu.ColorSpaceYCbCr)
	c.SetSize(b.Dx(), b.Dy())
	c.SetRawDataIn(true)
	c.SetWriter(w)
	switch src.SubsampleRatio {
	case image.YCbCrSubsampleRatio444:
		c.SetChromaSamplingPixelSizes([2]int{1, 1}, [2]int{1, 1})
	case image.YCbCrSubsampleRatio422:
		c.SetChromaSamplingPixelSizes([2]int{2, 1}, [2]int{2, 1})
	default:
		c.SetChromaSamplingPixelSizes([2]int{2, 2}, [2]int{2, 2})
	}
	if err := c.StartCompress(); err != nil {
		return err
	}
	comps := c.Components()
	maxH, maxV := 0, 0
	for _, comp := range comps {
		maxH = max(maxH, comp.HSampFactor)
		maxV = max(maxV, comp.VSampFactor)
	}

	planes := make([][]byte, len(comps))
	for ci, comp := range comps {
		planes[ci] = make([]byte, comp.RowStride*comp.ColStride)
	}

	lumaStride := comps[0].RowStride
	for y := 0; y < b.Dy(); y++ {
		off := src.YOffset(b.Min.X, b.Min.Y+y)
		copy(planes[0][y*lumaStride:y*lumaStride+b.Dx()], src.Y[off:off+b.Dx()])
	}
	padPlane(planes[0], lumaStride, b.Dx(), b.Dy(), comps[0].ColStride)

	for ci := 1; ci < 3; ci++ {
		comp := comps[ci]
		compW := ceilDiv(b.Dx()*comp.HSampFactor, maxH)
		compH := ceilDiv(b.Dy()*comp.VSampFactor, maxV)
		yScale := maxV / comp.VSampFactor
		srcPix := src.Cb
		if ci == 2 {
			srcPix = src.Cr
		}
		for cy := 0; cy < compH; cy++ {
			off := src.COffset(b.Min.X, b.Min.Y+cy*yScale)
			copy(planes[ci][cy*comp.RowStride:cy*comp.RowStride+compW], srcPix[off:off+compW])
		}
		padPlane(planes[ci], comp.RowStride, compW, compH, comp.ColStride)
	}

	if err := c.WriteRawData(planes); err != nil {
		return err
	}
	return c.FinishCompress()
}

func encodeGeneric(w io.Writer, eng *Compressor, img image.Image) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	full := make([][]byte, 3)
	for i := range full {
		full[i] = make([]byte, width*height)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			yy, cb, cr := color.RGBToYCbCr(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			full[0][y*width+x] = yy
			full[1][y*width+x] = cb
			full[2][y*width+x] = cr
		}
	}

	c := rawmcu.NewCompress(eng, rawmcu.ColorSpaceYCbCr) // defaults to 4:2:0
	c.SetSize(width, height)
	c.SetRawDataIn(true)
	c.SetWriter(w)
	if err := c.StartCompress(); err != nil {
		return err
	}
	comps := c.Components()
	maxH, maxV := 0, 0
	for _, comp := range comps {
		maxH = max(maxH, comp.HSampFactor)
		maxV = max(maxV, comp.VSampFactor)
	}
	planes := make([][]byte, len(comps))
	for ci, comp := range comps {
		compW := ceilDiv(width*comp.HSampFactor, maxH)
		compH := ceilDiv(height*comp.VSampFactor, maxV)
		planes[ci] = make([]byte, comp.RowStride*comp.ColStride)
		resamplePlane(planes[ci], comp.RowStride, compW, compH, full[ci], width, width, height)
		padPlane(planes[ci], comp.RowStride, compW, compH, comp.ColStride)
	}
	if err := c.WriteRawData(planes); err != nil {
		return err
	}
	return c.FinishCompress()
}

// DecodeImage decompresses a planar container into an image. Grayscale
// and YCbCr streams come back as *image.Gray and *image.YCbCr views of
// the decoded planes; RGB and CMYK streams are read interleaved.
func DecodeImage(r io.Reader) (image.Image, error) {
	d, err := rawmcu.NewDecompress(NewDecompressor(), r)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	width, height := d.Size()
	rect := image.Rect(0, 0, width, height)
	switch d.ColorSpace() {
	case rawmcu.ColorSpaceGrayscale:
		planes, err := decodePlanes(d)
		if err != nil {
			return nil, err
		}
		return &image.Gray{Pix: planes[0], Stride: d.Components()[0].RowStride, Rect: rect}, nil

	case rawmcu.ColorSpaceYCbCr:
		ratio, ok := subsampleRatio(d.Components())
		if !ok {
			// Sampling layouts the image package has no plane view for
			// (4:4:0 and friends) go through the interleaved path.
			flat, err := decodeFlat(d)
			if err != nil {
				return nil, err
			}
			out := image.NewNRGBA(rect)
			for i := 0; i < width*height; i++ {
				r8, g8, b8 := color.YCbCrToRGB(flat[3*i+0], flat[3*i+1], flat[3*i+2])
				out.Pix[4*i+0] = r8
				out.Pix[4*i+1] = g8
				out.Pix[4*i+2] = b8
				out.Pix[4*i+3] = 0xFF
			}
			return out, nil
		}
		planes, err := decodePlanes(d)
		if err != nil {
			return nil, err
		}
		return &image.YCbCr{
			Y:              planes[0],
			Cb:             planes[1],
			Cr:             planes[2],
			YStride:        d.Components()[0].RowStride,
			CStride:        d.Components()[1].RowStride,
			SubsampleRatio: ratio,
			Rect:           rect,
		}, nil

	case rawmcu.ColorSpaceRGB:
		flat, err := decodeFlat(d)
		if err != nil {
			return nil, err
		}
		out := image.NewNRGBA(rect)
		for i := 0; i < width*height; i++ {
			out.Pix[4*i+0] = flat[3*i+0]
			out.Pix[4*i+1] = flat[3*i+1]
			out.Pix[4*i+2] = flat[3*i+2]
			out.Pix[4*i+3] = 0xFF
		}
		return out, nil

	case rawmcu.ColorSpaceCMYK:
		flat, err := decodeFlat(d)
		if err != nil {
			return nil, err
		}
		return &image.CMYK{Pix: flat, Stride: 4 * width, Rect: rect}, nil

	default:
		return nil, rawmcu.NewCodecError(rawmcu.ErrCodeBadStreamHeader,
			fmt.Sprintf("cannot render %s stream as an image", d.ColorSpace()))
	}
}

func decodePlanes(d *rawmcu.Decompress) ([][]byte, error) {
	if err := d.StartRaw(); err != nil {
		return nil, err
	}
	planes, err := d.ReadRawData(nil)
	if err != nil {
		return nil, err
	}
	if err := d.FinishDecompress(); err != nil {
		return nil, err
	}
	return planes, nil
}

func decodeFlat(d *rawmcu.Decompress) ([]byte, error) {
	if err := d.Start(); err != nil {
		return nil, err
	}
	flat, err := d.ReadScanlinesFlat()
	if err != nil {
		return nil, err
	}
	if err := d.FinishDecompress(); err != nil {
		return nil, err
	}
	return flat, nil
}

// subsampleRatio maps sampling factors onto the image package's YCbCr
// layouts.
func subsampleRatio(comps []rawmcu.Component) (image.YCbCrSubsampleRatio, bool) {
	if len(comps) != 3 ||
		comps[1].HSampFactor != 1 || comps[1].VSampFactor != 1 ||
		comps[2].HSampFactor != 1 || comps[2].VSampFactor != 1 {
		return 0, false
	}
	switch {
	case comps[0].HSampFactor == 1 && comps[0].VSampFactor == 1:
		return image.YCbCrSubsampleRatio444, true
	case comps[0].HSampFactor == 2 && comps[0].VSampFactor == 1:
		return image.YCbCrSubsampleRatio422, true
	case comps[0].HSampFactor == 2 && comps[0].VSampFactor == 2:
		return image.YCbCrSubsampleRatio420, true
	}
	return 0, false
}
