package rawmcu

import "fmt"

// Component holds the per-plane metadata of a frame
type Component struct {
	// ID is the component's index within the frame
	ID int

	// HSampFactor is the horizontal sampling factor relative to the
	// frame's highest-resolution component
	HSampFactor int

	// VSampFactor is the vertical sampling factor
	VSampFactor int

	// RowStride is the padded byte width of one plane row; filled in
	// by ComputeStrides when a session starts
	RowStride int

	// ColStride is the padded number of plane rows
	ColStride int
}

// Frame describes the image one session processes.
type Frame struct {
	Width      int
	Height     int
	ColorSpace ColorSpace
	Components []Component
}

// MaxSampling returns the largest horizontal and vertical sampling
// factors across all components.
func (f *Frame) MaxSampling() (maxH, maxV int) {
	for _, c := range f.Components {
		if c.HSampFactor > maxH {
			maxH = c.HSampFactor
		}
		if c.VSampFactor > maxV {
			maxV = c.VSampFactor
		}
	}
	return maxH, maxV
}

// MCUHeight returns the number of full-resolution scanlines covered by
// one MCU row group.
func (f *Frame) MCUHeight(blockSize int) int {
	_, maxV := f.MaxSampling()
	return maxV * blockSize
}

// ComputeStrides fills RowStride and ColStride for every component.
func (f *Frame) ComputeStrides(blockSize int) {
	maxH, maxV := f.MaxSampling()
	for i := range f.Components {
		c := &f.Components[i]
		c.RowStride, c.ColStride = StrideFor(c.HSampFactor, c.VSampFactor,
			maxH, maxV, f.Width, f.Height, blockSize)
	}
}

// validate checks the frame configuration before any engine call.
func (f *Frame) validate(blockSize int) error {
	if f.Width <= 0 || f.Height <= 0 {
		return NewCodecError(ErrCodeBadConfiguration,
			fmt.Sprintf("frame size %dx%d is not positive", f.Width, f.Height))
	}
	if len(f.Components) == 0 {
		return NewCodecError(ErrCodeBadConfiguration, "frame has no components")
	}
	if len(f.Components) > MaxComponents {
		return NewCodecError(ErrCodeTooManyComponents,
			fmt.Sprintf("frame has %d components, maximum is %d", len(f.Components), MaxComponents))
	}
	if n := f.ColorSpace.NumComponents(); n != 0 && n != len(f.Components) {
		return NewCodecError(ErrCodeBadConfiguration,
			fmt.Sprintf("%s needs %d components, frame has %d", f.ColorSpace, n, len(f.Components)))
	}
	hasH1, hasV1 := false, false
	for _, c := range f.Components {
		if c.HSampFactor < 1 || c.HSampFactor > 4 || c.VSampFactor < 1 || c.VSampFactor > 4 {
			return NewCodecError(ErrCodeBadSampling,
				fmt.Sprintf("component %d sampling %dx%d is out of range 1..4",
					c.ID, c.HSampFactor, c.VSampFactor))
		}
		if c.HSampFactor == 1 {
			hasH1 = true
		}
		if c.VSampFactor == 1 {
			hasV1 = true
		}
	}
	if !hasH1 || !hasV1 {
		return NewCodecError(ErrCodeBadSampling,
			"at least one component must have sampling factor 1 on each axis")
	}
	if mcu := f.MCUHeight(blockSize); mcu > MaxMCUHeight {
		return NewCodecError(ErrCodeSamplingTooLarge,
			fmt.Sprintf("MCU row group of %d rows exceeds the %d-row limit", mcu, MaxMCUHeight))
	}
	return nil
}

// defaultComponents returns the component set a compression session
// starts with for the given input color space. Luma of a YCbCr frame
// defaults to 2x2 sampling (4:2:0).
func defaultComponents(cs ColorSpace) []Component {
	n := cs.NumComponents()
	comps := make([]Component, n)
	for i := range comps {
		comps[i] = Component{ID: i, HSampFactor: 1, VSampFactor: 1}
	}
	if cs == ColorSpaceYCbCr && n == 3 {
		comps[0].HSampFactor = 2
		comps[0].VSampFactor = 2
	}
	return comps
}
