package result

// Mask is a binary foreground mask stored row-major, one byte per pixel.  A
// pixel value of 0 is background and 1 is foreground
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewMask returns an all background mask of the given dimensions
func NewMask(width, height int) Mask {
	return Mask{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
}

// MaskFromBytes creates a mask from a single channel buffer, any non-zero
// value is treated as foreground
func MaskFromBytes(width, height int, data []uint8) Mask {
	m := NewMask(width, height)

	for i := 0; i < len(m.Pix) && i < len(data); i++ {
		if data[i] != 0 {
			m.Pix[i] = 1
		}
	}

	return m
}

// At reports whether the pixel at (x, y) is foreground
func (m Mask) At(x, y int) bool {
	return m.Pix[y*m.Width+x] != 0
}

// Set marks the pixel at (x, y) as foreground
func (m Mask) Set(x, y int) {
	m.Pix[y*m.Width+x] = 1
}

// Count returns the number of foreground pixels
func (m Mask) Count() int {
	n := 0

	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}

	return n
}

// Equal reports whether both masks have the same dimensions and foreground
// pixels
func (m Mask) Equal(o Mask) bool {
	if m.Width != o.Width || m.Height != o.Height || len(m.Pix) != len(o.Pix) {
		return false
	}

	for i := range m.Pix {
		if (m.Pix[i] != 0) != (o.Pix[i] != 0) {
			return false
		}
	}

	return true
}

// Scaled returns a copy of the mask with foreground pixels set to 255, the
// form OpenCV contour and drawing functions expect
func (m Mask) Scaled() []uint8 {
	buf := make([]uint8, len(m.Pix))

	for i, v := range m.Pix {
		if v != 0 {
			buf[i] = 255
		}
	}

	return buf
}

// TileMask is a segmentation mask in crop-local coordinates paired with the
// placement of that crop in the source image
type TileMask struct {
	Placement Placement
	Mask      Mask
}
