package postprocess

import (
	"errors"
	"fmt"

	"github.com/soilfauna/go-soilfauna/postprocess/result"
)

// ErrMaskShape is returned when a tile mask does not match the size of its
// placement or the placement falls outside the image
var ErrMaskShape = errors.New("mask shape mismatch")

// Aggregator unions per tile masks into a single whole image mask
type Aggregator struct {
	// bufPool reuses whole image buffers between images of the same size
	bufPool *bufferPool
}

// NewAggregator returns a mask Aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{
		bufPool: newBufferPool(),
	}
}

// CheckTileMask verifies the tile mask can be placed in an image of the
// given dimensions
func CheckTileMask(tm result.TileMask, width, height int) error {

	if !tm.Placement.Valid(width, height) {
		return fmt.Errorf("%w: placement %v outside image %dx%d",
			ErrMaskShape, tm.Placement, width, height)
	}

	w, h := tm.Placement.Width(), tm.Placement.Height()

	if tm.Mask.Width != w || tm.Mask.Height != h || len(tm.Mask.Pix) != w*h {
		return fmt.Errorf("%w: mask %dx%d does not match placement %v",
			ErrMaskShape, tm.Mask.Width, tm.Mask.Height, tm.Placement)
	}

	return nil
}

// Aggregate returns a width x height mask where a pixel is foreground if any
// tile mask marks it foreground.  The union is a saturating max so the
// result does not depend on the order of tiles or on repeated tiles.  The
// returned mask should be handed back with Release once no longer needed
func (a *Aggregator) Aggregate(width, height int, tiles []result.TileMask) (result.Mask, error) {

	if width < 1 || height < 1 {
		return result.Mask{}, fmt.Errorf("%w: invalid image size %dx%d", ErrMaskShape, width, height)
	}

	for _, tm := range tiles {
		if err := CheckTileMask(tm, width, height); err != nil {
			return result.Mask{}, err
		}
	}

	full := result.Mask{
		Width:  width,
		Height: height,
		Pix:    a.bufPool.get(poolName(width, height), width*height),
	}

	for _, tm := range tiles {
		p := tm.Placement
		tw := p.Width()

		for y := 0; y < p.Height(); y++ {
			src := tm.Mask.Pix[y*tw : (y+1)*tw]
			dst := full.Pix[(p.Y1+y)*width+p.X1 : (p.Y1+y)*width+p.X2]

			for x, v := range src {
				if v != 0 {
					dst[x] = 1
				}
			}
		}
	}

	return full, nil
}

// Release returns an aggregated mask's buffer for reuse.  The mask must not
// be used afterwards
func (a *Aggregator) Release(m result.Mask) {
	a.bufPool.put(poolName(m.Width, m.Height), m.Pix)
}
