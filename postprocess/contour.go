package postprocess

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/soilfauna/go-soilfauna/postprocess/result"
	"gocv.io/x/gocv"
)

// ContourExtractor traces the external boundaries of foreground regions in
// a whole image mask
type ContourExtractor struct {
	// approx is the contour approximation method
	approx gocv.ContourApproximationMode
}

// NewContourExtractor returns a ContourExtractor using the given contour
// approximation method
func NewContourExtractor(approx gocv.ContourApproximationMode) *ContourExtractor {
	return &ContourExtractor{approx: approx}
}

// ParseApproximation returns the contour approximation method for a
// configuration name, one of "none", "simple", "tc89_l1" or "tc89_kcos"
func ParseApproximation(name string) (gocv.ContourApproximationMode, error) {

	switch strings.ToLower(name) {
	case "none":
		return gocv.ChainApproxNone, nil
	case "simple":
		return gocv.ChainApproxSimple, nil
	case "tc89_l1", "":
		return gocv.ChainApproxTC89L1, nil
	case "tc89_kcos":
		return gocv.ChainApproxTC89KCOS, nil
	}

	return gocv.ChainApproxTC89L1, fmt.Errorf("unknown contour approximation %q", name)
}

// Extract returns the outer contour of every connected foreground region of
// the mask.  Holes are not reported.  The order is that returned by OpenCV
// which is stable for a given mask
func (c *ContourExtractor) Extract(mask result.Mask) ([]result.Contour, error) {

	if mask.Width < 1 || mask.Height < 1 || len(mask.Pix) != mask.Width*mask.Height {
		return nil, fmt.Errorf("%w: invalid mask %dx%d", ErrMaskShape, mask.Width, mask.Height)
	}

	buf := mask.Scaled()
	mat, err := gocv.NewMatFromBytes(mask.Height, mask.Width, gocv.MatTypeCV8U, buf)

	if err != nil {
		return nil, fmt.Errorf("error creating mask Mat: %w", err)
	}

	defer mat.Close()

	pv := gocv.FindContours(mat, gocv.RetrievalExternal, c.approx)
	defer pv.Close()

	// the Mat references buf without copying it
	runtime.KeepAlive(buf)

	contours := make([]result.Contour, 0, pv.Size())

	for _, pts := range pv.ToPoints() {
		contour := make(result.Contour, len(pts))

		for i, pt := range pts {
			contour[i] = result.ImagePoint{X: pt.X, Y: pt.Y}
		}

		contours = append(contours, contour)
	}

	return contours, nil
}
