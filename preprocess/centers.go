package preprocess

import (
	"fmt"
	"image"

	"github.com/soilfauna/go-soilfauna/postprocess/result"
	"gocv.io/x/gocv"
)

// CenterParams defines the parameters used to find candidate specimen centers
type CenterParams struct {
	// PeakThreshold is the fraction, from 0.0 to 1.0, of the maximum distance
	// transform value below which pixels are discarded when isolating peaks
	PeakThreshold float32
}

// DefaultCenterParams returns the default center finding parameters with a
// peak threshold of 0.2
func DefaultCenterParams() CenterParams {
	return CenterParams{
		PeakThreshold: 0.2,
	}
}

// CenterFinder locates candidate specimen centers in a background suppressed
// crop, where background pixels are pure white
type CenterFinder struct {
	Params CenterParams
}

// NewCenterFinder returns an instance of the CenterFinder
func NewCenterFinder(p CenterParams) *CenterFinder {
	return &CenterFinder{Params: p}
}

var white = gocv.NewScalar(255, 255, 255, 0)

// Find returns one candidate center per peak region of the crop's distance
// transform.  An empty foreground, or a crop with no background at all,
// returns no centers and no error
func (c *CenterFinder) Find(crop gocv.Mat, place result.Placement) ([]result.CandidateCenter, error) {

	if crop.Empty() {
		return nil, nil
	}

	if crop.Channels() != 3 {
		return nil, fmt.Errorf("expected 3 channel crop, got %d", crop.Channels())
	}

	// foreground is anything that is not pure white
	bg := gocv.NewMat()
	defer bg.Close()
	gocv.InRangeWithScalar(crop, white, white, &bg)

	fg := gocv.NewMat()
	defer fg.Close()
	gocv.BitwiseNot(bg, &fg)

	count := gocv.CountNonZero(fg)

	if count == 0 || count == fg.Rows()*fg.Cols() {
		return nil, nil
	}

	dist := gocv.NewMat()
	defer dist.Close()
	labels := gocv.NewMat()
	defer labels.Close()

	gocv.DistanceTransform(fg, &dist, &labels, gocv.DistL2, gocv.DistanceMask5,
		gocv.DistanceLabelCComp)

	_, maxVal, _, _ := gocv.MinMaxLoc(dist)

	peaks := gocv.NewMat()
	defer peaks.Close()
	gocv.Threshold(dist, &peaks, c.Params.PeakThreshold*maxVal, 255, gocv.ThresholdBinary)

	peaks8 := gocv.NewMat()
	defer peaks8.Close()
	peaks.ConvertTo(&peaks8, gocv.MatTypeCV8U)

	contours := gocv.FindContours(peaks8, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	centers := make([]result.CandidateCenter, 0, contours.Size())

	for _, pts := range contours.ToPoints() {
		m00, m10, m01 := contourMoments(pts)

		if m00 == 0 {
			continue
		}

		centers = append(centers, result.CandidateCenter{
			Point: result.LocalPoint{
				X: int(m10 / m00),
				Y: int(m01 / m00),
			},
			Placement: place,
		})
	}

	return centers, nil
}

// contourMoments returns the zeroth and first order spatial moments of the
// polygon described by a contour, computed with Green's theorem in the same
// way as OpenCV's moments() on a point set
func contourMoments(pts []image.Point) (m00, m10, m01 float64) {

	n := len(pts)

	if n < 3 {
		return 0, 0, 0
	}

	var a00, a10, a01 float64

	prev := pts[n-1]

	for _, pt := range pts {
		xi1, yi1 := float64(prev.X), float64(prev.Y)
		xi, yi := float64(pt.X), float64(pt.Y)

		dxy := xi1*yi - xi*yi1

		a00 += dxy
		a10 += dxy * (xi1 + xi)
		a01 += dxy * (yi1 + yi)

		prev = pt
	}

	m00 = a00 / 2
	m10 = a10 / 6
	m01 = a01 / 6

	// contour orientation only affects the sign
	if m00 < 0 {
		m00, m10, m01 = -m00, -m10, -m01
	}

	return m00, m10, m01
}
