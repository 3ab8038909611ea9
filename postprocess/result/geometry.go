package result

import (
	"fmt"
	"image"
)

// LocalPoint is a pixel coordinate in the frame of a single tile/crop, where
// (0,0) is the crop's top left corner
type LocalPoint struct {
	X int
	Y int
}

// ImagePoint is a pixel coordinate in the frame of the whole source image
type ImagePoint struct {
	X int
	Y int
}

// Pt returns the point as an image.Point for use with gocv
func (p LocalPoint) Pt() image.Point {
	return image.Pt(p.X, p.Y)
}

// Pt returns the point as an image.Point for use with gocv
func (p ImagePoint) Pt() image.Point {
	return image.Pt(p.X, p.Y)
}

// Placement is the rectangle a crop occupies in the source image frame.  X2
// and Y2 are exclusive, so the crop covers columns [X1,X2) and rows [Y1,Y2)
type Placement struct {
	X1 int
	Y1 int
	X2 int
	Y2 int
}

// Width of the placement in pixels
func (p Placement) Width() int {
	return p.X2 - p.X1
}

// Height of the placement in pixels
func (p Placement) Height() int {
	return p.Y2 - p.Y1
}

// Rect returns the placement as an image.Rectangle for slicing gocv Mats
func (p Placement) Rect() image.Rectangle {
	return image.Rect(p.X1, p.Y1, p.X2, p.Y2)
}

// Valid checks 0 <= X1 < X2 <= width and 0 <= Y1 < Y2 <= height
func (p Placement) Valid(width, height int) bool {
	return p.X1 >= 0 && p.X1 < p.X2 && p.X2 <= width &&
		p.Y1 >= 0 && p.Y1 < p.Y2 && p.Y2 <= height
}

// ToImage projects a crop-local point into the source image frame
func (p Placement) ToImage(pt LocalPoint) ImagePoint {
	return ImagePoint{X: p.X1 + pt.X, Y: p.Y1 + pt.Y}
}

// ToLocal projects a source image point into this crop's frame
func (p Placement) ToLocal(pt ImagePoint) LocalPoint {
	return LocalPoint{X: pt.X - p.X1, Y: pt.Y - p.Y1}
}

// Contains reports whether the image point falls inside the placement
func (p Placement) Contains(pt ImagePoint) bool {
	return pt.X >= p.X1 && pt.X < p.X2 && pt.Y >= p.Y1 && pt.Y < p.Y2
}

func (p Placement) String() string {
	return fmt.Sprintf("(%d %d %d %d)", p.X1, p.Y1, p.X2, p.Y2)
}

// CandidateCenter is a point used to prompt the segmentation model, paired
// with the placement of the crop it was found in
type CandidateCenter struct {
	Point     LocalPoint
	Placement Placement
}

// ImagePoint returns the center in the source image frame
func (c CandidateCenter) ImagePoint() ImagePoint {
	return c.Placement.ToImage(c.Point)
}

// Contour is a raw boundary traced around a foreground region of a whole
// image mask
type Contour []ImagePoint

// Polygon is a validated, closed (first == last) simple ring in the image
// frame
type Polygon []ImagePoint

// Flatten returns the vertices as [x1,y1,x2,y2,...]
func (p Polygon) Flatten() []int {
	flat := make([]int, 0, len(p)*2)

	for _, pt := range p {
		flat = append(flat, pt.X, pt.Y)
	}

	return flat
}

// Bounds returns the axis aligned bounding box of the polygon as
// [minx, miny, width, height] computed from the vertex extrema
func (p Polygon) Bounds() [4]int {
	if len(p) == 0 {
		return [4]int{}
	}

	minX, minY := p[0].X, p[0].Y
	maxX, maxY := p[0].X, p[0].Y

	for _, pt := range p[1:] {
		minX = min(minX, pt.X)
		minY = min(minY, pt.Y)
		maxX = max(maxX, pt.X)
		maxY = max(maxY, pt.Y)
	}

	return [4]int{minX, minY, maxX - minX, maxY - minY}
}

// Area returns the planar area enclosed by the ring using the shoelace
// formula.  The result is always non-negative
func (p Polygon) Area() float64 {
	return ShoelaceArea(p)
}

// ShoelaceArea returns the absolute area of the ring described by pts.  The
// ring is treated as closed whether or not the last point repeats the first
func ShoelaceArea(pts []ImagePoint) float64 {
	n := len(pts)

	if n < 3 {
		return 0
	}

	var sum int64

	for i := 0; i < n; i++ {
		a := pts[i]
		b := pts[(i+1)%n]
		sum += int64(a.X)*int64(b.Y) - int64(b.X)*int64(a.Y)
	}

	if sum < 0 {
		sum = -sum
	}

	return float64(sum) / 2.0
}
