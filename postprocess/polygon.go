package postprocess

import (
	"errors"
	"fmt"

	clipper "github.com/ctessum/go.clipper"
	"github.com/soilfauna/go-soilfauna/postprocess/result"
)

// ErrDegenerateGeometry is returned when a contour can not be turned into a
// valid polygon
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// ValidatePolygon converts a raw contour into a closed simple polygon.  The
// contour is rejected, with an error wrapping ErrDegenerateGeometry, if it
// has fewer than 3 distinct points, encloses no area, doubles back on itself
// or self intersects
func ValidatePolygon(contour result.Contour) (result.Polygon, error) {

	pts := dedupe(contour)

	if len(pts) < 3 {
		return nil, fmt.Errorf("%w: %d distinct points", ErrDegenerateGeometry, len(pts))
	}

	area := result.ShoelaceArea(pts)

	if area == 0 {
		return nil, fmt.Errorf("%w: zero area", ErrDegenerateGeometry)
	}

	if i := findSpike(pts); i >= 0 {
		return nil, fmt.Errorf("%w: ring doubles back at vertex %v", ErrDegenerateGeometry, pts[i])
	}

	if i := findRevisit(pts); i >= 0 {
		return nil, fmt.Errorf("%w: ring touches itself at vertex %v", ErrDegenerateGeometry, pts[i])
	}

	if !isSimpleRing(pts, area) {
		return nil, fmt.Errorf("%w: self-intersecting ring", ErrDegenerateGeometry)
	}

	// close the ring
	poly := make(result.Polygon, len(pts), len(pts)+1)
	copy(poly, pts)
	poly = append(poly, pts[0])

	return poly, nil
}

// dedupe drops consecutive repeated points and a trailing point that
// repeats the first, leaving the open ring
func dedupe(contour result.Contour) []result.ImagePoint {

	pts := make([]result.ImagePoint, 0, len(contour))

	for _, pt := range contour {
		if len(pts) > 0 && pts[len(pts)-1] == pt {
			continue
		}

		pts = append(pts, pt)
	}

	for len(pts) > 1 && pts[len(pts)-1] == pts[0] {
		pts = pts[:len(pts)-1]
	}

	return pts
}

// findSpike returns the index of the first vertex where the ring reverses
// along the same line, as happens when a contour traces a one pixel wide
// strand out and back.  Returns -1 if there is none
func findSpike(pts []result.ImagePoint) int {

	n := len(pts)

	for i := 0; i < n; i++ {
		prev := pts[(i+n-1)%n]
		cur := pts[i]
		next := pts[(i+1)%n]

		ax, ay := int64(cur.X-prev.X), int64(cur.Y-prev.Y)
		bx, by := int64(next.X-cur.X), int64(next.Y-cur.Y)

		if ax*by-ay*bx == 0 && ax*bx+ay*by < 0 {
			return i
		}
	}

	return -1
}

// findRevisit returns the index of the first vertex the ring passes through
// more than once, or -1 if every vertex is unique
func findRevisit(pts []result.ImagePoint) int {

	seen := make(map[result.ImagePoint]struct{}, len(pts))

	for i, pt := range pts {
		if _, ok := seen[pt]; ok {
			return i
		}

		seen[pt] = struct{}{}
	}

	return -1
}

// isSimpleRing reports whether the ring is simple by resolving it with a
// non-zero fill union.  A simple ring resolves to exactly one strictly
// simple ring enclosing the same area, where a self intersecting or self
// touching ring is split into several rings or changes area
func isSimpleRing(pts []result.ImagePoint, area float64) bool {

	var path clipper.Path

	for _, pt := range pts {
		path = append(path, &clipper.IntPoint{X: clipper.CInt(pt.X), Y: clipper.CInt(pt.Y)})
	}

	c := clipper.NewClipper(clipper.IoStrictlySimple)
	c.AddPath(path, clipper.PtSubject, true)

	solution, ok := c.Execute1(clipper.CtUnion, clipper.PftNonZero, clipper.PftNonZero)

	if !ok || len(solution) != 1 {
		return false
	}

	out := make([]result.ImagePoint, len(solution[0]))

	for i, pt := range solution[0] {
		out[i] = result.ImagePoint{X: int(pt.X), Y: int(pt.Y)}
	}

	return result.ShoelaceArea(out) == area
}
