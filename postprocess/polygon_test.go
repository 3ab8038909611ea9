package postprocess

import (
	"errors"
	"testing"

	"github.com/soilfauna/go-soilfauna/postprocess/result"
)

// contourOf builds a contour from x,y pairs
func contourOf(xy ...int) result.Contour {
	c := make(result.Contour, 0, len(xy)/2)

	for i := 0; i+1 < len(xy); i += 2 {
		c = append(c, result.ImagePoint{X: xy[i], Y: xy[i+1]})
	}

	return c
}

func TestValidatePolygonTriangle(t *testing.T) {

	poly, err := ValidatePolygon(contourOf(0, 0, 4, 0, 0, 3))

	if err != nil {
		t.Fatalf("triangle rejected: %v", err)
	}

	if len(poly) != 4 || poly[0] != poly[3] {
		t.Errorf("expected closed ring of 4 points, got %v", poly)
	}

	if poly.Area() != 6.0 {
		t.Errorf("expected area 6, got %f", poly.Area())
	}

	if poly.Bounds() != [4]int{0, 0, 4, 3} {
		t.Errorf("expected bbox [0 0 4 3], got %v", poly.Bounds())
	}
}

func TestValidatePolygonRejects(t *testing.T) {

	tests := []struct {
		name    string
		contour result.Contour
	}{
		{"bowtie", contourOf(0, 0, 4, 4, 4, 0, 0, 4, 0, 0)},
		{"two points", contourOf(0, 0, 4, 4)},
		{"duplicates collapse", contourOf(1, 1, 1, 1, 2, 2, 2, 2, 1, 1)},
		{"collinear", contourOf(0, 0, 2, 0, 4, 0)},
		{"spike", contourOf(0, 0, 4, 0, 4, 4, 8, 4, 4, 4, 0, 4)},
		{"figure eight", contourOf(0, 0, 2, 0, 2, 2, 4, 2, 4, 4, 2, 4, 2, 2, 0, 2)},
		{"uneven bowtie", contourOf(0, 0, 6, 6, 6, 0, 0, 3)},
		{"empty", nil},
	}

	for _, tc := range tests {
		_, err := ValidatePolygon(tc.contour)

		if !errors.Is(err, ErrDegenerateGeometry) {
			t.Errorf("%s: expected ErrDegenerateGeometry, got %v", tc.name, err)
		}
	}
}

func TestValidatePolygonCloses(t *testing.T) {

	tests := []struct {
		name    string
		contour result.Contour
		area    float64
	}{
		{"open square", contourOf(0, 0, 10, 0, 10, 10, 0, 10), 100},
		{"closed square", contourOf(0, 0, 10, 0, 10, 10, 0, 10, 0, 0), 100},
		{"clockwise square", contourOf(0, 0, 0, 10, 10, 10, 10, 0), 100},
		{"repeated vertex", contourOf(0, 0, 10, 0, 10, 0, 10, 10, 0, 10), 100},
		{"concave", contourOf(0, 0, 6, 0, 6, 6, 4, 6, 4, 2, 2, 2, 2, 6, 0, 6), 28},
	}

	for _, tc := range tests {
		poly, err := ValidatePolygon(tc.contour)

		if err != nil {
			t.Errorf("%s: rejected: %v", tc.name, err)
			continue
		}

		if poly[0] != poly[len(poly)-1] {
			t.Errorf("%s: ring not closed %v", tc.name, poly)
		}

		if poly.Area() != tc.area {
			t.Errorf("%s: expected area %f, got %f", tc.name, tc.area, poly.Area())
		}

		flat := poly.Flatten()

		if len(flat)%2 != 0 || len(flat) < 8 {
			t.Errorf("%s: bad flattened length %d", tc.name, len(flat))
		}
	}
}
