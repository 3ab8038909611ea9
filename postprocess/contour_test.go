package postprocess

import (
	"errors"
	"testing"

	"github.com/soilfauna/go-soilfauna/postprocess/result"
	"gocv.io/x/gocv"
)

// fillRect marks [x1,x2) x [y1,y2) of the mask as foreground
func fillRect(m result.Mask, x1, y1, x2, y2 int) {
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			m.Set(x, y)
		}
	}
}

func TestExtractContours(t *testing.T) {

	mask := result.NewMask(60, 40)
	fillRect(mask, 5, 5, 15, 15)
	fillRect(mask, 30, 10, 50, 30)

	// hole in the second region is not reported
	for y := 15; y < 25; y++ {
		for x := 35; x < 45; x++ {
			mask.Pix[y*60+x] = 0
		}
	}

	ext := NewContourExtractor(gocv.ChainApproxTC89L1)
	contours, err := ext.Extract(mask)

	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	if len(contours) != 2 {
		t.Fatalf("expected 2 external contours, got %d", len(contours))
	}

	again, err := ext.Extract(mask)

	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	for i := range contours {
		if len(contours[i]) != len(again[i]) {
			t.Fatalf("contour order not stable")
		}
	}

	for _, c := range contours {
		poly, err := ValidatePolygon(c)

		if err != nil {
			t.Errorf("rectangle contour rejected: %v", err)
			continue
		}

		bbox := poly.Bounds()

		if bbox != [4]int{5, 5, 9, 9} && bbox != [4]int{30, 10, 19, 19} {
			t.Errorf("unexpected bbox %v", bbox)
		}
	}
}

func TestExtractEmpty(t *testing.T) {

	ext := NewContourExtractor(gocv.ChainApproxSimple)
	contours, err := ext.Extract(result.NewMask(20, 20))

	if err != nil || len(contours) != 0 {
		t.Errorf("expected no contours, got %d, err %v", len(contours), err)
	}

	if _, err := ext.Extract(result.Mask{Width: 5, Height: 5}); !errors.Is(err, ErrMaskShape) {
		t.Errorf("expected ErrMaskShape, got %v", err)
	}
}

func TestParseApproximation(t *testing.T) {

	tests := []struct {
		name     string
		expected gocv.ContourApproximationMode
	}{
		{"none", gocv.ChainApproxNone},
		{"simple", gocv.ChainApproxSimple},
		{"TC89_L1", gocv.ChainApproxTC89L1},
		{"tc89_kcos", gocv.ChainApproxTC89KCOS},
		{"", gocv.ChainApproxTC89L1},
	}

	for _, tc := range tests {
		got, err := ParseApproximation(tc.name)

		if err != nil || got != tc.expected {
			t.Errorf("%q: expected %v, got %v err %v", tc.name, tc.expected, got, err)
		}
	}

	if _, err := ParseApproximation("bogus"); err == nil {
		t.Errorf("expected error for unknown approximation")
	}
}
