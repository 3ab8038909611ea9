package preprocess

import (
	"image"
	"image/color"
	"testing"

	"github.com/soilfauna/go-soilfauna/postprocess/result"
	"gocv.io/x/gocv"
)

var whiteRGBA = color.RGBA{R: 255, G: 255, B: 255, A: 0}

func TestFindCentersEmpty(t *testing.T) {

	finder := NewCenterFinder(DefaultCenterParams())
	place := result.Placement{X1: 0, Y1: 0, X2: 50, Y2: 50}

	// all background
	blank := solidMat(50, 50, whiteRGBA)
	defer blank.Close()

	centers, err := finder.Find(blank, place)

	if err != nil || len(centers) != 0 {
		t.Errorf("expected no centers for blank crop, got %v, err %v", centers, err)
	}

	// all foreground, no background to measure distance to
	full := solidMat(50, 50, specimenBrown)
	defer full.Close()

	centers, err = finder.Find(full, place)

	if err != nil || len(centers) != 0 {
		t.Errorf("expected no centers for uniform crop, got %v, err %v", centers, err)
	}
}

func TestFindCentersSquare(t *testing.T) {

	finder := NewCenterFinder(DefaultCenterParams())

	crop := solidMat(100, 100, whiteRGBA)
	defer crop.Close()
	gocv.Rectangle(&crop, image.Rect(45, 45, 55, 55), specimenBrown, -1)

	place := result.Placement{X1: 200, Y1: 300, X2: 300, Y2: 400}
	centers, err := finder.Find(crop, place)

	if err != nil {
		t.Fatalf("find failed: %v", err)
	}

	if len(centers) != 1 {
		t.Fatalf("expected 1 center, got %d", len(centers))
	}

	pt := centers[0].Point

	if pt.X < 47 || pt.X > 52 || pt.Y < 47 || pt.Y > 52 {
		t.Errorf("center %v not near middle of square", pt)
	}

	if centers[0].Placement != place {
		t.Errorf("center placement %v, expected %v", centers[0].Placement, place)
	}

	img := centers[0].ImagePoint()

	if img.X != pt.X+200 || img.Y != pt.Y+300 {
		t.Errorf("image point %v not projected from %v", img, pt)
	}
}

func TestFindCentersMultiple(t *testing.T) {

	finder := NewCenterFinder(DefaultCenterParams())

	crop := solidMat(100, 100, whiteRGBA)
	defer crop.Close()
	gocv.Rectangle(&crop, image.Rect(10, 10, 30, 30), specimenBrown, -1)
	gocv.Rectangle(&crop, image.Rect(60, 60, 80, 80), specimenBrown, -1)

	centers, err := finder.Find(crop, result.Placement{X2: 100, Y2: 100})

	if err != nil {
		t.Fatalf("find failed: %v", err)
	}

	if len(centers) != 2 {
		t.Fatalf("expected 2 centers, got %d", len(centers))
	}
}

func TestContourMoments(t *testing.T) {

	square := []image.Point{{0, 0}, {4, 0}, {4, 4}, {0, 4}}

	for _, pts := range [][]image.Point{square, {square[3], square[2], square[1], square[0]}} {
		m00, m10, m01 := contourMoments(pts)

		if m00 != 16 {
			t.Errorf("expected m00 16, got %f", m00)
		}

		if m10/m00 != 2 || m01/m00 != 2 {
			t.Errorf("expected centroid (2,2), got (%f,%f)", m10/m00, m01/m00)
		}
	}

	if m00, _, _ := contourMoments([]image.Point{{0, 0}, {3, 3}}); m00 != 0 {
		t.Errorf("expected zero mass for a line, got %f", m00)
	}
}
