package render

import (
	"fmt"
	"image"
	"image/color"
	"runtime"

	"github.com/soilfauna/go-soilfauna/postprocess/result"
	"gocv.io/x/gocv"
)

// boxLabel defines where an annotation label should be rendered on the
// source image
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// SegmentMask renders the foreground of the mask as a transparent overlay
// on top of the whole image
func SegmentMask(img *gocv.Mat, mask result.Mask, clr color.RGBA, alpha float32) error {

	width := img.Cols()
	height := img.Rows()

	if mask.Width != width || mask.Height != height {
		return fmt.Errorf("mask %dx%d does not match image %dx%d",
			mask.Width, mask.Height, width, height)
	}

	// it is too slow to manipulate pixel by pixel using GoCV due to slowness
	// over CGO.  So we copy the bytes from the source image and manipulate
	// the bytes directly before copying back to a Mat
	imgData := img.ToBytes()

	for idx, v := range mask.Pix {
		if v == 0 {
			continue
		}

		pixelPos := idx * 3

		b, g, r := imgData[pixelPos+0], imgData[pixelPos+1], imgData[pixelPos+2]

		imgData[pixelPos+0] = uint8(float32(b)*(1-alpha) + float32(clr.B)*alpha)
		imgData[pixelPos+1] = uint8(float32(g)*(1-alpha) + float32(clr.G)*alpha)
		imgData[pixelPos+2] = uint8(float32(r)*(1-alpha) + float32(clr.R)*alpha)
	}

	// copy back to the original mat
	tmpImg, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, imgData)

	if err != nil {
		return fmt.Errorf("error creating overlay Mat: %w", err)
	}

	defer tmpImg.Close()
	tmpImg.CopyTo(img)
	runtime.KeepAlive(imgData)

	return nil
}

// findTopPoint finds the highest point (Y axis) of the polygon
func findTopPoint(poly result.Polygon) image.Point {
	top := poly[0].Pt()

	for _, pt := range poly[1:] {
		if pt.Y < top.Y {
			top = pt.Pt()
		}
	}

	return top
}

// SegmentOutline draws the outline of every polygon in its own color and
// labels it with its annotation number and area
func SegmentOutline(img *gocv.Mat, polygons []result.Polygon, font Font,
	lineThickness int) {

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0, len(polygons))

	for i, poly := range polygons {

		if len(poly) < 3 {
			continue
		}

		useClr := classColors[i%len(classColors)]

		pts := make([]image.Point, len(poly))

		for j, pt := range poly {
			pts[j] = pt.Pt()
		}

		ptsVec := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
		gocv.Polylines(img, ptsVec, true, useClr, lineThickness)
		ptsVec.Close()

		text := fmt.Sprintf("%d %.0fpx", i+1, poly.Area())
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		bounds := poly.Bounds()
		topPoint := findTopPoint(poly)

		var centerX int

		switch font.Alignment {
		case Center:
			centerX = bounds[0] + bounds[2]/2

		case Right:
			centerX = bounds[0] + bounds[2] - (textSize.X / 2) - font.RightPad

		case Left:
			fallthrough
		default:
			centerX = bounds[0] + (textSize.X / 2) + font.LeftPad
		}

		labelPosition := image.Pt(centerX-textSize.X/2, topPoint.Y-font.BottomPad)

		bRect := image.Rect(centerX-textSize.X/2-font.LeftPad,
			topPoint.Y-textSize.Y-font.TopPad-font.BottomPad,
			centerX+textSize.X/2+font.RightPad, topPoint.Y)

		boxLabels = append(boxLabels, boxLabel{
			rect:    bRect,
			clr:     useClr,
			text:    text,
			textPos: labelPosition,
		})
	}

	drawLabels(img, boxLabels, font)
}

// drawLabels draws all precalculated box labels so they are the top most
// layer on the image and don't get overlapped with outlines
func drawLabels(img *gocv.Mat, labels []boxLabel, font Font) {
	for _, box := range labels {
		// draw box text gets written on
		gocv.Rectangle(img, box.rect, box.clr, -1)

		gocv.PutTextWithParams(img, box.text, box.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}

// PaintSegmentToFile paints the mask on a black canvas and writes it to an
// image file
func PaintSegmentToFile(filename string, mask result.Mask, alpha float32) error {

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0),
		mask.Height, mask.Width, gocv.MatTypeCV8UC3)
	defer img.Close()

	if err := SegmentMask(&img, mask, White, alpha); err != nil {
		return err
	}

	if gocv.IMWrite(filename, img) {
		return nil
	}

	return fmt.Errorf("failed to write to file %s", filename)
}
