package render

import (
	"fmt"
	"image"

	"github.com/soilfauna/go-soilfauna/postprocess/result"
	"gocv.io/x/gocv"
)

// TileBoxes renders the outline of every tile placement labelled with its
// tile index so overlapping padding is visible
func TileBoxes(img *gocv.Mat, places []result.Placement, font Font, lineThickness int) {

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0, len(places))

	for i, p := range places {

		gocv.Rectangle(img, p.Rect(), Yellow, lineThickness)

		text := fmt.Sprintf("tile %d", i)
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		// labels sit inside the tile as tiles on the top row have no room
		// above them
		labelTop := p.Y1 + textSize.Y + font.TopPad + font.BottomPad

		var left int

		switch font.Alignment {
		case Center:
			left = (p.X1+p.X2)/2 - textSize.X/2 - font.LeftPad

		case Right:
			left = p.X2 - textSize.X - font.LeftPad - font.RightPad

		case Left:
			fallthrough
		default:
			left = p.X1
		}

		boxLabels = append(boxLabels, boxLabel{
			rect:    image.Rect(left, p.Y1, left+textSize.X+font.LeftPad+font.RightPad, labelTop),
			clr:     Yellow,
			text:    text,
			textPos: image.Pt(left+font.LeftPad, labelTop-font.BottomPad),
		})
	}

	drawLabels(img, boxLabels, Font{
		Face:      font.Face,
		Scale:     font.Scale,
		Color:     Black,
		Thickness: font.Thickness,
		LineType:  font.LineType,
	})
}

// CenterPoints renders the candidate centers used to prompt the model as
// filled circles in the image frame
func CenterPoints(img *gocv.Mat, centers []result.CandidateCenter, radius int) {
	for _, c := range centers {
		pt := c.ImagePoint().Pt()
		gocv.Circle(img, pt, radius, Pink, -1)
		gocv.Circle(img, pt, radius+1, Black, 1)
	}
}
