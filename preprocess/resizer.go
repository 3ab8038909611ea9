package preprocess

import (
	"image"
	"image/color"

	"github.com/soilfauna/go-soilfauna/postprocess/result"
	"gocv.io/x/gocv"
)

// Resizer defines the struct used for handling image resizing
type Resizer struct {
	// srcWidth is the width of the source image
	srcWidth int
	// srcHeight is the height of the source image
	srcHeight int
	// destWidth is the width to scale to
	destWidth int
	// destHeight is the height to scale to
	destHeight int
	// topLeft anchors the resized image in the top left corner with all padding
	// added to the right and bottom, rather than centering it
	topLeft bool
	// tempMat is a Mat used during the resize process
	tempMat gocv.Mat
	// letterbox parameters used in scaling
	xPad  int
	yPad  int
	scale float32
	// resize dimensions
	resizeW int
	resizeH int
}

// NewResizer returns a resizer used for scaling an image to the needed
// dimensions with the scaled image centered in the destination
func NewResizer(srcWidth, srcHeight, destWidth, destHeight int) *Resizer {
	return newResizer(srcWidth, srcHeight, destWidth, destHeight, false)
}

// NewTopLeftResizer returns a resizer that scales the longest side of the
// image to fit the destination and pads only the right and bottom edges, the
// layout expected by the segmentation model's image encoder
func NewTopLeftResizer(srcWidth, srcHeight, destWidth, destHeight int) *Resizer {
	return newResizer(srcWidth, srcHeight, destWidth, destHeight, true)
}

func newResizer(srcWidth, srcHeight, destWidth, destHeight int, topLeft bool) *Resizer {
	r := &Resizer{
		srcWidth:   srcWidth,
		srcHeight:  srcHeight,
		destWidth:  destWidth,
		destHeight: destHeight,
		topLeft:    topLeft,
		tempMat:    gocv.NewMat(),
	}

	// precalculate scaling dimensions
	r.preCalc()

	return r
}

// Close frees memory allocated during resize process
func (r *Resizer) Close() error {
	return r.tempMat.Close()
}

// preCalc the scaling factors for source and destination Mats
func (r *Resizer) preCalc() {

	r.resizeW = r.destWidth
	r.resizeH = r.destHeight

	scaleW := float32(r.destWidth) / float32(r.srcWidth)
	scaleH := float32(r.destHeight) / float32(r.srcHeight)
	r.scale = scaleH

	if scaleW < scaleH {
		r.scale = scaleW
		r.resizeH = int(float32(r.srcHeight) * r.scale)
	} else {
		r.resizeW = int(float32(r.srcWidth) * r.scale)
	}

	if r.topLeft {
		r.xPad, r.yPad = 0, 0
		return
	}

	r.yPad = (r.destHeight - r.resizeH) / 2 // padding height / 2
	r.xPad = (r.destWidth - r.resizeW) / 2  // padding width / 2
}

// LetterBoxResize resizes the input image to the destination dimensions
// whilst maintaining image aspect.  Color is that used for padding.
func (r *Resizer) LetterBoxResize(src gocv.Mat, dest *gocv.Mat, color color.RGBA) {

	gocv.Resize(src, &r.tempMat, image.Pt(r.resizeW, r.resizeH),
		0, 0, gocv.InterpolationLinear)

	gocv.CopyMakeBorder(r.tempMat, dest, r.yPad, r.destHeight-r.resizeH-r.yPad,
		r.xPad, r.destWidth-r.resizeW-r.xPad, gocv.BorderConstant, color)
}

// ToModel maps a point in the source image to the resized destination frame
func (r *Resizer) ToModel(pt result.LocalPoint) (float32, float32) {
	return float32(pt.X)*r.scale + float32(r.xPad),
		float32(pt.Y)*r.scale + float32(r.yPad)
}

// ScaleFactor returns the scale factor used in letterbox resize
func (r *Resizer) ScaleFactor() float32 {
	return r.scale
}

// XPad returns the x padding used in letterbox resize
func (r *Resizer) XPad() int {
	return r.xPad
}

// YPad returns the y padding used in letterbox resize
func (r *Resizer) YPad() int {
	return r.yPad
}

// ResizedWidth returns the width of the scaled image before padding
func (r *Resizer) ResizedWidth() int {
	return r.resizeW
}

// ResizedHeight returns the height of the scaled image before padding
func (r *Resizer) ResizedHeight() int {
	return r.resizeH
}

// SrcWidth returns the width of the source image
func (r *Resizer) SrcWidth() int {
	return r.srcWidth
}

// SrcHeight returns the height of the source image
func (r *Resizer) SrcHeight() int {
	return r.srcHeight
}
