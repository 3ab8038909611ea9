package dataset

import (
	"fmt"
	"image"
	"image/draw"
	"os"

	"github.com/chai2010/webp"
	"gocv.io/x/gocv"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Load reads the item's image as a BGR Mat.  The caller must Close it
func (it Item) Load() (gocv.Mat, error) {
	return LoadImage(it.Path)
}

// LoadImage reads an image file as a 3 channel BGR Mat.  JPEG and PNG are
// decoded by OpenCV, TIFF, BMP and WebP by pure Go decoders so scanner and
// web exports load the same regardless of how OpenCV was built
func LoadImage(path string) (gocv.Mat, error) {

	switch fileExtension(path) {
	case "tif", "tiff", "bmp", "webp":
		img, err := decodeGo(path)

		if err != nil {
			return gocv.NewMat(), err
		}

		mat, err := gocv.ImageToMatRGB(toRGBA(img))

		if err != nil {
			return gocv.NewMat(), fmt.Errorf("%w: error converting %s: %v", ErrInput, path, err)
		}

		return mat, nil
	}

	if _, err := os.Stat(path); err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrInput, err)
	}

	mat := gocv.IMRead(path, gocv.IMReadColor)

	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("%w: error reading image %s", ErrInput, path)
	}

	return mat, nil
}

// toRGBA converts an image to RGBA, the layout gocv converts by copying into
// a new Mat rather than wrapping Go memory
func toRGBA(img image.Image) *image.RGBA {

	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}

	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	return rgba
}

// decodeGo decodes the formats handled outside of OpenCV
func decodeGo(path string) (image.Image, error) {

	f, err := os.Open(path)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInput, err)
	}

	defer f.Close()

	var img image.Image

	switch fileExtension(path) {
	case "tif", "tiff":
		img, err = tiff.Decode(f)
	case "bmp":
		img, err = bmp.Decode(f)
	case "webp":
		img, err = webp.Decode(f)
	default:
		err = fmt.Errorf("unsupported format")
	}

	if err != nil {
		return nil, fmt.Errorf("%w: error decoding %s: %v", ErrInput, path, err)
	}

	return img, nil
}
