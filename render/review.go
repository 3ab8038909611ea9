package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/soilfauna/go-soilfauna/postprocess/result"
	"gocv.io/x/gocv"
)

// Overlay is everything drawn on a review image of one annotated image
type Overlay struct {
	Group    string
	FileName string
	// Image is the BGR source image, it is not modified
	Image    gocv.Mat
	Mask     result.Mask
	Polygons []result.Polygon
	Tiles    []result.Placement
	Centers  []result.CandidateCenter
}

// ReviewParams defines how review images are drawn
type ReviewParams struct {
	// MaskAlpha is the opacity of the mask tint
	MaskAlpha float32
	// LineThickness of polygon outlines
	LineThickness int
	// CenterRadius of candidate center markers, 0 disables them
	CenterRadius int
	// ShowTiles draws the tile grid
	ShowTiles bool
	// MaxWidth downscales previews wider than this, 0 keeps full size
	MaxWidth int
	// JPEGQuality used when writing .jpg previews
	JPEGQuality int
	Font        Font
}

// DefaultReviewParams returns review settings suited to full resolution tray
// photographs
func DefaultReviewParams() ReviewParams {
	return ReviewParams{
		MaskAlpha:     0.4,
		LineThickness: 2,
		CenterRadius:  4,
		ShowTiles:     true,
		MaxWidth:      1280,
		JPEGQuality:   90,
		Font:          DefaultFont(),
	}
}

// ReviewWriter draws overlays and writes them as preview images under
// <dir>/<group>/<stem>_review.jpg
type ReviewWriter struct {
	dir    string
	params ReviewParams
}

// NewReviewWriter returns a ReviewWriter writing previews to dir
func NewReviewWriter(dir string, params ReviewParams) *ReviewWriter {
	return &ReviewWriter{
		dir:    dir,
		params: params,
	}
}

// PreviewPath returns the file a preview for the given image is written to
func (r *ReviewWriter) PreviewPath(group, fileName string) string {
	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	return filepath.Join(r.dir, group, stem+"_review.jpg")
}

// Draw renders the overlay on a copy of its image.  The caller must Close
// the returned Mat
func (r *ReviewWriter) Draw(o Overlay) (gocv.Mat, error) {

	canvas := o.Image.Clone()

	if len(o.Mask.Pix) > 0 {
		if err := SegmentMask(&canvas, o.Mask, Pink, r.params.MaskAlpha); err != nil {
			canvas.Close()
			return gocv.NewMat(), err
		}
	}

	if r.params.ShowTiles {
		TileBoxes(&canvas, o.Tiles, r.params.Font, 1)
	}

	SegmentOutline(&canvas, o.Polygons, r.params.Font, r.params.LineThickness)

	if r.params.CenterRadius > 0 {
		CenterPoints(&canvas, o.Centers, r.params.CenterRadius)
	}

	return canvas, nil
}

// Write draws the overlay and saves it as a preview image, downscaled to
// MaxWidth.  Returns the path written
func (r *ReviewWriter) Write(o Overlay) (string, error) {

	canvas, err := r.Draw(o)

	if err != nil {
		return "", err
	}

	defer canvas.Close()

	img, err := canvas.ToImage()

	if err != nil {
		return "", fmt.Errorf("error converting preview: %w", err)
	}

	if r.params.MaxWidth > 0 && img.Bounds().Dx() > r.params.MaxWidth {
		img = imaging.Resize(img, r.params.MaxWidth, 0, imaging.Lanczos)
	}

	path := r.PreviewPath(o.Group, o.FileName)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("error creating preview directory: %w", err)
	}

	if err := imaging.Save(img, path, imaging.JPEGQuality(r.params.JPEGQuality)); err != nil {
		return "", fmt.Errorf("error saving preview: %w", err)
	}

	return path, nil
}

// Review writes the preview of an annotated image
func (r *ReviewWriter) Review(o Overlay) error {
	_, err := r.Write(o)
	return err
}
