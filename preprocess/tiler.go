package preprocess

import (
	"errors"
	"fmt"

	"github.com/soilfauna/go-soilfauna/postprocess/result"
	"gocv.io/x/gocv"
)

// ErrInvalidTiling is returned when an image can not be split into the
// requested grid of tiles
var ErrInvalidTiling = errors.New("invalid tiling")

// Tiler defines the struct used for splitting a source image into a fixed
// grid of overlapping crops
type Tiler struct {
	// rows is the number of tile rows
	rows int
	// cols is the number of tile columns
	cols int
	// padding is the number of pixels each tile is grown by on every side
	// before being clamped to the image bounds
	padding int
}

// Tile defines the struct used to store the coordinates for a tile of the
// source image along with views of the raw and background suppressed images
type Tile struct {
	// Index is the position of the tile in row-major order
	Index int
	// Row of the grid the tile belongs to
	Row int
	// Col of the grid the tile belongs to
	Col int
	// Placement is the tile's rectangle in the source image
	Placement result.Placement
	// raw is a region of the unmodified source image
	raw gocv.Mat
	// suppressed is a region of the background suppressed image
	suppressed gocv.Mat
}

// NewTiler returns a Tiler for splitting images into rows x cols tiles, each
// expanded by padding pixels on all sides
func NewTiler(rows, cols, padding int) *Tiler {
	return &Tiler{
		rows:    rows,
		cols:    cols,
		padding: padding,
	}
}

// Rows returns the number of tile rows
func (t *Tiler) Rows() int {
	return t.rows
}

// Cols returns the number of tile columns
func (t *Tiler) Cols() int {
	return t.cols
}

// Padding returns the tile padding in pixels
func (t *Tiler) Padding() int {
	return t.padding
}

// computePositions returns the unpadded start and end coordinates of each
// tile along one axis.  Tiles are srcLen/n pixels long with the final tile
// extended to the end of the axis so every pixel is covered
func (t *Tiler) computePositions(srcLen, n int) ([]int, []int) {

	stride := srcLen / n
	starts := make([]int, n)
	ends := make([]int, n)

	for i := 0; i < n; i++ {
		starts[i] = i * stride
		ends[i] = (i + 1) * stride
	}

	ends[n-1] = srcLen

	return starts, ends
}

// Placements returns the padded and clamped tile rectangles for an image of
// the given size in row-major order
func (t *Tiler) Placements(width, height int) ([]result.Placement, error) {

	if t.rows < 1 || t.cols < 1 {
		return nil, fmt.Errorf("%w: grid %dx%d must have at least one row and column",
			ErrInvalidTiling, t.rows, t.cols)
	}

	if t.padding < 0 {
		return nil, fmt.Errorf("%w: negative padding %d", ErrInvalidTiling, t.padding)
	}

	if t.rows > height || t.cols > width {
		return nil, fmt.Errorf("%w: grid %dx%d larger than image %dx%d",
			ErrInvalidTiling, t.rows, t.cols, width, height)
	}

	xs, xe := t.computePositions(width, t.cols)
	ys, ye := t.computePositions(height, t.rows)

	places := make([]result.Placement, 0, t.rows*t.cols)

	for r := 0; r < t.rows; r++ {
		for c := 0; c < t.cols; c++ {
			places = append(places, result.Placement{
				X1: max(0, xs[c]-t.padding),
				Y1: max(0, ys[r]-t.padding),
				X2: min(width, xe[c]+t.padding),
				Y2: min(height, ye[r]+t.padding),
			})
		}
	}

	return places, nil
}

// Slice slices the raw and background suppressed images into tiles.  Both
// images must be the same size.  Each returned Tile must be freed with Free()
func (t *Tiler) Slice(raw, suppressed gocv.Mat) ([]Tile, error) {

	if raw.Rows() != suppressed.Rows() || raw.Cols() != suppressed.Cols() {
		return nil, fmt.Errorf("%w: raw image %dx%d does not match suppressed image %dx%d",
			ErrInvalidTiling, raw.Cols(), raw.Rows(), suppressed.Cols(), suppressed.Rows())
	}

	places, err := t.Placements(raw.Cols(), raw.Rows())

	if err != nil {
		return nil, err
	}

	tiles := make([]Tile, 0, len(places))

	for i, p := range places {
		rect := p.Rect()

		tiles = append(tiles, Tile{
			Index:      i,
			Row:        i / t.cols,
			Col:        i % t.cols,
			Placement:  p,
			raw:        raw.Region(rect),
			suppressed: suppressed.Region(rect),
		})
	}

	return tiles, nil
}

// Raw returns the tile's region of the unmodified source image
func (s *Tile) Raw() gocv.Mat {
	return s.raw
}

// Suppressed returns the tile's region of the background suppressed image
func (s *Tile) Suppressed() gocv.Mat {
	return s.suppressed
}

// Free releases the tile from memory
func (s *Tile) Free() error {
	err := s.raw.Close()
	err2 := s.suppressed.Close()

	return errors.Join(err, err2)
}

// FreeTiles releases all tiles from memory
func FreeTiles(tiles []Tile) error {
	var errs []error

	for i := range tiles {
		errs = append(errs, tiles[i].Free())
	}

	return errors.Join(errs...)
}
