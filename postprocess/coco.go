package postprocess

import (
	"errors"
	"fmt"
	"sync"

	"github.com/soilfauna/go-soilfauna/postprocess/result"
)

// DefaultCategory is the category name used when specimens are not
// classified
const DefaultCategory = "Unclassified"

// ErrUnknownReference is returned when an annotation refers to an image or
// category that has not been added
var ErrUnknownReference = errors.New("unknown reference")

// CocoBuilder accumulates the images, categories and annotations of one
// group into a cross referenced COCO document.  IDs start at 1 and are
// assigned in insertion order within each collection.  It is safe for
// concurrent use
type CocoBuilder struct {
	mu          sync.Mutex
	images      []Image
	categories  []Category
	annotations []Annotation
	imageIDs    *result.IDGenerator
	categoryIDs *result.IDGenerator
	annIDs      *result.IDGenerator
}

// NewCocoBuilder returns an empty CocoBuilder
func NewCocoBuilder() *CocoBuilder {
	return &CocoBuilder{
		images:      make([]Image, 0),
		categories:  make([]Category, 0),
		annotations: make([]Annotation, 0),
		imageIDs:    result.NewIDGenerator(),
		categoryIDs: result.NewIDGenerator(),
		annIDs:      result.NewIDGenerator(),
	}
}

// AddImage records an image of the given dimensions and returns its ID
func (b *CocoBuilder) AddImage(width, height int, fileName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.imageIDs.Next()

	b.images = append(b.images, Image{
		ID:       id,
		Width:    width,
		Height:   height,
		FileName: fileName,
	})

	return id
}

// AddCategory records a category and returns its ID.  Names are not
// deduplicated, every call appends a new category so callers should add
// each category once and keep the ID
func (b *CocoBuilder) AddCategory(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.categoryIDs.Next()

	b.categories = append(b.categories, Category{
		ID:   id,
		Name: name,
	})

	return id
}

// AddAnnotation validates the contour and records it as a polygon
// annotation of the given image and category.  On failure nothing is added
// and 0 is returned with an error wrapping ErrDegenerateGeometry or
// ErrUnknownReference
func (b *CocoBuilder) AddAnnotation(imageID, categoryID int, contour result.Contour) (int, error) {

	poly, err := ValidatePolygon(contour)

	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// IDs are dense so a valid ID is never greater than the last issued
	if imageID < 1 || imageID > len(b.images) {
		return 0, fmt.Errorf("%w: image id %d", ErrUnknownReference, imageID)
	}

	if categoryID < 1 || categoryID > len(b.categories) {
		return 0, fmt.Errorf("%w: category id %d", ErrUnknownReference, categoryID)
	}

	id := b.annIDs.Next()

	b.annotations = append(b.annotations, Annotation{
		ID:           id,
		ImageID:      imageID,
		CategoryID:   categoryID,
		BBox:         poly.Bounds(),
		Segmentation: [][]int{poly.Flatten()},
		Area:         poly.Area(),
		IsCrowd:      0,
	})

	return id, nil
}

// Counts returns the number of images, categories and annotations added
func (b *CocoBuilder) Counts() (images, categories, annotations int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.images), len(b.categories), len(b.annotations)
}

// Build returns a snapshot of the accumulated document.  The snapshot does
// not share memory with the builder so later additions do not change it
func (b *CocoBuilder) Build() Document {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc := Document{
		Images:      make([]Image, len(b.images)),
		Categories:  make([]Category, len(b.categories)),
		Annotations: make([]Annotation, len(b.annotations)),
	}

	copy(doc.Images, b.images)
	copy(doc.Categories, b.categories)

	for i, ann := range b.annotations {
		seg := make([][]int, len(ann.Segmentation))

		for j, s := range ann.Segmentation {
			seg[j] = append([]int(nil), s...)
		}

		ann.Segmentation = seg
		doc.Annotations[i] = ann
	}

	return doc
}
