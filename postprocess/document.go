package postprocess

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/soilfauna/go-soilfauna/postprocess/result"
)

// Image is a COCO image record
type Image struct {
	ID       int    `json:"id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileName string `json:"file_name"`
}

// Category is a COCO category record
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Annotation is a COCO polygon annotation record
type Annotation struct {
	ID         int `json:"id"`
	ImageID    int `json:"image_id"`
	CategoryID int `json:"category_id"`
	// BBox is [x, y, width, height]
	BBox [4]int `json:"bbox"`
	// Segmentation holds flattened [x1,y1,x2,y2,...] rings
	Segmentation [][]int `json:"segmentation"`
	Area         float64 `json:"area"`
	IsCrowd      int     `json:"iscrowd"`
}

// Document is a finalised COCO dataset for one group
type Document struct {
	Images      []Image      `json:"images"`
	Categories  []Category   `json:"categories"`
	Annotations []Annotation `json:"annotations"`
}

// AnnotationFileName returns the name of the COCO file written for a group
func AnnotationFileName(group string) string {
	return group + "-annotations.json"
}

// WriteFile serialises the document as indented JSON to path
func (d Document) WriteFile(path string) error {

	data, err := json.MarshalIndent(d, "", "    ")

	if err != nil {
		return fmt.Errorf("error encoding COCO document: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing COCO document %s: %w", path, err)
	}

	return nil
}

// Save writes the document for the named group into dir, creating dir if
// needed, and returns the path written
func (d Document) Save(dir, group string) (string, error) {

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("error creating output directory: %w", err)
	}

	path := filepath.Join(dir, AnnotationFileName(group))

	return path, d.WriteFile(path)
}

// ReadDocument loads a COCO document from a JSON file
func ReadDocument(path string) (Document, error) {

	var doc Document

	data, err := os.ReadFile(path)

	if err != nil {
		return doc, fmt.Errorf("error reading COCO document: %w", err)
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("error decoding COCO document %s: %w", path, err)
	}

	return doc, nil
}

// Validate audits the document, checking IDs are 1-based and sequential,
// every annotation references an existing image and category, and every
// segmentation is a valid simple polygon.  All problems found are returned
// joined together
func (d Document) Validate() error {

	var errs []error

	images := make(map[int]bool, len(d.Images))
	categories := make(map[int]bool, len(d.Categories))

	for i, img := range d.Images {
		if img.ID != i+1 {
			errs = append(errs, fmt.Errorf("image %d has id %d", i, img.ID))
		}

		images[img.ID] = true
	}

	for i, cat := range d.Categories {
		if cat.ID != i+1 {
			errs = append(errs, fmt.Errorf("category %d has id %d", i, cat.ID))
		}

		categories[cat.ID] = true
	}

	for i, ann := range d.Annotations {
		if ann.ID != i+1 {
			errs = append(errs, fmt.Errorf("annotation %d has id %d", i, ann.ID))
		}

		if !images[ann.ImageID] {
			errs = append(errs, fmt.Errorf("annotation %d: %w: image id %d",
				ann.ID, ErrUnknownReference, ann.ImageID))
		}

		if !categories[ann.CategoryID] {
			errs = append(errs, fmt.Errorf("annotation %d: %w: category id %d",
				ann.ID, ErrUnknownReference, ann.CategoryID))
		}

		if ann.IsCrowd != 0 {
			errs = append(errs, fmt.Errorf("annotation %d: iscrowd %d", ann.ID, ann.IsCrowd))
		}

		for _, seg := range ann.Segmentation {
			if err := validateSegmentation(seg); err != nil {
				errs = append(errs, fmt.Errorf("annotation %d: %w", ann.ID, err))
			}
		}
	}

	return errors.Join(errs...)
}

// validateSegmentation checks a flattened ring is an even length list of at
// least 3 vertices forming a simple polygon
func validateSegmentation(seg []int) error {

	if len(seg)%2 != 0 {
		return fmt.Errorf("%w: odd coordinate count %d", ErrDegenerateGeometry, len(seg))
	}

	contour := make(result.Contour, 0, len(seg)/2)

	for i := 0; i < len(seg); i += 2 {
		contour = append(contour, result.ImagePoint{X: seg[i], Y: seg[i+1]})
	}

	_, err := ValidatePolygon(contour)

	return err
}
