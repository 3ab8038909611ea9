package soilfauna

import (
	"errors"

	"github.com/soilfauna/go-soilfauna/postprocess/result"
	"gocv.io/x/gocv"
)

var (
	// ErrExternalModel is returned when a segmentation model call fails
	ErrExternalModel = errors.New("segmentation model error")
	// ErrModelFile is returned when a model file is missing or can not be
	// loaded
	ErrModelFile = errors.New("model file error")
)

// Segmenter is a promptable segmentation model.  Given an image and point
// prompts in the image's own frame it returns binary masks localizing the
// objects at those points.  Each mask has the same dimensions as img
type Segmenter interface {
	Predict(img gocv.Mat, points []result.LocalPoint) ([]SegmentResult, error)
}

// SegmentResult holds the masks produced for one prediction
type SegmentResult struct {
	Masks []result.Mask
}
