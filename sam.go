package soilfauna

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/soilfauna/go-soilfauna/postprocess/result"
	"github.com/soilfauna/go-soilfauna/preprocess"
	"gocv.io/x/gocv"
)

// SAMParams defines the model files and input settings for the Segment
// Anything model exported to ONNX as separate image encoder and prompt
// decoder graphs
type SAMParams struct {
	// EncoderFile is the path to the image encoder ONNX model
	EncoderFile string
	// DecoderFile is the path to the prompt/mask decoder ONNX model
	DecoderFile string
	// InputSize is the square input size of the image encoder
	InputSize int
	// Mean is the per channel pixel mean in RGB order
	Mean [3]float64
	// Std is the per channel pixel standard deviation in RGB order
	Std [3]float64
	// MaskThreshold is the logit value above which a pixel is foreground
	MaskThreshold float32
	// Backend is the OpenCV DNN backend name, eg: "default", "openvino", "cuda"
	Backend string
	// Target is the OpenCV DNN target name, eg: "cpu", "fp16", "cuda"
	Target string
}

// DefaultSAMParams returns the parameters for the standard SAM ONNX export
// with a 1024 pixel encoder input
func DefaultSAMParams() SAMParams {
	return SAMParams{
		InputSize:     1024,
		Mean:          [3]float64{123.675, 116.28, 103.53},
		Std:           [3]float64{58.395, 57.12, 57.375},
		MaskThreshold: 0,
		Backend:       "default",
		Target:        "cpu",
	}
}

const (
	// embeddingInput is the decoder's image embedding input name
	embeddingInput = "image_embeddings"
	// maskOutput is the decoder's mask logits output name
	maskOutput = "masks"
	// lowResMask is the side length of the decoder's mask input
	lowResMask = 256
)

// SAM is a promptable segmenter running the Segment Anything model through
// OpenCV's DNN module.  A SAM instance is not safe for concurrent use, use a
// Pool to share several between goroutines
type SAM struct {
	encoder gocv.Net
	decoder gocv.Net
	params  SAMParams
}

// NewSAM loads the encoder and decoder models
func NewSAM(p SAMParams) (*SAM, error) {

	encoder, err := loadNet(p.EncoderFile, p)

	if err != nil {
		return nil, err
	}

	decoder, err := loadNet(p.DecoderFile, p)

	if err != nil {
		encoder.Close()
		return nil, err
	}

	return &SAM{
		encoder: encoder,
		decoder: decoder,
		params:  p,
	}, nil
}

// loadNet checks the model file exists and reads it into a DNN network
func loadNet(modelFile string, p SAMParams) (gocv.Net, error) {

	if _, err := os.Stat(modelFile); err != nil {
		return gocv.Net{}, fmt.Errorf("%w: %s: %v", ErrModelFile, modelFile, err)
	}

	net := gocv.ReadNet(modelFile, "")

	if net.Empty() {
		return gocv.Net{}, fmt.Errorf("%w: error reading network %s", ErrModelFile, modelFile)
	}

	if err := net.SetPreferableBackend(gocv.ParseNetBackend(p.Backend)); err != nil {
		net.Close()
		return gocv.Net{}, fmt.Errorf("error setting backend %s: %w", p.Backend, err)
	}

	if err := net.SetPreferableTarget(gocv.ParseNetTarget(p.Target)); err != nil {
		net.Close()
		return gocv.Net{}, fmt.Errorf("error setting target %s: %w", p.Target, err)
	}

	return net, nil
}

// Close frees the networks
func (s *SAM) Close() error {
	err := s.encoder.Close()
	err2 := s.decoder.Close()

	return errors.Join(err, err2)
}

// Predict runs the image encoder once over img then decodes one mask per
// point prompt.  The returned result holds the masks in point order
func (s *SAM) Predict(img gocv.Mat, points []result.LocalPoint) ([]SegmentResult, error) {

	if img.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrExternalModel)
	}

	if len(points) == 0 {
		return nil, nil
	}

	size := s.params.InputSize
	resizer := preprocess.NewTopLeftResizer(img.Cols(), img.Rows(), size, size)
	defer resizer.Close()

	embeddings, err := s.encode(img, resizer)

	if err != nil {
		return nil, err
	}

	defer embeddings.Close()

	masks := make([]result.Mask, 0, len(points))

	for _, pt := range points {
		mask, err := s.decode(embeddings, resizer, pt)

		if err != nil {
			return nil, err
		}

		masks = append(masks, mask)
	}

	return []SegmentResult{{Masks: masks}}, nil
}

// encode scales the image's longest side to the encoder input size and
// returns the image embeddings
func (s *SAM) encode(img gocv.Mat, resizer *preprocess.Resizer) (gocv.Mat, error) {

	size := s.params.InputSize
	mean := s.params.Mean

	// pad with the pixel mean so the padding normalises to zero
	padColor := color.RGBA{R: uint8(mean[0] + 0.5), G: uint8(mean[1] + 0.5),
		B: uint8(mean[2] + 0.5), A: 255}

	padded := gocv.NewMat()
	defer padded.Close()
	resizer.LetterBoxResize(img, &padded, padColor)

	// BlobFromImage subtracts the mean and converts BGR to RGB
	blob := gocv.BlobFromImage(padded, 1.0, image.Pt(size, size),
		gocv.NewScalar(mean[0], mean[1], mean[2], 0), true, false)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()

	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: error accessing input blob: %v", ErrExternalModel, err)
	}

	plane := size * size

	for c := 0; c < 3; c++ {
		scale := float32(1 / s.params.Std[c])
		ch := data[c*plane : (c+1)*plane]

		for i := range ch {
			ch[i] *= scale
		}
	}

	s.encoder.SetInput(blob, "")
	embeddings := s.encoder.Forward("")

	if embeddings.Empty() {
		embeddings.Close()
		return gocv.NewMat(), fmt.Errorf("%w: encoder returned no output", ErrExternalModel)
	}

	return embeddings, nil
}

// decode runs the prompt decoder for a single positive point and returns the
// thresholded mask at the source image size
func (s *SAM) decode(embeddings gocv.Mat, resizer *preprocess.Resizer,
	pt result.LocalPoint) (result.Mask, error) {

	width, height := resizer.SrcWidth(), resizer.SrcHeight()
	x, y := resizer.ToModel(pt)

	// the point is followed by a padding point labelled -1 as done by the
	// reference predictor when no box prompt is given
	coords := newBlob([]int{1, 2, 2}, x, y, 0, 0)
	defer coords.Close()

	labels := newBlob([]int{1, 2}, 1, -1)
	defer labels.Close()

	maskInput := newBlob([]int{1, 1, lowResMask, lowResMask})
	defer maskInput.Close()

	hasMask := newBlob([]int{1}, 0)
	defer hasMask.Close()

	origSize := newBlob([]int{2}, float32(height), float32(width))
	defer origSize.Close()

	s.decoder.SetInput(embeddings, embeddingInput)
	s.decoder.SetInput(coords, "point_coords")
	s.decoder.SetInput(labels, "point_labels")
	s.decoder.SetInput(maskInput, "mask_input")
	s.decoder.SetInput(hasMask, "has_mask_input")
	s.decoder.SetInput(origSize, "orig_im_size")

	out := s.decoder.Forward(maskOutput)
	defer out.Close()

	logits, err := out.DataPtrFloat32()

	if err != nil {
		return result.Mask{}, fmt.Errorf("%w: error reading mask output: %v", ErrExternalModel, err)
	}

	// take the first mask when the decoder returns several candidates
	if len(logits) < width*height {
		return result.Mask{}, fmt.Errorf("%w: mask output has %d values, expected %dx%d",
			ErrExternalModel, len(logits), width, height)
	}

	mask := result.NewMask(width, height)

	for i := range mask.Pix {
		if logits[i] > s.params.MaskThreshold {
			mask.Pix[i] = 1
		}
	}

	return mask, nil
}

// newBlob returns a float32 Mat of the given shape filled with values, any
// remaining elements are zero
func newBlob(sizes []int, values ...float32) gocv.Mat {

	mat := gocv.NewMatWithSizes(sizes, gocv.MatTypeCV32F)
	data, err := mat.DataPtrFloat32()

	if err != nil {
		return mat
	}

	for i := range data {
		data[i] = 0
	}

	copy(data, values)

	return mat
}
