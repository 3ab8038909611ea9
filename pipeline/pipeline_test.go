package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	soilfauna "github.com/soilfauna/go-soilfauna"
	"github.com/soilfauna/go-soilfauna/dataset"
	"github.com/soilfauna/go-soilfauna/postprocess"
	"github.com/soilfauna/go-soilfauna/postprocess/result"
	"github.com/soilfauna/go-soilfauna/preprocess"
	"gocv.io/x/gocv"
)

var (
	trayBlue      = color.RGBA{R: 79, G: 130, B: 189, A: 0}
	specimenBrown = color.RGBA{R: 47, G: 28, B: 18, A: 0}
)

// solidMat returns a BGR Mat filled with the given color
func solidMat(width, height int, c color.RGBA) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0),
		height, width, gocv.MatTypeCV8UC3)
}

// specimenMat returns a tray colored image with filled square specimens
func specimenMat(width, height int, rects ...image.Rectangle) gocv.Mat {
	img := solidMat(width, height, trayBlue)

	for _, r := range rects {
		gocv.Rectangle(&img, r, specimenBrown, -1)
	}

	return img
}

// thresholdSegmenter marks every pixel of the crop that is not tray colored,
// standing in for a promptable model
type thresholdSegmenter struct {
	calls atomic.Int32
	fail  bool
	// shrink returns masks one pixel narrower than the crop
	shrink bool
}

func (s *thresholdSegmenter) Predict(img gocv.Mat, points []result.LocalPoint) ([]soilfauna.SegmentResult, error) {
	s.calls.Add(1)

	if s.fail {
		return nil, fmt.Errorf("decoder exploded")
	}

	crop := img.Clone()
	defer crop.Close()

	w, h := crop.Cols(), crop.Rows()
	data := crop.ToBytes()
	m := result.NewMask(w, h)

	for i := 0; i < w*h; i++ {
		if data[i*3] != trayBlue.B || data[i*3+1] != trayBlue.G || data[i*3+2] != trayBlue.R {
			m.Pix[i] = 1
		}
	}

	if s.shrink {
		m = result.NewMask(w-1, h)
	}

	masks := make([]result.Mask, len(points))

	for i := range masks {
		masks[i] = m
	}

	return []soilfauna.SegmentResult{{Masks: masks}}, nil
}

// newTestPipeline returns a single tile pipeline with logging to a buffer
func newTestPipeline(t *testing.T, seg soilfauna.Segmenter) (*Pipeline, *bytes.Buffer) {
	t.Helper()

	params := DefaultParams()
	params.Tiling.Rows = 1
	params.Tiling.Cols = 1
	params.Tiling.Padding = 0

	p, err := New(params, seg)

	if err != nil {
		t.Fatalf("error creating pipeline: %v", err)
	}

	buf := &bytes.Buffer{}
	p.SetLogger(log.New(buf, "", 0))

	return p, buf
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}

func TestProcessImageSingleSpecimen(t *testing.T) {

	seg := &thresholdSegmenter{}
	p, _ := newTestPipeline(t, seg)

	img := specimenMat(100, 100, image.Rect(45, 45, 55, 55))
	defer img.Close()

	rep, err := p.ProcessImage("Collembola", "s1.jpg", img)

	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if rep.Stage != StageAnnotated || rep.ImageID != 1 {
		t.Errorf("expected annotated image 1, got stage %v id %d", rep.Stage, rep.ImageID)
	}

	if rep.Centers != 1 || rep.Annotations != 1 || rep.Rejected != 0 {
		t.Errorf("unexpected counts %+v", rep)
	}

	if seg.calls.Load() != 1 {
		t.Errorf("expected 1 model call, got %d", seg.calls.Load())
	}

	doc := p.Documents()["Collembola"]

	if err := doc.Validate(); err != nil {
		t.Fatalf("invalid document: %v", err)
	}

	if len(doc.Images) != 1 || len(doc.Categories) != 1 || len(doc.Annotations) != 1 {
		t.Fatalf("unexpected document sizes %d/%d/%d",
			len(doc.Images), len(doc.Categories), len(doc.Annotations))
	}

	if doc.Images[0].Width != 100 || doc.Images[0].Height != 100 || doc.Images[0].FileName != "s1.jpg" {
		t.Errorf("unexpected image %+v", doc.Images[0])
	}

	if doc.Categories[0].Name != postprocess.DefaultCategory {
		t.Errorf("unexpected category %q", doc.Categories[0].Name)
	}

	ann := doc.Annotations[0]

	if ann.ImageID != 1 || ann.CategoryID != 1 || ann.IsCrowd != 0 {
		t.Errorf("unexpected annotation refs %+v", ann)
	}

	if abs(ann.BBox[0]-45) > 1 || abs(ann.BBox[1]-45) > 1 ||
		abs(ann.BBox[2]-10) > 1 || abs(ann.BBox[3]-10) > 1 {
		t.Errorf("unexpected bbox %v", ann.BBox)
	}

	if ann.Area < 80 || ann.Area > 120 {
		t.Errorf("unexpected area %v", ann.Area)
	}
}

func TestProcessImageUniform(t *testing.T) {

	colors := map[string]color.RGBA{
		"tray":     trayBlue,
		"specimen": specimenBrown,
	}

	for name, c := range colors {
		seg := &thresholdSegmenter{}
		p, _ := newTestPipeline(t, seg)

		img := solidMat(40, 30, c)
		rep, err := p.ProcessImage("g", name+".jpg", img)
		img.Close()

		if err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
			continue
		}

		if rep.Annotations != 0 || rep.Centers != 0 || !rep.Committed() {
			t.Errorf("%s: unexpected report %+v", name, rep)
		}

		if rep.TilesSkipped != 1 {
			t.Errorf("%s: expected skipped tile, got %d", name, rep.TilesSkipped)
		}

		if seg.calls.Load() != 0 {
			t.Errorf("%s: model should not be called without centers", name)
		}
	}
}

func TestProcessImageInsufficientData(t *testing.T) {

	p, logs := newTestPipeline(t, &thresholdSegmenter{})

	small := solidMat(2, 2, trayBlue)
	defer small.Close()

	rep, err := p.ProcessImage("g", "tiny.jpg", small)

	if err == nil {
		t.Fatalf("expected error for a 2x2 image")
	}

	if rep.Committed() || rep.Err == nil {
		t.Errorf("failed image should not be committed: %+v", rep)
	}

	if !strings.Contains(logs.String(), "tiny.jpg") {
		t.Errorf("expected skip to be logged, got %q", logs.String())
	}

	// the failed image does not consume an image id
	img := specimenMat(100, 100, image.Rect(45, 45, 55, 55))
	defer img.Close()

	rep, err = p.ProcessImage("g", "ok.jpg", img)

	if err != nil || rep.ImageID != 1 {
		t.Errorf("expected image id 1 after failure, got %d err %v", rep.ImageID, err)
	}

	doc := p.Documents()["g"]

	if len(doc.Images) != 1 || doc.Images[0].FileName != "ok.jpg" {
		t.Errorf("unexpected images %+v", doc.Images)
	}
}

func TestProcessImageModelErrors(t *testing.T) {

	tests := []struct {
		name string
		seg  *thresholdSegmenter
	}{
		{"error", &thresholdSegmenter{fail: true}},
		{"shape", &thresholdSegmenter{shrink: true}},
	}

	for _, tt := range tests {
		p, logs := newTestPipeline(t, tt.seg)

		img := specimenMat(100, 100, image.Rect(45, 45, 55, 55))
		rep, err := p.ProcessImage("g", "s.jpg", img)
		img.Close()

		if err != nil {
			t.Errorf("%s: a tile failure should not drop the image: %v", tt.name, err)
			continue
		}

		if rep.ModelErrors != 1 || rep.Annotations != 0 || !rep.Committed() {
			t.Errorf("%s: unexpected report %+v", tt.name, rep)
		}

		if !strings.Contains(logs.String(), "skip tile") {
			t.Errorf("%s: expected tile skip to be logged", tt.name)
		}
	}
}

func TestProcessImageTiled(t *testing.T) {

	seg := &thresholdSegmenter{}
	p, _ := newTestPipeline(t, seg)
	p.tiler = preprocess.NewTiler(2, 2, 4)
	p.SetWorkers(3)

	// one specimen per quadrant and one straddling the vertical seam
	img := specimenMat(120, 120,
		image.Rect(10, 10, 20, 20),
		image.Rect(90, 10, 100, 20),
		image.Rect(10, 90, 20, 100),
		image.Rect(90, 90, 100, 100),
		image.Rect(50, 40, 70, 50),
	)
	defer img.Close()

	rep, err := p.ProcessImage("g", "s.jpg", img)

	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if rep.Tiles != 4 {
		t.Errorf("expected 4 tiles, got %d", rep.Tiles)
	}

	// the seam specimen is merged back into a single polygon
	if rep.Annotations != 5 {
		t.Errorf("expected 5 annotations, got %d", rep.Annotations)
	}

	if err := p.Documents()["g"].Validate(); err != nil {
		t.Errorf("invalid document: %v", err)
	}
}

func TestRunAndPersist(t *testing.T) {

	root := t.TempDir()
	images := filepath.Join(root, "images")

	write := func(rel string, img gocv.Mat) {
		path := filepath.Join(images, rel)

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}

		if !gocv.IMWrite(path, img) {
			t.Fatalf("error writing %s", path)
		}
	}

	specimen := specimenMat(100, 100, image.Rect(45, 45, 55, 55))
	defer specimen.Close()
	tray := solidMat(50, 50, trayBlue)
	defer tray.Close()

	write("Collembola/a.png", specimen)
	write("Collembola/b.png", tray)
	write("Acari/c.png", specimen)

	// a corrupt image is skipped
	if err := os.WriteFile(filepath.Join(images, "Acari", "d.png"), []byte("junk"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	ds, err := dataset.Open(images, "", "_no_bkgd")

	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	p, _ := newTestPipeline(t, &thresholdSegmenter{})
	p.SetLogger(log.New(io.Discard, "", 0))

	sum := p.Run(ds)

	if sum.Images() != 3 || sum.Failed() != 1 || sum.Annotations() != 2 {
		t.Errorf("unexpected summary images %d failed %d annotations %d",
			sum.Images(), sum.Failed(), sum.Annotations())
	}

	out := filepath.Join(root, "out")
	paths, err := p.Persist(out)

	if err != nil {
		t.Fatalf("persist failed: %v", err)
	}

	if len(paths) != 2 {
		t.Fatalf("expected 2 documents, got %v", paths)
	}

	for _, group := range []string{"Acari", "Collembola"} {
		path := filepath.Join(out, postprocess.AnnotationFileName(group))
		doc, err := postprocess.ReadDocument(path)

		if err != nil {
			t.Errorf("%s: read failed: %v", group, err)
			continue
		}

		if err := doc.Validate(); err != nil {
			t.Errorf("%s: invalid document: %v", group, err)
		}
	}

	for _, r := range p.Reports("Collembola") {
		if r.Stage != StagePersisted {
			t.Errorf("%s: expected persisted stage, got %v", r.FileName, r.Stage)
		}
	}

	for _, r := range p.Reports("Acari") {
		if r.FileName == "d.png" && (r.Committed() || !errors.Is(r.Err, dataset.ErrInput)) {
			t.Errorf("expected corrupt image to fail with ErrInput, got %+v", r)
		}
	}
}

func TestNewInvalid(t *testing.T) {

	params := DefaultParams()
	params.Tiling.Rows = 0

	if _, err := New(params, &thresholdSegmenter{}); err == nil {
		t.Errorf("expected error for invalid params")
	}

	if _, err := New(DefaultParams(), nil); err == nil {
		t.Errorf("expected error for missing segmenter")
	}
}
