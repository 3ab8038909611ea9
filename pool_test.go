package soilfauna

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/soilfauna/go-soilfauna/postprocess/result"
	"gocv.io/x/gocv"
)

// countingSegmenter returns one empty mask per point and records calls
type countingSegmenter struct {
	calls  atomic.Int32
	closed atomic.Bool
}

func (c *countingSegmenter) Predict(img gocv.Mat, points []result.LocalPoint) ([]SegmentResult, error) {
	c.calls.Add(1)

	masks := make([]result.Mask, len(points))

	for i := range masks {
		masks[i] = result.NewMask(img.Cols(), img.Rows())
	}

	return []SegmentResult{{Masks: masks}}, nil
}

func (c *countingSegmenter) Close() error {
	c.closed.Store(true)
	return nil
}

func TestPoolPredict(t *testing.T) {

	a, b := &countingSegmenter{}, &countingSegmenter{}
	pool := NewPoolFromSegmenters(a, b)

	if pool.Size() != 2 {
		t.Fatalf("expected pool size 2, got %d", pool.Size())
	}

	img := gocv.NewMatWithSize(8, 12, gocv.MatTypeCV8UC3)
	defer img.Close()

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			res, err := pool.Predict(img, []result.LocalPoint{{X: 1, Y: 1}, {X: 2, Y: 2}})

			if err != nil {
				t.Errorf("predict failed: %v", err)
				return
			}

			if len(res) != 1 || len(res[0].Masks) != 2 || res[0].Masks[0].Width != 12 {
				t.Errorf("unexpected result %+v", res)
			}
		}()
	}

	wg.Wait()

	if total := a.calls.Load() + b.calls.Load(); total != 10 {
		t.Errorf("expected 10 calls, got %d", total)
	}

	pool.Close()

	if !a.closed.Load() || !b.closed.Load() {
		t.Errorf("pool did not close segmenters")
	}

	// closing twice is safe
	pool.Close()
}

func TestNewSAMMissingModel(t *testing.T) {

	params := DefaultSAMParams()
	params.EncoderFile = filepath.Join(t.TempDir(), "encoder.onnx")
	params.DecoderFile = filepath.Join(t.TempDir(), "decoder.onnx")

	if _, err := NewSAM(params); !errors.Is(err, ErrModelFile) {
		t.Errorf("expected ErrModelFile, got %v", err)
	}

	if _, err := NewPool(2, params); !errors.Is(err, ErrModelFile) {
		t.Errorf("expected ErrModelFile from pool, got %v", err)
	}

	if _, err := NewPool(0, params); err == nil {
		t.Errorf("expected error for empty pool")
	}
}
