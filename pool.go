package soilfauna

import (
	"fmt"
	"io"
	"sync"

	"github.com/soilfauna/go-soilfauna/postprocess/result"
	"gocv.io/x/gocv"
)

// Pool is a simple pool of segmenters so model calls for several tiles can
// run at once.  Pool itself implements Segmenter and is safe for concurrent
// use
type Pool struct {
	// pool of segmenters
	segmenters chan Segmenter
	// size of pool
	size  int
	close sync.Once
}

// NewPool creates a pool of size SAM segmenters loaded with the same models
func NewPool(size int, params SAMParams) (*Pool, error) {

	if size < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", size)
	}

	p := &Pool{
		segmenters: make(chan Segmenter, size),
		size:       size,
	}

	for i := 0; i < size; i++ {
		sam, err := NewSAM(params)

		if err != nil {
			// close any instances that may have been created before receiving
			// the error
			p.Close()
			return nil, err
		}

		// attach to pool
		p.Return(sam)
	}

	return p, nil
}

// NewPoolFromSegmenters creates a pool from existing segmenters
func NewPoolFromSegmenters(segs ...Segmenter) *Pool {
	p := &Pool{
		segmenters: make(chan Segmenter, len(segs)),
		size:       len(segs),
	}

	for _, s := range segs {
		p.Return(s)
	}

	return p
}

// Get a segmenter from the pool, blocking until one is free
func (p *Pool) Get() Segmenter {
	return <-p.segmenters
}

// Return a segmenter to the pool
func (p *Pool) Return(s Segmenter) {
	select {
	case p.segmenters <- s:
	default:
		// pool is full or closed
	}
}

// Size returns the number of segmenters in the pool
func (p *Pool) Size() int {
	return p.size
}

// Predict runs a prediction on the next free segmenter
func (p *Pool) Predict(img gocv.Mat, points []result.LocalPoint) ([]SegmentResult, error) {
	s := p.Get()
	defer p.Return(s)

	return s.Predict(img, points)
}

// Close the pool and all segmenters in it that hold resources
func (p *Pool) Close() {
	p.close.Do(func() {
		// close channel
		close(p.segmenters)

		for next := range p.segmenters {
			if c, ok := next.(io.Closer); ok {
				_ = c.Close()
			}
		}
	})
}
