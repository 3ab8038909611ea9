package postprocess

import (
	"fmt"
	"sync"
)

// bufferPool holds a set of named buffer pools, one per mask size
type bufferPool struct {
	mu    sync.Mutex
	pools map[string]*bufferEntry
}

// bufferEntry defines a single buffer
type bufferEntry struct {
	pool    sync.Pool
	maxSize int
}

// newBufferPool returns an empty bufferPool
func newBufferPool() *bufferPool {
	return &bufferPool{
		pools: make(map[string]*bufferEntry),
	}
}

// poolName returns the pool name used for masks of the given dimensions
func poolName(width, height int) string {
	return fmt.Sprintf("%dx%d", width, height)
}

// ensure registers a pool under 'name' producing buffers of maxSize if one
// does not already exist
func (b *bufferPool) ensure(name string, maxSize int) *bufferEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if entry, exists := b.pools[name]; exists {
		return entry
	}

	entry := &bufferEntry{maxSize: maxSize}

	entry.pool.New = func() any {
		return make([]uint8, maxSize)
	}

	b.pools[name] = entry
	return entry
}

// get returns a zeroed []uint8 slice of length 'size' from the named pool,
// creating the pool on first use
func (b *bufferPool) get(name string, size int) []uint8 {

	entry := b.ensure(name, size)
	buf := entry.pool.Get().([]uint8)

	if cap(buf) < size {
		return make([]uint8, size)
	}

	// get buffer of required size
	buf = buf[:size]

	// zero out the buffer
	for i := range buf {
		buf[i] = 0
	}

	return buf
}

// put returns a buffer back into it's named pool.  Buffers smaller than the
// pool size are dropped
func (b *bufferPool) put(name string, buf []uint8) {
	b.mu.Lock()
	entry, ok := b.pools[name]
	b.mu.Unlock()

	if !ok || cap(buf) < entry.maxSize {
		return
	}

	// restore to full capacity so it matches entry.New next time
	entry.pool.Put(buf[:entry.maxSize])
}
