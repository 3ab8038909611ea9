package result

import "sync"

// IDGenerator is a struct to hold a counter for generating the next incremental
// ID number.  IDs start at 1 and increase by one for every call to Next()
type IDGenerator struct {
	id int
	sync.Mutex
}

// NewIDGenerator returns a generator whose first ID is 1
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the next incremental number
func (id *IDGenerator) Next() int {
	id.Lock()
	defer id.Unlock()
	id.id++
	return id.id
}

// Last returns the most recently issued ID, or 0 if none have been issued
func (id *IDGenerator) Last() int {
	id.Lock()
	defer id.Unlock()
	return id.id
}
