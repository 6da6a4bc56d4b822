package timeline

import (
	"fmt"
	"sync"
)

// IDAllocator hands out stable, monotonically increasing entry ids for one
// pipeline run. Ids are assigned once and never reused, even when the entry
// they belong to is later merged away.
type IDAllocator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewIDAllocator creates an allocator producing ids like ms_001, ms_002...
func NewIDAllocator(prefix string) *IDAllocator {
	if prefix == "" {
		prefix = "ms"
	}
	return &IDAllocator{prefix: prefix, next: 1}
}

// Next returns the next id in the sequence. Safe for concurrent use.
func (a *IDAllocator) Next() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := fmt.Sprintf("%s_%03d", a.prefix, a.next)
	a.next++
	return id
}
