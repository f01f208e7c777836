// Package voxelpool recycles the raw byte buffers backing voxel block
// channels so repeated load/generate/discard cycles don't thrash the
// allocator.
package voxelpool

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// sizeClass buckets allocations the way a buddy allocator would: every
// request is rounded up to the next power of two, and each size class
// keeps its own freelist.
type sizeClass struct {
	mu   sync.Mutex
	free [][]byte
}

// Pool is a process-wide, size-classed recycler for channel buffers. It is
// safe for concurrent use by multiple worker goroutines.
type Pool struct {
	mu      sync.RWMutex
	classes map[int]*sizeClass

	allocated int64
	recycled  int64
}

// New creates an empty pool. Call it once before the first block is
// created; there is no teardown beyond letting the Pool be garbage
// collected once every block referencing it has been destroyed.
func New() *Pool {
	return &Pool{
		classes: make(map[int]*sizeClass),
	}
}

func classFor(n int) int {
	if n <= 0 {
		return 1
	}
	c := 1
	for c < n {
		c <<= 1
	}
	return c
}

// Allocate returns a buffer of at least nBytes bytes, recycled from the
// pool when possible. The caller owns zero-initialization: Allocate does
// not promise zeroed memory.
func (p *Pool) Allocate(nBytes int) ([]byte, error) {
	if nBytes < 0 {
		return nil, errors.Errorf("voxelpool: negative allocation size %d", nBytes)
	}
	if nBytes == 0 {
		return nil, nil
	}
	class := classFor(nBytes)

	p.mu.RLock()
	sc, ok := p.classes[class]
	p.mu.RUnlock()
	if !ok {
		p.mu.Lock()
		sc, ok = p.classes[class]
		if !ok {
			sc = &sizeClass{}
			p.classes[class] = sc
		}
		p.mu.Unlock()
	}

	sc.mu.Lock()
	var buf []byte
	if n := len(sc.free); n > 0 {
		buf = sc.free[n-1]
		sc.free = sc.free[:n-1]
	}
	sc.mu.Unlock()

	p.mu.Lock()
	p.allocated++
	p.mu.Unlock()

	if buf != nil {
		return buf[:nBytes], nil
	}
	return make([]byte, nBytes, class), nil
}

// Recycle returns a buffer of nBytes logical length back to its size
// class. It must never be called while the buffer is still referenced by
// a live channel. Recycle does not zero the buffer; callers that need a
// clean slate re-fill it themselves (the channel `fill` path).
func (p *Pool) Recycle(buf []byte, nBytes int) {
	if buf == nil || nBytes <= 0 {
		return
	}
	class := classFor(nBytes)

	p.mu.RLock()
	sc, ok := p.classes[class]
	p.mu.RUnlock()
	if !ok {
		// Nothing allocated this size class yet; nothing to recycle into.
		return
	}

	sc.mu.Lock()
	sc.free = append(sc.free, buf[:cap(buf)])
	sc.mu.Unlock()

	p.mu.Lock()
	p.recycled++
	p.mu.Unlock()
}

// Stats is a point-in-time snapshot used for observability only.
type Stats struct {
	Allocated   int64
	Recycled    int64
	SizeClasses []SizeClassStats
}

// SizeClassStats reports the freelist depth of a single size class.
type SizeClassStats struct {
	ClassBytes int
	Free       int
}

// Snapshot reports pool-wide counters and per-class freelist depth.
func (p *Pool) Snapshot() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := Stats{Allocated: p.allocated, Recycled: p.recycled}
	for class, sc := range p.classes {
		sc.mu.Lock()
		free := len(sc.free)
		sc.mu.Unlock()
		st.SizeClasses = append(st.SizeClasses, SizeClassStats{ClassBytes: class, Free: free})
	}
	sort.Slice(st.SizeClasses, func(i, j int) bool {
		return st.SizeClasses[i].ClassBytes < st.SizeClasses[j].ClassBytes
	})
	return st
}
