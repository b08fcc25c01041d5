// Package bufpool provides size-classed byte slice pools for wire frames.
//
// A buffer taken with Get must be handed back with Put once nothing refers
// to it any more. Requests above the largest class are allocated directly
// and dropped by Put.
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
package bufpool

import (
	"slices"
	"sync"
)

// Default size classes. Session setup responses fit the smallest; the
// largest covers the default maximum SMB message.
const (
	DefaultSmallSize  = 4 << 10
	DefaultMediumSize = 64 << 10
	DefaultLargeSize  = 1 << 20
)

// Pool is a set of sync.Pools, one per size class.
type Pool struct {
	classes []sizeClass
}

type sizeClass struct {
	size int
	pool *sync.Pool
}

// NewPool creates a pool with the given class sizes. Non-positive and
// duplicate sizes are dropped; no sizes at all means the defaults.
func NewPool(sizes ...int) *Pool {
	sizes = slices.DeleteFunc(slices.Clone(sizes), func(n int) bool { return n <= 0 })
	if len(sizes) == 0 {
		sizes = []int{DefaultSmallSize, DefaultMediumSize, DefaultLargeSize}
	}
	slices.Sort(sizes)
	sizes = slices.Compact(sizes)

	p := &Pool{classes: make([]sizeClass, len(sizes))}
	for i, n := range sizes {
		n := n
		p.classes[i] = sizeClass{
			size: n,
			pool: &sync.Pool{New: func() any {
				b := make([]byte, n)
				return &b
			}},
		}
	}
	return p
}

// Get returns a slice of length size. Its capacity is that of the smallest
// class that fits, or exactly size above the largest class.
func (p *Pool) Get(size int) []byte {
	if size < 0 {
		size = 0
	}
	for _, c := range p.classes {
		if size <= c.size {
			b := *(c.pool.Get().(*[]byte))
			return b[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to the class matching its capacity. Slices of any other
// capacity, including nil, are ignored.
func (p *Pool) Put(buf []byte) {
	c := cap(buf)
	for _, cl := range p.classes {
		if cl.size == c {
			full := buf[:c]
			cl.pool.Put(&full)
			return
		}
	}
}

// Sizes returns the class sizes in ascending order.
func (p *Pool) Sizes() []int {
	out := make([]int, len(p.classes))
	for i, c := range p.classes {
		out[i] = c.size
	}
	return out
}

var defaultPool = NewPool()

// Get takes a buffer from the process-wide pool.
func Get(size int) []byte {
	return defaultPool.Get(size)
}

// Put returns a buffer to the process-wide pool.
func Put(buf []byte) {
	defaultPool.Put(buf)
}
