// Package buffer provides the working buffers a cascade run disperses.
// Every provider satisfies cascade.BufferProvider.
package buffer

import (
	"fmt"
	"sync"

	"github.com/talgya/cascade/internal/cascade"
	"github.com/talgya/cascade/internal/params"
)

// Kind names a provider in configuration.
type Kind string

const (
	KindHeap  Kind = "heap"
	KindPool  Kind = "pool"
	KindNoise Kind = "noise"
)

// Heap allocates a fresh zeroed slice per run.
type Heap struct{}

// Acquire returns size zero bytes.
func (Heap) Acquire(size int) ([]byte, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	return make([]byte, size), nil
}

// Release is a no-op; the garbage collector reclaims the slice.
func (Heap) Release([]byte) {}

// Pool reuses buffers between runs. Buffers are zeroed on Acquire.
type Pool struct {
	pool sync.Pool
}

// NewPool creates an empty buffer pool.
func NewPool() *Pool {
	return &Pool{}
}

// Acquire returns a zeroed buffer of size bytes, reusing a released one
// when its capacity is large enough.
func (p *Pool) Acquire(size int) ([]byte, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	if v, ok := p.pool.Get().(*[]byte); ok && cap(*v) >= size {
		buf := (*v)[:size]
		clear(buf)
		return buf, nil
	}
	return make([]byte, size), nil
}

// Release hands buf back for reuse.
func (p *Pool) Release(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	buf = buf[:cap(buf)]
	p.pool.Put(&buf)
}

// New returns the provider for kind. seed only applies to KindNoise.
func New(kind Kind, seed int64) (cascade.BufferProvider, error) {
	switch kind {
	case "", KindHeap:
		return Heap{}, nil
	case KindPool:
		return NewPool(), nil
	case KindNoise:
		return NewNoise(seed), nil
	default:
		return nil, fmt.Errorf("buffer provider %q: %w", kind, params.ErrInvalidArgument)
	}
}

func checkSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("buffer size %d: %w", size, params.ErrInvalidArgument)
	}
	return nil
}
