package dx12

import (
	"fmt"
	"sync"
)

// DescriptorPool reserves a block of a DescriptorHeap and hands out single
// slots from it with free-list reuse.
type DescriptorPool struct {
	heap  *DescriptorHeap
	first Handle
	size  uint32

	mu    sync.Mutex
	free  []uint32
	inUse []bool
}

// NewDescriptorPool reserves size slots of heap.
func NewDescriptorPool(heap *DescriptorHeap, size uint32) (*DescriptorPool, error) {
	first, err := heap.Allocate(size)
	if err != nil {
		return nil, fmt.Errorf("dx12: descriptor pool of %d: %w", size, err)
	}
	p := &DescriptorPool{
		heap:  heap,
		first: first,
		size:  size,
		free:  make([]uint32, 0, size),
		inUse: make([]bool, size),
	}
	// Hand out low slots first.
	for i := size; i > 0; i-- {
		p.free = append(p.free, i-1)
	}
	return p, nil
}

// Acquire returns a free slot.
func (p *DescriptorPool) Acquire() (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		return Handle{}, fmt.Errorf("%w: pool of %d in %s", ErrHeapFull, p.size, p.heap.Label())
	}
	i := p.free[n-1]
	p.free = p.free[:n-1]
	p.inUse[i] = true
	return p.first.Offset(i), nil
}

// Free returns h to the pool.
func (p *DescriptorPool) Free(h Handle) error {
	if h.Index < p.first.Index || h.Index >= p.first.Index+p.size || h.CPU != p.first.Offset(h.Index-p.first.Index).CPU {
		return fmt.Errorf("%w: slot %d", ErrDescriptorNotOwned, h.Index)
	}
	i := h.Index - p.first.Index
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.inUse[i] {
		return fmt.Errorf("%w: slot %d", ErrDoubleFree, h.Index)
	}
	p.inUse[i] = false
	p.free = append(p.free, i)
	return nil
}

// Available returns the number of free slots.
func (p *DescriptorPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Heap returns the heap the pool draws from.
func (p *DescriptorPool) Heap() *DescriptorHeap { return p.heap }
