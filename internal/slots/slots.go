// Package slots keeps the CPU-side shadow of descriptor heaps for backends
// that have no native descriptor heap object.
//
// Addresses are synthesized from the heap ID: slot i of heap h has CPU
// address h<<32 + i*increment and, when shader-visible, GPU address
// gpuTag | h<<32 + i*increment. The GPU-CPU distance is therefore constant
// within a heap, and any address maps back to its heap without a search.
package slots

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/dx12/gpucore"
)

// Slot errors.
var (
	// ErrBadAddress is returned for addresses outside any live heap slot.
	ErrBadAddress = errors.New("slots: address does not name a descriptor slot")

	// ErrWrongHeapType is returned when a view is written into a heap of
	// another type.
	ErrWrongHeapType = errors.New("slots: view kind does not match heap type")

	// ErrEmptySlot is returned when reading a slot no view was written to.
	ErrEmptySlot = errors.New("slots: descriptor slot is empty")
)

const (
	gpuTag    = uint64(1) << 62
	heapShift = 32
	maxBytes  = uint64(1) << heapShift
)

// Kind is the view stored in a slot.
type Kind uint8

// View kinds.
const (
	KindEmpty Kind = iota
	KindCBV
	KindSRV
	KindRTV
	KindDSV
)

// String returns the view kind name.
func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindCBV:
		return "CBV"
	case KindSRV:
		return "SRV"
	case KindRTV:
		return "RTV"
	case KindDSV:
		return "DSV"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

func (k Kind) heapType() gpucore.HeapType {
	switch k {
	case KindRTV:
		return gpucore.HeapTypeRTV
	case KindDSV:
		return gpucore.HeapTypeDSV
	default:
		return gpucore.HeapTypeCBVSRVUAV
	}
}

// Descriptor is the content of one slot.
type Descriptor struct {
	Kind     Kind
	Resource gpucore.ResourceID
	Offset   uint64
	Size     uint64
}

// Increment returns the slot size used for heaps of type t.
func Increment(t gpucore.HeapType) uint32 {
	switch t {
	case gpucore.HeapTypeDSV:
		return 8
	default:
		return 32
	}
}

// Heap is the shadow of one descriptor heap.
type Heap struct {
	ID       gpucore.HeapID
	Type     gpucore.HeapType
	Flags    gpucore.HeapFlags
	Label    string
	CPUStart gpucore.CPUAddress
	GPUStart gpucore.GPUAddress

	// Version increases on every slot write.
	Version uint64

	slots []Descriptor
}

// Capacity returns the number of slots.
func (h *Heap) Capacity() uint32 { return uint32(len(h.slots)) }

// ShaderVisible reports whether the heap has GPU handles.
func (h *Heap) ShaderVisible() bool { return h.Flags&gpucore.HeapFlagShaderVisible != 0 }

// Table maps heap IDs to their shadows.
//
// Table is safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	heaps map[gpucore.HeapID]*Heap
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{heaps: make(map[gpucore.HeapID]*Heap)}
}

// Create registers a heap under id.
func (t *Table) Create(id gpucore.HeapID, desc *gpucore.DescriptorHeapDesc) (*Heap, error) {
	if desc == nil || !desc.Type.IsValid() || desc.Capacity == 0 {
		return nil, fmt.Errorf("%w: descriptor heap %+v", gpucore.ErrInvalidArgument, desc)
	}
	if uint64(desc.Capacity)*uint64(Increment(desc.Type)) > maxBytes {
		return nil, fmt.Errorf("%w: heap capacity %d too large", gpucore.ErrInvalidArgument, desc.Capacity)
	}
	visible := desc.Flags&gpucore.HeapFlagShaderVisible != 0
	if visible && (desc.Type == gpucore.HeapTypeRTV || desc.Type == gpucore.HeapTypeDSV) {
		return nil, fmt.Errorf("%w: %s heaps cannot be shader visible", gpucore.ErrInvalidArgument, desc.Type)
	}

	h := &Heap{
		ID:       id,
		Type:     desc.Type,
		Flags:    desc.Flags,
		Label:    desc.Label,
		CPUStart: gpucore.CPUAddress(uint64(id) << heapShift),
		slots:    make([]Descriptor, desc.Capacity),
	}
	if visible {
		h.GPUStart = gpucore.GPUAddress(gpuTag | uint64(id)<<heapShift)
	}

	t.mu.Lock()
	t.heaps[id] = h
	t.mu.Unlock()
	return h, nil
}

// Get returns the heap registered under id.
func (t *Table) Get(id gpucore.HeapID) (*Heap, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.heaps[id]
	return h, ok
}

// Remove unregisters a heap.
func (t *Table) Remove(id gpucore.HeapID) {
	t.mu.Lock()
	delete(t.heaps, id)
	t.mu.Unlock()
}

// locate resolves a CPU address to its heap and slot index. Caller must hold mu.
func (t *Table) locateLocked(addr gpucore.CPUAddress) (*Heap, uint32, error) {
	h, ok := t.heaps[gpucore.HeapID(uint64(addr)>>heapShift)]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %#x", ErrBadAddress, uint64(addr))
	}
	off := uint64(addr - h.CPUStart)
	inc := uint64(Increment(h.Type))
	if off%inc != 0 || off/inc >= uint64(len(h.slots)) {
		return nil, 0, fmt.Errorf("%w: %#x", ErrBadAddress, uint64(addr))
	}
	return h, uint32(off / inc), nil
}

// Write stores d into the slot at dst.
func (t *Table) Write(dst gpucore.CPUAddress, d Descriptor) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, i, err := t.locateLocked(dst)
	if err != nil {
		return err
	}
	if d.Kind.heapType() != h.Type {
		return fmt.Errorf("%w: %s into %s heap", ErrWrongHeapType, d.Kind, h.Type)
	}
	h.slots[i] = d
	h.Version++
	return nil
}

// Read returns the descriptor stored at addr.
func (t *Table) Read(addr gpucore.CPUAddress) (Descriptor, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, i, err := t.locateLocked(addr)
	if err != nil {
		return Descriptor{}, err
	}
	d := h.slots[i]
	if d.Kind == KindEmpty {
		return Descriptor{}, fmt.Errorf("%w: %#x", ErrEmptySlot, uint64(addr))
	}
	return d, nil
}

// ReadGPU returns n consecutive descriptors starting at the GPU address
// base, together with the heap they live in.
func (t *Table) ReadGPU(base gpucore.GPUAddress, n uint32) ([]Descriptor, *Heap, error) {
	if uint64(base)&gpuTag == 0 {
		return nil, nil, fmt.Errorf("%w: %#x is not a GPU handle", ErrBadAddress, uint64(base))
	}
	cpu := gpucore.CPUAddress(uint64(base) &^ gpuTag)

	t.mu.RLock()
	defer t.mu.RUnlock()
	h, i, err := t.locateLocked(cpu)
	if err != nil {
		return nil, nil, err
	}
	if !h.ShaderVisible() {
		return nil, nil, fmt.Errorf("%w: heap %d is not shader visible", ErrBadAddress, h.ID)
	}
	if uint64(i)+uint64(n) > uint64(len(h.slots)) {
		return nil, nil, fmt.Errorf("%w: table of %d at slot %d overruns heap %d", ErrBadAddress, n, i, h.ID)
	}
	out := make([]Descriptor, n)
	copy(out, h.slots[i:i+n])
	return out, h, nil
}

// HeapOfGPU returns the heap ID a GPU address belongs to.
func HeapOfGPU(addr gpucore.GPUAddress) gpucore.HeapID {
	return gpucore.HeapID((uint64(addr) &^ gpuTag) >> heapShift)
}
