package dx12

import (
	"fmt"
	"sync"

	"github.com/gogpu/dx12/gpucore"
)

// HeapType selects the descriptor kind a heap stores.
type HeapType = gpucore.HeapType

// HeapFlags modify heap visibility.
type HeapFlags = gpucore.HeapFlags

// Descriptor heap types and flags.
const (
	HeapTypeCBVSRVUAV = gpucore.HeapTypeCBVSRVUAV
	HeapTypeSampler   = gpucore.HeapTypeSampler
	HeapTypeRTV       = gpucore.HeapTypeRTV
	HeapTypeDSV       = gpucore.HeapTypeDSV

	HeapFlagNone          = gpucore.HeapFlagNone
	HeapFlagShaderVisible = gpucore.HeapFlagShaderVisible
)

// Handle addresses one descriptor slot. GPU is zero when the heap is not
// shader visible.
type Handle struct {
	Index     uint32
	CPU       gpucore.CPUAddress
	GPU       gpucore.GPUAddress
	Increment uint32
}

// Offset returns the handle n slots after h.
func (h Handle) Offset(n uint32) Handle {
	h.Index += n
	h.CPU += gpucore.CPUAddress(n * h.Increment)
	if h.GPU != 0 {
		h.GPU += gpucore.GPUAddress(n * h.Increment)
	}
	return h
}

// DescriptorHeap is a fixed-capacity array of descriptor slots handed out by
// a monotonic bump allocator. Slots are never reclaimed individually; Reset
// rewinds the whole heap.
type DescriptorHeap struct {
	dev       *Device
	id        gpucore.HeapID
	typ       HeapType
	flags     HeapFlags
	capacity  uint32
	increment uint32
	cpuStart  gpucore.CPUAddress
	gpuStart  gpucore.GPUAddress
	label     string

	mu       sync.Mutex
	current  uint32
	released bool
}

// NewDescriptorHeap creates a heap of capacity slots.
func NewDescriptorHeap(dev *Device, typ HeapType, capacity uint32, flags HeapFlags) (*DescriptorHeap, error) {
	if capacity == 0 {
		return nil, ErrInvalidCapacity
	}
	if !typ.IsValid() {
		return nil, fmt.Errorf("dx12: heap type %s: %w", typ, gpucore.ErrInvalidArgument)
	}
	if flags&HeapFlagShaderVisible != 0 && (typ == HeapTypeRTV || typ == HeapTypeDSV) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHeapFlags, typ)
	}
	if err := dev.checkAlive(); err != nil {
		return nil, err
	}

	label := fmt.Sprintf("DescriptorHeap type:%s capacity:%d flags:%s", typ, capacity, flags)
	id, err := dev.native.CreateDescriptorHeap(&gpucore.DescriptorHeapDesc{
		Label:    label,
		Type:     typ,
		Capacity: capacity,
		Flags:    flags,
	})
	if err != nil {
		return nil, fmt.Errorf("dx12: create %s: %w", label, err)
	}
	cpu, gpu, err := dev.native.DescriptorHeapStart(id)
	if err != nil {
		dev.native.DestroyDescriptorHeap(id)
		return nil, fmt.Errorf("dx12: %s start handles: %w", label, err)
	}

	h := &DescriptorHeap{
		dev:       dev,
		id:        id,
		typ:       typ,
		flags:     flags,
		capacity:  capacity,
		increment: dev.native.DescriptorIncrement(typ),
		cpuStart:  cpu,
		gpuStart:  gpu,
		label:     label,
	}
	dev.log().Debug("dx12: descriptor heap created", "label", label, "increment", h.increment)
	return h, nil
}

func (h *DescriptorHeap) handle(index uint32) Handle {
	hd := Handle{
		Index:     index,
		CPU:       h.cpuStart + gpucore.CPUAddress(index*h.increment),
		Increment: h.increment,
	}
	if h.gpuStart != 0 {
		hd.GPU = h.gpuStart + gpucore.GPUAddress(index*h.increment)
	}
	return hd
}

// Allocate reserves num contiguous slots and returns the handle of the
// first. On error the allocation cursor is unchanged.
func (h *DescriptorHeap) Allocate(num uint32) (Handle, error) {
	if num == 0 {
		return Handle{}, ErrInvalidCount
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return Handle{}, fmt.Errorf("%s: %w", h.label, ErrReleased)
	}
	if num > h.capacity-h.current {
		return Handle{}, fmt.Errorf("%w: %s: %d requested, %d of %d used",
			ErrHeapFull, h.label, num, h.current, h.capacity)
	}
	hd := h.handle(h.current)
	h.current += num
	return hd, nil
}

// HandleFromIndex returns the handle of an already allocated slot.
func (h *DescriptorHeap) HandleFromIndex(index uint32) (Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return Handle{}, fmt.Errorf("%s: %w", h.label, ErrReleased)
	}
	if index >= h.current {
		return Handle{}, fmt.Errorf("%w: slot %d, %d allocated", ErrIndexOutOfRange, index, h.current)
	}
	return h.handle(index), nil
}

// SetToCommandList binds the heap on cl. Only shader-visible heaps can be
// bound.
func (h *DescriptorHeap) SetToCommandList(cl *CommandList) error {
	if !h.ShaderVisible() {
		return fmt.Errorf("%w: %s", ErrHeapNotShaderVisible, h.label)
	}
	if err := h.alive(); err != nil {
		return err
	}
	return cl.setDescriptorHeap(h)
}

// Reset rewinds the allocator. Handles returned earlier refer to slots that
// will be handed out again.
func (h *DescriptorHeap) Reset() {
	h.mu.Lock()
	h.current = 0
	h.mu.Unlock()
}

// Release destroys the native heap.
func (h *DescriptorHeap) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	h.dev.native.DestroyDescriptorHeap(h.id)
	return nil
}

func (h *DescriptorHeap) alive() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return fmt.Errorf("%s: %w", h.label, ErrReleased)
	}
	return nil
}

// Type returns the descriptor kind of the heap.
func (h *DescriptorHeap) Type() HeapType { return h.typ }

// Flags returns the creation flags.
func (h *DescriptorHeap) Flags() HeapFlags { return h.flags }

// Capacity returns the number of slots.
func (h *DescriptorHeap) Capacity() uint32 { return h.capacity }

// Allocated returns the number of slots handed out since the last Reset.
func (h *DescriptorHeap) Allocated() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Remaining returns the number of free slots.
func (h *DescriptorHeap) Remaining() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.capacity - h.current
}

// Increment returns the byte distance between slots.
func (h *DescriptorHeap) Increment() uint32 { return h.increment }

// ShaderVisible reports whether slots have GPU handles.
func (h *DescriptorHeap) ShaderVisible() bool { return h.flags&HeapFlagShaderVisible != 0 }

// Label returns the debug label.
func (h *DescriptorHeap) Label() string { return h.label }
