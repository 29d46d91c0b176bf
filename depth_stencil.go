package dx12

import (
	"fmt"

	"github.com/gogpu/dx12/gpucore"
)

// DepthStencilFormat is the format of every DepthStencil.
const DepthStencilFormat = gpucore.FormatD24UnormS8Uint

// DepthStencil is a D24S8 depth buffer with its own single-slot DSV heap.
// It cannot be sampled.
type DepthStencil struct {
	GpuResource
	heap *DescriptorHeap
	dsv  Handle
}

// NewDepthStencil creates a width x height depth buffer in DEPTH_WRITE.
func NewDepthStencil(dev *Device, width, height uint32) (*DepthStencil, error) {
	ds := &DepthStencil{}
	desc := gpucore.ResourceDesc{
		Label:     fmt.Sprintf("DepthStencil %dx%d", width, height),
		Dimension: gpucore.DimensionTexture2D,
		Width:     uint64(width),
		Height:    height,
		MipLevels: 1,
		Format:    DepthStencilFormat,
		Flags:     gpucore.ResourceFlagAllowDepthStencil | gpucore.ResourceFlagDenyShaderResource,
	}
	clearValue := &gpucore.ClearValue{Format: DepthStencilFormat, Depth: 1, Stencil: 0}
	if err := ds.createCommitted(dev, gpucore.MemoryDefault, desc, 0, 1, 1, gpucore.StateDepthWrite, clearValue); err != nil {
		return nil, err
	}
	heap, err := NewDescriptorHeap(dev, HeapTypeDSV, 1, HeapFlagNone)
	if err != nil {
		_ = ds.release()
		return nil, err
	}
	ds.heap = heap
	if ds.dsv, err = ds.CreateView(heap); err != nil {
		_ = ds.Release()
		return nil, err
	}
	return ds, nil
}

// Kind returns KindDepthStencil.
func (ds *DepthStencil) Kind() ResourceKind { return KindDepthStencil }

// Handle returns the depth stencil view.
func (ds *DepthStencil) Handle() Handle { return ds.dsv }

// CreateView writes a DSV into heap. Shader resource heaps are rejected.
func (ds *DepthStencil) CreateView(heap *DescriptorHeap) (Handle, error) {
	ds.mustExist()
	switch heap.Type() {
	case HeapTypeDSV:
	case HeapTypeCBVSRVUAV:
		return Handle{}, fmt.Errorf("%w: %q", ErrShaderResourceDenied, ds.Name())
	default:
		return Handle{}, fmt.Errorf("%w: DSV in %s heap", ErrWrongHeapType, heap.Type())
	}
	h, err := heap.Allocate(1)
	if err != nil {
		return Handle{}, err
	}
	if err := ds.dev.native.CreateDepthStencilView(h.CPU, ds.id); err != nil {
		return Handle{}, fmt.Errorf("dx12: depth stencil view: %w", err)
	}
	return h, nil
}

// Clear records a clear to depth 1 and stencil 0.
func (ds *DepthStencil) Clear(cl *CommandList) error {
	return cl.ClearDepthStencil(ds.dsv, 1, 0)
}

// Release destroys the buffer and its heap.
func (ds *DepthStencil) Release() error {
	if ds.heap != nil {
		_ = ds.heap.Release()
		ds.heap = nil
	}
	return ds.release()
}
