package dx12

import (
	"fmt"
	"sync"

	"github.com/gogpu/dx12/gpucore"
)

// ResourceKind names the variant of a Resource.
type ResourceKind uint8

// Resource kinds.
const (
	KindConstantBuffer ResourceKind = iota + 1
	KindVertexBuffer
	KindIndexBuffer
	KindTexture
	KindDepthStencil
	KindRenderTarget
)

// String returns the kind name.
func (k ResourceKind) String() string {
	switch k {
	case KindConstantBuffer:
		return "ConstantBuffer"
	case KindVertexBuffer:
		return "VertexBuffer"
	case KindIndexBuffer:
		return "IndexBuffer"
	case KindTexture:
		return "Texture"
	case KindDepthStencil:
		return "DepthStencil"
	case KindRenderTarget:
		return "RenderTarget"
	default:
		return fmt.Sprintf("ResourceKind(%d)", int(k))
	}
}

// Resource is implemented by the resource types of this package only.
type Resource interface {
	Kind() ResourceKind
	Base() *GpuResource
	Release() error

	sealed()
}

// GpuResource is the state shared by every committed resource: the native
// object, its element layout, its tracked state and its shader view.
type GpuResource struct {
	dev   *Device
	id    gpucore.ResourceID
	mem   gpucore.MemoryKind
	desc  gpucore.ResourceDesc
	bytes uint64

	alignedStride uint64
	num           uint32

	// external resources belong to a swap chain.
	external bool

	mu        sync.Mutex
	name      string
	state     gpucore.ResourceState
	view      Handle
	viewCount uint32
}

func (r *GpuResource) sealed() {}

// Base returns r.
func (r *GpuResource) Base() *GpuResource { return r }

// createCommitted allocates the native resource. Buffers hold num elements
// of stride bytes each rounded up to align; textures take their size from
// desc.
func (r *GpuResource) createCommitted(dev *Device, mem gpucore.MemoryKind, desc gpucore.ResourceDesc,
	stride uint64, num uint32, align uint64, state gpucore.ResourceState, clear *gpucore.ClearValue,
) error {
	if err := dev.checkAlive(); err != nil {
		return err
	}
	if desc.Dimension == gpucore.DimensionBuffer {
		if stride == 0 || num == 0 {
			return fmt.Errorf("%w: %d elements of %d bytes", ErrInvalidSize, num, stride)
		}
		r.alignedStride = gpucore.AlignUp(stride, max(align, 1))
		r.num = num
		desc.Width = r.alignedStride * uint64(num)
		desc.Height = 1
	} else {
		if desc.Width == 0 || desc.Height == 0 {
			return fmt.Errorf("%w: %dx%d texture", ErrInvalidSize, desc.Width, desc.Height)
		}
		r.alignedStride = desc.ByteSize()
		r.num = 1
	}
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	bytes := desc.ByteSize()
	if err := dev.budget.reserve(bytes); err != nil {
		return err
	}
	id, err := dev.native.CreateCommittedResource(mem, &desc, state, clear)
	if err != nil {
		dev.budget.free(bytes)
		return fmt.Errorf("dx12: create %q: %w", desc.Label, err)
	}
	r.dev, r.id, r.mem, r.desc, r.bytes = dev, id, mem, desc, bytes
	r.name, r.state = desc.Label, state
	dev.log().Debug("dx12: resource created",
		"name", r.name, "memory", mem, "bytes", bytes, "state", state)
	return nil
}

// wrapExternal adopts a resource owned by the native swap chain.
func (r *GpuResource) wrapExternal(dev *Device, id gpucore.ResourceID, desc gpucore.ResourceDesc, state gpucore.ResourceState) {
	r.dev, r.id, r.mem, r.desc = dev, id, gpucore.MemoryDefault, desc
	r.alignedStride, r.num = desc.ByteSize(), 1
	r.external = true
	r.name, r.state = desc.Label, state
}

func (r *GpuResource) mustExist() {
	if r.id == gpucore.InvalidID {
		panic(ErrResourceNotCreated)
	}
}

// SetName sets the diagnostic name.
func (r *GpuResource) SetName(name string) {
	r.mu.Lock()
	r.name = name
	r.mu.Unlock()
}

// Name returns the diagnostic name.
func (r *GpuResource) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

// ID returns the native resource, InvalidID once released.
func (r *GpuResource) ID() gpucore.ResourceID { return r.id }

// Desc returns the native description.
func (r *GpuResource) Desc() gpucore.ResourceDesc { return r.desc }

// Memory returns the heap the resource lives in.
func (r *GpuResource) Memory() gpucore.MemoryKind { return r.mem }

// Stride returns the aligned element size. It panics with
// ErrResourceNotCreated on a resource that does not exist.
func (r *GpuResource) Stride() uint64 {
	r.mustExist()
	return r.alignedStride
}

// Num returns the element count. It panics with ErrResourceNotCreated on a
// resource that does not exist.
func (r *GpuResource) Num() uint32 {
	r.mustExist()
	return r.num
}

// Size returns Stride()*Num(). It panics with ErrResourceNotCreated on a
// resource that does not exist.
func (r *GpuResource) Size() uint64 {
	r.mustExist()
	return r.alignedStride * uint64(r.num)
}

// Offset returns the byte offset of element index.
func (r *GpuResource) Offset(index uint32) (uint64, error) {
	r.mustExist()
	if index >= r.num {
		return 0, fmt.Errorf("%w: element %d of %d", ErrIndexOutOfRange, index, r.num)
	}
	return r.alignedStride * uint64(index), nil
}

// State returns the state recorded by the last transition.
func (r *GpuResource) State() gpucore.ResourceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// View returns the first shader view handle and the number of views.
func (r *GpuResource) View() (Handle, uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view, r.viewCount
}

func (r *GpuResource) setView(h Handle, count uint32) {
	r.mu.Lock()
	r.view, r.viewCount = h, count
	r.mu.Unlock()
}

// SetToCommandList binds the descriptor table of view index to root
// parameter rootParameterIndex.
func (r *GpuResource) SetToCommandList(cl *CommandList, rootParameterIndex, index uint32) error {
	view, n := r.View()
	if n == 0 || view.GPU == 0 {
		return fmt.Errorf("%w: %q", ErrNoView, r.Name())
	}
	if index >= n {
		return fmt.Errorf("%w: view %d of %d", ErrIndexOutOfRange, index, n)
	}
	return cl.SetRootDescriptorTable(rootParameterIndex, view.Offset(index).GPU)
}

// release destroys the native resource and returns its bytes to the budget.
func (r *GpuResource) release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.id == gpucore.InvalidID {
		return nil
	}
	if !r.external {
		r.dev.native.DestroyResource(r.id)
		r.dev.budget.free(r.bytes)
	}
	r.id = gpucore.InvalidID
	r.viewCount = 0
	return nil
}

// Release destroys the resource. Releasing twice is a no-op.
func (r *GpuResource) Release() error { return r.release() }

// mapped runs fn over the CPU view of an upload or readback resource.
func (r *GpuResource) mapped(fn func([]byte) error) error {
	data, err := r.dev.native.Map(r.id)
	if err != nil {
		return fmt.Errorf("dx12: map %q: %w", r.Name(), err)
	}
	defer r.dev.native.Unmap(r.id)
	return fn(data)
}

func bufferDesc(label string) gpucore.ResourceDesc {
	return gpucore.ResourceDesc{Label: label, Dimension: gpucore.DimensionBuffer, MipLevels: 1}
}
