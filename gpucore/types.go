package gpucore

import "fmt"

// Object IDs
//
// These opaque IDs represent native objects. Each backend maintains a
// mapping between IDs and actual backend objects.

// HeapID is an opaque handle to a descriptor heap.
type HeapID uint64

// ResourceID is an opaque handle to a committed resource.
type ResourceID uint64

// FenceID is an opaque handle to a fence.
type FenceID uint64

// QueueID is an opaque handle to a command queue.
type QueueID uint64

// CommandListID is an opaque handle to a command list.
type CommandListID uint64

// SwapChainID is an opaque handle to a swap chain.
type SwapChainID uint64

// RootSignatureID is an opaque handle to a root signature.
type RootSignatureID uint64

// ShaderID is an opaque handle to a shader blob.
type ShaderID uint64

// PipelineID is an opaque handle to a graphics pipeline state object.
type PipelineID uint64

// InvalidID is the zero value, representing an invalid/null object.
const InvalidID = 0

// CPUAddress is a CPU descriptor handle.
type CPUAddress uint64

// GPUAddress is a GPU descriptor handle. Zero is the null handle.
type GPUAddress uint64

// Alignment requirements of the native API.
const (
	// ConstantBufferAlignment is the required size and offset alignment of
	// constant buffer views.
	ConstantBufferAlignment = 256

	// TextureDataPitchAlignment is the row pitch alignment of buffer
	// footprints used in buffer/texture copies.
	TextureDataPitchAlignment = 256

	// TexturePlacementAlignment is the offset alignment of buffer
	// footprints used in buffer/texture copies.
	TexturePlacementAlignment = 512
)

// AlignUp rounds v up to the next multiple of align (a power of two).
func AlignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// HeapType selects the kind of descriptor stored in a heap.
type HeapType uint8

// Descriptor heap types.
const (
	// HeapTypeCBVSRVUAV stores constant buffer, shader resource and
	// unordered access views.
	HeapTypeCBVSRVUAV HeapType = iota

	// HeapTypeSampler stores samplers.
	HeapTypeSampler

	// HeapTypeRTV stores render target views.
	HeapTypeRTV

	// HeapTypeDSV stores depth stencil views.
	HeapTypeDSV

	heapTypeCount
)

// String returns the native-style name of the heap type.
func (t HeapType) String() string {
	switch t {
	case HeapTypeCBVSRVUAV:
		return "CBV_SRV_UAV"
	case HeapTypeSampler:
		return "SAMPLER"
	case HeapTypeRTV:
		return "RTV"
	case HeapTypeDSV:
		return "DSV"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// IsValid reports whether t names a known heap type.
func (t HeapType) IsValid() bool { return t < heapTypeCount }

// HeapFlags modify descriptor heap creation.
type HeapFlags uint8

// Descriptor heap flags.
const (
	// HeapFlagNone creates a CPU-only heap.
	HeapFlagNone HeapFlags = 0

	// HeapFlagShaderVisible makes the heap bindable on a command list and
	// gives its slots GPU handles.
	HeapFlagShaderVisible HeapFlags = 1 << 0
)

// String returns the native-style name of the flags.
func (f HeapFlags) String() string {
	if f&HeapFlagShaderVisible != 0 {
		return "SHADER_VISIBLE"
	}
	return "NONE"
}

// DescriptorHeapDesc describes a descriptor heap.
type DescriptorHeapDesc struct {
	// Label is an optional debug label.
	Label string

	// Type is the descriptor kind.
	Type HeapType

	// Capacity is the number of descriptor slots.
	Capacity uint32

	// Flags modify heap visibility.
	Flags HeapFlags
}

// MemoryKind selects the heap a committed resource is placed in.
type MemoryKind uint8

// Memory kinds.
const (
	// MemoryDefault is GPU-local memory, not CPU accessible.
	MemoryDefault MemoryKind = iota

	// MemoryUpload is CPU-write, GPU-read memory. Resources in it can be
	// mapped and stay mapped.
	MemoryUpload

	// MemoryReadback is GPU-write, CPU-read memory.
	MemoryReadback
)

// String returns the name of the memory kind.
func (m MemoryKind) String() string {
	switch m {
	case MemoryDefault:
		return "Default"
	case MemoryUpload:
		return "Upload"
	case MemoryReadback:
		return "Readback"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// Dimension is the resource dimension.
type Dimension uint8

// Resource dimensions.
const (
	DimensionBuffer Dimension = iota
	DimensionTexture2D
)

// ResourceFlags modify resource creation.
type ResourceFlags uint32

// Resource flags.
const (
	ResourceFlagNone               ResourceFlags = 0
	ResourceFlagAllowRenderTarget  ResourceFlags = 1 << 0
	ResourceFlagAllowDepthStencil  ResourceFlags = 1 << 1
	ResourceFlagDenyShaderResource ResourceFlags = 1 << 2
)

// Has reports whether all bits of flag are set.
func (f ResourceFlags) Has(flag ResourceFlags) bool { return f&flag == flag }

// ResourceDesc describes a committed resource.
type ResourceDesc struct {
	// Label is an optional debug label.
	Label string

	// Dimension is buffer or 2D texture.
	Dimension Dimension

	// Width is the byte size of a buffer, or the texel width of a texture.
	Width uint64

	// Height is the texel height of a texture. Buffers use 1.
	Height uint32

	// MipLevels is the number of mip levels of a texture. Buffers use 1.
	MipLevels uint16

	// Format is the texel format. Buffers use FormatUnknown.
	Format Format

	// Flags modify the allowed usages.
	Flags ResourceFlags
}

// ByteSize returns the size of the tightly packed resource contents.
func (d *ResourceDesc) ByteSize() uint64 {
	if d.Dimension == DimensionBuffer {
		return d.Width
	}
	return d.Width * uint64(d.Height) * uint64(d.Format.BytesPerPixel())
}

// ResourceState is a bitmask describing how a resource is currently used.
type ResourceState uint32

// Resource states.
const (
	// StateCommon is the state resources are promoted from. It is the same
	// value as StatePresent.
	StateCommon ResourceState = 0

	// StatePresent is owned by the presentation engine.
	StatePresent ResourceState = 0

	StateVertexAndConstantBuffer ResourceState = 1 << 0
	StateIndexBuffer             ResourceState = 1 << 1
	StateRenderTarget            ResourceState = 1 << 2
	StateDepthWrite              ResourceState = 1 << 4
	StateDepthRead               ResourceState = 1 << 5
	StatePixelShaderResource     ResourceState = 1 << 7
	StateCopyDest                ResourceState = 1 << 10
	StateCopySource              ResourceState = 1 << 11

	// StateGenericRead is required for upload heap resources.
	StateGenericRead = StateVertexAndConstantBuffer | StateIndexBuffer |
		StatePixelShaderResource | StateCopySource | 1<<6 | 1<<9
)

// String returns the native-style name of the state.
func (s ResourceState) String() string {
	switch s {
	case StatePresent:
		return "PRESENT"
	case StateVertexAndConstantBuffer:
		return "VERTEX_AND_CONSTANT_BUFFER"
	case StateIndexBuffer:
		return "INDEX_BUFFER"
	case StateRenderTarget:
		return "RENDER_TARGET"
	case StateDepthWrite:
		return "DEPTH_WRITE"
	case StateDepthRead:
		return "DEPTH_READ"
	case StatePixelShaderResource:
		return "PIXEL_SHADER_RESOURCE"
	case StateCopyDest:
		return "COPY_DEST"
	case StateCopySource:
		return "COPY_SOURCE"
	case StateGenericRead:
		return "GENERIC_READ"
	default:
		return fmt.Sprintf("ResourceState(%#x)", uint32(s))
	}
}

// ClearValue is the optimized clear value of a render target or depth
// stencil resource.
type ClearValue struct {
	Format  Format
	Color   [4]float32
	Depth   float32
	Stencil uint8
}

// Barrier is a resource state transition.
type Barrier struct {
	Resource ResourceID
	Before   ResourceState
	After    ResourceState
}

// Footprint describes a 2D texture layout inside a buffer.
type Footprint struct {
	// Offset is the byte offset of the first row in the buffer.
	Offset uint64

	// Format is the texel format.
	Format Format

	// Width and Height are in texels.
	Width  uint32
	Height uint32

	// RowPitch is the byte distance between rows. It must be a multiple
	// of TextureDataPitchAlignment.
	RowPitch uint32
}

// Size returns the number of buffer bytes the footprint spans.
func (f Footprint) Size() uint64 {
	if f.Height == 0 {
		return 0
	}
	return uint64(f.RowPitch)*uint64(f.Height-1) + uint64(f.Width)*uint64(f.Format.BytesPerPixel())
}

// Viewport is a rasterizer viewport.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Rect is a scissor rectangle.
type Rect struct {
	Left, Top, Right, Bottom int32
}

// VertexBufferView binds a vertex buffer range.
type VertexBufferView struct {
	Resource ResourceID
	Offset   uint64
	Size     uint32
	Stride   uint32
}

// IndexBufferView binds an index buffer range.
type IndexBufferView struct {
	Resource ResourceID
	Offset   uint64
	Size     uint32
	Format   Format
}

// DeviceType classifies an adapter.
type DeviceType uint8

// Device types.
const (
	DeviceTypeOther DeviceType = iota
	DeviceTypeIntegrated
	DeviceTypeDiscrete
	DeviceTypeVirtual
	DeviceTypeSoftware
)

// String returns the device type name.
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeOther:
		return "Other"
	case DeviceTypeIntegrated:
		return "Integrated"
	case DeviceTypeDiscrete:
		return "Discrete"
	case DeviceTypeVirtual:
		return "Virtual"
	case DeviceTypeSoftware:
		return "Software"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// AdapterInfo describes a display adapter.
type AdapterInfo struct {
	Name       string
	Vendor     string
	DeviceType DeviceType

	// DedicatedVideoMemory is the adapter-local memory in bytes, 0 if unknown.
	DedicatedVideoMemory uint64

	// Backend is the name of the backend that exposed the adapter.
	Backend string
}

// DisplayMode is an output resolution supported by an adapter.
type DisplayMode struct {
	Width, Height uint32

	// Refresh rate as a rational number.
	RefreshNumerator   uint32
	RefreshDenominator uint32

	Format Format
}

// RefreshRate returns the refresh rate in Hz.
func (m DisplayMode) RefreshRate() float64 {
	if m.RefreshDenominator == 0 {
		return 0
	}
	return float64(m.RefreshNumerator) / float64(m.RefreshDenominator)
}

// SwapChainDesc describes a swap chain.
type SwapChainDesc struct {
	Label       string
	Width       uint32
	Height      uint32
	BufferCount uint32
	Format      Format

	// Window is the native window handle. Zero creates a headless chain.
	Window uintptr
}
