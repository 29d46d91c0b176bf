package gpucore

import "context"

// Backend exposes the adapters of one native API.
type Backend interface {
	// Name returns the backend identifier (e.g., "software", "wgpu").
	Name() string

	// EnumerateAdapters lists the adapters in preference order.
	EnumerateAdapters() ([]AdapterInfo, error)

	// Open creates a logical device on the adapter at index.
	Open(index int) (Device, error)

	// Close releases backend-level state. Devices opened from the backend
	// must be destroyed first.
	Close()
}

// Device is a logical GPU device.
//
// Creation methods return an ID that stays valid until the matching
// Destroy call. Destroying an unknown ID is a no-op.
type Device interface {
	// Info returns the adapter the device was opened on.
	Info() AdapterInfo

	// DisplayModes lists the output modes supported for format. The list
	// may contain several refresh rates for the same resolution.
	DisplayModes(format Format) ([]DisplayMode, error)

	// === Descriptor heaps ===

	// DescriptorIncrement returns the byte distance between two slots of
	// a heap of type t.
	DescriptorIncrement(t HeapType) uint32

	CreateDescriptorHeap(desc *DescriptorHeapDesc) (HeapID, error)

	// DescriptorHeapStart returns the handles of slot 0. The GPU handle is
	// zero for heaps that are not shader-visible.
	DescriptorHeapStart(id HeapID) (CPUAddress, GPUAddress, error)

	DestroyDescriptorHeap(id HeapID)

	// CreateConstantBufferView writes a CBV for res[offset:offset+size]
	// into the slot at dst.
	CreateConstantBufferView(dst CPUAddress, res ResourceID, offset, size uint64) error

	// CreateShaderResourceView writes an SRV for a texture into dst.
	CreateShaderResourceView(dst CPUAddress, res ResourceID) error

	// CreateRenderTargetView writes an RTV into dst.
	CreateRenderTargetView(dst CPUAddress, res ResourceID) error

	// CreateDepthStencilView writes a DSV into dst.
	CreateDepthStencilView(dst CPUAddress, res ResourceID) error

	// === Resources ===

	// CreateCommittedResource allocates a resource with its own backing
	// memory. clear is the optimized clear value, nil if none.
	CreateCommittedResource(mem MemoryKind, desc *ResourceDesc, initial ResourceState, clear *ClearValue) (ResourceID, error)

	// Map returns the CPU view of an upload or readback resource. Upload
	// resources may stay mapped for their whole lifetime.
	Map(id ResourceID) ([]byte, error)

	// Unmap ends a mapping. Writes to upload memory become visible to the
	// next executed command list.
	Unmap(id ResourceID)

	DestroyResource(id ResourceID)

	// === Synchronization ===

	CreateFence(initial uint64) (FenceID, error)

	// FenceCompletedValue returns the last value the fence reached.
	FenceCompletedValue(id FenceID) uint64

	// SignalFence sets the fence from the CPU side.
	SignalFence(id FenceID, value uint64) error

	// WaitFence blocks until the fence reaches value or ctx is done.
	WaitFence(ctx context.Context, id FenceID, value uint64) error

	DestroyFence(id FenceID)

	// === Queues ===

	CreateCommandQueue(label string) (QueueID, error)

	// ExecuteCommandLists submits closed lists in order.
	ExecuteCommandLists(q QueueID, lists []CommandList) error

	// QueueSignal sets the fence to value once all previously submitted
	// work on q completed.
	QueueSignal(q QueueID, fence FenceID, value uint64) error

	// QueueWait holds back work submitted to q after this call until the
	// fence reaches value. The CPU does not block.
	QueueWait(q QueueID, fence FenceID, value uint64) error

	DestroyCommandQueue(id QueueID)

	// CreateCommandList returns a list in the recording state.
	CreateCommandList(label string) (CommandList, error)

	// === Pipelines ===

	CreateRootSignature(desc *RootSignatureDesc) (RootSignatureID, error)
	DestroyRootSignature(id RootSignatureID)

	CreateShader(desc *ShaderDesc) (ShaderID, error)
	DestroyShader(id ShaderID)

	CreatePipelineState(desc *PipelineDesc) (PipelineID, error)
	DestroyPipelineState(id PipelineID)

	// === Presentation ===

	// CreateSwapChain creates a chain presenting from queue q.
	CreateSwapChain(q QueueID, desc *SwapChainDesc) (SwapChainID, error)

	// SwapChainBuffer returns the resource of back buffer index. The
	// resource is owned by the swap chain.
	SwapChainBuffer(id SwapChainID, index uint32) (ResourceID, error)

	// CurrentBackBufferIndex returns the buffer the application renders
	// into next. It is presentation-engine state and changes on Present.
	CurrentBackBufferIndex(id SwapChainID) uint32

	// Present queues the current back buffer for display.
	Present(id SwapChainID, syncInterval uint32) error

	DestroySwapChain(id SwapChainID)

	// Destroy releases the device and every object it still owns.
	Destroy()
}

// CommandList records GPU commands.
//
// Recording methods report misuse from Close rather than returning an
// error per call.
type CommandList interface {
	ID() CommandListID

	// Reset discards the recorded commands and starts recording again.
	Reset() error

	// Close ends recording and returns the first recording error.
	Close() error

	ResourceBarrier(barriers ...Barrier)
	CopyBufferRegion(dst ResourceID, dstOffset uint64, src ResourceID, srcOffset, size uint64)
	CopyBufferToTexture(dst ResourceID, src ResourceID, layout Footprint)
	CopyTextureToBuffer(dst ResourceID, layout Footprint, src ResourceID)

	ClearRenderTargetView(rtv CPUAddress, color [4]float32)
	ClearDepthStencilView(dsv CPUAddress, depth float32, stencil uint8)

	// SetRenderTargets binds color targets and an optional depth target.
	SetRenderTargets(rtvs []CPUAddress, dsv *CPUAddress)
	SetViewports(viewports ...Viewport)
	SetScissorRects(rects ...Rect)

	// SetDescriptorHeaps binds shader-visible heaps, at most one per type.
	SetDescriptorHeaps(heaps ...HeapID)
	SetGraphicsRootSignature(id RootSignatureID)
	SetGraphicsRootDescriptorTable(index uint32, base GPUAddress)
	SetPipelineState(id PipelineID)

	SetVertexBuffers(startSlot uint32, views ...VertexBufferView)
	SetIndexBuffer(view *IndexBufferView)
	DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32)
	DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32)

	// Destroy releases the list.
	Destroy()
}
