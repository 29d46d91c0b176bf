// Package dx12 is a descriptor heap, resource and frame synchronization
// layer over a D3D12-shaped GPU API.
//
// # Overview
//
// A [Device] wraps one gpucore.Device opened on a registered backend. Every
// other object takes the device explicitly; there is no package-level
// device.
//
//	dev, err := dx12.NewDevice(dx12.WithBackend("software"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Release()
//
// # Descriptor heaps
//
// [DescriptorHeap] is a bump allocator over a fixed number of descriptor
// slots. Each allocation returns a [Handle] with the CPU address of its first
// slot and, for shader-visible heaps, the GPU address. Running out of slots
// returns [ErrHeapFull]. [DescriptorPool] layers a free list on top for
// descriptors that come and go.
//
// # Resources
//
// Resources are a closed set of variants implementing [Resource]:
// [ConstantBuffer], [VertexBuffer], [IndexBuffer], [Texture],
// [DepthStencil] and [RenderTarget]. Each embeds a [GpuResource] that owns
// one committed allocation and tracks its resource state.
//
// # Frame synchronization
//
// Command lists move through Idle, Recording, Closed, Submitted and
// Signaled. A [CommandQueue] executes closed lists and signals a [Fence]
// after them. [FrameBuffer] brackets rendering with the PRESENT and
// RENDER_TARGET transitions, and [SwapChain] rotates its back buffers:
//
//	idx, _ := swap.BeginFrame()
//	_ = list.Reset()
//	_ = frame.StartRendering(list)
//	// draw
//	_ = frame.FinishRendering(list)
//	_ = list.Close()
//	_ = queue.Execute(list)
//	_ = swap.Present(1)
//	_ = queue.Flush(ctx)
//
// # Backends
//
// The software reference backend is always linked. Import
// github.com/gogpu/dx12/backend/wgpu for the hardware backend (DX12 on
// Windows, Vulkan elsewhere).
package dx12
