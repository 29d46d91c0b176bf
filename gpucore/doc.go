// Package gpucore defines the backend-neutral native device interface used by dx12.
//
// The interface is shaped after Direct3D 12: descriptor heaps addressed by
// CPU and GPU descriptor handles, committed resources with explicit
// resource states, fences exposing a monotonically increasing 64-bit
// counter, direct command queues, and command lists that are reset,
// recorded, closed and executed.
//
// # Architecture
//
//	               +-----------------+
//	               |      dx12       |
//	               | (heaps, frames) |
//	               +--------+--------+
//	                        |
//	               +--------v--------+
//	               |     gpucore     |
//	               | Backend/Device  |
//	               +--------+--------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|    software     |          |      wgpu       |
//	| (reference GPU) |          |  (hal.Device)   |
//	+-----------------+          +--------+--------+
//	                                      |
//	                             +--------v--------+
//	                             |   gogpu/wgpu    |
//	                             | DX12 / Vulkan   |
//	                             +-----------------+
//
// # Resource Management
//
// Native objects are referenced through opaque IDs ([HeapID],
// [ResourceID], [FenceID], ...). Each backend keeps the mapping between IDs
// and its own objects. The zero value [InvalidID] never names a live
// object.
//
// # Descriptor Addresses
//
// [CPUAddress] and [GPUAddress] play the role of D3D12 CPU and GPU
// descriptor handles. A heap's slot i lives at start + i*increment, where
// the increment is reported by [Device.DescriptorIncrement]. Heaps that are
// not shader-visible report a zero GPU start.
//
// # Command Recording
//
// [CommandList] recording methods do not return errors. A backend records
// the first misuse it sees and reports it from [CommandList.Close], the way
// a D3D12 command list reports E_INVALIDARG on Close.
package gpucore
