// Package wgpu implements gpucore on top of the gogpu/wgpu hardware
// abstraction layer.
//
// On Windows the package opens the hal DX12 backend; elsewhere it opens
// Vulkan. Devices shared with a gogpu application can be wrapped with
// NewFromProvider.
//
// # Translation
//
// Command lists are recorded as op streams and translated into hal command
// encoders at ExecuteCommandLists:
//
//   - Resource barriers become texture usage transitions.
//   - ClearRenderTargetView and ClearDepthStencilView become single-attachment
//     render passes with a clear load op.
//   - Draws open a render pass lazily over the bound targets and reuse it
//     until a non-draw command ends it.
//   - Descriptor tables become bind groups, one per root parameter, with the
//     static samplers of a root signature in one extra group after them.
//
// Upload heap resources keep a CPU shadow that is written to the GPU buffer
// before each submission. Readback resources are read on Map.
//
// Import the package for its side effect to register the "wgpu" backend:
//
//	import _ "github.com/gogpu/dx12/backend/wgpu"
package wgpu
