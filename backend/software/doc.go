// Package software implements gpucore on the CPU.
//
// The device keeps resource memory in byte slices and executes copies and
// clears byte-exactly on a per-queue worker goroutine. Fences are real
// counters: QueueSignal completes only after every command list submitted
// before it ran, and WaitFence blocks until then.
//
// # Validation
//
// ExecuteCommandLists replays each list against the queue-timeline state of
// every resource before anything runs, in the manner of the D3D12 debug
// layer. A barrier whose before state does not match, a clear of a target
// that is not in RENDER_TARGET, or a draw with missing bindings rejects the
// whole submission with gpucore.ErrInvalidBarrier or gpucore.ErrInvalidState.
//
// Draws are validated and counted but not rasterized.
//
// Import the package for its side effect to register the "software" backend:
//
//	import _ "github.com/gogpu/dx12/backend/software"
package software
