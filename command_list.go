package dx12

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/dx12/gpucore"
)

// ListState is the position of a CommandList in its life cycle.
type ListState uint8

// Command list states.
const (
	ListIdle ListState = iota
	ListRecording
	ListClosed
	ListSubmitted
	ListSignaled
)

// String returns the state name.
func (s ListState) String() string {
	switch s {
	case ListIdle:
		return "Idle"
	case ListRecording:
		return "Recording"
	case ListClosed:
		return "Closed"
	case ListSubmitted:
		return "Submitted"
	case ListSignaled:
		return "Signaled"
	default:
		return fmt.Sprintf("ListState(%d)", int(s))
	}
}

// CommandList records GPU commands. A new list is Idle; Reset starts
// recording, Close ends it, CommandQueue.Execute submits it, and the list
// becomes Signaled once a fence signaled after the submission passes.
//
// Tracked resource states follow recording order. A list that is reset,
// fails to close or is released without being executed rolls its
// transitions back.
//
// A CommandList must not be recorded from several goroutines at once.
type CommandList struct {
	dev    *Device
	native gpucore.CommandList
	label  string

	mu         sync.Mutex
	state      ListState
	fence      *Fence
	fenceValue uint64
	heaps      map[HeapType]*DescriptorHeap
	undo       []func() // newest last; dropped on Execute
	released   bool
}

// NewCommandList creates an Idle command list.
func NewCommandList(dev *Device, label string) (*CommandList, error) {
	if err := dev.checkAlive(); err != nil {
		return nil, err
	}
	native, err := dev.native.CreateCommandList(label)
	if err != nil {
		return nil, fmt.Errorf("dx12: create command list %q: %w", label, err)
	}
	// Native lists are created recording.
	if err := native.Close(); err != nil {
		native.Destroy()
		return nil, fmt.Errorf("dx12: create command list %q: %w", label, err)
	}
	return &CommandList{
		dev:    dev,
		native: native,
		label:  label,
		heaps:  make(map[HeapType]*DescriptorHeap),
	}, nil
}

// Label returns the debug label.
func (c *CommandList) Label() string { return c.label }

// Native returns the backend command list.
func (c *CommandList) Native() gpucore.CommandList { return c.native }

// State returns the current state.
func (c *CommandList) State() ListState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *CommandList) stateLocked() ListState {
	if c.state == ListSubmitted && c.fence != nil && c.fence.Completed() >= c.fenceValue {
		c.state = ListSignaled
	}
	return c.state
}

// Recording reports whether the list accepts commands.
func (c *CommandList) Recording() bool { return c.State() == ListRecording }

// Reset discards recorded commands and starts recording. Transitions
// recorded since the last Execute are rolled back.
func (c *CommandList) Reset() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return fmt.Errorf("command list %q: %w", c.label, ErrReleased)
	}
	if c.stateLocked() == ListSubmitted {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrListInFlight, c.label)
	}
	if err := c.native.Reset(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("dx12: reset %q: %w", c.label, err)
	}
	clear(c.heaps)
	c.fence, c.fenceValue = nil, 0
	c.state = ListRecording
	undo := c.takeUndo()
	c.mu.Unlock()
	rollback(undo)
	return nil
}

// Close ends recording. A recording error returns the list to Idle and
// rolls its transitions back.
func (c *CommandList) Close() error {
	c.mu.Lock()
	if c.state != ListRecording {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q is %s", ErrListNotRecording, c.label, c.state)
	}
	if err := c.native.Close(); err != nil {
		c.state = ListIdle
		undo := c.takeUndo()
		c.mu.Unlock()
		rollback(undo)
		return fmt.Errorf("dx12: close %q: %w", c.label, err)
	}
	c.state = ListClosed
	c.mu.Unlock()
	return nil
}

// Release destroys the native list. A list the GPU may still execute is
// not released.
func (c *CommandList) Release() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	if c.stateLocked() == ListSubmitted {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrListInFlight, c.label)
	}
	c.released = true
	c.native.Destroy()
	undo := c.takeUndo()
	c.mu.Unlock()
	rollback(undo)
	return nil
}

// onDiscard registers fn to run if the recorded commands are thrown away
// instead of executed.
func (c *CommandList) onDiscard(fn func()) {
	c.mu.Lock()
	c.undo = append(c.undo, fn)
	c.mu.Unlock()
}

func (c *CommandList) takeUndo() []func() {
	undo := c.undo
	c.undo = nil
	return undo
}

// recordSteps runs the recording steps in order and stops at the first
// error.
func recordSteps(steps ...func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// rollback runs undo newest first. It must be called without c.mu held:
// the entries lock resources and frame buffers.
func rollback(undo []func()) {
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

// record runs fn against the native list if the list is recording.
func (c *CommandList) record(fn func(gpucore.CommandList)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ListRecording {
		return fmt.Errorf("%w: %q is %s", ErrListNotRecording, c.label, c.state)
	}
	fn(c.native)
	return nil
}

func (c *CommandList) checkClosed() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return fmt.Errorf("command list %q: %w", c.label, ErrReleased)
	}
	if c.state != ListClosed {
		return fmt.Errorf("%w: %q is %s", ErrListNotClosed, c.label, c.state)
	}
	return nil
}

func (c *CommandList) markSubmitted() {
	c.mu.Lock()
	c.state = ListSubmitted
	c.undo = nil
	c.mu.Unlock()
}

// attach records the fence value whose completion retires the submission.
func (c *CommandList) attach(f *Fence, v uint64) {
	c.mu.Lock()
	if c.state == ListSubmitted && c.fence == nil {
		c.fence, c.fenceValue = f, v
	}
	c.mu.Unlock()
}

// Transition records a barrier moving r to after. It is a no-op when r is
// already in after.
func (c *CommandList) Transition(r *GpuResource, after gpucore.ResourceState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.id == gpucore.InvalidID {
		return fmt.Errorf("transition %q: %w", r.name, ErrResourceNotCreated)
	}
	before := r.state
	if before == after {
		return nil
	}
	err := c.record(func(cl gpucore.CommandList) {
		cl.ResourceBarrier(gpucore.Barrier{Resource: r.id, Before: before, After: after})
	})
	if err != nil {
		return err
	}
	r.state = after
	c.onDiscard(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.state == after {
			r.state = before
		}
	})
	c.dev.log().Debug("dx12: barrier", "resource", r.name, "before", before, "after", after)
	return nil
}

func (c *CommandList) setDescriptorHeap(h *DescriptorHeap) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ListRecording {
		return fmt.Errorf("%w: %q is %s", ErrListNotRecording, c.label, c.state)
	}
	if old, ok := c.heaps[h.typ]; ok && old != h {
		c.dev.log().Debug("dx12: descriptor heap replaced",
			"list", c.label, "old", old.label, "new", h.label)
	}
	c.heaps[h.typ] = h

	types := make([]HeapType, 0, len(c.heaps))
	for t := range c.heaps {
		types = append(types, t)
	}
	slices.Sort(types)
	ids := make([]gpucore.HeapID, len(types))
	for i, t := range types {
		ids[i] = c.heaps[t].id
	}
	c.native.SetDescriptorHeaps(ids...)
	return nil
}

// BoundHeap returns the heap of type t set on the list, or nil.
func (c *CommandList) BoundHeap(t HeapType) *DescriptorHeap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heaps[t]
}

// CopyBufferRegion copies size bytes between buffers.
func (c *CommandList) CopyBufferRegion(dst *GpuResource, dstOffset uint64, src *GpuResource, srcOffset, size uint64) error {
	return c.record(func(cl gpucore.CommandList) {
		cl.CopyBufferRegion(dst.ID(), dstOffset, src.ID(), srcOffset, size)
	})
}

// CopyBufferToTexture copies a footprint of src into dst.
func (c *CommandList) CopyBufferToTexture(dst, src *GpuResource, layout gpucore.Footprint) error {
	return c.record(func(cl gpucore.CommandList) {
		cl.CopyBufferToTexture(dst.ID(), src.ID(), layout)
	})
}

// CopyTextureToBuffer copies src into a footprint of dst.
func (c *CommandList) CopyTextureToBuffer(dst *GpuResource, layout gpucore.Footprint, src *GpuResource) error {
	return c.record(func(cl gpucore.CommandList) {
		cl.CopyTextureToBuffer(dst.ID(), layout, src.ID())
	})
}

// ClearRenderTarget clears the render target view at rtv.
func (c *CommandList) ClearRenderTarget(rtv Handle, color [4]float32) error {
	return c.record(func(cl gpucore.CommandList) {
		cl.ClearRenderTargetView(rtv.CPU, color)
	})
}

// ClearDepthStencil clears the depth stencil view at dsv.
func (c *CommandList) ClearDepthStencil(dsv Handle, depth float32, stencil uint8) error {
	return c.record(func(cl gpucore.CommandList) {
		cl.ClearDepthStencilView(dsv.CPU, depth, stencil)
	})
}

// SetRenderTargets binds color targets and an optional depth target.
func (c *CommandList) SetRenderTargets(rtvs []Handle, dsv *Handle) error {
	cpu := make([]gpucore.CPUAddress, len(rtvs))
	for i, h := range rtvs {
		cpu[i] = h.CPU
	}
	var depth *gpucore.CPUAddress
	if dsv != nil {
		depth = &dsv.CPU
	}
	return c.record(func(cl gpucore.CommandList) {
		cl.SetRenderTargets(cpu, depth)
	})
}

// SetViewport sets a single viewport.
func (c *CommandList) SetViewport(vp gpucore.Viewport) error {
	return c.record(func(cl gpucore.CommandList) { cl.SetViewports(vp) })
}

// SetScissor sets a single scissor rectangle.
func (c *CommandList) SetScissor(r gpucore.Rect) error {
	return c.record(func(cl gpucore.CommandList) { cl.SetScissorRects(r) })
}

// SetViewportAndScissor covers a width x height target.
func (c *CommandList) SetViewportAndScissor(width, height uint32) error {
	if err := c.SetViewport(gpucore.Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1}); err != nil {
		return err
	}
	//nolint:gosec // G115: target sizes fit int32
	return c.SetScissor(gpucore.Rect{Right: int32(width), Bottom: int32(height)})
}

// SetRootDescriptorTable binds the table starting at base to a root
// parameter.
func (c *CommandList) SetRootDescriptorTable(index uint32, base gpucore.GPUAddress) error {
	return c.record(func(cl gpucore.CommandList) {
		cl.SetGraphicsRootDescriptorTable(index, base)
	})
}

// DrawInstanced records a non-indexed draw.
func (c *CommandList) DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32) error {
	return c.record(func(cl gpucore.CommandList) {
		cl.DrawInstanced(vertexCount, instanceCount, startVertex, startInstance)
	})
}

// DrawIndexedInstanced records an indexed draw.
func (c *CommandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) error {
	return c.record(func(cl gpucore.CommandList) {
		cl.DrawIndexedInstanced(indexCount, instanceCount, startIndex, baseVertex, startInstance)
	})
}
