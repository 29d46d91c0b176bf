package dx12

import (
	"fmt"
	"sync"

	"github.com/gogpu/dx12/gpucore"
)

// DefaultFrameBufferClearColor is the color back buffers are cleared to.
var DefaultFrameBufferClearColor = [4]float32{0.5, 0.5, 0.5, 1}

// FrameBuffer renders into the back buffers of a swap chain. Every back
// buffer is either in PRESENT or, between StartRendering and
// FinishRendering, in RENDER_TARGET. All buffers share one depth buffer.
type FrameBuffer struct {
	dev    *Device
	window Window
	count  uint32
	format gpucore.Format

	rtvHeap *DescriptorHeap
	depth   *DepthStencil

	mu        sync.Mutex
	color     [4]float32
	buffers   []*Texture
	rtvs      []Handle
	index     uint32
	rendering bool
	bracket   uint64 // counts StartRendering calls
}

// NewFrameBuffer creates a frame buffer of count back buffers sized to
// window. A zero count uses the device frame count.
func NewFrameBuffer(dev *Device, window Window, count uint32) (*FrameBuffer, error) {
	if count == 0 {
		count = dev.FrameCount()
	}
	if window.Width() == 0 || window.Height() == 0 {
		return nil, fmt.Errorf("%w: window %dx%d", ErrInvalidSize, window.Width(), window.Height())
	}
	fb := &FrameBuffer{
		dev:    dev,
		window: window,
		count:  count,
		format: dev.DisplayFormat(),
		color:  DefaultFrameBufferClearColor,
	}
	var err error
	if fb.rtvHeap, err = NewDescriptorHeap(dev, HeapTypeRTV, count, HeapFlagNone); err != nil {
		return nil, err
	}
	first, err := fb.rtvHeap.Allocate(count)
	if err != nil {
		_ = fb.rtvHeap.Release()
		return nil, err
	}
	for i := range count {
		fb.rtvs = append(fb.rtvs, first.Offset(i))
	}
	if fb.depth, err = NewDepthStencil(dev, window.Width(), window.Height()); err != nil {
		_ = fb.rtvHeap.Release()
		return nil, err
	}
	return fb, nil
}

// attach adopts the back buffers of a swap chain and writes their RTVs.
func (fb *FrameBuffer) attach(buffers []*Texture) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if uint32(len(buffers)) != fb.count {
		return fmt.Errorf("%w: %d buffers for a frame buffer of %d", ErrInvalidSize, len(buffers), fb.count)
	}
	for i, b := range buffers {
		if err := fb.dev.native.CreateRenderTargetView(fb.rtvs[i].CPU, b.ID()); err != nil {
			return fmt.Errorf("dx12: back buffer %d view: %w", i, err)
		}
	}
	fb.buffers = buffers
	fb.index = 0
	fb.rendering = false
	return nil
}

func (fb *FrameBuffer) detach() {
	fb.mu.Lock()
	fb.buffers = nil
	fb.rendering = false
	fb.mu.Unlock()
}

// Count returns the number of back buffers.
func (fb *FrameBuffer) Count() uint32 { return fb.count }

// Format returns the back buffer format.
func (fb *FrameBuffer) Format() gpucore.Format { return fb.format }

// Width returns the window width.
func (fb *FrameBuffer) Width() uint32 { return fb.window.Width() }

// Height returns the window height.
func (fb *FrameBuffer) Height() uint32 { return fb.window.Height() }

// Window returns the window the frame buffer renders for.
func (fb *FrameBuffer) Window() Window { return fb.window }

// Depth returns the shared depth buffer.
func (fb *FrameBuffer) Depth() *DepthStencil { return fb.depth }

// SetClearColor sets the color StartRendering clears to.
func (fb *FrameBuffer) SetClearColor(c [4]float32) {
	fb.mu.Lock()
	fb.color = c
	fb.mu.Unlock()
}

// BufferIndex returns the back buffer rendered next.
func (fb *FrameBuffer) BufferIndex() uint32 {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.index
}

// UpdateBufferIndex selects the back buffer to render into.
func (fb *FrameBuffer) UpdateBufferIndex(i uint32) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.rendering {
		return ErrAlreadyRendering
	}
	if i >= fb.count {
		return fmt.Errorf("%w: buffer %d of %d", ErrIndexOutOfRange, i, fb.count)
	}
	fb.index = i
	return nil
}

// BackBuffer returns back buffer i.
func (fb *FrameBuffer) BackBuffer(i uint32) (*Texture, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.buffers) == 0 {
		return nil, ErrNoBuffers
	}
	if i >= uint32(len(fb.buffers)) {
		return nil, fmt.Errorf("%w: buffer %d of %d", ErrIndexOutOfRange, i, len(fb.buffers))
	}
	return fb.buffers[i], nil
}

// CurrentBackBuffer returns the buffer selected by the buffer index.
func (fb *FrameBuffer) CurrentBackBuffer() (*Texture, error) {
	return fb.BackBuffer(fb.BufferIndex())
}

// BufferState returns the tracked state of back buffer i.
func (fb *FrameBuffer) BufferState(i uint32) (gpucore.ResourceState, error) {
	b, err := fb.BackBuffer(i)
	if err != nil {
		return 0, err
	}
	return b.State(), nil
}

// Rendering reports whether a StartRendering is open.
func (fb *FrameBuffer) Rendering() bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.rendering
}

// StartRendering transitions the current back buffer to RENDER_TARGET,
// clears it and the depth buffer, binds both and covers the window with
// the viewport and scissor. Recording stops at the first failing command;
// resetting cl then rolls back what was recorded. If cl is reset or
// released before it is executed, the frame buffer is no longer rendering.
func (fb *FrameBuffer) StartRendering(cl *CommandList) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.buffers) == 0 {
		return ErrNoBuffers
	}
	if fb.rendering {
		return ErrAlreadyRendering
	}
	if !cl.Recording() {
		return fmt.Errorf("%w: %q", ErrListNotRecording, cl.Label())
	}
	buf, rtv, dsv := fb.buffers[fb.index], fb.rtvs[fb.index], fb.depth.Handle()
	err := recordSteps(
		func() error { return cl.Transition(&buf.GpuResource, gpucore.StateRenderTarget) },
		func() error { return cl.ClearRenderTarget(rtv, fb.color) },
		func() error { return fb.depth.Clear(cl) },
		func() error { return cl.SetRenderTargets([]Handle{rtv}, &dsv) },
		func() error { return cl.SetViewportAndScissor(fb.window.Width(), fb.window.Height()) },
	)
	if err != nil {
		return err
	}
	fb.rendering = true
	fb.bracket++
	gen := fb.bracket
	cl.onDiscard(func() { fb.discard(gen, true) })
	return nil
}

// FinishRendering transitions the current back buffer back to PRESENT.
func (fb *FrameBuffer) FinishRendering(cl *CommandList) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if !fb.rendering {
		return ErrNotRendering
	}
	if err := cl.Transition(&fb.buffers[fb.index].GpuResource, gpucore.StatePresent); err != nil {
		return err
	}
	fb.rendering = false
	gen := fb.bracket
	cl.onDiscard(func() { fb.discard(gen, false) })
	return nil
}

// discard undoes a StartRendering (started) or FinishRendering of bracket
// gen whose list was thrown away.
func (fb *FrameBuffer) discard(gen uint64, started bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.bracket == gen && fb.rendering == started {
		fb.rendering = !started
	}
}

// Release destroys the RTV heap and the depth buffer. The back buffers
// belong to the swap chain.
func (fb *FrameBuffer) Release() error {
	fb.detach()
	err := fb.depth.Release()
	if herr := fb.rtvHeap.Release(); err == nil {
		err = herr
	}
	return err
}
