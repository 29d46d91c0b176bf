package dx12

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/dx12/gpucore"
)

// SwapChain presents the back buffers of a FrameBuffer from a queue.
type SwapChain struct {
	dev   *Device
	queue *CommandQueue
	fb    *FrameBuffer
	id    gpucore.SwapChainID

	mu       sync.Mutex
	released bool
}

// NewSwapChain creates a flip-discard chain with one buffer per FrameBuffer
// back buffer and hands the buffers to fb.
func NewSwapChain(dev *Device, queue *CommandQueue, fb *FrameBuffer) (*SwapChain, error) {
	if err := dev.checkAlive(); err != nil {
		return nil, err
	}
	desc := &gpucore.SwapChainDesc{
		Label:       "SwapChain",
		Width:       fb.Width(),
		Height:      fb.Height(),
		BufferCount: fb.Count(),
		Format:      fb.Format(),
		Window:      fb.Window().Handle(),
	}
	id, err := dev.native.CreateSwapChain(queue.id, desc)
	if err != nil {
		return nil, fmt.Errorf("dx12: create swap chain: %w", err)
	}
	sc := &SwapChain{dev: dev, queue: queue, fb: fb, id: id}

	buffers := make([]*Texture, fb.Count())
	for i := range buffers {
		//nolint:gosec // G115: bounded by the buffer count
		rid, err := dev.native.SwapChainBuffer(id, uint32(i))
		if err != nil {
			dev.native.DestroySwapChain(id)
			return nil, fmt.Errorf("dx12: swap chain buffer %d: %w", i, err)
		}
		t := &Texture{}
		t.wrapExternal(dev, rid, gpucore.ResourceDesc{
			Label:     fmt.Sprintf("BackBuffer %d", i),
			Dimension: gpucore.DimensionTexture2D,
			Width:     uint64(desc.Width),
			Height:    desc.Height,
			MipLevels: 1,
			Format:    desc.Format,
			Flags:     gpucore.ResourceFlagAllowRenderTarget,
		}, gpucore.StatePresent)
		buffers[i] = t
	}
	if err := fb.attach(buffers); err != nil {
		dev.native.DestroySwapChain(id)
		return nil, err
	}
	if err := sc.BeginFrame(); err != nil {
		_ = sc.Release()
		return nil, err
	}
	dev.log().Debug("dx12: swap chain created", "buffers", desc.BufferCount,
		"width", desc.Width, "height", desc.Height, "format", desc.Format)
	return sc, nil
}

// FrameBuffer returns the frame buffer the chain feeds.
func (sc *SwapChain) FrameBuffer() *FrameBuffer { return sc.fb }

// CurrentBufferIndex returns the buffer the presentation engine hands out
// next.
func (sc *SwapChain) CurrentBufferIndex() uint32 {
	return sc.dev.native.CurrentBackBufferIndex(sc.id)
}

// BeginFrame points the FrameBuffer at the current buffer.
func (sc *SwapChain) BeginFrame() error {
	return sc.fb.UpdateBufferIndex(sc.CurrentBufferIndex())
}

// Present queues the current buffer for display. The buffer must have been
// returned to PRESENT.
func (sc *SwapChain) Present(syncInterval uint32) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.released {
		return fmt.Errorf("swap chain: %w", ErrReleased)
	}
	buf, err := sc.fb.BackBuffer(sc.CurrentBufferIndex())
	if err != nil {
		return err
	}
	if st := buf.State(); st != gpucore.StatePresent {
		return fmt.Errorf("%w: %q in %s", ErrNotPresentable, buf.Name(), st)
	}
	if err := sc.dev.native.Present(sc.id, syncInterval); err != nil {
		if errors.Is(err, gpucore.ErrInvalidState) {
			return fmt.Errorf("%w: %w", ErrNotPresentable, err)
		}
		return fmt.Errorf("dx12: present: %w", err)
	}
	return nil
}

// Release destroys the chain and detaches its buffers from the FrameBuffer.
func (sc *SwapChain) Release() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.released {
		return nil
	}
	sc.released = true
	sc.fb.detach()
	sc.dev.native.DestroySwapChain(sc.id)
	return nil
}
