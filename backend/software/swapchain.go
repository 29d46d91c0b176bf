package software

import (
	"fmt"

	"github.com/gogpu/dx12/gpucore"
)

// Swap chain buffer count limits.
const (
	MinSwapChainBuffers = 2
	MaxSwapChainBuffers = 16
)

// swapChain is a ring of presentable textures. Presenting hands the current
// buffer to the queue and advances the index.
type swapChain struct {
	id      gpucore.SwapChainID
	queue   *queue
	desc    gpucore.SwapChainDesc
	buffers []*resource
	current uint32 // guarded by Device.stateMu
}

// CreateSwapChain creates a swap chain presenting on queue q. The software
// device never shows anything, so the window handle may be zero.
func (d *Device) CreateSwapChain(qid gpucore.QueueID, desc *gpucore.SwapChainDesc) (gpucore.SwapChainID, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: empty swap chain", gpucore.ErrInvalidArgument)
	}
	if desc.BufferCount < MinSwapChainBuffers || desc.BufferCount > MaxSwapChainBuffers {
		return gpucore.InvalidID, fmt.Errorf("%w: %d buffers, want %d..%d",
			gpucore.ErrInvalidArgument, desc.BufferCount, MinSwapChainBuffers, MaxSwapChainBuffers)
	}
	if desc.Format != gpucore.FormatRGBA8Unorm && desc.Format != gpucore.FormatBGRA8Unorm {
		return gpucore.InvalidID, fmt.Errorf("%w: swap chain format %s", gpucore.ErrInvalidArgument, desc.Format)
	}
	q, err := d.lookupQueue(qid)
	if err != nil {
		return gpucore.InvalidID, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return gpucore.InvalidID, err
	}
	sc := &swapChain{id: gpucore.SwapChainID(d.newID()), queue: q, desc: *desc}
	for i := uint32(0); i < desc.BufferCount; i++ {
		rd := gpucore.ResourceDesc{
			Label:     fmt.Sprintf("%s buffer %d", desc.Label, i),
			Dimension: gpucore.DimensionTexture2D,
			Width:     uint64(desc.Width),
			Height:    desc.Height,
			MipLevels: 1,
			Format:    desc.Format,
			Flags:     gpucore.ResourceFlagAllowRenderTarget,
		}
		r := &resource{
			id:    gpucore.ResourceID(d.newID()),
			mem:   gpucore.MemoryDefault,
			desc:  rd,
			data:  make([]byte, rd.ByteSize()),
			state: gpucore.StatePresent,
			owner: sc.id,
		}
		d.resources[r.id] = r
		sc.buffers = append(sc.buffers, r)
	}
	d.swapChains[sc.id] = sc
	d.log().Debug("software: swap chain created", "id", sc.id, "buffers", desc.BufferCount,
		"width", desc.Width, "height", desc.Height)
	return sc.id, nil
}

func (d *Device) lookupSwapChain(id gpucore.SwapChainID) (*swapChain, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sc, ok := d.swapChains[id]
	if !ok {
		return nil, fmt.Errorf("%w: swap chain %d", gpucore.ErrUnknownID, id)
	}
	return sc, nil
}

// SwapChainBuffer returns the resource of buffer index.
func (d *Device) SwapChainBuffer(id gpucore.SwapChainID, index uint32) (gpucore.ResourceID, error) {
	sc, err := d.lookupSwapChain(id)
	if err != nil {
		return gpucore.InvalidID, err
	}
	if index >= uint32(len(sc.buffers)) {
		return gpucore.InvalidID, fmt.Errorf("%w: buffer %d of %d", gpucore.ErrInvalidArgument, index, len(sc.buffers))
	}
	return sc.buffers[index].id, nil
}

// CurrentBackBufferIndex returns the buffer to render into next.
func (d *Device) CurrentBackBufferIndex(id gpucore.SwapChainID) uint32 {
	sc, err := d.lookupSwapChain(id)
	if err != nil {
		return 0
	}
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return sc.current
}

// Present queues the current buffer for display. The buffer must have been
// transitioned back to PRESENT by a submitted list.
func (d *Device) Present(id gpucore.SwapChainID, syncInterval uint32) error {
	sc, err := d.lookupSwapChain(id)
	if err != nil {
		return err
	}
	if syncInterval > 4 {
		return fmt.Errorf("%w: sync interval %d", gpucore.ErrInvalidArgument, syncInterval)
	}

	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	buf := sc.buffers[sc.current]
	if buf.state != gpucore.StatePresent {
		return fmt.Errorf("%w: back buffer %d in %s", gpucore.ErrInvalidState, sc.current, buf.state)
	}
	if err := sc.queue.submit(func() { d.presents.Add(1) }); err != nil {
		return err
	}
	sc.current = (sc.current + 1) % uint32(len(sc.buffers))
	return nil
}

// DestroySwapChain releases the chain and its buffers.
func (d *Device) DestroySwapChain(id gpucore.SwapChainID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapChains[id]
	if !ok {
		return
	}
	for _, b := range sc.buffers {
		delete(d.resources, b.id)
	}
	delete(d.swapChains, id)
}
