package wgpu

import (
	"fmt"

	"github.com/gogpu/dx12/gpucore"
)

// swapChain is a ring of offscreen render targets. Presenting to a window
// surface needs a gogpu window provider and is not done here.
type swapChain struct {
	id      gpucore.SwapChainID
	desc    gpucore.SwapChainDesc
	buffers []*resource
	current uint32 // guarded by Device.stateMu
}

func (sc *swapChain) release(d *Device) {
	for _, b := range sc.buffers {
		delete(d.resources, b.id)
		d.releaseResource(b)
	}
	sc.buffers = nil
}

// CreateSwapChain creates a headless swap chain of desc.BufferCount textures.
func (d *Device) CreateSwapChain(q gpucore.QueueID, desc *gpucore.SwapChainDesc) (gpucore.SwapChainID, error) {
	if err := d.checkQueue(q); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil || desc.Width == 0 || desc.Height == 0 || desc.BufferCount < 2 || desc.BufferCount > 16 {
		return gpucore.InvalidID, fmt.Errorf("%w: swap chain %+v", gpucore.ErrInvalidArgument, desc)
	}
	if desc.Window != 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: window surfaces", gpucore.ErrNotSupported)
	}

	sc := &swapChain{desc: *desc}
	for i := uint32(0); i < desc.BufferCount; i++ {
		r := &resource{
			mem: gpucore.MemoryDefault,
			desc: gpucore.ResourceDesc{
				Label:     fmt.Sprintf("%s buffer %d", desc.Label, i),
				Dimension: gpucore.DimensionTexture2D,
				Width:     uint64(desc.Width),
				Height:    desc.Height,
				MipLevels: 1,
				Format:    desc.Format,
				Flags:     gpucore.ResourceFlagAllowRenderTarget,
			},
			state: gpucore.StatePresent,
		}
		if err := d.createTexture(r); err != nil {
			for _, b := range sc.buffers {
				d.releaseResource(b)
			}
			return gpucore.InvalidID, err
		}
		sc.buffers = append(sc.buffers, r)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		for _, b := range sc.buffers {
			d.releaseResource(b)
		}
		return gpucore.InvalidID, err
	}
	sc.id = gpucore.SwapChainID(d.newID())
	for _, b := range sc.buffers {
		b.id = gpucore.ResourceID(d.newID())
		b.owner = sc.id
		d.resources[b.id] = b
	}
	d.swapChains[sc.id] = sc
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

// Present rotates to the next buffer. The current buffer must be in
// PRESENT.
func (d *Device) Present(id gpucore.SwapChainID, _ uint32) error {
	sc, err := d.lookupSwapChain(id)
	if err != nil {
		return err
	}
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if st := sc.buffers[sc.current].state; st != gpucore.StatePresent {
		return fmt.Errorf("%w: back buffer %d in %s", gpucore.ErrInvalidState, sc.current, st)
	}
	sc.current = (sc.current + 1) % uint32(len(sc.buffers))
	return nil
}

// DestroySwapChain releases the chain and its buffers.
func (d *Device) DestroySwapChain(id gpucore.SwapChainID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sc, ok := d.swapChains[id]; ok {
		sc.release(d)
		delete(d.swapChains, id)
	}
}
