package dx12

import (
	"fmt"
	"sync"

	"github.com/gogpu/dx12/gpucore"
)

// DefaultRenderTargetClearColor is the clear color of a new RenderTarget.
var DefaultRenderTargetClearColor = [4]float32{0, 0.5, 0, 1}

// RenderTarget is an offscreen color target with its own depth buffer. It
// rests in PIXEL_SHADER_RESOURCE so it can be sampled between passes.
type RenderTarget struct {
	Texture
	rtvHeap *DescriptorHeap
	rtv     Handle
	depth   *DepthStencil

	mu        sync.Mutex
	color     [4]float32
	rendering bool
	bracket   uint64
}

// NewRenderTarget creates a width x height RGBA8 render target.
func NewRenderTarget(dev *Device, width, height uint32) (*RenderTarget, error) {
	rt := &RenderTarget{color: DefaultRenderTargetClearColor}
	label := fmt.Sprintf("RenderTarget %dx%d", width, height)
	if err := rt.createRenderTexture(dev, label, width, height, gpucore.FormatRGBA8Unorm, rt.color); err != nil {
		return nil, err
	}

	var err error
	fail := func(err error) (*RenderTarget, error) {
		_ = rt.Release()
		return nil, err
	}
	if rt.rtvHeap, err = NewDescriptorHeap(dev, HeapTypeRTV, 1, HeapFlagNone); err != nil {
		return fail(err)
	}
	if rt.rtv, err = rt.rtvHeap.Allocate(1); err != nil {
		return fail(err)
	}
	if err := dev.native.CreateRenderTargetView(rt.rtv.CPU, rt.id); err != nil {
		return fail(fmt.Errorf("dx12: render target view: %w", err))
	}
	if rt.depth, err = NewDepthStencil(dev, width, height); err != nil {
		return fail(err)
	}
	return rt, nil
}

// Kind returns KindRenderTarget.
func (rt *RenderTarget) Kind() ResourceKind { return KindRenderTarget }

// RTV returns the render target view.
func (rt *RenderTarget) RTV() Handle { return rt.rtv }

// Depth returns the depth buffer.
func (rt *RenderTarget) Depth() *DepthStencil { return rt.depth }

// SetClearColor sets the color StartRendering clears to.
func (rt *RenderTarget) SetClearColor(c [4]float32) {
	rt.mu.Lock()
	rt.color = c
	rt.mu.Unlock()
}

// StartRendering makes the target current on cl: it transitions to
// RENDER_TARGET, clears color and depth, binds both and covers the target
// with the viewport and scissor. Like FrameBuffer.StartRendering, a
// discarded cl ends the rendering bracket.
func (rt *RenderTarget) StartRendering(cl *CommandList) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.rendering {
		return ErrAlreadyRendering
	}
	if !cl.Recording() {
		return fmt.Errorf("%w: %q", ErrListNotRecording, cl.Label())
	}
	dsv := rt.depth.Handle()
	err := recordSteps(
		func() error { return cl.Transition(&rt.GpuResource, gpucore.StateRenderTarget) },
		func() error { return cl.ClearRenderTarget(rt.rtv, rt.color) },
		func() error { return rt.depth.Clear(cl) },
		func() error { return cl.SetRenderTargets([]Handle{rt.rtv}, &dsv) },
		func() error { return cl.SetViewportAndScissor(rt.Width(), rt.Height()) },
	)
	if err != nil {
		return err
	}
	rt.rendering = true
	rt.bracket++
	gen := rt.bracket
	cl.onDiscard(func() { rt.discard(gen, true) })
	return nil
}

// FinishRendering transitions the target back to PIXEL_SHADER_RESOURCE.
func (rt *RenderTarget) FinishRendering(cl *CommandList) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if !rt.rendering {
		return ErrNotRendering
	}
	if err := cl.Transition(&rt.GpuResource, gpucore.StatePixelShaderResource); err != nil {
		return err
	}
	rt.rendering = false
	gen := rt.bracket
	cl.onDiscard(func() { rt.discard(gen, false) })
	return nil
}

func (rt *RenderTarget) discard(gen uint64, started bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.bracket == gen && rt.rendering == started {
		rt.rendering = !started
	}
}

// SetToCommandList binds the shader resource view created by CreateView to
// root parameter rootParam.
func (rt *RenderTarget) SetToCommandList(cl *CommandList, rootParam uint32) error {
	return rt.GpuResource.SetToCommandList(cl, rootParam, 0)
}

// Release destroys the texture, its views and its depth buffer.
func (rt *RenderTarget) Release() error {
	if rt.depth != nil {
		_ = rt.depth.Release()
		rt.depth = nil
	}
	if rt.rtvHeap != nil {
		_ = rt.rtvHeap.Release()
		rt.rtvHeap = nil
	}
	return rt.release()
}
