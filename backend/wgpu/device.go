package wgpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dx12/gpucore"
	"github.com/gogpu/dx12/internal/slots"
)

// waitSlice bounds one hal fence wait so context cancellation is observed.
const waitSlice = 50 * time.Millisecond

// commonModes is reported by DisplayModes. hal exposes no output
// enumeration.
var commonModes = []gpucore.DisplayMode{
	{Width: 1280, Height: 720, RefreshNumerator: 60, RefreshDenominator: 1},
	{Width: 1920, Height: 1080, RefreshNumerator: 60, RefreshDenominator: 1},
	{Width: 2560, Height: 1440, RefreshNumerator: 60, RefreshDenominator: 1},
	{Width: 3840, Height: 2160, RefreshNumerator: 60, RefreshDenominator: 1},
}

// resource is a committed resource backed by a hal buffer or texture.
type resource struct {
	id   gpucore.ResourceID
	mem  gpucore.MemoryKind
	desc gpucore.ResourceDesc

	buffer  hal.Buffer
	texture hal.Texture
	view    hal.TextureView

	// shadow is the CPU copy of upload and readback buffers.
	shadow []byte
	dirty  bool

	// state is the state after every executed barrier. Guarded by
	// Device.stateMu.
	state gpucore.ResourceState

	owner gpucore.SwapChainID
}

// fence pairs a hal fence with the highest value requested of it.
type fence struct {
	hal       hal.Fence
	target    atomic.Uint64
	completed atomic.Uint64
}

// raise stores v into a unless a already holds a larger value. Waiters for
// different values may finish in any order.
func raise(a *atomic.Uint64, v uint64) {
	for {
		cur := a.Load()
		if v <= cur || a.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Device is the hal implementation of gpucore.Device.
//
// Device is safe for concurrent use. Submissions are serialized.
type Device struct {
	mu      sync.RWMutex
	stateMu sync.Mutex

	// submitMu serializes encoding and queue submission.
	submitMu sync.Mutex

	info     gpucore.AdapterInfo
	device   hal.Device
	queue    hal.Queue
	external bool

	nextID atomic.Uint64
	heaps  *slots.Table

	resources  map[gpucore.ResourceID]*resource
	fences     map[gpucore.FenceID]*fence
	queues     map[gpucore.QueueID]string
	lists      map[gpucore.CommandListID]*commandList
	rootSigs   map[gpucore.RootSignatureID]*rootSignature
	shaders    map[gpucore.ShaderID]*shaderModule
	pipelines  map[gpucore.PipelineID]*pipeline
	swapChains map[gpucore.SwapChainID]*swapChain

	// retire tracks submitted command buffers until the GPU is done.
	retire      hal.Fence
	retireValue uint64
	inFlight    []retiring

	logger atomic.Pointer[slog.Logger]

	destroyed bool
}

type retiring struct {
	value   uint64
	buffers []hal.CommandBuffer
}

func newDevice(info gpucore.AdapterInfo, device hal.Device, queue hal.Queue, external bool) (*Device, error) {
	retire, err := device.CreateFence()
	if err != nil {
		if !external {
			device.Destroy()
		}
		return nil, fmt.Errorf("wgpu: create retire fence: %w", err)
	}
	d := &Device{
		info:       info,
		device:     device,
		queue:      queue,
		external:   external,
		heaps:      slots.NewTable(),
		resources:  make(map[gpucore.ResourceID]*resource),
		fences:     make(map[gpucore.FenceID]*fence),
		queues:     make(map[gpucore.QueueID]string),
		lists:      make(map[gpucore.CommandListID]*commandList),
		rootSigs:   make(map[gpucore.RootSignatureID]*rootSignature),
		shaders:    make(map[gpucore.ShaderID]*shaderModule),
		pipelines:  make(map[gpucore.PipelineID]*pipeline),
		swapChains: make(map[gpucore.SwapChainID]*swapChain),
		retire:     retire,
	}
	d.logger.Store(slog.New(slog.DiscardHandler))
	return d, nil
}

// SetLogger sets the logger used for device diagnostics.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	d.logger.Store(l)
}

func (d *Device) log() *slog.Logger { return d.logger.Load() }

func (d *Device) newID() uint64 { return d.nextID.Add(1) }

// HAL returns the underlying hal device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.device, d.queue }

// Info returns the adapter description.
func (d *Device) Info() gpucore.AdapterInfo { return d.info }

// DisplayModes returns the common mode set in format.
func (d *Device) DisplayModes(format gpucore.Format) ([]gpucore.DisplayMode, error) {
	if _, err := textureFormat(format); err != nil || format.IsDepth() {
		return nil, fmt.Errorf("%w: display format %s", gpucore.ErrInvalidArgument, format)
	}
	out := make([]gpucore.DisplayMode, len(commonModes))
	for i, m := range commonModes {
		m.Format = format
		out[i] = m
	}
	return out, nil
}

func (d *Device) checkAlive() error {
	if d.destroyed {
		return ErrDeviceDestroyed
	}
	return nil
}

// === Descriptor heaps ===

// DescriptorIncrement returns the slot size of heap type t.
func (d *Device) DescriptorIncrement(t gpucore.HeapType) uint32 { return slots.Increment(t) }

// CreateDescriptorHeap creates a descriptor heap shadow. hal has no
// descriptor heaps; tables are resolved into bind groups at submission.
func (d *Device) CreateDescriptorHeap(desc *gpucore.DescriptorHeapDesc) (gpucore.HeapID, error) {
	d.mu.RLock()
	err := d.checkAlive()
	d.mu.RUnlock()
	if err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.HeapID(d.newID())
	if _, err := d.heaps.Create(id, desc); err != nil {
		return gpucore.InvalidID, err
	}
	return id, nil
}

// DescriptorHeapStart returns the handles of slot 0.
func (d *Device) DescriptorHeapStart(id gpucore.HeapID) (gpucore.CPUAddress, gpucore.GPUAddress, error) {
	h, ok := d.heaps.Get(id)
	if !ok {
		return 0, 0, fmt.Errorf("%w: heap %d", gpucore.ErrUnknownID, id)
	}
	return h.CPUStart, h.GPUStart, nil
}

// DestroyDescriptorHeap destroys a heap.
func (d *Device) DestroyDescriptorHeap(id gpucore.HeapID) { d.heaps.Remove(id) }

func (d *Device) lookupResource(id gpucore.ResourceID) (*resource, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.resources[id]
	if !ok {
		return nil, fmt.Errorf("%w: resource %d", gpucore.ErrUnknownID, id)
	}
	return r, nil
}

// CreateConstantBufferView writes a CBV.
func (d *Device) CreateConstantBufferView(dst gpucore.CPUAddress, res gpucore.ResourceID, offset, size uint64) error {
	r, err := d.lookupResource(res)
	if err != nil {
		return err
	}
	if r.buffer == nil || offset%gpucore.ConstantBufferAlignment != 0 || size%gpucore.ConstantBufferAlignment != 0 ||
		size == 0 || offset+size > r.desc.Width {
		return fmt.Errorf("%w: CBV %d+%d of resource %d", gpucore.ErrInvalidArgument, offset, size, res)
	}
	return d.heaps.Write(dst, slots.Descriptor{Kind: slots.KindCBV, Resource: res, Offset: offset, Size: size})
}

// CreateShaderResourceView writes an SRV.
func (d *Device) CreateShaderResourceView(dst gpucore.CPUAddress, res gpucore.ResourceID) error {
	r, err := d.lookupResource(res)
	if err != nil {
		return err
	}
	if r.view == nil || r.desc.Flags.Has(gpucore.ResourceFlagDenyShaderResource) {
		return fmt.Errorf("%w: resource %d cannot be sampled", gpucore.ErrInvalidArgument, res)
	}
	return d.heaps.Write(dst, slots.Descriptor{Kind: slots.KindSRV, Resource: res})
}

// CreateRenderTargetView writes an RTV.
func (d *Device) CreateRenderTargetView(dst gpucore.CPUAddress, res gpucore.ResourceID) error {
	r, err := d.lookupResource(res)
	if err != nil {
		return err
	}
	if !r.desc.Flags.Has(gpucore.ResourceFlagAllowRenderTarget) {
		return fmt.Errorf("%w: resource %d is not render-target capable", gpucore.ErrInvalidArgument, res)
	}
	return d.heaps.Write(dst, slots.Descriptor{Kind: slots.KindRTV, Resource: res})
}

// CreateDepthStencilView writes a DSV.
func (d *Device) CreateDepthStencilView(dst gpucore.CPUAddress, res gpucore.ResourceID) error {
	r, err := d.lookupResource(res)
	if err != nil {
		return err
	}
	if !r.desc.Flags.Has(gpucore.ResourceFlagAllowDepthStencil) {
		return fmt.Errorf("%w: resource %d is not depth-stencil capable", gpucore.ErrInvalidArgument, res)
	}
	return d.heaps.Write(dst, slots.Descriptor{Kind: slots.KindDSV, Resource: res})
}

// === Resources ===

// CreateCommittedResource creates a hal buffer or texture.
func (d *Device) CreateCommittedResource(mem gpucore.MemoryKind, desc *gpucore.ResourceDesc, initial gpucore.ResourceState, _ *gpucore.ClearValue) (gpucore.ResourceID, error) {
	if desc == nil || desc.Width == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: empty resource", gpucore.ErrInvalidArgument)
	}
	r := &resource{mem: mem, desc: *desc, state: initial}
	switch desc.Dimension {
	case gpucore.DimensionBuffer:
		buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: desc.Label,
			Size:  gpucore.AlignUp(desc.Width, 4),
			Usage: bufferUsage(mem),
		})
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
		}
		r.buffer = buf
		if mem != gpucore.MemoryDefault {
			r.shadow = make([]byte, desc.Width)
		}
	case gpucore.DimensionTexture2D:
		if mem != gpucore.MemoryDefault || desc.Height == 0 {
			return gpucore.InvalidID, fmt.Errorf("%w: texture %dx%d in %s heap", gpucore.ErrInvalidArgument, desc.Width, desc.Height, mem)
		}
		if err := d.createTexture(r); err != nil {
			return gpucore.InvalidID, err
		}
	default:
		return gpucore.InvalidID, fmt.Errorf("%w: dimension %d", gpucore.ErrInvalidArgument, desc.Dimension)
	}
	return d.addResource(r)
}

func (d *Device) createTexture(r *resource) error {
	format, err := textureFormat(r.desc.Format)
	if err != nil {
		return err
	}
	mips := uint32(r.desc.MipLevels)
	if mips == 0 {
		mips = 1
	}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         r.desc.Label,
		Size:          hal.Extent3D{Width: uint32(r.desc.Width), Height: r.desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: mips,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         textureUsage(&r.desc),
	})
	if err != nil {
		return fmt.Errorf("wgpu: create texture %q: %w", r.desc.Label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: r.desc.Label + " view"})
	if err != nil {
		d.device.DestroyTexture(tex)
		return fmt.Errorf("wgpu: create view of %q: %w", r.desc.Label, err)
	}
	r.texture, r.view = tex, view
	return nil
}

func (d *Device) addResource(r *resource) (gpucore.ResourceID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		d.releaseResource(r)
		return gpucore.InvalidID, err
	}
	r.id = gpucore.ResourceID(d.newID())
	d.resources[r.id] = r
	return r.id, nil
}

func (d *Device) releaseResource(r *resource) {
	if r.view != nil {
		d.device.DestroyTextureView(r.view)
	}
	if r.texture != nil {
		d.device.DestroyTexture(r.texture)
	}
	if r.buffer != nil {
		d.device.DestroyBuffer(r.buffer)
	}
}

// Map returns the CPU shadow of an upload or readback buffer. Readback
// buffers are refreshed from the GPU first.
func (d *Device) Map(id gpucore.ResourceID) ([]byte, error) {
	r, err := d.lookupResource(id)
	if err != nil {
		return nil, err
	}
	switch r.mem {
	case gpucore.MemoryUpload:
		d.mu.Lock()
		r.dirty = true
		d.mu.Unlock()
	case gpucore.MemoryReadback:
		d.submitMu.Lock()
		err := d.queue.ReadBuffer(r.buffer, 0, r.shadow)
		d.submitMu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("wgpu: read back %q: %w", r.desc.Label, err)
		}
	default:
		return nil, fmt.Errorf("%w: resource %d", gpucore.ErrNotMappable, id)
	}
	return r.shadow, nil
}

// Unmap ends a mapping. Upload writes are flushed at the next submission.
func (d *Device) Unmap(gpucore.ResourceID) {}

// flushUploads writes dirty upload shadows to their buffers. Caller holds
// submitMu.
func (d *Device) flushUploads() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.resources {
		if r.mem == gpucore.MemoryUpload && r.dirty {
			d.queue.WriteBuffer(r.buffer, 0, r.shadow)
			r.dirty = false
		}
	}
}

// DestroyResource releases a resource. Swap chain buffers are owned by their
// chain and ignored here.
func (d *Device) DestroyResource(id gpucore.ResourceID) {
	d.mu.Lock()
	r, ok := d.resources[id]
	if ok && r.owner != gpucore.InvalidID {
		d.mu.Unlock()
		d.log().Warn("wgpu: ignoring destroy of swap chain buffer", "id", id)
		return
	}
	delete(d.resources, id)
	d.mu.Unlock()
	if ok {
		d.releaseResource(r)
	}
}

// === Synchronization ===

// CreateFence creates a fence. A non-zero initial value is reached by an
// immediate empty submission.
func (d *Device) CreateFence(initial uint64) (gpucore.FenceID, error) {
	d.mu.RLock()
	err := d.checkAlive()
	d.mu.RUnlock()
	if err != nil {
		return gpucore.InvalidID, err
	}
	hf, err := d.device.CreateFence()
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create fence: %w", err)
	}
	f := &fence{hal: hf}
	if initial > 0 {
		d.submitMu.Lock()
		err := d.queue.Submit(nil, hf, initial)
		d.submitMu.Unlock()
		if err != nil {
			d.device.DestroyFence(hf)
			return gpucore.InvalidID, fmt.Errorf("wgpu: initialize fence: %w", err)
		}
		f.target.Store(initial)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		d.device.DestroyFence(hf)
		return gpucore.InvalidID, err
	}
	id := gpucore.FenceID(d.newID())
	d.fences[id] = f
	return id, nil
}

func (d *Device) lookupFence(id gpucore.FenceID) (*fence, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.fences[id]
	if !ok {
		return nil, fmt.Errorf("%w: fence %d", gpucore.ErrUnknownID, id)
	}
	return f, nil
}

// FenceCompletedValue returns the highest value known to be reached.
func (d *Device) FenceCompletedValue(id gpucore.FenceID) uint64 {
	f, err := d.lookupFence(id)
	if err != nil {
		return 0
	}
	target := f.target.Load()
	if target > f.completed.Load() {
		if ok, err := d.device.Wait(f.hal, target, 0); err == nil && ok {
			raise(&f.completed, target)
		}
	}
	return f.completed.Load()
}

// SignalFence sets the fence through an empty queue submission.
func (d *Device) SignalFence(id gpucore.FenceID, value uint64) error {
	return d.signal(id, value)
}

func (d *Device) signal(id gpucore.FenceID, value uint64) error {
	f, err := d.lookupFence(id)
	if err != nil {
		return err
	}
	d.submitMu.Lock()
	err = d.queue.Submit(nil, f.hal, value)
	d.submitMu.Unlock()
	if err != nil {
		return fmt.Errorf("wgpu: signal fence %d: %w", id, err)
	}
	raise(&f.target, value)
	return nil
}

// WaitFence blocks until the fence reaches value or ctx is done.
func (d *Device) WaitFence(ctx context.Context, id gpucore.FenceID, value uint64) error {
	f, err := d.lookupFence(id)
	if err != nil {
		return err
	}
	for f.completed.Load() < value {
		ok, err := d.device.Wait(f.hal, value, waitSlice)
		if err != nil {
			return fmt.Errorf("wgpu: wait fence %d: %w", id, err)
		}
		if ok {
			raise(&f.completed, value)
			break
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: fence %d value %d: %w", gpucore.ErrWaitTimeout, id, value, ctx.Err())
			}
			return fmt.Errorf("fence %d value %d: %w", id, value, ctx.Err())
		default:
		}
	}
	d.collect()
	return nil
}

// DestroyFence destroys a fence.
func (d *Device) DestroyFence(id gpucore.FenceID) {
	d.mu.Lock()
	f, ok := d.fences[id]
	delete(d.fences, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyFence(f.hal)
	}
}

// collect frees command buffers whose submission completed.
func (d *Device) collect() {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()
	d.collectLocked()
}

func (d *Device) collectLocked() {
	n := 0
	for _, r := range d.inFlight {
		ok, err := d.device.Wait(d.retire, r.value, 0)
		if err != nil || !ok {
			break
		}
		for _, cb := range r.buffers {
			d.device.FreeCommandBuffer(cb)
		}
		n++
	}
	d.inFlight = d.inFlight[n:]
}

// Destroy waits for the GPU and releases every object. A device created by
// NewFromProvider leaves the hal device alive.
func (d *Device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	d.mu.Unlock()

	d.submitMu.Lock()
	if d.retireValue > 0 {
		if _, err := d.device.Wait(d.retire, d.retireValue, 5*time.Second); err != nil {
			d.log().Warn("wgpu: wait for idle on destroy", "err", err)
		}
	}
	d.collectLocked()
	d.submitMu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sc := range d.swapChains {
		sc.release(d)
	}
	for _, r := range d.resources {
		d.releaseResource(r)
	}
	for _, p := range d.pipelines {
		d.device.DestroyRenderPipeline(p.hal)
	}
	for _, s := range d.shaders {
		d.device.DestroyShaderModule(s.hal)
	}
	for _, rs := range d.rootSigs {
		rs.release(d.device)
	}
	for _, f := range d.fences {
		d.device.DestroyFence(f.hal)
	}
	d.device.DestroyFence(d.retire)
	d.resources = make(map[gpucore.ResourceID]*resource)
	d.pipelines = make(map[gpucore.PipelineID]*pipeline)
	d.shaders = make(map[gpucore.ShaderID]*shaderModule)
	d.rootSigs = make(map[gpucore.RootSignatureID]*rootSignature)
	d.fences = make(map[gpucore.FenceID]*fence)
	d.swapChains = make(map[gpucore.SwapChainID]*swapChain)
	if !d.external {
		d.device.Destroy()
	}
}

var (
	_ gpucore.Device      = (*Device)(nil)
	_ gpucore.Backend     = (*Backend)(nil)
	_ gpucore.CommandList = (*commandList)(nil)
)
