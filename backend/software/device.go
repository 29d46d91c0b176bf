package software

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/dx12/gpucore"
	"github.com/gogpu/dx12/internal/slots"
)

// resource is a committed resource in CPU memory.
type resource struct {
	id    gpucore.ResourceID
	mem   gpucore.MemoryKind
	desc  gpucore.ResourceDesc
	clear *gpucore.ClearValue

	// data holds buffer bytes, or texture rows packed at rowBytes.
	data []byte

	// state is the queue-timeline state. Guarded by Device.stateMu.
	state gpucore.ResourceState

	mapped int
	owner  gpucore.SwapChainID
}

func (r *resource) rowBytes() uint64 {
	return r.desc.Width * uint64(r.desc.Format.BytesPerPixel())
}

// Stats counts executed GPU work.
type Stats struct {
	Submissions uint64
	Barriers    uint64
	Copies      uint64
	Clears      uint64
	Draws       uint64
	Presents    uint64
}

// Device is the software implementation of gpucore.Device.
//
// Device is safe for concurrent use.
type Device struct {
	mu sync.RWMutex

	// stateMu serializes submission-time validation and the resource
	// state it updates.
	stateMu sync.Mutex

	// memMu guards resource memory touched by queue workers.
	memMu sync.Mutex

	info  gpucore.AdapterInfo
	modes []gpucore.DisplayMode

	nextID atomic.Uint64
	heaps  *slots.Table

	resources  map[gpucore.ResourceID]*resource
	fences     map[gpucore.FenceID]*fence
	queues     map[gpucore.QueueID]*queue
	lists      map[gpucore.CommandListID]*commandList
	rootSigs   map[gpucore.RootSignatureID]*gpucore.RootSignatureDesc
	shaders    map[gpucore.ShaderID]*gpucore.ShaderDesc
	pipelines  map[gpucore.PipelineID]*gpucore.PipelineDesc
	swapChains map[gpucore.SwapChainID]*swapChain

	logger atomic.Pointer[slog.Logger]

	submissions, barriers, copies, clears, draws, presents atomic.Uint64

	destroyed bool
}

// NewDevice creates a device reporting info and modes.
func NewDevice(info gpucore.AdapterInfo, modes []gpucore.DisplayMode) *Device {
	d := &Device{
		info:       info,
		modes:      append([]gpucore.DisplayMode(nil), modes...),
		heaps:      slots.NewTable(),
		resources:  make(map[gpucore.ResourceID]*resource),
		fences:     make(map[gpucore.FenceID]*fence),
		queues:     make(map[gpucore.QueueID]*queue),
		lists:      make(map[gpucore.CommandListID]*commandList),
		rootSigs:   make(map[gpucore.RootSignatureID]*gpucore.RootSignatureDesc),
		shaders:    make(map[gpucore.ShaderID]*gpucore.ShaderDesc),
		pipelines:  make(map[gpucore.PipelineID]*gpucore.PipelineDesc),
		swapChains: make(map[gpucore.SwapChainID]*swapChain),
	}
	d.logger.Store(slog.New(slog.DiscardHandler))
	return d
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

// Info returns the adapter description.
func (d *Device) Info() gpucore.AdapterInfo { return d.info }

// DisplayModes returns the configured modes with the format replaced.
func (d *Device) DisplayModes(format gpucore.Format) ([]gpucore.DisplayMode, error) {
	if format.IsDepth() || format == gpucore.FormatUnknown {
		return nil, fmt.Errorf("%w: display format %s", gpucore.ErrInvalidArgument, format)
	}
	out := make([]gpucore.DisplayMode, len(d.modes))
	for i, m := range d.modes {
		m.Format = format
		out[i] = m
	}
	return out, nil
}

// Stats returns the counters of executed work.
func (d *Device) Stats() Stats {
	return Stats{
		Submissions: d.submissions.Load(),
		Barriers:    d.barriers.Load(),
		Copies:      d.copies.Load(),
		Clears:      d.clears.Load(),
		Draws:       d.draws.Load(),
		Presents:    d.presents.Load(),
	}
}

// ResourceState returns the queue-timeline state of a resource.
func (d *Device) ResourceState(id gpucore.ResourceID) (gpucore.ResourceState, bool) {
	d.mu.RLock()
	r, ok := d.resources[id]
	d.mu.RUnlock()
	if !ok {
		return 0, false
	}
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return r.state, true
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

// CreateDescriptorHeap creates a descriptor heap.
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
	d.log().Debug("software: descriptor heap created", "id", id, "type", desc.Type, "capacity", desc.Capacity)
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
	if r.desc.Dimension != gpucore.DimensionBuffer {
		return fmt.Errorf("%w: CBV of a texture", gpucore.ErrInvalidArgument)
	}
	if offset%gpucore.ConstantBufferAlignment != 0 || size%gpucore.ConstantBufferAlignment != 0 || size == 0 {
		return fmt.Errorf("%w: CBV range %d+%d not %d-aligned", gpucore.ErrInvalidArgument, offset, size, gpucore.ConstantBufferAlignment)
	}
	if offset+size > uint64(len(r.data)) {
		return fmt.Errorf("%w: CBV %d+%d of %d bytes", ErrOutOfRange, offset, size, len(r.data))
	}
	return d.heaps.Write(dst, slots.Descriptor{Kind: slots.KindCBV, Resource: res, Offset: offset, Size: size})
}

// CreateShaderResourceView writes an SRV.
func (d *Device) CreateShaderResourceView(dst gpucore.CPUAddress, res gpucore.ResourceID) error {
	r, err := d.lookupResource(res)
	if err != nil {
		return err
	}
	if r.desc.Flags.Has(gpucore.ResourceFlagDenyShaderResource) {
		return fmt.Errorf("%w: resource %d denies shader resource views", gpucore.ErrInvalidArgument, res)
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

func validateResourceDesc(mem gpucore.MemoryKind, desc *gpucore.ResourceDesc, initial gpucore.ResourceState) error {
	if desc == nil || desc.Width == 0 {
		return fmt.Errorf("%w: empty resource", gpucore.ErrInvalidArgument)
	}
	switch desc.Dimension {
	case gpucore.DimensionBuffer:
		if desc.Flags.Has(gpucore.ResourceFlagAllowRenderTarget) || desc.Flags.Has(gpucore.ResourceFlagAllowDepthStencil) {
			return fmt.Errorf("%w: buffer with target flags", gpucore.ErrInvalidArgument)
		}
	case gpucore.DimensionTexture2D:
		if desc.Height == 0 || desc.Format.BytesPerPixel() == 0 {
			return fmt.Errorf("%w: texture %dx%d %s", gpucore.ErrInvalidArgument, desc.Width, desc.Height, desc.Format)
		}
		if mem != gpucore.MemoryDefault {
			return fmt.Errorf("%w: textures live in the default heap", gpucore.ErrInvalidArgument)
		}
		if desc.Format.IsDepth() != desc.Flags.Has(gpucore.ResourceFlagAllowDepthStencil) {
			return fmt.Errorf("%w: depth format %s with flags %#x", gpucore.ErrInvalidArgument, desc.Format, uint32(desc.Flags))
		}
	default:
		return fmt.Errorf("%w: dimension %d", gpucore.ErrInvalidArgument, desc.Dimension)
	}
	switch mem {
	case gpucore.MemoryUpload:
		if initial != gpucore.StateGenericRead {
			return fmt.Errorf("%w: upload resources start in GENERIC_READ, got %s", gpucore.ErrInvalidArgument, initial)
		}
	case gpucore.MemoryReadback:
		if initial != gpucore.StateCopyDest {
			return fmt.Errorf("%w: readback resources start in COPY_DEST, got %s", gpucore.ErrInvalidArgument, initial)
		}
	}
	return nil
}

// CreateCommittedResource allocates a resource.
func (d *Device) CreateCommittedResource(mem gpucore.MemoryKind, desc *gpucore.ResourceDesc, initial gpucore.ResourceState, clear *gpucore.ClearValue) (gpucore.ResourceID, error) {
	if err := validateResourceDesc(mem, desc, initial); err != nil {
		return gpucore.InvalidID, err
	}
	r := &resource{
		mem:   mem,
		desc:  *desc,
		data:  make([]byte, desc.ByteSize()),
		state: initial,
	}
	if clear != nil {
		c := *clear
		r.clear = &c
	}
	return d.addResource(r)
}

func (d *Device) addResource(r *resource) (gpucore.ResourceID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return gpucore.InvalidID, err
	}
	r.id = gpucore.ResourceID(d.newID())
	d.resources[r.id] = r
	d.log().Debug("software: resource created", "id", r.id, "label", r.desc.Label, "bytes", len(r.data), "state", r.state)
	return r.id, nil
}

// Map returns the memory of an upload or readback resource.
func (d *Device) Map(id gpucore.ResourceID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.resources[id]
	if !ok {
		return nil, fmt.Errorf("%w: resource %d", gpucore.ErrUnknownID, id)
	}
	if r.mem == gpucore.MemoryDefault {
		return nil, fmt.Errorf("%w: resource %d", gpucore.ErrNotMappable, id)
	}
	r.mapped++
	return r.data, nil
}

// Unmap ends a mapping.
func (d *Device) Unmap(id gpucore.ResourceID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.resources[id]; ok && r.mapped > 0 {
		r.mapped--
	}
}

// DestroyResource frees a resource. Swap chain buffers are owned by their
// chain and ignored here.
func (d *Device) DestroyResource(id gpucore.ResourceID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.resources[id]
	if !ok {
		return
	}
	if r.owner != gpucore.InvalidID {
		d.log().Warn("software: ignoring destroy of swap chain buffer", "id", id)
		return
	}
	delete(d.resources, id)
}

// === Synchronization ===

// fence is a 64-bit completion counter with blocking waits.
type fence struct {
	mu      sync.Mutex
	value   uint64
	changed chan struct{}
}

// set raises the fence to v. Lower values are ignored, so a queue signal
// that runs after a larger CPU signal leaves the counter where it is.
func (f *fence) set(v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v <= f.value {
		return
	}
	f.value = v
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *fence) wait(ctx context.Context, v uint64) error {
	for {
		f.mu.Lock()
		if f.value >= v {
			f.mu.Unlock()
			return nil
		}
		ch := f.changed
		f.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CreateFence creates a fence with an initial value.
func (d *Device) CreateFence(initial uint64) (gpucore.FenceID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.FenceID(d.newID())
	d.fences[id] = &fence{value: initial, changed: make(chan struct{})}
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

// FenceCompletedValue returns the current fence value.
func (d *Device) FenceCompletedValue(id gpucore.FenceID) uint64 {
	f, err := d.lookupFence(id)
	if err != nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// SignalFence sets the fence from the CPU.
func (d *Device) SignalFence(id gpucore.FenceID, value uint64) error {
	f, err := d.lookupFence(id)
	if err != nil {
		return err
	}
	f.set(value)
	return nil
}

// WaitFence blocks until the fence reaches value.
func (d *Device) WaitFence(ctx context.Context, id gpucore.FenceID, value uint64) error {
	f, err := d.lookupFence(id)
	if err != nil {
		return err
	}
	if err := f.wait(ctx, value); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: fence %d value %d: %w", gpucore.ErrWaitTimeout, id, value, err)
		}
		return fmt.Errorf("fence %d value %d: %w", id, value, err)
	}
	return nil
}

// DestroyFence destroys a fence.
func (d *Device) DestroyFence(id gpucore.FenceID) {
	d.mu.Lock()
	delete(d.fences, id)
	d.mu.Unlock()
}

// Destroy stops all queue workers and releases every object.
func (d *Device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	queues := d.queues
	d.queues = make(map[gpucore.QueueID]*queue)
	d.resources = make(map[gpucore.ResourceID]*resource)
	d.fences = make(map[gpucore.FenceID]*fence)
	d.lists = make(map[gpucore.CommandListID]*commandList)
	d.swapChains = make(map[gpucore.SwapChainID]*swapChain)
	d.mu.Unlock()

	for _, q := range queues {
		q.stop()
	}
}

var (
	_ gpucore.Device      = (*Device)(nil)
	_ gpucore.Backend     = (*Backend)(nil)
	_ gpucore.CommandList = (*commandList)(nil)
)
