package wgpu

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dx12/gpucore"
	"github.com/gogpu/dx12/internal/slots"
)

// rootSignature maps each descriptor table to a bind group layout. Static
// samplers live in one extra group placed after the tables.
type rootSignature struct {
	desc         gpucore.RootSignatureDesc
	layouts      []hal.BindGroupLayout
	layout       hal.PipelineLayout
	samplers     []hal.Sampler
	samplerGroup hal.BindGroup

	mu     sync.Mutex
	groups map[string]hal.BindGroup
}

func (rs *rootSignature) release(device hal.Device) {
	rs.mu.Lock()
	for _, bg := range rs.groups {
		device.DestroyBindGroup(bg)
	}
	rs.groups = nil
	rs.mu.Unlock()
	if rs.samplerGroup != nil {
		device.DestroyBindGroup(rs.samplerGroup)
	}
	for _, s := range rs.samplers {
		device.DestroySampler(s)
	}
	if rs.layout != nil {
		device.DestroyPipelineLayout(rs.layout)
	}
	for _, l := range rs.layouts {
		device.DestroyBindGroupLayout(l)
	}
}

// CreateRootSignature creates the bind group and pipeline layouts.
func (d *Device) CreateRootSignature(desc *gpucore.RootSignatureDesc) (gpucore.RootSignatureID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("%w: nil root signature", gpucore.ErrInvalidArgument)
	}
	rs := &rootSignature{desc: *desc, groups: make(map[string]hal.BindGroup)}
	rs.desc.Parameters = append([]gpucore.RootParameter(nil), desc.Parameters...)
	rs.desc.StaticSamplers = append([]gpucore.StaticSampler(nil), desc.StaticSamplers...)

	fail := func(err error) (gpucore.RootSignatureID, error) {
		rs.release(d.device)
		return gpucore.InvalidID, err
	}

	for i, p := range desc.Parameters {
		var entries []gputypes.BindGroupLayoutEntry
		binding := uint32(0)
		for _, r := range p.Ranges {
			for j := uint32(0); j < r.Count; j++ {
				e := gputypes.BindGroupLayoutEntry{Binding: binding, Visibility: shaderStages(p.Visibility)}
				if r.Type == gpucore.RangeCBV {
					e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
				} else {
					e.Texture = &gputypes.TextureBindingLayout{
						SampleType:    gputypes.TextureSampleTypeFloat,
						ViewDimension: gputypes.TextureViewDimension2D,
					}
				}
				entries = append(entries, e)
				binding++
			}
		}
		if len(entries) == 0 {
			return fail(fmt.Errorf("%w: root parameter %d has no ranges", gpucore.ErrInvalidArgument, i))
		}
		l, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s table %d", desc.Label, i),
			Entries: entries,
		})
		if err != nil {
			return fail(fmt.Errorf("wgpu: bind group layout %d: %w", i, err))
		}
		rs.layouts = append(rs.layouts, l)
	}

	if len(desc.StaticSamplers) > 0 {
		var layoutEntries []gputypes.BindGroupLayoutEntry
		var groupEntries []gputypes.BindGroupEntry
		for _, ss := range desc.StaticSamplers {
			s, err := d.device.CreateSampler(&hal.SamplerDescriptor{
				Label:        fmt.Sprintf("%s sampler s%d", desc.Label, ss.Register),
				AddressModeU: addressMode(ss.Address),
				AddressModeV: addressMode(ss.Address),
				AddressModeW: addressMode(ss.Address),
				MagFilter:    filterMode(ss.Filter),
				MinFilter:    filterMode(ss.Filter),
				MipmapFilter: filterMode(ss.Filter),
			})
			if err != nil {
				return fail(fmt.Errorf("wgpu: static sampler s%d: %w", ss.Register, err))
			}
			rs.samplers = append(rs.samplers, s)
			layoutEntries = append(layoutEntries, gputypes.BindGroupLayoutEntry{
				Binding:    ss.Register,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			})
			groupEntries = append(groupEntries, gputypes.BindGroupEntry{
				Binding:  ss.Register,
				Resource: gputypes.SamplerBinding{Sampler: gputypes.SamplerHandle(s.NativeHandle())},
			})
		}
		l, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   desc.Label + " samplers",
			Entries: layoutEntries,
		})
		if err != nil {
			return fail(fmt.Errorf("wgpu: sampler layout: %w", err))
		}
		rs.layouts = append(rs.layouts, l)
		bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   desc.Label + " samplers",
			Layout:  l,
			Entries: groupEntries,
		})
		if err != nil {
			return fail(fmt.Errorf("wgpu: sampler group: %w", err))
		}
		rs.samplerGroup = bg
	}

	layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: rs.layouts,
	})
	if err != nil {
		return fail(fmt.Errorf("wgpu: pipeline layout: %w", err))
	}
	rs.layout = layout

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return fail(err)
	}
	id := gpucore.RootSignatureID(d.newID())
	d.rootSigs[id] = rs
	return id, nil
}

// DestroyRootSignature releases a root signature.
func (d *Device) DestroyRootSignature(id gpucore.RootSignatureID) {
	d.mu.Lock()
	rs, ok := d.rootSigs[id]
	delete(d.rootSigs, id)
	d.mu.Unlock()
	if ok {
		rs.release(d.device)
	}
}

// bindGroup returns the bind group for table param of rs starting at base.
// Groups are cached by the descriptors they were built from, so rewriting a
// slot yields a new group.
func (d *Device) bindGroup(rs *rootSignature, param uint32, base gpucore.GPUAddress) (hal.BindGroup, error) {
	p := rs.desc.Parameters[param]
	descs, _, err := d.heaps.ReadGPU(base, p.Descriptors())
	if err != nil {
		return nil, err
	}

	var key strings.Builder
	key.WriteString(strconv.FormatUint(uint64(param), 10))
	for _, ds := range descs {
		key.WriteByte('|')
		key.WriteString(strconv.FormatUint(uint64(ds.Resource), 10))
		key.WriteByte(':')
		key.WriteString(strconv.FormatUint(ds.Offset, 10))
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if bg, ok := rs.groups[key.String()]; ok {
		return bg, nil
	}

	entries := make([]gputypes.BindGroupEntry, 0, len(descs))
	for i, ds := range descs {
		r, err := d.lookupResource(ds.Resource)
		if err != nil {
			return nil, err
		}
		e := gputypes.BindGroupEntry{Binding: uint32(i)}
		switch ds.Kind {
		case slots.KindCBV:
			e.Resource = gputypes.BufferBinding{Buffer: r.buffer.NativeHandle(), Offset: ds.Offset, Size: ds.Size}
		case slots.KindSRV:
			e.Resource = gputypes.TextureViewBinding{TextureView: gputypes.TextureViewHandle(r.view.NativeHandle())}
		default:
			return nil, fmt.Errorf("%w: slot %d holds %s", gpucore.ErrInvalidState, i, ds.Kind)
		}
		entries = append(entries, e)
	}
	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   fmt.Sprintf("%s table %d", rs.desc.Label, param),
		Layout:  rs.layouts[param],
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: bind group: %w", err)
	}
	rs.groups[key.String()] = bg
	return bg, nil
}

// shaderModule is a compiled hal shader with its entry point.
type shaderModule struct {
	hal   hal.ShaderModule
	stage gpucore.ShaderStage
	entry string
}

// CreateShader creates a hal shader module from WGSL or SPIR-V.
func (d *Device) CreateShader(desc *gpucore.ShaderDesc) (gpucore.ShaderID, error) {
	if desc == nil || desc.EntryPoint == "" {
		return gpucore.InvalidID, fmt.Errorf("%w: shader without entry point", gpucore.ErrInvalidArgument)
	}
	var src hal.ShaderSource
	switch {
	case desc.WGSL != "":
		src.WGSL = desc.WGSL
	case len(desc.SPIRV) > 0:
		src.SPIRV = desc.SPIRV
	default:
		return gpucore.InvalidID, fmt.Errorf("%w: %q needs WGSL or SPIR-V", gpucore.ErrUnsupportedShader, desc.Label)
	}
	mod, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: desc.Label, Source: src})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: %q: %w", gpucore.ErrUnsupportedShader, desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		d.device.DestroyShaderModule(mod)
		return gpucore.InvalidID, err
	}
	id := gpucore.ShaderID(d.newID())
	d.shaders[id] = &shaderModule{hal: mod, stage: desc.Stage, entry: desc.EntryPoint}
	return id, nil
}

// DestroyShader releases a shader module.
func (d *Device) DestroyShader(id gpucore.ShaderID) {
	d.mu.Lock()
	s, ok := d.shaders[id]
	delete(d.shaders, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyShaderModule(s.hal)
	}
}

// pipeline is a hal render pipeline.
type pipeline struct {
	hal  hal.RenderPipeline
	desc gpucore.PipelineDesc
}

// CreatePipelineState creates a hal render pipeline.
func (d *Device) CreatePipelineState(desc *gpucore.PipelineDesc) (gpucore.PipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("%w: nil pipeline", gpucore.ErrInvalidArgument)
	}
	d.mu.RLock()
	rs, okRS := d.rootSigs[desc.RootSignature]
	vs, okVS := d.shaders[desc.VertexShader]
	ps, okPS := d.shaders[desc.PixelShader]
	d.mu.RUnlock()
	switch {
	case !okRS:
		return gpucore.InvalidID, fmt.Errorf("%w: root signature %d", gpucore.ErrUnknownID, desc.RootSignature)
	case !okVS || !okPS:
		return gpucore.InvalidID, fmt.Errorf("%w: shaders %d/%d", gpucore.ErrUnknownID, desc.VertexShader, desc.PixelShader)
	case vs.stage != gpucore.StageVertex || ps.stage != gpucore.StagePixel:
		return gpucore.InvalidID, fmt.Errorf("%w: shader stages %s/%s", gpucore.ErrInvalidArgument, vs.stage, ps.stage)
	}

	rtFormat, err := textureFormat(desc.RTVFormat)
	if err != nil || desc.RTVFormat.IsDepth() {
		return gpucore.InvalidID, fmt.Errorf("%w: render target format %s", gpucore.ErrInvalidArgument, desc.RTVFormat)
	}

	attrs := make([]gputypes.VertexAttribute, 0, len(desc.InputLayout))
	for i, e := range desc.InputLayout {
		vf, err := vertexFormat(e.Format)
		if err != nil {
			return gpucore.InvalidID, err
		}
		attrs = append(attrs, gputypes.VertexAttribute{Format: vf, Offset: uint64(e.Offset), ShaderLocation: uint32(i)})
	}
	var buffers []gputypes.VertexBufferLayout
	if len(attrs) > 0 {
		buffers = []gputypes.VertexBufferLayout{{
			ArrayStride: uint64(desc.VertexStride),
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes:  attrs,
		}}
	}

	pd := &hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: rs.layout,
		Vertex: hal.VertexState{Module: vs.hal, EntryPoint: vs.entry, Buffers: buffers},
		Fragment: &hal.FragmentState{
			Module:     ps.hal,
			EntryPoint: ps.entry,
			Targets: []gputypes.ColorTargetState{{
				Format:    rtFormat,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCW,
			CullMode:  cullMode(desc.CullMode),
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	}
	if desc.DSVFormat != gpucore.FormatUnknown {
		dsFormat, err := textureFormat(desc.DSVFormat)
		if err != nil || !desc.DSVFormat.IsDepth() {
			return gpucore.InvalidID, fmt.Errorf("%w: depth format %s", gpucore.ErrInvalidArgument, desc.DSVFormat)
		}
		keep := hal.StencilFaceState{
			Compare:     gputypes.CompareFunctionAlways,
			FailOp:      hal.StencilOperationKeep,
			DepthFailOp: hal.StencilOperationKeep,
			PassOp:      hal.StencilOperationKeep,
		}
		pd.DepthStencil = &hal.DepthStencilState{
			Format:            dsFormat,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
			StencilFront:      keep,
			StencilBack:       keep,
			StencilReadMask:   0xFF,
			StencilWriteMask:  0xFF,
		}
	}

	rp, err := d.device.CreateRenderPipeline(pd)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: render pipeline %q: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		d.device.DestroyRenderPipeline(rp)
		return gpucore.InvalidID, err
	}
	id := gpucore.PipelineID(d.newID())
	cp := *desc
	cp.InputLayout = append([]gpucore.InputElement(nil), desc.InputLayout...)
	d.pipelines[id] = &pipeline{hal: rp, desc: cp}
	return id, nil
}

// DestroyPipelineState releases a pipeline.
func (d *Device) DestroyPipelineState(id gpucore.PipelineID) {
	d.mu.Lock()
	p, ok := d.pipelines[id]
	delete(d.pipelines, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyRenderPipeline(p.hal)
	}
}
