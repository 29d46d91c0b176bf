package dx12

import (
	"fmt"
	"sync"

	"github.com/gogpu/dx12/gpucore"
)

// PipelineDesc describes a graphics pipeline in terms of this package's
// objects.
type PipelineDesc struct {
	Label         string
	RootSignature *RootSignature
	VertexShader  *Shader
	PixelShader   *Shader
	InputLayout   []gpucore.InputElement
	VertexStride  uint32
	CullMode      gpucore.CullMode
	RTVFormat     gpucore.Format

	// DSVFormat is FormatUnknown for pipelines without depth.
	DSVFormat gpucore.Format
}

// DefaultPipelineDesc returns a pipeline taking POSITION float3 and
// TEXCOORD float2 vertices, culling back faces, writing R8G8B8A8_UNORM and
// testing against D24_UNORM_S8_UINT.
func DefaultPipelineDesc(rs *RootSignature, vs, ps *Shader) PipelineDesc {
	return PipelineDesc{
		Label:         "DefaultPipeline",
		RootSignature: rs,
		VertexShader:  vs,
		PixelShader:   ps,
		InputLayout: []gpucore.InputElement{
			{SemanticName: "POSITION", Format: gpucore.FormatR32G32B32Float, Offset: 0},
			{SemanticName: "TEXCOORD", Format: gpucore.FormatR32G32Float, Offset: 12},
		},
		VertexStride: 20,
		CullMode:     gpucore.CullBack,
		RTVFormat:    gpucore.FormatRGBA8Unorm,
		DSVFormat:    DepthStencilFormat,
	}
}

// PipelineState is a compiled graphics pipeline together with the root
// signature it was built for.
type PipelineState struct {
	dev *Device
	id  gpucore.PipelineID
	rs  *RootSignature

	mu       sync.Mutex
	released bool
}

// NewPipelineState compiles desc.
func NewPipelineState(dev *Device, desc PipelineDesc) (*PipelineState, error) {
	if desc.RootSignature == nil || desc.VertexShader == nil || desc.PixelShader == nil {
		return nil, fmt.Errorf("dx12: pipeline %q needs a root signature and both shaders: %w",
			desc.Label, gpucore.ErrInvalidArgument)
	}
	if err := dev.checkAlive(); err != nil {
		return nil, err
	}
	id, err := dev.native.CreatePipelineState(&gpucore.PipelineDesc{
		Label:         desc.Label,
		RootSignature: desc.RootSignature.id,
		VertexShader:  desc.VertexShader.id,
		PixelShader:   desc.PixelShader.id,
		InputLayout:   desc.InputLayout,
		VertexStride:  desc.VertexStride,
		CullMode:      desc.CullMode,
		RTVFormat:     desc.RTVFormat,
		DSVFormat:     desc.DSVFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("dx12: create pipeline %q: %w", desc.Label, err)
	}
	return &PipelineState{dev: dev, id: id, rs: desc.RootSignature}, nil
}

// RootSignature returns the signature the pipeline was built for.
func (p *PipelineState) RootSignature() *RootSignature { return p.rs }

// SetToCommandList binds the root signature and the pipeline.
func (p *PipelineState) SetToCommandList(cl *CommandList) error {
	if err := p.rs.SetToCommandList(cl); err != nil {
		return err
	}
	return cl.record(func(n gpucore.CommandList) { n.SetPipelineState(p.id) })
}

// Release destroys the native pipeline. The root signature is not released.
func (p *PipelineState) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.released {
		p.released = true
		p.dev.native.DestroyPipelineState(p.id)
	}
	return nil
}
