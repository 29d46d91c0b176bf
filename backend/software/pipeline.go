package software

import (
	"fmt"

	"github.com/gogpu/dx12/gpucore"
)

// CreateRootSignature validates and stores a root signature layout.
func (d *Device) CreateRootSignature(desc *gpucore.RootSignatureDesc) (gpucore.RootSignatureID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("%w: nil root signature", gpucore.ErrInvalidArgument)
	}
	for i, p := range desc.Parameters {
		if len(p.Ranges) == 0 {
			return gpucore.InvalidID, fmt.Errorf("%w: root parameter %d has no ranges", gpucore.ErrInvalidArgument, i)
		}
		for _, r := range p.Ranges {
			if r.Count == 0 {
				return gpucore.InvalidID, fmt.Errorf("%w: empty range in root parameter %d", gpucore.ErrInvalidArgument, i)
			}
		}
	}
	cp := *desc
	cp.Parameters = append([]gpucore.RootParameter(nil), desc.Parameters...)
	cp.StaticSamplers = append([]gpucore.StaticSampler(nil), desc.StaticSamplers...)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.RootSignatureID(d.newID())
	d.rootSigs[id] = &cp
	return id, nil
}

// DestroyRootSignature releases a root signature.
func (d *Device) DestroyRootSignature(id gpucore.RootSignatureID) {
	d.mu.Lock()
	delete(d.rootSigs, id)
	d.mu.Unlock()
}

// CreateShader accepts any source form. The software device does not
// execute shaders, so only the descriptor is checked.
func (d *Device) CreateShader(desc *gpucore.ShaderDesc) (gpucore.ShaderID, error) {
	if desc == nil || desc.EntryPoint == "" {
		return gpucore.InvalidID, fmt.Errorf("%w: shader without entry point", gpucore.ErrInvalidArgument)
	}
	if desc.WGSL == "" && desc.HLSL == "" && len(desc.SPIRV) == 0 && len(desc.Bytecode) == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: shader %q has no code", gpucore.ErrUnsupportedShader, desc.Label)
	}
	cp := *desc

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.ShaderID(d.newID())
	d.shaders[id] = &cp
	return id, nil
}

// DestroyShader releases a shader.
func (d *Device) DestroyShader(id gpucore.ShaderID) {
	d.mu.Lock()
	delete(d.shaders, id)
	d.mu.Unlock()
}

// CreatePipelineState validates a graphics pipeline description.
func (d *Device) CreatePipelineState(desc *gpucore.PipelineDesc) (gpucore.PipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("%w: nil pipeline", gpucore.ErrInvalidArgument)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return gpucore.InvalidID, err
	}
	if _, ok := d.rootSigs[desc.RootSignature]; !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: root signature %d", gpucore.ErrUnknownID, desc.RootSignature)
	}
	for _, s := range []struct {
		id    gpucore.ShaderID
		stage gpucore.ShaderStage
	}{{desc.VertexShader, gpucore.StageVertex}, {desc.PixelShader, gpucore.StagePixel}} {
		sh, ok := d.shaders[s.id]
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: %s shader %d", gpucore.ErrUnknownID, s.stage, s.id)
		}
		if sh.Stage != s.stage {
			return gpucore.InvalidID, fmt.Errorf("%w: %q is a %s shader, %s expected", gpucore.ErrInvalidArgument, sh.Label, sh.Stage, s.stage)
		}
	}
	if desc.RTVFormat == gpucore.FormatUnknown || desc.RTVFormat.IsDepth() || !desc.RTVFormat.IsValid() {
		return gpucore.InvalidID, fmt.Errorf("%w: render target format %s", gpucore.ErrInvalidArgument, desc.RTVFormat)
	}
	if desc.DSVFormat != gpucore.FormatUnknown && !desc.DSVFormat.IsDepth() {
		return gpucore.InvalidID, fmt.Errorf("%w: depth format %s", gpucore.ErrInvalidArgument, desc.DSVFormat)
	}
	for _, e := range desc.InputLayout {
		if e.Offset+e.Format.BytesPerPixel() > desc.VertexStride {
			return gpucore.InvalidID, fmt.Errorf("%w: element %s%d at %d exceeds stride %d",
				gpucore.ErrInvalidArgument, e.SemanticName, e.SemanticIndex, e.Offset, desc.VertexStride)
		}
	}

	cp := *desc
	cp.InputLayout = append([]gpucore.InputElement(nil), desc.InputLayout...)
	id := gpucore.PipelineID(d.newID())
	d.pipelines[id] = &cp
	return id, nil
}

// DestroyPipelineState releases a pipeline.
func (d *Device) DestroyPipelineState(id gpucore.PipelineID) {
	d.mu.Lock()
	delete(d.pipelines, id)
	d.mu.Unlock()
}
