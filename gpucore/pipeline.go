package gpucore

import "fmt"

// ShaderStage identifies a programmable pipeline stage.
type ShaderStage uint8

// Shader stages.
const (
	StageVertex ShaderStage = iota
	StagePixel
)

// String returns the stage name.
func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "Vertex"
	case StagePixel:
		return "Pixel"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// ShaderDesc describes a shader blob. A backend consumes whichever source
// form it understands and fails with ErrUnsupportedShader if none fits.
type ShaderDesc struct {
	Label      string
	Stage      ShaderStage
	EntryPoint string

	// WGSL is the original source, if available.
	WGSL string

	// HLSL is the translated source consumed by DX12 compilers.
	HLSL string

	// Profile is the HLSL target profile, for example "vs_5_0".
	Profile string

	// SPIRV is the compiled SPIR-V module.
	SPIRV []uint32

	// Bytecode is an opaque precompiled blob (DXBC/DXIL).
	Bytecode []byte
}

// RangeType is the descriptor kind of a descriptor range.
type RangeType uint8

// Descriptor range types.
const (
	RangeCBV RangeType = iota
	RangeSRV
)

// DescriptorRange is a run of descriptors inside a descriptor table.
type DescriptorRange struct {
	Type         RangeType
	Count        uint32
	BaseRegister uint32
}

// Visibility selects the stages a root parameter is visible to.
type Visibility uint8

// Shader visibilities.
const (
	VisibilityAll Visibility = iota
	VisibilityVertex
	VisibilityPixel
)

// RootParameter is one slot of a root signature. Only descriptor tables are
// supported.
type RootParameter struct {
	Ranges     []DescriptorRange
	Visibility Visibility
}

// Descriptors returns the number of descriptors the table spans.
func (p RootParameter) Descriptors() uint32 {
	var n uint32
	for _, r := range p.Ranges {
		n += r.Count
	}
	return n
}

// Filter is a sampler filter.
type Filter uint8

// Sampler filters.
const (
	FilterLinear Filter = iota
	FilterPoint
)

// AddressMode is a sampler texture address mode.
type AddressMode uint8

// Address modes.
const (
	AddressWrap AddressMode = iota
	AddressClamp
	AddressMirror
)

// StaticSampler is a sampler baked into a root signature.
type StaticSampler struct {
	Filter   Filter
	Address  AddressMode
	Register uint32
}

// RootSignatureDesc describes a root signature.
type RootSignatureDesc struct {
	Label          string
	Parameters     []RootParameter
	StaticSamplers []StaticSampler
}

// InputElement is one vertex attribute of an input layout.
type InputElement struct {
	SemanticName  string
	SemanticIndex uint32
	Format        Format
	Offset        uint32
}

// CullMode selects which triangles are culled.
type CullMode uint8

// Cull modes.
const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

// PipelineDesc describes a graphics pipeline state object.
type PipelineDesc struct {
	Label         string
	RootSignature RootSignatureID
	VertexShader  ShaderID
	PixelShader   ShaderID
	InputLayout   []InputElement

	// VertexStride is the byte stride of the vertex buffer in slot 0.
	VertexStride uint32

	CullMode  CullMode
	RTVFormat Format

	// DSVFormat is FormatUnknown when the pipeline has no depth stencil.
	DSVFormat Format
}
