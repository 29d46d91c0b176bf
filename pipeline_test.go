package dx12

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/dx12/backend/software"
	"github.com/gogpu/dx12/gpucore"
)

const texturedQuadWGSL = `
struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs(@location(0) pos: vec3<f32>, @location(1) uv: vec2<f32>) -> VertexOutput {
    var out: VertexOutput;
    out.position = vec4<f32>(pos, 1.0);
    out.uv = uv;
    return out;
}

@fragment
fn ps(in: VertexOutput) -> @location(0) vec4<f32> {
    return vec4<f32>(in.uv, 0.0, 1.0);
}
`

const spirvMagic = 0x07230203

type quadVertex struct {
	Pos [3]float32
	UV  [2]float32
}

var quadVertices = []quadVertex{
	{Pos: [3]float32{-1, -1, 0}, UV: [2]float32{0, 1}},
	{Pos: [3]float32{-1, 1, 0}, UV: [2]float32{0, 0}},
	{Pos: [3]float32{1, 1, 0}, UV: [2]float32{1, 0}},
	{Pos: [3]float32{1, -1, 0}, UV: [2]float32{1, 1}},
}

var quadIndices = []uint16{0, 1, 2, 0, 2, 3}

func TestNewShader(t *testing.T) {
	dev := newTestDevice(t)

	vs, err := NewShader(dev, gpucore.StageVertex, texturedQuadWGSL, "")
	require.NoError(t, err)
	defer vs.Release()
	assert.Equal(t, DefaultVertexEntry, vs.EntryPoint())
	assert.Equal(t, gpucore.StageVertex, vs.Stage())
	assert.NotEmpty(t, vs.HLSL())
	require.NotEmpty(t, vs.SPIRV())
	assert.Equal(t, uint32(spirvMagic), vs.SPIRV()[0])

	ps, err := NewShader(dev, gpucore.StagePixel, texturedQuadWGSL, "")
	require.NoError(t, err)
	defer ps.Release()
	assert.Equal(t, DefaultPixelEntry, ps.EntryPoint())
	assert.NotEmpty(t, ps.HLSL())
}

func TestShaderTranslationCache(t *testing.T) {
	dev := newTestDevice(t)
	src := texturedQuadWGSL + "\n// cache test\n"

	before := ShaderCache()
	first, err := NewShader(dev, gpucore.StagePixel, src, "")
	require.NoError(t, err)
	defer first.Release()
	second, err := NewShader(dev, gpucore.StagePixel, src, "")
	require.NoError(t, err)
	defer second.Release()
	after := ShaderCache()

	assert.GreaterOrEqual(t, after.Misses, before.Misses+1)
	assert.GreaterOrEqual(t, after.Hits, before.Hits+1)
	assert.Equal(t, first.HLSL(), second.HLSL())

	_, err = NewShader(dev, gpucore.StagePixel, src, "missing")
	require.ErrorIs(t, err, ErrEntryPointNotFound)
	_, err = NewShader(dev, gpucore.StagePixel, src, "missing")
	assert.ErrorIs(t, err, ErrEntryPointNotFound, "failures are not cached")
}

func TestNewShaderErrors(t *testing.T) {
	dev := newTestDevice(t)

	_, err := NewShader(dev, gpucore.StageVertex, texturedQuadWGSL, "main")
	assert.ErrorIs(t, err, ErrEntryPointNotFound)

	_, err = NewShader(dev, gpucore.StagePixel, texturedQuadWGSL, "vs")
	assert.ErrorIs(t, err, ErrEntryPointNotFound, "vs is not a fragment entry")

	_, err = NewShader(dev, gpucore.StageVertex, "fn vs( {", "")
	assert.Error(t, err)

	_, err = NewShaderFromBytecode(dev, gpucore.StageVertex, nil, "")
	assert.ErrorIs(t, err, gpucore.ErrInvalidArgument)

	sh, err := NewShaderFromBytecode(dev, gpucore.StagePixel, []byte{0x44, 0x58, 0x42, 0x43}, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultPixelEntry, sh.EntryPoint())
	assert.Empty(t, sh.HLSL())
	assert.Nil(t, sh.SPIRV())
	require.NoError(t, sh.Release())
	require.NoError(t, sh.Release())
}

func TestDefaultRootSignature(t *testing.T) {
	dev := newTestDevice(t)
	rs, err := NewDefaultRootSignature(dev)
	require.NoError(t, err)
	defer rs.Release()

	assert.Equal(t, 2, rs.Parameters())
	desc := rs.Desc()
	assert.Equal(t, uint32(1), desc.Parameters[1].Ranges[0].BaseRegister)
	require.Len(t, desc.StaticSamplers, 1)
	assert.Equal(t, gpucore.FilterLinear, desc.StaticSamplers[0].Filter)
	assert.Equal(t, gpucore.AddressWrap, desc.StaticSamplers[0].Address)

	_, err = NewRootSignature(dev, gpucore.RootSignatureDesc{Parameters: []gpucore.RootParameter{{}}})
	assert.ErrorIs(t, err, gpucore.ErrInvalidArgument)
}

type drawFixture struct {
	dev  *Device
	q    *CommandQueue
	rt   *RenderTarget
	pso  *PipelineState
	mesh *Mesh
	heap *DescriptorHeap
	cbs  [2]*TypedConstantBuffer[[4]float32]
}

func newDrawFixture(t *testing.T) *drawFixture {
	t.Helper()
	f := &drawFixture{dev: newTestDevice(t)}
	f.q = newTestQueue(t, f.dev)

	rs, err := NewDefaultRootSignature(f.dev)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Release() })
	vs, err := NewShader(f.dev, gpucore.StageVertex, texturedQuadWGSL, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Release() })
	ps, err := NewShader(f.dev, gpucore.StagePixel, texturedQuadWGSL, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Release() })

	f.pso, err = NewPipelineState(f.dev, DefaultPipelineDesc(rs, vs, ps))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.pso.Release() })
	assert.Same(t, rs, f.pso.RootSignature())

	f.rt, err = NewRenderTarget(f.dev, 8, 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.rt.Release() })

	f.mesh, err = NewMesh(f.dev, quadVertices, quadIndices)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.mesh.Release() })

	f.heap = newHeap(t, f.dev, HeapTypeCBVSRVUAV, 4, HeapFlagShaderVisible)
	for i := range f.cbs {
		f.cbs[i], err = NewTypedConstantBuffer[[4]float32](f.dev, 1)
		require.NoError(t, err)
		t.Cleanup(func() { _ = f.cbs[i].Release() })
		require.NoError(t, f.cbs[i].Set(0, [4]float32{float32(i), 0, 0, 1}))
		_, err = f.cbs[i].CreateViews(f.heap)
		require.NoError(t, err)
	}
	return f
}

func TestDefaultPipelineDraw(t *testing.T) {
	f := newDrawFixture(t)

	cl := recordingList(t, f.dev)
	require.NoError(t, f.rt.StartRendering(cl))
	require.NoError(t, f.pso.SetToCommandList(cl))
	require.NoError(t, f.heap.SetToCommandList(cl))
	for i, cb := range f.cbs {
		require.NoError(t, cb.SetToCommandList(cl, uint32(i), 0)) //nolint:gosec // G115: two root parameters
	}
	require.NoError(t, f.mesh.Draw(cl, 1))
	require.NoError(t, f.rt.FinishRendering(cl))
	run(t, f.q, cl)

	stats := softwareStats(t, f.dev)
	assert.Equal(t, uint64(1), stats.Draws)
	assert.Equal(t, uint32(6), f.mesh.Indices.Count())
	assert.Equal(t, uint64(20), f.mesh.Vertices.Stride())
}

func TestDrawMissingTable(t *testing.T) {
	f := newDrawFixture(t)

	cl := recordingList(t, f.dev)
	require.NoError(t, f.rt.StartRendering(cl))
	require.NoError(t, f.pso.SetToCommandList(cl))
	require.NoError(t, f.heap.SetToCommandList(cl))
	require.NoError(t, f.cbs[0].SetToCommandList(cl, 0, 0))
	require.NoError(t, f.mesh.Draw(cl, 1))
	require.NoError(t, f.rt.FinishRendering(cl))
	require.NoError(t, cl.Close())

	err := f.q.Execute(cl)
	require.ErrorIs(t, err, software.ErrNotBound)
	assert.Zero(t, softwareStats(t, f.dev).Draws)
}

func TestNewPipelineStateErrors(t *testing.T) {
	dev := newTestDevice(t)
	rs, err := NewDefaultRootSignature(dev)
	require.NoError(t, err)
	defer rs.Release()
	vs, err := NewShader(dev, gpucore.StageVertex, texturedQuadWGSL, "")
	require.NoError(t, err)
	defer vs.Release()
	ps, err := NewShader(dev, gpucore.StagePixel, texturedQuadWGSL, "")
	require.NoError(t, err)
	defer ps.Release()

	_, err = NewPipelineState(dev, DefaultPipelineDesc(rs, nil, ps))
	assert.ErrorIs(t, err, gpucore.ErrInvalidArgument)

	_, err = NewPipelineState(dev, DefaultPipelineDesc(rs, ps, vs))
	assert.ErrorIs(t, err, gpucore.ErrInvalidArgument, "stages swapped")

	desc := DefaultPipelineDesc(rs, vs, ps)
	desc.VertexStride = 16
	_, err = NewPipelineState(dev, desc)
	assert.ErrorIs(t, err, gpucore.ErrInvalidArgument, "TEXCOORD overruns the stride")

	desc = DefaultPipelineDesc(rs, vs, ps)
	desc.DSVFormat = gpucore.FormatRGBA8Unorm
	_, err = NewPipelineState(dev, desc)
	assert.ErrorIs(t, err, gpucore.ErrInvalidArgument)
}
