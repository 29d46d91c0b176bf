package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/dx12/gpucore"
)

func textureFormat(f gpucore.Format) (gputypes.TextureFormat, error) {
	switch f {
	case gpucore.FormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm, nil
	case gpucore.FormatBGRA8Unorm:
		return gputypes.TextureFormatBGRA8Unorm, nil
	case gpucore.FormatD24UnormS8Uint:
		return gputypes.TextureFormatDepth24PlusStencil8, nil
	case gpucore.FormatD32Float:
		return gputypes.TextureFormatDepth32Float, nil
	default:
		return gputypes.TextureFormatUndefined, fmt.Errorf("%w: texture format %s", gpucore.ErrUnknownFormat, f)
	}
}

func vertexFormat(f gpucore.Format) (gputypes.VertexFormat, error) {
	switch f {
	case gpucore.FormatR32G32Float:
		return gputypes.VertexFormatFloat32x2, nil
	case gpucore.FormatR32G32B32Float:
		return gputypes.VertexFormatFloat32x3, nil
	case gpucore.FormatRGBA8Unorm:
		return gputypes.VertexFormatUnorm8x4, nil
	default:
		return 0, fmt.Errorf("%w: vertex format %s", gpucore.ErrUnknownFormat, f)
	}
}

func indexFormat(f gpucore.Format) gputypes.IndexFormat {
	if f == gpucore.FormatR32Uint {
		return gputypes.IndexFormatUint32
	}
	return gputypes.IndexFormatUint16
}

// textureUsageOf maps a resource state to the hal usage a texture in that
// state is transitioned to. PRESENT maps to CopySrc, the usage a
// presentation blit reads from.
func textureUsageOf(s gpucore.ResourceState) gputypes.TextureUsage {
	switch {
	case s&(gpucore.StateRenderTarget|gpucore.StateDepthWrite|gpucore.StateDepthRead) != 0:
		return gputypes.TextureUsageRenderAttachment
	case s&gpucore.StateCopyDest != 0:
		return gputypes.TextureUsageCopyDst
	case s&gpucore.StatePixelShaderResource != 0:
		return gputypes.TextureUsageTextureBinding
	default:
		return gputypes.TextureUsageCopySrc
	}
}

func textureUsage(desc *gpucore.ResourceDesc) gputypes.TextureUsage {
	u := gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if !desc.Flags.Has(gpucore.ResourceFlagDenyShaderResource) {
		u |= gputypes.TextureUsageTextureBinding
	}
	if desc.Flags.Has(gpucore.ResourceFlagAllowRenderTarget) || desc.Flags.Has(gpucore.ResourceFlagAllowDepthStencil) {
		u |= gputypes.TextureUsageRenderAttachment
	}
	return u
}

func bufferUsage(mem gpucore.MemoryKind) gputypes.BufferUsage {
	if mem == gpucore.MemoryReadback {
		return gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	}
	return gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst |
		gputypes.BufferUsageVertex | gputypes.BufferUsageIndex | gputypes.BufferUsageUniform
}

func shaderStages(v gpucore.Visibility) gputypes.ShaderStages {
	switch v {
	case gpucore.VisibilityVertex:
		return gputypes.ShaderStageVertex
	case gpucore.VisibilityPixel:
		return gputypes.ShaderStageFragment
	default:
		return gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
	}
}

func cullMode(c gpucore.CullMode) gputypes.CullMode {
	switch c {
	case gpucore.CullFront:
		return gputypes.CullModeFront
	case gpucore.CullBack:
		return gputypes.CullModeBack
	default:
		return gputypes.CullModeNone
	}
}

func addressMode(a gpucore.AddressMode) gputypes.AddressMode {
	switch a {
	case gpucore.AddressClamp:
		return gputypes.AddressModeClampToEdge
	case gpucore.AddressMirror:
		return gputypes.AddressModeMirrorRepeat
	default:
		return gputypes.AddressModeRepeat
	}
}

func filterMode(f gpucore.Filter) gputypes.FilterMode {
	if f == gpucore.FilterPoint {
		return gputypes.FilterModeNearest
	}
	return gputypes.FilterModeLinear
}
