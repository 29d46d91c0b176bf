package dx12

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/hlsl"
	"github.com/gogpu/naga/ir"

	"github.com/gogpu/dx12/gpucore"
	"github.com/gogpu/dx12/internal/shadercache"
)

// Default entry points and HLSL profiles.
const (
	DefaultVertexEntry = "vs"
	DefaultPixelEntry  = "ps"
	VertexProfile      = "vs_5_0"
	PixelProfile       = "ps_5_0"
)

// Shader is a compiled shader stage.
type Shader struct {
	dev   *Device
	id    gpucore.ShaderID
	stage gpucore.ShaderStage
	entry string
	hlsl  string
	spirv []uint32

	mu       sync.Mutex
	released bool
}

func defaultEntry(stage gpucore.ShaderStage) (string, string) {
	if stage == gpucore.StagePixel {
		return DefaultPixelEntry, PixelProfile
	}
	return DefaultVertexEntry, VertexProfile
}

func irStage(stage gpucore.ShaderStage) ir.ShaderStage {
	if stage == gpucore.StagePixel {
		return ir.StageFragment
	}
	return ir.StageVertex
}

// translation is the device-independent output of compiling one entry
// point.
type translation struct {
	hlsl      string
	hlslEntry string
	spirv     []uint32
}

// translations caches compiled entry points across devices.
var translations = shadercache.New[translation](shadercache.DefaultCapacity)

// ShaderCacheStats are the counters of the WGSL translation cache.
type ShaderCacheStats = shadercache.Stats

// ShaderCache returns the counters of the WGSL translation cache.
func ShaderCache() ShaderCacheStats { return translations.Stats() }

// NewShader compiles the entry point of a WGSL module for stage. An empty
// entry selects "vs" or "ps". The HLSL translation and the SPIR-V words are
// both kept so either native path can consume the shader. Translations are
// cached by source text, stage and entry point.
func NewShader(dev *Device, stage gpucore.ShaderStage, source, entry string) (*Shader, error) {
	def, profile := defaultEntry(stage)
	if entry == "" {
		entry = def
	}
	tr, err := translations.GetOrCompile(shadercache.Key(stage.String(), entry, source), func() (translation, error) {
		return translate(stage, source, entry)
	})
	if err != nil {
		return nil, err
	}

	sh, err := newShader(dev, &gpucore.ShaderDesc{
		Label:      fmt.Sprintf("%s shader %s", stage, entry),
		Stage:      stage,
		EntryPoint: entry,
		WGSL:       source,
		HLSL:       tr.hlsl,
		Profile:    profile,
		SPIRV:      tr.spirv,
	})
	if err != nil {
		return nil, err
	}
	sh.hlsl, sh.spirv = tr.hlsl, tr.spirv
	dev.log().Debug("dx12: shader created", "stage", stage, "entry", entry,
		"hlsl_entry", tr.hlslEntry, "spirv_words", len(tr.spirv))
	return sh, nil
}

func translate(stage gpucore.ShaderStage, source, entry string) (translation, error) {
	var tr translation
	ast, err := naga.Parse(source)
	if err != nil {
		return tr, fmt.Errorf("dx12: parse shader %q: %w", entry, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return tr, fmt.Errorf("dx12: lower shader %q: %w", entry, err)
	}
	if verrs, err := naga.Validate(module); err != nil {
		return tr, fmt.Errorf("dx12: validate shader %q: %w", entry, err)
	} else if len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return tr, fmt.Errorf("dx12: validate shader %q: %w", entry, errors.Join(errs...))
	}

	found := false
	for i := range module.EntryPoints {
		ep := &module.EntryPoints[i]
		if ep.Name == entry && ep.Stage == irStage(stage) {
			found = true
			break
		}
	}
	if !found {
		return tr, fmt.Errorf("%w: %s entry %q", ErrEntryPointNotFound, stage, entry)
	}

	opts := hlsl.DefaultOptions()
	opts.EntryPoint = entry
	src, info, err := hlsl.Compile(module, opts)
	if err != nil {
		return tr, fmt.Errorf("dx12: translate %q to HLSL: %w", entry, err)
	}
	tr.hlsl, tr.hlslEntry = src, entry
	if info != nil {
		if name, ok := info.EntryPointNames[entry]; ok {
			tr.hlslEntry = name
		}
	}
	code, err := naga.Compile(source)
	if err != nil {
		return tr, fmt.Errorf("dx12: compile %q to SPIR-V: %w", entry, err)
	}
	tr.spirv = spirvWords(code)
	return tr, nil
}

// NewShaderFromBytecode wraps a precompiled DXBC or DXIL blob.
func NewShaderFromBytecode(dev *Device, stage gpucore.ShaderStage, bytecode []byte, entry string) (*Shader, error) {
	def, profile := defaultEntry(stage)
	if entry == "" {
		entry = def
	}
	if len(bytecode) == 0 {
		return nil, fmt.Errorf("dx12: empty bytecode for %q: %w", entry, gpucore.ErrInvalidArgument)
	}
	return newShader(dev, &gpucore.ShaderDesc{
		Label:      fmt.Sprintf("%s bytecode %s", stage, entry),
		Stage:      stage,
		EntryPoint: entry,
		Profile:    profile,
		Bytecode:   append([]byte(nil), bytecode...),
	})
}

func newShader(dev *Device, desc *gpucore.ShaderDesc) (*Shader, error) {
	if err := dev.checkAlive(); err != nil {
		return nil, err
	}
	id, err := dev.native.CreateShader(desc)
	if err != nil {
		return nil, fmt.Errorf("dx12: create %s: %w", desc.Label, err)
	}
	return &Shader{dev: dev, id: id, stage: desc.Stage, entry: desc.EntryPoint}, nil
}

// spirvWords reinterprets a little-endian SPIR-V byte stream as words.
func spirvWords(code []byte) []uint32 {
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[4*i:])
	}
	return words
}

// Stage returns the pipeline stage.
func (s *Shader) Stage() gpucore.ShaderStage { return s.stage }

// EntryPoint returns the entry point name.
func (s *Shader) EntryPoint() string { return s.entry }

// HLSL returns the translated source, empty for bytecode shaders.
func (s *Shader) HLSL() string { return s.hlsl }

// SPIRV returns the SPIR-V words, nil for bytecode shaders. The words are
// shared with the translation cache and must not be modified.
func (s *Shader) SPIRV() []uint32 { return s.spirv }

// Release destroys the native shader.
func (s *Shader) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.released {
		s.released = true
		s.dev.native.DestroyShader(s.id)
	}
	return nil
}
