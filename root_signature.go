package dx12

import (
	"fmt"
	"sync"

	"github.com/gogpu/dx12/gpucore"
)

// RootSignature describes the descriptor tables a pipeline reads.
type RootSignature struct {
	dev  *Device
	id   gpucore.RootSignatureID
	desc gpucore.RootSignatureDesc

	mu       sync.Mutex
	released bool
}

// DefaultRootSignatureDesc has two single-CBV tables at b0 and b1 and a
// static linear-wrap sampler at s0.
func DefaultRootSignatureDesc() gpucore.RootSignatureDesc {
	return gpucore.RootSignatureDesc{
		Label: "DefaultRootSignature",
		Parameters: []gpucore.RootParameter{
			{Ranges: []gpucore.DescriptorRange{{Type: gpucore.RangeCBV, Count: 1, BaseRegister: 0}}},
			{Ranges: []gpucore.DescriptorRange{{Type: gpucore.RangeCBV, Count: 1, BaseRegister: 1}}},
		},
		StaticSamplers: []gpucore.StaticSampler{
			{Filter: gpucore.FilterLinear, Address: gpucore.AddressWrap, Register: 0},
		},
	}
}

// NewRootSignature creates a root signature from desc.
func NewRootSignature(dev *Device, desc gpucore.RootSignatureDesc) (*RootSignature, error) {
	if err := dev.checkAlive(); err != nil {
		return nil, err
	}
	id, err := dev.native.CreateRootSignature(&desc)
	if err != nil {
		return nil, fmt.Errorf("dx12: create root signature %q: %w", desc.Label, err)
	}
	return &RootSignature{dev: dev, id: id, desc: desc}, nil
}

// NewDefaultRootSignature creates the root signature of
// DefaultRootSignatureDesc.
func NewDefaultRootSignature(dev *Device) (*RootSignature, error) {
	return NewRootSignature(dev, DefaultRootSignatureDesc())
}

// Parameters returns the number of root parameters.
func (rs *RootSignature) Parameters() int { return len(rs.desc.Parameters) }

// Desc returns the description the signature was built from.
func (rs *RootSignature) Desc() gpucore.RootSignatureDesc { return rs.desc }

// SetToCommandList binds the signature as the graphics root signature.
func (rs *RootSignature) SetToCommandList(cl *CommandList) error {
	return cl.record(func(n gpucore.CommandList) { n.SetGraphicsRootSignature(rs.id) })
}

// Release destroys the native root signature.
func (rs *RootSignature) Release() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if !rs.released {
		rs.released = true
		rs.dev.native.DestroyRootSignature(rs.id)
	}
	return nil
}
