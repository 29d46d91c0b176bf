package dx12

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/dx12/gpucore"
)

// uploadOnce creates a buffer in upload memory holding data.
func (r *GpuResource) uploadOnce(dev *Device, label string, data []byte, stride uint32) error {
	if stride == 0 || len(data) == 0 || len(data)%int(stride) != 0 {
		return fmt.Errorf("%w: %d bytes with stride %d", ErrDataSize, len(data), stride)
	}
	//nolint:gosec // G115: element counts fit uint32
	num := uint32(len(data) / int(stride))
	err := r.createCommitted(dev, gpucore.MemoryUpload, bufferDesc(label), uint64(stride), num, 1, gpucore.StateGenericRead, nil)
	if err != nil {
		return err
	}
	err = r.mapped(func(dst []byte) error {
		copy(dst, data)
		return nil
	})
	if err != nil {
		_ = r.release()
		return err
	}
	return nil
}

// VertexBuffer holds vertex data in upload memory.
type VertexBuffer struct {
	GpuResource
}

// NewVertexBuffer uploads data as vertices of stride bytes.
func NewVertexBuffer(dev *Device, data []byte, stride uint32) (*VertexBuffer, error) {
	vb := &VertexBuffer{}
	if err := vb.uploadOnce(dev, fmt.Sprintf("VertexBuffer stride:%d", stride), data, stride); err != nil {
		return nil, err
	}
	return vb, nil
}

// NewVertexBufferOf encodes vertices little-endian and uploads them.
func NewVertexBufferOf[V any](dev *Device, vertices []V) (*VertexBuffer, error) {
	var zero V
	stride := binary.Size(zero)
	if stride <= 0 {
		return nil, fmt.Errorf("%w: %T has no fixed size", ErrInvalidSize, zero)
	}
	data, err := binary.Append(make([]byte, 0, stride*len(vertices)), binary.LittleEndian, vertices)
	if err != nil {
		return nil, fmt.Errorf("dx12: encode vertices: %w", err)
	}
	//nolint:gosec // G115: vertex sizes are small
	return NewVertexBuffer(dev, data, uint32(stride))
}

// Kind returns KindVertexBuffer.
func (vb *VertexBuffer) Kind() ResourceKind { return KindVertexBuffer }

// View returns the vertex buffer view covering the whole buffer.
func (vb *VertexBuffer) View() gpucore.VertexBufferView {
	return gpucore.VertexBufferView{
		Resource: vb.ID(),
		Size:     uint32(vb.Size()), //nolint:gosec // G115: vertex buffers stay below 4 GiB
		Stride:   uint32(vb.Stride()),
	}
}

// Bind sets the buffer on input slot 0.
func (vb *VertexBuffer) Bind(cl *CommandList) error {
	view := vb.View()
	return cl.record(func(n gpucore.CommandList) { n.SetVertexBuffers(0, view) })
}

// IndexBuffer holds 16- or 32-bit indices in upload memory.
type IndexBuffer struct {
	GpuResource
	format gpucore.Format
}

// NewIndexBuffer uploads data as indices of stride bytes. Stride 4 selects
// R32_UINT, anything else R16_UINT.
func NewIndexBuffer(dev *Device, data []byte, stride uint32) (*IndexBuffer, error) {
	ib := &IndexBuffer{format: gpucore.FormatR16Uint}
	if stride == 4 {
		ib.format = gpucore.FormatR32Uint
	}
	if err := ib.uploadOnce(dev, fmt.Sprintf("IndexBuffer %s", ib.format), data, stride); err != nil {
		return nil, err
	}
	return ib, nil
}

// NewIndexBuffer16 uploads 16-bit indices.
func NewIndexBuffer16(dev *Device, indices []uint16) (*IndexBuffer, error) {
	data := make([]byte, 0, 2*len(indices))
	for _, i := range indices {
		data = binary.LittleEndian.AppendUint16(data, i)
	}
	return NewIndexBuffer(dev, data, 2)
}

// NewIndexBuffer32 uploads 32-bit indices.
func NewIndexBuffer32(dev *Device, indices []uint32) (*IndexBuffer, error) {
	data := make([]byte, 0, 4*len(indices))
	for _, i := range indices {
		data = binary.LittleEndian.AppendUint32(data, i)
	}
	return NewIndexBuffer(dev, data, 4)
}

// Kind returns KindIndexBuffer.
func (ib *IndexBuffer) Kind() ResourceKind { return KindIndexBuffer }

// Format returns the index format.
func (ib *IndexBuffer) Format() gpucore.Format { return ib.format }

// Count returns the number of indices.
func (ib *IndexBuffer) Count() uint32 { return ib.Num() }

// View returns the index buffer view covering the whole buffer.
func (ib *IndexBuffer) View() gpucore.IndexBufferView {
	return gpucore.IndexBufferView{
		Resource: ib.ID(),
		Size:     uint32(ib.Size()), //nolint:gosec // G115: index buffers stay below 4 GiB
		Format:   ib.format,
	}
}

// Bind sets the index buffer.
func (ib *IndexBuffer) Bind(cl *CommandList) error {
	view := ib.View()
	return cl.record(func(n gpucore.CommandList) { n.SetIndexBuffer(&view) })
}

// Mesh pairs a vertex buffer with an index buffer.
type Mesh struct {
	Vertices *VertexBuffer
	Indices  *IndexBuffer
}

// NewMesh uploads vertices and 16-bit indices.
func NewMesh[V any](dev *Device, vertices []V, indices []uint16) (*Mesh, error) {
	vb, err := NewVertexBufferOf(dev, vertices)
	if err != nil {
		return nil, err
	}
	ib, err := NewIndexBuffer16(dev, indices)
	if err != nil {
		_ = vb.Release()
		return nil, err
	}
	return &Mesh{Vertices: vb, Indices: ib}, nil
}

// Draw binds both buffers and records an indexed draw of every index.
func (m *Mesh) Draw(cl *CommandList, instances uint32) error {
	if err := m.Vertices.Bind(cl); err != nil {
		return err
	}
	if err := m.Indices.Bind(cl); err != nil {
		return err
	}
	return cl.DrawIndexedInstanced(m.Indices.Count(), instances, 0, 0, 0)
}

// Release releases both buffers.
func (m *Mesh) Release() error {
	err := m.Vertices.Release()
	if ierr := m.Indices.Release(); err == nil {
		err = ierr
	}
	return err
}
