package dx12

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/dx12/gpucore"
)

// ConstantBuffer is an array of num constant blocks in upload memory. Each
// block starts on a 256-byte boundary. The buffer stays mapped for its
// whole lifetime, so Write is a plain memory store.
type ConstantBuffer struct {
	GpuResource
	stride uint64
	data   []byte
}

// NewConstantBuffer creates num blocks of stride bytes.
func NewConstantBuffer(dev *Device, stride uint64, num uint32) (*ConstantBuffer, error) {
	cb := &ConstantBuffer{stride: stride}
	desc := bufferDesc(fmt.Sprintf("ConstantBuffer stride:%d num:%d", stride, num))
	err := cb.createCommitted(dev, gpucore.MemoryUpload, desc, stride, num,
		gpucore.ConstantBufferAlignment, gpucore.StateGenericRead, nil)
	if err != nil {
		return nil, err
	}
	cb.data, err = dev.native.Map(cb.id)
	if err != nil {
		_ = cb.release()
		return nil, fmt.Errorf("dx12: map constant buffer: %w", err)
	}
	return cb, nil
}

// Kind returns KindConstantBuffer.
func (cb *ConstantBuffer) Kind() ResourceKind { return KindConstantBuffer }

// ElementSize returns the unaligned block size.
func (cb *ConstantBuffer) ElementSize() uint64 { return cb.stride }

// Write stores data at the start of block index.
func (cb *ConstantBuffer) Write(index uint32, data []byte) error {
	off, err := cb.Offset(index)
	if err != nil {
		return err
	}
	if uint64(len(data)) > cb.stride {
		return fmt.Errorf("%w: %d bytes into %d-byte block", ErrDataSize, len(data), cb.stride)
	}
	copy(cb.data[off:], data)
	return nil
}

// Read returns a copy of block index.
func (cb *ConstantBuffer) Read(index uint32) ([]byte, error) {
	off, err := cb.Offset(index)
	if err != nil {
		return nil, err
	}
	out := make([]byte, cb.stride)
	copy(out, cb.data[off:])
	return out, nil
}

// CreateViews writes one CBV per block into consecutive slots of heap and
// returns the first slot.
func (cb *ConstantBuffer) CreateViews(heap *DescriptorHeap) (Handle, error) {
	cb.mustExist()
	if heap.Type() != HeapTypeCBVSRVUAV {
		return Handle{}, fmt.Errorf("%w: CBVs in %s heap", ErrWrongHeapType, heap.Type())
	}
	first, err := heap.Allocate(cb.num)
	if err != nil {
		return Handle{}, err
	}
	for i := range cb.num {
		off := cb.alignedStride * uint64(i)
		if err := cb.dev.native.CreateConstantBufferView(first.Offset(i).CPU, cb.id, off, cb.alignedStride); err != nil {
			return Handle{}, fmt.Errorf("dx12: constant buffer view %d: %w", i, err)
		}
	}
	cb.setView(first, cb.num)
	return first, nil
}

// Release unmaps and destroys the buffer.
func (cb *ConstantBuffer) Release() error {
	if cb.data != nil {
		cb.dev.native.Unmap(cb.id)
		cb.data = nil
	}
	return cb.release()
}

// TypedConstantBuffer stores values of a fixed-size type T in a
// ConstantBuffer using little-endian layout.
type TypedConstantBuffer[T any] struct {
	*ConstantBuffer
}

// NewTypedConstantBuffer creates num blocks sized for T.
func NewTypedConstantBuffer[T any](dev *Device, num uint32) (*TypedConstantBuffer[T], error) {
	var zero T
	size := binary.Size(zero)
	if size <= 0 {
		return nil, fmt.Errorf("%w: %T has no fixed size", ErrInvalidSize, zero)
	}
	cb, err := NewConstantBuffer(dev, uint64(size), num)
	if err != nil {
		return nil, err
	}
	return &TypedConstantBuffer[T]{ConstantBuffer: cb}, nil
}

// Set encodes v into block index.
func (t *TypedConstantBuffer[T]) Set(index uint32, v T) error {
	buf, err := binary.Append(make([]byte, 0, t.stride), binary.LittleEndian, v)
	if err != nil {
		return fmt.Errorf("dx12: encode %T: %w", v, err)
	}
	return t.Write(index, buf)
}

// Get decodes block index.
func (t *TypedConstantBuffer[T]) Get(index uint32) (T, error) {
	var v T
	off, err := t.Offset(index)
	if err != nil {
		return v, err
	}
	if _, err := binary.Decode(t.data[off:off+t.stride], binary.LittleEndian, &v); err != nil {
		return v, fmt.Errorf("dx12: decode %T: %w", v, err)
	}
	return v, nil
}
