package slots

import (
	"errors"
	"testing"

	"github.com/gogpu/dx12/gpucore"
)

func newHeap(t *testing.T, tbl *Table, id gpucore.HeapID, typ gpucore.HeapType, n uint32, flags gpucore.HeapFlags) *Heap {
	t.Helper()
	h, err := tbl.Create(id, &gpucore.DescriptorHeapDesc{Type: typ, Capacity: n, Flags: flags})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return h
}

func TestCreateAddresses(t *testing.T) {
	tbl := NewTable()
	visible := newHeap(t, tbl, 3, gpucore.HeapTypeCBVSRVUAV, 8, gpucore.HeapFlagShaderVisible)
	cpuOnly := newHeap(t, tbl, 4, gpucore.HeapTypeRTV, 2, gpucore.HeapFlagNone)

	if visible.CPUStart != gpucore.CPUAddress(3<<32) {
		t.Errorf("CPUStart = %#x", uint64(visible.CPUStart))
	}
	if visible.GPUStart == 0 || uint64(visible.GPUStart)-uint64(visible.CPUStart) != gpuTag {
		t.Errorf("GPUStart = %#x", uint64(visible.GPUStart))
	}
	if cpuOnly.GPUStart != 0 {
		t.Errorf("CPU-only heap has GPU start %#x", uint64(cpuOnly.GPUStart))
	}
	if visible.Capacity() != 8 || !visible.ShaderVisible() || cpuOnly.ShaderVisible() {
		t.Error("capacity or visibility mismatch")
	}
	if HeapOfGPU(visible.GPUStart+64) != 3 {
		t.Errorf("HeapOfGPU = %d, want 3", HeapOfGPU(visible.GPUStart+64))
	}
}

func TestCreateRejects(t *testing.T) {
	tbl := NewTable()
	tests := []struct {
		name string
		desc *gpucore.DescriptorHeapDesc
	}{
		{"nil", nil},
		{"zero capacity", &gpucore.DescriptorHeapDesc{Type: gpucore.HeapTypeCBVSRVUAV}},
		{"visible rtv", &gpucore.DescriptorHeapDesc{Type: gpucore.HeapTypeRTV, Capacity: 1, Flags: gpucore.HeapFlagShaderVisible}},
		{"visible dsv", &gpucore.DescriptorHeapDesc{Type: gpucore.HeapTypeDSV, Capacity: 1, Flags: gpucore.HeapFlagShaderVisible}},
		{"too large", &gpucore.DescriptorHeapDesc{Type: gpucore.HeapTypeCBVSRVUAV, Capacity: 1 << 28}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tbl.Create(1, tt.desc); !errors.Is(err, gpucore.ErrInvalidArgument) {
				t.Errorf("Create = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestWriteRead(t *testing.T) {
	tbl := NewTable()
	h := newHeap(t, tbl, 1, gpucore.HeapTypeCBVSRVUAV, 4, gpucore.HeapFlagShaderVisible)
	inc := gpucore.CPUAddress(Increment(gpucore.HeapTypeCBVSRVUAV))

	cbv := Descriptor{Kind: KindCBV, Resource: 9, Offset: 256, Size: 256}
	if err := tbl.Write(h.CPUStart+inc, cbv); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if h.Version != 1 {
		t.Errorf("Version = %d, want 1", h.Version)
	}
	got, err := tbl.Read(h.CPUStart + inc)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != cbv {
		t.Errorf("Read = %+v, want %+v", got, cbv)
	}

	if _, err := tbl.Read(h.CPUStart); !errors.Is(err, ErrEmptySlot) {
		t.Errorf("Read(empty) = %v, want ErrEmptySlot", err)
	}
	if err := tbl.Write(h.CPUStart, Descriptor{Kind: KindRTV, Resource: 1}); !errors.Is(err, ErrWrongHeapType) {
		t.Errorf("Write(RTV into CBV heap) = %v, want ErrWrongHeapType", err)
	}
	if err := tbl.Write(h.CPUStart+1, cbv); !errors.Is(err, ErrBadAddress) {
		t.Errorf("Write(misaligned) = %v, want ErrBadAddress", err)
	}
	if err := tbl.Write(h.CPUStart+4*inc, cbv); !errors.Is(err, ErrBadAddress) {
		t.Errorf("Write(past end) = %v, want ErrBadAddress", err)
	}
}

func TestReadGPU(t *testing.T) {
	tbl := NewTable()
	h := newHeap(t, tbl, 2, gpucore.HeapTypeCBVSRVUAV, 4, gpucore.HeapFlagShaderVisible)
	inc := Increment(gpucore.HeapTypeCBVSRVUAV)
	for i := uint32(0); i < 4; i++ {
		d := Descriptor{Kind: KindSRV, Resource: gpucore.ResourceID(10 + i)}
		if err := tbl.Write(h.CPUStart+gpucore.CPUAddress(i*inc), d); err != nil {
			t.Fatal(err)
		}
	}

	descs, heap, err := tbl.ReadGPU(h.GPUStart+gpucore.GPUAddress(inc), 2)
	if err != nil {
		t.Fatalf("ReadGPU failed: %v", err)
	}
	if heap != h || len(descs) != 2 || descs[0].Resource != 11 || descs[1].Resource != 12 {
		t.Errorf("ReadGPU = %+v", descs)
	}

	if _, _, err := tbl.ReadGPU(gpucore.GPUAddress(h.CPUStart), 1); !errors.Is(err, ErrBadAddress) {
		t.Errorf("ReadGPU(cpu handle) = %v, want ErrBadAddress", err)
	}
	if _, _, err := tbl.ReadGPU(h.GPUStart+gpucore.GPUAddress(3*inc), 2); !errors.Is(err, ErrBadAddress) {
		t.Errorf("ReadGPU(overrun) = %v, want ErrBadAddress", err)
	}

	tbl.Remove(2)
	if _, _, err := tbl.ReadGPU(h.GPUStart, 1); !errors.Is(err, ErrBadAddress) {
		t.Errorf("ReadGPU(removed heap) = %v, want ErrBadAddress", err)
	}
	if _, ok := tbl.Get(2); ok {
		t.Error("Get found a removed heap")
	}
}

func TestKindString(t *testing.T) {
	for k, want := range map[Kind]string{KindEmpty: "empty", KindCBV: "CBV", KindSRV: "SRV", KindRTV: "RTV", KindDSV: "DSV"} {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
}
