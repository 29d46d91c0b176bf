package gpucore

import (
	"errors"
	"testing"
)

func TestAlignUp(t *testing.T) {
	tests := []struct {
		v, align, want uint64
	}{
		{0, 256, 0},
		{1, 256, 256},
		{256, 256, 256},
		{257, 256, 512},
		{12, 4, 12},
		{13, 4, 16},
	}
	for _, tt := range tests {
		if got := AlignUp(tt.v, tt.align); got != tt.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", tt.v, tt.align, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	if FormatRGBA8Unorm.String() != "R8G8B8A8_UNORM" {
		t.Errorf("String() = %q", FormatRGBA8Unorm.String())
	}
	if FormatR32G32B32Float.BytesPerPixel() != 12 || FormatUnknown.BytesPerPixel() != 0 {
		t.Error("BytesPerPixel mismatch")
	}
	if !FormatD32Float.IsDepth() || !FormatD24UnormS8Uint.IsDepth() || FormatBGRA8Unorm.IsDepth() {
		t.Error("IsDepth mismatch")
	}
	if Format(99).IsValid() {
		t.Error("Format(99) reported valid")
	}

	f, err := ParseFormat("D32_FLOAT")
	if err != nil || f != FormatD32Float {
		t.Errorf("ParseFormat = %v, %v", f, err)
	}
	if _, err := ParseFormat("R5G6B5"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("ParseFormat(unknown) = %v, want ErrUnknownFormat", err)
	}
}

func TestFootprintSize(t *testing.T) {
	fp := Footprint{Format: FormatRGBA8Unorm, Width: 3, Height: 2, RowPitch: 256}
	if got := fp.Size(); got != 256+12 {
		t.Errorf("Size() = %d, want 268", got)
	}
	if got := (Footprint{Format: FormatRGBA8Unorm, Width: 3, RowPitch: 256}).Size(); got != 0 {
		t.Errorf("empty footprint Size() = %d", got)
	}
}

func TestResourceDescByteSize(t *testing.T) {
	buf := ResourceDesc{Dimension: DimensionBuffer, Width: 100}
	tex := ResourceDesc{Dimension: DimensionTexture2D, Width: 4, Height: 2, Format: FormatRGBA8Unorm}
	if buf.ByteSize() != 100 || tex.ByteSize() != 32 {
		t.Errorf("ByteSize = %d, %d", buf.ByteSize(), tex.ByteSize())
	}
}

func TestResourceStateString(t *testing.T) {
	tests := map[ResourceState]string{
		StatePresent:                    "PRESENT",
		StateRenderTarget:               "RENDER_TARGET",
		StateGenericRead:                "GENERIC_READ",
		StateCopyDest | StateCopySource: "ResourceState(0xc00)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%#x.String() = %q, want %q", uint32(s), got, want)
		}
	}
}

func TestDisplayModeRefreshRate(t *testing.T) {
	m := DisplayMode{RefreshNumerator: 60000, RefreshDenominator: 1001}
	if r := m.RefreshRate(); r < 59.9 || r > 59.95 {
		t.Errorf("RefreshRate() = %v", r)
	}
	if (DisplayMode{}).RefreshRate() != 0 {
		t.Error("zero denominator should give 0")
	}
}

func TestRootParameterDescriptors(t *testing.T) {
	p := RootParameter{Ranges: []DescriptorRange{{Type: RangeCBV, Count: 2}, {Type: RangeSRV, Count: 3}}}
	if p.Descriptors() != 5 {
		t.Errorf("Descriptors() = %d, want 5", p.Descriptors())
	}
}
