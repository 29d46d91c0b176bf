package gpucore

import "fmt"

// Format specifies the layout of texel and index data.
type Format uint32

// Formats.
const (
	FormatUnknown Format = iota
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatR16Uint
	FormatR32Uint
	FormatD24UnormS8Uint
	FormatD32Float
	FormatR32G32Float
	FormatR32G32B32Float

	formatCount
)

var formatNames = [formatCount]string{
	FormatUnknown:        "UNKNOWN",
	FormatRGBA8Unorm:     "R8G8B8A8_UNORM",
	FormatBGRA8Unorm:     "B8G8R8A8_UNORM",
	FormatR16Uint:        "R16_UINT",
	FormatR32Uint:        "R32_UINT",
	FormatD24UnormS8Uint: "D24_UNORM_S8_UINT",
	FormatD32Float:       "D32_FLOAT",
	FormatR32G32Float:    "R32G32_FLOAT",
	FormatR32G32B32Float: "R32G32B32_FLOAT",
}

var formatSizes = [formatCount]uint32{
	FormatRGBA8Unorm:     4,
	FormatBGRA8Unorm:     4,
	FormatR16Uint:        2,
	FormatR32Uint:        4,
	FormatD24UnormS8Uint: 4,
	FormatD32Float:       4,
	FormatR32G32Float:    8,
	FormatR32G32B32Float: 12,
}

// String returns the native-style name of the format.
func (f Format) String() string {
	if f < formatCount {
		return formatNames[f]
	}
	return fmt.Sprintf("Unknown(%d)", int(f))
}

// IsValid reports whether f names a known format.
func (f Format) IsValid() bool { return f < formatCount }

// BytesPerPixel returns the size of one element, 0 for FormatUnknown.
func (f Format) BytesPerPixel() uint32 {
	if f < formatCount {
		return formatSizes[f]
	}
	return 0
}

// IsDepth reports whether f is a depth or depth-stencil format.
func (f Format) IsDepth() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32Float
}

// ParseFormat returns the format with the given native-style name.
func ParseFormat(name string) (Format, error) {
	for i, n := range formatNames {
		if n == name {
			return Format(i), nil
		}
	}
	return FormatUnknown, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}
