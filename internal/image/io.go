// Package image decodes texture files into tightly packed RGBA8 pixels.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// I/O errors.
var (
	// ErrUnsupportedFormat is returned when the image format is not supported.
	ErrUnsupportedFormat = errors.New("image: unsupported format")

	// ErrEmptyData is returned when image data is empty.
	ErrEmptyData = errors.New("image: empty data")
)

// decoders maps the extension reported by filetype to a decoder.
var decoders = map[string]func(io.Reader) (image.Image, error){
	"png":  png.Decode,
	"jpg":  jpeg.Decode,
	"gif":  gif.Decode,
	"bmp":  bmp.Decode,
	"tif":  tiff.Decode,
	"webp": webp.Decode,
}

// Pixels is a decoded image in R8G8B8A8 order with straight alpha and no
// row padding.
type Pixels struct {
	Width  int
	Height int
	Data   []byte
}

// RowBytes returns the size of one tightly packed row.
func (p *Pixels) RowBytes() int { return p.Width * 4 }

// Detect returns the container format of data from its magic bytes.
func Detect(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyData
	}
	kind, err := filetype.Match(data)
	if err != nil {
		return "", fmt.Errorf("image: detect: %w", err)
	}
	if _, ok := decoders[kind.Extension]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, kind.MIME.Value)
	}
	return kind.Extension, nil
}

// Decode decodes data of any supported format.
func Decode(data []byte) (*Pixels, error) {
	format, err := Detect(data)
	if err != nil {
		return nil, err
	}
	img, err := decoders[format](bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("image: decode %s: %w", format, err)
	}
	return FromImage(img), nil
}

// Load reads and decodes the file at path.
func Load(path string) (*Pixels, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("image: read file: %w", err)
	}
	p, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// FromImage converts img to packed RGBA8.
func FromImage(img image.Image) *Pixels {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if n, ok := img.(*image.NRGBA); ok && n.Stride == w*4 && b.Min == (image.Point{}) {
		return &Pixels{Width: w, Height: h, Data: append([]byte(nil), n.Pix[:w*h*4]...)}
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &Pixels{Width: w, Height: h, Data: dst.Pix}
}

// ToImage wraps the pixels in an image.NRGBA without copying.
func (p *Pixels) ToImage() *image.NRGBA {
	return &image.NRGBA{Pix: p.Data, Stride: p.RowBytes(), Rect: image.Rect(0, 0, p.Width, p.Height)}
}

// EncodePNG encodes the pixels as PNG to the given writer.
func (p *Pixels) EncodePNG(w io.Writer) error {
	if err := png.Encode(w, p.ToImage()); err != nil {
		return fmt.Errorf("image: encode PNG: %w", err)
	}
	return nil
}

// SavePNG saves the pixels as a PNG file.
func (p *Pixels) SavePNG(path string) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("image: create file: %w", err)
	}
	if err := p.EncodePNG(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
