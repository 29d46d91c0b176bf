package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/dx12"
	"github.com/gogpu/dx12/internal/image"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func TestModes(t *testing.T) {
	out, err := execute(t, "modes", "--backend", "software")
	require.NoError(t, err)
	assert.Contains(t, out, "R8G8B8A8_UNORM")
	assert.Contains(t, out, "1920 x 1080")
	assert.Contains(t, out, "4 modes")
}

func TestFrameWritesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	out, err := execute(t, "frame", "--backend", "software", "-n", "4", "--width", "6", "--height", "2", "--buffers", "3", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "rendered 4 frames on 3 buffers")
	assert.Contains(t, out, "wrote buffer 0")

	px, err := image.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, px.Width)
	assert.Equal(t, bytes.Repeat([]byte{128, 128, 128, 255}, 12), px.Data)
}

func TestTextureChecksums(t *testing.T) {
	dir := t.TempDir()
	src := &dx12.Pixels{Width: 2, Height: 1, Data: []byte{255, 0, 0, 255, 0, 0, 255, 128}}
	require.NoError(t, src.SavePNG(filepath.Join(dir, "a.png")))

	out, err := execute(t, "texture", "--backend", "software", filepath.Join(dir, "a.png"))
	require.NoError(t, err)
	assert.Contains(t, out, "a.png\t2x1\t8 bytes\tcrc32")
}

func TestErrors(t *testing.T) {
	_, err := execute(t, "frame", "--backend", "software", "--frames", "0")
	assert.Error(t, err)
	_, err = execute(t, "modes", "--backend", "nope")
	assert.Error(t, err)
	_, err = execute(t, "texture", "--backend", "software")
	assert.Error(t, err)
}

func TestConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dx12.toml")
	require.NoError(t, os.WriteFile(path, []byte("backend = \"software\"\ndisplay_format = \"B8G8R8A8_UNORM\"\n"), 0o600))

	out, err := execute(t, "modes", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "B8G8R8A8_UNORM")
}
