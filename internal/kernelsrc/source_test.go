package kernelsrc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello_world.cl")
	content := []byte("__kernel void hello_world(__global const uchar *in, __global uchar *out) { out[0] = in[0]; }\n")
	require.NoError(t, os.WriteFile(path, content, 0644))

	src, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, src.Path)
	assert.Equal(t, len(content), src.Len())
	assert.Equal(t, content, src.Bytes())
	assert.Equal(t, string(content), src.String())
}

func TestLoadKeepsBinaryContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "k.cl")
	content := []byte{'a', 0, 'b', '\r', '\n', 0xff}
	require.NoError(t, os.WriteFile(path, content, 0644))

	src, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, content, src.Bytes(), "no terminator is appended and embedded NULs survive")
}

func TestLoadNotFound(t *testing.T) {
	var src *Source
	var err error
	require.NotPanics(t, func() {
		src, err = Load(filepath.Join(t.TempDir(), "missing.cl"))
	})
	assert.Nil(t, src)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.cl")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLoadDirectory(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}
