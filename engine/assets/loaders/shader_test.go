package loaders

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima-compute/engine/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestShaderLoaderDefaults(t *testing.T) {
	p := writeFile(t, "double.shadercfg", []byte(`
name = "double"
binary = "shaders/double.spv"

[[bindings]]
set = 0
binding = 0
type = "storage_buffer"
`))

	sl := &ShaderLoader{}
	res, err := sl.Load(p, resources.ResourceTypeShader, nil)
	require.NoError(t, err)

	cfg := res.Data.(*resources.ShaderConfig)
	assert.Equal(t, "double", res.Name)
	assert.Equal(t, resources.ShaderStageCompute, cfg.Stage)
	assert.Equal(t, "main", cfg.EntryPoint)
	assert.Equal(t, [3]uint32{}, cfg.LocalSize)
	assert.Equal(t, []resources.ShaderBinding{{Set: 0, Binding: 0, Type: resources.DescriptorTypeStorageBuffer}}, cfg.Bindings)

	require.NoError(t, sl.Unload(res))
	assert.Nil(t, res.Data)
}

func TestShaderLoaderRejectsBadManifests(t *testing.T) {
	cases := map[string]string{
		"missing name": `binary = "a.spv"`,
		"vertex stage": "name = \"a\"\nstage = \"vertex\"\nbinary = \"a.spv\"",
		"no binary":    `name = "a"`,
		"bad type":     "name = \"a\"\nbinary = \"a.spv\"\n[[bindings]]\nset = 0\nbinding = 0\ntype = \"sampler\"",
		"duplicate":    "name = \"a\"\nbinary = \"a.spv\"\n[[bindings]]\nset = 0\nbinding = 0\ntype = \"storage_buffer\"\n[[bindings]]\nset = 0\nbinding = 0\ntype = \"storage_buffer\"",
		"not toml":     `name = `,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := writeFile(t, "bad.shadercfg", []byte(body))
			_, err := (&ShaderLoader{}).Load(p, resources.ResourceTypeShader, nil)
			assert.Error(t, err)
		})
	}
}

func TestBinaryLoader(t *testing.T) {
	p := writeFile(t, "x.spv", []byte{0x03, 0x02, 0x23, 0x07})
	bl := &BinaryLoader{}
	res, err := bl.Load(p, resources.ResourceTypeBinary, map[string]string{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, "x", res.Name)
	assert.Equal(t, uint64(4), res.DataSize)
	assert.Equal(t, []uint32{SPIRVMagic}, res.Data)

	p = writeFile(t, "odd.spv", []byte{1, 2, 3})
	_, err = bl.Load(p, resources.ResourceTypeBinary, nil)
	assert.Error(t, err)

	_, err = bl.Load(filepath.Join(t.TempDir(), "missing.spv"), resources.ResourceTypeBinary, nil)
	assert.Error(t, err)
}
