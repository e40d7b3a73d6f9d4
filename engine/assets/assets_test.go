package assets

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-compute/engine/core"
	"github.com/spaghettifunk/anima-compute/engine/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

const manifest = `
name = "mul_12"
stage = "compute"
source = "shaders/mul_12.comp"
binary = "shaders/mul_12.spv"
entry_point = "main"
local_size = [64, 1, 1]

[[bindings]]
set = 0
binding = 0
type = "storage_buffer"
`

// spirv encodes the interface instructions of a compute module with one
// buffer at set 0 / binding 0.
func spirv(localSize [3]uint32) []byte {
	words := []uint32{
		0x07230203, 0x00010000, 0, 16, 0,
		2<<16 | 17, 1, // OpCapability Shader
		6<<16 | 15, 5, 4, 0x6e69616d, 0, 11, // OpEntryPoint GLCompute %4 "main" %11
		6<<16 | 16, 4, 17, localSize[0], localSize[1], localSize[2], // OpExecutionMode LocalSize
		4<<16 | 71, 10, 34, 0, // OpDecorate %10 DescriptorSet 0
		4<<16 | 71, 10, 33, 0, // OpDecorate %10 Binding 0
	}
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func newAssetsDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return dir
}

func newManager(t *testing.T, dir string) *AssetManager {
	t.Helper()
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(dir))
	t.Cleanup(func() { _ = am.Shutdown() })
	return am
}

func TestInitializeIndexesAssets(t *testing.T) {
	dir := newAssetsDir(t, map[string]string{
		"shaders/mul_12.shadercfg": manifest,
		"shaders/mul_12.comp":      "#version 450\n",
		"README.txt":               "ignored",
	})
	am := newManager(t, dir)

	info, ok := am.Lookup("shaders/mul_12.shadercfg")
	require.True(t, ok)
	assert.Equal(t, resources.ResourceTypeShader, info.Type)
	assert.Equal(t, filepath.Join(am.Root(), "shaders", "mul_12.shadercfg"), info.FullPath)

	_, ok = am.Lookup("README.txt")
	assert.False(t, ok)

	sources := am.Assets(resources.ResourceTypeShaderSource)
	require.Len(t, sources, 1)
	assert.Equal(t, "shaders/mul_12.comp", sources[0].Path)
}

func TestInitializeMissingDir(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)
	err = am.Initialize(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, core.KindAsset, core.KindOf(err))
}

func TestLoadShaderWithoutBinary(t *testing.T) {
	am := newManager(t, newAssetsDir(t, map[string]string{"shaders/mul_12.shadercfg": manifest}))

	shader, err := am.LoadShader("mul_12")
	require.NoError(t, err)
	assert.False(t, shader.HasCode())
	assert.Equal(t, "main", shader.EntryPoint)
	assert.Equal(t, [3]uint32{64, 1, 1}, shader.LocalSize)
	assert.Equal(t, uint32(64), shader.InvocationsPerGroup())
	assert.Equal(t, filepath.Join(am.Root(), "shaders", "mul_12.spv"), shader.BinaryPath)
}

func TestLoadShaderWithBinary(t *testing.T) {
	am := newManager(t, newAssetsDir(t, map[string]string{
		"shaders/mul_12.shadercfg": manifest,
		"shaders/mul_12.spv":       string(spirv([3]uint32{64, 1, 1})),
	}))

	shader, err := am.LoadShader("mul_12")
	require.NoError(t, err)
	require.True(t, shader.HasCode())
	assert.Equal(t, uint32(0x07230203), shader.Code[0])
	assert.Len(t, shader.SetBindings(0), 1)
	assert.Empty(t, shader.SetBindings(1))

	info, ok := am.Lookup("shaders/mul_12.spv")
	require.True(t, ok)
	assert.False(t, info.LastLoaded.IsZero())
}

func TestLoadShaderTakesLocalSizeFromBinary(t *testing.T) {
	am := newManager(t, newAssetsDir(t, map[string]string{
		"shaders/k.shadercfg": "name = \"k\"\nbinary = \"shaders/k.spv\"\n[[bindings]]\nset = 0\nbinding = 0\ntype = \"storage_buffer\"\n",
		"shaders/k.spv":       string(spirv([3]uint32{128, 1, 1})),
	}))

	shader, err := am.LoadShader("k")
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{128, 1, 1}, shader.LocalSize)
}

func TestLoadShaderInterfaceMismatch(t *testing.T) {
	cases := map[string]map[string]string{
		"local size": {
			"shaders/mul_12.shadercfg": manifest,
			"shaders/mul_12.spv":       string(spirv([3]uint32{32, 1, 1})),
		},
		"entry point": {
			"shaders/mul_12.shadercfg": "name = \"mul_12\"\nbinary = \"shaders/mul_12.spv\"\nentry_point = \"run\"\n[[bindings]]\nset = 0\nbinding = 0\ntype = \"storage_buffer\"\n",
			"shaders/mul_12.spv":       string(spirv([3]uint32{64, 1, 1})),
		},
		"undeclared binding": {
			"shaders/mul_12.shadercfg": "name = \"mul_12\"\nbinary = \"shaders/mul_12.spv\"\n",
			"shaders/mul_12.spv":       string(spirv([3]uint32{64, 1, 1})),
		},
		"missing binding": {
			"shaders/mul_12.shadercfg": manifest + "\n[[bindings]]\nset = 0\nbinding = 1\ntype = \"storage_buffer\"\n",
			"shaders/mul_12.spv":       string(spirv([3]uint32{64, 1, 1})),
		},
		"not spirv": {
			"shaders/mul_12.shadercfg": manifest,
			"shaders/mul_12.spv":       "abcdabcdabcdabcdabcd",
		},
	}
	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			am := newManager(t, newAssetsDir(t, files))
			_, err := am.LoadShader("mul_12")
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrShaderAsset)
			assert.Equal(t, core.KindAsset, core.KindOf(err))
		})
	}
}

func TestLoadShaderUnknown(t *testing.T) {
	am := newManager(t, newAssetsDir(t, map[string]string{}))
	_, err := am.LoadShader("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrShaderAsset)
}

func TestLoadAssetWrongType(t *testing.T) {
	am := newManager(t, newAssetsDir(t, map[string]string{"shaders/mul_12.shadercfg": manifest}))
	_, err := am.LoadAsset("shaders/mul_12.shadercfg", resources.ResourceTypeBinary, nil)
	assert.ErrorContains(t, err, "not a binary")
}

func TestWatcherIndexesNewFiles(t *testing.T) {
	dir := newAssetsDir(t, map[string]string{"shaders/mul_12.shadercfg": manifest})
	am := newManager(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "shaders", "late.comp"), []byte("#version 450\n"), 0o644))
	assert.Eventually(t, func() bool {
		_, ok := am.Lookup("shaders/late.comp")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "shaders", "late.comp")))
	assert.Eventually(t, func() bool {
		_, ok := am.Lookup("shaders/late.comp")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBundledShaderManifest(t *testing.T) {
	am := newManager(t, filepath.Join("..", "..", "assets"))

	shader, err := am.LoadShader("mul_12")
	require.NoError(t, err)
	assert.Equal(t, "mul_12", shader.Name)
	assert.Equal(t, resources.ShaderStageCompute, shader.Stage)
	assert.Equal(t, [3]uint32{64, 1, 1}, shader.LocalSize)
	assert.Equal(t, []resources.ShaderBinding{{Set: 0, Binding: 0, Type: resources.DescriptorTypeStorageBuffer}}, shader.Bindings)
}
