package assets

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/spaghettifunk/anima-compute/engine/assets/loaders"
	"github.com/spaghettifunk/anima-compute/engine/core"
	"github.com/spaghettifunk/anima-compute/engine/resources"
)

// LoadShader resolves shaders/<name>.shadercfg, loads the compiled binary it
// points at and checks that the binary matches the manifest. A shader whose
// binary has not been built is returned without code.
func (am *AssetManager) LoadShader(name string) (*resources.Shader, error) {
	const op = "assets.LoadShader"

	res, err := am.LoadAsset(path.Join("shaders", name+".shadercfg"), resources.ResourceTypeShader, nil)
	if err != nil {
		err := core.NewError(core.KindAsset, op, fmt.Errorf("%w: %s", core.ErrShaderAsset, err))
		core.LogError(err.Error())
		return nil, err
	}
	cfg, ok := res.Data.(*resources.ShaderConfig)
	if !ok {
		return nil, core.Errorf(core.KindAsset, op, "%w: %s is not a shader config", core.ErrShaderAsset, res.FullPath)
	}

	shader := &resources.Shader{
		Name:       cfg.Name,
		Stage:      cfg.Stage,
		EntryPoint: cfg.EntryPoint,
		LocalSize:  cfg.LocalSize,
		Bindings:   cfg.Bindings,
		BinaryPath: filepath.Join(am.root, filepath.FromSlash(cfg.Binary)),
	}
	if cfg.Source != "" {
		shader.SourcePath = filepath.Join(am.root, filepath.FromSlash(cfg.Source))
	}

	bin, err := am.LoadAsset(cfg.Binary, resources.ResourceTypeBinary, map[string]string{"name": cfg.Name})
	if err != nil {
		core.LogWarn("Shader '%s' has no compiled binary (%s); run `mage build:shaders`.", cfg.Name, err)
		return shader, nil
	}
	code := bin.Data.([]uint32)

	reflection, err := loaders.ReflectSPIRV(code)
	if err != nil {
		err := core.NewError(core.KindAsset, op, fmt.Errorf("%w: %s", core.ErrShaderAsset, err))
		core.LogError(err.Error())
		return nil, err
	}
	if err := checkShaderInterface(shader, reflection); err != nil {
		err := core.NewError(core.KindAsset, op, fmt.Errorf("%w: %s: %s", core.ErrShaderAsset, cfg.Name, err))
		core.LogError(err.Error())
		return nil, err
	}
	shader.Code = code

	core.LogDebug("Shader '%s' loaded: SPIR-V %d.%d, %d words, local size %v.",
		shader.Name, reflection.Major, reflection.Minor, len(code), shader.LocalSize)
	return shader, nil
}

// checkShaderInterface verifies the binary exposes what the manifest
// promises. A manifest without a local size takes the one from the binary.
func checkShaderInterface(shader *resources.Shader, r *loaders.SPIRVReflection) error {
	ep, ok := r.EntryPoint(shader.EntryPoint)
	if !ok {
		return fmt.Errorf("entry point %q not found", shader.EntryPoint)
	}
	if ep.ExecutionModel != loaders.ExecutionModelGLCompute {
		return fmt.Errorf("entry point %q is not a compute entry point (execution model %d)", ep.Name, ep.ExecutionModel)
	}

	if shader.LocalSize == [3]uint32{} {
		shader.LocalSize = ep.LocalSize
	} else if ep.LocalSize != [3]uint32{} && ep.LocalSize != shader.LocalSize {
		return fmt.Errorf("local size %v in manifest, %v in binary", shader.LocalSize, ep.LocalSize)
	}
	if shader.InvocationsPerGroup() == 0 {
		return fmt.Errorf("workgroup size is unknown")
	}

	for _, b := range shader.Bindings {
		if !r.HasBinding(b.Set, b.Binding) {
			return fmt.Errorf("binding %d.%d missing from binary", b.Set, b.Binding)
		}
	}
	for _, b := range r.Bindings {
		found := false
		for _, mb := range shader.Bindings {
			if mb.Set == b.Set && mb.Binding == b.Binding {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("binary uses binding %d.%d not declared in manifest", b.Set, b.Binding)
		}
	}
	return nil
}
