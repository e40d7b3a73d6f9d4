package loaders

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-compute/engine/resources"
)

type ShaderLoader struct{}

// Load parses a .shadercfg manifest. Data holds a *resources.ShaderConfig.
func (sl *ShaderLoader) Load(path string, assetType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &resources.ShaderConfig{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse shader config %s: %w", path, err)
	}
	if err := validateShaderConfig(cfg); err != nil {
		return nil, fmt.Errorf("shader config %s: %w", path, err)
	}

	return &resources.Resource{
		Name:     cfg.Name,
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     cfg,
	}, nil
}

func (sl *ShaderLoader) Unload(r *resources.Resource) error {
	r.Data = nil
	return nil
}

func validateShaderConfig(cfg *resources.ShaderConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("missing name")
	}
	if cfg.Stage == "" {
		cfg.Stage = resources.ShaderStageCompute
	}
	if cfg.Stage != resources.ShaderStageCompute {
		return fmt.Errorf("unsupported stage %q", cfg.Stage)
	}
	if cfg.EntryPoint == "" {
		cfg.EntryPoint = "main"
	}
	if cfg.Binary == "" {
		return fmt.Errorf("missing binary path")
	}

	seen := make(map[[2]uint32]bool, len(cfg.Bindings))
	for _, b := range cfg.Bindings {
		if !b.Type.Valid() {
			return fmt.Errorf("binding %d.%d has unsupported type %q", b.Set, b.Binding, b.Type)
		}
		key := [2]uint32{b.Set, b.Binding}
		if seen[key] {
			return fmt.Errorf("binding %d.%d declared twice", b.Set, b.Binding)
		}
		seen[key] = true
	}
	return nil
}
