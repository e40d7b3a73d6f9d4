package engine

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-compute/engine/core"
)

const (
	BackendVulkan = "vulkan"
	BackendHost   = "host"
)

type ApplicationConfig struct {
	Application AppConfig    `toml:"application"`
	Vulkan      VulkanConfig `toml:"vulkan"`
	Demo        DemoConfig   `toml:"demo"`
	Host        HostConfig   `toml:"host"`
}

type AppConfig struct {
	// The application name reported to the driver.
	Name     string        `toml:"name"`
	LogLevel core.LogLevel `toml:"log_level"`
	// "vulkan" or "host".
	Backend string `toml:"backend"`
	// Directory indexed by the asset manager, relative to the working directory.
	AssetsDir string `toml:"assets_dir"`
	// Phases to run. Device initialization always runs.
	Phases []string `toml:"phases"`
}

type VulkanConfig struct {
	Validation bool `toml:"validation"`
	// "glfw" or "system".
	Loader        string  `toml:"loader"`
	QueuePriority float32 `toml:"queue_priority"`
}

type DemoConfig struct {
	ScalarValue    uint32    `toml:"scalar_value"`
	CopyLength     uint32    `toml:"copy_length"`
	DispatchLength uint32    `toml:"dispatch_length"`
	Workgroups     [3]uint32 `toml:"workgroups"`
	// Shader manifest name under assets/shaders.
	Shader     string `toml:"shader"`
	Multiplier uint32 `toml:"multiplier"`
}

type HostConfig struct {
	// Zero means one worker per CPU.
	Workers int `toml:"workers"`
}

func DefaultConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Application: AppConfig{
			Name:      "Hello Compute",
			LogLevel:  core.LogLevelInfo,
			Backend:   BackendVulkan,
			AssetsDir: "assets",
			Phases:    []string{"scalar", "copy", "dispatch"},
		},
		Vulkan: VulkanConfig{
			Validation:    false,
			Loader:        "glfw",
			QueuePriority: 0.5,
		},
		Demo: DemoConfig{
			ScalarValue:    12,
			CopyLength:     64,
			DispatchLength: 65536,
			Workgroups:     [3]uint32{1024, 1, 1},
			Shader:         "mul_12",
			Multiplier:     12,
		},
	}
}

// LoadConfig reads a TOML file over the defaults. A missing file yields the
// defaults.
func LoadConfig(path string) (*ApplicationConfig, error) {
	const op = "engine.LoadConfig"

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		core.LogDebug("No configuration at %s, using defaults.", path)
		return cfg, nil
	}
	if err != nil {
		return nil, core.NewError(core.KindConfiguration, op, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return nil, core.Errorf(core.KindConfiguration, op, "%w: %s:%d:%d: %s", core.ErrInvalidConfig, path, row, col, decodeErr)
		}
		return nil, core.Errorf(core.KindConfiguration, op, "%w: %s: %s", core.ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

func (c *ApplicationConfig) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	app := c.Application
	if app.Name == "" {
		add("application.name is empty")
	}
	switch core.LogLevel(strings.ToLower(string(app.LogLevel))) {
	case core.LogLevelDebug, core.LogLevelInfo, core.LogLevelWarn, core.LogLevelError:
	default:
		add("application.log_level %q is not one of debug, info, warn, error", app.LogLevel)
	}
	if app.Backend != BackendVulkan && app.Backend != BackendHost {
		add("application.backend %q is not one of %s, %s", app.Backend, BackendVulkan, BackendHost)
	}
	if app.AssetsDir == "" {
		add("application.assets_dir is empty")
	}
	for _, p := range app.Phases {
		if strings.TrimSpace(p) == "" {
			add("application.phases contains an empty name")
		}
	}

	vc := c.Vulkan
	if vc.Loader != "glfw" && vc.Loader != "system" {
		add("vulkan.loader %q is not one of glfw, system", vc.Loader)
	}
	if vc.QueuePriority <= 0 || vc.QueuePriority > 1 {
		add("vulkan.queue_priority %v is outside (0, 1]", vc.QueuePriority)
	}

	demo := c.Demo
	if demo.CopyLength == 0 {
		add("demo.copy_length must be positive")
	}
	if demo.DispatchLength == 0 {
		add("demo.dispatch_length must be positive")
	}
	for i, g := range demo.Workgroups {
		if g == 0 {
			add("demo.workgroups[%d] must be positive", i)
		}
	}
	if demo.Shader == "" {
		add("demo.shader is empty")
	}
	if demo.Multiplier == 0 {
		add("demo.multiplier must be positive")
	}

	if c.Host.Workers < 0 {
		add("host.workers %d is negative", c.Host.Workers)
	}

	if len(problems) > 0 {
		return core.Errorf(core.KindConfiguration, "engine.Validate", "%w: %s", core.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
