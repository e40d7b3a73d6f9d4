package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spaghettifunk/anima-compute/engine/assets"
	"github.com/spaghettifunk/anima-compute/engine/compute"
	"github.com/spaghettifunk/anima-compute/engine/compute/host"
	"github.com/spaghettifunk/anima-compute/engine/compute/vulkan"
	"github.com/spaghettifunk/anima-compute/engine/core"
	"github.com/spaghettifunk/anima-compute/engine/platform"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine ran every phase
	EngineStageFinished
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released every resource
	EngineStageShutdown
)

type Engine struct {
	currentStage Stage
	program      *Program
	config       *ApplicationConfig
	phases       []Phase
	isRunning    atomic.Bool
	platform     *platform.Platform
	assetManager *assets.AssetManager
	backend      compute.Backend
	context      *compute.Context
	clock        *core.Clock
	out          io.Writer
}

// New checks the configuration against the program. Nothing touches the
// driver until Initialize.
func New(p *Program, cfg *ApplicationConfig, out io.Writer) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	phases, err := selectPhases(p, cfg.Application.Phases)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if out == nil {
		out = os.Stdout
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	e := &Engine{
		currentStage: EngineStageUninitialized,
		program:      p,
		config:       cfg,
		phases:       phases,
		platform:     platform.New(),
		assetManager: am,
		clock:        core.NewClock(),
		out:          out,
	}
	e.backend = newBackend(cfg, p, e.platform)
	return e, nil
}

// selectPhases keeps the program order; unknown names are rejected.
func selectPhases(p *Program, names []string) ([]Phase, error) {
	wanted := map[string]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "init" {
			continue
		}
		if _, ok := p.phase(name); !ok {
			return nil, core.Errorf(core.KindConfiguration, "engine.selectPhases", "%w: unknown phase %q, expected one of init, %s",
				core.ErrInvalidConfig, name, strings.Join(p.phaseNames(), ", "))
		}
		wanted[name] = true
	}

	var out []Phase
	for _, ph := range p.Phases {
		if wanted[ph.Name] {
			out = append(out, ph)
		}
	}
	return out, nil
}

func newBackend(cfg *ApplicationConfig, p *Program, plat *platform.Platform) compute.Backend {
	if cfg.Application.Backend == BackendHost {
		b := host.New(host.Config{Workers: cfg.Host.Workers})
		for name, k := range p.HostKernels {
			b.RegisterKernel(name, k)
		}
		return b
	}
	return vulkan.New(vulkan.Config{
		Loader:   vulkan.Loader(cfg.Vulkan.Loader),
		Platform: plat,
	})
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if err := core.SetLogLevel(e.config.Application.LogLevel); err != nil {
		return err
	}

	assetsDir, err := filepath.Abs(e.config.Application.AssetsDir)
	if err != nil {
		return core.NewError(core.KindConfiguration, "engine.Initialize", err)
	}
	if err := e.assetManager.Initialize(assetsDir); err != nil {
		return err
	}

	ctx, err := compute.Open(e.backend, compute.Options{
		AppName:       e.config.Application.Name,
		Validation:    e.config.Vulkan.Validation,
		QueuePriority: e.config.Vulkan.QueuePriority,
		Out:           e.out,
	})
	if err != nil {
		return err
	}
	e.context = ctx

	e.currentStage = EngineStageInitialized
	e.isRunning.Store(true)
	core.LogInfo("Engine initialized on %s backend.", e.backend.Name())
	return nil
}

// Run executes the selected phases once, in order, stopping at the first
// error. Stop makes it return before the next phase.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return core.Errorf(core.KindConfiguration, "engine.Run", "engine is not initialized")
	}
	e.currentStage = EngineStageRunning

	rt := &Runtime{
		Config:  e.config,
		Context: e.context,
		Assets:  e.assetManager,
		Out:     e.out,
	}

	for _, ph := range e.phases {
		if !e.isRunning.Load() {
			return core.Errorf(core.KindUnknown, "engine.Run", "interrupted before phase %s", ph.Name)
		}
		core.LogInfo("Running phase %s...", ph.Name)
		e.clock.Start()
		err := ph.Run(rt)
		e.clock.Stop()
		if err != nil {
			core.LogError("Phase %s failed after %s: %s", ph.Name, e.clock.Elapsed(), err)
			return err
		}
		core.LogInfo("Phase %s done in %s.", ph.Name, e.clock.Elapsed())
	}

	if e.program.FnComplete != nil {
		if err := e.program.FnComplete(rt); err != nil {
			return err
		}
	}

	snap := e.context.Metrics().Snapshot()
	core.LogInfo("Submissions: %d, fence waits: %d, average episode %.3fms.", snap.Submissions, snap.FenceWaits, snap.EpisodeMSAvg)
	e.currentStage = EngineStageFinished
	return nil
}

// Stop asks Run to return before its next phase.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Context() *compute.Context {
	return e.context
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	if e.context != nil {
		e.context.Close()
	}
	if err := e.assetManager.Shutdown(); err != nil {
		return err
	}
	if err := e.platform.Shutdown(); err != nil {
		return err
	}
	e.currentStage = EngineStageShutdown
	return nil
}

// ListDevices enumerates the physical devices of the configured backend
// without creating a logical device.
func ListDevices(p *Program, cfg *ApplicationConfig) ([]compute.PhysicalDevice, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	plat := platform.New()
	defer plat.Shutdown()

	backend := newBackend(cfg, p, plat)
	instance, err := backend.CreateInstance(compute.AppInfo{Name: cfg.Application.Name, Validation: cfg.Vulkan.Validation})
	if err != nil {
		return nil, err
	}
	defer instance.Destroy()

	devices, err := instance.PhysicalDevices()
	if err != nil {
		return nil, fmt.Errorf("listing %s devices: %w", backend.Name(), err)
	}
	return devices, nil
}
