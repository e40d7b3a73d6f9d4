package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/anima-compute/engine/core"
)

func init() {
	// GLFW must be driven from the main OS thread
	runtime.LockOSThread()
}

// Platform wraps GLFW. It only resolves the Vulkan loader; no window is ever
// created.
type Platform struct {
	started bool
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Startup() error {
	if p.started {
		return nil
	}
	if err := glfw.Init(); err != nil {
		err := core.NewError(core.KindDriver, "platform.Startup", fmt.Errorf("%w: failed to initialize glfw: %s", core.ErrDriverUnavailable, err))
		core.LogError(err.Error())
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		err := core.NewError(core.KindDriver, "platform.Startup", fmt.Errorf("%w: glfw found no Vulkan loader", core.ErrDriverUnavailable))
		core.LogError(err.Error())
		return err
	}
	p.started = true
	core.LogDebug("Platform started, Vulkan loader available.")
	return nil
}

// GetInstanceProcAddress returns vkGetInstanceProcAddr as resolved by GLFW.
func (p *Platform) GetInstanceProcAddress() (unsafe.Pointer, error) {
	if !p.started {
		return nil, core.Errorf(core.KindConfiguration, "platform.GetInstanceProcAddress", "platform not started")
	}
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, core.NewError(core.KindDriver, "platform.GetInstanceProcAddress", fmt.Errorf("%w: GetInstanceProcAddress is nil", core.ErrDriverUnavailable))
	}
	return procAddr, nil
}

func (p *Platform) Shutdown() error {
	if p.started {
		glfw.Terminate()
		p.started = false
	}
	return nil
}
