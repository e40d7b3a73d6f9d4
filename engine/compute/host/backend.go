// Package host is a CPU reference implementation of the compute interfaces.
// Buffers live in Go memory and shaders are Go kernels registered by name, so
// the whole flow can run and be tested on machines without a GPU driver.
package host

import (
	"runtime"

	"github.com/spaghettifunk/anima-compute/engine/compute"
	"github.com/spaghettifunk/anima-compute/engine/core"
)

type Config struct {
	// Devices reported by the instance, in enumeration order. Defaults to
	// DefaultDevices().
	Devices []compute.PhysicalDevice
	// Workers executing workgroups of a dispatch. Defaults to GOMAXPROCS.
	Workers int
	// Kernels by shader name.
	Kernels map[string]Kernel
	// MaxAllocation caps a single buffer allocation in bytes; zero means no cap.
	MaxAllocation uint64
}

type Backend struct {
	config Config
}

func New(config Config) *Backend {
	if config.Devices == nil {
		config.Devices = DefaultDevices()
	}
	if config.Workers <= 0 {
		config.Workers = runtime.GOMAXPROCS(0)
	}
	if config.Kernels == nil {
		config.Kernels = map[string]Kernel{}
	}
	return &Backend{config: config}
}

// DefaultDevices is a single CPU device with one queue family that can do
// everything.
func DefaultDevices() []compute.PhysicalDevice {
	return []compute.PhysicalDevice{
		{
			Index:         0,
			Name:          "Host CPU",
			Type:          compute.DeviceTypeCPU,
			APIVersion:    "1.0.0",
			DriverVersion: runtime.Version(),
			QueueFamilies: []compute.QueueFamily{
				{Index: 0, QueueCount: 1, Graphics: true, Compute: true, Transfer: true},
			},
		},
	}
}

// RegisterKernel makes name available to CreateComputePipeline.
func (b *Backend) RegisterKernel(name string, k Kernel) {
	b.config.Kernels[name] = k
}

func (b *Backend) Name() string {
	return "host"
}

func (b *Backend) CreateInstance(info compute.AppInfo) (compute.Instance, error) {
	if info.Validation {
		core.LogDebug("Validation requested; the host backend validates every call.")
	}
	core.LogInfo("Host instance created for '%s'.", info.Name)
	return &instance{backend: b}, nil
}

type instance struct {
	backend   *Backend
	destroyed bool
}

func (i *instance) PhysicalDevices() ([]compute.PhysicalDevice, error) {
	out := make([]compute.PhysicalDevice, len(i.backend.config.Devices))
	copy(out, i.backend.config.Devices)
	return out, nil
}

func (i *instance) CreateDevice(sel compute.Selection, queuePriority float32) (compute.Device, error) {
	const op = "host.CreateDevice"

	found := false
	for _, family := range sel.Device.QueueFamilies {
		if family.Index == sel.QueueFamily.Index {
			found = family.QueueCount > 0
			break
		}
	}
	if !found {
		return nil, core.Errorf(core.KindDevice, op, "queue family %d has no queue on device '%s'", sel.QueueFamily.Index, sel.Device.Name)
	}

	d, err := newDevice(i.backend.config, sel, queuePriority)
	if err != nil {
		return nil, core.NewError(core.KindDevice, op, err)
	}
	core.LogInfo("Host logical device created with 1 queue (family %d, priority %.2f).", sel.QueueFamily.Index, queuePriority)
	return d, nil
}

func (i *instance) Destroy() {
	i.destroyed = true
}
