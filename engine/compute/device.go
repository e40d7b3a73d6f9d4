package compute

import (
	"github.com/spaghettifunk/anima-compute/engine/resources"
)

type DeviceType string

const (
	DeviceTypeOther         DeviceType = "other"
	DeviceTypeIntegratedGPU DeviceType = "integrated_gpu"
	DeviceTypeDiscreteGPU   DeviceType = "discrete_gpu"
	DeviceTypeVirtualGPU    DeviceType = "virtual_gpu"
	DeviceTypeCPU           DeviceType = "cpu"
)

type QueueFamily struct {
	Index      uint32
	QueueCount uint32
	Graphics   bool
	Compute    bool
	Transfer   bool
}

// PhysicalDevice describes one enumerated accelerator. Index is its position
// in the enumeration order.
type PhysicalDevice struct {
	Index         int
	Name          string
	Type          DeviceType
	APIVersion    string
	DriverVersion string
	QueueFamilies []QueueFamily
}

type AppInfo struct {
	Name string
	// Enables API validation where the backend supports it.
	Validation bool
}

// Backend creates instances of one compute API.
type Backend interface {
	Name() string
	CreateInstance(info AppInfo) (Instance, error)
}

// Instance is a live connection to a compute API runtime.
type Instance interface {
	PhysicalDevices() ([]PhysicalDevice, error)
	// CreateDevice creates a logical device with a single queue of the
	// selected family.
	CreateDevice(sel Selection, queuePriority float32) (Device, error)
	Destroy()
}

// Device is a logical device with exactly one queue.
type Device interface {
	Info() PhysicalDevice
	Queue() Queue
	// CreateBuffer allocates host-visible, host-coherent memory of size bytes.
	CreateBuffer(size uint64, usage BufferUsage) (Buffer, error)
	CreateComputePipeline(shader *resources.Shader) (Pipeline, error)
	// CreateDescriptorSet binds buffers, in order, to the bindings the
	// pipeline's shader declares for set.
	CreateDescriptorSet(p Pipeline, set uint32, buffers ...Buffer) (DescriptorSet, error)
	NewCommandBuffer() (CommandBuilder, error)
	WaitIdle() error
	Destroy()
}

// Buffer is a host-visible memory region. Bytes returns the mapped memory;
// it is only safe to read after the work writing it has been waited on.
type Buffer interface {
	Size() uint64
	Usage() BufferUsage
	Bytes() []byte
	Destroy()
}

type Pipeline interface {
	Shader() *resources.Shader
	Destroy()
}

type DescriptorSet interface {
	Set() uint32
	Destroy()
}

// CommandBuilder records operations into a single-use command buffer.
// Recording after Build returns core.ErrCommandBufferState.
type CommandBuilder interface {
	CopyBuffer(src, dst Buffer) error
	Dispatch(groups [3]uint32, p Pipeline, sets ...DescriptorSet) error
	Build() (CommandBuffer, error)
	// Release frees the recording. Safe to call after Build and more than once.
	Release()
}

// CommandBuffer is finalized, ready for exactly one submission.
type CommandBuffer interface {
	Release()
}

type Queue interface {
	FamilyIndex() uint32
	// Submit hands cb to the device together with a fence.
	Submit(cb CommandBuffer) (Future, error)
}

// Future is the completion signal of one submission.
type Future interface {
	// Wait blocks until the device signals completion. There is no timeout.
	Wait() error
}
