package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-compute/engine/compute"
	"github.com/spaghettifunk/anima-compute/engine/core"
	"github.com/spaghettifunk/anima-compute/engine/resources"
)

const portabilitySubset = "VK_KHR_portability_subset"

type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	QueueFamilyIndex uint32
	CommandPool      vk.CommandPool

	Memory vk.PhysicalDeviceMemoryProperties

	info    compute.PhysicalDevice
	context *VulkanContext
	queue   *queue
}

// DeviceCreate creates the logical device with one queue of the selected
// family, plus the command pool every command buffer is allocated from.
func DeviceCreate(context *VulkanContext, physicalDevice vk.PhysicalDevice, sel compute.Selection, queuePriority float32) (*VulkanDevice, error) {
	const op = "vulkan.DeviceCreate"

	device := &VulkanDevice{
		PhysicalDevice:   physicalDevice,
		QueueFamilyIndex: sel.QueueFamily.Index,
		info:             sel.Device,
		context:          context,
	}

	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &device.Memory)
	device.Memory.Deref()

	core.LogInfo("Creating logical device on %s (queue family %d)...", sel.Device.Name, sel.QueueFamily.Index)

	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: sel.QueueFamily.Index,
		QueueCount:       1,
		PQueuePriorities: []float32{queuePriority},
	}}

	extensionNames, err := deviceExtensions(physicalDevice)
	if err != nil {
		return nil, err
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
		// Deprecated and ignored, so pass nothing.
		EnabledLayerCount:   0,
		PpEnabledLayerNames: nil,
	}

	if err := context.locks.SafeCall(DeviceManagement, func() error {
		if res := vk.CreateDevice(physicalDevice, &deviceCreateInfo, context.Allocator, &device.LogicalDevice); res != vk.Success {
			return resultError(op, res)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	core.LogInfo("Logical device created.")

	var handle vk.Queue
	vk.GetDeviceQueue(device.LogicalDevice, device.QueueFamilyIndex, 0, &handle)
	device.queue = &queue{device: device, Handle: handle, family: device.QueueFamilyIndex}
	core.LogInfo("Queue obtained.")

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: device.QueueFamilyIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	if err := context.locks.SafeCall(CommandPoolManagement, func() error {
		if res := vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, context.Allocator, &device.CommandPool); res != vk.Success {
			return resultError(op, res)
		}
		return nil
	}); err != nil {
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		return nil, err
	}
	core.LogInfo("Command pool created.")

	context.Device = device
	return device, nil
}

// deviceExtensions enables VK_KHR_portability_subset when the implementation
// advertises it.
func deviceExtensions(physicalDevice vk.PhysicalDevice) ([]string, error) {
	const op = "vulkan.deviceExtensions"

	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, nil); res != vk.Success {
		return nil, resultError(op, res)
	}
	if count == 0 {
		return nil, nil
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, available); res != vk.Success {
		return nil, resultError(op, res)
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].ExtensionName[:]) == portabilitySubset {
			core.LogInfo("Adding required extension '%s'.", portabilitySubset)
			return []string{portabilitySubset}, nil
		}
	}
	return nil, nil
}

func (vd *VulkanDevice) Info() compute.PhysicalDevice {
	return vd.info
}

func (vd *VulkanDevice) Queue() compute.Queue {
	return vd.queue
}

func (vd *VulkanDevice) CreateBuffer(size uint64, usage compute.BufferUsage) (compute.Buffer, error) {
	return BufferCreate(vd.context, size, usage)
}

func (vd *VulkanDevice) CreateComputePipeline(shader *resources.Shader) (compute.Pipeline, error) {
	return ComputePipelineCreate(vd.context, shader)
}

func (vd *VulkanDevice) CreateDescriptorSet(p compute.Pipeline, set uint32, buffers ...compute.Buffer) (compute.DescriptorSet, error) {
	vp, ok := p.(*VulkanPipeline)
	if !ok || vp.Handle == vk.NullPipeline {
		return nil, core.Errorf(core.KindConfiguration, "vulkan.CreateDescriptorSet", "pipeline does not belong to this device")
	}
	return DescriptorSetCreate(vd.context, vp, set, buffers)
}

func (vd *VulkanDevice) NewCommandBuffer() (compute.CommandBuilder, error) {
	return AllocateAndBeginSingleUse(vd.context)
}

func (vd *VulkanDevice) WaitIdle() error {
	if vd.LogicalDevice == nil {
		return nil
	}
	if res := vk.DeviceWaitIdle(vd.LogicalDevice); res != vk.Success {
		return resultError("vulkan.WaitIdle", res)
	}
	return nil
}

// Destroy releases the command pool and the logical device. Physical devices
// are not destroyed.
func (vd *VulkanDevice) Destroy() {
	if vd.LogicalDevice == nil {
		return
	}
	core.LogInfo("Destroying command pools...")
	vk.DestroyCommandPool(vd.LogicalDevice, vd.CommandPool, vd.context.Allocator)
	vd.CommandPool = vk.NullCommandPool

	core.LogInfo("Destroying logical device...")
	vk.DestroyDevice(vd.LogicalDevice, vd.context.Allocator)
	vd.LogicalDevice = nil
	vd.queue.Handle = nil

	if vd.context.Device == vd {
		vd.context.Device = nil
	}
}
