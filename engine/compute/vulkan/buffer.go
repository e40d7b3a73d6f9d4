package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-compute/engine/compute"
	"github.com/spaghettifunk/anima-compute/engine/core"
)

const hostMemoryFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)

// VulkanBuffer is a buffer bound to host-visible, host-coherent memory that
// stays mapped for its whole life.
type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory

	size    uint64
	usage   compute.BufferUsage
	mapped  []byte
	context *VulkanContext
}

func BufferCreate(context *VulkanContext, size uint64, usage compute.BufferUsage) (*VulkanBuffer, error) {
	const op = "vulkan.BufferCreate"

	if size == 0 {
		return nil, core.Errorf(core.KindConfiguration, op, "buffer size must be greater than zero")
	}
	device := context.Device.LogicalDevice

	buffer := &VulkanBuffer{size: size, usage: usage, context: context}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       bufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	if err := context.locks.SafeCall(BufferManagement, func() error {
		if res := vk.CreateBuffer(device, &bufferInfo, context.Allocator, &buffer.Handle); res != vk.Success {
			return resultError(op, res)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, buffer.Handle, &requirements)
	requirements.Deref()

	memoryIndex, err := context.FindMemoryIndex(requirements.MemoryTypeBits, hostMemoryFlags)
	if err != nil {
		buffer.Destroy()
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryIndex,
	}
	if err := context.locks.SafeCall(MemoryManagement, func() error {
		if res := vk.AllocateMemory(device, &allocateInfo, context.Allocator, &buffer.Memory); res != vk.Success {
			return resultError(op, res)
		}
		if res := vk.BindBufferMemory(device, buffer.Handle, buffer.Memory, 0); res != vk.Success {
			return resultError(op, res)
		}
		var data unsafe.Pointer
		if res := vk.MapMemory(device, buffer.Memory, 0, vk.DeviceSize(size), 0, &data); res != vk.Success {
			return resultError(op, res)
		}
		buffer.mapped = unsafe.Slice((*byte)(data), size)
		return nil
	}); err != nil {
		buffer.Destroy()
		return nil, err
	}

	core.LogDebug("Allocated %d byte buffer (memory type %d).", size, memoryIndex)
	return buffer, nil
}

func (vb *VulkanBuffer) Size() uint64                { return vb.size }
func (vb *VulkanBuffer) Usage() compute.BufferUsage { return vb.usage }
func (vb *VulkanBuffer) Bytes() []byte               { return vb.mapped }

func (vb *VulkanBuffer) Destroy() {
	if vb.context.Device == nil {
		return
	}
	device := vb.context.Device.LogicalDevice
	vb.context.locks.SafeCall(MemoryManagement, func() error {
		if vb.mapped != nil {
			vk.UnmapMemory(device, vb.Memory)
			vb.mapped = nil
		}
		if vb.Memory != vk.NullDeviceMemory {
			vk.FreeMemory(device, vb.Memory, vb.context.Allocator)
			vb.Memory = vk.NullDeviceMemory
		}
		return nil
	})
	if vb.Handle != vk.NullBuffer {
		vk.DestroyBuffer(device, vb.Handle, vb.context.Allocator)
		vb.Handle = vk.NullBuffer
	}
}
