package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-compute/engine/core"
)

type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks

	// only set when validation is enabled
	debugCallback vk.DebugReportCallback

	// handles in enumeration order, parallel to the reported devices
	PhysicalDevices []vk.PhysicalDevice

	Device *VulkanDevice

	locks *VulkanLockPool
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that
// has every bit of propertyFlags.
func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	index, ok := findMemoryType(vc.Device.Memory, typeFilter, propertyFlags)
	if !ok {
		err := core.NewError(core.KindResource, "vulkan.FindMemoryIndex", fmt.Errorf("%w: filter %#x, properties %#x", core.ErrMemoryTypeNotFound, typeFilter, uint32(propertyFlags)))
		core.LogWarn("Unable to find suitable memory type!")
		return 0, err
	}
	return index, nil
}

func findMemoryType(memoryProperties vk.PhysicalDeviceMemoryProperties, typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, bool) {
	count := memoryProperties.MemoryTypeCount
	if max := uint32(len(memoryProperties.MemoryTypes)); count > max {
		count = max
	}
	for i := uint32(0); i < count; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryType := memoryProperties.MemoryTypes[i]
		memoryType.Deref()
		if typeFilter&(1<<i) != 0 && memoryType.PropertyFlags&propertyFlags == propertyFlags {
			return i, true
		}
	}
	return 0, false
}
