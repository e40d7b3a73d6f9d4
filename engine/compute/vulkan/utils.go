package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-compute/engine/compute"
	"github.com/spaghettifunk/anima-compute/engine/core"
	"github.com/spaghettifunk/anima-compute/engine/resources"
)

type resultInfo struct {
	name        string
	description string
	success     bool
}

// From: https://www.khronos.org/registry/vulkan/specs/1.3-extensions/man/html/VkResult.html
var resultTable = map[vk.Result]resultInfo{
	// Success codes
	vk.Success:    {"VK_SUCCESS", "Command successfully completed", true},
	vk.NotReady:   {"VK_NOT_READY", "A fence or query has not yet completed", true},
	vk.Timeout:    {"VK_TIMEOUT", "A wait operation has not completed in the specified time", true},
	vk.EventSet:   {"VK_EVENT_SET", "An event is signaled", true},
	vk.EventReset: {"VK_EVENT_RESET", "An event is unsignaled", true},
	vk.Incomplete: {"VK_INCOMPLETE", "A return array was too small for the result", true},

	// Error codes
	vk.ErrorOutOfHostMemory:       {"VK_ERROR_OUT_OF_HOST_MEMORY", "A host memory allocation has failed.", false},
	vk.ErrorOutOfDeviceMemory:     {"VK_ERROR_OUT_OF_DEVICE_MEMORY", "A device memory allocation has failed.", false},
	vk.ErrorInitializationFailed:  {"VK_ERROR_INITIALIZATION_FAILED", "Initialization of an object could not be completed for implementation-specific reasons.", false},
	vk.ErrorDeviceLost:            {"VK_ERROR_DEVICE_LOST", "The logical or physical device has been lost.", false},
	vk.ErrorMemoryMapFailed:       {"VK_ERROR_MEMORY_MAP_FAILED", "Mapping of a memory object has failed.", false},
	vk.ErrorLayerNotPresent:       {"VK_ERROR_LAYER_NOT_PRESENT", "A requested layer is not present or could not be loaded.", false},
	vk.ErrorExtensionNotPresent:   {"VK_ERROR_EXTENSION_NOT_PRESENT", "A requested extension is not supported.", false},
	vk.ErrorFeatureNotPresent:     {"VK_ERROR_FEATURE_NOT_PRESENT", "A requested feature is not supported.", false},
	vk.ErrorIncompatibleDriver:    {"VK_ERROR_INCOMPATIBLE_DRIVER", "The requested version of Vulkan is not supported by the driver.", false},
	vk.ErrorTooManyObjects:        {"VK_ERROR_TOO_MANY_OBJECTS", "Too many objects of the type have already been created.", false},
	vk.ErrorFormatNotSupported:    {"VK_ERROR_FORMAT_NOT_SUPPORTED", "A requested format is not supported on this device.", false},
	vk.ErrorFragmentedPool:        {"VK_ERROR_FRAGMENTED_POOL", "A pool allocation has failed due to fragmentation of the pool's memory.", false},
	vk.ErrorOutOfPoolMemory:       {"VK_ERROR_OUT_OF_POOL_MEMORY", "A pool memory allocation has failed.", false},
	vk.ErrorInvalidExternalHandle: {"VK_ERROR_INVALID_EXTERNAL_HANDLE", "An external handle is not a valid handle of the specified type.", false},
	vk.ErrorFragmentation:         {"VK_ERROR_FRAGMENTATION", "A descriptor pool creation has failed due to fragmentation.", false},
	vk.ErrorInvalidShaderNv:       {"VK_ERROR_INVALID_SHADER_NV", "One or more shaders failed to compile or link.", false},
	vk.ErrorUnknown:               {"VK_ERROR_UNKNOWN", "An unknown error has occurred.", false},
}

// VulkanResultString names a result, with its description when getExtended is set.
func VulkanResultString(result vk.Result, getExtended bool) string {
	info, ok := resultTable[result]
	if !ok {
		return fmt.Sprintf("VkResult(%d)", int32(result))
	}
	if getExtended {
		return info.name + " " + info.description
	}
	return info.name
}

// VulkanResultIsSuccess reports whether result is one of the success codes.
// Unknown codes are treated as errors.
func VulkanResultIsSuccess(result vk.Result) bool {
	info, ok := resultTable[result]
	return ok && info.success
}

// resultKind maps a failed call onto the error taxonomy.
func resultKind(result vk.Result) core.ErrorKind {
	switch result {
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory, vk.ErrorOutOfPoolMemory,
		vk.ErrorFragmentedPool, vk.ErrorFragmentation, vk.ErrorTooManyObjects, vk.ErrorMemoryMapFailed:
		return core.KindResource
	case vk.ErrorIncompatibleDriver, vk.ErrorInitializationFailed,
		vk.ErrorLayerNotPresent, vk.ErrorExtensionNotPresent, vk.ErrorFeatureNotPresent:
		return core.KindDriver
	default:
		return core.KindDevice
	}
}

// resultError builds, logs and returns the error for a failed call.
func resultError(op string, result vk.Result) error {
	err := core.NewError(resultKind(result), op, fmt.Errorf("%s", VulkanResultString(result, true)))
	core.LogError(err.Error())
	return err
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

// cString converts a fixed-size, nul-padded name from a Vulkan struct.
func cString(arr []byte) string {
	for i, b := range arr {
		if b == 0 {
			return string(arr[:i])
		}
	}
	return string(arr)
}

func bufferUsageFlags(usage compute.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	pairs := []struct {
		usage compute.BufferUsage
		bit   vk.BufferUsageFlagBits
	}{
		{compute.BufferUsageTransferSrc, vk.BufferUsageTransferSrcBit},
		{compute.BufferUsageTransferDst, vk.BufferUsageTransferDstBit},
		{compute.BufferUsageUniformTexel, vk.BufferUsageUniformTexelBufferBit},
		{compute.BufferUsageStorageTexel, vk.BufferUsageStorageTexelBufferBit},
		{compute.BufferUsageUniform, vk.BufferUsageUniformBufferBit},
		{compute.BufferUsageStorage, vk.BufferUsageStorageBufferBit},
		{compute.BufferUsageIndex, vk.BufferUsageIndexBufferBit},
		{compute.BufferUsageVertex, vk.BufferUsageVertexBufferBit},
		{compute.BufferUsageIndirect, vk.BufferUsageIndirectBufferBit},
	}
	for _, p := range pairs {
		if usage.Has(p.usage) {
			flags |= p.bit
		}
	}
	return vk.BufferUsageFlags(flags)
}

func descriptorType(t resources.DescriptorType) vk.DescriptorType {
	if t == resources.DescriptorTypeUniformBuffer {
		return vk.DescriptorTypeUniformBuffer
	}
	return vk.DescriptorTypeStorageBuffer
}

func deviceType(t vk.PhysicalDeviceType) compute.DeviceType {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return compute.DeviceTypeIntegratedGPU
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return compute.DeviceTypeDiscreteGPU
	case vk.PhysicalDeviceTypeVirtualGpu:
		return compute.DeviceTypeVirtualGPU
	case vk.PhysicalDeviceTypeCpu:
		return compute.DeviceTypeCPU
	default:
		return compute.DeviceTypeOther
	}
}

// queueFamilies translates queue family properties, keeping enumeration order.
func queueFamilies(props []vk.QueueFamilyProperties) []compute.QueueFamily {
	out := make([]compute.QueueFamily, len(props))
	for i, p := range props {
		flags := p.QueueFlags
		out[i] = compute.QueueFamily{
			Index:      uint32(i),
			QueueCount: p.QueueCount,
			Graphics:   flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0,
			Compute:    flags&vk.QueueFlags(vk.QueueComputeBit) != 0,
			Transfer:   flags&vk.QueueFlags(vk.QueueTransferBit) != 0,
		}
	}
	return out
}

func versionString(v uint32) string {
	ver := vk.Version(v)
	return fmt.Sprintf("%d.%d.%d", ver.Major(), ver.Minor(), ver.Patch())
}
