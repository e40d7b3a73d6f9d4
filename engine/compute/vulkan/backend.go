package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-compute/engine/compute"
	"github.com/spaghettifunk/anima-compute/engine/core"
	"github.com/spaghettifunk/anima-compute/engine/platform"
)

type Loader string

const (
	// Resolve vkGetInstanceProcAddr through GLFW.
	LoaderGLFW Loader = "glfw"
	// Let the bindings open the system Vulkan library.
	LoaderSystem Loader = "system"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

type Config struct {
	Loader Loader
	// Required for LoaderGLFW.
	Platform *platform.Platform
}

type Backend struct {
	config Config
}

func New(config Config) *Backend {
	if config.Loader == "" {
		config.Loader = LoaderGLFW
	}
	return &Backend{config: config}
}

func (b *Backend) Name() string {
	return "vulkan"
}

func (b *Backend) loadDriver() error {
	const op = "vulkan.loadDriver"

	switch b.config.Loader {
	case LoaderGLFW:
		if b.config.Platform == nil {
			return core.Errorf(core.KindConfiguration, op, "the glfw loader needs a platform")
		}
		if err := b.config.Platform.Startup(); err != nil {
			return err
		}
		procAddr, err := b.config.Platform.GetInstanceProcAddress()
		if err != nil {
			return err
		}
		vk.SetGetInstanceProcAddr(procAddr)
	case LoaderSystem:
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return core.NewError(core.KindDriver, op, fmt.Errorf("%w: %s", core.ErrDriverUnavailable, err))
		}
	default:
		return core.Errorf(core.KindConfiguration, op, "%w: unknown loader %q", core.ErrInvalidConfig, b.config.Loader)
	}

	if err := vk.Init(); err != nil {
		err := core.NewError(core.KindDriver, op, fmt.Errorf("%w: failed to initialize vk: %s", core.ErrDriverUnavailable, err))
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (b *Backend) CreateInstance(info compute.AppInfo) (compute.Instance, error) {
	const op = "vulkan.CreateInstance"

	if err := b.loadDriver(); err != nil {
		return nil, err
	}

	context := &VulkanContext{
		// TODO: custom allocator.
		Allocator: nil,
		locks:     NewVulkanLockPool(),
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(info.Name),
		PEngineName:        VulkanSafeString("Anima Compute"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// No surface: compute only needs the core instance.
	requiredExtensions := []string{}
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	requiredLayers := []string{}
	if info.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		if err := checkValidationLayers(validationLayer); err != nil {
			return nil, err
		}
		requiredLayers = append(requiredLayers, validationLayer)
	}
	for _, ext := range requiredExtensions {
		core.LogDebug("Required extension: %s", ext)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	if res := vk.CreateInstance(&createInfo, context.Allocator, &context.Instance); res != vk.Success {
		err := core.NewError(core.KindDriver, op, fmt.Errorf("%w: failed in creating the Vulkan Instance with error `%s`", core.ErrDriverUnavailable, VulkanResultString(res, true)))
		core.LogError(err.Error())
		return nil, err
	}
	if err := vk.InitInstance(context.Instance); err != nil {
		vk.DestroyInstance(context.Instance, context.Allocator)
		err := core.NewError(core.KindDriver, op, err)
		core.LogError(err.Error())
		return nil, err
	}
	core.LogInfo("Vulkan Instance created.")

	if info.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(context.Instance, &debugCreateInfo, context.Allocator, &dbg)); err != nil {
			// validation still runs, only the messages are lost
			core.LogWarn("vk.CreateDebugReportCallback failed with %s", err)
		} else {
			context.debugCallback = dbg
			core.LogDebug("Vulkan debugger created.")
		}
	}

	return &instance{context: context, platform: b.config.Platform}, nil
}

func checkValidationLayers(required ...string) error {
	const op = "vulkan.checkValidationLayers"

	core.LogInfo("Validation layers enabled. Enumerating...")
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return resultError(op, res)
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return resultError(op, res)
	}

	names := make(map[string]bool, len(available))
	for i := range available {
		available[i].Deref()
		names[cString(available[i].LayerName[:])] = true
	}
	for _, name := range required {
		core.LogDebug("Searching for layer: %s...", name)
		if !names[name] {
			err := core.NewError(core.KindDriver, op, fmt.Errorf("%w: required validation layer is missing: %s", core.ErrDriverUnavailable, name))
			core.LogError(err.Error())
			return err
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

type instance struct {
	context  *VulkanContext
	platform *platform.Platform
	devices  []compute.PhysicalDevice
}

func (in *instance) PhysicalDevices() ([]compute.PhysicalDevice, error) {
	const op = "vulkan.PhysicalDevices"

	if in.devices != nil {
		return in.devices, nil
	}

	var count uint32
	if res := vk.EnumeratePhysicalDevices(in.context.Instance, &count, nil); res != vk.Success {
		return nil, resultError(op, res)
	}
	handles := make([]vk.PhysicalDevice, count)
	if count > 0 {
		if res := vk.EnumeratePhysicalDevices(in.context.Instance, &count, handles); res != vk.Success {
			return nil, resultError(op, res)
		}
	}

	devices := make([]compute.PhysicalDevice, count)
	for i, handle := range handles[:count] {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(handle, &props)
		props.Deref()

		var familyCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(handle, &familyCount, nil)
		families := make([]vk.QueueFamilyProperties, familyCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(handle, &familyCount, families)
		for j := range families {
			families[j].Deref()
		}

		devices[i] = compute.PhysicalDevice{
			Index:         i,
			Name:          cString(props.DeviceName[:]),
			Type:          deviceType(props.DeviceType),
			APIVersion:    versionString(props.ApiVersion),
			DriverVersion: versionString(props.DriverVersion),
			QueueFamilies: queueFamilies(families[:familyCount]),
		}
	}

	in.context.PhysicalDevices = handles[:count]
	in.devices = devices
	return devices, nil
}

func (in *instance) CreateDevice(sel compute.Selection, queuePriority float32) (compute.Device, error) {
	if in.devices == nil {
		if _, err := in.PhysicalDevices(); err != nil {
			return nil, err
		}
	}
	if sel.Device.Index < 0 || sel.Device.Index >= len(in.context.PhysicalDevices) {
		return nil, core.Errorf(core.KindConfiguration, "vulkan.CreateDevice", "no physical device at index %d", sel.Device.Index)
	}
	return DeviceCreate(in.context, in.context.PhysicalDevices[sel.Device.Index], sel, queuePriority)
}

func (in *instance) Destroy() {
	if in.context.Instance == nil {
		return
	}
	in.context.locks.SafeCall(InstanceManagement, func() error {
		if in.context.debugCallback != vk.NullDebugReportCallback {
			core.LogDebug("Destroying Vulkan debugger...")
			vk.DestroyDebugReportCallback(in.context.Instance, in.context.debugCallback, in.context.Allocator)
			in.context.debugCallback = vk.NullDebugReportCallback
		}
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(in.context.Instance, in.context.Allocator)
		in.context.Instance = nil
		in.context.PhysicalDevices = nil
		return nil
	})

	if in.platform != nil {
		in.platform.Shutdown()
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
