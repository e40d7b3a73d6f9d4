package compute

import (
	"fmt"

	"github.com/spaghettifunk/anima-compute/engine/core"
)

type Selection struct {
	Device      PhysicalDevice
	QueueFamily QueueFamily
}

// SelectDevice takes the first enumerated physical device and its first
// graphics-capable queue family. No other property of the device is looked at.
func SelectDevice(devices []PhysicalDevice) (Selection, error) {
	const op = "compute.SelectDevice"

	if len(devices) == 0 {
		return Selection{}, core.NewError(core.KindDriver, op, core.ErrNoPhysicalDevice)
	}
	device := devices[0]
	for _, family := range device.QueueFamilies {
		if family.Graphics {
			return Selection{Device: device, QueueFamily: family}, nil
		}
	}
	return Selection{}, core.NewError(core.KindDriver, op,
		fmt.Errorf("%w on device %d (%s)", core.ErrNoGraphicsQueueFamily, device.Index, device.Name))
}
