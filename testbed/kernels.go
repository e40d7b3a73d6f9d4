package testbed

import (
	"github.com/spaghettifunk/anima-compute/engine/compute"
	"github.com/spaghettifunk/anima-compute/engine/compute/host"
)

// Multiply is the host counterpart of the mul_12 shader: every invocation
// scales one uint32 of the buffer at set 0, binding 0.
func Multiply(factor uint32) host.Kernel {
	return func(inv host.Invocation, b host.Bindings) {
		buf := b.Buffer(0, 0)
		if buf == nil {
			return
		}
		data := compute.Elements[uint32](buf)
		if i := inv.GlobalID[0]; int(i) < len(data) {
			data[i] *= factor
		}
	}
}
