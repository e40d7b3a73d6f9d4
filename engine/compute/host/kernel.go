package host

import "github.com/spaghettifunk/anima-compute/engine/compute"

// Invocation identifies one shader invocation inside a dispatch.
type Invocation struct {
	GlobalID    [3]uint32
	WorkgroupID [3]uint32
	LocalID     [3]uint32
}

// Bindings exposes the buffers of the descriptor sets bound to a dispatch.
type Bindings struct {
	sets map[uint32]*descriptorSet
}

// Buffer returns the buffer at set/binding, or nil when nothing is bound there.
func (b Bindings) Buffer(set, binding uint32) compute.Buffer {
	ds, ok := b.sets[set]
	if !ok {
		return nil
	}
	buf, ok := ds.buffers[binding]
	if !ok {
		return nil
	}
	return buf
}

// Kernel is the host stand-in for a compute shader entry point. It runs once
// per invocation; invocations of a dispatch run concurrently.
type Kernel func(inv Invocation, b Bindings)
