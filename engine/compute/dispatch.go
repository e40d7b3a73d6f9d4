package compute

import (
	"fmt"
	"math"

	"github.com/spaghettifunk/anima-compute/engine/core"
	"github.com/spaghettifunk/anima-compute/engine/resources"
)

// Workgroups returns the smallest 1D grid of groups of localSize invocations
// covering elements. Grids wider than a uint32 group count are rejected.
func Workgroups(elements int, localSize uint32) ([3]uint32, error) {
	if localSize == 0 || elements <= 0 {
		return [3]uint32{0, 1, 1}, nil
	}
	n := (uint64(elements) + uint64(localSize) - 1) / uint64(localSize)
	if n > math.MaxUint32 {
		return [3]uint32{}, core.Errorf(core.KindConfiguration, "compute.Workgroups",
			"%w: %d elements need %d groups of %d", core.ErrInvalidConfig, elements, n, localSize)
	}
	return [3]uint32{uint32(n), 1, 1}, nil
}

// CheckDispatch verifies that groups launches at least one invocation per
// element for shader's workgroup size.
func CheckDispatch(shader *resources.Shader, groups [3]uint32, elements int) error {
	const op = "compute.CheckDispatch"

	perGroup := uint64(shader.InvocationsPerGroup())
	if perGroup == 0 {
		return core.Errorf(core.KindAsset, op, "%w: %s has no workgroup size", core.ErrShaderAsset, shader.Name)
	}
	total := perGroup * uint64(groups[0]) * uint64(groups[1]) * uint64(groups[2])
	if total < uint64(elements) {
		return core.Errorf(core.KindConfiguration, op,
			"%w: %v groups of %v invocations cover %d of %d elements",
			core.ErrInvalidConfig, groups, shader.LocalSize, total, elements)
	}
	return nil
}

// CheckSetBindings matches buffers, in order, against the bindings shader
// declares for set, including the usage each descriptor type needs.
func CheckSetBindings(shader *resources.Shader, set uint32, buffers []Buffer) error {
	bindings := shader.SetBindings(set)
	if len(bindings) == 0 {
		return fmt.Errorf("shader %s declares no bindings in set %d", shader.Name, set)
	}
	if len(buffers) != len(bindings) {
		return fmt.Errorf("set %d of %s has %d bindings, got %d buffers", set, shader.Name, len(bindings), len(buffers))
	}
	for i, b := range bindings {
		if buffers[i] == nil {
			return fmt.Errorf("no buffer for binding %d.%d", set, b.Binding)
		}
		want := BufferUsageStorage
		if b.Type == resources.DescriptorTypeUniformBuffer {
			want = BufferUsageUniform
		}
		if !buffers[i].Usage().Has(want) {
			return fmt.Errorf("buffer for binding %d.%d lacks %s usage", set, b.Binding, b.Type)
		}
	}
	return nil
}
